package migrations

import (
	"github.com/jmylchreest/slidereel/internal/models"
	"gorm.io/gorm"
)

// All returns the full migration history for the slidereel schema.
// New steps go at the end with the next version number.
func All() []Migration {
	return []Migration{
		initialSchema(),
	}
}

func initialSchema() Migration {
	return Migration{
		Version:     1,
		Description: "create jobs table",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.Job{})
		},
		Down: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&models.Job{})
		},
	}
}
