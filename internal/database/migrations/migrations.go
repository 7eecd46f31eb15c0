// Package migrations versions the database schema. Each step runs once
// inside a transaction and is recorded in schema_migrations, so startup
// can bring any older database forward safely.
package migrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"
)

// Migration is one schema step. Down may be nil for steps that cannot
// be reversed.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *gorm.DB) error
	Down        func(tx *gorm.DB) error
}

// migrationRecord is one row in the schema_migrations ledger.
type migrationRecord struct {
	ID          uint      `gorm:"primarykey"`
	Version     int       `gorm:"uniqueIndex;not null"`
	Description string    `gorm:"not null"`
	AppliedAt   time.Time `gorm:"not null"`
}

func (migrationRecord) TableName() string {
	return "schema_migrations"
}

// MigrationStatus pairs a registered migration with whether it has run.
type MigrationStatus struct {
	Version     int
	Description string
	Applied     bool
	AppliedAt   *time.Time
}

// Migrator applies registered migrations to one database.
type Migrator struct {
	db     *gorm.DB
	logger *slog.Logger
	steps  []Migration
}

// NewMigrator creates a Migrator for db.
func NewMigrator(db *gorm.DB, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{db: db, logger: logger}
}

// Register adds migrations. Registration order does not matter; steps
// always run in version order.
func (m *Migrator) Register(steps ...Migration) {
	m.steps = append(m.steps, steps...)
	sort.Slice(m.steps, func(i, j int) bool {
		return m.steps[i].Version < m.steps[j].Version
	})
}

// Up runs every registered migration that has not been applied yet.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureLedger(ctx); err != nil {
		return err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, step := range m.steps {
		if _, ok := done[step.Version]; ok {
			continue
		}

		m.logger.InfoContext(ctx, "applying migration",
			slog.Int("version", step.Version),
			slog.String("description", step.Description),
		)

		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := step.Up(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{
				Version:     step.Version,
				Description: step.Description,
				AppliedAt:   time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", step.Version, step.Description, err)
		}
	}
	return nil
}

// Down reverses the most recently applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureLedger(ctx); err != nil {
		return err
	}

	var last migrationRecord
	err := m.db.WithContext(ctx).Order("version DESC").First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		m.logger.InfoContext(ctx, "no applied migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading migration ledger: %w", err)
	}

	step, ok := m.step(last.Version)
	if !ok {
		return fmt.Errorf("migration %d is applied but not registered", last.Version)
	}
	if step.Down == nil {
		return fmt.Errorf("migration %d (%s) is not reversible", step.Version, step.Description)
	}

	m.logger.InfoContext(ctx, "rolling back migration",
		slog.Int("version", step.Version),
		slog.String("description", step.Description),
	)

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := step.Down(tx); err != nil {
			return err
		}
		return tx.Where("version = ?", step.Version).Delete(&migrationRecord{}).Error
	})
	if err != nil {
		return fmt.Errorf("rolling back migration %d: %w", step.Version, err)
	}
	return nil
}

// Status reports every registered migration and when it was applied.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureLedger(ctx); err != nil {
		return nil, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(m.steps))
	for _, step := range m.steps {
		st := MigrationStatus{Version: step.Version, Description: step.Description}
		if at, ok := done[step.Version]; ok {
			st.Applied = true
			st.AppliedAt = &at
		}
		out = append(out, st)
	}
	return out, nil
}

func (m *Migrator) ensureLedger(ctx context.Context) error {
	if err := m.db.WithContext(ctx).AutoMigrate(&migrationRecord{}); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}
	return nil
}

// applied maps each applied version to its recorded time.
func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	var rows []migrationRecord
	if err := m.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("reading migration ledger: %w", err)
	}
	done := make(map[int]time.Time, len(rows))
	for _, row := range rows {
		done[row.Version] = row.AppliedAt
	}
	return done, nil
}

func (m *Migrator) step(version int) (Migration, bool) {
	for _, s := range m.steps {
		if s.Version == version {
			return s, true
		}
	}
	return Migration{}, false
}
