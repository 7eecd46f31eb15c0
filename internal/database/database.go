// Package database opens and manages the GORM connection slidereel
// persists jobs through. SQLite is the default; PostgreSQL and MySQL
// are supported for shared deployments.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jmylchreest/slidereel/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps the shared gorm.DB handle.
type DB struct {
	*gorm.DB
	driver string
}

// Option adjusts how New opens the connection.
type Option func(*gorm.Config)

// WithoutPreparedStatements disables the statement cache. The pure Go
// SQLite driver misbehaves when cached statements are reused inside
// explicit transactions, so tests exercising transactions opt out.
func WithoutPreparedStatements() Option {
	return func(cfg *gorm.Config) {
		cfg.PrepareStmt = false
	}
}

// New opens a pooled connection for the configured driver.
func New(cfg config.DatabaseConfig, log *slog.Logger, opts ...Option) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	gormCfg := &gorm.Config{
		Logger: &gormLogBridge{
			logger:    log,
			level:     gormLogLevel(cfg.LogLevel),
			slowAfter: time.Second,
		},
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	}
	for _, opt := range opts {
		opt(gormCfg)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	// SQLite in WAL mode allows concurrent readers but a single writer.
	// The render worker is the only steady writer; API reads and the
	// janitor need their own slots, so a small pool is enough.
	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if cfg.Driver == "sqlite" {
		maxOpen, maxIdle = 4, 2
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	log.Debug("database ready",
		slog.String("driver", cfg.Driver),
		slog.Int("max_open_conns", maxOpen),
		slog.Int("max_idle_conns", maxIdle),
	)

	return &DB{DB: db, driver: cfg.Driver}, nil
}

// sqlitePragmas are appended to the DSN so every pooled connection gets
// them, not just the first one opened.
var sqlitePragmas = []string{
	"busy_timeout(30000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
	"temp_store(MEMORY)",
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		dsn := cfg.DSN
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=" + strings.Join(sqlitePragmas, "&_pragma=")
		return sqlite.Open(dsn), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// Close releases the connection pool.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks that the pool can still reach the database.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Driver reports which driver the pool was opened with.
func (db *DB) Driver() string {
	return db.driver
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// gormLogBridge routes GORM's query log through slog. Queries log at
// debug, slow queries at warn, and failed queries at error. Record-not-
// found is not a failure here; callers translate it themselves.
type gormLogBridge struct {
	logger    *slog.Logger
	level     logger.LogLevel
	slowAfter time.Duration
}

func (l *gormLogBridge) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogBridge) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Info {
		l.logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogBridge) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Warn {
		l.logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogBridge) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Error {
		l.logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

// maxSQLLog bounds how much of a statement lands in the log.
const maxSQLLog = 200

func clipSQL(sql string) string {
	if len(sql) <= maxSQLLog {
		return sql
	}
	return sql[:maxSQLLog] + " ..."
}

func (l *gormLogBridge) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)

	// fc interpolates the full SQL string; skip calling it when nothing
	// will be emitted.
	switch {
	case failed && l.level >= logger.Error:
		sql, rows := fc()
		l.logger.ErrorContext(ctx, "query failed",
			slog.String("sql", clipSQL(sql)),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
	case elapsed >= l.slowAfter && l.slowAfter > 0 && l.level >= logger.Warn:
		if !l.logger.Enabled(ctx, slog.LevelWarn) {
			return
		}
		sql, rows := fc()
		l.logger.WarnContext(ctx, "slow query",
			slog.String("sql", clipSQL(sql)),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
		)
	case l.level >= logger.Info:
		if !l.logger.Enabled(ctx, slog.LevelDebug) {
			return
		}
		sql, rows := fc()
		l.logger.DebugContext(ctx, "query",
			slog.String("sql", clipSQL(sql)),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
		)
	}
}
