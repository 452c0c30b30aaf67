package database

import (
	"fmt"
	"time"

	"github.com/fittrack/backend/internal/config"
	"github.com/fittrack/backend/internal/database/migrations"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the configured store and runs migrations
func InitDB(dbConfig config.DatabaseConfig) (*gorm.DB, error) {
	db, err := Open(dbConfig)
	if err != nil {
		return nil, err
	}
	if err := migrations.Run(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// Open connects to the configured store and sizes the pool. Without
// DATABASE_URL it falls back to a local sqlite file for development.
func Open(dbConfig config.DatabaseConfig) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	if dbConfig.URL == "" {
		db, err = OpenSQLite(dbConfig.SQLitePath, gormConfig(dbConfig.LogQueries))
	} else {
		db, err = gorm.Open(postgres.Open(dbConfig.URL), gormConfig(dbConfig.LogQueries))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dbConfig.URL != "" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database connection: %w", err)
		}
		sqlDB.SetMaxIdleConns(dbConfig.MaxIdle)
		sqlDB.SetMaxOpenConns(dbConfig.MaxConns)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	return db, nil
}

// OpenSQLite opens a sqlite store limited to a single connection. SQLite has
// no row locks, so one connection serializes writers instead of failing them
// with "database is locked".
func OpenSQLite(dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	if cfg == nil {
		cfg = gormConfig(false)
	}
	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func gormConfig(logQueries bool) *gorm.Config {
	level := logger.Warn
	if logQueries {
		level = logger.Info
	}
	return &gorm.Config{
		Logger: logger.Default.LogMode(level),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}
