// Package db wires the GORM connection used by every store
// (SnapshotStore, QuoteStore, ActivityStore, AssetCatalog). Production
// deployments speak Postgres; the testable-properties suite (spec §8)
// and quick local runs use the bundled sqlite driver instead.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	_ "github.com/lib/pq"
)

// Dialect selects the GORM driver Connect opens.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Config holds database configuration.
type Config struct {
	Dialect Dialect

	// Postgres fields.
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	// SQLite field: a file path, or ":memory:" for ephemeral tests.
	SQLitePath string
}

// DB wraps the GORM database connection.
type DB struct {
	*gorm.DB
}

// NewConfig creates a new database configuration from environment variables.
func NewConfig() *Config {
	dialect := Dialect(getEnv("DB_DIALECT", "postgres"))
	return &Config{
		Dialect:    dialect,
		Host:       getEnv("DB_HOST", "localhost"),
		Port:       getEnv("DB_PORT", "5433"),
		User:       getEnv("DB_USER", "portfolio_user"),
		Password:   getEnv("DB_PASSWORD", "portfolio_password"),
		Name:       getEnv("DB_NAME", "portfolio"),
		SSLMode:    getEnv("DB_SSL_MODE", "disable"),
		SQLitePath: getEnv("DB_SQLITE_PATH", "portfolio.db"),
	}
}

// Connect establishes a GORM connection to the database.
func Connect(config *Config) (*DB, error) {
	var (
		gdb *gorm.DB
		err error
	)

	switch config.Dialect {
	case DialectSQLite:
		gdb, err = gorm.Open(sqlite.Open(config.SQLitePath), &gorm.Config{})
	default:
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			config.Host, config.Port, config.User, config.Password, config.Name, config.SSLMode)
		gdb, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{gdb}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the database connection is healthy.
func (db *DB) Health() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// GetSQLDB returns the underlying *sql.DB for raw-SQL reporting queries.
func (db *DB) GetSQLDB() (*sql.DB, error) {
	return db.DB.DB()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
