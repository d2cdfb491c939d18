package store

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver with database/sql
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var EmbedMigrations embed.FS

// PgConfig holds PostgreSQL connection settings.
type PgConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

// WithEnv overrides fields with the POSTGRES_* environment variables that are set.
func (cfg PgConfig) WithEnv() PgConfig {
	for env, field := range map[string]*string{
		"POSTGRES_HOST":     &cfg.Host,
		"POSTGRES_PORT":     &cfg.Port,
		"POSTGRES_DB":       &cfg.Database,
		"POSTGRES_USER":     &cfg.Username,
		"POSTGRES_PASSWORD": &cfg.Password,
		"POSTGRES_SSLMODE":  &cfg.SSLMode,
	} {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
	return cfg
}

func (cfg PgConfig) ConnString() string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, sslMode,
	)
}

// MigrateUp runs all pending migrations.
func MigrateUp(log *slog.Logger, connStr string) error {
	return withMigrations(connStr, func(db *sql.DB) error {
		log.Info("store: running migrations (up)")
		if err := goose.Up(db, "migrations"); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("store: migrations completed")
		return nil
	})
}

// MigrateDown rolls back the last migration.
func MigrateDown(log *slog.Logger, connStr string) error {
	return withMigrations(connStr, func(db *sql.DB) error {
		log.Info("store: rolling back migration (down)")
		if err := goose.Down(db, "migrations"); err != nil {
			return fmt.Errorf("failed to rollback migration: %w", err)
		}
		log.Info("store: migration rollback completed")
		return nil
	})
}

// MigrateStatus prints the status of every migration.
func MigrateStatus(log *slog.Logger, connStr string) error {
	return withMigrations(connStr, func(db *sql.DB) error {
		log.Info("store: migration status")
		if err := goose.Status(db, "migrations"); err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}
		return nil
	})
}

func withMigrations(connStr string, fn func(db *sql.DB) error) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	goose.SetBaseFS(EmbedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return fn(db)
}
