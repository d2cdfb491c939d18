package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/orerelay/ledger/pkg/store"
	"github.com/malbeclabs/orerelay/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	envFileFlag := flag.String("env-file", ".env", "optional file of environment variables to load")

	// Postgres configuration
	pgHostFlag := flag.String("pg-host", "localhost", "PostgreSQL host (or set POSTGRES_HOST env var)")
	pgPortFlag := flag.String("pg-port", "5432", "PostgreSQL port (or set POSTGRES_PORT env var)")
	pgDatabaseFlag := flag.String("pg-database", "orerelay", "PostgreSQL database name (or set POSTGRES_DB env var)")
	pgUsernameFlag := flag.String("pg-username", "postgres", "PostgreSQL username (or set POSTGRES_USER env var)")
	pgPasswordFlag := flag.String("pg-password", "", "PostgreSQL password (or set POSTGRES_PASSWORD env var)")
	pgSSLModeFlag := flag.String("pg-sslmode", "disable", "PostgreSQL SSL mode (or set POSTGRES_SSLMODE env var)")

	// Commands
	pgMigrateUpFlag := flag.Bool("pg-migrate-up", false, "Run all pending account store migrations")
	pgMigrateDownFlag := flag.Bool("pg-migrate-down", false, "Roll back the last account store migration")
	pgMigrateStatusFlag := flag.Bool("pg-migrate-status", false, "Show account store migration status")

	flag.Parse()

	if err := godotenv.Load(*envFileFlag); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	log := logger.New(*verboseFlag)

	connStr := store.PgConfig{
		Host:     *pgHostFlag,
		Port:     *pgPortFlag,
		Database: *pgDatabaseFlag,
		Username: *pgUsernameFlag,
		Password: *pgPasswordFlag,
		SSLMode:  *pgSSLModeFlag,
	}.WithEnv().ConnString()

	switch {
	case *pgMigrateUpFlag:
		return store.MigrateUp(log, connStr)
	case *pgMigrateDownFlag:
		return store.MigrateDown(log, connStr)
	case *pgMigrateStatusFlag:
		return store.MigrateStatus(log, connStr)
	}

	flag.Usage()
	return nil
}
