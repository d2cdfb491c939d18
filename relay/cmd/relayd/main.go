package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	"github.com/malbeclabs/orerelay/ledger/pkg/store"
	"github.com/malbeclabs/orerelay/relay/pkg/client"
	"github.com/malbeclabs/orerelay/relay/pkg/collector"
	"github.com/malbeclabs/orerelay/relay/pkg/localnet"
	"github.com/malbeclabs/orerelay/relay/pkg/metrics"
	"github.com/malbeclabs/orerelay/relay/pkg/server"
	"github.com/malbeclabs/orerelay/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr = "0.0.0.0:8080"
	defaultGenesis    = "2025-01-01T00:00:00Z"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	logFormatFlag := flag.String("log-format", "text", "log format: text or json (or set RELAYD_LOG_FORMAT env var)")
	envFileFlag := flag.String("env-file", ".env", "optional file of environment variables to load")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "HTTP listen address (or set RELAYD_LISTEN_ADDR env var)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 10*time.Second, "maximum time to wait for in-flight requests on shutdown")
	rateLimitFlag := flag.Float64("rate-limit", 10, "submissions per second allowed per client IP")
	rateBurstFlag := flag.Int("rate-burst", 50, "submission burst allowed per client IP")
	allowedOriginsFlag := flag.StringSlice("allowed-origins", []string{"*"}, "CORS allowed origins")

	// Ledger
	storeFlag := flag.String("store", "memory", "account store: memory or postgres")
	genesisFlag := flag.String("genesis", defaultGenesis, "time of slot 0 (RFC3339)")
	treasuryKeypairFlag := flag.String("treasury-keypair", "", "keypair file of the mining treasury admin (or set RELAYD_TREASURY_KEYPAIR env var)")
	rewardRateFlag := flag.Uint64("reward-rate", localnet.DefaultRewardRate, "reward units accrued per mining submission at genesis")
	relayAdminFlag := flag.String("relay-admin", "", "public key that must co-sign relayer registration (or set RELAYD_RELAY_ADMIN env var)")

	// Postgres configuration
	pgHostFlag := flag.String("pg-host", "localhost", "PostgreSQL host (or set POSTGRES_HOST env var)")
	pgPortFlag := flag.String("pg-port", "5432", "PostgreSQL port (or set POSTGRES_PORT env var)")
	pgDatabaseFlag := flag.String("pg-database", "orerelay", "PostgreSQL database name (or set POSTGRES_DB env var)")
	pgUsernameFlag := flag.String("pg-username", "postgres", "PostgreSQL username (or set POSTGRES_USER env var)")
	pgPasswordFlag := flag.String("pg-password", "", "PostgreSQL password (or set POSTGRES_PASSWORD env var)")
	pgSSLModeFlag := flag.String("pg-sslmode", "disable", "PostgreSQL SSL mode (or set POSTGRES_SSLMODE env var)")
	pgMigrateFlag := flag.Bool("pg-migrate", false, "run pending migrations before starting")

	// Collector
	collectorKeypairFlag := flag.String("collector-keypair", "", "keypair file of the relayer miner; enables the collector (or set RELAYER_KEYPAIR env var)")
	collectorRelayerFlag := flag.String("collector-relayer", "", "relayer record address the collector collects for")
	collectorIntervalFlag := flag.Duration("collector-interval", 30*time.Second, "time between collector scans")
	collectorWorkersFlag := flag.Int("collector-workers", 4, "concurrent collect submissions")

	flag.Parse()

	if err := godotenv.Load(*envFileFlag); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	if v := os.Getenv("RELAYD_LOG_FORMAT"); v != "" {
		*logFormatFlag = v
	}
	format, err := logger.ParseFormat(*logFormatFlag)
	if err != nil {
		return err
	}
	log := logger.NewWithOptions(logger.Options{Verbose: *verboseFlag, Format: format})

	if v := os.Getenv("RELAYD_LISTEN_ADDR"); v != "" {
		*listenAddrFlag = v
	}
	if v := os.Getenv("RELAYD_TREASURY_KEYPAIR"); v != "" {
		*treasuryKeypairFlag = v
	}
	if v := os.Getenv("RELAYD_RELAY_ADMIN"); v != "" {
		*relayAdminFlag = v
	}
	if v := os.Getenv("RELAYER_KEYPAIR"); v != "" {
		*collectorKeypairFlag = v
	}
	pg := store.PgConfig{
		Host:     *pgHostFlag,
		Port:     *pgPortFlag,
		Database: *pgDatabaseFlag,
		Username: *pgUsernameFlag,
		Password: *pgPasswordFlag,
		SSLMode:  *pgSSLModeFlag,
	}.WithEnv()

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("SENTRY_ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			Environment:      environment,
			Release:          version,
			EnableTracing:    true,
			TracesSampleRate: 0.1,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("relayd: sentry initialized", "environment", environment)
	}

	genesis, err := time.Parse(time.RFC3339, *genesisFlag)
	if err != nil {
		return fmt.Errorf("invalid --genesis: %w", err)
	}
	var relayAdmin solana.PublicKey
	if *relayAdminFlag != "" {
		relayAdmin, err = solana.PublicKeyFromBase58(*relayAdminFlag)
		if err != nil {
			return fmt.Errorf("invalid --relay-admin: %w", err)
		}
	}
	treasury, err := loadTreasury(log, *treasuryKeypairFlag)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	accounts, closeStore, err := openStore(ctx, log, *storeFlag, pg, *pgMigrateFlag)
	if err != nil {
		return err
	}
	defer closeStore()

	net, err := localnet.New(ctx, localnet.Config{
		Logger:     log,
		Store:      accounts,
		Genesis:    genesis,
		Treasury:   treasury,
		RelayAdmin: relayAdmin,
		RewardRate: *rewardRateFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to start ledger: %w", err)
	}

	srv, err := server.New(server.Config{
		Logger:          log,
		Executor:        net.Bank(),
		ListenAddr:      *listenAddrFlag,
		ShutdownTimeout: *shutdownTimeoutFlag,
		VersionInfo:     server.VersionInfo{Version: version, Commit: commit, Date: date},
		RateLimit:       rate.Limit(*rateLimitFlag),
		RateBurst:       *rateBurstFlag,
		AllowedOrigins:  *allowedOriginsFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	var col *collector.Collector
	if *collectorKeypairFlag != "" {
		col, err = newCollector(log, net.Bank(), *collectorKeypairFlag, *collectorRelayerFlag, *collectorIntervalFlag, *collectorWorkersFlag)
		if err != nil {
			return err
		}
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
	log.Info("relayd: starting", "version", version, "commit", commit, "store", *storeFlag, "collector", col != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if col != nil {
		g.Go(func() error {
			col.Run(gctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		sentry.CaptureException(err)
		return err
	}
	log.Info("relayd: stopped")
	return nil
}

func openStore(ctx context.Context, log *slog.Logger, kind string, pg store.PgConfig, migrate bool) (host.AccountStore, func(), error) {
	switch kind {
	case "memory":
		log.Warn("relayd: using in-memory account store, state is lost on exit")
		return host.NewMemoryStore(), func() {}, nil
	case "postgres":
		connStr := pg.ConnString()
		if migrate {
			if err := store.MigrateUp(log, connStr); err != nil {
				return nil, nil, err
			}
		}
		pool, err := store.NewPool(ctx, connStr)
		if err != nil {
			return nil, nil, err
		}
		accounts, err := store.NewPostgresStore(store.PostgresStoreConfig{Logger: log, Pool: pool})
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to create postgres store: %w", err)
		}
		log.Info("relayd: postgres account store ready", "host", pg.Host, "database", pg.Database)
		return accounts, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (want memory or postgres)", kind)
	}
}

func loadTreasury(log *slog.Logger, path string) (solana.PrivateKey, error) {
	if path == "" {
		log.Warn("relayd: no treasury keypair, generating an ephemeral one")
		return solana.NewWallet().PrivateKey, nil
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load treasury keypair: %w", err)
	}
	return key, nil
}

func newCollector(log *slog.Logger, ledger client.Ledger, keypair, relayer string, interval time.Duration, workers int) (*collector.Collector, error) {
	miner, err := solana.PrivateKeyFromSolanaKeygenFile(keypair)
	if err != nil {
		return nil, fmt.Errorf("failed to load collector keypair: %w", err)
	}
	if relayer == "" {
		return nil, errors.New("--collector-relayer is required with a collector keypair")
	}
	relayerKey, err := solana.PublicKeyFromBase58(relayer)
	if err != nil {
		return nil, fmt.Errorf("invalid --collector-relayer: %w", err)
	}
	c, err := client.New(client.Config{
		Logger:   log,
		Executor: ledger,
		Signer:   miner,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create collector client: %w", err)
	}
	col, err := collector.New(collector.Config{
		Logger:   log,
		Ledger:   ledger,
		Client:   c,
		Relayer:  relayerKey,
		Interval: interval,
		Workers:  workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create collector: %w", err)
	}
	return col, nil
}
