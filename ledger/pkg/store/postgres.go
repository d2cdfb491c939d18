package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orerelay_store_queries_total",
			Help: "Total number of account store queries",
		},
		[]string{"operation", "status"},
	)

	metricQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orerelay_store_query_duration_seconds",
			Help:    "Duration of account store queries",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"operation"},
	)
)

type PostgresStoreConfig struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func (cfg *PostgresStoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("postgres pool is required")
	}
	return nil
}

// PostgresStore keeps host accounts in the accounts table. Lamports are stored
// as the two's-complement bit pattern of the uint64 value.
type PostgresStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

var _ host.AccountStore = (*PostgresStore)(nil)

func NewPostgresStore(cfg PostgresStoreConfig) (*PostgresStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PostgresStore{log: cfg.Logger, pool: cfg.Pool}, nil
}

// NewPool opens a connection pool and checks connectivity.
func NewPool(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

func observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metricQueriesTotal.WithLabelValues(operation, status).Inc()
	metricQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (s *PostgresStore) Load(ctx context.Context, keys []solana.PublicKey) (_ map[solana.PublicKey]*host.Account, err error) {
	start := time.Now()
	defer func() { observe("load", start, err) }()

	raw := make([][]byte, len(keys))
	for i, key := range keys {
		raw[i] = key.Bytes()
	}
	rows, err := s.pool.Query(ctx,
		`SELECT pubkey, owner, lamports, executable, data FROM accounts WHERE pubkey = ANY($1)`, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	keyed, err := scanAccounts(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[solana.PublicKey]*host.Account, len(keyed))
	for _, ka := range keyed {
		out[ka.Key] = ka.Account
	}
	return out, nil
}

func (s *PostgresStore) Commit(ctx context.Context, accounts map[solana.PublicKey]*host.Account) (err error) {
	start := time.Now()
	defer func() { observe("commit", start, err) }()

	batch := &pgx.Batch{}
	for key, acct := range accounts {
		if acct.IsEmpty() {
			batch.Queue(`DELETE FROM accounts WHERE pubkey = $1`, key.Bytes())
			continue
		}
		data := acct.Data
		if data == nil {
			data = []byte{}
		}
		batch.Queue(`
			INSERT INTO accounts (pubkey, owner, lamports, executable, data, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (pubkey) DO UPDATE SET
				owner = EXCLUDED.owner,
				lamports = EXCLUDED.lamports,
				executable = EXCLUDED.executable,
				data = EXCLUDED.data,
				updated_at = EXCLUDED.updated_at`,
			key.Bytes(), acct.Owner.Bytes(), int64(acct.Lamports), acct.Executable, data)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		s.log.Error("store: commit failed", "accounts", len(accounts), "error", err)
		return fmt.Errorf("failed to commit accounts: %w", err)
	}
	return nil
}

func (s *PostgresStore) AccountsByOwner(ctx context.Context, owner solana.PublicKey) (_ []host.KeyedAccount, err error) {
	start := time.Now()
	defer func() { observe("accounts_by_owner", start, err) }()

	rows, err := s.pool.Query(ctx,
		`SELECT pubkey, owner, lamports, executable, data FROM accounts WHERE owner = $1 ORDER BY pubkey`, owner.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts by owner: %w", err)
	}
	return scanAccounts(rows)
}

func scanAccounts(rows pgx.Rows) ([]host.KeyedAccount, error) {
	defer rows.Close()

	var out []host.KeyedAccount
	for rows.Next() {
		var (
			pubkey, owner, data []byte
			lamports            int64
			executable          bool
		)
		if err := rows.Scan(&pubkey, &owner, &lamports, &executable, &data); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		if len(data) == 0 {
			data = nil
		}
		out = append(out, host.KeyedAccount{
			Key: solana.PublicKeyFromBytes(pubkey),
			Account: &host.Account{
				Owner:      solana.PublicKeyFromBytes(owner),
				Lamports:   uint64(lamports),
				Executable: executable,
				Data:       data,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read accounts: %w", err)
	}
	return out, nil
}
