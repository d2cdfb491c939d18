package relaytesting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/malbeclabs/orerelay/utils/pkg/retry"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

const postgresImage = "postgres:16-alpine"

// Postgres is a throwaway database container shared by a package's tests.
type Postgres struct {
	log       *slog.Logger
	container *tcpostgres.PostgresContainer
	ConnStr   string
}

// StartPostgres runs a postgres container. Docker start flakes are retried.
func StartPostgres(ctx context.Context, log *slog.Logger) (*Postgres, error) {
	var container *tcpostgres.PostgresContainer
	cfg := retry.Config{MaxAttempts: 3, BaseBackoff: time.Second, MaxBackoff: 3 * time.Second, Retryable: containerStartFlake}
	err := retry.Do(ctx, cfg, func() error {
		var err error
		container, err = tcpostgres.Run(ctx, postgresImage,
			tcpostgres.WithDatabase("relay"),
			tcpostgres.WithUsername("relay"),
			tcpostgres.WithPassword("relay"),
			tcpostgres.BasicWaitStrategies(),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get postgres connection string: %w", err)
	}
	return &Postgres{log: log, container: container, ConnStr: connStr}, nil
}

func (p *Postgres) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.container.Terminate(ctx); err != nil {
		p.log.Error("testing: failed to terminate postgres container", "error", err)
	}
}

// Pool opens a pgx pool closed at test cleanup.
func (p *Postgres) Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pool, err := pgxpool.New(t.Context(), p.ConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func containerStartFlake(err error) bool {
	msg := err.Error()
	return retry.IsRetryable(err) || strings.Contains(msg, "wait until ready") || strings.Contains(msg, "mapped port")
}
