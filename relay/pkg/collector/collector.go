package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/orerelay/ledger/pkg/mining"
	relayapi "github.com/malbeclabs/orerelay/relay/pkg/api"
	"github.com/malbeclabs/orerelay/relay/pkg/client"
	"github.com/malbeclabs/orerelay/relay/pkg/metrics"
	relaystate "github.com/malbeclabs/orerelay/relay/pkg/state"
)

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Ledger client.Ledger
	// Client submits as the relayer's miner.
	Client   *client.Client
	Relayer  solana.PublicKey
	Interval time.Duration
	Workers  int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger is required")
	}
	if cfg.Client == nil {
		return errors.New("client is required")
	}
	if cfg.Relayer.IsZero() {
		return errors.New("relayer is required")
	}
	if cfg.Interval <= 0 {
		return errors.New("interval must be greater than 0")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Collector periodically collects commission from every escrow bound to a
// relayer whose proof has accrued since the last collection.
type Collector struct {
	log    *slog.Logger
	cfg    Config
	pool   pond.Pool
	scanMu sync.Mutex
}

// ScanResult counts the outcome of one scan.
type ScanResult struct {
	Escrows   int
	Collected int
	// Skipped collections advanced the watermark without paying because the
	// proof held less than the commission.
	Skipped          int
	AlreadyCollected int
	Failed           int
}

func New(cfg Config) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Collector{
		log:  cfg.Logger,
		cfg:  cfg,
		pool: pond.NewPool(cfg.Workers),
	}, nil
}

// Run scans once immediately and then on every interval until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	defer c.pool.StopAndWait()
	c.log.Info("collector: starting scan loop", "relayer", c.cfg.Relayer, "interval", c.cfg.Interval, "workers", c.cfg.Workers)

	c.safeScan(ctx)

	ticker := c.cfg.Clock.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.safeScan(ctx)
		}
	}
}

func (c *Collector) safeScan(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("collector: scan panicked", "panic", r)
		}
	}()

	if _, err := c.Scan(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.log.Error("collector: scan failed", "error", err)
	}
}

// Scan submits one collect per escrow whose watermark trails its proof.
func (c *Collector) Scan(ctx context.Context) (ScanResult, error) {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()

	start := c.cfg.Clock.Now()
	defer func() {
		metrics.CollectorScanDuration.Observe(c.cfg.Clock.Since(start).Seconds())
	}()

	relayer, err := c.relayer(ctx)
	if err != nil {
		return ScanResult{}, err
	}
	if relayer.IsPooled() {
		return ScanResult{}, fmt.Errorf("relayer %s is a pool and takes no commission", c.cfg.Relayer)
	}
	if !relayer.Miner.Equals(c.cfg.Client.Signer()) {
		return ScanResult{}, fmt.Errorf("client signer %s is not the relayer miner %s", c.cfg.Client.Signer(), relayer.Miner)
	}

	escrows, err := c.escrows(ctx)
	if err != nil {
		return ScanResult{}, err
	}
	metrics.CollectorEscrows.Set(float64(len(escrows)))

	var collected, skipped, already, failed atomic.Int64
	group := c.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, escrow := range escrows {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			switch outcome := c.collect(groupCtx, escrow, relayer.Beneficiary); outcome {
			case metrics.OutcomeCollected:
				collected.Add(1)
			case metrics.OutcomeSkipped:
				skipped.Add(1)
			case metrics.OutcomeAlreadyCollected:
				already.Add(1)
			case metrics.OutcomeFailed:
				failed.Add(1)
			}
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, pond.ErrGroupStopped) {
		return ScanResult{}, fmt.Errorf("failed to wait for collections: %w", err)
	}

	result := ScanResult{
		Escrows:          len(escrows),
		Collected:        int(collected.Load()),
		Skipped:          int(skipped.Load()),
		AlreadyCollected: int(already.Load()),
		Failed:           int(failed.Load()),
	}
	c.log.Debug("collector: scan completed", "escrows", result.Escrows, "collected", result.Collected, "skipped", result.Skipped, "already_collected", result.AlreadyCollected, "failed", result.Failed)
	return result, ctx.Err()
}

func (c *Collector) relayer(ctx context.Context) (*relaystate.Relayer, error) {
	acct, err := c.cfg.Ledger.Account(ctx, c.cfg.Relayer)
	if err != nil {
		return nil, fmt.Errorf("failed to load relayer: %w", err)
	}
	if !acct.Owner.Equals(relayapi.ProgramID) {
		return nil, fmt.Errorf("relayer %s is not a relay account", c.cfg.Relayer)
	}
	relayer, err := relaystate.UnmarshalRelayer(acct.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode relayer: %w", err)
	}
	return relayer, nil
}

// escrows lists the relayer's escrows whose proof moved since the last
// collection.
func (c *Collector) escrows(ctx context.Context) ([]solana.PublicKey, error) {
	accounts, err := c.cfg.Ledger.AccountsByOwner(ctx, relayapi.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("failed to list relay accounts: %w", err)
	}

	var out []solana.PublicKey
	for _, ka := range accounts {
		if d, ok := relaystate.Peek(ka.Account.Data); !ok || d != relaystate.DiscriminatorEscrow {
			continue
		}
		escrow, err := relaystate.UnmarshalEscrow(ka.Account.Data)
		if err != nil {
			c.log.Warn("collector: skipping undecodable escrow", "escrow", ka.Key, "error", err)
			continue
		}
		if !escrow.Relayer.Equals(c.cfg.Relayer) {
			continue
		}

		proofKey, _ := mining.ProofAddress(ka.Key)
		acct, err := c.cfg.Ledger.Account(ctx, proofKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load proof %s: %w", proofKey, err)
		}
		proof, err := mining.UnmarshalProof(acct.Data)
		if err != nil {
			c.log.Warn("collector: skipping escrow without proof", "escrow", ka.Key, "error", err)
			continue
		}
		if proof.LastHash == escrow.LastHash {
			continue
		}
		out = append(out, ka.Key)
	}
	return out, nil
}

func (c *Collector) collect(ctx context.Context, escrow, beneficiary solana.PublicKey) string {
	receipt, err := c.cfg.Client.Collect(ctx, c.cfg.Relayer, escrow, beneficiary)
	switch {
	case err == nil && relayapi.CollectSkipped(receipt.Logs):
		c.log.Debug("collector: commission skipped", "escrow", escrow)
		metrics.CollectorCollectionsTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return metrics.OutcomeSkipped
	case err == nil:
		metrics.CollectorCollectionsTotal.WithLabelValues(metrics.OutcomeCollected).Inc()
		return metrics.OutcomeCollected
	case errors.Is(err, relayapi.ErrAlreadyCollected):
		metrics.CollectorCollectionsTotal.WithLabelValues(metrics.OutcomeAlreadyCollected).Inc()
		return metrics.OutcomeAlreadyCollected
	case errors.Is(err, context.Canceled):
		return ""
	default:
		c.log.Warn("collector: collect failed", "escrow", escrow, "class", relayapi.Classify(err), "error", err)
		metrics.CollectorCollectionsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		return metrics.OutcomeFailed
	}
}
