// Package client builds, signs and submits relay transactions.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	relayapi "github.com/malbeclabs/orerelay/relay/pkg/api"
	"github.com/malbeclabs/orerelay/utils/pkg/retry"
)

// Executor runs a signed transaction. RecentSlot is the slot new
// transactions are signed against.
type Executor interface {
	RecentSlot(ctx context.Context) (uint64, error)
	Execute(ctx context.Context, tx *host.Transaction) (*host.Receipt, error)
}

// Ledger is an executor that can also read committed accounts.
type Ledger interface {
	Executor
	Account(ctx context.Context, key solana.PublicKey) (*host.Account, error)
	AccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]host.KeyedAccount, error)
}

var _ Ledger = (*host.Bank)(nil)

type Config struct {
	Logger   *slog.Logger
	Executor Executor

	// Signer signs every transaction the client sends and is the authority
	// of the typed operations.
	Signer solana.PrivateKey

	Retry retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Executor == nil {
		return errors.New("executor is required")
	}
	if len(cfg.Signer) == 0 {
		return errors.New("signer is required")
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

type Client struct {
	log    *slog.Logger
	exec   Executor
	signer solana.PrivateKey
	retry  retry.Config
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rc := cfg.Retry
	rc.Retryable = transient
	return &Client{log: cfg.Logger, exec: cfg.Executor, signer: cfg.Signer, retry: rc}, nil
}

// transient reports whether a failed submission is worth sending again. A
// transaction that ran and aborted never is.
func transient(err error) bool {
	var txErr *host.TransactionError
	if errors.As(err, &txErr) {
		return false
	}
	var sf *SubmitFailure
	if errors.As(err, &sf) {
		switch sf.Status {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return retry.IsRetryable(err)
}

func (c *Client) Signer() solana.PublicKey { return c.signer.PublicKey() }

// Send signs ixs with the client signer and any extra keys, then submits them
// as one transaction. Retries resubmit the same signed transaction, so the
// ledger runs it at most once; a retry after a lost response that did commit
// fails with host.AlreadyProcessed.
func (c *Client) Send(ctx context.Context, extra []solana.PrivateKey, ixs ...host.Instruction) (*host.Receipt, error) {
	tx := host.NewTransaction(ixs...)
	err := retry.Do(ctx, c.retry, func() error {
		var err error
		tx.RecentSlot, err = c.exec.RecentSlot(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get recent slot: %w", err)
	}
	signers := append([]solana.PrivateKey{c.signer}, extra...)
	if err := tx.Sign(signers...); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	var receipt *host.Receipt
	err = retry.Do(ctx, c.retry, func() error {
		var err error
		receipt, err = c.exec.Execute(ctx, tx)
		if err != nil && transient(err) {
			c.log.Warn("client: submission failed, retrying", "error", err)
		}
		return err
	})
	if err != nil {
		c.log.Debug("client: transaction failed", "instructions", len(ixs), "class", relayapi.Classify(err), "error", err)
		return nil, err
	}
	return receipt, nil
}

func (c *Client) send(ctx context.Context, ixs ...host.Instruction) (*host.Receipt, error) {
	return c.Send(ctx, nil, ixs...)
}

// OpenRelayer registers the signer as a relayer. admin co-signs when the
// program requires it; pass nil otherwise.
func (c *Client) OpenRelayer(ctx context.Context, admin solana.PrivateKey, params relayapi.RelayerParams) (*host.Receipt, error) {
	ix, err := relayapi.OpenRelayer(c.Signer(), publicKey(admin), params)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, keys(admin), ix)
}

// OpenPool registers the signer as a pool operator.
func (c *Client) OpenPool(ctx context.Context, admin solana.PrivateKey, params relayapi.RelayerParams) (*host.Receipt, error) {
	ix, err := relayapi.OpenPool(c.Signer(), publicKey(admin), params)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, keys(admin), ix)
}

func (c *Client) UpdateRelayer(ctx context.Context, pooled bool, args relayapi.UpdateRelayerArgs) (*host.Receipt, error) {
	return c.send(ctx, relayapi.UpdateRelayer(c.Signer(), pooled, args))
}

func (c *Client) OpenEscrow(ctx context.Context, relayer, miner solana.PublicKey) (*host.Receipt, error) {
	return c.send(ctx, relayapi.OpenEscrow(c.Signer(), relayer, miner))
}

func (c *Client) Stake(ctx context.Context, relayer, sender solana.PublicKey, amount uint64) (*host.Receipt, error) {
	return c.send(ctx, relayapi.Stake(c.Signer(), relayer, sender, amount))
}

func (c *Client) Claim(ctx context.Context, relayer, beneficiary solana.PublicKey, amount uint64) (*host.Receipt, error) {
	return c.send(ctx, relayapi.Claim(c.Signer(), relayer, beneficiary, amount))
}

func (c *Client) CloseEscrow(ctx context.Context, relayer solana.PublicKey) (*host.Receipt, error) {
	return c.send(ctx, relayapi.CloseEscrow(c.Signer(), relayer))
}

// Collect takes the relayer's commission from escrow. The signer must be the
// relayer's miner.
func (c *Client) Collect(ctx context.Context, relayer, escrow, beneficiary solana.PublicKey) (*host.Receipt, error) {
	return c.send(ctx, relayapi.Collect(c.Signer(), relayer, escrow, beneficiary))
}

func (c *Client) UpdateMiner(ctx context.Context, escrow, miner, relayer solana.PublicKey) (*host.Receipt, error) {
	return c.send(ctx, relayapi.UpdateMiner(c.Signer(), escrow, miner, relayer))
}

func (c *Client) OpenDelegate(ctx context.Context, pool solana.PublicKey) (*host.Receipt, error) {
	return c.send(ctx, relayapi.OpenDelegate(c.Signer(), pool))
}

func (c *Client) Deposit(ctx context.Context, pool, sender, shares solana.PublicKey, amount uint64) (*host.Receipt, error) {
	return c.send(ctx, relayapi.Deposit(c.Signer(), pool, sender, shares, amount))
}

func (c *Client) Withdraw(ctx context.Context, pool, beneficiary, shares solana.PublicKey, amount uint64) (*host.Receipt, error) {
	return c.send(ctx, relayapi.Withdraw(c.Signer(), pool, beneficiary, shares, amount))
}

func (c *Client) CloseDelegate(ctx context.Context, pool solana.PublicKey) (*host.Receipt, error) {
	return c.send(ctx, relayapi.CloseDelegate(c.Signer(), pool))
}

func publicKey(key solana.PrivateKey) solana.PublicKey {
	if len(key) == 0 {
		return solana.PublicKey{}
	}
	return key.PublicKey()
}

func keys(key solana.PrivateKey) []solana.PrivateKey {
	if len(key) == 0 {
		return nil
	}
	return []solana.PrivateKey{key}
}
