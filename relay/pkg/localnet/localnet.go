// Package localnet assembles a bank with every program the relay depends on
// and brings up the mining ledger's genesis state.
package localnet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	"github.com/malbeclabs/orerelay/ledger/pkg/mining"
	"github.com/malbeclabs/orerelay/ledger/pkg/token"
	"github.com/malbeclabs/orerelay/relay/pkg/program"
)

const (
	DefaultRewardRate = 100_000_000_000 // one reward unit per accrual
	DefaultFunding    = 10_000_000_000
)

type Config struct {
	Logger *slog.Logger
	Store  host.AccountStore
	Clock  clockwork.Clock

	// Genesis is the time of slot 0.
	Genesis time.Time

	// Treasury signs mining genesis and airdrops.
	Treasury solana.PrivateKey

	// RelayAdmin gates relayer registration; zero leaves it open.
	RelayAdmin solana.PublicKey

	RewardRate uint64
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("account store is required")
	}
	if len(cfg.Treasury) == 0 {
		return errors.New("treasury key is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.RewardRate == 0 {
		cfg.RewardRate = DefaultRewardRate
	}
	return nil
}

type Localnet struct {
	log      *slog.Logger
	bank     *host.Bank
	treasury solana.PrivateKey
}

// New builds the bank and initializes the mining ledger unless the store
// already holds it.
func New(ctx context.Context, cfg Config) (*Localnet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	relay, err := program.New(program.Config{Logger: cfg.Logger, Admin: cfg.RelayAdmin})
	if err != nil {
		return nil, fmt.Errorf("failed to create relay program: %w", err)
	}
	bank, err := host.NewBank(host.BankConfig{
		Logger:   cfg.Logger,
		Store:    cfg.Store,
		Clock:    cfg.Clock,
		Genesis:  cfg.Genesis,
		Programs: []host.Program{token.NewProgram(), mining.NewProgram(), relay},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bank: %w", err)
	}
	l := &Localnet{log: cfg.Logger, bank: bank, treasury: cfg.Treasury}

	treasury, err := bank.Account(ctx, mining.TreasuryAddress())
	if err != nil {
		return nil, fmt.Errorf("failed to load treasury: %w", err)
	}
	if !treasury.IsEmpty() {
		l.log.Info("localnet: mining ledger already initialized")
		return l, nil
	}
	if err := l.Fund(ctx, cfg.Treasury.PublicKey(), DefaultFunding); err != nil {
		return nil, err
	}
	if _, err := l.Send(ctx, []solana.PrivateKey{cfg.Treasury}, mining.Initialize(cfg.Treasury.PublicKey(), cfg.RewardRate)); err != nil {
		return nil, fmt.Errorf("failed to initialize mining ledger: %w", err)
	}
	l.log.Info("localnet: mining ledger initialized", "treasury", mining.TreasuryAddress(), "reward_rate", cfg.RewardRate)
	return l, nil
}

func (l *Localnet) Bank() *host.Bank { return l.bank }

// Send signs and executes one transaction.
func (l *Localnet) Send(ctx context.Context, signers []solana.PrivateKey, ixs ...host.Instruction) (*host.Receipt, error) {
	tx := host.NewTransaction(ixs...)
	tx.RecentSlot = l.bank.Slot()
	if err := tx.Sign(signers...); err != nil {
		return nil, err
	}
	return l.bank.Execute(ctx, tx)
}

// Fund tops a system account up by lamports.
func (l *Localnet) Fund(ctx context.Context, key solana.PublicKey, lamports uint64) error {
	acct, err := l.bank.Account(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", key, err)
	}
	if !acct.Owner.Equals(solana.SystemProgramID) {
		return fmt.Errorf("account %s is not a system account", key)
	}
	acct.Lamports += lamports
	if err := l.bank.SetAccount(ctx, key, acct); err != nil {
		return fmt.Errorf("failed to fund %s: %w", key, err)
	}
	return nil
}

// NewWallet returns a funded keypair.
func (l *Localnet) NewWallet(ctx context.Context) (solana.PrivateKey, error) {
	key := solana.NewWallet().PrivateKey
	if err := l.Fund(ctx, key.PublicKey(), DefaultFunding); err != nil {
		return nil, err
	}
	return key, nil
}

// NewTokenAccount creates a token account of mint held by owner, paid for by
// owner. A non-zero amount is airdropped, which requires the reward mint.
func (l *Localnet) NewTokenAccount(ctx context.Context, owner solana.PrivateKey, mint solana.PublicKey, amount uint64) (solana.PublicKey, error) {
	acct := solana.NewWallet().PrivateKey
	ixs := token.CreateAccount(owner.PublicKey(), acct.PublicKey(), mint, owner.PublicKey())
	signers := []solana.PrivateKey{owner, acct}
	if amount > 0 {
		if !mint.Equals(mining.MintAddress()) {
			return solana.PublicKey{}, errors.New("only reward tokens can be airdropped")
		}
		ixs = append(ixs, mining.Airdrop(l.treasury.PublicKey(), acct.PublicKey(), amount))
		signers = append(signers, l.treasury)
	}
	if _, err := l.Send(ctx, signers, ixs...); err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to create token account: %w", err)
	}
	return acct.PublicKey(), nil
}

// Airdrop mints amount reward units into an existing token account.
func (l *Localnet) Airdrop(ctx context.Context, destination solana.PublicKey, amount uint64) error {
	_, err := l.Send(ctx, []solana.PrivateKey{l.treasury}, mining.Airdrop(l.treasury.PublicKey(), destination, amount))
	return err
}

// Mine accrues one reward to the proof of authority, signed by its miner.
func (l *Localnet) Mine(ctx context.Context, miner solana.PrivateKey, authority solana.PublicKey, nonce uint64) error {
	_, err := l.Send(ctx, []solana.PrivateKey{miner}, mining.Mine(miner.PublicKey(), authority, nonce))
	return err
}

// Proof reads the mining proof of authority.
func (l *Localnet) Proof(ctx context.Context, authority solana.PublicKey) (*mining.Proof, error) {
	addr, _ := mining.ProofAddress(authority)
	acct, err := l.bank.Account(ctx, addr)
	if err != nil {
		return nil, err
	}
	return mining.UnmarshalProof(acct.Data)
}

// TokenBalance reads the amount held by a token account.
func (l *Localnet) TokenBalance(ctx context.Context, key solana.PublicKey) (uint64, error) {
	acct, err := l.bank.Account(ctx, key)
	if err != nil {
		return 0, err
	}
	tok, err := token.UnmarshalAccount(acct.Data)
	if err != nil {
		return 0, err
	}
	return tok.Amount, nil
}

// Supply reads the supply of a mint.
func (l *Localnet) Supply(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	acct, err := l.bank.Account(ctx, mint)
	if err != nil {
		return 0, err
	}
	m, err := token.UnmarshalMint(acct.Data)
	if err != nil {
		return 0, err
	}
	return m.Supply, nil
}
