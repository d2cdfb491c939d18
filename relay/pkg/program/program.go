// Package program is the relay program. It keeps escrows and pooled delegates
// in step with their mining ledger proofs: each instruction validates its
// accounts and writes its records before making its one mining ledger call.
package program

import (
	"errors"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	"github.com/malbeclabs/orerelay/ledger/pkg/mining"
	"github.com/malbeclabs/orerelay/ledger/pkg/token"
	relayapi "github.com/malbeclabs/orerelay/relay/pkg/api"
	"github.com/malbeclabs/orerelay/relay/pkg/loaders"
	"github.com/malbeclabs/orerelay/relay/pkg/metrics"
)

type Config struct {
	Logger *slog.Logger

	// Admin must co-sign OpenRelayer and OpenPool. The zero key leaves
	// registration open to anyone.
	Admin solana.PublicKey
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Program is the relay program: custodial escrows mined by a relayer for a
// commission, and pools that issue proportional shares over one mining position.
type Program struct {
	log   *slog.Logger
	admin solana.PublicKey
}

var _ host.Program = (*Program)(nil)

func New(cfg Config) (*Program, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Program{log: cfg.Logger, admin: cfg.Admin}, nil
}

func (p *Program) ID() solana.PublicKey { return relayapi.ProgramID }

type handler func(ictx *host.InvokeContext, accounts []*host.AccountInfo, args []byte) error

func (p *Program) handler(op relayapi.Opcode) handler {
	switch op {
	case relayapi.OpClaim:
		return p.claim
	case relayapi.OpCloseEscrow:
		return p.closeEscrow
	case relayapi.OpOpenEscrow:
		return p.openEscrow
	case relayapi.OpStake:
		return p.stake
	case relayapi.OpOpenDelegate:
		return p.openDelegate
	case relayapi.OpDeposit:
		return p.deposit
	case relayapi.OpWithdraw:
		return p.withdraw
	case relayapi.OpCloseDelegate:
		return p.closeDelegate
	case relayapi.OpOpenRelayer:
		return p.openRelayer
	case relayapi.OpCollect:
		return p.collect
	case relayapi.OpUpdateMiner:
		return p.updateMiner
	case relayapi.OpUpdateRelayer:
		return p.updateRelayer
	case relayapi.OpOpenPool:
		return p.openPool
	default:
		return nil
	}
}

func (p *Program) Process(ictx *host.InvokeContext, accounts []*host.AccountInfo, data []byte) error {
	if len(data) == 0 {
		return host.InvalidInstructionData
	}
	op := relayapi.Opcode(data[0])
	h := p.handler(op)
	if h == nil {
		ictx.Logf("relay: unknown opcode %d", data[0])
		metrics.InstructionsTotal.WithLabelValues("unknown", "failed").Inc()
		return host.InvalidInstructionData
	}

	err := h(ictx, accounts, data[1:])
	if err != nil {
		p.log.Debug("relay: instruction failed", "opcode", op, "class", relayapi.Classify(err), "error", err)
		metrics.InstructionsTotal.WithLabelValues(op.String(), "failed").Inc()
		return err
	}
	metrics.InstructionsTotal.WithLabelValues(op.String(), "success").Inc()
	return nil
}

func need(accounts []*host.AccountInfo, n int) error {
	if len(accounts) < n {
		return host.NotEnoughAccountKeys
	}
	return nil
}

// requirePrograms checks that ais are the given programs, in order.
func requirePrograms(ais []*host.AccountInfo, ids ...solana.PublicKey) error {
	for i, id := range ids {
		if err := loaders.LoadProgram(ais[i], id); err != nil {
			return err
		}
	}
	return nil
}

// checkAdmin requires the configured administrator to sign at accounts[i].
func (p *Program) checkAdmin(accounts []*host.AccountInfo, i int) error {
	if p.admin.IsZero() {
		return nil
	}
	if err := need(accounts, i+1); err != nil {
		return err
	}
	admin := accounts[i]
	if !admin.Key.Equals(p.admin) {
		return relayapi.ErrNotAuthorized
	}
	return loaders.LoadSigner(admin)
}

// create allocates a relay-derived account of space bytes owned by owner,
// paid for by payer.
func create(ictx *host.InvokeContext, accounts []*host.AccountInfo, payer, target *host.AccountInfo, space int, owner solana.PublicKey, signer [][]byte) error {
	ix := host.CreateAccount(payer.Key, target.Key, host.RentExemptMinimum(space), uint64(space), owner)
	return ictx.Invoke(ix, accounts, signer)
}

// closeRecord zeroes a relay account and hands its lamports to destination.
func closeRecord(ai, destination *host.AccountInfo) error {
	if err := ai.Realloc(0); err != nil {
		return err
	}
	if err := host.TransferLamports(ai, destination, ai.Lamports()); err != nil {
		return err
	}
	return ai.Assign(solana.SystemProgramID)
}

func rewardMint(ai *host.AccountInfo) error {
	if !ai.Key.Equals(mining.MintAddress()) {
		return relayapi.ErrInvalidDerivation
	}
	return nil
}

var (
	systemID = solana.SystemProgramID
	tokenID  = token.ProgramID
	miningID = mining.ProgramID
)
