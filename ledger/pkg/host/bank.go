package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v4"
)

// NativeLoaderID owns the synthetic accounts of registered programs.
var NativeLoaderID = solana.MustPublicKeyFromBase58("NativeLoader1111111111111111111111111111111")

const (
	DefaultSlotDuration = 400 * time.Millisecond

	// DefaultMaxTransactionAge is how many slots a signed transaction stays
	// acceptable after its recent slot.
	DefaultMaxTransactionAge = 150
)

type BankConfig struct {
	Logger            *slog.Logger
	Store             AccountStore
	Clock             clockwork.Clock
	Genesis           time.Time
	SlotDuration      time.Duration
	MaxTransactionAge uint64
	Programs          []Program
}

func (cfg *BankConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("account store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Genesis.IsZero() {
		cfg.Genesis = cfg.Clock.Now()
	}
	if cfg.SlotDuration <= 0 {
		cfg.SlotDuration = DefaultSlotDuration
	}
	if cfg.MaxTransactionAge == 0 {
		cfg.MaxTransactionAge = DefaultMaxTransactionAge
	}
	return nil
}

// Receipt describes a committed transaction.
type Receipt struct {
	ID   uuid.UUID
	Slot uint64
	Logs []string
}

// Bank executes transactions against an account store. Transactions whose
// declared account sets overlap on a writable account are serialized; every
// transaction commits all of its writes or none of them.
type Bank struct {
	log      *slog.Logger
	cfg      BankConfig
	store    AccountStore
	programs map[solana.PublicKey]Program
	locks    *lockTable

	// processed maps the first signature of every recent transaction that
	// committed or is executing to its recent slot.
	processed *xsync.Map[solana.Signature, uint64]
	prunedAt  atomic.Uint64
}

func NewBank(cfg BankConfig) (*Bank, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Bank{
		log:      cfg.Logger,
		cfg:      cfg,
		store:    cfg.Store,
		programs:  make(map[solana.PublicKey]Program),
		locks:     newLockTable(),
		processed: xsync.NewMap[solana.Signature, uint64](),
	}
	b.programs[solana.SystemProgramID] = NewSystemProgram()
	for _, p := range cfg.Programs {
		if _, ok := b.programs[p.ID()]; ok {
			return nil, fmt.Errorf("program %s registered twice", p.ID())
		}
		b.programs[p.ID()] = p
	}
	return b, nil
}

// Slot is the current slot according to the bank clock.
func (b *Bank) Slot() uint64 {
	elapsed := b.cfg.Clock.Since(b.cfg.Genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / b.cfg.SlotDuration)
}

// RecentSlot is the slot a new transaction should carry.
func (b *Bank) RecentSlot(context.Context) (uint64, error) {
	return b.Slot(), nil
}

func (b *Bank) expired(recent, slot uint64) bool {
	return recent > slot || slot-recent > b.cfg.MaxTransactionAge
}

// prune forgets signatures whose transactions can no longer be accepted. It
// runs at most once per MaxTransactionAge slots.
func (b *Bank) prune(slot uint64) {
	last := b.prunedAt.Load()
	if slot < last+b.cfg.MaxTransactionAge || !b.prunedAt.CompareAndSwap(last, slot) {
		return
	}
	b.processed.Range(func(sig solana.Signature, recent uint64) bool {
		if b.expired(recent, slot) {
			b.processed.Delete(sig)
		}
		return true
	})
}

func (b *Bank) isProgram(key solana.PublicKey) bool {
	_, ok := b.programs[key]
	return ok
}

// Account returns the committed state of key. Unknown keys return an empty
// system-owned account.
func (b *Bank) Account(ctx context.Context, key solana.PublicKey) (*Account, error) {
	if b.isProgram(key) {
		return &Account{Owner: NativeLoaderID, Executable: true}, nil
	}
	loaded, err := b.store.Load(ctx, []solana.PublicKey{key})
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", key, err)
	}
	if acct, ok := loaded[key]; ok {
		return acct, nil
	}
	return NewEmptyAccount(), nil
}

// AccountsByOwner lists committed accounts owned by the given program.
func (b *Bank) AccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]KeyedAccount, error) {
	accounts, err := b.store.AccountsByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts owned by %s: %w", owner, err)
	}
	return accounts, nil
}

// SetAccount writes an account outside of any transaction. It is used for
// genesis state and funding.
func (b *Bank) SetAccount(ctx context.Context, key solana.PublicKey, acct *Account) error {
	if b.isProgram(key) {
		return fmt.Errorf("cannot overwrite program account %s", key)
	}
	unlock := b.locks.acquire([]solana.PublicKey{key}, map[solana.PublicKey]bool{key: true})
	defer unlock()
	if err := b.store.Commit(ctx, map[solana.PublicKey]*Account{key: acct.Clone()}); err != nil {
		return fmt.Errorf("failed to set account %s: %w", key, err)
	}
	return nil
}

// Execute runs a signed transaction. Program failures are returned as
// *TransactionError and leave no state behind; other errors come from the store.
// A transaction outside the recent slot window is rejected with
// TransactionExpired, and one whose signature already committed with
// AlreadyProcessed.
func (b *Bank) Execute(ctx context.Context, tx *Transaction) (*Receipt, error) {
	start := b.cfg.Clock.Now()
	defer func() {
		metricTransactionDuration.Observe(b.cfg.Clock.Since(start).Seconds())
	}()

	if len(tx.Instructions) == 0 {
		metricTransactionsTotal.WithLabelValues(statusRejected).Inc()
		return nil, &TransactionError{Index: -1, Err: InvalidArgument}
	}
	if err := tx.Verify(); err != nil {
		metricTransactionsTotal.WithLabelValues(statusRejected).Inc()
		return nil, &TransactionError{Index: -1, Err: err}
	}

	slot := b.Slot()
	b.prune(slot)
	if b.expired(tx.RecentSlot, slot) {
		metricTransactionsTotal.WithLabelValues(statusRejected).Inc()
		return nil, &TransactionError{Index: -1, Err: TransactionExpired}
	}
	sig := tx.Signatures[0]
	if _, dup := b.processed.LoadOrStore(sig, tx.RecentSlot); dup {
		metricTransactionsTotal.WithLabelValues(statusRejected).Inc()
		b.log.Debug("ledger: duplicate transaction", "signature", sig)
		return nil, &TransactionError{Index: -1, Err: AlreadyProcessed}
	}
	committed := false
	defer func() {
		if !committed {
			b.processed.Delete(sig)
		}
	}()

	keys, writable := tx.accountKeys()
	unlock := b.locks.acquire(keys, writable)
	defer unlock()

	loaded, err := b.store.Load(ctx, keys)
	if err != nil {
		metricTransactionsTotal.WithLabelValues(statusError).Inc()
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	working := make(map[solana.PublicKey]*Account, len(keys))
	original := make(map[solana.PublicKey]*Account, len(keys))
	for _, key := range keys {
		acct, ok := loaded[key]
		switch {
		case b.isProgram(key):
			acct = &Account{Owner: NativeLoaderID, Executable: true}
		case !ok:
			acct = NewEmptyAccount()
		}
		working[key] = acct
		original[key] = acct.Clone()
	}

	logs := make([]string, 0, 8)
	for i, ix := range tx.Instructions {
		program, ok := b.programs[ix.ProgramID]
		if !ok {
			metricTransactionsTotal.WithLabelValues(statusFailed).Inc()
			return nil, &TransactionError{Index: i, ProgramID: ix.ProgramID, Err: UnknownProgram, Logs: logs}
		}
		infos := make([]*AccountInfo, 0, len(ix.Accounts))
		for _, meta := range ix.Accounts {
			infos = append(infos, &AccountInfo{
				Key:        meta.PublicKey,
				IsSigner:   meta.IsSigner,
				IsWritable: meta.IsWritable && !b.isProgram(meta.PublicKey),
				program:    ix.ProgramID,
				acct:       working[meta.PublicKey],
			})
		}
		ictx := &InvokeContext{
			ctx:       ctx,
			bank:      b,
			programID: ix.ProgramID,
			slot:      slot,
			depth:     1,
			logs:      &logs,
		}
		if err := ictx.process(program, infos, ix.Data); err != nil {
			metricInstructionsTotal.WithLabelValues(ix.ProgramID.String(), statusFailed).Inc()
			metricTransactionsTotal.WithLabelValues(statusFailed).Inc()
			b.log.Debug("ledger: transaction failed", "instruction", i, "program", ix.ProgramID, "error", err)
			return nil, &TransactionError{Index: i, ProgramID: ix.ProgramID, Err: err, Logs: logs}
		}
		metricInstructionsTotal.WithLabelValues(ix.ProgramID.String(), statusSuccess).Inc()
	}

	changed := make(map[solana.PublicKey]*Account)
	for _, key := range keys {
		if !writable[key] || b.isProgram(key) {
			continue
		}
		if !working[key].Equal(original[key]) {
			changed[key] = working[key]
		}
	}
	if len(changed) > 0 {
		if err := b.store.Commit(ctx, changed); err != nil {
			metricTransactionsTotal.WithLabelValues(statusError).Inc()
			return nil, fmt.Errorf("failed to commit accounts: %w", err)
		}
	}

	committed = true
	metricTransactionsTotal.WithLabelValues(statusSuccess).Inc()
	return &Receipt{ID: uuid.New(), Slot: slot, Logs: logs}, nil
}
