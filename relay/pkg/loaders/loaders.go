// Package loaders validates the accounts an instruction presents before any of
// them is read or written. Checks run in a fixed order so every failure maps to
// one error: owner, initialization, shape, binding, then writability.
package loaders

import (
	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	"github.com/malbeclabs/orerelay/ledger/pkg/mining"
	"github.com/malbeclabs/orerelay/ledger/pkg/token"
	relayapi "github.com/malbeclabs/orerelay/relay/pkg/api"
	relaystate "github.com/malbeclabs/orerelay/relay/pkg/state"
)

// LoadSigner checks that ai signed the transaction.
func LoadSigner(ai *host.AccountInfo) error {
	if !ai.IsSigner {
		return relayapi.ErrMissingSignature
	}
	return nil
}

// LoadWritable checks that ai was passed writable.
func LoadWritable(ai *host.AccountInfo) error {
	if !ai.IsWritable {
		return relayapi.ErrNotWritable
	}
	return nil
}

// LoadProgram checks that ai is the given program.
func LoadProgram(ai *host.AccountInfo, id solana.PublicKey) error {
	if !ai.Key.Equals(id) {
		return relayapi.ErrInvalidProgram
	}
	return nil
}

// LoadUninitializedPDA checks that ai is the relay-derived address of seeds and
// bump, that nothing has been allocated there yet, and that it is writable.
func LoadUninitializedPDA(ai *host.AccountInfo, seeds [][]byte, bump uint8) error {
	addr, err := solana.CreateProgramAddress(relayapi.WithBump(seeds, bump), relayapi.ProgramID)
	if err != nil || !addr.Equals(ai.Key) {
		return relayapi.ErrInvalidDerivation
	}
	if !ai.DataIsEmpty() || !ai.IsOwnedBy(solana.SystemProgramID) {
		return relayapi.ErrAlreadyInitialized
	}
	return LoadWritable(ai)
}

// LoadDerived checks that ai is the canonical relay-derived address of seeds and
// returns its bump.
func LoadDerived(ai *host.AccountInfo, seeds [][]byte) (uint8, error) {
	addr, bump := relayapi.Derive(seeds)
	if !addr.Equals(ai.Key) {
		return 0, relayapi.ErrInvalidDerivation
	}
	return bump, nil
}

func loadRecord(ai *host.AccountInfo, owner solana.PublicKey, d relaystate.Discriminator) ([]byte, error) {
	if !ai.IsOwnedBy(owner) {
		return nil, relayapi.ErrOwnerMismatch
	}
	if ai.DataIsEmpty() {
		return nil, relayapi.ErrUninitialized
	}
	data := ai.Data()
	if got, ok := relaystate.Peek(data); !ok || got != d || len(data) != relaystate.Size(d) {
		return nil, relayapi.ErrShapeMismatch
	}
	return data, nil
}

func finish(ai *host.AccountInfo, writable bool) error {
	if writable {
		return LoadWritable(ai)
	}
	return nil
}

// LoadAnyEscrow loads an escrow without checking who it belongs to.
func LoadAnyEscrow(ai *host.AccountInfo, writable bool) (*relaystate.Escrow, error) {
	data, err := loadRecord(ai, relayapi.ProgramID, relaystate.DiscriminatorEscrow)
	if err != nil {
		return nil, err
	}
	escrow, err := relaystate.UnmarshalEscrow(data)
	if err != nil {
		return nil, relayapi.ErrShapeMismatch
	}
	return escrow, finish(ai, writable)
}

// LoadEscrow loads the escrow of authority.
func LoadEscrow(ai *host.AccountInfo, authority solana.PublicKey, writable bool) (*relaystate.Escrow, error) {
	escrow, err := LoadAnyEscrow(ai, false)
	if err != nil {
		return nil, err
	}
	if !escrow.Authority.Equals(authority) {
		return nil, relayapi.ErrAuthorityMismatch
	}
	return escrow, finish(ai, writable)
}

// LoadEscrowWithRelayer loads an escrow bound to relayer.
func LoadEscrowWithRelayer(ai *host.AccountInfo, relayer solana.PublicKey, writable bool) (*relaystate.Escrow, error) {
	escrow, err := LoadAnyEscrow(ai, false)
	if err != nil {
		return nil, err
	}
	if escrow.IsDirect() || !escrow.Relayer.Equals(relayer) {
		return nil, relayapi.ErrAuthorityMismatch
	}
	return escrow, finish(ai, writable)
}

// LoadAnyRelayer loads a relayer or pool record.
func LoadAnyRelayer(ai *host.AccountInfo, writable bool) (*relaystate.Relayer, error) {
	data, err := loadRecord(ai, relayapi.ProgramID, relaystate.DiscriminatorRelayer)
	if err != nil {
		return nil, err
	}
	relayer, err := relaystate.UnmarshalRelayer(data)
	if err != nil {
		return nil, relayapi.ErrShapeMismatch
	}
	return relayer, finish(ai, writable)
}

// LoadRelayer loads the relayer or pool record of authority.
func LoadRelayer(ai *host.AccountInfo, authority solana.PublicKey, writable bool) (*relaystate.Relayer, error) {
	relayer, err := LoadAnyRelayer(ai, false)
	if err != nil {
		return nil, err
	}
	if !relayer.Authority.Equals(authority) {
		return nil, relayapi.ErrAuthorityMismatch
	}
	return relayer, finish(ai, writable)
}

// LoadAnyPool loads a relayer record that operates as a pool.
func LoadAnyPool(ai *host.AccountInfo, writable bool) (*relaystate.Relayer, error) {
	pool, err := LoadAnyRelayer(ai, false)
	if err != nil {
		return nil, err
	}
	if !pool.IsPooled() {
		return nil, relayapi.ErrShapeMismatch
	}
	return pool, finish(ai, writable)
}

// LoadDelegate loads the delegate of authority in pool.
func LoadDelegate(ai *host.AccountInfo, authority, pool solana.PublicKey, writable bool) (*relaystate.Delegate, error) {
	data, err := loadRecord(ai, relayapi.ProgramID, relaystate.DiscriminatorDelegate)
	if err != nil {
		return nil, err
	}
	delegate, err := relaystate.UnmarshalDelegate(data)
	if err != nil {
		return nil, relayapi.ErrShapeMismatch
	}
	if !delegate.Authority.Equals(authority) || !delegate.Pool.Equals(pool) {
		return nil, relayapi.ErrAuthorityMismatch
	}
	return delegate, finish(ai, writable)
}

// LoadProof loads the mining proof held by authority.
func LoadProof(ai *host.AccountInfo, authority solana.PublicKey, writable bool) (*mining.Proof, error) {
	if !ai.IsOwnedBy(mining.ProgramID) {
		return nil, relayapi.ErrOwnerMismatch
	}
	if ai.DataIsEmpty() {
		return nil, relayapi.ErrUninitialized
	}
	proof, err := mining.UnmarshalProof(ai.Data())
	if err != nil {
		return nil, relayapi.ErrShapeMismatch
	}
	if !proof.Authority.Equals(authority) {
		return nil, relayapi.ErrAuthorityMismatch
	}
	return proof, finish(ai, writable)
}

// LoadTokenAccount loads a token account of mint held by owner.
func LoadTokenAccount(ai *host.AccountInfo, owner, mint solana.PublicKey, writable bool) (*token.Account, error) {
	if !ai.IsOwnedBy(token.ProgramID) {
		return nil, relayapi.ErrOwnerMismatch
	}
	if ai.DataIsEmpty() {
		return nil, relayapi.ErrUninitialized
	}
	acct, err := token.UnmarshalAccount(ai.Data())
	if err != nil || !acct.Initialized {
		return nil, relayapi.ErrShapeMismatch
	}
	if !acct.Mint.Equals(mint) {
		return nil, relayapi.ErrShapeMismatch
	}
	if !acct.Owner.Equals(owner) {
		return nil, relayapi.ErrAuthorityMismatch
	}
	return acct, finish(ai, writable)
}

// LoadMint loads a token mint.
func LoadMint(ai *host.AccountInfo, writable bool) (*token.Mint, error) {
	if !ai.IsOwnedBy(token.ProgramID) {
		return nil, relayapi.ErrOwnerMismatch
	}
	if ai.DataIsEmpty() {
		return nil, relayapi.ErrUninitialized
	}
	mint, err := token.UnmarshalMint(ai.Data())
	if err != nil || !mint.Initialized {
		return nil, relayapi.ErrShapeMismatch
	}
	return mint, finish(ai, writable)
}
