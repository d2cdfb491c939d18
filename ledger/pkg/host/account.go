package host

import (
	"bytes"

	"github.com/gagliardetto/solana-go"
)

const (
	// MaxAccountSize bounds a single account's data.
	MaxAccountSize = 10 * 1024 * 1024

	accountStorageOverhead = 128
	lamportsPerByteYear    = 3480
	exemptionYears         = 2
)

// Account is the host ledger's unit of storage.
type Account struct {
	Owner      solana.PublicKey
	Lamports   uint64
	Data       []byte
	Executable bool
}

// NewEmptyAccount returns the value an unknown key loads as.
func NewEmptyAccount() *Account {
	return &Account{Owner: solana.SystemProgramID}
}

func (a *Account) Clone() *Account {
	return &Account{
		Owner:      a.Owner,
		Lamports:   a.Lamports,
		Data:       bytes.Clone(a.Data),
		Executable: a.Executable,
	}
}

// IsEmpty reports whether the account holds nothing and can be purged.
func (a *Account) IsEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

func (a *Account) Equal(b *Account) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Owner.Equals(b.Owner) &&
		a.Lamports == b.Lamports &&
		a.Executable == b.Executable &&
		bytes.Equal(a.Data, b.Data)
}

// KeyedAccount pairs an account with its address.
type KeyedAccount struct {
	Key     solana.PublicKey
	Account *Account
}

// RentExemptMinimum is the balance an account of the given size must hold.
func RentExemptMinimum(space int) uint64 {
	return uint64(space+accountStorageOverhead) * lamportsPerByteYear * exemptionYears
}
