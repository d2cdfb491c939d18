package host

import (
	"bytes"
	"math/bits"

	"github.com/gagliardetto/solana-go"
)

// AccountInfo is one program's view of an account for the duration of an
// instruction. Several views of the same key share the same working account, so a
// write through one is visible through the others.
type AccountInfo struct {
	Key        solana.PublicKey
	IsSigner   bool
	IsWritable bool

	program solana.PublicKey
	acct    *Account
}

// NewAccountInfo builds a standalone view of acct as seen by program. Programs
// receive their views from the bank; this is for exercising program code
// directly.
func NewAccountInfo(key solana.PublicKey, acct *Account, isSigner, isWritable bool, program solana.PublicKey) *AccountInfo {
	return &AccountInfo{
		Key:        key,
		IsSigner:   isSigner,
		IsWritable: isWritable,
		program:    program,
		acct:       acct,
	}
}

func (ai *AccountInfo) Owner() solana.PublicKey { return ai.acct.Owner }

func (ai *AccountInfo) Lamports() uint64 { return ai.acct.Lamports }

func (ai *AccountInfo) Executable() bool { return ai.acct.Executable }

// Data returns a copy of the account data. Writes go through SetData.
func (ai *AccountInfo) Data() []byte { return bytes.Clone(ai.acct.Data) }

func (ai *AccountInfo) DataLen() int { return len(ai.acct.Data) }

func (ai *AccountInfo) DataIsEmpty() bool { return len(ai.acct.Data) == 0 }

// IsOwnedBy reports whether the account is owned by the given program.
func (ai *AccountInfo) IsOwnedBy(program solana.PublicKey) bool {
	return ai.acct.Owner.Equals(program)
}

func (ai *AccountInfo) checkWrite() error {
	if !ai.IsWritable {
		return ReadonlyDataModified
	}
	if !ai.acct.Owner.Equals(ai.program) {
		return ExternalAccountDataModified
	}
	if ai.acct.Executable {
		return ReadonlyDataModified
	}
	return nil
}

// SetData overwrites the account data. The length must match the current
// allocation; use Realloc to resize.
func (ai *AccountInfo) SetData(data []byte) error {
	if err := ai.checkWrite(); err != nil {
		return err
	}
	if len(data) != len(ai.acct.Data) {
		return InvalidRealloc
	}
	copy(ai.acct.Data, data)
	return nil
}

// Realloc resizes the account data, zero-filling any growth.
func (ai *AccountInfo) Realloc(size int) error {
	if err := ai.checkWrite(); err != nil {
		return err
	}
	if size < 0 || size > MaxAccountSize {
		return InvalidRealloc
	}
	switch {
	case size == 0:
		ai.acct.Data = nil
	case size <= len(ai.acct.Data):
		ai.acct.Data = ai.acct.Data[:size:size]
	default:
		grown := make([]byte, size)
		copy(grown, ai.acct.Data)
		ai.acct.Data = grown
	}
	return nil
}

// Assign transfers ownership. Only the current owner can assign.
func (ai *AccountInfo) Assign(owner solana.PublicKey) error {
	if err := ai.checkWrite(); err != nil {
		return err
	}
	ai.acct.Owner = owner
	return nil
}

// Debit removes lamports. Only the owner can spend from an account.
func (ai *AccountInfo) Debit(lamports uint64) error {
	if !ai.IsWritable {
		return ReadonlyDataModified
	}
	if !ai.acct.Owner.Equals(ai.program) {
		return ExternalAccountLamportSpend
	}
	if ai.acct.Lamports < lamports {
		return InsufficientFunds
	}
	ai.acct.Lamports -= lamports
	return nil
}

// Credit adds lamports. Any program can credit a writable account.
func (ai *AccountInfo) Credit(lamports uint64) error {
	if !ai.IsWritable {
		return ReadonlyDataModified
	}
	sum, carry := bits.Add64(ai.acct.Lamports, lamports, 0)
	if carry != 0 {
		return ArithmeticOverflow
	}
	ai.acct.Lamports = sum
	return nil
}

// TransferLamports debits from and credits to in one step.
func TransferLamports(from, to *AccountInfo, lamports uint64) error {
	if err := from.Debit(lamports); err != nil {
		return err
	}
	return to.Credit(lamports)
}

// sumLamports totals the distinct accounts behind the given views.
func sumLamports(infos []*AccountInfo) (uint64, error) {
	seen := make(map[*Account]struct{}, len(infos))
	var total uint64
	for _, ai := range infos {
		if _, ok := seen[ai.acct]; ok {
			continue
		}
		seen[ai.acct] = struct{}{}
		var carry uint64
		total, carry = bits.Add64(total, ai.acct.Lamports, 0)
		if carry != 0 {
			return 0, ArithmeticOverflow
		}
	}
	return total, nil
}
