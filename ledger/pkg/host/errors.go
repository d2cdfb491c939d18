package host

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ProgramError is a builtin runtime failure. Builtin errors abort with code<<32 so
// they never collide with program-specific custom codes.
type ProgramError uint32

const (
	CustomZero ProgramError = iota + 1
	InvalidArgument
	InvalidInstructionData
	InvalidAccountData
	AccountDataTooSmall
	InsufficientFunds
	IncorrectProgramID
	MissingRequiredSignature
	AccountAlreadyInitialized
	UninitializedAccount
	NotEnoughAccountKeys
	InvalidSeeds
	ReadonlyDataModified
	ExternalAccountDataModified
	ExternalAccountLamportSpend
	UnbalancedInstruction
	UnknownProgram
	CallDepthExceeded
	PrivilegeEscalation
	MissingAccount
	InvalidAccountOwner
	ArithmeticOverflow
	InvalidRealloc
	AlreadyProcessed
	TransactionExpired
)

var programErrorNames = map[ProgramError]string{
	CustomZero:                  "custom program error: 0x0",
	InvalidArgument:             "invalid argument",
	InvalidInstructionData:      "invalid instruction data",
	InvalidAccountData:          "invalid account data",
	AccountDataTooSmall:         "account data too small",
	InsufficientFunds:           "insufficient funds",
	IncorrectProgramID:          "incorrect program id",
	MissingRequiredSignature:    "missing required signature",
	AccountAlreadyInitialized:   "account already initialized",
	UninitializedAccount:        "uninitialized account",
	NotEnoughAccountKeys:        "not enough account keys",
	InvalidSeeds:                "invalid seeds",
	ReadonlyDataModified:        "instruction modified data of a read-only account",
	ExternalAccountDataModified: "instruction modified data of an account it does not own",
	ExternalAccountLamportSpend: "instruction spent from the balance of an account it does not own",
	UnbalancedInstruction:       "sum of account balances before and after instruction do not match",
	UnknownProgram:              "unknown program",
	CallDepthExceeded:           "cross-program invocation call depth too deep",
	PrivilegeEscalation:         "cross-program invocation with unauthorized signer or writable account",
	MissingAccount:              "instruction references an account that was not provided",
	InvalidAccountOwner:         "invalid account owner",
	ArithmeticOverflow:          "arithmetic overflow",
	InvalidRealloc:              "failed to reallocate account data",
	AlreadyProcessed:            "transaction has already been processed",
	TransactionExpired:          "transaction recent slot is too old or in the future",
}

func (e ProgramError) Error() string {
	if name, ok := programErrorNames[e]; ok {
		return name
	}
	return fmt.Sprintf("program error %d", uint32(e))
}

// CodedError is implemented by program-specific error enums.
type CodedError interface {
	error
	CustomCode() uint32
}

// AbortCode maps any failure to the single numeric code surfaced to the submitter.
func AbortCode(err error) uint64 {
	if err == nil {
		return 0
	}
	var pe ProgramError
	if errors.As(err, &pe) {
		return uint64(pe) << 32
	}
	var ce CodedError
	if errors.As(err, &ce) {
		if ce.CustomCode() == 0 {
			return uint64(CustomZero) << 32
		}
		return uint64(ce.CustomCode())
	}
	return uint64(InvalidArgument) << 32
}

// TransactionError reports the instruction that aborted a transaction. Index is -1
// when the transaction was rejected before any instruction ran.
type TransactionError struct {
	Index     int
	ProgramID solana.PublicKey
	Err       error
	Logs      []string
}

func (e *TransactionError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("transaction rejected: %v", e.Err)
	}
	return fmt.Sprintf("instruction %d (program %s) failed: %v", e.Index, e.ProgramID, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// Code is the abort code of the failure.
func (e *TransactionError) Code() uint64 {
	return AbortCode(e.Err)
}
