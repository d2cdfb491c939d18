package relayapi

import (
	"errors"
	"fmt"

	"github.com/malbeclabs/orerelay/ledger/pkg/host"
)

// Error is a relay program failure. Its numeric value is the custom abort code.
type Error uint32

const (
	ErrOwnerMismatch       Error = 1
	ErrUninitialized       Error = 2
	ErrShapeMismatch       Error = 3
	ErrAuthorityMismatch   Error = 4
	ErrNotWritable         Error = 5
	ErrMissingSignature    Error = 6
	ErrInvalidProgram      Error = 7
	ErrInvalidDerivation   Error = 8
	ErrAlreadyInitialized  Error = 9
	ErrAlreadyCollected    Error = 10
	ErrInsufficientBalance Error = 11
	ErrNonZeroBalance      Error = 12
	ErrPoolClosed          Error = 13
	ErrInvalidAmount       Error = 14
	ErrNotAuthorized       Error = 15
)

var errorNames = map[Error]string{
	ErrOwnerMismatch:       "account is not owned by the expected program",
	ErrUninitialized:       "account is not initialized",
	ErrShapeMismatch:       "account data does not match the expected record",
	ErrAuthorityMismatch:   "account is bound to a different authority",
	ErrNotWritable:         "account must be writable",
	ErrMissingSignature:    "account must sign",
	ErrInvalidProgram:      "unexpected program account",
	ErrInvalidDerivation:   "account address does not match its derivation",
	ErrAlreadyInitialized:  "account is already initialized",
	ErrAlreadyCollected:    "commission already collected for this accrual",
	ErrInsufficientBalance: "insufficient balance",
	ErrNonZeroBalance:      "balance is not zero",
	ErrPoolClosed:          "pool is closed",
	ErrInvalidAmount:       "invalid amount",
	ErrNotAuthorized:       "signer is not authorized",
}

func (e Error) Error() string {
	if name, ok := errorNames[e]; ok {
		return "relay: " + name
	}
	return fmt.Sprintf("relay: error %d", uint32(e))
}

func (e Error) CustomCode() uint32 { return uint32(e) }

// Class groups failures by how a submitter should react to them.
type Class uint8

const (
	// ClassExternal is any failure raised outside the relay program.
	ClassExternal Class = iota
	// ClassShape means the presented accounts are not the records the operation needs.
	ClassShape
	// ClassAuthorization means a signer or binding check failed.
	ClassAuthorization
	// ClassState means the records are valid but the operation cannot apply to
	// their current values.
	ClassState
)

func (c Class) String() string {
	switch c {
	case ClassShape:
		return "shape"
	case ClassAuthorization:
		return "authorization"
	case ClassState:
		return "state"
	default:
		return "external"
	}
}

func (e Error) Class() Class {
	switch e {
	case ErrOwnerMismatch, ErrUninitialized, ErrShapeMismatch, ErrInvalidProgram,
		ErrInvalidDerivation, ErrAlreadyInitialized:
		return ClassShape
	case ErrAuthorityMismatch, ErrNotWritable, ErrMissingSignature, ErrNotAuthorized:
		return ClassAuthorization
	default:
		return ClassState
	}
}

// Classify returns the class of a relay error anywhere in err's chain.
func Classify(err error) Class {
	var e Error
	if errors.As(err, &e) {
		return e.Class()
	}
	return ClassExternal
}

// ErrorFromCode maps an abort code back to the relay error it encodes. Builtin
// host codes and codes of other programs are not relay errors.
func ErrorFromCode(code uint64) (Error, bool) {
	if code == 0 || code>>32 != 0 {
		return 0, false
	}
	e := Error(code)
	if _, ok := errorNames[e]; !ok {
		return 0, false
	}
	return e, true
}

var _ host.CodedError = Error(0)
