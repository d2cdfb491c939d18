package token

import "fmt"

// Error is a token program failure. Codes follow the SPL token program.
type Error uint32

const (
	ErrNotRentExempt      Error = 0
	ErrInsufficientFunds  Error = 1
	ErrInvalidMint        Error = 2
	ErrMintMismatch       Error = 3
	ErrOwnerMismatch      Error = 4
	ErrAlreadyInUse       Error = 6
	ErrUninitializedState Error = 9
	ErrNonZeroBalance     Error = 11
	ErrOverflow           Error = 14
)

var errorNames = map[Error]string{
	ErrNotRentExempt:      "lamport balance below rent-exempt threshold",
	ErrInsufficientFunds:  "insufficient funds",
	ErrInvalidMint:        "invalid mint",
	ErrMintMismatch:       "account not associated with this mint",
	ErrOwnerMismatch:      "owner does not match",
	ErrAlreadyInUse:       "account or token already in use",
	ErrUninitializedState: "state is uninitialized",
	ErrNonZeroBalance:     "non-native account can only be closed if its balance is zero",
	ErrOverflow:           "operation overflowed",
}

func (e Error) Error() string {
	if name, ok := errorNames[e]; ok {
		return "token: " + name
	}
	return fmt.Sprintf("token: error %d", uint32(e))
}

func (e Error) CustomCode() uint32 { return uint32(e) }
