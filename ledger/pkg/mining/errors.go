package mining

import "fmt"

// Error is a mining ledger failure.
type Error uint32

const (
	ErrClaimTooLarge   Error = 1
	ErrNonZeroBalance  Error = 2
	ErrUnauthorized    Error = 3
	ErrInvalidProof    Error = 4
	ErrInvalidTreasury Error = 5
)

var errorNames = map[Error]string{
	ErrClaimTooLarge:   "claim amount exceeds proof balance",
	ErrNonZeroBalance:  "proof balance is not zero",
	ErrUnauthorized:    "signer is not authorized for this proof",
	ErrInvalidProof:    "invalid proof account",
	ErrInvalidTreasury: "invalid treasury account",
}

func (e Error) Error() string {
	if name, ok := errorNames[e]; ok {
		return "mining: " + name
	}
	return fmt.Sprintf("mining: error %d", uint32(e))
}

func (e Error) CustomCode() uint32 { return uint32(e) }
