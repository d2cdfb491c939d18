package relayapi

import (
	"github.com/gagliardetto/solana-go"
)

// ProgramID is the relay program address.
var ProgramID = solana.MustPublicKeyFromBase58("HzVJDSp5ptftthdCgth7EauwiFkH1yrC8Qy82Y2dWX7U")

var (
	SeedRelayer      = []byte("relayer")
	SeedEscrow       = []byte("escrow")
	SeedDelegate     = []byte("delegate")
	SeedEscrowTokens = []byte("escrow_tokens")
	SeedPoolTokens   = []byte("pool_tokens")
	SeedShareMint    = []byte("share_mint")
)

// RelayerSeeds are the derivation seeds of a relayer or pool record, without the bump.
func RelayerSeeds(authority solana.PublicKey) [][]byte {
	return [][]byte{SeedRelayer, authority.Bytes()}
}

// EscrowSeeds are the derivation seeds of an escrow. A zero relayer derives the
// direct escrow of the authority.
func EscrowSeeds(authority, relayer solana.PublicKey) [][]byte {
	if relayer.IsZero() {
		return [][]byte{SeedEscrow, authority.Bytes()}
	}
	return [][]byte{SeedEscrow, authority.Bytes(), relayer.Bytes()}
}

func DelegateSeeds(authority, pool solana.PublicKey) [][]byte {
	return [][]byte{SeedDelegate, authority.Bytes(), pool.Bytes()}
}

func EscrowTokensSeeds(escrow solana.PublicKey) [][]byte {
	return [][]byte{SeedEscrowTokens, escrow.Bytes()}
}

func PoolTokensSeeds(pool solana.PublicKey) [][]byte {
	return [][]byte{SeedPoolTokens, pool.Bytes()}
}

func ShareMintSeeds(pool solana.PublicKey) [][]byte {
	return [][]byte{SeedShareMint, pool.Bytes()}
}

// WithBump appends the bump seed that moves a derivation off the curve.
func WithBump(seeds [][]byte, bump uint8) [][]byte {
	out := make([][]byte, 0, len(seeds)+1)
	out = append(out, seeds...)
	return append(out, []byte{bump})
}

// Derive finds the canonical address and bump of seeds under the relay program.
func Derive(seeds [][]byte) (solana.PublicKey, uint8) {
	addr, bump, err := solana.FindProgramAddress(seeds, ProgramID)
	if err != nil {
		// Only reachable when no bump in 255..0 is off-curve.
		panic(err)
	}
	return addr, bump
}

func RelayerAddress(authority solana.PublicKey) (solana.PublicKey, uint8) {
	return Derive(RelayerSeeds(authority))
}

func EscrowAddress(authority, relayer solana.PublicKey) (solana.PublicKey, uint8) {
	return Derive(EscrowSeeds(authority, relayer))
}

func DelegateAddress(authority, pool solana.PublicKey) (solana.PublicKey, uint8) {
	return Derive(DelegateSeeds(authority, pool))
}

func EscrowTokensAddress(escrow solana.PublicKey) (solana.PublicKey, uint8) {
	return Derive(EscrowTokensSeeds(escrow))
}

func PoolTokensAddress(pool solana.PublicKey) (solana.PublicKey, uint8) {
	return Derive(PoolTokensSeeds(pool))
}

func ShareMintAddress(pool solana.PublicKey) (solana.PublicKey, uint8) {
	return Derive(ShareMintSeeds(pool))
}
