package mining

import (
	"github.com/gagliardetto/solana-go"
)

// ProgramID is the mining ledger program address.
var ProgramID = solana.MustPublicKeyFromBase58("6gAugbikq2kfFws7Nr8wu2kXmqD5ZCd2DeZ2CjUcXzpq")

var (
	SeedProof          = []byte("proof")
	SeedTreasury       = []byte("treasury")
	SeedMint           = []byte("mint")
	SeedTreasuryTokens = []byte("treasury_tokens")
)

var (
	treasuryAddress, treasuryBump             = mustFind(SeedTreasury)
	mintAddress, mintBump                     = mustFind(SeedMint)
	treasuryTokensAddress, treasuryTokensBump = mustFind(SeedTreasuryTokens)
)

func mustFind(seeds ...[]byte) (solana.PublicKey, uint8) {
	addr, bump, err := solana.FindProgramAddress(seeds, ProgramID)
	if err != nil {
		panic(err)
	}
	return addr, bump
}

// ProofAddress derives the proof account of an authority.
func ProofAddress(authority solana.PublicKey) (solana.PublicKey, uint8) {
	return mustFind(SeedProof, authority[:])
}

func TreasuryAddress() solana.PublicKey { return treasuryAddress }

// MintAddress is the reward token mint. Its mint authority is the treasury.
func MintAddress() solana.PublicKey { return mintAddress }

// TreasuryTokensAddress is the treasury's token account that holds staked and
// accrued rewards.
func TreasuryTokensAddress() solana.PublicKey { return treasuryTokensAddress }

func treasurySigner() [][]byte {
	return [][]byte{SeedTreasury, {treasuryBump}}
}
