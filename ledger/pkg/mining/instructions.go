package mining

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	"github.com/malbeclabs/orerelay/ledger/pkg/token"
)

func encode(tag uint8, args ...uint64) []byte {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	_ = enc.WriteUint8(tag)
	for _, a := range args {
		_ = enc.WriteUint64(a, bin.LE)
	}
	return buf.Bytes()
}

// Initialize creates the treasury, reward mint and treasury token account.
func Initialize(admin solana.PublicKey, rewardRate uint64) host.Instruction {
	return host.Instruction{
		ProgramID: ProgramID,
		Accounts: solana.AccountMetaSlice{
			solana.Meta(admin).WRITE().SIGNER(),
			solana.Meta(treasuryAddress).WRITE(),
			solana.Meta(mintAddress).WRITE(),
			solana.Meta(treasuryTokensAddress).WRITE(),
			solana.Meta(solana.SystemProgramID),
			solana.Meta(token.ProgramID),
		},
		Data: encode(InstructionInitialize, rewardRate),
	}
}

// Open creates the proof of authority, paid for by payer.
func Open(authority, miner, payer solana.PublicKey) host.Instruction {
	proof, _ := ProofAddress(authority)
	return host.Instruction{
		ProgramID: ProgramID,
		Accounts: solana.AccountMetaSlice{
			solana.Meta(authority).SIGNER(),
			solana.Meta(miner),
			solana.Meta(payer).WRITE().SIGNER(),
			solana.Meta(proof).WRITE(),
			solana.Meta(solana.SystemProgramID),
		},
		Data: encode(InstructionOpen),
	}
}

// Stake moves amount from sender, a token account owned by authority, into the
// treasury and credits the proof.
func Stake(authority, sender solana.PublicKey, amount uint64) host.Instruction {
	proof, _ := ProofAddress(authority)
	return host.Instruction{
		ProgramID: ProgramID,
		Accounts: solana.AccountMetaSlice{
			solana.Meta(authority).SIGNER(),
			solana.Meta(proof).WRITE(),
			solana.Meta(sender).WRITE(),
			solana.Meta(treasuryAddress).WRITE(),
			solana.Meta(treasuryTokensAddress).WRITE(),
			solana.Meta(token.ProgramID),
		},
		Data: encode(InstructionStake, amount),
	}
}

// Claim pays amount of the proof balance to the beneficiary token account.
func Claim(authority, beneficiary solana.PublicKey, amount uint64) host.Instruction {
	proof, _ := ProofAddress(authority)
	return host.Instruction{
		ProgramID: ProgramID,
		Accounts: solana.AccountMetaSlice{
			solana.Meta(authority).SIGNER(),
			solana.Meta(beneficiary).WRITE(),
			solana.Meta(proof).WRITE(),
			solana.Meta(treasuryAddress).WRITE(),
			solana.Meta(treasuryTokensAddress).WRITE(),
			solana.Meta(token.ProgramID),
		},
		Data: encode(InstructionClaim, amount),
	}
}

// Update replaces the miner allowed to accrue rewards on the proof.
func Update(authority, miner solana.PublicKey) host.Instruction {
	proof, _ := ProofAddress(authority)
	return host.Instruction{
		ProgramID: ProgramID,
		Accounts: solana.AccountMetaSlice{
			solana.Meta(authority).SIGNER(),
			solana.Meta(miner),
			solana.Meta(proof).WRITE(),
		},
		Data: encode(InstructionUpdate),
	}
}

// Close deletes an empty proof and returns its rent to the authority.
func Close(authority solana.PublicKey) host.Instruction {
	proof, _ := ProofAddress(authority)
	return host.Instruction{
		ProgramID: ProgramID,
		Accounts: solana.AccountMetaSlice{
			solana.Meta(authority).WRITE().SIGNER(),
			solana.Meta(proof).WRITE(),
		},
		Data: encode(InstructionClose),
	}
}

// Mine accrues one reward to the proof of authority. The signer must be the
// proof's miner.
func Mine(miner, authority solana.PublicKey, nonce uint64) host.Instruction {
	proof, _ := ProofAddress(authority)
	return host.Instruction{
		ProgramID: ProgramID,
		Accounts: solana.AccountMetaSlice{
			solana.Meta(miner).SIGNER(),
			solana.Meta(proof).WRITE(),
			solana.Meta(treasuryAddress),
			solana.Meta(mintAddress).WRITE(),
			solana.Meta(treasuryTokensAddress).WRITE(),
			solana.Meta(token.ProgramID),
		},
		Data: encode(InstructionMine, nonce),
	}
}

// Airdrop mints amount reward tokens to destination. The admin must be the
// treasury admin.
func Airdrop(admin, destination solana.PublicKey, amount uint64) host.Instruction {
	return host.Instruction{
		ProgramID: ProgramID,
		Accounts: solana.AccountMetaSlice{
			solana.Meta(admin).SIGNER(),
			solana.Meta(treasuryAddress),
			solana.Meta(mintAddress).WRITE(),
			solana.Meta(destination).WRITE(),
			solana.Meta(token.ProgramID),
		},
		Data: encode(InstructionAirdrop, amount),
	}
}
