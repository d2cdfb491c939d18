package token

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
)

func encode(tag uint8, write func(enc *bin.Encoder) error) []byte {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	_ = enc.WriteUint8(tag)
	if write != nil {
		_ = write(enc)
	}
	return buf.Bytes()
}

func amountData(tag uint8, amount uint64) []byte {
	return encode(tag, func(enc *bin.Encoder) error {
		return enc.WriteUint64(amount, bin.LE)
	})
}

func InitializeMint(mint, authority solana.PublicKey, decimals uint8) host.Instruction {
	return host.Instruction{
		ProgramID: ProgramID,
		Accounts:  solana.AccountMetaSlice{solana.Meta(mint).WRITE()},
		Data: encode(InstructionInitializeMint, func(enc *bin.Encoder) error {
			if err := enc.WriteUint8(decimals); err != nil {
				return err
			}
			return enc.WriteBytes(authority[:], false)
		}),
	}
}

func InitializeAccount(account, mint, owner solana.PublicKey) host.Instruction {
	return host.Instruction{
		ProgramID: ProgramID,
		Accounts: solana.AccountMetaSlice{
			solana.Meta(account).WRITE(),
			solana.Meta(mint),
			solana.Meta(owner),
		},
		Data: encode(InstructionInitializeAccount, nil),
	}
}

func Transfer(source, destination, owner solana.PublicKey, amount uint64) host.Instruction {
	return host.Instruction{
		ProgramID: ProgramID,
		Accounts: solana.AccountMetaSlice{
			solana.Meta(source).WRITE(),
			solana.Meta(destination).WRITE(),
			solana.Meta(owner).SIGNER(),
		},
		Data: amountData(InstructionTransfer, amount),
	}
}

func MintTo(mint, destination, authority solana.PublicKey, amount uint64) host.Instruction {
	return host.Instruction{
		ProgramID: ProgramID,
		Accounts: solana.AccountMetaSlice{
			solana.Meta(mint).WRITE(),
			solana.Meta(destination).WRITE(),
			solana.Meta(authority).SIGNER(),
		},
		Data: amountData(InstructionMintTo, amount),
	}
}

func Burn(account, mint, owner solana.PublicKey, amount uint64) host.Instruction {
	return host.Instruction{
		ProgramID: ProgramID,
		Accounts: solana.AccountMetaSlice{
			solana.Meta(account).WRITE(),
			solana.Meta(mint).WRITE(),
			solana.Meta(owner).SIGNER(),
		},
		Data: amountData(InstructionBurn, amount),
	}
}

// CloseAccount deletes an empty token account, crediting its rent to destination.
func CloseAccount(account, destination, owner solana.PublicKey) host.Instruction {
	return host.Instruction{
		ProgramID: ProgramID,
		Accounts: solana.AccountMetaSlice{
			solana.Meta(account).WRITE(),
			solana.Meta(destination).WRITE(),
			solana.Meta(owner).SIGNER(),
		},
		Data: encode(InstructionCloseAccount, nil),
	}
}

// CreateMint allocates and initializes a mint at a keypair address.
func CreateMint(payer, mint, authority solana.PublicKey, decimals uint8) []host.Instruction {
	return []host.Instruction{
		host.CreateAccount(payer, mint, host.RentExemptMinimum(MintSize), MintSize, ProgramID),
		InitializeMint(mint, authority, decimals),
	}
}

// CreateAccount allocates and initializes a token account at a keypair address.
func CreateAccount(payer, account, mint, owner solana.PublicKey) []host.Instruction {
	return []host.Instruction{
		host.CreateAccount(payer, account, host.RentExemptMinimum(AccountSize), AccountSize, ProgramID),
		InitializeAccount(account, mint, owner),
	}
}
