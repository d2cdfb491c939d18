package host

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// System program instruction tags, encoded as a little-endian u32.
const (
	SystemCreateAccount uint32 = 0
	SystemAssign        uint32 = 1
	SystemTransfer      uint32 = 2
)

// SystemProgram creates accounts, assigns ownership and moves lamports between
// system-owned accounts.
type SystemProgram struct{}

func NewSystemProgram() *SystemProgram { return &SystemProgram{} }

func (p *SystemProgram) ID() solana.PublicKey { return solana.SystemProgramID }

func (p *SystemProgram) Process(ictx *InvokeContext, accounts []*AccountInfo, data []byte) error {
	dec := bin.NewBinDecoder(data)
	tag, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return InvalidInstructionData
	}
	switch tag {
	case SystemCreateAccount:
		return p.createAccount(ictx, accounts, dec)
	case SystemAssign:
		return p.assign(accounts, dec)
	case SystemTransfer:
		return p.transfer(accounts, dec)
	default:
		return InvalidInstructionData
	}
}

// createAccount funds, allocates and assigns a fresh account. Both the funder
// and the new account must sign; a derived address signs through its owning
// program.
func (p *SystemProgram) createAccount(ictx *InvokeContext, accounts []*AccountInfo, dec *bin.Decoder) error {
	if len(accounts) < 2 {
		return NotEnoughAccountKeys
	}
	funder, target := accounts[0], accounts[1]

	lamports, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return InvalidInstructionData
	}
	space, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return InvalidInstructionData
	}
	ownerBytes, err := dec.ReadNBytes(32)
	if err != nil {
		return InvalidInstructionData
	}
	owner := solana.PublicKeyFromBytes(ownerBytes)

	if !funder.IsSigner || !target.IsSigner {
		return MissingRequiredSignature
	}
	if !target.IsOwnedBy(solana.SystemProgramID) || !target.DataIsEmpty() || target.Lamports() != 0 {
		ictx.Logf("create account: address %s already in use", target.Key)
		return AccountAlreadyInitialized
	}
	if space > MaxAccountSize {
		return InvalidRealloc
	}
	if lamports < RentExemptMinimum(int(space)) {
		return InsufficientFunds
	}
	if err := TransferLamports(funder, target, lamports); err != nil {
		return err
	}
	if err := target.Realloc(int(space)); err != nil {
		return err
	}
	return target.Assign(owner)
}

func (p *SystemProgram) assign(accounts []*AccountInfo, dec *bin.Decoder) error {
	if len(accounts) < 1 {
		return NotEnoughAccountKeys
	}
	ownerBytes, err := dec.ReadNBytes(32)
	if err != nil {
		return InvalidInstructionData
	}
	if !accounts[0].IsSigner {
		return MissingRequiredSignature
	}
	return accounts[0].Assign(solana.PublicKeyFromBytes(ownerBytes))
}

func (p *SystemProgram) transfer(accounts []*AccountInfo, dec *bin.Decoder) error {
	if len(accounts) < 2 {
		return NotEnoughAccountKeys
	}
	lamports, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return InvalidInstructionData
	}
	from, to := accounts[0], accounts[1]
	if !from.IsSigner {
		return MissingRequiredSignature
	}
	if !from.DataIsEmpty() {
		return InvalidArgument
	}
	return TransferLamports(from, to, lamports)
}

func systemData(tag uint32, write func(enc *bin.Encoder) error) []byte {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	_ = enc.WriteUint32(tag, bin.LE)
	if write != nil {
		_ = write(enc)
	}
	return buf.Bytes()
}

// CreateAccount builds a system instruction that funds and allocates newAccount
// and assigns it to owner.
func CreateAccount(funder, newAccount solana.PublicKey, lamports, space uint64, owner solana.PublicKey) Instruction {
	return Instruction{
		ProgramID: solana.SystemProgramID,
		Accounts: solana.AccountMetaSlice{
			solana.Meta(funder).WRITE().SIGNER(),
			solana.Meta(newAccount).WRITE().SIGNER(),
		},
		Data: systemData(SystemCreateAccount, func(enc *bin.Encoder) error {
			if err := enc.WriteUint64(lamports, bin.LE); err != nil {
				return err
			}
			if err := enc.WriteUint64(space, bin.LE); err != nil {
				return err
			}
			return enc.WriteBytes(owner[:], false)
		}),
	}
}

func Assign(account, owner solana.PublicKey) Instruction {
	return Instruction{
		ProgramID: solana.SystemProgramID,
		Accounts:  solana.AccountMetaSlice{solana.Meta(account).WRITE().SIGNER()},
		Data: systemData(SystemAssign, func(enc *bin.Encoder) error {
			return enc.WriteBytes(owner[:], false)
		}),
	}
}

func Transfer(from, to solana.PublicKey, lamports uint64) Instruction {
	return Instruction{
		ProgramID: solana.SystemProgramID,
		Accounts: solana.AccountMetaSlice{
			solana.Meta(from).WRITE().SIGNER(),
			solana.Meta(to).WRITE(),
		},
		Data: systemData(SystemTransfer, func(enc *bin.Encoder) error {
			return enc.WriteUint64(lamports, bin.LE)
		}),
	}
}
