package token

import (
	"math/bits"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
)

// Instruction tags.
const (
	InstructionInitializeMint    uint8 = 0
	InstructionInitializeAccount uint8 = 1
	InstructionTransfer          uint8 = 3
	InstructionMintTo            uint8 = 7
	InstructionBurn              uint8 = 8
	InstructionCloseAccount      uint8 = 9
)

// Program is the fungible token program.
type Program struct{}

func NewProgram() *Program { return &Program{} }

func (p *Program) ID() solana.PublicKey { return ProgramID }

func (p *Program) Process(ictx *host.InvokeContext, accounts []*host.AccountInfo, data []byte) error {
	dec := bin.NewBinDecoder(data)
	tag, err := dec.ReadUint8()
	if err != nil {
		return host.InvalidInstructionData
	}
	switch tag {
	case InstructionInitializeMint:
		return p.initializeMint(accounts, dec)
	case InstructionInitializeAccount:
		return p.initializeAccount(accounts)
	case InstructionTransfer:
		return p.transfer(accounts, dec)
	case InstructionMintTo:
		return p.mintTo(accounts, dec)
	case InstructionBurn:
		return p.burn(accounts, dec)
	case InstructionCloseAccount:
		return p.closeAccount(accounts)
	default:
		ictx.Logf("token: unknown instruction %d", tag)
		return host.InvalidInstructionData
	}
}

func (p *Program) initializeMint(accounts []*host.AccountInfo, dec *bin.Decoder) error {
	if len(accounts) < 1 {
		return host.NotEnoughAccountKeys
	}
	decimals, err := dec.ReadUint8()
	if err != nil {
		return host.InvalidInstructionData
	}
	authority, err := dec.ReadNBytes(32)
	if err != nil {
		return host.InvalidInstructionData
	}

	ai := accounts[0]
	if !ai.IsOwnedBy(ProgramID) {
		return host.IncorrectProgramID
	}
	if ai.DataLen() != MintSize {
		return host.InvalidAccountData
	}
	if existing, err := UnmarshalMint(ai.Data()); err == nil && existing.Initialized {
		return ErrAlreadyInUse
	}
	if ai.Lamports() < host.RentExemptMinimum(MintSize) {
		return ErrNotRentExempt
	}
	mint := &Mint{
		Authority:   solana.PublicKeyFromBytes(authority),
		Decimals:    decimals,
		Initialized: true,
	}
	return ai.SetData(mint.Marshal())
}

func (p *Program) initializeAccount(accounts []*host.AccountInfo) error {
	if len(accounts) < 3 {
		return host.NotEnoughAccountKeys
	}
	ai, mintAI, owner := accounts[0], accounts[1], accounts[2]
	if !ai.IsOwnedBy(ProgramID) {
		return host.IncorrectProgramID
	}
	if ai.DataLen() != AccountSize {
		return host.InvalidAccountData
	}
	if existing, err := UnmarshalAccount(ai.Data()); err == nil && existing.Initialized {
		return ErrAlreadyInUse
	}
	if ai.Lamports() < host.RentExemptMinimum(AccountSize) {
		return ErrNotRentExempt
	}
	if _, err := loadMint(mintAI); err != nil {
		return ErrInvalidMint
	}
	acct := &Account{
		Mint:        mintAI.Key,
		Owner:       owner.Key,
		Initialized: true,
	}
	return ai.SetData(acct.Marshal())
}

func (p *Program) transfer(accounts []*host.AccountInfo, dec *bin.Decoder) error {
	if len(accounts) < 3 {
		return host.NotEnoughAccountKeys
	}
	amount, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return host.InvalidInstructionData
	}
	srcAI, dstAI, owner := accounts[0], accounts[1], accounts[2]

	src, err := loadAccount(srcAI)
	if err != nil {
		return err
	}
	dst, err := loadAccount(dstAI)
	if err != nil {
		return err
	}
	if !src.Mint.Equals(dst.Mint) {
		return ErrMintMismatch
	}
	if err := checkOwner(src.Owner, owner); err != nil {
		return err
	}
	if src.Amount < amount {
		return ErrInsufficientFunds
	}
	if srcAI.Key.Equals(dstAI.Key) {
		return nil
	}
	sum, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	src.Amount -= amount
	dst.Amount = sum
	if err := srcAI.SetData(src.Marshal()); err != nil {
		return err
	}
	return dstAI.SetData(dst.Marshal())
}

func (p *Program) mintTo(accounts []*host.AccountInfo, dec *bin.Decoder) error {
	if len(accounts) < 3 {
		return host.NotEnoughAccountKeys
	}
	amount, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return host.InvalidInstructionData
	}
	mintAI, dstAI, authority := accounts[0], accounts[1], accounts[2]

	mint, err := loadMint(mintAI)
	if err != nil {
		return err
	}
	dst, err := loadAccount(dstAI)
	if err != nil {
		return err
	}
	if !dst.Mint.Equals(mintAI.Key) {
		return ErrMintMismatch
	}
	if err := checkOwner(mint.Authority, authority); err != nil {
		return err
	}
	supply, carry := bits.Add64(mint.Supply, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	balance, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	mint.Supply = supply
	dst.Amount = balance
	if err := mintAI.SetData(mint.Marshal()); err != nil {
		return err
	}
	return dstAI.SetData(dst.Marshal())
}

func (p *Program) burn(accounts []*host.AccountInfo, dec *bin.Decoder) error {
	if len(accounts) < 3 {
		return host.NotEnoughAccountKeys
	}
	amount, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return host.InvalidInstructionData
	}
	acctAI, mintAI, owner := accounts[0], accounts[1], accounts[2]

	acct, err := loadAccount(acctAI)
	if err != nil {
		return err
	}
	mint, err := loadMint(mintAI)
	if err != nil {
		return err
	}
	if !acct.Mint.Equals(mintAI.Key) {
		return ErrMintMismatch
	}
	if err := checkOwner(acct.Owner, owner); err != nil {
		return err
	}
	if acct.Amount < amount {
		return ErrInsufficientFunds
	}
	acct.Amount -= amount
	mint.Supply -= amount
	if err := acctAI.SetData(acct.Marshal()); err != nil {
		return err
	}
	return mintAI.SetData(mint.Marshal())
}

// closeAccount deletes an empty token account and moves its rent to destination.
func (p *Program) closeAccount(accounts []*host.AccountInfo) error {
	if len(accounts) < 3 {
		return host.NotEnoughAccountKeys
	}
	acctAI, destination, owner := accounts[0], accounts[1], accounts[2]
	acct, err := loadAccount(acctAI)
	if err != nil {
		return err
	}
	if err := checkOwner(acct.Owner, owner); err != nil {
		return err
	}
	if acct.Amount != 0 {
		return ErrNonZeroBalance
	}
	if err := acctAI.Realloc(0); err != nil {
		return err
	}
	if err := host.TransferLamports(acctAI, destination, acctAI.Lamports()); err != nil {
		return err
	}
	return acctAI.Assign(solana.SystemProgramID)
}

func checkOwner(expected solana.PublicKey, ai *host.AccountInfo) error {
	if !expected.Equals(ai.Key) {
		return ErrOwnerMismatch
	}
	if !ai.IsSigner {
		return host.MissingRequiredSignature
	}
	return nil
}

func loadMint(ai *host.AccountInfo) (*Mint, error) {
	if !ai.IsOwnedBy(ProgramID) {
		return nil, host.IncorrectProgramID
	}
	if ai.DataLen() != MintSize {
		return nil, ErrInvalidMint
	}
	mint, err := UnmarshalMint(ai.Data())
	if err != nil {
		return nil, host.InvalidAccountData
	}
	if !mint.Initialized {
		return nil, ErrUninitializedState
	}
	return mint, nil
}

func loadAccount(ai *host.AccountInfo) (*Account, error) {
	if !ai.IsOwnedBy(ProgramID) {
		return nil, host.IncorrectProgramID
	}
	if ai.DataLen() != AccountSize {
		return nil, host.InvalidAccountData
	}
	acct, err := UnmarshalAccount(ai.Data())
	if err != nil {
		return nil, host.InvalidAccountData
	}
	if !acct.Initialized {
		return nil, ErrUninitializedState
	}
	return acct, nil
}
