package mining

import (
	"encoding/binary"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	"github.com/malbeclabs/orerelay/ledger/pkg/token"
	"golang.org/x/crypto/sha3"
)

// Instruction tags.
const (
	InstructionInitialize uint8 = 0
	InstructionOpen       uint8 = 1
	InstructionStake      uint8 = 2
	InstructionClaim      uint8 = 3
	InstructionUpdate     uint8 = 4
	InstructionClose      uint8 = 5
	InstructionMine       uint8 = 6
	InstructionAirdrop    uint8 = 7
)

// Program is the mining reward ledger. Each authority holds one proof whose
// balance grows by the treasury reward rate every time its miner submits work.
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
	case InstructionInitialize:
		return p.initialize(ictx, accounts, dec)
	case InstructionOpen:
		return p.open(ictx, accounts)
	case InstructionStake:
		return p.stake(ictx, accounts, dec)
	case InstructionClaim:
		return p.claim(ictx, accounts, dec)
	case InstructionUpdate:
		return p.update(accounts)
	case InstructionClose:
		return p.close(accounts)
	case InstructionMine:
		return p.mine(ictx, accounts, dec)
	case InstructionAirdrop:
		return p.airdrop(ictx, accounts, dec)
	default:
		return host.InvalidInstructionData
	}
}

func (p *Program) initialize(ictx *host.InvokeContext, accounts []*host.AccountInfo, dec *bin.Decoder) error {
	if len(accounts) < 6 {
		return host.NotEnoughAccountKeys
	}
	rate, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return host.InvalidInstructionData
	}
	admin, treasuryAI, mintAI, tokensAI := accounts[0], accounts[1], accounts[2], accounts[3]
	if !admin.IsSigner {
		return host.MissingRequiredSignature
	}
	if !treasuryAI.Key.Equals(treasuryAddress) || !mintAI.Key.Equals(mintAddress) || !tokensAI.Key.Equals(treasuryTokensAddress) {
		return host.InvalidSeeds
	}

	create := host.CreateAccount(admin.Key, treasuryAI.Key, host.RentExemptMinimum(TreasurySize), TreasurySize, ProgramID)
	if err := ictx.Invoke(create, accounts, treasurySigner()); err != nil {
		return err
	}
	treasury := &Treasury{Admin: admin.Key, Bump: uint64(treasuryBump), RewardRate: rate}
	if err := treasuryAI.SetData(treasury.Marshal()); err != nil {
		return err
	}

	create = host.CreateAccount(admin.Key, mintAI.Key, host.RentExemptMinimum(token.MintSize), token.MintSize, token.ProgramID)
	if err := ictx.Invoke(create, accounts, [][]byte{SeedMint, {mintBump}}); err != nil {
		return err
	}
	if err := ictx.Invoke(token.InitializeMint(mintAI.Key, treasuryAI.Key, RewardDecimals), accounts); err != nil {
		return err
	}

	create = host.CreateAccount(admin.Key, tokensAI.Key, host.RentExemptMinimum(token.AccountSize), token.AccountSize, token.ProgramID)
	if err := ictx.Invoke(create, accounts, [][]byte{SeedTreasuryTokens, {treasuryTokensBump}}); err != nil {
		return err
	}
	if err := ictx.Invoke(token.InitializeAccount(tokensAI.Key, mintAI.Key, treasuryAI.Key), accounts); err != nil {
		return err
	}
	ictx.Logf("mining: initialized with reward rate %d", rate)
	return nil
}

func (p *Program) open(ictx *host.InvokeContext, accounts []*host.AccountInfo) error {
	if len(accounts) < 5 {
		return host.NotEnoughAccountKeys
	}
	authority, miner, payer, proofAI := accounts[0], accounts[1], accounts[2], accounts[3]
	if !authority.IsSigner {
		return host.MissingRequiredSignature
	}
	addr, bump := ProofAddress(authority.Key)
	if !proofAI.Key.Equals(addr) {
		return host.InvalidSeeds
	}

	create := host.CreateAccount(payer.Key, proofAI.Key, host.RentExemptMinimum(ProofSize), ProofSize, ProgramID)
	if err := ictx.Invoke(create, accounts, [][]byte{SeedProof, authority.Key[:], {bump}}); err != nil {
		return err
	}
	// A fresh proof has a zero hash so no accrual is observed before the first mine.
	proof := &Proof{
		Authority:       authority.Key,
		Miner:           miner.Key,
		LastAccrualSlot: ictx.Slot(),
	}
	return proofAI.SetData(proof.Marshal())
}

func (p *Program) stake(ictx *host.InvokeContext, accounts []*host.AccountInfo, dec *bin.Decoder) error {
	if len(accounts) < 6 {
		return host.NotEnoughAccountKeys
	}
	amount, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return host.InvalidInstructionData
	}
	authority, proofAI, sender, treasuryAI, tokensAI := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4]

	proof, err := loadProof(proofAI, authority)
	if err != nil {
		return err
	}
	treasury, err := loadTreasury(treasuryAI)
	if err != nil {
		return err
	}
	if !tokensAI.Key.Equals(treasuryTokensAddress) {
		return host.InvalidSeeds
	}

	if err := ictx.Invoke(token.Transfer(sender.Key, tokensAI.Key, authority.Key, amount), accounts); err != nil {
		return err
	}
	proof.Balance = saturatingAdd(proof.Balance, amount)
	treasury.TotalStaked = saturatingAdd(treasury.TotalStaked, amount)
	if err := proofAI.SetData(proof.Marshal()); err != nil {
		return err
	}
	return treasuryAI.SetData(treasury.Marshal())
}

func (p *Program) claim(ictx *host.InvokeContext, accounts []*host.AccountInfo, dec *bin.Decoder) error {
	if len(accounts) < 6 {
		return host.NotEnoughAccountKeys
	}
	amount, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return host.InvalidInstructionData
	}
	authority, beneficiary, proofAI, treasuryAI, tokensAI := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4]

	proof, err := loadProof(proofAI, authority)
	if err != nil {
		return err
	}
	treasury, err := loadTreasury(treasuryAI)
	if err != nil {
		return err
	}
	if !tokensAI.Key.Equals(treasuryTokensAddress) {
		return host.InvalidSeeds
	}
	if amount > proof.Balance {
		ictx.Logf("mining: claim %d exceeds balance %d", amount, proof.Balance)
		return ErrClaimTooLarge
	}

	proof.Balance -= amount
	treasury.TotalStaked = saturatingSub(treasury.TotalStaked, amount)
	if err := proofAI.SetData(proof.Marshal()); err != nil {
		return err
	}
	if err := treasuryAI.SetData(treasury.Marshal()); err != nil {
		return err
	}
	return ictx.Invoke(token.Transfer(tokensAI.Key, beneficiary.Key, treasuryAI.Key, amount), accounts, treasurySigner())
}

func (p *Program) update(accounts []*host.AccountInfo) error {
	if len(accounts) < 3 {
		return host.NotEnoughAccountKeys
	}
	authority, miner, proofAI := accounts[0], accounts[1], accounts[2]
	proof, err := loadProof(proofAI, authority)
	if err != nil {
		return err
	}
	proof.Miner = miner.Key
	return proofAI.SetData(proof.Marshal())
}

func (p *Program) close(accounts []*host.AccountInfo) error {
	if len(accounts) < 2 {
		return host.NotEnoughAccountKeys
	}
	authority, proofAI := accounts[0], accounts[1]
	proof, err := loadProof(proofAI, authority)
	if err != nil {
		return err
	}
	if proof.Balance != 0 {
		return ErrNonZeroBalance
	}
	if err := proofAI.Realloc(0); err != nil {
		return err
	}
	if err := host.TransferLamports(proofAI, authority, proofAI.Lamports()); err != nil {
		return err
	}
	return proofAI.Assign(solana.SystemProgramID)
}

func (p *Program) mine(ictx *host.InvokeContext, accounts []*host.AccountInfo, dec *bin.Decoder) error {
	if len(accounts) < 6 {
		return host.NotEnoughAccountKeys
	}
	nonce, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return host.InvalidInstructionData
	}
	signer, proofAI, treasuryAI, mintAI, tokensAI := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4]
	if !signer.IsSigner {
		return host.MissingRequiredSignature
	}
	proof, err := decodeProof(proofAI)
	if err != nil {
		return err
	}
	if !proof.Miner.Equals(signer.Key) {
		return ErrUnauthorized
	}
	treasury, err := loadTreasury(treasuryAI)
	if err != nil {
		return err
	}
	if !mintAI.Key.Equals(mintAddress) || !tokensAI.Key.Equals(treasuryTokensAddress) {
		return host.InvalidSeeds
	}

	reward := treasury.RewardRate
	if err := ictx.Invoke(token.MintTo(mintAI.Key, tokensAI.Key, treasuryAI.Key, reward), accounts, treasurySigner()); err != nil {
		return err
	}
	proof.Balance = saturatingAdd(proof.Balance, reward)
	proof.TotalRewards = saturatingAdd(proof.TotalRewards, reward)
	proof.LastHash = NextHash(proof.LastHash, nonce, ictx.Slot())
	proof.LastAccrualSlot = ictx.Slot()
	ictx.Logf("mining: accrued %d to %s", reward, proof.Authority)
	return proofAI.SetData(proof.Marshal())
}

// airdrop mints reward tokens to any token account. Only the treasury admin
// can sign it.
func (p *Program) airdrop(ictx *host.InvokeContext, accounts []*host.AccountInfo, dec *bin.Decoder) error {
	if len(accounts) < 5 {
		return host.NotEnoughAccountKeys
	}
	amount, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return host.InvalidInstructionData
	}
	admin, treasuryAI, mintAI, destination := accounts[0], accounts[1], accounts[2], accounts[3]
	treasury, err := loadTreasury(treasuryAI)
	if err != nil {
		return err
	}
	if !admin.IsSigner {
		return host.MissingRequiredSignature
	}
	if !treasury.Admin.Equals(admin.Key) {
		return ErrUnauthorized
	}
	return ictx.Invoke(token.MintTo(mintAI.Key, destination.Key, treasuryAI.Key, amount), accounts, treasurySigner())
}

// NextHash is the accrual fingerprint that follows prev for a nonce mined at slot.
func NextHash(prev [32]byte, nonce, slot uint64) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(prev[:])
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], nonce)
	binary.LittleEndian.PutUint64(buf[8:], slot)
	h.Write(buf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func decodeProof(ai *host.AccountInfo) (*Proof, error) {
	if !ai.IsOwnedBy(ProgramID) {
		return nil, host.InvalidAccountOwner
	}
	proof, err := UnmarshalProof(ai.Data())
	if err != nil {
		return nil, ErrInvalidProof
	}
	return proof, nil
}

// loadProof checks that the proof belongs to a signing authority.
func loadProof(ai, authority *host.AccountInfo) (*Proof, error) {
	if !authority.IsSigner {
		return nil, host.MissingRequiredSignature
	}
	proof, err := decodeProof(ai)
	if err != nil {
		return nil, err
	}
	if !proof.Authority.Equals(authority.Key) {
		return nil, ErrUnauthorized
	}
	return proof, nil
}

func loadTreasury(ai *host.AccountInfo) (*Treasury, error) {
	if !ai.Key.Equals(treasuryAddress) || !ai.IsOwnedBy(ProgramID) {
		return nil, ErrInvalidTreasury
	}
	treasury, err := UnmarshalTreasury(ai.Data())
	if err != nil {
		return nil, ErrInvalidTreasury
	}
	return treasury, nil
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
