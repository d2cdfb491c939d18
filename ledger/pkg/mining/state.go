package mining

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Discriminator tags the first byte of every mining account.
type Discriminator uint8

const (
	DiscriminatorProof    Discriminator = 102
	DiscriminatorTreasury Discriminator = 103
)

const (
	headerSize   = 8
	ProofSize    = headerSize + 120
	TreasurySize = headerSize + 56

	// RewardDecimals is the precision of the reward mint.
	RewardDecimals = 11
)

var (
	ErrInvalidSize          = errors.New("invalid account size")
	ErrInvalidDiscriminator = errors.New("invalid discriminator")
)

// Proof is an authority's position in the mining ledger.
// Stored size: 8 (header) + 120 = 128 bytes.
type Proof struct {
	Authority       solana.PublicKey // 32 bytes
	Balance         uint64           // 8 bytes
	LastHash        [32]byte         // 32 bytes
	Miner           solana.PublicKey // 32 bytes
	TotalRewards    uint64           // 8 bytes
	LastAccrualSlot uint64           // 8 bytes
}

// Treasury holds the ledger-wide reward configuration.
// Stored size: 8 (header) + 56 = 64 bytes.
type Treasury struct {
	Admin       solana.PublicKey // 32 bytes
	Bump        uint64           // 8 bytes
	RewardRate  uint64           // 8 bytes
	TotalStaked uint64           // 8 bytes
}

func writeHeader(enc *bin.Encoder, d Discriminator) {
	_ = enc.WriteUint8(uint8(d))
	_ = enc.WriteBytes(make([]byte, headerSize-1), false)
}

func readHeader(data []byte, size int, d Discriminator) (*bin.Decoder, error) {
	if len(data) != size {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, len(data))
	}
	if Discriminator(data[0]) != d {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDiscriminator, data[0])
	}
	return bin.NewBinDecoder(data[headerSize:]), nil
}

func readKey(dec *bin.Decoder) (solana.PublicKey, error) {
	b, err := dec.ReadNBytes(32)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b), nil
}

func (p *Proof) Marshal() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, ProofSize))
	enc := bin.NewBinEncoder(buf)
	writeHeader(enc, DiscriminatorProof)
	_ = enc.WriteBytes(p.Authority[:], false)
	_ = enc.WriteUint64(p.Balance, bin.LE)
	_ = enc.WriteBytes(p.LastHash[:], false)
	_ = enc.WriteBytes(p.Miner[:], false)
	_ = enc.WriteUint64(p.TotalRewards, bin.LE)
	_ = enc.WriteUint64(p.LastAccrualSlot, bin.LE)
	return buf.Bytes()
}

func UnmarshalProof(data []byte) (*Proof, error) {
	dec, err := readHeader(data, ProofSize, DiscriminatorProof)
	if err != nil {
		return nil, err
	}
	var p Proof
	if p.Authority, err = readKey(dec); err != nil {
		return nil, err
	}
	if p.Balance, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	hash, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, err
	}
	copy(p.LastHash[:], hash)
	if p.Miner, err = readKey(dec); err != nil {
		return nil, err
	}
	if p.TotalRewards, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	if p.LastAccrualSlot, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *Treasury) Marshal() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, TreasurySize))
	enc := bin.NewBinEncoder(buf)
	writeHeader(enc, DiscriminatorTreasury)
	_ = enc.WriteBytes(t.Admin[:], false)
	_ = enc.WriteUint64(t.Bump, bin.LE)
	_ = enc.WriteUint64(t.RewardRate, bin.LE)
	_ = enc.WriteUint64(t.TotalStaked, bin.LE)
	return buf.Bytes()
}

func UnmarshalTreasury(data []byte) (*Treasury, error) {
	dec, err := readHeader(data, TreasurySize, DiscriminatorTreasury)
	if err != nil {
		return nil, err
	}
	var t Treasury
	if t.Admin, err = readKey(dec); err != nil {
		return nil, err
	}
	if t.Bump, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	if t.RewardRate, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	if t.TotalStaked, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	return &t, nil
}
