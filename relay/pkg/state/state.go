package relaystate

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Discriminator tags the first byte of every relay record.
type Discriminator uint8

const (
	DiscriminatorEscrow   Discriminator = 100
	DiscriminatorRelayer  Discriminator = 101
	DiscriminatorDelegate Discriminator = 102
)

func (d Discriminator) String() string {
	switch d {
	case DiscriminatorEscrow:
		return "escrow"
	case DiscriminatorRelayer:
		return "relayer"
	case DiscriminatorDelegate:
		return "delegate"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(d))
	}
}

// Layout version carried in header byte 1. Decoders reject any other value.
const Version uint8 = 1

const (
	HeaderSize   = 8
	URLSize      = 256
	EscrowSize   = HeaderSize + 104
	RelayerSize  = HeaderSize + 424
	DelegateSize = HeaderSize + 72
)

// FlagPooled marks a relayer record that operates as a pool.
const FlagPooled uint64 = 1 << 0

var (
	ErrInvalidSize          = errors.New("invalid record size")
	ErrInvalidDiscriminator = errors.New("invalid discriminator")
	ErrUnsupportedVersion   = errors.New("unsupported record version")
)

// Record is any persisted relay record.
type Record interface {
	Discriminator() Discriminator
	Marshal() []byte
}

// Escrow is a user's custody position, optionally bound to a relayer.
// Stored size: 8 (header) + 104 = 112 bytes.
type Escrow struct {
	Authority solana.PublicKey // 32 bytes
	Bump      uint64           // 8 bytes
	LastHash  [32]byte         // 32 bytes, accrual watermark
	Relayer   solana.PublicKey // 32 bytes, zero for a direct escrow
}

// IsDirect reports whether the escrow is mined by its own authority.
func (e *Escrow) IsDirect() bool { return e.Relayer.IsZero() }

// Relayer is an operator record. With FlagPooled set it is a pool and Balance
// tracks deposited principal.
// Stored size: 8 (header) + 424 = 432 bytes.
type Relayer struct {
	Authority   solana.PublicKey // 32 bytes
	Bump        uint64           // 8 bytes
	Commission  uint64           // 8 bytes
	Miner       solana.PublicKey // 32 bytes
	Beneficiary solana.PublicKey // 32 bytes
	Balance     uint64           // 8 bytes
	IsOpen      uint64           // 8 bytes
	Flags       uint64           // 8 bytes
	ShareMint   solana.PublicKey // 32 bytes, zero unless pooled
	URL         [URLSize]byte    // 256 bytes
}

func (r *Relayer) IsPooled() bool { return r.Flags&FlagPooled != 0 }

func (r *Relayer) Open() bool { return r.IsOpen != 0 }

// URLString returns the URL without its zero padding.
func (r *Relayer) URLString() string {
	return string(bytes.TrimRight(r.URL[:], "\x00"))
}

// Delegate is one depositor's principal in a pool.
// Stored size: 8 (header) + 72 = 80 bytes.
type Delegate struct {
	Authority solana.PublicKey // 32 bytes
	Balance   uint64           // 8 bytes
	Pool      solana.PublicKey // 32 bytes
}

func (*Escrow) Discriminator() Discriminator   { return DiscriminatorEscrow }
func (*Relayer) Discriminator() Discriminator  { return DiscriminatorRelayer }
func (*Delegate) Discriminator() Discriminator { return DiscriminatorDelegate }

// Size returns the stored size of a record kind, or 0 for an unknown kind.
func Size(d Discriminator) int {
	switch d {
	case DiscriminatorEscrow:
		return EscrowSize
	case DiscriminatorRelayer:
		return RelayerSize
	case DiscriminatorDelegate:
		return DelegateSize
	default:
		return 0
	}
}

// Peek returns the discriminator of stored data without decoding it.
func Peek(data []byte) (Discriminator, bool) {
	if len(data) < HeaderSize {
		return 0, false
	}
	return Discriminator(data[0]), true
}

// Decode decodes any relay record by its discriminator.
func Decode(data []byte) (Record, error) {
	d, ok := Peek(data)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, len(data))
	}
	switch d {
	case DiscriminatorEscrow:
		return UnmarshalEscrow(data)
	case DiscriminatorRelayer:
		return UnmarshalRelayer(data)
	case DiscriminatorDelegate:
		return UnmarshalDelegate(data)
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidDiscriminator, d)
	}
}

func newEncoder(d Discriminator) (*bytes.Buffer, *bin.Encoder) {
	buf := bytes.NewBuffer(make([]byte, 0, Size(d)))
	enc := bin.NewBinEncoder(buf)
	_ = enc.WriteUint8(uint8(d))
	_ = enc.WriteUint8(Version)
	_ = enc.WriteBytes(make([]byte, HeaderSize-2), false)
	return buf, enc
}

func readHeader(data []byte, d Discriminator) (*bin.Decoder, error) {
	if len(data) != Size(d) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, len(data))
	}
	if Discriminator(data[0]) != d {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDiscriminator, data[0])
	}
	if data[1] != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[1])
	}
	return bin.NewBinDecoder(data[HeaderSize:]), nil
}

func readKey(dec *bin.Decoder) (solana.PublicKey, error) {
	b, err := dec.ReadNBytes(32)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b), nil
}

func (e *Escrow) Marshal() []byte {
	buf, enc := newEncoder(DiscriminatorEscrow)
	_ = enc.WriteBytes(e.Authority[:], false)
	_ = enc.WriteUint64(e.Bump, bin.LE)
	_ = enc.WriteBytes(e.LastHash[:], false)
	_ = enc.WriteBytes(e.Relayer[:], false)
	return buf.Bytes()
}

func UnmarshalEscrow(data []byte) (*Escrow, error) {
	dec, err := readHeader(data, DiscriminatorEscrow)
	if err != nil {
		return nil, err
	}
	var e Escrow
	if e.Authority, err = readKey(dec); err != nil {
		return nil, err
	}
	if e.Bump, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	hash, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, err
	}
	copy(e.LastHash[:], hash)
	if e.Relayer, err = readKey(dec); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Relayer) Marshal() []byte {
	buf, enc := newEncoder(DiscriminatorRelayer)
	_ = enc.WriteBytes(r.Authority[:], false)
	_ = enc.WriteUint64(r.Bump, bin.LE)
	_ = enc.WriteUint64(r.Commission, bin.LE)
	_ = enc.WriteBytes(r.Miner[:], false)
	_ = enc.WriteBytes(r.Beneficiary[:], false)
	_ = enc.WriteUint64(r.Balance, bin.LE)
	_ = enc.WriteUint64(r.IsOpen, bin.LE)
	_ = enc.WriteUint64(r.Flags, bin.LE)
	_ = enc.WriteBytes(r.ShareMint[:], false)
	_ = enc.WriteBytes(r.URL[:], false)
	return buf.Bytes()
}

func UnmarshalRelayer(data []byte) (*Relayer, error) {
	dec, err := readHeader(data, DiscriminatorRelayer)
	if err != nil {
		return nil, err
	}
	var r Relayer
	if r.Authority, err = readKey(dec); err != nil {
		return nil, err
	}
	if r.Bump, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	if r.Commission, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	if r.Miner, err = readKey(dec); err != nil {
		return nil, err
	}
	if r.Beneficiary, err = readKey(dec); err != nil {
		return nil, err
	}
	if r.Balance, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	if r.IsOpen, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	if r.Flags, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	if r.ShareMint, err = readKey(dec); err != nil {
		return nil, err
	}
	url, err := dec.ReadNBytes(URLSize)
	if err != nil {
		return nil, err
	}
	copy(r.URL[:], url)
	return &r, nil
}

func (d *Delegate) Marshal() []byte {
	buf, enc := newEncoder(DiscriminatorDelegate)
	_ = enc.WriteBytes(d.Authority[:], false)
	_ = enc.WriteUint64(d.Balance, bin.LE)
	_ = enc.WriteBytes(d.Pool[:], false)
	return buf.Bytes()
}

func UnmarshalDelegate(data []byte) (*Delegate, error) {
	dec, err := readHeader(data, DiscriminatorDelegate)
	if err != nil {
		return nil, err
	}
	var d Delegate
	if d.Authority, err = readKey(dec); err != nil {
		return nil, err
	}
	if d.Balance, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	if d.Pool, err = readKey(dec); err != nil {
		return nil, err
	}
	return &d, nil
}
