package relayapi

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Opcode is the first byte of every relay instruction.
type Opcode uint8

const (
	OpClaim         Opcode = 0
	OpCloseEscrow   Opcode = 1
	OpOpenEscrow    Opcode = 2
	OpStake         Opcode = 3
	OpOpenDelegate  Opcode = 10
	OpDeposit       Opcode = 11
	OpWithdraw      Opcode = 12
	OpCloseDelegate Opcode = 13
	OpOpenRelayer   Opcode = 100
	OpCollect       Opcode = 101
	OpUpdateMiner   Opcode = 102
	OpUpdateRelayer Opcode = 103
	OpOpenPool      Opcode = 104
)

var opcodeNames = map[Opcode]string{
	OpClaim:         "claim",
	OpCloseEscrow:   "close_escrow",
	OpOpenEscrow:    "open_escrow",
	OpStake:         "stake",
	OpOpenDelegate:  "open_delegate",
	OpDeposit:       "deposit",
	OpWithdraw:      "withdraw",
	OpCloseDelegate: "close_delegate",
	OpOpenRelayer:   "open_relayer",
	OpCollect:       "collect",
	OpUpdateMiner:   "update_miner",
	OpUpdateRelayer: "update_relayer",
	OpOpenPool:      "open_pool",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(o))
}

// Valid reports whether o is a known opcode.
func (o Opcode) Valid() bool {
	_, ok := opcodeNames[o]
	return ok
}

// URLSize is the fixed width of a relayer's advertised URL.
const URLSize = 256

var ErrURLTooLong = errors.New("url exceeds 256 bytes")

// EncodeURL packs s into the fixed-width, zero-padded URL field.
func EncodeURL(s string) ([URLSize]byte, error) {
	var out [URLSize]byte
	if len(s) > URLSize {
		return out, ErrURLTooLong
	}
	copy(out[:], s)
	return out, nil
}

// BumpArgs carries the caller-supplied bump of the record an Open creates.
type BumpArgs struct {
	Bump uint8
}

// AmountArgs is the argument record of Claim, Stake, Deposit and Withdraw.
type AmountArgs struct {
	Amount uint64
}

// RelayerArgs is the argument record of OpenRelayer and OpenPool.
// Encoded size: 1 + 8 + 32 + 32 + 256 = 329 bytes.
type RelayerArgs struct {
	Bump        uint8            // 1 byte
	Commission  uint64           // 8 bytes
	Miner       solana.PublicKey // 32 bytes
	Beneficiary solana.PublicKey // 32 bytes
	URL         [URLSize]byte    // 256 bytes
}

// UpdateRelayerArgs replaces every mutable relayer field at once.
// Encoded size: 8 + 32 + 32 + 256 + 1 = 329 bytes.
type UpdateRelayerArgs struct {
	Commission  uint64
	Miner       solana.PublicKey
	Beneficiary solana.PublicKey
	URL         [URLSize]byte
	IsOpen      bool
}

func encode(op Opcode, write func(enc *bin.Encoder) error) []byte {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	_ = enc.WriteUint8(uint8(op))
	if write != nil {
		_ = write(enc)
	}
	return buf.Bytes()
}

func (a BumpArgs) encode(op Opcode) []byte {
	return encode(op, func(enc *bin.Encoder) error {
		return enc.WriteUint8(a.Bump)
	})
}

func (a AmountArgs) encode(op Opcode) []byte {
	return encode(op, func(enc *bin.Encoder) error {
		return enc.WriteUint64(a.Amount, bin.LE)
	})
}

func (a RelayerArgs) encode(op Opcode) []byte {
	return encode(op, func(enc *bin.Encoder) error {
		_ = enc.WriteUint8(a.Bump)
		_ = enc.WriteUint64(a.Commission, bin.LE)
		_ = enc.WriteBytes(a.Miner[:], false)
		_ = enc.WriteBytes(a.Beneficiary[:], false)
		return enc.WriteBytes(a.URL[:], false)
	})
}

func (a UpdateRelayerArgs) encode() []byte {
	return encode(OpUpdateRelayer, func(enc *bin.Encoder) error {
		_ = enc.WriteUint64(a.Commission, bin.LE)
		_ = enc.WriteBytes(a.Miner[:], false)
		_ = enc.WriteBytes(a.Beneficiary[:], false)
		_ = enc.WriteBytes(a.URL[:], false)
		return enc.WriteBool(a.IsOpen)
	})
}

// Instruction data decoders. Each takes the data that follows the opcode byte
// and rejects short or trailing input.

var ErrInvalidArgs = errors.New("invalid instruction arguments")

func DecodeBumpArgs(data []byte) (BumpArgs, error) {
	if len(data) != 1 {
		return BumpArgs{}, ErrInvalidArgs
	}
	return BumpArgs{Bump: data[0]}, nil
}

func DecodeAmountArgs(data []byte) (AmountArgs, error) {
	if len(data) != 8 {
		return AmountArgs{}, ErrInvalidArgs
	}
	amount, err := bin.NewBinDecoder(data).ReadUint64(bin.LE)
	if err != nil {
		return AmountArgs{}, ErrInvalidArgs
	}
	return AmountArgs{Amount: amount}, nil
}

func DecodeRelayerArgs(data []byte) (RelayerArgs, error) {
	var a RelayerArgs
	if len(data) != 1+8+32+32+URLSize {
		return a, ErrInvalidArgs
	}
	dec := bin.NewBinDecoder(data)
	var err error
	if a.Bump, err = dec.ReadUint8(); err != nil {
		return a, ErrInvalidArgs
	}
	if a.Commission, err = dec.ReadUint64(bin.LE); err != nil {
		return a, ErrInvalidArgs
	}
	if a.Miner, err = readKey(dec); err != nil {
		return a, ErrInvalidArgs
	}
	if a.Beneficiary, err = readKey(dec); err != nil {
		return a, ErrInvalidArgs
	}
	url, err := dec.ReadNBytes(URLSize)
	if err != nil {
		return a, ErrInvalidArgs
	}
	copy(a.URL[:], url)
	return a, nil
}

func DecodeUpdateRelayerArgs(data []byte) (UpdateRelayerArgs, error) {
	var a UpdateRelayerArgs
	if len(data) != 8+32+32+URLSize+1 {
		return a, ErrInvalidArgs
	}
	dec := bin.NewBinDecoder(data)
	var err error
	if a.Commission, err = dec.ReadUint64(bin.LE); err != nil {
		return a, ErrInvalidArgs
	}
	if a.Miner, err = readKey(dec); err != nil {
		return a, ErrInvalidArgs
	}
	if a.Beneficiary, err = readKey(dec); err != nil {
		return a, ErrInvalidArgs
	}
	url, err := dec.ReadNBytes(URLSize)
	if err != nil {
		return a, ErrInvalidArgs
	}
	copy(a.URL[:], url)
	if a.IsOpen, err = dec.ReadBool(); err != nil {
		return a, ErrInvalidArgs
	}
	return a, nil
}

func readKey(dec *bin.Decoder) (solana.PublicKey, error) {
	b, err := dec.ReadNBytes(32)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b), nil
}
