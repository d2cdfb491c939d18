package token

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ProgramID is the token program address.
var ProgramID = solana.TokenProgramID

const (
	MintSize    = 42
	AccountSize = 73
)

// Mint is a fungible token definition.
// Stored size: 42 bytes.
type Mint struct {
	Authority   solana.PublicKey // 32 bytes
	Supply      uint64           // 8 bytes
	Decimals    uint8            // 1 byte
	Initialized bool             // 1 byte
}

// Account holds a balance of one mint for one owner.
// Stored size: 73 bytes.
type Account struct {
	Mint        solana.PublicKey // 32 bytes
	Owner       solana.PublicKey // 32 bytes
	Amount      uint64           // 8 bytes
	Initialized bool             // 1 byte
}

func (m *Mint) Marshal() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, MintSize))
	enc := bin.NewBinEncoder(buf)
	_ = enc.WriteBytes(m.Authority[:], false)
	_ = enc.WriteUint64(m.Supply, bin.LE)
	_ = enc.WriteUint8(m.Decimals)
	_ = enc.WriteBool(m.Initialized)
	return buf.Bytes()
}

func UnmarshalMint(data []byte) (*Mint, error) {
	if len(data) != MintSize {
		return nil, fmt.Errorf("invalid mint size %d", len(data))
	}
	dec := bin.NewBinDecoder(data)
	var m Mint
	authority, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, err
	}
	m.Authority = solana.PublicKeyFromBytes(authority)
	if m.Supply, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	if m.Decimals, err = dec.ReadUint8(); err != nil {
		return nil, err
	}
	if m.Initialized, err = dec.ReadBool(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (a *Account) Marshal() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, AccountSize))
	enc := bin.NewBinEncoder(buf)
	_ = enc.WriteBytes(a.Mint[:], false)
	_ = enc.WriteBytes(a.Owner[:], false)
	_ = enc.WriteUint64(a.Amount, bin.LE)
	_ = enc.WriteBool(a.Initialized)
	return buf.Bytes()
}

func UnmarshalAccount(data []byte) (*Account, error) {
	if len(data) != AccountSize {
		return nil, fmt.Errorf("invalid token account size %d", len(data))
	}
	dec := bin.NewBinDecoder(data)
	var a Account
	mint, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, err
	}
	a.Mint = solana.PublicKeyFromBytes(mint)
	owner, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, err
	}
	a.Owner = solana.PublicKeyFromBytes(owner)
	if a.Amount, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	if a.Initialized, err = dec.ReadBool(); err != nil {
		return nil, err
	}
	return &a, nil
}
