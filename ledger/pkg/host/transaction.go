package host

import (
	"bytes"
	"fmt"
	"slices"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// Instruction addresses one program with an ordered account list and an
// opcode-prefixed payload.
type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  solana.AccountMetaSlice
	Data      []byte
}

// Transaction is the unit of atomicity: every instruction commits or none does.
//
// RecentSlot and Nonce are signed with the instructions. The bank refuses a
// transaction whose RecentSlot is older than its maximum age, and runs a given
// signature at most once while it is recent. The nonce keeps two identical
// intents signed in the same slot distinct.
type Transaction struct {
	RecentSlot   uint64
	Nonce        uuid.UUID
	Instructions []Instruction
	Signatures   []solana.Signature
}

func NewTransaction(ixs ...Instruction) *Transaction {
	return &Transaction{Nonce: uuid.New(), Instructions: ixs}
}

// Signers returns the keys that must sign, in order of first appearance.
func (tx *Transaction) Signers() []solana.PublicKey {
	var out []solana.PublicKey
	seen := make(map[solana.PublicKey]struct{})
	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			if !meta.IsSigner {
				continue
			}
			if _, ok := seen[meta.PublicKey]; ok {
				continue
			}
			seen[meta.PublicKey] = struct{}{}
			out = append(out, meta.PublicKey)
		}
	}
	return out
}

// Message is the canonical byte encoding that signers sign.
func (tx *Transaction) Message() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.WriteUint64(tx.RecentSlot, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(tx.Nonce[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteUint16(uint16(len(tx.Instructions)), bin.LE); err != nil {
		return nil, err
	}
	for _, ix := range tx.Instructions {
		if err := enc.WriteBytes(ix.ProgramID[:], false); err != nil {
			return nil, err
		}
		if err := enc.WriteUint16(uint16(len(ix.Accounts)), bin.LE); err != nil {
			return nil, err
		}
		for _, meta := range ix.Accounts {
			if err := enc.WriteBytes(meta.PublicKey[:], false); err != nil {
				return nil, err
			}
			var flags uint8
			if meta.IsSigner {
				flags |= 1
			}
			if meta.IsWritable {
				flags |= 2
			}
			if err := enc.WriteUint8(flags); err != nil {
				return nil, err
			}
		}
		if err := enc.WriteBytes(ix.Data, true); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Sign signs the message with every key that is a required signer. Keys that are
// not required are ignored; a required signer without a key is an error.
func (tx *Transaction) Sign(keys ...solana.PrivateKey) error {
	msg, err := tx.Message()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	byPub := make(map[solana.PublicKey]solana.PrivateKey, len(keys))
	for _, k := range keys {
		byPub[k.PublicKey()] = k
	}

	signers := tx.Signers()
	tx.Signatures = make([]solana.Signature, len(signers))
	for i, signer := range signers {
		key, ok := byPub[signer]
		if !ok {
			return fmt.Errorf("missing private key for signer %s", signer)
		}
		sig, err := key.Sign(msg)
		if err != nil {
			return fmt.Errorf("failed to sign for %s: %w", signer, err)
		}
		tx.Signatures[i] = sig
	}
	return nil
}

// Verify checks one valid signature per required signer. A transaction needs
// at least one signer.
func (tx *Transaction) Verify() error {
	signers := tx.Signers()
	if len(signers) == 0 || len(tx.Signatures) != len(signers) {
		return MissingRequiredSignature
	}
	msg, err := tx.Message()
	if err != nil {
		return InvalidInstructionData
	}
	for i, signer := range signers {
		if !tx.Signatures[i].Verify(signer, msg) {
			return MissingRequiredSignature
		}
	}
	return nil
}

// accountKeys returns the sorted unique account keys and which of them are
// writable in at least one instruction.
func (tx *Transaction) accountKeys() ([]solana.PublicKey, map[solana.PublicKey]bool) {
	writable := make(map[solana.PublicKey]bool)
	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			writable[meta.PublicKey] = writable[meta.PublicKey] || meta.IsWritable
		}
	}
	keys := make([]solana.PublicKey, 0, len(writable))
	for key := range writable {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b solana.PublicKey) int {
		return bytes.Compare(a[:], b[:])
	})
	return keys, writable
}
