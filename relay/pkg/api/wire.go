package relayapi

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	"github.com/mr-tron/base58"
)

// JSON forms of a transaction and its outcome on the submission endpoint. Keys,
// signatures and instruction data are base58.

type WireAccountMeta struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

type WireInstruction struct {
	ProgramID string            `json:"program_id"`
	Accounts  []WireAccountMeta `json:"accounts"`
	Data      string            `json:"data"`
}

type SubmitRequest struct {
	RecentSlot   uint64            `json:"recent_slot"`
	Nonce        string            `json:"nonce"`
	Instructions []WireInstruction `json:"instructions"`
	Signatures   []string          `json:"signatures"`
}

type SlotResponse struct {
	Slot uint64 `json:"slot"`
}

type SubmitResponse struct {
	ID   string   `json:"id"`
	Slot uint64   `json:"slot"`
	Logs []string `json:"logs"`
}

// SubmitError is the body of a rejected submission. Code is the abort code;
// Class is set when the relay program raised the failure.
type SubmitError struct {
	Error     string   `json:"error"`
	Code      uint64   `json:"code,omitempty"`
	Index     int      `json:"index"`
	ProgramID string   `json:"program_id,omitempty"`
	Class     string   `json:"class,omitempty"`
	Logs      []string `json:"logs,omitempty"`
}

func EncodeTransaction(tx *host.Transaction) SubmitRequest {
	req := SubmitRequest{
		RecentSlot:   tx.RecentSlot,
		Nonce:        tx.Nonce.String(),
		Instructions: make([]WireInstruction, 0, len(tx.Instructions)),
		Signatures:   make([]string, 0, len(tx.Signatures)),
	}
	for _, ix := range tx.Instructions {
		wix := WireInstruction{
			ProgramID: ix.ProgramID.String(),
			Accounts:  make([]WireAccountMeta, 0, len(ix.Accounts)),
			Data:      base58.Encode(ix.Data),
		}
		for _, meta := range ix.Accounts {
			wix.Accounts = append(wix.Accounts, WireAccountMeta{
				Pubkey:     meta.PublicKey.String(),
				IsSigner:   meta.IsSigner,
				IsWritable: meta.IsWritable,
			})
		}
		req.Instructions = append(req.Instructions, wix)
	}
	for _, sig := range tx.Signatures {
		req.Signatures = append(req.Signatures, sig.String())
	}
	return req
}

func DecodeTransaction(req SubmitRequest) (*host.Transaction, error) {
	nonce, err := uuid.Parse(req.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}
	tx := &host.Transaction{
		RecentSlot:   req.RecentSlot,
		Nonce:        nonce,
		Instructions: make([]host.Instruction, 0, len(req.Instructions)),
		Signatures:   make([]solana.Signature, 0, len(req.Signatures)),
	}
	for i, wix := range req.Instructions {
		programID, err := solana.PublicKeyFromBase58(wix.ProgramID)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: invalid program id: %w", i, err)
		}
		data, err := base58.Decode(wix.Data)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: invalid data: %w", i, err)
		}
		ix := host.Instruction{ProgramID: programID, Data: data}
		for j, wm := range wix.Accounts {
			key, err := solana.PublicKeyFromBase58(wm.Pubkey)
			if err != nil {
				return nil, fmt.Errorf("instruction %d account %d: invalid pubkey: %w", i, j, err)
			}
			ix.Accounts = append(ix.Accounts, &solana.AccountMeta{
				PublicKey:  key,
				IsSigner:   wm.IsSigner,
				IsWritable: wm.IsWritable,
			})
		}
		tx.Instructions = append(tx.Instructions, ix)
	}
	for i, s := range req.Signatures {
		raw, err := base58.Decode(s)
		if err != nil || len(raw) != len(solana.Signature{}) {
			return nil, fmt.Errorf("signature %d is not a base58 ed25519 signature", i)
		}
		tx.Signatures = append(tx.Signatures, solana.SignatureFromBytes(raw))
	}
	return tx, nil
}
