package host

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// MaxInvokeDepth bounds nested cross-program invocation, counting the top-level
// instruction as depth 1.
const MaxInvokeDepth = 4

// Program is a native program registered with a bank.
type Program interface {
	ID() solana.PublicKey
	Process(ictx *InvokeContext, accounts []*AccountInfo, data []byte) error
}

// InvokeContext is the runtime handle a program receives for one instruction.
type InvokeContext struct {
	ctx       context.Context
	bank      *Bank
	programID solana.PublicKey
	slot      uint64
	depth     int
	logs      *[]string
}

func (ictx *InvokeContext) Context() context.Context { return ictx.ctx }

// ProgramID is the program currently executing.
func (ictx *InvokeContext) ProgramID() solana.PublicKey { return ictx.programID }

// Slot is the slot the transaction executes in.
func (ictx *InvokeContext) Slot() uint64 { return ictx.slot }

func (ictx *InvokeContext) Depth() int { return ictx.depth }

// Logf appends a program log line to the transaction receipt.
func (ictx *InvokeContext) Logf(format string, args ...any) {
	*ictx.logs = append(*ictx.logs, fmt.Sprintf("Program log: "+format, args...))
}

// Invoke calls another program with a subset of the caller's accounts. A meta
// may be a signer only if the caller holds it as a signer or one of signerSeeds
// derives its address from the calling program; it may be writable only if
// the caller holds it writable.
func (ictx *InvokeContext) Invoke(ix Instruction, accounts []*AccountInfo, signerSeeds ...[][]byte) error {
	if ictx.depth >= MaxInvokeDepth {
		return CallDepthExceeded
	}
	program, ok := ictx.bank.programs[ix.ProgramID]
	if !ok {
		return UnknownProgram
	}

	byKey := make(map[solana.PublicKey]*AccountInfo, len(accounts))
	for _, ai := range accounts {
		prev, ok := byKey[ai.Key]
		if !ok {
			byKey[ai.Key] = ai
			continue
		}
		// Duplicate views of one key carry the union of their privileges.
		byKey[ai.Key] = &AccountInfo{
			Key:        ai.Key,
			IsSigner:   prev.IsSigner || ai.IsSigner,
			IsWritable: prev.IsWritable || ai.IsWritable,
			program:    prev.program,
			acct:       prev.acct,
		}
	}
	if _, ok := byKey[ix.ProgramID]; !ok {
		return MissingAccount
	}

	derived := make(map[solana.PublicKey]struct{}, len(signerSeeds))
	for _, seeds := range signerSeeds {
		addr, err := solana.CreateProgramAddress(seeds, ictx.programID)
		if err != nil {
			return InvalidSeeds
		}
		derived[addr] = struct{}{}
	}

	infos := make([]*AccountInfo, 0, len(ix.Accounts))
	for _, meta := range ix.Accounts {
		caller, ok := byKey[meta.PublicKey]
		if !ok {
			return MissingAccount
		}
		if meta.IsWritable && !caller.IsWritable {
			return PrivilegeEscalation
		}
		if meta.IsSigner && !caller.IsSigner {
			if _, ok := derived[meta.PublicKey]; !ok {
				return PrivilegeEscalation
			}
		}
		infos = append(infos, &AccountInfo{
			Key:        meta.PublicKey,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
			program:    ix.ProgramID,
			acct:       caller.acct,
		})
	}

	callee := &InvokeContext{
		ctx:       ictx.ctx,
		bank:      ictx.bank,
		programID: ix.ProgramID,
		slot:      ictx.slot,
		depth:     ictx.depth + 1,
		logs:      ictx.logs,
	}
	return callee.process(program, infos, ix.Data)
}

// process runs one program invocation and checks that it conserved lamports
// across the accounts it was given.
func (ictx *InvokeContext) process(program Program, infos []*AccountInfo, data []byte) (err error) {
	*ictx.logs = append(*ictx.logs, fmt.Sprintf("Program %s invoke [%d]", ictx.programID, ictx.depth))
	defer func() {
		if r := recover(); r != nil {
			ictx.bank.log.Error("ledger: program panicked", "program", ictx.programID, "panic", r)
			err = fmt.Errorf("program %s panicked: %v", ictx.programID, r)
		}
		if err != nil {
			*ictx.logs = append(*ictx.logs, fmt.Sprintf("Program %s failed: %v", ictx.programID, err))
			return
		}
		*ictx.logs = append(*ictx.logs, fmt.Sprintf("Program %s success", ictx.programID))
	}()

	before, err := sumLamports(infos)
	if err != nil {
		return err
	}
	if err := program.Process(ictx, infos, data); err != nil {
		return err
	}
	after, err := sumLamports(infos)
	if err != nil {
		return err
	}
	if before != after {
		ictx.bank.log.Debug("ledger: unbalanced instruction", "program", ictx.programID, "before", before, "after", after)
		return UnbalancedInstruction
	}
	return nil
}
