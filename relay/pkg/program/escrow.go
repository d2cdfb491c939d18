package program

import (
	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	"github.com/malbeclabs/orerelay/ledger/pkg/mining"
	"github.com/malbeclabs/orerelay/ledger/pkg/token"
	relayapi "github.com/malbeclabs/orerelay/relay/pkg/api"
	"github.com/malbeclabs/orerelay/relay/pkg/loaders"
	relaystate "github.com/malbeclabs/orerelay/relay/pkg/state"
)

// escrowSigner is the derivation path that lets the relay sign for an escrow.
func escrowSigner(escrow *relaystate.Escrow) [][]byte {
	return relayapi.WithBump(relayapi.EscrowSeeds(escrow.Authority, escrow.Relayer), uint8(escrow.Bump))
}

func (p *Program) openEscrow(ictx *host.InvokeContext, accounts []*host.AccountInfo, data []byte) error {
	if err := need(accounts, 10); err != nil {
		return err
	}
	args, err := relayapi.DecodeBumpArgs(data)
	if err != nil {
		return host.InvalidInstructionData
	}
	// accounts[5] is the proof, which the mining ledger checks and creates.
	authority, relayerAI, minerAI, escrowAI, tokensAI, mintAI :=
		accounts[0], accounts[1], accounts[2], accounts[3], accounts[4], accounts[6]

	if err := loaders.LoadSigner(authority); err != nil {
		return err
	}
	if err := requirePrograms(accounts[7:], systemID, tokenID, miningID); err != nil {
		return err
	}

	var relayer solana.PublicKey
	miner := authority.Key
	if !relayerAI.Key.Equals(solana.SystemProgramID) {
		r, err := loaders.LoadAnyRelayer(relayerAI, false)
		if err != nil {
			return err
		}
		if r.IsPooled() {
			return relayapi.ErrShapeMismatch
		}
		if !r.Open() {
			return relayapi.ErrPoolClosed
		}
		relayer, miner = relayerAI.Key, r.Miner
	}
	if !minerAI.Key.Equals(miner) {
		return relayapi.ErrAuthorityMismatch
	}

	seeds := relayapi.EscrowSeeds(authority.Key, relayer)
	if err := loaders.LoadUninitializedPDA(escrowAI, seeds, args.Bump); err != nil {
		return err
	}
	tokensSeeds := relayapi.EscrowTokensSeeds(escrowAI.Key)
	tokensBump, err := loaders.LoadDerived(tokensAI, tokensSeeds)
	if err != nil {
		return err
	}
	if err := rewardMint(mintAI); err != nil {
		return err
	}

	escrow := &relaystate.Escrow{
		Authority: authority.Key,
		Bump:      uint64(args.Bump),
		Relayer:   relayer,
	}
	signer := escrowSigner(escrow)
	if err := create(ictx, accounts, authority, escrowAI, relaystate.EscrowSize, relayapi.ProgramID, signer); err != nil {
		return err
	}
	if err := escrowAI.SetData(escrow.Marshal()); err != nil {
		return err
	}

	if err := create(ictx, accounts, authority, tokensAI, token.AccountSize, token.ProgramID, relayapi.WithBump(tokensSeeds, tokensBump)); err != nil {
		return err
	}
	if err := ictx.Invoke(token.InitializeAccount(tokensAI.Key, mintAI.Key, escrowAI.Key), accounts); err != nil {
		return err
	}
	if err := ictx.Invoke(mining.Open(escrowAI.Key, miner, authority.Key), accounts, signer); err != nil {
		return err
	}
	ictx.Logf("relay: opened escrow %s for %s", escrowAI.Key, authority.Key)
	return nil
}

func (p *Program) stake(ictx *host.InvokeContext, accounts []*host.AccountInfo, data []byte) error {
	if err := need(accounts, 9); err != nil {
		return err
	}
	args, err := relayapi.DecodeAmountArgs(data)
	if err != nil {
		return host.InvalidInstructionData
	}
	if args.Amount == 0 {
		return relayapi.ErrInvalidAmount
	}
	authority, escrowAI, tokensAI, senderAI, proofAI := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4]

	if err := loaders.LoadSigner(authority); err != nil {
		return err
	}
	escrow, err := loaders.LoadEscrow(escrowAI, authority.Key, false)
	if err != nil {
		return err
	}
	if _, err := loaders.LoadDerived(tokensAI, relayapi.EscrowTokensSeeds(escrowAI.Key)); err != nil {
		return err
	}
	if _, err := loaders.LoadTokenAccount(tokensAI, escrowAI.Key, mining.MintAddress(), true); err != nil {
		return err
	}
	if _, err := loaders.LoadTokenAccount(senderAI, authority.Key, mining.MintAddress(), true); err != nil {
		return err
	}
	if _, err := loaders.LoadProof(proofAI, escrowAI.Key, true); err != nil {
		return err
	}
	if err := requirePrograms(accounts[7:], tokenID, miningID); err != nil {
		return err
	}

	if err := ictx.Invoke(token.Transfer(senderAI.Key, tokensAI.Key, authority.Key, args.Amount), accounts); err != nil {
		return err
	}
	return ictx.Invoke(mining.Stake(escrowAI.Key, tokensAI.Key, args.Amount), accounts, escrowSigner(escrow))
}

// claim pays out of the escrow's mining balance. The amount is checked by the
// mining ledger, which fails the whole transaction on overdraw.
func (p *Program) claim(ictx *host.InvokeContext, accounts []*host.AccountInfo, data []byte) error {
	if err := need(accounts, 8); err != nil {
		return err
	}
	args, err := relayapi.DecodeAmountArgs(data)
	if err != nil {
		return host.InvalidInstructionData
	}
	authority, beneficiaryAI, escrowAI, proofAI := accounts[0], accounts[1], accounts[2], accounts[3]

	if err := loaders.LoadSigner(authority); err != nil {
		return err
	}
	escrow, err := loaders.LoadEscrow(escrowAI, authority.Key, false)
	if err != nil {
		return err
	}
	if _, err := loaders.LoadProof(proofAI, escrowAI.Key, true); err != nil {
		return err
	}
	if err := requirePrograms(accounts[6:], tokenID, miningID); err != nil {
		return err
	}
	return ictx.Invoke(mining.Claim(escrowAI.Key, beneficiaryAI.Key, args.Amount), accounts, escrowSigner(escrow))
}

func (p *Program) closeEscrow(ictx *host.InvokeContext, accounts []*host.AccountInfo, _ []byte) error {
	if err := need(accounts, 6); err != nil {
		return err
	}
	authority, escrowAI, tokensAI, proofAI := accounts[0], accounts[1], accounts[2], accounts[3]

	if err := loaders.LoadSigner(authority); err != nil {
		return err
	}
	if err := loaders.LoadWritable(authority); err != nil {
		return err
	}
	escrow, err := loaders.LoadEscrow(escrowAI, authority.Key, true)
	if err != nil {
		return err
	}
	proof, err := loaders.LoadProof(proofAI, escrowAI.Key, true)
	if err != nil {
		return err
	}
	if proof.Balance != 0 {
		return relayapi.ErrNonZeroBalance
	}
	if _, err := loaders.LoadDerived(tokensAI, relayapi.EscrowTokensSeeds(escrowAI.Key)); err != nil {
		return err
	}
	custody, err := loaders.LoadTokenAccount(tokensAI, escrowAI.Key, mining.MintAddress(), true)
	if err != nil {
		return err
	}
	if custody.Amount != 0 {
		return relayapi.ErrNonZeroBalance
	}
	if err := requirePrograms(accounts[4:], tokenID, miningID); err != nil {
		return err
	}

	signer := escrowSigner(escrow)
	if err := ictx.Invoke(mining.Close(escrowAI.Key), accounts, signer); err != nil {
		return err
	}
	if err := ictx.Invoke(token.CloseAccount(tokensAI.Key, escrowAI.Key, escrowAI.Key), accounts, signer); err != nil {
		return err
	}
	if err := closeRecord(escrowAI, authority); err != nil {
		return err
	}
	ictx.Logf("relay: closed escrow %s", escrowAI.Key)
	return nil
}

// updateMiner moves an escrow's proof to a new miner. A relayer escrow may only
// follow the miner its relayer declares.
func (p *Program) updateMiner(ictx *host.InvokeContext, accounts []*host.AccountInfo, _ []byte) error {
	if err := need(accounts, 6); err != nil {
		return err
	}
	signerAI, escrowAI, minerAI, proofAI, relayerAI := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4]

	if err := loaders.LoadSigner(signerAI); err != nil {
		return err
	}
	escrow, err := loaders.LoadAnyEscrow(escrowAI, false)
	if err != nil {
		return err
	}
	if escrow.IsDirect() {
		if !signerAI.Key.Equals(escrow.Authority) {
			return relayapi.ErrAuthorityMismatch
		}
	} else {
		if !relayerAI.Key.Equals(escrow.Relayer) {
			return relayapi.ErrAuthorityMismatch
		}
		relayer, err := loaders.LoadAnyRelayer(relayerAI, false)
		if err != nil {
			return err
		}
		if !signerAI.Key.Equals(relayer.Authority) {
			return relayapi.ErrNotAuthorized
		}
		if !minerAI.Key.Equals(relayer.Miner) {
			return relayapi.ErrAuthorityMismatch
		}
	}
	if _, err := loaders.LoadProof(proofAI, escrowAI.Key, true); err != nil {
		return err
	}
	if err := requirePrograms(accounts[5:], miningID); err != nil {
		return err
	}
	return ictx.Invoke(mining.Update(escrowAI.Key, minerAI.Key), accounts, escrowSigner(escrow))
}
