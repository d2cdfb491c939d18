package program

import (
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	"github.com/malbeclabs/orerelay/ledger/pkg/mining"
	"github.com/malbeclabs/orerelay/ledger/pkg/token"
	relayapi "github.com/malbeclabs/orerelay/relay/pkg/api"
	"github.com/malbeclabs/orerelay/relay/pkg/loaders"
	"github.com/malbeclabs/orerelay/relay/pkg/metrics"
	"github.com/malbeclabs/orerelay/relay/pkg/shares"
	relaystate "github.com/malbeclabs/orerelay/relay/pkg/state"
)

func (p *Program) openDelegate(ictx *host.InvokeContext, accounts []*host.AccountInfo, data []byte) error {
	if err := need(accounts, 4); err != nil {
		return err
	}
	args, err := relayapi.DecodeBumpArgs(data)
	if err != nil {
		return host.InvalidInstructionData
	}
	authority, poolAI, delegateAI := accounts[0], accounts[1], accounts[2]

	if err := loaders.LoadSigner(authority); err != nil {
		return err
	}
	pool, err := loaders.LoadAnyPool(poolAI, false)
	if err != nil {
		return err
	}
	if !pool.Open() {
		return relayapi.ErrPoolClosed
	}
	if err := requirePrograms(accounts[3:], systemID); err != nil {
		return err
	}
	seeds := relayapi.DelegateSeeds(authority.Key, poolAI.Key)
	if err := loaders.LoadUninitializedPDA(delegateAI, seeds, args.Bump); err != nil {
		return err
	}

	if err := create(ictx, accounts, authority, delegateAI, relaystate.DelegateSize, relayapi.ProgramID, relayapi.WithBump(seeds, args.Bump)); err != nil {
		return err
	}
	delegate := &relaystate.Delegate{Authority: authority.Key, Pool: poolAI.Key}
	return delegateAI.SetData(delegate.Marshal())
}

// poolShares loads the share mint of pool and the caller's share account.
func poolShares(pool *relaystate.Relayer, authority, shareMintAI, sharesAI *host.AccountInfo) (*token.Mint, *token.Account, error) {
	if !shareMintAI.Key.Equals(pool.ShareMint) {
		return nil, nil, relayapi.ErrInvalidDerivation
	}
	mint, err := loaders.LoadMint(shareMintAI, true)
	if err != nil {
		return nil, nil, err
	}
	held, err := loaders.LoadTokenAccount(sharesAI, authority.Key, pool.ShareMint, true)
	if err != nil {
		return nil, nil, err
	}
	return mint, held, nil
}

// deposit stakes amount into the pool's mining position and mints shares priced
// against the position's balance before the deposit.
func (p *Program) deposit(ictx *host.InvokeContext, accounts []*host.AccountInfo, data []byte) error {
	if err := need(accounts, 12); err != nil {
		return err
	}
	args, err := relayapi.DecodeAmountArgs(data)
	if err != nil {
		return host.InvalidInstructionData
	}
	if args.Amount == 0 {
		return relayapi.ErrInvalidAmount
	}
	authority, poolAI, delegateAI, senderAI, poolTokensAI, sharesAI, shareMintAI, proofAI :=
		accounts[0], accounts[1], accounts[2], accounts[3], accounts[4], accounts[5], accounts[6], accounts[7]

	if err := loaders.LoadSigner(authority); err != nil {
		return err
	}
	pool, err := loaders.LoadAnyPool(poolAI, true)
	if err != nil {
		return err
	}
	if !pool.Open() {
		return relayapi.ErrPoolClosed
	}
	delegate, err := loaders.LoadDelegate(delegateAI, authority.Key, poolAI.Key, true)
	if err != nil {
		return err
	}
	if _, err := loaders.LoadTokenAccount(senderAI, authority.Key, mining.MintAddress(), true); err != nil {
		return err
	}
	if _, err := loaders.LoadDerived(poolTokensAI, relayapi.PoolTokensSeeds(poolAI.Key)); err != nil {
		return err
	}
	if _, err := loaders.LoadTokenAccount(poolTokensAI, poolAI.Key, mining.MintAddress(), true); err != nil {
		return err
	}
	mint, _, err := poolShares(pool, authority, shareMintAI, sharesAI)
	if err != nil {
		return err
	}
	proof, err := loaders.LoadProof(proofAI, poolAI.Key, true)
	if err != nil {
		return err
	}
	if err := requirePrograms(accounts[10:], tokenID, miningID); err != nil {
		return err
	}

	minted := shares.ForDeposit(args.Amount, mint.Supply, proof.Balance)
	if minted == 0 {
		return relayapi.ErrInvalidAmount
	}
	delegate.Balance = shares.SaturatingAdd(delegate.Balance, args.Amount)
	pool.Balance = shares.SaturatingAdd(pool.Balance, args.Amount)
	if err := delegateAI.SetData(delegate.Marshal()); err != nil {
		return err
	}
	if err := poolAI.SetData(pool.Marshal()); err != nil {
		return err
	}

	signer := relayerSigner(pool)
	if err := ictx.Invoke(token.Transfer(senderAI.Key, poolTokensAI.Key, authority.Key, args.Amount), accounts); err != nil {
		return err
	}
	if err := ictx.Invoke(mining.Stake(poolAI.Key, poolTokensAI.Key, args.Amount), accounts, signer); err != nil {
		return err
	}
	if err := ictx.Invoke(token.MintTo(shareMintAI.Key, sharesAI.Key, poolAI.Key, minted), accounts, signer); err != nil {
		return err
	}
	ictx.Logf("relay: deposited %d for %d shares", args.Amount, minted)
	metrics.SharesMinted.Add(float64(minted))
	return nil
}

// withdraw burns shares for their proportional part of the pool's mining
// balance. The caller's principal shrinks by the same fraction of their
// holding.
func (p *Program) withdraw(ictx *host.InvokeContext, accounts []*host.AccountInfo, data []byte) error {
	if err := need(accounts, 11); err != nil {
		return err
	}
	args, err := relayapi.DecodeAmountArgs(data)
	if err != nil {
		return host.InvalidInstructionData
	}
	if args.Amount == 0 {
		return relayapi.ErrInvalidAmount
	}
	authority, poolAI, delegateAI, beneficiaryAI, sharesAI, shareMintAI, proofAI :=
		accounts[0], accounts[1], accounts[2], accounts[3], accounts[4], accounts[5], accounts[6]

	if err := loaders.LoadSigner(authority); err != nil {
		return err
	}
	pool, err := loaders.LoadAnyPool(poolAI, true)
	if err != nil {
		return err
	}
	delegate, err := loaders.LoadDelegate(delegateAI, authority.Key, poolAI.Key, true)
	if err != nil {
		return err
	}
	mint, held, err := poolShares(pool, authority, shareMintAI, sharesAI)
	if err != nil {
		return err
	}
	if args.Amount > held.Amount {
		return relayapi.ErrInsufficientBalance
	}
	proof, err := loaders.LoadProof(proofAI, poolAI.Key, true)
	if err != nil {
		return err
	}
	if err := requirePrograms(accounts[9:], tokenID, miningID); err != nil {
		return err
	}

	claim := shares.ClaimFor(args.Amount, mint.Supply, proof.Balance)
	debit := shares.PrincipalFor(delegate.Balance, args.Amount, held.Amount)
	delegate.Balance = shares.SaturatingSub(delegate.Balance, debit)
	pool.Balance = shares.SaturatingSub(pool.Balance, debit)
	if err := delegateAI.SetData(delegate.Marshal()); err != nil {
		return err
	}
	if err := poolAI.SetData(pool.Marshal()); err != nil {
		return err
	}

	if claim > 0 {
		ix := mining.Claim(poolAI.Key, beneficiaryAI.Key, claim)
		if err := ictx.Invoke(ix, accounts, relayerSigner(pool)); err != nil {
			return err
		}
	}
	if err := ictx.Invoke(token.Burn(sharesAI.Key, shareMintAI.Key, authority.Key, args.Amount), accounts); err != nil {
		return err
	}
	ictx.Logf("relay: withdrew %d shares for %d", args.Amount, claim)
	metrics.SharesBurned.Add(float64(args.Amount))
	return nil
}

func (p *Program) closeDelegate(ictx *host.InvokeContext, accounts []*host.AccountInfo, _ []byte) error {
	if err := need(accounts, 3); err != nil {
		return err
	}
	authority, poolAI, delegateAI := accounts[0], accounts[1], accounts[2]

	if err := loaders.LoadSigner(authority); err != nil {
		return err
	}
	if err := loaders.LoadWritable(authority); err != nil {
		return err
	}
	delegate, err := loaders.LoadDelegate(delegateAI, authority.Key, poolAI.Key, true)
	if err != nil {
		return err
	}
	if delegate.Balance != 0 {
		return relayapi.ErrNonZeroBalance
	}
	if err := closeRecord(delegateAI, authority); err != nil {
		return err
	}
	ictx.Logf("relay: closed delegate %s", delegateAI.Key)
	return nil
}
