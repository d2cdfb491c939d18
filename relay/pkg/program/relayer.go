package program

import (
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	"github.com/malbeclabs/orerelay/ledger/pkg/mining"
	"github.com/malbeclabs/orerelay/ledger/pkg/token"
	relayapi "github.com/malbeclabs/orerelay/relay/pkg/api"
	"github.com/malbeclabs/orerelay/relay/pkg/loaders"
	relaystate "github.com/malbeclabs/orerelay/relay/pkg/state"
)

// relayerSigner is the derivation path that lets the relay sign for a relayer
// or pool.
func relayerSigner(r *relaystate.Relayer) [][]byte {
	return relayapi.WithBump(relayapi.RelayerSeeds(r.Authority), uint8(r.Bump))
}

func newRelayer(authority *host.AccountInfo, args relayapi.RelayerArgs) *relaystate.Relayer {
	return &relaystate.Relayer{
		Authority:   authority.Key,
		Bump:        uint64(args.Bump),
		Commission:  args.Commission,
		Miner:       args.Miner,
		Beneficiary: args.Beneficiary,
		IsOpen:      1,
		URL:         args.URL,
	}
}

func (p *Program) openRelayer(ictx *host.InvokeContext, accounts []*host.AccountInfo, data []byte) error {
	if err := need(accounts, 3); err != nil {
		return err
	}
	args, err := relayapi.DecodeRelayerArgs(data)
	if err != nil {
		return host.InvalidInstructionData
	}
	authority, relayerAI := accounts[0], accounts[1]

	if err := loaders.LoadSigner(authority); err != nil {
		return err
	}
	if err := p.checkAdmin(accounts, 3); err != nil {
		return err
	}
	if err := requirePrograms(accounts[2:], systemID); err != nil {
		return err
	}
	if err := loaders.LoadUninitializedPDA(relayerAI, relayapi.RelayerSeeds(authority.Key), args.Bump); err != nil {
		return err
	}

	relayer := newRelayer(authority, args)
	if err := create(ictx, accounts, authority, relayerAI, relaystate.RelayerSize, relayapi.ProgramID, relayerSigner(relayer)); err != nil {
		return err
	}
	if err := relayerAI.SetData(relayer.Marshal()); err != nil {
		return err
	}
	ictx.Logf("relay: opened relayer %s with commission %d", relayerAI.Key, relayer.Commission)
	return nil
}

func (p *Program) openPool(ictx *host.InvokeContext, accounts []*host.AccountInfo, data []byte) error {
	if err := need(accounts, 10); err != nil {
		return err
	}
	args, err := relayapi.DecodeRelayerArgs(data)
	if err != nil {
		return host.InvalidInstructionData
	}
	authority, poolAI, minerAI, shareMintAI, poolTokensAI, mintAI :=
		accounts[0], accounts[1], accounts[2], accounts[3], accounts[4], accounts[6]

	if err := loaders.LoadSigner(authority); err != nil {
		return err
	}
	if err := p.checkAdmin(accounts, 10); err != nil {
		return err
	}
	if err := requirePrograms(accounts[7:], systemID, tokenID, miningID); err != nil {
		return err
	}
	if !minerAI.Key.Equals(args.Miner) {
		return relayapi.ErrAuthorityMismatch
	}
	if err := loaders.LoadUninitializedPDA(poolAI, relayapi.RelayerSeeds(authority.Key), args.Bump); err != nil {
		return err
	}
	shareMintSeeds := relayapi.ShareMintSeeds(poolAI.Key)
	shareMintBump, err := loaders.LoadDerived(shareMintAI, shareMintSeeds)
	if err != nil {
		return err
	}
	poolTokensSeeds := relayapi.PoolTokensSeeds(poolAI.Key)
	poolTokensBump, err := loaders.LoadDerived(poolTokensAI, poolTokensSeeds)
	if err != nil {
		return err
	}
	if err := rewardMint(mintAI); err != nil {
		return err
	}

	pool := newRelayer(authority, args)
	pool.Flags = relaystate.FlagPooled
	pool.ShareMint = shareMintAI.Key
	signer := relayerSigner(pool)
	if err := create(ictx, accounts, authority, poolAI, relaystate.RelayerSize, relayapi.ProgramID, signer); err != nil {
		return err
	}
	if err := poolAI.SetData(pool.Marshal()); err != nil {
		return err
	}

	if err := create(ictx, accounts, authority, shareMintAI, token.MintSize, token.ProgramID, relayapi.WithBump(shareMintSeeds, shareMintBump)); err != nil {
		return err
	}
	if err := ictx.Invoke(token.InitializeMint(shareMintAI.Key, poolAI.Key, mining.RewardDecimals), accounts); err != nil {
		return err
	}
	if err := create(ictx, accounts, authority, poolTokensAI, token.AccountSize, token.ProgramID, relayapi.WithBump(poolTokensSeeds, poolTokensBump)); err != nil {
		return err
	}
	if err := ictx.Invoke(token.InitializeAccount(poolTokensAI.Key, mintAI.Key, poolAI.Key), accounts); err != nil {
		return err
	}
	if err := ictx.Invoke(mining.Open(poolAI.Key, minerAI.Key, authority.Key), accounts, signer); err != nil {
		return err
	}
	ictx.Logf("relay: opened pool %s", poolAI.Key)
	return nil
}

// updateRelayer rewrites the mutable fields of a relayer. A pool's proof follows
// the new miner in the same instruction. Commission can only be lowered: escrows
// opened under a rate never pay more than it.
func (p *Program) updateRelayer(ictx *host.InvokeContext, accounts []*host.AccountInfo, data []byte) error {
	if err := need(accounts, 2); err != nil {
		return err
	}
	args, err := relayapi.DecodeUpdateRelayerArgs(data)
	if err != nil {
		return host.InvalidInstructionData
	}
	authority, relayerAI := accounts[0], accounts[1]

	if err := loaders.LoadSigner(authority); err != nil {
		return err
	}
	relayer, err := loaders.LoadRelayer(relayerAI, authority.Key, true)
	if err != nil {
		return err
	}
	if args.Commission > relayer.Commission {
		return relayapi.ErrInvalidAmount
	}
	if relayer.IsPooled() {
		if err := need(accounts, 5); err != nil {
			return err
		}
		if !accounts[2].Key.Equals(args.Miner) {
			return relayapi.ErrAuthorityMismatch
		}
		if _, err := loaders.LoadProof(accounts[3], relayerAI.Key, true); err != nil {
			return err
		}
		if err := requirePrograms(accounts[4:], miningID); err != nil {
			return err
		}
	}

	relayer.Commission = args.Commission
	relayer.Miner = args.Miner
	relayer.Beneficiary = args.Beneficiary
	relayer.URL = args.URL
	relayer.IsOpen = 0
	if args.IsOpen {
		relayer.IsOpen = 1
	}
	if err := relayerAI.SetData(relayer.Marshal()); err != nil {
		return err
	}
	if relayer.IsPooled() {
		return ictx.Invoke(mining.Update(relayerAI.Key, args.Miner), accounts, relayerSigner(relayer))
	}
	return nil
}
