package relayapi

import (
	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	"github.com/malbeclabs/orerelay/ledger/pkg/mining"
	"github.com/malbeclabs/orerelay/ledger/pkg/token"
)

// RelayerParams describes a relayer or pool at open time.
type RelayerParams struct {
	Commission  uint64
	Miner       solana.PublicKey
	Beneficiary solana.PublicKey
	URL         string
}

func (p RelayerParams) args(bump uint8) (RelayerArgs, error) {
	url, err := EncodeURL(p.URL)
	if err != nil {
		return RelayerArgs{}, err
	}
	return RelayerArgs{
		Bump:        bump,
		Commission:  p.Commission,
		Miner:       p.Miner,
		Beneficiary: p.Beneficiary,
		URL:         url,
	}, nil
}

func relayIx(data []byte, metas ...*solana.AccountMeta) host.Instruction {
	return host.Instruction{ProgramID: ProgramID, Accounts: metas, Data: data}
}

// directKey stands in for the relayer of a direct escrow.
func directKey(relayer solana.PublicKey) solana.PublicKey {
	if relayer.IsZero() {
		return solana.SystemProgramID
	}
	return relayer
}

func withAdmin(metas []*solana.AccountMeta, admin solana.PublicKey) []*solana.AccountMeta {
	if admin.IsZero() {
		return metas
	}
	return append(metas, solana.Meta(admin).SIGNER())
}

// OpenRelayer registers a relayer record for authority. When the program has an
// administrator, admin must be it and sign; otherwise pass the zero key.
//
// Accounts: [authority s w, relayer w, system, admin s?]
func OpenRelayer(authority, admin solana.PublicKey, params RelayerParams) (host.Instruction, error) {
	relayer, bump := RelayerAddress(authority)
	args, err := params.args(bump)
	if err != nil {
		return host.Instruction{}, err
	}
	metas := []*solana.AccountMeta{
		solana.Meta(authority).WRITE().SIGNER(),
		solana.Meta(relayer).WRITE(),
		solana.Meta(solana.SystemProgramID),
	}
	return relayIx(args.encode(OpOpenRelayer), withAdmin(metas, admin)...), nil
}

// OpenPool registers a pooled relayer, its share mint, its custody token account
// and its mining proof.
//
// Accounts: [authority s w, pool w, miner, share_mint w, pool_tokens w, proof w,
// reward_mint, system, token, mining, admin s?]
func OpenPool(authority, admin solana.PublicKey, params RelayerParams) (host.Instruction, error) {
	pool, bump := RelayerAddress(authority)
	args, err := params.args(bump)
	if err != nil {
		return host.Instruction{}, err
	}
	shareMint, _ := ShareMintAddress(pool)
	poolTokens, _ := PoolTokensAddress(pool)
	proof, _ := mining.ProofAddress(pool)
	metas := []*solana.AccountMeta{
		solana.Meta(authority).WRITE().SIGNER(),
		solana.Meta(pool).WRITE(),
		solana.Meta(params.Miner),
		solana.Meta(shareMint).WRITE(),
		solana.Meta(poolTokens).WRITE(),
		solana.Meta(proof).WRITE(),
		solana.Meta(mining.MintAddress()),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(token.ProgramID),
		solana.Meta(mining.ProgramID),
	}
	return relayIx(args.encode(OpOpenPool), withAdmin(metas, admin)...), nil
}

// UpdateRelayer replaces the mutable fields of the relayer or pool owned by
// authority. A pool also moves its proof to the new miner.
//
// Accounts: [authority s, relayer w] or, for pools,
// [authority s, pool w, miner, proof w, mining]
func UpdateRelayer(authority solana.PublicKey, pooled bool, args UpdateRelayerArgs) host.Instruction {
	relayer, _ := RelayerAddress(authority)
	metas := []*solana.AccountMeta{
		solana.Meta(authority).SIGNER(),
		solana.Meta(relayer).WRITE(),
	}
	if pooled {
		proof, _ := mining.ProofAddress(relayer)
		metas = append(metas,
			solana.Meta(args.Miner),
			solana.Meta(proof).WRITE(),
			solana.Meta(mining.ProgramID),
		)
	}
	return relayIx(args.encode(), metas...)
}

// OpenEscrow opens the escrow of authority under relayer, or a direct escrow
// mined by authority itself when relayer is zero. miner must be the relayer's
// miner, or authority for a direct escrow.
//
// Accounts: [authority s w, relayer, miner, escrow w, escrow_tokens w, proof w,
// reward_mint, system, token, mining]
func OpenEscrow(authority, relayer, miner solana.PublicKey) host.Instruction {
	escrow, bump := EscrowAddress(authority, relayer)
	escrowTokens, _ := EscrowTokensAddress(escrow)
	proof, _ := mining.ProofAddress(escrow)
	return relayIx(BumpArgs{Bump: bump}.encode(OpOpenEscrow),
		solana.Meta(authority).WRITE().SIGNER(),
		solana.Meta(directKey(relayer)),
		solana.Meta(miner),
		solana.Meta(escrow).WRITE(),
		solana.Meta(escrowTokens).WRITE(),
		solana.Meta(proof).WRITE(),
		solana.Meta(mining.MintAddress()),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(token.ProgramID),
		solana.Meta(mining.ProgramID),
	)
}

// Stake moves amount from sender, a reward token account owned by authority,
// into the escrow's mining position.
//
// Accounts: [authority s, escrow, escrow_tokens w, sender w, proof w, treasury w,
// treasury_tokens w, token, mining]
func Stake(authority, relayer, sender solana.PublicKey, amount uint64) host.Instruction {
	escrow, _ := EscrowAddress(authority, relayer)
	escrowTokens, _ := EscrowTokensAddress(escrow)
	proof, _ := mining.ProofAddress(escrow)
	return relayIx(AmountArgs{Amount: amount}.encode(OpStake),
		solana.Meta(authority).SIGNER(),
		solana.Meta(escrow),
		solana.Meta(escrowTokens).WRITE(),
		solana.Meta(sender).WRITE(),
		solana.Meta(proof).WRITE(),
		solana.Meta(mining.TreasuryAddress()).WRITE(),
		solana.Meta(mining.TreasuryTokensAddress()).WRITE(),
		solana.Meta(token.ProgramID),
		solana.Meta(mining.ProgramID),
	)
}

// Claim pays amount of the escrow's mining balance to beneficiary.
//
// Accounts: [authority s, beneficiary w, escrow, proof w, treasury w,
// treasury_tokens w, token, mining]
func Claim(authority, relayer, beneficiary solana.PublicKey, amount uint64) host.Instruction {
	escrow, _ := EscrowAddress(authority, relayer)
	proof, _ := mining.ProofAddress(escrow)
	return relayIx(AmountArgs{Amount: amount}.encode(OpClaim),
		solana.Meta(authority).SIGNER(),
		solana.Meta(beneficiary).WRITE(),
		solana.Meta(escrow),
		solana.Meta(proof).WRITE(),
		solana.Meta(mining.TreasuryAddress()).WRITE(),
		solana.Meta(mining.TreasuryTokensAddress()).WRITE(),
		solana.Meta(token.ProgramID),
		solana.Meta(mining.ProgramID),
	)
}

// CloseEscrow deletes an escrow whose mining balance is zero, along with its
// proof and custody account, returning all rent to authority.
//
// Accounts: [authority s w, escrow w, escrow_tokens w, proof w, token, mining]
func CloseEscrow(authority, relayer solana.PublicKey) host.Instruction {
	escrow, _ := EscrowAddress(authority, relayer)
	escrowTokens, _ := EscrowTokensAddress(escrow)
	proof, _ := mining.ProofAddress(escrow)
	return relayIx(encode(OpCloseEscrow, nil),
		solana.Meta(authority).WRITE().SIGNER(),
		solana.Meta(escrow).WRITE(),
		solana.Meta(escrowTokens).WRITE(),
		solana.Meta(proof).WRITE(),
		solana.Meta(token.ProgramID),
		solana.Meta(mining.ProgramID),
	)
}

// Collect pays the relayer's commission out of escrow for the escrow's latest
// accrual. miner must be the relayer's miner.
//
// Accounts: [miner s, relayer, escrow w, beneficiary w, proof w, treasury w,
// treasury_tokens w, token, mining]
func Collect(miner, relayer, escrow, beneficiary solana.PublicKey) host.Instruction {
	proof, _ := mining.ProofAddress(escrow)
	return relayIx(encode(OpCollect, nil),
		solana.Meta(miner).SIGNER(),
		solana.Meta(relayer),
		solana.Meta(escrow).WRITE(),
		solana.Meta(beneficiary).WRITE(),
		solana.Meta(proof).WRITE(),
		solana.Meta(mining.TreasuryAddress()).WRITE(),
		solana.Meta(mining.TreasuryTokensAddress()).WRITE(),
		solana.Meta(token.ProgramID),
		solana.Meta(mining.ProgramID),
	)
}

// UpdateMiner points the escrow's proof at miner. For a relayer escrow the
// signer is the relayer authority; for a direct escrow relayer is zero and the
// signer is the escrow authority.
//
// Accounts: [signer s, escrow, miner, proof w, relayer, mining]
func UpdateMiner(signer, escrow, miner, relayer solana.PublicKey) host.Instruction {
	proof, _ := mining.ProofAddress(escrow)
	return relayIx(encode(OpUpdateMiner, nil),
		solana.Meta(signer).SIGNER(),
		solana.Meta(escrow),
		solana.Meta(miner),
		solana.Meta(proof).WRITE(),
		solana.Meta(directKey(relayer)),
		solana.Meta(mining.ProgramID),
	)
}

// OpenDelegate opens the delegate record of authority in pool.
//
// Accounts: [authority s w, pool, delegate w, system]
func OpenDelegate(authority, pool solana.PublicKey) host.Instruction {
	delegate, bump := DelegateAddress(authority, pool)
	return relayIx(BumpArgs{Bump: bump}.encode(OpOpenDelegate),
		solana.Meta(authority).WRITE().SIGNER(),
		solana.Meta(pool),
		solana.Meta(delegate).WRITE(),
		solana.Meta(solana.SystemProgramID),
	)
}

// Deposit stakes amount from sender into pool and mints shares to the share
// token account.
//
// Accounts: [authority s, pool w, delegate w, sender w, pool_tokens w, shares w,
// share_mint w, proof w, treasury w, treasury_tokens w, token, mining]
func Deposit(authority, pool, sender, shares solana.PublicKey, amount uint64) host.Instruction {
	delegate, _ := DelegateAddress(authority, pool)
	poolTokens, _ := PoolTokensAddress(pool)
	shareMint, _ := ShareMintAddress(pool)
	proof, _ := mining.ProofAddress(pool)
	return relayIx(AmountArgs{Amount: amount}.encode(OpDeposit),
		solana.Meta(authority).SIGNER(),
		solana.Meta(pool).WRITE(),
		solana.Meta(delegate).WRITE(),
		solana.Meta(sender).WRITE(),
		solana.Meta(poolTokens).WRITE(),
		solana.Meta(shares).WRITE(),
		solana.Meta(shareMint).WRITE(),
		solana.Meta(proof).WRITE(),
		solana.Meta(mining.TreasuryAddress()).WRITE(),
		solana.Meta(mining.TreasuryTokensAddress()).WRITE(),
		solana.Meta(token.ProgramID),
		solana.Meta(mining.ProgramID),
	)
}

// Withdraw burns amount shares and pays their value to beneficiary.
//
// Accounts: [authority s, pool w, delegate w, beneficiary w, shares w,
// share_mint w, proof w, treasury w, treasury_tokens w, token, mining]
func Withdraw(authority, pool, beneficiary, shares solana.PublicKey, amount uint64) host.Instruction {
	delegate, _ := DelegateAddress(authority, pool)
	shareMint, _ := ShareMintAddress(pool)
	proof, _ := mining.ProofAddress(pool)
	return relayIx(AmountArgs{Amount: amount}.encode(OpWithdraw),
		solana.Meta(authority).SIGNER(),
		solana.Meta(pool).WRITE(),
		solana.Meta(delegate).WRITE(),
		solana.Meta(beneficiary).WRITE(),
		solana.Meta(shares).WRITE(),
		solana.Meta(shareMint).WRITE(),
		solana.Meta(proof).WRITE(),
		solana.Meta(mining.TreasuryAddress()).WRITE(),
		solana.Meta(mining.TreasuryTokensAddress()).WRITE(),
		solana.Meta(token.ProgramID),
		solana.Meta(mining.ProgramID),
	)
}

// CloseDelegate deletes an empty delegate record.
//
// Accounts: [authority s w, pool, delegate w]
func CloseDelegate(authority, pool solana.PublicKey) host.Instruction {
	delegate, _ := DelegateAddress(authority, pool)
	return relayIx(encode(OpCloseDelegate, nil),
		solana.Meta(authority).WRITE().SIGNER(),
		solana.Meta(pool),
		solana.Meta(delegate).WRITE(),
	)
}
