package mining_test

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	"github.com/malbeclabs/orerelay/ledger/pkg/mining"
	"github.com/malbeclabs/orerelay/ledger/pkg/token"
	relaytesting "github.com/malbeclabs/orerelay/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

const rewardRate = 250

type fixture struct {
	bank  *host.Bank
	clock *clockwork.FakeClock
	admin solana.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	bank, err := host.NewBank(host.BankConfig{
		Logger:   relaytesting.NewLogger(),
		Store:    host.NewMemoryStore(),
		Clock:    clock,
		Programs: []host.Program{token.NewProgram(), mining.NewProgram()},
	})
	require.NoError(t, err)
	f := &fixture{bank: bank, clock: clock}
	f.admin = f.wallet(t)
	f.exec(t, []solana.PrivateKey{f.admin}, mining.Initialize(f.admin.PublicKey(), rewardRate))
	return f
}

func (f *fixture) wallet(t *testing.T) solana.PrivateKey {
	t.Helper()
	key := solana.NewWallet().PrivateKey
	require.NoError(t, f.bank.SetAccount(t.Context(), key.PublicKey(), &host.Account{
		Owner:    solana.SystemProgramID,
		Lamports: 1_000_000_000,
	}))
	return key
}

func (f *fixture) try(t *testing.T, signers []solana.PrivateKey, ixs ...host.Instruction) error {
	t.Helper()
	tx := host.NewTransaction(ixs...)
	tx.RecentSlot = f.bank.Slot()
	require.NoError(t, tx.Sign(signers...))
	_, err := f.bank.Execute(t.Context(), tx)
	return err
}

func (f *fixture) exec(t *testing.T, signers []solana.PrivateKey, ixs ...host.Instruction) {
	t.Helper()
	require.NoError(t, f.try(t, signers, ixs...))
}

func (f *fixture) tokenAccount(t *testing.T, owner solana.PrivateKey, amount uint64) solana.PublicKey {
	t.Helper()
	acct := solana.NewWallet().PrivateKey
	ixs := token.CreateAccount(owner.PublicKey(), acct.PublicKey(), mining.MintAddress(), owner.PublicKey())
	if amount > 0 {
		ixs = append(ixs, mining.Airdrop(f.admin.PublicKey(), acct.PublicKey(), amount))
	}
	f.exec(t, []solana.PrivateKey{owner, acct, f.admin}, ixs...)
	return acct.PublicKey()
}

func (f *fixture) proof(t *testing.T, authority solana.PublicKey) *mining.Proof {
	t.Helper()
	addr, _ := mining.ProofAddress(authority)
	acct, err := f.bank.Account(t.Context(), addr)
	require.NoError(t, err)
	proof, err := mining.UnmarshalProof(acct.Data)
	require.NoError(t, err)
	return proof
}

func (f *fixture) tokens(t *testing.T, key solana.PublicKey) uint64 {
	t.Helper()
	acct, err := f.bank.Account(t.Context(), key)
	require.NoError(t, err)
	tok, err := token.UnmarshalAccount(acct.Data)
	require.NoError(t, err)
	return tok.Amount
}

func TestLedger_Mining_Initialize(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	acct, err := f.bank.Account(t.Context(), mining.TreasuryAddress())
	require.NoError(t, err)
	treasury, err := mining.UnmarshalTreasury(acct.Data)
	require.NoError(t, err)
	require.Equal(t, uint64(rewardRate), treasury.RewardRate)
	require.Equal(t, f.admin.PublicKey(), treasury.Admin)

	err = f.try(t, []solana.PrivateKey{f.admin}, mining.Initialize(f.admin.PublicKey(), rewardRate))
	require.ErrorIs(t, err, host.AccountAlreadyInitialized)
}

func TestLedger_Mining_Lifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	user := f.wallet(t)
	source := f.tokenAccount(t, user, 1_000)
	dest := f.tokenAccount(t, user, 0)

	f.exec(t, []solana.PrivateKey{user}, mining.Open(user.PublicKey(), user.PublicKey(), user.PublicKey()))
	proof := f.proof(t, user.PublicKey())
	require.Equal(t, [32]byte{}, proof.LastHash)
	require.Equal(t, user.PublicKey(), proof.Miner)

	f.exec(t, []solana.PrivateKey{user}, mining.Stake(user.PublicKey(), source, 600))
	require.Equal(t, uint64(600), f.proof(t, user.PublicKey()).Balance)
	require.Equal(t, uint64(400), f.tokens(t, source))
	require.Equal(t, uint64(600), f.tokens(t, mining.TreasuryTokensAddress()))

	f.clock.Advance(host.DefaultSlotDuration * 5)
	f.exec(t, []solana.PrivateKey{user}, mining.Mine(user.PublicKey(), user.PublicKey(), 42))
	proof = f.proof(t, user.PublicKey())
	require.Equal(t, uint64(600+rewardRate), proof.Balance)
	require.Equal(t, uint64(rewardRate), proof.TotalRewards)
	require.Equal(t, mining.NextHash([32]byte{}, 42, 5), proof.LastHash)
	require.Equal(t, uint64(5), proof.LastAccrualSlot)

	t.Run("claim beyond balance", func(t *testing.T) {
		err := f.try(t, []solana.PrivateKey{user}, mining.Claim(user.PublicKey(), dest, 600+rewardRate+1))
		require.ErrorIs(t, err, mining.ErrClaimTooLarge)
	})

	t.Run("close with balance", func(t *testing.T) {
		err := f.try(t, []solana.PrivateKey{user}, mining.Close(user.PublicKey()))
		require.ErrorIs(t, err, mining.ErrNonZeroBalance)
	})

	f.exec(t, []solana.PrivateKey{user}, mining.Claim(user.PublicKey(), dest, 600+rewardRate))
	require.Equal(t, uint64(600+rewardRate), f.tokens(t, dest))
	require.Equal(t, uint64(0), f.proof(t, user.PublicKey()).Balance)

	f.exec(t, []solana.PrivateKey{user}, mining.Close(user.PublicKey()))
	addr, _ := mining.ProofAddress(user.PublicKey())
	acct, err := f.bank.Account(t.Context(), addr)
	require.NoError(t, err)
	require.True(t, acct.IsEmpty())
}

func TestLedger_Mining_MinerAuthorization(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	user := f.wallet(t)
	miner := f.wallet(t)
	other := f.wallet(t)
	f.exec(t, []solana.PrivateKey{user}, mining.Open(user.PublicKey(), miner.PublicKey(), user.PublicKey()))

	err := f.try(t, []solana.PrivateKey{other}, mining.Mine(other.PublicKey(), user.PublicKey(), 1))
	require.ErrorIs(t, err, mining.ErrUnauthorized)

	f.exec(t, []solana.PrivateKey{miner}, mining.Mine(miner.PublicKey(), user.PublicKey(), 1))

	f.exec(t, []solana.PrivateKey{user}, mining.Update(user.PublicKey(), other.PublicKey()))
	f.exec(t, []solana.PrivateKey{other}, mining.Mine(other.PublicKey(), user.PublicKey(), 2))
	require.Equal(t, uint64(2*rewardRate), f.proof(t, user.PublicKey()).Balance)

	err = f.try(t, []solana.PrivateKey{other}, mining.Update(other.PublicKey(), other.PublicKey()))
	require.Error(t, err)
}

func TestLedger_Mining_AirdropRequiresAdmin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	user := f.wallet(t)
	dest := f.tokenAccount(t, user, 0)

	err := f.try(t, []solana.PrivateKey{user}, mining.Airdrop(user.PublicKey(), dest, 10))
	require.ErrorIs(t, err, mining.ErrUnauthorized)
}

func TestLedger_Mining_NextHash(t *testing.T) {
	t.Parallel()

	a := mining.NextHash([32]byte{}, 1, 1)
	require.NotEqual(t, [32]byte{}, a)
	require.Equal(t, a, mining.NextHash([32]byte{}, 1, 1))
	require.NotEqual(t, a, mining.NextHash([32]byte{}, 2, 1))
	require.NotEqual(t, a, mining.NextHash([32]byte{}, 1, 2))
	require.NotEqual(t, a, mining.NextHash(a, 1, 1))
}
