package program_test

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	"github.com/malbeclabs/orerelay/ledger/pkg/mining"
	relayapi "github.com/malbeclabs/orerelay/relay/pkg/api"
	"github.com/malbeclabs/orerelay/relay/pkg/localnet"
	relaystate "github.com/malbeclabs/orerelay/relay/pkg/state"
	relaytesting "github.com/malbeclabs/orerelay/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

const reward = 100

type fixture struct {
	net *localnet.Localnet
}

func newFixture(t *testing.T, admin solana.PublicKey) *fixture {
	t.Helper()
	net, err := localnet.New(t.Context(), localnet.Config{
		Logger:     relaytesting.NewLogger(),
		Store:      host.NewMemoryStore(),
		Clock:      clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0)),
		Treasury:   solana.NewWallet().PrivateKey,
		RelayAdmin: admin,
		RewardRate: reward,
	})
	require.NoError(t, err)
	return &fixture{net: net}
}

func (f *fixture) wallet(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := f.net.NewWallet(t.Context())
	require.NoError(t, err)
	return key
}

func (f *fixture) exec(t *testing.T, signers []solana.PrivateKey, ixs ...host.Instruction) {
	t.Helper()
	require.NoError(t, f.try(t, signers, ixs...))
}

func (f *fixture) try(t *testing.T, signers []solana.PrivateKey, ixs ...host.Instruction) error {
	t.Helper()
	_, err := f.net.Send(t.Context(), signers, ixs...)
	return err
}

func (f *fixture) tokens(t *testing.T, owner solana.PrivateKey, mint solana.PublicKey, amount uint64) solana.PublicKey {
	t.Helper()
	key, err := f.net.NewTokenAccount(t.Context(), owner, mint, amount)
	require.NoError(t, err)
	return key
}

func (f *fixture) balance(t *testing.T, key solana.PublicKey) uint64 {
	t.Helper()
	amount, err := f.net.TokenBalance(t.Context(), key)
	require.NoError(t, err)
	return amount
}

func (f *fixture) supply(t *testing.T, mint solana.PublicKey) uint64 {
	t.Helper()
	supply, err := f.net.Supply(t.Context(), mint)
	require.NoError(t, err)
	return supply
}

func (f *fixture) proof(t *testing.T, authority solana.PublicKey) *mining.Proof {
	t.Helper()
	proof, err := f.net.Proof(t.Context(), authority)
	require.NoError(t, err)
	return proof
}

func (f *fixture) account(t *testing.T, key solana.PublicKey) *host.Account {
	t.Helper()
	acct, err := f.net.Bank().Account(t.Context(), key)
	require.NoError(t, err)
	return acct
}

func (f *fixture) escrow(t *testing.T, key solana.PublicKey) *relaystate.Escrow {
	t.Helper()
	escrow, err := relaystate.UnmarshalEscrow(f.account(t, key).Data)
	require.NoError(t, err)
	return escrow
}

func (f *fixture) relayer(t *testing.T, key solana.PublicKey) *relaystate.Relayer {
	t.Helper()
	relayer, err := relaystate.UnmarshalRelayer(f.account(t, key).Data)
	require.NoError(t, err)
	return relayer
}

func (f *fixture) delegate(t *testing.T, key solana.PublicKey) *relaystate.Delegate {
	t.Helper()
	delegate, err := relaystate.UnmarshalDelegate(f.account(t, key).Data)
	require.NoError(t, err)
	return delegate
}

func (f *fixture) mine(t *testing.T, miner solana.PrivateKey, authority solana.PublicKey, nonce uint64) {
	t.Helper()
	require.NoError(t, f.net.Mine(t.Context(), miner, authority, nonce))
}

type relayerKeys struct {
	authority   solana.PrivateKey
	miner       solana.PrivateKey
	beneficiary solana.PublicKey
	address     solana.PublicKey
}

func (f *fixture) openRelayer(t *testing.T, commission uint64) relayerKeys {
	t.Helper()
	r := relayerKeys{authority: f.wallet(t), miner: f.wallet(t)}
	r.beneficiary = f.tokens(t, r.authority, mining.MintAddress(), 0)
	ix, err := relayapi.OpenRelayer(r.authority.PublicKey(), solana.PublicKey{}, relayapi.RelayerParams{
		Commission:  commission,
		Miner:       r.miner.PublicKey(),
		Beneficiary: r.beneficiary,
		URL:         "https://relayer.example.com",
	})
	require.NoError(t, err)
	f.exec(t, []solana.PrivateKey{r.authority}, ix)
	r.address, _ = relayapi.RelayerAddress(r.authority.PublicKey())
	return r
}

func (f *fixture) openPool(t *testing.T) relayerKeys {
	t.Helper()
	r := relayerKeys{authority: f.wallet(t), miner: f.wallet(t)}
	ix, err := relayapi.OpenPool(r.authority.PublicKey(), solana.PublicKey{}, relayapi.RelayerParams{
		Miner: r.miner.PublicKey(),
		URL:   "https://pool.example.com",
	})
	require.NoError(t, err)
	f.exec(t, []solana.PrivateKey{r.authority}, ix)
	r.address, _ = relayapi.RelayerAddress(r.authority.PublicKey())
	return r
}

func requireCode(t *testing.T, err error, want error) {
	t.Helper()
	var txErr *host.TransactionError
	require.ErrorAs(t, err, &txErr)
	require.ErrorIs(t, err, want)
	require.Equal(t, host.AbortCode(want), txErr.Code())
}

func mustURL(t *testing.T, s string) [relayapi.URLSize]byte {
	t.Helper()
	url, err := relayapi.EncodeURL(s)
	require.NoError(t, err)
	return url
}

func TestRelay_Program_EscrowLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, solana.PublicKey{})
	r := f.openRelayer(t, 10)

	user := f.wallet(t)
	funds := f.tokens(t, user, mining.MintAddress(), 1_000)
	escrow, _ := relayapi.EscrowAddress(user.PublicKey(), r.address)
	escrowTokens, _ := relayapi.EscrowTokensAddress(escrow)

	f.exec(t, []solana.PrivateKey{user},
		relayapi.OpenEscrow(user.PublicKey(), r.address, r.miner.PublicKey()),
		relayapi.Stake(user.PublicKey(), r.address, funds, 1_000),
	)
	rec := f.escrow(t, escrow)
	require.Equal(t, user.PublicKey(), rec.Authority)
	require.Equal(t, r.address, rec.Relayer)
	require.False(t, rec.IsDirect())
	require.Equal(t, uint64(0), f.balance(t, funds))
	require.Equal(t, uint64(1_000), f.proof(t, escrow).Balance)
	require.Equal(t, r.miner.PublicKey(), f.proof(t, escrow).Miner)

	f.mine(t, r.miner, escrow, 1)
	require.Equal(t, uint64(1_000+reward), f.proof(t, escrow).Balance)

	collect := relayapi.Collect(r.miner.PublicKey(), r.address, escrow, r.beneficiary)
	f.exec(t, []solana.PrivateKey{r.miner}, collect)
	require.Equal(t, uint64(10), f.balance(t, r.beneficiary))
	require.Equal(t, uint64(1_000+reward-10), f.proof(t, escrow).Balance)
	require.Equal(t, f.proof(t, escrow).LastHash, f.escrow(t, escrow).LastHash)

	t.Run("second collect for the same accrual fails", func(t *testing.T) {
		requireCode(t, f.try(t, []solana.PrivateKey{r.miner}, collect), relayapi.ErrAlreadyCollected)
		require.Equal(t, uint64(10), f.balance(t, r.beneficiary))
	})

	t.Run("close with a balance is rejected", func(t *testing.T) {
		err := f.try(t, []solana.PrivateKey{user}, relayapi.CloseEscrow(user.PublicKey(), r.address))
		requireCode(t, err, relayapi.ErrNonZeroBalance)
	})

	payout := f.tokens(t, user, mining.MintAddress(), 0)
	f.exec(t, []solana.PrivateKey{user}, relayapi.Claim(user.PublicKey(), r.address, payout, 1_000+reward-10))
	require.Equal(t, uint64(1_000+reward-10), f.balance(t, payout))

	lamports := f.account(t, user.PublicKey()).Lamports
	f.exec(t, []solana.PrivateKey{user}, relayapi.CloseEscrow(user.PublicKey(), r.address))
	proofAddr, _ := mining.ProofAddress(escrow)
	for _, key := range []solana.PublicKey{escrow, escrowTokens, proofAddr} {
		require.True(t, f.account(t, key).IsEmpty(), key.String())
	}
	require.Greater(t, f.account(t, user.PublicKey()).Lamports, lamports)
}

func TestRelay_Program_DirectEscrow(t *testing.T) {
	t.Parallel()
	f := newFixture(t, solana.PublicKey{})

	user := f.wallet(t)
	funds := f.tokens(t, user, mining.MintAddress(), 500)
	escrow, _ := relayapi.EscrowAddress(user.PublicKey(), solana.PublicKey{})

	f.exec(t, []solana.PrivateKey{user},
		relayapi.OpenEscrow(user.PublicKey(), solana.PublicKey{}, user.PublicKey()),
		relayapi.Stake(user.PublicKey(), solana.PublicKey{}, funds, 500),
	)
	require.True(t, f.escrow(t, escrow).IsDirect())

	f.mine(t, user, escrow, 7)
	require.Equal(t, uint64(500+reward), f.proof(t, escrow).Balance)

	t.Run("direct escrow cannot be opened with a foreign miner", func(t *testing.T) {
		other := f.wallet(t)
		err := f.try(t, []solana.PrivateKey{other}, relayapi.OpenEscrow(other.PublicKey(), solana.PublicKey{}, user.PublicKey()))
		requireCode(t, err, relayapi.ErrAuthorityMismatch)
	})

	t.Run("authority moves its own miner", func(t *testing.T) {
		miner := f.wallet(t)
		f.exec(t, []solana.PrivateKey{user}, relayapi.UpdateMiner(user.PublicKey(), escrow, miner.PublicKey(), solana.PublicKey{}))
		require.Equal(t, miner.PublicKey(), f.proof(t, escrow).Miner)
		f.mine(t, miner, escrow, 8)
	})

	t.Run("stranger cannot move the miner", func(t *testing.T) {
		stranger := f.wallet(t)
		err := f.try(t, []solana.PrivateKey{stranger}, relayapi.UpdateMiner(stranger.PublicKey(), escrow, stranger.PublicKey(), solana.PublicKey{}))
		requireCode(t, err, relayapi.ErrAuthorityMismatch)
	})
}

func TestRelay_Program_CollectSkipsBelowCommission(t *testing.T) {
	t.Parallel()
	f := newFixture(t, solana.PublicKey{})
	r := f.openRelayer(t, reward*10)

	user := f.wallet(t)
	escrow, _ := relayapi.EscrowAddress(user.PublicKey(), r.address)
	f.exec(t, []solana.PrivateKey{user}, relayapi.OpenEscrow(user.PublicKey(), r.address, r.miner.PublicKey()))
	f.mine(t, r.miner, escrow, 1)

	collect := relayapi.Collect(r.miner.PublicKey(), r.address, escrow, r.beneficiary)
	f.exec(t, []solana.PrivateKey{r.miner}, collect)
	require.Equal(t, uint64(0), f.balance(t, r.beneficiary))
	require.Equal(t, uint64(reward), f.proof(t, escrow).Balance)
	require.Equal(t, f.proof(t, escrow).LastHash, f.escrow(t, escrow).LastHash)

	requireCode(t, f.try(t, []solana.PrivateKey{r.miner}, collect), relayapi.ErrAlreadyCollected)
}

func TestRelay_Program_CollectAuthorization(t *testing.T) {
	t.Parallel()
	f := newFixture(t, solana.PublicKey{})
	r := f.openRelayer(t, 10)
	other := f.openRelayer(t, 10)

	user := f.wallet(t)
	escrow, _ := relayapi.EscrowAddress(user.PublicKey(), r.address)
	f.exec(t, []solana.PrivateKey{user}, relayapi.OpenEscrow(user.PublicKey(), r.address, r.miner.PublicKey()))
	f.mine(t, r.miner, escrow, 1)

	t.Run("signer must be the relayer miner", func(t *testing.T) {
		stranger := f.wallet(t)
		err := f.try(t, []solana.PrivateKey{stranger}, relayapi.Collect(stranger.PublicKey(), r.address, escrow, r.beneficiary))
		requireCode(t, err, relayapi.ErrNotAuthorized)
	})

	t.Run("beneficiary must be the relayer beneficiary", func(t *testing.T) {
		err := f.try(t, []solana.PrivateKey{r.miner}, relayapi.Collect(r.miner.PublicKey(), r.address, escrow, other.beneficiary))
		requireCode(t, err, relayapi.ErrAuthorityMismatch)
	})

	t.Run("escrow must be bound to the relayer", func(t *testing.T) {
		err := f.try(t, []solana.PrivateKey{other.miner}, relayapi.Collect(other.miner.PublicKey(), other.address, escrow, other.beneficiary))
		requireCode(t, err, relayapi.ErrAuthorityMismatch)
	})

	t.Run("user cannot collect from itself", func(t *testing.T) {
		err := f.try(t, []solana.PrivateKey{user}, relayapi.Collect(user.PublicKey(), r.address, escrow, r.beneficiary))
		requireCode(t, err, relayapi.ErrNotAuthorized)
	})

	require.Equal(t, [32]byte{}, f.escrow(t, escrow).LastHash)
}

func TestRelay_Program_UpdateMiner(t *testing.T) {
	t.Parallel()
	f := newFixture(t, solana.PublicKey{})
	r := f.openRelayer(t, 10)

	user := f.wallet(t)
	escrow, _ := relayapi.EscrowAddress(user.PublicKey(), r.address)
	f.exec(t, []solana.PrivateKey{user}, relayapi.OpenEscrow(user.PublicKey(), r.address, r.miner.PublicKey()))

	t.Run("user cannot move a relayer escrow", func(t *testing.T) {
		err := f.try(t, []solana.PrivateKey{user}, relayapi.UpdateMiner(user.PublicKey(), escrow, user.PublicKey(), r.address))
		requireCode(t, err, relayapi.ErrNotAuthorized)
	})

	t.Run("miner must match the relayer", func(t *testing.T) {
		stray := f.wallet(t)
		err := f.try(t, []solana.PrivateKey{r.authority}, relayapi.UpdateMiner(r.authority.PublicKey(), escrow, stray.PublicKey(), r.address))
		requireCode(t, err, relayapi.ErrAuthorityMismatch)
	})

	t.Run("relayer rotates its miner", func(t *testing.T) {
		next := f.wallet(t)
		f.exec(t, []solana.PrivateKey{r.authority},
			relayapi.UpdateRelayer(r.authority.PublicKey(), false, relayapi.UpdateRelayerArgs{
				Commission:  20,
				Miner:       next.PublicKey(),
				Beneficiary: r.beneficiary,
				URL:         mustURL(t, "https://next.example.com"),
				IsOpen:      true,
			}),
			relayapi.UpdateMiner(r.authority.PublicKey(), escrow, next.PublicKey(), r.address),
		)
		rec := f.relayer(t, r.address)
		require.Equal(t, uint64(20), rec.Commission)
		require.Equal(t, "https://next.example.com", rec.URLString())
		require.Equal(t, next.PublicKey(), f.proof(t, escrow).Miner)

		err := f.net.Mine(t.Context(), r.miner, escrow, 2)
		require.ErrorIs(t, err, mining.ErrUnauthorized)
		f.mine(t, next, escrow, 3)
	})
}

func TestRelay_Program_OpenEscrowChecks(t *testing.T) {
	t.Parallel()
	f := newFixture(t, solana.PublicKey{})
	r := f.openRelayer(t, 10)
	pool := f.openPool(t)

	t.Run("pools do not take escrows", func(t *testing.T) {
		user := f.wallet(t)
		err := f.try(t, []solana.PrivateKey{user}, relayapi.OpenEscrow(user.PublicKey(), pool.address, pool.miner.PublicKey()))
		requireCode(t, err, relayapi.ErrShapeMismatch)
	})

	t.Run("miner must be the relayer miner", func(t *testing.T) {
		user := f.wallet(t)
		err := f.try(t, []solana.PrivateKey{user}, relayapi.OpenEscrow(user.PublicKey(), r.address, user.PublicKey()))
		requireCode(t, err, relayapi.ErrAuthorityMismatch)
	})

	t.Run("escrow opens once", func(t *testing.T) {
		user := f.wallet(t)
		ix := relayapi.OpenEscrow(user.PublicKey(), r.address, r.miner.PublicKey())
		f.exec(t, []solana.PrivateKey{user}, ix)
		requireCode(t, f.try(t, []solana.PrivateKey{user}, ix), relayapi.ErrAlreadyInitialized)
	})

	t.Run("wrong bump is a derivation mismatch", func(t *testing.T) {
		user := f.wallet(t)
		ix := relayapi.OpenEscrow(user.PublicKey(), r.address, r.miner.PublicKey())
		ix.Data[1]--
		requireCode(t, f.try(t, []solana.PrivateKey{user}, ix), relayapi.ErrInvalidDerivation)
	})

	t.Run("zero stake is rejected", func(t *testing.T) {
		user := f.wallet(t)
		funds := f.tokens(t, user, mining.MintAddress(), 10)
		f.exec(t, []solana.PrivateKey{user}, relayapi.OpenEscrow(user.PublicKey(), r.address, r.miner.PublicKey()))
		err := f.try(t, []solana.PrivateKey{user}, relayapi.Stake(user.PublicKey(), r.address, funds, 0))
		requireCode(t, err, relayapi.ErrInvalidAmount)
	})

	t.Run("closed relayer takes no new escrows", func(t *testing.T) {
		f.exec(t, []solana.PrivateKey{r.authority}, relayapi.UpdateRelayer(r.authority.PublicKey(), false, relayapi.UpdateRelayerArgs{
			Commission:  10,
			Miner:       r.miner.PublicKey(),
			Beneficiary: r.beneficiary,
		}))
		require.False(t, f.relayer(t, r.address).Open())

		user := f.wallet(t)
		err := f.try(t, []solana.PrivateKey{user}, relayapi.OpenEscrow(user.PublicKey(), r.address, r.miner.PublicKey()))
		requireCode(t, err, relayapi.ErrPoolClosed)
	})
}

func TestRelay_Program_Atomicity(t *testing.T) {
	t.Parallel()
	f := newFixture(t, solana.PublicKey{})
	r := f.openRelayer(t, 10)

	user := f.wallet(t)
	funds := f.tokens(t, user, mining.MintAddress(), 1_000)
	escrow, _ := relayapi.EscrowAddress(user.PublicKey(), r.address)
	f.exec(t, []solana.PrivateKey{user},
		relayapi.OpenEscrow(user.PublicKey(), r.address, r.miner.PublicKey()),
		relayapi.Stake(user.PublicKey(), r.address, funds, 400),
	)

	payout := f.tokens(t, user, mining.MintAddress(), 0)
	err := f.try(t, []solana.PrivateKey{user},
		relayapi.Stake(user.PublicKey(), r.address, funds, 600),
		relayapi.Claim(user.PublicKey(), r.address, payout, 10_000),
	)
	requireCode(t, err, mining.ErrClaimTooLarge)
	var txErr *host.TransactionError
	require.ErrorAs(t, err, &txErr)
	require.Equal(t, 1, txErr.Index)

	require.Equal(t, uint64(600), f.balance(t, funds))
	require.Equal(t, uint64(0), f.balance(t, payout))
	require.Equal(t, uint64(400), f.proof(t, escrow).Balance)
}

func TestRelay_Program_AdminGatedRegistration(t *testing.T) {
	t.Parallel()
	admin := solana.NewWallet().PrivateKey
	f := newFixture(t, admin.PublicKey())

	authority := f.wallet(t)
	params := relayapi.RelayerParams{Commission: 1, Miner: authority.PublicKey(), Beneficiary: authority.PublicKey()}

	t.Run("missing admin", func(t *testing.T) {
		ix, err := relayapi.OpenRelayer(authority.PublicKey(), solana.PublicKey{}, params)
		require.NoError(t, err)
		requireCode(t, f.try(t, []solana.PrivateKey{authority}, ix), host.NotEnoughAccountKeys)
	})

	t.Run("wrong admin", func(t *testing.T) {
		impostor := f.wallet(t)
		ix, err := relayapi.OpenRelayer(authority.PublicKey(), impostor.PublicKey(), params)
		require.NoError(t, err)
		requireCode(t, f.try(t, []solana.PrivateKey{authority, impostor}, ix), relayapi.ErrNotAuthorized)
	})

	t.Run("admin co-signs", func(t *testing.T) {
		ix, err := relayapi.OpenRelayer(authority.PublicKey(), admin.PublicKey(), params)
		require.NoError(t, err)
		f.exec(t, []solana.PrivateKey{authority, admin}, ix)
		addr, _ := relayapi.RelayerAddress(authority.PublicKey())
		rec := f.relayer(t, addr)
		require.Equal(t, authority.PublicKey(), rec.Authority)
		require.True(t, rec.Open())
		require.False(t, rec.IsPooled())
	})
}

func TestRelay_Program_Pool(t *testing.T) {
	t.Parallel()
	f := newFixture(t, solana.PublicKey{})
	pool := f.openPool(t)
	shareMint, _ := relayapi.ShareMintAddress(pool.address)

	rec := f.relayer(t, pool.address)
	require.True(t, rec.IsPooled())
	require.Equal(t, shareMint, rec.ShareMint)

	type member struct {
		key      solana.PrivateKey
		funds    solana.PublicKey
		shares   solana.PublicKey
		delegate solana.PublicKey
	}
	join := func(t *testing.T, amount uint64) member {
		m := member{key: f.wallet(t)}
		m.funds = f.tokens(t, m.key, mining.MintAddress(), amount)
		m.shares = f.tokens(t, m.key, shareMint, 0)
		m.delegate, _ = relayapi.DelegateAddress(m.key.PublicKey(), pool.address)
		f.exec(t, []solana.PrivateKey{m.key}, relayapi.OpenDelegate(m.key.PublicKey(), pool.address))
		return m
	}

	alice := join(t, 100)
	f.exec(t, []solana.PrivateKey{alice.key}, relayapi.Deposit(alice.key.PublicKey(), pool.address, alice.funds, alice.shares, 100))
	require.Equal(t, uint64(100), f.balance(t, alice.shares))
	require.Equal(t, uint64(100), f.supply(t, shareMint))
	require.Equal(t, uint64(100), f.delegate(t, alice.delegate).Balance)

	f.mine(t, pool.miner, pool.address, 1)
	require.Equal(t, uint64(200), f.proof(t, pool.address).Balance)

	bob := join(t, 100)
	f.exec(t, []solana.PrivateKey{bob.key}, relayapi.Deposit(bob.key.PublicKey(), pool.address, bob.funds, bob.shares, 100))
	require.Equal(t, uint64(50), f.balance(t, bob.shares))
	require.Equal(t, uint64(150), f.supply(t, shareMint))
	require.Equal(t, uint64(300), f.proof(t, pool.address).Balance)
	require.Equal(t, uint64(200), f.relayer(t, pool.address).Balance)

	t.Run("close with principal is rejected", func(t *testing.T) {
		err := f.try(t, []solana.PrivateKey{alice.key}, relayapi.CloseDelegate(alice.key.PublicKey(), pool.address))
		requireCode(t, err, relayapi.ErrNonZeroBalance)
	})

	t.Run("over-withdrawal changes nothing", func(t *testing.T) {
		err := f.try(t, []solana.PrivateKey{bob.key}, relayapi.Withdraw(bob.key.PublicKey(), pool.address, bob.funds, bob.shares, 51))
		requireCode(t, err, relayapi.ErrInsufficientBalance)
		require.Equal(t, uint64(50), f.balance(t, bob.shares))
		require.Equal(t, uint64(150), f.supply(t, shareMint))
		require.Equal(t, uint64(300), f.proof(t, pool.address).Balance)
		require.Equal(t, uint64(100), f.delegate(t, bob.delegate).Balance)
	})

	t.Run("shares of one member cannot be burned by another", func(t *testing.T) {
		err := f.try(t, []solana.PrivateKey{bob.key}, relayapi.Withdraw(bob.key.PublicKey(), pool.address, bob.funds, alice.shares, 1))
		requireCode(t, err, relayapi.ErrAuthorityMismatch)
	})

	f.exec(t, []solana.PrivateKey{alice.key}, relayapi.Withdraw(alice.key.PublicKey(), pool.address, alice.funds, alice.shares, 100))
	require.Equal(t, uint64(200), f.balance(t, alice.funds))
	require.Equal(t, uint64(0), f.balance(t, alice.shares))
	require.Equal(t, uint64(0), f.delegate(t, alice.delegate).Balance)
	require.Equal(t, uint64(100), f.proof(t, pool.address).Balance)

	f.exec(t, []solana.PrivateKey{alice.key}, relayapi.CloseDelegate(alice.key.PublicKey(), pool.address))
	require.True(t, f.account(t, alice.delegate).IsEmpty())

	f.exec(t, []solana.PrivateKey{bob.key}, relayapi.Withdraw(bob.key.PublicKey(), pool.address, bob.funds, bob.shares, 50))
	require.Equal(t, uint64(100), f.balance(t, bob.funds))
	require.Equal(t, uint64(0), f.supply(t, shareMint))
	require.Equal(t, uint64(0), f.proof(t, pool.address).Balance)
	require.Equal(t, uint64(0), f.relayer(t, pool.address).Balance)
}

func TestRelay_Program_UpdateRelayerCommission(t *testing.T) {
	t.Parallel()
	f := newFixture(t, solana.PublicKey{})
	r := f.openRelayer(t, 10)

	user := f.wallet(t)
	funds := f.tokens(t, user, mining.MintAddress(), 1_000)
	escrow, _ := relayapi.EscrowAddress(user.PublicKey(), r.address)
	f.exec(t, []solana.PrivateKey{user},
		relayapi.OpenEscrow(user.PublicKey(), r.address, r.miner.PublicKey()),
		relayapi.Stake(user.PublicKey(), r.address, funds, 1_000),
	)
	f.mine(t, r.miner, escrow, 1)

	url, err := relayapi.EncodeURL("https://relayer.example.com")
	require.NoError(t, err)
	update := func(commission uint64) host.Instruction {
		return relayapi.UpdateRelayer(r.authority.PublicKey(), false, relayapi.UpdateRelayerArgs{
			Commission:  commission,
			Miner:       r.miner.PublicKey(),
			Beneficiary: r.beneficiary,
			URL:         url,
			IsOpen:      true,
		})
	}

	t.Run("raising the commission is rejected", func(t *testing.T) {
		requireCode(t, f.try(t, []solana.PrivateKey{r.authority}, update(1_000+reward)), relayapi.ErrInvalidAmount)
		requireCode(t, f.try(t, []solana.PrivateKey{r.authority}, update(11)), relayapi.ErrInvalidAmount)
		require.Equal(t, uint64(10), f.relayer(t, r.address).Commission)
	})

	f.exec(t, []solana.PrivateKey{r.authority}, update(4))
	require.Equal(t, uint64(4), f.relayer(t, r.address).Commission)

	f.exec(t, []solana.PrivateKey{r.miner}, relayapi.Collect(r.miner.PublicKey(), r.address, escrow, r.beneficiary))
	require.Equal(t, uint64(4), f.balance(t, r.beneficiary))
	require.Equal(t, uint64(1_000+reward-4), f.proof(t, escrow).Balance)
}

func TestRelay_Program_PoolClosed(t *testing.T) {
	t.Parallel()
	f := newFixture(t, solana.PublicKey{})
	pool := f.openPool(t)
	shareMint, _ := relayapi.ShareMintAddress(pool.address)

	user := f.wallet(t)
	funds := f.tokens(t, user, mining.MintAddress(), 100)
	shares := f.tokens(t, user, shareMint, 0)
	f.exec(t, []solana.PrivateKey{user}, relayapi.OpenDelegate(user.PublicKey(), pool.address))

	next := f.wallet(t)
	f.exec(t, []solana.PrivateKey{pool.authority}, relayapi.UpdateRelayer(pool.authority.PublicKey(), true, relayapi.UpdateRelayerArgs{
		Miner: next.PublicKey(),
	}))
	require.Equal(t, next.PublicKey(), f.proof(t, pool.address).Miner)

	err := f.try(t, []solana.PrivateKey{user}, relayapi.Deposit(user.PublicKey(), pool.address, funds, shares, 100))
	requireCode(t, err, relayapi.ErrPoolClosed)

	other := f.wallet(t)
	err = f.try(t, []solana.PrivateKey{other}, relayapi.OpenDelegate(other.PublicKey(), pool.address))
	requireCode(t, err, relayapi.ErrPoolClosed)
}
