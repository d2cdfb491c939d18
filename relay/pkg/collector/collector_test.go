package collector_test

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	"github.com/malbeclabs/orerelay/ledger/pkg/mining"
	relayapi "github.com/malbeclabs/orerelay/relay/pkg/api"
	"github.com/malbeclabs/orerelay/relay/pkg/client"
	"github.com/malbeclabs/orerelay/relay/pkg/collector"
	"github.com/malbeclabs/orerelay/relay/pkg/localnet"
	"github.com/malbeclabs/orerelay/utils/pkg/retry"
	relaytesting "github.com/malbeclabs/orerelay/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

const (
	reward     = 100
	commission = 10
)

type relayer struct {
	authority   solana.PrivateKey
	miner       solana.PrivateKey
	beneficiary solana.PublicKey
	address     solana.PublicKey
}

type fixture struct {
	net *localnet.Localnet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	net, err := localnet.New(t.Context(), localnet.Config{
		Logger:     relaytesting.NewLogger(),
		Store:      host.NewMemoryStore(),
		Clock:      clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0)),
		Treasury:   solana.NewWallet().PrivateKey,
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

func (f *fixture) balance(t *testing.T, key solana.PublicKey) uint64 {
	t.Helper()
	amount, err := f.net.TokenBalance(t.Context(), key)
	require.NoError(t, err)
	return amount
}

func (f *fixture) openRelayer(t *testing.T) relayer {
	t.Helper()
	return f.openRelayerWithCommission(t, commission)
}

func (f *fixture) openRelayerWithCommission(t *testing.T, commission uint64) relayer {
	t.Helper()
	r := relayer{authority: f.wallet(t), miner: f.wallet(t)}
	var err error
	r.beneficiary, err = f.net.NewTokenAccount(t.Context(), r.authority, mining.MintAddress(), 0)
	require.NoError(t, err)
	ix, err := relayapi.OpenRelayer(r.authority.PublicKey(), solana.PublicKey{}, relayapi.RelayerParams{
		Commission:  commission,
		Miner:       r.miner.PublicKey(),
		Beneficiary: r.beneficiary,
	})
	require.NoError(t, err)
	_, err = f.net.Send(t.Context(), []solana.PrivateKey{r.authority}, ix)
	require.NoError(t, err)
	r.address, _ = relayapi.RelayerAddress(r.authority.PublicKey())
	return r
}

// stake opens an escrow with r for a fresh user and returns the escrow address.
func (f *fixture) stake(t *testing.T, r relayer, amount uint64) solana.PublicKey {
	t.Helper()
	user := f.wallet(t)
	funds, err := f.net.NewTokenAccount(t.Context(), user, mining.MintAddress(), amount)
	require.NoError(t, err)
	_, err = f.net.Send(t.Context(), []solana.PrivateKey{user},
		relayapi.OpenEscrow(user.PublicKey(), r.address, r.miner.PublicKey()),
		relayapi.Stake(user.PublicKey(), r.address, funds, amount),
	)
	require.NoError(t, err)
	escrow, _ := relayapi.EscrowAddress(user.PublicKey(), r.address)
	return escrow
}

func (f *fixture) collector(t *testing.T, r relayer, signer solana.PrivateKey, clock clockwork.Clock) *collector.Collector {
	t.Helper()
	c, err := client.New(client.Config{
		Logger:   relaytesting.NewLogger(),
		Executor: f.net.Bank(),
		Signer:   signer,
		Retry:    retry.Config{MaxAttempts: 1},
	})
	require.NoError(t, err)
	col, err := collector.New(collector.Config{
		Logger:   relaytesting.NewLogger(),
		Clock:    clock,
		Ledger:   f.net.Bank(),
		Client:   c,
		Relayer:  r.address,
		Interval: time.Minute,
		Workers:  2,
	})
	require.NoError(t, err)
	return col
}

func TestRelay_Collector_Scan(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.openRelayer(t)
	other := f.openRelayer(t)

	first := f.stake(t, r, 1_000)
	second := f.stake(t, r, 1_000)
	foreign := f.stake(t, other, 1_000)

	col := f.collector(t, r, r.miner, clockwork.NewFakeClock())

	result, err := col.Scan(t.Context())
	require.NoError(t, err)
	require.Equal(t, collector.ScanResult{}, result, "fresh escrows have nothing to collect")

	require.NoError(t, f.net.Mine(t.Context(), r.miner, first, 1))
	result, err = col.Scan(t.Context())
	require.NoError(t, err)
	require.Equal(t, collector.ScanResult{Escrows: 1, Collected: 1}, result)
	require.Equal(t, uint64(commission), f.balance(t, r.beneficiary))

	result, err = col.Scan(t.Context())
	require.NoError(t, err)
	require.Zero(t, result.Escrows, "collected escrows are not revisited")

	require.NoError(t, f.net.Mine(t.Context(), r.miner, first, 2))
	require.NoError(t, f.net.Mine(t.Context(), r.miner, second, 3))
	require.NoError(t, f.net.Mine(t.Context(), other.miner, foreign, 4))
	result, err = col.Scan(t.Context())
	require.NoError(t, err)
	require.Equal(t, collector.ScanResult{Escrows: 2, Collected: 2}, result)
	require.Equal(t, uint64(3*commission), f.balance(t, r.beneficiary))
	require.Zero(t, f.balance(t, other.beneficiary))

	proof, err := f.net.Proof(t.Context(), foreign)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000+reward), proof.Balance)
}

func TestRelay_Collector_ScanSkipsBelowCommission(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.openRelayerWithCommission(t, 5_000)
	escrow := f.stake(t, r, 1_000)
	col := f.collector(t, r, r.miner, clockwork.NewFakeClock())

	require.NoError(t, f.net.Mine(t.Context(), r.miner, escrow, 1))
	result, err := col.Scan(t.Context())
	require.NoError(t, err)
	require.Equal(t, collector.ScanResult{Escrows: 1, Skipped: 1}, result)
	require.Zero(t, f.balance(t, r.beneficiary))

	proof, err := f.net.Proof(t.Context(), escrow)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000+reward), proof.Balance)

	result, err = col.Scan(t.Context())
	require.NoError(t, err)
	require.Zero(t, result.Escrows, "a skipped accrual is not retried")
}

func TestRelay_Collector_Misconfigured(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.openRelayer(t)

	t.Run("signer must be the relayer miner", func(t *testing.T) {
		col := f.collector(t, r, r.authority, clockwork.NewFakeClock())
		_, err := col.Scan(t.Context())
		require.ErrorContains(t, err, "is not the relayer miner")
	})

	t.Run("pools take no commission", func(t *testing.T) {
		authority, miner := f.wallet(t), f.wallet(t)
		ix, err := relayapi.OpenPool(authority.PublicKey(), solana.PublicKey{}, relayapi.RelayerParams{Miner: miner.PublicKey()})
		require.NoError(t, err)
		_, err = f.net.Send(t.Context(), []solana.PrivateKey{authority}, ix)
		require.NoError(t, err)
		pool, _ := relayapi.RelayerAddress(authority.PublicKey())

		col := f.collector(t, relayer{address: pool}, miner, clockwork.NewFakeClock())
		_, err = col.Scan(t.Context())
		require.ErrorContains(t, err, "is a pool")
	})

	t.Run("unknown relayer", func(t *testing.T) {
		col := f.collector(t, relayer{address: solana.NewWallet().PublicKey()}, r.miner, clockwork.NewFakeClock())
		_, err := col.Scan(t.Context())
		require.ErrorContains(t, err, "is not a relay account")
	})

	t.Run("config validation", func(t *testing.T) {
		_, err := collector.New(collector.Config{Logger: relaytesting.NewLogger()})
		require.ErrorContains(t, err, "ledger is required")
	})
}

func TestRelay_Collector_Run(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r := f.openRelayer(t)
	escrow := f.stake(t, r, 1_000)

	clock := clockwork.NewFakeClock()
	col := f.collector(t, r, r.miner, clock)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		col.Run(ctx)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.NoError(t, f.net.Mine(t.Context(), r.miner, escrow, 1))
	clock.Advance(time.Minute)

	require.Eventually(t, func() bool {
		amount, err := f.net.TokenBalance(ctx, r.beneficiary)
		return err == nil && amount == commission
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not stop")
	}
}
