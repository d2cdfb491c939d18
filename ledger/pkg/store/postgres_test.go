package store_test

import (
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	"github.com/malbeclabs/orerelay/ledger/pkg/store"
	relaytesting "github.com/malbeclabs/orerelay/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

func TestLedger_PostgresStore_NewPostgresStore(t *testing.T) {
	t.Parallel()

	t.Run("missing logger", func(t *testing.T) {
		t.Parallel()
		_, err := store.NewPostgresStore(store.PostgresStoreConfig{})
		require.Error(t, err)
	})

	t.Run("missing pool", func(t *testing.T) {
		t.Parallel()
		_, err := store.NewPostgresStore(store.PostgresStoreConfig{Logger: relaytesting.NewLogger()})
		require.Error(t, err)
	})
}

func TestLedger_PostgresStore_CommitAndLoad(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := t.Context()

	owner := solana.NewWallet().PublicKey()
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()
	missing := solana.NewWallet().PublicKey()

	require.NoError(t, s.Commit(ctx, map[solana.PublicKey]*host.Account{
		a: {Owner: owner, Lamports: math.MaxUint64, Data: []byte{1, 2, 3}},
		b: {Owner: owner, Lamports: 5},
	}))

	loaded, err := s.Load(ctx, []solana.PublicKey{a, b, missing})
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.True(t, loaded[a].Equal(&host.Account{Owner: owner, Lamports: math.MaxUint64, Data: []byte{1, 2, 3}}))
	require.True(t, loaded[b].Equal(&host.Account{Owner: owner, Lamports: 5}))

	owned, err := s.AccountsByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, owned, 2)

	// Empty accounts are purged.
	require.NoError(t, s.Commit(ctx, map[solana.PublicKey]*host.Account{
		a: {Owner: owner, Lamports: 7, Data: []byte{9}},
		b: host.NewEmptyAccount(),
	}))
	loaded, err = s.Load(ctx, []solana.PublicKey{a, b})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, uint64(7), loaded[a].Lamports)
	require.Equal(t, []byte{9}, loaded[a].Data)
}

func TestLedger_PostgresStore_BackedBank(t *testing.T) {
	t.Parallel()
	s := testStore(t)

	bank, err := host.NewBank(host.BankConfig{
		Logger: relaytesting.NewLogger(),
		Store:  s,
	})
	require.NoError(t, err)

	from := solana.NewWallet().PrivateKey
	to := solana.NewWallet().PublicKey()
	require.NoError(t, bank.SetAccount(t.Context(), from.PublicKey(), &host.Account{
		Owner:    solana.SystemProgramID,
		Lamports: 1_000,
	}))

	tx := host.NewTransaction(host.Transfer(from.PublicKey(), to, 250))
	require.NoError(t, tx.Sign(from))
	_, err = bank.Execute(t.Context(), tx)
	require.NoError(t, err)

	acct, err := bank.Account(t.Context(), to)
	require.NoError(t, err)
	require.Equal(t, uint64(250), acct.Lamports)
}
