package relaystate_test

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	relaystate "github.com/malbeclabs/orerelay/relay/pkg/state"
	"github.com/stretchr/testify/require"
)

func TestRelay_State_Layout(t *testing.T) {
	t.Parallel()

	relayer := &relaystate.Relayer{
		Authority:   solana.NewWallet().PublicKey(),
		Bump:        254,
		Commission:  1_000,
		Miner:       solana.NewWallet().PublicKey(),
		Beneficiary: solana.NewWallet().PublicKey(),
		IsOpen:      1,
	}
	copy(relayer.URL[:], "https://relay.example")

	data := relayer.Marshal()
	require.Len(t, data, relaystate.RelayerSize)
	require.Equal(t, byte(relaystate.DiscriminatorRelayer), data[0])
	require.Equal(t, relaystate.Version, data[1])
	require.Equal(t, relayer.Authority[:], data[8:40])
	require.Equal(t, []byte{254, 0, 0, 0, 0, 0, 0, 0}, data[40:48])
	require.Equal(t, "https://relay.example", relayer.URLString())

	decoded, err := relaystate.UnmarshalRelayer(data)
	require.NoError(t, err)
	require.Equal(t, relayer, decoded)
	require.False(t, decoded.IsPooled())
	require.True(t, decoded.Open())

	escrow := &relaystate.Escrow{Authority: solana.NewWallet().PublicKey(), Bump: 7}
	require.Len(t, escrow.Marshal(), relaystate.EscrowSize)
	require.True(t, escrow.IsDirect())

	delegate := &relaystate.Delegate{Authority: solana.NewWallet().PublicKey(), Balance: 42, Pool: solana.NewWallet().PublicKey()}
	require.Len(t, delegate.Marshal(), relaystate.DelegateSize)
}

func TestRelay_State_Decode(t *testing.T) {
	t.Parallel()

	escrow := &relaystate.Escrow{
		Authority: solana.NewWallet().PublicKey(),
		Relayer:   solana.NewWallet().PublicKey(),
	}
	escrow.LastHash[0] = 9

	t.Run("dispatches on discriminator", func(t *testing.T) {
		t.Parallel()
		rec, err := relaystate.Decode(escrow.Marshal())
		require.NoError(t, err)
		require.Equal(t, escrow, rec)
		require.Equal(t, relaystate.DiscriminatorEscrow, rec.Discriminator())
	})

	t.Run("rejects wrong kind", func(t *testing.T) {
		t.Parallel()
		_, err := relaystate.UnmarshalDelegate(escrow.Marshal())
		require.ErrorIs(t, err, relaystate.ErrInvalidSize)

		data := escrow.Marshal()
		data[0] = byte(relaystate.DiscriminatorDelegate)
		_, err = relaystate.UnmarshalEscrow(data)
		require.ErrorIs(t, err, relaystate.ErrInvalidDiscriminator)
	})

	t.Run("rejects unknown version", func(t *testing.T) {
		t.Parallel()
		data := escrow.Marshal()
		data[1] = 2
		_, err := relaystate.Decode(data)
		require.ErrorIs(t, err, relaystate.ErrUnsupportedVersion)
	})

	t.Run("rejects short data", func(t *testing.T) {
		t.Parallel()
		_, err := relaystate.Decode([]byte{100})
		require.ErrorIs(t, err, relaystate.ErrInvalidSize)
		_, err = relaystate.Decode(make([]byte, 16))
		require.ErrorIs(t, err, relaystate.ErrInvalidDiscriminator)
	})
}
