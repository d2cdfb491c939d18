package client_test

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	relayapi "github.com/malbeclabs/orerelay/relay/pkg/api"
	"github.com/malbeclabs/orerelay/relay/pkg/client"
	"github.com/malbeclabs/orerelay/utils/pkg/retry"
	relaytesting "github.com/malbeclabs/orerelay/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	calls atomic.Int32
	fn    func(call int32, tx *host.Transaction) (*host.Receipt, error)
}

func (e *fakeExecutor) RecentSlot(context.Context) (uint64, error) { return 7, nil }

func (e *fakeExecutor) Execute(_ context.Context, tx *host.Transaction) (*host.Receipt, error) {
	return e.fn(e.calls.Add(1), tx)
}

func newClient(t *testing.T, exec client.Executor) *client.Client {
	t.Helper()
	c, err := client.New(client.Config{
		Logger:   relaytesting.NewLogger(),
		Executor: exec,
		Signer:   solana.NewWallet().PrivateKey,
		Retry:    retry.Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})
	require.NoError(t, err)
	return c
}

func TestRelay_Client_Send(t *testing.T) {
	t.Parallel()

	t.Run("signs with the client signer", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{fn: func(_ int32, tx *host.Transaction) (*host.Receipt, error) {
			if err := tx.Verify(); err != nil {
				return nil, err
			}
			return &host.Receipt{ID: uuid.New()}, nil
		}}
		c := newClient(t, exec)
		_, err := c.OpenDelegate(t.Context(), solana.NewWallet().PublicKey())
		require.NoError(t, err)
		require.Equal(t, int32(1), exec.calls.Load())
	})

	t.Run("missing co-signer fails before submission", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{fn: func(int32, *host.Transaction) (*host.Receipt, error) {
			return &host.Receipt{}, nil
		}}
		c := newClient(t, exec)
		ix, err := relayapi.OpenRelayer(c.Signer(), solana.NewWallet().PublicKey(), relayapi.RelayerParams{})
		require.NoError(t, err)
		_, err = c.Send(t.Context(), nil, ix)
		require.ErrorContains(t, err, "missing private key")
		require.Zero(t, exec.calls.Load())
	})

	t.Run("aborted transactions are not retried", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{fn: func(int32, *host.Transaction) (*host.Receipt, error) {
			return nil, &host.TransactionError{Index: 0, ProgramID: relayapi.ProgramID, Err: relayapi.ErrAlreadyCollected}
		}}
		c := newClient(t, exec)
		_, err := c.Collect(t.Context(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
		require.ErrorIs(t, err, relayapi.ErrAlreadyCollected)
		require.Equal(t, relayapi.ClassState, relayapi.Classify(err))
		require.Equal(t, int32(1), exec.calls.Load())
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{fn: func(call int32, _ *host.Transaction) (*host.Receipt, error) {
			if call < 3 {
				return nil, &client.SubmitFailure{Status: http.StatusServiceUnavailable, Body: relayapi.SubmitError{Error: "ledger unavailable", Index: -1}}
			}
			return &host.Receipt{Slot: 9}, nil
		}}
		c := newClient(t, exec)
		receipt, err := c.CloseDelegate(t.Context(), solana.NewWallet().PublicKey())
		require.NoError(t, err)
		require.Equal(t, uint64(9), receipt.Slot)
		require.Equal(t, int32(3), exec.calls.Load())
	})

	t.Run("retries resubmit the same signed transaction", func(t *testing.T) {
		t.Parallel()
		var sigs []solana.Signature
		exec := &fakeExecutor{fn: func(call int32, tx *host.Transaction) (*host.Receipt, error) {
			require.Equal(t, uint64(7), tx.RecentSlot)
			sigs = append(sigs, tx.Signatures[0])
			if call < 2 {
				return nil, errors.New("failed to submit transaction: i/o timeout")
			}
			return nil, &host.TransactionError{Index: -1, Err: host.AlreadyProcessed}
		}}
		c := newClient(t, exec)
		_, err := c.CloseDelegate(t.Context(), solana.NewWallet().PublicKey())
		require.ErrorIs(t, err, host.AlreadyProcessed)
		require.Len(t, sigs, 2)
		require.Equal(t, sigs[0], sigs[1])
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{fn: func(int32, *host.Transaction) (*host.Receipt, error) {
			return nil, &client.SubmitFailure{Status: http.StatusBadRequest, Body: relayapi.SubmitError{Error: "request timeout parsing body", Index: -1}}
		}}
		c := newClient(t, exec)
		_, err := c.CloseDelegate(t.Context(), solana.NewWallet().PublicKey())
		require.Error(t, err)
		require.Equal(t, int32(1), exec.calls.Load())
	})

	t.Run("store errors are retried until attempts run out", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{fn: func(int32, *host.Transaction) (*host.Receipt, error) {
			return nil, errors.New("failed to load accounts: connection reset by peer")
		}}
		c := newClient(t, exec)
		_, err := c.CloseDelegate(t.Context(), solana.NewWallet().PublicKey())
		require.ErrorContains(t, err, "failed after 3 attempts")
		require.Equal(t, int32(3), exec.calls.Load())
	})
}

func TestRelay_Client_SubmitFailure(t *testing.T) {
	t.Parallel()

	relayFailure := &client.SubmitFailure{
		Status: http.StatusUnprocessableEntity,
		Body:   relayapi.SubmitError{Error: "x", Code: uint64(relayapi.ErrPoolClosed), Index: 0, Class: "state"},
	}
	require.ErrorIs(t, relayFailure, relayapi.ErrPoolClosed)
	require.Equal(t, relayapi.ClassState, relayapi.Classify(relayFailure))

	external := &client.SubmitFailure{
		Status: http.StatusUnprocessableEntity,
		Body:   relayapi.SubmitError{Error: "x", Code: uint64(relayapi.ErrPoolClosed), Index: 0, Class: "external"},
	}
	require.NotErrorIs(t, external, relayapi.ErrPoolClosed)
	require.Equal(t, relayapi.ClassExternal, relayapi.Classify(external))
}

func TestRelay_Client_Config(t *testing.T) {
	t.Parallel()
	_, err := client.New(client.Config{Logger: relaytesting.NewLogger()})
	require.ErrorContains(t, err, "executor is required")

	_, err = client.NewHTTPExecutor(client.HTTPExecutorConfig{})
	require.ErrorContains(t, err, "base url is required")
}
