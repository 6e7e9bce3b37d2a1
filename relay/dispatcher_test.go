package relay_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omni/gmp-mock-api/chainclient"
	"github.com/omni/gmp-mock-api/config"
	"github.com/omni/gmp-mock-api/gmp"
	"github.com/omni/gmp-mock-api/queue"
	"github.com/omni/gmp-mock-api/relay"
	"github.com/omni/gmp-mock-api/repository"
)

type dispatcherEnv struct {
	repo       *repository.Repo
	client     *chainclient.MockClient
	queue      *queue.RepoQueue
	dispatcher *relay.Dispatcher
}

func newDispatcherEnv(multisig string, onSubmit chainclient.SubmitFunc) *dispatcherEnv {
	repo := repository.NewMemoryRepo()
	client := chainclient.NewMockClient()
	client.OnSubmit = onSubmit
	q := queue.NewMemoryQueue(&config.QueueConfig{
		Name:              "amplifier",
		PollInterval:      10 * time.Millisecond,
		VisibilityTimeout: time.Minute,
		MaxAttempts:       3,
	})
	cfg := &config.RelayConfig{
		Chain:           testChain,
		SigningAccount:  "relayer",
		MultisigAddress: multisig,
	}
	return &dispatcherEnv{
		repo:       repo,
		client:     client,
		queue:      q,
		dispatcher: relay.NewDispatcher(testLogger(), cfg, repo, client, q),
	}
}

func (e *dispatcherEnv) consume(t *testing.T) (*queue.Delivery, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	return e.queue.Consume(ctx)
}

func txWithEvent(eventType string, attrs ...chainclient.Attribute) *chainclient.TxResponse {
	return &chainclient.TxResponse{
		TxHash: "ABCDEF",
		Height: "100",
		Logs: []chainclient.ABCIMessageLog{{
			Events: []chainclient.StringEvent{{Type: eventType, Attributes: attrs}},
		}},
	}
}

func TestDispatcher_VerifyMessagesPublishesFollowUp(t *testing.T) {
	t.Parallel()

	env := newDispatcherEnv("", func(context.Context, string, string, json.RawMessage) (*chainclient.TxResponse, error) {
		return txWithEvent(relay.EventPollStarted,
			chainclient.Attribute{Key: "_contract_address", Value: "axelar1verifier"},
			chainclient.Attribute{Key: "poll_id", Value: `"42"`},
		), nil
	})
	ctx := context.Background()

	broadcast, err := env.dispatcher.Dispatch(ctx, "axelar1gateway", json.RawMessage(`{"verify_messages":[{"cc_id":{}}]}`))
	require.NoError(t, err)
	require.Equal(t, gmp.BroadcastStatusReceived, broadcast.Status)
	env.dispatcher.Wait()

	stored, err := env.repo.Broadcasts.GetByID(ctx, broadcast.ID)
	require.NoError(t, err)
	require.Equal(t, gmp.BroadcastStatusSuccess, stored.Status)
	require.Equal(t, "ABCDEF", *stored.TxHash)
	require.Nil(t, stored.Error)

	submissions := env.client.Submissions()
	require.Len(t, submissions, 1)
	require.Equal(t, "relayer", submissions[0].From)
	require.Equal(t, "axelar1gateway", submissions[0].ContractAddress)

	delivery, err := env.consume(t)
	require.NoError(t, err)
	item, ok := delivery.Item.(*gmp.VerifyMessagesItem)
	require.True(t, ok)
	require.Equal(t, `"42"`, item.PollID)
	require.Equal(t, "axelar1verifier", item.ContractAddress)
	require.Equal(t, testChain, item.Chain)
	require.True(t, item.BroadcastCreatedAt.Equal(broadcast.CreatedAt))
	require.Equal(t, broadcast.ID, delivery.Properties.CorrelationID)
	require.True(t, delivery.Properties.Persistent)
}

func TestDispatcher_ConstructProof(t *testing.T) {
	t.Parallel()

	submit := func(context.Context, string, string, json.RawMessage) (*chainclient.TxResponse, error) {
		return txWithEvent(relay.EventProofUnderConstruction,
			chainclient.Attribute{Key: "multisig_session_id", Value: `"7"`},
		), nil
	}
	payload := json.RawMessage(`{"construct_proof":[{"source_chain":"ethereum","message_id":"0x01"}]}`)

	t.Run("multisig configured", func(t *testing.T) {
		t.Parallel()

		env := newDispatcherEnv("axelar1multisig", submit)
		_, err := env.dispatcher.Dispatch(context.Background(), "axelar1prover", payload)
		require.NoError(t, err)
		env.dispatcher.Wait()

		delivery, err := env.consume(t)
		require.NoError(t, err)
		require.Equal(t, &gmp.ConstructProofItem{
			SessionID:          `"7"`,
			ContractAddress:    "axelar1multisig",
			ProverAddress:      "axelar1prover",
			Chain:              testChain,
			BroadcastCreatedAt: delivery.Item.CreatedAt(),
		}, delivery.Item)
	})

	t.Run("multisig not configured", func(t *testing.T) {
		t.Parallel()

		env := newDispatcherEnv("", submit)
		broadcast, err := env.dispatcher.Dispatch(context.Background(), "axelar1prover", payload)
		require.NoError(t, err)
		env.dispatcher.Wait()

		stored, err := env.repo.Broadcasts.GetByID(context.Background(), broadcast.ID)
		require.NoError(t, err)
		require.Equal(t, gmp.BroadcastStatusSuccess, stored.Status)

		_, err = env.consume(t)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestDispatcher_Failures(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name     string
		res      *chainclient.TxResponse
		err      error
		expected string
	}{
		{
			name:     "rejected tx",
			res:      &chainclient.TxResponse{TxHash: "AB", Code: 5, RawLog: "insufficient funds"},
			expected: "insufficient funds",
		},
		{
			name:     "cli failure",
			err:      &chainclient.CommandError{ExitCode: 1, Stderr: "account sequence mismatch\n"},
			expected: "account sequence mismatch",
		},
		{
			name:     "process failure",
			err:      errors.New("exec: axelard: not found"),
			expected: "exec: axelard: not found",
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			env := newDispatcherEnv("", func(context.Context, string, string, json.RawMessage) (*chainclient.TxResponse, error) {
				return tc.res, tc.err
			})
			broadcast, err := env.dispatcher.Dispatch(context.Background(), "axelar1gateway", json.RawMessage(`{"verify_messages":[]}`))
			require.NoError(t, err)
			env.dispatcher.Wait()

			stored, err := env.repo.Broadcasts.GetByID(context.Background(), broadcast.ID)
			require.NoError(t, err)
			require.Equal(t, gmp.BroadcastStatusFailed, stored.Status)
			require.Equal(t, tc.expected, *stored.Error)
			require.Nil(t, stored.TxHash)

			_, err = env.consume(t)
			require.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestDispatcher_InvalidPayload(t *testing.T) {
	t.Parallel()

	env := newDispatcherEnv("", nil)
	_, err := env.dispatcher.Dispatch(context.Background(), "axelar1gateway", json.RawMessage(`{"verify_messages":`))
	require.ErrorIs(t, err, relay.ErrInvalidPayload)
	require.Empty(t, env.client.Submissions())
}

func TestDispatcher_SerializesSubmissions(t *testing.T) {
	t.Parallel()

	env := newDispatcherEnv("", func(context.Context, string, string, json.RawMessage) (*chainclient.TxResponse, error) {
		time.Sleep(10 * time.Millisecond)
		return &chainclient.TxResponse{TxHash: "AB"}, nil
	})

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		broadcast, err := env.dispatcher.Dispatch(context.Background(), "axelar1gateway", json.RawMessage(`{"end_poll":{}}`))
		require.NoError(t, err)
		ids = append(ids, broadcast.ID)
	}
	env.dispatcher.Wait()

	require.Len(t, env.client.Submissions(), 5)
	require.Equal(t, 1, env.client.MaxConcurrentSubmissions())
	for _, id := range ids {
		stored, err := env.repo.Broadcasts.GetByID(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, gmp.BroadcastStatusSuccess, stored.Status)
	}
}

func TestDispatcher_Query(t *testing.T) {
	t.Parallel()

	env := newDispatcherEnv("", nil)
	env.client.OnQueryState = func(_ context.Context, contractAddress string, query json.RawMessage) ([]byte, error) {
		if contractAddress == "axelar1prover" {
			return []byte(`{"data":{"status":"pending"}}`), nil
		}
		return []byte("Error: contract not found\n"), nil
	}

	res, err := env.dispatcher.Query(context.Background(), "axelar1prover", json.RawMessage(`{"proof":{}}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"pending"}`, string(res))

	res, err = env.dispatcher.Query(context.Background(), "axelar1other", json.RawMessage(`{"proof":{}}`))
	require.NoError(t, err)
	require.JSONEq(t, `"Error: contract not found"`, string(res))

	_, err = env.dispatcher.Query(context.Background(), "axelar1prover", json.RawMessage(`{`))
	require.ErrorIs(t, err, relay.ErrInvalidPayload)
}

func TestFailureMessage(t *testing.T) {
	t.Parallel()

	cmdErr := &chainclient.CommandError{ExitCode: 2, Stderr: "stderr output"}
	for _, tc := range []struct {
		name     string
		res      *chainclient.TxResponse
		err      error
		expected string
	}{
		{"raw log wins", &chainclient.TxResponse{RawLog: "raw log", Code: 3}, cmdErr, "raw log"},
		{"stderr", nil, cmdErr, "stderr output"},
		{"empty stderr", nil, &chainclient.CommandError{ExitCode: 2}, "command exited with code 2: "},
		{"error", &chainclient.TxResponse{}, errors.New("boom"), "boom"},
		{"code only", &chainclient.TxResponse{TxHash: "AB", Code: 11}, nil, "tx AB failed with code 11"},
	} {
		require.Equal(t, tc.expected, relay.FailureMessage(tc.res, tc.err), tc.name)
	}
}

func TestPayloadKind(t *testing.T) {
	t.Parallel()

	require.Equal(t, relay.KindVerifyMessages, relay.PayloadKind([]byte(`{"verify_messages":[]}`)))
	require.Equal(t, relay.KindConstructProof, relay.PayloadKind([]byte(`{"construct_proof":[]}`)))
	require.Equal(t, "unknown", relay.PayloadKind([]byte(`{"a":1,"b":2}`)))
	require.Equal(t, "unknown", relay.PayloadKind([]byte(`[]`)))
}

func TestKeyedMutex(t *testing.T) {
	t.Parallel()

	m := relay.NewKeyedMutex()
	unlockA := m.Lock("a")

	// another key is not blocked
	unlockB := m.Lock("b")
	unlockB()

	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		unlock := m.Lock("a")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	wg.Wait()
	<-acquired
}
