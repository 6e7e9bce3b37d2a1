package relay_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/omni/gmp-mock-api/entity"
	"github.com/omni/gmp-mock-api/gmp"
	"github.com/omni/gmp-mock-api/relay"
	"github.com/omni/gmp-mock-api/repository"
)

const testChain = "ethereum"

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func callEvent(eventID, messageID string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"type": "CALL",
		"eventID": %q,
		"meta": {"txID": "0xabc", "fromAddress": "0xsender", "finalized": true, "sourceContext": {"k": "v"}, "timestamp": "2024-06-01T12:00:00Z"},
		"message": {
			"messageID": %q,
			"sourceChain": "ethereum",
			"sourceAddress": "0xsource",
			"destinationAddress": "axelar1destination",
			"payloadHash": "0xhash"
		},
		"destinationChain": "axelar",
		"payload": "0xpayload"
	}`, eventID, messageID))
}

func gasCreditEvent(eventID, messageID string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"type": "GAS_CREDIT",
		"eventID": %q,
		"meta": {"txID": "0xdef", "timestamp": "2024-06-01T12:00:01Z"},
		"messageID": %q,
		"refundAddress": "0xrefund",
		"payment": {"tokenID": null, "amount": "1000"}
	}`, eventID, messageID))
}

func newIngestor(repo *repository.Repo) *relay.EventIngestor {
	logger := testLogger()
	return relay.NewEventIngestor(logger, repo, relay.NewCorrelator(logger, repo))
}

func findTasks(t *testing.T, repo *repository.Repo) []*entity.Task {
	t.Helper()
	tasks, err := repo.Tasks.FindAfter(context.Background(), testChain, "")
	require.NoError(t, err)
	return tasks
}

func requireAccepted(t *testing.T, results []gmp.PostEventResult) {
	t.Helper()
	for i, res := range results {
		require.Equal(t, gmp.EventStatusAccepted, res.Status, "event %d", i)
		require.Equal(t, i, res.Index)
	}
}

func TestEventIngestor_CreatesVerifyTaskInEitherOrder(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name   string
		events []json.RawMessage
	}{
		{
			name:   "call first",
			events: []json.RawMessage{callEvent("e1", "m1"), gasCreditEvent("e2", "m1")},
		},
		{
			name:   "gas credit first",
			events: []json.RawMessage{gasCreditEvent("e2", "m1"), callEvent("e1", "m1")},
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := repository.NewMemoryRepo()
			ingestor := newIngestor(repo)

			requireAccepted(t, ingestor.Ingest(context.Background(), testChain, tc.events[:1]))
			require.Empty(t, findTasks(t, repo))

			requireAccepted(t, ingestor.Ingest(context.Background(), testChain, tc.events[1:]))
			tasks := findTasks(t, repo)
			require.Len(t, tasks, 1)
			require.Equal(t, gmp.TaskTypeVerify, tasks[0].Type)
			require.Equal(t, "m1", *tasks[0].MessageID)

			decoded, err := tasks[0].Decode()
			require.NoError(t, err)
			verify, ok := decoded.(*gmp.VerifyTask)
			require.True(t, ok)
			require.Equal(t, testChain, verify.Chain)
			require.Equal(t, "m1", verify.Task.Message.MessageID)
			require.Equal(t, "0xpayload", verify.Task.Payload)
			require.NotNil(t, verify.Meta)
			require.Equal(t, "0xabc", *verify.Meta.TxID)
			require.Equal(t, "0xsender", *verify.Meta.FromAddress)
			require.True(t, *verify.Meta.Finalized)
			require.Equal(t, map[string]string{"k": "v"}, verify.Meta.SourceContext)
			require.Nil(t, verify.Meta.ScopedMessages)
		})
	}
}

func TestEventIngestor_ConcurrentHalves(t *testing.T) {
	t.Parallel()

	const messages = 50
	repo := repository.NewMemoryRepo()
	ingestor := newIngestor(repo)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []gmp.PostEventResult
	)
	start := make(chan struct{})
	for i := 0; i < messages; i++ {
		messageID := fmt.Sprintf("m%d", i)
		for _, event := range []json.RawMessage{
			callEvent("call-"+messageID, messageID),
			gasCreditEvent("gas-"+messageID, messageID),
		} {
			event := event
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				res := ingestor.Ingest(context.Background(), testChain, []json.RawMessage{event})
				mu.Lock()
				results = append(results, res...)
				mu.Unlock()
			}()
		}
	}
	close(start)
	wg.Wait()

	require.Len(t, results, 2*messages)
	for _, res := range results {
		require.Equal(t, gmp.EventStatusAccepted, res.Status)
	}

	perMessage := make(map[string]int)
	for _, task := range findTasks(t, repo) {
		require.Equal(t, gmp.TaskTypeVerify, task.Type)
		perMessage[*task.MessageID]++
	}
	require.Len(t, perMessage, messages)
	for messageID, count := range perMessage {
		require.Equal(t, 1, count, messageID)
	}
}

func TestEventIngestor_Duplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	ingestor := newIngestor(repo)

	requireAccepted(t, ingestor.Ingest(ctx, testChain, []json.RawMessage{
		callEvent("e1", "m1"),
		gasCreditEvent("e2", "m1"),
		gasCreditEvent("e2", "m1"),
		gasCreditEvent("e3", "m1"),
		callEvent("e1", "m1"),
	}))
	require.Len(t, findTasks(t, repo), 1)

	_, err := repo.Events.GetByID(ctx, "e3")
	require.Error(t, err)
}

func TestEventIngestor_ExistingVerifyTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	ingestor := newIngestor(repo)

	messageID := "m1"
	created, err := repo.Tasks.EnsureVerify(ctx, &entity.Task{
		ID:        "verify-1",
		Chain:     testChain,
		Type:      gmp.TaskTypeVerify,
		MessageID: &messageID,
		Task:      []byte(`{}`),
	})
	require.NoError(t, err)
	require.True(t, created)

	requireAccepted(t, ingestor.Ingest(ctx, testChain, []json.RawMessage{callEvent("e1", "m1"), gasCreditEvent("e2", "m1")}))
	tasks := findTasks(t, repo)
	require.Len(t, tasks, 1)
	require.Equal(t, "verify-1", tasks[0].ID)
}

func TestEventIngestor_OtherEventsAreStoredOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	ingestor := newIngestor(repo)

	requireAccepted(t, ingestor.Ingest(ctx, testChain, []json.RawMessage{json.RawMessage(`{
		"type": "MESSAGE_EXECUTED",
		"eventID": "e5",
		"meta": {"timestamp": "2024-06-01T12:00:00Z", "commandID": "0x01"},
		"messageID": "m1",
		"sourceChain": "ethereum",
		"status": "SUCCESSFUL",
		"cost": {"amount": "10"}
	}`)}))
	require.Empty(t, findTasks(t, repo))

	row, err := repo.Events.GetByID(ctx, "e5")
	require.NoError(t, err)
	require.Equal(t, gmp.EventTypeMessageExecuted, row.Type)
}

func TestEventIngestor_InvalidEvents(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryRepo()
	ingestor := newIngestor(repo)

	results := ingestor.Ingest(context.Background(), testChain, []json.RawMessage{
		json.RawMessage(`{"type": "UNSUPPORTED", "eventID": "e1"}`),
		json.RawMessage(`{"type": "GAS_CREDIT", "eventID": "e2"}`),
		json.RawMessage(`not json`),
		gasCreditEvent("e3", "m1"),
	})
	require.Len(t, results, 4)
	for i, res := range results[:3] {
		require.Equal(t, gmp.EventStatusError, res.Status, "event %d", i)
		require.Equal(t, i, res.Index)
		require.NotNil(t, res.Error)
		require.NotNil(t, res.Retriable)
		require.False(t, *res.Retriable)
	}
	require.Equal(t, gmp.EventStatusAccepted, results[3].Status)
	require.Equal(t, 3, results[3].Index)
}

func TestCorrelator_RejectsUncorrelatedTypes(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryRepo()
	correlator := relay.NewCorrelator(testLogger(), repo)

	event, err := gmp.ParseEvent([]byte(`{
		"type": "GAS_REFUNDED",
		"eventID": "e1",
		"messageID": "m1",
		"recipientAddress": "0xrecipient",
		"refundedAmount": {"amount": "1"},
		"cost": {"amount": "1"}
	}`))
	require.NoError(t, err)
	require.Error(t, correlator.Correlate(context.Background(), testChain, event))
}
