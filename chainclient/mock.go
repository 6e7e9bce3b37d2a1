package chainclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type Submission struct {
	From            string
	ContractAddress string
	Msg             json.RawMessage
}

type SubmitFunc func(ctx context.Context, from, contractAddress string, msg json.RawMessage) (*TxResponse, error)

type QueryStateFunc func(ctx context.Context, contractAddress string, query json.RawMessage) ([]byte, error)

// MockClient is an in-memory chain. Submissions succeed with a random tx hash
// unless OnSubmit is set, history is seeded with AddTxs.
type MockClient struct {
	mu          sync.Mutex
	submissions []Submission
	history     map[string][]TxResponse
	queries     map[string]int
	inFlight    int
	maxInFlight int

	OnSubmit     SubmitFunc
	OnQueryState QueryStateFunc
}

func NewMockClient() *MockClient {
	return &MockClient{
		history: make(map[string][]TxResponse),
		queries: make(map[string]int),
	}
}

func historyKey(contractAddress, eventType string) string {
	return eventType + "|" + contractAddress
}

// AddTxs appends txs to the history of eventType emitted by the contract, oldest first.
func (c *MockClient) AddTxs(contractAddress, eventType string, txs ...TxResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := historyKey(contractAddress, eventType)
	c.history[key] = append(c.history[key], txs...)
}

func (c *MockClient) Submissions() []Submission {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Submission(nil), c.submissions...)
}

// MaxConcurrentSubmissions reports the highest number of submissions observed running at once.
func (c *MockClient) MaxConcurrentSubmissions() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.maxInFlight
}

// PageRequests reports how many history pages were requested for the event type and contract.
func (c *MockClient) PageRequests(contractAddress, eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.queries[historyKey(contractAddress, eventType)]
}

func (c *MockClient) SubmitTx(ctx context.Context, from, contractAddress string, msg json.RawMessage) (*TxResponse, error) {
	c.mu.Lock()
	c.submissions = append(c.submissions, Submission{From: from, ContractAddress: contractAddress, Msg: msg})
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	onSubmit := c.OnSubmit
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}()

	if onSubmit != nil {
		return onSubmit(ctx, from, contractAddress, msg)
	}
	return &TxResponse{
		Code:   0,
		TxHash: strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")),
	}, nil
}

func (c *MockClient) QueryContractState(ctx context.Context, contractAddress string, query json.RawMessage) ([]byte, error) {
	c.mu.Lock()
	onQueryState := c.OnQueryState
	c.mu.Unlock()

	if onQueryState == nil {
		return nil, fmt.Errorf("no contract state for %s", contractAddress)
	}
	return onQueryState(ctx, contractAddress, query)
}

func (c *MockClient) QueryEvents(_ context.Context, contractAddress, eventType string, page, limit int) (*SearchTxsResult, error) {
	if page < 1 || limit < 1 {
		return nil, fmt.Errorf("invalid page %d or limit %d", page, limit)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := historyKey(contractAddress, eventType)
	c.queries[key]++
	txs := c.history[key]
	res := &SearchTxsResult{TotalCount: Count(len(txs))}
	start := (page - 1) * limit
	if start >= len(txs) {
		return res, nil
	}
	end := start + limit
	if end > len(txs) {
		end = len(txs)
	}
	res.Txs = append([]TxResponse(nil), txs[start:end]...)
	return res, nil
}
