package chainclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omni/gmp-mock-api/chainclient"
	"github.com/omni/gmp-mock-api/config"
)

func testChainConfig() *config.ChainConfig {
	return &config.ChainConfig{
		Mode:           config.ChainModeCLI,
		Binary:         "axelard",
		Node:           "http://localhost:26657",
		ChainID:        "axelar-testnet",
		KeyringBackend: "test",
		GasAdjustment:  "1.4",
		Timeout:        time.Second,
		RetryAttempts:  3,
	}
}

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls   []call
	results []func() ([]byte, []byte, error)
}

func (r *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.calls = append(r.calls, call{name: name, args: args})
	if len(r.results) == 0 {
		return nil, nil, errors.New("unexpected call")
	}
	next := r.results[0]
	if len(r.results) > 1 {
		r.results = r.results[1:]
	}
	return next()
}

func ok(out string) func() ([]byte, []byte, error) {
	return func() ([]byte, []byte, error) { return []byte(out), nil, nil }
}

func fail(code int, stderr string) func() ([]byte, []byte, error) {
	return func() ([]byte, []byte, error) {
		return nil, []byte(stderr), &chainclient.CommandError{ExitCode: code, Stderr: stderr}
	}
}

func TestTxResponse_Helpers(t *testing.T) {
	t.Parallel()

	var res chainclient.TxResponse
	require.NoError(t, json.Unmarshal([]byte(`{
		"height": "1234",
		"txhash": "ABCD",
		"code": 0,
		"timestamp": "2024-06-01T12:00:00Z",
		"logs": [{"msg_index": 0, "events": [{"type": "wasm-messages_poll_started", "attributes": [{"key": "poll_id", "value": "\"42\""}]}]}],
		"events": [{"type": "tx", "attributes": [{"key": "fee", "value": "1uaxl"}]}]
	}`), &res))

	require.Equal(t, uint64(1234), res.BlockHeight())
	ts, ok := res.Time()
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), ts)
	require.Len(t, res.AllEvents(), 2)

	event, found := res.FindEvent("wasm-messages_poll_started")
	require.True(t, found)
	pollID, found := event.Attribute("poll_id")
	require.True(t, found)
	require.Equal(t, `"42"`, pollID)
	_, found = event.Attribute("missing")
	require.False(t, found)
	_, found = res.FindEvent("wasm-other")
	require.False(t, found)

	res.Height = "not-a-number"
	require.Zero(t, res.BlockHeight())
	res.Timestamp = ""
	_, ok = res.Time()
	require.False(t, ok)
}

func TestSearchTxsResult_TotalCount(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{`{"total_count":"399"}`, `{"total_count":399}`} {
		var res chainclient.SearchTxsResult
		require.NoError(t, json.Unmarshal([]byte(raw), &res))
		require.Equal(t, chainclient.Count(399), res.TotalCount)
	}
	var res chainclient.SearchTxsResult
	require.ErrorIs(t, json.Unmarshal([]byte(`{"total_count":null}`), &res), chainclient.ErrNoTotalCount)
	require.Error(t, json.Unmarshal([]byte(`{"total_count":"many"}`), &res))
}

func TestCLIClient_SubmitTx(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{results: []func() ([]byte, []byte, error){
		ok(`{"txhash":"ABCD","code":0,"raw_log":"[]"}`),
		fail(1, "tx (ABCD) not found"),
		ok(`{"txhash":"ABCD","code":0,"height":"10","events":[{"type":"wasm-messages_poll_started","attributes":[]}]}`),
	}}
	client := chainclient.NewCLIClient(testChainConfig()).WithRunner(runner.run).WithTxPollInterval(time.Millisecond)

	res, err := client.SubmitTx(context.Background(), "relayer", "axelar1gateway", json.RawMessage(`{"verify_messages":[]}`))
	require.NoError(t, err)
	require.Equal(t, "ABCD", res.TxHash)
	require.Equal(t, uint64(10), res.BlockHeight())

	require.Len(t, runner.calls, 3)
	require.Equal(t, "axelard", runner.calls[0].name)
	args := strings.Join(runner.calls[0].args, " ")
	require.Contains(t, args, `tx wasm execute axelar1gateway {"verify_messages":[]} --from relayer`)
	require.Contains(t, args, "--chain-id axelar-testnet")
	require.Contains(t, args, "--node http://localhost:26657 --output json")
	require.Equal(t, []string{"query", "tx", "ABCD"}, runner.calls[1].args[:3])
}

func TestCLIClient_SubmitTxWaitsForInclusion(t *testing.T) {
	t.Parallel()

	cfg := testChainConfig()
	results := []func() ([]byte, []byte, error){ok(`{"txhash":"ABCD","code":0}`)}
	for i := uint(0); i < cfg.RetryAttempts+3; i++ {
		results = append(results, fail(1, "tx (ABCD) not found"))
	}
	results = append(results, ok(`{"txhash":"ABCD","code":0,"height":"12","logs":[{"events":[{"type":"wasm-messages_poll_started","attributes":[{"key":"poll_id","value":"\"9\""}]}]}]}`))
	runner := &fakeRunner{results: results}
	client := chainclient.NewCLIClient(cfg).WithRunner(runner.run).WithTxPollInterval(time.Millisecond)

	res, err := client.SubmitTx(context.Background(), "relayer", "axelar1gateway", json.RawMessage(`{"verify_messages":[]}`))
	require.NoError(t, err)
	require.Equal(t, uint32(0), res.Code)
	require.Equal(t, uint64(12), res.BlockHeight())
	require.Len(t, runner.calls, len(results))
}

func TestCLIClient_SubmitTxInclusionTimeout(t *testing.T) {
	t.Parallel()

	cfg := testChainConfig()
	cfg.Timeout = 50 * time.Millisecond
	runner := &fakeRunner{results: []func() ([]byte, []byte, error){
		ok(`{"txhash":"ABCD","code":0}`),
		fail(1, "tx (ABCD) not found"),
	}}
	client := chainclient.NewCLIClient(cfg).WithRunner(runner.run).WithTxPollInterval(5 * time.Millisecond)

	_, err := client.SubmitTx(context.Background(), "relayer", "axelar1gateway", json.RawMessage(`{}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "tx (ABCD) not found")
	require.Greater(t, len(runner.calls), 2)
}

func TestCLIClient_SubmitTxRejected(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{results: []func() ([]byte, []byte, error){
		func() ([]byte, []byte, error) {
			return []byte(`{"txhash":"EF01","code":5,"raw_log":"insufficient funds"}`), nil, &chainclient.CommandError{ExitCode: 1}
		},
	}}
	client := chainclient.NewCLIClient(testChainConfig()).WithRunner(runner.run)

	res, err := client.SubmitTx(context.Background(), "relayer", "axelar1gateway", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Equal(t, uint32(5), res.Code)
	require.Equal(t, "insufficient funds", res.RawLog)

	runner = &fakeRunner{results: []func() ([]byte, []byte, error){fail(1, "account sequence mismatch")}}
	client = chainclient.NewCLIClient(testChainConfig()).WithRunner(runner.run)
	_, err = client.SubmitTx(context.Background(), "relayer", "axelar1gateway", json.RawMessage(`{}`))
	var cmdErr *chainclient.CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, "account sequence mismatch", cmdErr.Stderr)
	require.Len(t, runner.calls, 1)
}

func TestCLIClient_QueryEventsRetries(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{results: []func() ([]byte, []byte, error){
		fail(1, "connection refused"),
		ok(`{"total_count":"3","txs":[{"txhash":"A"},{"txhash":"B"}]}`),
	}}
	client := chainclient.NewCLIClient(testChainConfig()).WithRunner(runner.run)

	res, err := client.QueryEvents(context.Background(), "axelar1verifier", "wasm-quorum_reached", 2, 100)
	require.NoError(t, err)
	require.Equal(t, chainclient.Count(3), res.TotalCount)
	require.Len(t, res.Txs, 2)
	require.Len(t, runner.calls, 2)
	require.Equal(t, []string{
		"query", "txs",
		"--events", "wasm-quorum_reached._contract_address=axelar1verifier",
		"--limit", "100",
		"--page", "2",
		"--node", "http://localhost:26657",
		"--output", "json",
	}, runner.calls[1].args)
}

func TestCLIClient_QueryContractState(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{results: []func() ([]byte, []byte, error){ok(`{"data":{"status":"pending"}}`)}}
	client := chainclient.NewCLIClient(testChainConfig()).WithRunner(runner.run)

	res, err := client.QueryContractState(context.Background(), "axelar1prover", json.RawMessage(`{"proof":{"multisig_session_id":"7"}}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"data":{"status":"pending"}}`, string(res))
	require.Equal(t, []string{"query", "wasm", "contract-state", "smart", "axelar1prover", `{"proof":{"multisig_session_id":"7"}}`}, runner.calls[0].args[:6])
}

func TestMockClient_QueryEventsPaging(t *testing.T) {
	t.Parallel()

	client := chainclient.NewMockClient()
	txs := make([]chainclient.TxResponse, 0, 250)
	for i := 0; i < 250; i++ {
		txs = append(txs, chainclient.TxResponse{TxHash: string(rune('A' + i%26))})
	}
	client.AddTxs("axelar1multisig", "wasm-signing_completed", txs...)

	res, err := client.QueryEvents(context.Background(), "axelar1multisig", "wasm-signing_completed", 3, 100)
	require.NoError(t, err)
	require.Equal(t, chainclient.Count(250), res.TotalCount)
	require.Len(t, res.Txs, 50)

	res, err = client.QueryEvents(context.Background(), "axelar1multisig", "wasm-signing_completed", 4, 100)
	require.NoError(t, err)
	require.Empty(t, res.Txs)
	require.Equal(t, 2, client.PageRequests("axelar1multisig", "wasm-signing_completed"))

	res, err = client.QueryEvents(context.Background(), "axelar1other", "wasm-signing_completed", 1, 1)
	require.NoError(t, err)
	require.Zero(t, res.TotalCount)
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	cfg := testChainConfig()
	client, err := chainclient.NewClient(cfg)
	require.NoError(t, err)
	require.IsType(t, &chainclient.CLIClient{}, client)

	cfg.Mode = config.ChainModeMock
	client, err = chainclient.NewClient(cfg)
	require.NoError(t, err)
	require.IsType(t, &chainclient.MockClient{}, client)

	cfg.Mode = "grpc"
	_, err = chainclient.NewClient(cfg)
	require.Error(t, err)
}
