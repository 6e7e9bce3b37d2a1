package chainclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
)

const cometClientName = "comet"

// CometClient searches tx history through the CometBFT RPC and delegates
// signing and contract queries to another client.
type CometClient struct {
	url      string
	timeout  time.Duration
	rpc      *rpchttp.HTTP
	fallback Client
}

func NewCometClient(url string, timeout time.Duration, fallback Client) (*CometClient, error) {
	rpc, err := rpchttp.NewWithTimeout(url, "/websocket", uint(timeout.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("can't create comet rpc client: %w", err)
	}
	return &CometClient{
		url:      url,
		timeout:  timeout,
		rpc:      rpc,
		fallback: fallback,
	}, nil
}

func (c *CometClient) SubmitTx(ctx context.Context, from, contractAddress string, msg json.RawMessage) (*TxResponse, error) {
	return c.fallback.SubmitTx(ctx, from, contractAddress, msg)
}

func (c *CometClient) QueryContractState(ctx context.Context, contractAddress string, query json.RawMessage) ([]byte, error) {
	return c.fallback.QueryContractState(ctx, contractAddress, query)
}

func (c *CometClient) QueryEvents(ctx context.Context, contractAddress, eventType string, page, limit int) (*SearchTxsResult, error) {
	defer ObserveDuration(cometClientName, "tx_search")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// ascending order keeps the newest txs on the last page
	res, err := c.rpc.TxSearch(ctx, eventQuery(contractAddress, eventType), false, &page, &limit, "asc")
	ObserveError(cometClientName, "tx_search", err)
	if err != nil {
		return nil, fmt.Errorf("can't search txs: %w", err)
	}

	blockTimes := make(map[int64]string, len(res.Txs))
	txs := make([]TxResponse, 0, len(res.Txs))
	for _, tx := range res.Txs {
		ts, ok := blockTimes[tx.Height]
		if !ok {
			ts, err = c.blockTime(ctx, tx.Height)
			if err != nil {
				return nil, err
			}
			blockTimes[tx.Height] = ts
		}
		txs = append(txs, convertTx(tx, ts))
	}
	return &SearchTxsResult{
		TotalCount: Count(res.TotalCount),
		Txs:        txs,
	}, nil
}

func (c *CometClient) blockTime(ctx context.Context, height int64) (string, error) {
	defer ObserveDuration(cometClientName, "block")()

	block, err := c.rpc.Block(ctx, &height)
	ObserveError(cometClientName, "block", err)
	if err != nil {
		return "", fmt.Errorf("can't get block %d: %w", height, err)
	}
	return block.Block.Header.Time.UTC().Format(time.RFC3339Nano), nil
}

func convertTx(tx *coretypes.ResultTx, timestamp string) TxResponse {
	return TxResponse{
		Height:    strconv.FormatInt(tx.Height, 10),
		TxHash:    tx.Hash.String(),
		Code:      tx.TxResult.Code,
		Codespace: tx.TxResult.Codespace,
		RawLog:    tx.TxResult.Log,
		Events:    convertEvents(tx.TxResult.Events),
		Timestamp: timestamp,
	}
}

func convertEvents(events []abci.Event) []StringEvent {
	res := make([]StringEvent, 0, len(events))
	for _, event := range events {
		attrs := make([]Attribute, 0, len(event.Attributes))
		for _, attr := range event.Attributes {
			attrs = append(attrs, Attribute{Key: attr.Key, Value: attr.Value})
		}
		res = append(res, StringEvent{Type: event.Type, Attributes: attrs})
	}
	return res
}
