package chainclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/omni/gmp-mock-api/config"
)

var (
	ErrNoTotalCount = errors.New("tx search result has no total count")
	ErrTxNotFound   = errors.New("tx is not found")
)

type Client interface {
	// SubmitTx executes msg on the contract, signed by the from account.
	SubmitTx(ctx context.Context, from, contractAddress string, msg json.RawMessage) (*TxResponse, error)
	// QueryContractState runs a smart query against the contract and returns the raw response.
	QueryContractState(ctx context.Context, contractAddress string, query json.RawMessage) ([]byte, error)
	// QueryEvents pages through txs that emitted eventType from the contract, pages start from 1.
	QueryEvents(ctx context.Context, contractAddress, eventType string, page, limit int) (*SearchTxsResult, error)
}

// CommandError is returned when the chain CLI exits with a non-zero code.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command exited with code %d: %s", e.ExitCode, strings.TrimSpace(e.Stderr))
}

func NewClient(cfg *config.ChainConfig) (Client, error) {
	switch cfg.Mode {
	case config.ChainModeCLI:
		return NewCLIClient(cfg), nil
	case config.ChainModeRPC:
		client, err := NewCometClient(cfg.Node, cfg.Timeout, NewCLIClient(cfg))
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ChainModeMock:
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported chain mode %q", cfg.Mode)
	}
}

func eventQuery(contractAddress, eventType string) string {
	return fmt.Sprintf("%s._contract_address='%s'", eventType, contractAddress)
}
