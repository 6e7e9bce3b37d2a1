package chainclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/omni/gmp-mock-api/config"
)

const (
	cliClientName = "cli"
	retryDelay    = 400 * time.Millisecond

	defaultTxPollInterval = time.Second
)

// Runner executes an external command and returns its stdout and stderr.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), stderr.Bytes(), &CommandError{
			Args:     args,
			ExitCode: exitErr.ExitCode(),
			Stderr:   stderr.String(),
		}
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

// CLIClient talks to the chain through its command line binary.
type CLIClient struct {
	binary         string
	node           string
	chainID        string
	keyringBackend string
	gasPrices      string
	gasAdjustment  string
	timeout        time.Duration
	attempts       uint
	txPollInterval time.Duration
	run            Runner
}

func NewCLIClient(cfg *config.ChainConfig) *CLIClient {
	return &CLIClient{
		binary:         cfg.Binary,
		node:           cfg.Node,
		chainID:        cfg.ChainID,
		keyringBackend: cfg.KeyringBackend,
		gasPrices:      cfg.GasPrices,
		gasAdjustment:  cfg.GasAdjustment,
		timeout:        cfg.Timeout,
		attempts:       cfg.RetryAttempts,
		txPollInterval: defaultTxPollInterval,
		run:            execRunner,
	}
}

// WithRunner replaces the command runner, used to stub the binary out.
func (c *CLIClient) WithRunner(run Runner) *CLIClient {
	c.run = run
	return c
}

// WithTxPollInterval sets how often an unconfirmed tx is looked up.
func (c *CLIClient) WithTxPollInterval(interval time.Duration) *CLIClient {
	if interval > 0 {
		c.txPollInterval = interval
	}
	return c
}

func (c *CLIClient) exec(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args = append(args, "--node", c.node, "--output", "json")
	stdout, _, err := c.run(ctx, c.binary, args...)
	return stdout, err
}

func (c *CLIClient) retry(ctx context.Context, f func() error) error {
	return retry.Do(f,
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}),
	)
}

func (c *CLIClient) SubmitTx(ctx context.Context, from, contractAddress string, msg json.RawMessage) (*TxResponse, error) {
	defer ObserveDuration(cliClientName, "tx_wasm_execute")()

	args := []string{
		"tx", "wasm", "execute", contractAddress, string(msg),
		"--from", from,
		"--chain-id", c.chainID,
		"--keyring-backend", c.keyringBackend,
		"--gas", "auto",
		"--gas-adjustment", c.gasAdjustment,
		"--yes",
	}
	if c.gasPrices != "" {
		args = append(args, "--gas-prices", c.gasPrices)
	}
	stdout, err := c.exec(ctx, args...)
	ObserveError(cliClientName, "tx_wasm_execute", err)
	res := new(TxResponse)
	if err != nil {
		// a rejected tx may still be reported on stdout next to the non-zero exit code
		if jsonErr := json.Unmarshal(stdout, res); jsonErr == nil && res.Code != 0 {
			return res, nil
		}
		return nil, err
	}
	if err = json.Unmarshal(stdout, res); err != nil {
		return nil, fmt.Errorf("can't decode tx response: %w", err)
	}
	if res.Code != 0 || len(res.AllEvents()) > 0 {
		return res, nil
	}

	// sync broadcast only returns the check tx outcome, wait for the tx to be included
	included, err := c.waitTx(ctx, res.TxHash)
	if err != nil {
		return nil, fmt.Errorf("can't get included tx %s: %w", res.TxHash, err)
	}
	return included, nil
}

// waitTx polls for the tx until it is included or the chain timeout expires,
// lookup errors are retried until then.
func (c *CLIClient) waitTx(ctx context.Context, txHash string) (*TxResponse, error) {
	defer ObserveDuration(cliClientName, "query_tx")()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		res     *TxResponse
		lastErr error
	)
	err := retry.Do(func() error {
		lastErr = c.queryTx(ctx, txHash, &res)
		return lastErr
	},
		retry.Context(ctx),
		retry.Attempts(uint(c.timeout/c.txPollInterval)+1),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(c.txPollInterval),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}),
	)
	ObserveError(cliClientName, "query_tx", err)
	if err != nil {
		if lastErr != nil && !errors.Is(err, lastErr) {
			err = fmt.Errorf("%w, last lookup error: %s", err, lastErr.Error())
		}
		return nil, fmt.Errorf("tx is not included within %s: %w", c.timeout, err)
	}
	return res, nil
}

func (c *CLIClient) queryTx(ctx context.Context, txHash string, out **TxResponse) error {
	stdout, err := c.exec(ctx, "query", "tx", txHash)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && strings.Contains(cmdErr.Stderr, "not found") {
			return fmt.Errorf("%s: %w", strings.TrimSpace(cmdErr.Stderr), ErrTxNotFound)
		}
		return err
	}
	res := new(TxResponse)
	if err = json.Unmarshal(stdout, res); err != nil {
		return fmt.Errorf("can't decode tx response: %w", err)
	}
	if res.TxHash == "" {
		return ErrTxNotFound
	}
	*out = res
	return nil
}

func (c *CLIClient) QueryContractState(ctx context.Context, contractAddress string, query json.RawMessage) ([]byte, error) {
	defer ObserveDuration(cliClientName, "query_contract_state")()

	var res []byte
	err := c.retry(ctx, func() error {
		var err error
		res, err = c.exec(ctx, "query", "wasm", "contract-state", "smart", contractAddress, string(query))
		return err
	})
	ObserveError(cliClientName, "query_contract_state", err)
	return res, err
}

func (c *CLIClient) QueryEvents(ctx context.Context, contractAddress, eventType string, page, limit int) (*SearchTxsResult, error) {
	defer ObserveDuration(cliClientName, "query_txs")()

	var res *SearchTxsResult
	err := c.retry(ctx, func() error {
		stdout, err := c.exec(ctx, "query", "txs",
			"--events", fmt.Sprintf("%s._contract_address=%s", eventType, contractAddress),
			"--limit", strconv.Itoa(limit),
			"--page", strconv.Itoa(page),
		)
		if err != nil {
			return err
		}
		res = new(SearchTxsResult)
		if err = json.Unmarshal(stdout, res); err != nil {
			return fmt.Errorf("can't decode tx search result: %w", err)
		}
		return nil
	})
	ObserveError(cliClientName, "query_txs", err)
	return res, err
}
