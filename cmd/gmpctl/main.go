package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var errInvalidInput = errors.New("input is not a valid json document")

type rootOptions struct {
	url     string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "gmpctl",
		Short:         "Command line client for the GMP mock API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.url, "url", envOr("GMP_API_URL", "http://localhost:3000"), "base url of the api")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		newEventsCmd(opts),
		newTaskCmd(opts),
		newTasksCmd(opts),
		newBroadcastCmd(opts),
		newQueryCmd(opts),
	)
	return root
}

func (o *rootOptions) client() *apiClient {
	return newAPIClient(o.url, o.timeout)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// readInput returns the json document passed as argument, "-" reads it from stdin and @path from a file.
func readInput(cmd *cobra.Command, arg string) (json.RawMessage, error) {
	var blob []byte
	switch {
	case arg == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("can't read stdin: %w", err)
		}
		blob = data
	case len(arg) > 0 && arg[0] == '@':
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("can't read input file: %w", err)
		}
		blob = data
	default:
		blob = []byte(arg)
	}
	blob = bytes.TrimSpace(blob)
	if !json.Valid(blob) {
		return nil, errInvalidInput
	}
	return blob, nil
}

func printJSON(cmd *cobra.Command, res json.RawMessage) error {
	var out bytes.Buffer
	if err := json.Indent(&out, res, "", "  "); err != nil {
		_, err = cmd.OutOrStdout().Write(res)
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(cmd.OutOrStdout())
	return err
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
