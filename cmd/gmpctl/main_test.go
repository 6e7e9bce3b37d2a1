package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	response string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.RequestURI(), Body: string(body)})
	status, response := f.status, f.response
	f.mu.Unlock()

	w.WriteHeader(status)
	_, _ = w.Write([]byte(response))
}

func (f *fakeAPI) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func run(t *testing.T, api *fakeAPI, stdin string, args ...string) (string, error) {
	t.Helper()

	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--url", server.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name     string
		args     []string
		stdin    string
		expected recordedRequest
	}{
		{
			name:     "post single event",
			args:     []string{"events", "post", "ethereum", `{"type":"CALL"}`},
			expected: recordedRequest{http.MethodPost, "/chains/ethereum/events", `{"events":[{"type":"CALL"}]}`},
		},
		{
			name:     "post event batch from stdin",
			args:     []string{"events", "post", "ethereum", "-"},
			stdin:    `[{"type":"CALL"},{"type":"GAS_CREDIT"}]`,
			expected: recordedRequest{http.MethodPost, "/chains/ethereum/events", `{"events":[{"type":"CALL"},{"type":"GAS_CREDIT"}]}`},
		},
		{
			name:     "post task",
			args:     []string{"task", "post", "xrpl", `{"id":"t1"}`},
			expected: recordedRequest{http.MethodPost, "/chains/xrpl/task", `{"id":"t1"}`},
		},
		{
			name:     "list tasks after",
			args:     []string{"tasks", "list", "xrpl", "--after", "t1"},
			expected: recordedRequest{http.MethodGet, "/chains/xrpl/tasks?after=t1", ""},
		},
		{
			name:     "broadcast",
			args:     []string{"broadcast", "send", "axelar1gateway", `{"verify_messages":[]}`},
			expected: recordedRequest{http.MethodPost, "/contracts/axelar1gateway/broadcasts", `{"verify_messages":[]}`},
		},
		{
			name:     "broadcast status",
			args:     []string{"broadcast", "status", "axelar1gateway", "b1"},
			expected: recordedRequest{http.MethodGet, "/contracts/axelar1gateway/broadcasts/b1", ""},
		},
		{
			name:     "query",
			args:     []string{"query", "axelar1prover", `{"proof":{}}`},
			expected: recordedRequest{http.MethodPost, "/contracts/axelar1prover/queries", `{"proof":{}}`},
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			api := &fakeAPI{status: http.StatusOK, response: `{"ok":true}`}
			out, err := run(t, api, tc.stdin, tc.args...)
			require.NoError(t, err)
			require.Equal(t, "{\n  \"ok\": true\n}\n", out)
			require.Equal(t, tc.expected, api.last())
		})
	}
}

func TestCommands_APIError(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{status: http.StatusNotFound, response: `{"error":"not found"}`}
	_, err := run(t, api, "", "broadcast", "status", "axelar1gateway", "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.Equal(t, `{"error":"not found"}`, apiErr.Body)
}

func TestCommands_InvalidInput(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{status: http.StatusOK}
	_, err := run(t, api, "", "task", "post", "xrpl", `{"id":`)
	require.ErrorIs(t, err, errInvalidInput)
	require.Empty(t, api.requests)
}
