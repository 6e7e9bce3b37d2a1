package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// APIError is returned for non 2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api responded with %d: %s", e.StatusCode, e.Body)
}

func (c *apiClient) do(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("can't create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("can't %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	res, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("can't read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(res))}
	}
	return res, nil
}

func (c *apiClient) PostEvents(ctx context.Context, chain string, events []json.RawMessage) (json.RawMessage, error) {
	body, err := json.Marshal(map[string][]json.RawMessage{"events": events})
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, "/chains/"+url.PathEscape(chain)+"/events", body)
}

func (c *apiClient) PostTask(ctx context.Context, chain string, task json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/chains/"+url.PathEscape(chain)+"/task", task)
}

func (c *apiClient) ListTasks(ctx context.Context, chain, after string) (json.RawMessage, error) {
	path := "/chains/" + url.PathEscape(chain) + "/tasks"
	if after != "" {
		path += "?after=" + url.QueryEscape(after)
	}
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *apiClient) Broadcast(ctx context.Context, contractAddress string, payload json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/contracts/"+url.PathEscape(contractAddress)+"/broadcasts", payload)
}

func (c *apiClient) BroadcastStatus(ctx context.Context, contractAddress, broadcastID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/contracts/"+url.PathEscape(contractAddress)+"/broadcasts/"+url.PathEscape(broadcastID), nil)
}

func (c *apiClient) Query(ctx context.Context, contractAddress string, query json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/contracts/"+url.PathEscape(contractAddress)+"/queries", query)
}
