package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/replicante-io/replicore/internal/apperr"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultBodyCap  = int64(1 << 20) // 1 MiB, matches the teacher's HTTP resolver cap
)

// HTTPClient is the default Agent Client implementation: plain net/http
// using the agent address, which already includes its scheme, as the base
// URL.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a Client for the given agent address. When client is
// nil a sensible default with a per-request timeout is used.
func NewHTTPClient(agentAddress string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPClient{baseURL: strings.TrimRight(agentAddress, "/"), client: client}
}

func HTTPFactory(client *http.Client) Factory {
	return func(agentAddress string) Client {
		return NewHTTPClient(agentAddress, client)
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return apperr.Infrastructure(err, "encoding agent request body for %s", path)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return apperr.Infrastructure(err, "building agent request for %s", path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return apperr.Remote(err, "agent request %s %s failed", method, path)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, defaultBodyCap)

	if resp.StatusCode == http.StatusNotFound {
		return apperr.NotFound("AgentResourceNotFound", "agent has no resource at %s", path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(limited)
		return apperr.Remote(fmt.Errorf("status %d: %s", resp.StatusCode, string(payload)), "agent request %s %s rejected", method, path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return apperr.Remote(err, "decoding agent response from %s", path)
	}
	return nil
}

func (c *HTTPClient) InfoNode(ctx context.Context) (NodeInfo, error) {
	var info NodeInfo
	err := c.do(ctx, http.MethodGet, "/info/node", nil, &info)
	return info, err
}

func (c *HTTPClient) InfoShards(ctx context.Context) (map[string]any, error) {
	var shards map[string]any
	err := c.do(ctx, http.MethodGet, "/info/shards", nil, &shards)
	return shards, err
}

func (c *HTTPClient) InfoStore(ctx context.Context) (map[string]any, error) {
	var extras map[string]any
	err := c.do(ctx, http.MethodGet, "/info/store", nil, &extras)
	return extras, err
}

func (c *HTTPClient) ActionSchedule(ctx context.Context, req ActionExecutionRequest) error {
	return c.do(ctx, http.MethodPost, "/action", req, nil)
}

func (c *HTTPClient) ActionLookup(ctx context.Context, actionID string) (ActionExecution, error) {
	var exec ActionExecution
	err := c.do(ctx, http.MethodGet, "/action/"+actionID, nil, &exec)
	return exec, err
}

func (c *HTTPClient) ActionsQueue(ctx context.Context) ([]ActionExecution, error) {
	var execs []ActionExecution
	err := c.do(ctx, http.MethodGet, "/actions/queue", nil, &execs)
	return execs, err
}

func (c *HTTPClient) ActionsFinished(ctx context.Context) ([]ActionExecution, error) {
	var execs []ActionExecution
	err := c.do(ctx, http.MethodGet, "/actions/finished", nil, &execs)
	return execs, err
}
