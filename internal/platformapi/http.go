package platformapi

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
	"github.com/replicante-io/replicore/internal/model"
)

const (
	defaultTimeout = 15 * time.Second
	defaultBodyCap = int64(4 << 20) // 4 MiB, discovery streams can list many clusters
)

// HTTPClient is an http(s)-scheme Platform client: `discover()` is a
// newline-delimited JSON stream at GET /discover, provision/deprovision are
// plain JSON POSTs.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a Client against platformURL.
func NewHTTPClient(platformURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPClient{baseURL: strings.TrimRight(platformURL, "/"), client: client}
}

// RegisterHTTP binds the "http" and "https" schemes to HTTPClient on reg.
func RegisterHTTP(reg *Registry, client *http.Client) {
	factory := func(platformURL string) (Client, error) {
		return NewHTTPClient(platformURL, client), nil
	}
	reg.Register("http", factory)
	reg.Register("https", factory)
}

func (c *HTTPClient) Discover(ctx context.Context, yield func(model.ClusterDiscovery) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/discover", nil)
	if err != nil {
		return apperr.Infrastructure(err, "building platform discover request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return apperr.Remote(err, "platform discover request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, defaultBodyCap))
		return apperr.Remote(fmt.Errorf("status %d: %s", resp.StatusCode, string(payload)), "platform discover rejected")
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, defaultBodyCap))
	for dec.More() {
		var record model.ClusterDiscovery
		if err := dec.Decode(&record); err != nil {
			return apperr.Remote(err, "decoding platform discover stream")
		}
		if err := yield(record); err != nil {
			return err
		}
	}
	return nil
}

func (c *HTTPClient) Provision(ctx context.Context, req NodeProvisionRequest) (NodeProvisionResponse, error) {
	var resp NodeProvisionResponse
	err := c.doJSON(ctx, http.MethodPost, "/provision", req, &resp)
	return resp, err
}

func (c *HTTPClient) Deprovision(ctx context.Context, req NodeDeprovisionRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/deprovision", req, nil)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return apperr.Infrastructure(err, "encoding platform request body for %s", path)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return apperr.Infrastructure(err, "building platform request for %s", path)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperr.Remote(err, "platform request %s %s failed", method, path)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, defaultBodyCap)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(limited)
		return apperr.Remote(fmt.Errorf("status %d: %s", resp.StatusCode, string(payload)), "platform request %s %s rejected", method, path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return apperr.Remote(err, "decoding platform response from %s", path)
	}
	return nil
}
