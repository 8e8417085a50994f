package platformapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicante-io/replicore/internal/model"
)

func TestDiscoverStreamsRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/discover", r.URL.Path)
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.Encode(model.ClusterDiscovery{ClusterID: "c1"})
		enc.Encode(model.ClusterDiscovery{ClusterID: "c2"})
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	var seen []string
	err := c.Discover(context.Background(), func(d model.ClusterDiscovery) error {
		seen = append(seen, d.ClusterID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, seen)
}

func TestProvisionDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req NodeProvisionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "group-a", req.GroupName)
		json.NewEncoder(w).Encode(NodeProvisionResponse{Count: 2, NodeIDs: []string{"n1", "n2"}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	resp, err := c.Provision(context.Background(), NodeProvisionRequest{GroupName: "group-a", Count: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, []string{"n1", "n2"}, resp.NodeIDs)
}

func TestRegistryDispatchesByScheme(t *testing.T) {
	reg := NewRegistry()
	RegisterHTTP(reg, nil)

	c, err := reg.Open("https://platform.example.com")
	require.NoError(t, err)
	assert.IsType(t, &HTTPClient{}, c)

	_, err = reg.Open("kubernetes://in-cluster")
	assert.Error(t, err)
}
