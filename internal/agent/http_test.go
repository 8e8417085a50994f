package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/internal/model"
)

func TestInfoNodeDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/info/node", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(NodeInfo{
			AgentVersion: "1.2.3",
			StoreID:      "mongodb",
			StoreVersion: "6.0",
			NodeStatus:   model.NodeHealthy,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	info, err := c.InfoNode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", info.AgentVersion)
	assert.Equal(t, model.NodeHealthy, info.NodeStatus)
}

func TestInfoNodeNotFoundMapsToApperr(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	_, err := c.InfoNode(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestActionScheduleSendsRequestBody(t *testing.T) {
	var received ActionExecutionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	err := c.ActionSchedule(context.Background(), ActionExecutionRequest{ActionID: "a1", Kind: "restart"})
	require.NoError(t, err)
	assert.Equal(t, "a1", received.ActionID)
	assert.Equal(t, "restart", received.Kind)
}

func TestActionsFinishedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	_, err := c.ActionsFinished(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindRemote, apperr.KindOf(err))
}
