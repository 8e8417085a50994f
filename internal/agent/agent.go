// Package agent is the client-side contract for the per-node Agent API
// (spec.md §6): a sidecar exposing a single node's local store state and
// accepting node-action execution requests over HTTP.
package agent

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/replicante-io/replicore/internal/model"
)

// NodeInfo is the wire shape of `GET /info/node` (spec.md §6): the caller
// already knows ns_id/cluster_id/node_id from the discovery record, so this
// only carries what the Agent itself reports.
type NodeInfo struct {
	AgentVersion string            `json:"agent_version"`
	StoreID      string            `json:"store_id"`
	StoreVersion string            `json:"store_version"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	NodeStatus   model.NodeStatus  `json:"node_status"`
}

// Details converts the wire response into model.NodeDetails.
func (n NodeInfo) Details() model.NodeDetails {
	return model.NodeDetails{
		AgentVersion: n.AgentVersion,
		StoreID:      n.StoreID,
		StoreVersion: n.StoreVersion,
		Attributes:   n.Attributes,
	}
}

// ActionExecutionRequest is the body of a schedule request.
type ActionExecutionRequest struct {
	ActionID string         `json:"action_id"`
	Kind     string         `json:"kind"`
	Args     map[string]any `json:"args,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ActionExecution is the Agent's view of a single action it is executing.
type ActionExecution struct {
	ActionID string                `json:"action_id"`
	Kind     string                `json:"kind"`
	State    model.NActionState    `json:"state"`
}

// Client is the contract every Agent transport (HTTP today) must satisfy.
// An Agent instance is created per node address and is safe for concurrent
// use by a single orchestrate task run.
type Client interface {
	// InfoNode fetches the node's identity and health.
	InfoNode(ctx context.Context) (NodeInfo, error)

	// InfoShards fetches the node's shard layout, opaque to the control
	// plane beyond its JSON shape.
	InfoShards(ctx context.Context) (map[string]any, error)

	// InfoStore fetches store-process-specific extras.
	InfoStore(ctx context.Context) (map[string]any, error)

	// ActionSchedule asks the Agent to start executing req.
	ActionSchedule(ctx context.Context, req ActionExecutionRequest) error

	// ActionLookup fetches the current state of a previously scheduled
	// action. A not-found action is reported via apperr.NotFound.
	ActionLookup(ctx context.Context, actionID string) (ActionExecution, error)

	// ActionsQueue lists actions the Agent has accepted but not started.
	ActionsQueue(ctx context.Context) ([]ActionExecution, error)

	// ActionsFinished lists actions the Agent considers terminal.
	ActionsFinished(ctx context.Context) ([]ActionExecution, error)
}

// Factory builds a Client for a node given its agent address.
type Factory func(agentAddress string) Client

// Registry dispatches to a Factory by the agent address's URL scheme
// (spec.md §9: "Agent-client factories: model as a mapping kind →
// (metadata, handler) built once at startup and shared by cheap clone").
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds scheme (e.g. "http", "https") to factory.
func (r *Registry) Register(scheme string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[scheme] = factory
}

// Open builds a Client for agentAddress using the registered factory for
// its scheme.
func (r *Registry) Open(agentAddress string) (Client, error) {
	u, err := url.Parse(agentAddress)
	if err != nil {
		return nil, fmt.Errorf("agent: invalid agent address %q: %w", agentAddress, err)
	}

	r.mu.RLock()
	factory, ok := r.factories[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("agent: no client registered for scheme %q", u.Scheme)
	}
	return factory(agentAddress), nil
}
