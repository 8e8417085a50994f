// Package platformapi is the client-side contract for the Platform API
// (spec.md §6): an external infrastructure provider capable of discovering
// existing cluster membership and provisioning/deprovisioning nodes.
package platformapi

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/replicante-io/replicore/internal/model"
)

// NodeProvisionRequest asks a Platform to create nodes for a node group.
type NodeProvisionRequest struct {
	ClusterID string         `json:"cluster_id"`
	GroupName string         `json:"group_name"`
	Count     int            `json:"count"`
	Attrs     map[string]any `json:"attrs,omitempty"`
	StoreKind string         `json:"store_kind"`
}

// NodeProvisionResponse reports what a Platform actually created; node_ids
// is optional since some platforms provision asynchronously.
type NodeProvisionResponse struct {
	Count   int      `json:"count"`
	NodeIDs []string `json:"node_ids,omitempty"`
}

// NodeDeprovisionRequest asks a Platform to destroy specific nodes.
type NodeDeprovisionRequest struct {
	ClusterID string   `json:"cluster_id"`
	NodeIDs   []string `json:"node_ids"`
}

// Client is the contract every Platform transport must satisfy. A Client
// instance is created per configured Platform record and is safe for
// concurrent use.
type Client interface {
	// Discover yields the current ClusterDiscovery records this platform
	// knows about, fed one at a time to yield as each is produced rather
	// than waiting to buffer them all.
	Discover(ctx context.Context, yield func(model.ClusterDiscovery) error) error

	// Provision requests new nodes.
	Provision(ctx context.Context, req NodeProvisionRequest) (NodeProvisionResponse, error)

	// Deprovision destroys the named nodes.
	Deprovision(ctx context.Context, req NodeDeprovisionRequest) error
}

// Factory builds a Client for a platform's configured URL.
type Factory func(platformURL string) (Client, error)

// Registry dispatches to a Factory by the platform URL's scheme (spec.md
// §9: "Platform-client factories per URL scheme... model as a mapping kind
// → (metadata, handler) built once at startup and shared by cheap clone").
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds scheme (e.g. "https", "kubernetes") to factory.
func (r *Registry) Register(scheme string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[scheme] = factory
}

// Open builds a Client for platformURL using the registered factory for its
// scheme.
func (r *Registry) Open(platformURL string) (Client, error) {
	u, err := url.Parse(platformURL)
	if err != nil {
		return nil, fmt.Errorf("platformapi: invalid platform url %q: %w", platformURL, err)
	}

	r.mu.RLock()
	factory, ok := r.factories[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("platformapi: no client registered for scheme %q", u.Scheme)
	}
	return factory(platformURL)
}
