// Package store defines typed CRUD interfaces over the entities in
// internal/model, following the teacher's per-entity interface pattern
// (internal/app/storage/interfaces.go) generalized to Replicante's
// scoped-key entity family. Implementations live in store/postgres (a
// direct database/sql+lib/pq backend) and store/memory (an in-process
// implementation used by tests and by components that don't need
// durability, e.g. replictl dry-runs).
package store

import (
	"context"

	"github.com/replicante-io/replicore/internal/model"
)

// NamespaceStore persists Namespace records.
type NamespaceStore interface {
	LookupNamespace(ctx context.Context, id string) (*model.Namespace, error)
	ListNamespaces(ctx context.Context) ([]model.Namespace, error)
	PersistNamespace(ctx context.Context, ns model.Namespace) error
	DeleteNamespace(ctx context.Context, id string) error
}

// PlatformStore persists Platform records.
type PlatformStore interface {
	LookupPlatform(ctx context.Context, key model.NamespaceKey, name string) (*model.Platform, error)
	ListPlatforms(ctx context.Context, ns string) ([]model.Platform, error)
	PersistPlatform(ctx context.Context, p model.Platform) error
	DeletePlatform(ctx context.Context, key model.NamespaceKey, name string) error
}

// DiscoverySettingsStore persists DiscoverySettings records.
type DiscoverySettingsStore interface {
	LookupDiscoverySettings(ctx context.Context, ns, name string) (*model.DiscoverySettings, error)
	ListDiscoverySettings(ctx context.Context, ns string) ([]model.DiscoverySettings, error)
	ListDueDiscoverySettings(ctx context.Context, now int64) ([]model.DiscoverySettings, error)
	PersistDiscoverySettings(ctx context.Context, d model.DiscoverySettings) error
}

// ClusterSpecStore persists ClusterSpec records.
type ClusterSpecStore interface {
	LookupClusterSpec(ctx context.Context, key model.ClusterKey) (*model.ClusterSpec, error)
	ListClusterSpecs(ctx context.Context, ns string) ([]model.ClusterSpec, error)
	ListDueClusterSpecs(ctx context.Context, now int64) ([]model.ClusterSpec, error)
	PersistClusterSpec(ctx context.Context, spec model.ClusterSpec) error
	DeleteClusterSpec(ctx context.Context, key model.ClusterKey) error
}

// ClusterDiscoveryStore persists the single latest ClusterDiscovery per cluster.
type ClusterDiscoveryStore interface {
	LookupClusterDiscovery(ctx context.Context, key model.ClusterKey) (*model.ClusterDiscovery, error)
	PersistClusterDiscovery(ctx context.Context, d model.ClusterDiscovery) error
}

// NodeStore persists Node records.
type NodeStore interface {
	LookupNode(ctx context.Context, key model.NodeKey) (*model.Node, error)
	ListNodes(ctx context.Context, cluster model.ClusterKey) ([]model.Node, error)
	PersistNode(ctx context.Context, n model.Node) error
	DeleteNode(ctx context.Context, key model.NodeKey) error
}

// StoreExtrasStore persists StoreExtras records (named to avoid a name
// collision with the package itself).
type StoreExtrasStore interface {
	LookupStoreExtras(ctx context.Context, key model.NodeKey) (*model.StoreExtras, error)
	ListStoreExtras(ctx context.Context, cluster model.ClusterKey) ([]model.StoreExtras, error)
	PersistStoreExtras(ctx context.Context, e model.StoreExtras) error
}

// NActionStore persists NAction records.
type NActionStore interface {
	LookupNAction(ctx context.Context, key model.ActionKey) (*model.NAction, error)
	ListNActionsByNode(ctx context.Context, node model.NodeKey) ([]model.NAction, error)
	ListNActionsByCluster(ctx context.Context, cluster model.ClusterKey) ([]model.NAction, error)
	ListUnfinishedNActions(ctx context.Context, cluster model.ClusterKey) ([]model.NAction, error)
	PersistNAction(ctx context.Context, a model.NAction) error
}

// OActionStore persists OAction records.
type OActionStore interface {
	LookupOAction(ctx context.Context, key model.ActionKey) (*model.OAction, error)
	ListOActionsByCluster(ctx context.Context, cluster model.ClusterKey) ([]model.OAction, error)
	ListUnfinishedOActions(ctx context.Context, cluster model.ClusterKey) ([]model.OAction, error)
	PersistOAction(ctx context.Context, a model.OAction) error
}

// ConvergeStateStore persists the single latest ConvergeState per cluster.
type ConvergeStateStore interface {
	LookupConvergeState(ctx context.Context, cluster model.ClusterKey) (*model.ConvergeState, error)
	PersistConvergeState(ctx context.Context, s model.ConvergeState) error
}

// OrchestrateReportStore persists the single latest OrchestrateReport per cluster.
type OrchestrateReportStore interface {
	LookupOrchestrateReport(ctx context.Context, cluster model.ClusterKey) (*model.OrchestrateReport, error)
	PersistOrchestrateReport(ctx context.Context, r model.OrchestrateReport) error
}

// Store aggregates every entity family into a single handle passed around
// the codebase as a process-wide, cheaply-cloneable value (spec.md §5).
type Store interface {
	NamespaceStore
	PlatformStore
	DiscoverySettingsStore
	ClusterSpecStore
	ClusterDiscoveryStore
	NodeStore
	StoreExtrasStore
	NActionStore
	OActionStore
	ConvergeStateStore
	OrchestrateReportStore

	// Close releases underlying resources (connection pools, etc).
	Close() error
}
