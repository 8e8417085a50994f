package discovery

import (
	"context"
	"time"

	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/internal/injector"
	"github.com/replicante-io/replicore/internal/model"
	"github.com/replicante-io/replicore/pkg/metrics"
)

// Run resolves the requested platform, opens its client, and persists every
// ClusterDiscovery record it yields, emitting CLUSTER_DISCOVERY_UPDATED for
// each that actually changed (spec.md §4.9).
func Run(ctx context.Context, inj injector.Injector, req Request) (runErr error) {
	start := inj.SDK.Now()
	platformKind := "unknown"
	defer func() {
		metrics.RecordDiscoveryRun(platformKind, runErr == nil, time.Since(start))
	}()

	ns, err := inj.Store.LookupNamespace(ctx, req.NsID)
	if err != nil {
		return apperr.Infrastructure(err, "lookup namespace %q", req.NsID)
	}
	if ns == nil {
		return apperr.NotFound("NamespaceNotFound", "namespace %q not found", req.NsID)
	}
	if ns.Status != model.NamespaceActive {
		return apperr.Precondition("NamespaceNotActive", "namespace %q is not active", req.NsID)
	}

	platform, err := inj.Store.LookupPlatform(ctx, model.NamespaceKey{NsID: req.NsID}, req.Name)
	if err != nil {
		return apperr.Infrastructure(err, "lookup platform %s/%s", req.NsID, req.Name)
	}
	if platform == nil {
		return apperr.NotFound("PlatformNotFound", "platform %s/%s not found", req.NsID, req.Name)
	}
	platformKind = platform.Kind

	client, err := inj.Platforms.Open(platform.URL)
	if err != nil {
		return apperr.Infrastructure(err, "open platform %s/%s", req.NsID, req.Name)
	}

	return client.Discover(ctx, func(discovered model.ClusterDiscovery) error {
		return persistDiscovery(ctx, inj, discovered)
	})
}

// persistDiscovery compares discovered against the stored record for the
// same cluster and, if the node set changed, emits CLUSTER_DISCOVERY_UPDATED
// before persisting (spec.md §7's event-then-persist ordering).
func persistDiscovery(ctx context.Context, inj injector.Injector, discovered model.ClusterDiscovery) error {
	key := discovered.Key()
	current, err := inj.Store.LookupClusterDiscovery(ctx, key)
	if err != nil {
		return apperr.Infrastructure(err, "lookup cluster discovery %s", key)
	}

	if !discoveryChanged(current, discovered) {
		return nil
	}

	discovered.UpdatedAt = inj.SDK.Now()
	if err := inj.SDK.EmitChange(ctx, discovered.ClusterID, model.CodeClusterDiscoveryUpdated, map[string]any{
		"discovery": discovered,
	}); err != nil {
		return apperr.Infrastructure(err, "emit %s", model.CodeClusterDiscoveryUpdated)
	}
	if err := inj.Store.PersistClusterDiscovery(ctx, discovered); err != nil {
		return apperr.Infrastructure(err, "persist cluster discovery %s", key)
	}
	return nil
}

func discoveryChanged(current *model.ClusterDiscovery, discovered model.ClusterDiscovery) bool {
	if current == nil {
		return true
	}
	if len(current.Nodes) != len(discovered.Nodes) {
		return true
	}
	for i, n := range discovered.Nodes {
		if current.Nodes[i] != n {
			return true
		}
	}
	return false
}
