// Package memory implements store.Store in-process, for unit tests and for
// any tooling that wants a disposable store without a Postgres instance.
// Grounded on the teacher's in-memory test doubles (internal/app/storage
// kept one in-memory implementation per interface); this package follows
// the same map+mutex shape but as a single struct implementing the whole
// aggregate interface.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/internal/model"
	"github.com/replicante-io/replicore/internal/store"
)

// Store is an in-memory, mutex-guarded implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	namespaces  map[string]model.Namespace
	platforms   map[string]model.Platform
	discoveries map[string]model.DiscoverySettings
	specs       map[string]model.ClusterSpec
	discos      map[string]model.ClusterDiscovery
	nodes       map[string]model.Node
	extras      map[string]model.StoreExtras
	nactions    map[string]model.NAction
	oactions    map[string]model.OAction
	converge    map[string]model.ConvergeState
	reports     map[string]model.OrchestrateReport
}

var _ store.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		namespaces:  make(map[string]model.Namespace),
		platforms:   make(map[string]model.Platform),
		discoveries: make(map[string]model.DiscoverySettings),
		specs:       make(map[string]model.ClusterSpec),
		discos:      make(map[string]model.ClusterDiscovery),
		nodes:       make(map[string]model.Node),
		extras:      make(map[string]model.StoreExtras),
		nactions:    make(map[string]model.NAction),
		oactions:    make(map[string]model.OAction),
		converge:    make(map[string]model.ConvergeState),
		reports:     make(map[string]model.OrchestrateReport),
	}
}

// Close is a no-op for the in-memory backend.
func (s *Store) Close() error { return nil }

func platformKey(ns, name string) string { return ns + "/" + name }

// --- Namespace ---

func (s *Store) LookupNamespace(_ context.Context, id string) (*model.Namespace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ns, ok := s.namespaces[id]; ok {
		cp := ns
		return &cp, nil
	}
	return nil, apperr.NotFound("NamespaceNotFound", "namespace %q not found", id)
}

func (s *Store) ListNamespaces(_ context.Context) ([]model.Namespace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Namespace, 0, len(s.namespaces))
	for _, ns := range s.namespaces {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) PersistNamespace(_ context.Context, ns model.Namespace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespaces[ns.ID] = ns
	return nil
}

func (s *Store) DeleteNamespace(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, id)
	return nil
}

// --- Platform ---

func (s *Store) LookupPlatform(_ context.Context, key model.NamespaceKey, name string) (*model.Platform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.platforms[platformKey(key.NsID, name)]; ok {
		cp := p
		return &cp, nil
	}
	return nil, apperr.NotFound("PlatformNotFound", "platform %q/%q not found", key.NsID, name)
}

func (s *Store) ListPlatforms(_ context.Context, ns string) ([]model.Platform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Platform
	for _, p := range s.platforms {
		if p.NsID == ns {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) PersistPlatform(_ context.Context, p model.Platform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.platforms[platformKey(p.NsID, p.Name)] = p
	return nil
}

func (s *Store) DeletePlatform(_ context.Context, key model.NamespaceKey, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.platforms, platformKey(key.NsID, name))
	return nil
}

// --- DiscoverySettings ---

func (s *Store) LookupDiscoverySettings(_ context.Context, ns, name string) (*model.DiscoverySettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.discoveries[platformKey(ns, name)]; ok {
		cp := d
		return &cp, nil
	}
	return nil, apperr.NotFound("DiscoverySettingsNotFound", "discovery settings %q/%q not found", ns, name)
}

func (s *Store) ListDiscoverySettings(_ context.Context, ns string) ([]model.DiscoverySettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.DiscoverySettings
	for _, d := range s.discoveries {
		if d.NsID == ns {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListDueDiscoverySettings(_ context.Context, now int64) ([]model.DiscoverySettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.DiscoverySettings
	for _, d := range s.discoveries {
		if d.Enabled && d.NextRun.Unix() <= now {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) PersistDiscoverySettings(_ context.Context, d model.DiscoverySettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discoveries[platformKey(d.NsID, d.Name)] = d
	return nil
}

// --- ClusterSpec ---

func (s *Store) LookupClusterSpec(_ context.Context, key model.ClusterKey) (*model.ClusterSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if spec, ok := s.specs[key.String()]; ok {
		cp := spec
		return &cp, nil
	}
	return nil, apperr.NotFound("ClusterSpecNotFound", "cluster spec %s not found", key.String())
}

func (s *Store) ListClusterSpecs(_ context.Context, ns string) ([]model.ClusterSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ClusterSpec
	for _, spec := range s.specs {
		if spec.NsID == ns {
			out = append(out, spec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClusterID < out[j].ClusterID })
	return out, nil
}

func (s *Store) ListDueClusterSpecs(_ context.Context, now int64) ([]model.ClusterSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ClusterSpec
	for _, spec := range s.specs {
		if spec.Active && spec.NextOrchestrate.Unix() <= now {
			out = append(out, spec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClusterID < out[j].ClusterID })
	return out, nil
}

func (s *Store) PersistClusterSpec(_ context.Context, spec model.ClusterSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs[spec.Key().String()] = spec
	return nil
}

func (s *Store) DeleteClusterSpec(_ context.Context, key model.ClusterKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.specs, key.String())
	return nil
}

// --- ClusterDiscovery ---

func (s *Store) LookupClusterDiscovery(_ context.Context, key model.ClusterKey) (*model.ClusterDiscovery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.discos[key.String()]; ok {
		cp := d
		return &cp, nil
	}
	return nil, apperr.NotFound("ClusterDiscoveryNotFound", "cluster discovery %s not found", key.String())
}

func (s *Store) PersistClusterDiscovery(_ context.Context, d model.ClusterDiscovery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discos[d.Key().String()] = d
	return nil
}

// --- Node ---

func (s *Store) LookupNode(_ context.Context, key model.NodeKey) (*model.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.nodes[key.String()]; ok {
		cp := n
		return &cp, nil
	}
	return nil, apperr.NotFound("NodeNotFound", "node %s not found", key.String())
}

func (s *Store) ListNodes(_ context.Context, cluster model.ClusterKey) ([]model.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Node
	for _, n := range s.nodes {
		if n.NsID == cluster.NsID && n.ClusterID == cluster.ClusterID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out, nil
}

func (s *Store) PersistNode(_ context.Context, n model.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.Key().String()] = n
	return nil
}

func (s *Store) DeleteNode(_ context.Context, key model.NodeKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, key.String())
	return nil
}

// --- StoreExtras ---

func (s *Store) LookupStoreExtras(_ context.Context, key model.NodeKey) (*model.StoreExtras, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.extras[key.String()]; ok {
		cp := e
		return &cp, nil
	}
	return nil, apperr.NotFound("StoreExtrasNotFound", "store extras %s not found", key.String())
}

func (s *Store) ListStoreExtras(_ context.Context, cluster model.ClusterKey) ([]model.StoreExtras, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.StoreExtras
	for _, e := range s.extras {
		if e.NsID == cluster.NsID && e.ClusterID == cluster.ClusterID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out, nil
}

func (s *Store) PersistStoreExtras(_ context.Context, e model.StoreExtras) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extras[e.Key().String()] = e
	return nil
}

// --- NAction ---

func (s *Store) LookupNAction(_ context.Context, key model.ActionKey) (*model.NAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.nactions[key.String()]; ok {
		cp := a
		return &cp, nil
	}
	return nil, apperr.NotFound("NActionNotFound", "naction %s not found", key.String())
}

func (s *Store) ListNActionsByNode(_ context.Context, node model.NodeKey) ([]model.NAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.NAction
	for _, a := range s.nactions {
		if a.NodeKey() == node {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionID < out[j].ActionID })
	return out, nil
}

func (s *Store) ListNActionsByCluster(_ context.Context, cluster model.ClusterKey) ([]model.NAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.NAction
	for _, a := range s.nactions {
		if a.NsID == cluster.NsID && a.ClusterID == cluster.ClusterID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionID < out[j].ActionID })
	return out, nil
}

func (s *Store) ListUnfinishedNActions(_ context.Context, cluster model.ClusterKey) ([]model.NAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.NAction
	for _, a := range s.nactions {
		if a.NsID == cluster.NsID && a.ClusterID == cluster.ClusterID && !a.State.Phase.IsTerminal() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionID < out[j].ActionID })
	return out, nil
}

func (s *Store) PersistNAction(_ context.Context, a model.NAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := a.Key().String()
	if existing, ok := s.nactions[key]; ok && existing.State.Phase.IsTerminal() && existing.State.Phase != a.State.Phase {
		return apperr.Precondition("NActionTerminal", "naction %s is already terminal (%s)", key, existing.State.Phase)
	}
	s.nactions[key] = a
	return nil
}

// --- OAction ---

func (s *Store) LookupOAction(_ context.Context, key model.ActionKey) (*model.OAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.oactions[key.String()]; ok {
		cp := a
		return &cp, nil
	}
	return nil, apperr.NotFound("OActionNotFound", "oaction %s not found", key.String())
}

func (s *Store) ListOActionsByCluster(_ context.Context, cluster model.ClusterKey) ([]model.OAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.OAction
	for _, a := range s.oactions {
		if a.NsID == cluster.NsID && a.ClusterID == cluster.ClusterID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionID < out[j].ActionID })
	return out, nil
}

func (s *Store) ListUnfinishedOActions(_ context.Context, cluster model.ClusterKey) ([]model.OAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.OAction
	for _, a := range s.oactions {
		if a.NsID == cluster.NsID && a.ClusterID == cluster.ClusterID && !a.State.IsTerminal() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionID < out[j].ActionID })
	return out, nil
}

func (s *Store) PersistOAction(_ context.Context, a model.OAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := a.Key().String()
	if existing, ok := s.oactions[key]; ok && existing.State.IsTerminal() && existing.State != a.State {
		return apperr.Precondition("OActionTerminal", "oaction %s is already terminal (%s)", key, existing.State)
	}
	s.oactions[key] = a
	return nil
}

// --- ConvergeState ---

func (s *Store) LookupConvergeState(_ context.Context, cluster model.ClusterKey) (*model.ConvergeState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.converge[cluster.String()]; ok {
		cp := st
		return &cp, nil
	}
	return nil, apperr.NotFound("ConvergeStateNotFound", "converge state %s not found", cluster.String())
}

func (s *Store) PersistConvergeState(_ context.Context, st model.ConvergeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.converge[st.Key().String()] = st
	return nil
}

// --- OrchestrateReport ---

func (s *Store) LookupOrchestrateReport(_ context.Context, cluster model.ClusterKey) (*model.OrchestrateReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.reports[cluster.String()]; ok {
		cp := r
		return &cp, nil
	}
	return nil, apperr.NotFound("OrchestrateReportNotFound", "orchestrate report %s not found", cluster.String())
}

func (s *Store) PersistOrchestrateReport(_ context.Context, r model.OrchestrateReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.Key().String()] = r
	return nil
}
