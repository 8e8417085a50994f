// Package postgres implements store.Store directly against PostgreSQL using
// database/sql and lib/pq, following the teacher's direct-SQL style
// (internal/app/storage/postgres/store.go): no ORM, explicit
// ExecContext/QueryRowContext/QueryContext calls, JSON columns for nested
// structures, and INSERT ... ON CONFLICT upserts for "persist" semantics.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/internal/model"
	"github.com/replicante-io/replicore/internal/store"
)

// Store implements store.Store backed by a *sql.DB.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New creates a Store using the provided database handle. The handle is
// expected to already be migrated (see internal/store/migrate).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens a new Postgres connection pool and wraps it in a Store.
func Open(dsn string, maxOpen, maxIdle int, connMaxLifetime time.Duration) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperr.Infrastructure(err, "opening database connection")
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connMaxLifetime)
	if err := db.Ping(); err != nil {
		return nil, apperr.Infrastructure(err, "pinging database")
	}
	return New(db), nil
}

func (s *Store) Close() error { return s.db.Close() }

func wrapNotFound(err error, code, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(code, format, args...)
	}
	return apperr.Infrastructure(err, format, args...)
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// --- Namespace ---

func (s *Store) LookupNamespace(ctx context.Context, id string) (*model.Namespace, error) {
	var ns model.Namespace
	var transportRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, transport, created_at, updated_at
		FROM namespaces WHERE id = $1
	`, id).Scan(&ns.ID, &ns.Status, &transportRaw, &ns.CreatedAt, &ns.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "NamespaceNotFound", "namespace %q not found", id)
	}
	if len(transportRaw) > 0 && string(transportRaw) != "null" {
		var tc model.TransportConfig
		if err := json.Unmarshal(transportRaw, &tc); err != nil {
			return nil, apperr.Infrastructure(err, "decoding namespace transport config")
		}
		ns.Transport = &tc
	}
	return &ns, nil
}

func (s *Store) ListNamespaces(ctx context.Context) ([]model.Namespace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, transport, created_at, updated_at
		FROM namespaces ORDER BY id
	`)
	if err != nil {
		return nil, apperr.Infrastructure(err, "listing namespaces")
	}
	defer rows.Close()

	var out []model.Namespace
	for rows.Next() {
		var ns model.Namespace
		var transportRaw []byte
		if err := rows.Scan(&ns.ID, &ns.Status, &transportRaw, &ns.CreatedAt, &ns.UpdatedAt); err != nil {
			return nil, apperr.Infrastructure(err, "scanning namespace row")
		}
		if len(transportRaw) > 0 && string(transportRaw) != "null" {
			var tc model.TransportConfig
			if err := json.Unmarshal(transportRaw, &tc); err != nil {
				return nil, apperr.Infrastructure(err, "decoding namespace transport config")
			}
			ns.Transport = &tc
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

func (s *Store) PersistNamespace(ctx context.Context, ns model.Namespace) error {
	transportJSON, err := marshalJSON(ns.Transport)
	if err != nil {
		return apperr.Infrastructure(err, "encoding namespace transport config")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO namespaces (id, status, transport, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			status = $2, transport = $3, updated_at = $5
	`, ns.ID, ns.Status, transportJSON, ns.CreatedAt, ns.UpdatedAt)
	if err != nil {
		return apperr.Infrastructure(err, "persisting namespace %q", ns.ID)
	}
	return nil
}

func (s *Store) DeleteNamespace(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM namespaces WHERE id = $1`, id)
	if err != nil {
		return apperr.Infrastructure(err, "deleting namespace %q", id)
	}
	return nil
}

// --- Platform ---

func (s *Store) LookupPlatform(ctx context.Context, key model.NamespaceKey, name string) (*model.Platform, error) {
	var p model.Platform
	err := s.db.QueryRowContext(ctx, `
		SELECT ns_id, name, url, kind, created_at, updated_at
		FROM platforms WHERE ns_id = $1 AND name = $2
	`, key.NsID, name).Scan(&p.NsID, &p.Name, &p.URL, &p.Kind, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "PlatformNotFound", "platform %q/%q not found", key.NsID, name)
	}
	return &p, nil
}

func (s *Store) ListPlatforms(ctx context.Context, ns string) ([]model.Platform, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ns_id, name, url, kind, created_at, updated_at
		FROM platforms WHERE ns_id = $1 ORDER BY name
	`, ns)
	if err != nil {
		return nil, apperr.Infrastructure(err, "listing platforms for %q", ns)
	}
	defer rows.Close()

	var out []model.Platform
	for rows.Next() {
		var p model.Platform
		if err := rows.Scan(&p.NsID, &p.Name, &p.URL, &p.Kind, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, apperr.Infrastructure(err, "scanning platform row")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) PersistPlatform(ctx context.Context, p model.Platform) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO platforms (ns_id, name, url, kind, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ns_id, name) DO UPDATE SET
			url = $3, kind = $4, updated_at = $6
	`, p.NsID, p.Name, p.URL, p.Kind, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return apperr.Infrastructure(err, "persisting platform %q/%q", p.NsID, p.Name)
	}
	return nil
}

func (s *Store) DeletePlatform(ctx context.Context, key model.NamespaceKey, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM platforms WHERE ns_id = $1 AND name = $2`, key.NsID, name)
	if err != nil {
		return apperr.Infrastructure(err, "deleting platform %q/%q", key.NsID, name)
	}
	return nil
}

// --- DiscoverySettings ---

func (s *Store) LookupDiscoverySettings(ctx context.Context, ns, name string) (*model.DiscoverySettings, error) {
	var d model.DiscoverySettings
	var intervalNS int64
	err := s.db.QueryRowContext(ctx, `
		SELECT ns_id, name, enabled, interval_ns, next_run
		FROM discovery_settings WHERE ns_id = $1 AND name = $2
	`, ns, name).Scan(&d.NsID, &d.Name, &d.Enabled, &intervalNS, &d.NextRun)
	if err != nil {
		return nil, wrapNotFound(err, "DiscoverySettingsNotFound", "discovery settings %q/%q not found", ns, name)
	}
	d.Interval = time.Duration(intervalNS)
	return &d, nil
}

func (s *Store) ListDiscoverySettings(ctx context.Context, ns string) ([]model.DiscoverySettings, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ns_id, name, enabled, interval_ns, next_run
		FROM discovery_settings WHERE ns_id = $1 ORDER BY name
	`, ns)
	if err != nil {
		return nil, apperr.Infrastructure(err, "listing discovery settings for %q", ns)
	}
	defer rows.Close()
	return scanDiscoverySettings(rows)
}

func (s *Store) ListDueDiscoverySettings(ctx context.Context, now int64) ([]model.DiscoverySettings, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ns_id, name, enabled, interval_ns, next_run
		FROM discovery_settings
		WHERE enabled = true AND next_run <= to_timestamp($1)
		ORDER BY next_run
	`, now)
	if err != nil {
		return nil, apperr.Infrastructure(err, "listing due discovery settings")
	}
	defer rows.Close()
	return scanDiscoverySettings(rows)
}

func scanDiscoverySettings(rows *sql.Rows) ([]model.DiscoverySettings, error) {
	var out []model.DiscoverySettings
	for rows.Next() {
		var d model.DiscoverySettings
		var intervalNS int64
		if err := rows.Scan(&d.NsID, &d.Name, &d.Enabled, &intervalNS, &d.NextRun); err != nil {
			return nil, apperr.Infrastructure(err, "scanning discovery settings row")
		}
		d.Interval = time.Duration(intervalNS)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) PersistDiscoverySettings(ctx context.Context, d model.DiscoverySettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discovery_settings (ns_id, name, enabled, interval_ns, next_run)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ns_id, name) DO UPDATE SET
			enabled = $3, interval_ns = $4, next_run = $5
	`, d.NsID, d.Name, d.Enabled, int64(d.Interval), d.NextRun)
	if err != nil {
		return apperr.Infrastructure(err, "persisting discovery settings %q/%q", d.NsID, d.Name)
	}
	return nil
}

// --- ClusterSpec ---

func (s *Store) LookupClusterSpec(ctx context.Context, key model.ClusterKey) (*model.ClusterSpec, error) {
	var spec model.ClusterSpec
	var declRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT ns_id, cluster_id, active, interval_s, platform, declaration, next_orchestrate, created_at, updated_at
		FROM cluster_specs WHERE ns_id = $1 AND cluster_id = $2
	`, key.NsID, key.ClusterID).Scan(&spec.NsID, &spec.ClusterID, &spec.Active, &spec.Interval, &spec.Platform,
		&declRaw, &spec.NextOrchestrate, &spec.CreatedAt, &spec.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "ClusterSpecNotFound", "cluster spec %s not found", key.String())
	}
	if err := json.Unmarshal(declRaw, &spec.Declaration); err != nil {
		return nil, apperr.Infrastructure(err, "decoding cluster spec declaration")
	}
	return &spec, nil
}

func (s *Store) ListClusterSpecs(ctx context.Context, ns string) ([]model.ClusterSpec, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ns_id, cluster_id, active, interval_s, platform, declaration, next_orchestrate, created_at, updated_at
		FROM cluster_specs WHERE ns_id = $1 ORDER BY cluster_id
	`, ns)
	if err != nil {
		return nil, apperr.Infrastructure(err, "listing cluster specs for %q", ns)
	}
	defer rows.Close()
	return scanClusterSpecs(rows)
}

func (s *Store) ListDueClusterSpecs(ctx context.Context, now int64) ([]model.ClusterSpec, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ns_id, cluster_id, active, interval_s, platform, declaration, next_orchestrate, created_at, updated_at
		FROM cluster_specs
		WHERE active = true AND next_orchestrate <= to_timestamp($1)
		ORDER BY next_orchestrate
	`, now)
	if err != nil {
		return nil, apperr.Infrastructure(err, "listing due cluster specs")
	}
	defer rows.Close()
	return scanClusterSpecs(rows)
}

func scanClusterSpecs(rows *sql.Rows) ([]model.ClusterSpec, error) {
	var out []model.ClusterSpec
	for rows.Next() {
		var spec model.ClusterSpec
		var declRaw []byte
		if err := rows.Scan(&spec.NsID, &spec.ClusterID, &spec.Active, &spec.Interval, &spec.Platform,
			&declRaw, &spec.NextOrchestrate, &spec.CreatedAt, &spec.UpdatedAt); err != nil {
			return nil, apperr.Infrastructure(err, "scanning cluster spec row")
		}
		if err := json.Unmarshal(declRaw, &spec.Declaration); err != nil {
			return nil, apperr.Infrastructure(err, "decoding cluster spec declaration")
		}
		out = append(out, spec)
	}
	return out, rows.Err()
}

func (s *Store) PersistClusterSpec(ctx context.Context, spec model.ClusterSpec) error {
	declJSON, err := json.Marshal(spec.Declaration)
	if err != nil {
		return apperr.Infrastructure(err, "encoding cluster spec declaration")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cluster_specs (ns_id, cluster_id, active, interval_s, platform, declaration, next_orchestrate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ns_id, cluster_id) DO UPDATE SET
			active = $3, interval_s = $4, platform = $5, declaration = $6, next_orchestrate = $7, updated_at = $9
	`, spec.NsID, spec.ClusterID, spec.Active, spec.Interval, spec.Platform, declJSON,
		spec.NextOrchestrate, spec.CreatedAt, spec.UpdatedAt)
	if err != nil {
		return apperr.Infrastructure(err, "persisting cluster spec %s", spec.Key().String())
	}
	return nil
}

func (s *Store) DeleteClusterSpec(ctx context.Context, key model.ClusterKey) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cluster_specs WHERE ns_id = $1 AND cluster_id = $2`, key.NsID, key.ClusterID)
	if err != nil {
		return apperr.Infrastructure(err, "deleting cluster spec %s", key.String())
	}
	return nil
}

// --- ClusterDiscovery ---

func (s *Store) LookupClusterDiscovery(ctx context.Context, key model.ClusterKey) (*model.ClusterDiscovery, error) {
	var d model.ClusterDiscovery
	var nodesRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT ns_id, cluster_id, nodes, updated_at
		FROM cluster_discoveries WHERE ns_id = $1 AND cluster_id = $2
	`, key.NsID, key.ClusterID).Scan(&d.NsID, &d.ClusterID, &nodesRaw, &d.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "ClusterDiscoveryNotFound", "cluster discovery %s not found", key.String())
	}
	if err := json.Unmarshal(nodesRaw, &d.Nodes); err != nil {
		return nil, apperr.Infrastructure(err, "decoding cluster discovery nodes")
	}
	return &d, nil
}

func (s *Store) PersistClusterDiscovery(ctx context.Context, d model.ClusterDiscovery) error {
	nodesJSON, err := json.Marshal(d.Nodes)
	if err != nil {
		return apperr.Infrastructure(err, "encoding cluster discovery nodes")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cluster_discoveries (ns_id, cluster_id, nodes, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ns_id, cluster_id) DO UPDATE SET nodes = $3, updated_at = $4
	`, d.NsID, d.ClusterID, nodesJSON, d.UpdatedAt)
	if err != nil {
		return apperr.Infrastructure(err, "persisting cluster discovery %s", d.Key().String())
	}
	return nil
}

// --- Node ---

func (s *Store) LookupNode(ctx context.Context, key model.NodeKey) (*model.Node, error) {
	var n model.Node
	var detailsRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT ns_id, cluster_id, node_id, node_status, details, updated_at
		FROM nodes WHERE ns_id = $1 AND cluster_id = $2 AND node_id = $3
	`, key.NsID, key.ClusterID, key.NodeID).Scan(&n.NsID, &n.ClusterID, &n.NodeID, &n.NodeStatus, &detailsRaw, &n.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "NodeNotFound", "node %s not found", key.String())
	}
	if len(detailsRaw) > 0 && string(detailsRaw) != "null" {
		var details model.NodeDetails
		if err := json.Unmarshal(detailsRaw, &details); err != nil {
			return nil, apperr.Infrastructure(err, "decoding node details")
		}
		n.Details = &details
	}
	return &n, nil
}

func (s *Store) ListNodes(ctx context.Context, cluster model.ClusterKey) ([]model.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ns_id, cluster_id, node_id, node_status, details, updated_at
		FROM nodes WHERE ns_id = $1 AND cluster_id = $2 ORDER BY node_id
	`, cluster.NsID, cluster.ClusterID)
	if err != nil {
		return nil, apperr.Infrastructure(err, "listing nodes for %s", cluster.String())
	}
	defer rows.Close()

	var out []model.Node
	for rows.Next() {
		var n model.Node
		var detailsRaw []byte
		if err := rows.Scan(&n.NsID, &n.ClusterID, &n.NodeID, &n.NodeStatus, &detailsRaw, &n.UpdatedAt); err != nil {
			return nil, apperr.Infrastructure(err, "scanning node row")
		}
		if len(detailsRaw) > 0 && string(detailsRaw) != "null" {
			var details model.NodeDetails
			if err := json.Unmarshal(detailsRaw, &details); err != nil {
				return nil, apperr.Infrastructure(err, "decoding node details")
			}
			n.Details = &details
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) PersistNode(ctx context.Context, n model.Node) error {
	detailsJSON, err := marshalJSON(n.Details)
	if err != nil {
		return apperr.Infrastructure(err, "encoding node details")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nodes (ns_id, cluster_id, node_id, node_status, details, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ns_id, cluster_id, node_id) DO UPDATE SET
			node_status = $4, details = $5, updated_at = $6
	`, n.NsID, n.ClusterID, n.NodeID, n.NodeStatus, detailsJSON, n.UpdatedAt)
	if err != nil {
		return apperr.Infrastructure(err, "persisting node %s", n.Key().String())
	}
	return nil
}

func (s *Store) DeleteNode(ctx context.Context, key model.NodeKey) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM nodes WHERE ns_id = $1 AND cluster_id = $2 AND node_id = $3
	`, key.NsID, key.ClusterID, key.NodeID)
	if err != nil {
		return apperr.Infrastructure(err, "deleting node %s", key.String())
	}
	return nil
}

// --- StoreExtras ---

func (s *Store) LookupStoreExtras(ctx context.Context, key model.NodeKey) (*model.StoreExtras, error) {
	var e model.StoreExtras
	var shardsRaw, infoRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT ns_id, cluster_id, node_id, shards, store_info, updated_at
		FROM store_extras WHERE ns_id = $1 AND cluster_id = $2 AND node_id = $3
	`, key.NsID, key.ClusterID, key.NodeID).Scan(&e.NsID, &e.ClusterID, &e.NodeID, &shardsRaw, &infoRaw, &e.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "StoreExtrasNotFound", "store extras %s not found", key.String())
	}
	if len(shardsRaw) > 0 && string(shardsRaw) != "null" {
		if err := json.Unmarshal(shardsRaw, &e.Shards); err != nil {
			return nil, apperr.Infrastructure(err, "decoding store extras shards")
		}
	}
	if len(infoRaw) > 0 && string(infoRaw) != "null" {
		if err := json.Unmarshal(infoRaw, &e.StoreInfo); err != nil {
			return nil, apperr.Infrastructure(err, "decoding store extras info")
		}
	}
	return &e, nil
}

func (s *Store) ListStoreExtras(ctx context.Context, cluster model.ClusterKey) ([]model.StoreExtras, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ns_id, cluster_id, node_id, shards, store_info, updated_at
		FROM store_extras WHERE ns_id = $1 AND cluster_id = $2 ORDER BY node_id
	`, cluster.NsID, cluster.ClusterID)
	if err != nil {
		return nil, apperr.Infrastructure(err, "listing store extras for %s", cluster.String())
	}
	defer rows.Close()

	var out []model.StoreExtras
	for rows.Next() {
		var e model.StoreExtras
		var shardsRaw, infoRaw []byte
		if err := rows.Scan(&e.NsID, &e.ClusterID, &e.NodeID, &shardsRaw, &infoRaw, &e.UpdatedAt); err != nil {
			return nil, apperr.Infrastructure(err, "scanning store extras row")
		}
		if len(shardsRaw) > 0 && string(shardsRaw) != "null" {
			if err := json.Unmarshal(shardsRaw, &e.Shards); err != nil {
				return nil, apperr.Infrastructure(err, "decoding store extras shards")
			}
		}
		if len(infoRaw) > 0 && string(infoRaw) != "null" {
			if err := json.Unmarshal(infoRaw, &e.StoreInfo); err != nil {
				return nil, apperr.Infrastructure(err, "decoding store extras info")
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) PersistStoreExtras(ctx context.Context, e model.StoreExtras) error {
	shardsJSON, err := marshalJSON(e.Shards)
	if err != nil {
		return apperr.Infrastructure(err, "encoding store extras shards")
	}
	infoJSON, err := marshalJSON(e.StoreInfo)
	if err != nil {
		return apperr.Infrastructure(err, "encoding store extras info")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO store_extras (ns_id, cluster_id, node_id, shards, store_info, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ns_id, cluster_id, node_id) DO UPDATE SET
			shards = $4, store_info = $5, updated_at = $6
	`, e.NsID, e.ClusterID, e.NodeID, shardsJSON, infoJSON, e.UpdatedAt)
	if err != nil {
		return apperr.Infrastructure(err, "persisting store extras %s", e.Key().String())
	}
	return nil
}

// --- NAction ---

func (s *Store) LookupNAction(ctx context.Context, key model.ActionKey) (*model.NAction, error) {
	row := s.db.QueryRowContext(ctx, nactionSelect+` WHERE ns_id = $1 AND cluster_id = $2 AND action_id = $3`,
		key.NsID, key.ClusterID, key.ActionID)
	a, err := scanNAction(row)
	if err != nil {
		return nil, wrapNotFound(err, "NActionNotFound", "naction %s not found", key.String())
	}
	return &a, nil
}

func (s *Store) ListNActionsByNode(ctx context.Context, node model.NodeKey) ([]model.NAction, error) {
	rows, err := s.db.QueryContext(ctx, nactionSelect+` WHERE ns_id = $1 AND cluster_id = $2 AND node_id = $3 ORDER BY action_id`,
		node.NsID, node.ClusterID, node.NodeID)
	if err != nil {
		return nil, apperr.Infrastructure(err, "listing nactions for node %s", node.String())
	}
	defer rows.Close()
	return scanNActions(rows)
}

func (s *Store) ListNActionsByCluster(ctx context.Context, cluster model.ClusterKey) ([]model.NAction, error) {
	rows, err := s.db.QueryContext(ctx, nactionSelect+` WHERE ns_id = $1 AND cluster_id = $2 ORDER BY action_id`,
		cluster.NsID, cluster.ClusterID)
	if err != nil {
		return nil, apperr.Infrastructure(err, "listing nactions for cluster %s", cluster.String())
	}
	defer rows.Close()
	return scanNActions(rows)
}

func (s *Store) ListUnfinishedNActions(ctx context.Context, cluster model.ClusterKey) ([]model.NAction, error) {
	rows, err := s.db.QueryContext(ctx, nactionSelect+`
		WHERE ns_id = $1 AND cluster_id = $2 AND phase NOT IN ('Done','Failed','Cancelled','Lost')
		ORDER BY action_id
	`, cluster.NsID, cluster.ClusterID)
	if err != nil {
		return nil, apperr.Infrastructure(err, "listing unfinished nactions for cluster %s", cluster.String())
	}
	defer rows.Close()
	return scanNActions(rows)
}

const nactionSelect = `
	SELECT ns_id, cluster_id, node_id, action_id, kind, args, metadata,
	       created_time, scheduled_time, finished_time, phase, payload, error_message, error_code, schedule_fail_count
	FROM nactions`

type nactionScanner interface {
	Scan(dest ...any) error
}

func scanNAction(scanner nactionScanner) (model.NAction, error) {
	var (
		a                          model.NAction
		argsRaw, metaRaw, payloadRaw []byte
		scheduledRaw, finishedRaw  sql.NullTime
		errMsg, errCode            sql.NullString
	)
	if err := scanner.Scan(&a.NsID, &a.ClusterID, &a.NodeID, &a.ActionID, &a.Kind, &argsRaw, &metaRaw,
		&a.CreatedTime, &scheduledRaw, &finishedRaw, &a.State.Phase, &payloadRaw,
		&errMsg, &errCode, &a.ScheduleFailCount); err != nil {
		return model.NAction{}, err
	}
	if len(argsRaw) > 0 && string(argsRaw) != "null" {
		if err := json.Unmarshal(argsRaw, &a.Args); err != nil {
			return model.NAction{}, err
		}
	}
	if len(metaRaw) > 0 && string(metaRaw) != "null" {
		if err := json.Unmarshal(metaRaw, &a.Metadata); err != nil {
			return model.NAction{}, err
		}
	}
	if len(payloadRaw) > 0 && string(payloadRaw) != "null" {
		if err := json.Unmarshal(payloadRaw, &a.State.Payload); err != nil {
			return model.NAction{}, err
		}
	}
	if scheduledRaw.Valid {
		t := scheduledRaw.Time
		a.ScheduledTime = &t
	}
	if finishedRaw.Valid {
		t := finishedRaw.Time
		a.FinishedTime = &t
	}
	if errMsg.Valid {
		a.State.Error = &model.ActionError{Message: errMsg.String, Code: errCode.String}
	}
	return a, nil
}

func scanNActions(rows *sql.Rows) ([]model.NAction, error) {
	var out []model.NAction
	for rows.Next() {
		a, err := scanNAction(rows)
		if err != nil {
			return nil, apperr.Infrastructure(err, "scanning naction row")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) PersistNAction(ctx context.Context, a model.NAction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Infrastructure(err, "beginning transaction")
	}
	defer tx.Rollback()

	var existingPhase sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT phase FROM nactions WHERE ns_id = $1 AND cluster_id = $2 AND action_id = $3 FOR UPDATE
	`, a.NsID, a.ClusterID, a.ActionID).Scan(&existingPhase)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return apperr.Infrastructure(err, "locking naction %s", a.Key().String())
	}
	if existingPhase.Valid {
		phase := model.NActionPhase(existingPhase.String)
		if phase.IsTerminal() && phase != a.State.Phase {
			return apperr.Precondition("NActionTerminal", "naction %s is already terminal (%s)", a.Key().String(), phase)
		}
	}

	argsJSON, err := marshalJSON(a.Args)
	if err != nil {
		return apperr.Infrastructure(err, "encoding naction args")
	}
	metaJSON, err := marshalJSON(a.Metadata)
	if err != nil {
		return apperr.Infrastructure(err, "encoding naction metadata")
	}
	payloadJSON, err := marshalJSON(a.State.Payload)
	if err != nil {
		return apperr.Infrastructure(err, "encoding naction payload")
	}
	var errMsg, errCode sql.NullString
	if a.State.Error != nil {
		errMsg = sql.NullString{String: a.State.Error.Message, Valid: true}
		errCode = sql.NullString{String: a.State.Error.Code, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO nactions (ns_id, cluster_id, node_id, action_id, kind, args, metadata,
		                       created_time, scheduled_time, finished_time, phase, payload, error_message, error_code, schedule_fail_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (ns_id, cluster_id, action_id) DO UPDATE SET
			node_id = $3, kind = $5, args = $6, metadata = $7, scheduled_time = $9, finished_time = $10,
			phase = $11, payload = $12, error_message = $13, error_code = $14, schedule_fail_count = $15
	`, a.NsID, a.ClusterID, a.NodeID, a.ActionID, a.Kind, argsJSON, metaJSON,
		a.CreatedTime, toNullTime(a.ScheduledTime), toNullTime(a.FinishedTime), a.State.Phase,
		payloadJSON, errMsg, errCode, a.ScheduleFailCount)
	if err != nil {
		return apperr.Infrastructure(err, "persisting naction %s", a.Key().String())
	}
	if err := tx.Commit(); err != nil {
		return apperr.Infrastructure(err, "committing naction persist")
	}
	return nil
}

// --- OAction ---

const oactionSelect = `
	SELECT ns_id, cluster_id, action_id, kind, args, metadata, created_ts, scheduled_ts, finished_ts,
	       timeout_ns, state, state_payload, state_payload_error_message, state_payload_error_code
	FROM oactions`

func (s *Store) LookupOAction(ctx context.Context, key model.ActionKey) (*model.OAction, error) {
	row := s.db.QueryRowContext(ctx, oactionSelect+` WHERE ns_id = $1 AND cluster_id = $2 AND action_id = $3`,
		key.NsID, key.ClusterID, key.ActionID)
	a, err := scanOAction(row)
	if err != nil {
		return nil, wrapNotFound(err, "OActionNotFound", "oaction %s not found", key.String())
	}
	return &a, nil
}

func (s *Store) ListOActionsByCluster(ctx context.Context, cluster model.ClusterKey) ([]model.OAction, error) {
	rows, err := s.db.QueryContext(ctx, oactionSelect+` WHERE ns_id = $1 AND cluster_id = $2 ORDER BY action_id`,
		cluster.NsID, cluster.ClusterID)
	if err != nil {
		return nil, apperr.Infrastructure(err, "listing oactions for cluster %s", cluster.String())
	}
	defer rows.Close()
	return scanOActions(rows)
}

func (s *Store) ListUnfinishedOActions(ctx context.Context, cluster model.ClusterKey) ([]model.OAction, error) {
	rows, err := s.db.QueryContext(ctx, oactionSelect+`
		WHERE ns_id = $1 AND cluster_id = $2 AND state NOT IN ('Done','Failed','Cancelled')
		ORDER BY action_id
	`, cluster.NsID, cluster.ClusterID)
	if err != nil {
		return nil, apperr.Infrastructure(err, "listing unfinished oactions for cluster %s", cluster.String())
	}
	defer rows.Close()
	return scanOActions(rows)
}

type oactionScanner interface {
	Scan(dest ...any) error
}

func scanOAction(scanner oactionScanner) (model.OAction, error) {
	var (
		a                         model.OAction
		argsRaw, metaRaw, stateRaw []byte
		scheduledTS, finishedTS   sql.NullTime
		timeoutNS                 int64
		errMsg, errCode           sql.NullString
	)
	if err := scanner.Scan(&a.NsID, &a.ClusterID, &a.ActionID, &a.Kind, &argsRaw, &metaRaw,
		&a.CreatedTS, &scheduledTS, &finishedTS, &timeoutNS, &a.State, &stateRaw, &errMsg, &errCode); err != nil {
		return model.OAction{}, err
	}
	if len(argsRaw) > 0 && string(argsRaw) != "null" {
		if err := json.Unmarshal(argsRaw, &a.Args); err != nil {
			return model.OAction{}, err
		}
	}
	if len(metaRaw) > 0 && string(metaRaw) != "null" {
		if err := json.Unmarshal(metaRaw, &a.Metadata); err != nil {
			return model.OAction{}, err
		}
	}
	if len(stateRaw) > 0 && string(stateRaw) != "null" {
		if err := json.Unmarshal(stateRaw, &a.StatePayload); err != nil {
			return model.OAction{}, err
		}
	}
	if scheduledTS.Valid {
		t := scheduledTS.Time
		a.ScheduledTS = &t
	}
	if finishedTS.Valid {
		t := finishedTS.Time
		a.FinishedTS = &t
	}
	a.Timeout = time.Duration(timeoutNS)
	if errMsg.Valid {
		a.StatePayloadError = &model.ActionError{Message: errMsg.String, Code: errCode.String}
	}
	return a, nil
}

func scanOActions(rows *sql.Rows) ([]model.OAction, error) {
	var out []model.OAction
	for rows.Next() {
		a, err := scanOAction(rows)
		if err != nil {
			return nil, apperr.Infrastructure(err, "scanning oaction row")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) PersistOAction(ctx context.Context, a model.OAction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Infrastructure(err, "beginning transaction")
	}
	defer tx.Rollback()

	var existingState sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT state FROM oactions WHERE ns_id = $1 AND cluster_id = $2 AND action_id = $3 FOR UPDATE
	`, a.NsID, a.ClusterID, a.ActionID).Scan(&existingState)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return apperr.Infrastructure(err, "locking oaction %s", a.Key().String())
	}
	if existingState.Valid {
		state := model.OActionState(existingState.String)
		if state.IsTerminal() && state != a.State {
			return apperr.Precondition("OActionTerminal", "oaction %s is already terminal (%s)", a.Key().String(), state)
		}
	}

	argsJSON, err := marshalJSON(a.Args)
	if err != nil {
		return apperr.Infrastructure(err, "encoding oaction args")
	}
	metaJSON, err := marshalJSON(a.Metadata)
	if err != nil {
		return apperr.Infrastructure(err, "encoding oaction metadata")
	}
	stateJSON, err := marshalJSON(a.StatePayload)
	if err != nil {
		return apperr.Infrastructure(err, "encoding oaction state payload")
	}
	var errMsg, errCode sql.NullString
	if a.StatePayloadError != nil {
		errMsg = sql.NullString{String: a.StatePayloadError.Message, Valid: true}
		errCode = sql.NullString{String: a.StatePayloadError.Code, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO oactions (ns_id, cluster_id, action_id, kind, args, metadata, created_ts, scheduled_ts,
		                       finished_ts, timeout_ns, state, state_payload, state_payload_error_message, state_payload_error_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (ns_id, cluster_id, action_id) DO UPDATE SET
			kind = $4, args = $5, metadata = $6, scheduled_ts = $8, finished_ts = $9,
			timeout_ns = $10, state = $11, state_payload = $12, state_payload_error_message = $13, state_payload_error_code = $14
	`, a.NsID, a.ClusterID, a.ActionID, a.Kind, argsJSON, metaJSON, a.CreatedTS, toNullTime(a.ScheduledTS),
		toNullTime(a.FinishedTS), int64(a.Timeout), a.State, stateJSON, errMsg, errCode)
	if err != nil {
		return apperr.Infrastructure(err, "persisting oaction %s", a.Key().String())
	}
	if err := tx.Commit(); err != nil {
		return apperr.Infrastructure(err, "committing oaction persist")
	}
	return nil
}

// --- ConvergeState ---

func (s *Store) LookupConvergeState(ctx context.Context, cluster model.ClusterKey) (*model.ConvergeState, error) {
	var st model.ConvergeState
	var gracesRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT ns_id, cluster_id, graces, updated_at
		FROM converge_state WHERE ns_id = $1 AND cluster_id = $2
	`, cluster.NsID, cluster.ClusterID).Scan(&st.NsID, &st.ClusterID, &gracesRaw, &st.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "ConvergeStateNotFound", "converge state %s not found", cluster.String())
	}
	if len(gracesRaw) > 0 && string(gracesRaw) != "null" {
		if err := json.Unmarshal(gracesRaw, &st.Graces); err != nil {
			return nil, apperr.Infrastructure(err, "decoding converge state graces")
		}
	}
	return &st, nil
}

func (s *Store) PersistConvergeState(ctx context.Context, st model.ConvergeState) error {
	gracesJSON, err := marshalJSON(st.Graces)
	if err != nil {
		return apperr.Infrastructure(err, "encoding converge state graces")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO converge_state (ns_id, cluster_id, graces, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ns_id, cluster_id) DO UPDATE SET graces = $3, updated_at = $4
	`, st.NsID, st.ClusterID, gracesJSON, st.UpdatedAt)
	if err != nil {
		return apperr.Infrastructure(err, "persisting converge state %s", st.Key().String())
	}
	return nil
}

// --- OrchestrateReport ---

func (s *Store) LookupOrchestrateReport(ctx context.Context, cluster model.ClusterKey) (*model.OrchestrateReport, error) {
	var r model.OrchestrateReport
	var errChainRaw, schedulingRaw, notesRaw []byte
	var durationNS int64
	err := s.db.QueryRowContext(ctx, `
		SELECT ns_id, cluster_id, mode, start_time, duration_ns, success, error_chain,
		       nodes_synced, nodes_failed, actions_scheduled, actions_failed, actions_lost, scheduling, notes
		FROM orchestrate_reports WHERE ns_id = $1 AND cluster_id = $2
	`, cluster.NsID, cluster.ClusterID).Scan(&r.NsID, &r.ClusterID, &r.Mode, &r.StartTime, &durationNS, &r.Success,
		&errChainRaw, &r.NodesSynced, &r.NodesFailed, &r.ActionsScheduled, &r.ActionsFailed, &r.ActionsLost,
		&schedulingRaw, &notesRaw)
	if err != nil {
		return nil, wrapNotFound(err, "OrchestrateReportNotFound", "orchestrate report %s not found", cluster.String())
	}
	r.Duration = time.Duration(durationNS)
	if len(errChainRaw) > 0 && string(errChainRaw) != "null" {
		if err := json.Unmarshal(errChainRaw, &r.ErrorChain); err != nil {
			return nil, apperr.Infrastructure(err, "decoding orchestrate report error chain")
		}
	}
	if len(schedulingRaw) > 0 && string(schedulingRaw) != "null" {
		if err := json.Unmarshal(schedulingRaw, &r.Scheduling); err != nil {
			return nil, apperr.Infrastructure(err, "decoding orchestrate report scheduling")
		}
	}
	if len(notesRaw) > 0 && string(notesRaw) != "null" {
		if err := json.Unmarshal(notesRaw, &r.Notes); err != nil {
			return nil, apperr.Infrastructure(err, "decoding orchestrate report notes")
		}
	}
	return &r, nil
}

func (s *Store) PersistOrchestrateReport(ctx context.Context, r model.OrchestrateReport) error {
	errChainJSON, err := marshalJSON(r.ErrorChain)
	if err != nil {
		return apperr.Infrastructure(err, "encoding orchestrate report error chain")
	}
	schedulingJSON, err := json.Marshal(r.Scheduling)
	if err != nil {
		return apperr.Infrastructure(err, "encoding orchestrate report scheduling")
	}
	notesJSON, err := marshalJSON(r.Notes)
	if err != nil {
		return apperr.Infrastructure(err, "encoding orchestrate report notes")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orchestrate_reports (ns_id, cluster_id, mode, start_time, duration_ns, success, error_chain,
		                                  nodes_synced, nodes_failed, actions_scheduled, actions_failed, actions_lost, scheduling, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (ns_id, cluster_id) DO UPDATE SET
			mode = $3, start_time = $4, duration_ns = $5, success = $6, error_chain = $7,
			nodes_synced = $8, nodes_failed = $9, actions_scheduled = $10, actions_failed = $11,
			actions_lost = $12, scheduling = $13, notes = $14
	`, r.NsID, r.ClusterID, r.Mode, r.StartTime, int64(r.Duration), r.Success, errChainJSON,
		r.NodesSynced, r.NodesFailed, r.ActionsScheduled, r.ActionsFailed, r.ActionsLost, schedulingJSON, notesJSON)
	if err != nil {
		return apperr.Infrastructure(err, "persisting orchestrate report %s", r.Key().String())
	}
	return nil
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
