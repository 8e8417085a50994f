// Package httpapi implements spec.md §6's REST API, mounted by Service
// (system.Service) into the running process. Routing follows the
// teacher's single-mux-plus-middleware-chain shape
// (_examples/r3e-network-service_layer/internal/app/httpapi/handler.go),
// using Go's 1.22+ ServeMux method+wildcard patterns in place of the
// teacher's manual path-segment parsing.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/internal/discovery"
	"github.com/replicante-io/replicore/internal/injector"
	"github.com/replicante-io/replicore/internal/model"
	"github.com/replicante-io/replicore/internal/orchestrate"
	"github.com/replicante-io/replicore/internal/taskqueue"
	"github.com/replicante-io/replicore/pkg/metrics"
)

const maxBodyBytes = 1 << 20 // 1 MiB, matching the agent/platform client body cap

// listLimit parses the ?limit= query parameter using the teacher's
// default/clamp policy (internal/app/core/service.ClampLimit).
func listLimit(r *http.Request) (int, error) {
	return parseLimitParam(r.URL.Query().Get("limit"), 0)
}

func truncate[T any](items []T, limit int) []T {
	if limit <= 0 || limit >= len(items) {
		return items
	}
	return items[:limit]
}

type handler struct {
	inj   injector.Injector
	audit *auditLog
}

// NewHandler returns a mux exposing spec.md §6's REST API, wrapped with
// bearer-token auth, per-caller rate limiting, and audit logging. rl may be
// nil to disable rate limiting entirely.
func NewHandler(inj injector.Injector, tokens []string, audit *auditLog, rl *rateLimiter) http.Handler {
	h := &handler{inj: inj, audit: audit}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.health)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /apply", h.apply)

	mux.HandleFunc("GET /list/replicante.io/v0/namespace", h.listNamespaces)
	mux.HandleFunc("GET /object/replicante.io/v0/namespace/{id}", h.getNamespace)
	mux.HandleFunc("DELETE /object/replicante.io/v0/namespace/{id}", h.deleteNamespace)

	mux.HandleFunc("GET /list/replicante.io/v0/platform/{ns}", h.listPlatforms)
	mux.HandleFunc("GET /object/replicante.io/v0/platform/{ns}/{name}", h.getPlatform)
	mux.HandleFunc("DELETE /object/replicante.io/v0/platform/{ns}/{name}", h.deletePlatform)
	mux.HandleFunc("GET /object/replicante.io/v0/platform/{ns}/{name}/discover", h.discoverPlatform)

	mux.HandleFunc("GET /list/replicante.io/v0/clusterspec/{ns}", h.listClusterSpecs)
	mux.HandleFunc("GET /object/replicante.io/v0/clusterspec/{ns}/{cluster_id}", h.getClusterSpec)
	mux.HandleFunc("DELETE /object/replicante.io/v0/clusterspec/{ns}/{cluster_id}", h.deleteClusterSpec)
	mux.HandleFunc("GET /object/replicante.io/v0/clusterspec/{ns}/{cluster_id}/orchestrate", h.orchestrateCluster)

	mux.HandleFunc("GET /list/replicante.io/v0/naction/{ns}/{cluster_id}", h.listNActions)
	mux.HandleFunc("GET /object/replicante.io/v0/naction/{ns}/{cluster_id}/{action_id}", h.getNAction)
	mux.HandleFunc("POST /object/replicante.io/v0/naction/{ns}/{cluster_id}/{action_id}/approve", h.approveNAction)
	mux.HandleFunc("POST /object/replicante.io/v0/naction/{ns}/{cluster_id}/{action_id}/reject", h.rejectNAction)

	mux.HandleFunc("GET /list/replicante.io/v0/oaction/{ns}/{cluster_id}", h.listOActions)
	mux.HandleFunc("GET /object/replicante.io/v0/oaction/{ns}/{cluster_id}/{action_id}", h.getOAction)
	mux.HandleFunc("POST /object/replicante.io/v0/oaction/{ns}/{cluster_id}/{action_id}/approve", h.approveOAction)
	mux.HandleFunc("POST /object/replicante.io/v0/oaction/{ns}/{cluster_id}/{action_id}/cancel", h.cancelOAction)

	return metrics.InstrumentHandler(withAudit(wrapWithRateLimit(wrapWithAuth(mux, tokens), rl), audit))
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.inj.Coordinator.HealthCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) apply(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeAppErr(w, apperr.Validation("could not read request body"))
		return
	}
	m, err := decodeManifest(body)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	if err := applyManifest(r.Context(), h.inj, m); err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"kind": m.Kind, "status": "applied"})
}

// --- Namespace ---

func (h *handler) listNamespaces(w http.ResponseWriter, r *http.Request) {
	limit, err := listLimit(r)
	if err != nil {
		writeAppErr(w, apperr.Validation(err.Error()))
		return
	}
	list, err := h.inj.Store.ListNamespaces(r.Context())
	if err != nil {
		writeAppErr(w, apperr.Infrastructure(err, "list namespaces"))
		return
	}
	writeJSON(w, http.StatusOK, truncate(list, limit))
}

func (h *handler) getNamespace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ns, err := h.inj.Store.LookupNamespace(r.Context(), id)
	if err != nil {
		writeAppErr(w, apperr.Infrastructure(err, "lookup namespace %q", id))
		return
	}
	if ns == nil {
		writeAppErr(w, apperr.NotFound("NamespaceNotFound", "namespace %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

func (h *handler) deleteNamespace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.inj.SDK.DeleteNamespace(r.Context(), id); err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleting"})
}

// --- Platform ---

func (h *handler) listPlatforms(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("ns")
	limit, err := listLimit(r)
	if err != nil {
		writeAppErr(w, apperr.Validation(err.Error()))
		return
	}
	list, err := h.inj.Store.ListPlatforms(r.Context(), ns)
	if err != nil {
		writeAppErr(w, apperr.Infrastructure(err, "list platforms %q", ns))
		return
	}
	writeJSON(w, http.StatusOK, truncate(list, limit))
}

func (h *handler) getPlatform(w http.ResponseWriter, r *http.Request) {
	ns, name := r.PathValue("ns"), r.PathValue("name")
	p, err := h.inj.Store.LookupPlatform(r.Context(), model.NamespaceKey{NsID: ns}, name)
	if err != nil {
		writeAppErr(w, apperr.Infrastructure(err, "lookup platform %s/%s", ns, name))
		return
	}
	if p == nil {
		writeAppErr(w, apperr.NotFound("PlatformNotFound", "platform %s/%s not found", ns, name))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) deletePlatform(w http.ResponseWriter, r *http.Request) {
	ns, name := r.PathValue("ns"), r.PathValue("name")
	if err := h.inj.Store.DeletePlatform(r.Context(), model.NamespaceKey{NsID: ns}, name); err != nil {
		writeAppErr(w, apperr.Infrastructure(err, "delete platform %s/%s", ns, name))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ns_id": ns, "name": name, "status": "deleted"})
}

func (h *handler) discoverPlatform(w http.ResponseWriter, r *http.Request) {
	ns, name := r.PathValue("ns"), r.PathValue("name")
	payload, err := json.Marshal(discovery.Request{NsID: ns, Name: name})
	if err != nil {
		writeAppErr(w, apperr.Infrastructure(err, "encode discovery request"))
		return
	}
	if err := h.inj.Tasks.Submit(r.Context(), taskqueue.Submission{
		Queue:   taskqueue.QueueDiscoverPlatform,
		Payload: payload,
	}); err != nil {
		writeAppErr(w, apperr.Infrastructure(err, "submit discovery task"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ns_id": ns, "name": name, "status": "submitted"})
}

// --- ClusterSpec ---

func (h *handler) listClusterSpecs(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("ns")
	limit, err := listLimit(r)
	if err != nil {
		writeAppErr(w, apperr.Validation(err.Error()))
		return
	}
	list, err := h.inj.Store.ListClusterSpecs(r.Context(), ns)
	if err != nil {
		writeAppErr(w, apperr.Infrastructure(err, "list clusterspecs %q", ns))
		return
	}
	writeJSON(w, http.StatusOK, truncate(list, limit))
}

func (h *handler) getClusterSpec(w http.ResponseWriter, r *http.Request) {
	key := model.ClusterKey{NsID: r.PathValue("ns"), ClusterID: r.PathValue("cluster_id")}
	spec, err := h.inj.Store.LookupClusterSpec(r.Context(), key)
	if err != nil {
		writeAppErr(w, apperr.Infrastructure(err, "lookup clusterspec %s", key))
		return
	}
	if spec == nil {
		writeAppErr(w, apperr.NotFound("ClusterNotFound", "cluster %s not found", key))
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func (h *handler) deleteClusterSpec(w http.ResponseWriter, r *http.Request) {
	key := model.ClusterKey{NsID: r.PathValue("ns"), ClusterID: r.PathValue("cluster_id")}
	if err := h.inj.Store.DeleteClusterSpec(r.Context(), key); err != nil {
		writeAppErr(w, apperr.Infrastructure(err, "delete clusterspec %s", key))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ns_id": key.NsID, "cluster_id": key.ClusterID, "status": "deleted"})
}

func (h *handler) orchestrateCluster(w http.ResponseWriter, r *http.Request) {
	req := orchestrate.ClusterRequest{NsID: r.PathValue("ns"), ClusterID: r.PathValue("cluster_id")}
	payload, err := json.Marshal(req)
	if err != nil {
		writeAppErr(w, apperr.Infrastructure(err, "encode orchestrate request"))
		return
	}
	if err := h.inj.Tasks.Submit(r.Context(), taskqueue.Submission{
		Queue:   taskqueue.QueueOrchestrateCluster,
		Payload: payload,
	}); err != nil {
		writeAppErr(w, apperr.Infrastructure(err, "submit orchestrate task"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ns_id": req.NsID, "cluster_id": req.ClusterID, "status": "submitted"})
}

// --- NAction ---

func (h *handler) listNActions(w http.ResponseWriter, r *http.Request) {
	key := model.ClusterKey{NsID: r.PathValue("ns"), ClusterID: r.PathValue("cluster_id")}
	limit, err := listLimit(r)
	if err != nil {
		writeAppErr(w, apperr.Validation(err.Error()))
		return
	}
	list, err := h.inj.Store.ListNActionsByCluster(r.Context(), key)
	if err != nil {
		writeAppErr(w, apperr.Infrastructure(err, "list nactions %s", key))
		return
	}
	writeJSON(w, http.StatusOK, truncate(list, limit))
}

func (h *handler) getNAction(w http.ResponseWriter, r *http.Request) {
	key := model.ActionKey{NsID: r.PathValue("ns"), ClusterID: r.PathValue("cluster_id"), ActionID: r.PathValue("action_id")}
	a, err := h.inj.Store.LookupNAction(r.Context(), key)
	if err != nil {
		writeAppErr(w, apperr.Infrastructure(err, "lookup naction %s", key))
		return
	}
	if a == nil {
		writeAppErr(w, apperr.NotFound("NActionNotFound", "naction %s not found", key))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handler) approveNAction(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookupNActionOrWriteErr(w, r)
	if !ok {
		return
	}
	if err := h.inj.SDK.NActionApprove(r.Context(), *a); err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"action_id": a.ActionID, "status": "approved"})
}

func (h *handler) rejectNAction(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookupNActionOrWriteErr(w, r)
	if !ok {
		return
	}
	if err := h.inj.SDK.NActionReject(r.Context(), *a); err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"action_id": a.ActionID, "status": "rejected"})
}

func (h *handler) lookupNActionOrWriteErr(w http.ResponseWriter, r *http.Request) (*model.NAction, bool) {
	key := model.ActionKey{NsID: r.PathValue("ns"), ClusterID: r.PathValue("cluster_id"), ActionID: r.PathValue("action_id")}
	a, err := h.inj.Store.LookupNAction(r.Context(), key)
	if err != nil {
		writeAppErr(w, apperr.Infrastructure(err, "lookup naction %s", key))
		return nil, false
	}
	if a == nil {
		writeAppErr(w, apperr.NotFound("NActionNotFound", "naction %s not found", key))
		return nil, false
	}
	return a, true
}

// --- OAction ---

func (h *handler) listOActions(w http.ResponseWriter, r *http.Request) {
	key := model.ClusterKey{NsID: r.PathValue("ns"), ClusterID: r.PathValue("cluster_id")}
	limit, err := listLimit(r)
	if err != nil {
		writeAppErr(w, apperr.Validation(err.Error()))
		return
	}
	list, err := h.inj.Store.ListOActionsByCluster(r.Context(), key)
	if err != nil {
		writeAppErr(w, apperr.Infrastructure(err, "list oactions %s", key))
		return
	}
	writeJSON(w, http.StatusOK, truncate(list, limit))
}

func (h *handler) getOAction(w http.ResponseWriter, r *http.Request) {
	key := model.ActionKey{NsID: r.PathValue("ns"), ClusterID: r.PathValue("cluster_id"), ActionID: r.PathValue("action_id")}
	a, err := h.inj.Store.LookupOAction(r.Context(), key)
	if err != nil {
		writeAppErr(w, apperr.Infrastructure(err, "lookup oaction %s", key))
		return
	}
	if a == nil {
		writeAppErr(w, apperr.NotFound("OActionNotFound", "oaction %s not found", key))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handler) approveOAction(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookupOActionOrWriteErr(w, r)
	if !ok {
		return
	}
	if err := h.inj.SDK.OActionApprove(r.Context(), *a); err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"action_id": a.ActionID, "status": "approved"})
}

func (h *handler) cancelOAction(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lookupOActionOrWriteErr(w, r)
	if !ok {
		return
	}
	if err := h.inj.SDK.OActionCancel(r.Context(), *a); err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"action_id": a.ActionID, "status": "cancelled"})
}

func (h *handler) lookupOActionOrWriteErr(w http.ResponseWriter, r *http.Request) (*model.OAction, bool) {
	key := model.ActionKey{NsID: r.PathValue("ns"), ClusterID: r.PathValue("cluster_id"), ActionID: r.PathValue("action_id")}
	a, err := h.inj.Store.LookupOAction(r.Context(), key)
	if err != nil {
		writeAppErr(w, apperr.Infrastructure(err, "lookup oaction %s", key))
		return nil, false
	}
	if a == nil {
		writeAppErr(w, apperr.NotFound("OActionNotFound", "oaction %s not found", key))
		return nil, false
	}
	return a, true
}
