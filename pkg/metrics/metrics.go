package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "replicore",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replicore",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "replicore",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	orchestrateRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replicore",
			Subsystem: "orchestrate",
			Name:      "runs_total",
			Help:      "Total orchestrate task executions grouped by mode and result.",
		},
		[]string{"mode", "result"},
	)

	orchestrateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "replicore",
			Subsystem: "orchestrate",
			Name:      "run_duration_seconds",
			Help:      "Duration of orchestrate task executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"mode"},
	)

	orchestrateNodesSynced = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "replicore",
			Subsystem: "orchestrate",
			Name:      "nodes_synced",
			Help:      "Number of nodes synced per orchestrate run.",
			Buckets:   prometheus.LinearBuckets(0, 5, 10),
		},
		[]string{"mode"},
	)

	discoveryRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replicore",
			Subsystem: "discovery",
			Name:      "runs_total",
			Help:      "Total discovery task executions grouped by platform kind and result.",
		},
		[]string{"platform_kind", "result"},
	)

	discoveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "replicore",
			Subsystem: "discovery",
			Name:      "run_duration_seconds",
			Help:      "Duration of discovery task executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"platform_kind"},
	)

	nactionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replicore",
			Subsystem: "naction",
			Name:      "transitions_total",
			Help:      "Node-action phase transitions grouped by kind and resulting phase.",
		},
		[]string{"kind", "phase"},
	)

	oactionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replicore",
			Subsystem: "oaction",
			Name:      "transitions_total",
			Help:      "Orchestrator-action state transitions grouped by kind and resulting state.",
		},
		[]string{"kind", "state"},
	)

	coordinatorLockHolds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "replicore",
			Subsystem: "coordinator",
			Name:      "lock_held",
			Help:      "Whether this process currently holds a named lock (1) or not (0).",
		},
		[]string{"name"},
	)

	coordinatorElectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "replicore",
			Subsystem: "coordinator",
			Name:      "election_primary",
			Help:      "Whether this process is currently primary (1) for a named election.",
		},
		[]string{"name"},
	)

	eventStreamEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replicore",
			Subsystem: "eventstream",
			Name:      "emitted_total",
			Help:      "Total events emitted grouped by stream name and code.",
		},
		[]string{"stream", "code"},
	)

	taskQueueDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "replicore",
			Subsystem: "taskqueue",
			Name:      "dispatched_total",
			Help:      "Total tasks dispatched to the queue grouped by task type and result.",
		},
		[]string{"task_type", "result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		orchestrateRuns,
		orchestrateDuration,
		orchestrateNodesSynced,
		discoveryRuns,
		discoveryDuration,
		nactionTransitions,
		oactionTransitions,
		coordinatorLockHolds,
		coordinatorElectionState,
		eventStreamEmitted,
		taskQueueDispatched,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordOrchestrateRun records the outcome and duration of an orchestrate task run.
func RecordOrchestrateRun(mode string, success bool, nodesSynced int, dur time.Duration) {
	mode = orEmpty(mode, "unknown")
	result := "failure"
	if success {
		result = "success"
	}
	orchestrateRuns.WithLabelValues(mode, result).Inc()
	orchestrateDuration.WithLabelValues(mode).Observe(dur.Seconds())
	orchestrateNodesSynced.WithLabelValues(mode).Observe(float64(nodesSynced))
}

// RecordDiscoveryRun records the outcome and duration of a discovery task run.
func RecordDiscoveryRun(platformKind string, success bool, dur time.Duration) {
	platformKind = orEmpty(platformKind, "unknown")
	result := "failure"
	if success {
		result = "success"
	}
	discoveryRuns.WithLabelValues(platformKind, result).Inc()
	discoveryDuration.WithLabelValues(platformKind).Observe(dur.Seconds())
}

// RecordNActionTransition records a node-action reaching a new phase.
func RecordNActionTransition(kind, phase string) {
	nactionTransitions.WithLabelValues(orEmpty(kind, "unknown"), phase).Inc()
}

// RecordOActionTransition records an orchestrator-action reaching a new state.
func RecordOActionTransition(kind, state string) {
	oactionTransitions.WithLabelValues(orEmpty(kind, "unknown"), state).Inc()
}

// RecordLockHeld sets whether name is currently held by this process.
func RecordLockHeld(name string, held bool) {
	val := 0.0
	if held {
		val = 1.0
	}
	coordinatorLockHolds.WithLabelValues(name).Set(val)
}

// RecordElectionPrimary sets whether this process is currently primary for name.
func RecordElectionPrimary(name string, primary bool) {
	val := 0.0
	if primary {
		val = 1.0
	}
	coordinatorElectionState.WithLabelValues(name).Set(val)
}

// RecordEventEmitted records an event emission on a stream.
func RecordEventEmitted(stream, code string) {
	eventStreamEmitted.WithLabelValues(stream, orEmpty(code, "unknown")).Inc()
}

// RecordTaskDispatched records a task-queue submission outcome.
func RecordTaskDispatched(taskType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	taskQueueDispatched.WithLabelValues(orEmpty(taskType, "unknown"), result).Inc()
}

func orEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses path parameters so the requests_total cardinality
// stays bounded: /api/v1/namespace/{ns}/cluster/{id} style routes collapse
// the identifier segments to a fixed placeholder.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 && looksLikeIdentifier(p) {
			out = append(out, ":id")
			continue
		}
		out = append(out, p)
	}
	return "/" + strings.Join(out, "/")
}

// looksLikeIdentifier reports whether segment contains a digit or a UUID-like
// dash, which plain route words (e.g. "namespace", "cluster-spec") don't.
func looksLikeIdentifier(segment string) bool {
	hasDigit := strings.ContainsAny(segment, "0123456789")
	hasDash := strings.Contains(segment, "-")
	return hasDigit || hasDash
}
