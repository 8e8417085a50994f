package oaction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/replicante-io/replicore/internal/model"
	"github.com/replicante-io/replicore/pkg/metrics"
)

// HTTPKind is the generic "core.replicante.io/http" OAction kind: it POSTs
// the full OAction record to a configured URL and interprets the response
// per spec.md §4.7. Grounded on original_source
// legacy/core/orchestrator_action/http/src/{lib,response}.rs.
const HTTPKind = "core.replicante.io/http"

// DefaultHTTPTimeout is the handler's own per-kind action timeout, matching
// the Rust original's `ONE_DAY` constant for long-running external actions.
const DefaultHTTPTimeout = 24 * time.Hour

// httpArgs is the subset of action.Args the HTTP handler reads.
type httpArgs struct {
	Remote struct {
		URL     string `json:"url"`
		Timeout int    `json:"timeout"`
	} `json:"remote"`
}

// HTTPHandler implements Handler by delegating progress to a remote HTTP
// endpoint named in the action's args.
type HTTPHandler struct {
	Client   *http.Client
	Recorder *metrics.Recorder
}

// NewHTTPHandler returns a handler using client, or a default client with a
// generous per-call timeout when client is nil. A per-request
// remote.timeout arg, if set, adds a context deadline on top of the client's
// timeout, so it can shorten a call but not lengthen it. rec records per-remote-URL call outcomes
// the predeclared metrics vectors have no label for; a nil rec is a no-op.
func NewHTTPHandler(client *http.Client, rec *metrics.Recorder) *HTTPHandler {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPHandler{Client: client, Recorder: rec}
}

// Entry returns the registry Entry for the HTTP kind.
func (h *HTTPHandler) Entry() Entry {
	return Entry{
		Kind:         HTTPKind,
		Handler:      h,
		Timeout:      DefaultHTTPTimeout,
		ScheduleMode: model.ScheduleExclusive,
		Summary:      "Execute an externally implemented action over HTTP(S)",
	}
}

func (h *HTTPHandler) Invoke(ctx context.Context, action model.OAction) (OActionChanges, error) {
	var args httpArgs
	if raw, ok := action.Args["remote"]; ok {
		encoded, err := json.Marshal(map[string]any{"remote": raw})
		if err != nil {
			return OActionChanges{}, fmt.Errorf("oaction http: decode args: %w", err)
		}
		if err := json.Unmarshal(encoded, &args); err != nil {
			return OActionChanges{}, fmt.Errorf("oaction http: decode args: %w", err)
		}
	}
	if args.Remote.URL == "" {
		return OActionChanges{}, fmt.Errorf("oaction http: args.remote.url is required")
	}

	body, err := json.Marshal(action)
	if err != nil {
		return OActionChanges{}, fmt.Errorf("oaction http: encode action: %w", err)
	}

	reqCtx := ctx
	if args.Remote.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, time.Duration(args.Remote.Timeout)*time.Second)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, args.Remote.URL, bytes.NewReader(body))
	if err != nil {
		return OActionChanges{}, fmt.Errorf("oaction http: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := h.Client.Do(req)
	h.Recorder.Histogram("oaction_http_remote_call_duration_seconds", map[string]string{"url": args.Remote.URL}, time.Since(start).Seconds())
	if err != nil {
		h.Recorder.Counter("oaction_http_remote_call_errors", map[string]string{"url": args.Remote.URL}, 1)
		return OActionChanges{}, fmt.Errorf("oaction http: request failed: %w", err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return OActionChanges{}, fmt.Errorf("oaction http: read response: %w", err)
	}

	return decodeHTTPResponse(action, resp.StatusCode, text), nil
}

// decodeHTTPResponse implements original_source's response::decode +
// ensure_move_to_running: 204 -> no change, 200 with a JSON body -> applied
// directly, anything else -> treated as a failure encoded into
// state_payload_error.
func decodeHTTPResponse(action model.OAction, status int, text []byte) OActionChanges {
	switch status {
	case http.StatusNoContent:
		return OActionChanges{State: action.State}
	case http.StatusOK:
		var changes OActionChanges
		if err := json.Unmarshal(text, &changes); err == nil && changes.State != "" {
			if changes.Payload != nil {
				changes.PayloadField = Update
			}
			if changes.Error != nil {
				changes.ErrorField = Update
			}
			return changes
		}
		return failResponse(status, text)
	default:
		return failResponse(status, text)
	}
}

func failResponse(status int, text []byte) OActionChanges {
	var payload any
	if err := json.Unmarshal(text, &payload); err != nil {
		payload = string(text)
	}
	return OActionChanges{
		State: model.OActionFailed,
		Error: &model.ActionError{
			Message: fmt.Sprintf("remote responded with status %d", status),
			Code:    "RemoteFailure",
		},
		ErrorField: Update,
		Payload:    map[string]any{"response_status": status, "response_body": payload},
		PayloadField: Update,
	}
}
