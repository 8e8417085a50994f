package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/replicante-io/replicore/internal/apperr"
)

// errorBody is the response envelope for every non-2xx response
// (spec.md §6: "400 with {error, layers?: [...]} for validation
// failures, 5xx for internal errors with the same envelope").
type errorBody struct {
	Error  string          `json:"error"`
	Layers []apperr.Layer  `json:"layers,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string, layers []apperr.Layer) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := errorBody{Error: message, Layers: layers}
	if code != "" && message == "" {
		body.Error = code
	}
	_ = json.NewEncoder(w).Encode(body)
}

// writeAppErr maps an apperr.Kind to its HTTP status (spec.md §7) and
// writes the error envelope.
func writeAppErr(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	code := apperr.CodeOf(err)
	layers := apperr.LayersOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindPrecondition, apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindConcurrency:
		status = http.StatusConflict
	case apperr.KindRemote:
		status = http.StatusBadGateway
	case apperr.KindInfrastructure:
		status = http.StatusInternalServerError
	}

	msg := err.Error()
	if code != "" {
		msg = code + ": " + msg
	}
	writeError(w, status, code, msg, layers)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
