package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"

	"verity/internal/domain"
)

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, details any) {
	writeJSON(w, status, errorBody{Error: msg, Details: details})
}

// respondError maps the domain error taxonomy onto HTTP statuses. Every
// branch keeps the error's own context in the body so the caller can decide
// whether to retry, re-fetch, or escalate.
func respondError(w http.ResponseWriter, err error) {
	var (
		transition *domain.InvalidTransitionError
		stale      *domain.StaleStateError
		precond    *domain.PreconditionError
		authz      *domain.AuthorizationError
		ingest     *domain.IngestionError
		assign     *domain.InvalidAssignmentError
		notFound   *domain.NotFoundError
		invalid    *domain.ValidationError
	)
	switch {
	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, err.Error(), map[string]string{
			"currentPhase":   string(transition.Current),
			"requestedPhase": string(transition.Requested),
		})
	case errors.As(err, &stale):
		writeError(w, http.StatusConflict, err.Error(), map[string]string{"retry": "re-read and retry"})
	case errors.As(err, &precond):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), map[string]string{"missing": precond.Missing})
	case errors.As(err, &authz):
		writeError(w, http.StatusForbidden, err.Error(), nil)
	case errors.As(err, &ingest):
		writeError(w, http.StatusBadGateway, err.Error(), map[string]bool{"timeout": ingest.Timeout})
	case errors.As(err, &assign):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}
