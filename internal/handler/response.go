package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/mare-nostrum/internal/service"
	"github.com/freeeve/mare-nostrum/pkg/civ"
)

// maxBodyBytes caps request bodies. Commands and settings are small.
const maxBodyBytes = 64 << 10

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeList writes items, or an empty JSON array for a nil slice.
func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, items)
}

// decodeJSON reads and decodes JSON from a request body.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

// errorStatus maps a service or engine error to an HTTP status.
func errorStatus(err error) int {
	var cmdErr *civ.CommandError
	switch {
	case errors.As(err, &cmdErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrGameNotFound), errors.Is(err, service.ErrNoPhase):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotInGame):
		return http.StatusForbidden
	case errors.Is(err, service.ErrGameNotActive):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotCreator),
		errors.Is(err, service.ErrNotEnough),
		errors.Is(err, service.ErrGameNotWaiting),
		errors.Is(err, service.ErrGameFull),
		errors.Is(err, service.ErrAlreadyJoined),
		errors.Is(err, service.ErrInvalidSettings):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with the status errorStatus picks. Server
// errors are logged; invariant violations are logged loudly because the game
// can no longer continue.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		ev := log.Error()
		if errors.Is(err, civ.ErrInvariant) {
			ev = log.Error().Bool("invariant", true)
		}
		ev.Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeError(w, status, err.Error())
}
