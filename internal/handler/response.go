package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/secgame/api/internal/attack"
	"github.com/freeeve/secgame/api/internal/config"
	"github.com/freeeve/secgame/api/internal/logger"
	"github.com/freeeve/secgame/api/internal/service"
	"github.com/freeeve/secgame/api/pkg/combin"
	"github.com/freeeve/secgame/api/pkg/criterion"
)

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

// decodeJSON reads and decodes JSON from a request body.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// errorStatus maps service and domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrAnalysisNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAnalysisFinished):
		return http.StatusConflict
	case errors.Is(err, service.ErrCatalogUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, config.ErrInvalidProject),
		errors.Is(err, attack.ErrUnknownDomain),
		errors.Is(err, service.ErrUnknownTactic),
		errors.Is(err, service.ErrUnknownMitigation),
		errors.Is(err, service.ErrNoTechniques),
		errors.Is(err, service.ErrDomainMismatch),
		errors.Is(err, service.ErrBudgetExceeded),
		errors.Is(err, criterion.ErrUnknownRule),
		errors.Is(err, criterion.ErrInvalidRule),
		errors.Is(err, combin.ErrOutOfRange),
		errors.Is(err, combin.ErrEmptyUniverse):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeServiceError writes err with the status errorStatus picks. Internal
// errors are logged and hidden from the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		l := logger.ForRequest(r.Context())
		l.Error().Err(err).Msg("Request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
