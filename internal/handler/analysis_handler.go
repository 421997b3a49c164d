package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/freeeve/secgame/api/internal/auth"
	"github.com/freeeve/secgame/api/internal/config"
	"github.com/freeeve/secgame/api/internal/service"
)

const maxProjectBytes = 1 << 20

// AnalysisHandler handles analysis endpoints.
type AnalysisHandler struct {
	svc *service.AnalysisService
}

// NewAnalysisHandler creates an AnalysisHandler.
func NewAnalysisHandler(svc *service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{svc: svc}
}

// CreateAnalysis handles POST /api/v1/analyses. The body is a project; the
// analysis runs in the background and is polled or followed over WebSocket.
func (h *AnalysisHandler) CreateAnalysis(w http.ResponseWriter, r *http.Request) {
	analystID := auth.AnalystIDFromContext(r.Context())
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxProjectBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "project too large")
		return
	}
	p, err := config.ParseProjectJSON(body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	a, err := h.svc.Submit(r.Context(), analystID, p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, a)
}

// ListAnalyses handles GET /api/v1/analyses
func (h *AnalysisHandler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	analystID := auth.AnalystIDFromContext(r.Context())
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	list, err := h.svc.List(r.Context(), analystID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if list == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetAnalysis handles GET /api/v1/analyses/{id}
func (h *AnalysisHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Get(r.Context(), auth.AnalystIDFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// CancelAnalysis handles DELETE /api/v1/analyses/{id}
func (h *AnalysisHandler) CancelAnalysis(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(r.Context(), auth.AnalystIDFromContext(r.Context()), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}
