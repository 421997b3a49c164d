package handler

import (
	"net/http"

	"github.com/freeeve/secgame/api/internal/attack"
	"github.com/freeeve/secgame/api/internal/service"
)

// CatalogHandler exposes the ATT&CK catalog so clients can build projects.
type CatalogHandler struct {
	svc *service.AnalysisService
}

// NewCatalogHandler creates a CatalogHandler.
func NewCatalogHandler(svc *service.AnalysisService) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

type catalogEntry struct {
	ID        string `json:"id"`
	STIXID    string `json:"stix_id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name,omitempty"`
}

func entries(objs []*attack.Object) []catalogEntry {
	out := make([]catalogEntry, len(objs))
	for i, o := range objs {
		out[i] = catalogEntry{ID: o.Key(), STIXID: o.STIXID, Name: o.Name, ShortName: o.ShortName}
	}
	return out
}

// ListTactics handles GET /api/v1/catalogs/{domain}/tactics
func (h *CatalogHandler) ListTactics(w http.ResponseWriter, r *http.Request) {
	cat, err := h.svc.Catalog(r.Context(), r.PathValue("domain"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries(cat.AllTactics()))
}

// ListMitigations handles GET /api/v1/catalogs/{domain}/mitigations
func (h *CatalogHandler) ListMitigations(w http.ResponseWriter, r *http.Request) {
	cat, err := h.svc.Catalog(r.Context(), r.PathValue("domain"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries(cat.Mitigations()))
}
