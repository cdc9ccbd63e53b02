package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"loancounselor-backend/internal/models"
	"loancounselor-backend/internal/services"
	"loancounselor-backend/pkg/httputil"
)

// LenderCatalog exposes the lender reference data.
type LenderCatalog interface {
	Lenders() []models.Lender
	SearchLenders(ctx context.Context, query string, k int) ([]models.Lender, error)
}

var _ LenderCatalog = (*services.CounselorService)(nil)

// LenderHandlers handles the read-only lender endpoints.
type LenderHandlers struct {
	catalog LenderCatalog
}

func NewLenderHandlers(catalog LenderCatalog) *LenderHandlers {
	return &LenderHandlers{catalog: catalog}
}

// HandleListLenders returns the whole catalogue.
func (h *LenderHandlers) HandleListLenders(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, models.ListLendersResponse{Lenders: h.catalog.Lenders()})
}

// HandleSearchLenders runs a similarity search: GET /lenders/search?q=...&k=...
func (h *LenderHandlers) HandleSearchLenders(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Missing query parameter: q")
		return
	}

	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.RespondError(w, http.StatusBadRequest, "Query parameter k must be a positive integer")
			return
		}
		k = parsed
	}

	found, err := h.catalog.SearchLenders(r.Context(), query, k)
	if err != nil {
		respondServiceError(w, err, "Internal server error")
		return
	}
	if found == nil {
		found = []models.Lender{}
	}
	httputil.RespondJSON(w, http.StatusOK, models.SearchLendersResponse{Query: query, Lenders: found})
}
