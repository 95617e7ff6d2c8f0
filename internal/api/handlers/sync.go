package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/portview/portfolio-backend/internal/api/middleware"
	"github.com/portview/portfolio-backend/internal/api/response"
	"github.com/portview/portfolio-backend/internal/service"
)

// SyncHandler handles HTTP requests for on-demand portfolio syncs.
type SyncHandler struct {
	syncService *service.SyncService
}

// NewSyncHandler creates a new SyncHandler with the provided service dependency.
func NewSyncHandler(syncService *service.SyncService) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
	}
}

// Sync handles POST requests to reconcile one linked item against the
// aggregator's current snapshot. A run that could not fetch from the
// aggregator still returns 200; the failure is reported in the result's
// error entries because the engine itself completed.
//
// Endpoint: POST /api/sync/{linkedItemId}
// Response: 200 OK with SyncResult
// Error: 400 Bad Request if the item ID is invalid (validated by middleware)
// Error: 404 Not Found if the item does not exist or belongs to another user
// Error: 409 Conflict if a sync for the item is already running, or the
// credential can no longer be decrypted
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	linkedItemID := chi.URLParam(r, "linkedItemId")

	result, err := h.syncService.Sync(r.Context(), userID, linkedItemID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}
