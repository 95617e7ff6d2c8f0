package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/portview/portfolio-backend/internal/api/middleware"
	"github.com/portview/portfolio-backend/internal/api/request"
	"github.com/portview/portfolio-backend/internal/api/response"
	"github.com/portview/portfolio-backend/internal/model"
	"github.com/portview/portfolio-backend/internal/service"
	"github.com/portview/portfolio-backend/internal/validation"
)

// LinkHandler handles HTTP requests for the account-linking endpoints.
// It serves as the HTTP layer adapter, parsing requests and delegating
// business logic to the linkService and credentialService.
type LinkHandler struct {
	linkService       *service.LinkService
	credentialService *service.CredentialService
}

// NewLinkHandler creates a new LinkHandler with the provided service dependencies.
func NewLinkHandler(linkService *service.LinkService, credentialService *service.CredentialService) *LinkHandler {
	return &LinkHandler{
		linkService:       linkService,
		credentialService: credentialService,
	}
}

// LinkResultResponse represents a completed link: the stored item and the
// result of its first sync.
type LinkResultResponse struct {
	Item model.LinkedItem `json:"item"`
	Sync model.SyncResult `json:"sync"`
}

// StartSession handles POST requests to open a new link session.
// Returns the single-use session token the client-side link flow needs,
// and records the attempt the eventual token exchange will consume.
//
// Endpoint: POST /api/link/session
// Response: 201 Created with LinkSession
// Error: 502 Bad Gateway if the aggregator is unavailable
func (h *LinkHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	session, err := h.linkService.StartSession(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusCreated, session)
}

// ExchangeToken handles POST requests to complete a link flow.
// Claims the newest active link attempt, trades the public token for an
// access token, stores the encrypted credential, and runs the first sync.
//
// Endpoint: POST /api/link/exchange
// Request Body: ExchangeTokenRequest (publicToken)
// Response: 201 Created with LinkResultResponse
// Error: 400 Bad Request if the body is invalid or the token is rejected
// Error: 409 Conflict if no link attempt is awaiting completion (replay)
// Error: 502 Bad Gateway if the aggregator is unavailable
func (h *LinkHandler) ExchangeToken(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	req, err := parseJSON[request.ExchangeTokenRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := validation.ValidateExchangeToken(req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	item, syncResult, err := h.linkService.CompleteExchange(r.Context(), userID, req.PublicToken)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusCreated, LinkResultResponse{Item: item, Sync: syncResult})
}

// CancelSession handles POST requests to abandon the current link attempt.
// Cancelling when no attempt is active is a no-op.
//
// Endpoint: POST /api/link/cancel
// Response: 204 No Content
func (h *LinkHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	if err := h.linkService.Cancel(r.Context(), userID); err != nil {
		respondServiceError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusNoContent, nil)
}

// SandboxLink handles POST requests to link a sandbox institution without a
// client-side flow. Refused outside the sandbox environment.
//
// Endpoint: POST /api/link/sandbox
// Request Body: SandboxLinkRequest (query and institutionId, both optional)
// Response: 201 Created with LinkResultResponse
// Error: 400 Bad Request if validation fails or sandbox linking is disabled
// Error: 502 Bad Gateway if the aggregator is unavailable
func (h *LinkHandler) SandboxLink(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	req, err := parseJSON[request.SandboxLinkRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := validation.ValidateSandboxLink(req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	item, syncResult, err := h.linkService.SandboxLink(r.Context(), userID, req.Query, req.InstitutionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusCreated, LinkResultResponse{Item: item, Sync: syncResult})
}

// ListItems handles GET requests to retrieve the user's linked items.
// Credentials never appear in the response.
//
// Endpoint: GET /api/link/items
// Response: 200 OK with array of LinkedItem
// Error: 500 Internal Server Error if retrieval fails
func (h *LinkHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	items, err := h.credentialService.ListByUser(userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusOK, items)
}

// DeleteItem handles DELETE requests to unlink an item. The credential is
// revoked at the aggregator on a best-effort basis, then the item and its
// accounts and holdings are removed. Deleting an already-deleted item
// succeeds.
//
// Endpoint: DELETE /api/link/items/{linkedItemId}
// Response: 204 No Content
// Error: 400 Bad Request if the item ID is invalid (validated by middleware)
func (h *LinkHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	linkedItemID := chi.URLParam(r, "linkedItemId")

	if err := h.credentialService.Revoke(r.Context(), userID, linkedItemID); err != nil {
		respondServiceError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusNoContent, nil)
}
