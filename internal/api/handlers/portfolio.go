package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/portview/portfolio-backend/internal/api/middleware"
	"github.com/portview/portfolio-backend/internal/api/response"
	"github.com/portview/portfolio-backend/internal/service"
)

// PortfolioHandler handles portfolio-related HTTP requests
type PortfolioHandler struct {
	portfolioService *service.PortfolioService
}

// NewPortfolioHandler creates a new PortfolioHandler
func NewPortfolioHandler(portfolioService *service.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{
		portfolioService: portfolioService,
	}
}

// Portfolio handles GET requests to retrieve the user's accounts with their
// holdings, as the last completed sync left them. Reads never touch the
// aggregator.
//
// Endpoint: GET /api/portfolio
// Response: 200 OK with array of PortfolioAccount
// Error: 500 Internal Server Error if retrieval fails
func (h *PortfolioHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	portfolio, err := h.portfolioService.GetPortfolio(userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusOK, portfolio)
}

// Account handles GET requests to retrieve a single account with its
// holdings.
//
// Endpoint: GET /api/portfolio/{accountId}
// Response: 200 OK with PortfolioAccount
// Error: 400 Bad Request if the account ID is invalid (validated by middleware)
// Error: 404 Not Found if the account does not exist or belongs to another user
func (h *PortfolioHandler) Account(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	accountID := chi.URLParam(r, "accountId")

	account, err := h.portfolioService.GetAccount(userID, accountID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusOK, account)
}
