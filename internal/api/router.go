package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/portview/portfolio-backend/internal/api/handlers"
	custommiddleware "github.com/portview/portfolio-backend/internal/api/middleware"
	"github.com/portview/portfolio-backend/internal/config"
	"github.com/portview/portfolio-backend/internal/service"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	systemService *service.SystemService,
	linkService *service.LinkService,
	credentialService *service.CredentialService,
	syncService *service.SyncService,
	portfolioService *service.PortfolioService,
	cfg *config.Config,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.SecurityHeaders)
	r.Use(custommiddleware.NewRateLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window).Handler)
	r.Use(custommiddleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS middleware
	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// System namespace, left open so probes work without a token
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(systemService)
			r.Get("/health", systemHandler.Health)
			r.Get("/version", systemHandler.Version)
		})

		// Everything else requires a bearer token
		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.AuthMiddleware)

			r.Route("/link", func(r chi.Router) {
				linkHandler := handlers.NewLinkHandler(linkService, credentialService)
				r.Post("/session", linkHandler.StartSession)
				r.Post("/exchange", linkHandler.ExchangeToken)
				r.Post("/cancel", linkHandler.CancelSession)
				r.Post("/sandbox", linkHandler.SandboxLink)
				r.Get("/items", linkHandler.ListItems)
				r.Route("/items/{linkedItemId}", func(r chi.Router) {
					r.Use(custommiddleware.ValidateUUIDParam("linkedItemId"))
					r.Delete("/", linkHandler.DeleteItem)
				})
			})

			r.Route("/sync", func(r chi.Router) {
				syncHandler := handlers.NewSyncHandler(syncService)
				r.Route("/{linkedItemId}", func(r chi.Router) {
					r.Use(custommiddleware.ValidateUUIDParam("linkedItemId"))
					r.Post("/", syncHandler.Sync)
				})
			})

			r.Route("/portfolio", func(r chi.Router) {
				portfolioHandler := handlers.NewPortfolioHandler(portfolioService)
				r.Get("/", portfolioHandler.Portfolio)
				r.Route("/{accountId}", func(r chi.Router) {
					r.Use(custommiddleware.ValidateUUIDParam("accountId"))
					r.Get("/", portfolioHandler.Account)
				})
			})
		})
	})

	return r
}
