// Package middleware provides HTTP middleware for request validation and processing.
package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/portview/portfolio-backend/internal/api/response"
	"github.com/portview/portfolio-backend/internal/validation"
)

// ValidateUUIDParam validates that the named URL parameter is present and is
// a valid UUID. Returns 400 Bad Request if the parameter is missing or invalid.
// Apply it to routes that carry a resource ID in the URL path.
//
// Example usage in router:
//
//	r.Route("/{linkedItemId}", func(r chi.Router) {
//	    r.Use(middleware.ValidateUUIDParam("linkedItemId"))
//	    r.Post("/", handler.Sync)
//	})
func ValidateUUIDParam(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, param)

			if id == "" {
				response.RespondError(w, http.StatusBadRequest, "valid UUID is required", "")
				return
			}

			if err := validation.ValidateUUID(id); err != nil {
				response.RespondError(w, http.StatusBadRequest, "invalid UUID format", err.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
