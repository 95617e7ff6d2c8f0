package middleware

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/portview/portfolio-backend/internal/api/response"
)

type contextKey string

// userIDKey is the request context key holding the authenticated user's ID.
const userIDKey contextKey = "userID"

// AuthMiddleware verifies the Authorization bearer token and stores the
// authenticated user's ID in the request context. Tokens are HS256 JWTs
// signed with JWT_SECRET whose subject claim carries the user ID.
// Returns 401 Unauthorized when the token is missing, malformed, expired,
// or signed with the wrong key.
//
// Example usage in router:
//
//	r.Route("/link", func(r chi.Router) {
//	    r.Use(middleware.AuthMiddleware)
//	    r.Post("/session", handler.StartSession)
//	})
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			response.RespondError(w, http.StatusInternalServerError, "authentication error", "Authentication not loaded")
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			response.RespondError(w, http.StatusUnauthorized, "authentication required", "Missing bearer token")
			return
		}

		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			response.RespondError(w, http.StatusUnauthorized, "authentication required", "Authorization header must use the Bearer scheme")
			return
		}

		token, err := jwt.Parse(tokenString, func(_ *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			response.RespondError(w, http.StatusUnauthorized, "authentication required", "Bearer token is invalid or expired")
			return
		}

		subject, err := token.Claims.GetSubject()
		if err != nil || subject == "" {
			response.RespondError(w, http.StatusUnauthorized, "authentication required", "Token has no subject")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), subject)))
	})
}

// WithUserID returns a context carrying an authenticated user ID. The auth
// middleware attaches it after verifying a token; tests use it to stand in
// for a verified request.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated user's ID from the request context, or an
// empty string outside an authenticated request.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
