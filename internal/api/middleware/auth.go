package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/recursiadx/internal/domain/entities"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
)

// TokenCookie is the cookie carrying the access token for browser clients
const TokenCookie = "token"

type actorKey struct{}

// Authenticator resolves an access token to the acting user
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (entities.Actor, error)
}

// TokenFromRequest returns the bearer token, falling back to the token cookie
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// WithActor stores the authenticated actor in ctx
func WithActor(ctx context.Context, actor entities.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by AuthMiddleware
func ActorFromContext(ctx context.Context) (entities.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(entities.Actor)
	return actor, ok
}

// AuthMiddleware rejects requests without a valid access token and
// stores the resolved actor in the request context.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				unauthorized(w, "authentication required")
				return
			}

			actor, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				var appErr *apperrors.AppError
				if errors.As(err, &appErr) && appErr.Type == apperrors.ErrorTypeUnauthorized {
					unauthorized(w, appErr.Message)
					return
				}
				log.Error().Err(err).Str("path", r.URL.Path).Msg("Token verification failed")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "internal server error"})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": message})
}
