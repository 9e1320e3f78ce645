package identity

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/opencra/opencra/internal/platform/httpx"
	"github.com/opencra/opencra/internal/shared"
)

// Middleware extracts the bearer token, resolves the principal and installs
// it into the request context. Requests without a resolvable principal are
// rejected before they reach any handler.
func Middleware(provider Provider, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			principal, err := provider.Resolve(r.Context(), token)
			if err != nil {
				if errors.Is(err, ErrUnknownToken) {
					httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing or unknown credentials")
					return
				}
				logger.Error("resolve principal", slog.Any("error", err))
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			ctx := shared.ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
