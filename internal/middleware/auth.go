package middleware

import (
	"net/http"
	"strings"

	"github.com/josh-kwaku/payment-ledger/internal/auth"
	"github.com/josh-kwaku/payment-ledger/internal/handler"
	"github.com/josh-kwaku/payment-ledger/internal/logging"
)

// Auth resolves the caller account from a Bearer token and adds it to the
// request context and the request logger.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			claims, err := auth.ValidateToken(token, secret)
			if err != nil {
				logging.FromContext(r.Context()).Debug("token rejected", "error", err)
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			ctx := auth.ContextWithCaller(r.Context(), claims.Account)
			ctx = logging.With(ctx, "caller", claims.Account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
