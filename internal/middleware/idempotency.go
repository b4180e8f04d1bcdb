package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/josh-kwaku/payment-ledger/internal/auth"
	"github.com/josh-kwaku/payment-ledger/internal/domain"
	"github.com/josh-kwaku/payment-ledger/internal/handler"
	"github.com/josh-kwaku/payment-ledger/internal/logging"
)

type idempotencyRepository interface {
	Reserve(ctx context.Context, entry *domain.IdempotencyEntry) (*domain.IdempotencyEntry, error)
	Set(ctx context.Context, entry *domain.IdempotencyEntry) error
}

const idempotencyTTL = 24 * time.Hour

// Idempotency replays the stored response when a caller repeats a mutating
// request with the same Idempotency-Key. Reusing a key for a different
// request is a conflict. The key is reserved before the handler runs, so a
// duplicate arriving while the first is in flight gets 409 instead of running
// again. 5xx responses release the key so a retry runs again; handlers pass
// the key on as a transfer reference, which custody performs at most once.
// A reservation whose response could not be stored stays pending until it
// expires. Must run after Auth.
func Idempotency(repo idempotencyRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				handler.RespondAppError(w, handler.ErrMissingIdempotencyKey, nil)
				return
			}

			caller, ok := auth.CallerFromContext(r.Context())
			if !ok {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			reqHash := computeHash(r.Method, r.URL.Path, body)

			log := logging.FromContext(r.Context()).With("idempotency_key", key)

			now := time.Now().UTC()
			entry := &domain.IdempotencyEntry{
				Key:         key,
				Caller:      caller,
				RequestHash: reqHash,
				CreatedAt:   now,
				ExpiresAt:   now.Add(idempotencyTTL),
			}

			cached, err := repo.Reserve(r.Context(), entry)
			if err != nil {
				log.Error("idempotency reservation failed", "error", err)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
				return
			}

			if cached != nil {
				if cached.RequestHash != reqHash {
					handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
					return
				}
				if cached.Pending() {
					handler.RespondAppError(w, handler.ErrIdempotencyInProgress, nil)
					return
				}

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotent-Replayed", "true")
				w.WriteHeader(cached.StatusCode)
				if _, err := w.Write(cached.ResponseBody); err != nil {
					log.Error("failed to write idempotent replay", "error", err)
				}
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			entry.StatusCode = rec.statusCode
			entry.ResponseBody = rec.body.Bytes()
			if rec.statusCode >= http.StatusInternalServerError {
				entry.ExpiresAt = time.Now().UTC()
			}
			// the client may be gone; the response must still be stored
			if err := repo.Set(context.WithoutCancel(r.Context()), entry); err != nil {
				log.Error("idempotency cache store failed", "error", err)
			}
		})
	}
}

func computeHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return fmt.Sprintf("%x", h.Sum(nil))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
