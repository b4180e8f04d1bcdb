package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/josh-kwaku/payment-ledger/internal/handler"
	"github.com/josh-kwaku/payment-ledger/internal/logging"
)

var httpPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ledger_http_panics_total",
	Help: "Handler panics recovered by the HTTP server",
})

type headerTracker struct {
	http.ResponseWriter
	wrote bool
}

func (t *headerTracker) WriteHeader(code int) {
	t.wrote = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *headerTracker) Write(b []byte) (int, error) {
	t.wrote = true
	return t.ResponseWriter.Write(b)
}

// Recovery turns a handler panic into an error envelope. A panic carrying an
// *handler.AppError is answered with that error; anything else is a 500.
// Nothing is written when the handler already started its response.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &headerTracker{ResponseWriter: w}
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			httpPanicsTotal.Inc()

			appErr := handler.ErrInternalError
			if err, ok := v.(error); ok {
				var ae *handler.AppError
				if errors.As(err, &ae) {
					appErr = ae
				}
			}

			logging.FromContext(r.Context()).Error("panic recovered",
				"error", fmt.Sprint(v),
				"method", r.Method,
				"path", r.URL.Path,
				"code", appErr.Code,
				"stack", string(debug.Stack()),
			)
			if tw.wrote {
				return
			}
			handler.RespondAppError(w, appErr, nil)
		}()
		next.ServeHTTP(tw, r)
	})
}
