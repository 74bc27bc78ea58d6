// Package requestid tags each request with an id, reusing the caller's X-Request-ID when present.
package requestid

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

const Header = "X-Request-ID"

func New(log *slog.Logger, next http.Handler) *RequestID {
	return &RequestID{
		Log:  log,
		Next: next,
	}
}

type RequestID struct {
	Log  *slog.Logger
	Next http.Handler
}

type requestIDContextKey int

const requestIDKey requestIDContextKey = 0

func Get(r *http.Request) (id string, ok bool) {
	id, ok = r.Context().Value(requestIDKey).(string)
	return
}

func (h *RequestID) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(Header)
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
	}
	w.Header().Set(Header, id)
	h.Log.Debug("request", slog.String("id", id), slog.String("method", r.Method), slog.String("path", r.URL.Path))
	r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))
	h.Next.ServeHTTP(w, r)
}

// Logger returns log with the request id attached, if there is one.
func Logger(log *slog.Logger, r *http.Request) *slog.Logger {
	if id, ok := Get(r); ok {
		return log.With(slog.String("requestId", id))
	}
	return log
}
