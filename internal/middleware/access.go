package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"cyris/internal/logging"
	"cyris/internal/metrics"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

const (
	// RequestIDKey is the context key for the request id
	RequestIDKey ContextKey = "requestID"

	accessStateKey ContextKey = "accessState"
)

// accessState is filled in by middleware running inside the mux
type accessState struct {
	ownerKind string
}

func noteOwnerKind(ctx context.Context, kind string) {
	if st, ok := ctx.Value(accessStateKey).(*accessState); ok {
		st.ownerKind = kind
	}
}

// AccessLogger receives one entry per served request
type AccessLogger interface {
	Log(entry logging.AccessEntry)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Flush keeps streaming responses working through the recorder
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// GetRequestID returns the request id assigned by Access
func GetRequestID(r *http.Request) string {
	if id, ok := r.Context().Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// Access assigns a request id, then records the route, status and duration
// of every request to metrics and, when non-nil, the access log. The route
// label is the matched mux pattern, so chat and share ids never reach labels.
// Access must wrap the mux directly; the session middleware belongs on the
// individual routes.
func Access(m metrics.Metrics, log AccessLogger) func(http.Handler) http.Handler {
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" || len(requestID) > 128 {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			state := &accessState{}
			ctx := context.WithValue(r.Context(), accessStateKey, state)
			ctx = context.WithValue(ctx, RequestIDKey, requestID)
			r = r.WithContext(ctx)

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			elapsed := time.Since(start)

			m.ObserveHTTPRequest(route, status, elapsed)
			if log != nil {
				log.Log(logging.AccessEntry{
					RequestID:  requestID,
					Method:     r.Method,
					Route:      route,
					Status:     status,
					DurationMS: elapsed.Milliseconds(),
					OwnerKind:  state.ownerKind,
					RemoteAddr: r.RemoteAddr,
				})
			}
		})
	}
}
