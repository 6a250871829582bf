// Package observability wraps the gateway's HTTP mux so every request this
// process serves — settlement submissions, compliance checks, audit export,
// health — lands in Metrics.RecordHTTPRequest without each handler having to
// instrument itself.
package observability

import (
	"net/http"
	"time"
)

// countingResponseWriter tracks what the wrapped http.ResponseWriter
// actually sent, since http.ResponseWriter itself exposes neither.
type countingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func wrapResponseWriter(w http.ResponseWriter) *countingResponseWriter {
	return &countingResponseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *countingResponseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *countingResponseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// MetricsMiddleware records method/path/status/duration/size for every
// request that passes through it into metrics.
func MetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrapResponseWriter(w)

			next.ServeHTTP(rw, r)

			metrics.RecordHTTPRequest(r.Method, r.URL.Path, rw.status, time.Since(start), rw.bytes)
		})
	}
}
