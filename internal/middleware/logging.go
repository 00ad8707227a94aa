package middleware

import (
	"log"
	"net/http"
	"time"
)

// Logging writes one line per request. Record reads also report whether
// they were served from the cache.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		line := "[Request] %s %s %d %dB %s id=%s"
		args := []any{r.Method, r.URL.RequestURI(), rw.status, rw.bytes, time.Since(start), GetRequestID(r.Context())}
		if state := rw.Header().Get("X-Cache"); state != "" {
			line += " cache=%s"
			args = append(args, state)
		}
		log.Printf(line, args...)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}
