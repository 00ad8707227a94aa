package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"bookstore-datastore/pkg/apierror"
	"bookstore-datastore/pkg/response"
)

// Recovery turns a handler panic into a 500 error body.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.Printf("[Recovery] panic on %s %s (request %s): %v\n%s", r.Method, r.URL.Path, GetRequestID(r.Context()), rec, debug.Stack())
			response.Error(w, apierror.InternalError(""))
		}()
		next.ServeHTTP(w, r)
	})
}
