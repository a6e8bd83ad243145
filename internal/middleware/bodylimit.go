package middleware

import (
	"fmt"
	"net/http"
)

// MaxBodySize rejects requests whose declared length exceeds limit and caps
// the body reader for the rest, so a handler decoding an oversized chunked
// body sees *http.MaxBytesError. A non-positive limit disables the check.
func MaxBodySize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", limit))
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
