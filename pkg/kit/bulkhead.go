package kit

import (
	"net/http"

	"golang.org/x/sync/semaphore"
)

// Bulkhead caps the number of requests in flight behind it. Requests over
// the limit fail fast with 429 instead of queueing.
func Bulkhead(limit int64) func(http.Handler) http.Handler {
	sem := semaphore.NewWeighted(limit)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sem.TryAcquire(1) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			defer sem.Release(1)

			next.ServeHTTP(w, r)
		})
	}
}
