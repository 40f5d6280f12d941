package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tiptoro/tiptoro-api/internal/api/shared"
)

// Pinger checks a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports 200 when db answers a ping within two seconds and
// 503 otherwise.
func HealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			respondError(w, r, http.StatusServiceUnavailable, "database unavailable", err)
			return
		}
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}
}
