package handler

import (
	"context"
	"net/http"
	"time"

	"detectview/internal/logger"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthHandler reports ok, or 503 when any checker fails.
func HealthHandler(logger *logger.Logger, checkers ...HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		for _, c := range checkers {
			if err := c.CheckHealth(ctx); err != nil {
				respondJSON(w, logger, map[string]string{"status": "degraded", "error": err.Error()}, http.StatusServiceUnavailable)
				return
			}
		}
		respondJSON(w, logger, map[string]string{"status": "ok"}, http.StatusOK)
	}
}
