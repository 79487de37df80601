package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kiranshivaraju/trainboard/internal/api/response"
)

// Pinger is anything whose connectivity can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status   string            `json:"status"`
	Provider string            `json:"provider"`
	Checks   map[string]string `json:"checks"`
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/health.
// It answers 503 when any dependency fails its ping.
func NewHealthHandler(provider string, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Provider: provider, Checks: make(map[string]string, len(deps))}
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		response.Status(w, status, resp)
	}
}
