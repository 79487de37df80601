package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiranshivaraju/trainboard/internal/api/response"
	"github.com/kiranshivaraju/trainboard/internal/cache"
	"github.com/kiranshivaraju/trainboard/internal/store"
)

// NewStatsHandler returns an http.HandlerFunc for GET /api/dashboard/stats.
// Results are cached per user for ttl; every mutation drops the entry.
func NewStatsHandler(st store.Store, ca cache.Cache, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		key := cache.StatsKey(userID)

		if cached, hit, err := ca.Get(r.Context(), key); err != nil {
			slog.Warn("stats cache read failed", "user_id", userID, "error", err)
		} else if hit {
			response.Raw(w, cached)
			return
		}

		stats, err := st.Stats(r.Context(), userID)
		if err != nil {
			writeInternalError(w, r, err)
			return
		}

		body, err := json.Marshal(stats)
		if err != nil {
			writeInternalError(w, r, err)
			return
		}
		if err := ca.Set(r.Context(), key, body, ttl); err != nil {
			slog.Warn("stats cache write failed", "user_id", userID, "error", err)
		}
		response.Raw(w, body)
	}
}
