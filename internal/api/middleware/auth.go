package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/trainboard/internal/api/response"
	"github.com/kiranshivaraju/trainboard/internal/auth"
	"github.com/kiranshivaraju/trainboard/internal/store"
)

var errUnauthenticated = errors.New("unauthenticated")

// Auth provides authentication middleware.
type Auth struct {
	store     store.Store
	jwtSecret string
}

// NewAuth creates a new Auth middleware. Bearer credentials are either
// HS256 JWTs signed with jwtSecret or API keys stored in s.
func NewAuth(s store.Store, jwtSecret string) *Auth {
	return &Auth{store: s, jwtSecret: jwtSecret}
}

// Authenticate validates the Bearer credential and sets user_id and the
// rate-limit identity in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		if raw == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		userID, rateKey, err := a.identify(r.Context(), raw)
		if errors.Is(err, errUnauthenticated) {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid credentials", nil)
			return
		}
		if err != nil {
			slog.Error("credential lookup failed", "error", err)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate API key", nil)
			return
		}

		ctx := SetUserID(r.Context(), userID)
		ctx = SetRateKey(ctx, rateKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identify returns the user and rate-limit identity behind raw.
func (a *Auth) identify(ctx context.Context, raw string) (string, string, error) {
	if auth.LooksLikeJWT(raw) {
		userID, err := auth.ParseToken(a.jwtSecret, raw)
		if err != nil {
			slog.Debug("rejected bearer token", "error", err)
			return "", "", errUnauthenticated
		}
		return userID, "user:" + userID, nil
	}

	prefix, ok := auth.KeyLookupPrefix(raw)
	if !ok {
		return "", "", errUnauthenticated
	}
	keys, err := a.store.GetAPIKeysByPrefix(ctx, prefix)
	if err != nil {
		return "", "", err
	}

	// Find matching key by bcrypt comparison
	for _, key := range keys {
		if auth.MatchAPIKey(key.KeyHash, raw) {
			// Update last_used_at async
			go a.store.UpdateAPIKeyLastUsed(context.Background(), key.ID)
			return key.UserID, "key:" + prefix, nil
		}
	}
	return "", "", errUnauthenticated
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
