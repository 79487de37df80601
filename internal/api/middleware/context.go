package middleware

import (
	"context"
	"net/http"
	"sync"
)

type contextKey string

const (
	userIDKey  contextKey = "user_id"
	rateKeyKey contextKey = "rate_key"
	scopeKey   contextKey = "scope"
)

// requestScope is shared by every context derived from the request it was
// installed on, so Logger and Recovery see the user Authenticate resolved
// further down the chain.
type requestScope struct {
	mu     sync.Mutex
	userID string
}

func withScope(r *http.Request) *http.Request {
	if _, ok := r.Context().Value(scopeKey).(*requestScope); ok {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), scopeKey, &requestScope{}))
}

func SetUserID(ctx context.Context, id string) context.Context {
	if s, ok := ctx.Value(scopeKey).(*requestScope); ok {
		s.mu.Lock()
		s.userID = id
		s.mu.Unlock()
	}
	return context.WithValue(ctx, userIDKey, id)
}

func GetUserID(r *http.Request) (string, bool) {
	if id, ok := r.Context().Value(userIDKey).(string); ok && id != "" {
		return id, true
	}
	if s, ok := r.Context().Value(scopeKey).(*requestScope); ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.userID, s.userID != ""
	}
	return "", false
}

// SetRateKey sets the identity requests are counted against.
func SetRateKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, rateKeyKey, key)
}

func getRateKey(r *http.Request) (string, bool) {
	key, ok := r.Context().Value(rateKeyKey).(string)
	return key, ok
}
