package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// StatsKey holds a user's cached dashboard stats.
func StatsKey(userID string) string {
	return fmt.Sprintf("stats:%s", userID)
}

// TrainingLockKey is held by the worker currently training a model.
func TrainingLockKey(modelID uuid.UUID) string {
	return fmt.Sprintf("training:lock:%s", modelID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
