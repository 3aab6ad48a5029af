// Package ads tracks rewarded-ad completions in Redis.
//
// A completion is recorded under a per-user, per-placement key with a TTL
// equal to the validity window, so verification is a plain existence check
// and stale completions expire on their own.
package ads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Skylto-inc/dealmate-lootpacks/db/redis"
	"github.com/rs/zerolog"
)

// completion is the payload stored per completed ad view.
type completion struct {
	UserID      string    `json:"user_id"`
	Placement   string    `json:"placement"`
	CompletedAt time.Time `json:"completed_at"`
}

// Tracker records and verifies rewarded-ad completions.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates an ad completion tracker backed by Redis.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

func completionKey(userID, placement string) string {
	return fmt.Sprintf("ad:completion:%s:%s", userID, placement)
}

// RecordCompletion stores a completed ad view for the given placement. The
// record expires after the validity window, so a single completion unlocks
// at most one claim attempt window.
func (t *Tracker) RecordCompletion(ctx context.Context, userID, placement string, window time.Duration) error {
	record := completion{
		UserID:      userID,
		Placement:   placement,
		CompletedAt: time.Now().UTC(),
	}

	key := completionKey(userID, placement)
	if err := t.redis.SetJSON(ctx, key, record, window); err != nil {
		return fmt.Errorf("failed to record ad completion: %w", err)
	}

	t.logger.Debug().
		Str("user_id", userID).
		Str("placement", placement).
		Dur("window", window).
		Msg("Ad completion recorded")

	return nil
}

// CompletedRecently reports whether the user completed an ad for the given
// placement within the window. Implements lootpack.AdVerifier.
func (t *Tracker) CompletedRecently(ctx context.Context, userID, placement string, window time.Duration) (bool, error) {
	var record completion
	err := t.redis.GetJSON(ctx, completionKey(userID, placement), &record)
	if err != nil {
		if errors.Is(err, redis.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check ad completion: %w", err)
	}

	// Keys carry the window as TTL, but guard against a longer-lived record
	// when the configured window shrinks.
	if time.Since(record.CompletedAt) > window {
		return false, nil
	}

	return true, nil
}
