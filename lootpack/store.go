package lootpack

import (
	"context"
	"time"
)

// Store is the read surface plus the transactional entry point consumed by
// the pack service. The postgres adapter implements it; tests use in-memory
// fakes.
type Store interface {
	// ActivePackTypes lists active packs, free before priced, then by
	// ascending price with null prices first.
	ActivePackTypes(ctx context.Context) ([]PackType, error)

	// GetOrCreateStats loads a user's stats row, creating it with defaults
	// on first access.
	GetOrCreateStats(ctx context.Context, userID string) (*UserStats, error)

	// RewardsForUser lists a user's inventory, newest first.
	RewardsForUser(ctx context.Context, userID string) ([]OwnedReward, error)

	// RunInTx runs fn inside one storage transaction. Any error from fn
	// aborts the transaction; no partial write survives an abort.
	RunInTx(ctx context.Context, fn func(tx StoreTx) error) error
}

// StoreTx is the write surface available inside a pack-opening transaction.
// StatsForUpdate must serialize concurrent openings for the same user (row
// lock or equivalent), which is what keeps balance deductions and streak
// increments from racing.
type StoreTx interface {
	// ActivePackType loads one active pack type; (nil, nil) when missing or
	// inactive.
	ActivePackType(ctx context.Context, id string) (*PackType, error)

	// StatsForUpdate loads and locks the user's stats row; (nil, nil) when
	// the row does not exist yet.
	StatsForUpdate(ctx context.Context, userID string) (*UserStats, error)

	// CreateDefaultStats inserts and returns the default stats row.
	CreateDefaultStats(ctx context.Context, userID string) (*UserStats, error)

	// InsertPackHistory persists the opening record and fills in its id.
	InsertPackHistory(ctx context.Context, h *PackHistory) error

	// InsertOwnedReward persists one inventory row.
	InsertOwnedReward(ctx context.Context, r *OwnedReward) error

	// UpdateStats writes the advanced stats row.
	UpdateStats(ctx context.Context, s *UserStats) error
}

// AdVerifier answers whether the user completed a qualifying ad interaction
// for a placement within the window. The pack service only consumes this
// boolean fact; recording completions is the ads package's concern.
type AdVerifier interface {
	CompletedRecently(ctx context.Context, userID, placement string, window time.Duration) (bool, error)
}
