package server

import (
	"context"
	"time"

	apperrors "github.com/Skylto-inc/dealmate-lootpacks/errors"
	"github.com/Skylto-inc/dealmate-lootpacks/events/kafka"
	"github.com/Skylto-inc/dealmate-lootpacks/lootpack"
	"github.com/Skylto-inc/dealmate-lootpacks/pkg/drops"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// EventPublisher publishes pack-opened events. *kafka.Producer satisfies it.
type EventPublisher interface {
	PublishPackOpened(topic string, event kafka.PackOpenedEvent) error
}

// AdRecorder stores a rewarded-ad completion. *ads.Tracker satisfies it.
type AdRecorder interface {
	RecordCompletion(ctx context.Context, userID, placement string, window time.Duration) error
}

// PackService orchestrates pack listing, opening, stats and inventory reads.
// Publisher and broadcaster are optional collaborators; a nil value disables
// the corresponding side effect without touching the opening flow.
type PackService struct {
	store       lootpack.Store
	pools       *lootpack.PoolCache
	ads         lootpack.AdVerifier
	recorder    AdRecorder
	publisher   EventPublisher
	broadcaster *drops.Broadcaster
	topic       string
	rng         lootpack.RNG
	now         func() time.Time
	logger      zerolog.Logger
}

// PackServiceOptions holds PackService dependencies.
type PackServiceOptions struct {
	Store       lootpack.Store
	Pools       *lootpack.PoolCache
	Ads         lootpack.AdVerifier
	Recorder    AdRecorder
	Publisher   EventPublisher
	Broadcaster *drops.Broadcaster
	Topic       string
	RNG         lootpack.RNG
	Now         func() time.Time
	Logger      zerolog.Logger
}

// NewPackService creates the pack service.
func NewPackService(opts PackServiceOptions) *PackService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &PackService{
		store:       opts.Store,
		pools:       opts.Pools,
		ads:         opts.Ads,
		recorder:    opts.Recorder,
		publisher:   opts.Publisher,
		broadcaster: opts.Broadcaster,
		topic:       opts.Topic,
		rng:         opts.RNG,
		now:         now,
		logger:      opts.Logger.With().Str("component", "pack_service").Logger(),
	}
}

// ListPacks returns active pack types, free packs first.
func (s *PackService) ListPacks(ctx context.Context) ([]lootpack.PackType, error) {
	packs, err := s.store.ActivePackTypes(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageError, "Failed to load pack types")
	}
	return packs, nil
}

// GetStats returns the user's stats projection, creating the row on first
// access.
func (s *PackService) GetStats(ctx context.Context, userID string) (*lootpack.UserStatsResponse, error) {
	stats, err := s.store.GetOrCreateStats(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStatsError, "Failed to load user stats")
	}
	snapshot := stats.Snapshot(s.now())
	return &snapshot, nil
}

// GetInventory returns the user's rewards with derived counts.
func (s *PackService) GetInventory(ctx context.Context, userID string) (*lootpack.InventoryResponse, error) {
	rewards, err := s.store.RewardsForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageError, "Failed to load rewards")
	}

	now := s.now()
	active := lo.CountBy(rewards, func(r lootpack.OwnedReward) bool { return !r.IsUsed })
	used := len(rewards) - active
	expiring := lo.CountBy(rewards, func(r lootpack.OwnedReward) bool {
		return !r.IsUsed && r.ExpiresAt != nil && r.ExpiresAt.Sub(now) <= lootpack.ExpiringSoonWindow
	})

	return &lootpack.InventoryResponse{
		Rewards: rewards,
		Stats: lootpack.InventoryStats{
			ActiveCount:        active,
			UsedCount:          used,
			ExpiringSoonCount:  expiring,
			TotalValueEstimate: lootpack.PlaceholderInventoryValue,
		},
	}, nil
}

// RecordAdCompletion stores a completed daily-pack ad view.
func (s *PackService) RecordAdCompletion(ctx context.Context, userID string) error {
	if s.recorder == nil {
		return apperrors.New(apperrors.ErrConfigError, "Ad tracking is not configured")
	}
	if err := s.recorder.RecordCompletion(ctx, userID, lootpack.DailyPackAdPlacement, lootpack.AdValidityWindow); err != nil {
		return apperrors.Wrap(err, apperrors.ErrRedisError, "Failed to record ad completion")
	}
	return nil
}

// OpenPack runs one atomic pack opening: validate eligibility, resolve the
// reward pool, roll rewards, persist inventory, history and advanced stats in
// a single transaction. Events fire only after the commit.
func (s *PackService) OpenPack(ctx context.Context, userID, packTypeID string) (*lootpack.OpenPackResponse, error) {
	var (
		resp     *lootpack.OpenPackResponse
		packName string
		rewards  []lootpack.GeneratedReward
	)

	err := s.store.RunInTx(ctx, func(tx lootpack.StoreTx) error {
		now := s.now()

		pack, err := tx.ActivePackType(ctx, packTypeID)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrStorageError, "Failed to load pack type")
		}
		if pack == nil {
			return apperrors.New(apperrors.ErrPackTypeNotFound, "Pack type not found")
		}

		stats, err := tx.StatsForUpdate(ctx, userID)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrStatsError, "Failed to load user stats")
		}

		if err := s.validateEligibility(ctx, userID, pack, stats, now); err != nil {
			return err
		}

		if stats == nil {
			stats, err = tx.CreateDefaultStats(ctx, userID)
			if err != nil {
				return apperrors.Wrap(err, apperrors.ErrStatsError, "Failed to create user stats")
			}
		}

		pool, err := s.pools.GetOrBuild(ctx, packTypeID)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrRewardPoolError, "Failed to build reward pool")
		}

		rewards = s.rollRewards(pool, pack, now)

		history := &lootpack.PackHistory{
			UserID:        userID,
			PackTypeID:    pack.ID,
			RewardsCount:  len(rewards),
			TotalValueINR: decimal.Zero,
			OpenedAt:      now,
		}
		if err := tx.InsertPackHistory(ctx, history); err != nil {
			return apperrors.Wrap(err, apperrors.ErrStorageError, "Failed to record pack opening")
		}

		for i := range rewards {
			owned := ownedFromGenerated(&rewards[i], userID, history.ID, pack.Name, now)
			if err := tx.InsertOwnedReward(ctx, owned); err != nil {
				return apperrors.Wrap(err, apperrors.ErrStorageError, "Failed to store reward")
			}
		}

		next := lootpack.AdvanceStats(*stats, *pack, rewards, now)
		if err := tx.UpdateStats(ctx, &next); err != nil {
			return apperrors.Wrap(err, apperrors.ErrStatsError, "Failed to update user stats")
		}

		packName = pack.Name
		resp = &lootpack.OpenPackResponse{
			Rewards:      rewards,
			UpdatedStats: next.Snapshot(now),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(userID, packTypeID, packName, rewards)

	return resp, nil
}

// validateEligibility enforces per-category opening rules. Stats may be nil
// for a first-time user.
func (s *PackService) validateEligibility(ctx context.Context, userID string, pack *lootpack.PackType, stats *lootpack.UserStats, now time.Time) error {
	if pack.Category == lootpack.CategoryFree {
		if stats != nil {
			canClaim, _ := lootpack.ClaimProjection(stats.LastDailyClaim, now)
			if !canClaim {
				return apperrors.New(apperrors.ErrCooldownActive, "Daily pack still on cooldown")
			}
		}

		watched, err := s.ads.CompletedRecently(ctx, userID, lootpack.DailyPackAdPlacement, lootpack.AdValidityWindow)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrRedisError, "Failed to verify ad completion")
		}
		if !watched {
			return apperrors.New(apperrors.ErrAdRequired, "Watch an ad to claim your daily pack")
		}
		return nil
	}

	if pack.PriceCoins != nil {
		if stats == nil || stats.DealCoins < *pack.PriceCoins {
			return apperrors.New(apperrors.ErrInsufficientBalance, "Insufficient DealCoins")
		}
	}
	return nil
}

// rollRewards draws the reward batch for one opening. Expensive premium packs
// reserve the first slot for a guaranteed above-common reward.
func (s *PackService) rollRewards(pool *lootpack.RewardPool, pack *lootpack.PackType, now time.Time) []lootpack.GeneratedReward {
	numRewards := pack.MinRewards
	if pack.MaxRewards > pack.MinRewards {
		numRewards = pack.MinRewards + s.rng.Intn(pack.MaxRewards-pack.MinRewards+1)
	}

	rewards := make([]lootpack.GeneratedReward, 0, numRewards)
	remaining := numRewards

	if pack.Category == lootpack.CategoryPremium &&
		pack.PriceCoins != nil && *pack.PriceCoins >= lootpack.RarityGuaranteeMinPrice &&
		remaining > 0 {
		if sub := pool.AboveCommon(); len(sub) > 0 {
			tmpl := sub[s.rng.Intn(len(sub))]
			rewards = append(rewards, lootpack.MintReward(tmpl, s.rng, now))
			remaining--
		}
	}

	for i := 0; i < remaining; i++ {
		if pool.TotalWeight() == 0 {
			break
		}
		tmpl := pool.SelectByWeight(1 + s.rng.Intn(pool.TotalWeight()))
		if tmpl == nil {
			continue
		}
		rewards = append(rewards, lootpack.MintReward(tmpl, s.rng, now))
	}

	return rewards
}

// afterCommit fires the pack-opened event and rare-drop announcements. Both
// are best-effort: a failed publish never fails the already committed opening.
func (s *PackService) afterCommit(userID, packTypeID, packName string, rewards []lootpack.GeneratedReward) {
	if s.publisher != nil {
		event := kafka.PackOpenedEvent{
			UserID:       userID,
			PackTypeID:   packTypeID,
			PackName:     packName,
			RewardsCount: len(rewards),
			Rarities: lo.Map(rewards, func(r lootpack.GeneratedReward, _ int) string {
				return string(r.Rarity)
			}),
			Timestamp: s.now(),
		}
		if err := s.publisher.PublishPackOpened(s.topic, event); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to publish pack-opened event")
		}
	}

	if s.broadcaster != nil {
		for _, r := range rewards {
			if r.Rarity == lootpack.RarityCommon {
				continue
			}
			s.broadcaster.Send(drops.Drop{
				UserID:      userID,
				PackName:    packName,
				RewardTitle: r.Title,
				Rarity:      string(r.Rarity),
				Timestamp:   s.now(),
			})
		}
	}
}

// ownedFromGenerated maps a freshly rolled reward onto its inventory row.
func ownedFromGenerated(r *lootpack.GeneratedReward, userID, historyID, source string, now time.Time) *lootpack.OwnedReward {
	var description *string
	if r.Description != "" {
		d := r.Description
		description = &d
	}
	hid := historyID
	return &lootpack.OwnedReward{
		ID:            r.ID,
		UserID:        userID,
		PackHistoryID: &hid,
		Kind:          r.Kind,
		Title:         r.Title,
		Value:         r.Value,
		Description:   description,
		Code:          r.Code,
		Rarity:        r.Rarity,
		Source:        source,
		ExpiresAt:     r.ExpiresAt,
		CreatedAt:     now,
	}
}
