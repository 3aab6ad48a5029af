package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Skylto-inc/dealmate-lootpacks/lootpack"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

const packTypeColumns = `id, name, type, description, icon, color_gradient,
	price_coins, cooldown_hours, min_rewards, max_rewards,
	possible_reward_types, is_active, created_at, updated_at`

const statsColumns = `user_id, deal_coins, daily_streak, last_daily_claim,
	total_packs_opened, level, level_progress, total_savings_inr,
	member_status, puzzle_pieces, puzzle_packs_claimed, created_at, updated_at`

// Store implements lootpack.Store and lootpack.PoolLoader on PostgreSQL.
type Store struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

// NewStore creates a PostgreSQL-backed store.
func NewStore(db *sqlx.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "postgres-store").Logger(),
	}
}

// ActivePackTypes lists active pack types, free packs first, then by
// ascending price with null prices leading.
func (s *Store) ActivePackTypes(ctx context.Context) ([]lootpack.PackType, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM pack_types
		WHERE is_active = true
		ORDER BY
			CASE WHEN type = 'free' THEN 0 ELSE 1 END,
			price_coins ASC NULLS FIRST`, packTypeColumns)

	packs := []lootpack.PackType{}
	if err := s.db.SelectContext(ctx, &packs, query); err != nil {
		return nil, fmt.Errorf("failed to list pack types: %w", err)
	}
	return packs, nil
}

// GetOrCreateStats loads a user's stats row, inserting defaults on first
// access.
func (s *Store) GetOrCreateStats(ctx context.Context, userID string) (*lootpack.UserStats, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_lootpack_stats WHERE user_id = $1`, statsColumns)

	var stats lootpack.UserStats
	err := s.db.GetContext(ctx, &stats, query, userID)
	if err == nil {
		return &stats, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load user stats: %w", err)
	}

	insert := fmt.Sprintf(`
		INSERT INTO user_lootpack_stats
		(user_id, deal_coins, daily_streak, total_packs_opened, level,
		 level_progress, total_savings_inr, member_status, puzzle_pieces, puzzle_packs_claimed)
		VALUES ($1, $2, $3, 0, $4, 0, 0, $5, 0, 0)
		RETURNING %s`, statsColumns)

	err = s.db.GetContext(ctx, &stats, insert, userID,
		lootpack.DefaultDealCoins, lootpack.DefaultDailyStreak,
		lootpack.DefaultLevel, lootpack.DefaultMemberStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to create default stats: %w", err)
	}

	s.logger.Info().Str("user_id", userID).Msg("Created default lootpack stats")
	return &stats, nil
}

// RewardsForUser lists a user's inventory, newest first.
func (s *Store) RewardsForUser(ctx context.Context, userID string) ([]lootpack.OwnedReward, error) {
	query := `
		SELECT id, user_id, pack_history_id, template_id, type, title, value,
		       description, code, rarity, source, expires_at, is_used, used_at, created_at
		FROM user_rewards
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rewards := []lootpack.OwnedReward{}
	if err := s.db.SelectContext(ctx, &rewards, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list user rewards: %w", err)
	}
	return rewards, nil
}

// poolRow is the flat scan target for the pool mapping join.
type poolRow struct {
	ID           string              `db:"id"`
	Kind         lootpack.RewardKind `db:"type"`
	Title        string              `db:"title"`
	Value        string              `db:"value"`
	Description  *string             `db:"description"`
	Rarity       lootpack.Rarity     `db:"rarity"`
	CodePattern  *string             `db:"code_pattern"`
	ValidityDays *int                `db:"validity_days"`
	IsActive     bool                `db:"is_active"`
	CreatedAt    time.Time           `db:"created_at"`
	Weight       *int                `db:"weight"`
}

// PoolMappings loads the active reward templates mapped to a pack type in
// descending weight order. Implements lootpack.PoolLoader.
func (s *Store) PoolMappings(ctx context.Context, packTypeID string) ([]lootpack.WeightedMapping, error) {
	query := `
		SELECT rt.id, rt.type, rt.title, rt.value, rt.description, rt.rarity,
		       rt.code_pattern, rt.validity_days, rt.is_active, rt.created_at,
		       prm.weight
		FROM reward_templates rt
		JOIN pack_reward_mappings prm ON rt.id = prm.reward_template_id
		WHERE prm.pack_type_id = $1 AND rt.is_active = true
		ORDER BY prm.weight DESC`

	rows := []poolRow{}
	if err := s.db.SelectContext(ctx, &rows, query, packTypeID); err != nil {
		return nil, fmt.Errorf("failed to load reward pool mappings: %w", err)
	}

	mappings := make([]lootpack.WeightedMapping, 0, len(rows))
	for _, row := range rows {
		mappings = append(mappings, lootpack.WeightedMapping{
			Template: lootpack.RewardTemplate{
				ID:           row.ID,
				Kind:         row.Kind,
				Title:        row.Title,
				Value:        row.Value,
				Description:  row.Description,
				Rarity:       row.Rarity,
				CodePattern:  row.CodePattern,
				ValidityDays: row.ValidityDays,
				IsActive:     row.IsActive,
				CreatedAt:    row.CreatedAt,
			},
			Weight: row.Weight,
		})
	}
	return mappings, nil
}

// RunInTx runs fn inside one database transaction. Any error aborts it.
func (s *Store) RunInTx(ctx context.Context, fn func(tx lootpack.StoreTx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&storeTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// storeTx implements lootpack.StoreTx on one open transaction.
type storeTx struct {
	tx *sqlx.Tx
}

func (t *storeTx) ActivePackType(ctx context.Context, id string) (*lootpack.PackType, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM pack_types
		WHERE id = $1 AND is_active = true`, packTypeColumns)

	var pack lootpack.PackType
	err := t.tx.GetContext(ctx, &pack, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pack type: %w", err)
	}
	return &pack, nil
}

func (t *storeTx) StatsForUpdate(ctx context.Context, userID string) (*lootpack.UserStats, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM user_lootpack_stats
		WHERE user_id = $1
		FOR UPDATE`, statsColumns)

	var stats lootpack.UserStats
	err := t.tx.GetContext(ctx, &stats, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock user stats: %w", err)
	}
	return &stats, nil
}

func (t *storeTx) CreateDefaultStats(ctx context.Context, userID string) (*lootpack.UserStats, error) {
	insert := fmt.Sprintf(`
		INSERT INTO user_lootpack_stats
		(user_id, deal_coins, daily_streak, total_packs_opened, level,
		 level_progress, total_savings_inr, member_status, puzzle_pieces, puzzle_packs_claimed)
		VALUES ($1, $2, $3, 0, $4, 0, 0, $5, 0, 0)
		RETURNING %s`, statsColumns)

	var stats lootpack.UserStats
	err := t.tx.GetContext(ctx, &stats, insert, userID,
		lootpack.DefaultDealCoins, lootpack.DefaultDailyStreak,
		lootpack.DefaultLevel, lootpack.DefaultMemberStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to create default stats: %w", err)
	}
	return &stats, nil
}

func (t *storeTx) InsertPackHistory(ctx context.Context, h *lootpack.PackHistory) error {
	query := `
		INSERT INTO user_pack_history (user_id, pack_type_id, rewards_count, total_value_inr, opened_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := t.tx.GetContext(ctx, &h.ID, query,
		h.UserID, h.PackTypeID, h.RewardsCount, h.TotalValueINR, h.OpenedAt)
	if err != nil {
		return fmt.Errorf("failed to insert pack history: %w", err)
	}
	return nil
}

func (t *storeTx) InsertOwnedReward(ctx context.Context, r *lootpack.OwnedReward) error {
	query := `
		INSERT INTO user_rewards
		(id, user_id, pack_history_id, template_id, type, title, value,
		 description, code, rarity, source, expires_at, is_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, false, $13)`

	_, err := t.tx.ExecContext(ctx, query,
		r.ID, r.UserID, r.PackHistoryID, r.TemplateID, r.Kind, r.Title, r.Value,
		r.Description, r.Code, r.Rarity, r.Source, r.ExpiresAt, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reward: %w", err)
	}
	return nil
}

func (t *storeTx) UpdateStats(ctx context.Context, s *lootpack.UserStats) error {
	query := `
		UPDATE user_lootpack_stats
		SET deal_coins = $2, total_packs_opened = $3, level = $4,
		    level_progress = $5, daily_streak = $6, last_daily_claim = $7,
		    updated_at = NOW()
		WHERE user_id = $1`

	_, err := t.tx.ExecContext(ctx, query,
		s.UserID, s.DealCoins, s.TotalPacksOpened, s.Level,
		s.LevelProgress, s.DailyStreak, s.LastDailyClaim)
	if err != nil {
		return fmt.Errorf("failed to update user stats: %w", err)
	}
	return nil
}
