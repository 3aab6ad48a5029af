package lootpack

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// RewardKind identifies what a reward template yields when opened.
type RewardKind string

const (
	KindPoints  RewardKind = "points"
	KindCoupon  RewardKind = "coupon"
	KindVoucher RewardKind = "voucher"
)

// Rarity is the tier of a reward template.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// PackCategory classifies a pack type.
type PackCategory string

const (
	CategoryFree    PackCategory = "free"
	CategoryPremium PackCategory = "premium"
)

// DailyPackAdPlacement is the ad placement that gates the daily free pack.
const DailyPackAdPlacement = "daily_pack_ad"

// AdValidityWindow is how long a completed ad interaction qualifies a user
// for the daily free pack.
const AdValidityWindow = time.Hour

// DailyClaimCooldown is the minimum time between two free-pack claims.
const DailyClaimCooldown = 24 * time.Hour

// RarityGuaranteeMinPrice is the premium price threshold (in DealCoins) above
// which a pack opening guarantees at least one above-common reward.
const RarityGuaranteeMinPrice = 299

// RewardTemplate is a catalog entry describing one possible reward outcome.
// Templates are created and updated by the admin process; this service only
// reads them.
type RewardTemplate struct {
	ID           string     `db:"id" json:"id"`
	Kind         RewardKind `db:"type" json:"type"`
	Title        string     `db:"title" json:"title"`
	Value        string     `db:"value" json:"value"`
	Description  *string    `db:"description" json:"description,omitempty"`
	Rarity       Rarity     `db:"rarity" json:"rarity"`
	CodePattern  *string    `db:"code_pattern" json:"codePattern,omitempty"`
	ValidityDays *int       `db:"validity_days" json:"validityDays,omitempty"`
	IsActive     bool       `db:"is_active" json:"isActive"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
}

// WeightedMapping pairs a reward template with its configured weight for one
// pack type. A nil weight means "unspecified" and defaults to 1 at pool build.
type WeightedMapping struct {
	Template RewardTemplate `db:""`
	Weight   *int           `db:"weight"`
}

// WeightedReward is a pool entry carrying the running cumulative weight at its
// position in the pool's fixed (descending-weight) order.
type WeightedReward struct {
	Template         RewardTemplate
	Weight           int
	CumulativeWeight int
}

// PackType is the configuration of one openable pack.
type PackType struct {
	ID            string         `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	Category      PackCategory   `db:"type" json:"type"`
	Description   *string        `db:"description" json:"description,omitempty"`
	Icon          *string        `db:"icon" json:"icon,omitempty"`
	ColorGradient *string        `db:"color_gradient" json:"colorGradient,omitempty"`
	PriceCoins    *int           `db:"price_coins" json:"priceCoins,omitempty"`
	CooldownHours *int           `db:"cooldown_hours" json:"cooldownHours,omitempty"`
	MinRewards    int            `db:"min_rewards" json:"minRewards"`
	MaxRewards    int            `db:"max_rewards" json:"maxRewards"`
	RewardKinds   pq.StringArray `db:"possible_reward_types" json:"possibleRewardTypes"`
	IsActive      bool           `db:"is_active" json:"isActive"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updatedAt"`
}

// UserStats is the per-user lootpack aggregate. It is mutated only inside a
// pack-opening transaction, with the row locked for the duration.
type UserStats struct {
	UserID             string          `db:"user_id" json:"userId"`
	DealCoins          int             `db:"deal_coins" json:"dealCoins"`
	DailyStreak        int             `db:"daily_streak" json:"dailyStreak"`
	LastDailyClaim     *time.Time      `db:"last_daily_claim" json:"lastDailyClaim,omitempty"`
	TotalPacksOpened   int             `db:"total_packs_opened" json:"totalPacksOpened"`
	Level              int             `db:"level" json:"level"`
	LevelProgress      int             `db:"level_progress" json:"levelProgress"`
	TotalSavingsINR    decimal.Decimal `db:"total_savings_inr" json:"totalSavingsInr"`
	MemberStatus       string          `db:"member_status" json:"memberStatus"`
	PuzzlePieces       int             `db:"puzzle_pieces" json:"puzzlePieces"`
	PuzzlePacksClaimed int             `db:"puzzle_packs_claimed" json:"puzzlePacksClaimed"`
	CreatedAt          time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updatedAt"`
}

// Defaults for a lazily created stats row.
const (
	DefaultDealCoins    = 500
	DefaultDailyStreak  = 1
	DefaultLevel        = 1
	DefaultMemberStatus = "Bronze"
)

// NewDefaultStats returns the stats row created on a user's first access.
func NewDefaultStats(userID string, now time.Time) *UserStats {
	return &UserStats{
		UserID:          userID,
		DealCoins:       DefaultDealCoins,
		DailyStreak:     DefaultDailyStreak,
		Level:           DefaultLevel,
		TotalSavingsINR: decimal.Zero,
		MemberStatus:    DefaultMemberStatus,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// GeneratedReward is a freshly minted instance of a template, produced once
// per roll and persisted into the user's inventory.
type GeneratedReward struct {
	ID          string     `json:"id"`
	Kind        RewardKind `json:"type"`
	Title       string     `json:"title"`
	Value       string     `json:"value"`
	Description string     `json:"description"`
	Code        *string    `json:"code,omitempty"`
	Rarity      Rarity     `json:"rarity"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// OwnedReward is an inventory row. is_used/used_at belong to the separate
// redemption flow and are never touched by pack opening.
type OwnedReward struct {
	ID            string     `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"userId"`
	PackHistoryID *string    `db:"pack_history_id" json:"packHistoryId,omitempty"`
	TemplateID    *string    `db:"template_id" json:"templateId,omitempty"`
	Kind          RewardKind `db:"type" json:"type"`
	Title         string     `db:"title" json:"title"`
	Value         string     `db:"value" json:"value"`
	Description   *string    `db:"description" json:"description,omitempty"`
	Code          *string    `db:"code" json:"code,omitempty"`
	Rarity        Rarity     `db:"rarity" json:"rarity"`
	Source        string     `db:"source" json:"source"`
	ExpiresAt     *time.Time `db:"expires_at" json:"expiresAt,omitempty"`
	IsUsed        bool       `db:"is_used" json:"isUsed"`
	UsedAt        *time.Time `db:"used_at" json:"usedAt,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
}

// PackHistory records one pack opening.
//
// TotalValueINR is a placeholder: reward templates carry no monetary value
// yet, so every history row stores zero. It must not be read as real money.
type PackHistory struct {
	ID            string          `db:"id" json:"id"`
	UserID        string          `db:"user_id" json:"userId"`
	PackTypeID    string          `db:"pack_type_id" json:"packTypeId"`
	RewardsCount  int             `db:"rewards_count" json:"rewardsCount"`
	TotalValueINR decimal.Decimal `db:"total_value_inr" json:"totalValueInr"`
	OpenedAt      time.Time       `db:"opened_at" json:"openedAt"`
}

// UserStatsResponse is the stats payload returned by both the plain stats
// read and the open-pack response. Both derive the claim fields through
// ClaimProjection so the two endpoints can never disagree.
type UserStatsResponse struct {
	DealCoins        int        `json:"dealCoins"`
	DailyStreak      int        `json:"dailyStreak"`
	TotalPacksOpened int        `json:"totalPacksOpened"`
	Level            int        `json:"level"`
	LevelProgress    int        `json:"levelProgress"`
	MemberStatus     string     `json:"memberStatus"`
	CanClaimDaily    bool       `json:"canClaimDaily"`
	NextDailyClaim   *time.Time `json:"nextDailyClaim,omitempty"`
}

// Snapshot projects the stats row into its response form at the given time.
func (s *UserStats) Snapshot(now time.Time) UserStatsResponse {
	canClaim, next := ClaimProjection(s.LastDailyClaim, now)
	return UserStatsResponse{
		DealCoins:        s.DealCoins,
		DailyStreak:      s.DailyStreak,
		TotalPacksOpened: s.TotalPacksOpened,
		Level:            s.Level,
		LevelProgress:    s.LevelProgress,
		MemberStatus:     s.MemberStatus,
		CanClaimDaily:    canClaim,
		NextDailyClaim:   next,
	}
}

// OpenPackResponse is the result of one pack opening.
type OpenPackResponse struct {
	Rewards      []GeneratedReward `json:"rewards"`
	UpdatedStats UserStatsResponse `json:"updatedStats"`
}

// InventoryStats carries derived counts over a user's inventory.
//
// TotalValueEstimate is a placeholder constant, not a computed valuation; see
// PlaceholderInventoryValue.
type InventoryStats struct {
	ActiveCount        int             `json:"activeCount"`
	UsedCount          int             `json:"usedCount"`
	ExpiringSoonCount  int             `json:"expiringSoonCount"`
	TotalValueEstimate decimal.Decimal `json:"totalValueEstimate"`
}

// PlaceholderInventoryValue stands in for a real valuation until reward
// templates carry monetary value.
var PlaceholderInventoryValue = decimal.NewFromInt(850)

// ExpiringSoonWindow is the lookahead used for the expiring-soon count.
const ExpiringSoonWindow = 72 * time.Hour

// InventoryResponse is the inventory listing payload.
type InventoryResponse struct {
	Rewards []OwnedReward  `json:"rewards"`
	Stats   InventoryStats `json:"stats"`
}
