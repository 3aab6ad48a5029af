package lootpack

import (
	"strconv"
	"strings"
	"time"
)

const (
	levelProgressPerPack = 10
	levelUpBonusCoins    = 100
	streakWindow         = 48 * time.Hour
)

// ClaimProjection derives the daily-claim fields from the last free-pack
// claim. It is the single source of truth for canClaimDaily/nextDailyClaim,
// shared by the stats read and the open-pack response.
func ClaimProjection(lastClaim *time.Time, now time.Time) (canClaim bool, next *time.Time) {
	if lastClaim == nil || now.Sub(*lastClaim) >= DailyClaimCooldown {
		return true, nil
	}
	n := lastClaim.Add(DailyClaimCooldown)
	return false, &n
}

// AdvanceStats computes the next stats row for one pack opening. Pure: the
// input is copied, never mutated.
//
// Coin arithmetic: points rewards add their parsed value, premium packs
// deduct their price, and a level-up grants its bonus after the deduction.
func AdvanceStats(stats UserStats, pack PackType, rewards []GeneratedReward, now time.Time) UserStats {
	coinBonus := 0
	for _, r := range rewards {
		if r.Kind == KindPoints {
			coinBonus += parsePointsValue(r.Value)
		}
	}

	packCost := 0
	if pack.Category == CategoryPremium && pack.PriceCoins != nil {
		packCost = *pack.PriceCoins
	}

	stats.DealCoins += coinBonus - packCost
	stats.TotalPacksOpened++
	stats.LevelProgress += levelProgressPerPack
	if stats.LevelProgress >= 100 {
		stats.Level++
		stats.LevelProgress = 0
		stats.DealCoins += levelUpBonusCoins
	}

	if pack.Category == CategoryFree {
		switch {
		case stats.LastDailyClaim == nil:
			stats.DailyStreak = 1
		case now.Sub(*stats.LastDailyClaim) >= streakWindow:
			stats.DailyStreak = 1
		case now.Sub(*stats.LastDailyClaim) >= DailyClaimCooldown:
			stats.DailyStreak++
		}
		// The under-24h case is unreachable: validation already rejected
		// the claim.
		claimed := now
		stats.LastDailyClaim = &claimed
	}

	stats.UpdatedAt = now
	return stats
}

// parsePointsValue reads a points display value like "+50" back into an
// integer. Non-numeric values count as 0. The display string doubles as the
// numeric store, so this stays lossy until templates carry a typed amount.
func parsePointsValue(v string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(v), "+"))
	if err != nil {
		return 0
	}
	return n
}
