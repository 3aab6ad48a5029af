package lootpack

import (
	"testing"
	"time"
)

func freePack() PackType {
	return PackType{ID: "pack-free", Name: "Daily Pack", Category: CategoryFree, MinRewards: 1, MaxRewards: 3, IsActive: true}
}

func premiumPack(price int) PackType {
	return PackType{ID: "pack-premium", Name: "Mega Pack", Category: CategoryPremium, PriceCoins: &price, MinRewards: 3, MaxRewards: 5, IsActive: true}
}

func pointsReward(value string) GeneratedReward {
	return GeneratedReward{ID: "r", Kind: KindPoints, Title: "Points", Value: value, Rarity: RarityCommon}
}

func TestAdvanceStatsCoinArithmetic(t *testing.T) {
	now := time.Now()
	stats := UserStats{UserID: "u1", DealCoins: 300, DailyStreak: 1, Level: 1, LevelProgress: 0}

	next := AdvanceStats(stats, premiumPack(250), []GeneratedReward{pointsReward("+30")}, now)

	if next.DealCoins != 80 {
		t.Errorf("Expected 300 - 250 + 30 = 80 coins, got %d", next.DealCoins)
	}
	if next.TotalPacksOpened != 1 {
		t.Errorf("Expected 1 pack opened, got %d", next.TotalPacksOpened)
	}
	if next.LevelProgress != 10 {
		t.Errorf("Expected level progress 10, got %d", next.LevelProgress)
	}
	// Input must stay untouched.
	if stats.DealCoins != 300 || stats.TotalPacksOpened != 0 {
		t.Error("AdvanceStats mutated its input")
	}
}

func TestAdvanceStatsLevelUp(t *testing.T) {
	now := time.Now()
	stats := UserStats{UserID: "u1", DealCoins: 100, Level: 3, LevelProgress: 95}

	next := AdvanceStats(stats, freePack(), []GeneratedReward{pointsReward("+20")}, now)

	if next.Level != 4 {
		t.Errorf("Expected level 4, got %d", next.Level)
	}
	if next.LevelProgress != 0 {
		t.Errorf("Expected level progress reset to 0, got %d", next.LevelProgress)
	}
	// 100 + 20 roll income + 100 level-up bonus.
	if next.DealCoins != 220 {
		t.Errorf("Expected 220 coins after level-up bonus, got %d", next.DealCoins)
	}
}

func TestAdvanceStatsStreak(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		lastClaim  *time.Time
		streak     int
		wantStreak int
	}{
		{"first claim", nil, 5, 1},
		{"within window", timePtr(now.Add(-30 * time.Hour)), 5, 6},
		{"missed a day", timePtr(now.Add(-50 * time.Hour)), 5, 1},
		{"exactly 48h", timePtr(now.Add(-48 * time.Hour)), 5, 1},
		{"exactly 24h", timePtr(now.Add(-24 * time.Hour)), 5, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := UserStats{UserID: "u1", DailyStreak: tt.streak, LastDailyClaim: tt.lastClaim}
			next := AdvanceStats(stats, freePack(), nil, now)
			if next.DailyStreak != tt.wantStreak {
				t.Errorf("Expected streak %d, got %d", tt.wantStreak, next.DailyStreak)
			}
			if next.LastDailyClaim == nil || !next.LastDailyClaim.Equal(now) {
				t.Errorf("Expected last claim set to now, got %v", next.LastDailyClaim)
			}
		})
	}
}

func TestAdvanceStatsPremiumLeavesStreakAlone(t *testing.T) {
	now := time.Now()
	last := now.Add(-30 * time.Hour)
	stats := UserStats{UserID: "u1", DealCoins: 1000, DailyStreak: 4, LastDailyClaim: &last}

	next := AdvanceStats(stats, premiumPack(299), nil, now)

	if next.DailyStreak != 4 {
		t.Errorf("Expected streak unchanged at 4, got %d", next.DailyStreak)
	}
	if !next.LastDailyClaim.Equal(last) {
		t.Errorf("Expected last claim unchanged, got %v", next.LastDailyClaim)
	}
}

func TestParsePointsValue(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"+50", 50},
		{"50", 50},
		{"-10", -10},
		{" +25 ", 25},
		{"20% OFF", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if got := parsePointsValue(tt.value); got != tt.want {
			t.Errorf("parsePointsValue(%q) = %d, expected %d", tt.value, got, tt.want)
		}
	}
}

func TestClaimProjection(t *testing.T) {
	now := time.Now()

	canClaim, next := ClaimProjection(nil, now)
	if !canClaim || next != nil {
		t.Errorf("Expected claimable with no next claim for fresh user, got %v %v", canClaim, next)
	}

	old := now.Add(-25 * time.Hour)
	canClaim, next = ClaimProjection(&old, now)
	if !canClaim || next != nil {
		t.Errorf("Expected claimable after 25h, got %v %v", canClaim, next)
	}

	recent := now.Add(-10 * time.Hour)
	canClaim, next = ClaimProjection(&recent, now)
	if canClaim {
		t.Error("Expected not claimable after 10h")
	}
	if next == nil || !next.Equal(recent.Add(24*time.Hour)) {
		t.Errorf("Expected next claim at last+24h, got %v", next)
	}
}

func TestSnapshotUsesProjection(t *testing.T) {
	now := time.Now()
	stats := UserStats{
		UserID:         "u1",
		DealCoins:      500,
		DailyStreak:    2,
		LastDailyClaim: timePtr(now.Add(-1 * time.Hour)),
		Level:          1,
		MemberStatus:   "Bronze",
	}

	snap := stats.Snapshot(now)
	if snap.CanClaimDaily {
		t.Error("Expected canClaimDaily false one hour after a claim")
	}
	if snap.NextDailyClaim == nil || !snap.NextDailyClaim.Equal(stats.LastDailyClaim.Add(24*time.Hour)) {
		t.Errorf("Expected nextDailyClaim at last+24h, got %v", snap.NextDailyClaim)
	}
}

func timePtr(t time.Time) *time.Time { return &t }
