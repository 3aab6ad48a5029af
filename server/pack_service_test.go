package server

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "github.com/Skylto-inc/dealmate-lootpacks/errors"
	"github.com/Skylto-inc/dealmate-lootpacks/events/kafka"
	"github.com/Skylto-inc/dealmate-lootpacks/lootpack"
	"github.com/Skylto-inc/dealmate-lootpacks/pkg/drops"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore keeps everything in memory and commits transaction writes only
// when the transaction function returns nil, mirroring the database contract.
type fakeStore struct {
	packs      map[string]*lootpack.PackType
	stats      map[string]lootpack.UserStats
	rewards    []lootpack.OwnedReward
	history    []lootpack.PackHistory
	mappings   map[string][]lootpack.WeightedMapping
	failReward bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		packs:    make(map[string]*lootpack.PackType),
		stats:    make(map[string]lootpack.UserStats),
		mappings: make(map[string][]lootpack.WeightedMapping),
	}
}

func (f *fakeStore) ActivePackTypes(_ context.Context) ([]lootpack.PackType, error) {
	out := make([]lootpack.PackType, 0, len(f.packs))
	for _, p := range f.packs {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeStore) GetOrCreateStats(_ context.Context, userID string) (*lootpack.UserStats, error) {
	if s, ok := f.stats[userID]; ok {
		copied := s
		return &copied, nil
	}
	created := *lootpack.NewDefaultStats(userID, time.Now())
	f.stats[userID] = created
	copied := created
	return &copied, nil
}

func (f *fakeStore) RewardsForUser(_ context.Context, userID string) ([]lootpack.OwnedReward, error) {
	out := []lootpack.OwnedReward{}
	for _, r := range f.rewards {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) PoolMappings(_ context.Context, packTypeID string) ([]lootpack.WeightedMapping, error) {
	return f.mappings[packTypeID], nil
}

func (f *fakeStore) RunInTx(_ context.Context, fn func(tx lootpack.StoreTx) error) error {
	tx := &fakeTx{store: f}
	if err := fn(tx); err != nil {
		return err
	}
	// Commit staged writes.
	f.rewards = append(f.rewards, tx.stagedRewards...)
	f.history = append(f.history, tx.stagedHistory...)
	for userID, s := range tx.stagedStats {
		f.stats[userID] = s
	}
	return nil
}

type fakeTx struct {
	store         *fakeStore
	stagedRewards []lootpack.OwnedReward
	stagedHistory []lootpack.PackHistory
	stagedStats   map[string]lootpack.UserStats
}

func (t *fakeTx) ActivePackType(_ context.Context, id string) (*lootpack.PackType, error) {
	pack, ok := t.store.packs[id]
	if !ok || !pack.IsActive {
		return nil, nil
	}
	copied := *pack
	return &copied, nil
}

func (t *fakeTx) StatsForUpdate(_ context.Context, userID string) (*lootpack.UserStats, error) {
	s, ok := t.store.stats[userID]
	if !ok {
		return nil, nil
	}
	copied := s
	return &copied, nil
}

func (t *fakeTx) CreateDefaultStats(_ context.Context, userID string) (*lootpack.UserStats, error) {
	created := *lootpack.NewDefaultStats(userID, time.Now())
	if t.stagedStats == nil {
		t.stagedStats = make(map[string]lootpack.UserStats)
	}
	t.stagedStats[userID] = created
	copied := created
	return &copied, nil
}

func (t *fakeTx) InsertPackHistory(_ context.Context, h *lootpack.PackHistory) error {
	h.ID = fmt.Sprintf("history-%d", len(t.store.history)+len(t.stagedHistory)+1)
	t.stagedHistory = append(t.stagedHistory, *h)
	return nil
}

func (t *fakeTx) InsertOwnedReward(_ context.Context, r *lootpack.OwnedReward) error {
	if t.store.failReward {
		return errors.New("constraint violation")
	}
	t.stagedRewards = append(t.stagedRewards, *r)
	return nil
}

func (t *fakeTx) UpdateStats(_ context.Context, s *lootpack.UserStats) error {
	if t.stagedStats == nil {
		t.stagedStats = make(map[string]lootpack.UserStats)
	}
	t.stagedStats[s.UserID] = *s
	return nil
}

type fakeAds struct {
	watched bool
	err     error
}

func (f *fakeAds) CompletedRecently(context.Context, string, string, time.Duration) (bool, error) {
	return f.watched, f.err
}

type capturingPublisher struct {
	events []kafka.PackOpenedEvent
}

func (p *capturingPublisher) PublishPackOpened(_ string, event kafka.PackOpenedEvent) error {
	p.events = append(p.events, event)
	return nil
}

// seqRNG replays a fixed sequence; each Intn(n) returns the next value
// reduced modulo n.
type seqRNG struct {
	values []int
	pos    int
}

func (r *seqRNG) Intn(n int) int {
	if r.pos >= len(r.values) {
		r.pos = 0
	}
	v := r.values[r.pos] % n
	r.pos++
	return v
}

var testNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func pointsTemplate(id, value string) lootpack.RewardTemplate {
	return lootpack.RewardTemplate{ID: id, Kind: lootpack.KindPoints, Title: "Bonus Coins", Value: value, Rarity: lootpack.RarityCommon, IsActive: true}
}

func newService(store *fakeStore, ads *fakeAds, rng lootpack.RNG, opts func(*PackServiceOptions)) *PackService {
	o := PackServiceOptions{
		Store:  store,
		Pools:  lootpack.NewPoolCache(store, zerolog.Nop()),
		Ads:    ads,
		RNG:    rng,
		Now:    func() time.Time { return testNow },
		Logger: zerolog.Nop(),
	}
	if opts != nil {
		opts(&o)
	}
	return NewPackService(o)
}

func premiumPack(id string, price int) *lootpack.PackType {
	return &lootpack.PackType{
		ID:         id,
		Name:       "Mega Pack",
		Category:   lootpack.CategoryPremium,
		PriceCoins: intPtr(price),
		MinRewards: 1,
		MaxRewards: 1,
		IsActive:   true,
	}
}

func freePack(id string) *lootpack.PackType {
	return &lootpack.PackType{
		ID:         id,
		Name:       "Daily Pack",
		Category:   lootpack.CategoryFree,
		MinRewards: 1,
		MaxRewards: 1,
		IsActive:   true,
	}
}

func TestOpenPackNotFound(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, &fakeAds{}, &seqRNG{values: []int{0}}, nil)

	_, err := svc.OpenPack(context.Background(), "u1", "missing")

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrPackTypeNotFound, apperrors.GetCode(err))
}

func TestOpenPackInsufficientBalance(t *testing.T) {
	store := newFakeStore()
	store.packs["p1"] = premiumPack("p1", 250)
	stats := *lootpack.NewDefaultStats("u1", testNow)
	stats.DealCoins = 200
	store.stats["u1"] = stats

	svc := newService(store, &fakeAds{}, &seqRNG{values: []int{0}}, nil)

	_, err := svc.OpenPack(context.Background(), "u1", "p1")

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInsufficientBalance, apperrors.GetCode(err))
	assert.Empty(t, store.rewards)
	assert.Equal(t, 200, store.stats["u1"].DealCoins)
}

func TestOpenPackCoinArithmetic(t *testing.T) {
	store := newFakeStore()
	store.packs["p1"] = premiumPack("p1", 250)
	store.mappings["p1"] = []lootpack.WeightedMapping{
		{Template: pointsTemplate("t1", "+30"), Weight: intPtr(5)},
	}
	stats := *lootpack.NewDefaultStats("u1", testNow)
	stats.DealCoins = 300
	store.stats["u1"] = stats

	svc := newService(store, &fakeAds{}, &seqRNG{values: []int{0}}, nil)

	resp, err := svc.OpenPack(context.Background(), "u1", "p1")

	require.NoError(t, err)
	require.Len(t, resp.Rewards, 1)
	assert.Equal(t, 80, resp.UpdatedStats.DealCoins, "300 - 250 + 30")
	assert.Equal(t, 80, store.stats["u1"].DealCoins)
	assert.Equal(t, 1, store.stats["u1"].TotalPacksOpened)
	require.Len(t, store.history, 1)
	assert.Equal(t, 1, store.history[0].RewardsCount)
	require.Len(t, store.rewards, 1)
	assert.Equal(t, "Mega Pack", store.rewards[0].Source)
}

func TestOpenPackRarityGuarantee(t *testing.T) {
	store := newFakeStore()
	pack := premiumPack("p1", 299)
	pack.MinRewards = 2
	pack.MaxRewards = 2
	store.packs["p1"] = pack
	epic := lootpack.RewardTemplate{ID: "t-epic", Kind: lootpack.KindVoucher, Title: "Grand Voucher", Value: "₹500", Rarity: lootpack.RarityEpic, IsActive: true}
	store.mappings["p1"] = []lootpack.WeightedMapping{
		{Template: pointsTemplate("t-common", "+10"), Weight: intPtr(99)},
		{Template: epic, Weight: intPtr(1)},
	}
	stats := *lootpack.NewDefaultStats("u1", testNow)
	store.stats["u1"] = stats

	svc := newService(store, &fakeAds{}, &seqRNG{values: []int{0, 0, 0, 0}}, nil)

	resp, err := svc.OpenPack(context.Background(), "u1", "p1")

	require.NoError(t, err)
	require.Len(t, resp.Rewards, 2)

	aboveCommon := 0
	for _, r := range resp.Rewards {
		if r.Rarity != lootpack.RarityCommon {
			aboveCommon++
		}
	}
	assert.GreaterOrEqual(t, aboveCommon, 1, "price >= 299 guarantees an above-common reward")
	assert.Equal(t, lootpack.RarityEpic, resp.Rewards[0].Rarity, "guaranteed reward fills the first slot")
}

func TestOpenPackFreeCooldown(t *testing.T) {
	store := newFakeStore()
	store.packs["p1"] = freePack("p1")
	stats := *lootpack.NewDefaultStats("u1", testNow)
	lastClaim := testNow.Add(-2 * time.Hour)
	stats.LastDailyClaim = &lastClaim
	store.stats["u1"] = stats

	svc := newService(store, &fakeAds{watched: true}, &seqRNG{values: []int{0}}, nil)

	_, err := svc.OpenPack(context.Background(), "u1", "p1")

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCooldownActive, apperrors.GetCode(err))
}

func TestOpenPackFreeAdRequired(t *testing.T) {
	store := newFakeStore()
	store.packs["p1"] = freePack("p1")

	svc := newService(store, &fakeAds{watched: false}, &seqRNG{values: []int{0}}, nil)

	_, err := svc.OpenPack(context.Background(), "u1", "p1")

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrAdRequired, apperrors.GetCode(err))
}

func TestOpenPackFreeStreakAndProjection(t *testing.T) {
	store := newFakeStore()
	store.packs["p1"] = freePack("p1")
	store.mappings["p1"] = []lootpack.WeightedMapping{
		{Template: pointsTemplate("t1", "+20"), Weight: intPtr(1)},
	}
	stats := *lootpack.NewDefaultStats("u1", testNow)
	lastClaim := testNow.Add(-25 * time.Hour)
	stats.LastDailyClaim = &lastClaim
	stats.DailyStreak = 3
	store.stats["u1"] = stats

	svc := newService(store, &fakeAds{watched: true}, &seqRNG{values: []int{0}}, nil)

	resp, err := svc.OpenPack(context.Background(), "u1", "p1")

	require.NoError(t, err)
	assert.Equal(t, 4, resp.UpdatedStats.DailyStreak)
	assert.False(t, resp.UpdatedStats.CanClaimDaily)
	require.NotNil(t, resp.UpdatedStats.NextDailyClaim)
	assert.True(t, resp.UpdatedStats.NextDailyClaim.Equal(testNow.Add(24*time.Hour)),
		"next claim is 24h after the opening just committed")

	committed := store.stats["u1"]
	require.NotNil(t, committed.LastDailyClaim)
	assert.True(t, committed.LastDailyClaim.Equal(testNow))
}

func TestOpenPackCreatesDefaultStats(t *testing.T) {
	store := newFakeStore()
	store.packs["p1"] = freePack("p1")
	store.mappings["p1"] = []lootpack.WeightedMapping{
		{Template: pointsTemplate("t1", "+20"), Weight: intPtr(1)},
	}

	svc := newService(store, &fakeAds{watched: true}, &seqRNG{values: []int{0}}, nil)

	resp, err := svc.OpenPack(context.Background(), "u-new", "p1")

	require.NoError(t, err)
	// 500 default + 20 roll income.
	assert.Equal(t, 520, resp.UpdatedStats.DealCoins)
	assert.Equal(t, 1, resp.UpdatedStats.DailyStreak)
	_, exists := store.stats["u-new"]
	assert.True(t, exists, "default stats row committed")
}

func TestOpenPackAtomicity(t *testing.T) {
	store := newFakeStore()
	store.packs["p1"] = premiumPack("p1", 250)
	store.mappings["p1"] = []lootpack.WeightedMapping{
		{Template: pointsTemplate("t1", "+30"), Weight: intPtr(5)},
	}
	stats := *lootpack.NewDefaultStats("u1", testNow)
	stats.DealCoins = 300
	store.stats["u1"] = stats
	store.failReward = true

	svc := newService(store, &fakeAds{}, &seqRNG{values: []int{0}}, nil)

	_, err := svc.OpenPack(context.Background(), "u1", "p1")

	require.Error(t, err)
	assert.Empty(t, store.rewards, "no inventory row survives an abort")
	assert.Empty(t, store.history, "no history row survives an abort")
	assert.Equal(t, 300, store.stats["u1"].DealCoins, "no stats mutation survives an abort")
}

func TestOpenPackLevelUp(t *testing.T) {
	store := newFakeStore()
	store.packs["p1"] = premiumPack("p1", 250)
	store.mappings["p1"] = []lootpack.WeightedMapping{
		{Template: pointsTemplate("t1", "+30"), Weight: intPtr(5)},
	}
	stats := *lootpack.NewDefaultStats("u1", testNow)
	stats.DealCoins = 300
	stats.LevelProgress = 95
	store.stats["u1"] = stats

	svc := newService(store, &fakeAds{}, &seqRNG{values: []int{0}}, nil)

	resp, err := svc.OpenPack(context.Background(), "u1", "p1")

	require.NoError(t, err)
	assert.Equal(t, 2, resp.UpdatedStats.Level)
	assert.Equal(t, 0, resp.UpdatedStats.LevelProgress)
	// 300 - 250 + 30 roll + 100 level-up bonus.
	assert.Equal(t, 180, resp.UpdatedStats.DealCoins)
}

func TestOpenPackPublishesEventAndDrop(t *testing.T) {
	store := newFakeStore()
	pack := premiumPack("p1", 299)
	store.packs["p1"] = pack
	epic := lootpack.RewardTemplate{ID: "t-epic", Kind: lootpack.KindVoucher, Title: "Grand Voucher", Value: "₹500", Rarity: lootpack.RarityEpic, IsActive: true}
	store.mappings["p1"] = []lootpack.WeightedMapping{
		{Template: epic, Weight: intPtr(1)},
	}
	stats := *lootpack.NewDefaultStats("u1", testNow)
	store.stats["u1"] = stats

	publisher := &capturingPublisher{}
	broadcaster := drops.NewBroadcaster(4)
	svc := newService(store, &fakeAds{}, &seqRNG{values: []int{0, 0}}, func(o *PackServiceOptions) {
		o.Publisher = publisher
		o.Broadcaster = broadcaster
		o.Topic = "lootpack.pack-opened"
	})

	_, err := svc.OpenPack(context.Background(), "u1", "p1")
	require.NoError(t, err)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "u1", publisher.events[0].UserID)
	assert.Equal(t, "Mega Pack", publisher.events[0].PackName)
	assert.Contains(t, publisher.events[0].Rarities, "epic")

	feed, cancel := broadcaster.Listen(context.Background())
	defer cancel()
	select {
	case drop := <-feed:
		assert.Equal(t, "Grand Voucher", drop.RewardTitle)
		assert.Equal(t, "epic", drop.Rarity)
	case <-time.After(time.Second):
		t.Fatal("expected a rare drop announcement")
	}
}

func TestGetInventoryCounts(t *testing.T) {
	store := newFakeStore()
	soon := testNow.Add(48 * time.Hour)
	later := testNow.Add(200 * time.Hour)
	store.rewards = []lootpack.OwnedReward{
		{ID: "r1", UserID: "u1", Kind: lootpack.KindCoupon, ExpiresAt: &soon},
		{ID: "r2", UserID: "u1", Kind: lootpack.KindVoucher, ExpiresAt: &later},
		{ID: "r3", UserID: "u1", Kind: lootpack.KindCoupon, IsUsed: true},
		{ID: "r4", UserID: "other", Kind: lootpack.KindCoupon},
	}

	svc := newService(store, &fakeAds{}, &seqRNG{values: []int{0}}, nil)

	inv, err := svc.GetInventory(context.Background(), "u1")

	require.NoError(t, err)
	assert.Len(t, inv.Rewards, 3)
	assert.Equal(t, 2, inv.Stats.ActiveCount)
	assert.Equal(t, 1, inv.Stats.UsedCount)
	assert.Equal(t, 1, inv.Stats.ExpiringSoonCount)
	assert.True(t, inv.Stats.TotalValueEstimate.Equal(lootpack.PlaceholderInventoryValue))
}

func TestGetStatsProjection(t *testing.T) {
	store := newFakeStore()
	stats := *lootpack.NewDefaultStats("u1", testNow)
	lastClaim := testNow.Add(-3 * time.Hour)
	stats.LastDailyClaim = &lastClaim
	store.stats["u1"] = stats

	svc := newService(store, &fakeAds{}, &seqRNG{values: []int{0}}, nil)

	resp, err := svc.GetStats(context.Background(), "u1")

	require.NoError(t, err)
	assert.False(t, resp.CanClaimDaily)
	require.NotNil(t, resp.NextDailyClaim)
	assert.True(t, resp.NextDailyClaim.Equal(lastClaim.Add(24*time.Hour)))
}
