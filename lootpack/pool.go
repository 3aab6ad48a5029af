package lootpack

import "sort"

// RewardPool is the precomputed weighted-selection structure for one pack
// type. It is immutable once built and safe to share across concurrent
// selections; configuration changes produce a new pool via rebuild, never a
// mutation.
type RewardPool struct {
	rewards     []WeightedReward
	totalWeight int
	rarityIndex map[Rarity][]*RewardTemplate
}

// BuildPool constructs a pool from mappings ordered by descending weight.
// A nil weight defaults to 1; a negative weight contributes nothing. The
// final cumulative weight is the pool's total weight.
func BuildPool(mappings []WeightedMapping) *RewardPool {
	pool := &RewardPool{
		rewards:     make([]WeightedReward, 0, len(mappings)),
		rarityIndex: make(map[Rarity][]*RewardTemplate),
	}

	for _, m := range mappings {
		weight := 1
		if m.Weight != nil {
			weight = *m.Weight
		}
		if weight < 0 {
			weight = 0
		}
		pool.totalWeight += weight
		pool.rewards = append(pool.rewards, WeightedReward{
			Template:         m.Template,
			Weight:           weight,
			CumulativeWeight: pool.totalWeight,
		})
	}

	for i := range pool.rewards {
		tmpl := &pool.rewards[i].Template
		pool.rarityIndex[tmpl.Rarity] = append(pool.rarityIndex[tmpl.Rarity], tmpl)
	}

	return pool
}

// TotalWeight returns the sum of all entry weights. A zero total marks a
// degenerate pool: selection yields nothing and callers skip the roll.
func (p *RewardPool) TotalWeight() int {
	return p.totalWeight
}

// Size returns the number of entries in the pool.
func (p *RewardPool) Size() int {
	return len(p.rewards)
}

// SelectByWeight returns the first entry whose cumulative weight reaches
// target. Drawing target uniformly from [1, TotalWeight] realizes weighted
// random sampling. Returns nil for a degenerate pool or an out-of-range
// target.
func (p *RewardPool) SelectByWeight(target int) *RewardTemplate {
	if p.totalWeight == 0 || target < 1 || target > p.totalWeight {
		return nil
	}
	// Cumulative weights are non-decreasing, so binary search lands on the
	// first entry covering the target.
	idx := sort.Search(len(p.rewards), func(i int) bool {
		return p.rewards[i].CumulativeWeight >= target
	})
	if idx >= len(p.rewards) {
		return nil
	}
	return &p.rewards[idx].Template
}

// ByRarity returns every template of the given tier, in pool order.
func (p *RewardPool) ByRarity(tier Rarity) []*RewardTemplate {
	return p.rarityIndex[tier]
}

// AboveCommon returns all rare, epic, and legendary templates, concatenated
// in that tier order. It feeds the rarity guarantee for expensive premium
// packs.
func (p *RewardPool) AboveCommon() []*RewardTemplate {
	out := make([]*RewardTemplate, 0)
	out = append(out, p.rarityIndex[RarityRare]...)
	out = append(out, p.rarityIndex[RarityEpic]...)
	out = append(out, p.rarityIndex[RarityLegendary]...)
	return out
}

// Entries exposes the ordered pool entries as a read-only view.
func (p *RewardPool) Entries() []WeightedReward {
	return p.rewards
}
