package lootpack

import "testing"

func intPtr(n int) *int { return &n }

func testTemplate(id string, kind RewardKind, rarity Rarity) RewardTemplate {
	return RewardTemplate{
		ID:       id,
		Kind:     kind,
		Title:    "Reward " + id,
		Value:    "+10",
		Rarity:   rarity,
		IsActive: true,
	}
}

func testMappings() []WeightedMapping {
	// Descending weight, the order the store delivers.
	return []WeightedMapping{
		{Template: testTemplate("a", KindPoints, RarityCommon), Weight: intPtr(50)},
		{Template: testTemplate("b", KindCoupon, RarityCommon), Weight: intPtr(30)},
		{Template: testTemplate("c", KindCoupon, RarityRare), Weight: intPtr(12)},
		{Template: testTemplate("d", KindVoucher, RarityEpic), Weight: intPtr(6)},
		{Template: testTemplate("e", KindVoucher, RarityLegendary), Weight: intPtr(2)},
	}
}

func TestBuildPoolCumulativeWeights(t *testing.T) {
	pool := BuildPool(testMappings())

	if pool.TotalWeight() != 100 {
		t.Errorf("Expected total weight 100, got %d", pool.TotalWeight())
	}

	prev := 0
	for i, entry := range pool.Entries() {
		if entry.CumulativeWeight < prev {
			t.Errorf("Cumulative weight decreased at index %d: %d < %d", i, entry.CumulativeWeight, prev)
		}
		prev = entry.CumulativeWeight
	}
	entries := pool.Entries()
	if entries[len(entries)-1].CumulativeWeight != pool.TotalWeight() {
		t.Errorf("Last cumulative weight %d != total weight %d",
			entries[len(entries)-1].CumulativeWeight, pool.TotalWeight())
	}
}

func TestBuildPoolWeightDefaults(t *testing.T) {
	pool := BuildPool([]WeightedMapping{
		{Template: testTemplate("a", KindPoints, RarityCommon)}, // nil weight -> 1
		{Template: testTemplate("b", KindPoints, RarityCommon), Weight: intPtr(-5)}, // negative -> 0
		{Template: testTemplate("c", KindPoints, RarityCommon), Weight: intPtr(0)},
	})

	if pool.TotalWeight() != 1 {
		t.Errorf("Expected total weight 1, got %d", pool.TotalWeight())
	}
	if got := pool.Entries()[0].Weight; got != 1 {
		t.Errorf("Expected defaulted weight 1, got %d", got)
	}
	if got := pool.Entries()[1].Weight; got != 0 {
		t.Errorf("Expected negative weight clamped to 0, got %d", got)
	}
}

func TestSelectByWeightCoverage(t *testing.T) {
	pool := BuildPool(testMappings())

	// Every target must land inside the selected entry's bracket, and each
	// template must be hit exactly weight times across all targets.
	hits := make(map[string]int)
	for target := 1; target <= pool.TotalWeight(); target++ {
		tmpl := pool.SelectByWeight(target)
		if tmpl == nil {
			t.Fatalf("SelectByWeight(%d) returned nil", target)
		}
		hits[tmpl.ID]++

		for _, entry := range pool.Entries() {
			if entry.Template.ID != tmpl.ID {
				continue
			}
			lower := entry.CumulativeWeight - entry.Weight
			if target <= lower || target > entry.CumulativeWeight {
				t.Errorf("Target %d outside bracket (%d, %d] of template %s",
					target, lower, entry.CumulativeWeight, tmpl.ID)
			}
		}
	}

	for _, entry := range pool.Entries() {
		if hits[entry.Template.ID] != entry.Weight {
			t.Errorf("Template %s hit %d times, expected %d",
				entry.Template.ID, hits[entry.Template.ID], entry.Weight)
		}
	}
}

func TestSelectByWeightOutOfRange(t *testing.T) {
	pool := BuildPool(testMappings())

	if tmpl := pool.SelectByWeight(0); tmpl != nil {
		t.Errorf("Expected nil for target 0, got %s", tmpl.ID)
	}
	if tmpl := pool.SelectByWeight(pool.TotalWeight() + 1); tmpl != nil {
		t.Errorf("Expected nil for target above total weight, got %s", tmpl.ID)
	}
}

func TestDegeneratePool(t *testing.T) {
	empty := BuildPool(nil)
	if empty.TotalWeight() != 0 {
		t.Errorf("Expected total weight 0 for empty pool, got %d", empty.TotalWeight())
	}
	if tmpl := empty.SelectByWeight(1); tmpl != nil {
		t.Errorf("Expected nil selection from empty pool, got %s", tmpl.ID)
	}

	// All-zero weights behave the same way.
	zero := BuildPool([]WeightedMapping{
		{Template: testTemplate("a", KindPoints, RarityCommon), Weight: intPtr(0)},
	})
	if zero.TotalWeight() != 0 {
		t.Errorf("Expected total weight 0, got %d", zero.TotalWeight())
	}
	if tmpl := zero.SelectByWeight(1); tmpl != nil {
		t.Errorf("Expected nil selection from zero-weight pool, got %s", tmpl.ID)
	}
}

func TestByRarityPreservesPoolOrder(t *testing.T) {
	mappings := testMappings()
	// Second common entry should follow the first.
	pool := BuildPool(mappings)

	commons := pool.ByRarity(RarityCommon)
	if len(commons) != 2 {
		t.Fatalf("Expected 2 common templates, got %d", len(commons))
	}
	if commons[0].ID != "a" || commons[1].ID != "b" {
		t.Errorf("Expected pool order [a b], got [%s %s]", commons[0].ID, commons[1].ID)
	}

	if got := pool.ByRarity(RarityLegendary); len(got) != 1 || got[0].ID != "e" {
		t.Errorf("Unexpected legendary templates: %v", got)
	}
}

func TestAboveCommonTierOrder(t *testing.T) {
	pool := BuildPool(testMappings())

	got := pool.AboveCommon()
	if len(got) != 3 {
		t.Fatalf("Expected 3 above-common templates, got %d", len(got))
	}
	want := []string{"c", "d", "e"} // rare, then epic, then legendary
	for i, tmpl := range got {
		if tmpl.ID != want[i] {
			t.Errorf("Expected %s at index %d, got %s", want[i], i, tmpl.ID)
		}
	}
}
