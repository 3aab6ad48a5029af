package lootpack

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RNG is the injected randomness source for reward rolls and code
// generation. *math/rand.Rand satisfies it; tests supply scripted sequences.
type RNG interface {
	// Intn returns a uniform int in [0, n). Panics if n <= 0.
	Intn(n int) int
}

// codePrefixes maps a reward kind to its redemption-code prefix list. Kinds
// without an entry fall back to "DEAL".
var codePrefixes = map[RewardKind][]string{
	KindCoupon:  {"DEAL", "SAVE", "SHOP", "MEGA", "SUPER"},
	KindVoucher: {"GIFT", "FREE", "ENJOY", "TREAT", "BONUS"},
}

// GenerateCode builds a redemption code as <PREFIX><3-digit-number>, with the
// prefix drawn uniformly from the kind's list and the number uniform in
// [100, 999].
func GenerateCode(kind RewardKind, rng RNG) string {
	prefixes, ok := codePrefixes[kind]
	if !ok {
		prefixes = []string{"DEAL"}
	}
	prefix := prefixes[rng.Intn(len(prefixes))]
	return fmt.Sprintf("%s%d", prefix, 100+rng.Intn(900))
}

// MintReward materializes one GeneratedReward from a template: fresh id, a
// redemption code for coupons and vouchers, and an expiry from the template's
// validity period. Points never expire and carry no code.
func MintReward(tmpl *RewardTemplate, rng RNG, now time.Time) GeneratedReward {
	var code *string
	if tmpl.Kind == KindCoupon || tmpl.Kind == KindVoucher {
		c := GenerateCode(tmpl.Kind, rng)
		code = &c
	}

	var expiresAt *time.Time
	if tmpl.Kind != KindPoints && tmpl.ValidityDays != nil {
		e := now.AddDate(0, 0, *tmpl.ValidityDays)
		expiresAt = &e
	}

	description := ""
	if tmpl.Description != nil {
		description = *tmpl.Description
	}

	return GeneratedReward{
		ID:          uuid.New().String(),
		Kind:        tmpl.Kind,
		Title:       tmpl.Title,
		Value:       tmpl.Value,
		Description: description,
		Code:        code,
		Rarity:      tmpl.Rarity,
		ExpiresAt:   expiresAt,
	}
}
