package domain

import "time"

// Redeem is a subject-initiated purchase of an effect using currency,
// gated by cost and a per-subject cooldown. Kind selects the queue the
// redemption lands on; effect-kind entries also name the effect to run
// and its fixed parameters.
type Redeem struct {
	Key          string            `json:"key"`
	DisplayName  string            `json:"display_name"`
	Kind         QueueKind         `json:"kind"`
	Cost         int64             `json:"cost"`
	Cooldown     time.Duration     `json:"cooldown"`
	Enabled      bool              `json:"enabled"`
	EffectName   string            `json:"effect_name,omitempty"`
	EffectParams map[string]string `json:"effect_params,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// DefaultRedeems returns the seeded redeem catalog. Cooldowns are
// intentionally conservative; admins can edit stored values later and
// seeding never overwrites them.
func DefaultRedeems() []Redeem {
	return []Redeem{
		{Key: "speech", DisplayName: "Text-to-Speech", Kind: KindSpeech, Cost: 25, Cooldown: 10 * time.Second, Enabled: true},
		{Key: "draw", DisplayName: "Prize Draw", Kind: KindDraw, Cost: 100, Cooldown: 0, Enabled: true},
		{Key: "xp_boost", DisplayName: "XP Boost", Kind: KindEffect, Cost: 150, Cooldown: 60 * time.Second, Enabled: true,
			EffectName: "grant_xp", EffectParams: map[string]string{"amount": "50"}},
	}
}
