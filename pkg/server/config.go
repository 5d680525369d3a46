package server

import (
	"time"

	"github.com/ychleo102615/hanahuda-sub006/pkg/hanafuda"
)

// Config holds every recognized runtime option. All fields have working
// defaults; the binary overrides them from flags.
type Config struct {
	ActionTimeout            time.Duration
	AcceleratedActionTimeout time.Duration
	ContinueConfirmation     time.Duration
	DisplayTimeout           time.Duration
	SSEHeartbeatInterval     time.Duration
	DisconnectTimeout        time.Duration
	MatchmakingTimeout       time.Duration

	TotalRounds     int
	InstantEndBonus int

	TeshiEnabled      bool
	KuttsukiEnabled   bool
	FieldTeshiEnabled bool

	// IdleAutoActionLimit flags a player as idle after this many
	// consecutive auto-served actions, triggering the continue prompt at
	// the next round boundary.
	IdleAutoActionLimit int

	// Seed makes every deal deterministic when non-zero. Used by tests
	// and replay tooling.
	Seed int64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		ActionTimeout:            15 * time.Second,
		AcceleratedActionTimeout: 3 * time.Second,
		ContinueConfirmation:     7 * time.Second,
		DisplayTimeout:           5 * time.Second,
		SSEHeartbeatInterval:     15 * time.Second,
		DisconnectTimeout:        30 * time.Second,
		MatchmakingTimeout:       60 * time.Second,
		TotalRounds:              2,
		InstantEndBonus:          6,
		TeshiEnabled:             true,
		KuttsukiEnabled:          true,
		FieldTeshiEnabled:        true,
		IdleAutoActionLimit:      2,
	}
}

// Ruleset builds the per-game ruleset snapshot from the config.
func (c *Config) Ruleset() hanafuda.Ruleset {
	return hanafuda.Ruleset{
		TotalRounds: c.TotalRounds,
		Special: hanafuda.SpecialRules{
			TeshiEnabled:      c.TeshiEnabled,
			KuttsukiEnabled:   c.KuttsukiEnabled,
			FieldTeshiEnabled: c.FieldTeshiEnabled,
			InstantEndBonus:   c.InstantEndBonus,
		},
	}
}
