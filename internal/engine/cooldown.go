package engine

import "time"

// DefaultCooldown is the warm-up window after session start during which
// event emission is suppressed. Loading a save state churns the counter
// memory; the window lets baselines absorb that transient silently.
const DefaultCooldown = 10 * time.Second

// CooldownGate suppresses event emission for a fixed window after start.
type CooldownGate struct {
	start  time.Time
	period time.Duration
}

// NewCooldownGate opens a gate that admits nothing until period has elapsed
// from start.
func NewCooldownGate(start time.Time, period time.Duration) *CooldownGate {
	return &CooldownGate{start: start, period: period}
}

// Admit reports whether events may be emitted at the given instant.
func (g *CooldownGate) Admit(now time.Time) bool {
	return !now.Before(g.start.Add(g.period))
}

// Remaining returns how much of the cooldown window is left, clamped at zero.
func (g *CooldownGate) Remaining(now time.Time) time.Duration {
	remaining := g.start.Add(g.period).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
