package engine

import (
	"time"

	"github.com/mandelmonkey/goldenpie/internal/retroarch"
)

// DefaultJumpThreshold is the delta at or above which a counter change is
// treated as a false reading rather than a genuine batch of events.
const DefaultJumpThreshold = 10

// RewardEvent is a batch of unit-rewardable occurrences detected in one tick.
// Units is always below the detector's jump threshold.
type RewardEvent struct {
	Slot  int            `json:"slot"`
	Kind  retroarch.Kind `json:"kind"`
	Units int64          `json:"units"`
	At    time.Time      `json:"at"`
}

// rewardKinds are the counter kinds that produce reward events, in the fixed
// order they are evaluated. Death counters ride the snapshot for the UI but
// never reward.
var rewardKinds = []retroarch.Kind{retroarch.KindKill, retroarch.KindHeadshot}

// Detector diffs successive snapshots against per-counter baselines.
//
// For each counter: a delta of zero is silent; a negative delta signals a new
// game session or save-state reload and resets the baseline without emitting;
// a positive delta below the threshold emits one RewardEvent carrying the
// delta as Units; a delta at or above the threshold is a suspect jump and is
// consumed silently, so it cannot re-trigger on the next tick.
type Detector struct {
	threshold int64
	baseline  map[retroarch.Counter]int64
}

// NewDetector creates a detector with the given jump threshold. A
// non-positive threshold falls back to DefaultJumpThreshold.
func NewDetector(threshold int64) *Detector {
	if threshold <= 0 {
		threshold = DefaultJumpThreshold
	}
	return &Detector{
		threshold: threshold,
		baseline:  make(map[retroarch.Counter]int64),
	}
}

// Reset clears all baselines back to zero, as at the start of a session.
func (d *Detector) Reset() {
	d.baseline = make(map[retroarch.Counter]int64)
}

// Observe diffs the snapshot against the baselines, advances them, and
// returns the reward events the diff produced. Baselines always advance to
// the observed values, whether or not an event is emitted.
func (d *Detector) Observe(snap retroarch.Snapshot) []RewardEvent {
	var events []RewardEvent
	for slot := 1; slot <= retroarch.SlotCount; slot++ {
		for _, kind := range rewardKinds {
			counter := retroarch.Counter{Slot: slot, Kind: kind}
			current, tracked := snap.Counts[counter]
			if !tracked {
				continue
			}
			delta := current - d.baseline[counter]
			if delta > 0 && delta < d.threshold {
				events = append(events, RewardEvent{
					Slot:  slot,
					Kind:  kind,
					Units: delta,
					At:    snap.At,
				})
			}
			d.baseline[counter] = current
		}
	}
	return events
}
