package engine

import (
	"testing"
	"time"

	"github.com/mandelmonkey/goldenpie/internal/retroarch"
)

func snapshotAt(t time.Time, kills ...int64) retroarch.Snapshot {
	counts := make(map[retroarch.Counter]int64)
	for i, v := range kills {
		counts[retroarch.Counter{Slot: i + 1, Kind: retroarch.KindKill}] = v
	}
	return retroarch.Snapshot{At: t, Counts: counts}
}

func totalUnits(events []RewardEvent) int64 {
	var total int64
	for _, event := range events {
		total += event.Units
	}
	return total
}

func TestDetectorCumulativeUnitsMatchCounterIncrease(t *testing.T) {
	detector := NewDetector(10)
	now := time.Unix(0, 0)

	sequence := []int64{0, 1, 3, 3, 7, 12, 15}
	var emitted int64
	for _, v := range sequence {
		emitted += totalUnits(detector.Observe(snapshotAt(now, v)))
	}
	if emitted != 15 {
		t.Fatalf("expected cumulative units 15, got %d", emitted)
	}
}

func TestDetectorSuspectJumpEmitsNothingAndConsumesBaseline(t *testing.T) {
	detector := NewDetector(10)
	now := time.Unix(0, 0)

	if events := detector.Observe(snapshotAt(now, 2)); totalUnits(events) != 2 {
		t.Fatalf("expected 2 units from warm-up, got %d", totalUnits(events))
	}

	// 2 -> 15 is a delta of 13: a false reading, not a batch of kills.
	if events := detector.Observe(snapshotAt(now, 15)); len(events) != 0 {
		t.Fatalf("expected no events for suspect jump, got %v", events)
	}

	// The jump was consumed: the next delta computes from 15, not 2.
	events := detector.Observe(snapshotAt(now, 16))
	if totalUnits(events) != 1 {
		t.Fatalf("expected 1 unit after consumed jump, got %d", totalUnits(events))
	}
}

func TestDetectorCounterDecreaseResetsBaseline(t *testing.T) {
	detector := NewDetector(10)
	now := time.Unix(0, 0)

	detector.Observe(snapshotAt(now, 5))

	// A reload drops the counter to 0: no negative event, baseline resets.
	if events := detector.Observe(snapshotAt(now, 0)); len(events) != 0 {
		t.Fatalf("expected no events on counter decrease, got %v", events)
	}

	events := detector.Observe(snapshotAt(now, 2))
	if totalUnits(events) != 2 {
		t.Fatalf("expected 2 units from the fresh session, got %d", totalUnits(events))
	}
}

func TestDetectorEndToEndSequence(t *testing.T) {
	detector := NewDetector(10)
	now := time.Unix(0, 0)

	var events []RewardEvent
	for _, v := range []int64{0, 1, 1, 3} {
		events = append(events, detector.Observe(snapshotAt(now, v))...)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Units != 1 || events[1].Units != 2 {
		t.Fatalf("expected units 1 then 2, got %d then %d", events[0].Units, events[1].Units)
	}
	if events[0].Kind != retroarch.KindKill {
		t.Fatalf("expected kill events, got %s", events[0].Kind)
	}
}

func TestDetectorTracksSlotsIndependently(t *testing.T) {
	detector := NewDetector(10)
	now := time.Unix(0, 0)

	detector.Observe(snapshotAt(now, 0, 0))
	events := detector.Observe(snapshotAt(now, 1, 4))

	if len(events) != 2 {
		t.Fatalf("expected one event per slot, got %d", len(events))
	}
	if events[0].Slot != 1 || events[0].Units != 1 {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[1].Slot != 2 || events[1].Units != 4 {
		t.Fatalf("unexpected second event %+v", events[1])
	}
}

func TestDetectorIgnoresDeathCounters(t *testing.T) {
	detector := NewDetector(10)
	counts := map[retroarch.Counter]int64{
		{Slot: 1, Kind: retroarch.KindDeath}: 6,
	}
	events := detector.Observe(retroarch.Snapshot{At: time.Unix(0, 0), Counts: counts})
	if len(events) != 0 {
		t.Fatalf("death counters must not reward, got %v", events)
	}
}

func TestDetectorResetClearsBaselines(t *testing.T) {
	detector := NewDetector(10)
	now := time.Unix(0, 0)

	detector.Observe(snapshotAt(now, 4))
	detector.Reset()

	events := detector.Observe(snapshotAt(now, 4))
	if totalUnits(events) != 4 {
		t.Fatalf("expected 4 units against a fresh baseline, got %d", totalUnits(events))
	}
}
