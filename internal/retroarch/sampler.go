package retroarch

import (
	"context"
	"time"
)

// Kind names a tracked counter family.
type Kind string

const (
	KindKill     Kind = "kill"
	KindHeadshot Kind = "headshot"
	KindDeath    Kind = "death"
)

// Counter identifies one tracked counter: a player slot plus a kind.
type Counter struct {
	Slot int
	Kind Kind
}

// CounterAddress binds a counter to its core memory address.
type CounterAddress struct {
	Counter Counter
	Address string
}

// Layout is the fixed, ordered set of counters read on every tick. Order
// matters: the channel is strictly sequential, and keeping the read order
// stable keeps tick timing predictable.
type Layout []CounterAddress

// SlotCount is the number of participant slots the engine tracks.
const SlotCount = 4

// DefaultLayout returns the counter addresses for the NTSC GoldenEye ROM.
// Kill counters are well established; headshot and death addresses vary by
// ROM version and are overridable through configuration.
func DefaultLayout() Layout {
	kills := []string{"80079f0c", "80079f7c", "80079fec", "8007a05c"}
	headshots := []string{"80079f1c", "80079f8c", "80079ffc", "8007a06c"}
	deaths := []string{"80079f04", "80079f74", "80079fe4", "8007a054"}
	return BuildLayout(kills, headshots, deaths)
}

// BuildLayout assembles a layout from per-slot address lists. Lists shorter
// than SlotCount leave the remaining slots untracked for that kind.
func BuildLayout(kills, headshots, deaths []string) Layout {
	var layout Layout
	appendKind := func(kind Kind, addresses []string) {
		for i, address := range addresses {
			if i >= SlotCount || address == "" {
				continue
			}
			layout = append(layout, CounterAddress{
				Counter: Counter{Slot: i + 1, Kind: kind},
				Address: address,
			})
		}
	}
	appendKind(KindKill, kills)
	appendKind(KindHeadshot, headshots)
	appendKind(KindDeath, deaths)
	return layout
}

// Snapshot is an immutable view of all tracked counters at one tick.
type Snapshot struct {
	At     time.Time
	Counts map[Counter]int64
}

// Get returns a counter value, defaulting to 0 when untracked.
func (s Snapshot) Get(c Counter) int64 {
	return s.Counts[c]
}

// MemoryReader is the read capability the sampler needs from a channel.
type MemoryReader interface {
	Read(ctx context.Context, address string, width int) (int64, error)
}

// Sampler reads every counter in its layout once per call, in layout order.
//
// A failed read yields the last successfully read value for that counter so
// one flaky address cannot stall detection for the others, and a stuck
// transport reads as "no change" rather than a counter reset.
type Sampler struct {
	reader MemoryReader
	layout Layout
	clock  func() time.Time

	last map[Counter]int64
}

// NewSampler creates a sampler over the given reader and layout.
func NewSampler(reader MemoryReader, layout Layout) *Sampler {
	return &Sampler{
		reader: reader,
		layout: layout,
		clock:  time.Now,
		last:   make(map[Counter]int64, len(layout)),
	}
}

// CounterCount returns how many counters a full sample reads.
func (s *Sampler) CounterCount() int {
	return len(s.layout)
}

// Reset forgets all last-known counter values. Called when a new game session
// starts so stale values do not leak across sessions.
func (s *Sampler) Reset() {
	s.last = make(map[Counter]int64, len(s.layout))
}

// Sample reads the full layout and returns the snapshot plus the number of
// reads that failed.
func (s *Sampler) Sample(ctx context.Context) (Snapshot, int) {
	counts := make(map[Counter]int64, len(s.layout))
	failed := 0
	for _, entry := range s.layout {
		value, err := s.reader.Read(ctx, entry.Address, 1)
		if err != nil {
			failed++
			counts[entry.Counter] = s.last[entry.Counter]
			continue
		}
		s.last[entry.Counter] = value
		counts[entry.Counter] = value
	}
	return Snapshot{At: s.clock(), Counts: counts}, failed
}
