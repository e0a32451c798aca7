package engine

import (
	"context"
	"testing"
	"time"

	"github.com/mandelmonkey/goldenpie/internal/push"
	"github.com/mandelmonkey/goldenpie/internal/retroarch"
)

// fakeMemory serves scripted counter values to the sampler.
type fakeMemory struct {
	values map[string]int64
}

func (f *fakeMemory) Read(ctx context.Context, address string, width int) (int64, error) {
	return f.values[address], nil
}

func newTestEngine(provider *fakeProvider, publisher push.Publisher) (*Engine, *fakeMemory) {
	memory := &fakeMemory{values: map[string]int64{}}
	layout := retroarch.BuildLayout([]string{"k1", "k2", "k3", "k4"}, nil, nil)
	sampler := retroarch.NewSampler(memory, layout)
	dispatcher := NewDispatcher(provider, nil, nil, publisher)
	eng := New(Config{}, sampler, nil, dispatcher, publisher)
	// Pretend the session started long ago so ticks are admitted.
	eng.gate = NewCooldownGate(time.Unix(0, 0), 0)
	return eng, memory
}

func TestHungDispatchCannotDoubleCount(t *testing.T) {
	provider := &fakeProvider{block: make(chan struct{})}
	eng, memory := newTestEngine(provider, push.Discard)
	eng.SetRecipient(1, "alice@wallet.example")

	memory.values["k1"] = 1
	eng.tick(context.Background())

	// The dispatch goroutine is now parked inside the provider call. A
	// second tick sees the already-advanced payment baseline and must
	// dispatch nothing for the same increment.
	eng.tick(context.Background())

	close(provider.block)
	deadline := time.Now().Add(time.Second)
	for provider.sendCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Give any erroneous second dispatch a chance to land.
	time.Sleep(20 * time.Millisecond)

	if got := provider.sendCount(); got != 1 {
		t.Fatalf("expected exactly 1 attempt across overlapping ticks, got %d", got)
	}
}

func TestCooldownSuppressesEmissionButAdvancesBaselines(t *testing.T) {
	provider := &fakeProvider{}
	publisher := &recordingPublisher{}
	eng, memory := newTestEngine(provider, publisher)
	eng.SetRecipient(1, "alice@wallet.example")
	eng.gate = NewCooldownGate(time.Now(), time.Hour)

	// State-load transient: the counter jumps to 4 inside the cooldown.
	memory.values["k1"] = 4
	eng.tick(context.Background())

	if len(publisher.byType(push.TypeSnapshot)) != 0 {
		t.Fatal("snapshot broadcast must be suppressed during cooldown")
	}
	if len(publisher.byType(push.TypeReward)) != 0 {
		t.Fatal("reward emission must be suppressed during cooldown")
	}
	if provider.sendCount() != 0 {
		t.Fatal("no payment may dispatch during cooldown")
	}

	// Cooldown ends; the transient was absorbed, so the same value emits
	// nothing and only genuine new increments reward.
	eng.gate = NewCooldownGate(time.Unix(0, 0), 0)
	eng.tick(context.Background())
	if len(publisher.byType(push.TypeReward)) != 0 {
		t.Fatal("absorbed transient must not emit after cooldown")
	}

	memory.values["k1"] = 5
	eng.tick(context.Background())
	waitForSends(t, provider, 1)
}

func TestUnboundSlotNeverDispatches(t *testing.T) {
	provider := &fakeProvider{}
	eng, memory := newTestEngine(provider, push.Discard)

	memory.values["k2"] = 3
	eng.tick(context.Background())

	time.Sleep(20 * time.Millisecond)
	if provider.sendCount() != 0 {
		t.Fatalf("expected no attempts for unbound slot, got %d", provider.sendCount())
	}
}

func TestStartStopLifecycle(t *testing.T) {
	provider := &fakeProvider{}
	publisher := &recordingPublisher{}
	eng, _ := newTestEngine(provider, publisher)

	// Stop before any start is a safe no-op.
	eng.Stop()

	eng.Start(context.Background())
	if !eng.Running() {
		t.Fatal("expected engine to be running")
	}
	// Second start is a no-op.
	eng.Start(context.Background())

	eng.Stop()
	if eng.Running() {
		t.Fatal("expected engine to be stopped")
	}
	eng.Stop()

	if len(publisher.byType(push.TypeSession)) != 2 {
		t.Fatalf("expected exactly one started and one stopped event, got %d", len(publisher.byType(push.TypeSession)))
	}
}

func waitForSends(t *testing.T, provider *fakeProvider, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for provider.sendCount() < want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d attempts, got %d", want, provider.sendCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
