package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mandelmonkey/goldenpie/internal/push"
	"github.com/mandelmonkey/goldenpie/internal/retroarch"
)

// DefaultPollInterval is how often the pipeline samples core memory.
const DefaultPollInterval = time.Second

// degradedAfterFailures is how many fully-failed samples in a row trigger a
// connectivity warning.
const degradedAfterFailures = 3

// Config holds the poll loop timing parameters.
type Config struct {
	PollInterval  time.Duration
	Cooldown      time.Duration
	JumpThreshold int64
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.JumpThreshold <= 0 {
		c.JumpThreshold = DefaultJumpThreshold
	}
	return c
}

// Engine owns the telemetry pipeline: it drives the sampler on a fixed
// interval, feeds both detectors, gates emission behind the startup
// cooldown, and hands accepted events to the dispatcher. All baseline state
// is mutated only by the loop goroutine; other goroutines interact through
// the recipients table, the error log, and the push hub.
type Engine struct {
	cfg          Config
	sampler      *retroarch.Sampler
	closeChannel func() error
	logDetector  *Detector
	payDetector  *Detector
	dispatcher   *Dispatcher
	publisher    push.Publisher
	clock        func() time.Time
	tracer       trace.Tracer

	mu         sync.Mutex
	recipients map[int]string
	running    bool
	stop       context.CancelFunc
	done       chan struct{}

	// Loop-owned state; touched only from the poll goroutine.
	gate       *CooldownGate
	connected  bool
	failStreak int
}

// New assembles an engine. closeChannel releases the memory channel socket
// on Stop and may be nil.
func New(cfg Config, sampler *retroarch.Sampler, closeChannel func() error, dispatcher *Dispatcher, publisher push.Publisher) *Engine {
	cfg = cfg.withDefaults()
	if publisher == nil {
		publisher = push.Discard
	}
	return &Engine{
		cfg:          cfg,
		sampler:      sampler,
		closeChannel: closeChannel,
		logDetector:  NewDetector(cfg.JumpThreshold),
		payDetector:  NewDetector(cfg.JumpThreshold),
		dispatcher:   dispatcher,
		publisher:    publisher,
		clock:        time.Now,
		tracer:       otel.Tracer("goldenpie/engine"),
		recipients:   make(map[int]string),
	}
}

// Errors exposes the dispatcher's per-slot payment failure log.
func (e *Engine) Errors() *ErrorLog {
	return e.dispatcher.Errors()
}

// SetRecipient binds a payment address to a slot.
func (e *Engine) SetRecipient(slot int, address string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recipients[slot] = address
}

// Recipient returns the payment address bound to a slot, if any.
func (e *Engine) Recipient(slot int) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	address, ok := e.recipients[slot]
	return address, ok
}

// ClearRecipient unbinds a slot.
func (e *Engine) ClearRecipient(slot int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.recipients, slot)
}

// Running reports whether the poll loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start begins polling. Starting an already-running engine is a no-op.
// Baselines, last-known samples, and the cooldown window all reset so a new
// game session never inherits state from the previous one.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.sampler.Reset()
	e.logDetector.Reset()
	e.payDetector.Reset()
	e.gate = NewCooldownGate(e.clock(), e.cfg.Cooldown)
	e.connected = false
	e.failStreak = 0

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.stop = cancel
	e.done = done
	e.running = true
	e.mu.Unlock()

	log.Printf("memory polling started, cooldown %s", e.cfg.Cooldown)
	e.publisher.Publish(push.Event{Type: push.TypeSession, Payload: map[string]any{"status": "started"}})
	go e.run(loopCtx, done)
}

// Stop halts the loop, waits for the current tick to wind down, and closes
// the memory channel socket. Safe to call when nothing is running and safe
// to call repeatedly.
func (e *Engine) Stop() {
	e.mu.Lock()
	running := e.running
	cancel := e.stop
	done := e.done
	e.running = false
	e.stop = nil
	e.done = nil
	e.mu.Unlock()

	if running {
		cancel()
		<-done
		log.Printf("memory polling stopped")
		e.publisher.Publish(push.Event{Type: push.TypeSession, Payload: map[string]any{"status": "stopped"}})
	}
	if e.closeChannel != nil {
		_ = e.closeChannel()
	}
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick runs one pass of the pipeline. Detection always runs so baselines
// absorb state-load churn during the cooldown; emission and dispatch are
// gated.
func (e *Engine) tick(ctx context.Context) {
	ctx, span := e.tracer.Start(ctx, "engine.tick")
	defer span.End()

	snap, failed := e.sampler.Sample(ctx)
	span.SetAttributes(attribute.Int("sample.failed_reads", failed))
	e.observeConnectivity(failed)

	logEvents := e.logDetector.Observe(snap)
	payEvents := e.payDetector.Observe(snap)

	if !e.gate.Admit(snap.At) {
		if len(logEvents) > 0 {
			log.Printf("startup cooldown active (%s remaining), ignoring detection", e.gate.Remaining(snap.At).Round(time.Second))
		}
		return
	}

	e.publisher.Publish(push.Event{Type: push.TypeSnapshot, At: snap.At, Payload: snapshotPayload(snap)})

	for _, event := range logEvents {
		log.Printf("%s detected: slot %d +%d", event.Kind, event.Slot, event.Units)
		e.publisher.Publish(push.Event{Type: push.TypeReward, At: event.At, Payload: event})
	}

	if len(payEvents) == 0 {
		return
	}

	// The payment baselines advanced in Observe above, before any network
	// call is issued. Dispatch detaches so a hung provider cannot block the
	// ticker; an overlapping tick recomputes a zero delta and sends nothing.
	type dispatchItem struct {
		event     RewardEvent
		recipient string
	}
	items := make([]dispatchItem, 0, len(payEvents))
	for _, event := range payEvents {
		recipient, ok := e.Recipient(event.Slot)
		if !ok {
			continue
		}
		items = append(items, dispatchItem{event: event, recipient: recipient})
	}
	if len(items) == 0 {
		return
	}
	go func() {
		for _, item := range items {
			e.dispatcher.Dispatch(ctx, item.event, item.recipient)
		}
	}()
}

func (e *Engine) observeConnectivity(failed int) {
	total := e.sampler.CounterCount()
	if total == 0 {
		return
	}
	if failed == 0 {
		if !e.connected {
			e.connected = true
			log.Printf("connected to the emulator memory interface")
			e.publisher.Publish(push.Event{Type: push.TypeConnectivity, Payload: map[string]any{"status": "connected"}})
		}
		e.failStreak = 0
		return
	}
	if failed == total {
		e.failStreak++
		if e.failStreak == degradedAfterFailures {
			log.Printf("memory reads failing, emulator may not be ready")
			e.publisher.Publish(push.Event{Type: push.TypeConnectivity, Payload: map[string]any{"status": "degraded"}})
		}
	}
}

type slotSnapshot struct {
	Slot      int   `json:"slot"`
	Kills     int64 `json:"kills"`
	Headshots int64 `json:"headshots"`
	Deaths    int64 `json:"deaths"`
}

func snapshotPayload(snap retroarch.Snapshot) []slotSnapshot {
	payload := make([]slotSnapshot, 0, retroarch.SlotCount)
	for slot := 1; slot <= retroarch.SlotCount; slot++ {
		payload = append(payload, slotSnapshot{
			Slot:      slot,
			Kills:     snap.Get(retroarch.Counter{Slot: slot, Kind: retroarch.KindKill}),
			Headshots: snap.Get(retroarch.Counter{Slot: slot, Kind: retroarch.KindHeadshot}),
			Deaths:    snap.Get(retroarch.Counter{Slot: slot, Kind: retroarch.KindDeath}),
		})
	}
	return payload
}
