package push

import "time"

// Type names a category of engine event.
type Type string

const (
	// TypeSnapshot carries all current counter values.
	TypeSnapshot Type = "snapshot"
	// TypeReward announces accepted reward events.
	TypeReward Type = "reward"
	// TypePaymentError announces a recorded payment failure.
	TypePaymentError Type = "payment_error"
	// TypeConnectivity reports the memory channel's health.
	TypeConnectivity Type = "connectivity"
	// TypeSession reports poll session lifecycle changes.
	TypeSession Type = "session"
	// TypeAuth reports auth binding progress for a slot.
	TypeAuth Type = "auth"
)

// Event is a single message pushed to UI clients.
type Event struct {
	Type    Type      `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

// Publisher is the capability the engine uses to emit events. A nil-safe
// no-op implementation keeps tests free of websocket plumbing.
type Publisher interface {
	Publish(event Event)
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
