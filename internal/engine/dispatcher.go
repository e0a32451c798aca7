package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	apperrors "github.com/mandelmonkey/goldenpie/internal/errors"
	"github.com/mandelmonkey/goldenpie/internal/lightning"
	"github.com/mandelmonkey/goldenpie/internal/push"
	"github.com/mandelmonkey/goldenpie/internal/retroarch"
)

// Rewards maps a counter kind to the sats paid per unit.
type Rewards map[retroarch.Kind]int64

// DefaultRewards pays one sat per kill and per headshot.
func DefaultRewards() Rewards {
	return Rewards{retroarch.KindKill: 1, retroarch.KindHeadshot: 1}
}

// Dispatcher converts accepted reward events into payment attempts.
//
// By the time an event reaches Dispatch the payment baseline has already
// advanced, so a payment call that hangs across ticks cannot cause the same
// delta to dispatch twice. If the payment then fails, the game event stays
// consumed and the failure is recorded, not retried.
type Dispatcher struct {
	provider  lightning.Provider
	rewards   Rewards
	errors    *ErrorLog
	publisher push.Publisher
	clock     func() time.Time
}

// NewDispatcher creates a dispatcher. A nil provider makes Dispatch a no-op;
// a nil publisher discards notifications.
func NewDispatcher(provider lightning.Provider, rewards Rewards, errors *ErrorLog, publisher push.Publisher) *Dispatcher {
	if rewards == nil {
		rewards = DefaultRewards()
	}
	if errors == nil {
		errors = NewErrorLog()
	}
	if publisher == nil {
		publisher = push.Discard
	}
	return &Dispatcher{
		provider:  provider,
		rewards:   rewards,
		errors:    errors,
		publisher: publisher,
		clock:     time.Now,
	}
}

// Errors exposes the per-slot failure log.
func (d *Dispatcher) Errors() *ErrorLog {
	return d.errors
}

// Dispatch pays one unit reward per event unit, sequentially. Each attempt is
// independently recorded; one failure does not stop the remaining units.
// Events for unbound recipients and events with no configured provider are
// dropped silently.
func (d *Dispatcher) Dispatch(ctx context.Context, event RewardEvent, recipient string) {
	if d.provider == nil || recipient == "" {
		return
	}
	amount := d.rewards[event.Kind]
	if amount <= 0 {
		return
	}

	memo := rewardMemo(event)
	for unit := int64(0); unit < event.Units; unit++ {
		receipt, err := d.provider.Send(ctx, recipient, amount, memo)
		if err != nil {
			code := apperrors.CodeOf(err)
			if code == apperrors.CodeUnknown {
				code = apperrors.CodePaymentFailed
			}
			entry := PaymentError{
				Slot:       event.Slot,
				Kind:       event.Kind,
				AmountSats: amount,
				Recipient:  recipient,
				Code:       code,
				Reason:     err.Error(),
				At:         d.clock(),
			}
			d.errors.Append(entry)
			d.publisher.Publish(push.Event{Type: push.TypePaymentError, Payload: entry})
			log.Printf("payment failed: slot %d %s reward to %s: %v", event.Slot, event.Kind, recipient, err)
			continue
		}
		log.Printf("paid %d sats to %s (%s reward, slot %d, tx %s)",
			receipt.AmountSats, recipient, event.Kind, event.Slot, receipt.TransactionID)
	}
}

func rewardMemo(event RewardEvent) string {
	switch event.Kind {
	case retroarch.KindHeadshot:
		return fmt.Sprintf("GoldenPie Headshot Reward - Spook %d", event.Slot)
	default:
		return fmt.Sprintf("GoldenPie Kill Reward - Spook %d", event.Slot)
	}
}
