package engine

import (
	"sync"
	"time"

	apperrors "github.com/mandelmonkey/goldenpie/internal/errors"
	"github.com/mandelmonkey/goldenpie/internal/retroarch"
)

// maxErrorsPerSlot bounds the per-slot error log so an offline provider
// cannot grow it without limit. Oldest entries are evicted first.
const maxErrorsPerSlot = 100

// PaymentError records one failed payment attempt for UI display.
type PaymentError struct {
	Slot       int            `json:"slot"`
	Kind       retroarch.Kind `json:"kind"`
	AmountSats int64          `json:"amountSats"`
	Recipient  string         `json:"recipient"`
	Code       apperrors.Code `json:"code"`
	Reason     string         `json:"reason"`
	At         time.Time      `json:"at"`
}

// ErrorLog accumulates payment failures per slot. The log is read and
// cleared by the UI while the dispatcher appends to it, so access is
// synchronized.
type ErrorLog struct {
	mu      sync.Mutex
	entries map[int][]PaymentError
}

// NewErrorLog creates an empty log.
func NewErrorLog() *ErrorLog {
	return &ErrorLog{entries: make(map[int][]PaymentError)}
}

// Append records a failure.
func (l *ErrorLog) Append(entry PaymentError) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := append(l.entries[entry.Slot], entry)
	if len(entries) > maxErrorsPerSlot {
		entries = entries[len(entries)-maxErrorsPerSlot:]
	}
	l.entries[entry.Slot] = entries
}

// List returns a copy of the failures recorded for a slot.
func (l *ErrorLog) List(slot int) []PaymentError {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.entries[slot]
	out := make([]PaymentError, len(entries))
	copy(out, entries)
	return out
}

// Clear discards the failures recorded for a slot.
func (l *ErrorLog) Clear(slot int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, slot)
}
