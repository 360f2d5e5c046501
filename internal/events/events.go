package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventBookingReserved   = "booking_reserved"
	EventBookingCancelled  = "booking_cancelled"
	EventBookingCheckedOut = "booking_checked_out"
	EventWalletTopUp       = "wallet_top_up"
	EventRefundRequested   = "refund_requested"
	EventRefundResolved    = "refund_resolved"
)

// BookingEventPayload is the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID int64     `json:"booking_id"`
	UserID    int64     `json:"user_id"`
	LotID     int64     `json:"lot_id"`
	SlotID    int64     `json:"slot_id"`
	SlotLabel string    `json:"slot_label"`
	Status    string    `json:"status"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Amount    int64     `json:"amount,omitempty"`
	Penalty   int64     `json:"penalty,omitempty"`
	Refund    int64     `json:"refund,omitempty"`
}

// LedgerEventPayload describes a token movement.
type LedgerEventPayload struct {
	UserID    int64  `json:"user_id"`
	Amount    int64  `json:"amount"`
	Direction string `json:"direction"`
	Reason    string `json:"reason"`
	Balance   int64  `json:"balance,omitempty"`
}

// RefundEventPayload describes a refund workflow transition.
type RefundEventPayload struct {
	RequestID int64  `json:"request_id"`
	BookingID int64  `json:"booking_id"`
	UserID    int64  `json:"user_id"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
