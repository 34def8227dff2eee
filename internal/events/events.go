package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingRescheduled   = "booking_rescheduled"
	EventBookingCancelled     = "booking_cancelled"
	EventBookingStatusChanged = "booking_status_changed"
	EventBookingPaymentUpdate = "booking_payment_updated"
	EventHoldCreated          = "hold_created"
	EventHoldReleased         = "hold_released"
)

// AnyEvent subscribes a handler to every event type.
const AnyEvent = "*"

// BookingEventPayload is the booking snapshot handed to subscribers after a commit.
type BookingEventPayload struct {
	BookingID     string    `json:"booking_id"`
	ServiceID     string    `json:"service_id"`
	StaffID       string    `json:"staff_id"`
	CustomerID    string    `json:"customer_id"`
	Start         time.Time `json:"start_time_utc"`
	End           time.Time `json:"end_time_utc"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	PreviousStart time.Time `json:"previous_start_time_utc,omitempty"`
	ChangedBy     string    `json:"changed_by,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

// HoldEventPayload describes a created or released hold.
type HoldEventPayload struct {
	HoldID    string    `json:"hold_id"`
	StaffID   string    `json:"staff_id"`
	ServiceID string    `json:"service_id"`
	Start     time.Time `json:"start_utc"`
	End       time.Time `json:"end_utc"`
	ExpiresAt time.Time `json:"expires_at_utc"`
	ChangedBy string    `json:"changed_by,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string
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
	onError     func(event *Event, err error)
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError installs a callback for handler failures. Handlers keep running after one fails.
func (b *EventBus) OnError(fn func(event *Event, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Subscribe registers a handler for a given event type, or AnyEvent.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type, then AnyEvent subscribers.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[AnyEvent]...)
	onError := b.onError
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{ID: uuid.NewString(), Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
