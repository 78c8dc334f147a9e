package domain

import "time"

const (
	EventTypeOrderPlaced                = "OrderPlaced"
	EventTypeInventoryReserved          = "InventoryReserved"
	EventTypeInventoryReservationFailed = "InventoryReservationFailed"
	EventTypePaymentProcessed           = "PaymentProcessed"
	EventTypeOrderCompleted             = "OrderCompleted"
	EventTypeOrderCompensated           = "OrderCompensated"
)

// EventMeta is shared by every domain event. Sequence is per-aggregate and
// strictly increasing, so subscribers can rely on stream order; EventID is
// stable across redelivery for dedup.
type EventMeta struct {
	EventID    string    `json:"event_id"`
	OrderID    string    `json:"order_id"`
	Sequence   int64     `json:"sequence"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Event interface {
	Meta() EventMeta
	EventType() string
}

type OrderPlaced struct {
	EventMeta
	CustomerID string      `json:"customer_id"`
	Lines      []OrderLine `json:"lines"`
	Total      Money       `json:"total"`
}

func (e OrderPlaced) Meta() EventMeta   { return e.EventMeta }
func (e OrderPlaced) EventType() string { return EventTypeOrderPlaced }

type InventoryReserved struct {
	EventMeta
	Reservations []ReservationRecord `json:"reservations"`
}

func (e InventoryReserved) Meta() EventMeta   { return e.EventMeta }
func (e InventoryReserved) EventType() string { return EventTypeInventoryReserved }

type InventoryReservationFailed struct {
	EventMeta
	Reason string `json:"reason"`
}

func (e InventoryReservationFailed) Meta() EventMeta   { return e.EventMeta }
func (e InventoryReservationFailed) EventType() string { return EventTypeInventoryReservationFailed }

type PaymentProcessed struct {
	EventMeta
	TransactionID string `json:"transaction_id"`
	Amount        Money  `json:"amount"`
}

func (e PaymentProcessed) Meta() EventMeta   { return e.EventMeta }
func (e PaymentProcessed) EventType() string { return EventTypePaymentProcessed }

type OrderCompleted struct {
	EventMeta
}

func (e OrderCompleted) Meta() EventMeta   { return e.EventMeta }
func (e OrderCompleted) EventType() string { return EventTypeOrderCompleted }

type OrderCompensated struct {
	EventMeta
	Reason string `json:"reason"`
}

func (e OrderCompensated) Meta() EventMeta   { return e.EventMeta }
func (e OrderCompensated) EventType() string { return EventTypeOrderCompensated }
