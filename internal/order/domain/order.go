package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusInventoryReserved Status = "inventory_reserved"
	StatusPaymentProcessed  Status = "payment_processed"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
	StatusFailed            Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

var (
	ErrNotFound        = errors.New("order: not found")
	ErrEmptyOrder      = errors.New("order: at least one line required")
	ErrInvalidQuantity = errors.New("order: quantity must be greater than zero")
	ErrAmountMismatch  = errors.New("order: payment amount does not equal order total")
)

// InvalidStateTransitionError indicates an ordering or programming defect:
// a transition was requested from a state that does not allow it. The order
// is left untouched.
type InvalidStateTransitionError struct {
	OrderID   string
	From      Status
	Attempted Status
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid transition %s -> %s", e.OrderID, e.From, e.Attempted)
}

// validTransitions enumerates the state machine. Cancelled is reachable from
// every non-terminal state (compensation); Failed only when compensation
// itself cannot complete.
var validTransitions = map[Status][]Status{
	StatusPending:           {StatusInventoryReserved, StatusCancelled, StatusFailed},
	StatusInventoryReserved: {StatusPaymentProcessed, StatusCancelled, StatusFailed},
	StatusPaymentProcessed:  {StatusCompleted, StatusCancelled, StatusFailed},
	StatusCompleted:         {},
	StatusCancelled:         {},
	StatusFailed:            {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type OrderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice Money  `json:"unit_price"`
}

func (l OrderLine) Subtotal() Money { return l.UnitPrice.MulQty(l.Quantity) }

// ReservationRecord is one warehouse hold created by inventory reservation
// and released on compensation or completion.
type ReservationRecord struct {
	OrderID     string    `json:"order_id"`
	ProductID   string    `json:"product_id"`
	Quantity    int       `json:"quantity"`
	WarehouseID string    `json:"warehouse_id"`
	ReservedAt  time.Time `json:"reserved_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Order is the aggregate root. Status only moves through the transition
// methods below; Total is recomputed from the lines and never set from
// outside; Version is the optimistic-concurrency token bumped by the
// repository on every committed write.
type Order struct {
	ID            string
	CustomerID    string
	Lines         []OrderLine
	Total         Money
	Status        Status
	FailureReason string
	Reservations  []ReservationRecord
	TransactionID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Version       int64

	// EventSeq is the sequence number of the last event emitted by this
	// aggregate, persisted so redelivered loads keep numbering monotonic.
	EventSeq int64

	pending []Event
}

func NewOrder(id, customerID string, lines []OrderLine, now time.Time) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, l.ProductID)
		}
	}
	total, err := sumLines(lines)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:         id,
		CustomerID: customerID,
		Lines:      lines,
		Total:      total,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	o.emit(OrderPlaced{
		EventMeta:  o.nextMeta(now),
		CustomerID: customerID,
		Lines:      lines,
		Total:      total,
	})
	return o, nil
}

func sumLines(lines []OrderLine) (Money, error) {
	total := lines[0].Subtotal()
	var err error
	for _, l := range lines[1:] {
		total, err = total.Add(l.Subtotal())
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

// MarkInventoryReserved records successful reservation. Calling it on an
// order that already holds the reservation is a no-op, so redelivered events
// and the reconciler do not duplicate reservations or events.
func (o *Order) MarkInventoryReserved(reservations []ReservationRecord, now time.Time) error {
	if o.Status == StatusInventoryReserved {
		return nil
	}
	if err := o.guard(StatusInventoryReserved); err != nil {
		return err
	}
	o.Reservations = reservations
	o.apply(StatusInventoryReserved, now)
	o.emit(InventoryReserved{EventMeta: o.nextMeta(now), Reservations: reservations})
	return nil
}

// MarkInventoryFailed is the planned compensating transition for a
// reservation that cannot be fulfilled: the order goes straight to Cancelled.
func (o *Order) MarkInventoryFailed(reason string, now time.Time) error {
	if o.Status == StatusCancelled {
		return nil
	}
	if o.Status != StatusPending {
		return o.invalid(StatusCancelled)
	}
	o.FailureReason = reason
	o.apply(StatusCancelled, now)
	o.emit(InventoryReservationFailed{EventMeta: o.nextMeta(now), Reason: reason})
	return nil
}

func (o *Order) ApplyPayment(transactionID string, amount Money, now time.Time) error {
	if o.Status == StatusPaymentProcessed {
		return nil
	}
	if o.Status != StatusInventoryReserved {
		return o.invalid(StatusPaymentProcessed)
	}
	if !amount.Equal(o.Total) {
		return fmt.Errorf("%w: charged %s, total %s", ErrAmountMismatch, amount, o.Total)
	}
	o.TransactionID = transactionID
	o.apply(StatusPaymentProcessed, now)
	o.emit(PaymentProcessed{EventMeta: o.nextMeta(now), TransactionID: transactionID, Amount: amount})
	return nil
}

func (o *Order) Complete(now time.Time) error {
	if o.Status == StatusCompleted {
		return nil
	}
	if err := o.guard(StatusCompleted); err != nil {
		return err
	}
	o.Reservations = nil
	o.apply(StatusCompleted, now)
	o.emit(OrderCompleted{EventMeta: o.nextMeta(now)})
	return nil
}

// Compensate cancels a non-terminal order after its external effects have
// been undone by the caller (reservation release, refund).
func (o *Order) Compensate(reason string, now time.Time) error {
	if o.Status == StatusCancelled {
		return nil
	}
	if err := o.guard(StatusCancelled); err != nil {
		return err
	}
	o.FailureReason = reason
	o.Reservations = nil
	o.apply(StatusCancelled, now)
	o.emit(OrderCompensated{EventMeta: o.nextMeta(now), Reason: reason})
	return nil
}

// Fail marks the order unrecoverable: compensation itself did not complete
// after its own retries. The order is terminal and left for an operator; held
// reservations are kept on record since they were not released.
func (o *Order) Fail(reason string, now time.Time) error {
	if o.Status == StatusFailed {
		return nil
	}
	if err := o.guard(StatusFailed); err != nil {
		return err
	}
	o.FailureReason = reason
	o.apply(StatusFailed, now)
	o.emit(OrderCompensated{EventMeta: o.nextMeta(now), Reason: reason})
	return nil
}

// PendingEvents returns events emitted since load, in sequence order. The
// repository stages them in the outbox within the same transaction as the
// order write, then the caller clears them.
func (o *Order) PendingEvents() []Event { return o.pending }

func (o *Order) ClearPendingEvents() { o.pending = nil }

func (o *Order) guard(to Status) error {
	if !canTransition(o.Status, to) {
		return o.invalid(to)
	}
	return nil
}

func (o *Order) invalid(to Status) error {
	return &InvalidStateTransitionError{OrderID: o.ID, From: o.Status, Attempted: to}
}

func (o *Order) apply(to Status, now time.Time) {
	o.Status = to
	o.UpdatedAt = now
}

func (o *Order) emit(e Event) {
	o.pending = append(o.pending, e)
}

func (o *Order) nextMeta(now time.Time) EventMeta {
	o.EventSeq++
	return EventMeta{
		EventID:    uuid.NewString(),
		OrderID:    o.ID,
		Sequence:   o.EventSeq,
		OccurredAt: now,
	}
}
