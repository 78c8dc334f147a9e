package application

import (
	"context"
	"errors"
	"time"

	"github.com/dmehra2102/order-orchestrator/internal/order/domain"
	"github.com/dmehra2102/order-orchestrator/pkg/outbox"
)

var (
	// ErrVersionConflict is returned by Save when the expected version no
	// longer matches: another writer committed first.
	ErrVersionConflict = errors.New("order: version conflict")

	// ErrConcurrentModification surfaces after the local reload-and-retry
	// for a version conflict also conflicted.
	ErrConcurrentModification = errors.New("order: concurrent modification")

	// ErrInsufficientStock is the inventory collaborator's business
	// rejection. It drives a compensating transition, never a retry.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")

	// ErrPaymentDeclined is the payment collaborator's business rejection.
	ErrPaymentDeclined = errors.New("payment: declined")
)

type OrderRepository interface {
	// Load returns domain.ErrNotFound for unknown ids.
	Load(ctx context.Context, id string) (*domain.Order, error)
	// Create persists a new order and stages its events atomically.
	Create(ctx context.Context, o *domain.Order, events []outbox.Staged) error
	// Save persists a mutation and stages its events atomically, conditioned
	// on expectedVersion; on success the order's version is bumped.
	Save(ctx context.Context, o *domain.Order, expectedVersion int64, events []outbox.Staged) error
	// QueryStuck lists non-terminal orders untouched for longer than
	// olderThan, oldest first.
	QueryStuck(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Order, error)
}

type InventoryGateway interface {
	Reserve(ctx context.Context, orderID string, lines []domain.OrderLine) ([]domain.ReservationRecord, error)
	Release(ctx context.Context, orderID string) error
}

type PaymentGateway interface {
	Charge(ctx context.Context, orderID string, amount domain.Money) (transactionID string, err error)
	Refund(ctx context.Context, transactionID string) error
}
