package application

import (
	"context"
	"sync"
	"time"

	"github.com/dmehra2102/order-orchestrator/internal/order/domain"
	"github.com/dmehra2102/order-orchestrator/pkg/outbox"
)

// fakeRepo is an in-memory OrderRepository with real optimistic-lock
// semantics: Save succeeds only when the expected version matches, and
// conflictNext can force conflicts to exercise the retry discipline.
type fakeRepo struct {
	mu           sync.Mutex
	orders       map[string]*domain.Order
	staged       map[string][]outbox.Staged
	conflictNext int
	saveCalls    int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders: make(map[string]*domain.Order),
		staged: make(map[string][]outbox.Staged),
	}
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Lines = append([]domain.OrderLine(nil), o.Lines...)
	c.Reservations = append([]domain.ReservationRecord(nil), o.Reservations...)
	c.ClearPendingEvents()
	return &c
}

func (r *fakeRepo) Load(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *fakeRepo) Create(_ context.Context, o *domain.Order, events []outbox.Staged) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = cloneOrder(o)
	r.staged[o.ID] = append(r.staged[o.ID], events...)
	return nil
}

func (r *fakeRepo) Save(_ context.Context, o *domain.Order, expectedVersion int64, events []outbox.Staged) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveCalls++
	if r.conflictNext > 0 {
		r.conflictNext--
		return ErrVersionConflict
	}
	cur, ok := r.orders[o.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	saved := cloneOrder(o)
	saved.Version = expectedVersion + 1
	r.orders[o.ID] = saved
	r.staged[o.ID] = append(r.staged[o.ID], events...)
	o.Version = saved.Version
	return nil
}

func (r *fakeRepo) QueryStuck(_ context.Context, olderThan time.Duration, limit int) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.orders {
		if o.Status.Terminal() {
			continue
		}
		out = append(out, cloneOrder(o))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRepo) stagedTypes(orderID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []string
	for _, e := range r.staged[orderID] {
		types = append(types, e.Type)
	}
	return types
}

func (r *fakeRepo) current(orderID string) *domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneOrder(r.orders[orderID])
}

type fakeInventory struct {
	mu           sync.Mutex
	reserveCalls int
	releaseCalls int
	reserveErr   error
	releaseErr   error
}

func (f *fakeInventory) Reserve(_ context.Context, orderID string, lines []domain.OrderLine) ([]domain.ReservationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserveCalls++
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	recs := make([]domain.ReservationRecord, 0, len(lines))
	for _, l := range lines {
		recs = append(recs, domain.ReservationRecord{
			OrderID:     orderID,
			ProductID:   l.ProductID,
			Quantity:    l.Quantity,
			WarehouseID: "wh-1",
		})
	}
	return recs, nil
}

func (f *fakeInventory) Release(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls++
	return f.releaseErr
}

type fakePayment struct {
	mu            sync.Mutex
	chargeCalls   int
	refundCalls   int
	chargeErr     error
	chargedAmount domain.Money
}

func (f *fakePayment) Charge(_ context.Context, orderID string, amount domain.Money) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chargeCalls++
	f.chargedAmount = amount
	if f.chargeErr != nil {
		return "", f.chargeErr
	}
	return "tx-" + orderID, nil
}

func (f *fakePayment) Refund(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundCalls++
	return nil
}
