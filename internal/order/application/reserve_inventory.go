package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/order-orchestrator/internal/order/domain"
	"github.com/dmehra2102/order-orchestrator/pkg/clock"
	"github.com/dmehra2102/order-orchestrator/pkg/metrics"
	"github.com/dmehra2102/order-orchestrator/pkg/outbox"
	"github.com/dmehra2102/order-orchestrator/pkg/resilience"
)

// ReserveInventoryHandler reacts to OrderPlaced. Reservation failure is a
// legitimate business outcome, not a fault to mask, so there is no fallback:
// a rejection or an exhausted retry budget cancels the order through the
// planned compensating transition.
type ReserveInventoryHandler struct {
	core
	inventory InventoryGateway
	policy    resilience.Policy
}

func NewReserveInventoryHandler(log *slog.Logger, repo OrderRepository, inventory InventoryGateway, policy resilience.Policy, clk clock.Clock, met *metrics.Orchestrator) *ReserveInventoryHandler {
	return &ReserveInventoryHandler{
		core:      core{log: log, repo: repo, clk: clk, met: met},
		inventory: inventory,
		policy:    policy,
	}
}

func (h *ReserveInventoryHandler) Name() string      { return "reserve_inventory" }
func (h *ReserveInventoryHandler) EventType() string { return domain.EventTypeOrderPlaced }

func (h *ReserveInventoryHandler) Handle(ctx context.Context, ev outbox.Event) error {
	return h.Reserve(ctx, ev.AggregateID)
}

// Reserve is idempotent: invoked on an order already past Pending it does
// nothing, so event redelivery and reconciler re-drives are safe.
func (h *ReserveInventoryHandler) Reserve(ctx context.Context, orderID string) error {
	o, err := h.repo.Load(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status != domain.StatusPending {
		return nil
	}

	recs, err := resilience.Do(ctx, h.policy, func(ctx context.Context) ([]domain.ReservationRecord, error) {
		recs, err := h.inventory.Reserve(ctx, orderID, o.Lines)
		h.met.GatewayAttempts.WithLabelValues("inventory", resultLabel(err)).Inc()
		return recs, err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, resilience.ErrCircuitOpen) {
			// The target is cooling down; leave the order Pending and let a
			// later redelivery or the reconciler try again.
			return err
		}
		reason := failureReason(err)
		h.log.Warn("inventory reservation failed", "order_id", orderID, "reason", reason)
		h.met.SagaOutcomes.WithLabelValues(string(domain.StatusCancelled)).Inc()
		_, err = h.mutate(ctx, orderID, func(o *domain.Order) error {
			return o.MarkInventoryFailed(reason, h.clk.Now())
		})
		return err
	}

	_, err = h.mutate(ctx, orderID, func(o *domain.Order) error {
		return o.MarkInventoryReserved(recs, h.clk.Now())
	})
	if err != nil {
		return err
	}
	h.log.Info("inventory reserved", "order_id", orderID, "reservations", len(recs))
	return nil
}

func failureReason(err error) string {
	if errors.Is(err, ErrInsufficientStock) {
		return "insufficient stock"
	}
	return fmt.Sprintf("reservation failed: %v", err)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
