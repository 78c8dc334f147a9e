package application

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/order-orchestrator/internal/order/domain"
	"github.com/dmehra2102/order-orchestrator/pkg/clock"
	"github.com/dmehra2102/order-orchestrator/pkg/metrics"
	"github.com/dmehra2102/order-orchestrator/pkg/outbox"
)

// CompleteOrderHandler reacts to PaymentProcessed and closes out the order.
// No external calls; the reservation is consumed by completion.
type CompleteOrderHandler struct {
	core
}

func NewCompleteOrderHandler(log *slog.Logger, repo OrderRepository, clk clock.Clock, met *metrics.Orchestrator) *CompleteOrderHandler {
	return &CompleteOrderHandler{core: core{log: log, repo: repo, clk: clk, met: met}}
}

func (h *CompleteOrderHandler) Name() string      { return "complete_order" }
func (h *CompleteOrderHandler) EventType() string { return domain.EventTypePaymentProcessed }

func (h *CompleteOrderHandler) Handle(ctx context.Context, ev outbox.Event) error {
	return h.Complete(ctx, ev.AggregateID)
}

func (h *CompleteOrderHandler) Complete(ctx context.Context, orderID string) error {
	o, err := h.mutate(ctx, orderID, func(o *domain.Order) error {
		return o.Complete(h.clk.Now())
	})
	if err != nil {
		return err
	}
	if o.Status == domain.StatusCompleted {
		h.met.SagaOutcomes.WithLabelValues(string(domain.StatusCompleted)).Inc()
		h.log.Info("order completed", "order_id", orderID)
	}
	return nil
}
