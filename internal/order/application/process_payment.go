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

// ProcessPaymentHandler reacts to InventoryReserved. Payment is never
// assumed successful: there is no fallback, and a declined or exhausted
// charge triggers compensation (release the reservation, cancel the order).
// If the release itself fails after its own retries, the order moves to
// Failed for operator attention.
type ProcessPaymentHandler struct {
	core
	payments      PaymentGateway
	inventory     InventoryGateway
	chargePolicy  resilience.Policy
	releasePolicy resilience.Policy
}

func NewProcessPaymentHandler(
	log *slog.Logger,
	repo OrderRepository,
	payments PaymentGateway,
	inventory InventoryGateway,
	chargePolicy, releasePolicy resilience.Policy,
	clk clock.Clock,
	met *metrics.Orchestrator,
) *ProcessPaymentHandler {
	return &ProcessPaymentHandler{
		core:          core{log: log, repo: repo, clk: clk, met: met},
		payments:      payments,
		inventory:     inventory,
		chargePolicy:  chargePolicy,
		releasePolicy: releasePolicy,
	}
}

func (h *ProcessPaymentHandler) Name() string      { return "process_payment" }
func (h *ProcessPaymentHandler) EventType() string { return domain.EventTypeInventoryReserved }

func (h *ProcessPaymentHandler) Handle(ctx context.Context, ev outbox.Event) error {
	return h.ProcessPayment(ctx, ev.AggregateID)
}

func (h *ProcessPaymentHandler) ProcessPayment(ctx context.Context, orderID string) error {
	o, err := h.repo.Load(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status != domain.StatusInventoryReserved {
		// Past this step already, or terminal: redelivery no-op.
		return nil
	}

	txID, err := resilience.Do(ctx, h.chargePolicy, func(ctx context.Context) (string, error) {
		txID, err := h.payments.Charge(ctx, orderID, o.Total)
		h.met.GatewayAttempts.WithLabelValues("payment", resultLabel(err)).Inc()
		return txID, err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return err
		}
		reason := "payment_failed"
		if errors.Is(err, ErrPaymentDeclined) {
			reason = "payment_declined"
		}
		h.log.Warn("payment failed, compensating", "order_id", orderID, "err", err)
		return h.compensate(ctx, orderID, reason)
	}

	_, err = h.mutate(ctx, orderID, func(o *domain.Order) error {
		return o.ApplyPayment(txID, o.Total, h.clk.Now())
	})
	if err != nil {
		// The charge went through but the order could not record it (e.g. a
		// racing cancellation). Undo the charge rather than keep money for
		// an order that will never complete.
		h.refund(ctx, orderID, txID)
		return err
	}
	h.log.Info("payment processed", "order_id", orderID, "transaction_id", txID)
	return nil
}

func (h *ProcessPaymentHandler) compensate(ctx context.Context, orderID, reason string) error {
	_, err := resilience.Do(ctx, h.releasePolicy, func(ctx context.Context) (struct{}, error) {
		err := h.inventory.Release(ctx, orderID)
		h.met.GatewayAttempts.WithLabelValues("inventory_release", resultLabel(err)).Inc()
		return struct{}{}, err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.log.Error("reservation release failed, order needs operator attention",
			"order_id", orderID, "err", err)
		h.met.SagaOutcomes.WithLabelValues(string(domain.StatusFailed)).Inc()
		_, mErr := h.mutate(ctx, orderID, func(o *domain.Order) error {
			return o.Fail(fmt.Sprintf("%s; release_failed: %v", reason, err), h.clk.Now())
		})
		return mErr
	}

	h.met.SagaOutcomes.WithLabelValues(string(domain.StatusCancelled)).Inc()
	_, mErr := h.mutate(ctx, orderID, func(o *domain.Order) error {
		return o.Compensate(reason, h.clk.Now())
	})
	return mErr
}

func (h *ProcessPaymentHandler) refund(ctx context.Context, orderID, txID string) {
	_, err := resilience.Do(ctx, h.releasePolicy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.payments.Refund(ctx, txID)
	})
	if err != nil {
		h.log.Error("refund failed after unrecorded charge",
			"order_id", orderID, "transaction_id", txID, "err", err)
	}
}
