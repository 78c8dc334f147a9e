package application

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/order-orchestrator/internal/order/domain"
	"github.com/dmehra2102/order-orchestrator/pkg/clock"
	"github.com/dmehra2102/order-orchestrator/pkg/metrics"
	"github.com/dmehra2102/order-orchestrator/pkg/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type PlaceOrderCommand struct {
	CustomerID string
	Lines      []domain.OrderLine
}

// PlaceOrderHandler is the synchronous write path: construct the order,
// persist it together with its OrderPlaced event, return. Inventory and
// payment run asynchronously off the event stream, so the caller always gets
// an order id and Pending status back quickly.
type PlaceOrderHandler struct {
	log    *slog.Logger
	repo   OrderRepository
	clk    clock.Clock
	met    *metrics.Orchestrator
	tracer trace.Tracer
}

func NewPlaceOrderHandler(log *slog.Logger, repo OrderRepository, clk clock.Clock, met *metrics.Orchestrator) *PlaceOrderHandler {
	return &PlaceOrderHandler{
		log:    log,
		repo:   repo,
		clk:    clk,
		met:    met,
		tracer: otel.Tracer("place-order"),
	}
}

func (h *PlaceOrderHandler) Handle(ctx context.Context, cmd PlaceOrderCommand) (*domain.Order, error) {
	ctx, span := h.tracer.Start(ctx, "PlaceOrder")
	defer span.End()

	o, err := domain.NewOrder(uuid.NewString(), cmd.CustomerID, cmd.Lines, h.clk.Now())
	if err != nil {
		return nil, err
	}

	events, err := stageEvents(o, tracing.Traceparent(ctx))
	if err != nil {
		return nil, err
	}
	if err := h.repo.Create(ctx, o, events); err != nil {
		return nil, err
	}
	o.ClearPendingEvents()

	h.log.Info("order placed", "order_id", o.ID, "customer_id", o.CustomerID, "total", o.Total.String())
	return o, nil
}
