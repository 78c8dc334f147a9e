package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmehra2102/order-orchestrator/internal/order/application"
	"github.com/dmehra2102/order-orchestrator/internal/order/domain"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// OrderPlacer is the write path; OrderReader backs the status query the
// async design relies on.
type OrderPlacer interface {
	Handle(ctx context.Context, cmd application.PlaceOrderCommand) (*domain.Order, error)
}

type OrderReader interface {
	Load(ctx context.Context, id string) (*domain.Order, error)
}

type Handler struct {
	log    *slog.Logger
	placer OrderPlacer
	reader OrderReader
	tracer trace.Tracer
}

func NewHandler(log *slog.Logger, placer OrderPlacer, reader OrderReader) *Handler {
	return &Handler{
		log:    log,
		placer: placer,
		reader: reader,
		tracer: otel.Tracer("order-http"),
	}
}

type lineReq struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Currency       string `json:"currency"`
}

type createOrderReq struct {
	CustomerID string    `json:"customer_id"`
	Lines      []lineReq `json:"lines"`
}

type orderResp struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	TotalCents    int64  `json:"total_cents,omitempty"`
	Currency      string `json:"currency,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	return r
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	lines := make([]domain.OrderLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, domain.OrderLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: domain.Money{AmountCents: l.UnitPriceCents, Currency: l.Currency},
		})
	}

	o, err := h.placer.Handle(ctx, application.PlaceOrderCommand{
		CustomerID: req.CustomerID,
		Lines:      lines,
	})
	if err != nil {
		// Placement only fails on validation; everything downstream is
		// asynchronous and observed via the status query.
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(orderResp{OrderID: o.ID, Status: string(o.Status)})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	o, err := h.reader.Load(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("order load failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(orderResp{
		OrderID:       o.ID,
		Status:        string(o.Status),
		TotalCents:    o.Total.AmountCents,
		Currency:      o.Total.Currency,
		FailureReason: o.FailureReason,
	})
}
