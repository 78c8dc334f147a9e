package inventoryhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmehra2102/order-orchestrator/internal/order/application"
	"github.com/dmehra2102/order-orchestrator/internal/order/domain"
	"github.com/dmehra2102/order-orchestrator/pkg/resilience"
)

// Client talks to the inventory collaborator over JSON/HTTP. It only
// classifies outcomes; retry and circuit breaking live in the resilience
// executor at the call site.
type Client struct {
	log  *slog.Logger
	base string
	hc   *http.Client
}

func NewClient(log *slog.Logger, base string) *Client {
	return &Client{
		log:  log,
		base: base,
		hc:   &http.Client{Timeout: 30 * time.Second},
	}
}

type reserveLineReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type reserveReq struct {
	OrderID string           `json:"order_id"`
	Lines   []reserveLineReq `json:"lines"`
}

type reservationResp struct {
	ProductID   string    `json:"product_id"`
	Quantity    int       `json:"quantity"`
	WarehouseID string    `json:"warehouse_id"`
	ReservedAt  time.Time `json:"reserved_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (c *Client) Reserve(ctx context.Context, orderID string, lines []domain.OrderLine) ([]domain.ReservationRecord, error) {
	req := reserveReq{OrderID: orderID, Lines: make([]reserveLineReq, 0, len(lines))}
	for _, l := range lines {
		req.Lines = append(req.Lines, reserveLineReq{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, resilience.MarkPermanent(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/reservations", bytes.NewReader(body))
	if err != nil {
		return nil, resilience.MarkPermanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// Reservation is keyed by order on the inventory side; retries are safe.
	httpReq.Header.Set("Idempotency-Key", orderID)

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, resilience.MarkTransient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var recs []reservationResp
		if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
			return nil, resilience.MarkTransient(err)
		}
		out := make([]domain.ReservationRecord, 0, len(recs))
		for _, rec := range recs {
			out = append(out, domain.ReservationRecord{
				OrderID:     orderID,
				ProductID:   rec.ProductID,
				Quantity:    rec.Quantity,
				WarehouseID: rec.WarehouseID,
				ReservedAt:  rec.ReservedAt,
				ExpiresAt:   rec.ExpiresAt,
			})
		}
		return out, nil
	case resp.StatusCode == http.StatusConflict:
		return nil, resilience.MarkPermanent(application.ErrInsufficientStock)
	case resp.StatusCode >= 500:
		return nil, resilience.MarkTransient(fmt.Errorf("inventory: status %d", resp.StatusCode))
	default:
		return nil, resilience.MarkPermanent(fmt.Errorf("inventory: status %d", resp.StatusCode))
	}
}

func (c *Client) Release(ctx context.Context, orderID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+"/reservations/"+orderID, nil)
	if err != nil {
		return resilience.MarkPermanent(err)
	}

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return resilience.MarkTransient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		// Nothing held; release is idempotent.
		return nil
	case resp.StatusCode >= 500:
		return resilience.MarkTransient(fmt.Errorf("inventory release: status %d", resp.StatusCode))
	default:
		return resilience.MarkPermanent(fmt.Errorf("inventory release: status %d", resp.StatusCode))
	}
}
