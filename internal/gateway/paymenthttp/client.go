package paymenthttp

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

// Client talks to the payment collaborator over JSON/HTTP. Charges carry the
// order id as idempotency key so an executor retry after a lost response
// cannot double-charge.
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

type chargeReq struct {
	OrderID     string `json:"order_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type chargeResp struct {
	TransactionID string `json:"transaction_id"`
}

func (c *Client) Charge(ctx context.Context, orderID string, amount domain.Money) (string, error) {
	body, err := json.Marshal(chargeReq{
		OrderID:     orderID,
		AmountCents: amount.AmountCents,
		Currency:    amount.Currency,
	})
	if err != nil {
		return "", resilience.MarkPermanent(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/charges", bytes.NewReader(body))
	if err != nil {
		return "", resilience.MarkPermanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", orderID)

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return "", resilience.MarkTransient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var out chargeResp
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", resilience.MarkTransient(err)
		}
		if out.TransactionID == "" {
			return "", resilience.MarkTransient(fmt.Errorf("payment: empty transaction id"))
		}
		return out.TransactionID, nil
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
		return "", resilience.MarkPermanent(application.ErrPaymentDeclined)
	case resp.StatusCode >= 500:
		return "", resilience.MarkTransient(fmt.Errorf("payment: status %d", resp.StatusCode))
	default:
		return "", resilience.MarkPermanent(fmt.Errorf("payment: status %d", resp.StatusCode))
	}
}

func (c *Client) Refund(ctx context.Context, transactionID string) error {
	body, err := json.Marshal(map[string]string{"transaction_id": transactionID})
	if err != nil {
		return resilience.MarkPermanent(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/refunds", bytes.NewReader(body))
	if err != nil {
		return resilience.MarkPermanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", transactionID)

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return resilience.MarkTransient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode >= 500:
		return resilience.MarkTransient(fmt.Errorf("payment refund: status %d", resp.StatusCode))
	default:
		return resilience.MarkPermanent(fmt.Errorf("payment refund: status %d", resp.StatusCode))
	}
}
