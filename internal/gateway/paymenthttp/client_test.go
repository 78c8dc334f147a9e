package paymenthttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-orchestrator/internal/order/application"
	"github.com/dmehra2102/order-orchestrator/internal/order/domain"
	"github.com/dmehra2102/order-orchestrator/pkg/resilience"
)

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), srv.URL)
}

var testAmount = domain.Money{AmountCents: 2000, Currency: "USD"}

func TestChargeSuccess(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/charges", r.URL.Path)
		assert.Equal(t, "ord-1", r.Header.Get("Idempotency-Key"))

		var req chargeReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(2000), req.AmountCents)
		assert.Equal(t, "USD", req.Currency)

		_ = json.NewEncoder(w).Encode(chargeResp{TransactionID: "tx-42"})
	})

	txID, err := c.Charge(context.Background(), "ord-1", testAmount)
	require.NoError(t, err)
	assert.Equal(t, "tx-42", txID)
}

func TestChargeDeclinedIsPermanent(t *testing.T) {
	for _, code := range []int{http.StatusPaymentRequired, http.StatusUnprocessableEntity} {
		c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		})

		_, err := c.Charge(context.Background(), "ord-1", testAmount)
		require.ErrorIs(t, err, application.ErrPaymentDeclined)
		assert.False(t, resilience.IsTransient(err))
	}
}

func TestChargeServerErrorIsTransient(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Charge(context.Background(), "ord-1", testAmount)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestChargeEmptyTransactionIDIsTransient(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(chargeResp{})
	})

	_, err := c.Charge(context.Background(), "ord-1", testAmount)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestRefundSuccess(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/refunds", r.URL.Path)
		assert.Equal(t, "tx-42", r.Header.Get("Idempotency-Key"))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.Refund(context.Background(), "tx-42"))
}

func TestRefundServerErrorIsTransient(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := c.Refund(context.Background(), "tx-42")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}
