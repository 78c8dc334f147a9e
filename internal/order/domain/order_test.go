package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func usd(cents int64) Money { return Money{AmountCents: cents, Currency: "USD"} }

func testLines() []OrderLine {
	return []OrderLine{
		{ProductID: "prod-5", Quantity: 2, UnitPrice: usd(1000)},
	}
}

func testReservations(orderID string) []ReservationRecord {
	return []ReservationRecord{
		{OrderID: orderID, ProductID: "prod-5", Quantity: 2, WarehouseID: "wh-1", ReservedAt: testNow, ExpiresAt: testNow.Add(30 * time.Minute)},
	}
}

func TestNewOrder_ComputesTotal(t *testing.T) {
	o, err := NewOrder("ord-1", "cust-1", testLines(), testNow)
	require.NoError(t, err)

	assert.Equal(t, usd(2000), o.Total)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, int64(0), o.Version)

	events := o.PendingEvents()
	require.Len(t, events, 1)
	placed, ok := events[0].(OrderPlaced)
	require.True(t, ok)
	assert.Equal(t, "cust-1", placed.CustomerID)
	assert.Equal(t, usd(2000), placed.Total)
	assert.Equal(t, int64(1), placed.Meta().Sequence)
	assert.NotEmpty(t, placed.Meta().EventID)
}

func TestNewOrder_MultiLineTotal(t *testing.T) {
	lines := []OrderLine{
		{ProductID: "a", Quantity: 2, UnitPrice: usd(1000)},
		{ProductID: "b", Quantity: 3, UnitPrice: usd(500)},
	}
	o, err := NewOrder("ord-1", "cust-1", lines, testNow)
	require.NoError(t, err)
	assert.Equal(t, usd(3500), o.Total)
}

func TestNewOrder_RejectsEmptyLines(t *testing.T) {
	_, err := NewOrder("ord-1", "cust-1", nil, testNow)
	assert.ErrorIs(t, err, ErrEmptyOrder)
}

func TestNewOrder_RejectsZeroQuantity(t *testing.T) {
	lines := []OrderLine{{ProductID: "a", Quantity: 0, UnitPrice: usd(100)}}
	_, err := NewOrder("ord-1", "cust-1", lines, testNow)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestNewOrder_RejectsMixedCurrencies(t *testing.T) {
	lines := []OrderLine{
		{ProductID: "a", Quantity: 1, UnitPrice: usd(100)},
		{ProductID: "b", Quantity: 1, UnitPrice: Money{AmountCents: 100, Currency: "EUR"}},
	}
	_, err := NewOrder("ord-1", "cust-1", lines, testNow)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestOrder_HappyPath(t *testing.T) {
	o, err := NewOrder("ord-1", "cust-1", testLines(), testNow)
	require.NoError(t, err)

	require.NoError(t, o.MarkInventoryReserved(testReservations(o.ID), testNow))
	assert.Equal(t, StatusInventoryReserved, o.Status)

	require.NoError(t, o.ApplyPayment("tx-1", usd(2000), testNow))
	assert.Equal(t, StatusPaymentProcessed, o.Status)
	assert.Equal(t, "tx-1", o.TransactionID)

	require.NoError(t, o.Complete(testNow))
	assert.Equal(t, StatusCompleted, o.Status)
	assert.Empty(t, o.Reservations)

	// Sequence numbers are strictly increasing across the whole stream.
	var last int64
	for _, e := range o.PendingEvents() {
		assert.Greater(t, e.Meta().Sequence, last)
		last = e.Meta().Sequence
	}
	assert.Equal(t, int64(4), last)
}

func TestOrder_TotalInvariantHoldsAcrossTransitions(t *testing.T) {
	o, err := NewOrder("ord-1", "cust-1", testLines(), testNow)
	require.NoError(t, err)

	steps := []func() error{
		func() error { return o.MarkInventoryReserved(testReservations(o.ID), testNow) },
		func() error { return o.ApplyPayment("tx-1", usd(2000), testNow) },
		func() error { return o.Complete(testNow) },
	}
	for _, step := range steps {
		require.NoError(t, step())
		want, err := sumLines(o.Lines)
		require.NoError(t, err)
		assert.Equal(t, want, o.Total)
	}
}

func TestOrder_ApplyPayment_AmountMustEqualTotal(t *testing.T) {
	o, err := NewOrder("ord-1", "cust-1", testLines(), testNow)
	require.NoError(t, err)
	require.NoError(t, o.MarkInventoryReserved(testReservations(o.ID), testNow))

	err = o.ApplyPayment("tx-1", usd(1999), testNow)
	assert.ErrorIs(t, err, ErrAmountMismatch)
	assert.Equal(t, StatusInventoryReserved, o.Status)
}

func TestOrder_PaymentBeforeReservationRejected(t *testing.T) {
	o, err := NewOrder("ord-1", "cust-1", testLines(), testNow)
	require.NoError(t, err)

	err = o.ApplyPayment("tx-1", usd(2000), testNow)

	var ist *InvalidStateTransitionError
	require.ErrorAs(t, err, &ist)
	assert.Equal(t, StatusPending, ist.From)
	assert.Equal(t, StatusPaymentProcessed, ist.Attempted)
	assert.Equal(t, StatusPending, o.Status)
	assert.Len(t, o.PendingEvents(), 1) // only OrderPlaced
}

func TestOrder_InventoryFailureCancels(t *testing.T) {
	o, err := NewOrder("ord-1", "cust-1", testLines(), testNow)
	require.NoError(t, err)

	require.NoError(t, o.MarkInventoryFailed("insufficient stock", testNow))
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, "insufficient stock", o.FailureReason)

	events := o.PendingEvents()
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeInventoryReservationFailed, events[1].EventType())
}

func TestOrder_CompensateFromReserved(t *testing.T) {
	o, err := NewOrder("ord-1", "cust-1", testLines(), testNow)
	require.NoError(t, err)
	require.NoError(t, o.MarkInventoryReserved(testReservations(o.ID), testNow))

	require.NoError(t, o.Compensate("payment_failed", testNow))
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Empty(t, o.Reservations)
	last := o.PendingEvents()[len(o.PendingEvents())-1]
	assert.Equal(t, EventTypeOrderCompensated, last.EventType())
}

func TestOrder_FailKeepsReservationsOnRecord(t *testing.T) {
	o, err := NewOrder("ord-1", "cust-1", testLines(), testNow)
	require.NoError(t, err)
	require.NoError(t, o.MarkInventoryReserved(testReservations(o.ID), testNow))

	require.NoError(t, o.Fail("release_failed", testNow))
	assert.Equal(t, StatusFailed, o.Status)
	assert.Len(t, o.Reservations, 1)
}

func TestOrder_TerminalStatesRejectMutation(t *testing.T) {
	for _, terminal := range []Status{StatusCompleted, StatusCancelled, StatusFailed} {
		o, err := NewOrder("ord-1", "cust-1", testLines(), testNow)
		require.NoError(t, err)
		o.Status = terminal
		o.ClearPendingEvents()

		var ist *InvalidStateTransitionError
		if terminal != StatusCancelled {
			assert.ErrorAs(t, o.Compensate("late", testNow), &ist, "from %s", terminal)
		}
		assert.ErrorAs(t, o.MarkInventoryReserved(nil, testNow), &ist, "from %s", terminal)
		assert.Empty(t, o.PendingEvents())
	}
}

func TestOrder_IdempotentRemark(t *testing.T) {
	o, err := NewOrder("ord-1", "cust-1", testLines(), testNow)
	require.NoError(t, err)
	require.NoError(t, o.MarkInventoryReserved(testReservations(o.ID), testNow))
	n := len(o.PendingEvents())

	// Re-applying the same transition is a no-op: no extra reservation, no
	// duplicate event.
	require.NoError(t, o.MarkInventoryReserved(testReservations(o.ID), testNow))
	assert.Len(t, o.PendingEvents(), n)
	assert.Len(t, o.Reservations, 1)
}

func TestOrder_StatusNeverRegresses(t *testing.T) {
	o, err := NewOrder("ord-1", "cust-1", testLines(), testNow)
	require.NoError(t, err)
	require.NoError(t, o.MarkInventoryReserved(testReservations(o.ID), testNow))
	require.NoError(t, o.ApplyPayment("tx-1", usd(2000), testNow))

	// An out-of-order inventory failure must not pull the order back.
	var ist *InvalidStateTransitionError
	assert.ErrorAs(t, o.MarkInventoryFailed("late failure", testNow), &ist)
	assert.Equal(t, StatusPaymentProcessed, o.Status)
}
