package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCurrencyMismatch = errors.New("order: currency mismatch")
	ErrInvalidMoney     = errors.New("order: invalid money")
)

// Money is an immutable amount in minor units (cents) plus an ISO currency
// code. Arithmetic is only defined between equal currencies.
type Money struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

func NewMoney(amountCents int64, currency string) (Money, error) {
	if currency == "" {
		return Money{}, fmt.Errorf("%w: empty currency", ErrInvalidMoney)
	}
	return Money{AmountCents: amountCents, Currency: currency}, nil
}

func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{AmountCents: m.AmountCents + other.AmountCents, Currency: m.Currency}, nil
}

func (m Money) MulQty(qty int) Money {
	return Money{AmountCents: m.AmountCents * int64(qty), Currency: m.Currency}
}

func (m Money) Equal(other Money) bool { return m == other }

func (m Money) IsZero() bool { return m == Money{} }

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.AmountCents/100, abs(m.AmountCents%100), m.Currency)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
