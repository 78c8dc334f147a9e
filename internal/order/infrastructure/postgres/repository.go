package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/order-orchestrator/internal/order/application"
	"github.com/dmehra2102/order-orchestrator/internal/order/domain"
	"github.com/dmehra2102/order-orchestrator/pkg/outbox"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const aggregateType = "order"

// Repository persists Order aggregates with optimistic locking and stages
// their events in the outbox table inside the same transaction.
type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Load(ctx context.Context, id string) (*domain.Order, error) {
	o := &domain.Order{ID: id}
	err := r.pool.QueryRow(ctx, `
		SELECT customer_id, total_cents, currency, status, failure_reason,
		       transaction_id, created_at, updated_at, version, event_seq
		FROM orders WHERE id = $1`, id).
		Scan(&o.CustomerID, &o.Total.AmountCents, &o.Total.Currency, &o.Status,
			&o.FailureReason, &o.TransactionID, &o.CreatedAt, &o.UpdatedAt,
			&o.Version, &o.EventSeq)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if o.Lines, err = r.loadLines(ctx, id); err != nil {
		return nil, err
	}
	if o.Reservations, err = r.loadReservations(ctx, id); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repository) loadLines(ctx context.Context, id string) ([]domain.OrderLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_id, quantity, unit_price_cents, currency
		FROM order_lines WHERE order_id = $1 ORDER BY product_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ProductID, &l.Quantity, &l.UnitPrice.AmountCents, &l.UnitPrice.Currency); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *Repository) loadReservations(ctx context.Context, id string) ([]domain.ReservationRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT order_id, product_id, quantity, warehouse_id, reserved_at, expires_at
		FROM reservations WHERE order_id = $1 ORDER BY product_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.ReservationRecord
	for rows.Next() {
		var rec domain.ReservationRecord
		if err := rows.Scan(&rec.OrderID, &rec.ProductID, &rec.Quantity, &rec.WarehouseID, &rec.ReservedAt, &rec.ExpiresAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *Repository) Create(ctx context.Context, o *domain.Order, events []outbox.Staged) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (id, customer_id, total_cents, currency, status,
			                    failure_reason, transaction_id, created_at, updated_at, version, event_seq)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,$10)`,
			o.ID, o.CustomerID, o.Total.AmountCents, o.Total.Currency, o.Status,
			o.FailureReason, o.TransactionID, o.CreatedAt, o.UpdatedAt, o.EventSeq)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, l := range o.Lines {
			batch.Queue(`
				INSERT INTO order_lines (order_id, product_id, quantity, unit_price_cents, currency)
				VALUES ($1,$2,$3,$4,$5)`,
				o.ID, l.ProductID, l.Quantity, l.UnitPrice.AmountCents, l.UnitPrice.Currency)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
		return appendOutbox(ctx, tx, o.ID, events)
	})
}

func (r *Repository) Save(ctx context.Context, o *domain.Order, expectedVersion int64, events []outbox.Staged) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			UPDATE orders
			SET status=$2, failure_reason=$3, transaction_id=$4, updated_at=$5,
			    event_seq=$6, version=version+1
			WHERE id=$1 AND version=$7`,
			o.ID, o.Status, o.FailureReason, o.TransactionID, o.UpdatedAt,
			o.EventSeq, expectedVersion)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return application.ErrVersionConflict
		}

		if err := r.saveReservations(ctx, tx, o); err != nil {
			return err
		}
		return appendOutbox(ctx, tx, o.ID, events)
	})
	if err != nil {
		return err
	}
	o.Version = expectedVersion + 1
	return nil
}

func (r *Repository) saveReservations(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	// Reservations follow the aggregate: replaced on reserve, dropped when
	// the order releases them (completion or compensation). Failed orders
	// keep their rows on record.
	if len(o.Reservations) == 0 && o.Status != domain.StatusFailed {
		_, err := tx.Exec(ctx, `DELETE FROM reservations WHERE order_id=$1`, o.ID)
		return err
	}
	batch := &pgx.Batch{}
	for _, rec := range o.Reservations {
		batch.Queue(`
			INSERT INTO reservations (order_id, product_id, quantity, warehouse_id, reserved_at, expires_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (order_id, product_id) DO UPDATE
			SET quantity=$3, warehouse_id=$4, reserved_at=$5, expires_at=$6`,
			rec.OrderID, rec.ProductID, rec.Quantity, rec.WarehouseID, rec.ReservedAt, rec.ExpiresAt)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (r *Repository) QueryStuck(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM orders
		WHERE status NOT IN ('completed', 'cancelled', 'failed')
		  AND updated_at < now() - $1::interval
		ORDER BY updated_at
		LIMIT $2`, olderThan.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	orders := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		o, err := r.Load(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load stuck order %s: %w", id, err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (r *Repository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func appendOutbox(ctx context.Context, tx pgx.Tx, aggregateID string, events []outbox.Staged) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO outbox (event_id, aggregate_type, aggregate_id, sequence, type, payload, headers, traceparent, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'pending')`,
			e.EventID, aggregateType, aggregateID, e.Sequence, e.Type, e.Payload, e.Headers, e.Traceparent)
	}
	return tx.SendBatch(ctx, batch).Close()
}
