package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/order-orchestrator/internal/order/domain"
	"github.com/dmehra2102/order-orchestrator/pkg/clock"
	"github.com/dmehra2102/order-orchestrator/pkg/metrics"
	"github.com/dmehra2102/order-orchestrator/pkg/outbox"
	"github.com/dmehra2102/order-orchestrator/pkg/tracing"
)

// core is shared by every handler that mutates an Order: load with the
// current version, apply the transition, persist conditioned on the version.
// One reload-and-retry on conflict, then ErrConcurrentModification.
type core struct {
	log  *slog.Logger
	repo OrderRepository
	clk  clock.Clock
	met  *metrics.Orchestrator
}

func (c *core) mutate(ctx context.Context, orderID string, fn func(*domain.Order) error) (*domain.Order, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		o, err := c.repo.Load(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if err := fn(o); err != nil {
			return nil, err
		}
		if len(o.PendingEvents()) == 0 {
			// Idempotent no-op: already in the target state, nothing to
			// persist.
			return o, nil
		}
		events, err := stageEvents(o, tracing.Traceparent(ctx))
		if err != nil {
			return nil, err
		}
		err = c.repo.Save(ctx, o, o.Version, events)
		if errors.Is(err, ErrVersionConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		o.ClearPendingEvents()
		return o, nil
	}
	return nil, fmt.Errorf("%w: order %s: %w", ErrConcurrentModification, orderID, lastErr)
}

// stageEvents converts the aggregate's pending events into outbox rows. The
// current trace context rides along so dispatch continues the trace.
func stageEvents(o *domain.Order, traceparent string) ([]outbox.Staged, error) {
	pending := o.PendingEvents()
	staged := make([]outbox.Staged, 0, len(pending))
	for _, e := range pending {
		payload, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", e.EventType(), err)
		}
		m := e.Meta()
		staged = append(staged, outbox.Staged{
			EventID:     m.EventID,
			Type:        e.EventType(),
			Sequence:    m.Sequence,
			Payload:     payload,
			Traceparent: traceparent,
		})
	}
	return staged, nil
}
