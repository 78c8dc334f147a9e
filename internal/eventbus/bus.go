package eventbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/order-orchestrator/pkg/idempotency"
	"github.com/dmehra2102/order-orchestrator/pkg/metrics"
	"github.com/dmehra2102/order-orchestrator/pkg/outbox"
	"github.com/dmehra2102/order-orchestrator/pkg/resilience"
	"github.com/dmehra2102/order-orchestrator/pkg/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Handler is one in-process subscriber. The set of event types is closed and
// the registry is resolved at startup; there is no runtime reflection.
type Handler interface {
	Name() string
	EventType() string
	Handle(ctx context.Context, ev outbox.Event) error
}

// Deduper remembers processed (event, handler) pairs so at-least-once
// delivery does not re-run side effects.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	MarkSeen(ctx context.Context, key string) error
}

// Bus dispatches drained outbox events to subscribers. Dispatch is
// synchronous and called by the relay in row order, which is what preserves
// per-aggregate sequence ordering end to end. A handler that keeps failing
// past the retry budget makes Dispatch return an error; the relay then
// dead-letters the event and moves on, unless the failure was an open
// circuit, which only requeues it.
type Bus struct {
	log    *slog.Logger
	subs   map[string][]Handler
	dedup  Deduper
	retry  resilience.Policy
	met    *metrics.Orchestrator
	tracer trace.Tracer
}

func New(log *slog.Logger, dedup Deduper, retry resilience.Policy, met *metrics.Orchestrator) *Bus {
	return &Bus{
		log:    log,
		subs:   make(map[string][]Handler),
		dedup:  dedup,
		retry:  retry,
		met:    met,
		tracer: otel.Tracer("event-bus"),
	}
}

// Subscribe registers h for its event type. Call during startup only; the
// map is not guarded after dispatching begins.
func (b *Bus) Subscribe(h Handler) {
	b.subs[h.EventType()] = append(b.subs[h.EventType()], h)
}

func (b *Bus) Dispatch(ctx context.Context, ev outbox.Event) error {
	ctx = tracing.ExtractTraceparent(ctx, ev.Traceparent)
	ctx, span := b.tracer.Start(ctx, "Dispatch "+ev.Type)
	defer span.End()

	handlers := b.subs[ev.Type]
	if len(handlers) == 0 {
		b.log.Debug("no subscribers", "type", ev.Type, "event_id", ev.EventID)
		return nil
	}

	for _, h := range handlers {
		key := idempotency.Key(ev.EventID, h.Name())
		if b.dedup != nil {
			seen, err := b.dedup.Seen(ctx, key)
			if err != nil {
				// Degrade to delivery; handlers are idempotent by contract.
				b.log.Warn("dedup check failed", "key", key, "err", err)
			} else if seen {
				b.met.DispatchTotal.WithLabelValues(ev.Type, "duplicate").Inc()
				continue
			}
		}

		_, err := resilience.Do(ctx, b.retry, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, h.Handle(ctx, ev)
		})
		if err != nil {
			b.met.DispatchTotal.WithLabelValues(ev.Type, "dead").Inc()
			return fmt.Errorf("handler %s on %s: %w", h.Name(), ev.Type, err)
		}
		if b.dedup != nil {
			if err := b.dedup.MarkSeen(ctx, key); err != nil {
				b.log.Warn("dedup mark failed", "key", key, "err", err)
			}
		}
		b.met.DispatchTotal.WithLabelValues(ev.Type, "ok").Inc()
	}
	return nil
}
