package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmehra2102/order-orchestrator/pkg/resilience"
)

type Store interface {
	// LockBatch claims up to batchSize undelivered events for this relay,
	// ordered by row id so per-aggregate sequence order is preserved, and
	// leases them so a crashed relay's claims expire.
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	// MarkFailed requeues the event for the next tick with an incremented
	// retry count.
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	// MarkDead moves the event to the dead-letter state; the relay does not
	// pick it up again.
	MarkDead(ctx context.Context, id int64, errMsg string) error
	ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error
}

// LocalDispatcher delivers an event to in-process subscribers. An error means
// the bus exhausted its retry budget for some subscriber.
type LocalDispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

// Mirror publishes an already locally-delivered event to an external stream.
type Mirror interface {
	Dispatch(ctx context.Context, event Event) error
}

// leaseRenewEvery is how many events a drain processes between lease
// renewals, so a slow batch (bus retries sleep between attempts) cannot
// outlive its lease and be re-claimed by another relay mid-flight.
const leaseRenewEvery = 25

// Relay drains staged events on an interval: local subscribers first, then
// the kafka mirror, then the row is marked sent. Local failures split two
// ways: an open circuit is a delay, so the row is requeued for the next tick;
// true retry exhaustion dead-letters the row and the drain continues with the
// next event rather than blocking the stream. Mirror failures requeue the row
// and hold back later rows of the same aggregate so the external stream never
// sees sequence n+1 before n; local handlers dedupe by event ID, so
// redelivery is safe.
type Relay struct {
	log       *slog.Logger
	store     Store
	local     LocalDispatcher
	mirror    Mirror
	relayID   string
	batchSize int
	interval  time.Duration
	lease     time.Duration
}

func NewRelay(log *slog.Logger, store Store, local LocalDispatcher, mirror Mirror, relayID string) *Relay {
	return &Relay{
		log:       log,
		store:     store,
		local:     local,
		mirror:    mirror,
		relayID:   relayID,
		batchSize: 100,
		interval:  500 * time.Millisecond,
		lease:     5 * time.Second,
	}
}

func (r *Relay) WithInterval(d time.Duration) *Relay {
	r.interval = d
	return r
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping", "relay_id", r.relayID)
			return nil
		case <-t.C:
			r.drain(ctx)
		}
	}
}

func (r *Relay) drain(ctx context.Context) {
	// Aggregates whose earlier event could not be mirrored this pass; their
	// later rows are requeued unmirrored to keep the stream in order.
	blocked := make(map[string]struct{})

	for {
		events, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
		if err != nil {
			r.log.Error("relay lock batch error", "err", err)
			return
		}
		if len(events) == 0 {
			return
		}

		sent := make([]int64, 0, len(events))
		for i, e := range events {
			if ctx.Err() != nil {
				// Shutdown mid-batch: leave the rest leased; the lease
				// expires them back to pending.
				return
			}
			if i > 0 && i%leaseRenewEvery == 0 {
				if err := r.store.ExtendLease(ctx, r.relayID, eventIDs(events[i:]), r.lease); err != nil {
					r.log.Warn("relay lease renewal failed", "err", err)
				}
			}

			if err := r.local.Dispatch(ctx, e); err != nil {
				if errors.Is(err, resilience.ErrCircuitOpen) {
					// The target is cooling down, not the event poisoned;
					// requeue for the next tick.
					_ = r.store.MarkFailed(ctx, e.ID, err.Error())
					continue
				}
				r.log.Error("event dead-lettered", "event_id", e.EventID, "type", e.Type, "err", err)
				_ = r.store.MarkDead(ctx, e.ID, err.Error())
				continue
			}
			if r.mirror != nil {
				if _, held := blocked[e.AggregateID]; held {
					_ = r.store.MarkFailed(ctx, e.ID, "mirror: held behind earlier event")
					continue
				}
				if err := r.mirror.Dispatch(ctx, e); err != nil {
					blocked[e.AggregateID] = struct{}{}
					_ = r.store.MarkFailed(ctx, e.ID, err.Error())
					continue
				}
			}
			sent = append(sent, e.ID)
		}
		if len(sent) == 0 {
			// Nothing moved forward; requeued rows would come straight back,
			// so stop and let the next tick retry.
			return
		}
		if err := r.store.MarkSent(ctx, sent); err != nil {
			r.log.Error("relay mark sent error", "err", err)
		}
		// A short batch means the table is drained for this tick.
		if len(events) < r.batchSize {
			return
		}
	}
}

func eventIDs(events []Event) []int64 {
	ids := make([]int64, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	return ids
}
