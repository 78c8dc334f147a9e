package reconciler

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmehra2102/order-orchestrator/internal/order/application"
	"github.com/dmehra2102/order-orchestrator/internal/order/domain"
	"github.com/dmehra2102/order-orchestrator/pkg/metrics"
	"golang.org/x/sync/semaphore"
)

// Worker heals orders stuck in a non-terminal state past the threshold,
// typically because an event was lost or a handler crashed mid-saga. It
// re-derives the next expected action from the current status and re-invokes
// the matching handler; every handler tolerates being invoked on an order
// already past its step, so a re-drive never double-applies.
type Worker struct {
	log       *slog.Logger
	repo      application.OrderRepository
	reserve   *application.ReserveInventoryHandler
	pay       *application.ProcessPaymentHandler
	complete  *application.CompleteOrderHandler
	met       *metrics.Orchestrator
	interval  time.Duration
	threshold time.Duration
	batchSize int
	// maxInFlight bounds concurrent re-drives so a big backlog does not
	// stampede the downstream collaborators.
	maxInFlight int64
}

type Config struct {
	Interval    time.Duration
	Threshold   time.Duration
	BatchSize   int
	MaxInFlight int64
}

func New(
	log *slog.Logger,
	repo application.OrderRepository,
	reserve *application.ReserveInventoryHandler,
	pay *application.ProcessPaymentHandler,
	complete *application.CompleteOrderHandler,
	met *metrics.Orchestrator,
	cfg Config,
) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 4
	}
	return &Worker{
		log:         log,
		repo:        repo,
		reserve:     reserve,
		pay:         pay,
		complete:    complete,
		met:         met,
		interval:    cfg.Interval,
		threshold:   cfg.Threshold,
		batchSize:   cfg.BatchSize,
		maxInFlight: cfg.MaxInFlight,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("reconciler stopping")
			return nil
		case <-t.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one reconciliation pass. Failures are logged and left for the
// next tick rather than retried immediately, to avoid tight failure loops.
func (w *Worker) Tick(ctx context.Context) {
	w.met.ReconcileRuns.Inc()

	stuck, err := w.repo.QueryStuck(ctx, w.threshold, w.batchSize)
	if err != nil {
		w.log.Error("stuck-order query failed", "err", err)
		return
	}
	w.met.StuckOrders.Set(float64(len(stuck)))
	if len(stuck) == 0 {
		return
	}
	w.log.Info("reconciling stuck orders", "count", len(stuck))

	sem := semaphore.NewWeighted(w.maxInFlight)
	for _, o := range stuck {
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func(o *domain.Order) {
			defer sem.Release(1)
			if err := w.redrive(ctx, o); err != nil {
				w.log.Error("re-drive failed", "order_id", o.ID, "status", o.Status, "err", err)
			}
		}(o)
	}
	// Wait for the batch so ticks do not overlap.
	_ = sem.Acquire(ctx, w.maxInFlight)
	sem.Release(w.maxInFlight)
}

func (w *Worker) redrive(ctx context.Context, o *domain.Order) error {
	switch o.Status {
	case domain.StatusPending:
		return w.reserve.Reserve(ctx, o.ID)
	case domain.StatusInventoryReserved:
		return w.pay.ProcessPayment(ctx, o.ID)
	case domain.StatusPaymentProcessed:
		return w.complete.Complete(ctx, o.ID)
	default:
		// Terminal rows should not come back from QueryStuck; if one does,
		// surface it rather than guess.
		w.log.Warn("unexpected stuck status", "order_id", o.ID, "status", o.Status)
		return nil
	}
}
