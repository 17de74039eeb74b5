package worker

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/aryan0dhankhar/bizdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/bizdesk/internal/observability/tracing"
)

// SweepFunc applies one time-based transition and reports how many records changed
type SweepFunc func(ctx context.Context) (int, error)

// Sweep is a named periodic job
type Sweep struct {
	Name string
	Run  SweepFunc
}

// Sweeper periodically moves records whose deadlines have passed:
// overdue invoices, ended contracts, lapsed subscriptions, stale
// invitations and abandoned checkouts.
type Sweeper struct {
	sweeps     []Sweep
	logger     *slog.Logger
	interval   time.Duration
	maxRetries int
	backoff    time.Duration
}

// NewSweeper creates a sweeper running sweeps in order on every tick
func NewSweeper(sweeps []Sweep, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		sweeps:     sweeps,
		logger:     logger,
		interval:   interval,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Start runs the sweeps once immediately and then on every interval until ctx is done
func (w *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("sweeper started",
		slog.Duration("interval", w.interval),
		slog.Int("sweeps", len(w.sweeps)),
	)
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce executes every sweep a single time. A failing sweep does not stop
// the ones after it.
func (w *Sweeper) RunOnce(ctx context.Context) {
	for _, s := range w.sweeps {
		if ctx.Err() != nil {
			return
		}
		w.run(ctx, s)
	}
}

// run executes one sweep with retry and backoff
func (w *Sweeper) run(ctx context.Context, s Sweep) {
	logger := w.logger.With(slog.String("sweep", s.Name))
	ctx, end := tracing.StartJob(ctx, "sweep "+s.Name, attribute.String("sweep", s.Name))

	var err error
	defer func() { end(err) }()
	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt*attempt) * w.backoff
			logger.Warn("retrying sweep", slog.Int("attempt", attempt), slog.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}

		var affected int
		affected, err = s.Run(ctx)
		if err == nil {
			metrics.ObserveSweep(s.Name, affected, nil)
			if affected > 0 {
				logger.Info("sweep applied", slog.Int("affected", affected))
			} else {
				logger.Debug("sweep found nothing to do")
			}
			return
		}
	}

	logger.Error("sweep failed after retries",
		slog.Int("max_retries", w.maxRetries),
		slog.String("error", err.Error()),
	)
	metrics.ObserveSweep(s.Name, 0, err)
}

// Pruner adapts a cache prune method that cannot fail into a sweep
func Pruner(prune func() int) SweepFunc {
	return func(context.Context) (int, error) {
		return prune(), nil
	}
}
