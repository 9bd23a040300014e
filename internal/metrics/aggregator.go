package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
)

// AuditCounter is the aggregate query of the session audit table.
type AuditCounter interface {
	CountByOutcome(ctx context.Context, kind domain.SessionKind) (map[domain.Outcome]int, error)
}

// Aggregator performs periodic metrics aggregation
type Aggregator struct {
	audits   AuditCounter
	gallery  func() int
	metrics  *Metrics
	logger   *slog.Logger
	interval time.Duration
	done     chan struct{}
}

// NewAggregator creates a new metrics aggregator worker. audits may be nil
// when postgres is not configured.
func NewAggregator(audits AuditCounter, gallery func() int, m *Metrics, logger *slog.Logger, interval time.Duration) *Aggregator {
	if interval == 0 {
		interval = 1 * time.Minute
	}

	return &Aggregator{
		audits:   audits,
		gallery:  gallery,
		metrics:  m,
		logger:   logger.With("component", "metrics_aggregator"),
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the aggregation worker
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("metrics aggregator started", "interval", a.interval)
	a.aggregate(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("metrics aggregator stopped")
			return
		case <-a.done:
			a.logger.Info("metrics aggregator stopped")
			return
		case <-ticker.C:
			a.aggregate(ctx)
		}
	}
}

// Stop gracefully shuts down the aggregator
func (a *Aggregator) Stop() {
	close(a.done)
}

// aggregate performs the actual aggregation work
func (a *Aggregator) aggregate(ctx context.Context) {
	a.logger.Debug("running metrics aggregation")

	if a.gallery != nil {
		a.metrics.SetGallerySize(a.gallery())
	}

	if a.audits == nil {
		return
	}

	for _, kind := range []domain.SessionKind{domain.SessionRecognition, domain.SessionEnrollment} {
		counts, err := a.audits.CountByOutcome(ctx, kind)
		if err != nil {
			a.logger.Error("failed to count audited sessions", "kind", kind, "error", err)
			continue
		}
		for outcome, n := range counts {
			a.metrics.SetAudited(string(kind), string(outcome), n)
		}
	}
}
