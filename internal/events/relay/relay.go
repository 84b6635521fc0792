// Package relay moves committed outbox entries to the message broker on a
// cron schedule.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"crmhub/internal/events"
	id "crmhub/pkg/domain"
	"crmhub/pkg/platform/circuit"
)

type Store interface {
	FetchUnpublished(ctx context.Context, limit int) ([]*events.Event, error)
	MarkPublished(ctx context.Context, ids []id.EventID, at time.Time) error
}

type Relay struct {
	store     Store
	producer  Producer
	batchSize int
	breaker   *circuit.Breaker
	logger    *slog.Logger
	metrics   *events.Metrics
	now       func() time.Time

	// serializes runs so a slow broker never overlaps two batches
	mu   sync.Mutex
	cron *cron.Cron
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *events.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Relay) {
		r.breaker = b
	}
}

func New(store Store, producer Producer, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		producer:  producer,
		batchSize: 100,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	if r.breaker == nil {
		r.breaker = circuit.New("outbox-relay", circuit.WithSuccessThreshold(1), circuit.WithCooldown(30*time.Second))
	}
	return r
}

// RunOnce publishes up to one batch and returns how many entries were
// marked published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.breaker.Allow() {
		return 0, nil
	}
	batch, err := r.store.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch outbox: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := r.producer.Produce(ctx, batch); err != nil {
		r.fail(ctx, err)
		return 0, err
	}
	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.logger.InfoContext(ctx, "outbox relay recovered")
	}

	ids := make([]id.EventID, len(batch))
	for i, e := range batch {
		ids[i] = e.ID
	}
	if err := r.store.MarkPublished(ctx, ids, r.now()); err != nil {
		return 0, fmt.Errorf("mark published: %w", err)
	}
	if r.metrics != nil {
		r.metrics.Relayed.Add(float64(len(batch)))
	}
	return len(batch), nil
}

func (r *Relay) fail(ctx context.Context, err error) {
	if r.metrics != nil {
		r.metrics.RelayFailures.Inc()
	}
	if _, change := r.breaker.RecordFailure(); change.Opened {
		r.logger.WarnContext(ctx, "outbox relay paused after repeated failures", "error", err)
		return
	}
	r.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
}

// Start schedules RunOnce with a standard or descriptor cron spec, for
// example "@every 5s" or "*/10 * * * * *".
func (r *Relay) Start(ctx context.Context, spec string) error {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))
	if _, err := c.AddFunc(spec, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.ErrorContext(ctx, "outbox relay run", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid relay schedule %q: %w", spec, err)
	}
	r.cron = c
	c.Start()
	r.logger.InfoContext(ctx, "outbox relay started", "schedule", spec, "batch_size", r.batchSize)
	return nil
}

// Stop halts the schedule and waits for a running batch to finish.
func (r *Relay) Stop(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}
	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
