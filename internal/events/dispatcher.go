package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var errPanicked = errors.New("event handler panicked")

// Handler reacts to a committed domain event.
type Handler func(ctx context.Context, e *Event) error

type queued struct {
	ctx   context.Context
	event *Event
}

// Dispatcher fans committed events out to in-process subscribers on a fixed
// pool of workers. Dispatch never blocks the caller: when the queue is full
// the event is dropped and counted; the outbox still carries it.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	closed   bool

	queue   chan queued
	wg      sync.WaitGroup
	logger  *slog.Logger
	metrics *Metrics
}

type DispatcherOption func(*dispatcherConfig)

type dispatcherConfig struct {
	workers   int
	queueSize int
	logger    *slog.Logger
	metrics   *Metrics
}

func WithWorkers(n int) DispatcherOption {
	return func(c *dispatcherConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

func WithQueueSize(n int) DispatcherOption {
	return func(c *dispatcherConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(c *dispatcherConfig) {
		c.logger = logger
	}
}

func WithDispatcherMetrics(m *Metrics) DispatcherOption {
	return func(c *dispatcherConfig) {
		c.metrics = m
	}
}

// NewDispatcher starts the worker pool. Call Close to drain and stop it.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	cfg := dispatcherConfig{workers: 4, queueSize: 256}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	d := &Dispatcher{
		handlers: make(map[Type][]Handler),
		queue:    make(chan queued, cfg.queueSize),
		logger:   cfg.logger,
		metrics:  cfg.metrics,
	}
	d.wg.Add(cfg.workers)
	for range cfg.workers {
		go d.work()
	}
	return d
}

// Subscribe registers h for every listed event type.
func (d *Dispatcher) Subscribe(h Handler, types ...Type) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range types {
		d.handlers[t] = append(d.handlers[t], h)
	}
}

// Dispatch queues events for asynchronous delivery. Request-scoped values
// survive on the handler context but its cancellation does not.
func (d *Dispatcher) Dispatch(ctx context.Context, evts ...*Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	detached := context.WithoutCancel(ctx)
	for _, e := range evts {
		if d.closed {
			d.drop(e, "dispatcher closed")
			continue
		}
		select {
		case d.queue <- queued{ctx: detached, event: e}:
		default:
			d.drop(e, "dispatch queue full")
		}
	}
}

func (d *Dispatcher) drop(e *Event, reason string) {
	d.logger.Warn("dropping event", "reason", reason, "event_id", e.ID.String(), "type", string(e.Type))
	if d.metrics != nil {
		d.metrics.Dropped.Inc()
	}
}

// Close stops accepting events and waits for queued ones to be handled or
// for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for q := range d.queue {
		d.deliver(q.ctx, q.event)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e *Event) {
	d.mu.RLock()
	handlers := d.handlers[e.Type]
	d.mu.RUnlock()

	for _, h := range handlers {
		if err := d.invoke(ctx, h, e); err != nil {
			d.logger.ErrorContext(ctx, "event handler failed",
				"event_id", e.ID.String(), "type", string(e.Type), "error", err)
			if d.metrics != nil {
				d.metrics.HandlerErrors.WithLabelValues(string(e.Type)).Inc()
			}
		}
	}
	if d.metrics != nil {
		d.metrics.Dispatched.WithLabelValues(string(e.Type)).Inc()
	}
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, e *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "event handler panicked", "type", string(e.Type), "panic", r)
			err = errPanicked
		}
	}()
	return h(ctx, e)
}
