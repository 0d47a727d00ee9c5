// Package notify delivers progression notifications to the inbox without
// ever blocking the engine.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ghostline/ghostxp/internal/domain"
	"github.com/ghostline/ghostxp/internal/infra/healing"
	"github.com/ghostline/ghostxp/internal/infra/metrics"
)

// DefaultBuffer is the queue size used when none is configured.
const DefaultBuffer = 256

const persistTimeout = 5 * time.Second

// Dispatcher queues notifications and persists them from a single worker.
// It implements domain.Notifier.
type Dispatcher struct {
	store   domain.Store
	log     *zap.Logger
	buffer  int
	breaker *healing.Breaker

	mu      sync.RWMutex
	queue   chan domain.Notification
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithBuffer sets the queue capacity.
func WithBuffer(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.buffer = n
		}
	}
}

// WithBreaker replaces the breaker guarding inbox writes.
func WithBreaker(b *healing.Breaker) Option {
	return func(d *Dispatcher) { d.breaker = b }
}

// New creates a dispatcher. Call Start to begin persisting.
func New(store domain.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:  store,
		log:    zap.NewNop(),
		buffer: DefaultBuffer,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.breaker == nil {
		d.breaker = healing.New("inbox", healing.DefaultConfig(), healing.OnStateChange(d.breakerChanged))
	}
	d.queue = make(chan domain.Notification, d.buffer)
	return d
}

// Breaker exposes the inbox breaker for health reporting.
func (d *Dispatcher) Breaker() *healing.Breaker { return d.breaker }

func (d *Dispatcher) breakerChanged(name string, from, to healing.State) {
	metrics.BreakerState.WithLabelValues(name).Set(float64(to))
	d.log.Warn("inbox breaker state changed",
		zap.Stringer("from", from), zap.Stringer("to", to))
}

// Start launches the worker. Calling it again is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	d.wg.Add(1)
	go d.run()
}

// Notify enqueues n and returns at once. When the queue is full or the
// dispatcher is closed the notification is dropped.
func (d *Dispatcher) Notify(_ context.Context, n domain.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(n, "closed")
		return
	}
	select {
	case d.queue <- n:
	default:
		d.drop(n, "queue full")
	}
}

func (d *Dispatcher) drop(n domain.Notification, why string) {
	metrics.NotificationsDropped.Inc()
	d.log.Warn("notification dropped",
		zap.String("reason", why),
		zap.String("account", n.AccountID),
		zap.String("type", string(n.Type)))
}

// Close stops accepting notifications and waits until the queue is drained.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		// Nobody will drain the queue; flush it here.
		for n := range d.queue {
			d.persist(n)
		}
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for n := range d.queue {
		d.persist(n)
	}
}

func (d *Dispatcher) persist(n domain.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	err := d.breaker.Do(func() error { return d.store.InsertNotification(ctx, n) })
	switch {
	case errors.Is(err, healing.ErrCircuitOpen):
		d.drop(n, "store unavailable")
	case err != nil:
		d.log.Error("persist notification",
			zap.String("account", n.AccountID), zap.String("id", n.ID), zap.Error(err))
	}
}

// ─── Inbox ──────────────────────────────────────────────────────────────────

// Inbox lists the newest notifications of an account.
func (d *Dispatcher) Inbox(ctx context.Context, accountID string, limit int) ([]domain.Notification, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id is empty", domain.ErrInvalidArgument)
	}
	list, err := d.store.ListNotifications(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("inbox: %w", err)
	}
	return list, nil
}

// MarkShown flags a notification as seen.
func (d *Dispatcher) MarkShown(ctx context.Context, accountID, id string) error {
	if err := d.store.MarkNotificationShown(ctx, accountID, id); err != nil {
		return fmt.Errorf("mark shown: %w", err)
	}
	return nil
}
