// Package effects runs best-effort work that must happen after a write has
// committed, such as push notifications and confirmation emails.
package effects

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Kind selects the timeout an effect runs under
type Kind string

const (
	Notification Kind = "notification"
	Email        Kind = "email"
)

// Effect is a named piece of post-commit work. Its error is logged, never
// returned to the operation that produced it.
type Effect struct {
	Name  string
	Kind  Kind
	Delay time.Duration
	Run   func(ctx context.Context) error
}

// Timeouts bounds each effect kind
type Timeouts struct {
	Notification time.Duration
	Email        time.Duration
}

// Dispatcher executes effects in the background
type Dispatcher struct {
	logger   *zap.Logger
	metrics  *metrics.AppMetrics
	timeouts Timeouts

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

func NewDispatcher(logger *zap.Logger, m *metrics.AppMetrics, timeouts Timeouts) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		metrics:  m,
		timeouts: timeouts,
		stop:     make(chan struct{}),
	}
}

// Dispatch starts every effect in its own goroutine and returns immediately
func (d *Dispatcher) Dispatch(effects ...Effect) {
	for _, e := range effects {
		d.wg.Add(1)
		go func(e Effect) {
			defer d.wg.Done()
			if e.Delay > 0 {
				t := time.NewTimer(e.Delay)
				select {
				case <-t.C:
				case <-d.stop:
					t.Stop()
				}
			}
			_ = d.Run(context.Background(), e)
		}(e)
	}
}

// Run executes one effect synchronously under its kind's timeout. Failures
// and panics are logged, counted and returned.
func (d *Dispatcher) Run(ctx context.Context, e Effect) (err error) {
	if timeout := d.timeout(e.Kind); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("effect %s panicked: %v", e.Name, p)
		}
		if err != nil {
			d.metrics.EffectsFailed.Add(context.Background(), 1, d.metrics.Attrs(
				attribute.String("effect", e.Name),
				attribute.String("kind", string(e.Kind)),
			))
			d.logger.Warn("post-commit effect failed",
				zap.String("effect", e.Name),
				zap.String("kind", string(e.Kind)),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			return
		}
		d.logger.Debug("post-commit effect done", zap.String("effect", e.Name), zap.Duration("elapsed", time.Since(start)))
	}()

	return e.Run(ctx)
}

// RunAll runs effects in order, synchronously, ignoring delays
func (d *Dispatcher) RunAll(ctx context.Context, effects ...Effect) {
	for _, e := range effects {
		_ = d.Run(ctx, e)
	}
}

func (d *Dispatcher) timeout(k Kind) time.Duration {
	switch k {
	case Email:
		return d.timeouts.Email
	case Notification:
		return d.timeouts.Notification
	}
	return 0
}

// Wait cuts pending delays short and blocks until every dispatched effect has finished
func (d *Dispatcher) Wait() {
	d.stopOnce.Do(func() { close(d.stop) })
	d.wg.Wait()
}
