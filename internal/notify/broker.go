// Package notify fans events out to connected push subscribers. Delivery is
// at-most-once: there is no replay and a subscriber that falls behind loses
// events rather than slowing publishers down.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultBuffer is the per-subscriber queue length
const DefaultBuffer = 32

// Event is one published message
type Event struct {
	Name    string    `json:"event"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// Broker is an in-memory pub/sub hub
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	buffer int
	closed bool

	logger  *zap.Logger
	metrics *metrics.AppMetrics
}

func NewBroker(buffer int, logger *zap.Logger, m *metrics.AppMetrics) *Broker {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	return &Broker{
		subs:    make(map[uint64]chan Event),
		buffer:  buffer,
		logger:  logger,
		metrics: m,
	}
}

// Publish delivers to every current subscriber without blocking
func (b *Broker) Publish(event string, payload any) {
	ev := Event{Name: event, Payload: payload, At: time.Now().UTC()}
	ctx := context.Background()
	opt := b.metrics.Attrs(attribute.String("event", event))

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	delivered, dropped := 0, 0
	for _, ch := range b.subs {
		select {
		case ch <- ev:
			delivered++
		default:
			dropped++
		}
	}

	b.metrics.NotificationsPublished.Add(ctx, 1, opt)
	if dropped > 0 {
		b.metrics.NotificationsDropped.Add(ctx, int64(dropped), opt)
		b.logger.Debug("dropped event for slow subscribers", zap.String("event", event), zap.Int("dropped", dropped))
	}
	b.logger.Debug("published event", zap.String("event", event), zap.Int("subscribers", delivered))
}

// Subscribe registers a listener. The channel closes when cancel is called
// or the broker shuts down.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.metrics.SSESubscribers.Add(context.Background(), 1, b.metrics.Attrs())

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Broker) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
		b.metrics.SSESubscribers.Add(context.Background(), -1, b.metrics.Attrs())
	}
}

// Subscribers reports the number of live subscriptions
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close disconnects every subscriber; later publishes are no-ops
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
		b.metrics.SSESubscribers.Add(context.Background(), -1, b.metrics.Attrs())
	}
}
