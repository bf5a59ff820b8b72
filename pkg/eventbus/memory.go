package eventbus

import (
	"context"
	"sync"

	"github.com/DimaJoyti/priceguard/internal/monitoring/domain"
)

// InMemory is a Publisher+Subscriber pair for tests and single-process
// deployments that don't need a real Kafka cluster between the Analyzer
// and the Rule Engine.
type InMemory struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewInMemory returns an empty in-process bus.
func NewInMemory() *InMemory {
	return &InMemory{}
}

// Publish calls every registered Handler synchronously in registration
// order. The first handler error is returned; later handlers still run.
func (b *InMemory) Publish(ctx context.Context, event *domain.Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.RUnlock()

	var firstErr error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Subscribe registers handler to run on every future Publish call.
func (b *InMemory) Subscribe(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
	return nil
}

// Close is a no-op; InMemory owns no external resources.
func (b *InMemory) Close() error { return nil }
