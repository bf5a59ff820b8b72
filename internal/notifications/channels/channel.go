// Package channels implements the outbound channel adapter contract:
// one plug-in per delivery channel. Email and push wrap a provider SDK;
// in_app writes to the local feed store.
package channels

import (
	"context"
	"errors"

	"github.com/DimaJoyti/priceguard/internal/notifications/domain"
)

// ErrChannelNotRegistered is returned when the pipeline asks for an
// adapter that was never registered.
var ErrChannelNotRegistered = errors.New("notifications: channel adapter not registered")

// Adapter is the outbound contract every channel plug-in implements.
type Adapter interface {
	// Send delivers one Delivery and reports the provider's message id.
	Send(ctx context.Context, delivery *domain.Delivery) (messageID string, err error)
}

// Registry resolves an Adapter by channel name (email, push, in_app).
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds an empty channel Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register wires an Adapter under a channel name.
func (r *Registry) Register(channel string, a Adapter) {
	r.adapters[channel] = a
}

// Resolve returns the Adapter registered for channel.
func (r *Registry) Resolve(channel string) (Adapter, error) {
	a, ok := r.adapters[channel]
	if !ok {
		return nil, ErrChannelNotRegistered
	}
	return a, nil
}
