package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DimaJoyti/priceguard/internal/monitoring/domain"
)

func TestInMemory_PublishCallsAllSubscribers(t *testing.T) {
	bus := NewInMemory()
	var got []string

	require.NoError(t, bus.Subscribe(context.Background(), func(ctx context.Context, e *domain.Event) error {
		got = append(got, "a:"+string(e.Type))
		return nil
	}))
	require.NoError(t, bus.Subscribe(context.Background(), func(ctx context.Context, e *domain.Event) error {
		got = append(got, "b:"+string(e.Type))
		return nil
	}))

	event := domain.NewEvent(domain.EventPriceDrop, "p1", nil)
	require.NoError(t, bus.Publish(context.Background(), event))

	assert.Equal(t, []string{"a:priceDrop", "b:priceDrop"}, got)
}
