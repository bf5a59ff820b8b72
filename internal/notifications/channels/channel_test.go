package channels

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DimaJoyti/priceguard/internal/notifications/domain"
)

type fakeInAppStore struct {
	created []*domain.InAppNotification
}

func (f *fakeInAppStore) Create(ctx context.Context, n *domain.InAppNotification) error {
	f.created = append(f.created, n)
	return nil
}

func TestRegistry_ResolveUnknownChannelErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("email")
	assert.ErrorIs(t, err, ErrChannelNotRegistered)
}

func TestInAppAdapter_SendWritesFeedRow(t *testing.T) {
	store := &fakeInAppStore{}
	adapter := NewInAppAdapter(store, func() time.Time { return time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC) }, testLogger())

	delivery := domain.NewDelivery("d1", "u1", "a1", "in_app", "Price dropped!", time.Now())
	id, err := adapter.Send(context.Background(), delivery)

	require.NoError(t, err)
	require.Len(t, store.created, 1)
	assert.Equal(t, id, store.created[0].ID)
	assert.Equal(t, "u1", store.created[0].UserID)
	assert.Equal(t, "Price dropped!", store.created[0].Message)
}
