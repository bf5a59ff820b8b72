package engagement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/DimaJoyti/priceguard/internal/notifications/domain"
)

type mockDeliveries struct{ mock.Mock }

func (m *mockDeliveries) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	args := m.Called(ctx, id)
	d, _ := args.Get(0).(*domain.Delivery)
	return d, args.Error(1)
}

func (m *mockDeliveries) Save(ctx context.Context, d *domain.Delivery) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *mockDeliveries) Failed(ctx context.Context, limit int) ([]*domain.Delivery, error) {
	args := m.Called(ctx, limit)
	ds, _ := args.Get(0).([]*domain.Delivery)
	return ds, args.Error(1)
}

type mockEngagement struct{ mock.Mock }

func (m *mockEngagement) SaveEvent(ctx context.Context, e *domain.EngagementEvent) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *mockEngagement) SaveMetrics(ctx context.Context, metrics *domain.EngagementMetrics) error {
	args := m.Called(ctx, metrics)
	return args.Error(0)
}

func (m *mockEngagement) GetMetrics(ctx context.Context, userID string) (*domain.EngagementMetrics, error) {
	args := m.Called(ctx, userID)
	em, _ := args.Get(0).(*domain.EngagementMetrics)
	return em, args.Error(1)
}

func (m *mockEngagement) SamplesForUser(ctx context.Context, userID string) ([]domain.DeliverySample, error) {
	args := m.Called(ctx, userID)
	s, _ := args.Get(0).([]domain.DeliverySample)
	return s, args.Error(1)
}

func newTestService(deliveries *mockDeliveries, eng *mockEngagement) *Service {
	return New(deliveries, eng, func() string { return "evt-1" }, zap.NewNop())
}

func TestTrack_OpenedAdvancesDeliveryAndRecomputesMetrics(t *testing.T) {
	deliveries := &mockDeliveries{}
	eng := &mockEngagement{}
	svc := newTestService(deliveries, eng)

	d := domain.NewDelivery("d1", "u1", "a1", "email", "hi", time.Now().Add(-time.Hour))
	d.MarkSent("msg-1", time.Now().Add(-time.Minute))
	d.MarkDelivered(time.Now().Add(-time.Minute))
	deliveries.On("GetByID", mock.Anything, "d1").Return(d, nil)
	deliveries.On("Save", mock.Anything, mock.MatchedBy(func(d *domain.Delivery) bool {
		return d.Status == domain.DeliveryStatusOpened
	})).Return(nil)
	eng.On("SaveEvent", mock.Anything, mock.MatchedBy(func(e *domain.EngagementEvent) bool {
		return e.ID == "evt-1" && e.UserID == "u1" && e.DeliveryID == "d1" && e.DeviceType == "mobile" && e.Platform == "ios"
	})).Return(nil)
	eng.On("SamplesForUser", mock.Anything, "u1").Return([]domain.DeliverySample{{Channel: "email", Opened: true}}, nil)
	eng.On("SaveMetrics", mock.Anything, mock.AnythingOfType("*domain.EngagementMetrics")).Return(nil)

	userAgent := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148"
	event, err := svc.Track(context.Background(), "d1", domain.EngagementOpened, userAgent)

	assert.NoError(t, err)
	assert.Equal(t, "mobile", event.DeviceType)
	assert.Equal(t, "ios", event.Platform)
	deliveries.AssertCalled(t, "Save", mock.Anything, mock.Anything)
	eng.AssertCalled(t, "SaveMetrics", mock.Anything, mock.Anything)
}

func TestTrack_ActionTakenSkipsDeliverySaveButStillRecordsEvent(t *testing.T) {
	deliveries := &mockDeliveries{}
	eng := &mockEngagement{}
	svc := newTestService(deliveries, eng)

	d := domain.NewDelivery("d1", "u1", "a1", "push", "hi", time.Now().Add(-time.Hour))
	deliveries.On("GetByID", mock.Anything, "d1").Return(d, nil)
	eng.On("SaveEvent", mock.Anything, mock.AnythingOfType("*domain.EngagementEvent")).Return(nil)
	eng.On("SamplesForUser", mock.Anything, "u1").Return([]domain.DeliverySample{}, nil)
	eng.On("SaveMetrics", mock.Anything, mock.AnythingOfType("*domain.EngagementMetrics")).Return(nil)

	_, err := svc.Track(context.Background(), "d1", domain.EngagementActionTaken, "")

	assert.NoError(t, err)
	deliveries.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestTrack_DeliveryStatusRegressionIsLoggedNotFatal(t *testing.T) {
	deliveries := &mockDeliveries{}
	eng := &mockEngagement{}
	svc := newTestService(deliveries, eng)

	// a delivery already at clicked can't move back to opened; Track must
	// still record the raw event instead of failing the whole call.
	d := domain.NewDelivery("d1", "u1", "a1", "email", "hi", time.Now().Add(-time.Hour))
	d.MarkSent("msg-1", time.Now().Add(-time.Minute))
	d.MarkClicked(time.Now().Add(-time.Minute))
	deliveries.On("GetByID", mock.Anything, "d1").Return(d, nil)
	eng.On("SaveEvent", mock.Anything, mock.AnythingOfType("*domain.EngagementEvent")).Return(nil)
	eng.On("SamplesForUser", mock.Anything, "u1").Return([]domain.DeliverySample{}, nil)
	eng.On("SaveMetrics", mock.Anything, mock.AnythingOfType("*domain.EngagementMetrics")).Return(nil)

	_, err := svc.Track(context.Background(), "d1", domain.EngagementOpened, "")

	assert.NoError(t, err)
	deliveries.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}
