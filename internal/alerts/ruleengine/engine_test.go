package ruleengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	alerts "github.com/DimaJoyti/priceguard/internal/alerts/domain"
	"github.com/DimaJoyti/priceguard/internal/monitoring/domain"
)

type mockRules struct{ mock.Mock }

func (m *mockRules) ActiveByType(ctx context.Context, t domain.EventType) ([]*alerts.AlertRule, error) {
	args := m.Called(ctx, t)
	return args.Get(0).([]*alerts.AlertRule), args.Error(1)
}

type mockAlerts struct{ mock.Mock }

func (m *mockAlerts) Save(ctx context.Context, a *alerts.Alert) error {
	return m.Called(ctx, a).Error(0)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) RequestDelivery(ctx context.Context, a *alerts.Alert, channel string) error {
	return m.Called(ctx, a, channel).Error(0)
}

func TestEvaluate_TriggersMatchingRuleAndElevatesPriority(t *testing.T) {
	rules := &mockRules{}
	alertRepo := &mockAlerts{}
	notifier := &mockNotifier{}

	rule := &alerts.AlertRule{
		ID: "r1", UserID: "u1", RuleType: domain.EventPriceDrop, Active: true, Priority: 5,
		Condition: alerts.Condition{Operator: alerts.OpLT, Field: "priceChangeAmount", Value: 0.0},
		Channels:  map[string]bool{"email": true, "push": false},
	}
	event := domain.NewEvent(domain.EventPriceDrop, "p1", map[string]interface{}{
		"title": "Widget", "currentPrice": 80.0, "previousPrice": 100.0,
		"priceChangeAmount": -20.0, "priceChangePercentage": -20.0,
	})

	rules.On("ActiveByType", mock.Anything, domain.EventPriceDrop).Return([]*alerts.AlertRule{rule}, nil)
	alertRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.Alert")).Return(nil)
	notifier.On("RequestDelivery", mock.Anything, mock.Anything, "email").Return(nil)

	e := New(rules, alertRepo, notifier, zap.NewNop())
	triggered, err := e.Evaluate(context.Background(), event)

	require.NoError(t, err)
	require.Len(t, triggered, 1)
	assert.Equal(t, 7, triggered[0].Priority)
	notifier.AssertNotCalled(t, "RequestDelivery", mock.Anything, mock.Anything, "push")
}

func TestEvaluate_LowestPriceEverForcesPriorityTen(t *testing.T) {
	rules := &mockRules{}
	alertRepo := &mockAlerts{}
	notifier := &mockNotifier{}

	rule := &alerts.AlertRule{ID: "r1", UserID: "u1", RuleType: domain.EventLowestPriceEver, Active: true, Priority: 3,
		Condition: alerts.Condition{Operator: alerts.OpEQ, Field: "type", Value: "lowestPriceEver"},
		Channels:  map[string]bool{"email": true},
	}
	event := domain.NewEvent(domain.EventLowestPriceEver, "p1", map[string]interface{}{"title": "Widget", "currentPrice": 50.0})

	rules.On("ActiveByType", mock.Anything, domain.EventLowestPriceEver).Return([]*alerts.AlertRule{rule}, nil)
	alertRepo.On("Save", mock.Anything, mock.Anything).Return(nil)
	notifier.On("RequestDelivery", mock.Anything, mock.Anything, "email").Return(nil)

	e := New(rules, alertRepo, notifier, zap.NewNop())
	triggered, err := e.Evaluate(context.Background(), event)

	require.NoError(t, err)
	require.Len(t, triggered, 1)
	assert.Equal(t, 10, triggered[0].Priority)
}

func TestEvaluate_ProductScopedRuleSkipsOtherProducts(t *testing.T) {
	rules := &mockRules{}
	alertRepo := &mockAlerts{}
	notifier := &mockNotifier{}

	rule := &alerts.AlertRule{ID: "r1", UserID: "u1", ProductID: "p2", RuleType: domain.EventDeal, Active: true,
		Condition: alerts.Condition{Operator: alerts.OpEQ, Field: "isDeal", Value: true},
	}
	event := domain.NewEvent(domain.EventDeal, "p1", map[string]interface{}{"isDeal": true})

	rules.On("ActiveByType", mock.Anything, domain.EventDeal).Return([]*alerts.AlertRule{rule}, nil)

	e := New(rules, alertRepo, notifier, zap.NewNop())
	triggered, err := e.Evaluate(context.Background(), event)

	require.NoError(t, err)
	assert.Empty(t, triggered)
	alertRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}
