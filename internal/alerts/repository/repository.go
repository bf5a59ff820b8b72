// Package repository declares the persistence ports the Alert Rule Engine
// depends on (ruleengine.RuleRepository/AlertRepository are satisfied by
// the same concrete types), plus the broader rule-management surface a
// control plane would need. A Postgres adapter lives under .../postgres.
package repository

import (
	"context"

	"github.com/DimaJoyti/priceguard/internal/alerts/domain"
	monitoring "github.com/DimaJoyti/priceguard/internal/monitoring/domain"
)

// RuleRepository persists AlertRules and resolves the active subset the
// engine matches a given event type against.
type RuleRepository interface {
	GetByID(ctx context.Context, id string) (*domain.AlertRule, error)
	Save(ctx context.Context, rule *domain.AlertRule) error
	Delete(ctx context.Context, id string) error
	ActiveByType(ctx context.Context, ruleType monitoring.EventType) ([]*domain.AlertRule, error)
	ForUser(ctx context.Context, userID string) ([]*domain.AlertRule, error)
	// CountActiveForProduct returns how many active rules watch a product,
	// the rule-engagement half of the Scorer's popularity factor.
	CountActiveForProduct(ctx context.Context, productID string) (int, error)
}

// AlertRepository persists triggered Alerts and resolves them by id for
// the Notification Pipeline's batch-rendering step.
type AlertRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Alert, error)
	Save(ctx context.Context, alert *domain.Alert) error
	ForUser(ctx context.Context, userID string, limit int) ([]*domain.Alert, error)
}
