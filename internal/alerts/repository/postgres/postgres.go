// Package postgres implements the Alert Rule Engine's repository ports
// against PostgreSQL via sqlx: AlertRule and Alert are relational because
// listing rules by user, auditing triggered alerts, and joining against
// products/users are natural SQL operations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/DimaJoyti/priceguard/internal/alerts/domain"
	monitoring "github.com/DimaJoyti/priceguard/internal/monitoring/domain"
)

// RuleRepository implements repository.RuleRepository (and the narrower
// ruleengine.RuleRepository) against a shared sqlx.DB handle.
type RuleRepository struct {
	db *sqlx.DB
}

// NewRuleRepository builds a Postgres-backed RuleRepository.
func NewRuleRepository(db *sqlx.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

type ruleRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	ProductID string    `db:"product_id"`
	RuleType  string    `db:"rule_type"`
	Condition []byte    `db:"condition"`
	Channels  []byte    `db:"channels"`
	Priority  int       `db:"priority"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r ruleRow) toDomain() (*domain.AlertRule, error) {
	rule := &domain.AlertRule{
		ID:        r.ID,
		UserID:    r.UserID,
		ProductID: r.ProductID,
		RuleType:  monitoring.EventType(r.RuleType),
		Priority:  r.Priority,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if err := json.Unmarshal(r.Condition, &rule.Condition); err != nil {
		return nil, fmt.Errorf("unmarshal condition: %w", err)
	}
	if err := json.Unmarshal(r.Channels, &rule.Channels); err != nil {
		return nil, fmt.Errorf("unmarshal channels: %w", err)
	}
	return rule, nil
}

const ruleColumns = `id, user_id, product_id, rule_type, condition, channels, priority, active, created_at, updated_at`

// GetByID loads one AlertRule by id.
func (r *RuleRepository) GetByID(ctx context.Context, id string) (*domain.AlertRule, error) {
	var row ruleRow
	err := r.db.GetContext(ctx, &row, `SELECT `+ruleColumns+` FROM alert_rules WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get alert rule %s: %w", id, err)
	}
	return row.toDomain()
}

// Save upserts an AlertRule row.
func (r *RuleRepository) Save(ctx context.Context, rule *domain.AlertRule) error {
	condition, err := json.Marshal(rule.Condition)
	if err != nil {
		return fmt.Errorf("marshal condition: %w", err)
	}
	channels, err := json.Marshal(rule.Channels)
	if err != nil {
		return fmt.Errorf("marshal channels: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO alert_rules (
			id, user_id, product_id, rule_type, condition, channels,
			priority, active, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			rule_type = EXCLUDED.rule_type,
			condition = EXCLUDED.condition,
			channels = EXCLUDED.channels,
			priority = EXCLUDED.priority,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		rule.ID, rule.UserID, nullString(rule.ProductID), string(rule.RuleType), condition, channels,
		rule.Priority, rule.Active, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			return fmt.Errorf("save alert rule %s: %s: %w", rule.ID, pqErr.Message, err)
		}
		return fmt.Errorf("save alert rule %s: %w", rule.ID, err)
	}
	return nil
}

// Delete removes an AlertRule by id.
func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete alert rule %s: %w", id, err)
	}
	return nil
}

// ActiveByType resolves the active rules an event of this type may match.
func (r *RuleRepository) ActiveByType(ctx context.Context, ruleType monitoring.EventType) ([]*domain.AlertRule, error) {
	var rows []ruleRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+ruleColumns+` FROM alert_rules
		WHERE rule_type = $1 AND active = true`, string(ruleType))
	if err != nil {
		return nil, fmt.Errorf("list active rules for type %s: %w", ruleType, err)
	}
	out := make([]*domain.AlertRule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// ForUser lists every AlertRule a user owns.
func (r *RuleRepository) ForUser(ctx context.Context, userID string) ([]*domain.AlertRule, error) {
	var rows []ruleRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+ruleColumns+` FROM alert_rules
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list rules for user %s: %w", userID, err)
	}
	out := make([]*domain.AlertRule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// CountActiveForProduct counts the active rules watching a product.
func (r *RuleRepository) CountActiveForProduct(ctx context.Context, productID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT count(*) FROM alert_rules
		WHERE product_id = $1 AND active = true`, productID)
	if err != nil {
		return 0, fmt.Errorf("count active rules for product %s: %w", productID, err)
	}
	return count, nil
}

// AlertRepository implements repository.AlertRepository (and the
// narrower ruleengine.AlertRepository) against a shared sqlx.DB handle.
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository builds a Postgres-backed AlertRepository.
func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

type alertRow struct {
	ID        string    `db:"id"`
	RuleID    string    `db:"rule_id"`
	UserID    string    `db:"user_id"`
	ProductID string    `db:"product_id"`
	Message   string    `db:"message"`
	Priority  int       `db:"priority"`
	EventType string    `db:"event_type"`
	Fields    []byte    `db:"fields"`
	CreatedAt time.Time `db:"created_at"`
}

func (r alertRow) toDomain() (*domain.Alert, error) {
	alert := &domain.Alert{
		ID:        r.ID,
		RuleID:    r.RuleID,
		UserID:    r.UserID,
		ProductID: r.ProductID,
		Message:   r.Message,
		Priority:  r.Priority,
		EventType: monitoring.EventType(r.EventType),
		CreatedAt: r.CreatedAt,
	}
	if err := json.Unmarshal(r.Fields, &alert.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal alert fields: %w", err)
	}
	return alert, nil
}

const alertColumns = `id, rule_id, user_id, product_id, message, priority, event_type, fields, created_at`

// GetByID loads one Alert by id, used by the Notification Pipeline to
// re-render a batch's message content.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	var row alertRow
	err := r.db.GetContext(ctx, &row, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get alert %s: %w", id, err)
	}
	return row.toDomain()
}

// Save persists a triggered Alert. Alerts are append-only: every call is
// an insert, never an update.
func (r *AlertRepository) Save(ctx context.Context, alert *domain.Alert) error {
	fields, err := json.Marshal(alert.Fields)
	if err != nil {
		return fmt.Errorf("marshal alert fields: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO NOTHING`,
		alert.ID, alert.RuleID, alert.UserID, alert.ProductID, alert.Message,
		alert.Priority, string(alert.EventType), fields, alert.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			return fmt.Errorf("save alert %s: %s: %w", alert.ID, pqErr.Message, err)
		}
		return fmt.Errorf("save alert %s: %w", alert.ID, err)
	}
	return nil
}

// ForUser lists a user's most recent Alerts.
func (r *AlertRepository) ForUser(ctx context.Context, userID string, limit int) ([]*domain.Alert, error) {
	var rows []alertRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+alertColumns+` FROM alerts
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts for user %s: %w", userID, err)
	}
	out := make([]*domain.Alert, 0, len(rows))
	for _, row := range rows {
		alert, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, alert)
	}
	return out, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
