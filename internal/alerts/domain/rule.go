// Package domain holds the Alert Rule Engine's entities: AlertRule, its
// boolean Condition tree, and the Alert an evaluated rule produces.
package domain

import (
	"fmt"
	"time"

	"github.com/DimaJoyti/priceguard/internal/monitoring/domain"
)

// Operator names one node in a Condition tree.
type Operator string

const (
	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
	OpNot Operator = "NOT"
	OpEQ  Operator = "EQ"
	OpGT  Operator = "GT"
	OpLT  Operator = "LT"
	OpGTE Operator = "GTE"
	OpLTE Operator = "LTE"
)

// Condition is one node of a rule's boolean expression tree. Interior
// nodes (AND/OR) carry Conditions; NOT carries a single Condition via
// its first element; comparison leaves (EQ/GT/LT/GTE/LTE) carry Field
// and Value and compare against the event's flat field map.
type Condition struct {
	Operator   Operator    `json:"operator"`
	Conditions []Condition `json:"conditions,omitempty"`
	Field      string      `json:"field,omitempty"`
	Value      interface{} `json:"value,omitempty"`
}

// AlertRule is a user-defined, optionally product-scoped boolean
// expression over Event fields. Immutable except via explicit user
// update; the engine never mutates a rule while evaluating it.
type AlertRule struct {
	ID        string                 `json:"id" db:"id"`
	UserID    string                 `json:"user_id" db:"user_id"`
	ProductID string                 `json:"product_id,omitempty" db:"product_id"`
	RuleType  domain.EventType       `json:"rule_type" db:"rule_type"`
	Condition Condition              `json:"condition" db:"condition"`
	Channels  map[string]bool        `json:"channels" db:"channels"`
	Priority  int                    `json:"priority" db:"priority"`
	Active    bool                   `json:"active" db:"active"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" db:"updated_at"`
}

// Matches reports whether rule applies to event before its condition
// tree is even evaluated: the rule must be active, its type must match
// the event's, and it must be unscoped or scoped to the same product.
func (r *AlertRule) Matches(event *domain.Event) bool {
	if !r.Active {
		return false
	}
	if r.RuleType != event.Type {
		return false
	}
	if r.ProductID != "" && r.ProductID != event.ProductID {
		return false
	}
	return true
}

// EnabledChannels returns the channel keys this rule has turned on.
func (r *AlertRule) EnabledChannels() []string {
	var out []string
	for channel, enabled := range r.Channels {
		if enabled {
			out = append(out, channel)
		}
	}
	return out
}

// Alert is the user-scoped record an AlertRule produces when its
// condition tree evaluates true against an Event.
type Alert struct {
	ID         string    `json:"id" db:"id"`
	RuleID     string    `json:"rule_id" db:"rule_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	ProductID  string    `json:"product_id" db:"product_id"`
	Message    string    `json:"message" db:"message"`
	Priority   int       `json:"priority" db:"priority"`
	EventType  domain.EventType `json:"event_type" db:"event_type"`
	Fields     map[string]interface{} `json:"fields" db:"fields"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// String gives a human-readable identity for logging.
func (a *Alert) String() string {
	return fmt.Sprintf("alert[%s] rule=%s user=%s type=%s", a.ID, a.RuleID, a.UserID, a.EventType)
}
