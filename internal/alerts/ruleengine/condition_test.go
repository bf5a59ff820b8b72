package ruleengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	alerts "github.com/DimaJoyti/priceguard/internal/alerts/domain"
)

func TestEvaluateCondition_SimpleLeaf(t *testing.T) {
	cond := alerts.Condition{Operator: alerts.OpLT, Field: "priceChangePercentage", Value: -5.0}
	fields := map[string]interface{}{"priceChangePercentage": -6.0}
	assert.True(t, evaluateCondition(cond, fields))
}

func TestEvaluateCondition_AndShortCircuits(t *testing.T) {
	cond := alerts.Condition{
		Operator: alerts.OpAnd,
		Conditions: []alerts.Condition{
			{Operator: alerts.OpLT, Field: "priceChangePercentage", Value: 0.0},
			{Operator: alerts.OpGTE, Field: "currentPrice", Value: 50.0},
		},
	}
	assert.True(t, evaluateCondition(cond, map[string]interface{}{"priceChangePercentage": -1.0, "currentPrice": 94.0}))
	assert.False(t, evaluateCondition(cond, map[string]interface{}{"priceChangePercentage": -1.0, "currentPrice": 10.0}))
}

func TestEvaluateCondition_OrMatchesAny(t *testing.T) {
	cond := alerts.Condition{
		Operator: alerts.OpOr,
		Conditions: []alerts.Condition{
			{Operator: alerts.OpEQ, Field: "isDeal", Value: true},
			{Operator: alerts.OpLTE, Field: "currentPrice", Value: 10.0},
		},
	}
	assert.True(t, evaluateCondition(cond, map[string]interface{}{"isDeal": true, "currentPrice": 999.0}))
}

func TestEvaluateCondition_Not(t *testing.T) {
	cond := alerts.Condition{
		Operator:   alerts.OpNot,
		Conditions: []alerts.Condition{{Operator: alerts.OpEQ, Field: "isDeal", Value: true}},
	}
	assert.True(t, evaluateCondition(cond, map[string]interface{}{"isDeal": false}))
	assert.False(t, evaluateCondition(cond, map[string]interface{}{"isDeal": true}))
}

func TestEvaluateCondition_MissingFieldFailsClosed(t *testing.T) {
	cond := alerts.Condition{Operator: alerts.OpGT, Field: "nonexistent", Value: 1.0}
	assert.False(t, evaluateCondition(cond, map[string]interface{}{}))
}
