package ruleengine

import (
	alerts "github.com/DimaJoyti/priceguard/internal/alerts/domain"
)

// evaluateCondition recursively evaluates a rule's Condition tree against
// an event's flat field map, short-circuiting on AND/OR.
func evaluateCondition(cond alerts.Condition, fields map[string]interface{}) bool {
	switch cond.Operator {
	case alerts.OpAnd:
		for _, c := range cond.Conditions {
			if !evaluateCondition(c, fields) {
				return false
			}
		}
		return true
	case alerts.OpOr:
		for _, c := range cond.Conditions {
			if evaluateCondition(c, fields) {
				return true
			}
		}
		return false
	case alerts.OpNot:
		if len(cond.Conditions) == 0 {
			return false
		}
		return !evaluateCondition(cond.Conditions[0], fields)
	case alerts.OpEQ, alerts.OpGT, alerts.OpLT, alerts.OpGTE, alerts.OpLTE:
		return evaluateLeaf(cond, fields)
	default:
		return false
	}
}

func evaluateLeaf(cond alerts.Condition, fields map[string]interface{}) bool {
	fieldValue, ok := fields[cond.Field]
	if !ok {
		return false
	}

	if cond.Operator == alerts.OpEQ {
		return equalValue(fieldValue, cond.Value)
	}

	lhs, lok := toFloat(fieldValue)
	rhs, rok := toFloat(cond.Value)
	if !lok || !rok {
		return false
	}

	switch cond.Operator {
	case alerts.OpGT:
		return lhs > rhs
	case alerts.OpLT:
		return lhs < rhs
	case alerts.OpGTE:
		return lhs >= rhs
	case alerts.OpLTE:
		return lhs <= rhs
	default:
		return false
	}
}

func equalValue(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return a == b
}

// toFloat coerces the numeric JSON/Go types an event field or rule
// literal may carry into float64 for comparison.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
