package domain

import (
	"encoding/json"
	"time"
)

// EventType names the kind of signal the Analyzer emits for the rule
// engine to evaluate rules against.
type EventType string

// These mirror AlertTrigger exactly: a rule's ruleType is matched against
// the same trigger vocabulary the Analyzer emits, plus pricePredictionMade
// for the externally-sourced prediction event.
const (
	EventOutOfStock          EventType = "outOfStock"
	EventBackInStock         EventType = "backInStock"
	EventPriceDrop           EventType = "priceDrop"
	EventLowestPriceEver     EventType = "lowestPriceEver"
	EventDeal                EventType = "deal"
	EventPricePredictionMade EventType = "pricePredictionMade"
)

// EventTypeForTrigger maps an Analyzer AlertTrigger to the Event type the
// Rule Engine matches rules against.
func EventTypeForTrigger(trigger AlertTrigger) EventType {
	return EventType(trigger)
}

// Event is a transient signal produced by the Analyzer and consumed by the
// Rule Engine. It is not persisted beyond short-term audit logging; Fields
// is the flat key/value view the rule engine's condition tree evaluates
// against.
type Event struct {
	Type      EventType              `json:"type"`
	ProductID string                 `json:"product_id"`
	Fields    map[string]interface{} `json:"fields"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent builds an Event with its fields map pre-populated so callers
// only add type-specific payload.
func NewEvent(eventType EventType, productID string, fields map[string]interface{}) *Event {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["productId"] = productID
	fields["type"] = string(eventType)
	return &Event{
		Type:      eventType,
		ProductID: productID,
		Fields:    fields,
		Timestamp: time.Now(),
	}
}

// ToJSON serializes the event for the event bus / audit log.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FieldOrNil returns the named field, or nil if the event does not carry
// it; the boolean distinguishes an absent field from a present nil value.
// The rule engine's leaf comparisons do not call this: they index the
// Fields map directly with the same comma-ok check.
func (e *Event) FieldOrNil(name string) (interface{}, bool) {
	v, ok := e.Fields[name]
	return v, ok
}

// PredictionFields holds the price-prediction payload carried on a
// pricePredictionMade event. Prediction generation itself is an external
// leaf (e.g. a future ML sidecar) that publishes onto the same event-bus
// entrypoint the Analyzer uses; the Analyzer never computes predictions.
type PredictionFields struct {
	PredictedPrice float64   `json:"predictedPrice"`
	Confidence     float64   `json:"confidence"`
	PredictionDate time.Time `json:"predictionDate"`
}
