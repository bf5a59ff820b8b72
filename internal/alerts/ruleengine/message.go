package ruleengine

import (
	"fmt"

	"github.com/DimaJoyti/priceguard/internal/monitoring/domain"
)

// renderMessage builds the human-readable Alert message parameterized by
// the event's fields, one template per trigger type.
func renderMessage(event *domain.Event) string {
	title := stringField(event.Fields, "title", "this product")

	switch event.Type {
	case domain.EventLowestPriceEver:
		price := floatField(event.Fields, "currentPrice")
		pct := floatField(event.Fields, "priceChangePercentage")
		return fmt.Sprintf("Lowest price ever for %s: now %.2f (down %.1f%%)", title, price, abs(pct))

	case domain.EventPriceDrop:
		current := floatField(event.Fields, "currentPrice")
		previous := floatField(event.Fields, "previousPrice")
		pct := floatField(event.Fields, "priceChangePercentage")
		return fmt.Sprintf("Price drop for %s: now %.2f, was %.2f (down %.1f%%)", title, current, previous, abs(pct))

	case domain.EventOutOfStock:
		return fmt.Sprintf("%s is now out of stock.", title)

	case domain.EventBackInStock:
		return fmt.Sprintf("%s is back in stock!", title)

	case domain.EventDeal:
		price := floatField(event.Fields, "currentPrice")
		return fmt.Sprintf("Deal alert for %s: now %.2f", title, price)

	case domain.EventPricePredictionMade:
		predicted := floatField(event.Fields, "predictedPrice")
		confidence := floatField(event.Fields, "confidence") * 100
		return fmt.Sprintf("Prediction: %s expected to reach %.2f (confidence %.0f%%)", title, predicted, confidence)

	default:
		return fmt.Sprintf("Alert for %s", title)
	}
}

func stringField(fields map[string]interface{}, key, fallback string) string {
	if v, ok := fields[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func floatField(fields map[string]interface{}, key string) float64 {
	f, _ := toFloat(fields[key])
	return f
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
