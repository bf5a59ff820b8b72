// Package domain holds the core entities of the monitoring subsystem:
// Product, MonitoringConfig, Task, ObservationResult and Event. These
// types carry no persistence or transport concerns; repositories and
// transports adapt them.
package domain

import (
	"time"

	"github.com/DimaJoyti/priceguard/pkg/money"
)

// Product is a retailer page under monitoring. Identity and URL are set at
// onboarding; the three rolling price summaries are mutated only by
// successful observations (see ApplyObservation).
type Product struct {
	ID            string      `json:"id" db:"id"`
	URL           string      `json:"url" db:"url"`
	Retailer      string      `json:"retailer" db:"retailer"`
	Title         string      `json:"title" db:"title"`
	Currency      string      `json:"currency" db:"currency"`
	CurrentPrice  money.Amount `json:"current_price" db:"current_price"`
	LowestEver    money.Amount `json:"lowest_ever" db:"lowest_ever"`
	HighestEver   money.Amount `json:"highest_ever" db:"highest_ever"`
	IsAvailable   bool        `json:"is_available" db:"is_available"`
	LastCheckedAt *time.Time  `json:"last_checked_at,omitempty" db:"last_checked_at"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
}

// ApplyObservation folds a successful check into the product's rolling
// summaries. Called once per completed Task. The dispatcher holds no
// per-product lock around this call, so two Tasks for the same product
// running at the same time can interleave their updates.
func (p *Product) ApplyObservation(price money.Amount, available bool, at time.Time) {
	first := p.LastCheckedAt == nil
	p.CurrentPrice = price
	p.IsAvailable = available
	p.LastCheckedAt = &at

	if first || price.LessThan(p.LowestEver) {
		p.LowestEver = price
	}
	if first || price.GreaterThan(p.HighestEver) {
		p.HighestEver = price
	}
}
