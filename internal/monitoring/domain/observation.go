package domain

import (
	"time"

	"github.com/DimaJoyti/priceguard/pkg/money"
)

// ObservationPayload is what an Extractor returns for one URL fetch. It is
// the only shape the extraction boundary needs to satisfy; extractors never
// see the rest of the domain model.
type ObservationPayload struct {
	Title       string
	Price       money.Amount
	Currency    string
	InStock     bool
	ImageURL    string
	SKU         string
	Description string
	IsDeal      bool
	Screenshots map[string]string
	Metadata    map[string]interface{}
}

// AlertTrigger names the kind of alert the Analyzer detected while
// comparing an ObservationPayload to the prior ObservationResult.
type AlertTrigger string

const (
	TriggerNone           AlertTrigger = ""
	TriggerOutOfStock     AlertTrigger = "outOfStock"
	TriggerBackInStock    AlertTrigger = "backInStock"
	TriggerPriceDrop      AlertTrigger = "priceDrop"
	TriggerLowestPriceEver AlertTrigger = "lowestPriceEver"
	TriggerDeal           AlertTrigger = "deal"
)

// ObservationResult is the Analyzer's durable record of one completed
// Task: the diff between the new payload and the prior observation, plus
// whichever alert trigger (if any) fired.
type ObservationResult struct {
	ID                    string       `json:"id" db:"id"`
	ProductID             string       `json:"product_id" db:"product_id"`
	TaskID                string       `json:"task_id" db:"task_id"`
	ObservedAt            time.Time    `json:"observed_at" db:"observed_at"`
	PreviousPrice         money.Amount `json:"previous_price" db:"previous_price"`
	CurrentPrice          money.Amount `json:"current_price" db:"current_price"`
	PriceChanged          bool         `json:"price_changed" db:"price_changed"`
	PriceChangeAmount     money.Amount `json:"price_change_amount" db:"price_change_amount"`
	PriceChangePercentage money.Amount `json:"price_change_percentage" db:"price_change_percentage"`
	PreviouslyAvailable   bool         `json:"previously_available" db:"previously_available"`
	CurrentlyAvailable    bool         `json:"currently_available" db:"currently_available"`
	AvailabilityChanged   bool         `json:"availability_changed" db:"availability_changed"`
	IsDeal                bool         `json:"is_deal" db:"is_deal"`
	RawPayload            map[string]interface{} `json:"raw_payload,omitempty" db:"raw_payload"`
	Trigger               AlertTrigger `json:"trigger,omitempty" db:"trigger"`
}
