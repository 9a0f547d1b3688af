package models

import "time"

// MHourlyRecord is one append-only hour-bucketed persistence record.
// Unique on (token, bucket start); duplicate-key writes for the same bucket
// are skipped by the store, not overwritten.
type MHourlyRecord struct {
	Token         uint32    `json:"token"`
	TradingSymbol string    `json:"trading_symbol"`
	Underlying    string    `json:"underlying"`
	Bucket        time.Time `json:"bucket"` // Hour start, UTC

	LastPrice    float64  `json:"last_price"`
	OpenInterest int64    `json:"open_interest"`
	Volume       int64    `json:"volume"`
	Spot         float64  `json:"spot"`
	Forward      float64  `json:"forward"`
	IV           *float64 `json:"iv,omitempty"`
	Delta        *float64 `json:"delta,omitempty"`
	Gamma        *float64 `json:"gamma,omitempty"`
	Theta        *float64 `json:"theta,omitempty"`
	Vega         *float64 `json:"vega,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
