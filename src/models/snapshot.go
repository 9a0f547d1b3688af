package models

import "time"

// MGreeksSet holds the option sensitivities computed from a single
// (forward, strike, time, rate, vol, right) tuple. Theta is per calendar day,
// vega is per unit change of volatility.
type MGreeksSet struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// -----------------------------------------------------------------------------

// MInstrumentSnapshot is the latest normalized state of one instrument.
// Overwritten on every inbound tick for its token (last-write-wins).
// For options, IV and Greeks are either both set or both nil.
type MInstrumentSnapshot struct {
	Token         uint32          `json:"token"`
	TradingSymbol string          `json:"trading_symbol"`
	Underlying    string          `json:"underlying"`
	Class         InstrumentClass `json:"class"`
	Right         OptionRight     `json:"right,omitempty"`
	Strike        float64         `json:"strike,omitempty"`
	Expiry        time.Time       `json:"expiry,omitempty"`
	ExpiryClass   ExpiryClass     `json:"expiry_class,omitempty"`

	LastPrice    float64 `json:"last_price"`
	BidPrice     float64 `json:"bid_price,omitempty"`
	AskPrice     float64 `json:"ask_price,omitempty"`
	BidQty       int64   `json:"bid_qty,omitempty"`
	AskQty       int64   `json:"ask_qty,omitempty"`
	OpenInterest int64   `json:"open_interest,omitempty"`
	Volume       int64   `json:"volume,omitempty"`

	Spot    float64 `json:"spot,omitempty"`
	Forward float64 `json:"forward,omitempty"`

	IV     *float64    `json:"iv,omitempty"`
	Greeks *MGreeksSet `json:"greeks,omitempty"`

	LotSize  int     `json:"lot_size"`
	TickSize float64 `json:"tick_size"`

	UpdatedAt time.Time `json:"updated_at"`
}
