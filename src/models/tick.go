package models

import "time"

// MRawTick is one feed message after transport decoding and fixed-point
// un-scaling. Zero-valued optional fields mean "absent on the wire";
// Forward is a pointer because zero is a meaningful forward for nothing.
type MRawTick struct {
	Token        uint32    `json:"token"`
	LastPrice    float64   `json:"last_price"`
	BidPrice     float64   `json:"bid_price,omitempty"`
	AskPrice     float64   `json:"ask_price,omitempty"`
	BidQty       int64     `json:"bid_qty,omitempty"`
	AskQty       int64     `json:"ask_qty,omitempty"`
	OpenInterest int64     `json:"open_interest,omitempty"`
	Volume       int64     `json:"volume,omitempty"`
	Forward      *float64  `json:"forward,omitempty"` // Explicit future/forward price field
	LotSize      int       `json:"lot_size,omitempty"` // Contract-level override
	TickSize     float64   `json:"tick_size,omitempty"`
	ExchangeTS   time.Time `json:"exchange_ts,omitempty"`
}
