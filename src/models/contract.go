package models

import "time"

// -----------------------------------------------------------------------------
// Instrument classification
// -----------------------------------------------------------------------------

type InstrumentClass string

const (
	ClassOption    InstrumentClass = "OPTION"
	ClassFuture    InstrumentClass = "FUTURE"
	ClassSpotIndex InstrumentClass = "SPOT_INDEX"
	ClassStock     InstrumentClass = "STOCK"
)

type OptionRight string

const (
	RightCall OptionRight = "CE"
	RightPut  OptionRight = "PE"
)

type ExpiryClass string

const (
	ExpiryWeekly  ExpiryClass = "WEEKLY"
	ExpiryMonthly ExpiryClass = "MONTHLY"
)

// -----------------------------------------------------------------------------

// MContractMeta is the static contract description for one instrument.
// Built once from the instrument master at startup and never mutated.
type MContractMeta struct {
	Token         uint32          `json:"token"`
	TradingSymbol string          `json:"trading_symbol"`
	Underlying    string          `json:"underlying"`
	Class         InstrumentClass `json:"class"`
	Right         OptionRight     `json:"right,omitempty"` // Options only
	Strike        float64         `json:"strike,omitempty"`
	Expiry        time.Time       `json:"expiry,omitempty"`
	ExpiryClass   ExpiryClass     `json:"expiry_class,omitempty"`
	LotSize       int             `json:"lot_size"`
	TickSize      float64         `json:"tick_size"`
	Segment       string          `json:"segment"`
}

// -----------------------------------------------------------------------------

// HasExpiry reports whether the contract carries an expiry date.
func (m *MContractMeta) HasExpiry() bool {
	return m.Class == ClassOption || m.Class == ClassFuture
}
