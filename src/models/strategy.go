package models

import "time"

// -----------------------------------------------------------------------------
// Strategy and scenario inputs
// -----------------------------------------------------------------------------

type LegDirection int

const (
	DirectionBuy  LegDirection = 1
	DirectionSell LegDirection = -1
)

// MStrategyLeg is one leg of a strategy as selected by the caller.
// Immutable within a single projection call.
type MStrategyLeg struct {
	Token      uint32       `json:"token"`
	Direction  LegDirection `json:"direction"`
	Lots       int          `json:"lots"`
	EntryPrice float64      `json:"entry_price"`
	IVAdjust   float64      `json:"iv_adjust,omitempty"` // Manual per-leg IV offset
}

// MScenario describes the hypothetical market state to project under.
type MScenario struct {
	TargetPrice  float64   `json:"target_price"`
	TargetDate   time.Time `json:"target_date"`
	VolOffset    float64   `json:"vol_offset,omitempty"` // Applied to every option leg
	DefaultIV    float64   `json:"default_iv,omitempty"` // Fallback when no live IV exists
	HorizonDays  float64   `json:"horizon_days,omitempty"`
	RiskFreeRate float64   `json:"risk_free_rate,omitempty"`
}

// -----------------------------------------------------------------------------
// Projection outputs
// -----------------------------------------------------------------------------

// MLegResult is the valuation of one leg under the scenario. Resolved is
// false when contract metadata could not be found; such legs are excluded
// from the aggregate totals but still returned so callers can render them.
type MLegResult struct {
	Token       uint32      `json:"token"`
	Resolved    bool        `json:"resolved"`
	TheoValue   float64     `json:"theo_value"`
	PnL         float64     `json:"pnl"`
	EffectiveIV float64     `json:"effective_iv,omitempty"`
	Greeks      *MGreeksSet `json:"greeks,omitempty"`
	Multiplier  float64     `json:"multiplier"` // lots * lot size
}

// MPayoffPoint is one point of the payoff curve. OpenInterest is aggregated
// from the live table for strike-aligned points (visualization overlay).
type MPayoffPoint struct {
	Price        float64 `json:"price"`
	ExpiryPnL    float64 `json:"expiry_pnl"`
	TargetPnL    float64 `json:"target_pnl"`
	OpenInterest int64   `json:"open_interest,omitempty"`
}

// MSDBands is the expected-move price range over the scenario horizon.
// Lower bounds are floored at zero.
type MSDBands struct {
	Center   float64 `json:"center"`
	Vol      float64 `json:"vol"`
	Days     float64 `json:"days"`
	UpperOne float64 `json:"upper_one"`
	LowerOne float64 `json:"lower_one"`
	UpperTwo float64 `json:"upper_two"`
	LowerTwo float64 `json:"lower_two"`
}

// MProjectionTotals aggregates the resolved legs. Delta, theta and vega are
// signed by leg direction; gamma is additive regardless of direction.
type MProjectionTotals struct {
	PnL   float64 `json:"pnl"`
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

type MProjectionResult struct {
	Legs   []MLegResult      `json:"legs"`
	Totals MProjectionTotals `json:"totals"`
	Curve  []MPayoffPoint    `json:"curve"`
	Bands  MSDBands          `json:"bands"`
}
