package projection

import (
	"math"
	"sort"

	"option-observer/src/models"
	"option-observer/src/pricing"
)

const (
	payoffGridPoints = 61
	// Fallback half-width around the center price when the strategy has
	// fewer than two informative strikes.
	payoffFallbackBand = 0.10
)

// -----------------------------------------------------------------------------

// payoffCurve evaluates every resolved leg across an ordered price grid,
// producing expiry (intrinsic settlement) and target-date P&L per point plus
// an open-interest overlay at strike-aligned points.
func (e *Engine) payoffCurve(resolved []legContext, scenario models.MScenario,
	rate float64, table InstrumentLookup) []models.MPayoffPoint {

	if len(resolved) == 0 {
		return nil
	}

	grid, step := e.priceGrid(resolved, scenario.TargetPrice)
	oi := e.openInterestByStrike(resolved, table)

	curve := make([]models.MPayoffPoint, 0, len(grid))
	for _, price := range grid {
		point := models.MPayoffPoint{Price: price}

		for _, ctx := range resolved {
			direction := float64(ctx.leg.Direction)
			multiplier := ctx.result.Multiplier

			point.ExpiryPnL += (settlementValue(ctx.snap, price) - ctx.leg.EntryPrice) *
				direction * multiplier
			point.TargetPnL += (e.targetValue(ctx, price, rate) - ctx.leg.EntryPrice) *
				direction * multiplier
		}

		for strike, open := range oi {
			if math.Abs(strike-price) <= step/2 {
				point.OpenInterest += open
			}
		}

		curve = append(curve, point)
	}
	return curve
}

// -----------------------------------------------------------------------------

// priceGrid spans from below the lowest informative strike to above the
// highest, padded, with every leg strike anchored as an exact grid point.
// Under two informative strikes the grid degrades to a percentage band
// around the center price.
func (e *Engine) priceGrid(resolved []legContext, center float64) ([]float64, float64) {
	strikes := make(map[float64]bool)
	for _, ctx := range resolved {
		if ctx.snap.Class == models.ClassOption && ctx.snap.Strike > 0 {
			strikes[ctx.snap.Strike] = true
		}
	}

	var lo, hi float64
	if len(strikes) >= 2 {
		lo, hi = center, center
		for s := range strikes {
			lo = math.Min(lo, s)
			hi = math.Max(hi, s)
		}
		lo *= 1 - e.gridPadFactor
		hi *= 1 + e.gridPadFactor
	} else {
		lo = center * (1 - payoffFallbackBand)
		hi = center * (1 + payoffFallbackBand)
	}
	if lo < 0 {
		lo = 0
	}

	step := (hi - lo) / float64(payoffGridPoints-1)
	grid := make([]float64, 0, payoffGridPoints+len(strikes))
	for i := 0; i < payoffGridPoints; i++ {
		grid = append(grid, lo+float64(i)*step)
	}
	for s := range strikes {
		if s >= lo && s <= hi {
			grid = append(grid, s)
		}
	}

	sort.Float64s(grid)

	// Deduplicate anchored strikes that landed on an even grid point.
	deduped := grid[:1]
	for _, p := range grid[1:] {
		if p-deduped[len(deduped)-1] > step*1e-9 {
			deduped = append(deduped, p)
		}
	}
	return deduped, step
}

// -----------------------------------------------------------------------------

// settlementValue is the leg instrument's value at expiry with the underlying
// at price.
func settlementValue(snap models.MInstrumentSnapshot, price float64) float64 {
	if snap.Class == models.ClassOption {
		return pricing.Intrinsic(price, snap.Strike, snap.Right)
	}
	return price
}

// -----------------------------------------------------------------------------

// targetValue is the leg instrument's theoretical value at the scenario's
// target date with the underlying at price.
func (e *Engine) targetValue(ctx legContext, price, rate float64) float64 {
	if ctx.snap.Class != models.ClassOption {
		return price
	}
	forward := price * math.Exp(rate*math.Max(ctx.t, 0))
	return pricing.Price(forward, ctx.snap.Strike, ctx.t, rate, ctx.effVol, ctx.snap.Right)
}

// -----------------------------------------------------------------------------

// openInterestByStrike aggregates live open interest per strike for the
// strategy's underlying (taken from the first resolved leg).
func (e *Engine) openInterestByStrike(resolved []legContext, table InstrumentLookup) map[float64]int64 {
	underlying := resolved[0].snap.Underlying

	oi := make(map[float64]int64)
	for _, snap := range table.All() {
		if snap.Class != models.ClassOption || snap.Underlying != underlying {
			continue
		}
		if snap.OpenInterest > 0 && snap.Strike > 0 {
			oi[snap.Strike] += snap.OpenInterest
		}
	}
	return oi
}
