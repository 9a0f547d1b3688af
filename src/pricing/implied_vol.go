package pricing

import (
	"math"

	"option-observer/src/models"
)

// -----------------------------------------------------------------------------
// Implied volatility solver
// -----------------------------------------------------------------------------

// SolverParams keeps the pragmatic search thresholds configurable instead of
// hard-coding them at call sites.
type SolverParams struct {
	MinVol        float64
	MaxVol        float64
	Tolerance     float64
	MaxIterations int
}

// DefaultSolverParams brackets 1bp to 500% annualized volatility.
func DefaultSolverParams() SolverParams {
	return SolverParams{
		MinVol:        0.0001,
		MaxVol:        5.0,
		Tolerance:     1e-4,
		MaxIterations: 100,
	}
}

// -----------------------------------------------------------------------------

// ImpliedVol inverts Price by bisection to recover the volatility implied by
// an observed market price. The solver never fails: quotes below the
// discounted intrinsic floor return the minimum volatility immediately, and
// non-convergence returns the best clamped estimate. Downstream Greeks
// computation therefore never blocks on solver failure.
func ImpliedVol(marketPrice, forward, strike, t, rate float64, right models.OptionRight, p SolverParams) float64 {
	if t <= 0 {
		return p.MinVol
	}

	// No-arbitrage floor: deeply mispriced or stale quotes short-circuit
	// without a search.
	floor := math.Exp(-rate*t) * Intrinsic(forward, strike, right)
	if marketPrice < floor-p.Tolerance {
		return p.MinVol
	}

	lo, hi := p.MinVol, p.MaxVol
	vol := 0.5 * (lo + hi)

	for i := 0; i < p.MaxIterations; i++ {
		vol = 0.5 * (lo + hi)
		price := Price(forward, strike, t, rate, vol, right)

		if math.Abs(price-marketPrice) < p.Tolerance {
			break
		}

		// Price is monotonically increasing in volatility.
		if price < marketPrice {
			lo = vol
		} else {
			hi = vol
		}

		if hi-lo < p.Tolerance/10 {
			break
		}
	}

	return clamp(vol, p.MinVol, p.MaxVol)
}

// -----------------------------------------------------------------------------

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
