package pricing

import (
	"math"

	"option-observer/src/models"
)

// Day-count convention shared by the whole analytics path.
const (
	DaysPerYear = 365.0
)

// -----------------------------------------------------------------------------
// Standard normal distribution
// -----------------------------------------------------------------------------

// NormCDF calculates the cumulative distribution function for a standard
// normal distribution. P(X <= x) = 0.5 * (1 + erf(x / sqrt(2)))
func NormCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// -----------------------------------------------------------------------------

// NormPDF calculates the probability density function for a standard normal
// distribution. f(x) = (1 / sqrt(2*pi)) * exp(-x^2 / 2)
func NormPDF(x float64) float64 {
	return (1.0 / math.Sqrt(2*math.Pi)) * math.Exp(-0.5*x*x)
}

// -----------------------------------------------------------------------------
// Forward-price (Black) option model
// -----------------------------------------------------------------------------

// Intrinsic returns the undiscounted exercise value of the option.
func Intrinsic(forward, strike float64, right models.OptionRight) float64 {
	if right == models.RightCall {
		return math.Max(0, forward-strike)
	}
	return math.Max(0, strike-forward)
}

// -----------------------------------------------------------------------------

// Price values a European option on the forward price.
//   - t <= 0: intrinsic value, no discounting.
//   - vol <= 0 with time remaining: discounted intrinsic value. This keeps the
//     closed form free of division by zero for degenerate inputs.
func Price(forward, strike, t, rate, vol float64, right models.OptionRight) float64 {
	if t <= 0 {
		return Intrinsic(forward, strike, right)
	}

	discount := math.Exp(-rate * t)

	if vol <= 0 {
		return discount * Intrinsic(forward, strike, right)
	}

	sqrtT := math.Sqrt(t)
	d1 := (math.Log(forward/strike) + 0.5*vol*vol*t) / (vol * sqrtT)
	d2 := d1 - vol*sqrtT

	if right == models.RightCall {
		return discount * (forward*NormCDF(d1) - strike*NormCDF(d2))
	}
	return discount * (strike*NormCDF(-d2) - forward*NormCDF(-d1))
}

// -----------------------------------------------------------------------------

// Greeks computes the closed-form sensitivities of Price. All four values come
// from a single (forward, strike, t, rate, vol, right) tuple so callers never
// see a partially stale set. Theta is per calendar day, vega per unit vol.
func Greeks(forward, strike, t, rate, vol float64, right models.OptionRight) models.MGreeksSet {
	if t <= 0 {
		return models.MGreeksSet{}
	}

	discount := math.Exp(-rate * t)

	if vol <= 0 {
		// Delta is the discounted in-the-money indicator; the other partials
		// vanish for a deterministic forward.
		g := models.MGreeksSet{}
		if right == models.RightCall && forward > strike {
			g.Delta = discount
		} else if right == models.RightPut && forward < strike {
			g.Delta = -discount
		}
		return g
	}

	sqrtT := math.Sqrt(t)
	d1 := (math.Log(forward/strike) + 0.5*vol*vol*t) / (vol * sqrtT)
	d2 := d1 - vol*sqrtT
	pdf := NormPDF(d1)

	var delta float64
	if right == models.RightCall {
		delta = discount * NormCDF(d1)
	} else {
		delta = -discount * NormCDF(-d1)
	}

	gamma := discount * pdf / (forward * vol * sqrtT)
	vega := discount * forward * pdf * sqrtT

	// Annualized theta of the Black model, then expressed per calendar day.
	var thetaYear float64
	if right == models.RightCall {
		thetaYear = -discount*forward*pdf*vol/(2*sqrtT) +
			rate*discount*(forward*NormCDF(d1)-strike*NormCDF(d2))
	} else {
		thetaYear = -discount*forward*pdf*vol/(2*sqrtT) +
			rate*discount*(strike*NormCDF(-d2)-forward*NormCDF(-d1))
	}

	return models.MGreeksSet{
		Delta: delta,
		Gamma: gamma,
		Theta: thetaYear / DaysPerYear,
		Vega:  vega,
	}
}
