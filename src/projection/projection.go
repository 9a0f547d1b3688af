package projection

import (
	"math"
	"sort"
	"time"

	"option-observer/src/logger"
	"option-observer/src/models"
	"option-observer/src/pricing"
)

// -----------------------------------------------------------------------------
// Scenario projection: value a set of strategy legs under a hypothetical
// underlying price and date. Pure over its inputs; identical legs, scenario
// and live table contents produce identical results.
// -----------------------------------------------------------------------------

// InstrumentLookup is the read surface of the live table the engine values
// legs against.
type InstrumentLookup interface {
	Lookup(token uint32) (models.MInstrumentSnapshot, bool)
	All() []models.MInstrumentSnapshot
}

// -----------------------------------------------------------------------------

type Engine struct {
	riskFreeRate  float64
	defaultIV     float64
	gridPadFactor float64
	solver        pricing.SolverParams

	loc          *time.Location
	cutoffHour   int
	cutoffMinute int

	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewEngine(pricingCfg models.MPricingConfig, session models.MSessionConfig, log *logger.Logger) *Engine {
	loc, err := time.LoadLocation(session.Timezone)
	if err != nil {
		log.Warning("Unknown timezone %q, falling back to UTC", session.Timezone)
		loc = time.UTC
	}

	cutoffHour, cutoffMinute := session.TradeEndHour, session.TradeEndMinute
	if cutoffHour == 0 && cutoffMinute == 0 {
		cutoffHour, cutoffMinute = 15, 30
	}

	defaultIV := pricingCfg.DefaultIV
	if defaultIV <= 0 {
		defaultIV = 0.15
	}
	pad := pricingCfg.GridPadFactor
	if pad <= 0 {
		pad = 0.05
	}

	return &Engine{
		riskFreeRate:  pricingCfg.RiskFreeRate,
		defaultIV:     defaultIV,
		gridPadFactor: pad,
		solver:        pricing.DefaultSolverParams(),
		loc:           loc,
		cutoffHour:    cutoffHour,
		cutoffMinute:  cutoffMinute,
		Logger:        log,
	}
}

// -----------------------------------------------------------------------------

// Project values the legs under the scenario and builds the payoff curve and
// expected-move bands. Legs whose token is absent from the live table come
// back with Resolved=false and are excluded from the aggregate totals.
func (e *Engine) Project(legs []models.MStrategyLeg, scenario models.MScenario,
	table InstrumentLookup) models.MProjectionResult {

	rate := scenario.RiskFreeRate
	if rate == 0 {
		rate = e.riskFreeRate
	}
	defaultIV := scenario.DefaultIV
	if defaultIV <= 0 {
		defaultIV = e.defaultIV
	}
	horizonDays := scenario.HorizonDays
	if horizonDays <= 0 {
		horizonDays = 1
	}

	result := models.MProjectionResult{
		Legs: make([]models.MLegResult, 0, len(legs)),
	}

	resolved := make([]legContext, 0, len(legs))
	for _, leg := range legs {
		snap, ok := table.Lookup(leg.Token)
		if !ok {
			result.Legs = append(result.Legs, models.MLegResult{Token: leg.Token})
			continue
		}

		ctx := e.valueLeg(leg, snap, scenario, rate, defaultIV)
		resolved = append(resolved, ctx)
		result.Legs = append(result.Legs, ctx.result)

		result.Totals.PnL += ctx.result.PnL
		if ctx.result.Greeks != nil {
			result.Totals.Delta += ctx.result.Greeks.Delta
			result.Totals.Gamma += ctx.result.Greeks.Gamma
			result.Totals.Theta += ctx.result.Greeks.Theta
			result.Totals.Vega += ctx.result.Greeks.Vega
		}
	}

	result.Curve = e.payoffCurve(resolved, scenario, rate, table)
	result.Bands = e.sdBands(resolved, scenario, defaultIV, horizonDays, table)
	return result
}

// -----------------------------------------------------------------------------

// legContext keeps the intermediate per-leg pricing inputs alive for the
// payoff-curve pass, which re-values every leg across the price grid.
type legContext struct {
	leg    models.MStrategyLeg
	snap   models.MInstrumentSnapshot
	t      float64 // years from target date to leg expiry
	effVol float64
	result models.MLegResult
}

// -----------------------------------------------------------------------------

func (e *Engine) valueLeg(leg models.MStrategyLeg, snap models.MInstrumentSnapshot,
	scenario models.MScenario, rate, defaultIV float64) legContext {

	direction := float64(leg.Direction)
	multiplier := float64(leg.Lots * snap.LotSize)

	ctx := legContext{leg: leg, snap: snap}
	res := models.MLegResult{
		Token:      leg.Token,
		Resolved:   true,
		Multiplier: multiplier,
	}

	switch snap.Class {
	case models.ClassOption:
		ctx.t = e.yearsBetween(scenario.TargetDate, snap.Expiry)

		baseIV := defaultIV
		if snap.IV != nil {
			baseIV = *snap.IV
		}
		ctx.effVol = math.Max(baseIV+leg.IVAdjust+scenario.VolOffset, e.solver.MinVol)

		forward := scenario.TargetPrice * math.Exp(rate*math.Max(ctx.t, 0))
		res.TheoValue = pricing.Price(forward, snap.Strike, ctx.t, rate, ctx.effVol, snap.Right)
		res.EffectiveIV = ctx.effVol

		g := pricing.Greeks(forward, snap.Strike, ctx.t, rate, ctx.effVol, snap.Right)
		res.Greeks = &models.MGreeksSet{
			Delta: g.Delta * direction * multiplier,
			Gamma: g.Gamma * multiplier,
			Theta: g.Theta * direction * multiplier,
			Vega:  g.Vega * direction * multiplier,
		}

	case models.ClassFuture:
		// Delta-one approximation before expiry, settlement at the target
		// price afterwards; either way the leg is worth the target price.
		ctx.t = e.yearsBetween(scenario.TargetDate, snap.Expiry)
		res.TheoValue = scenario.TargetPrice
		greeks := models.MGreeksSet{}
		if ctx.t > 0 {
			greeks.Delta = direction * multiplier
		}
		res.Greeks = &greeks

	default:
		res.TheoValue = scenario.TargetPrice
		res.Greeks = &models.MGreeksSet{Delta: direction * multiplier}
	}

	res.PnL = (res.TheoValue - leg.EntryPrice) * direction * multiplier
	ctx.result = res
	return ctx
}

// -----------------------------------------------------------------------------

// yearsBetween measures from a reference instant to the session close on the
// expiry day, on a 365-day year.
func (e *Engine) yearsBetween(from time.Time, expiry time.Time) float64 {
	if expiry.IsZero() {
		return 0
	}
	closeAt := time.Date(expiry.Year(), expiry.Month(), expiry.Day(),
		e.cutoffHour, e.cutoffMinute, 0, 0, e.loc)
	return closeAt.Sub(from).Hours() / 24 / pricing.DaysPerYear
}

// -----------------------------------------------------------------------------

// sdBands computes the ±1σ/±2σ expected-move range around the target price.
// Representative vol: first option leg's effective vol, else the live
// at-the-money IV nearest the center, else the configured default.
func (e *Engine) sdBands(resolved []legContext, scenario models.MScenario,
	defaultIV, horizonDays float64, table InstrumentLookup) models.MSDBands {

	center := scenario.TargetPrice

	vol := 0.0
	for _, ctx := range resolved {
		if ctx.snap.Class == models.ClassOption {
			vol = ctx.effVol
			break
		}
	}
	if vol <= 0 {
		vol = e.atmVol(resolved, center, table)
	}
	if vol <= 0 {
		vol = defaultIV
	}

	width := center * vol * math.Sqrt(horizonDays/365.25)
	return models.MSDBands{
		Center:   center,
		Vol:      vol,
		Days:     horizonDays,
		UpperOne: center + width,
		LowerOne: math.Max(center-width, 0),
		UpperTwo: center + 2*width,
		LowerTwo: math.Max(center-2*width, 0),
	}
}

// -----------------------------------------------------------------------------

// atmVol scans the live table for the option of the strategy's underlying
// whose strike sits nearest the center price and carries a solved IV.
func (e *Engine) atmVol(resolved []legContext, center float64, table InstrumentLookup) float64 {
	underlying := ""
	for _, ctx := range resolved {
		underlying = ctx.snap.Underlying
		break
	}
	if underlying == "" {
		return 0
	}

	snaps := table.All()
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Token < snaps[j].Token })

	best := 0.0
	bestDist := math.MaxFloat64
	for _, snap := range snaps {
		if snap.Class != models.ClassOption || snap.Underlying != underlying || snap.IV == nil {
			continue
		}
		dist := math.Abs(snap.Strike - center)
		if dist < bestDist {
			bestDist = dist
			best = *snap.IV
		}
	}
	return best
}
