package projection

import (
	"math"
	"sort"
	"testing"
	"time"

	"option-observer/src/livetable"
	"option-observer/src/logger"
	"option-observer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testExpiry      = time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC)
	testExpiryClose = time.Date(2024, 1, 25, 15, 30, 0, 0, time.UTC)
)

func testEngine() *Engine {
	return NewEngine(
		models.MPricingConfig{RiskFreeRate: 0.065, DefaultIV: 0.15, GridPadFactor: 0.05},
		models.MSessionConfig{Timezone: "UTC", TradeEndHour: 15, TradeEndMinute: 30},
		logger.NewLogger("test"),
	)
}

func iv(v float64) *float64 { return &v }

func testTable() *livetable.LiveTable {
	lt := livetable.NewLiveTable()
	lt.Upsert(models.MInstrumentSnapshot{
		Token: 1001, Class: models.ClassOption, Right: models.RightCall,
		Underlying: "NIFTY", Strike: 20000, Expiry: testExpiry,
		LotSize: 50, IV: iv(0.15), OpenInterest: 500_000,
	})
	lt.Upsert(models.MInstrumentSnapshot{
		Token: 1002, Class: models.ClassOption, Right: models.RightPut,
		Underlying: "NIFTY", Strike: 20000, Expiry: testExpiry,
		LotSize: 50, IV: iv(0.16), OpenInterest: 200_000,
	})
	lt.Upsert(models.MInstrumentSnapshot{
		Token: 1003, Class: models.ClassOption, Right: models.RightCall,
		Underlying: "NIFTY", Strike: 20100, Expiry: testExpiry,
		LotSize: 50, IV: iv(0.14), OpenInterest: 300_000,
	})
	lt.Upsert(models.MInstrumentSnapshot{
		Token: 2001, Class: models.ClassFuture, Underlying: "NIFTY",
		Expiry: testExpiry, LotSize: 50, LastPrice: 20050,
	})
	return lt
}

// -----------------------------------------------------------------------------

func TestProjectSingleCallAtExpiry(t *testing.T) {
	e := testEngine()
	legs := []models.MStrategyLeg{
		{Token: 1001, Direction: models.DirectionBuy, Lots: 1, EntryPrice: 150},
	}
	scenario := models.MScenario{TargetPrice: 20300, TargetDate: testExpiryClose}

	result := e.Project(legs, scenario, testTable())

	require.Len(t, result.Legs, 1)
	leg := result.Legs[0]
	require.True(t, leg.Resolved)
	assert.InDelta(t, 300.0, leg.TheoValue, 1e-9)
	assert.InDelta(t, 7500.0, leg.PnL, 1e-9)
	assert.InDelta(t, 7500.0, result.Totals.PnL, 1e-9)

	// At expiry every sensitivity has decayed away.
	assert.Zero(t, result.Totals.Delta)
	assert.Zero(t, result.Totals.Vega)
}

func TestProjectIdempotent(t *testing.T) {
	e := testEngine()
	lt := testTable()
	legs := []models.MStrategyLeg{
		{Token: 1001, Direction: models.DirectionBuy, Lots: 2, EntryPrice: 150},
		{Token: 1002, Direction: models.DirectionSell, Lots: 1, EntryPrice: 180, IVAdjust: 0.01},
	}
	scenario := models.MScenario{
		TargetPrice: 20100,
		TargetDate:  time.Date(2024, 1, 18, 15, 30, 0, 0, time.UTC),
		VolOffset:   0.02,
		HorizonDays: 7,
	}

	first := e.Project(legs, scenario, lt)
	second := e.Project(legs, scenario, lt)
	require.Equal(t, first, second)
}

func TestProjectUnresolvedLegExcludedFromTotals(t *testing.T) {
	e := testEngine()
	legs := []models.MStrategyLeg{
		{Token: 1001, Direction: models.DirectionBuy, Lots: 1, EntryPrice: 150},
		{Token: 9999, Direction: models.DirectionBuy, Lots: 1, EntryPrice: 10},
	}
	scenario := models.MScenario{TargetPrice: 20300, TargetDate: testExpiryClose}

	result := e.Project(legs, scenario, testTable())

	require.Len(t, result.Legs, 2)
	assert.True(t, result.Legs[0].Resolved)
	assert.False(t, result.Legs[1].Resolved)
	assert.InDelta(t, 7500.0, result.Totals.PnL, 1e-9)
}

func TestProjectGreeksSigning(t *testing.T) {
	e := testEngine()
	// Long and short the same call: deltas cancel, gamma stacks.
	legs := []models.MStrategyLeg{
		{Token: 1001, Direction: models.DirectionBuy, Lots: 1, EntryPrice: 150},
		{Token: 1001, Direction: models.DirectionSell, Lots: 1, EntryPrice: 150},
	}
	scenario := models.MScenario{
		TargetPrice: 20000,
		TargetDate:  time.Date(2024, 1, 18, 15, 30, 0, 0, time.UTC),
	}

	result := e.Project(legs, scenario, testTable())

	assert.InDelta(t, 0.0, result.Totals.Delta, 1e-9)
	assert.InDelta(t, 0.0, result.Totals.Vega, 1e-9)
	assert.Greater(t, result.Totals.Gamma, 0.0)
	assert.InDelta(t, 0.0, result.Totals.PnL, 1e-9)
}

func TestProjectFutureLeg(t *testing.T) {
	e := testEngine()
	legs := []models.MStrategyLeg{
		{Token: 2001, Direction: models.DirectionBuy, Lots: 1, EntryPrice: 20050},
	}
	scenario := models.MScenario{
		TargetPrice: 20200,
		TargetDate:  time.Date(2024, 1, 18, 15, 30, 0, 0, time.UTC),
	}

	result := e.Project(legs, scenario, testTable())

	require.Len(t, result.Legs, 1)
	assert.InDelta(t, 20200.0, result.Legs[0].TheoValue, 1e-9)
	assert.InDelta(t, (20200.0-20050.0)*50, result.Legs[0].PnL, 1e-9)
	assert.InDelta(t, 50.0, result.Totals.Delta, 1e-9)
	assert.Zero(t, result.Totals.Gamma)
}

// -----------------------------------------------------------------------------

func TestPayoffCurveLongCall(t *testing.T) {
	e := testEngine()
	legs := []models.MStrategyLeg{
		{Token: 1001, Direction: models.DirectionBuy, Lots: 1, EntryPrice: 150},
	}
	scenario := models.MScenario{
		TargetPrice: 20000,
		TargetDate:  time.Date(2024, 1, 18, 15, 30, 0, 0, time.UTC),
	}

	result := e.Project(legs, scenario, testTable())
	require.NotEmpty(t, result.Curve)

	// Grid is ordered and expiry P&L of a long call never decreases in price.
	sorted := sort.SliceIsSorted(result.Curve, func(i, j int) bool {
		return result.Curve[i].Price < result.Curve[j].Price
	})
	assert.True(t, sorted)
	for i := 1; i < len(result.Curve); i++ {
		assert.GreaterOrEqual(t, result.Curve[i].ExpiryPnL, result.Curve[i-1].ExpiryPnL)
	}

	// At and below the strike the leg expires worthless: flat premium loss.
	for _, p := range result.Curve {
		if p.Price <= 20000 {
			assert.InDelta(t, -150.0*50, p.ExpiryPnL, 1e-9)
		}
	}
}

func TestPayoffCurveStrikeAnchorsAndOpenInterest(t *testing.T) {
	e := testEngine()
	legs := []models.MStrategyLeg{
		{Token: 1001, Direction: models.DirectionBuy, Lots: 1, EntryPrice: 150},
		{Token: 1003, Direction: models.DirectionSell, Lots: 1, EntryPrice: 110},
	}
	scenario := models.MScenario{
		TargetPrice: 20050,
		TargetDate:  time.Date(2024, 1, 18, 15, 30, 0, 0, time.UTC),
	}

	result := e.Project(legs, scenario, testTable())
	require.NotEmpty(t, result.Curve)

	var at20000, at20100 *models.MPayoffPoint
	for i := range result.Curve {
		switch result.Curve[i].Price {
		case 20000:
			at20000 = &result.Curve[i]
		case 20100:
			at20100 = &result.Curve[i]
		}
	}
	require.NotNil(t, at20000, "strike 20000 must be an exact grid point")
	require.NotNil(t, at20100, "strike 20100 must be an exact grid point")

	// Calls and puts at the same strike aggregate into one overlay value.
	assert.Equal(t, int64(700_000), at20000.OpenInterest)
	assert.Equal(t, int64(300_000), at20100.OpenInterest)
}

func TestPayoffCurveFallbackBand(t *testing.T) {
	e := testEngine()
	// A lone future leg has no informative strikes.
	legs := []models.MStrategyLeg{
		{Token: 2001, Direction: models.DirectionBuy, Lots: 1, EntryPrice: 20050},
	}
	scenario := models.MScenario{
		TargetPrice: 20000,
		TargetDate:  time.Date(2024, 1, 18, 15, 30, 0, 0, time.UTC),
	}

	result := e.Project(legs, scenario, testTable())
	require.NotEmpty(t, result.Curve)
	assert.InDelta(t, 18000.0, result.Curve[0].Price, 1e-6)
	assert.InDelta(t, 22000.0, result.Curve[len(result.Curve)-1].Price, 1e-6)
}

// -----------------------------------------------------------------------------

func TestSDBandsFromFirstOptionLeg(t *testing.T) {
	e := testEngine()
	legs := []models.MStrategyLeg{
		{Token: 1001, Direction: models.DirectionBuy, Lots: 1, EntryPrice: 150},
	}
	scenario := models.MScenario{
		TargetPrice: 20000,
		TargetDate:  time.Date(2024, 1, 18, 15, 30, 0, 0, time.UTC),
		HorizonDays: 30,
	}

	result := e.Project(legs, scenario, testTable())

	assert.InDelta(t, 0.15, result.Bands.Vol, 1e-9)
	width := 20000 * 0.15 * math.Sqrt(30/365.25)
	assert.InDelta(t, 20000+width, result.Bands.UpperOne, 1e-6)
	assert.InDelta(t, 20000-width, result.Bands.LowerOne, 1e-6)
	assert.InDelta(t, 20000+2*width, result.Bands.UpperTwo, 1e-6)
}

func TestSDBandsATMFallback(t *testing.T) {
	e := testEngine()
	// Future-only strategy: vol comes from the nearest live ATM option.
	legs := []models.MStrategyLeg{
		{Token: 2001, Direction: models.DirectionBuy, Lots: 1, EntryPrice: 20050},
	}
	scenario := models.MScenario{
		TargetPrice: 20090,
		TargetDate:  time.Date(2024, 1, 18, 15, 30, 0, 0, time.UTC),
		HorizonDays: 7,
	}

	result := e.Project(legs, scenario, testTable())

	// Nearest strike to 20090 is 20100, whose call carries IV 0.14.
	assert.InDelta(t, 0.14, result.Bands.Vol, 1e-9)
}

func TestSDBandsFlooredAtZero(t *testing.T) {
	e := testEngine()
	legs := []models.MStrategyLeg{
		{Token: 1001, Direction: models.DirectionBuy, Lots: 1, EntryPrice: 1},
	}
	scenario := models.MScenario{
		TargetPrice: 100,
		TargetDate:  time.Date(2024, 1, 18, 15, 30, 0, 0, time.UTC),
		VolOffset:   3.0,
		HorizonDays: 365,
	}

	result := e.Project(legs, scenario, testTable())
	assert.GreaterOrEqual(t, result.Bands.LowerTwo, 0.0)
	assert.GreaterOrEqual(t, result.Bands.LowerOne, 0.0)
}
