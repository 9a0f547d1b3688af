package normalizer

import (
	"math"
	"testing"
	"time"

	"option-observer/src/logger"
	"option-observer/src/models"
	"option-observer/src/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubContracts map[uint32]models.MContractMeta

func (s stubContracts) Get(token uint32) (models.MContractMeta, bool) {
	meta, ok := s[token]
	return meta, ok
}

type stubSpots map[string]float64

func (s stubSpots) Spot(underlying string) (float64, bool) {
	px, ok := s[underlying]
	return px, ok
}

// -----------------------------------------------------------------------------

var (
	testExpiry = time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC)
	testNow    = time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
)

func testContracts() stubContracts {
	return stubContracts{
		256265: {Token: 256265, TradingSymbol: "NIFTY 50", Underlying: "NIFTY", Class: models.ClassSpotIndex},
		1001: {Token: 1001, TradingSymbol: "NIFTY25JAN2420000CE", Underlying: "NIFTY",
			Class: models.ClassOption, Right: models.RightCall, Strike: 20000,
			Expiry: testExpiry, LotSize: 50, TickSize: 0.05},
		1002: {Token: 1002, TradingSymbol: "NIFTY25JAN2415000CE", Underlying: "NIFTY",
			Class: models.ClassOption, Right: models.RightCall, Strike: 15000,
			Expiry: testExpiry, LotSize: 50, TickSize: 0.05},
		2001: {Token: 2001, TradingSymbol: "NIFTY24JANFUT", Underlying: "NIFTY",
			Class: models.ClassFuture, Expiry: testExpiry, LotSize: 50, TickSize: 0.05},
	}
}

func testNormalizer(spots stubSpots) *Normalizer {
	return NewNormalizer(
		testContracts(),
		spots,
		models.MPricingConfig{RiskFreeRate: 0.065, SpreadThreshold: 0.10},
		models.MSessionConfig{Timezone: "UTC", TradeEndHour: 15, TradeEndMinute: 30},
		logger.NewLogger("test"),
	)
}

// Time to expiry as the normalizer measures it: session close on expiry day.
func testYearsToExpiry() float64 {
	closeAt := time.Date(2024, 1, 25, 15, 30, 0, 0, time.UTC)
	return closeAt.Sub(testNow).Hours() / 24 / pricing.DaysPerYear
}

// -----------------------------------------------------------------------------

func TestNormalizeUnknownTokenDropped(t *testing.T) {
	n := testNormalizer(stubSpots{"NIFTY": 20000})
	snap := n.Normalize(models.MRawTick{Token: 9999, LastPrice: 100}, testNow)
	assert.Nil(t, snap)
}

func TestNormalizeOptionWithoutSpotDropped(t *testing.T) {
	n := testNormalizer(stubSpots{})
	snap := n.Normalize(models.MRawTick{Token: 1001, LastPrice: 100}, testNow)
	assert.Nil(t, snap)
}

func TestNormalizeExpiredOptionDropped(t *testing.T) {
	n := testNormalizer(stubSpots{"NIFTY": 20000})
	afterClose := time.Date(2024, 1, 25, 16, 0, 0, 0, time.UTC)
	snap := n.Normalize(models.MRawTick{Token: 1001, LastPrice: 100}, afterClose)
	assert.Nil(t, snap)

	atClose := time.Date(2024, 1, 25, 15, 30, 0, 0, time.UTC)
	snap = n.Normalize(models.MRawTick{Token: 1001, LastPrice: 100}, atClose)
	assert.Nil(t, snap)
}

func TestNormalizeOptionInvertsMidQuote(t *testing.T) {
	n := testNormalizer(stubSpots{"NIFTY": 20000})

	snap := n.Normalize(models.MRawTick{
		Token: 1001, LastPrice: 98, BidPrice: 100.00, AskPrice: 100.10,
		OpenInterest: 1_250_000,
	}, testNow)
	require.NotNil(t, snap)

	tte := testYearsToExpiry()
	wantForward := 20000 * math.Exp(0.065*tte)
	assert.InDelta(t, wantForward, snap.Forward, 1e-9)

	// Tight spread: the solver sees the mid, not the stale last trade.
	wantIV := pricing.ImpliedVol(100.05, wantForward, 20000, tte, 0.065,
		models.RightCall, pricing.DefaultSolverParams())
	require.NotNil(t, snap.IV)
	require.NotNil(t, snap.Greeks)
	assert.InDelta(t, wantIV, *snap.IV, 1e-12)
	assert.Greater(t, snap.Greeks.Delta, 0.0)
	assert.Equal(t, int64(1_250_000), snap.OpenInterest)
}

func TestNormalizeWideSpreadFallsBackToLast(t *testing.T) {
	n := testNormalizer(stubSpots{"NIFTY": 20000})

	snap := n.Normalize(models.MRawTick{
		Token: 1001, LastPrice: 98, BidPrice: 90, AskPrice: 120,
	}, testNow)
	require.NotNil(t, snap)
	require.NotNil(t, snap.IV)

	tte := testYearsToExpiry()
	forward := 20000 * math.Exp(0.065*tte)
	wantIV := pricing.ImpliedVol(98, forward, 20000, tte, 0.065,
		models.RightCall, pricing.DefaultSolverParams())
	assert.InDelta(t, wantIV, *snap.IV, 1e-12)
}

func TestNormalizeSubIntrinsicQuoteLeavesAnalyticsNil(t *testing.T) {
	n := testNormalizer(stubSpots{"NIFTY": 20000})

	// Deep ITM call worth ~5000 intrinsic, quoted at 4000. The snapshot still
	// goes out, without IV or Greeks.
	snap := n.Normalize(models.MRawTick{Token: 1002, LastPrice: 4000}, testNow)
	require.NotNil(t, snap)
	assert.Nil(t, snap.IV)
	assert.Nil(t, snap.Greeks)
	assert.Greater(t, snap.Forward, 0.0)
}

func TestNormalizeFuture(t *testing.T) {
	n := testNormalizer(stubSpots{"NIFTY": 20000})

	snap := n.Normalize(models.MRawTick{Token: 2001, LastPrice: 20100}, testNow)
	require.NotNil(t, snap)
	assert.Equal(t, 20100.0, snap.Forward)
	assert.Equal(t, 20000.0, snap.Spot)
	require.NotNil(t, snap.Greeks)
	assert.Equal(t, 1.0, snap.Greeks.Delta)
	assert.Zero(t, snap.Greeks.Vega)
	assert.Nil(t, snap.IV)
}

func TestNormalizeExplicitForwardWins(t *testing.T) {
	n := testNormalizer(stubSpots{"NIFTY": 20000})

	fwd := 20250.0
	snap := n.Normalize(models.MRawTick{
		Token: 1001, LastPrice: 98, Forward: &fwd,
	}, testNow)
	require.NotNil(t, snap)
	assert.Equal(t, 20250.0, snap.Forward)
}

func TestNormalizeSpotIndex(t *testing.T) {
	n := testNormalizer(stubSpots{})

	snap := n.Normalize(models.MRawTick{Token: 256265, LastPrice: 20123.5}, testNow)
	require.NotNil(t, snap)
	assert.Equal(t, models.ClassSpotIndex, snap.Class)
	assert.Equal(t, 20123.5, snap.Spot)
	assert.Nil(t, snap.IV)
}

func TestNormalizePerTickOverrides(t *testing.T) {
	n := testNormalizer(stubSpots{"NIFTY": 20000})

	exchTS := time.Date(2024, 1, 10, 9, 59, 58, 0, time.UTC)
	snap := n.Normalize(models.MRawTick{
		Token: 1001, LastPrice: 98, LotSize: 75, TickSize: 0.10, ExchangeTS: exchTS,
	}, testNow)
	require.NotNil(t, snap)
	assert.Equal(t, 75, snap.LotSize)
	assert.Equal(t, 0.10, snap.TickSize)
	assert.Equal(t, exchTS, snap.UpdatedAt)
}

func TestNormalizeBatchMetrics(t *testing.T) {
	n := testNormalizer(stubSpots{"NIFTY": 20000})

	snaps, metrics := n.NormalizeBatch([]models.MRawTick{
		{Token: 256265, LastPrice: 20000},
		{Token: 1001, LastPrice: 98},
		{Token: 9999, LastPrice: 1},
	}, testNow)

	assert.Len(t, snaps, 2)
	assert.Equal(t, 3, metrics.TicksReceived)
	assert.Equal(t, 2, metrics.TicksNormalized)
	assert.Equal(t, 1, metrics.TicksDropped)
	assert.GreaterOrEqual(t, metrics.NormalizeTimeSeconds, 0.0)
}
