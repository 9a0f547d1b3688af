package normalizer

import (
	"math"
	"time"

	"option-observer/src/logger"
	"option-observer/src/models"
	"option-observer/src/pricing"
)

// -----------------------------------------------------------------------------
// Tick normalization: raw feed tick -> InstrumentSnapshot with derived
// analytics. One tick in, at most one snapshot out; ticks that cannot be
// enriched to a coherent snapshot are dropped, never partially emitted.
// -----------------------------------------------------------------------------

// ContractSource resolves a token to its static contract metadata.
type ContractSource interface {
	Get(token uint32) (models.MContractMeta, bool)
}

// SpotSource resolves an underlying symbol to its latest spot price.
type SpotSource interface {
	Spot(underlying string) (float64, bool)
}

// -----------------------------------------------------------------------------

type Normalizer struct {
	contracts ContractSource
	spots     SpotSource

	riskFreeRate    float64
	spreadThreshold float64
	solver          pricing.SolverParams

	loc          *time.Location
	cutoffHour   int
	cutoffMinute int

	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewNormalizer(contracts ContractSource, spots SpotSource,
	pricingCfg models.MPricingConfig, session models.MSessionConfig,
	log *logger.Logger) *Normalizer {

	loc, err := time.LoadLocation(session.Timezone)
	if err != nil {
		log.Warning("Unknown timezone %q, falling back to UTC", session.Timezone)
		loc = time.UTC
	}

	cutoffHour, cutoffMinute := session.TradeEndHour, session.TradeEndMinute
	if cutoffHour == 0 && cutoffMinute == 0 {
		cutoffHour, cutoffMinute = 15, 30
	}

	threshold := pricingCfg.SpreadThreshold
	if threshold <= 0 {
		threshold = 0.10
	}

	return &Normalizer{
		contracts:       contracts,
		spots:           spots,
		riskFreeRate:    pricingCfg.RiskFreeRate,
		spreadThreshold: threshold,
		solver:          pricing.DefaultSolverParams(),
		loc:             loc,
		cutoffHour:      cutoffHour,
		cutoffMinute:    cutoffMinute,
		Logger:          log,
	}
}

// -----------------------------------------------------------------------------

// Normalize enriches one raw tick into a snapshot. Returns nil when the tick
// must be dropped: unknown token, option without a spot reference, or an
// already-expired option.
func (n *Normalizer) Normalize(tick models.MRawTick, now time.Time) *models.MInstrumentSnapshot {
	meta, ok := n.contracts.Get(tick.Token)
	if !ok {
		n.Logger.Debug("Dropping tick for unknown token %d", tick.Token)
		return nil
	}

	snap := n.baseSnapshot(meta, tick, now)

	switch meta.Class {
	case models.ClassSpotIndex, models.ClassStock:
		snap.Spot = tick.LastPrice
		return snap

	case models.ClassFuture:
		return n.normalizeFuture(meta, tick, snap, now)

	case models.ClassOption:
		return n.normalizeOption(meta, tick, snap, now)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (n *Normalizer) baseSnapshot(meta models.MContractMeta, tick models.MRawTick, now time.Time) *models.MInstrumentSnapshot {
	snap := &models.MInstrumentSnapshot{
		Token:         meta.Token,
		TradingSymbol: meta.TradingSymbol,
		Underlying:    meta.Underlying,
		Class:         meta.Class,
		Right:         meta.Right,
		Strike:        meta.Strike,
		Expiry:        meta.Expiry,
		ExpiryClass:   meta.ExpiryClass,

		LastPrice:    tick.LastPrice,
		BidPrice:     tick.BidPrice,
		AskPrice:     tick.AskPrice,
		BidQty:       tick.BidQty,
		AskQty:       tick.AskQty,
		OpenInterest: tick.OpenInterest,
		Volume:       tick.Volume,

		LotSize:  meta.LotSize,
		TickSize: meta.TickSize,

		UpdatedAt: now,
	}

	// Contract-level overrides delivered on the tick win over the master.
	if tick.LotSize > 0 {
		snap.LotSize = tick.LotSize
	}
	if tick.TickSize > 0 {
		snap.TickSize = tick.TickSize
	}
	if !tick.ExchangeTS.IsZero() {
		snap.UpdatedAt = tick.ExchangeTS
	}

	return snap
}

// -----------------------------------------------------------------------------

func (n *Normalizer) normalizeFuture(meta models.MContractMeta, tick models.MRawTick,
	snap *models.MInstrumentSnapshot, now time.Time) *models.MInstrumentSnapshot {

	if spot, ok := n.spots.Spot(meta.Underlying); ok {
		snap.Spot = spot
	}

	// The future's own traded price is the forward, unless the feed carries
	// an explicit forward field.
	snap.Forward = tick.LastPrice
	if tick.Forward != nil && *tick.Forward > 0 {
		snap.Forward = *tick.Forward
	}

	snap.Greeks = &models.MGreeksSet{Delta: 1}
	return snap
}

// -----------------------------------------------------------------------------

func (n *Normalizer) normalizeOption(meta models.MContractMeta, tick models.MRawTick,
	snap *models.MInstrumentSnapshot, now time.Time) *models.MInstrumentSnapshot {

	spot, ok := n.spots.Spot(meta.Underlying)
	if !ok || spot <= 0 {
		n.Logger.Debug("Dropping option tick %d (%s): no spot for %s",
			meta.Token, meta.TradingSymbol, meta.Underlying)
		return nil
	}
	snap.Spot = spot

	t := n.yearsToExpiry(meta.Expiry, now)
	if t <= 0 {
		n.Logger.Debug("Dropping expired option tick %d (%s)", meta.Token, meta.TradingSymbol)
		return nil
	}

	forward := spot * math.Exp(n.riskFreeRate*t)
	if tick.Forward != nil && *tick.Forward > 0 {
		forward = *tick.Forward
	}
	snap.Forward = forward

	price := n.inversionPrice(tick)
	if price <= 0 {
		return snap
	}

	iv := pricing.ImpliedVol(price, forward, meta.Strike, t, n.riskFreeRate, meta.Right, n.solver)
	if math.IsNaN(iv) || math.IsInf(iv, 0) || iv <= n.solver.MinVol {
		// Quote at or under the intrinsic floor: publish the quote, keep the
		// analytics fields empty rather than pinned at a meaningless bound.
		return snap
	}

	greeks := pricing.Greeks(forward, meta.Strike, t, n.riskFreeRate, iv, meta.Right)
	snap.IV = &iv
	snap.Greeks = &greeks
	return snap
}

// -----------------------------------------------------------------------------

// yearsToExpiry measures from now to the session close on expiry day, on a
// 365-day year.
func (n *Normalizer) yearsToExpiry(expiry time.Time, now time.Time) float64 {
	closeAt := time.Date(expiry.Year(), expiry.Month(), expiry.Day(),
		n.cutoffHour, n.cutoffMinute, 0, 0, n.loc)
	return closeAt.Sub(now).Hours() / 24 / pricing.DaysPerYear
}

// -----------------------------------------------------------------------------

// inversionPrice picks the quote the solver inverts: the bid/ask mid when both
// sides are live and the relative spread is tight, else the last traded price.
func (n *Normalizer) inversionPrice(tick models.MRawTick) float64 {
	if tick.BidPrice > 0 && tick.AskPrice > 0 {
		mid := 0.5 * (tick.BidPrice + tick.AskPrice)
		if mid > 0 && (tick.AskPrice-tick.BidPrice)/mid < n.spreadThreshold {
			return mid
		}
	}
	return tick.LastPrice
}

// -----------------------------------------------------------------------------

// NormalizeBatch processes one feed batch. A failure on one tick never takes
// down the rest of the batch.
func (n *Normalizer) NormalizeBatch(ticks []models.MRawTick, now time.Time) ([]models.MInstrumentSnapshot, models.MFeedMetrics) {
	start := time.Now()
	out := make([]models.MInstrumentSnapshot, 0, len(ticks))

	for _, tick := range ticks {
		snap := n.normalizeSafe(tick, now)
		if snap != nil {
			out = append(out, *snap)
		}
	}

	metrics := models.MFeedMetrics{
		NormalizeTimeSeconds: time.Since(start).Seconds(),
		TicksReceived:        len(ticks),
		TicksNormalized:      len(out),
		TicksDropped:         len(ticks) - len(out),
	}
	return out, metrics
}

// -----------------------------------------------------------------------------

func (n *Normalizer) normalizeSafe(tick models.MRawTick, now time.Time) (snap *models.MInstrumentSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			n.Logger.Error("Panic normalizing tick %d: %v", tick.Token, r)
			snap = nil
		}
	}()
	return n.Normalize(tick, now)
}
