package registry

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"option-observer/src/logger"
	"option-observer/src/models"
)

// -----------------------------------------------------------------------------

// MasterRow is one record of the exchange instrument master, as delivered by
// the reference dataset dump. Fields mirror the dump columns; parsing and
// filtering happen in Build.
type MasterRow struct {
	Token          uint32
	TradingSymbol  string
	Name           string
	InstrumentType string // CE, PE, FUT, EQ, or an index marker
	Segment        string // e.g. NFO-OPT, NFO-FUT, INDICES, NSE
	Strike         float64
	ExpiryStr      string // e.g. "2024-01-25"; may be empty
	LotSize        int
	TickSize       float64
}

// -----------------------------------------------------------------------------

// Registry maps instrument tokens to static contract metadata, with
// convenience lookups for expiries, strikes and rights. Built once at
// startup; read-only afterwards.
type Registry struct {
	byToken    map[uint32]models.MContractMeta
	expiries   map[string][]time.Time
	chains     map[string]map[time.Time]map[float64][]models.OptionRight
	spotTokens map[string]uint32
	Logger     *logger.Logger
}

// -----------------------------------------------------------------------------

// Symbol-encoded expiry token: 2-digit day, 3-letter month, 4-digit year.
var symbolExpiryRe = regexp.MustCompile(`(\d{2})(JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)(\d{4})`)

// Index display names in the master mapped to the underlying symbol used by
// derivative contracts.
var indexNames = map[string]string{
	"NIFTY 50":      "NIFTY",
	"NIFTY BANK":    "BANKNIFTY",
	"NIFTY FIN SERVICE": "FINNIFTY",
	"NIFTY MID SELECT":  "MIDCPNIFTY",
}

// -----------------------------------------------------------------------------

// NewRegistry creates an empty registry. An empty registry is a valid
// degraded mode: lookups simply miss and the ticks get dropped.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		byToken:    make(map[uint32]models.MContractMeta),
		expiries:   make(map[string][]time.Time),
		chains:     make(map[string]map[time.Time]map[float64][]models.OptionRight),
		spotTokens: make(map[string]uint32),
		Logger:     log,
	}
}

// -----------------------------------------------------------------------------

// Build filters the master rows to the configured underlyings and segments
// and constructs the lookup tables. Malformed rows are skipped, not fatal.
func Build(rows []MasterRow, cfg models.MRegistryConfig, log *logger.Logger) *Registry {
	r := NewRegistry(log)

	wanted := make(map[string]bool, len(cfg.Underlyings))
	for _, u := range cfg.Underlyings {
		wanted[strings.ToUpper(u)] = true
	}
	segments := make(map[string]bool, len(cfg.Segments))
	for _, s := range cfg.Segments {
		segments[strings.ToUpper(s)] = true
	}

	skipped := 0
	for _, row := range rows {
		meta, err := parseRow(row)
		if err != nil {
			skipped++
			log.Debug("Skipping master row %d (%s): %v", row.Token, row.TradingSymbol, err)
			continue
		}

		if len(segments) > 0 && !segments[strings.ToUpper(row.Segment)] {
			continue
		}
		if len(wanted) > 0 && !wanted[meta.Underlying] {
			continue
		}

		r.add(meta)
	}

	if skipped > 0 {
		log.Warning("Instrument master: skipped %d malformed rows", skipped)
	}
	log.Info("Instrument registry built: %d contracts, %d underlyings",
		len(r.byToken), len(r.expiries))

	r.sortLookups()
	return r
}

// -----------------------------------------------------------------------------

// parseRow derives a ContractMeta from one master row.
func parseRow(row MasterRow) (models.MContractMeta, error) {
	meta := models.MContractMeta{
		Token:         row.Token,
		TradingSymbol: row.TradingSymbol,
		LotSize:       row.LotSize,
		TickSize:      row.TickSize,
		Segment:       row.Segment,
	}

	if row.Token == 0 || row.TradingSymbol == "" {
		return meta, fmt.Errorf("missing token or symbol")
	}

	switch strings.ToUpper(row.InstrumentType) {
	case "CE":
		meta.Class = models.ClassOption
		meta.Right = models.RightCall
	case "PE":
		meta.Class = models.ClassOption
		meta.Right = models.RightPut
	case "FUT":
		meta.Class = models.ClassFuture
	case "EQ":
		meta.Class = models.ClassStock
	default:
		if strings.EqualFold(row.Segment, "INDICES") {
			meta.Class = models.ClassSpotIndex
		} else {
			return meta, fmt.Errorf("unknown instrument type %q", row.InstrumentType)
		}
	}

	// Underlying: the master's name column for derivatives, mapped display
	// name for indices, trading symbol itself for stocks.
	switch meta.Class {
	case models.ClassSpotIndex:
		if mapped, ok := indexNames[strings.ToUpper(row.Name)]; ok {
			meta.Underlying = mapped
		} else {
			meta.Underlying = strings.ToUpper(row.Name)
		}
	case models.ClassStock:
		meta.Underlying = strings.ToUpper(row.TradingSymbol)
	default:
		meta.Underlying = strings.ToUpper(row.Name)
		if meta.Underlying == "" {
			return meta, fmt.Errorf("derivative without underlying name")
		}
	}

	if meta.HasExpiry() {
		expiry, err := parseExpiry(row)
		if err != nil {
			return meta, err
		}
		meta.Expiry = expiry
		meta.ExpiryClass = ClassifyExpiry(expiry)
	}

	if meta.Class == models.ClassOption {
		strike := row.Strike
		if strike <= 0 {
			var err error
			strike, err = strikeFromSymbol(row.TradingSymbol)
			if err != nil {
				return meta, err
			}
		}
		meta.Strike = strike
	}

	if meta.HasExpiry() && meta.LotSize <= 0 {
		return meta, fmt.Errorf("derivative without lot size")
	}

	return meta, nil
}

// -----------------------------------------------------------------------------

// parseExpiry prefers the explicit expiry column, then falls back to the
// fixed-width date token embedded in the trading symbol.
func parseExpiry(row MasterRow) (time.Time, error) {
	if row.ExpiryStr != "" {
		if ts, err := time.Parse("2006-01-02", row.ExpiryStr); err == nil {
			return ts, nil
		}
	}

	m := symbolExpiryRe.FindStringSubmatch(strings.ToUpper(row.TradingSymbol))
	if m == nil {
		return time.Time{}, fmt.Errorf("no expiry in row or symbol %q", row.TradingSymbol)
	}
	month := m[2][:1] + strings.ToLower(m[2][1:])
	ts, err := time.Parse("02Jan2006", m[1]+month+m[3])
	if err != nil {
		return time.Time{}, fmt.Errorf("bad symbol expiry token %q: %w", m[0], err)
	}
	return ts, nil
}

// -----------------------------------------------------------------------------

// strikeFromSymbol reads the strike digits between the expiry token and the
// trailing right marker, e.g. BANKNIFTY25JAN202446000CE -> 46000.
func strikeFromSymbol(symbol string) (float64, error) {
	up := strings.ToUpper(symbol)
	if !strings.HasSuffix(up, "CE") && !strings.HasSuffix(up, "PE") {
		return 0, fmt.Errorf("symbol %q has no right suffix", symbol)
	}
	body := up[:len(up)-2]

	loc := symbolExpiryRe.FindStringIndex(body)
	if loc == nil {
		return 0, fmt.Errorf("symbol %q has no expiry token", symbol)
	}
	digits := body[loc[1]:]
	strike, err := strconv.ParseFloat(digits, 64)
	if err != nil || strike <= 0 {
		return 0, fmt.Errorf("symbol %q has no parsable strike", symbol)
	}
	return strike, nil
}

// -----------------------------------------------------------------------------

// ClassifyExpiry applies the day-of-month heuristic: contracts expiring after
// the 25th are the monthly series, everything else is a weekly.
func ClassifyExpiry(expiry time.Time) models.ExpiryClass {
	if expiry.Day() > 25 {
		return models.ExpiryMonthly
	}
	return models.ExpiryWeekly
}

// -----------------------------------------------------------------------------

func (r *Registry) add(meta models.MContractMeta) {
	r.byToken[meta.Token] = meta

	switch meta.Class {
	case models.ClassSpotIndex, models.ClassStock:
		r.spotTokens[meta.Underlying] = meta.Token
		return
	}

	if r.chains[meta.Underlying] == nil {
		r.chains[meta.Underlying] = make(map[time.Time]map[float64][]models.OptionRight)
	}
	byExpiry := r.chains[meta.Underlying]
	if byExpiry[meta.Expiry] == nil {
		byExpiry[meta.Expiry] = make(map[float64][]models.OptionRight)
		r.expiries[meta.Underlying] = append(r.expiries[meta.Underlying], meta.Expiry)
	}
	if meta.Class == models.ClassOption {
		byExpiry[meta.Expiry][meta.Strike] = append(byExpiry[meta.Expiry][meta.Strike], meta.Right)
	}
}

// -----------------------------------------------------------------------------

func (r *Registry) sortLookups() {
	for u := range r.expiries {
		sort.Slice(r.expiries[u], func(i, j int) bool {
			return r.expiries[u][i].Before(r.expiries[u][j])
		})
	}
}

// -----------------------------------------------------------------------------
// Lookups
// -----------------------------------------------------------------------------

// Get returns the contract metadata for a token.
func (r *Registry) Get(token uint32) (models.MContractMeta, bool) {
	meta, ok := r.byToken[token]
	return meta, ok
}

// -----------------------------------------------------------------------------

// Len returns the number of registered contracts.
func (r *Registry) Len() int {
	return len(r.byToken)
}

// -----------------------------------------------------------------------------

// Tokens returns every registered token, sorted for deterministic subscribes.
func (r *Registry) Tokens() []uint32 {
	tokens := make([]uint32, 0, len(r.byToken))
	for t := range r.byToken {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	return tokens
}

// -----------------------------------------------------------------------------

// Expiries returns the available expiries for an underlying, ascending.
func (r *Registry) Expiries(underlying string) []time.Time {
	return r.expiries[strings.ToUpper(underlying)]
}

// -----------------------------------------------------------------------------

// Strikes returns the available strikes for one (underlying, expiry),
// ascending.
func (r *Registry) Strikes(underlying string, expiry time.Time) []float64 {
	byExpiry := r.chains[strings.ToUpper(underlying)]
	if byExpiry == nil {
		return nil
	}
	chain := byExpiry[expiry]
	strikes := make([]float64, 0, len(chain))
	for s := range chain {
		strikes = append(strikes, s)
	}
	sort.Float64s(strikes)
	return strikes
}

// -----------------------------------------------------------------------------

// Rights returns the rights listed for one (underlying, expiry, strike).
func (r *Registry) Rights(underlying string, expiry time.Time, strike float64) []models.OptionRight {
	byExpiry := r.chains[strings.ToUpper(underlying)]
	if byExpiry == nil {
		return nil
	}
	return byExpiry[expiry][strike]
}

// -----------------------------------------------------------------------------

// SpotToken returns the token of the underlying's spot index or stock.
func (r *Registry) SpotToken(underlying string) (uint32, bool) {
	t, ok := r.spotTokens[strings.ToUpper(underlying)]
	return t, ok
}
