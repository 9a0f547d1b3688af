package registry

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"option-observer/src/logger"
)

// -----------------------------------------------------------------------------
// Instrument master loading
// -----------------------------------------------------------------------------

const (
	masterFetchRetries   = 3
	masterFetchBaseDelay = 2 * time.Second
)

// LoadMaster reads the instrument master from a local file or an http(s)
// URL. Remote fetches are retried with exponential backoff; a dump published
// once per day does not deserve a crash on a transient network error.
func LoadMaster(pathOrURL string, log *logger.Logger) ([]MasterRow, error) {
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return fetchMaster(pathOrURL, log)
	}

	f, err := os.Open(pathOrURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open instrument master '%s': %w", pathOrURL, err)
	}
	defer f.Close()

	return ParseMasterCSV(f, log)
}

// -----------------------------------------------------------------------------

func fetchMaster(url string, log *logger.Logger) ([]MasterRow, error) {
	var lastErr error

	for attempt := 0; attempt < masterFetchRetries; attempt++ {
		resp, err := http.Get(url)
		if err == nil && resp.StatusCode == http.StatusOK {
			rows, parseErr := ParseMasterCSV(resp.Body, log)
			resp.Body.Close()
			return rows, parseErr
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("instrument master fetch returned HTTP %d", resp.StatusCode)
			resp.Body.Close()
		}

		if attempt < masterFetchRetries-1 {
			delay := masterFetchBaseDelay * (1 << attempt)
			log.Warning("Instrument master fetch attempt %d/%d failed: %v. Retrying in %v",
				attempt+1, masterFetchRetries, lastErr, delay)
			time.Sleep(delay)
		}
	}

	return nil, lastErr
}

// -----------------------------------------------------------------------------

// ParseMasterCSV parses the dump format:
// instrument_token,tradingsymbol,name,expiry,strike,tick_size,lot_size,instrument_type,segment
// Rows that fail to parse numerically are skipped with a debug log.
func ParseMasterCSV(r io.Reader, log *logger.Logger) ([]MasterRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read instrument master CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("instrument master is empty")
	}

	// Header row is optional in practice; detect it by the first column.
	start := 0
	if strings.EqualFold(records[0][0], "instrument_token") {
		start = 1
	}

	rows := make([]MasterRow, 0, len(records)-start)
	for i := start; i < len(records); i++ {
		rec := records[i]
		if len(rec) < 9 {
			log.Debug("Master CSV line %d: %d columns, want 9", i+1, len(rec))
			continue
		}

		token, err := strconv.ParseUint(rec[0], 10, 32)
		if err != nil {
			log.Debug("Master CSV line %d: bad token %q", i+1, rec[0])
			continue
		}
		strike, _ := strconv.ParseFloat(rec[4], 64)
		tickSize, _ := strconv.ParseFloat(rec[5], 64)
		lotSize, _ := strconv.Atoi(rec[6])

		rows = append(rows, MasterRow{
			Token:          uint32(token),
			TradingSymbol:  rec[1],
			Name:           rec[2],
			ExpiryStr:      rec[3],
			Strike:         strike,
			TickSize:       tickSize,
			LotSize:        lotSize,
			InstrumentType: rec[7],
			Segment:        rec[8],
		})
	}

	return rows, nil
}
