package aggregator

import (
	"context"
	"sync"
	"time"

	"option-observer/src/interfaces"
	"option-observer/src/logger"
	"option-observer/src/models"
)

// -----------------------------------------------------------------------------
// Aggregator keeps its own "latest state per instrument" map, fed by the
// ingestion loop, and persists one hour-bucketed record per instrument on a
// ticker-driven schedule. The schedule is an explicit ticker with a cancel,
// so Start/Stop are first-class operations.
// -----------------------------------------------------------------------------

type Aggregator struct {
	store  interfaces.ISnapshotStore
	window *TradingWindow
	Logger *logger.Logger

	mu     sync.Mutex
	latest map[uint32]models.MInstrumentSnapshot

	// De-dup guard: the last (day, hour) bucket a write was attempted for.
	lastFlushDay  string
	lastFlushHour int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// -----------------------------------------------------------------------------

func NewAggregator(store interfaces.ISnapshotStore, window *TradingWindow, log *logger.Logger) *Aggregator {
	return &Aggregator{
		store:         store,
		window:        window,
		Logger:        log,
		latest:        make(map[uint32]models.MInstrumentSnapshot),
		lastFlushHour: -1,
	}
}

// -----------------------------------------------------------------------------

// RecordLatest overwrites the in-memory latest entry for the snapshot's
// token. Called once per normalized tick.
func (a *Aggregator) RecordLatest(snap models.MInstrumentSnapshot) {
	a.mu.Lock()
	a.latest[snap.Token] = snap
	a.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Start launches the schedule. Each minute it checks whether the current
// hour bucket still needs a write inside the trading window.
func (a *Aggregator) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		a.Logger.Info("Snapshot aggregator schedule started")
		for {
			select {
			case <-ctx.Done():
				a.Logger.Info("Snapshot aggregator schedule stopped")
				return
			case now := <-ticker.C:
				if !a.window.InWindow(now) {
					continue
				}
				if _, err := a.flush(now); err != nil {
					a.Logger.Error("Hourly snapshot flush failed: %v", err)
				}
			}
		}
	}()
}

// -----------------------------------------------------------------------------

// ForceFlush triggers a flush for the current hour bucket regardless of the
// trading window. The bucket de-dup guard still applies.
func (a *Aggregator) ForceFlush() (int, error) {
	return a.flush(time.Now())
}

// -----------------------------------------------------------------------------

// Stop cancels the schedule and waits for the loop to exit.
func (a *Aggregator) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

// -----------------------------------------------------------------------------

// flush persists one record per instrument for now's hour bucket. A repeated
// call within the same (day, hour) is a no-op.
func (a *Aggregator) flush(now time.Time) (int, error) {
	day := now.In(a.window.Timezone).Format("2006-01-02")
	hour := now.In(a.window.Timezone).Hour()

	a.mu.Lock()
	if day == a.lastFlushDay && hour == a.lastFlushHour {
		a.mu.Unlock()
		return 0, nil
	}
	a.lastFlushDay = day
	a.lastFlushHour = hour

	snaps := make([]models.MInstrumentSnapshot, 0, len(a.latest))
	for _, snap := range a.latest {
		snaps = append(snaps, snap)
	}
	a.mu.Unlock()

	if len(snaps) == 0 {
		return 0, nil
	}

	bucket := now.UTC().Truncate(time.Hour)
	records := make([]models.MHourlyRecord, 0, len(snaps))
	for _, snap := range snaps {
		records = append(records, toHourlyRecord(snap, bucket, now))
	}

	written, err := a.store.SaveHourlyRecordsBulk(records)
	if err != nil {
		return written, err
	}
	if written < len(records) {
		a.Logger.Warning("Hourly flush for bucket %s: %d/%d records written (duplicates skipped)",
			bucket.Format(time.RFC3339), written, len(records))
	} else {
		a.Logger.Info("Hourly flush for bucket %s: %d records written",
			bucket.Format(time.RFC3339), written)
	}
	return written, nil
}

// -----------------------------------------------------------------------------

func toHourlyRecord(snap models.MInstrumentSnapshot, bucket, now time.Time) models.MHourlyRecord {
	rec := models.MHourlyRecord{
		Token:         snap.Token,
		TradingSymbol: snap.TradingSymbol,
		Underlying:    snap.Underlying,
		Bucket:        bucket,
		LastPrice:     snap.LastPrice,
		OpenInterest:  snap.OpenInterest,
		Volume:        snap.Volume,
		Spot:          snap.Spot,
		Forward:       snap.Forward,
		IV:            snap.IV,
		CreatedAt:     now.UTC(),
	}
	if snap.Greeks != nil {
		rec.Delta = &snap.Greeks.Delta
		rec.Gamma = &snap.Greeks.Gamma
		rec.Theta = &snap.Greeks.Theta
		rec.Vega = &snap.Greeks.Vega
	}
	return rec
}
