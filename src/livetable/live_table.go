package livetable

import (
	"sync"

	"option-observer/src/models"
)

// -----------------------------------------------------------------------------
// LiveTable is the shared mutable map of latest instrument state, keyed by
// token, plus the latest spot price per underlying. Writes are last-write-wins
// from the ingestion path; readers take point-in-time copies so projection and
// aggregation never hold the write lock across their own work.
// -----------------------------------------------------------------------------

type LiveTable struct {
	mu    sync.RWMutex
	snaps map[uint32]models.MInstrumentSnapshot
	spots map[string]float64
}

// -----------------------------------------------------------------------------

func NewLiveTable() *LiveTable {
	return &LiveTable{
		snaps: make(map[uint32]models.MInstrumentSnapshot),
		spots: make(map[string]float64),
	}
}

// -----------------------------------------------------------------------------

// Upsert overwrites the snapshot for its token. Spot-bearing instruments
// (indices, stocks) also refresh the underlying spot table.
func (lt *LiveTable) Upsert(snap models.MInstrumentSnapshot) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	lt.snaps[snap.Token] = snap

	switch snap.Class {
	case models.ClassSpotIndex, models.ClassStock:
		if snap.LastPrice > 0 {
			lt.spots[snap.Underlying] = snap.LastPrice
		}
	}
}

// -----------------------------------------------------------------------------

// Lookup returns the latest snapshot for a token.
func (lt *LiveTable) Lookup(token uint32) (models.MInstrumentSnapshot, bool) {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	snap, ok := lt.snaps[token]
	return snap, ok
}

// -----------------------------------------------------------------------------

// Spot returns the latest spot or reference price for an underlying.
func (lt *LiveTable) Spot(underlying string) (float64, bool) {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	px, ok := lt.spots[underlying]
	return px, ok
}

// -----------------------------------------------------------------------------

// All returns a point-in-time copy of every snapshot.
func (lt *LiveTable) All() []models.MInstrumentSnapshot {
	lt.mu.RLock()
	defer lt.mu.RUnlock()

	out := make([]models.MInstrumentSnapshot, 0, len(lt.snaps))
	for _, snap := range lt.snaps {
		out = append(out, snap)
	}
	return out
}

// -----------------------------------------------------------------------------

// SnapshotCopy returns a point-in-time copy of the whole table.
func (lt *LiveTable) SnapshotCopy() map[uint32]models.MInstrumentSnapshot {
	lt.mu.RLock()
	defer lt.mu.RUnlock()

	out := make(map[uint32]models.MInstrumentSnapshot, len(lt.snaps))
	for token, snap := range lt.snaps {
		out[token] = snap
	}
	return out
}

// -----------------------------------------------------------------------------

// SpotsCopy returns a point-in-time copy of the spot table.
func (lt *LiveTable) SpotsCopy() map[string]float64 {
	lt.mu.RLock()
	defer lt.mu.RUnlock()

	out := make(map[string]float64, len(lt.spots))
	for sym, px := range lt.spots {
		out[sym] = px
	}
	return out
}

// -----------------------------------------------------------------------------

// Len returns the number of tracked instruments.
func (lt *LiveTable) Len() int {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	return len(lt.snaps)
}
