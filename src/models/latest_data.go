package models

// -----------------------------------------------------------------------------
// Server push envelope
// -----------------------------------------------------------------------------

type MLatestData struct {
	Type      string                         `json:"type"` // "INITIAL" or "UPDATE"
	Snapshots map[uint32]MInstrumentSnapshot `json:"snapshots"`
	Spots     map[string]float64             `json:"spots"`
	Timestamp int64                          `json:"timestamp"`
	Metrics   MFeedMetrics                   `json:"feed_metrics"`
}

// MFeedMetrics describes the last processed batch.
type MFeedMetrics struct {
	NormalizeTimeSeconds float64 `json:"normalize_time_seconds"`
	TicksReceived        int     `json:"ticks_received"`
	TicksNormalized      int     `json:"ticks_normalized"`
	TicksDropped         int     `json:"ticks_dropped"`
}

// -----------------------------------------------------------------------------
// SubscribeCommand for client messages
// -----------------------------------------------------------------------------

type MSubscribeCommand struct {
	Command    string   `json:"command"`
	Tokens     []uint32 `json:"tokens"`
	Underlying string   `json:"underlying"`
}
