package interfaces

import "option-observer/src/models"

// -----------------------------------------------------------------------------
// IDataExchanger defining the interface for sharing data with external systems
// (Server/Push).
// -----------------------------------------------------------------------------

type IDataExchanger interface {

	// Broadcast pushes a batch of normalized snapshots to external listeners.
	Broadcast(payload *models.MLatestData)

	// -----------------------------------------------------------------------------

	// UpdateAllDatas merges a batch into the internal state without broadcasting.
	UpdateAllDatas(payload *models.MLatestData)

	// -----------------------------------------------------------------------------

	// Start the server
	Start() error

	// -----------------------------------------------------------------------------

	// Stop the server gracefully
	Stop() error
}
