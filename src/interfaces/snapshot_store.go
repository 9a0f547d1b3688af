package interfaces

import "option-observer/src/models"

// -----------------------------------------------------------------------------
// ISnapshotStore defines the contract for the hour-bucketed persistence sink.
// -----------------------------------------------------------------------------

type ISnapshotStore interface {

	// Initialize sets up the schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveHourlyRecordsBulk inserts a batch of hour-bucketed records.
	// Duplicate (token, bucket) rows must be skipped, not treated as failures;
	// the returned count is the number of rows actually written.
	SaveHourlyRecordsBulk(records []models.MHourlyRecord) (int, error)

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
