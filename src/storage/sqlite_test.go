package storage

import (
	"path/filepath"
	"testing"
	"time"

	"option-observer/src/logger"
	"option-observer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSQLiteDB(t *testing.T) *SQLiteDB {
	cfg := &models.MConfig{}
	cfg.Storage.DBType = "sqlite"
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "snapshots.db")

	db, err := NewSQLiteDB(cfg, logger.NewLogger("test"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })
	return db
}

func testRecords(bucket time.Time) []models.MHourlyRecord {
	vol := 0.18
	delta := 0.5
	return []models.MHourlyRecord{
		{
			Token: 1001, TradingSymbol: "NIFTY25JAN2420000CE", Underlying: "NIFTY",
			Bucket: bucket, LastPrice: 150.5, OpenInterest: 500_000, Volume: 1_200_000,
			Spot: 20000, Forward: 20054.2, IV: &vol, Delta: &delta,
			CreatedAt: bucket.Add(5 * time.Minute),
		},
		{
			Token: 256265, TradingSymbol: "NIFTY 50", Underlying: "NIFTY",
			Bucket: bucket, LastPrice: 20000, Spot: 20000,
			CreatedAt: bucket.Add(5 * time.Minute),
		},
	}
}

func TestSQLiteBulkInsert(t *testing.T) {
	db := testSQLiteDB(t)
	bucket := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)

	written, err := db.SaveHourlyRecordsBulk(testRecords(bucket))
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	var count int
	require.NoError(t, db.DB.QueryRow("SELECT COUNT(*) FROM hourly_snapshots").Scan(&count))
	assert.Equal(t, 2, count)

	var iv float64
	require.NoError(t, db.DB.QueryRow(
		"SELECT iv FROM hourly_snapshots WHERE token = 1001").Scan(&iv))
	assert.InDelta(t, 0.18, iv, 1e-12)
}

func TestSQLiteDuplicateBucketSkipped(t *testing.T) {
	db := testSQLiteDB(t)
	bucket := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)

	written, err := db.SaveHourlyRecordsBulk(testRecords(bucket))
	require.NoError(t, err)
	require.Equal(t, 2, written)

	// A retried bucket writes nothing and returns no error.
	written, err = db.SaveHourlyRecordsBulk(testRecords(bucket))
	require.NoError(t, err)
	assert.Zero(t, written)

	// The next hour is fresh.
	written, err = db.SaveHourlyRecordsBulk(testRecords(bucket.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, 2, written)
}

func TestSQLiteInitializeIsIdempotent(t *testing.T) {
	db := testSQLiteDB(t)
	bucket := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)

	_, err := db.SaveHourlyRecordsBulk(testRecords(bucket))
	require.NoError(t, err)

	// Re-running schema setup must not wipe existing rows.
	require.NoError(t, db.Initialize())

	var count int
	require.NoError(t, db.DB.QueryRow("SELECT COUNT(*) FROM hourly_snapshots").Scan(&count))
	assert.Equal(t, 2, count)
}
