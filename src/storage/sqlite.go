package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"option-observer/src/logger"
	"option-observer/src/models"
)

// -----------------------------------------------------------------------------

type SQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*SQLiteDB, error) {
	if cfg.Storage.DBPath == "" {
		return nil, fmt.Errorf("sqlite storage requires db_path")
	}
	return &SQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Initialize() error {
	db, err := sql.Open("sqlite", d.Config.Storage.DBPath)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	// SQLite types: INTEGER for int64, REAL for float64, TEXT for string.
	// Bucket is stored as unix seconds. Append-only: create, never drop.
	query := `
		CREATE TABLE IF NOT EXISTS hourly_snapshots (
			token INTEGER NOT NULL,
			bucket INTEGER NOT NULL,
			trading_symbol TEXT,
			underlying TEXT,
			last_price REAL,
			open_interest INTEGER,
			volume INTEGER,
			spot REAL,
			forward REAL,
			iv REAL,
			delta REAL,
			gamma REAL,
			theta REAL,
			vega REAL,
			created_at INTEGER,
			PRIMARY KEY (token, bucket)
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create hourly_snapshots: %w", err)
	}

	d.Logger.Info("SQLiteDB initialized successfully (%s)", d.Config.Storage.DBPath)
	return nil
}

// -----------------------------------------------------------------------------

// SaveHourlyRecordsBulk inserts the batch row by row; duplicate
// (token, bucket) rows are skipped by INSERT OR IGNORE and a row-level
// failure never aborts the batch.
func (d *SQLiteDB) SaveHourlyRecordsBulk(records []models.MHourlyRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := `
		INSERT OR IGNORE INTO hourly_snapshots (
			token, bucket, trading_symbol, underlying,
			last_price, open_interest, volume, spot, forward,
			iv, delta, gamma, theta, vega, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	stmt, err := d.DB.Prepare(query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	written := 0
	for _, r := range records {
		res, err := stmt.Exec(
			int64(r.Token), r.Bucket.Unix(), r.TradingSymbol, r.Underlying,
			r.LastPrice, r.OpenInterest, r.Volume, r.Spot, r.Forward,
			r.IV, r.Delta, r.Gamma, r.Theta, r.Vega, r.CreatedAt.Unix(),
		)
		if err != nil {
			d.Logger.Error("SQLiteDB: failed to insert record (token=%d, bucket=%s): %v",
				r.Token, r.Bucket, err)
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			written++
		}
	}

	return written, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
