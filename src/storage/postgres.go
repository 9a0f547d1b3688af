package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"option-observer/src/logger"
	"option-observer/src/models"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	if cfg.Storage.DBConnectionString == "" {
		return nil, fmt.Errorf("postgres storage requires db_connection_string")
	}
	return &PostgresDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	db, err := sql.Open("postgres", d.Config.Storage.DBConnectionString)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// The snapshot history is append-only: create, never drop.
	query := `
		CREATE TABLE IF NOT EXISTS hourly_snapshots (
			token BIGINT NOT NULL,
			bucket TIMESTAMPTZ NOT NULL,
			trading_symbol TEXT,
			underlying TEXT,
			last_price DOUBLE PRECISION,
			open_interest BIGINT,
			volume BIGINT,
			spot DOUBLE PRECISION,
			forward DOUBLE PRECISION,
			iv DOUBLE PRECISION,
			delta DOUBLE PRECISION,
			gamma DOUBLE PRECISION,
			theta DOUBLE PRECISION,
			vega DOUBLE PRECISION,
			created_at TIMESTAMPTZ,
			PRIMARY KEY (token, bucket)
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create hourly_snapshots: %w", err)
	}

	d.Logger.Info("PostgresDB initialized successfully")
	return nil
}

// -----------------------------------------------------------------------------

// SaveHourlyRecordsBulk inserts the batch row by row, outside a transaction,
// so one rejected record never takes down the rest. Duplicate (token, bucket)
// rows are silently skipped by the conflict clause.
func (d *PostgresDB) SaveHourlyRecordsBulk(records []models.MHourlyRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO hourly_snapshots (
			token, bucket, trading_symbol, underlying,
			last_price, open_interest, volume, spot, forward,
			iv, delta, gamma, theta, vega, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (token, bucket) DO NOTHING
	`
	stmt, err := d.DB.Prepare(query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	written := 0
	for _, r := range records {
		res, err := stmt.Exec(
			int64(r.Token), r.Bucket, r.TradingSymbol, r.Underlying,
			r.LastPrice, r.OpenInterest, r.Volume, r.Spot, r.Forward,
			r.IV, r.Delta, r.Gamma, r.Theta, r.Vega, r.CreatedAt,
		)
		if err != nil {
			d.Logger.Error("PostgresDB: failed to insert record (token=%d, bucket=%s): %v",
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

func (d *PostgresDB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
