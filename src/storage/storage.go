package storage

import (
	"fmt"
	"strings"

	"option-observer/src/interfaces"
	"option-observer/src/logger"
	"option-observer/src/models"
)

// NewSnapshotStore builds the configured persistence sink.
func NewSnapshotStore(cfg *models.MConfig, log *logger.Logger) (interfaces.ISnapshotStore, error) {
	switch strings.ToLower(cfg.Storage.DBType) {
	case "postgres":
		return NewPostgresDB(cfg, log)
	case "sqlite", "":
		return NewSQLiteDB(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage db_type %q", cfg.Storage.DBType)
	}
}
