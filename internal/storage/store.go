package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"featurestream/internal/config"
	"featurestream/internal/model"
)

// Store is the durable sink for engine state. The engine serializes its
// internal maps into it on demand; the engine itself owns no encoding.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	// SaveSnapshot appends the feature snapshot computed for one event.
	SaveSnapshot(ctx context.Context, customerID string, snap model.FeatureSnapshot) error
	// SaveState upserts the full per-customer export.
	SaveState(ctx context.Context, state map[string]model.CustomerExport) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
