package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"featurestream/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:featurestream.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			total_txn_30d INTEGER NOT NULL,
			total_amount_30d REAL NOT NULL,
			avg_amount_30d REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_customer ON snapshots(customer_id)`,
		`CREATE TABLE IF NOT EXISTS customer_state (
			customer_id TEXT PRIMARY KEY,
			daily_sums_json TEXT NOT NULL,
			features_json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveSnapshot(ctx context.Context, customerID string, snap model.FeatureSnapshot) error {
	if s.db == nil || customerID == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (ts, customer_id, total_txn_30d, total_amount_30d, avg_amount_30d)
		VALUES (?, ?, ?, ?, ?)`,
		nowUTC(),
		customerID,
		snap.TotalTxn30d,
		snap.TotalAmount30d,
		snap.AvgAmount30d,
	)
	return err
}

func (s *sqliteStore) SaveState(ctx context.Context, state map[string]model.CustomerExport) error {
	if s.db == nil || len(state) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO customer_state (customer_id, daily_sums_json, features_json, updated_at)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for customerID, export := range state {
		if _, err := stmt.ExecContext(ctx,
			customerID,
			encodeJSON(export.DailySums),
			encodeJSON(export.Features),
			nowUTC(),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
