package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"featurestream/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/featurestream?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			customer_id TEXT NOT NULL,
			total_txn_30d INTEGER NOT NULL,
			total_amount_30d DOUBLE PRECISION NOT NULL,
			avg_amount_30d DOUBLE PRECISION NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_customer ON snapshots(customer_id)`,
		`CREATE TABLE IF NOT EXISTS customer_state (
			customer_id TEXT PRIMARY KEY,
			daily_sums_json JSONB NOT NULL,
			features_json JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SaveSnapshot(ctx context.Context, customerID string, snap model.FeatureSnapshot) error {
	if s.db == nil || customerID == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (ts, customer_id, total_txn_30d, total_amount_30d, avg_amount_30d)
		VALUES ($1, $2, $3, $4, $5)`,
		nowUTC(),
		customerID,
		snap.TotalTxn30d,
		snap.TotalAmount30d,
		snap.AvgAmount30d,
	)
	return err
}

func (s *postgresStore) SaveState(ctx context.Context, state map[string]model.CustomerExport) error {
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
		`INSERT INTO customer_state (customer_id, daily_sums_json, features_json, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (customer_id) DO UPDATE SET
			daily_sums_json = EXCLUDED.daily_sums_json,
			features_json = EXCLUDED.features_json,
			updated_at = EXCLUDED.updated_at`)
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
