package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"tworate/internal/model"
)

// SQLStore keeps versioned JSON payloads in a SQL database. The same queries
// serve sqlite and postgres; placeholders are rebound per driver.
type SQLStore struct {
	driver string
	dsn    string

	mu sync.RWMutex
	db *sqlx.DB
}

func NewSQLiteStore(path string) *SQLStore {
	return &SQLStore{driver: "sqlite", dsn: path}
}

func NewPostgresStore(dsn string) *SQLStore {
	return &SQLStore{driver: "postgres", dsn: dsn}
}

// NewSQLStoreFromDB wraps an open handle. Init still creates the tables.
func NewSQLStoreFromDB(db *sqlx.DB) *SQLStore {
	return &SQLStore{driver: db.DriverName(), db: db}
}

type runRow struct {
	ID      string `db:"id"`
	Payload []byte `db:"payload"`
}

func (s *SQLStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db := s.db
	if db == nil {
		if s.dsn == "" {
			return fmt.Errorf("%s store requires a database path or dsn", s.driver)
		}
		opened, err := sqlx.Open(s.driver, s.dsn)
		if err != nil {
			return err
		}
		if s.driver == "sqlite" {
			// one connection keeps ":memory:" databases shared and serialises writers
			opened.SetMaxOpenConns(1)
		}
		db = opened
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, db.Rebind(`
		INSERT INTO runs (id, created_at_utc, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created_at_utc = excluded.created_at_utc,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`), run.ID, run.CreatedAtUTC, run.SchemaVersion, run.CodecVersion, payload)
	return err
}

func (s *SQLStore) GetRun(ctx context.Context, id string) (model.RunRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.RunRecord{}, false, err
	}

	var payload []byte
	err = db.GetContext(ctx, &payload, db.Rebind(`SELECT payload FROM runs WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}

	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

// ListRuns returns every run, newest first.
func (s *SQLStore) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var rows []runRow
	if err := db.SelectContext(ctx, &rows, `SELECT id, payload FROM runs ORDER BY created_at_utc DESC, id ASC`); err != nil {
		return nil, err
	}
	out := make([]model.RunRecord, 0, len(rows))
	for _, row := range rows {
		run, err := DecodeRun(row.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode run %s: %w", row.ID, err)
		}
		out = append(out, run)
	}
	return out, nil
}

func (s *SQLStore) SaveHistory(ctx context.Context, runID string, history model.History) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeHistory(history)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, db.Rebind(`
		INSERT INTO histories (run_id, payload)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			payload = excluded.payload
	`), runID, payload)
	return err
}

func (s *SQLStore) GetHistory(ctx context.Context, runID string) (model.History, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.History{}, false, err
	}

	var payload []byte
	err = db.GetContext(ctx, &payload, db.Rebind(`SELECT payload FROM histories WHERE run_id = ?`), runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.History{}, false, nil
		}
		return model.History{}, false, err
	}

	history, err := DecodeHistory(payload)
	if err != nil {
		return model.History{}, false, fmt.Errorf("decode history %s: %w", runID, err)
	}
	return history, true, nil
}

func (s *SQLStore) SaveLagSample(ctx context.Context, runID string, sample model.LagSample) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeLagSample(sample)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, db.Rebind(`
		INSERT INTO lag_samples (run_id, lag_months, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, lag_months) DO UPDATE SET
			payload = excluded.payload
	`), runID, sample.LagMonths, payload)
	return err
}

func (s *SQLStore) GetLagSample(ctx context.Context, runID string, lagMonths int) (model.LagSample, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.LagSample{}, false, err
	}

	var payload []byte
	err = db.GetContext(ctx, &payload, db.Rebind(`SELECT payload FROM lag_samples WHERE run_id = ? AND lag_months = ?`), runID, lagMonths)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LagSample{}, false, nil
		}
		return model.LagSample{}, false, err
	}

	sample, err := DecodeLagSample(payload)
	if err != nil {
		return model.LagSample{}, false, fmt.Errorf("decode lag sample %s/%d: %w", runID, lagMonths, err)
	}
	return sample, true, nil
}

func (s *SQLStore) DeleteRun(ctx context.Context, runID string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range []string{
		`DELETE FROM lag_samples WHERE run_id = ?`,
		`DELETE FROM histories WHERE run_id = ?`,
		`DELETE FROM runs WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, tx.Rebind(stmt), runID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("delete run %s: %w", runID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLStore) getDB() (*sqlx.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sqlx.DB) error {
	blob := "BLOB"
	if db.DriverName() == "postgres" {
		blob = "BYTEA"
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at_utc TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload ` + blob + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS histories (
			run_id TEXT PRIMARY KEY,
			payload ` + blob + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS lag_samples (
			run_id TEXT NOT NULL,
			lag_months INTEGER NOT NULL,
			payload ` + blob + ` NOT NULL,
			PRIMARY KEY (run_id, lag_months)
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
