package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"github.com/axsanchezgomez/BandersnatchStarter/table"
)

const sqliteSchema = `
    CREATE TABLE IF NOT EXISTS records (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        collection TEXT NOT NULL,
        doc TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection, id);
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL,
        collection TEXT NOT NULL,
        model_name VARCHAR(50),
        accuracy REAL,
        trained_at DATETIME,
        data_points INTEGER
    );
    `

// SQLiteStore keeps monster documents as JSON rows in a sqlite file.
type SQLiteStore struct {
	db         *sql.DB
	collection string
	order      []string
}

// OpenSQLite opens (creating if needed) the database file at cfg.Path.
func OpenSQLite(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("db: sqlite path required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("db: create %s: %w", dir, err)
		}
	}
	database, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if _, err := database.ExecContext(ctx, sqliteSchema); err != nil {
		database.Close()
		return nil, fmt.Errorf("db: init schema: %w", err)
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	return &SQLiteStore{db: database, collection: collection, order: cfg.ColumnOrder}, nil
}

// InsertMany writes records in a single transaction.
func (s *SQLiteStore) InsertMany(ctx context.Context, records []Record) (bool, error) {
	if len(records) == 0 {
		return true, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (collection, doc) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return false, err
	}
	defer stmt.Close()

	for i, rec := range records {
		doc, err := json.Marshal(rec)
		if err != nil {
			tx.Rollback()
			return false, fmt.Errorf("db: encode record %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, s.collection, string(doc)); err != nil {
			tx.Rollback()
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteAll removes the collection's rows.
func (s *SQLiteStore) DeleteAll(ctx context.Context) (bool, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, s.collection); err != nil {
		return false, err
	}
	return true, nil
}

// Count returns the number of rows in the collection.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE collection = ?`, s.collection).Scan(&n)
	return n, err
}

// ScanAll loads the collection in insertion order.
func (s *SQLiteStore) ScanAll(ctx context.Context) (*table.Table, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT doc FROM records
        WHERE collection = ?
        ORDER BY id`, s.collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, fmt.Errorf("db: decode record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recordsToTable(records, s.order)
}

func (s *SQLiteStore) SaveTrainingLog(ctx context.Context, log TrainingLog) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (run_id, collection, model_name, accuracy, trained_at, data_points)
        VALUES (?, ?, ?, ?, ?, ?)`,
		log.RunID, s.collection, log.ModelName, log.Accuracy, log.TrainedAt.UTC(), log.DataPoints)
	return err
}

// LoadTrainingLogs returns the collection's runs, newest first.
func (s *SQLiteStore) LoadTrainingLogs(ctx context.Context) ([]TrainingLog, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT run_id, model_name, accuracy, trained_at, data_points
        FROM training_log
        WHERE collection = ?
        ORDER BY trained_at DESC, id DESC`, s.collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		var trainedAt time.Time
		if err := rows.Scan(&log.RunID, &log.ModelName, &log.Accuracy, &trainedAt, &log.DataPoints); err != nil {
			return nil, err
		}
		log.TrainedAt = trainedAt.Local()
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}
