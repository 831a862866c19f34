// Package db persists monster records and training runs.
//
// Two backends implement Store: SQLite (the default, a single local file)
// and MongoDB. Every operation is scoped to one collection.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/axsanchezgomez/BandersnatchStarter/table"
)

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"

	DefaultDatabase   = "MonstersDB"
	DefaultCollection = "Random Monsters"

	// MaxSeedAmount caps a single seeding batch.
	MaxSeedAmount = 100000
)

// ErrUnknownDriver is returned by Open for an unsupported Config.Driver.
var ErrUnknownDriver = errors.New("db: unknown driver")

type Record = table.Record

// Config selects and addresses a backend.
type Config struct {
	Driver     string `yaml:"driver"`
	URL        string `yaml:"url"`
	Path       string `yaml:"path"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	// ColumnOrder fixes the leading columns of ScanAll results. Stored
	// documents do not keep their key order.
	ColumnOrder []string `yaml:"column_order"`
}

// DefaultConfig stores monsters in a local sqlite file.
func DefaultConfig() Config {
	return Config{
		Driver:     DriverSQLite,
		Path:       "data/monsters.db",
		Database:   DefaultDatabase,
		Collection: DefaultCollection,
	}
}

// TrainingLog records one completed training run.
type TrainingLog struct {
	RunID      string    `json:"run_id" bson:"run_id"`
	ModelName  string    `json:"model_name" bson:"model_name"`
	Accuracy   float64   `json:"accuracy" bson:"accuracy"`
	TrainedAt  time.Time `json:"trained_at" bson:"trained_at"`
	DataPoints int       `json:"data_points" bson:"data_points"`
}

// Store is a handle on one record collection.
type Store interface {
	// InsertMany reports whether the backend acknowledged the write.
	InsertMany(ctx context.Context, records []Record) (bool, error)
	DeleteAll(ctx context.Context) (bool, error)
	Count(ctx context.Context) (int64, error)
	// ScanAll returns every record in insertion order without the internal
	// id. An empty collection yields an empty table with an empty schema.
	ScanAll(ctx context.Context) (*table.Table, error)
	SaveTrainingLog(ctx context.Context, log TrainingLog) error
	// LoadTrainingLogs returns the newest run first.
	LoadTrainingLogs(ctx context.Context) ([]TrainingLog, error)
	Close(ctx context.Context) error
}

// Open connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	switch cfg.Driver {
	case "", DriverSQLite:
		return OpenSQLite(ctx, cfg)
	case DriverMongo:
		return OpenMongo(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// Generator produces one record per call.
type Generator interface {
	GenerateOne() Record
}

// Seed generates amount records and inserts them in one batch.
func Seed(ctx context.Context, store Store, gen Generator, amount int) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("db: seed amount must be positive, got %d", amount)
	}
	records := make([]Record, amount)
	for i := range records {
		records[i] = gen.GenerateOne()
	}
	return store.InsertMany(ctx, records)
}

// HTMLTable renders the whole collection as an HTML table.
func HTMLTable(ctx context.Context, store Store) (string, error) {
	t, err := store.ScanAll(ctx)
	if err != nil {
		return "", err
	}
	return t.HTML(), nil
}

func recordsToTable(records []Record, order []string) (*table.Table, error) {
	t, err := table.FromRecords(records, order...)
	if err != nil {
		return nil, fmt.Errorf("db: build table: %w", err)
	}
	return t, nil
}
