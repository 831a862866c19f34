// Package pipeline runs the offline steps shared by the server and the
// train_model command: seeding the store and training a model from it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/axsanchezgomez/BandersnatchStarter/db"
	"github.com/axsanchezgomez/BandersnatchStarter/logging"
	"github.com/axsanchezgomez/BandersnatchStarter/ml"
)

// TrainingConfig describes one training run.
type TrainingConfig struct {
	// RunID labels the run in logs and the training log. Empty means a new
	// uuid is generated.
	RunID     string
	ModelPath string
	Target    string
	// Features restricts training to these columns. Empty means every
	// column except Target.
	Features    []string
	TestRatio   float64
	Trees       int
	MaxDepth    int
	RandomState int64
}

// Result is the outcome of a successful training run.
type Result struct {
	Machine *ml.Machine
	Metrics ml.Metrics
	Log     db.TrainingLog
}

// Train scans the store, fits a Machine on a shuffled split, evaluates it on
// the held-out rows, saves it to cfg.ModelPath and records the run.
func Train(ctx context.Context, store db.Store, cfg TrainingConfig) (*Result, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("pipeline: model path is required")
	}
	if cfg.Target == "" {
		return nil, errors.New("pipeline: target is required")
	}
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := logging.L().With(zap.String("run_id", runID))
	start := time.Now()

	data, err := store.ScanAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: scan records: %w", err)
	}
	if data.Len() == 0 {
		return nil, ml.ErrEmptyDataset
	}
	if len(cfg.Features) > 0 {
		cols := append(append([]string(nil), cfg.Features...), cfg.Target)
		data, err = data.Select(cols...)
		if err != nil {
			return nil, &ml.SchemaError{Op: "train", Reason: "selecting training columns", Err: err}
		}
	}

	train, test := ml.SplitTable(data, cfg.TestRatio, cfg.RandomState)
	log.Info("training started",
		zap.Int("rows", data.Len()),
		zap.Int("train_rows", train.Len()),
		zap.Int("test_rows", test.Len()))

	opts := []ml.ForestOption{ml.WithRandomState(cfg.RandomState)}
	if cfg.Trees > 0 {
		opts = append(opts, ml.WithNEstimators(cfg.Trees))
	}
	if cfg.MaxDepth > 0 {
		opts = append(opts, ml.WithMaxDepth(cfg.MaxDepth))
	}
	machine, err := ml.NewMachine(train, cfg.Target, opts...)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metrics, err := ml.Evaluate(machine, test)
	if err != nil {
		return nil, fmt.Errorf("pipeline: evaluate: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.ModelPath), 0o755); err != nil {
		return nil, fmt.Errorf("pipeline: create model dir: %w", err)
	}
	if err := machine.Save(cfg.ModelPath); err != nil {
		return nil, err
	}

	entry := db.TrainingLog{
		RunID:      runID,
		ModelName:  machine.Name,
		Accuracy:   metrics.Accuracy,
		TrainedAt:  machine.Timestamp,
		DataPoints: data.Len(),
	}
	if err := store.SaveTrainingLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("pipeline: save training log: %w", err)
	}

	log.Info("training completed",
		zap.String("model", machine.Info()),
		zap.Float64("accuracy", metrics.Accuracy),
		zap.Int("test_samples", metrics.Samples),
		zap.Duration("elapsed", time.Since(start)))
	return &Result{Machine: machine, Metrics: metrics, Log: entry}, nil
}

// Reseed replaces the collection's contents with amount generated records.
func Reseed(ctx context.Context, store db.Store, gen db.Generator, amount int) error {
	if _, err := store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("pipeline: reset records: %w", err)
	}
	if _, err := db.Seed(ctx, store, gen, amount); err != nil {
		return fmt.Errorf("pipeline: seed records: %w", err)
	}
	logging.L().Info("store reseeded", zap.Int("records", amount))
	return nil
}
