package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/axsanchezgomez/BandersnatchStarter/db"
	"github.com/axsanchezgomez/BandersnatchStarter/ml"
	"github.com/axsanchezgomez/BandersnatchStarter/monsterlab"
)

func openStore(t *testing.T) db.Store {
	t.Helper()
	cfg := db.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "monsters.db")
	cfg.ColumnOrder = monsterlab.Columns
	store, err := db.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { store.Close(context.Background()) })
	return store
}

func trainingConfig(t *testing.T) TrainingConfig {
	return TrainingConfig{
		ModelPath:   filepath.Join(t.TempDir(), "models", "model.bin"),
		Target:      monsterlab.TargetColumn,
		Features:    monsterlab.FeatureColumns,
		TestRatio:   0.2,
		Trees:       20,
		RandomState: 42,
	}
}

func TestTrainSavesModelAndLogsRun(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	if err := Reseed(ctx, store, monsterlab.NewGenerator(11), 400); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := trainingConfig(t)
	res, err := Train(ctx, store, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Metrics.Samples != 80 {
		t.Fatalf("expected 80 test samples, got %d", res.Metrics.Samples)
	}
	if res.Metrics.Accuracy <= 1.0/6 {
		t.Fatalf("accuracy no better than chance: %f", res.Metrics.Accuracy)
	}

	loaded, err := ml.Open(cfg.ModelPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Info() != res.Machine.Info() {
		t.Fatalf("saved model differs: %s", loaded.Info())
	}
	if got := loaded.Features().Names(); len(got) != len(monsterlab.FeatureColumns) {
		t.Fatalf("unexpected features %v", got)
	}

	logs, err := store.LoadTrainingLogs(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 1 || logs[0].RunID != res.Log.RunID || logs[0].DataPoints != 400 {
		t.Fatalf("unexpected training logs %+v", logs)
	}
}

func TestTrainEmptyStore(t *testing.T) {
	_, err := Train(context.Background(), openStore(t), trainingConfig(t))
	if !errors.Is(err, ml.ErrEmptyDataset) {
		t.Fatalf("expected ErrEmptyDataset, got %v", err)
	}
}

func TestTrainUsesGivenRunID(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	if err := Reseed(ctx, store, monsterlab.NewGenerator(5), 60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := trainingConfig(t)
	cfg.RunID = "run-42"
	res, err := Train(ctx, store, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Log.RunID != "run-42" {
		t.Fatalf("expected run id run-42, got %q", res.Log.RunID)
	}
}

func TestTrainUnknownFeature(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	if err := Reseed(ctx, store, monsterlab.NewGenerator(1), 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := trainingConfig(t)
	cfg.Features = []string{"Charisma"}
	_, err := Train(ctx, store, cfg)
	var schemaErr *ml.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
}

func TestReseedReplacesRecords(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	gen := monsterlab.NewGenerator(2)
	for _, n := range []int{30, 12} {
		if err := Reseed(ctx, store, gen, n); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 12 {
		t.Fatalf("expected 12 records, got %d", count)
	}
}
