package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/axsanchezgomez/BandersnatchStarter/config"
	"github.com/axsanchezgomez/BandersnatchStarter/db"
	"github.com/axsanchezgomez/BandersnatchStarter/logging"
	"github.com/axsanchezgomez/BandersnatchStarter/monsterlab"
	"github.com/axsanchezgomez/BandersnatchStarter/pipeline"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	reseed := flag.Bool("reseed", false, "reset the collection and seed seed_amount monsters before training")
	seed := flag.Int("seed", 0, "reset the collection and seed this many monsters before training (overrides seed_amount)")
	modelPath := flag.String("model_path", "", "model output path (overrides config)")
	testRatio := flag.Float64("test_ratio", 0, "held-out fraction (overrides config)")
	trees := flag.Int("trees", 0, "number of trees (overrides config)")
	maxDepth := flag.Int("max_depth", 0, "maximum tree depth (overrides config)")
	randomState := flag.Int64("random_state", -1, "random seed (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.L().Fatal("failed to load config", zap.Error(err))
	}
	log := logging.Init(cfg.Log)
	defer logging.Sync()

	training := pipeline.TrainingConfig{
		ModelPath:   cfg.Model.Path,
		Target:      cfg.Model.Target,
		Features:    monsterlab.FeatureColumns,
		TestRatio:   cfg.Model.TestRatio,
		Trees:       cfg.Model.Trees,
		MaxDepth:    cfg.Model.MaxDepth,
		RandomState: cfg.Model.RandomState,
	}
	if *modelPath != "" {
		training.ModelPath = *modelPath
	}
	if *testRatio > 0 {
		training.TestRatio = *testRatio
	}
	if *trees > 0 {
		training.Trees = *trees
	}
	if *maxDepth > 0 {
		training.MaxDepth = *maxDepth
	}
	if *randomState >= 0 {
		training.RandomState = *randomState
	}

	ctx := context.Background()
	store, err := db.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close(ctx)

	if *reseed || *seed > 0 {
		amount := cfg.Model.SeedAmount
		if *seed > 0 {
			amount = *seed
		}
		gen := monsterlab.NewGenerator(time.Now().UnixNano())
		if err := pipeline.Reseed(ctx, store, gen, amount); err != nil {
			log.Fatal("failed to seed store", zap.Error(err))
		}
	}

	res, err := pipeline.Train(ctx, store, training)
	if err != nil {
		log.Error("failed to train model", zap.Error(err))
		store.Close(ctx)
		logging.Sync()
		os.Exit(1)
	}

	fmt.Printf("%s\naccuracy=%.2f (%d/%d held-out rows)\nmodel saved to %s\n",
		res.Machine.Info(), res.Metrics.Accuracy, res.Metrics.Correct, res.Metrics.Samples, training.ModelPath)
}
