package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/axsanchezgomez/BandersnatchStarter/config"
	"github.com/axsanchezgomez/BandersnatchStarter/db"
	bhttp "github.com/axsanchezgomez/BandersnatchStarter/http"
	"github.com/axsanchezgomez/BandersnatchStarter/logging"
	"github.com/axsanchezgomez/BandersnatchStarter/ml"
	"github.com/axsanchezgomez/BandersnatchStarter/monitoring"
	"github.com/axsanchezgomez/BandersnatchStarter/monsterlab"
	"github.com/axsanchezgomez/BandersnatchStarter/pipeline"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.L().Fatal("failed to load config", zap.Error(err))
	}
	log := logging.Init(cfg.Log)
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the record store
	store, err := db.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal("failed to open store", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer store.Close(context.Background())
	log.Info("store opened", zap.String("driver", cfg.Database.Driver), zap.String("collection", cfg.Database.Collection))

	// 3. Wire the API, model and training events
	hub := monitoring.NewHub()
	go hub.Run(ctx)

	training := pipeline.TrainingConfig{
		ModelPath:   cfg.Model.Path,
		Target:      cfg.Model.Target,
		Features:    monsterlab.FeatureColumns,
		TestRatio:   cfg.Model.TestRatio,
		Trees:       cfg.Model.Trees,
		MaxDepth:    cfg.Model.MaxDepth,
		RandomState: cfg.Model.RandomState,
	}
	api, err := bhttp.NewAPI(store, hub, monsterlab.NewGenerator(time.Now().UnixNano()), training, bhttp.APIConfig{
		CacheSize:  cfg.Http.CacheSize,
		SeedAmount: cfg.Model.SeedAmount,
	})
	if err != nil {
		log.Fatal("failed to build api", zap.Error(err))
	}

	if m, err := ml.LoadModel(cfg.Model.Type, cfg.Model.Path); err == nil {
		api.SetMachine(m)
		log.Info("model loaded", zap.String("path", cfg.Model.Path), zap.String("info", m.Info()))
	} else if errors.Is(err, os.ErrNotExist) {
		log.Info("no model yet, train one with POST /api/model/train", zap.String("path", cfg.Model.Path))
	} else {
		log.Warn("model not loaded", zap.String("path", cfg.Model.Path), zap.Error(err))
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Model.Path), 0o755); err != nil {
		log.Fatal("failed to create model dir", zap.Error(err))
	}
	watcher, err := ml.NewWatcher(cfg.Model.Path, api.SetMachine)
	if err != nil {
		log.Fatal("failed to watch model file", zap.Error(err))
	}
	go func() {
		if err := watcher.Run(ctx); err != nil {
			log.Error("model watcher stopped", zap.Error(err))
		}
	}()

	// 4. Start HTTP server
	serverCfg := bhttp.DefaultServerConfig()
	serverCfg.Port = cfg.Http.Port
	serverCfg.AllowedOrigins = cfg.Http.AllowOrigins
	server := bhttp.NewServer(serverCfg, api)
	errc := make(chan error, 1)
	go func() { errc <- server.Start() }()

	// 5. Handle graceful shutdown
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		if err != nil {
			log.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn("server forced to shutdown", zap.Error(err))
	}
	api.Wait()
	log.Info("exiting")
}
