package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/axsanchezgomez/BandersnatchStarter/db"
	"github.com/axsanchezgomez/BandersnatchStarter/graph"
	"github.com/axsanchezgomez/BandersnatchStarter/logging"
	"github.com/axsanchezgomez/BandersnatchStarter/ml"
	"github.com/axsanchezgomez/BandersnatchStarter/monitoring"
	"github.com/axsanchezgomez/BandersnatchStarter/monsterlab"
	"github.com/axsanchezgomez/BandersnatchStarter/pipeline"
	"github.com/axsanchezgomez/BandersnatchStarter/table"
)

const (
	defaultSeedAmount = 1000
	defaultCacheSize  = 1024
)

var errNoModel = errors.New("no model loaded")

// Prediction is the body returned by POST /api/predict.
type Prediction struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

// API serves the data, model and prediction endpoints. The served Machine
// can be swapped at any time by training or by the model file watcher.
type API struct {
	store      db.Store
	hub        *monitoring.Hub
	metrics    *monitoring.Collector
	training   pipeline.TrainingConfig
	seedAmount int

	genMu sync.Mutex
	gen   *monsterlab.Generator

	mu      sync.RWMutex
	machine *ml.Machine
	cache   *lru.Cache[string, Prediction]

	running atomic.Bool
	wg      sync.WaitGroup
}

// APIConfig holds the tunables of the API handlers.
type APIConfig struct {
	// CacheSize bounds the prediction cache.
	CacheSize int
	// SeedAmount is the number of records POST /api/data/seed inserts when
	// the request names no amount.
	SeedAmount int
}

// NewAPI builds the handlers. A zero config field takes its default.
func NewAPI(store db.Store, hub *monitoring.Hub, gen *monsterlab.Generator, training pipeline.TrainingConfig, config APIConfig) (*API, error) {
	if config.CacheSize <= 0 {
		config.CacheSize = defaultCacheSize
	}
	if config.SeedAmount <= 0 || config.SeedAmount > db.MaxSeedAmount {
		config.SeedAmount = defaultSeedAmount
	}
	cache, err := lru.New[string, Prediction](config.CacheSize)
	if err != nil {
		return nil, err
	}
	return &API{
		store:      store,
		hub:        hub,
		metrics:    monitoring.NewCollector(),
		gen:        gen,
		training:   training,
		seedAmount: config.SeedAmount,
		cache:      cache,
	}, nil
}

// Register installs every API route on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.handleHealth)

	mux.HandleFunc("POST /api/data/seed", a.handleSeed)
	mux.HandleFunc("POST /api/data/reset", a.handleReset)
	mux.HandleFunc("GET /api/data/count", a.handleCount)
	mux.HandleFunc("GET /api/data/table", a.handleTable)
	mux.HandleFunc("GET /api/chart", a.handleChart)

	mux.HandleFunc("POST /api/model/train", a.handleTrain)
	mux.HandleFunc("GET /api/model/info", a.handleModelInfo)
	mux.HandleFunc("GET /api/model/logs", a.handleModelLogs)
	mux.HandleFunc("POST /api/predict", a.handlePredict)
	mux.HandleFunc("GET /api/metrics", a.handleMetrics)

	if a.hub != nil {
		mux.HandleFunc("GET /api/ws/training", a.hub.HandleWebSocket)
	}
}

// SetMachine replaces the served model and drops cached predictions.
func (a *API) SetMachine(m *ml.Machine) {
	a.mu.Lock()
	a.machine = m
	a.cache.Purge()
	a.mu.Unlock()
}

// Machine returns the model currently served, or nil.
func (a *API) Machine() *ml.Machine {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.machine
}

// Wait blocks until background training runs have finished.
func (a *API) Wait() {
	a.wg.Wait()
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"model_loaded": a.Machine() != nil,
		"training":     a.running.Load(),
	})
}

func (a *API) handleSeed(w http.ResponseWriter, r *http.Request) {
	amount := a.seedAmount
	if s := r.URL.Query().Get("amount"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > db.MaxSeedAmount {
			writeError(w, r, http.StatusBadRequest, "amount must be between 1 and "+strconv.Itoa(db.MaxSeedAmount))
			return
		}
		amount = n
	}

	a.genMu.Lock()
	ok, err := db.Seed(r.Context(), a.store, a.gen, amount)
	a.genMu.Unlock()
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	a.metrics.IncrCounter(monitoring.RecordsSeeded, float64(amount))
	writeJSON(w, http.StatusCreated, map[string]any{"inserted": amount, "acknowledged": ok})
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	ok, err := a.store.DeleteAll(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": ok})
}

func (a *API) handleCount(w http.ResponseWriter, r *http.Request) {
	n, err := a.store.Count(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": n})
}

func (a *API) handleTable(w http.ResponseWriter, r *http.Request) {
	html, err := db.HTMLTable(r.Context(), a.store)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(html))
}

func (a *API) handleChart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	x := queryDefault(q.Get("x"), "Health")
	y := queryDefault(q.Get("y"), "Energy")
	target := queryDefault(q.Get("target"), monsterlab.TargetColumn)

	data, err := a.store.ScanAll(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if data.Len() == 0 {
		writeError(w, r, http.StatusNotFound, "no records to chart")
		return
	}
	spec, err := graph.Chart(data, x, y, target)
	if err != nil {
		writeFailure(w, r, err)
		return
	}

	if q.Get("format") == "html" {
		snippet, err := spec.HTML("chart")
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(snippet))
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func (a *API) handleTrain(w http.ResponseWriter, r *http.Request) {
	if !a.running.CompareAndSwap(false, true) {
		writeError(w, r, http.StatusConflict, "training already in progress")
		return
	}
	a.wg.Add(1)
	go a.train()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "training"})
}

func (a *API) train() {
	defer a.wg.Done()
	defer a.running.Store(false)

	cfg := a.training
	cfg.RunID = uuid.NewString()
	a.publish(monitoring.TrainingStarted, monitoring.TrainingStart{RunID: cfg.RunID})
	a.metrics.IncrCounter(monitoring.TrainingRuns, 1)
	start := time.Now()
	res, err := pipeline.Train(context.Background(), a.store, cfg)
	if err != nil {
		logging.L().Error("training failed", zap.String("run_id", cfg.RunID), zap.Error(err))
		a.metrics.IncrCounter(monitoring.TrainingFailures, 1)
		a.publish(monitoring.TrainingFailed, monitoring.TrainingFailure{RunID: cfg.RunID, Error: err.Error()})
		return
	}
	a.SetMachine(res.Machine)
	a.metrics.Observe(monitoring.TrainingSeconds, time.Since(start).Seconds())
	a.metrics.SetGauge(monitoring.ModelAccuracy, res.Metrics.Accuracy)
	a.publish(monitoring.TrainingCompleted, monitoring.TrainingResult{
		RunID:      res.Log.RunID,
		ModelName:  res.Machine.Name,
		Info:       res.Machine.Info(),
		Accuracy:   res.Metrics.Accuracy,
		DataPoints: res.Log.DataPoints,
	})
}

func (a *API) publish(eventType monitoring.EventType, payload any) {
	if a.hub == nil {
		return
	}
	if err := a.hub.Publish(eventType, payload); err != nil {
		logging.L().Warn("publish training event", zap.String("type", string(eventType)), zap.Error(err))
	}
}

func (a *API) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	m := a.Machine()
	if m == nil {
		writeFailure(w, r, errNoModel)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      m.Name,
		"info":      m.Info(),
		"timestamp": m.Timestamp.Format(ml.InfoTimeLayout),
		"target":    m.Target(),
		"features":  m.Features(),
		"classes":   m.Classes(),
	})
}

func (a *API) handleModelLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := a.store.LoadTrainingLogs(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	var rec table.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	a.mu.RLock()
	m := a.machine
	a.mu.RUnlock()
	if m == nil {
		writeFailure(w, r, errNoModel)
		return
	}

	key, err := cacheKey(m, rec)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.metrics.IncrCounter(monitoring.PredictionsTotal, 1)
	if p, ok := a.cache.Get(key); ok {
		a.metrics.IncrCounter(monitoring.PredictionCacheHits, 1)
		writeJSON(w, http.StatusOK, p)
		return
	}

	label, confidence, err := m.PredictRecord(rec)
	if err != nil {
		a.metrics.IncrCounter(monitoring.PredictionErrors, 1)
		writeFailure(w, r, err)
		return
	}
	p := Prediction{Prediction: label, Confidence: confidence}

	a.mu.RLock()
	if a.machine == m {
		a.cache.Add(key, p)
	}
	a.mu.RUnlock()
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(a.metrics.ExportText()))
		return
	}
	body := map[string]any{
		"metrics": a.metrics.Snapshot(),
		"system":  a.metrics.SystemStats(),
	}
	if a.hub != nil {
		body["websocket"] = a.hub.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

// cacheKey ties a prediction to the model that produced it. Map keys are
// marshalled in sorted order, so equal inputs give equal keys.
func cacheKey(m *ml.Machine, rec table.Record) (string, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(m.Timestamp.UnixNano(), 10) + ":" + string(raw), nil
}

func queryDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
