package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType distinguishes counters, gauges and summaries.
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
	MetricTypeSummary MetricType = "summary"
)

// Metric names recorded by the server.
const (
	PredictionsTotal    = "predictions_total"
	PredictionCacheHits = "prediction_cache_hits_total"
	PredictionErrors    = "prediction_errors_total"
	RecordsSeeded       = "records_seeded_total"
	TrainingRuns        = "training_runs_total"
	TrainingFailures    = "training_failures_total"
	TrainingSeconds     = "training_duration_seconds"
	ModelAccuracy       = "model_accuracy"
)

const maxSamples = 1000

type Metric struct {
	Name  string     `json:"name"`
	Type  MetricType `json:"type"`
	Value float64    `json:"value"`
	// Count, Min and Max are only set for summaries.
	Count     int       `json:"count,omitempty"`
	Min       float64   `json:"min,omitempty"`
	Max       float64   `json:"max,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type series struct {
	typ     MetricType
	value   float64
	samples []float64
	updated time.Time
}

// Collector keeps the latest value of counters and gauges and a bounded
// window of samples for summaries.
type Collector struct {
	mu        sync.RWMutex
	series    map[string]*series
	startTime time.Time
}

// NewCollector returns an empty collector whose uptime starts now.
func NewCollector() *Collector {
	return &Collector{series: make(map[string]*series), startTime: time.Now()}
}

func (c *Collector) get(name string, typ MetricType) *series {
	s, ok := c.series[name]
	if !ok {
		s = &series{typ: typ}
		c.series[name] = s
	}
	s.updated = time.Now()
	return s
}

// IncrCounter adds delta to the named counter.
func (c *Collector) IncrCounter(name string, delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.get(name, MetricTypeCounter).value += delta
}

// SetGauge overwrites the named gauge.
func (c *Collector) SetGauge(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.get(name, MetricTypeGauge).value = value
}

// Observe adds a sample to a summary; the oldest samples are dropped past
// maxSamples.
func (c *Collector) Observe(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.get(name, MetricTypeSummary)
	s.samples = append(s.samples, value)
	if len(s.samples) > maxSamples {
		s.samples = s.samples[len(s.samples)-maxSamples:]
	}
}

// Snapshot returns every metric sorted by name. A summary's Value is the
// mean of its window.
func (c *Collector) Snapshot() []Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Metric, 0, len(c.series))
	for name, s := range c.series {
		m := Metric{Name: name, Type: s.typ, Value: s.value, Timestamp: s.updated}
		if s.typ == MetricTypeSummary && len(s.samples) > 0 {
			m.Count = len(s.samples)
			m.Min, m.Max = s.samples[0], s.samples[0]
			sum := 0.0
			for _, v := range s.samples {
				sum += v
				if v < m.Min {
					m.Min = v
				}
				if v > m.Max {
					m.Max = v
				}
			}
			m.Value = sum / float64(len(s.samples))
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Value returns the current value of a metric, 0 when unknown.
func (c *Collector) Value(name string) float64 {
	for _, m := range c.Snapshot() {
		if m.Name == name {
			return m.Value
		}
	}
	return 0
}

// ExportText renders the snapshot in the plain-text exposition format.
func (c *Collector) ExportText() string {
	var b strings.Builder
	for _, m := range c.Snapshot() {
		typ := m.Type
		if typ == MetricTypeSummary {
			fmt.Fprintf(&b, "# TYPE %s summary\n%s_count %d\n%s_mean %g\n", m.Name, m.Name, m.Count, m.Name, m.Value)
			continue
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n%s %g\n", m.Name, typ, m.Name, m.Value)
	}
	return b.String()
}

func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

func (c *Collector) SystemStats() map[string]any {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]any{
		"uptime":     c.Uptime().String(),
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]any{
			"alloc":      m.Alloc,
			"sys":        m.Sys,
			"heap_alloc": m.HeapAlloc,
			"heap_inuse": m.HeapInuse,
			"gc_count":   m.NumGC,
		},
		"num_cpu": runtime.NumCPU(),
	}
}
