package ml

import (
	"errors"
	"math"
	"math/rand"

	"github.com/axsanchezgomez/BandersnatchStarter/table"
)

// Metrics summarises a Machine on held-out rows.
type Metrics struct {
	Accuracy float64 `json:"accuracy"`
	Correct  int     `json:"correct"`
	Samples  int     `json:"samples"`
}

// SplitTable shuffles the rows of t with seed and returns the first
// (1-testRatio) share as the training set and the rest as the test set.
// Ratios outside (0, 1) fall back to 0.2.
func SplitTable(t *table.Table, testRatio float64, seed int64) (train, test *table.Table) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(t.Len())

	split := int(math.Round(float64(t.Len()) * (1 - testRatio)))
	if split < 1 && t.Len() > 0 {
		split = 1
	}
	return t.Subset(indices[:split]), t.Subset(indices[split:])
}

// Evaluate predicts every row of test one at a time and compares the result
// with the row's target value.
func Evaluate(m *Machine, test *table.Table) (Metrics, error) {
	if test.Len() == 0 {
		return Metrics{}, nil
	}
	features, err := test.Select(m.features.Names()...)
	if err != nil {
		return Metrics{}, &SchemaError{Op: "evaluate", Reason: "feature columns missing", Err: err}
	}
	targets, err := test.Column(m.target)
	if err != nil {
		return Metrics{}, &SchemaError{Op: "evaluate", Column: m.target, Reason: "target column not found", Err: err}
	}

	var metrics Metrics
	for i := 0; i < test.Len(); i++ {
		label, _, err := m.Predict(features.Subset([]int{i}))
		if err != nil {
			// a category never seen in training counts as a miss
			var schemaErr *SchemaError
			if errors.As(err, &schemaErr) && schemaErr.Column != "" {
				metrics.Samples++
				continue
			}
			return Metrics{}, err
		}
		if label == table.FormatValue(targets[i]) {
			metrics.Correct++
		}
		metrics.Samples++
	}
	metrics.Accuracy = float64(metrics.Correct) / float64(metrics.Samples)
	return metrics, nil
}
