package ml

import (
	"math"
	"testing"
)

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 2, 2}

	model := NewDecisionTree(2)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, confidence, err := model.Predict([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 0 {
		t.Fatalf("expected label 0, got %d", label)
	}
	if confidence != 1 {
		t.Fatalf("expected a pure leaf, got confidence %f", confidence)
	}
	probs, err := model.PredictProba([]float64{0.85, 0.85})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(probs) != 3 || probs[2] != 1 {
		t.Fatalf("unexpected probabilities: %v", probs)
	}
}

func TestDecisionTreeMaxDepthKeepsMixedLeaf(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}}
	labels := []int{0, 1, 0, 1}

	model := NewDecisionTree(1)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, x := range []float64{0, 5} {
		probs, err := model.PredictProba([]float64{x})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		sum := 0.0
		for _, p := range probs {
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("probabilities should sum to 1, got %v", probs)
		}
	}
}

func TestDecisionTreeRejectsBadInput(t *testing.T) {
	model := NewDecisionTree(3)
	if err := model.Train(nil, nil); err == nil {
		t.Fatal("expected error for empty input")
	}
	if err := model.Train([][]float64{{1}, {2}}, []int{0}); err == nil {
		t.Fatal("expected error for size mismatch")
	}
	if err := model.Train([][]float64{{1}, {2, 3}}, []int{0, 1}); err == nil {
		t.Fatal("expected error for ragged rows")
	}
	if _, _, err := model.Predict([]float64{1}); err == nil {
		t.Fatal("expected error for untrained model")
	}
}
