package ml

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

// RandomForest is a bagged ensemble of DecisionTrees whose class
// probabilities are the mean of the trees' leaf distributions.
type RandomForest struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	// MaxFeatures is the number of features tried per split; 0 means sqrt(p).
	MaxFeatures int
	Bootstrap   bool
	RandomState int64
	NClasses    int
	Trees       []*DecisionTree
}

// ForestOption configures a RandomForest built by NewRandomForest or NewMachine.
type ForestOption func(*RandomForest)

func WithNEstimators(n int) ForestOption { return func(rf *RandomForest) { rf.NEstimators = n } }
func WithMaxDepth(d int) ForestOption    { return func(rf *RandomForest) { rf.MaxDepth = d } }
func WithMaxFeatures(k int) ForestOption { return func(rf *RandomForest) { rf.MaxFeatures = k } }
func WithBootstrap(b bool) ForestOption  { return func(rf *RandomForest) { rf.Bootstrap = b } }
func WithRandomState(seed int64) ForestOption {
	return func(rf *RandomForest) { rf.RandomState = seed }
}

// NewRandomForest returns a 100-tree bootstrapped forest with the options applied.
func NewRandomForest(opts ...ForestOption) *RandomForest {
	rf := &RandomForest{
		NEstimators:     100,
		MinSamplesSplit: 2,
		Bootstrap:       true,
		RandomState:     time.Now().UnixNano(),
	}
	for _, o := range opts {
		o(rf)
	}
	return rf
}

// Train fits every tree sequentially; a fixed RandomState gives a fixed forest.
func (rf *RandomForest) Train(features [][]float64, labels []int) error {
	if err := checkTrainingSet(features, labels); err != nil {
		return err
	}
	if rf.NEstimators <= 0 {
		return errors.New("randomforest: NEstimators must be positive")
	}
	if rf.NClasses == 0 {
		rf.NClasses = maxLabel(labels) + 1
	}
	n := len(features)
	p := len(features[0])
	maxFeatures := rf.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(p)))))
	}

	trees := make([]*DecisionTree, rf.NEstimators)
	for t := range trees {
		seed := rf.RandomState + int64(t)
		rnd := rand.New(rand.NewSource(seed))
		sample := make([]int, n)
		for i := range sample {
			if rf.Bootstrap {
				sample[i] = rnd.Intn(n)
			} else {
				sample[i] = i
			}
		}
		tree := &DecisionTree{
			MaxDepth:        rf.MaxDepth,
			MinSamplesSplit: rf.MinSamplesSplit,
			MaxFeatures:     maxFeatures,
			RandomState:     seed,
			NClasses:        rf.NClasses,
		}
		if err := tree.fit(features, labels, sample, rnd); err != nil {
			return err
		}
		trees[t] = tree
	}
	rf.Trees = trees
	return nil
}

// PredictProba averages the leaf distributions of every tree.
func (rf *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(rf.Trees) == 0 {
		return nil, errors.New("model not trained")
	}
	probs := make([]float64, rf.NClasses)
	for _, tree := range rf.Trees {
		leaf, err := tree.PredictProba(features)
		if err != nil {
			return nil, err
		}
		if len(leaf) != rf.NClasses {
			return nil, errors.New("invalid tree state")
		}
		for c, p := range leaf {
			probs[c] += p
		}
	}
	for c := range probs {
		probs[c] /= float64(len(rf.Trees))
	}
	return probs, nil
}

// Predict returns the class with the highest mean probability and that
// probability. Ties go to the lowest class index.
func (rf *RandomForest) Predict(features []float64) (int, float64, error) {
	probs, err := rf.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	best := argmax(probs)
	return best, probs[best], nil
}
