package ml

import (
	"errors"
	"math/rand"
	"sort"
	"time"
)

// DecisionTree is a CART classifier storing its nodes in a flat slice so the
// whole tree can be gob-encoded.
type DecisionTree struct {
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int
	RandomState     int64
	NClasses        int
	Nodes           []TreeNode
}

// TreeNode is a split or a leaf. Leaves carry class probabilities.
type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	ClassLabel int       `json:"class_label"`
	IsLeaf     bool      `json:"is_leaf"`
	Probs      []float64 `json:"probs"`
}

// NewDecisionTree returns an unpruned tree limited to maxDepth (0 means no limit).
func NewDecisionTree(maxDepth int) *DecisionTree {
	return &DecisionTree{
		MaxDepth:        maxDepth,
		MinSamplesSplit: 2,
		RandomState:     time.Now().UnixNano(),
	}
}

// Train grows the tree with gini splits over labels in [0, NClasses).
func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	if err := checkTrainingSet(features, labels); err != nil {
		return err
	}
	if dt.NClasses == 0 {
		dt.NClasses = maxLabel(labels) + 1
	}
	idx := make([]int, len(features))
	for i := range idx {
		idx[i] = i
	}
	return dt.fit(features, labels, idx, rand.New(rand.NewSource(dt.RandomState)))
}

func (dt *DecisionTree) fit(features [][]float64, labels []int, idx []int, rnd *rand.Rand) error {
	for _, label := range labels {
		if label < 0 || label >= dt.NClasses {
			return errors.New("label out of range")
		}
	}
	b := &treeBuilder{
		tree:     dt,
		features: features,
		labels:   labels,
		nFeat:    len(features[0]),
		rnd:      rnd,
	}
	dt.Nodes = nil
	b.build(idx, 0)
	return nil
}

func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	if len(dt.Nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Probs, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return nil, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.Nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
}

// Predict returns the leaf's majority class and the probability of that class.
func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	probs, err := dt.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	best := argmax(probs)
	return best, probs[best], nil
}

type treeBuilder struct {
	tree     *DecisionTree
	features [][]float64
	labels   []int
	nFeat    int
	rnd      *rand.Rand
}

// build appends the subtree for idx and returns the index of its root.
func (b *treeBuilder) build(idx []int, depth int) int {
	nodeIdx := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, TreeNode{})

	counts := b.counts(idx)
	leaf := TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: argmaxInt(counts),
		IsLeaf:     true,
		Probs:      countsToProbs(counts, len(idx)),
	}

	minSplit := b.tree.MinSamplesSplit
	if minSplit < 2 {
		minSplit = 2
	}
	if isPure(counts) || len(idx) < minSplit || (b.tree.MaxDepth > 0 && depth >= b.tree.MaxDepth) {
		b.tree.Nodes[nodeIdx] = leaf
		return nodeIdx
	}

	feature, threshold, ok := b.bestSplit(idx, counts)
	if !ok {
		b.tree.Nodes[nodeIdx] = leaf
		return nodeIdx
	}
	leftIdx, rightIdx := b.partition(idx, feature, threshold)
	if len(leftIdx) == 0 || len(rightIdx) == 0 {
		b.tree.Nodes[nodeIdx] = leaf
		return nodeIdx
	}

	left := b.build(leftIdx, depth+1)
	right := b.build(rightIdx, depth+1)
	b.tree.Nodes[nodeIdx] = TreeNode{
		FeatureIdx: feature,
		Threshold:  threshold,
		LeftChild:  left,
		RightChild: right,
		ClassLabel: leaf.ClassLabel,
		IsLeaf:     false,
	}
	return nodeIdx
}

func (b *treeBuilder) counts(idx []int) []int {
	counts := make([]int, b.tree.NClasses)
	for _, i := range idx {
		counts[b.labels[i]]++
	}
	return counts
}

// candidateFeatures draws MaxFeatures distinct features, or all of them.
func (b *treeBuilder) candidateFeatures() []int {
	k := b.tree.MaxFeatures
	if k <= 0 || k >= b.nFeat {
		all := make([]int, b.nFeat)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rnd.Perm(b.nFeat)[:k]
}

// bestSplit scans every midpoint between distinct sorted values of each
// candidate feature and keeps the one with the lowest weighted gini.
func (b *treeBuilder) bestSplit(idx []int, parent []int) (int, float64, bool) {
	n := len(idx)
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := giniFromCounts(parent, n)

	sorted := make([]int, n)
	left := make([]int, b.tree.NClasses)
	right := make([]int, b.tree.NClasses)
	for _, f := range b.candidateFeatures() {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.features[sorted[i]][f] < b.features[sorted[j]][f]
		})
		for c := range left {
			left[c] = 0
			right[c] = parent[c]
		}
		for s := 1; s < n; s++ {
			moved := b.labels[sorted[s-1]]
			left[moved]++
			right[moved]--
			lo := b.features[sorted[s-1]][f]
			hi := b.features[sorted[s]][f]
			if lo == hi {
				continue
			}
			impurity := (float64(s)*giniFromCounts(left, s) + float64(n-s)*giniFromCounts(right, n-s)) / float64(n)
			if impurity < bestImpurity-1e-12 {
				bestImpurity = impurity
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (b *treeBuilder) partition(idx []int, feature int, threshold float64) ([]int, []int) {
	leftIdx := make([]int, 0, len(idx))
	rightIdx := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.features[i][feature] <= threshold {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}
	return leftIdx, rightIdx
}

func checkTrainingSet(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return errors.New("features have no columns")
	}
	for _, row := range features {
		if len(row) != width {
			return errors.New("inconsistent number of features in rows")
		}
	}
	return nil
}

func giniFromCounts(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		impurity -= p * p
	}
	return impurity
}

func countsToProbs(counts []int, n int) []float64 {
	probs := make([]float64, len(counts))
	if n == 0 {
		return probs
	}
	for i, c := range counts {
		probs[i] = float64(c) / float64(n)
	}
	return probs
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func argmaxInt(values []int) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

func maxLabel(labels []int) int {
	m := 0
	for _, label := range labels {
		if label > m {
			m = label
		}
	}
	return m
}
