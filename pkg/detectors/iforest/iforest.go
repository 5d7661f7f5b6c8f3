// Package iforest implements the Isolation Forest algorithm for anomaly detection.
package iforest

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/hed1ad/aegis/pkg/detectors"
)

// offsetAuto is the decision offset used when contamination is zero.
const offsetAuto = -0.5

// IsolationForest implements unsupervised anomaly detection using isolation trees.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees        int
	sampleSize    int
	contamination float64
	maxDepth      int
	rng           *rand.Rand

	// Trained model
	trees     []tree
	nFeatures int
	trained   bool

	// Statistics from training
	avgPathLength float64
	offset        float64
}

// tree is an isolation tree stored as a flat node slice; index 0 is the root.
type tree []Node

// Node is a node of an isolation tree. Leaves have Left == -1.
type Node struct {
	Feature int
	Split   float64
	Left    int32
	Right   int32
	Size    int
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithContamination sets the expected proportion of anomalies.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.rng = rand.New(rand.NewSource(seed))
	}
}

// WithConfig applies the shared detector configuration.
func WithConfig(cfg detectors.Config) Option {
	return func(f *IsolationForest) {
		WithContamination(cfg.Contamination)(f)
		WithSeed(cfg.RandomSeed)(f)
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nTrees:        100,
		sampleSize:    256,
		contamination: 0.1,
		offset:        offsetAuto,
		rng:           rand.New(rand.NewSource(42)),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fit trains the Isolation Forest on the provided data.
func (f *IsolationForest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) == 0 {
		return errors.New("empty training data")
	}
	if f.contamination < 0 || f.contamination > 0.5 {
		return fmt.Errorf("contamination %v outside [0, 0.5]", f.contamination)
	}

	nSamples := len(data)
	nFeatures := len(data[0])
	for i, row := range data {
		if err := detectors.CheckWidth(row, nFeatures); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}

	sampleSize := f.sampleSize
	if sampleSize > nSamples {
		sampleSize = nSamples
	}
	f.maxDepth = int(math.Ceil(math.Log2(math.Max(float64(sampleSize), 2))))

	f.trees = make([]tree, f.nTrees)
	for i := 0; i < f.nTrees; i++ {
		// Sample without replacement
		indices := f.rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}

		var t tree
		f.grow(&t, sample, nFeatures, 0)
		f.trees[i] = t
	}

	f.avgPathLength = averagePathLength(float64(sampleSize))
	f.nFeatures = nFeatures
	f.trained = true

	// The decision offset places the contamination share of the training
	// data below zero.
	f.offset = offsetAuto
	if f.contamination > 0 {
		negated := make([]float64, nSamples)
		for i, row := range data {
			negated[i] = -f.score(row)
		}
		f.offset = percentile(negated, 100*f.contamination)
	}

	return nil
}

// grow appends the subtree for data to t and returns its index.
func (f *IsolationForest) grow(t *tree, data [][]float64, nFeatures, depth int) int32 {
	idx := int32(len(*t))
	*t = append(*t, Node{Left: -1, Right: -1, Size: len(data)})

	if depth >= f.maxDepth || len(data) <= 1 {
		return idx
	}

	feature := f.rng.Intn(nFeatures)
	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		minVal = math.Min(minVal, row[feature])
		maxVal = math.Max(maxVal, row[feature])
	}
	if minVal == maxVal {
		return idx
	}

	splitValue := minVal + f.rng.Float64()*(maxVal-minVal)
	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	left := f.grow(t, leftData, nFeatures, depth+1)
	right := f.grow(t, rightData, nFeatures, depth+1)
	(*t)[idx].Feature = feature
	(*t)[idx].Split = splitValue
	(*t)[idx].Left = left
	(*t)[idx].Right = right
	return idx
}

// Predict returns anomaly scores in [0, 1] for the given samples.
// Higher scores are more anomalous.
func (f *IsolationForest) Predict(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, detectors.ErrNotTrained
	}

	scores := make([]float64, len(data))
	for i, sample := range data {
		if err := detectors.CheckWidth(sample, f.nFeatures); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		scores[i] = f.score(sample)
	}
	return scores, nil
}

// PredictOne returns the anomaly score for a single sample.
func (f *IsolationForest) PredictOne(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return 0, detectors.ErrNotTrained
	}
	if err := detectors.CheckWidth(sample, f.nFeatures); err != nil {
		return 0, err
	}
	return f.score(sample), nil
}

// DecisionFunction returns the shifted, negated anomaly score of sample.
// Negative values are outliers; lower is more anomalous. The value has no
// fixed bounds.
func (f *IsolationForest) DecisionFunction(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return 0, detectors.ErrNotTrained
	}
	if err := detectors.CheckWidth(sample, f.nFeatures); err != nil {
		return 0, err
	}
	return -f.score(sample) - f.offset, nil
}

// score computes 2^(-E[h(x)] / c(psi)).
func (f *IsolationForest) score(sample []float64) float64 {
	var totalPath float64
	for _, t := range f.trees {
		totalPath += t.pathLength(sample)
	}
	avgPath := totalPath / float64(len(f.trees))
	if f.avgPathLength == 0 {
		return 0.5
	}
	return math.Pow(2, -avgPath/f.avgPathLength)
}

// pathLength walks sample down the tree and adds the expected depth of the
// unresolved leaf population.
func (t tree) pathLength(sample []float64) float64 {
	var depth float64
	i := int32(0)
	for t[i].Left >= 0 {
		n := t[i]
		if sample[n.Feature] < n.Split {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
	return depth + averagePathLength(float64(t[i].Size))
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, with H(i) ~ ln(i) + Euler-Mascheroni
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// Features returns the sample width the forest was fit on.
func (f *IsolationForest) Features() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.nFeatures
}

// Offset returns the decision-function offset learned during Fit.
func (f *IsolationForest) Offset() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.offset
}

// snapshot is the gob representation of a trained forest.
type snapshot struct {
	NTrees        int
	SampleSize    int
	Contamination float64
	NFeatures     int
	AvgPathLength float64
	Offset        float64
	Trees         [][]Node
}

// Save serializes the trained model.
func (f *IsolationForest) Save() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, detectors.ErrNotTrained
	}

	s := snapshot{
		NTrees:        f.nTrees,
		SampleSize:    f.sampleSize,
		Contamination: f.contamination,
		NFeatures:     f.nFeatures,
		AvgPathLength: f.avgPathLength,
		Offset:        f.offset,
		Trees:         make([][]Node, len(f.trees)),
	}
	for i, t := range f.trees {
		s.Trees[i] = t
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("encode isolation forest: %w", err)
	}
	return buf.Bytes(), nil
}

// Load deserializes a trained model.
func (f *IsolationForest) Load(data []byte) error {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return fmt.Errorf("decode isolation forest: %w", err)
	}
	if len(s.Trees) == 0 || s.NFeatures <= 0 {
		return errors.New("decode isolation forest: empty model")
	}
	for i, t := range s.Trees {
		if err := validTree(t, s.NFeatures); err != nil {
			return fmt.Errorf("decode isolation forest: tree %d: %w", i, err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nTrees = s.NTrees
	f.sampleSize = s.SampleSize
	f.contamination = s.Contamination
	f.nFeatures = s.NFeatures
	f.avgPathLength = s.AvgPathLength
	f.offset = s.Offset
	f.trees = make([]tree, len(s.Trees))
	for i, t := range s.Trees {
		f.trees[i] = t
	}
	f.trained = true

	return nil
}

// validTree rejects node links that would index out of range or loop.
func validTree(t []Node, nFeatures int) error {
	if len(t) == 0 {
		return errors.New("no nodes")
	}
	for i, n := range t {
		if n.Left < 0 {
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d", i, n.Feature)
		}
		if int(n.Left) <= i || int(n.Right) <= i || int(n.Left) >= len(t) || int(n.Right) >= len(t) {
			return fmt.Errorf("node %d has invalid children", i)
		}
	}
	return nil
}

// percentile returns the p-th percentile of data with linear interpolation.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	rank := float64(len(sorted)-1) * p / 100
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (rank-float64(lo))*(sorted[hi]-sorted[lo])
}
