// Package autoencoder implements a dense reconstruction autoencoder whose
// anomaly score is the mean squared reconstruction error.
package autoencoder

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/hed1ad/aegis/pkg/detectors"
)

// Autoencoder is a symmetric feedforward network trained to reproduce its
// input through a narrow bottleneck.
type Autoencoder struct {
	mu sync.RWMutex

	// Configuration
	hidden          []int
	bottleneck      int
	epochs          int
	batchSize       int
	learningRate    float64
	patience        int
	validationSplit float64
	rng             *rand.Rand

	// Trained model
	layers    []dense
	nFeatures int
	trained   bool

	history []float64
}

// dense is a fully connected layer: out = act(W·in + B).
type dense struct {
	W      [][]float64
	B      []float64
	Linear bool
}

// Option configures an Autoencoder.
type Option func(*Autoencoder)

// WithHidden sets the encoder hidden layer widths. The decoder mirrors them.
func WithHidden(widths ...int) Option {
	return func(a *Autoencoder) {
		a.hidden = append([]int(nil), widths...)
	}
}

// WithBottleneck fixes the code width. Zero selects min(16, features/2).
func WithBottleneck(n int) Option {
	return func(a *Autoencoder) {
		a.bottleneck = n
	}
}

// WithEpochs sets the maximum number of training epochs.
func WithEpochs(n int) Option {
	return func(a *Autoencoder) {
		a.epochs = n
	}
}

// WithBatchSize sets the mini-batch size.
func WithBatchSize(n int) Option {
	return func(a *Autoencoder) {
		a.batchSize = n
	}
}

// WithLearningRate sets the Adam step size.
func WithLearningRate(lr float64) Option {
	return func(a *Autoencoder) {
		a.learningRate = lr
	}
}

// WithEarlyStopping stops training after patience epochs without
// validation improvement. Zero disables early stopping.
func WithEarlyStopping(patience int) Option {
	return func(a *Autoencoder) {
		a.patience = patience
	}
}

// WithValidationSplit holds out the trailing fraction of the training rows
// for early stopping.
func WithValidationSplit(f float64) Option {
	return func(a *Autoencoder) {
		a.validationSplit = f
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(a *Autoencoder) {
		a.rng = rand.New(rand.NewSource(seed))
	}
}

// New creates a new Autoencoder with the given options.
func New(opts ...Option) *Autoencoder {
	a := &Autoencoder{
		hidden:          []int{64, 32},
		epochs:          30,
		batchSize:       256,
		learningRate:    0.001,
		patience:        5,
		validationSplit: 0.1,
		rng:             rand.New(rand.NewSource(42)),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Fit trains the autoencoder to reconstruct data.
func (a *Autoencoder) Fit(data [][]float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(data) == 0 {
		return errors.New("empty training data")
	}
	nFeatures := len(data[0])
	if nFeatures == 0 {
		return errors.New("training data has no features")
	}
	for i, row := range data {
		if err := detectors.CheckWidth(row, nFeatures); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	if a.epochs <= 0 || a.batchSize <= 0 {
		return fmt.Errorf("epochs (%d) and batch size (%d) must be positive", a.epochs, a.batchSize)
	}

	a.nFeatures = nFeatures
	a.layers = a.initLayers(a.widths(nFeatures))

	train, val := data, [][]float64(nil)
	if nVal := int(float64(len(data)) * a.validationSplit); nVal > 0 && nVal < len(data) {
		train, val = data[:len(data)-nVal], data[len(data)-nVal:]
	}

	opt := newAdam(a.layers, a.learningRate)
	best := math.Inf(1)
	bestLayers := cloneLayers(a.layers)
	stale := 0
	a.history = a.history[:0]

	order := make([]int, len(train))
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < a.epochs; epoch++ {
		a.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for start := 0; start < len(order); start += a.batchSize {
			end := min(start+a.batchSize, len(order))
			grads := newGrads(a.layers)
			for _, idx := range order[start:end] {
				a.backprop(train[idx], grads, float64(end-start))
			}
			opt.step(a.layers, grads)
		}

		monitor := val
		if len(monitor) == 0 {
			monitor = train
		}
		loss := a.meanLoss(monitor)
		a.history = append(a.history, loss)

		if loss < best {
			best = loss
			bestLayers = cloneLayers(a.layers)
			stale = 0
			continue
		}
		stale++
		if a.patience > 0 && stale >= a.patience {
			break
		}
	}

	a.layers = bestLayers
	a.trained = true
	return nil
}

// widths returns the layer sizes from input to reconstruction.
func (a *Autoencoder) widths(nFeatures int) []int {
	code := a.bottleneck
	if code <= 0 {
		code = max(1, min(16, nFeatures/2))
	}
	w := []int{nFeatures}
	w = append(w, a.hidden...)
	w = append(w, code)
	for i := len(a.hidden) - 1; i >= 0; i-- {
		w = append(w, a.hidden[i])
	}
	return append(w, nFeatures)
}

// initLayers applies Glorot-uniform initialization.
func (a *Autoencoder) initLayers(widths []int) []dense {
	layers := make([]dense, len(widths)-1)
	for l := range layers {
		in, out := widths[l], widths[l+1]
		limit := math.Sqrt(6 / float64(in+out))
		w := make([][]float64, out)
		for i := range w {
			w[i] = make([]float64, in)
			for j := range w[i] {
				w[i][j] = (a.rng.Float64()*2 - 1) * limit
			}
		}
		layers[l] = dense{W: w, B: make([]float64, out), Linear: l == len(layers)-1}
	}
	return layers
}

// forward returns the activations of every layer, input first.
func forward(layers []dense, x []float64) [][]float64 {
	acts := make([][]float64, len(layers)+1)
	acts[0] = x
	for l, layer := range layers {
		in := acts[l]
		out := make([]float64, len(layer.B))
		for i, row := range layer.W {
			s := layer.B[i]
			for j, w := range row {
				s += w * in[j]
			}
			if !layer.Linear && s < 0 {
				s = 0
			}
			out[i] = s
		}
		acts[l+1] = out
	}
	return acts
}

// backprop accumulates the MSE gradient of one sample, scaled by 1/batch.
func (a *Autoencoder) backprop(x []float64, g []dense, batch float64) {
	acts := forward(a.layers, x)
	last := len(a.layers)
	out := acts[last]

	delta := make([]float64, len(out))
	scale := 2 / (float64(len(out)) * batch)
	for i := range out {
		delta[i] = (out[i] - x[i]) * scale
	}

	for l := last - 1; l >= 0; l-- {
		layer := a.layers[l]
		in := acts[l]
		for i, d := range delta {
			g[l].B[i] += d
			row := g[l].W[i]
			for j, v := range in {
				row[j] += d * v
			}
		}
		if l == 0 {
			break
		}
		prev := make([]float64, len(in))
		for i, d := range delta {
			for j, w := range layer.W[i] {
				prev[j] += d * w
			}
		}
		// Hidden layers are ReLU.
		for j := range prev {
			if in[j] <= 0 {
				prev[j] = 0
			}
		}
		delta = prev
	}
}

func (a *Autoencoder) meanLoss(data [][]float64) float64 {
	var total float64
	for _, row := range data {
		total += a.mse(row)
	}
	return total / float64(len(data))
}

func (a *Autoencoder) mse(x []float64) float64 {
	acts := forward(a.layers, x)
	out := acts[len(acts)-1]
	var s float64
	for i := range x {
		d := out[i] - x[i]
		s += d * d
	}
	return s / float64(len(x))
}

// Predict returns the reconstruction error of every sample.
func (a *Autoencoder) Predict(data [][]float64) ([]float64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.trained {
		return nil, detectors.ErrNotTrained
	}
	scores := make([]float64, len(data))
	for i, row := range data {
		if err := detectors.CheckWidth(row, a.nFeatures); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		scores[i] = a.mse(row)
	}
	return scores, nil
}

// PredictOne returns the mean squared reconstruction error of sample.
func (a *Autoencoder) PredictOne(sample []float64) (float64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.trained {
		return 0, detectors.ErrNotTrained
	}
	if err := detectors.CheckWidth(sample, a.nFeatures); err != nil {
		return 0, err
	}
	return a.mse(sample), nil
}

// Reconstruct runs a forward pass and returns the network output.
func (a *Autoencoder) Reconstruct(sample []float64) ([]float64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.trained {
		return nil, detectors.ErrNotTrained
	}
	if err := detectors.CheckWidth(sample, a.nFeatures); err != nil {
		return nil, err
	}
	acts := forward(a.layers, sample)
	return acts[len(acts)-1], nil
}

// Features returns the sample width the autoencoder was fit on.
func (a *Autoencoder) Features() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nFeatures
}

// History returns the monitored loss of each completed epoch.
func (a *Autoencoder) History() []float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]float64(nil), a.history...)
}

type snapshot struct {
	NFeatures int
	Layers    []dense
}

// Save serializes the trained weights.
func (a *Autoencoder) Save() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.trained {
		return nil, detectors.ErrNotTrained
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshot{NFeatures: a.nFeatures, Layers: a.layers}); err != nil {
		return nil, fmt.Errorf("encode autoencoder: %w", err)
	}
	return buf.Bytes(), nil
}

// Load deserializes trained weights.
func (a *Autoencoder) Load(data []byte) error {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return fmt.Errorf("decode autoencoder: %w", err)
	}
	if err := checkShape(s); err != nil {
		return fmt.Errorf("decode autoencoder: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.nFeatures = s.NFeatures
	a.layers = s.Layers
	a.trained = true
	return nil
}

// checkShape verifies that consecutive layers connect and the output width
// equals the input width.
func checkShape(s snapshot) error {
	if len(s.Layers) == 0 || s.NFeatures <= 0 {
		return errors.New("empty model")
	}
	in := s.NFeatures
	for l, layer := range s.Layers {
		if len(layer.W) == 0 || len(layer.W) != len(layer.B) {
			return fmt.Errorf("layer %d: %d weight rows, %d biases", l, len(layer.W), len(layer.B))
		}
		for i, row := range layer.W {
			if len(row) != in {
				return fmt.Errorf("layer %d row %d: %d inputs, want %d", l, i, len(row), in)
			}
		}
		in = len(layer.B)
	}
	if in != s.NFeatures {
		return fmt.Errorf("output width %d, want %d", in, s.NFeatures)
	}
	return nil
}

func newGrads(layers []dense) []dense {
	g := make([]dense, len(layers))
	for l, layer := range layers {
		w := make([][]float64, len(layer.W))
		for i := range w {
			w[i] = make([]float64, len(layer.W[i]))
		}
		g[l] = dense{W: w, B: make([]float64, len(layer.B))}
	}
	return g
}

func cloneLayers(layers []dense) []dense {
	c := make([]dense, len(layers))
	for l, layer := range layers {
		w := make([][]float64, len(layer.W))
		for i := range w {
			w[i] = append([]float64(nil), layer.W[i]...)
		}
		c[l] = dense{W: w, B: append([]float64(nil), layer.B...), Linear: layer.Linear}
	}
	return c
}
