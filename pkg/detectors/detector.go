// Package detectors provides the unsupervised anomaly scorers used by the
// fraud ensemble.
package detectors

import (
	"errors"
	"fmt"
)

// ErrNotTrained is returned when a detector is used before Fit or Load.
var ErrNotTrained = errors.New("model not trained")

// Detector is the common interface for all anomaly detection algorithms.
//
// A fitted detector is read-only: once Fit or Load has returned, its
// prediction methods are safe for concurrent use.
type Detector interface {
	// Fit trains the detector on historical data.
	// data is a 2D slice where each row is a sample and each column is a feature.
	Fit(data [][]float64) error

	// Predict returns anomaly scores for the given samples.
	// Scores are on the detector's native scale; higher values indicate anomalies.
	Predict(data [][]float64) ([]float64, error)

	// PredictOne returns the anomaly score for a single sample.
	PredictOne(sample []float64) (float64, error)

	// Features returns the sample width the detector was fit on.
	Features() int

	// Save serializes the trained model to bytes.
	Save() ([]byte, error)

	// Load deserializes a trained model from bytes.
	Load(data []byte) error
}

// Config holds common configuration for detectors.
type Config struct {
	// Contamination is the expected proportion of anomalies in training data.
	Contamination float64
	// RandomSeed for reproducibility.
	RandomSeed int64
}

// DefaultConfig returns the configuration used for fraud training.
func DefaultConfig() Config {
	return Config{
		Contamination: 0.01,
		RandomSeed:    42,
	}
}

// CheckWidth reports whether sample matches the width a detector was fit on.
func CheckWidth(sample []float64, want int) error {
	if len(sample) != want {
		return &WidthError{Got: len(sample), Want: want}
	}
	return nil
}

// WidthError describes a sample of the wrong width.
type WidthError struct {
	Got, Want int
}

func (e *WidthError) Error() string {
	return fmt.Sprintf("sample has %d features, model expects %d", e.Got, e.Want)
}
