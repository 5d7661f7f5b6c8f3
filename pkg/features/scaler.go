package features

import (
	"errors"
	"fmt"
	"math"
)

// Scaler holds per-feature standardization parameters.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes the mean and population standard deviation of every
// column of data.
func FitScaler(data [][]float64) (Scaler, error) {
	if len(data) == 0 {
		return Scaler{}, errors.New("empty training data")
	}
	width := len(data[0])
	mean := make([]float64, width)
	std := make([]float64, width)

	for i, row := range data {
		if len(row) != width {
			return Scaler{}, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimension, i, len(row), width)
		}
		for j, x := range row {
			mean[j] += x
		}
	}
	n := float64(len(data))
	for j := range mean {
		mean[j] /= n
	}
	for _, row := range data {
		for j, x := range row {
			d := x - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / n)
	}
	return Scaler{Mean: mean, Std: std}, nil
}

// Width returns the number of features the scaler was fit on.
func (s Scaler) Width() int {
	return len(s.Mean)
}

// Standardize returns (x - mean) / std elementwise. A zero std is treated
// as one, so constant columns are only centered.
func Standardize(x []float64, s Scaler) ([]float64, error) {
	if len(x) != len(s.Mean) || len(s.Std) != len(s.Mean) {
		return nil, fmt.Errorf("%w: vector has %d features, scaler has %d", ErrDimension, len(x), len(s.Mean))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		sd := s.Std[i]
		if sd == 0 {
			sd = 1
		}
		out[i] = (v - s.Mean[i]) / sd
	}
	return out, nil
}

// StandardizeBatch applies Standardize to every row.
func StandardizeBatch(data [][]float64, s Scaler) ([][]float64, error) {
	out := make([][]float64, len(data))
	for i, row := range data {
		scaled, err := Standardize(row, s)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}
