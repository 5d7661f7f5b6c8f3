package iforest

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/aegis/pkg/detectors"
)

var _ detectors.Detector = (*IsolationForest)(nil)

func TestNewIsolationForest(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		wantNTrees int
		wantCont   float64
	}{
		{
			name:       "default configuration",
			opts:       nil,
			wantNTrees: 100,
			wantCont:   0.1,
		},
		{
			name:       "custom trees",
			opts:       []Option{WithTrees(50)},
			wantNTrees: 50,
			wantCont:   0.1,
		},
		{
			name:       "shared config",
			opts:       []Option{WithTrees(200), WithConfig(detectors.DefaultConfig())},
			wantNTrees: 200,
			wantCont:   0.01,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.opts...)
			assert.Equal(t, tt.wantNTrees, f.nTrees)
			assert.Equal(t, tt.wantCont, f.contamination)
		})
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name    string
		data    [][]float64
		opts    []Option
		wantErr bool
	}{
		{
			name:    "empty data",
			data:    [][]float64{},
			wantErr: true,
		},
		{
			name:    "ragged rows",
			data:    [][]float64{{1, 2}, {1}},
			wantErr: true,
		},
		{
			name:    "contamination out of range",
			data:    generateTestData(10, 2),
			opts:    []Option{WithContamination(0.9)},
			wantErr: true,
		},
		{
			name: "single sample",
			data: [][]float64{{1.0, 2.0, 3.0}},
		},
		{
			name: "two samples",
			data: [][]float64{{1.0, 2.0}, {3.0, 4.0}},
		},
		{
			name: "normal data",
			data: generateTestData(100, 5),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(append([]Option{WithTrees(10), WithSeed(42)}, tt.opts...)...)
			err := f.Fit(tt.data)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.True(t, f.trained)
				assert.Len(t, f.trees, f.nTrees)
				assert.Equal(t, len(tt.data[0]), f.Features())
			}
		})
	}
}

func TestPredict(t *testing.T) {
	trainData := generateTestData(500, 5)
	f := New(WithTrees(50), WithSampleSize(100), WithSeed(42))
	require.NoError(t, f.Fit(trainData))

	t.Run("predict on normal data", func(t *testing.T) {
		testData := generateTestData(100, 5)
		scores, err := f.Predict(testData)

		require.NoError(t, err)
		assert.Len(t, scores, len(testData))

		for _, score := range scores {
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	})

	t.Run("predict on anomalies", func(t *testing.T) {
		anomalies := [][]float64{
			{1000, 1000, 1000, 1000, 1000},
			{-500, -500, -500, -500, -500},
		}
		scores, err := f.Predict(anomalies)

		require.NoError(t, err)
		for _, score := range scores {
			assert.Greater(t, score, 0.4, "anomalies should have high scores")
		}
	})

	t.Run("wrong width", func(t *testing.T) {
		_, err := f.PredictOne([]float64{1, 2})
		var werr *detectors.WidthError
		assert.ErrorAs(t, err, &werr)
	})

	t.Run("predict before fit", func(t *testing.T) {
		untrained := New()
		_, err := untrained.Predict(trainData)
		assert.ErrorIs(t, err, detectors.ErrNotTrained)
		_, err = untrained.DecisionFunction(trainData[0])
		assert.ErrorIs(t, err, detectors.ErrNotTrained)
	})
}

func TestDecisionFunction(t *testing.T) {
	trainData := generateTestData(1000, 3)
	f := New(WithTrees(100), WithContamination(0.05), WithSeed(7))
	require.NoError(t, f.Fit(trainData))

	inlier, err := f.DecisionFunction([]float64{0, 0, 0})
	require.NoError(t, err)
	outlier, err := f.DecisionFunction([]float64{40, -40, 40})
	require.NoError(t, err)

	assert.Greater(t, inlier, 0.0)
	assert.Less(t, outlier, 0.0)
	assert.Less(t, outlier, inlier)

	t.Run("contamination share falls below zero", func(t *testing.T) {
		below := 0
		for _, row := range trainData {
			d, err := f.DecisionFunction(row)
			require.NoError(t, err)
			if d < 0 {
				below++
			}
		}
		assert.InDelta(t, 50, below, 5)
	})

	t.Run("zero contamination uses fixed offset", func(t *testing.T) {
		g := New(WithTrees(10), WithContamination(0))
		require.NoError(t, g.Fit(trainData))
		assert.Equal(t, offsetAuto, g.Offset())
	})
}

func TestPredictOne(t *testing.T) {
	trainData := generateTestData(200, 3)
	f := New(WithTrees(20), WithSeed(42))
	require.NoError(t, f.Fit(trainData))

	score, err := f.PredictOne([]float64{0.5, 0.5, 0.5})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestSaveLoad(t *testing.T) {
	trainData := generateTestData(200, 4)
	original := New(WithTrees(30), WithContamination(0.15), WithSeed(42))
	require.NoError(t, original.Fit(trainData))

	testData := generateTestData(50, 4)
	originalScores, err := original.Predict(testData)
	require.NoError(t, err)

	data, err := original.Save()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	loaded := New()
	require.NoError(t, loaded.Load(data))

	loadedScores, err := loaded.Predict(testData)
	require.NoError(t, err)
	assert.Equal(t, originalScores, loadedScores)

	want, err := original.DecisionFunction(testData[0])
	require.NoError(t, err)
	got, err := loaded.DecisionFunction(testData[0])
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 4, loaded.Features())

	t.Run("save before fit", func(t *testing.T) {
		_, err := New().Save()
		assert.ErrorIs(t, err, detectors.ErrNotTrained)
	})

	t.Run("corrupt payload", func(t *testing.T) {
		assert.Error(t, New().Load([]byte("not a forest")))
	})
}

func TestValidTree(t *testing.T) {
	assert.NoError(t, validTree([]Node{{Left: 1, Right: 2}, {Left: -1, Right: -1}, {Left: -1, Right: -1}}, 1))
	assert.Error(t, validTree(nil, 1))
	assert.Error(t, validTree([]Node{{Left: 0, Right: 0}}, 1))
	assert.Error(t, validTree([]Node{{Feature: 3, Left: 1, Right: 2}, {Left: -1}, {Left: -1}}, 1))
}

func TestPercentile(t *testing.T) {
	data := []float64{5, 1, 4, 2, 3}
	assert.Equal(t, 1.0, percentile(data, 0))
	assert.Equal(t, 3.0, percentile(data, 50))
	assert.Equal(t, 5.0, percentile(data, 100))
	assert.InDelta(t, 1.4, percentile(data, 10), 1e-12)
	assert.Equal(t, []float64{5, 1, 4, 2, 3}, data, "input must not be reordered")
}

func BenchmarkFit(b *testing.B) {
	data := generateTestData(10000, 10)
	f := New(WithTrees(100), WithSampleSize(256))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = f.Fit(data)
	}
}

func BenchmarkDecisionFunction(b *testing.B) {
	trainData := generateTestData(5000, 10)
	sample := make([]float64, 10)
	for i := range sample {
		sample[i] = rand.Float64()
	}

	f := New(WithTrees(100), WithSampleSize(256))
	_ = f.Fit(trainData)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = f.DecisionFunction(sample)
	}
}

func generateTestData(n, features int) [][]float64 {
	rng := rand.New(rand.NewSource(int64(n*31 + features)))
	data := make([][]float64, n)
	for i := 0; i < n; i++ {
		data[i] = make([]float64, features)
		for j := 0; j < features; j++ {
			data[i][j] = rng.NormFloat64()
		}
	}
	return data
}
