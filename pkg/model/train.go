package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hed1ad/aegis/pkg/detectors/autoencoder"
	"github.com/hed1ad/aegis/pkg/detectors/iforest"
	"github.com/hed1ad/aegis/pkg/features"
	"github.com/hed1ad/aegis/pkg/logger"
	"github.com/hed1ad/aegis/pkg/txn"
)

// TrainConfig parameterizes a training run.
type TrainConfig struct {
	TopCountries int
	TopMerchants int

	Trees         int
	SampleSize    int
	Contamination float64

	Hidden          []int
	Bottleneck      int
	Epochs          int
	BatchSize       int
	LearningRate    float64
	Patience        int
	ValidationSplit float64

	Seed int64

	// Thresholds are used only to evaluate the fitted bundle.
	Thresholds Thresholds
}

// DefaultTrainConfig mirrors the reference training run.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		TopCountries:    10,
		TopMerchants:    20,
		Trees:           200,
		SampleSize:      256,
		Contamination:   0.01,
		Hidden:          []int{64, 32},
		Epochs:          30,
		BatchSize:       256,
		LearningRate:    0.001,
		Patience:        5,
		ValidationSplit: 0.1,
		Seed:            42,
		Thresholds:      DefaultThresholds(),
	}
}

// Report summarizes a training run.
type Report struct {
	Rows     int
	Features []string
	Duration time.Duration

	ForestOffset float64
	AEMSEMean    float64
	AEMSEP95     float64

	// Confusion is only populated when the corpus carries labels.
	Confusion *Confusion
}

// Train fits a complete bundle on records. Every record goes through the
// same features.Encode used at inference time.
func Train(ctx context.Context, records []txn.Labeled, cfg TrainConfig) (*Bundle, Report, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	if len(records) == 0 {
		return nil, Report{}, errors.New("no training records")
	}
	corpus := make([]txn.Transaction, len(records))
	for i, r := range records {
		corpus[i] = r.Transaction
	}

	vocab := features.FitVocabulary(corpus, cfg.TopCountries, cfg.TopMerchants)
	matrix, err := features.EncodeBatch(corpus, vocab)
	if err != nil {
		return nil, Report{}, fmt.Errorf("encode corpus: %w", err)
	}
	scaler, err := features.FitScaler(matrix)
	if err != nil {
		return nil, Report{}, fmt.Errorf("fit scaler: %w", err)
	}
	scaled, err := features.StandardizeBatch(matrix, scaler)
	if err != nil {
		return nil, Report{}, fmt.Errorf("standardize corpus: %w", err)
	}
	artifact, err := features.NewArtifact(vocab, scaler)
	if err != nil {
		return nil, Report{}, err
	}
	log.Info().Int("rows", len(scaled)).Int("features", vocab.Width()).Msg("feature matrix ready")

	if err := ctx.Err(); err != nil {
		return nil, Report{}, err
	}

	forest := iforest.New(
		iforest.WithTrees(cfg.Trees),
		iforest.WithSampleSize(cfg.SampleSize),
		iforest.WithContamination(cfg.Contamination),
		iforest.WithSeed(cfg.Seed),
	)
	if err := forest.Fit(scaled); err != nil {
		return nil, Report{}, fmt.Errorf("fit isolation forest: %w", err)
	}
	log.Info().Int("trees", cfg.Trees).Float64("offset", forest.Offset()).Msg("isolation forest fitted")

	if err := ctx.Err(); err != nil {
		return nil, Report{}, err
	}

	ae := autoencoder.New(
		autoencoder.WithHidden(cfg.Hidden...),
		autoencoder.WithBottleneck(cfg.Bottleneck),
		autoencoder.WithEpochs(cfg.Epochs),
		autoencoder.WithBatchSize(cfg.BatchSize),
		autoencoder.WithLearningRate(cfg.LearningRate),
		autoencoder.WithEarlyStopping(cfg.Patience),
		autoencoder.WithValidationSplit(cfg.ValidationSplit),
		autoencoder.WithSeed(cfg.Seed),
	)
	if err := ae.Fit(scaled); err != nil {
		return nil, Report{}, fmt.Errorf("fit autoencoder: %w", err)
	}
	log.Info().Int("epochs", len(ae.History())).Msg("autoencoder fitted")

	bundle, err := NewBundle(artifact, forest, ae)
	if err != nil {
		return nil, Report{}, err
	}

	mse, err := ae.Predict(scaled)
	if err != nil {
		return nil, Report{}, err
	}
	report := Report{
		Rows:         len(records),
		Features:     vocab.Names(),
		ForestOffset: forest.Offset(),
		AEMSEMean:    mean(mse),
		AEMSEP95:     quantile(mse, 0.95),
	}

	ens, err := NewEnsemble(bundle, cfg.Thresholds)
	if err != nil {
		return nil, Report{}, err
	}
	if c, ok := Evaluate(ens, records); ok {
		report.Confusion = &c
	}
	report.Duration = time.Since(start)

	return bundle, report, nil
}

// Confusion counts ensemble decisions against ground-truth labels.
type Confusion struct {
	TP, FP, TN, FN int
	// Errors counts records that could not be scored.
	Errors int
}

// Precision returns TP / (TP + FP), or 0 when nothing was flagged.
func (c Confusion) Precision() float64 {
	if c.TP+c.FP == 0 {
		return 0
	}
	return float64(c.TP) / float64(c.TP+c.FP)
}

// Recall returns TP / (TP + FN), or 0 when there are no positives.
func (c Confusion) Recall() float64 {
	if c.TP+c.FN == 0 {
		return 0
	}
	return float64(c.TP) / float64(c.TP+c.FN)
}

// Evaluate scores every labeled record. It reports false when no record
// carries a label.
func Evaluate(e *Ensemble, records []txn.Labeled) (Confusion, bool) {
	var c Confusion
	labeled := false
	for _, r := range records {
		if !r.HasLabel {
			continue
		}
		labeled = true
		s, err := e.ScoreTransaction(r.Transaction)
		if err != nil {
			c.Errors++
			continue
		}
		switch {
		case s.Label == 1 && r.Label == 1:
			c.TP++
		case s.Label == 1:
			c.FP++
		case r.Label == 1:
			c.FN++
		default:
			c.TN++
		}
	}
	return c, labeled
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// quantile returns the q-quantile of xs with linear interpolation.
func quantile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	rank := q * float64(len(sorted)-1)
	lo := int(rank)
	if lo+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (rank-float64(lo))*(sorted[lo+1]-sorted[lo])
}
