package model

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/hed1ad/aegis/pkg/txn"
)

// ErrScoring wraps every non-validation failure while scoring.
var ErrScoring = errors.New("scoring failed")

// Thresholds are the two static cut-offs of the disjunctive ensemble.
type Thresholds struct {
	// IsolationForest flags decision-function values below it.
	IsolationForest float64
	// Autoencoder flags reconstruction errors above it.
	Autoencoder float64
}

// DefaultThresholds returns the operating point shipped with the demo.
func DefaultThresholds() Thresholds {
	return Thresholds{IsolationForest: 0.1, Autoencoder: 0.05}
}

// Validate rejects thresholds that cannot be compared against.
func (t Thresholds) Validate() error {
	if math.IsNaN(t.IsolationForest) || math.IsInf(t.IsolationForest, 0) {
		return fmt.Errorf("isolation forest threshold %v is not finite", t.IsolationForest)
	}
	if math.IsNaN(t.Autoencoder) || math.IsInf(t.Autoencoder, 0) || t.Autoencoder < 0 {
		return fmt.Errorf("autoencoder threshold %v must be finite and non-negative", t.Autoencoder)
	}
	return nil
}

// Label returns 1 when either detector fires.
func (t Thresholds) Label(ifScore, aeMSE float64) int {
	if ifScore < t.IsolationForest || aeMSE > t.Autoencoder {
		return 1
	}
	return 0
}

// Scores is the ensemble output for one transaction.
type Scores struct {
	IFScore float64
	AEMSE   float64
	Label   int
}

// Ensemble scores transactions against an immutable bundle. Thresholds can
// be replaced at runtime; the bundle cannot.
type Ensemble struct {
	bundle     *Bundle
	thresholds atomic.Pointer[Thresholds]
}

// NewEnsemble binds a bundle to an initial operating point.
func NewEnsemble(b *Bundle, t Thresholds) (*Ensemble, error) {
	if b == nil {
		return nil, errors.New("nil model bundle")
	}
	e := &Ensemble{bundle: b}
	if err := e.SetThresholds(t); err != nil {
		return nil, err
	}
	return e, nil
}

// Bundle returns the model bundle.
func (e *Ensemble) Bundle() *Bundle {
	return e.bundle
}

// Thresholds returns the current operating point.
func (e *Ensemble) Thresholds() Thresholds {
	return *e.thresholds.Load()
}

// SetThresholds atomically replaces the operating point.
func (e *Ensemble) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	e.thresholds.Store(&t)
	return nil
}

// Score runs both detectors on a standardized vector and applies the
// current thresholds.
func (e *Ensemble) Score(x []float64) (Scores, error) {
	ifScore, err := e.bundle.Forest.DecisionFunction(x)
	if err != nil {
		return Scores{}, fmt.Errorf("%w: isolation forest: %w", ErrScoring, err)
	}
	mse, err := e.bundle.Autoencoder.PredictOne(x)
	if err != nil {
		return Scores{}, fmt.Errorf("%w: autoencoder: %w", ErrScoring, err)
	}
	if math.IsNaN(ifScore) || math.IsInf(ifScore, 0) || math.IsNaN(mse) || math.IsInf(mse, 0) {
		return Scores{}, fmt.Errorf("%w: non-finite scores if=%v mse=%v", ErrScoring, ifScore, mse)
	}

	return Scores{
		IFScore: ifScore,
		AEMSE:   mse,
		Label:   e.Thresholds().Label(ifScore, mse),
	}, nil
}

// ScoreTransaction validates, encodes, standardizes and scores t. A panic
// anywhere in the chain is returned as an error for this call only.
func (e *Ensemble) ScoreTransaction(t txn.Transaction) (s Scores, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = Scores{}, fmt.Errorf("%w: panic: %v", ErrScoring, r)
		}
	}()

	if err := t.Validate(); err != nil {
		return Scores{}, err
	}
	x, err := e.bundle.Features.Transform(t)
	if err != nil {
		if errors.Is(err, txn.ErrInvalid) {
			return Scores{}, err
		}
		return Scores{}, fmt.Errorf("%w: %w", ErrScoring, err)
	}
	return e.Score(x)
}
