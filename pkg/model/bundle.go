// Package model packages the fitted artifacts of the fraud ensemble into an
// immutable bundle and implements the ensemble decision, training and
// offline evaluation.
package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hed1ad/aegis/pkg/detectors"
	"github.com/hed1ad/aegis/pkg/detectors/autoencoder"
	"github.com/hed1ad/aegis/pkg/detectors/iforest"
	"github.com/hed1ad/aegis/pkg/features"
)

// ErrArtifact wraps every failure to load a model bundle.
var ErrArtifact = errors.New("model artifact")

// Artifact file names inside a bundle directory.
const (
	FeaturesFile    = "features.json"
	ForestFile      = "iforest.gob"
	AutoencoderFile = "autoencoder.gob"
)

// DecisionScorer is a detector exposing a signed decision function where
// lower values are more anomalous.
type DecisionScorer interface {
	detectors.Detector
	DecisionFunction(sample []float64) (float64, error)
}

// Bundle is the versioned set of artifacts produced by one training run.
// It is never modified after construction.
type Bundle struct {
	Version     string
	Features    features.Artifact
	Forest      DecisionScorer
	Autoencoder detectors.Detector
}

// NewBundle checks that every artifact agrees on the feature width.
func NewBundle(f features.Artifact, forest DecisionScorer, ae detectors.Detector) (*Bundle, error) {
	if err := f.Check(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifact, err)
	}
	if forest == nil || ae == nil {
		return nil, fmt.Errorf("%w: both detectors are required", ErrArtifact)
	}
	w := f.Vocabulary.Width()
	if forest.Features() != w {
		return nil, fmt.Errorf("%w: isolation forest expects %d features, vocabulary encodes %d", ErrArtifact, forest.Features(), w)
	}
	if ae.Features() != w {
		return nil, fmt.Errorf("%w: autoencoder expects %d features, vocabulary encodes %d", ErrArtifact, ae.Features(), w)
	}
	return &Bundle{Features: f, Forest: forest, Autoencoder: ae}, nil
}

// Width returns the feature width shared by all artifacts.
func (b *Bundle) Width() int {
	return b.Features.Vocabulary.Width()
}

// Save writes the bundle artifacts into dir, creating it if needed, and
// sets b.Version.
func (b *Bundle) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	var fbuf bytes.Buffer
	if err := b.Features.Write(&fbuf); err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	forest, err := b.Forest.Save()
	if err != nil {
		return err
	}
	ae, err := b.Autoencoder.Save()
	if err != nil {
		return err
	}

	files := map[string][]byte{
		FeaturesFile:    fbuf.Bytes(),
		ForestFile:      forest,
		AutoencoderFile: ae,
	}
	for name, data := range files {
		if err := writeFileAtomic(filepath.Join(dir, name), data); err != nil {
			return err
		}
	}
	b.Version = version(fbuf.Bytes(), forest, ae)
	return nil
}

// Load reads and cross-checks a bundle from dir. Any missing, corrupt or
// inconsistent artifact is an ErrArtifact.
func Load(dir string) (*Bundle, error) {
	read := func(name string) ([]byte, error) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrArtifact, err)
		}
		return data, nil
	}

	fdata, err := read(FeaturesFile)
	if err != nil {
		return nil, err
	}
	fa, err := features.ReadArtifact(bytes.NewReader(fdata))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrArtifact, FeaturesFile, err)
	}

	idata, err := read(ForestFile)
	if err != nil {
		return nil, err
	}
	forest := iforest.New()
	if err := forest.Load(idata); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrArtifact, ForestFile, err)
	}

	adata, err := read(AutoencoderFile)
	if err != nil {
		return nil, err
	}
	ae := autoencoder.New()
	if err := ae.Load(adata); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrArtifact, AutoencoderFile, err)
	}

	b, err := NewBundle(fa, forest, ae)
	if err != nil {
		return nil, err
	}
	b.Version = version(fdata, idata, adata)
	return b, nil
}

func version(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
