package features

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/hed1ad/aegis/pkg/txn"
)

// ArtifactVersion is the current on-disk format of Artifact.
const ArtifactVersion = 1

// Artifact binds a vocabulary to the scaler fit on vectors encoded with it.
// The two are always persisted and loaded together.
type Artifact struct {
	Version    int        `json:"version"`
	Names      []string   `json:"names"`
	Vocabulary Vocabulary `json:"vocabulary"`
	Scaler     Scaler     `json:"scaler"`
}

// NewArtifact pairs v and s, checking that their widths agree.
func NewArtifact(v Vocabulary, s Scaler) (Artifact, error) {
	a := Artifact{
		Version:    ArtifactVersion,
		Names:      v.Names(),
		Vocabulary: v,
		Scaler:     s,
	}
	return a, a.Check()
}

// Check verifies the internal consistency of the artifact.
func (a Artifact) Check() error {
	if a.Version != ArtifactVersion {
		return fmt.Errorf("unsupported feature artifact version %d", a.Version)
	}
	w := a.Vocabulary.Width()
	if a.Scaler.Width() != w || len(a.Scaler.Std) != w {
		return fmt.Errorf("%w: vocabulary width %d, scaler mean %d std %d",
			ErrDimension, w, len(a.Scaler.Mean), len(a.Scaler.Std))
	}
	if !slices.Equal(a.Names, a.Vocabulary.Names()) {
		return fmt.Errorf("%w: stored column names do not match vocabulary", ErrDimension)
	}
	return nil
}

// Transform encodes t with the artifact vocabulary and standardizes the
// result with the artifact scaler.
func (a Artifact) Transform(t txn.Transaction) ([]float64, error) {
	vec, err := Encode(t, a.Vocabulary)
	if err != nil {
		return nil, err
	}
	return Standardize(vec, a.Scaler)
}

// Write serializes the artifact as indented JSON.
func (a Artifact) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

// ReadArtifact decodes and checks an artifact.
func ReadArtifact(r io.Reader) (Artifact, error) {
	var a Artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return Artifact{}, fmt.Errorf("decode feature artifact: %w", err)
	}
	if err := a.Check(); err != nil {
		return Artifact{}, err
	}
	return a, nil
}
