package embedding

import (
	"fmt"

	"mivta/internal/features"

	"gonum.org/v1/gonum/mat"
)

// ParamsVersion is bumped when the serialized layout changes.
const ParamsVersion = 1

// Params is the serializable form of a fitted normalizer and projection.
// Matrices are stored row-major.
type Params struct {
	Version      int       `msgpack:"version" json:"version"`
	Mean         []float64 `msgpack:"mean" json:"mean"`
	Std          []float64 `msgpack:"std" json:"std"`
	HiddenDim    int       `msgpack:"hidden_dim" json:"hidden_dim"`
	EmbeddingDim int       `msgpack:"embedding_dim" json:"embedding_dim"`
	W1           []float64 `msgpack:"w1" json:"-"`
	B1           []float64 `msgpack:"b1" json:"-"`
	W2           []float64 `msgpack:"w2" json:"-"`
	B2           []float64 `msgpack:"b2" json:"-"`
}

// Params exports the fitted state. ok is false for an untrained model.
func (m *Model) Params() (p Params, ok bool) {
	m.mu.RLock()
	st := m.st
	m.mu.RUnlock()
	if st.norm == nil || st.proj == nil {
		return Params{}, false
	}
	_, hidden, out := st.proj.dims()
	return Params{
		Version:      ParamsVersion,
		Mean:         append([]float64(nil), st.norm.mean[:]...),
		Std:          append([]float64(nil), st.norm.std[:]...),
		HiddenDim:    hidden,
		EmbeddingDim: out,
		W1:           append([]float64(nil), st.proj.w1.RawMatrix().Data...),
		B1:           append([]float64(nil), st.proj.b1.RawVector().Data...),
		W2:           append([]float64(nil), st.proj.w2.RawMatrix().Data...),
		B2:           append([]float64(nil), st.proj.b2.RawVector().Data...),
	}, true
}

// Restore installs previously exported parameters. Stored references become
// stale until RefreshReferences is called.
func (m *Model) Restore(p Params) error {
	if p.Version != ParamsVersion {
		return fmt.Errorf("restore: unsupported params version %d", p.Version)
	}
	h, e := p.HiddenDim, p.EmbeddingDim
	switch {
	case len(p.Mean) != features.Dim || len(p.Std) != features.Dim:
		return fmt.Errorf("restore: normalizer has %d/%d dims, want %d", len(p.Mean), len(p.Std), features.Dim)
	case h <= 0 || e <= 0:
		return fmt.Errorf("restore: invalid layer sizes %d/%d", h, e)
	case len(p.W1) != h*features.Dim || len(p.B1) != h || len(p.W2) != e*h || len(p.B2) != e:
		return fmt.Errorf("restore: weight shapes do not match %dx%dx%d", features.Dim, h, e)
	}
	norm := &normalizer{}
	copy(norm.mean[:], p.Mean)
	copy(norm.std[:], p.Std)
	proj := &projection{
		w1: mat.NewDense(h, features.Dim, append([]float64(nil), p.W1...)),
		b1: mat.NewVecDense(h, append([]float64(nil), p.B1...)),
		w2: mat.NewDense(e, h, append([]float64(nil), p.W2...)),
		b2: mat.NewVecDense(e, append([]float64(nil), p.B2...)),
	}
	gen := m.install(norm, proj)
	m.logger.Debugf("embedding: restored projection %dx%dx%d (generation %d)", features.Dim, h, e, gen)
	return nil
}
