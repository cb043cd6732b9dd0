// Package embedding scores pronunciation quality by comparing feature
// vectors in a learned embedding space against stored reference syllables.
//
// A Model starts untrained: the embedding of a vector is its normalized form.
// Train fits a normalizer and a small two-layer projection. The reference
// store is copy-on-write, so a Snapshot taken for a correction pass is never
// disturbed by concurrent upserts or retraining.
package embedding

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"mivta/internal/config"
	"mivta/internal/features"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// ErrInsufficientData is returned by Train when the corpus has fewer than two
// distinct labels.
var ErrInsufficientData = errors.New("embedding: need samples of at least two labels")

// Message strings carried by assessments.
const (
	MsgNoReference = "no reference found"
	MsgGood        = "good pronunciation"
	MsgNeedsWork   = "needs improvement"
)

// Reference is a labeled canonical syllable.
type Reference struct {
	Label      string
	Features   features.Vector
	Embedding  []float64
	Generation uint64 // model generation the embedding was computed under
}

// Assessment is the quality verdict for one vector against one label.
type Assessment struct {
	Score           float64 `json:"score"`
	NeedsCorrection bool    `json:"needs_correction"`
	MatchedLabel    string  `json:"matched_label,omitempty"`
	Message         string  `json:"message"`
}

// state is published atomically under Model.mu and never mutated afterwards.
type state struct {
	norm       *normalizer
	proj       *projection
	generation uint64
	refs       []Reference
	index      map[string]int
}

// Model owns the normalizer, projection and reference store.
type Model struct {
	mu        sync.RWMutex
	st        *state
	threshold float64
	hiddenDim int
	embedDim  int
	logger    *logrus.Logger
}

// New returns an untrained model with an empty reference store.
func New(cfg *config.Config, logger *logrus.Logger) *Model {
	return &Model{
		st:        &state{index: map[string]int{}},
		threshold: cfg.Model.SimilarityThreshold,
		hiddenDim: cfg.Model.HiddenDim,
		embedDim:  cfg.Model.EmbeddingDim,
		logger:    logger,
	}
}

// Snapshot returns an immutable view of the current model state.
func (m *Model) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Snapshot{st: m.st, threshold: m.threshold}
}

// SetThreshold changes the default similarity threshold for later snapshots.
func (m *Model) SetThreshold(t float64) {
	m.mu.Lock()
	m.threshold = t
	m.mu.Unlock()
}

// Trained reports whether a projection is installed.
func (m *Model) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.proj != nil
}

// Embed maps v into the embedding space.
func (m *Model) Embed(v features.Vector) []float64 { return m.Snapshot().Embed(v) }

// Compare scores the similarity of a and b in [0,1].
func (m *Model) Compare(a, b features.Vector) float64 { return m.Snapshot().Compare(a, b) }

// Assess scores v against the reference stored under label.
func (m *Model) Assess(v features.Vector, label string) Assessment {
	return m.Snapshot().Assess(v, label)
}

// UpsertReference stores v under label, embedding it with the current
// normalizer and projection. An existing label keeps its insertion position.
func (m *Model) UpsertReference(label string, v features.Vector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.st
	ref := Reference{
		Label:      label,
		Features:   v,
		Embedding:  old.embed(v),
		Generation: old.generation,
	}
	refs := make([]Reference, len(old.refs), len(old.refs)+1)
	copy(refs, old.refs)
	index := old.index
	if i, ok := old.index[label]; ok {
		refs[i] = ref
	} else {
		index = make(map[string]int, len(old.index)+1)
		for k, i := range old.index {
			index[k] = i
		}
		index[label] = len(refs)
		refs = append(refs, ref)
	}
	m.st = &state{norm: old.norm, proj: old.proj, generation: old.generation, refs: refs, index: index}
	m.logger.Debugf("embedding: upsert reference %q (%d total)", label, len(refs))
}

// RemoveReference drops label from the store. It reports whether it existed.
func (m *Model) RemoveReference(label string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.st
	if _, ok := old.index[label]; !ok {
		return false
	}
	refs := make([]Reference, 0, len(old.refs)-1)
	index := make(map[string]int, len(old.index)-1)
	for _, r := range old.refs {
		if r.Label == label {
			continue
		}
		index[r.Label] = len(refs)
		refs = append(refs, r)
	}
	m.st = &state{norm: old.norm, proj: old.proj, generation: old.generation, refs: refs, index: index}
	return true
}

// RefreshReferences re-embeds every stored reference under the current
// model. It returns the number of references that were stale.
func (m *Model) RefreshReferences() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.st
	refs := make([]Reference, len(old.refs))
	stale := 0
	for i, r := range old.refs {
		if r.Generation != old.generation {
			stale++
		}
		r.Embedding = old.embed(r.Features)
		r.Generation = old.generation
		refs[i] = r
	}
	m.st = &state{norm: old.norm, proj: old.proj, generation: old.generation, refs: refs, index: old.index}
	return stale
}

// Reset drops the normalizer and projection. References are kept and
// become stale.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.st
	m.st = &state{generation: old.generation + 1, refs: old.refs, index: old.index}
}

func (m *Model) install(norm *normalizer, proj *projection) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.st
	m.st = &state{norm: norm, proj: proj, generation: old.generation + 1, refs: old.refs, index: old.index}
	return m.st.generation
}

func (s *state) embed(v features.Vector) []float64 {
	x := v.Slice()
	if s.norm != nil {
		s.norm.apply(x)
	}
	if s.proj == nil {
		return x
	}
	return s.proj.forward(x).out
}

// Snapshot is a consistent read-only view of a Model.
type Snapshot struct {
	st        *state
	threshold float64
}

// Threshold returns the default similarity threshold.
func (s *Snapshot) Threshold() float64 { return s.threshold }

// Generation returns the model generation of this view.
func (s *Snapshot) Generation() uint64 { return s.st.generation }

// Trained reports whether the view carries a learned projection.
func (s *Snapshot) Trained() bool { return s.st.proj != nil }

// Normalize applies the fitted per-dimension normalizer, if any.
func (s *Snapshot) Normalize(v features.Vector) []float64 {
	x := v.Slice()
	if s.st.norm != nil {
		s.st.norm.apply(x)
	}
	return x
}

// Embed maps v into the embedding space.
func (s *Snapshot) Embed(v features.Vector) []float64 { return s.st.embed(v) }

// References returns the stored references in insertion order. The slice
// must not be modified.
func (s *Snapshot) References() []Reference { return s.st.refs }

// Reference looks up label.
func (s *Snapshot) Reference(label string) (Reference, bool) {
	i, ok := s.st.index[label]
	if !ok {
		return Reference{}, false
	}
	return s.st.refs[i], true
}

// Stale reports whether ref was embedded under an older model generation.
func (s *Snapshot) Stale(ref Reference) bool { return ref.Generation != s.st.generation }

// Compare embeds a and b and maps their cosine similarity to [0,1].
// A zero vector carries no information and scores 0.
func (s *Snapshot) Compare(a, b features.Vector) float64 {
	if a.IsZero() || b.IsZero() {
		return 0
	}
	if a == b {
		return 1
	}
	return similarity(s.Embed(a), s.Embed(b))
}

// Assess scores v against label using the snapshot's threshold.
func (s *Snapshot) Assess(v features.Vector, label string) Assessment {
	return s.AssessAt(v, label, s.threshold)
}

// AssessAt scores v against label using threshold.
func (s *Snapshot) AssessAt(v features.Vector, label string, threshold float64) Assessment {
	ref, ok := s.Reference(label)
	if !ok {
		return Assessment{Score: 0, NeedsCorrection: true, Message: MsgNoReference}
	}
	score := s.Compare(v, ref.Features)
	a := Assessment{
		Score:           score,
		NeedsCorrection: score < threshold,
		MatchedLabel:    label,
		Message:         MsgGood,
	}
	if a.NeedsCorrection {
		a.Message = fmt.Sprintf("%s (%.2f < %.2f)", MsgNeedsWork, score, threshold)
	}
	return a
}

// BestMatch returns the reference with the strictly highest Compare score
// against v. Ties keep the earlier reference; if no reference scores above
// zero, ok is false.
func (s *Snapshot) BestMatch(v features.Vector) (label string, score float64, ok bool) {
	for _, r := range s.st.refs {
		if sc := s.Compare(v, r.Features); sc > score {
			label, score, ok = r.Label, sc, true
		}
	}
	return label, score, ok
}

// Cosine returns the cosine similarity of a and b, or 0 when either has zero
// norm. It panics if the lengths differ.
func Cosine(a, b []float64) float64 {
	cos, _ := cosine(a, b)
	return cos
}

func cosine(a, b []float64) (float64, bool) {
	if len(a) != len(b) {
		panic(fmt.Sprintf("embedding: dimension mismatch %d != %d", len(a), len(b)))
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0, false
	}
	return math.Max(-1, math.Min(1, floats.Dot(a, b)/(na*nb))), true
}

// similarity maps cosine similarity to [0,1]; zero-norm input scores 0.
func similarity(a, b []float64) float64 {
	cos, ok := cosine(a, b)
	if !ok {
		return 0
	}
	return (cos + 1) / 2
}
