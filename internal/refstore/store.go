// Package refstore persists training recordings, averaged reference vectors
// and model parameters in badger, with recording audio kept as WAV files
// under the syllables directory.
package refstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"mivta/internal/config"
	"mivta/internal/embedding"
	"mivta/internal/features"
	"mivta/internal/syllables"
	"mivta/internal/wavio"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned when a label has no stored data.
var ErrNotFound = errors.New("refstore: not found")

// RecordVersion is bumped when a stored record layout changes.
const RecordVersion = 1

const (
	prefixRecording = "rec/"
	prefixReference = "ref/"
	keyModel        = "model/params"
)

// Recording is one training take of a syllable.
type Recording struct {
	Version   int       `msgpack:"version"`
	ID        string    `msgpack:"id"`
	Label     string    `msgpack:"label"`
	Path      string    `msgpack:"path,omitempty"` // empty for feature-only samples
	Features  []float64 `msgpack:"features"`
	CreatedAt time.Time `msgpack:"created_at"`
}

// ReferenceRecord is the averaged canonical vector of a label.
type ReferenceRecord struct {
	Version    int       `msgpack:"version"`
	Label      string    `msgpack:"label"`
	Features   []float64 `msgpack:"features"`
	Recordings int       `msgpack:"recordings"`
	UpdatedAt  time.Time `msgpack:"updated_at"`
}

// Status is training progress over the syllable catalog.
type Status struct {
	Trained    int     `json:"trained"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Remaining  int     `json:"remaining"`
}

// Options configures Open.
type Options struct {
	Dir          string // badger directory; ignored when InMemory
	InMemory     bool
	SyllablesDir string
	SampleRate   int
	Labels       []string // training catalog, in order
	Logger       *logrus.Logger
}

// Store is safe for concurrent use.
type Store struct {
	db           *badger.DB
	model        *embedding.Model
	syllablesDir string
	sampleRate   int
	labels       []string
	mu           sync.Mutex // serializes read-modify-write per store
	logger       *logrus.Logger
}

// Open opens the database and binds it to model. Stored references are not
// loaded until Load is called.
func Open(opts Options, model *embedding.Model) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("refstore: Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{opts.Logger})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &Store{
		db:           db,
		model:        model,
		syllablesDir: opts.SyllablesDir,
		sampleRate:   opts.SampleRate,
		labels:       opts.Labels,
		logger:       opts.Logger,
	}, nil
}

// OpenConfig opens the on-disk store described by cfg over the syllable
// catalog.
func OpenConfig(cfg *config.Config, model *embedding.Model, logger *logrus.Logger) (*Store, error) {
	return Open(Options{
		Dir:          cfg.Paths.StoreDir,
		SyllablesDir: cfg.Paths.SyllablesDir,
		SampleRate:   cfg.Audio.SampleRate,
		Labels:       syllables.Labels(),
		Logger:       logger,
	}, model)
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Load restores saved model parameters (if any) and upserts every stored
// reference into the model, in catalog order followed by other labels.
func (s *Store) Load(ctx context.Context) error {
	if p, err := s.LoadParams(ctx); err == nil {
		if err := s.model.Restore(p); err != nil {
			s.logger.Warnf("refstore: ignoring saved model: %v", err)
		}
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	refs, err := s.references(ctx)
	if err != nil {
		return err
	}
	for _, r := range s.ordered(refs) {
		v, ok := features.FromSlice(r.Features)
		if !ok {
			s.logger.Warnf("refstore: reference %q has %d dims, skipping", r.Label, len(r.Features))
			continue
		}
		s.model.UpsertReference(r.Label, v)
	}
	s.logger.Debugf("refstore: loaded %d references", len(refs))
	return nil
}

// Upsert records v as a feature-only sample of label and refreshes the
// label's averaged reference.
func (s *Store) Upsert(ctx context.Context, label string, v features.Vector) error {
	_, err := s.add(ctx, label, nil, v)
	return err
}

// AudioSink binds recording audio to the next Upsert.
type AudioSink struct {
	store *Store
	audio []float32
}

// WithAudio returns a sink whose Upsert also saves audio as the recording.
func (s *Store) WithAudio(audio []float32) *AudioSink {
	return &AudioSink{store: s, audio: audio}
}

// Upsert saves the audio and feature vector as a new recording of label.
func (a *AudioSink) Upsert(ctx context.Context, label string, v features.Vector) error {
	_, err := a.store.add(ctx, label, a.audio, v)
	return err
}

// AddRecording saves audio plus its features as a recording of label.
func (s *Store) AddRecording(ctx context.Context, label string, audio []float32, v features.Vector) (Recording, error) {
	return s.add(ctx, label, audio, v)
}

func (s *Store) add(ctx context.Context, label string, audio []float32, v features.Vector) (Recording, error) {
	if strings.TrimSpace(label) == "" {
		return Recording{}, errors.New("refstore: empty label")
	}
	if err := ctx.Err(); err != nil {
		return Recording{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Recording{}, err
	}
	rec := Recording{
		Version:   RecordVersion,
		ID:        id.String(),
		Label:     label,
		Features:  v.Slice(),
		CreatedAt: time.Now().UTC(),
	}
	if audio != nil {
		dir := s.labelDir(label)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Recording{}, err
		}
		rec.Path = filepath.Join(dir, rec.ID+".wav")
		if err := wavio.Write(rec.Path, audio, s.sampleRate); err != nil {
			return Recording{}, fmt.Errorf("save recording: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.put(recordingKey(label, rec.ID), rec); err != nil {
		return Recording{}, err
	}
	recs, err := s.Recordings(ctx, label)
	if err != nil {
		return Recording{}, err
	}
	avg := average(recs)
	ref := ReferenceRecord{
		Version:    RecordVersion,
		Label:      label,
		Features:   avg.Slice(),
		Recordings: len(recs),
		UpdatedAt:  rec.CreatedAt,
	}
	if err := s.put(prefixReference+label, ref); err != nil {
		return Recording{}, err
	}
	s.model.UpsertReference(label, avg)
	s.logger.Infof("refstore: %q now has %d recording(s)", label, len(recs))
	return rec, nil
}

// Recordings lists the recordings of label, oldest first.
func (s *Store) Recordings(ctx context.Context, label string) ([]Recording, error) {
	var out []Recording
	err := s.scan(ctx, prefixRecording+label+"/", func(val []byte) error {
		var r Recording
		if err := msgpack.Unmarshal(val, &r); err != nil {
			return fmt.Errorf("decode recording: %w", err)
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// Reference returns the stored reference of label.
func (s *Store) Reference(ctx context.Context, label string) (ReferenceRecord, error) {
	var r ReferenceRecord
	err := s.get(ctx, prefixReference+label, &r)
	return r, err
}

// ReferenceAudio returns the latest recording of label, resampled to the
// store's sample rate.
func (s *Store) ReferenceAudio(ctx context.Context, label string) ([]float32, bool) {
	recs, err := s.Recordings(ctx, label)
	if err != nil {
		s.logger.Warnf("refstore: list recordings of %q: %v", label, err)
		return nil, false
	}
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Path == "" {
			continue
		}
		audio, _, err := wavio.Read(recs[i].Path, s.sampleRate)
		if err != nil {
			s.logger.Warnf("refstore: read %s: %v", recs[i].Path, err)
			continue
		}
		return audio, true
	}
	return nil, false
}

// Trained lists labels that have a reference, catalog labels first.
func (s *Store) Trained(ctx context.Context) ([]string, error) {
	refs, err := s.references(ctx)
	if err != nil {
		return nil, err
	}
	ordered := s.ordered(refs)
	out := make([]string, len(ordered))
	for i, r := range ordered {
		out[i] = r.Label
	}
	return out, nil
}

// Status reports progress over the catalog.
func (s *Store) Status(ctx context.Context) (Status, error) {
	refs, err := s.references(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{Total: len(s.labels)}
	for _, l := range s.labels {
		if _, ok := refs[l]; ok {
			st.Trained++
		}
	}
	st.Remaining = st.Total - st.Trained
	if st.Total > 0 {
		st.Percentage = float64(st.Trained) / float64(st.Total) * 100
	}
	return st, nil
}

// NextUntrained returns the first catalog label without a reference.
func (s *Store) NextUntrained(ctx context.Context) (string, bool, error) {
	refs, err := s.references(ctx)
	if err != nil {
		return "", false, err
	}
	for _, l := range s.labels {
		if _, ok := refs[l]; !ok {
			return l, true, nil
		}
	}
	return "", false, nil
}

// Corpus returns one training sample per stored recording.
func (s *Store) Corpus(ctx context.Context) ([]embedding.Sample, error) {
	var out []embedding.Sample
	err := s.scan(ctx, prefixRecording, func(val []byte) error {
		var r Recording
		if err := msgpack.Unmarshal(val, &r); err != nil {
			return fmt.Errorf("decode recording: %w", err)
		}
		v, ok := features.FromSlice(r.Features)
		if !ok {
			return fmt.Errorf("recording %s has %d dims", r.ID, len(r.Features))
		}
		out = append(out, embedding.Sample{Label: r.Label, Features: v})
		return nil
	})
	return out, err
}

// Reset removes every recording and the reference of label.
func (s *Store) Reset(ctx context.Context, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deletePrefix(ctx, prefixRecording+label+"/"); err != nil {
		return err
	}
	if err := s.deleteKey(ctx, prefixReference+label); err != nil {
		return err
	}
	s.model.RemoveReference(label)
	if err := os.RemoveAll(s.labelDir(label)); err != nil {
		return err
	}
	s.logger.Infof("refstore: reset %q", label)
	return nil
}

// ResetAll removes all recordings and references. Saved model parameters
// are kept.
func (s *Store) ResetAll(ctx context.Context) error {
	refs, err := s.references(ctx)
	if err != nil {
		return err
	}
	for label := range refs {
		if err := s.Reset(ctx, label); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Feature-only samples without a reference record.
	return s.deletePrefix(ctx, prefixRecording)
}

func (s *Store) labelDir(label string) string {
	return filepath.Join(s.syllablesDir, strings.ReplaceAll(label, "/", "_"))
}

func (s *Store) references(ctx context.Context) (map[string]ReferenceRecord, error) {
	out := map[string]ReferenceRecord{}
	err := s.scan(ctx, prefixReference, func(val []byte) error {
		var r ReferenceRecord
		if err := msgpack.Unmarshal(val, &r); err != nil {
			return fmt.Errorf("decode reference: %w", err)
		}
		out[r.Label] = r
		return nil
	})
	return out, err
}

// ordered returns refs in catalog order followed by non-catalog labels in key
// order.
func (s *Store) ordered(refs map[string]ReferenceRecord) []ReferenceRecord {
	out := make([]ReferenceRecord, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, l := range s.labels {
		if r, ok := refs[l]; ok {
			out = append(out, r)
			seen[l] = true
		}
	}
	var rest []string
	for l := range refs {
		if !seen[l] {
			rest = append(rest, l)
		}
	}
	sort.Strings(rest)
	for _, l := range rest {
		out = append(out, refs[l])
	}
	return out
}

func average(recs []Recording) features.Vector {
	var avg features.Vector
	n := 0
	for _, r := range recs {
		v, ok := features.FromSlice(r.Features)
		if !ok {
			continue
		}
		for i := range avg {
			avg[i] += v[i]
		}
		n++
	}
	if n == 0 {
		return avg
	}
	for i := range avg {
		avg[i] /= float64(n)
	}
	return avg
}

func recordingKey(label, id string) string {
	return prefixRecording + label + "/" + id
}
