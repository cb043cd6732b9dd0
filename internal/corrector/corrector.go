// Package corrector runs the full pipeline over one utterance: segment,
// extract features, match every segment against the reference store and
// splice time-aligned reference audio over segments that need correction.
package corrector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"mivta/internal/config"
	"mivta/internal/embedding"
	"mivta/internal/features"
	"mivta/internal/segment"
	"mivta/internal/stretch"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// MsgNoMatch is the message of a segment that matched no reference.
const MsgNoMatch = "no reference syllable found"

// ErrNoFeatures is returned by Enroll when the audio yields no usable
// features.
var ErrNoFeatures = errors.New("corrector: audio too short or degenerate for features")

// AudioSource resolves the reference audio of a label.
type AudioSource interface {
	ReferenceAudio(ctx context.Context, label string) ([]float32, bool)
}

// ReferenceSink records a canonical feature vector for a label.
type ReferenceSink interface {
	Upsert(ctx context.Context, label string, v features.Vector) error
}

// Segmenter splits audio into syllable segments.
type Segmenter interface {
	Segment(audio []float32) []segment.Segment
}

// Extractor computes the feature vector of a segment.
type Extractor interface {
	Extract(audio []float32) features.Vector
}

// SegmentAssessment is the verdict for one segment.
type SegmentAssessment struct {
	Index           int             `json:"index"`
	Start           float64         `json:"start_time"`
	End             float64         `json:"end_time"`
	Duration        float64         `json:"duration"`
	StartSample     int             `json:"-"`
	EndSample       int             `json:"-"`
	Features        features.Vector `json:"-"`
	MatchedLabel    string          `json:"matched_label,omitempty"`
	Score           float64         `json:"score"`
	NeedsCorrection bool            `json:"needs_correction"`
	Message         string          `json:"message"`
}

// Corrector is safe for concurrent use.
type Corrector struct {
	seg        Segmenter
	ext        Extractor
	model      *embedding.Model
	audio      AudioSource
	stretcher  *stretch.Stretcher
	workers    int
	crossfade  int // samples
	sampleRate int
	logger     *logrus.Logger
}

// New wires a corrector over model and src using cfg.
func New(cfg *config.Config, model *embedding.Model, src AudioSource, logger *logrus.Logger) *Corrector {
	return &Corrector{
		seg:        segment.New(cfg, logger),
		ext:        features.New(cfg, logger),
		model:      model,
		audio:      src,
		stretcher:  stretch.New(cfg.Correction.StretchFFT, cfg.Correction.StretchHop),
		workers:    max(1, cfg.Correction.Workers),
		crossfade:  cfg.Correction.CrossfadeMS * cfg.Audio.SampleRate / 1000,
		sampleRate: cfg.Audio.SampleRate,
		logger:     logger,
	}
}

// AnalyzeAndAssess assesses every segment of audio at the model's default
// threshold.
func (c *Corrector) AnalyzeAndAssess(ctx context.Context, audio []float32) ([]SegmentAssessment, error) {
	snap := c.model.Snapshot()
	return c.analyze(ctx, audio, snap, snap.Threshold())
}

func (c *Corrector) analyze(ctx context.Context, audio []float32, snap *embedding.Snapshot, threshold float64) ([]SegmentAssessment, error) {
	segs := c.seg.Segment(audio)
	vecs, err := c.extractAll(ctx, audio, segs)
	if err != nil {
		return nil, err
	}

	out := make([]SegmentAssessment, len(segs))
	for i, s := range segs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a := SegmentAssessment{
			Index:       i,
			Start:       s.Start,
			End:         s.End,
			Duration:    s.Duration(),
			StartSample: s.StartSample,
			EndSample:   s.EndSample,
			Features:    vecs[i],
		}
		if label, _, ok := snap.BestMatch(vecs[i]); ok {
			v := snap.AssessAt(vecs[i], label, threshold)
			a.MatchedLabel, a.Score, a.NeedsCorrection, a.Message = v.MatchedLabel, v.Score, v.NeedsCorrection, v.Message
		} else {
			a.Score, a.NeedsCorrection, a.Message = 0, true, MsgNoMatch
		}
		out[i] = a
	}
	c.logger.Debugf("corrector: assessed %d segments against %d references", len(out), len(snap.References()))
	return out, nil
}

// extractAll fans feature extraction out over the worker pool; results are
// placed by segment index.
func (c *Corrector) extractAll(ctx context.Context, audio []float32, segs []segment.Segment) ([]features.Vector, error) {
	vecs := make([]features.Vector, len(segs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, s := range segs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vecs[i] = c.ext.Extract(audio[s.StartSample:s.EndSample])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vecs, nil
}

// CorrectAudio replaces segments scoring below threshold with their matched
// reference audio, stretched to the segment's duration. The input is never
// modified; the result always has len(audio) samples. On cancellation no
// buffer is returned.
func (c *Corrector) CorrectAudio(ctx context.Context, audio []float32, threshold float64) ([]float32, *Report, error) {
	assessments, err := c.analyze(ctx, audio, c.model.Snapshot(), threshold)
	if err != nil {
		return nil, nil, err
	}

	out := make([]float32, len(audio))
	copy(out, audio)

	var corrections []Correction
	for _, a := range assessments {
		if !a.NeedsCorrection || a.MatchedLabel == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		ref, ok := c.audio.ReferenceAudio(ctx, a.MatchedLabel)
		if !ok || len(ref) == 0 {
			c.logger.Debugf("corrector: no reference audio for %q, segment %d left as is", a.MatchedLabel, a.Index)
			continue
		}
		replacement := c.align(ref, a.EndSample-a.StartSample)
		splice(out, a.StartSample, replacement, c.crossfade)
		corrections = append(corrections, Correction{
			Label:         a.MatchedLabel,
			OriginalScore: a.Score,
			Start:         a.Start,
			End:           a.End,
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	report := buildReport(assessments, corrections)
	c.logger.Infof("corrector: %d/%d segments corrected, average score %.3f",
		report.CorrectedCount, report.TotalSegments, report.AverageQualityBefore)
	return out, report, nil
}

// align stretches ref to n samples without changing its pitch.
func (c *Corrector) align(ref []float32, n int) []float32 {
	rate := float64(len(ref)) / float64(n)
	if rate != 1 {
		ref = c.stretcher.Stretch(ref, rate)
	}
	return stretch.FitLength(ref, n)
}

// splice overwrites dst[start:start+len(rep)] with rep. With fade > 0 the
// first and last fade samples of the range blend the original into the
// replacement with an equal-power curve; nothing outside the range changes.
func splice(dst []float32, start int, rep []float32, fade int) {
	n := len(rep)
	fade = min(fade, n/2)
	orig := make([]float32, fade*2)
	copy(orig[:fade], dst[start:start+fade])
	copy(orig[fade:], dst[start+n-fade:start+n])

	copy(dst[start:start+n], rep)
	for k := 0; k < fade; k++ {
		theta := float64(k+1) / float64(fade+1) * math.Pi / 2
		in, out := float32(math.Sin(theta)), float32(math.Cos(theta))
		head := start + k
		dst[head] = orig[k]*out + rep[k]*in
		tail := start + n - 1 - k
		dst[tail] = orig[2*fade-1-k]*out + rep[n-1-k]*in
	}
}

// Enroll extracts the features of a clean recording of label and hands them
// to sink.
func (c *Corrector) Enroll(ctx context.Context, sink ReferenceSink, label string, audio []float32) (features.Vector, error) {
	v := c.ext.Extract(audio)
	if v.IsZero() {
		return v, ErrNoFeatures
	}
	if err := sink.Upsert(ctx, label, v); err != nil {
		return v, fmt.Errorf("enroll %q: %w", label, err)
	}
	return v, nil
}

func sortByStart(segs []SegmentAssessment) {
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })
}
