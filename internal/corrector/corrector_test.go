package corrector

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"mivta/internal/config"
	"mivta/internal/embedding"
	"mivta/internal/features"
	"mivta/internal/logging"
	"mivta/internal/segment"
)

type fixedSegmenter []segment.Segment

func (f fixedSegmenter) Segment([]float32) []segment.Segment { return f }

// levelExtractor maps the first sample of a segment to a feature vector.
type levelExtractor map[float32]features.Vector

func (l levelExtractor) Extract(audio []float32) features.Vector {
	if len(audio) == 0 {
		return features.Vector{}
	}
	return l[audio[0]]
}

type mapSource map[string][]float32

func (m mapSource) ReferenceAudio(_ context.Context, label string) ([]float32, bool) {
	a, ok := m[label]
	return a, ok
}

type recordingSink struct {
	got map[string]features.Vector
}

func (r *recordingSink) Upsert(_ context.Context, label string, v features.Vector) error {
	r.got[label] = v
	return nil
}

func vec(vals ...float64) features.Vector {
	var v features.Vector
	copy(v[:], vals)
	return v
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Correction.Workers = 2
	return cfg
}

func seg(sr, start, end int) segment.Segment {
	return segment.Segment{
		Start:       float64(start) / float64(sr),
		End:         float64(end) / float64(sr),
		StartSample: start,
		EndSample:   end,
	}
}

const (
	labelBet = "בְּ"
	labelOK  = "מָ"
)

// fixture builds a 3000-sample utterance with two segments: [0,1000) matches
// labelOK exactly, [1000,2000) scores 0.60 against labelBet.
func fixture(t *testing.T, src AudioSource) (*Corrector, []float32) {
	t.Helper()
	cfg := testConfig(t)
	sr := cfg.Audio.SampleRate
	logger := logging.NewTestLogger()
	model := embedding.New(cfg, logger)
	model.UpsertReference(labelOK, vec(0, 0, 1))
	model.UpsertReference(labelBet, vec(0.2, math.Sqrt(0.96), 0))

	c := New(cfg, model, src, logger)
	c.seg = fixedSegmenter{seg(sr, 0, 1000), seg(sr, 1000, 2000)}
	c.ext = levelExtractor{
		0.1: vec(0, 0, 1),
		0.2: vec(1, 0, 0),
	}

	audio := make([]float32, 3000)
	for i := range audio {
		switch {
		case i < 1000:
			audio[i] = 0.1
		case i < 2000:
			audio[i] = 0.2
		default:
			audio[i] = 0.3
		}
	}
	return c, audio
}

func refTone(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.7 * math.Sin(2*math.Pi*300*float64(i)/22050))
	}
	return out
}

func TestCorrectReplacesOnlyFlaggedSegment(t *testing.T) {
	c, audio := fixture(t, mapSource{labelBet: refTone(500)})
	orig := append([]float32(nil), audio...)

	out, report, err := c.CorrectAudio(context.Background(), audio, 0.85)
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if len(out) != len(audio) {
		t.Fatalf("length changed: %d vs %d", len(out), len(audio))
	}
	for i := range audio {
		if audio[i] != orig[i] {
			t.Fatalf("input mutated at %d", i)
		}
		if (i < 1000 || i >= 2000) && out[i] != audio[i] {
			t.Fatalf("sample %d outside corrected range changed", i)
		}
	}
	changed := false
	for i := 1000; i < 2000; i++ {
		if out[i] != audio[i] {
			changed = true
			break
		}
	}
	if !changed {
		t.Fatalf("corrected range not replaced")
	}

	if report.CorrectedCount != 1 || len(report.Corrections) != 1 {
		t.Fatalf("expected one correction, got %+v", report.Corrections)
	}
	cr := report.Corrections[0]
	if cr.Label != labelBet || math.Abs(cr.OriginalScore-0.60) > 1e-9 {
		t.Fatalf("unexpected correction %+v", cr)
	}
	if report.TotalSegments != 2 || math.Abs(report.AverageQualityBefore-0.80) > 1e-9 {
		t.Fatalf("unexpected report totals %+v", report)
	}
	if report.Segments[0].NeedsCorrection || report.Segments[0].MatchedLabel != labelOK {
		t.Fatalf("first segment should be clean: %+v", report.Segments[0])
	}
}

func TestCorrectSkipsMissingReferenceAudio(t *testing.T) {
	c, audio := fixture(t, mapSource{})
	out, report, err := c.CorrectAudio(context.Background(), audio, 0.85)
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	for i := range audio {
		if out[i] != audio[i] {
			t.Fatalf("sample %d changed without reference audio", i)
		}
	}
	if report.CorrectedCount != 0 || len(report.Corrections) != 0 {
		t.Fatalf("expected no corrections, got %+v", report.Corrections)
	}
	s := report.Segments[1]
	if !s.NeedsCorrection || s.MatchedLabel != labelBet {
		t.Fatalf("segment should stay flagged: %+v", s)
	}
}

func TestThresholdControlsSelection(t *testing.T) {
	c, audio := fixture(t, mapSource{labelBet: refTone(500)})
	out, report, err := c.CorrectAudio(context.Background(), audio, 0.5)
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if report.CorrectedCount != 0 {
		t.Fatalf("threshold 0.5 should accept score 0.6")
	}
	for i := range audio {
		if out[i] != audio[i] {
			t.Fatalf("sample %d changed", i)
		}
	}
}

func TestNoReferencesSynthesizesAssessment(t *testing.T) {
	cfg := testConfig(t)
	logger := logging.NewTestLogger()
	c := New(cfg, embedding.New(cfg, logger), mapSource{}, logger)
	c.seg = fixedSegmenter{seg(cfg.Audio.SampleRate, 0, 800)}
	c.ext = levelExtractor{0.5: vec(1, 2, 3)}
	audio := make([]float32, 1000)
	for i := range audio {
		audio[i] = 0.5
	}

	got, err := c.AnalyzeAndAssess(context.Background(), audio)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 assessment, got %d", len(got))
	}
	a := got[0]
	if a.Score != 0 || !a.NeedsCorrection || a.MatchedLabel != "" || a.Message != MsgNoMatch {
		t.Fatalf("unexpected assessment %+v", a)
	}
}

func TestCancelledContextReturnsNoBuffer(t *testing.T) {
	c, audio := fixture(t, mapSource{labelBet: refTone(500)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, report, err := c.CorrectAudio(ctx, audio, 0.85)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if out != nil || report != nil {
		t.Fatalf("cancelled run must not return results")
	}
}

func TestCrossfadeStaysInsideRange(t *testing.T) {
	c, audio := fixture(t, mapSource{labelBet: refTone(1000)})
	c.crossfade = 50
	out, report, err := c.CorrectAudio(context.Background(), audio, 0.85)
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if report.CorrectedCount != 1 {
		t.Fatalf("expected a correction")
	}
	for i := range audio {
		if (i < 1000 || i >= 2000) && out[i] != audio[i] {
			t.Fatalf("crossfade leaked to sample %d", i)
		}
	}
	// Reference has the segment's exact length, so the middle is the
	// reference verbatim.
	ref := refTone(1000)
	for i := 100; i < 900; i++ {
		if out[1000+i] != ref[i] {
			t.Fatalf("middle sample %d not from reference", i)
		}
	}
}

func TestSpliceFade(t *testing.T) {
	dst := []float32{1, 1, 1, 1, 1, 1, 1, 1}
	rep := []float32{0, 0, 0, 0}
	splice(dst, 2, rep, 1)
	if dst[1] != 1 || dst[6] != 1 {
		t.Fatalf("outside range changed: %v", dst)
	}
	if dst[2] <= 0 || dst[2] >= 1 || dst[5] <= 0 || dst[5] >= 1 {
		t.Fatalf("edges not blended: %v", dst)
	}
	if dst[3] != 0 || dst[4] != 0 {
		t.Fatalf("middle not replaced: %v", dst)
	}
}

func TestAnalyzeDeterministicWithRealPipeline(t *testing.T) {
	cfg := testConfig(t)
	logger := logging.NewTestLogger()
	model := embedding.New(cfg, logger)
	c := New(cfg, model, mapSource{}, logger)

	sr := cfg.Audio.SampleRate
	var audio []float32
	for b := 0; b < 3; b++ {
		audio = append(audio, make([]float32, sr/5)...)
		for i := 0; i < sr/4; i++ {
			audio = append(audio, float32(0.5*math.Sin(2*math.Pi*float64(300+200*b)*float64(i)/float64(sr))))
		}
	}
	audio = append(audio, make([]float32, sr/5)...)

	first, err := c.AnalyzeAndAssess(context.Background(), audio)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(first) > 0 {
		model.UpsertReference("ref", first[0].Features)
	}
	one, _ := c.AnalyzeAndAssess(context.Background(), audio)
	two, _ := c.AnalyzeAndAssess(context.Background(), audio)
	if len(one) != len(two) {
		t.Fatalf("segment count differs: %d vs %d", len(one), len(two))
	}
	for i := range one {
		if one[i].Score != two[i].Score || one[i].StartSample != two[i].StartSample {
			t.Fatalf("run differs at segment %d", i)
		}
	}

	out, report, err := c.CorrectAudio(context.Background(), audio, 0.85)
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if len(out) != len(audio) || report.TotalSegments != len(one) {
		t.Fatalf("unexpected output len=%d segments=%d", len(out), report.TotalSegments)
	}
}

func TestEnroll(t *testing.T) {
	c, _ := fixture(t, mapSource{})
	sink := &recordingSink{got: map[string]features.Vector{}}
	v, err := c.Enroll(context.Background(), sink, labelBet, []float32{0.2, 0.2})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if sink.got[labelBet] != v || v != vec(1, 0, 0) {
		t.Fatalf("sink got %v", sink.got)
	}
	if _, err := c.Enroll(context.Background(), sink, "x", []float32{0.9}); !errors.Is(err, ErrNoFeatures) {
		t.Fatalf("expected ErrNoFeatures, got %v", err)
	}
}

func TestReportJSON(t *testing.T) {
	r := buildReport(nil, nil)
	if r.AverageQualityBefore != 0 || r.TotalSegments != 0 {
		t.Fatalf("empty report wrong: %+v", r)
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"version", "total_segments", "corrected_count", "corrections", "average_quality_before", "segments"} {
		if _, ok := m[k]; !ok {
			t.Fatalf("missing key %q in %s", k, data)
		}
	}
	if r.Summary() != "no syllables detected" {
		t.Fatalf("unexpected summary %q", r.Summary())
	}
}
