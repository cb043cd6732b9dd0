package segment

import (
	"math"
	"testing"

	"mivta/internal/config"
	"mivta/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	return cfg
}

// bursts returns n tone bursts of burstSec separated by gapSec of silence.
func bursts(sr, n int, burstSec, gapSec float64) []float32 {
	burst := int(burstSec * float64(sr))
	gap := int(gapSec * float64(sr))
	out := make([]float32, 0, n*(burst+gap)+gap)
	out = append(out, make([]float32, gap)...)
	for b := 0; b < n; b++ {
		freq := 300.0 + 150.0*float64(b)
		for i := 0; i < burst; i++ {
			out = append(out, float32(0.5*math.Sin(2*math.Pi*freq*float64(i)/float64(sr))))
		}
		out = append(out, make([]float32, gap)...)
	}
	return out
}

func TestSilenceYieldsNoSegments(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg, logging.NewTestLogger())
	silence := make([]float32, 2*cfg.Audio.SampleRate)
	if got := s.Segment(silence); len(got) != 0 {
		t.Fatalf("expected no segments for silence, got %d", len(got))
	}
}

func TestEmptyInput(t *testing.T) {
	s := New(testConfig(t), logging.NewTestLogger())
	if got := s.Segment(nil); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestShortSilenceNotUsedAsFallback(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg, logging.NewTestLogger())
	// 0.5s is within duration bounds but carries no energy.
	if got := s.Segment(make([]float32, cfg.Audio.SampleRate/2)); len(got) != 0 {
		t.Fatalf("expected silent buffer to be rejected, got %v", got)
	}
}

func TestBurstsAreSegmented(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg, logging.NewTestLogger())
	audio := bursts(cfg.Audio.SampleRate, 3, 0.25, 0.2)
	segs := s.Segment(audio)
	if len(segs) == 0 {
		t.Fatalf("expected segments for tone bursts")
	}
	prevEnd := 0
	for i, seg := range segs {
		if seg.StartSample >= seg.EndSample {
			t.Fatalf("segment %d empty: %+v", i, seg)
		}
		if seg.StartSample < prevEnd {
			t.Fatalf("segment %d overlaps previous: %+v", i, seg)
		}
		if seg.EndSample > len(audio) {
			t.Fatalf("segment %d past end: %+v", i, seg)
		}
		d := seg.Duration()
		if d < cfg.Segment.MinDuration || d > cfg.Segment.MaxDuration {
			t.Fatalf("segment %d duration %.3f out of bounds", i, d)
		}
		prevEnd = seg.EndSample
	}
}

func TestBuildSegmentsDropsOverlongCandidate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Segment.MaxDuration = 0.5
	s := New(cfg, logging.NewTestLogger())
	sr := cfg.Audio.SampleRate

	// Candidates: 0.3s, 0.6s, 0.2s trailing.
	starts := []int{0, int(0.3 * float64(sr)), int(0.9 * float64(sr))}
	total := int(1.1 * float64(sr))
	segs := s.buildSegments(starts, total)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d: %+v", len(segs), segs)
	}
	for _, seg := range segs {
		if seg.Duration() > 0.5 {
			t.Fatalf("overlong segment kept: %+v", seg)
		}
	}
	if segs[1].StartSample != starts[2] || segs[1].EndSample != total {
		t.Fatalf("trailing segment wrong: %+v", segs[1])
	}
}

func TestConstantSignalBounded(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg, logging.NewTestLogger())
	sr := cfg.Audio.SampleRate
	// A constant offset has a single onset at most and must never produce
	// an overlong segment.
	n := int(0.4 * float64(sr))
	tone := make([]float32, n)
	for i := range tone {
		tone[i] = 0.3
	}
	segs := s.Segment(tone)
	for _, seg := range segs {
		if seg.Duration() > cfg.Segment.MaxDuration {
			t.Fatalf("segment too long: %+v", seg)
		}
	}
}

func TestPickPeaks(t *testing.T) {
	env := []float64{0, 0, 1, 0, 0, 0, 0, 0, 0.9, 0, 0, 0}
	p := peakParams{preMax: 1, postMax: 1, preAvg: 3, postAvg: 3, delta: 0.07, wait: 1}
	got := pickPeaks(env, p)
	if len(got) != 2 || got[0] != 2 || got[1] != 8 {
		t.Fatalf("unexpected peaks %v", got)
	}
	if got := pickPeaks(make([]float64, 8), p); len(got) != 0 {
		t.Fatalf("flat envelope should have no peaks, got %v", got)
	}
}

func TestBacktrackDedupes(t *testing.T) {
	energy := []float64{0.5, 0.2, 0.1, 0.4, 0.8, 0.3, 0.05, 0.6, 0.9}
	got := backtrack([]int{4, 3, 8, 7}, energy)
	want := []int{2, 6}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}
