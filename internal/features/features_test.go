package features

import (
	"math"
	"testing"

	"mivta/internal/config"
	"mivta/internal/logging"
)

func newExtractor(t *testing.T) (*Extractor, *config.Config) {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	return New(cfg, logging.NewTestLogger()), cfg
}

func tone(freq float64, sr, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.4 * math.Sin(2*math.Pi*freq*float64(i)/float64(sr)))
	}
	return out
}

func TestShortInputIsZeroVector(t *testing.T) {
	e, _ := newExtractor(t)
	v, status := e.ExtractWithStatus(make([]float32, 400))
	if status != StatusUnderflow {
		t.Fatalf("expected underflow, got %s", status)
	}
	if !v.IsZero() || len(v) != Dim {
		t.Fatalf("expected %d-D zero vector, got %v", Dim, v)
	}
	if got := e.Extract(nil); !got.IsZero() {
		t.Fatalf("nil input should be zero")
	}
}

func TestExtractToneIsFiniteAndNonZero(t *testing.T) {
	e, cfg := newExtractor(t)
	v, status := e.ExtractWithStatus(tone(440, cfg.Audio.SampleRate, cfg.Audio.SampleRate/4))
	if status != StatusOK {
		t.Fatalf("expected ok, got %s", status)
	}
	if v.IsZero() {
		t.Fatalf("expected informative vector")
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			t.Fatalf("component %d not finite: %v", i, x)
		}
	}
	// Centroid of a pure 440 Hz tone sits near the tone.
	if c := v[idxCentroid]; c < 200 || c > 1500 {
		t.Fatalf("centroid %.1f out of expected range", c)
	}
	if z := v[idxZCR]; z <= 0 || z > 0.1 {
		t.Fatalf("zcr %.4f out of expected range", z)
	}
}

func TestExtractDeterministic(t *testing.T) {
	e, cfg := newExtractor(t)
	audio := tone(660, cfg.Audio.SampleRate, 3000)
	if e.Extract(audio) != e.Extract(audio) {
		t.Fatalf("extraction not deterministic")
	}
}

func TestHigherToneHasHigherCentroid(t *testing.T) {
	e, cfg := newExtractor(t)
	low := e.Extract(tone(300, cfg.Audio.SampleRate, 4000))
	high := e.Extract(tone(3000, cfg.Audio.SampleRate, 4000))
	if high[idxCentroid] <= low[idxCentroid] {
		t.Fatalf("centroid low=%.1f high=%.1f", low[idxCentroid], high[idxCentroid])
	}
	if high[idxZCR] <= low[idxZCR] {
		t.Fatalf("zcr low=%.4f high=%.4f", low[idxZCR], high[idxZCR])
	}
}

func TestFromSlice(t *testing.T) {
	if _, ok := FromSlice(make([]float64, 28)); ok {
		t.Fatalf("expected length check to fail")
	}
	s := make([]float64, Dim)
	s[3] = 1.5
	v, ok := FromSlice(s)
	if !ok || v[3] != 1.5 {
		t.Fatalf("round trip failed: %v %v", v, ok)
	}
}
