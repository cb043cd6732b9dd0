package stretch

import (
	"math"
	"testing"
)

func sine(freq float64, sr, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sr)))
	}
	return out
}

// crossingRate counts sign changes per sample over the middle half of x.
func crossingRate(x []float32) float64 {
	from, to := len(x)/4, 3*len(x)/4
	c := 0
	for i := from + 1; i < to; i++ {
		if (x[i-1] >= 0) != (x[i] >= 0) {
			c++
		}
	}
	return float64(c) / float64(to-from)
}

func TestStretchLength(t *testing.T) {
	s := New(1024, 256)
	x := sine(440, 22050, 11025)
	cases := []struct {
		rate float64
		want int
	}{
		{2, 5513},
		{0.5, 22050},
		{1.3, 8481},
		{0.8, 13781},
	}
	for _, tc := range cases {
		got := s.Stretch(x, tc.rate)
		if len(got) != tc.want {
			t.Fatalf("rate %.2f: len %d want %d", tc.rate, len(got), tc.want)
		}
	}
}

func TestStretchPreservesPitch(t *testing.T) {
	s := New(1024, 256)
	x := sine(440, 22050, 22050)
	base := crossingRate(x)
	for _, rate := range []float64{0.5, 0.75, 1.5, 2} {
		y := s.Stretch(x, rate)
		got := crossingRate(y)
		if math.Abs(got-base)/base > 0.1 {
			t.Fatalf("rate %.2f: crossing rate %.4f vs %.4f", rate, got, base)
		}
	}
}

func TestStretchUnitRateCopies(t *testing.T) {
	s := New(1024, 256)
	x := sine(220, 22050, 2048)
	y := s.Stretch(x, 1)
	if len(y) != len(x) {
		t.Fatalf("length changed")
	}
	y[0] = 42
	if x[0] == 42 {
		t.Fatalf("rate 1 must return a copy")
	}
}

func TestStretchEmpty(t *testing.T) {
	if got := New(1024, 256).Stretch(nil, 2); len(got) != 0 {
		t.Fatalf("expected empty output")
	}
}

func TestFitLength(t *testing.T) {
	x := []float32{1, 2, 3}
	if got := FitLength(x, 2); len(got) != 2 || got[1] != 2 {
		t.Fatalf("trim failed: %v", got)
	}
	if got := FitLength(x, 5); len(got) != 5 || got[2] != 3 || got[4] != 0 {
		t.Fatalf("pad failed: %v", got)
	}
}
