package dsp

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

func TestNumFrames(t *testing.T) {
	cases := []struct{ length, hop, want int }{
		{0, 512, 0},
		{1, 512, 1},
		{512, 512, 2},
		{44100, 512, 87},
	}
	for _, c := range cases {
		if got := NumFrames(c.length, c.hop); got != c.want {
			t.Fatalf("NumFrames(%d,%d)=%d want %d", c.length, c.hop, got, c.want)
		}
	}
}

func TestSTFTRoundTrip(t *testing.T) {
	x := sine(440, 22050, 5000)
	s := NewSTFT(512, 128)
	y := s.Inverse(s.Forward(x), len(x))
	if len(y) != len(x) {
		t.Fatalf("length %d want %d", len(y), len(x))
	}
	for i := range x {
		if math.Abs(float64(x[i]-y[i])) > 1e-4 {
			t.Fatalf("sample %d: got %v want %v", i, y[i], x[i])
		}
	}
}

func TestSTFTPeakBin(t *testing.T) {
	const sr, n = 22050, 1024
	freq := 20 * float64(sr) / n // centered on bin 20
	s := NewSTFT(n, 256)
	mags := Magnitude(s.Forward(sine(freq, sr, 8192)))
	mid := mags[len(mags)/2]
	best := 0
	for k := range mid {
		if mid[k] > mid[best] {
			best = k
		}
	}
	if best != 20 {
		t.Fatalf("peak bin %d want 20", best)
	}
}

func TestMelFilterbankShape(t *testing.T) {
	bank := MelFilterbank(40, 512, 22050, 0, 0)
	if len(bank) != 40 || len(bank[0]) != 257 {
		t.Fatalf("shape %dx%d", len(bank), len(bank[0]))
	}
	for m, row := range bank {
		var sum float64
		for _, v := range row {
			if v < 0 || v > 1+1e-9 {
				t.Fatalf("filter %d has weight %v", m, v)
			}
			sum += v
		}
		if sum == 0 {
			t.Fatalf("filter %d is empty", m)
		}
	}
}

func TestDCTConstantInput(t *testing.T) {
	d := NewDCT(13, 40)
	in := make([]float64, 40)
	for i := range in {
		in[i] = 2
	}
	out := d.Apply(in)
	if len(out) != 13 {
		t.Fatalf("len %d", len(out))
	}
	if want := 2 * math.Sqrt(40); math.Abs(out[0]-want) > 1e-9 {
		t.Fatalf("c0=%v want %v", out[0], want)
	}
	for k := 1; k < len(out); k++ {
		if math.Abs(out[k]) > 1e-9 {
			t.Fatalf("c%d=%v want 0", k, out[k])
		}
	}
}

func TestPowerToDBClipsToTopDB(t *testing.T) {
	spec := [][]float64{{1, 1e-12}, {0.1, 0}}
	PowerToDB(spec, 80)
	if spec[0][0] != 0 {
		t.Fatalf("peak db %v want 0", spec[0][0])
	}
	if spec[0][1] != -80 || spec[1][1] != -80 {
		t.Fatalf("floor not applied: %v", spec)
	}
	if math.Abs(spec[1][0]+10) > 1e-9 {
		t.Fatalf("0.1 -> %v want -10", spec[1][0])
	}
}

func TestFrameRMSAndZCR(t *testing.T) {
	silence := make([]float32, 2048)
	for _, v := range FrameRMS(silence, 512, 128) {
		if v != 0 {
			t.Fatalf("silence rms %v", v)
		}
	}
	for _, v := range ZeroCrossingRate(silence, 512, 128) {
		if v != 0 {
			t.Fatalf("silence zcr %v", v)
		}
	}
	alt := make([]float32, 2048)
	for i := range alt {
		alt[i] = 1
		if i%2 == 1 {
			alt[i] = -1
		}
	}
	zcr := ZeroCrossingRate(alt, 512, 128)
	if mid := zcr[len(zcr)/2]; mid < 0.99 {
		t.Fatalf("alternating signal zcr %v", mid)
	}
}
