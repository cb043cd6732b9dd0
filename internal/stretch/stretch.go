// Package stretch changes the duration of audio without changing its pitch
// using a phase vocoder.
package stretch

import (
	"math"
	"math/cmplx"

	"mivta/internal/dsp"
)

// Stretcher holds the analysis parameters. It is safe for concurrent use;
// every call allocates its own transform.
type Stretcher struct {
	n   int
	hop int
}

// New returns a Stretcher with n-point frames and the given hop.
func New(n, hop int) *Stretcher {
	return &Stretcher{n: n, hop: hop}
}

// OutputLen is the number of samples Stretch returns for an input of length
// n at rate.
func OutputLen(n int, rate float64) int {
	return int(math.Round(float64(n) / rate))
}

// Stretch plays x back rate times faster: rate > 1 shortens, rate < 1
// lengthens. The result has OutputLen(len(x), rate) samples. A rate of 1
// (or a non-positive rate) returns a copy.
func (s *Stretcher) Stretch(x []float32, rate float64) []float32 {
	if rate == 1 || rate <= 0 || len(x) == 0 {
		return append([]float32(nil), x...)
	}
	outLen := OutputLen(len(x), rate)
	if outLen == 0 {
		return []float32{}
	}

	stft := dsp.NewSTFT(s.n, s.hop)
	spec := stft.Forward(x)
	bins := stft.Bins()
	// Trailing silent frame so interpolation at the last step has a partner.
	spec = append(spec, make([]complex128, bins))

	advance := make([]float64, bins)
	for k := range advance {
		advance[k] = 2 * math.Pi * float64(s.hop) * float64(k) / float64(s.n)
	}

	phase := make([]float64, bins)
	for k := range phase {
		phase[k] = cmplx.Phase(spec[0][k])
	}

	var out [][]complex128
	for step := 0.0; step < float64(len(spec)-1); step += rate {
		t := int(step)
		alpha := step - float64(t)
		left, right := spec[t], spec[t+1]
		frame := make([]complex128, bins)
		for k := 0; k < bins; k++ {
			mag := (1-alpha)*cmplx.Abs(left[k]) + alpha*cmplx.Abs(right[k])
			frame[k] = cmplx.Rect(mag, phase[k])

			dphi := cmplx.Phase(right[k]) - cmplx.Phase(left[k]) - advance[k]
			dphi -= 2 * math.Pi * math.Round(dphi/(2*math.Pi))
			phase[k] += advance[k] + dphi
		}
		out = append(out, frame)
	}
	return stft.Inverse(out, outLen)
}

// FitLength trims or zero-pads x to exactly n samples.
func FitLength(x []float32, n int) []float32 {
	out := make([]float32, n)
	copy(out, x)
	return out
}
