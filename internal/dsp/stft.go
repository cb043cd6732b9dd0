// Package dsp holds the short-time spectral primitives shared by the
// segmenter, the feature extractor and the time-stretcher.
//
// Frames are centered: frame t covers samples [t*hop-n/2, t*hop+n/2) of the
// input, with zeros outside the signal. A signal of length L therefore has
// 1+L/hop frames.
package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Hann returns a periodic Hann window of length n.
func Hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// STFT is a windowed short-time Fourier transform of fixed size.
// It keeps FFT work buffers and must not be shared between goroutines.
type STFT struct {
	n      int
	hop    int
	window []float64
	fft    *fourier.FFT
	buf    []float64
}

// NewSTFT returns a transform with n-point frames advanced by hop samples.
func NewSTFT(n, hop int) *STFT {
	return &STFT{
		n:      n,
		hop:    hop,
		window: Hann(n),
		fft:    fourier.NewFFT(n),
		buf:    make([]float64, n),
	}
}

// Size returns the frame size.
func (s *STFT) Size() int { return s.n }

// Hop returns the hop length.
func (s *STFT) Hop() int { return s.hop }

// Bins returns the number of non-negative frequency bins per frame.
func (s *STFT) Bins() int { return s.n/2 + 1 }

// NumFrames returns the number of centered frames for a signal of length n.
func NumFrames(length, hop int) int {
	if length <= 0 {
		return 0
	}
	return 1 + length/hop
}

// Forward computes the complex spectrum of every centered frame of x.
func (s *STFT) Forward(x []float32) [][]complex128 {
	frames := NumFrames(len(x), s.hop)
	out := make([][]complex128, frames)
	half := s.n / 2
	for t := range out {
		start := t*s.hop - half
		for k := 0; k < s.n; k++ {
			idx := start + k
			if idx >= 0 && idx < len(x) {
				s.buf[k] = float64(x[idx]) * s.window[k]
			} else {
				s.buf[k] = 0
			}
		}
		out[t] = s.fft.Coefficients(nil, s.buf)
	}
	return out
}

// Inverse overlap-adds frames back into a signal of exactly length samples,
// normalizing by the summed squared window.
func (s *STFT) Inverse(frames [][]complex128, length int) []float32 {
	out := make([]float32, length)
	if len(frames) == 0 || length <= 0 {
		return out
	}
	padded := s.n + s.hop*(len(frames)-1)
	acc := make([]float64, padded)
	wss := make([]float64, padded)
	for t, coeff := range frames {
		seq := s.fft.Sequence(s.buf, coeff)
		start := t * s.hop
		for k := 0; k < s.n; k++ {
			// Sequence is unnormalized.
			acc[start+k] += seq[k] / float64(s.n) * s.window[k]
			wss[start+k] += s.window[k] * s.window[k]
		}
	}
	half := s.n / 2
	for i := range out {
		j := i + half
		if j >= padded {
			break
		}
		if wss[j] > 1e-10 {
			out[i] = float32(acc[j] / wss[j])
		} else {
			out[i] = float32(acc[j])
		}
	}
	return out
}

// Magnitude returns |X| for every frame and bin.
func Magnitude(spec [][]complex128) [][]float64 {
	out := make([][]float64, len(spec))
	for t, row := range spec {
		m := make([]float64, len(row))
		for k, c := range row {
			m[k] = math.Hypot(real(c), imag(c))
		}
		out[t] = m
	}
	return out
}

// Power returns |X|^2 for every frame and bin.
func Power(spec [][]complex128) [][]float64 {
	out := make([][]float64, len(spec))
	for t, row := range spec {
		p := make([]float64, len(row))
		for k, c := range row {
			p[k] = real(c)*real(c) + imag(c)*imag(c)
		}
		out[t] = p
	}
	return out
}

// BinFrequencies returns the center frequency in Hz of each of the n/2+1 bins.
func BinFrequencies(n, sampleRate int) []float64 {
	bins := n/2 + 1
	out := make([]float64, bins)
	for k := range out {
		out[k] = float64(k) * float64(sampleRate) / float64(n)
	}
	return out
}
