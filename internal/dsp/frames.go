package dsp

import "math"

// FrameRMS returns the root-mean-square energy of every centered frame.
func FrameRMS(x []float32, frameLen, hop int) []float64 {
	frames := NumFrames(len(x), hop)
	out := make([]float64, frames)
	half := frameLen / 2
	for t := range out {
		start := t*hop - half
		var sum float64
		for k := 0; k < frameLen; k++ {
			idx := start + k
			if idx >= 0 && idx < len(x) {
				v := float64(x[idx])
				sum += v * v
			}
		}
		out[t] = math.Sqrt(sum / float64(frameLen))
	}
	return out
}

// ZeroCrossingRate returns the fraction of sign changes in every centered
// frame.
func ZeroCrossingRate(x []float32, frameLen, hop int) []float64 {
	frames := NumFrames(len(x), hop)
	out := make([]float64, frames)
	half := frameLen / 2
	for t := range out {
		start := max(t*hop-half, 0)
		end := min(t*hop-half+frameLen, len(x))
		crossings := 0
		for i := start + 1; i < end; i++ {
			if (x[i-1] >= 0) != (x[i] >= 0) {
				crossings++
			}
		}
		out[t] = float64(crossings) / float64(frameLen)
	}
	return out
}
