package segment

import "sort"

// peakParams are frame counts for adaptive peak picking.
type peakParams struct {
	preMax  int
	postMax int
	preAvg  int
	postAvg int
	delta   float64
	wait    int
}

// pickPeaks returns the frame indices of onset peaks in env. The envelope is
// normalized to [0,1]; a frame is a peak when it equals the local maximum of
// [n-preMax, n+postMax), exceeds the local mean of [n-preAvg, n+postAvg) by
// delta and lies more than wait frames after the previous peak.
func pickPeaks(env []float64, p peakParams) []int {
	if len(env) == 0 {
		return nil
	}
	lo, hi := env[0], env[0]
	for _, v := range env {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if hi-lo <= 0 {
		return nil
	}
	norm := make([]float64, len(env))
	for i, v := range env {
		norm[i] = (v - lo) / (hi - lo)
	}

	var peaks []int
	last := -p.wait - 1
	for n, v := range norm {
		if n-last <= p.wait {
			continue
		}
		if v < windowMax(norm, n-p.preMax, n+p.postMax) {
			continue
		}
		if v < windowMean(norm, n-p.preAvg, n+p.postAvg)+p.delta {
			continue
		}
		peaks = append(peaks, n)
		last = n
	}
	return peaks
}

func windowMax(x []float64, from, to int) float64 {
	from, to = max(from, 0), min(to, len(x))
	m := x[from]
	for _, v := range x[from:to] {
		m = max(m, v)
	}
	return m
}

func windowMean(x []float64, from, to int) float64 {
	from, to = max(from, 0), min(to, len(x))
	var sum float64
	for _, v := range x[from:to] {
		sum += v
	}
	return sum / float64(to-from)
}

// backtrack moves each peak to the closest preceding local minimum of the
// energy envelope and returns the sorted, deduplicated boundary frames.
func backtrack(peaks []int, energy []float64) []int {
	if len(peaks) == 0 {
		return nil
	}
	minima := []int{0}
	for i := 1; i+1 < len(energy); i++ {
		if energy[i] <= energy[i-1] && energy[i] < energy[i+1] {
			minima = append(minima, i)
		}
	}
	seen := make(map[int]bool, len(peaks))
	out := make([]int, 0, len(peaks))
	for _, p := range peaks {
		// Largest minimum <= p.
		j := sort.SearchInts(minima, p+1) - 1
		b := minima[max(j, 0)]
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	sort.Ints(out)
	return out
}
