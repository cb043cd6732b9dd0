package dsp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// MelFilterbank builds nMels triangular filters over the n/2+1 bins of an
// n-point FFT, spaced on the HTK mel scale between fMin and fMax.
func MelFilterbank(nMels, n, sampleRate int, fMin, fMax float64) [][]float64 {
	if fMax <= 0 || fMax > float64(sampleRate)/2 {
		fMax = float64(sampleRate) / 2
	}
	freqs := BinFrequencies(n, sampleRate)

	mMin, mMax := hzToMel(fMin), hzToMel(fMax)
	pts := make([]float64, nMels+2)
	for i := range pts {
		pts[i] = melToHz(mMin + float64(i)*(mMax-mMin)/float64(nMels+1))
	}

	filters := make([][]float64, nMels)
	for m := range filters {
		row := make([]float64, len(freqs))
		lowW := pts[m+1] - pts[m]
		highW := pts[m+2] - pts[m+1]
		for k, f := range freqs {
			lower := (f - pts[m]) / lowW
			upper := (pts[m+2] - f) / highW
			if v := math.Min(lower, upper); v > 0 {
				row[k] = v
			}
		}
		filters[m] = row
	}
	return filters
}

// ApplyFilterbank projects each spectrum frame onto the filters.
func ApplyFilterbank(spec [][]float64, bank [][]float64) [][]float64 {
	out := make([][]float64, len(spec))
	for t, frame := range spec {
		row := make([]float64, len(bank))
		for m, filter := range bank {
			var sum float64
			for k, w := range filter {
				if w != 0 {
					sum += w * frame[k]
				}
			}
			row[m] = sum
		}
		out[t] = row
	}
	return out
}

// PowerToDB converts power values to decibels in place and clips everything
// more than topDB below the global maximum.
func PowerToDB(spec [][]float64, topDB float64) [][]float64 {
	peak := math.Inf(-1)
	for _, row := range spec {
		for i, v := range row {
			db := 10 * math.Log10(math.Max(v, 1e-10))
			row[i] = db
			if db > peak {
				peak = db
			}
		}
	}
	if topDB <= 0 {
		return spec
	}
	floor := peak - topDB
	for _, row := range spec {
		for i, v := range row {
			if v < floor {
				row[i] = floor
			}
		}
	}
	return spec
}

// DCT is an orthonormal type-II discrete cosine transform that keeps the
// first nOut coefficients of an nIn-point input.
type DCT struct {
	basis *mat.Dense
}

// NewDCT precomputes the nOut x nIn transform matrix.
func NewDCT(nOut, nIn int) *DCT {
	basis := mat.NewDense(nOut, nIn, nil)
	for k := 0; k < nOut; k++ {
		scale := math.Sqrt(2.0 / float64(nIn))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(nIn))
		}
		for n := 0; n < nIn; n++ {
			basis.Set(k, n, scale*math.Cos(math.Pi*float64(k)*(2*float64(n)+1)/(2*float64(nIn))))
		}
	}
	return &DCT{basis: basis}
}

// Apply transforms one input vector. Safe for concurrent use.
func (d *DCT) Apply(in []float64) []float64 {
	rows, _ := d.basis.Dims()
	var out mat.VecDense
	out.MulVec(d.basis, mat.NewVecDense(len(in), in))
	res := make([]float64, rows)
	for i := range res {
		res[i] = out.AtVec(i)
	}
	return res
}
