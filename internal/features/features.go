// Package features turns a segment of audio into a fixed 29-dimensional
// acoustic descriptor.
package features

import (
	"math"

	"mivta/internal/config"
	"mivta/internal/dsp"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Dim is the length of every feature vector.
const Dim = config.FeatureDim

// Vector layout: 13 MFCC means, 13 MFCC population std-devs, spectral
// centroid mean, spectral rolloff mean, zero-crossing-rate mean.
type Vector [Dim]float64

const (
	idxCentroid = 26
	idxRolloff  = 27
	idxZCR      = 28
	nMFCC       = 13
)

// IsZero reports whether v is the degenerate "no information" vector.
func (v Vector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Slice returns a copy of v as a slice.
func (v Vector) Slice() []float64 {
	out := make([]float64, Dim)
	copy(out, v[:])
	return out
}

// FromSlice builds a Vector. ok is false when len(s) != Dim.
func FromSlice(s []float64) (v Vector, ok bool) {
	if len(s) != Dim {
		return v, false
	}
	copy(v[:], s)
	return v, true
}

// Status explains how a vector was produced.
type Status int

const (
	StatusOK Status = iota
	// StatusUnderflow: input shorter than one analysis frame.
	StatusUnderflow
	// StatusDegenerate: a statistic was not finite.
	StatusDegenerate
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnderflow:
		return "underflow"
	case StatusDegenerate:
		return "degenerate"
	}
	return "unknown"
}

// Extractor computes feature vectors. It is safe for concurrent use.
type Extractor struct {
	sampleRate int
	frameLen   int
	hop        int
	rolloff    float64
	melBank    [][]float64
	dct        *dsp.DCT
	freqs      []float64
	logger     *logrus.Logger
}

// New builds an Extractor from the features section of cfg.
func New(cfg *config.Config, logger *logrus.Logger) *Extractor {
	f := cfg.Features
	return &Extractor{
		sampleRate: cfg.Audio.SampleRate,
		frameLen:   f.FrameLength,
		hop:        f.HopLength,
		rolloff:    f.RolloffPercent,
		melBank:    dsp.MelFilterbank(f.NMels, f.FrameLength, cfg.Audio.SampleRate, 0, 0),
		dct:        dsp.NewDCT(nMFCC, f.NMels),
		freqs:      dsp.BinFrequencies(f.FrameLength, cfg.Audio.SampleRate),
		logger:     logger,
	}
}

// Extract returns the feature vector of audio. It never fails; short or
// degenerate input yields the zero vector.
func (e *Extractor) Extract(audio []float32) Vector {
	v, _ := e.ExtractWithStatus(audio)
	return v
}

// ExtractWithStatus is Extract plus the reason for a zero result.
func (e *Extractor) ExtractWithStatus(audio []float32) (Vector, Status) {
	var v Vector
	if len(audio) < e.frameLen {
		e.logger.Debugf("features: %d samples below frame length %d", len(audio), e.frameLen)
		return v, StatusUnderflow
	}

	spec := dsp.NewSTFT(e.frameLen, e.hop).Forward(audio)
	mag := dsp.Magnitude(spec)
	power := dsp.Power(spec)

	mel := dsp.PowerToDB(dsp.ApplyFilterbank(power, e.melBank), 80)
	coeffs := make([][]float64, nMFCC)
	for i := range coeffs {
		coeffs[i] = make([]float64, len(mel))
	}
	for t, frame := range mel {
		for i, c := range e.dct.Apply(frame) {
			coeffs[i][t] = c
		}
	}
	for i, band := range coeffs {
		v[i], v[nMFCC+i] = stat.PopMeanStdDev(band, nil)
	}

	centroids := make([]float64, len(mag))
	rolloffs := make([]float64, len(mag))
	for t, frame := range mag {
		centroids[t] = e.centroid(frame)
		rolloffs[t] = e.rolloffFreq(frame)
	}
	v[idxCentroid] = stat.Mean(centroids, nil)
	v[idxRolloff] = stat.Mean(rolloffs, nil)
	v[idxZCR] = stat.Mean(dsp.ZeroCrossingRate(audio, e.frameLen, e.hop), nil)

	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			e.logger.Debugf("features: non-finite statistic, returning zero vector")
			return Vector{}, StatusDegenerate
		}
	}
	return v, StatusOK
}

func (e *Extractor) centroid(frame []float64) float64 {
	total := floats.Sum(frame)
	if total <= 0 {
		return 0
	}
	return floats.Dot(frame, e.freqs) / total
}

func (e *Extractor) rolloffFreq(frame []float64) float64 {
	total := floats.Sum(frame)
	if total <= 0 {
		return 0
	}
	target := e.rolloff * total
	var acc float64
	for k, m := range frame {
		acc += m
		if acc >= target {
			return e.freqs[k]
		}
	}
	return e.freqs[len(e.freqs)-1]
}
