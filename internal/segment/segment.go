// Package segment splits an utterance into syllable-sized segments using
// onset detection over a log-mel spectral flux envelope.
package segment

import (
	"math"

	"mivta/internal/config"
	"mivta/internal/dsp"

	"github.com/sirupsen/logrus"
)

// Segment is a contiguous range of a parent buffer hypothesized to contain
// one syllable.
type Segment struct {
	Start       float64 `json:"start_time"` // seconds
	End         float64 `json:"end_time"`
	StartSample int     `json:"start_sample"`
	EndSample   int     `json:"end_sample"` // exclusive
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 { return s.End - s.Start }

// Len returns the number of samples covered.
func (s Segment) Len() int { return s.EndSample - s.StartSample }

// Segmenter detects syllable boundaries.
type Segmenter struct {
	sampleRate int
	hop        int
	frameLen   int
	minDur     float64
	maxDur     float64
	silenceRMS float64
	peaks      peakParams
	melBank    [][]float64
	logger     *logrus.Logger
}

// New builds a Segmenter from the segment section of cfg.
func New(cfg *config.Config, logger *logrus.Logger) *Segmenter {
	sr := cfg.Audio.SampleRate
	hop := cfg.Segment.HopLength
	toFrames := func(sec float64) int {
		return int(sec * float64(sr) / float64(hop))
	}
	return &Segmenter{
		sampleRate: sr,
		hop:        hop,
		frameLen:   cfg.Segment.FrameLength,
		minDur:     cfg.Segment.MinDuration,
		maxDur:     cfg.Segment.MaxDuration,
		silenceRMS: cfg.Segment.SilenceRMS,
		peaks: peakParams{
			preMax:  max(1, toFrames(cfg.Segment.PreMax)),
			postMax: toFrames(cfg.Segment.PostMax) + 1,
			preAvg:  max(1, toFrames(cfg.Segment.PreAvg)),
			postAvg: toFrames(cfg.Segment.PostAvg) + 1,
			delta:   cfg.Segment.Delta,
			wait:    max(1, toFrames(cfg.Segment.Wait)),
		},
		melBank: dsp.MelFilterbank(cfg.Segment.NMels, cfg.Segment.FrameLength, sr, 0, 0),
		logger:  logger,
	}
}

// Segment returns the ordered, non-overlapping segments of audio whose
// durations lie within the configured bounds. It never fails: empty or
// silent input yields an empty list.
func (s *Segmenter) Segment(audio []float32) []Segment {
	if len(audio) == 0 {
		return nil
	}
	energy := dsp.FrameRMS(audio, s.frameLen, s.hop)
	onsets := s.onsetEnvelope(audio)
	peaks := pickPeaks(onsets, s.peaks)
	bounds := backtrack(peaks, energy)

	starts := make([]int, 0, len(bounds))
	for _, f := range bounds {
		sample := f * s.hop
		if sample >= len(audio) {
			continue
		}
		starts = append(starts, sample)
	}

	if len(starts) == 0 {
		total := float64(len(audio)) / float64(s.sampleRate)
		if s.inBounds(total) && maxOf(energy) > s.silenceRMS {
			s.logger.Debugf("segment: no onsets, using whole buffer (%.3fs)", total)
			return []Segment{s.makeSegment(0, len(audio))}
		}
		s.logger.Debugf("segment: no onsets in %.3fs buffer", total)
		return nil
	}

	out := s.buildSegments(starts, len(audio))
	s.logger.Debugf("segment: %d onsets, %d segments kept", len(starts), len(out))
	return out
}

// buildSegments forms candidates between consecutive boundaries plus a
// trailing one to the end of the buffer, keeping those within bounds.
func (s *Segmenter) buildSegments(starts []int, total int) []Segment {
	out := make([]Segment, 0, len(starts))
	for i, start := range starts {
		end := total
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if end <= start {
			continue
		}
		seg := s.makeSegment(start, end)
		if !s.inBounds(seg.Duration()) {
			continue
		}
		out = append(out, seg)
	}
	return out
}

func (s *Segmenter) makeSegment(start, end int) Segment {
	sr := float64(s.sampleRate)
	return Segment{
		Start:       float64(start) / sr,
		End:         float64(end) / sr,
		StartSample: start,
		EndSample:   end,
	}
}

func (s *Segmenter) inBounds(d float64) bool {
	return d >= s.minDur && d <= s.maxDur
}

// onsetEnvelope is the mean positive first difference of the log-mel
// spectrogram across bands, one value per frame.
func (s *Segmenter) onsetEnvelope(audio []float32) []float64 {
	stft := dsp.NewSTFT(s.frameLen, s.hop)
	mel := dsp.ApplyFilterbank(dsp.Power(stft.Forward(audio)), s.melBank)
	dsp.PowerToDB(mel, 80)

	env := make([]float64, len(mel))
	for t := 1; t < len(mel); t++ {
		var sum float64
		for m := range mel[t] {
			if d := mel[t][m] - mel[t-1][m]; d > 0 {
				sum += d
			}
		}
		env[t] = sum / float64(len(mel[t]))
	}
	return env
}

func maxOf(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		m = math.Max(m, x)
	}
	return m
}
