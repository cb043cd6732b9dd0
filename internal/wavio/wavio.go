// Package wavio reads and writes mono float32 PCM as WAV files.
package wavio

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	resampling "github.com/tphakala/go-audio-resampling"
)

// ErrInvalidWAV is returned for files the decoder does not accept.
var ErrInvalidWAV = errors.New("wavio: not a valid WAV file")

// Read decodes path, downmixes to mono and resamples to sampleRate.
// It returns the samples and the file's original sample rate.
func Read(path string, sampleRate int) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s: %w", path, ErrInvalidWAV)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("read pcm %s: %w", path, err)
	}
	mono := toMono(buf)
	src := buf.Format.SampleRate
	if sampleRate <= 0 || src == sampleRate {
		return mono, src, nil
	}
	out, err := Resample(mono, src, sampleRate)
	if err != nil {
		return nil, 0, err
	}
	return out, src, nil
}

// Write encodes samples as 16-bit mono PCM.
func Write(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		c := math.Max(-1, math.Min(1, float64(s)))
		data[i] = int(math.Round(c * 32767))
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return f.Close()
}

func toMono(buf *audio.IntBuffer) []float32 {
	ch := max(1, buf.Format.NumChannels)
	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = 16
	}
	scale := math.Pow(2, float64(depth-1))
	offset := 0.0
	if depth == 8 {
		// 8-bit WAV is unsigned.
		offset = 128
	}
	frames := len(buf.Data) / ch
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += (float64(buf.Data[i*ch+c]) - offset) / scale
		}
		out[i] = float32(sum / float64(ch))
	}
	return out
}

// ResampledLen is the length Resample produces.
func ResampledLen(n, srcSR, dstSR int) int {
	return int(math.Round(float64(n) * float64(dstSR) / float64(srcSR)))
}

// Resample converts mono samples between rates. The result always has
// ResampledLen samples.
func Resample(in []float32, srcSR, dstSR int) ([]float32, error) {
	if srcSR == dstSR || len(in) == 0 {
		return append([]float32(nil), in...), nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcSR),
		OutputRate: float64(dstSR),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}
	input := make([]float64, len(in))
	for i, s := range in {
		input[i] = float64(s)
	}
	output, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}
	out := make([]float32, ResampledLen(len(in), srcSR, dstSR))
	for i := range out {
		if i >= len(output) {
			break
		}
		out[i] = float32(output[i])
	}
	return out, nil
}
