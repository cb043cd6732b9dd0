//go:build portaudio

package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mivta/internal/config"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"
)

// Available reports whether a microphone backend is compiled in.
func Available() bool { return true }

type deviceSource struct {
	device     string
	sampleRate int
	channels   int
	chunk      int
	logger     *logrus.Logger
}

// NewDeviceSource returns a PortAudio microphone source.
func NewDeviceSource(cfg *config.Config, logger *logrus.Logger) (Source, error) {
	if cfg.Audio.Channels != 1 {
		return nil, fmt.Errorf("only mono input supported; set audio.channels = 1")
	}
	return &deviceSource{
		device:     cfg.Audio.DeviceName,
		sampleRate: cfg.Audio.SampleRate,
		channels:   cfg.Audio.Channels,
		chunk:      cfg.Audio.ChunkSize,
		logger:     logger,
	}, nil
}

func (s *deviceSource) Run(ctx context.Context, emit func([]float32)) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	dev, err := selectDevice(s.device)
	if err != nil {
		return err
	}
	buf := make([]float32, s.chunk)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: s.channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(s.sampleRate),
		FramesPerBuffer: s.chunk,
	}, &buf)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	defer stream.Stop()

	s.logger.Infof("recording from mic: %s @ %d Hz", dev.Name, s.sampleRate)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				s.logger.Warn("input overflow")
				continue
			}
			return fmt.Errorf("stream read: %w", err)
		}
		emit(buf)
	}
}

func selectDevice(preferred string) (*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if preferred != "" {
		for _, d := range devs {
			if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), strings.ToLower(preferred)) {
				return d, nil
			}
		}
	}
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		return def, nil
	}
	for _, d := range devs {
		if d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input devices found")
}

// ListDevices enumerates input devices.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	def, _ := portaudio.DefaultInputDevice()
	out := []Device{}
	for i, d := range devs {
		if d.MaxInputChannels < 1 {
			continue
		}
		out = append(out, Device{
			Index:     i,
			Name:      d.Name,
			Channels:  d.MaxInputChannels,
			LatencyMs: d.DefaultLowInputLatency.Seconds() * 1000,
			Default:   def != nil && d.Name == def.Name,
		})
	}
	return out, nil
}
