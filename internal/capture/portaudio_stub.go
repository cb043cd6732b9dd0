//go:build !portaudio

package capture

import (
	"mivta/internal/config"

	"github.com/sirupsen/logrus"
)

// Available reports whether a microphone backend is compiled in.
func Available() bool { return false }

// NewDeviceSource needs the portaudio build tag.
func NewDeviceSource(*config.Config, *logrus.Logger) (Source, error) {
	return nil, ErrUnavailable
}

// ListDevices needs the portaudio build tag.
func ListDevices() ([]Device, error) {
	return nil, ErrUnavailable
}
