//go:build !portaudio
// +build !portaudio

// Package portaudio implements the audio device interfaces on top of the
// PortAudio library via github.com/gordonklaus/portaudio.
//
// This stub is compiled when the "portaudio" build tag is absent; its open
// operations fail with [ErrUnavailable].
package portaudio

import (
	"context"
	"errors"

	"github.com/vocata-ai/vocata/pkg/audio"
)

// ErrUnavailable is returned when the binary was built without PortAudio
// support.
var ErrUnavailable = errors.New("portaudio: built without portaudio support, rebuild with -tags portaudio")

// Devices is the stub device opener compiled without the portaudio tag.
type Devices struct{}

var _ audio.Devices = (*Devices)(nil)

// New returns a device opener whose open operations fail with
// [ErrUnavailable].
func New() (*Devices, error) {
	return &Devices{}, nil
}

// OpenCapture implements audio.Devices.
func (d *Devices) OpenCapture(context.Context, audio.Format, int) (audio.CaptureDevice, error) {
	return nil, ErrUnavailable
}

// OpenOutput implements audio.Devices.
func (d *Devices) OpenOutput(context.Context, audio.Format) (audio.OutputDevice, error) {
	return nil, ErrUnavailable
}
