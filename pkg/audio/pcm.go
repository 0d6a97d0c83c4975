// Package audio defines the sample types, PCM16 codec, and device interfaces
// used by the Vocata live voice pipeline.
//
// The wire format for all live audio is signed 16-bit little-endian PCM:
// mono 16000 Hz outbound (microphone → model) and mono 24000 Hz inbound
// (model → speakers), carried as base64 text inside transport messages.
// Conversion between float samples and PCM16 bytes, and between raw bytes and
// the text-safe transport encoding, happens here and nowhere else.
package audio

import (
	"encoding/base64"
	"fmt"
	"math"
	"time"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Duration returns the playback duration of n samples per channel at this
// format's sample rate.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(f.SampleRate))
}

// String returns a human-readable description, e.g. "16000Hz mono".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// SamplesToPCM16 converts float samples in [-1.0, 1.0] to signed 16-bit
// little-endian PCM. Each sample is clamped, scaled by 32768, and rounded;
// +1.0 saturates at 32767 (the int16 maximum).
func SamplesToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(float64(clamp(s)) * 32768)
		if v > 32767 {
			v = 32767
		}
		n := int16(v)
		out[i*2] = byte(n)
		out[i*2+1] = byte(n >> 8)
	}
	return out
}

// PCM16ToSamples converts signed 16-bit little-endian PCM to float samples,
// de-interleaving into one slice per channel. Each 16-bit value is divided by
// 32768.0, the near-inverse of [SamplesToPCM16]. A trailing odd byte is
// ignored; channels < 1 is treated as mono.
func PCM16ToSamples(data []byte, channels int) [][]float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(data) / 2 / channels
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for i := range frames {
		for c := range channels {
			off := (i*channels + c) * 2
			v := int16(data[off]) | int16(data[off+1])<<8
			out[c][i] = float32(v) / 32768.0
		}
	}
	return out
}

// EncodeText encodes raw bytes into the text-safe transport representation
// used inside session messages. The encoding is reversible byte-for-byte via
// [DecodeText].
func EncodeText(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeText is the inverse of [EncodeText].
func DecodeText(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("audio: decode transport text: %w", err)
	}
	return b, nil
}

func clamp(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
