// SPDX-License-Identifier: MIT
package source

import (
	"io"

	"streampump/internal/pump"
	"streampump/pkg/utils"
)

// ToneSource synthesizes a 16-bit mono sine wave.
type ToneSource struct {
	formatSource
	sampleRate float64
	frequency  float64
	amplitude  float64
	total      int // Samples to produce, or 0 for endless.
	pos        int
}

var _ ReadCloser = (*ToneSource)(nil)

// NewTone returns a tone of the given length in seconds. A non-positive
// length produces an endless tone.
func NewTone(sampleRate int, frequency, amplitude, seconds float64) *ToneSource {
	total := 0
	if seconds > 0 {
		total = int(seconds * float64(sampleRate))
	}
	return &ToneSource{
		formatSource: formatSource{format: pump.NewPCMFormat(sampleRate, 1, 16)},
		sampleRate:   float64(sampleRate),
		frequency:    frequency,
		amplitude:    amplitude,
		total:        total,
	}
}

// Read implements pump.Source. A trailing odd byte in p is left unused.
func (t *ToneSource) Read(p []byte) (int, error) {
	samples := len(p) / 2
	if t.total > 0 {
		remaining := t.total - t.pos
		if remaining <= 0 {
			return 0, io.EOF
		}
		samples = min(samples, remaining)
	}

	n := utils.FillSinePCM16(p[:samples*2], t.pos, t.sampleRate, t.frequency, t.amplitude)
	t.pos += n

	if t.total > 0 && t.pos >= t.total {
		return n * 2, io.EOF
	}
	return n * 2, nil
}

// Close implements io.Closer.
func (t *ToneSource) Close() error {
	return nil
}
