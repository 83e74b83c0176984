// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	applog "streampump/internal/log"
	"streampump/internal/pump"

	"github.com/gordonklaus/portaudio"
)

// MicSource captures 16-bit PCM from a PortAudio input device using the
// blocking stream API, so Read paces the pump at the device's real-time rate.
type MicSource struct {
	stream *portaudio.Stream
	format pump.Format

	mu      sync.Mutex
	samples []int16 // PortAudio fills this on every stream.Read.
	encoded []byte  // Backing store for pending.
	pending []byte  // Encoded samples not yet handed out.
	closed  bool
}

var _ pump.Source = (*MicSource)(nil)

// MicOptions selects the device and stream shape.
type MicOptions struct {
	DeviceID        int
	SampleRate      float64
	Channels        int
	FramesPerBuffer int
	LowLatency      bool
}

// OpenMic opens and starts an input stream. PortAudio must be initialized.
func OpenMic(opts MicOptions) (*MicSource, error) {
	device, err := InputDevice(opts.DeviceID)
	if err != nil {
		return nil, err
	}

	latency := device.DefaultHighInputLatency
	if opts.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	samples := make([]int16, opts.FramesPerBuffer*opts.Channels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: opts.Channels,
			Device:   device,
			Latency:  latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: opts.FramesPerBuffer,
		SampleRate:      opts.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, samples)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream on %q: %w", device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start input stream on %q: %w", device.Name, err)
	}

	applog.Infof("Mic: Capturing from %q (%.0f Hz, %d ch, latency %s)",
		device.Name, opts.SampleRate, opts.Channels, latency.Round(time.Microsecond))

	return &MicSource{
		stream:  stream,
		format:  pump.NewPCMFormat(int(opts.SampleRate), opts.Channels, 16),
		samples: samples,
		encoded: make([]byte, 0, len(samples)*2),
	}, nil
}

// GetFormat implements pump.Source.
func (m *MicSource) GetFormat(dst []byte) int {
	return m.format.Put(dst)
}

// Read fills p completely from the device unless the stream fails or is
// closed.
func (m *MicSource) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for n < len(p) {
		if len(m.pending) == 0 {
			if m.closed {
				return n, io.EOF
			}
			if err := m.stream.Read(); err != nil {
				// Overflows drop samples but the stream is still usable.
				if err == portaudio.InputOverflowed {
					applog.Warnf("Mic: Input overflowed, samples were dropped")
				} else {
					return n, fmt.Errorf("mic read: %w", err)
				}
			}
			m.encoded = encodePCM16(m.encoded[:0], m.samples)
			m.pending = m.encoded
		}

		c := copy(p[n:], m.pending)
		m.pending = m.pending[c:]
		n += c
	}

	return n, nil
}

// Close stops and closes the stream. Stop the pump first: Close waits for
// any Read in progress.
func (m *MicSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if err := m.stream.Stop(); err != nil {
		m.stream.Close()
		return fmt.Errorf("failed to stop input stream: %w", err)
	}
	return m.stream.Close()
}

// encodePCM16 appends samples to dst as little-endian bytes.
func encodePCM16(dst []byte, samples []int16) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}
