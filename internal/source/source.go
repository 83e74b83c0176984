// SPDX-License-Identifier: MIT
/*
Package source provides pump.Source implementations: decoded audio files
(WAV, FLAC, MP3), a push stream fed by a writer, and a tone generator.

File sources read as fast as the pump asks. Wrap them with Realtime to pace
delivery at the stream's natural rate.
*/
package source

import (
	"io"
	"sync"
	"time"

	"streampump/internal/pump"

	"github.com/pkg/errors"
)

// ReadCloser is a pump.Source that owns a resource.
type ReadCloser interface {
	pump.Source
	io.Closer
}

// formatSource supplies GetFormat for sources with a fixed descriptor.
type formatSource struct {
	format pump.Format
}

// GetFormat implements pump.Source.
func (s *formatSource) GetFormat(dst []byte) int {
	return s.format.Put(dst)
}

// Format returns a copy of the descriptor.
func (s *formatSource) Format() pump.Format {
	return s.format
}

// readFull reads until p is full. A stream that ends mid-buffer returns the
// partial count with io.EOF so the pump delivers the tail and stops.
func readFull(r io.Reader, p []byte) (int, error) {
	n, err := io.ReadFull(r, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

// RealtimeSource paces an inner source at its format's average byte rate.
type RealtimeSource struct {
	inner ReadCloser
	rate  float64 // bytes per second

	mu        sync.Mutex
	started   time.Time
	delivered int64

	stop     chan struct{}
	stopOnce sync.Once
}

// Realtime wraps src so Read never runs ahead of wall-clock time. Sources
// whose format has no byte rate are returned unchanged.
func Realtime(src ReadCloser) (ReadCloser, error) {
	size := src.GetFormat(nil)
	buf := make([]byte, size)
	f, err := pump.ParseFormat(buf[:src.GetFormat(buf)])
	if err != nil {
		return nil, errors.Wrap(err, "realtime: read format")
	}
	if f.AvgBytesPerSec == 0 {
		return src, nil
	}
	return &RealtimeSource{
		inner: src,
		rate:  float64(f.AvgBytesPerSec),
		stop:  make(chan struct{}),
	}, nil
}

// GetFormat implements pump.Source.
func (r *RealtimeSource) GetFormat(dst []byte) int {
	return r.inner.GetFormat(dst)
}

// Read delivers from the inner source, then waits until the bytes handed out
// so far are due.
func (r *RealtimeSource) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-r.stop:
		return 0, io.EOF
	default:
	}

	if r.started.IsZero() {
		r.started = time.Now()
	}

	n, err := r.inner.Read(p)
	r.delivered += int64(n)

	due := r.started.Add(time.Duration(float64(r.delivered) / r.rate * float64(time.Second)))
	if wait := time.Until(due); wait > 0 && err == nil {
		select {
		case <-time.After(wait):
		case <-r.stop:
			return n, io.EOF
		}
	}
	return n, err
}

// Close interrupts a pending wait and closes the inner source.
func (r *RealtimeSource) Close() error {
	r.stopOnce.Do(func() { close(r.stop) })
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inner.Close()
}

// Interrupt ends the stream at the next Read without closing the inner source.
func (r *RealtimeSource) Interrupt() {
	r.stopOnce.Do(func() { close(r.stop) })
}
