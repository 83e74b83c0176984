// SPDX-License-Identifier: MIT
package source

import (
	"io"
	"sync"

	"streampump/internal/pump"

	"github.com/pkg/errors"
	"github.com/smallnest/ringbuffer"
)

// ErrClosed is returned by PushSource.Write after CloseWrite or Close.
var ErrClosed = errors.New("source: push stream closed")

// PushSource is a pump.Source fed by a producer through Write. Bytes pass
// through a fixed-size ring buffer; Write blocks while it is full and Read
// blocks until a whole frame is buffered or the producer is done.
type PushSource struct {
	formatSource

	mu       sync.Mutex
	cond     *sync.Cond
	rb       *ringbuffer.RingBuffer
	capacity int
	writeEOF bool // Producer finished; Read drains then reports io.EOF.
	closed   bool // Consumer gone; everything fails.
}

var _ ReadCloser = (*PushSource)(nil)
var _ io.Writer = (*PushSource)(nil)

// NewPushSource buffers up to capacity bytes of audio in format f. A capacity
// of zero holds one second.
func NewPushSource(f pump.Format, capacity int) *PushSource {
	if capacity <= 0 {
		capacity = int(f.AvgBytesPerSec)
	}
	s := &PushSource{
		formatSource: formatSource{format: f},
		rb:           ringbuffer.New(capacity),
		capacity:     capacity,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Write copies all of p into the buffer, waiting for room as needed.
func (s *PushSource) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	for written < len(p) {
		for s.rb.Free() == 0 && !s.writeEOF && !s.closed {
			s.cond.Wait()
		}
		if s.writeEOF || s.closed {
			return written, ErrClosed
		}

		chunk := p[written:]
		if free := s.rb.Free(); len(chunk) > free {
			chunk = chunk[:free]
		}
		n, err := s.rb.Write(chunk)
		written += n
		if n > 0 {
			s.cond.Broadcast()
		}
		if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
			return written, errors.Wrap(err, "push write")
		}
	}
	return written, nil
}

// ReadFrom copies r into the stream until r ends, then marks the stream
// finished.
func (s *PushSource) ReadFrom(r io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			w, werr := s.Write(buf[:n])
			total += int64(w)
			if werr != nil {
				return total, werr
			}
		}
		if errors.Is(err, io.EOF) {
			return total, s.CloseWrite()
		}
		if err != nil {
			s.CloseWrite()
			return total, err
		}
	}
}

// Read waits until len(p) bytes (or the whole buffer, if smaller) are
// available, or the producer has finished, then copies them out.
func (s *PushSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := min(len(p), s.capacity)
	for s.rb.Length() < want && !s.writeEOF && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return 0, io.EOF
	}

	avail := s.rb.Length()
	if avail == 0 {
		return 0, io.EOF
	}
	n, err := s.rb.Read(p[:min(len(p), avail)])
	s.cond.Broadcast()
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return n, errors.Wrap(err, "push read")
	}
	if s.writeEOF && s.rb.Length() == 0 && n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Buffered returns the bytes waiting to be read.
func (s *PushSource) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rb.Length()
}

// CloseWrite marks the producer as finished. Buffered bytes are still
// delivered.
func (s *PushSource) CloseWrite() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeEOF = true
	s.cond.Broadcast()
	return nil
}

// Close discards buffered audio and wakes every waiter.
func (s *PushSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.rb.Reset()
	s.cond.Broadcast()
	return nil
}
