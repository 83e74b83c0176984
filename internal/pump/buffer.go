// SPDX-License-Identifier: MIT
package pump

import "sync/atomic"

// FrameBuffer is a reference-counted byte buffer holding one frame of audio.
//
// The worker owns one reference and is the only writer. A processor that needs
// the data after ProcessAudio returns must call Retain and later Release. The
// worker only writes into a buffer it holds the sole reference to; a processor
// that never releases forces a fresh allocation per frame but cannot observe a
// torn frame.
type FrameBuffer struct {
	data []byte
	refs atomic.Int32
}

func newFrameBuffer(size int) *FrameBuffer {
	return NewFrameBuffer(make([]byte, size))
}

// NewFrameBuffer wraps data with a single reference held by the caller. It
// lets processors be driven without a pump.
func NewFrameBuffer(data []byte) *FrameBuffer {
	b := &FrameBuffer{data: data}
	b.refs.Store(1)
	return b
}

// Bytes returns the whole backing slice. Only the first n bytes passed to
// ProcessAudio are valid for the current frame.
func (b *FrameBuffer) Bytes() []byte {
	return b.data
}

// Len returns the buffer capacity in bytes.
func (b *FrameBuffer) Len() int {
	return len(b.data)
}

// Retain adds a holder and returns b for chaining.
func (b *FrameBuffer) Retain() *FrameBuffer {
	b.refs.Add(1)
	return b
}

// Release drops a holder. Releasing more often than retaining panics.
func (b *FrameBuffer) Release() {
	if b.refs.Add(-1) < 0 {
		panic("pump: FrameBuffer released more times than retained")
	}
}

// Refs returns the current number of holders.
func (b *FrameBuffer) Refs() int32 {
	return b.refs.Load()
}

// exclusive reports whether the caller's reference is the only one.
func (b *FrameBuffer) exclusive() bool {
	return b.refs.Load() == 1
}
