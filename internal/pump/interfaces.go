// SPDX-License-Identifier: MIT
package pump

// Source is a sequential audio byte stream with a fixed format.
type Source interface {
	// GetFormat encodes the stream's format descriptor into dst and returns
	// the bytes written. When dst is too small (including nil) nothing is
	// written and the required size is returned.
	GetFormat(dst []byte) int

	// Read blocks until audio is available and fills p. Returning zero bytes
	// or an error ends the stream.
	Read(p []byte) (int, error)
}

// Processor consumes what a pump produces.
//
// SetFormat is called once with the negotiated format before the first frame
// and once with nil when the run ends. ProcessAudio is called once per frame,
// in order, never concurrently within a run. The buffer belongs to the pump;
// see FrameBuffer for how to keep it beyond the call.
type Processor interface {
	SetFormat(f *Format)
	ProcessAudio(buf *FrameBuffer, n int)
}

// ProcessorFuncs adapts plain functions to a Processor. Nil fields are no-ops.
type ProcessorFuncs struct {
	OnFormat func(f *Format)
	OnAudio  func(buf *FrameBuffer, n int)
}

func (p ProcessorFuncs) SetFormat(f *Format) {
	if p.OnFormat != nil {
		p.OnFormat(f)
	}
}

func (p ProcessorFuncs) ProcessAudio(buf *FrameBuffer, n int) {
	if p.OnAudio != nil {
		p.OnAudio(buf, n)
	}
}

var _ Processor = ProcessorFuncs{}
