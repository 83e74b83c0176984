// SPDX-License-Identifier: MIT
package processor

import "streampump/internal/pump"

// Tee forwards every call to each processor in order.
type Tee []pump.Processor

var _ pump.Processor = Tee(nil)

func (t Tee) SetFormat(f *pump.Format) {
	for _, p := range t {
		p.SetFormat(f)
	}
}

func (t Tee) ProcessAudio(buf *pump.FrameBuffer, n int) {
	for _, p := range t {
		p.ProcessAudio(buf, n)
	}
}
