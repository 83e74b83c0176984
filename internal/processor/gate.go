// SPDX-License-Identifier: MIT
package processor

import (
	"math"
	"sync/atomic"

	"streampump/internal/pump"
)

// Gate is a noise gate: it forwards a frame to the next processor only when
// the frame's peak amplitude exceeds the threshold. Format notifications are
// always forwarded.
type Gate struct {
	next      pump.Processor
	enabled   atomic.Bool
	threshold atomic.Int32 // Absolute amplitude threshold (0-2147483647)

	layout  layout
	passed  atomic.Uint64
	blocked atomic.Uint64
}

var _ pump.Processor = (*Gate)(nil)

// NewGate returns an enabled gate in front of next. threshold is in the range
// 0.0-1.0 where 0=always open, 1=always closed.
func NewGate(next pump.Processor, threshold float64) *Gate {
	g := &Gate{next: next}
	g.enabled.Store(true)
	g.SetThreshold(threshold)
	return g
}

func (g *Gate) Enable() {
	g.enabled.Store(true)
}

func (g *Gate) Disable() {
	g.enabled.Store(false)
}

func (g *Gate) Enabled() bool {
	return g.enabled.Load()
}

// SetThreshold adjusts the noise gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}

	g.threshold.Store(int32(threshold * float64(math.MaxInt32)))
}

// Threshold returns the current noise gate threshold as a float64.
func (g *Gate) Threshold() float64 {
	return float64(g.threshold.Load()) / float64(math.MaxInt32)
}

// SetFormat implements pump.Processor.
func (g *Gate) SetFormat(f *pump.Format) {
	if f != nil {
		g.layout = newLayout(f)
	}
	g.next.SetFormat(f)
}

// ProcessAudio implements pump.Processor.
func (g *Gate) ProcessAudio(buf *pump.FrameBuffer, n int) {
	th := g.threshold.Load()
	if g.enabled.Load() && th > 0 && g.layout.peak(buf.Bytes()[:n]) <= th {
		g.blocked.Add(1)
		return
	}
	g.passed.Add(1)
	g.next.ProcessAudio(buf, n)
}

// Counts returns how many frames were forwarded and how many were held back.
func (g *Gate) Counts() (passed, blocked uint64) {
	return g.passed.Load(), g.blocked.Load()
}
