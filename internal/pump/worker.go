// SPDX-License-Identifier: MIT
package pump

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"streampump/internal/metrics"
)

// worker performs one run: negotiate the format, then read and deliver frames
// until the requested state leaves Processing.
type worker struct {
	pump   *Pump
	source Source
	proc   Processor
	log    *zap.SugaredLogger
	done   chan struct{}

	// Guarded by pump.mu.
	startErr error
}

func newWorker(p *Pump, src Source, proc Processor, seq uint64) *worker {
	return &worker{
		pump:   p,
		source: src,
		proc:   proc,
		log:    p.log.With("run", seq),
		done:   make(chan struct{}),
	}
}

func (w *worker) run() {
	p := w.pump
	defer p.wg.Done()
	defer close(w.done)

	w.log.Debug("Pump worker started")

	bytesPerFrame, err := w.negotiate()
	if err != nil {
		w.log.Errorw("Format negotiation failed", "error", err)
		w.abort(err)
		w.proc.SetFormat(nil)
		metrics.RunsTotal.WithLabelValues(p.name, "failed").Inc()
		return
	}

	outcome := "stopped"
	data := w.allocate(bytesPerFrame)

	for w.checkAndApply() {
		// Never write into a frame another holder may still be reading.
		if !data.exclusive() {
			data.Release()
			data = w.allocate(bytesPerFrame)
		}

		start := time.Now()
		n, readErr := w.source.Read(data.data)
		p.metrics.readDur.Observe(time.Since(start).Seconds())
		n = max(0, min(n, len(data.data)))

		if n > 0 {
			w.proc.ProcessAudio(data, n)
			p.stats.frames.Add(1)
			p.stats.bytes.Add(uint64(n))
			p.metrics.frames.Inc()
			p.metrics.bytes.Add(float64(n))
		}

		if n == 0 || readErr != nil {
			w.endOfStream(n, readErr)
			outcome = "eos"
		}
	}

	data.Release()
	w.proc.SetFormat(nil)

	metrics.RunsTotal.WithLabelValues(p.name, outcome).Inc()
	w.log.Debugw("Pump worker stopped", "outcome", outcome)
}

// negotiate hands the source's format to the processor and sizes the frame.
func (w *worker) negotiate() (int, error) {
	format, err := readFormat(w.source)
	if err != nil {
		return 0, errors.Wrap(err, "read source format")
	}

	w.proc.SetFormat(format)
	w.log.Debugw("Format negotiated", "format", format.String())

	return format.BytesPerFrame()
}

// checkAndApply adopts the requested state and reports whether to keep
// pumping. While a run is active this is the only place the current state
// changes.
func (w *worker) checkAndApply() bool {
	p := w.pump
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.requested != p.state {
		p.setStateLocked(p.requested)
		p.cond.Broadcast()
	}

	if p.state == StateProcessing {
		return true
	}

	p.detachLocked(w)
	return false
}

func (w *worker) endOfStream(n int, err error) {
	p := w.pump
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case err == nil || errors.Is(err, io.EOF):
		w.log.Debugw("Source reached end of stream", "last_read", n)
	default:
		w.log.Warnw("Source read failed, ending stream", "error", err)
		p.lastErr = errors.Wrap(err, "source read")
	}

	p.requested = StateIdle
}

// abort ends a run that never reached Processing and wakes the Start caller.
func (w *worker) abort(err error) {
	p := w.pump
	p.mu.Lock()
	defer p.mu.Unlock()

	w.startErr = err
	p.lastErr = err
	p.requested = StateIdle
	if p.state != StateIdle {
		p.setStateLocked(StateIdle)
	}
	p.detachLocked(w)
	p.cond.Broadcast()
}

func (w *worker) allocate(size int) *FrameBuffer {
	p := w.pump
	p.stats.allocs.Add(1)
	p.metrics.allocs.Inc()
	return newFrameBuffer(size)
}
