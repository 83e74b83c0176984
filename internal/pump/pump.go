// SPDX-License-Identifier: MIT
/*
Package pump moves audio from a Source to a Processor on a background worker
at a fixed cadence of ten frames per second.

Thread Safety:
  - All Pump methods may be called from any goroutine.
  - Current and requested state are guarded by one mutex; a condition
    variable is used only for the Start/Stop rendezvous with the worker.
  - While a run is active the worker is the only writer of the current state.
*/
package pump

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	applog "streampump/internal/log"
	"streampump/internal/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Stats are cumulative counters over every run of a Pump.
type Stats struct {
	Runs         uint64 // Workers spawned.
	Frames       uint64 // ProcessAudio calls.
	Bytes        uint64 // Audio bytes delivered.
	BufferAllocs uint64 // Frame buffers allocated, including the first of each run.
}

type counters struct {
	runs, frames, bytes, allocs atomic.Uint64
}

type pumpMetrics struct {
	frames  prometheus.Counter
	bytes   prometheus.Counter
	allocs  prometheus.Counter
	state   prometheus.Gauge
	readDur prometheus.Observer
}

// Pump is the controller side of the pump: it holds the attached source and
// the state machine, and owns at most one worker at a time.
type Pump struct {
	name    string
	log     *zap.SugaredLogger
	metrics pumpMetrics
	stats   counters

	mu        sync.Mutex
	cond      *sync.Cond
	source    Source
	state     State
	requested State
	worker    *worker       // Live run, nil once the worker detaches.
	draining  chan struct{} // Detached run still delivering its end-of-run notification.
	lastErr   error
	runSeq    uint64

	wg sync.WaitGroup // Every worker, attached or detached.
}

// Option configures a Pump.
type Option func(*Pump)

// WithName labels the pump in logs and metrics. Defaults to a short random id.
func WithName(name string) Option {
	return func(p *Pump) {
		if name != "" {
			p.name = name
		}
	}
}

// New returns a pump in StateNoInput.
func New(opts ...Option) *Pump {
	p := &Pump{
		name:      uuid.NewString()[:8],
		state:     StateNoInput,
		requested: StateNoInput,
	}
	p.cond = sync.NewCond(&p.mu)

	for _, opt := range opts {
		opt(p)
	}

	p.log = applog.Named("pump").With("pump", p.name)
	p.metrics = pumpMetrics{
		frames:  metrics.FramesTotal.WithLabelValues(p.name),
		bytes:   metrics.BytesTotal.WithLabelValues(p.name),
		allocs:  metrics.BufferAllocsTotal.WithLabelValues(p.name),
		state:   metrics.PumpState.WithLabelValues(p.name),
		readDur: metrics.ReadDuration.WithLabelValues(p.name),
	}
	p.metrics.state.Set(float64(p.state))

	return p
}

// Name returns the label given with WithName.
func (p *Pump) Name() string {
	return p.name
}

// SetSource attaches src, or detaches the current source when src is nil.
func (p *Pump) SetSource(src Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if src != nil && p.source != nil {
		return ErrAlreadyInitialized
	}
	if p.state == StatePaused || p.state == StateProcessing || p.worker != nil {
		return ErrAlreadyPumping
	}

	p.source = src
	if src != nil {
		p.setStateLocked(StateIdle)
	} else {
		p.setStateLocked(StateNoInput)
	}
	p.requested = p.state

	return nil
}

// GetFormat encodes the attached source's format into dst using the source's
// size-probe convention: a short dst receives nothing and the required size is
// returned.
func (p *Pump) GetFormat(dst []byte) (int, error) {
	p.mu.Lock()
	src := p.source
	p.mu.Unlock()

	if src == nil {
		return 0, ErrUninitialized
	}
	return src.GetFormat(dst), nil
}

// Format probes and decodes the attached source's format.
func (p *Pump) Format() (*Format, error) {
	p.mu.Lock()
	src := p.source
	p.mu.Unlock()

	if src == nil {
		return nil, ErrUninitialized
	}
	return readFormat(src)
}

// SetFormat always fails: the pump does not convert formats.
func (p *Pump) SetFormat(*Format) error {
	return ErrNotImplemented
}

// Start spawns a worker that feeds proc and blocks until the worker is
// processing or has definitively failed to start. A failed run's error is
// returned.
func (p *Pump) Start(proc Processor) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.source == nil {
			return ErrUninitialized
		}
		if p.worker != nil {
			return ErrAlreadyPumping
		}
		if p.draining == nil {
			break
		}
		// The previous run must finish its end-of-run notification before a
		// new run can announce a format.
		done := p.draining
		p.mu.Unlock()
		<-done
		p.mu.Lock()
		if p.draining == done {
			p.draining = nil
		}
	}

	switch p.state {
	case StateNoInput:
		return ErrNoAudioInput
	case StateProcessing:
		return ErrAlreadyPumping
	case StatePaused:
		return ErrNotImplemented
	case StateIdle:
	default:
		panic(fmt.Sprintf("pump: Start in unknown state %d", p.state))
	}

	p.runSeq++
	w := newWorker(p, p.source, proc, p.runSeq)
	p.worker = w
	p.lastErr = nil
	p.stats.runs.Add(1)
	p.wg.Add(1)
	go w.run()

	// The worker blocks on the lock until we wait below.
	p.requested = StateProcessing
	p.cond.Broadcast()
	for p.state != StateProcessing && p.requested == StateProcessing {
		p.cond.Wait()
	}

	return w.startErr
}

// Pause always fails: pausing is not supported.
func (p *Pump) Pause() error {
	return ErrNotImplemented
}

// Stop asks a running worker to go idle and waits until it has, or until
// another caller requests a different state. It is a no-op when not pumping.
func (p *Pump) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateNoInput, StateIdle:
		p.log.Debugw("Stop while not pumping", "state", p.state)

	case StatePaused, StateProcessing:
		p.requested = StateIdle
		p.cond.Broadcast()
		for p.state != StateIdle && p.requested == StateIdle {
			p.cond.Wait()
		}
	}
}

// State returns the current observed state without waiting on the worker.
func (p *Pump) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the error that ended the most recent run, if any.
func (p *Pump) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Wait blocks until the current run, if any, has fully finished, including
// its end-of-run notification, or until ctx is done.
func (p *Pump) Wait(ctx context.Context) error {
	p.mu.Lock()
	var done chan struct{}
	switch {
	case p.worker != nil:
		done = p.worker.done
	case p.draining != nil:
		done = p.draining
	}
	p.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the cumulative counters.
func (p *Pump) Stats() Stats {
	return Stats{
		Runs:         p.stats.runs.Load(),
		Frames:       p.stats.frames.Load(),
		Bytes:        p.stats.bytes.Load(),
		BufferAllocs: p.stats.allocs.Load(),
	}
}

// Close stops the pump and waits for every worker it spawned to exit. It must
// not race with Start.
func (p *Pump) Close() error {
	p.Stop()
	p.wg.Wait()
	p.log.Debugw("Pump closed", "stats", p.Stats())
	return nil
}

func (p *Pump) setStateLocked(s State) {
	p.state = s
	p.metrics.state.Set(float64(s))
}

// detachLocked releases w's claim on the pump so a later Start does not treat
// it as running. Start and Wait still observe it through draining.
func (p *Pump) detachLocked(w *worker) {
	if p.worker == w {
		p.worker = nil
		p.draining = w.done
	}
}

func readFormat(src Source) (*Format, error) {
	size := src.GetFormat(nil)
	if size < 0 {
		return nil, fmt.Errorf("%w: source reported format size %d", ErrUnsupportedFormat, size)
	}
	buf := make([]byte, size)
	n := src.GetFormat(buf)
	if n < 0 || n > size {
		return nil, fmt.Errorf("%w: source wrote %d format bytes into %d", ErrUnsupportedFormat, n, size)
	}
	return ParseFormat(buf[:n])
}
