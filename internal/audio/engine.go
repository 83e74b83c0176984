// SPDX-License-Identifier: MIT
/*
Package audio turns a Config into a running stream pump:
- A source (file decoder, tone, stdin or a PortAudio input device)
- A processor chain (recorder, noise gate, queue, spectrum analyzer)
- Spectrum transports (log, WebSocket, MQTT) and the UDP publisher

Lifecycle:
- NewEngine builds everything and attaches the source
- Start begins pumping, Wait blocks until end-of-stream or cancellation
- Close stops the pump first, then drains and closes every sink
*/
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"streampump/internal/analysis"
	"streampump/internal/config"
	applog "streampump/internal/log"
	"streampump/internal/processor"
	"streampump/internal/pump"
	"streampump/internal/source"
	"streampump/internal/transport"
	"streampump/internal/transport/udp"
	"streampump/pkg/bitint"
)

// ToneAmplitude is the level of the built-in test tone.
const ToneAmplitude = 0.5

type Engine struct {
	// Core configuration and state.
	config *config.Config
	pump   *pump.Pump
	chain  processor.Tee

	// Input handling.
	source    source.ReadCloser
	push      *source.PushSource     // Set for stdin input.
	realtime  *source.RealtimeSource // Set when input is paced.
	stdin     io.Reader
	portAudio bool // PortAudio was initialized for mic input.

	// Processing chain, any of which may be nil when disabled.
	recorder *processor.Recorder
	gate     *processor.Gate
	queue    *processor.Queue
	analyzer *processor.Analyzer

	// Outputs.
	transports transport.Multi
	sender     *udp.UDPSender
	publisher  *udp.UDPPublisher

	feedDone  chan struct{} // Closed when the stdin copy returns.
	closeOnce sync.Once
	closeErr  error
}

// Option configures an Engine.
type Option func(*Engine)

// WithStdin sets the reader used for stdin input. Defaults to os.Stdin.
func WithStdin(r io.Reader) Option {
	return func(e *Engine) {
		e.stdin = r
	}
}

// WithTransport adds a spectrum transport next to the configured ones. The
// engine closes it on Close.
func WithTransport(t transport.Transport) Option {
	return func(e *Engine) {
		e.transports = append(e.transports, t)
	}
}

// NewEngine builds the source and processor chain described by cfg and
// attaches the source to a new pump. Nothing runs until Start.
func NewEngine(cfg *config.Config, opts ...Option) (engine *Engine, err error) {
	engine = &Engine{
		config: cfg,
		stdin:  os.Stdin,
	}
	for _, opt := range opts {
		opt(engine)
	}

	// Anything built before a failure is released again.
	defer func() {
		if err != nil {
			engine.release()
			engine = nil
		}
	}()

	engine.pump = pump.New(pump.WithName(cfg.PumpName))

	if err = engine.openSource(); err != nil {
		return engine, err
	}
	if err = engine.buildChain(); err != nil {
		return engine, err
	}
	if err = engine.pump.SetSource(engine.source); err != nil {
		return engine, err
	}

	f, err := engine.pump.Format()
	if err != nil {
		return engine, err
	}
	if err = f.Validate(); err != nil {
		return engine, err
	}
	if bpf, _ := f.BytesPerFrame(); engine.analyzer != nil {
		samples := bpf / int(f.BlockAlign)
		if size := cfg.Analysis.FFTSize; size > samples {
			applog.Warnf("Engine: fft_size %d exceeds the %d samples in each frame, %d avoids zero padding",
				size, samples, bitint.PrevPowerOfTwo(samples))
		}
	}
	applog.Infof("Engine: Pump %s ready (%s input, %s)", engine.pump.Name(), cfg.Input.Kind, f)

	return engine, nil
}

func (e *Engine) openSource() error {
	in := e.config.Input

	var (
		src source.ReadCloser
		err error
	)
	switch in.Kind {
	case config.InputWAV:
		src, err = source.OpenWAV(in.Path)
	case config.InputFLAC:
		src, err = source.OpenFLAC(in.Path)
	case config.InputMP3:
		src, err = source.OpenMP3(in.Path)
	case config.InputTone:
		src = source.NewTone(int(in.SampleRate), in.ToneHz, ToneAmplitude, in.ToneSeconds)
	case config.InputStdin:
		e.push = source.NewPushSource(pump.NewPCMFormat(int(in.SampleRate), in.Channels, in.BitsPerSample), 0)
		src = e.push
	case config.InputMic:
		if err := Initialize(); err != nil {
			return err
		}
		e.portAudio = true
		src, err = OpenMic(MicOptions{
			DeviceID:        in.Device,
			SampleRate:      in.SampleRate,
			Channels:        in.Channels,
			FramesPerBuffer: in.FramesPerBuffer,
			LowLatency:      in.LowLatency,
		})
	default:
		return fmt.Errorf("unknown input kind %q", in.Kind)
	}
	if err != nil {
		return err
	}

	// Decoded and synthesized input would otherwise run as fast as the CPU
	// allows. Live input is already paced.
	if in.Realtime && (config.FileInput(in.Kind) || in.Kind == config.InputTone) {
		paced, err := source.Realtime(src)
		if err != nil {
			src.Close()
			return err
		}
		if rt, ok := paced.(*source.RealtimeSource); ok {
			e.realtime = rt
		}
		src = paced
	}

	e.source = src
	return nil
}

func (e *Engine) buildChain() error {
	if rec := e.config.Recording; rec.Enabled {
		recorder, err := processor.NewRecorder(rec.OutputDir, rec.Prefix)
		if err != nil {
			return err
		}
		e.recorder = recorder
		e.chain = append(e.chain, recorder)
	}

	an := e.config.Analysis
	if !an.Enabled {
		return nil
	}

	if err := e.openTransports(); err != nil {
		return err
	}

	window, err := analysis.ParseWindowFunc(an.FFTWindow)
	if err != nil {
		return err
	}
	e.analyzer, err = processor.NewAnalyzer(processor.AnalyzerConfig{
		FFTSize:           an.FFTSize,
		Window:            window,
		IncludeMagnitudes: an.IncludeMagnitudes,
		OnsetThreshold:    an.OnsetThreshold,
	}, e.transports...)
	if err != nil {
		return err
	}

	e.queue = processor.NewQueue(e.pump.Name(), e.analyzer, an.QueueDepth)
	e.gate = processor.NewGate(e.queue, an.GateThreshold)
	if an.GateThreshold <= 0 {
		e.gate.Disable()
	}
	e.chain = append(e.chain, e.gate)

	tc := e.config.Transport
	if tc.UDPEnabled {
		e.sender, err = udp.NewUDPSender(tc.UDPTargetAddress)
		if err != nil {
			return err
		}
		e.publisher, err = udp.NewUDPPublisher(tc.UDPSendInterval, e.sender, e.analyzer)
		if err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) openTransports() error {
	tc := e.config.Transport

	if tc.Log {
		e.transports = append(e.transports, transport.NewLoggingTransport())
	}
	if tc.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(tc.WebSocketAddr, tc.WebSocketMinGap)
		if err != nil {
			return err
		}
		e.transports = append(e.transports, ws)
	}
	if tc.MQTTEnabled {
		mq, err := transport.NewMQTTTransport(transport.MQTTOptions{
			Broker:   tc.MQTTBroker,
			ClientID: tc.MQTTClientID,
			Topic:    tc.MQTTTopic,
			Username: tc.MQTTUsername,
			Password: tc.MQTTPassword,
		})
		if err != nil {
			return err
		}
		e.transports = append(e.transports, mq)
	}
	return nil
}

// Start begins pumping. For stdin input it also starts copying the reader
// into the stream; that copy ends when the reader does, so Close cannot wait
// for it.
func (e *Engine) Start() error {
	if e.push != nil && e.feedDone == nil {
		e.feedDone = make(chan struct{})
		go func() {
			defer close(e.feedDone)
			n, err := e.push.ReadFrom(e.stdin)
			if err != nil && !errors.Is(err, source.ErrClosed) {
				applog.Errorf("Engine: Reading stdin: %v", err)
			}
			applog.Debugf("Engine: Stdin finished after %d bytes", n)
		}()
	}

	if err := e.pump.Start(e.chain); err != nil {
		return fmt.Errorf("failed to start pump %s: %w", e.pump.Name(), err)
	}

	if e.publisher != nil {
		e.publisher.Start()
	}
	return nil
}

// Wait blocks until the input ends or ctx is done. At end of input it returns
// the error that ended the run, if any.
func (e *Engine) Wait(ctx context.Context) error {
	if err := e.pump.Wait(ctx); err != nil {
		return err
	}
	return e.pump.Err()
}

// Stop ends the current run. Blocking inputs are told to finish first so the
// worker is not left waiting on a read.
func (e *Engine) Stop() {
	if e.push != nil {
		e.push.CloseWrite()
	}
	if e.realtime != nil {
		e.realtime.Interrupt()
	}
	e.pump.Stop()
}

// Close stops the pump and releases everything the engine opened. It is safe
// to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.Stop()
		e.closeErr = e.release()
		stats := e.pump.Stats()
		applog.Infof("Engine: Pump %s closed (runs=%d frames=%d bytes=%d allocs=%d)",
			e.pump.Name(), stats.Runs, stats.Frames, stats.Bytes, stats.BufferAllocs)
	})
	return e.closeErr
}

// release closes in dependency order: producers before consumers.
func (e *Engine) release() error {
	var errs []error
	collect := func(what string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}

	if e.pump != nil {
		collect("pump", e.pump.Close())
	}
	if e.publisher != nil {
		collect("udp publisher", e.publisher.Stop())
	}
	if e.sender != nil {
		collect("udp sender", e.sender.Close())
	}
	if e.queue != nil {
		collect("queue", e.queue.Close())
	}
	if e.recorder != nil {
		collect("recorder", e.recorder.Close())
	}
	if len(e.transports) > 0 {
		collect("transports", e.transports.Close())
	}
	if e.source != nil {
		collect("source", e.source.Close())
	}
	if e.portAudio {
		collect("portaudio", Terminate())
		e.portAudio = false
	}

	return errors.Join(errs...)
}

// Status is a point-in-time view of the engine for display.
type Status struct {
	Name      string
	State     pump.State
	Format    *pump.Format // Nil when the source descriptor is unreadable.
	Stats     pump.Stats
	Err       error
	Gate      bool   // Gate is holding back quiet frames.
	Passed    uint64 // Frames through the gate.
	Gated     uint64 // Frames held back by the gate.
	Dropped   uint64 // Frames the analyzer queue could not keep up with.
	Buffered  int    // Stdin bytes waiting to be pumped.
	Recording []string
}

// Status returns the current pump state and chain counters.
func (e *Engine) Status() Status {
	s := Status{
		Name:  e.pump.Name(),
		State: e.pump.State(),
		Stats: e.pump.Stats(),
		Err:   e.pump.Err(),
	}
	if f, err := e.pump.Format(); err == nil {
		s.Format = f
	}
	if e.gate != nil {
		s.Gate = e.gate.Enabled()
		s.Passed, s.Gated = e.gate.Counts()
	}
	if e.queue != nil {
		s.Dropped = e.queue.Dropped()
	}
	if e.push != nil {
		s.Buffered = e.push.Buffered()
	}
	if e.recorder != nil {
		s.Recording = e.recorder.Files()
	}
	return s
}

// SetGate switches the noise gate on or off. It is a no-op without analysis.
func (e *Engine) SetGate(enabled bool) {
	if e.gate == nil {
		return
	}
	if enabled {
		e.gate.Enable()
	} else {
		e.gate.Disable()
	}
}

// Analyzer returns the spectrum analyzer, or nil when analysis is disabled.
func (e *Engine) Analyzer() *processor.Analyzer {
	return e.analyzer
}
