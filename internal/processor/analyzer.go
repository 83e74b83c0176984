// SPDX-License-Identifier: MIT
package processor

import (
	"fmt"
	"sync"
	"time"

	"streampump/internal/analysis"
	applog "streampump/internal/log"
	"streampump/internal/pump"
	"streampump/internal/transport"
)

// Spectrum is the per-frame analysis result handed to transports.
type Spectrum struct {
	Type       string             `json:"type"`
	Seq        uint64             `json:"seq"`
	Timestamp  int64              `json:"ts"`
	SampleRate float64            `json:"sampleRate"`
	PeakHz     float64            `json:"peakHz"`
	RMS        float64            `json:"rms"`
	Onset      bool               `json:"onset"`
	Bands      map[string]float64 `json:"bands"`
	Magnitudes []float64          `json:"magnitudes,omitempty"`
}

// String summarizes the spectrum for logs.
func (s Spectrum) String() string {
	onset := ""
	if s.Onset {
		onset = " onset"
	}
	return fmt.Sprintf("spectrum #%d peak=%.1fHz rms=%.4f%s", s.Seq, s.PeakHz, s.RMS, onset)
}

// AnalyzerConfig selects the transform and what each Spectrum carries.
type AnalyzerConfig struct {
	FFTSize           int
	Window            analysis.WindowFunc
	IncludeMagnitudes bool
	OnsetThreshold    float64
	OnsetRatio        float64
	OnsetCooldown     int
}

// Analyzer runs an FFT over the most recent FFTSize samples of channel 0 in
// every frame and sends a Spectrum to each transport. Between runs it reports
// an empty spectrum.
type Analyzer struct {
	cfg        AnalyzerConfig
	transports []transport.Transport

	mu     sync.RWMutex // Guards fft and bands against concurrent providers.
	fft    *analysis.FFTProcessor
	bands  *analysis.BandEnergy
	layout layout

	onset   *analysis.OnsetDetector
	samples []float64
	seq     uint64
}

var _ pump.Processor = (*Analyzer)(nil)
var _ analysis.FFTResultProvider = (*Analyzer)(nil)

// NewAnalyzer validates cfg. The transform itself is built per run once the
// sample rate is known.
func NewAnalyzer(cfg AnalyzerConfig, transports ...transport.Transport) (*Analyzer, error) {
	if _, err := analysis.NewFFTProcessor(cfg.FFTSize, 1, cfg.Window); err != nil {
		return nil, err
	}
	if cfg.OnsetRatio == 0 {
		cfg.OnsetRatio = 1.5
	}
	return &Analyzer{
		cfg:        cfg,
		transports: transports,
		onset:      analysis.NewOnsetDetector(cfg.OnsetThreshold, cfg.OnsetRatio, cfg.OnsetCooldown),
		samples:    make([]float64, 0, cfg.FFTSize),
	}, nil
}

// SetFormat builds the transform for f, or tears it down for nil.
func (a *Analyzer) SetFormat(f *pump.Format) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.fft, a.bands = nil, nil
	a.onset.Reset()
	if f == nil {
		return
	}

	if err := f.Validate(); err != nil {
		applog.Errorf("Analyzer: %v", err)
		return
	}

	fft, err := analysis.NewFFTProcessor(a.cfg.FFTSize, float64(f.SamplesPerSec), a.cfg.Window)
	if err != nil {
		applog.Errorf("Analyzer: %v", err)
		return
	}
	a.fft = fft
	a.bands = analysis.NewBandEnergy(fft)
	a.layout = newLayout(f)
}

// ProcessAudio analyzes the frame and publishes the result.
func (a *Analyzer) ProcessAudio(buf *pump.FrameBuffer, n int) {
	a.mu.Lock()
	if a.fft == nil {
		a.mu.Unlock()
		return
	}

	all := a.layout.channelFloats(a.samples[:0], buf.Bytes()[:n], 0)
	a.samples = all[:0]

	a.fft.Process(all)
	hit, rms := a.onset.Process(all)

	a.seq++
	spectrum := Spectrum{
		Type:       "spectrum",
		Seq:        a.seq,
		Timestamp:  time.Now().UnixNano(),
		SampleRate: a.fft.GetSampleRate(),
		RMS:        rms,
		Onset:      hit,
		Bands:      a.bands.Compute(),
	}
	_, spectrum.PeakHz = a.fft.Peak()
	if a.cfg.IncludeMagnitudes {
		spectrum.Magnitudes = a.fft.GetMagnitudes()
	}
	a.mu.Unlock()

	for _, t := range a.transports {
		if err := t.Send(spectrum); err != nil {
			applog.Warnf("Analyzer: Error sending spectrum %d: %v", spectrum.Seq, err)
		}
	}
}

// GetMagnitudes returns a copy of the latest spectrum, or zeros between runs.
func (a *Analyzer) GetMagnitudes() []float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.fft == nil {
		return make([]float64, a.cfg.FFTSize/2+1)
	}
	return a.fft.GetMagnitudes()
}

// GetMagnitudesInto copies the latest spectrum into dest.
func (a *Analyzer) GetMagnitudesInto(dest []float64) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.fft == nil {
		if len(dest) != a.cfg.FFTSize/2+1 {
			return fmt.Errorf("destination slice length %d does not match required length %d", len(dest), a.cfg.FFTSize/2+1)
		}
		clear(dest)
		return nil
	}
	return a.fft.GetMagnitudesInto(dest)
}

// GetFrequencyForBin returns 0 between runs.
func (a *Analyzer) GetFrequencyForBin(binIndex int) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.fft == nil {
		return 0
	}
	return a.fft.GetFrequencyForBin(binIndex)
}

func (a *Analyzer) GetFFTSize() int {
	return a.cfg.FFTSize
}

// GetSampleRate returns the current run's sample rate, or 0 between runs.
func (a *Analyzer) GetSampleRate() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.fft == nil {
		return 0
	}
	return a.fft.GetSampleRate()
}
