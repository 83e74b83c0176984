// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math/cmplx"
	"strings"
	"sync"

	applog "streampump/internal/log"
	"streampump/pkg/bitint"
	"streampump/pkg/utils"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the taper applied before the transform.
type WindowFunc int

const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

// windows is indexed by WindowFunc.
var windows = [...]struct {
	name    string
	aliases []string
	apply   func([]float64) []float64
}{
	BartlettHann:    {"BartlettHann", nil, window.BartlettHann},
	Blackman:        {"Blackman", nil, window.Blackman},
	BlackmanNuttall: {"BlackmanNuttall", nil, window.BlackmanNuttall},
	Hann:            {"Hann", []string{"hanning"}, window.Hann},
	Hamming:         {"Hamming", nil, window.Hamming},
	Lanczos:         {"Lanczos", nil, window.Lanczos},
	Nuttall:         {"Nuttall", nil, window.Nuttall},
}

func (w WindowFunc) valid() bool {
	return w >= 0 && int(w) < len(windows)
}

func (w WindowFunc) String() string {
	if !w.valid() {
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
	return windows[w].name
}

// ParseWindowFunc looks a window up by name, ignoring case. Unknown names
// return Hann with an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	for i, w := range windows {
		if strings.EqualFold(name, w.name) {
			return WindowFunc(i), nil
		}
		for _, alias := range w.aliases {
			if strings.EqualFold(name, alias) {
				return WindowFunc(i), nil
			}
		}
	}
	return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
}

// windowCoefficients returns size coefficients of w, falling back to Hann.
func windowCoefficients(size int, w WindowFunc) []float64 {
	if !w.valid() {
		applog.Warnf("Analysis: Unknown window function type %d, defaulting to Hann", w)
		w = Hann
	}
	coeffs := make([]float64, size)
	for i := range coeffs {
		coeffs[i] = 1.0 // The window funcs scale in place.
	}
	return windows[w].apply(coeffs)
}

// FFTProcessor computes the magnitude spectrum of the most recent block of
// samples and publishes it through FFTResultProvider. Process and the getters
// may run on different goroutines.
type FFTProcessor struct {
	fft        *fourier.FFT
	size       int
	sampleRate float64
	window     []float64

	mu        sync.RWMutex // Guards input, coeffs and magnitude.
	input     []float64
	coeffs    []complex128
	magnitude []float64 // size/2+1 bins.
}

var _ FFTResultProvider = (*FFTProcessor)(nil)

// NewFFTProcessor prepares an fftSize-point transform. fftSize must be a
// power of two.
func NewFFTProcessor(fftSize int, sampleRate float64, windowType WindowFunc) (*FFTProcessor, error) {
	if !bitint.IsPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", fftSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	bins := fftSize/2 + 1
	applog.Debugf("Analysis: Initializing FFTProcessor (Size: %d, SampleRate: %.1f Hz, Window: %v)", fftSize, sampleRate, windowType)

	return &FFTProcessor{
		fft:        fourier.NewFFT(fftSize),
		size:       fftSize,
		sampleRate: sampleRate,
		window:     windowCoefficients(fftSize, windowType),
		input:      make([]float64, fftSize),
		coeffs:     make([]complex128, bins),
		magnitude:  make([]float64, bins),
	}, nil
}

// Process transforms the last fftSize samples, normalized to [-1.0, 1.0).
// Shorter input is zero-padded at the end. It does not allocate.
func (p *FFTProcessor) Process(samples []float64) {
	if len(samples) > p.size {
		samples = samples[len(samples)-p.size:]
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	n := copy(p.input, samples)
	clear(p.input[n:])
	for i, c := range p.window {
		p.input[i] *= c
	}

	p.fft.Coefficients(p.coeffs, p.input)
	for i, c := range p.coeffs {
		p.magnitude[i] = cmplx.Abs(c)
	}
}

// Peak returns the strongest bin above DC and its frequency.
func (p *FFTProcessor) Peak() (bin int, hz float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	bin = utils.FindPeakBin(p.magnitude, 1, len(p.magnitude)-1)
	return bin, p.GetFrequencyForBin(bin)
}

// GetMagnitudes returns a copy of the latest spectrum. Use GetMagnitudesInto
// to avoid the allocation.
func (p *FFTProcessor) GetMagnitudes() []float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]float64(nil), p.magnitude...)
}

// GetMagnitudesInto copies the latest spectrum into dest, which must hold
// exactly fftSize/2+1 values.
func (p *FFTProcessor) GetMagnitudesInto(dest []float64) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(dest) != len(p.magnitude) {
		return fmt.Errorf("destination slice length %d does not match required length %d", len(dest), len(p.magnitude))
	}
	copy(dest, p.magnitude)
	return nil
}

// GetFrequencyForBin returns the center frequency of binIndex, or 0 outside
// [0, fftSize/2].
func (p *FFTProcessor) GetFrequencyForBin(binIndex int) float64 {
	if binIndex < 0 || binIndex > p.size/2 {
		return 0.0
	}
	return float64(binIndex) * p.sampleRate / float64(p.size)
}

func (p *FFTProcessor) GetFFTSize() int {
	return p.size
}

func (p *FFTProcessor) GetSampleRate() float64 {
	return p.sampleRate
}

// Reset zeroes the stored spectrum.
func (p *FFTProcessor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.magnitude)
}
