// SPDX-License-Identifier: MIT
package analysis

// FFTResultProvider exposes the latest spectrum of an FFT stage. Consumers
// such as BandEnergy and the UDP publisher depend on this rather than on
// FFTProcessor.
type FFTResultProvider interface {
	GetMagnitudes() []float64                // GetMagnitudes returns a thread-safe copy of the latest FFT magnitude spectrum.
	GetMagnitudesInto(dest []float64) error  // GetMagnitudesInto copies the spectrum without allocating.
	GetFrequencyForBin(binIndex int) float64 // GetFrequencyForBin returns the center frequency (Hz) for a given FFT bin index.
	GetFFTSize() int                         // GetFFTSize returns the size (number of points) of the FFT.
	GetSampleRate() float64                  // GetSampleRate returns the sample rate used for the FFT analysis.
}
