// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
)

// FrequencyBand defines the name and frequency range for an energy band.
type FrequencyBand struct {
	Name    string
	LowHz   float64
	HighHz  float64
	Energy  float64 // Holds the calculated energy for the current frame
	numBins int     // Internal counter for normalization
}

// DefaultBands returns the standard six bands, the last one open up to
// nyquist.
func DefaultBands(nyquist float64) []*FrequencyBand {
	return []*FrequencyBand{
		{Name: "sub", LowHz: 20, HighHz: 60},
		{Name: "bass", LowHz: 60, HighHz: 250},
		{Name: "lowMid", LowHz: 250, HighHz: 500},
		{Name: "mid", LowHz: 500, HighHz: 2000},
		{Name: "highMid", LowHz: 2000, HighHz: 4000},
		{Name: "treble", LowHz: 4000, HighHz: nyquist + 1},
	}
}

// BandEnergy folds an FFT spectrum into named frequency bands.
type BandEnergy struct {
	bands       []*FrequencyBand
	fftProvider FFTResultProvider
	magnitudes  []float64 // Scratch copy of the provider's spectrum.
	bandOf      []int     // Band index per FFT bin, -1 when outside every band.
}

// NewBandEnergy maps every bin of provider onto DefaultBands once.
func NewBandEnergy(provider FFTResultProvider) *BandEnergy {
	nyquist := provider.GetSampleRate() / 2
	bins := provider.GetFFTSize()/2 + 1

	b := &BandEnergy{
		bands:       DefaultBands(nyquist),
		fftProvider: provider,
		magnitudes:  make([]float64, bins),
		bandOf:      make([]int, bins),
	}

	for i := range b.bandOf {
		b.bandOf[i] = -1
		freq := provider.GetFrequencyForBin(i)
		for j, band := range b.bands {
			if freq >= band.LowHz && freq < band.HighHz {
				b.bandOf[i] = j
				break
			}
		}
	}

	return b
}

// Bands returns the bands in ascending frequency order.
func (b *BandEnergy) Bands() []*FrequencyBand {
	return b.bands
}

// Compute reads the latest spectrum and returns each band's RMS magnitude
// scaled and clamped to [0, 1].
func (b *BandEnergy) Compute() map[string]float64 {
	if err := b.fftProvider.GetMagnitudesInto(b.magnitudes); err != nil {
		return nil
	}

	for _, band := range b.bands {
		band.Energy = 0
		band.numBins = 0
	}

	for i, m := range b.magnitudes {
		if j := b.bandOf[i]; j >= 0 {
			b.bands[j].Energy += m * m // Sum energy (magnitude squared)
			b.bands[j].numBins++
		}
	}

	out := make(map[string]float64, len(b.bands))
	for _, band := range b.bands {
		avgBandEnergy := 0.0
		if band.numBins > 0 {
			avgBandEnergy = band.Energy / float64(band.numBins)
		}
		scaledValue := math.Sqrt(avgBandEnergy) * 50.0
		out[band.Name] = math.Min(1.0, scaledValue)
	}
	return out
}
