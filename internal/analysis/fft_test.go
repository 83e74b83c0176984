// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"streampump/pkg/utils"
)

const (
	testFFTSize    = 1024
	testSampleRate = 44100
)

func TestNewFFTProcessorValidation(t *testing.T) {
	if _, err := NewFFTProcessor(1000, testSampleRate, Hann); err == nil {
		t.Error("expected an error for a non power of two size")
	}
	if _, err := NewFFTProcessor(testFFTSize, 0, Hann); err == nil {
		t.Error("expected an error for a zero sample rate")
	}
}

func TestFFTHotPath(t *testing.T) {
	processor, err := NewFFTProcessor(testFFTSize, testSampleRate, Hann)
	if err != nil {
		t.Fatal(err)
	}

	input := make([]float64, testFFTSize)
	for i := range input {
		input[i] = float64(i%256-128) / 128 // Arbitrary non-zero data
	}

	// Warm-up call (potential initial allocations).
	processor.Process(input)
	allocs := testing.AllocsPerRun(100, func() {
		processor.Process(input)
	})

	if allocs > 0 {
		t.Errorf("Expected zero allocations in FFT Process hot path, got %.1f", allocs)
	}
}

func TestGetFrequencyForBinZeroAllocs(t *testing.T) {
	processor, err := NewFFTProcessor(testFFTSize, testSampleRate, Hann)
	if err != nil {
		t.Fatal(err)
	}

	allocs := testing.AllocsPerRun(100, func() {
		_ = processor.GetFrequencyForBin(0)               // DC component
		_ = processor.GetFrequencyForBin(10)              // Low frequency
		_ = processor.GetFrequencyForBin(testFFTSize / 4) // Mid frequency
		_ = processor.GetFrequencyForBin(testFFTSize / 2) // Nyquist frequency
	})

	if allocs > 0 {
		t.Errorf("Expected zero allocations in GetFrequencyForBin, got %.1f", allocs)
	}

	if got := processor.GetFrequencyForBin(testFFTSize / 2); got != testSampleRate/2 {
		t.Errorf("Nyquist bin = %.1f Hz, want %d", got, testSampleRate/2)
	}
	if got := processor.GetFrequencyForBin(-1); got != 0 {
		t.Errorf("out of range bin = %.1f, want 0", got)
	}
}

func TestFFTFindsSinePeak(t *testing.T) {
	processor, err := NewFFTProcessor(testFFTSize, testSampleRate, Hann)
	if err != nil {
		t.Fatal(err)
	}

	processor.Process(utils.Sine(testFFTSize, testSampleRate, 1000))

	mags := processor.GetMagnitudes()
	if len(mags) != testFFTSize/2+1 {
		t.Fatalf("len(magnitudes) = %d, want %d", len(mags), testFFTSize/2+1)
	}

	peak := utils.FindPeakBin(mags, 1, len(mags)-1)
	resolution := float64(testSampleRate) / testFFTSize
	if got := processor.GetFrequencyForBin(peak); math.Abs(got-1000) > resolution {
		t.Errorf("peak at %.1f Hz, want 1000 +/- %.1f", got, resolution)
	}

	into := make([]float64, len(mags))
	if err := processor.GetMagnitudesInto(into); err != nil {
		t.Fatal(err)
	}
	if into[peak] != mags[peak] {
		t.Errorf("GetMagnitudesInto differs from GetMagnitudes at the peak")
	}
	if err := processor.GetMagnitudesInto(make([]float64, 3)); err == nil {
		t.Error("expected an error for a short destination")
	}

	processor.Reset()
	if processor.GetMagnitudes()[peak] != 0 {
		t.Error("Reset did not clear the spectrum")
	}
}

func TestFFTUsesLatestSamples(t *testing.T) {
	processor, err := NewFFTProcessor(testFFTSize, testSampleRate, Hann)
	if err != nil {
		t.Fatal(err)
	}

	// A 500 Hz block followed by a 3 kHz block: only the tail is analyzed.
	input := append(
		utils.Sine(testFFTSize, testSampleRate, 500),
		utils.Sine(testFFTSize, testSampleRate, 3000)...,
	)
	processor.Process(input)

	resolution := float64(testSampleRate) / testFFTSize
	if _, hz := processor.Peak(); math.Abs(hz-3000) > resolution {
		t.Errorf("peak at %.1f Hz, want 3000 +/- %.1f", hz, resolution)
	}

	// Short input is zero-padded.
	processor.Process(utils.Sine(testFFTSize/2, testSampleRate, 500))
	if _, hz := processor.Peak(); math.Abs(hz-500) > 2*resolution {
		t.Errorf("padded peak at %.1f Hz, want 500 +/- %.1f", hz, 2*resolution)
	}

	allocs := testing.AllocsPerRun(100, func() {
		processor.Process(input)
		_, _ = processor.Peak()
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations for Process and Peak, got %.1f", allocs)
	}
}

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		name    string
		want    WindowFunc
		wantErr bool
	}{
		{"hann", Hann, false},
		{"Hanning", Hann, false},
		{"BLACKMAN", Blackman, false},
		{"nuttall", Nuttall, false},
		{"triangle", Hann, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWindowFunc(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseWindowFunc(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}

	if Hamming.String() != "Hamming" {
		t.Errorf("Hamming.String() = %q", Hamming.String())
	}
	if got := WindowFunc(42).String(); got != "WindowFunc(42)" {
		t.Errorf("WindowFunc(42).String() = %q", got)
	}

	// Every window must taper towards the edges.
	for w := BartlettHann; w <= Nuttall; w++ {
		coeffs := windowCoefficients(64, w)
		if coeffs[0] >= coeffs[32] {
			t.Errorf("%v: edge %.3f not below center %.3f", w, coeffs[0], coeffs[32])
		}
	}
}

func TestBandEnergyLocatesTone(t *testing.T) {
	processor, err := NewFFTProcessor(testFFTSize, testSampleRate, Hann)
	if err != nil {
		t.Fatal(err)
	}
	bands := NewBandEnergy(processor)

	processor.Process(utils.Sine(testFFTSize, testSampleRate, 1000))
	energy := bands.Compute()

	if len(energy) != len(bands.Bands()) {
		t.Fatalf("got %d bands, want %d", len(energy), len(bands.Bands()))
	}
	for name, v := range energy {
		if v < 0 || v > 1 {
			t.Errorf("band %s = %f, want within [0, 1]", name, v)
		}
		if name != "mid" && v >= energy["mid"] {
			t.Errorf("band %s (%f) should be below mid (%f) for a 1kHz tone", name, v, energy["mid"])
		}
	}
}

func TestOnsetDetector(t *testing.T) {
	d := NewOnsetDetector(0.1, 1.5, 2)

	quiet := make([]float64, 256)
	for i := range quiet {
		quiet[i] = 0.01
	}
	loud := make([]float64, 256)
	for i := range loud {
		loud[i] = 0.5
	}

	if hit, _ := d.Process(quiet); hit {
		t.Error("quiet block fired")
	}
	if hit, rms := d.Process(loud); !hit || math.Abs(rms-0.5) > 1e-9 {
		t.Errorf("loud block: hit=%v rms=%f, want hit at 0.5", hit, rms)
	}
	// Cooldown swallows the next two blocks.
	d.Process(quiet)
	if hit, _ := d.Process(loud); hit {
		t.Error("loud block during cooldown fired")
	}
	d.Process(quiet)
	if hit, _ := d.Process(loud); !hit {
		t.Error("loud block after cooldown did not fire")
	}

	d.Reset()
	if hit, _ := d.Process(loud); !hit {
		t.Error("loud block after Reset did not fire")
	}
	if RMS(nil) != 0 {
		t.Error("RMS(nil) != 0")
	}
}

func BenchmarkProcess(b *testing.B) {
	processor, err := NewFFTProcessor(testFFTSize, testSampleRate, Hann)
	if err != nil {
		b.Fatal(err)
	}
	input := utils.ChordWave(testFFTSize, testSampleRate)

	b.ReportAllocs()

	for b.Loop() {
		processor.Process(input)
	}
}
