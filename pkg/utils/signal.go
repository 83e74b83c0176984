// SPDX-License-Identifier: MIT
//
// Package utils generates deterministic test signals and small helpers shared
// by the tone source, the analyzer and their tests.
package utils

import (
	"encoding/binary"
	"math"
	"sync"
)

// Partial is one sine component of a synthesized signal.
type Partial struct {
	Hz  float64
	Amp float64 // Linear, 1.0 is full scale.
}

// Chord is a 440Hz fundamental with two harmonics, peaking below full scale.
var Chord = []Partial{{440, 0.45}, {880, 0.27}, {1320, 0.18}}

// Synth sums partials into dst, starting at sample index offset so that
// consecutive calls stay phase continuous.
func Synth(dst []float64, offset int, sampleRate float64, partials ...Partial) {
	for i := range dst {
		t := float64(offset+i) / sampleRate
		var v float64
		for _, p := range partials {
			v += p.Amp * math.Sin(2*math.Pi*p.Hz*t)
		}
		dst[i] = v
	}
}

// Sine returns n samples of a sine at 0.9 of full scale.
func Sine(n int, sampleRate, hz float64) []float64 {
	buf := make([]float64, n)
	Synth(buf, 0, sampleRate, Partial{hz, 0.9})
	return buf
}

// ChordWave returns n samples of Chord.
func ChordWave(n int, sampleRate float64) []float64 {
	buf := make([]float64, n)
	Synth(buf, 0, sampleRate, Chord...)
	return buf
}

// FillSinePCM16 writes len(dst)/2 little-endian 16-bit mono samples of a sine
// starting at sample index offset. It returns the number of samples written.
func FillSinePCM16(dst []byte, offset int, sampleRate, hz, amplitude float64) int {
	samples := len(dst) / 2
	scale := amplitude * math.MaxInt16
	for i := range samples {
		t := float64(offset+i) / sampleRate
		v := int16(math.Sin(2*math.Pi*hz*t) * scale)
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(v))
	}
	return samples
}

// GenerateSinePCM16 returns samples of a sine as little-endian 16-bit bytes.
func GenerateSinePCM16(samples int, sampleRate, hz, amplitude float64) []byte {
	buf := make([]byte, samples*2)
	FillSinePCM16(buf, 0, sampleRate, hz, amplitude)
	return buf
}

// FindPeakBin returns the index of the largest magnitude in [start, end],
// with the range clamped to the slice. Ties keep the lower bin.
func FindPeakBin(magnitudes []float64, start, end int) int {
	start = max(start, 0)
	end = min(end, len(magnitudes)-1)
	if start > end {
		return 0
	}

	peak := start
	for bin := start + 1; bin <= end; bin++ {
		if magnitudes[bin] > magnitudes[peak] {
			peak = bin
		}
	}
	return peak
}

// MockTransport records payloads instead of transmitting them. It is safe to
// send from one goroutine and inspect from another.
type MockTransport struct {
	mu    sync.Mutex
	last  any
	sends int
}

// Send keeps data as the latest payload. Float slices are copied since
// senders reuse them.
func (m *MockTransport) Send(data any) error {
	if mags, ok := data.([]float64); ok {
		data = append([]float64(nil), mags...)
	}
	m.mu.Lock()
	m.last = data
	m.sends++
	m.mu.Unlock()
	return nil
}

func (m *MockTransport) Close() error {
	return nil
}

// Last returns the latest payload, or nil.
func (m *MockTransport) Last() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Count returns how many payloads were sent.
func (m *MockTransport) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sends
}
