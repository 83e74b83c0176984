// SPDX-License-Identifier: MIT
package utils

import (
	"encoding/binary"
	"math"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hill is a smooth magnitude curve peaking at bin center.
func hill(size, center int) []float64 {
	mags := make([]float64, size)
	for i := range mags {
		d := float64(i - center)
		mags[i] = math.Exp(-0.01 * d * d)
	}
	return mags
}

func zeroCrossings(samples []float64) int {
	n := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] < 0) != (samples[i] < 0) {
			n++
		}
	}
	return n
}

func TestSynthPhaseContinuous(t *testing.T) {
	whole := make([]float64, 300)
	Synth(whole, 0, 16000, Chord...)

	first := make([]float64, 120)
	second := make([]float64, 180)
	Synth(first, 0, 16000, Chord...)
	Synth(second, 120, 16000, Chord...)

	assert.InDeltaSlice(t, whole, append(first, second...), 1e-12)
}

func TestSine(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate float64
		hz         float64
	}{
		{"A4", 44100, 440},
		{"Middle C", 44100, 261.63},
		{"High rate", 192000, 440},
		{"Low rate", 8000, 440},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const n = 4096
			s := Sine(n, tt.sampleRate, tt.hz)
			require.Len(t, s, n)

			var peak float64
			for _, v := range s {
				peak = math.Max(peak, math.Abs(v))
			}
			assert.LessOrEqual(t, peak, 0.9)
			assert.Greater(t, peak, 0.85)

			want := 2 * tt.hz * n / tt.sampleRate
			assert.InDelta(t, want, float64(zeroCrossings(s)), 0.1*want+2)
		})
	}
}

func TestChordWaveStaysInRange(t *testing.T) {
	for _, v := range ChordWave(8192, 48000) {
		if v < -0.9 || v > 0.9 {
			t.Fatalf("sample %f outside [-0.9, 0.9]", v)
		}
	}
}

func TestFillSinePCM16PhaseContinuous(t *testing.T) {
	const (
		sampleRate = 16000.0
		hz         = 1000.0
	)

	whole := GenerateSinePCM16(320, sampleRate, hz, 0.5)

	first := make([]byte, 200)
	second := make([]byte, 440)
	require.Equal(t, 100, FillSinePCM16(first, 0, sampleRate, hz, 0.5))
	FillSinePCM16(second, 100, sampleRate, hz, 0.5)

	assert.Equal(t, whole, append(first, second...))
}

func TestGenerateSinePCM16Amplitude(t *testing.T) {
	buf := GenerateSinePCM16(16000, 16000, 440, 0.5)
	require.Len(t, buf, 32000)

	var peak int16
	for i := 0; i < len(buf); i += 2 {
		peak = max(peak, int16(binary.LittleEndian.Uint16(buf[i:])))
	}

	want := int16(math.MaxInt16 / 2)
	assert.InDelta(t, want, peak, 200)
	assert.LessOrEqual(t, peak, want)
}

func TestFindPeakBin(t *testing.T) {
	const size = 1024
	mags := hill(size, size/4)

	tests := []struct {
		name       string
		mags       []float64
		start, end int
		want       int
	}{
		{"Full range", mags, 0, size - 1, size / 4},
		{"Range after peak", mags, size / 2, size - 1, size / 2},
		{"Range before peak", mags, 0, size / 8, size / 8},
		{"Negative start", mags, -10, size - 1, size / 4},
		{"End past slice", mags, 0, size * 2, size / 4},
		{"Empty", nil, 0, 10, 0},
		{"Inverted range", mags, 10, 5, 0},
		{"Tie keeps lower bin", []float64{1, 3, 3, 2}, 0, 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindPeakBin(tt.mags, tt.start, tt.end))
		})
	}

	allocs := testing.AllocsPerRun(100, func() {
		FindPeakBin(mags, 0, size-1)
	})
	assert.Zero(t, allocs)
}

func TestMockTransport(t *testing.T) {
	mt := &MockTransport{}
	assert.Nil(t, mt.Last())

	mags := []float64{0.1, 0.2}
	require.NoError(t, mt.Send(mags))
	mags[0] = 9

	assert.Equal(t, []float64{0.1, 0.2}, mt.Last(), "float slices are copied")

	payload := struct{ Seq int }{Seq: 7}
	require.NoError(t, mt.Send(payload))
	assert.Equal(t, payload, mt.Last())
	assert.Equal(t, 2, mt.Count())
	assert.NoError(t, mt.Close())
}

func TestMockTransportConcurrentSends(t *testing.T) {
	mt := &MockTransport{}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				mt.Send(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, mt.Count())
}

func BenchmarkFindPeakBin(b *testing.B) {
	for _, size := range []int{64, 1024, 8192} {
		mags := hill(size, size/2)
		b.Run(strconv.Itoa(size), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				FindPeakBin(mags, 0, size-1)
			}
		})
	}
}
