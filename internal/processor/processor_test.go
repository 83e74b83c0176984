// SPDX-License-Identifier: MIT
package processor

import (
	"encoding/binary"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"streampump/internal/pump"
	"streampump/internal/source"
	"streampump/pkg/utils"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// sink records what it is given, copying frame contents.
type sink struct {
	mu      sync.Mutex
	formats []*pump.Format
	frames  [][]byte
	block   chan struct{} // When set, ProcessAudio waits on it.
}

func (s *sink) SetFormat(f *pump.Format) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.formats = append(s.formats, f)
}

func (s *sink) ProcessAudio(buf *pump.FrameBuffer, n int) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, append([]byte(nil), buf.Bytes()[:n]...))
}

func (s *sink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func pcm16(samples ...int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}

func runPump(t *testing.T, src pump.Source, proc pump.Processor) *pump.Pump {
	t.Helper()
	p := pump.New(pump.WithName(t.Name()))
	require.NoError(t, p.SetSource(src))
	require.NoError(t, p.Start(proc))
	require.NoError(t, p.Wait(t.Context()))
	require.NoError(t, p.Close())
	require.NoError(t, p.Err())
	return p
}

func TestSampleAt(t *testing.T) {
	assert.Equal(t, int32(0), sampleAt([]byte{128}, 8, false))
	assert.Equal(t, int32(-128<<24), sampleAt([]byte{0}, 8, false))
	assert.Equal(t, int32(-2<<16), sampleAt(pcm16(-2), 16, false))
	assert.Equal(t, int32(0x123456<<8), sampleAt([]byte{0x56, 0x34, 0x12}, 24, false))
	assert.Equal(t, int32(-1<<8), sampleAt([]byte{0xff, 0xff, 0xff}, 24, false))
	assert.Equal(t, int32(math.MinInt32), sampleAt([]byte{0, 0, 0, 0x80}, 32, false))

	half := make([]byte, 4)
	binary.LittleEndian.PutUint32(half, math.Float32bits(0.5))
	assert.InDelta(t, math.MaxInt32/2, sampleAt(half, 32, true), 1)

	loud := make([]byte, 4)
	binary.LittleEndian.PutUint32(loud, math.Float32bits(4))
	assert.Equal(t, int32(math.MaxInt32), sampleAt(loud, 32, true), "float input is clipped")
}

func TestLayoutPeakAndChannels(t *testing.T) {
	f := pump.NewPCMFormat(8000, 2, 16)
	l := newLayout(&f)

	frame := pcm16(100, -3000, -200, 50, 7) // trailing half block ignored
	assert.Equal(t, int32(3000<<16), l.peak(frame))

	left := l.channelFloats(nil, frame, 0)
	right := l.channelFloats(nil, frame, 1)
	require.Len(t, left, 2)
	require.Len(t, right, 2)
	assert.InDelta(t, 100.0/32768, left[0], 1e-9)
	assert.InDelta(t, 50.0/32768, right[1], 1e-9)
}

func TestGate(t *testing.T) {
	next := &sink{}
	g := NewGate(next, 0.1)
	f := pump.NewPCMFormat(8000, 1, 16)
	g.SetFormat(&f)

	quiet := pump.NewFrameBuffer(pcm16(10, -20, 30))
	loud := pump.NewFrameBuffer(pcm16(10, -20000, 30))

	g.ProcessAudio(quiet, quiet.Len())
	g.ProcessAudio(loud, loud.Len())

	g.Disable()
	g.ProcessAudio(quiet, quiet.Len())
	g.Enable()

	passed, blocked := g.Counts()
	assert.Equal(t, uint64(2), passed)
	assert.Equal(t, uint64(1), blocked)
	assert.Equal(t, 2, next.frameCount())
	require.Len(t, next.formats, 1)
}

func TestTeeForwardsInOrder(t *testing.T) {
	var order []string
	mk := func(name string) pump.Processor {
		return pump.ProcessorFuncs{
			OnFormat: func(*pump.Format) { order = append(order, name+":format") },
			OnAudio:  func(*pump.FrameBuffer, int) { order = append(order, name+":audio") },
		}
	}
	tee := Tee{mk("a"), mk("b")}

	f := pump.NewPCMFormat(8000, 1, 16)
	tee.SetFormat(&f)
	tee.ProcessAudio(pump.NewFrameBuffer(make([]byte, 4)), 4)

	assert.Equal(t, []string{"a:format", "b:format", "a:audio", "b:audio"}, order)
}

func TestQueueRetainsAndDrops(t *testing.T) {
	next := &sink{block: make(chan struct{})}
	q := NewQueue(t.Name(), next, 1)

	f := pump.NewPCMFormat(8000, 1, 16)
	q.SetFormat(&f)
	require.Eventually(t, func() bool {
		next.mu.Lock()
		defer next.mu.Unlock()
		return len(next.formats) == 1
	}, 2*time.Second, time.Millisecond)

	first := pump.NewFrameBuffer(pcm16(1))
	q.ProcessAudio(first, first.Len())
	assert.Equal(t, int32(2), first.Refs(), "queued frame is retained")

	// The consumer gets stuck on the first frame; at most one more fits.
	require.Eventually(t, func() bool {
		second := pump.NewFrameBuffer(pcm16(2))
		q.ProcessAudio(second, second.Len())
		return q.Dropped() > 0
	}, 2*time.Second, time.Millisecond)

	close(next.block)
	require.NoError(t, q.Close())

	assert.Equal(t, int32(1), first.Refs(), "consumer released the frame")
	assert.GreaterOrEqual(t, next.frameCount(), 1)
	assert.Equal(t, []byte(pcm16(1)), next.frames[0])
}

func TestQueueBehindPumpKeepsOrder(t *testing.T) {
	next := &sink{}
	q := NewQueue(t.Name(), next, 64)

	p := runPump(t, source.NewTone(8000, 440, 0.5, 1), q)
	require.NoError(t, q.Close())

	stats := p.Stats()
	assert.Equal(t, int(stats.Frames), next.frameCount())
	require.Len(t, next.formats, 2)
	assert.NotNil(t, next.formats[0])
	assert.Nil(t, next.formats[1])
	assert.Zero(t, q.Dropped())
}

func TestRecorderWritesRun(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, "take")
	require.NoError(t, err)

	runPump(t, source.NewTone(16000, 440, 0.5, 0.5), rec)
	require.NoError(t, rec.Close())

	files := rec.Files()
	require.Len(t, files, 1)

	fh, err := os.Open(files[0])
	require.NoError(t, err)
	defer fh.Close()

	d := wav.NewDecoder(fh)
	require.True(t, d.IsValidFile())
	buf, err := d.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, 16000, buf.Format.SampleRate)
	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Equal(t, uint16(16), d.BitDepth)
	require.Len(t, buf.Data, 8000)

	want := utils.GenerateSinePCM16(8000, 16000, 440, 0.5)
	for i := 0; i < 8000; i += 997 {
		assert.Equal(t, int(int16(binary.LittleEndian.Uint16(want[i*2:]))), buf.Data[i], "sample %d", i)
	}
}

func TestRecorderNewFilePerRun(t *testing.T) {
	rec, err := NewRecorder(t.TempDir(), "")
	require.NoError(t, err)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return fixed }

	f := pump.NewPCMFormat(8000, 1, 16)
	for range 2 {
		rec.SetFormat(&f)
		rec.ProcessAudio(pump.NewFrameBuffer(pcm16(1, 2, 3)), 6)
		rec.SetFormat(nil)
	}
	require.NoError(t, rec.Err())

	files := rec.Files()
	require.Len(t, files, 2)
	assert.Contains(t, files[0], "recording_20240501_120000.wav")
	assert.Contains(t, files[1], "recording_20240501_120000_1.wav")
}

func TestRecorderRejectsUnsupportedFormat(t *testing.T) {
	rec, err := NewRecorder(t.TempDir(), "x")
	require.NoError(t, err)

	bad := pump.NewPCMFormat(8000, 1, 12)
	rec.SetFormat(&bad)
	rec.ProcessAudio(pump.NewFrameBuffer(make([]byte, 4)), 4)

	assert.ErrorIs(t, rec.Err(), pump.ErrUnsupportedFormat)
	assert.Empty(t, rec.Files())
}

func TestAnalyzerFindsTone(t *testing.T) {
	mock := &utils.MockTransport{}
	a, err := NewAnalyzer(AnalyzerConfig{FFTSize: 1024, OnsetThreshold: 0.05}, mock)
	require.NoError(t, err)

	assert.Zero(t, a.GetSampleRate())
	assert.Len(t, a.GetMagnitudes(), 513)

	runPump(t, source.NewTone(16000, 1000, 0.8, 0.3), a)

	assert.Equal(t, 3, mock.Count())
	spectrum, ok := mock.Last().(Spectrum)
	require.True(t, ok, "got %T", mock.Last())

	assert.Equal(t, "spectrum", spectrum.Type)
	assert.Equal(t, uint64(3), spectrum.Seq)
	assert.Equal(t, 16000.0, spectrum.SampleRate)
	assert.InDelta(t, 1000, spectrum.PeakHz, 16000.0/1024)
	assert.InDelta(t, 0.8/math.Sqrt2, spectrum.RMS, 0.01)
	assert.Nil(t, spectrum.Magnitudes)
	for name, v := range spectrum.Bands {
		if name != "mid" {
			assert.Less(t, v, spectrum.Bands["mid"], name)
		}
	}

	// Between runs the provider reports an empty spectrum.
	assert.Zero(t, a.GetSampleRate())
	assert.Zero(t, a.GetFrequencyForBin(10))
	assert.NoError(t, a.GetMagnitudesInto(make([]float64, 513)))
	assert.Error(t, a.GetMagnitudesInto(make([]float64, 3)))
}

func TestNewAnalyzerRejectsBadSize(t *testing.T) {
	_, err := NewAnalyzer(AnalyzerConfig{FFTSize: 1000})
	assert.Error(t, err)
}

func TestSpectrumString(t *testing.T) {
	s := Spectrum{Seq: 4, PeakHz: 437.5, RMS: 0.25, Onset: true}
	assert.Equal(t, "spectrum #4 peak=437.5Hz rms=0.2500 onset", s.String())

	s.Onset = false
	assert.Equal(t, "spectrum #4 peak=437.5Hz rms=0.2500", s.String())
}
