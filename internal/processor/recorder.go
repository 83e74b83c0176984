// SPDX-License-Identifier: MIT
package processor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	applog "streampump/internal/log"
	"streampump/internal/pump"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
)

// Recorder writes each run to its own WAV file. A file is created when the
// run's format arrives and finalized when the run ends.
type Recorder struct {
	dir    string
	prefix string
	now    func() time.Time

	mu         sync.Mutex
	outputFile *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *audio.IntBuffer // Reusable buffer for format conversion
	layout     layout
	files      []string
	err        error
}

var _ pump.Processor = (*Recorder)(nil)

// NewRecorder records into dir, naming files prefix_YYYYMMDD_HHMMSS.wav.
func NewRecorder(dir, prefix string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create recording directory")
	}
	if prefix == "" {
		prefix = "recording"
	}
	return &Recorder{dir: dir, prefix: prefix, now: time.Now}, nil
}

// SetFormat starts a file for a non-nil format and finalizes it for nil.
func (r *Recorder) SetFormat(f *pump.Format) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f == nil {
		r.closeLocked()
		return
	}

	if err := r.startLocked(f); err != nil {
		applog.Errorf("Recorder: %v", err)
		r.err = err
	}
}

// ProcessAudio appends the frame to the current file.
func (r *Recorder) ProcessAudio(buf *pump.FrameBuffer, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.wavEncoder == nil {
		return
	}

	src := buf.Bytes()[:n]
	step := r.layout.bytesPerSample
	count := (n - n%r.layout.blockSize()) / step

	data := r.sampleBuf.Data[:0]
	shift := 32 - r.layout.bits
	if r.layout.float {
		shift = 0
	}
	for i := range count {
		v := int(sampleAt(src[i*step:], r.layout.bits, r.layout.float) >> shift)
		if r.layout.bits == 8 {
			v += 128 // The encoder writes 8-bit samples unsigned.
		}
		data = append(data, v)
	}
	r.sampleBuf.Data = data

	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		applog.Errorf("Recorder: Error writing to WAV file: %v", err)
		r.err = err
	}
}

// Files returns the paths of every file started so far.
func (r *Recorder) Files() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.files...)
}

// Err returns the last write error.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close finalizes a file left open by a run that never ended.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
	return r.err
}

func (r *Recorder) startLocked(f *pump.Format) error {
	r.closeLocked()

	if err := f.Validate(); err != nil {
		return errors.Wrap(err, "cannot record")
	}

	l := newLayout(f)
	bits := l.bits
	if l.float {
		bits = 32 // Float frames are stored as 32-bit integer PCM.
	}

	path := r.nextPath()
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create recording")
	}

	r.outputFile = file
	r.layout = l
	r.wavEncoder = wav.NewEncoder(file, int(f.SamplesPerSec), bits, l.channels, 1)
	r.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: l.channels,
			SampleRate:  int(f.SamplesPerSec),
		},
		Data:           make([]int, 0, int(f.SamplesPerSec)/pump.FramesPerSecond*l.channels),
		SourceBitDepth: bits,
	}
	r.files = append(r.files, path)

	applog.Infof("Recorder: Recording %s to %s", f, path)
	return nil
}

func (r *Recorder) closeLocked() {
	if r.wavEncoder != nil {
		if err := r.wavEncoder.Close(); err != nil {
			applog.Errorf("Recorder: Error finalizing WAV file: %v", err)
			r.err = err
		}
		r.wavEncoder = nil
	}

	if r.outputFile != nil {
		if err := r.outputFile.Close(); err != nil {
			r.err = err
		}
		r.outputFile = nil
	}
}

// nextPath picks a timestamped name, adding a counter when a run starts within
// the same second as the previous one.
func (r *Recorder) nextPath() string {
	stamp := r.now().Format("20060102_150405")
	path := filepath.Join(r.dir, fmt.Sprintf("%s_%s.wav", r.prefix, stamp))
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(r.dir, fmt.Sprintf("%s_%s_%d.wav", r.prefix, stamp, i))
	}
}
