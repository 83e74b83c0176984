// SPDX-License-Identifier: MIT
package source

import (
	"io"
	"os"

	"streampump/internal/pump"

	"github.com/go-audio/wav"
	"github.com/pkg/errors"
)

// WAVSource streams the raw PCM chunk of a RIFF/WAVE file.
type WAVSource struct {
	formatSource
	file *os.File
	pcm  io.Reader
}

var _ ReadCloser = (*WAVSource)(nil)

// OpenWAV validates path and positions the reader at the start of its PCM
// data.
func OpenWAV(path string) (*WAVSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open wav")
	}

	s, err := newWAVSource(file)
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "wav %s", path)
	}
	s.file = file
	return s, nil
}

func newWAVSource(rs io.ReadSeeker) (*WAVSource, error) {
	d := wav.NewDecoder(rs)
	if !d.IsValidFile() {
		return nil, errors.New("not a valid WAV file")
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, errors.Wrap(err, "locate PCM chunk")
	}
	if d.PCMChunk == nil {
		return nil, errors.New("missing PCM chunk")
	}

	blockAlign := int(d.NumChans) * int(d.BitDepth) / 8
	f := pump.Format{
		FormatTag:      d.WavAudioFormat,
		Channels:       d.NumChans,
		SamplesPerSec:  d.SampleRate,
		AvgBytesPerSec: d.AvgBytesPerSec,
		BlockAlign:     uint16(blockAlign),
		BitsPerSample:  d.BitDepth,
	}
	if f.AvgBytesPerSec == 0 {
		f.AvgBytesPerSec = f.SamplesPerSec * uint32(blockAlign)
	}

	return &WAVSource{
		formatSource: formatSource{format: f},
		pcm:          io.LimitReader(d.PCMChunk, int64(d.PCMChunk.Size)),
	}, nil
}

// Read implements pump.Source.
func (s *WAVSource) Read(p []byte) (int, error) {
	return readFull(s.pcm, p)
}

// Close releases the file.
func (s *WAVSource) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
