// SPDX-License-Identifier: MIT
package source

import (
	"io"
	"os"

	"streampump/internal/pump"

	"github.com/pkg/errors"
	"github.com/tphakala/flac"
)

// FLACSource decodes a FLAC stream into interleaved little-endian PCM.
type FLACSource struct {
	formatSource
	file    *os.File
	dec     *flac.Decoder
	pending []byte // Decoded bytes not yet handed out.
	eof     bool
}

var _ ReadCloser = (*FLACSource)(nil)

// OpenFLAC opens path and reads the stream header.
func OpenFLAC(path string) (*FLACSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open flac")
	}

	s, err := newFLACSource(file)
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "flac %s", path)
	}
	s.file = file
	return s, nil
}

func newFLACSource(r io.Reader) (*FLACSource, error) {
	dec, err := flac.NewDecoder(r)
	if err != nil {
		return nil, errors.Wrap(err, "read stream info")
	}

	switch dec.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		return nil, errors.Wrapf(pump.ErrUnsupportedFormat, "%d bits per sample", dec.BitsPerSample)
	}

	return &FLACSource{
		formatSource: formatSource{
			format: pump.NewPCMFormat(dec.SampleRate, dec.NChannels, dec.BitsPerSample),
		},
		dec: dec,
	}, nil
}

// Read fills p from consecutive FLAC frames.
func (s *FLACSource) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(s.pending) == 0 {
			if s.eof {
				return n, io.EOF
			}
			frame, err := s.dec.Next()
			if errors.Is(err, io.EOF) {
				s.eof = true
				continue
			}
			if err != nil {
				return n, errors.Wrap(err, "decode flac frame")
			}
			s.pending = frame
		}

		c := copy(p[n:], s.pending)
		s.pending = s.pending[c:]
		n += c
	}
	return n, nil
}

// Close releases the file.
func (s *FLACSource) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
