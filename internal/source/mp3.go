// SPDX-License-Identifier: MIT
package source

import (
	"io"
	"os"

	"streampump/internal/pump"

	"github.com/hajimehoshi/go-mp3"
	"github.com/pkg/errors"
)

// The MP3 decoder always produces 16-bit little-endian stereo.
const (
	mp3Channels = 2
	mp3Bits     = 16
)

// MP3Source decodes an MPEG-1/2 Layer III stream.
type MP3Source struct {
	formatSource
	file *os.File
	dec  *mp3.Decoder
}

var _ ReadCloser = (*MP3Source)(nil)

// OpenMP3 opens path and decodes its first frame header.
func OpenMP3(path string) (*MP3Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open mp3")
	}

	s, err := newMP3Source(file)
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "mp3 %s", path)
	}
	s.file = file
	return s, nil
}

func newMP3Source(r io.Reader) (*MP3Source, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode header")
	}
	return &MP3Source{
		formatSource: formatSource{
			format: pump.NewPCMFormat(dec.SampleRate(), mp3Channels, mp3Bits),
		},
		dec: dec,
	}, nil
}

// Read implements pump.Source.
func (s *MP3Source) Read(p []byte) (int, error) {
	return readFull(s.dec, p)
}

// Close releases the file.
func (s *MP3Source) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
