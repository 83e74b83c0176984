// SPDX-License-Identifier: MIT
package pump

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Encoding tags carried in Format.FormatTag.
const (
	FormatPCM       uint16 = 0x0001
	FormatIEEEFloat uint16 = 0x0003
)

// FormatHeaderSize is the encoded size of a Format without its extension.
const FormatHeaderSize = 18

// FramesPerSecond is the fixed pump cadence: each frame carries 1/10 s of audio.
const FramesPerSecond = 10

// Format describes the audio carried by a stream. It is negotiated once per
// run and must not change while the run lasts.
//
// Encoded layout (little-endian):
//
//	+--------+----------+---------------+----------------+------------+---------------+---------+-----------+
//	| tag u16| chans u16| samples/s u32 | avg bytes/s u32| align u16  | bits/sample u16| ext u16 | ext bytes |
//	+--------+----------+---------------+----------------+------------+---------------+---------+-----------+
type Format struct {
	FormatTag      uint16
	Channels       uint16
	SamplesPerSec  uint32
	AvgBytesPerSec uint32
	BlockAlign     uint16
	BitsPerSample  uint16
	Extra          []byte // Optional trailing extension blob.
}

// NewPCMFormat builds an integer PCM descriptor with derived alignment fields.
func NewPCMFormat(sampleRate, channels, bitsPerSample int) Format {
	blockAlign := channels * bitsPerSample / 8
	return Format{
		FormatTag:      FormatPCM,
		Channels:       uint16(channels),
		SamplesPerSec:  uint32(sampleRate),
		AvgBytesPerSec: uint32(sampleRate * blockAlign),
		BlockAlign:     uint16(blockAlign),
		BitsPerSample:  uint16(bitsPerSample),
	}
}

// Size returns the number of bytes Put needs.
func (f *Format) Size() int {
	return FormatHeaderSize + len(f.Extra)
}

// Put encodes f into dst. When dst is too small nothing is written and the
// required size is returned, so callers can probe with a nil slice first.
func (f *Format) Put(dst []byte) int {
	size := f.Size()
	if len(dst) < size {
		return size
	}

	binary.LittleEndian.PutUint16(dst[0:], f.FormatTag)
	binary.LittleEndian.PutUint16(dst[2:], f.Channels)
	binary.LittleEndian.PutUint32(dst[4:], f.SamplesPerSec)
	binary.LittleEndian.PutUint32(dst[8:], f.AvgBytesPerSec)
	binary.LittleEndian.PutUint16(dst[12:], f.BlockAlign)
	binary.LittleEndian.PutUint16(dst[14:], f.BitsPerSample)
	binary.LittleEndian.PutUint16(dst[16:], uint16(len(f.Extra)))
	copy(dst[FormatHeaderSize:], f.Extra)

	return size
}

// ParseFormat decodes a descriptor produced by Put.
func ParseFormat(src []byte) (*Format, error) {
	if len(src) < FormatHeaderSize {
		return nil, errors.Errorf("format descriptor too short: %d bytes", len(src))
	}

	f := &Format{
		FormatTag:      binary.LittleEndian.Uint16(src[0:]),
		Channels:       binary.LittleEndian.Uint16(src[2:]),
		SamplesPerSec:  binary.LittleEndian.Uint32(src[4:]),
		AvgBytesPerSec: binary.LittleEndian.Uint32(src[8:]),
		BlockAlign:     binary.LittleEndian.Uint16(src[12:]),
		BitsPerSample:  binary.LittleEndian.Uint16(src[14:]),
	}

	extra := int(binary.LittleEndian.Uint16(src[16:]))
	if len(src) < FormatHeaderSize+extra {
		return nil, errors.Errorf("format extension truncated: want %d bytes, have %d",
			extra, len(src)-FormatHeaderSize)
	}
	if extra > 0 {
		f.Extra = append([]byte(nil), src[FormatHeaderSize:FormatHeaderSize+extra]...)
	}

	return f, nil
}

// BytesPerFrame returns the size of one frame. Only whole-byte sample widths
// are supported.
func (f *Format) BytesPerFrame() (int, error) {
	if f.BitsPerSample == 0 || f.BitsPerSample%8 != 0 {
		return 0, errors.Wrapf(ErrUnsupportedFormat, "%d bits per sample", f.BitsPerSample)
	}
	bytesPerSample := int(f.BitsPerSample / 8)
	size := int(f.SamplesPerSec) / FramesPerSecond * bytesPerSample
	if size == 0 {
		return 0, errors.Wrapf(ErrUnsupportedFormat, "%d Hz yields an empty frame", f.SamplesPerSec)
	}
	return size, nil
}

// Validate checks that f describes interleaved PCM or float samples a
// processor can decode. The pump itself only needs BytesPerFrame.
func (f *Format) Validate() error {
	if f.FormatTag != FormatPCM && f.FormatTag != FormatIEEEFloat {
		return errors.Wrapf(ErrUnsupportedFormat, "format tag %#04x", f.FormatTag)
	}
	if f.Channels == 0 {
		return errors.Wrap(ErrUnsupportedFormat, "zero channels")
	}
	if _, err := f.BytesPerFrame(); err != nil {
		return err
	}
	if int(f.BlockAlign) != int(f.Channels)*int(f.BitsPerSample/8) {
		return errors.Wrapf(ErrUnsupportedFormat, "block align %d for %d channels of %d bits",
			f.BlockAlign, f.Channels, f.BitsPerSample)
	}
	return nil
}

// Equal reports whether two descriptors encode identically.
func (f *Format) Equal(o *Format) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.FormatTag == o.FormatTag &&
		f.Channels == o.Channels &&
		f.SamplesPerSec == o.SamplesPerSec &&
		f.AvgBytesPerSec == o.AvgBytesPerSec &&
		f.BlockAlign == o.BlockAlign &&
		f.BitsPerSample == o.BitsPerSample &&
		string(f.Extra) == string(o.Extra)
}

func (f *Format) String() string {
	if f == nil {
		return "<nil>"
	}
	return fmt.Sprintf("tag=%#04x %dHz %dch %dbit", f.FormatTag, f.SamplesPerSec, f.Channels, f.BitsPerSample)
}
