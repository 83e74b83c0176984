// SPDX-License-Identifier: MIT
/*
Package processor provides pump.Processor implementations that record,
analyze, gate, fan out and decouple the frames a pump delivers.

Every processor accepts interleaved little-endian PCM of 8, 16, 24 or 32 bits,
or 32-bit IEEE float. A frame may end mid-block; trailing partial samples are
ignored.
*/
package processor

import (
	"encoding/binary"
	"math"

	"streampump/internal/pump"
)

// sampleAt decodes the sample starting at b as a value scaled to the int32
// range, so every width compares against the same thresholds.
func sampleAt(b []byte, bits int, float bool) int32 {
	switch {
	case float:
		v := float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		v = max(-1, min(v, 1))
		return int32(v * math.MaxInt32)
	case bits == 8:
		return (int32(b[0]) - 128) << 24 // 8-bit PCM is unsigned
	case bits == 16:
		return int32(int16(binary.LittleEndian.Uint16(b))) << 16
	case bits == 24:
		return (int32(b[0])<<8 | int32(b[1])<<16 | int32(b[2])<<24)
	default:
		return int32(binary.LittleEndian.Uint32(b))
	}
}

// layout is the decoded shape of a negotiated format.
type layout struct {
	bytesPerSample int
	channels       int
	bits           int
	float          bool
}

func newLayout(f *pump.Format) layout {
	return layout{
		bytesPerSample: int(f.BitsPerSample / 8),
		channels:       max(1, int(f.Channels)),
		bits:           int(f.BitsPerSample),
		float:          f.FormatTag == pump.FormatIEEEFloat,
	}
}

func (l layout) blockSize() int {
	return l.bytesPerSample * l.channels
}

// channelFloats appends channel ch of every whole block in src to dst,
// normalized to [-1.0, 1.0).
func (l layout) channelFloats(dst []float64, src []byte, ch int) []float64 {
	const normFactor = 1.0 / float64(0x80000000)
	block := l.blockSize()
	off := ch * l.bytesPerSample
	for i := 0; i+block <= len(src); i += block {
		dst = append(dst, float64(sampleAt(src[i+off:], l.bits, l.float))*normFactor)
	}
	return dst
}

// peak returns the largest absolute sample in src, scaled to the int32 range.
func (l layout) peak(src []byte) int32 {
	var maxAmplitude int32
	step := l.bytesPerSample
	end := len(src) - len(src)%l.blockSize()
	for i := 0; i+step <= end; i += step {
		sample := sampleAt(src[i:], l.bits, l.float)
		// Branchless abs and max. MinInt32 stays negative and is ignored.
		mask := sample >> 31
		amplitude := (sample ^ mask) - mask
		diff := amplitude - maxAmplitude
		maxAmplitude += (diff & (diff >> 31)) ^ diff
	}
	return maxAmplitude
}
