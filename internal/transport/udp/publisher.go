// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"streampump/internal/analysis"
	applog "streampump/internal/log"
	"streampump/internal/metrics"
)

// HeaderSize is the fixed part of a spectrum packet.
//
// Packet layout, big endian:
//
//	offset  size  field
//	0       4     sequence (uint32, starts at 1)
//	4       8     timestamp (int64, ns since epoch)
//	12      4     sample rate (uint32, Hz)
//	16      2     bin count N (uint16)
//	18      4*N   magnitudes (float32)
const HeaderSize = 4 + 8 + 4 + 2

// UDPPublisher samples a spectrum provider on a ticker and writes each
// snapshot as one packet. Nothing is sent while the provider reports a zero
// sample rate, which is how the analyzer signals that no run is active.
type UDPPublisher struct {
	sender   io.Writer
	provider analysis.FFTResultProvider
	interval time.Duration

	mu   sync.Mutex // Guards done.
	done chan struct{}
	wg   sync.WaitGroup

	seq     atomic.Uint32
	skipped atomic.Uint64

	// Owned by the publishing goroutine.
	mags   []float64
	packet []byte
}

// NewUDPPublisher writes a packet to sender every interval. Intervals of zero
// or less fall back to 33ms.
func NewUDPPublisher(interval time.Duration, sender io.Writer, provider analysis.FFTResultProvider) (*UDPPublisher, error) {
	if sender == nil {
		return nil, errors.New("udp publisher: sender cannot be nil")
	}
	if provider == nil {
		return nil, errors.New("udp publisher: spectrum provider cannot be nil")
	}
	if interval <= 0 {
		interval = 33 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval, defaulting to %s", interval)
	}

	bins := provider.GetFFTSize()/2 + 1
	if bins > math.MaxUint16 {
		return nil, errors.New("udp publisher: too many bins for one packet")
	}
	applog.Infof("UDPPublisher: Publishing %d bins every %s", bins, interval)

	return &UDPPublisher{
		sender:   sender,
		provider: provider,
		interval: interval,
		mags:     make([]float64, bins),
		packet:   make([]byte, 0, HeaderSize+4*bins),
	}, nil
}

// Start launches the publishing goroutine. It is a no-op while running.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return
	}
	done := make(chan struct{})
	p.done = done

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-done:
				return
			}
		}
	}()
}

// Stop ends the publishing goroutine and waits for it. The publisher can be
// started again afterwards.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.mu.Unlock()

	if done == nil {
		return nil
	}
	close(done)
	p.wg.Wait()
	applog.Debugf("UDPPublisher: Stopped after %d packets (%d idle ticks)", p.seq.Load(), p.skipped.Load())
	return nil
}

// Close stops the publisher.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

// publish writes one packet from the provider's current spectrum. It reuses
// the publisher's buffers and does not allocate.
func (p *UDPPublisher) publish() {
	rate := p.provider.GetSampleRate()
	if rate <= 0 {
		p.skipped.Add(1)
		metrics.TransportSendsTotal.WithLabelValues("udp", "skipped").Inc()
		return
	}
	if err := p.provider.GetMagnitudesInto(p.mags); err != nil {
		applog.Errorf("UDPPublisher: %v", err)
		return
	}

	seq := p.seq.Add(1)
	p.packet = appendPacket(p.packet[:0], seq, time.Now().UnixNano(), uint32(rate), p.mags)

	// The sender logs and counts its own failures.
	if _, err := p.sender.Write(p.packet); err == nil {
		applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", seq, len(p.packet))
	}
}

func appendPacket(b []byte, seq uint32, ts int64, rate uint32, mags []float64) []byte {
	b = binary.BigEndian.AppendUint32(b, seq)
	b = binary.BigEndian.AppendUint64(b, uint64(ts))
	b = binary.BigEndian.AppendUint32(b, rate)
	b = binary.BigEndian.AppendUint16(b, uint16(len(mags)))
	for _, m := range mags {
		b = binary.BigEndian.AppendUint32(b, math.Float32bits(float32(m)))
	}
	return b
}

// Sequence returns the number of the last packet built.
func (p *UDPPublisher) Sequence() uint32 {
	return p.seq.Load()
}

// Skipped counts ticks that found no active run.
func (p *UDPPublisher) Skipped() uint64 {
	return p.skipped.Load()
}

var _ io.Closer = (*UDPPublisher)(nil)
