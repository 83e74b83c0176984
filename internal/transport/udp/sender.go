// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	applog "streampump/internal/log"
	"streampump/internal/metrics"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("udp sender is closed")

// UDPSender writes each Write call as one datagram to a fixed peer.
type UDPSender struct {
	conn   net.Conn
	closed atomic.Bool
	once   sync.Once

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewUDPSender dials target, given as "host:port".
func NewUDPSender(target string) (*UDPSender, error) {
	conn, err := net.Dial("udp", target)
	if err != nil {
		return nil, fmt.Errorf("udp sender: dial %s: %w", target, err)
	}
	applog.Infof("UDP Sender: Sending to %s", conn.RemoteAddr())
	return &UDPSender{conn: conn}, nil
}

// Write sends p as a single datagram. Failures are logged and counted.
func (s *UDPSender) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	n, err := s.conn.Write(p)
	if err != nil {
		s.failed.Add(1)
		metrics.TransportSendsTotal.WithLabelValues("udp", "error").Inc()
		applog.Warnf("UDP Sender: %v", err)
		return n, err
	}
	s.sent.Add(1)
	metrics.TransportSendsTotal.WithLabelValues("udp", "ok").Inc()
	return n, nil
}

// Counts reports datagrams sent and failed so far.
func (s *UDPSender) Counts() (sent, failed uint64) {
	return s.sent.Load(), s.failed.Load()
}

// LocalAddr returns the address datagrams are sent from.
func (s *UDPSender) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Close closes the connection. Later calls return nil.
func (s *UDPSender) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		err = s.conn.Close()
	})
	return err
}

var _ io.WriteCloser = (*UDPSender)(nil)
