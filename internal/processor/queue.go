// SPDX-License-Identifier: MIT
package processor

import (
	"sync"
	"sync/atomic"

	applog "streampump/internal/log"
	"streampump/internal/metrics"
	"streampump/internal/pump"

	"github.com/prometheus/client_golang/prometheus"
)

type queueItem struct {
	format    *pump.Format
	hasFormat bool
	buf       *pump.FrameBuffer
	n         int
}

// Queue hands frames to a slower processor on its own goroutine so the pump
// never waits on it. Each queued frame is retained until the consumer is done,
// which makes the pump allocate a fresh buffer for the next read. When the
// queue is full new frames are dropped; format notifications never are.
type Queue struct {
	name  string
	next  pump.Processor
	items chan queueItem

	dropped    atomic.Uint64
	droppedCtr prometheus.Counter
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

var _ pump.Processor = (*Queue)(nil)

// NewQueue starts a consumer for next holding up to depth frames.
func NewQueue(name string, next pump.Processor, depth int) *Queue {
	if depth <= 0 {
		depth = 1
	}
	q := &Queue{
		name:       name,
		next:       next,
		items:      make(chan queueItem, depth),
		droppedCtr: metrics.DroppedFramesTotal.WithLabelValues(name),
	}
	q.wg.Add(1)
	go q.consume()
	return q
}

func (q *Queue) consume() {
	defer q.wg.Done()
	for it := range q.items {
		if it.hasFormat {
			q.next.SetFormat(it.format)
			continue
		}
		q.next.ProcessAudio(it.buf, it.n)
		it.buf.Release()
	}
}

// SetFormat queues the notification behind any pending frames.
func (q *Queue) SetFormat(f *pump.Format) {
	q.items <- queueItem{format: f, hasFormat: true}
}

// ProcessAudio queues the frame, or drops it when the consumer is behind.
func (q *Queue) ProcessAudio(buf *pump.FrameBuffer, n int) {
	buf.Retain()
	select {
	case q.items <- queueItem{buf: buf, n: n}:
	default:
		buf.Release()
		q.dropped.Add(1)
		q.droppedCtr.Inc()
		applog.Debugf("Queue %s: Consumer behind, dropped frame", q.name)
	}
}

// Dropped returns the number of frames discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close delivers everything already queued and stops the consumer. The pump
// feeding the queue must be stopped first.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() { close(q.items) })
	q.wg.Wait()
	return nil
}
