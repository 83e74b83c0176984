// SPDX-License-Identifier: MIT
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	applog "streampump/internal/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counters, labelled by pump name.
var (
	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streampump_frames_total",
		Help: "Frames delivered to the processor",
	}, []string{"pump"})
	BytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streampump_bytes_total",
		Help: "Audio bytes delivered to the processor",
	}, []string{"pump"})
	BufferAllocsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streampump_buffer_allocations_total",
		Help: "Frame buffers allocated because the previous one was still held",
	}, []string{"pump"})
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streampump_runs_total",
		Help: "Pump runs by outcome (stopped, eos, failed)",
	}, []string{"pump", "outcome"})
	DroppedFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streampump_queue_dropped_frames_total",
		Help: "Frames dropped by a full processor queue",
	}, []string{"queue"})
	TransportSendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streampump_transport_sends_total",
		Help: "Analysis results handed to a transport, by outcome (ok, error, skipped)",
	}, []string{"transport", "outcome"})
)

// Gauges
var (
	PumpState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streampump_state",
		Help: "Current pump state (0=NoInput, 1=Idle, 2=Paused, 3=Processing)",
	}, []string{"pump"})
)

// Histograms
var (
	ReadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streampump_source_read_seconds",
		Help:    "Time spent blocked in a single source read",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"pump"})
)

// Serve exposes the default registry on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		applog.Infof("Metrics: Serving Prometheus metrics on %s/metrics", addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errc
		return nil
	}
}
