// SPDX-License-Identifier: MIT
package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreLabelledPerPump(t *testing.T) {
	FramesTotal.WithLabelValues("metrics-test-a").Add(3)
	FramesTotal.WithLabelValues("metrics-test-b").Inc()

	assert.Equal(t, float64(3), testutil.ToFloat64(FramesTotal.WithLabelValues("metrics-test-a")))
	assert.Equal(t, float64(1), testutil.ToFloat64(FramesTotal.WithLabelValues("metrics-test-b")))
}

func TestTransportOutcomes(t *testing.T) {
	for _, outcome := range []string{"ok", "ok", "error", "skipped"} {
		TransportSendsTotal.WithLabelValues("metrics-test", outcome).Inc()
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(TransportSendsTotal.WithLabelValues("metrics-test", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(TransportSendsTotal.WithLabelValues("metrics-test", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(TransportSendsTotal.WithLabelValues("metrics-test", "skipped")))
}

func TestPumpStateGauge(t *testing.T) {
	PumpState.WithLabelValues("metrics-test").Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(PumpState.WithLabelValues("metrics-test")))
}

func TestServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0") }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeReportsListenErrors(t *testing.T) {
	err := Serve(t.Context(), "127.0.0.1:-1")
	assert.Error(t, err)
}
