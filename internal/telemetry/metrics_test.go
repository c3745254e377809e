package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngenohkevin/hivetop/internal/monitor"
	"github.com/ngenohkevin/hivetop/internal/process"
)

func frame(seq uint64, rows ...process.Snapshot) monitor.Frame {
	return monitor.Frame{
		Seq:     seq,
		Elapsed: 600 * time.Millisecond,
		Rows:    rows,
		Stats:   process.Stats{Listed: 10, Complete: 8, Degraded: 1, Omitted: 1, Baselines: 9},
	}
}

func TestMetrics_Present(t *testing.T) {
	m := New()

	require.NoError(t, m.Present(context.Background(), frame(1,
		process.Snapshot{PID: 10, Name: "a", CPUPercent: 80},
		process.Snapshot{PID: 20, Name: "b", CPUPercent: 5},
	)))
	require.NoError(t, m.Present(context.Background(), frame(2,
		process.Snapshot{PID: 30, Name: "c", CPUPercent: 12},
	)))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.omitted))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.baselines))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.processes.WithLabelValues("degraded")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.cycleDuration))

	// only the latest frame's rows remain
	assert.Equal(t, 1, testutil.CollectAndCount(m.topCPU))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.topCPU.WithLabelValues("1", "30", "c")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	require.NoError(t, m.Present(context.Background(), frame(1, process.Snapshot{PID: 1, Name: "init"})))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "hivetop_cycles_total 1")
	assert.Contains(t, string(body), `hivetop_top_process_cpu_percent{name="init",pid="1",rank="1"} 0`)
	assert.Contains(t, string(body), "go_goroutines")
}
