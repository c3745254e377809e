package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngenohkevin/hivetop/config"
	"github.com/ngenohkevin/hivetop/internal/monitor"
	"github.com/ngenohkevin/hivetop/internal/process"
)

func newTestServer(t *testing.T, metrics http.Handler) *Server {
	t.Helper()
	cfg := config.LoadWithDefaults()
	cfg.HTTP.Enabled = true
	cfg.HTTP.RateLimitRPS = 0
	return New(cfg, metrics, nil)
}

func testFrame(seq uint64, n int) monitor.Frame {
	rows := make([]process.Snapshot, n)
	for i := range rows {
		rows[i] = process.Snapshot{
			PID:        int32(100 + i),
			Name:       fmt.Sprintf("p%d", i),
			Owner:      "root",
			CPUPercent: float64(n - i),
			Status:     process.StatusRunning,
		}
	}
	return monitor.Frame{
		Seq:     seq,
		TakenAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		TopN:    20,
		Rows:    rows,
		Stats:   process.Stats{Listed: n, Complete: n},
	}
}

func get(s *Server, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest("GET", target, nil))
	return w
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, nil)

	w := get(s, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cycles":0`)

	require.NoError(t, s.Present(context.Background(), testFrame(7, 1)))
	w = get(s, "/health")
	assert.Contains(t, w.Body.String(), `"cycles":7`)
	assert.Contains(t, w.Body.String(), `"last_cycle"`)
}

func TestListProcesses_BeforeFirstFrame(t *testing.T) {
	s := newTestServer(t, nil)
	w := get(s, "/api/processes")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListProcesses(t *testing.T) {
	s := newTestServer(t, nil)
	require.NoError(t, s.Present(context.Background(), testFrame(1, 5)))

	tests := []struct {
		target string
		want   int
	}{
		{"/api/processes", 5},
		{"/api/processes?limit=2", 2},
		{"/api/processes?limit=50", 5},
		{"/api/processes?limit=0", 5},
		{"/api/processes?limit=abc", 5},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := get(s, tt.target)
			require.Equal(t, http.StatusOK, w.Code)

			var resp ProcessesResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, uint64(1), resp.Seq)
			assert.Equal(t, tt.want, resp.Total)
			require.Len(t, resp.Rows, tt.want)
			assert.Equal(t, int32(100), resp.Rows[0].PID)
		})
	}
}

func TestListProcesses_UnknownMemoryIsNull(t *testing.T) {
	s := newTestServer(t, nil)
	require.NoError(t, s.Present(context.Background(), testFrame(1, 1)))

	w := get(s, "/api/processes")
	assert.Contains(t, w.Body.String(), `"memory_bytes":null`)
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, get(s, "/metrics").Code)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "hivetop_cycles_total 3\n")
	})
	s = newTestServer(t, metrics)
	w := get(s, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hivetop_cycles_total 3")
}

func readEvent(t *testing.T, r *bufio.Reader) monitor.Frame {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			var f monitor.Frame
			require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(data)), &f))
			return f
		}
	}
}

func TestStreamEvents(t *testing.T) {
	s := newTestServer(t, nil)
	require.NoError(t, s.Present(context.Background(), testFrame(1, 2)))

	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	assert.Equal(t, uint64(1), readEvent(t, r).Seq)

	require.Eventually(t, func() bool { return s.hub.subscribers() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, s.Present(context.Background(), testFrame(2, 3)))

	f := readEvent(t, r)
	assert.Equal(t, uint64(2), f.Seq)
	assert.Len(t, f.Rows, 3)

	// closing the hub ends the stream
	s.hub.close()
	_, err = io.ReadAll(r)
	assert.NoError(t, err)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	cfg := config.LoadWithDefaults()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = freePort(t)
	s := New(cfg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.Addr() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
