package systemd

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngenohkevin/hivetop/internal/monitor"
	"github.com/ngenohkevin/hivetop/internal/process"
)

func listen(t *testing.T) *net.UnixConn {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	t.Setenv("NOTIFY_SOCKET", path)
	return conn
}

func read(t *testing.T, conn *net.UnixConn) string {
	t.Helper()
	buf := make([]byte, 1024)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestNotifier_ReadyThenWatchdog(t *testing.T) {
	conn := listen(t)
	n := NewNotifier(nil)

	f := monitor.Frame{Seq: 1, Stats: process.Stats{Listed: 42}}
	require.NoError(t, n.Present(context.Background(), f))
	assert.Equal(t, "READY=1\nSTATUS=cycle 1, 42 processes listed", read(t, conn))

	f.Seq = 2
	require.NoError(t, n.Present(context.Background(), f))
	assert.Equal(t, "WATCHDOG=1\nSTATUS=cycle 2, 42 processes listed", read(t, conn))

	n.Stopping()
	assert.Equal(t, "STOPPING=1", read(t, conn))
}

func TestNotifier_NoSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	n := NewNotifier(nil)
	assert.NoError(t, n.Present(context.Background(), monitor.Frame{Seq: 1}))
	assert.NotPanics(t, n.Stopping)
}

func TestNotifier_ErrorDoesNotStopLoop(t *testing.T) {
	n := NewNotifier(nil)
	var states []string
	fail := true
	n.notify = func(_ bool, state string) (bool, error) {
		states = append(states, state)
		if fail {
			return false, errors.New("socket gone")
		}
		return true, nil
	}

	assert.NoError(t, n.Present(context.Background(), monitor.Frame{Seq: 1}))
	assert.False(t, n.ready)

	// readiness is retried on the next frame
	fail = false
	assert.NoError(t, n.Present(context.Background(), monitor.Frame{Seq: 2}))
	assert.True(t, n.ready)
	require.Len(t, states, 2)
	assert.True(t, strings.HasPrefix(states[1], "READY=1\n"))
}
