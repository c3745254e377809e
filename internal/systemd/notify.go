// Package systemd reports monitor liveness to the service manager.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/ngenohkevin/hivetop/internal/monitor"
)

// Notifier is a monitor presenter speaking the sd_notify protocol. The first
// frame signals readiness and every frame after it feeds the watchdog.
// Without NOTIFY_SOCKET it does nothing.
type Notifier struct {
	logger *slog.Logger
	notify func(unsetEnvironment bool, state string) (bool, error)
	mu     sync.Mutex
	ready  bool
}

// NewNotifier creates a notifier
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		logger: logger.With("component", "systemd.Notifier"),
		notify: daemon.SdNotify,
	}
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		n.logger.Info("watchdog enabled", "interval", interval)
	}
	return n
}

// Present sends READY once, then WATCHDOG, both with a STATUS line
func (n *Notifier) Present(_ context.Context, f monitor.Frame) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	status := fmt.Sprintf("STATUS=cycle %d, %d processes listed", f.Seq, f.Stats.Listed)
	state := daemon.SdNotifyWatchdog + "\n" + status
	if !n.ready {
		state = daemon.SdNotifyReady + "\n" + status
	}

	sent, err := n.notify(false, state)
	if err != nil {
		// service manager trouble is not a reason to stop monitoring
		n.logger.Warn("sd_notify failed", "error", err)
		return nil
	}
	if sent && !n.ready {
		n.logger.Info("notified service manager of readiness")
	}
	n.ready = true
	return nil
}

// Stopping tells the service manager that shutdown has begun
func (n *Notifier) Stopping() {
	if _, err := n.notify(false, daemon.SdNotifyStopping); err != nil {
		n.logger.Warn("sd_notify failed", "error", err)
	}
}
