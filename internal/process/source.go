package process

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Handle exposes the facets of one listed process. Any facet may fail on its own.
type Handle interface {
	PID() int32
	Name(ctx context.Context) (string, error)
	Owner(ctx context.Context) (string, error)
	// CPUTime is the cumulative user+system time of the process itself, children excluded
	CPUTime(ctx context.Context) (time.Duration, error)
	// StartTime is the creation time in milliseconds since the epoch
	StartTime(ctx context.Context) (int64, error)
	RSS(ctx context.Context) (uint64, error)
	Status(ctx context.Context) (Status, error)
}

// Source lists the processes currently visible to the caller
type Source interface {
	Processes(ctx context.Context) ([]Handle, error)
}

// OSSource reads the live process table through gopsutil
type OSSource struct{}

// NewOSSource creates a source backed by the operating system
func NewOSSource() *OSSource {
	return &OSSource{}
}

// Processes returns a handle for every pid in the process table
func (s *OSSource) Processes(ctx context.Context) ([]Handle, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get processes: %w", err)
	}

	handles := make([]Handle, 0, len(procs))
	for _, p := range procs {
		handles = append(handles, &osHandle{p: p})
	}
	return handles, nil
}

type osHandle struct {
	p *process.Process
}

func (h *osHandle) PID() int32 {
	return h.p.Pid
}

func (h *osHandle) Name(ctx context.Context) (string, error) {
	name, err := h.p.NameWithContext(ctx)
	return name, classify(err)
}

func (h *osHandle) Owner(ctx context.Context) (string, error) {
	user, err := h.p.UsernameWithContext(ctx)
	return user, classify(err)
}

func (h *osHandle) CPUTime(ctx context.Context) (time.Duration, error) {
	times, err := h.p.TimesWithContext(ctx)
	if err != nil {
		return 0, classify(err)
	}
	secs := times.User + times.System
	return time.Duration(secs * float64(time.Second)), nil
}

func (h *osHandle) StartTime(ctx context.Context) (int64, error) {
	created, err := h.p.CreateTimeWithContext(ctx)
	return created, classify(err)
}

func (h *osHandle) RSS(ctx context.Context) (uint64, error) {
	info, err := h.p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, classify(err)
	}
	if info == nil {
		return 0, errors.New("memory info unavailable")
	}
	return info.RSS, nil
}

func (h *osHandle) Status(ctx context.Context) (Status, error) {
	states, err := h.p.StatusWithContext(ctx)
	if err != nil {
		return StatusUnknown, classify(err)
	}
	if len(states) == 0 {
		return StatusUnknown, nil
	}
	return ParseStatus(states[0]), nil
}

// classify folds the "process is gone" family of errors into ErrVanished
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, process.ErrorProcessNotRunning) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("%w: %v", ErrVanished, err)
	}
	return err
}
