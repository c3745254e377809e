package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	facetCPU    = "cpu"
	facetName   = "name"
	facetOwner  = "owner"
	facetMemory = "memory"
	facetStatus = "status"
)

// baseline is the last CPU reading taken for a pid
type baseline struct {
	cpu     time.Duration
	at      time.Time
	started int64
}

// reading is one process as seen by a single pass, before baselines are touched
type reading struct {
	pid     int32
	cpu     time.Duration
	cpuErr  error
	started int64
	at      time.Time
	insp    Inspection
}

// Sampler enumerates the process table and turns cumulative CPU time into a rate.
// The baseline table is only touched between inspections, never while they run,
// so a Sampler must not be used by two goroutines at once.
type Sampler struct {
	source    Source
	logger    *slog.Logger
	workers   int
	timeout   time.Duration
	now       func() time.Time
	baselines map[int32]baseline
}

// Option configures a Sampler
type Option func(*Sampler)

// WithWorkers sets how many processes are inspected concurrently
func WithWorkers(n int) Option {
	return func(s *Sampler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithInspectTimeout bounds the time spent on a single process
func WithInspectTimeout(d time.Duration) Option {
	return func(s *Sampler) {
		s.timeout = d
	}
}

// WithLogger sets the logger used for per-process diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(s *Sampler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces the wall clock, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSampler creates a sampler with an empty baseline table
func NewSampler(source Source, opts ...Option) *Sampler {
	s := &Sampler{
		source:    source,
		logger:    slog.Default(),
		workers:   1,
		now:       time.Now,
		baselines: make(map[int32]baseline),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "process.Sampler")
	return s
}

// Baselines returns the number of pids currently holding a CPU baseline
func (s *Sampler) Baselines() int {
	return len(s.baselines)
}

// Prime records a fresh CPU baseline for every live pid without producing snapshots.
// Pids that are gone lose their baseline.
func (s *Sampler) Prime(ctx context.Context) error {
	handles, err := s.list(ctx)
	if err != nil {
		return err
	}

	readings := s.collect(ctx, handles, s.readCPU)

	fresh := make(map[int32]baseline, len(readings))
	for _, r := range readings {
		if r.cpuErr != nil {
			continue
		}
		fresh[r.pid] = baseline{cpu: r.cpu, at: r.at, started: r.started}
	}
	s.baselines = fresh
	return nil
}

// Enumerate inspects every live process and computes its CPU percentage against
// the previous observation of the same pid. A pid with no usable baseline reports 0.
func (s *Sampler) Enumerate(ctx context.Context) (*Cycle, error) {
	handles, err := s.list(ctx)
	if err != nil {
		return nil, err
	}

	readings := s.collect(ctx, handles, s.inspect)

	cycle := &Cycle{
		TakenAt:     s.now(),
		Snapshots:   make([]Snapshot, 0, len(readings)),
		Inspections: make([]Inspection, 0, len(readings)),
	}
	cycle.Stats.Listed = len(handles)

	fresh := make(map[int32]baseline, len(readings))
	for _, r := range readings {
		insp := r.insp
		if insp.Outcome != Omitted && r.cpuErr == nil {
			insp.Snapshot.CPUPercent = s.rate(r)
			fresh[r.pid] = baseline{cpu: r.cpu, at: r.at, started: r.started}
		}

		cycle.Inspections = append(cycle.Inspections, insp)
		switch insp.Outcome {
		case Complete:
			cycle.Stats.Complete++
		case Degraded:
			cycle.Stats.Degraded++
			s.logger.Debug("process degraded", "pid", r.pid, "errors", insp.Errs)
		case Omitted:
			cycle.Stats.Omitted++
			s.logger.Debug("process omitted", "pid", r.pid, "errors", insp.Errs)
			continue
		}
		cycle.Snapshots = append(cycle.Snapshots, insp.Snapshot)
	}

	// Replacing the table drops every pid not refreshed in this pass
	s.baselines = fresh
	cycle.Stats.Baselines = len(fresh)

	return cycle, nil
}

func (s *Sampler) list(ctx context.Context) ([]Handle, error) {
	handles, err := s.source.Processes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	if len(handles) == 0 {
		return nil, ErrNoProcesses
	}
	return handles, nil
}

// collect runs fn over every handle, in parallel when workers > 1, and returns
// the readings in listing order. Duplicate pids keep their first reading.
func (s *Sampler) collect(ctx context.Context, handles []Handle, fn func(context.Context, Handle) reading) []reading {
	readings := make([]reading, len(handles))

	run := func(i int) {
		ictx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ictx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		readings[i] = fn(ictx, handles[i])
	}

	if s.workers <= 1 {
		for i := range handles {
			run(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.workers)
		for i := range handles {
			i := i
			g.Go(func() error {
				run(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	seen := make(map[int32]struct{}, len(readings))
	out := readings[:0]
	for _, r := range readings {
		if _, dup := seen[r.pid]; dup {
			continue
		}
		seen[r.pid] = struct{}{}
		out = append(out, r)
	}
	return out
}

func (s *Sampler) readCPU(ctx context.Context, h Handle) reading {
	r := reading{pid: h.PID()}
	r.cpu, r.cpuErr = h.CPUTime(ctx)
	r.at = s.now()
	if r.cpuErr == nil {
		r.started, _ = h.StartTime(ctx)
	}
	return r
}

// inspect reads every facet of one process. A vanished process or an
// expired inspection is omitted; any other facet failure degrades the row.
func (s *Sampler) inspect(ctx context.Context, h Handle) reading {
	r := s.readCPU(ctx, h)
	errs := make(map[string]error)
	if r.cpuErr != nil {
		errs[facetCPU] = r.cpuErr
	}

	snap := Snapshot{
		PID:    r.pid,
		Name:   Unavailable,
		Owner:  Unavailable,
		Status: StatusUnknown,
	}

	if name, err := h.Name(ctx); err != nil {
		errs[facetName] = err
	} else if name != "" {
		snap.Name = name
	}

	if owner, err := h.Owner(ctx); err != nil {
		errs[facetOwner] = err
	} else if owner != "" {
		snap.Owner = owner
	}

	if rss, err := h.RSS(ctx); err != nil {
		errs[facetMemory] = err
	} else {
		snap.MemoryBytes = &rss
	}

	if status, err := h.Status(ctx); err != nil {
		errs[facetStatus] = err
	} else {
		snap.Status = status
	}

	r.insp = Inspection{Snapshot: snap, Outcome: Complete}
	if len(errs) == 0 {
		return r
	}
	r.insp.Errs = errs
	r.insp.Outcome = Degraded

	if ctx.Err() != nil {
		r.insp.Outcome = Omitted
		return r
	}
	for _, err := range errs {
		if errors.Is(err, ErrVanished) {
			r.insp.Outcome = Omitted
			break
		}
	}
	return r
}

// rate turns the distance from the previous baseline into a percentage of one core.
// A missing, recycled or inconsistent baseline yields 0.
func (s *Sampler) rate(r reading) float64 {
	prev, ok := s.baselines[r.pid]
	if !ok {
		return 0
	}
	if prev.started != 0 && r.started != 0 && prev.started != r.started {
		return 0
	}

	elapsed := r.at.Sub(prev.at)
	if elapsed <= 0 {
		return 0
	}
	used := r.cpu - prev.cpu
	if used < 0 {
		return 0
	}
	return 100 * used.Seconds() / elapsed.Seconds()
}
