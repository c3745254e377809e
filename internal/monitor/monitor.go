package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ngenohkevin/hivetop/internal/process"
)

// ErrSourceUnavailable wraps a failure to list the process table
var ErrSourceUnavailable = errors.New("process source unavailable")

// Frame is the ranked view handed to presenters after every cycle
type Frame struct {
	Seq     uint64             `json:"seq"`
	TakenAt time.Time          `json:"taken_at"`
	Elapsed time.Duration      `json:"elapsed"`
	TopN    int                `json:"top_n"`
	Rows    []process.Snapshot `json:"rows"`
	Stats   process.Stats      `json:"stats"`
}

// Presenter receives every frame. An error stops the loop.
type Presenter interface {
	Present(ctx context.Context, f Frame) error
}

// PresenterFunc adapts a function to Presenter
type PresenterFunc func(ctx context.Context, f Frame) error

// Present calls fn
func (fn PresenterFunc) Present(ctx context.Context, f Frame) error {
	return fn(ctx, f)
}

// Annotator decorates ranked rows before they are presented. It must not fail
// the cycle; anything it cannot resolve is left as is.
type Annotator interface {
	Annotate(ctx context.Context, rows []process.Snapshot)
}

// Sampler is the part of process.Sampler the loop drives
type Sampler interface {
	Prime(ctx context.Context) error
	Enumerate(ctx context.Context) (*process.Cycle, error)
}

// Settings controls cadence and output size
type Settings struct {
	Period      time.Duration
	SettleDelay time.Duration
	TopN        int
}

// Monitor runs sample, rank and present at a fixed cadence
type Monitor struct {
	sampler    Sampler
	settings   Settings
	presenters []Presenter
	annotators []Annotator
	logger     *slog.Logger
	sleep      func(time.Duration)
	seq        uint64
}

// Option configures a Monitor
type Option func(*Monitor)

// WithPresenters appends presenters, called in order
func WithPresenters(p ...Presenter) Option {
	return func(m *Monitor) {
		m.presenters = append(m.presenters, p...)
	}
}

// WithAnnotators appends annotators, applied after ranking
func WithAnnotators(a ...Annotator) Option {
	return func(m *Monitor) {
		m.annotators = append(m.annotators, a...)
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithSleep replaces the settle delay sleeper
func WithSleep(fn func(time.Duration)) Option {
	return func(m *Monitor) {
		if fn != nil {
			m.sleep = fn
		}
	}
}

// New creates a monitor around sampler
func New(sampler Sampler, settings Settings, opts ...Option) *Monitor {
	if settings.TopN <= 0 {
		settings.TopN = process.DefaultTopN
	}
	if settings.Period <= 0 {
		settings.Period = 500 * time.Millisecond
	}

	m := &Monitor{
		sampler:  sampler,
		settings: settings,
		logger:   slog.Default(),
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "monitor.Monitor")
	return m
}

// Run cycles until ctx is cancelled. Cancellation is observed between cycles only:
// a cycle that has started always finishes and is presented. A failure to read the
// process table ends the loop and is returned.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.settings.Period)
	defer ticker.Stop()

	m.logger.Info("monitor started",
		"period", m.settings.Period, "settle", m.settings.SettleDelay, "top_n", m.settings.TopN)

	for {
		if ctx.Err() != nil {
			m.logger.Info("monitor stopped", "cycles", m.seq)
			return nil
		}

		cycleCtx := context.WithoutCancel(ctx)
		frame, err := m.Cycle(cycleCtx)
		if err != nil {
			return err
		}
		if err := m.present(cycleCtx, frame); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// Cycle primes the CPU baselines, waits for the settle delay, then enumerates,
// ranks and annotates. It does not present.
func (m *Monitor) Cycle(ctx context.Context) (Frame, error) {
	start := time.Now()

	if err := m.sampler.Prime(ctx); err != nil {
		return Frame{}, sourceError(err)
	}

	if m.settings.SettleDelay > 0 {
		m.sleep(m.settings.SettleDelay)
	}

	cycle, err := m.sampler.Enumerate(ctx)
	if err != nil {
		return Frame{}, sourceError(err)
	}

	rows := process.Rank(cycle.Snapshots, m.settings.TopN)
	for _, a := range m.annotators {
		a.Annotate(ctx, rows)
	}

	m.seq++
	return Frame{
		Seq:     m.seq,
		TakenAt: cycle.TakenAt,
		Elapsed: time.Since(start),
		TopN:    m.settings.TopN,
		Rows:    rows,
		Stats:   cycle.Stats,
	}, nil
}

func (m *Monitor) present(ctx context.Context, f Frame) error {
	for _, p := range m.presenters {
		if err := p.Present(ctx, f); err != nil {
			return fmt.Errorf("presenting frame %d: %w", f.Seq, err)
		}
	}
	return nil
}

func sourceError(err error) error {
	if errors.Is(err, process.ErrNoProcesses) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
}
