package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngenohkevin/hivetop/internal/process"
	"github.com/ngenohkevin/hivetop/internal/process/processtest"
)

// fixture wires a real sampler to a fake table whose processes burn pid
// milliseconds of CPU per settle delay
type fixture struct {
	clock  *processtest.Clock
	source *processtest.Source
	cpu    map[int32]time.Duration
}

func newFixture(n int) *fixture {
	f := &fixture{
		clock:  processtest.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		source: processtest.NewSource(),
		cpu:    make(map[int32]time.Duration),
	}
	for pid := int32(1); pid <= int32(n); pid++ {
		f.source.Set(processtest.Proc{PID: pid, Name: fmt.Sprintf("proc-%d", pid), Owner: "root"})
		f.cpu[pid] = 0
	}
	return f
}

func (f *fixture) sleep(d time.Duration) {
	f.clock.Advance(d)
	for pid, used := range f.cpu {
		used += time.Duration(pid) * time.Millisecond
		f.cpu[pid] = used
		f.source.SetCPU(pid, used)
	}
}

func (f *fixture) monitor(settings Settings, opts ...Option) *Monitor {
	sampler := process.NewSampler(f.source, process.WithClock(f.clock.Now))
	opts = append(opts, WithSleep(f.sleep))
	return New(sampler, settings, opts...)
}

func TestMonitor_CycleRanksAndBounds(t *testing.T) {
	f := newFixture(25)
	m := f.monitor(Settings{Period: time.Millisecond, SettleDelay: 100 * time.Millisecond, TopN: 20})

	frame, err := m.Cycle(context.Background())
	require.NoError(t, err)

	require.Len(t, frame.Rows, 20)
	assert.Equal(t, int32(25), frame.Rows[0].PID)
	assert.InDelta(t, 25.0, frame.Rows[0].CPUPercent, 1e-6)
	assert.Equal(t, int32(6), frame.Rows[19].PID)
	for i := 1; i < len(frame.Rows); i++ {
		assert.GreaterOrEqual(t, frame.Rows[i-1].CPUPercent, frame.Rows[i].CPUPercent)
	}
	assert.Equal(t, uint64(1), frame.Seq)
	assert.Equal(t, 25, frame.Stats.Listed)
	assert.Equal(t, 20, frame.TopN)
}

func TestMonitor_AllRatesNonNegative(t *testing.T) {
	f := newFixture(10)
	m := f.monitor(Settings{Period: time.Millisecond, SettleDelay: 50 * time.Millisecond, TopN: 5})

	for i := 0; i < 5; i++ {
		frame, err := m.Cycle(context.Background())
		require.NoError(t, err)
		assert.LessOrEqual(t, len(frame.Rows), 5)
		for _, row := range frame.Rows {
			assert.GreaterOrEqual(t, row.CPUPercent, 0.0)
		}
	}
}

func TestMonitor_RunStopsBetweenCycles(t *testing.T) {
	f := newFixture(3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var frames []Frame
	presenter := PresenterFunc(func(pctx context.Context, fr Frame) error {
		frames = append(frames, fr)
		if len(frames) == 3 {
			cancel()
			// the cycle context is detached from cancellation
			assert.NoError(t, pctx.Err())
		}
		return nil
	})

	m := f.monitor(Settings{Period: time.Millisecond, SettleDelay: time.Millisecond, TopN: 20}, WithPresenters(presenter))

	require.NoError(t, m.Run(ctx))
	assert.Len(t, frames, 3)
	// one prime and one enumerate per cycle, nothing after the stop
	assert.Equal(t, 6, f.source.Lists())
	for i, fr := range frames {
		assert.Equal(t, uint64(i+1), fr.Seq)
	}
}

func TestMonitor_RunNotStartedWhenAlreadyCancelled(t *testing.T) {
	f := newFixture(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := f.monitor(Settings{Period: time.Millisecond})
	require.NoError(t, m.Run(ctx))
	assert.Equal(t, 0, f.source.Lists())
}

func TestMonitor_RunEndsOnSourceFailure(t *testing.T) {
	f := newFixture(3)
	f.source.FailList(errors.New("permission denied on /proc"))

	presented := 0
	m := f.monitor(Settings{Period: time.Millisecond},
		WithPresenters(PresenterFunc(func(context.Context, Frame) error {
			presented++
			return nil
		})))

	err := m.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Equal(t, 0, presented)
	assert.Equal(t, 1, f.source.Lists(), "no retry loop on a persistent failure")
}

func TestMonitor_RunEndsOnEmptyTable(t *testing.T) {
	f := newFixture(0)
	m := f.monitor(Settings{Period: time.Millisecond})

	err := m.Run(context.Background())
	assert.ErrorIs(t, err, process.ErrNoProcesses)
	assert.NotErrorIs(t, err, ErrSourceUnavailable)
}

func TestMonitor_PresenterErrorStopsLoop(t *testing.T) {
	f := newFixture(2)
	boom := errors.New("stdout closed")
	m := f.monitor(Settings{Period: time.Millisecond},
		WithPresenters(PresenterFunc(func(context.Context, Frame) error { return boom })))

	err := m.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, f.source.Lists())
}

type tagAnnotator struct{}

func (tagAnnotator) Annotate(_ context.Context, rows []process.Snapshot) {
	for i := range rows {
		if rows[i].PID%2 == 0 {
			rows[i].Container = "even"
		}
	}
}

func TestMonitor_AnnotatorsSeeRankedRows(t *testing.T) {
	f := newFixture(4)
	m := f.monitor(Settings{Period: time.Millisecond, SettleDelay: 10 * time.Millisecond, TopN: 3},
		WithAnnotators(tagAnnotator{}))

	frame, err := m.Cycle(context.Background())
	require.NoError(t, err)
	require.Len(t, frame.Rows, 3)
	for _, row := range frame.Rows {
		if row.PID%2 == 0 {
			assert.Equal(t, "even", row.Container)
		} else {
			assert.Empty(t, row.Container)
		}
	}
}

func TestMonitor_DefaultSettings(t *testing.T) {
	m := New(process.NewSampler(processtest.NewSource()), Settings{})
	assert.Equal(t, process.DefaultTopN, m.settings.TopN)
	assert.Equal(t, 500*time.Millisecond, m.settings.Period)
}
