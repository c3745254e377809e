// Package processtest provides an in-memory process table for tests.
package processtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ngenohkevin/hivetop/internal/process"
)

// Proc is one simulated process. A non-nil error field makes that facet fail.
type Proc struct {
	PID     int32
	Name    string
	Owner   string
	CPU     time.Duration
	Started int64
	RSS     uint64
	Status  process.Status

	NameErr   error
	OwnerErr  error
	CPUErr    error
	StartErr  error
	RSSErr    error
	StatusErr error
}

// Source is a mutable fake process table
type Source struct {
	mu      sync.Mutex
	procs   map[int32]Proc
	listErr error
	lists   int
	dupes   []int32
}

// NewSource creates a fake table holding procs
func NewSource(procs ...Proc) *Source {
	s := &Source{procs: make(map[int32]Proc)}
	for _, p := range procs {
		s.procs[p.PID] = p
	}
	return s
}

// Set adds or replaces a process
func (s *Source) Set(p Proc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs[p.PID] = p
}

// SetCPU updates the cumulative CPU time of a pid
func (s *Source) SetCPU(pid int32, cpu time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.procs[pid]
	p.CPU = cpu
	s.procs[pid] = p
}

// Remove drops a pid from the table
func (s *Source) Remove(pid int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.procs, pid)
}

// FailList makes every listing fail with err until cleared with nil
func (s *Source) FailList(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

// Duplicate makes the listing report pid twice
func (s *Source) Duplicate(pid int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dupes = append(s.dupes, pid)
}

// Lists returns how many times the table was listed
func (s *Source) Lists() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

// Processes lists the table in pid order
func (s *Source) Processes(ctx context.Context) ([]process.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}

	pids := make([]int32, 0, len(s.procs))
	for pid := range s.procs {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	pids = append(pids, s.dupes...)

	handles := make([]process.Handle, 0, len(pids))
	for _, pid := range pids {
		p, ok := s.procs[pid]
		if !ok {
			continue
		}
		handles = append(handles, handle{p: p})
	}
	return handles, nil
}

// handle freezes the process as it was when listed
type handle struct {
	p Proc
}

func (h handle) PID() int32 { return h.p.PID }

func (h handle) Name(context.Context) (string, error) { return h.p.Name, h.p.NameErr }

func (h handle) Owner(context.Context) (string, error) { return h.p.Owner, h.p.OwnerErr }

func (h handle) CPUTime(context.Context) (time.Duration, error) { return h.p.CPU, h.p.CPUErr }

func (h handle) StartTime(context.Context) (int64, error) { return h.p.Started, h.p.StartErr }

func (h handle) RSS(context.Context) (uint64, error) { return h.p.RSS, h.p.RSSErr }

func (h handle) Status(context.Context) (process.Status, error) {
	if h.p.StatusErr != nil {
		return process.StatusUnknown, h.p.StatusErr
	}
	if h.p.Status == "" {
		return process.StatusRunning, nil
	}
	return h.p.Status, nil
}

// Clock is a manually advanced clock
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at t
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
