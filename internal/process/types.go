package process

import (
	"errors"
	"strings"
	"time"
)

// Unavailable is shown for text facets that could not be read
const Unavailable = "N/A"

// DefaultTopN is the number of rows kept per cycle when none is configured
const DefaultTopN = 20

var (
	// ErrVanished reports a process that exited between listing and lookup
	ErrVanished = errors.New("process vanished")

	// ErrNoProcesses reports an OS listing that returned nothing
	ErrNoProcesses = errors.New("no visible processes")
)

// Status is the coarse run state of a process
type Status string

const (
	StatusRunning  Status = "running"
	StatusSleeping Status = "sleeping"
	StatusIdle     Status = "idle"
	StatusStopped  Status = "stopped"
	StatusWaiting  Status = "waiting"
	StatusLocked   Status = "locked"
	StatusZombie   Status = "zombie"
	StatusDead     Status = "dead"
	StatusUnknown  Status = "unknown"
)

// ParseStatus maps an OS state word onto a Status
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "running", "r", "run":
		return StatusRunning
	case "sleep", "sleeping", "s", "blocked", "d", "disk-sleep":
		return StatusSleeping
	case "idle", "i":
		return StatusIdle
	case "stop", "stopped", "t", "tracing-stop":
		return StatusStopped
	case "wait", "waiting", "w":
		return StatusWaiting
	case "lock", "locked", "l":
		return StatusLocked
	case "zombie", "z":
		return StatusZombie
	case "dead", "x":
		return StatusDead
	default:
		return StatusUnknown
	}
}

// Snapshot is one process observed in one sampling cycle
type Snapshot struct {
	PID         int32   `json:"pid"`
	Name        string  `json:"name"`
	Owner       string  `json:"owner"`
	MemoryBytes *uint64 `json:"memory_bytes"` // nil when unavailable
	CPUPercent  float64 `json:"cpu_percent"`
	Status      Status  `json:"status"`
	Container   string  `json:"container,omitempty"`
}

// MemoryKnown reports whether the resident memory facet was read
func (s Snapshot) MemoryKnown() bool {
	return s.MemoryBytes != nil
}

// Outcome classifies how much of a process could be inspected
type Outcome int

const (
	// Complete means every facet was read
	Complete Outcome = iota
	// Degraded means the row is emitted with some facets unavailable
	Degraded
	// Omitted means the process is left out of this cycle
	Omitted
)

func (o Outcome) String() string {
	switch o {
	case Complete:
		return "complete"
	case Degraded:
		return "degraded"
	case Omitted:
		return "omitted"
	default:
		return "invalid"
	}
}

// Inspection is the result of looking at a single process during a cycle
type Inspection struct {
	Snapshot Snapshot
	Outcome  Outcome
	// Errs holds the facet errors keyed by facet name
	Errs map[string]error
}

// Stats counts what happened during one enumeration
type Stats struct {
	Listed    int `json:"listed"`
	Complete  int `json:"complete"`
	Degraded  int `json:"degraded"`
	Omitted   int `json:"omitted"`
	Baselines int `json:"baselines"`
}

// Cycle is everything one enumeration produced
type Cycle struct {
	TakenAt     time.Time    `json:"taken_at"`
	Snapshots   []Snapshot   `json:"snapshots"`
	Inspections []Inspection `json:"-"`
	Stats       Stats        `json:"stats"`
}
