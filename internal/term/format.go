package term

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ngenohkevin/hivetop/internal/process"
)

const (
	reset      = "\033[0m"
	bold       = "\033[1m"
	red        = "\033[31m"
	green      = "\033[32m"
	yellow     = "\033[33m"
	blue       = "\033[34m"
	dim        = "\033[2m"
	boldRed    = bold + red
	boldYellow = bold + yellow
)

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes scales n by 1024 until it drops below 1024 and prints two decimals
func FormatBytes(n uint64) string {
	v := float64(n)
	for _, unit := range byteUnits {
		if v < 1024 {
			return fmt.Sprintf("%.2f %s", v, unit)
		}
		v /= 1024
	}
	return fmt.Sprintf("%.2f PB", v)
}

// FormatMemory prints a possibly unknown resident size
func FormatMemory(n *uint64) string {
	if n == nil {
		return process.Unavailable
	}
	return FormatBytes(*n)
}

// Level buckets CPU usage for highlighting
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
)

func (l Level) String() string {
	switch l {
	case LevelHigh:
		return "high"
	case LevelMedium:
		return "medium"
	default:
		return "low"
	}
}

// CPULevel is high above 50%, medium above 20%, low otherwise
func CPULevel(pct float64) Level {
	switch {
	case pct > 50:
		return LevelHigh
	case pct > 20:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Category groups statuses for display
type Category int

const (
	CategoryOther Category = iota
	CategoryActive
	CategoryAsleep
	CategoryDefunct
)

// StatusCategory maps a status onto its display category
func StatusCategory(s process.Status) Category {
	switch s {
	case process.StatusRunning:
		return CategoryActive
	case process.StatusSleeping:
		return CategoryAsleep
	case process.StatusZombie, process.StatusDead:
		return CategoryDefunct
	default:
		return CategoryOther
	}
}

func cpuColor(pct float64) string {
	switch CPULevel(pct) {
	case LevelHigh:
		return boldRed
	case LevelMedium:
		return boldYellow
	default:
		return green
	}
}

func statusColor(s process.Status) string {
	switch StatusCategory(s) {
	case CategoryActive:
		return green
	case CategoryAsleep:
		return blue
	case CategoryDefunct:
		return red
	default:
		return ""
	}
}

// truncate shortens s to at most n runes, marking the cut with "~"
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "~"
	}
	return string(r[:n-1]) + "~"
}

// printable replaces control characters so process-supplied text cannot
// drive the terminal
func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '?'
		}
		return r
	}, s)
}
