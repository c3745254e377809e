package term

import (
	"context"
	"fmt"

	"github.com/ngenohkevin/hivetop/internal/system"
)

// HostSummarizer provides the host context for the header line
type HostSummarizer interface {
	Summary(ctx context.Context) (*system.Summary, error)
}

// HostHeader renders a one-line host summary. It prints nothing when the
// summary cannot be read so the table is never held back by it.
func HostHeader(h HostSummarizer) func(ctx context.Context) string {
	return func(ctx context.Context) string {
		s, err := h.Summary(ctx)
		if err != nil || s == nil {
			return ""
		}
		return FormatSummary(s)
	}
}

// FormatSummary prints host, uptime, cores, memory and load on one line
func FormatSummary(s *system.Summary) string {
	return fmt.Sprintf("hivetop  %s (%s) | up %s | %d cpus | mem %s / %s (%.1f%%) | load %.2f",
		s.Hostname, s.Platform, s.UptimeHuman, s.Cores,
		FormatBytes(s.MemUsed), FormatBytes(s.MemTotal), s.MemPercent, s.Load1)
}
