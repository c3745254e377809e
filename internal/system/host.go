package system

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/ngenohkevin/hivetop/internal/cache"
)

// Summary is the host context shown above the process table
type Summary struct {
	Hostname    string  `json:"hostname"`
	Platform    string  `json:"platform"`
	Uptime      uint64  `json:"uptime"`
	UptimeHuman string  `json:"uptime_human"`
	Cores       int     `json:"cores"`
	MemTotal    uint64  `json:"mem_total"`
	MemUsed     uint64  `json:"mem_used"`
	MemPercent  float64 `json:"mem_percent"`
	Load1       float64 `json:"load_1"`
}

// Reader collects host summaries, reusing one for the cache TTL
type Reader struct {
	cache *cache.Cache[*Summary]
}

// NewReader creates a reader that refreshes at most once per ttl
func NewReader(ttl time.Duration) *Reader {
	return &Reader{cache: cache.New[*Summary](ttl, 0)}
}

// Summary returns the cached summary or collects a new one
func (r *Reader) Summary(ctx context.Context) (*Summary, error) {
	return r.cache.GetOrSet(cache.KeyHost, func() (*Summary, error) {
		return Collect(ctx)
	})
}

// Collect reads host identity, core count, memory and load
func Collect(ctx context.Context) (*Summary, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get host info: %w", err)
	}

	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to count cpus: %w", err)
	}

	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get virtual memory: %w", err)
	}

	// Load average might not be available on all systems
	var load1 float64
	if avg, err := load.AvgWithContext(ctx); err == nil {
		load1 = avg.Load1
	}

	return &Summary{
		Hostname:    info.Hostname,
		Platform:    info.Platform,
		Uptime:      info.Uptime,
		UptimeHuman: formatUptime(info.Uptime),
		Cores:       cores,
		MemTotal:    vmem.Total,
		MemUsed:     vmem.Used,
		MemPercent:  vmem.UsedPercent,
		Load1:       load1,
	}, nil
}

// formatUptime converts uptime seconds to human readable format
func formatUptime(seconds uint64) string {
	duration := time.Duration(seconds) * time.Second

	days := int(duration.Hours() / 24)
	hours := int(duration.Hours()) % 24
	minutes := int(duration.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
