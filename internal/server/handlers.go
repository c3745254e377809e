package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ngenohkevin/hivetop/internal/monitor"
	"github.com/ngenohkevin/hivetop/internal/process"
)

const version = "1.0.0"

// Handlers holds all HTTP handlers
type Handlers struct {
	hub     *hub
	metrics http.Handler
	started time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(h *hub, metrics http.Handler) *Handlers {
	return &Handlers{
		hub:     h,
		metrics: metrics,
		started: time.Now(),
	}
}

// ProcessesResponse is the body of GET /api/processes
type ProcessesResponse struct {
	Seq     uint64             `json:"seq"`
	TakenAt time.Time          `json:"taken_at"`
	Rows    []process.Snapshot `json:"rows"`
	Total   int                `json:"total"`
	Stats   process.Stats      `json:"stats"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	body := gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   version,
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"cycles":    uint64(0),
	}
	if f, ok := h.hub.latest(); ok {
		body["cycles"] = f.Seq
		body["last_cycle"] = f.TakenAt.UTC()
	}
	c.JSON(http.StatusOK, body)
}

// ListProcesses handles GET /api/processes. limit narrows the latest ranked
// table and never widens it past the configured top N.
func (h *Handlers) ListProcesses(c *gin.Context) {
	f, ok := h.hub.latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no sample taken yet"})
		return
	}

	rows := f.Rows
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err == nil && limit > 0 && limit < len(rows) {
			rows = rows[:limit]
		}
	}
	if rows == nil {
		rows = []process.Snapshot{}
	}

	c.JSON(http.StatusOK, ProcessesResponse{
		Seq:     f.Seq,
		TakenAt: f.TakenAt,
		Rows:    rows,
		Total:   len(rows),
		Stats:   f.Stats,
	})
}

// StreamEvents handles GET /api/events (SSE frames)
func (h *Handlers) StreamEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	frames, unsubscribe := h.hub.subscribe()
	defer unsubscribe()

	var sent uint64
	send := func(f monitor.Frame) {
		if f.Seq <= sent {
			return
		}
		data, _ := json.Marshal(f)
		c.SSEvent("frame", string(data))
		sent = f.Seq
	}

	if f, ok := h.hub.latest(); ok {
		send(f)
		c.Writer.Flush()
	}

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case f, ok := <-frames:
			if !ok {
				return false
			}
			send(f)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// Metrics handles GET /metrics
func (h *Handlers) Metrics(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "metrics not enabled"})
		return
	}
	gin.WrapH(h.metrics)(c)
}
