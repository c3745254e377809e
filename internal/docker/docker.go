// Package docker attributes host processes to the containers running them.
package docker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Container identifies a running container
type Container struct {
	ID   string
	Name string
}

// Manager handles Docker operations
type Manager struct {
	client *client.Client
}

// NewManager creates a new Docker manager
func NewManager() (*Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Manager{
		client: cli,
	}, nil
}

// IsAvailable checks if Docker is available
func (m *Manager) IsAvailable(ctx context.Context) bool {
	_, err := m.client.Ping(ctx)
	return err == nil
}

// Close closes the Docker client
func (m *Manager) Close() error {
	return m.client.Close()
}

// Running returns the running containers
func (m *Manager) Running(ctx context.Context) ([]Container, error) {
	containers, err := m.client.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]Container, 0, len(containers))
	for _, c := range containers {
		name := c.ID
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		result = append(result, Container{ID: c.ID, Name: name})
	}
	return result, nil
}

// PIDs returns the host pids running inside container id
func (m *Manager) PIDs(ctx context.Context, id string) ([]int32, error) {
	top, err := m.client.ContainerTop(ctx, id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes of %s: %w", id, err)
	}
	return parseTop(top.Titles, top.Processes)
}

// parseTop reads the PID column out of a ps table
func parseTop(titles []string, procs [][]string) ([]int32, error) {
	col := -1
	for i, t := range titles {
		if strings.EqualFold(strings.TrimSpace(t), "PID") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("no PID column in %v", titles)
	}

	pids := make([]int32, 0, len(procs))
	for _, row := range procs {
		if col >= len(row) {
			continue
		}
		pid, err := strconv.ParseInt(strings.TrimSpace(row[col]), 10, 32)
		if err != nil {
			continue
		}
		pids = append(pids, int32(pid))
	}
	return pids, nil
}
