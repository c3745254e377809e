package docker

import (
	"context"
	"log/slog"
	"time"

	"github.com/ngenohkevin/hivetop/internal/cache"
	"github.com/ngenohkevin/hivetop/internal/process"
)

// lookupTimeout bounds one rebuild of the pid map so a stuck daemon cannot hold a cycle
const lookupTimeout = 2 * time.Second

// Lister is the Docker surface the annotator needs
type Lister interface {
	Running(ctx context.Context) ([]Container, error)
	PIDs(ctx context.Context, id string) ([]int32, error)
}

// Annotator fills the Container column of ranked rows. The pid to container
// map is rebuilt at most once per ttl.
type Annotator struct {
	lister Lister
	cache  *cache.Cache[map[int32]string]
	logger  *slog.Logger
	timeout time.Duration
	failed  bool
}

// NewAnnotator creates an annotator backed by lister
func NewAnnotator(lister Lister, ttl time.Duration, logger *slog.Logger) *Annotator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Annotator{
		lister: lister,
		cache:  cache.New[map[int32]string](ttl, 0),
		logger:  logger.With("component", "docker.Annotator"),
		timeout: lookupTimeout,
	}
}

// Annotate sets Container on rows whose pid belongs to a running container.
// Docker errors leave the rows untouched.
func (a *Annotator) Annotate(ctx context.Context, rows []process.Snapshot) {
	owners, err := a.cache.GetOrSet(cache.KeyContainers, func() (map[int32]string, error) {
		lookupCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		return a.owners(lookupCtx)
	})
	if err != nil {
		if !a.failed {
			a.logger.Warn("container attribution unavailable", "error", err)
			a.failed = true
		}
		return
	}
	if a.failed {
		a.logger.Info("container attribution restored")
		a.failed = false
	}

	for i := range rows {
		if name, ok := owners[rows[i].PID]; ok {
			rows[i].Container = name
		}
	}
}

func (a *Annotator) owners(ctx context.Context) (map[int32]string, error) {
	containers, err := a.lister.Running(ctx)
	if err != nil {
		return nil, err
	}

	owners := make(map[int32]string)
	for _, c := range containers {
		pids, err := a.lister.PIDs(ctx, c.ID)
		if err != nil {
			// the container may have stopped since it was listed
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Debug("skipping container", "container", c.Name, "error", err)
			continue
		}
		for _, pid := range pids {
			owners[pid] = c.Name
		}
	}
	return owners, nil
}
