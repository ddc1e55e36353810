package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	dockerTypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
)

// DockerEngine is the concrete Engine backed by the local Docker daemon's
// HTTP API, reached over DOCKER_HOST (spec §6). Construction mirrors
// internal/monitors/container_monitor.go's NewContainerMonitor: build a
// client via client.FromEnv, then Ping to fail fast if the daemon is
// unreachable.
type DockerEngine struct {
	cli *client.Client
}

// NewDockerEngine connects to the engine named by DOCKER_HOST (or the
// platform default) and verifies it is reachable.
func NewDockerEngine(ctx context.Context) (*DockerEngine, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("engine: create docker client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("engine: ping docker daemon: %w", err)
	}

	return &DockerEngine{cli: cli}, nil
}

// Close releases the underlying HTTP client.
func (e *DockerEngine) Close() error {
	return e.cli.Close()
}

func (e *DockerEngine) List(ctx context.Context) ([]ContainerSummary, error) {
	containers, err := e.cli.ContainerList(ctx, dockerTypes.ContainerListOptions{})
	if err != nil {
		return nil, wrapErr(err, "list containers")
	}
	out := make([]ContainerSummary, 0, len(containers))
	for _, c := range containers {
		out = append(out, ContainerSummary{ID: c.ID})
	}
	return out, nil
}

func (e *DockerEngine) Inspect(ctx context.Context, id string) (Inspect, error) {
	info, err := e.cli.ContainerInspect(ctx, id)
	if err != nil {
		return Inspect{}, wrapErr(err, "inspect container "+id)
	}

	insp := Inspect{
		ID:      info.ID,
		Name:    strings.TrimPrefix(info.Name, "/"),
		Labels:  info.Config.Labels,
	}
	if info.Config != nil {
		insp.Hostname = info.Config.Hostname
		insp.Image = info.Config.Image
		insp.Tty = info.Config.Tty
	}
	if info.Image != "" {
		insp.ImageID = info.Image
	}
	if info.State != nil {
		insp.Running = info.State.Running
	}
	return insp, nil
}

func (e *DockerEngine) Logs(ctx context.Context, id string, query LogsQuery) (io.ReadCloser, error) {
	rc, err := e.cli.ContainerLogs(ctx, id, dockerTypes.ContainerLogsOptions{
		Since:      query.Since,
		Timestamps: query.Timestamps,
		Follow:     query.Follow,
		ShowStdout: query.Stdout,
		ShowStderr: query.Stderr,
	})
	if err != nil {
		return nil, wrapErr(err, "open logs stream for "+id)
	}
	return rc, nil
}

func (e *DockerEngine) Events(ctx context.Context, since string) (<-chan Event, <-chan error) {
	out := make(chan Event)
	errs := make(chan error, 1)

	f := filters.NewArgs()
	f.Add("type", "container")

	msgs, dockerErrs := e.cli.Events(ctx, dockerTypes.EventsOptions{
		Since:   since,
		Filters: f,
	})

	go func() {
		defer close(out)
		defer close(errs)
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				out <- fromDockerEvent(msg)
			case err, ok := <-dockerErrs:
				if !ok {
					return
				}
				if err != nil {
					errs <- err
				}
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errs
}

func fromDockerEvent(msg events.Message) Event {
	return Event{
		Type:   string(msg.Type),
		Action: string(msg.Action),
		ID:     msg.Actor.ID,
		Time:   time.Unix(0, msg.TimeNano).UTC(),
	}
}

// wrapErr attaches one of the package's sentinel error kinds (spec §7) to a
// raw Docker SDK error so callers can branch with errors.Is instead of
// string matching.
func wrapErr(err error, op string) error {
	switch {
	case errdefs.IsNotFound(err):
		return fmt.Errorf("engine: %s: %w", op, ErrNotFound)
	case errdefs.IsSystem(err) || errdefs.IsUnavailable(err):
		return fmt.Errorf("engine: %s: %w", op, ErrServerError)
	default:
		return fmt.Errorf("engine: %s: %w", op, err)
	}
}
