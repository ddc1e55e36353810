// Package engine defines the narrow interface the core issues against the
// local container engine (spec §1, §6): List, Inspect, a streaming Logs
// call, and an Events long-poll. Only a concrete Docker-backed
// implementation is provided (docker.go's DockerEngine), but the core
// (internal/worker, internal/discovery, internal/router) depends only on
// the Engine interface, matching spec §1's framing of the engine client as
// an external collaborator.
package engine

import (
	"context"
	"io"
	"time"
)

// ContainerSummary is the minimal per-container record returned by List.
type ContainerSummary struct {
	ID string
}

// Inspect is the subset of the engine's inspect response the core consumes
// (spec §6: "Id, Name, Names, Image, Config: {Hostname, Image, Tty,
// Labels}, State: {Status}").
type Inspect struct {
	ID       string
	Name     string
	Image    string
	ImageID  string
	Hostname string
	Tty      bool
	Labels   map[string]string
	Running  bool
}

// LogsQuery carries the parameters of spec §4.D step 3's streaming GET.
type LogsQuery struct {
	Since      string // "<secs>.<nnnnnnnnn>", see cursor.Format in internal/cursor
	Timestamps bool
	Follow     bool
	Stdout     bool
	Stderr     bool
}

// Event is one line of the engine's `/events` stream (spec §6).
type Event struct {
	Type   string
	Action string
	ID     string
	Time   time.Time
}

// Engine is the container-engine client surface the core depends on.
type Engine interface {
	// List returns all currently running containers.
	List(ctx context.Context) ([]ContainerSummary, error)

	// Inspect returns the current descriptor-relevant state of id.
	Inspect(ctx context.Context, id string) (Inspect, error)

	// Logs opens a streaming log read for id. The caller must Close the
	// returned reader. Blocks until data is available or the stream ends.
	Logs(ctx context.Context, id string, query LogsQuery) (io.ReadCloser, error)

	// Events long-polls the engine's event feed starting at since (a
	// "<secs>.<nnnnnnnnn>" string, spec Design Note on float precision).
	// The returned channels are closed when ctx is done.
	Events(ctx context.Context, since string) (<-chan Event, <-chan error)
}
