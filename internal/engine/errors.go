package engine

import "errors"

// Sentinel error kinds the core branches on (spec §7). A concrete Engine
// must wrap the underlying transport error with one of these via
// fmt.Errorf("...: %w", ErrNotFound) style wrapping so callers can use
// errors.Is.
var (
	// ErrNotFound means the engine no longer knows about a container
	// (spec §7 "container gone mid-stream": 404 on logs or inspect).
	ErrNotFound = errors.New("engine: container not found")

	// ErrServerError means the engine responded with a 5xx status.
	ErrServerError = errors.New("engine: server error")
)
