// Package statestore persists the id -> last_log_timestamp cursor map
// across restarts (spec §4.G). The format is a private round-trip boundary
// with the store's own prior writes, not an external contract, so a plain
// JSON object is used.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// State maps container id to its persisted RFC3339Nano cursor.
type State map[string]string

// Load reads path and returns the persisted state, per spec §4.G: a
// missing or corrupt file is never a hard failure, only an empty map
// (matching spec §7's "Corrupt state file at boot: log error, proceed as
// if empty").
func Load(logger *logrus.Logger, path string) State {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) && logger != nil {
			logger.WithError(err).WithField("path", path).Error("failed to read state file, starting fresh")
		}
		return State{}
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		if logger != nil {
			logger.WithError(err).WithField("path", path).Error("state file corrupt, starting fresh")
		}
		return State{}
	}
	if s == nil {
		s = State{}
	}
	return s
}

// Save writes s to path atomically: the new content is written to a
// sibling temp file and renamed into place, so a crash mid-write never
// corrupts the previous, still-valid state file (grounded on
// pkg/positions/container_positions.go's SavePositions).
func Save(path string, s State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("statestore: marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("statestore: create state directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("statestore: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("statestore: rename into place: %w", err)
	}
	return nil
}
