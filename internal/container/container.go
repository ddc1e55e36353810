// Package container builds the per-container descriptor (spec §3) from an
// engine inspect result and its labels.
package container

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/discourse/mobystash/internal/engine"
	"github.com/discourse/mobystash/pkg/value"
)

const (
	labelDisable     = "org.discourse.mobystash.disable"
	labelFilterRegex = "org.discourse.mobystash.filter_regex"
	labelParseSyslog = "org.discourse.mobystash.parse_syslog"
	labelTagPrefix   = "org.discourse.mobystash.tag."
)

var truthyRE = regexp.MustCompile(`(?i)^(yes|y|1|on|true|t)$`)

// epoch is the initial cursor value when no persisted state exists for a
// container (spec §4.D "Initial cursor").
const epoch = "1970-01-01T00:00:00.000000000Z"

// Descriptor is the per-container state described in spec §3. The mutex
// guards LastLogTimestamp, which both the owning worker and the router's
// checkpoint pass read.
type Descriptor struct {
	ID    string
	Name  string
	Tty   bool

	CaptureLogs bool
	ParseSyslog bool
	FilterRegex *regexp.Regexp

	Tags *value.Map

	mu                sync.Mutex
	lastLogTimestamp string
}

// New builds a Descriptor from an engine inspect result and an inherited
// cursor (from persisted state, or "" to start at the epoch per spec
// §4.D).
func New(insp engine.Inspect, inheritedCursor string) *Descriptor {
	d := &Descriptor{
		ID:   insp.ID,
		Name: insp.Name,
		Tty:  insp.Tty,
	}

	if inheritedCursor != "" {
		d.lastLogTimestamp = inheritedCursor
	} else {
		d.lastLogTimestamp = epoch
	}

	d.Tags = buildTags(insp)
	d.CaptureLogs = true
	applyLabels(d, insp.Labels)

	return d
}

func buildTags(insp engine.Inspect) *value.Map {
	moby := value.NewMap()
	moby.Set("name", insp.Name)
	moby.Set("id", insp.ID)
	moby.Set("hostname", insp.Hostname)
	moby.Set("image", insp.Image)
	moby.Set("image_id", insp.ImageID)

	tags := value.NewMap()
	tags.Set("moby", moby)
	return tags
}

// applyLabels scans the container's labels per the table in spec §4.D,
// mutating d's CaptureLogs/ParseSyslog/FilterRegex/Tags fields.
func applyLabels(d *Descriptor, labels map[string]string) {
	for key, val := range labels {
		switch {
		case key == labelDisable:
			if truthyRE.MatchString(val) {
				d.CaptureLogs = false
			}
		case key == labelFilterRegex:
			if re, err := regexp.Compile(val); err == nil {
				d.FilterRegex = re
			}
		case key == labelParseSyslog:
			if truthyRE.MatchString(val) {
				d.ParseSyslog = true
			}
		case strings.HasPrefix(key, labelTagPrefix):
			path := strings.Split(strings.TrimPrefix(key, labelTagPrefix), ".")
			d.Tags.SetPath(path, val)
		}
	}

	// Invariant 3 (spec §3): tags extending moby.* may deep-merge into but
	// never overwrite the fixed id/name, even if a label tried to set
	// tag.moby.id or tag.moby.name.
	if moby, ok := d.Tags.Get("moby"); ok {
		mobyMap := moby.(*value.Map)
		mobyMap.Set("id", d.ID)
		mobyMap.Set("name", d.Name)
	}
}

// LastLogTimestamp returns the current cursor under lock.
func (d *Descriptor) LastLogTimestamp() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastLogTimestamp
}

// AdvanceLogTimestamp sets the cursor to ts if ts is not earlier than the
// current cursor (spec §3 invariant 1: "never moves backwards"). Returns
// false if ts failed to parse or was earlier, in which case the caller
// should treat the line as malformed (spec §7).
func (d *Descriptor) AdvanceLogTimestamp(ts string) bool {
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastLogTimestamp != "" {
		current, err := time.Parse(time.RFC3339Nano, d.lastLogTimestamp)
		if err == nil && parsed.Before(current) {
			return false
		}
	}
	d.lastLogTimestamp = ts
	return true
}

// SetLastLogTimestamp force-sets the cursor (used by the event-wait
// subroutine of spec §4.D step 2, which advances the cursor to each
// engine event's own timestamp rather than a log line's).
func (d *Descriptor) SetLastLogTimestamp(ts string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastLogTimestamp = ts
}
