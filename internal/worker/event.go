package worker

import (
	"encoding/json"
	"fmt"

	"github.com/discourse/mobystash/pkg/value"
)

// assembleEvent builds the final event tree for one log line, per spec
// §4.D step 8: message, @timestamp and moby.stream at the base, syslog
// fields and sampling metadata merged in if present, then the container's
// tags (moby.* plus any org.discourse.mobystash.tag.* labels) merged last.
// Merge order matters only where both sides touch the same path; spec §3
// invariant 3 is enforced earlier, in internal/container, by refusing to let
// a tag label displace moby.id/moby.name in the first place.
func assembleEvent(message, timestamp, stream string, syslogFields, sampleMeta, tags *value.Map) *value.Map {
	event := value.NewMap()
	event.Set("message", message)
	event.Set("@timestamp", timestamp)
	event.Set("moby", value.NewMap().Set("stream", stream))

	if syslogFields != nil {
		event = value.Merge(event, value.NewMap().Set("syslog", syslogFields))
	}
	if sampleMeta != nil {
		event = value.Merge(event, sampleMeta)
	}
	if tags != nil {
		event = value.Merge(event, tags.Clone())
	}

	return event
}

// marshalAndTagDocumentID serializes event to its canonical JSON form,
// derives its document id (spec §4.D step 9), and attaches it under
// @metadata.document_id so a downstream sink can use it for idempotent
// writes (spec §6).
func marshalAndTagDocumentID(event *value.Map) ([]byte, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("worker: marshal event: %w", err)
	}

	id := documentID(raw)
	event.Set("@metadata", value.NewMap().
		Set("document_id", id).
		Set("event_type", "moby"))

	return raw, nil
}
