package models

import "errors"

// TriggerKind discriminates the entry condition of a workflow.
type TriggerKind string

const (
	// TriggerKindSegmentJoined fires when a subscriber joins a segment.
	TriggerKindSegmentJoined TriggerKind = "segment_joined"
	// TriggerKindEvent fires on a named subscriber event.
	TriggerKindEvent TriggerKind = "event"
	// TriggerKindManual fires only through the test/operator entry points.
	TriggerKindManual TriggerKind = "manual"
)

// Trigger describes what admits a subscriber into a workflow.
type Trigger struct {
	Kind      TriggerKind `json:"kind"`
	SegmentID string      `json:"segment_id,omitempty"`
	EventType string      `json:"event_type,omitempty"`
}

// Validate checks that the variant payload matches the kind.
func (t Trigger) Validate() error {
	switch t.Kind {
	case TriggerKindSegmentJoined:
		if t.SegmentID == "" {
			return errors.New("segment_joined trigger requires segment_id")
		}
	case TriggerKindEvent:
		if t.EventType == "" {
			return errors.New("event trigger requires event_type")
		}
	case TriggerKindManual:
	default:
		return errors.New("unknown trigger kind: " + string(t.Kind))
	}

	return nil
}

// Matches reports whether a fired trigger event admits subscribers into a
// workflow carrying this trigger. Manual triggers never match bus events.
func (t Trigger) Matches(kind TriggerKind, segmentID, eventType string) bool {
	switch t.Kind {
	case TriggerKindSegmentJoined:
		return kind == TriggerKindSegmentJoined && t.SegmentID == segmentID
	case TriggerKindEvent:
		return kind == TriggerKindEvent && t.EventType == eventType
	default:
		return false
	}
}
