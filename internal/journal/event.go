package journal

import (
	"encoding/json"
	"time"
)

// EventType classifies journal entries
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypePeerUp
	EventTypePeerDown
	EventTypeCreate
	EventTypeDelete
	EventTypeOrphanParked
	EventTypeOrphanResolved
	EventTypePluck
)

// EventVersion is bumped when payload shapes change
const EventVersion uint8 = 1

// Event is one journal line
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`
	Source    string          `json:"source"` // peer address or "local"; rate limited per source
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypePeerUp:
		return "peer_up"
	case EventTypePeerDown:
		return "peer_down"
	case EventTypeCreate:
		return "create"
	case EventTypeDelete:
		return "delete"
	case EventTypeOrphanParked:
		return "orphan_parked"
	case EventTypeOrphanResolved:
		return "orphan_resolved"
	case EventTypePluck:
		return "pluck"
	default:
		return "unknown"
	}
}

// MarshalText writes the readable name so journal lines are self-describing
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText is the inverse of MarshalText
func (t *EventType) UnmarshalText(b []byte) error {
	for c := EventTypePeerUp; c <= EventTypePluck; c++ {
		if c.String() == string(b) {
			*t = c
			return nil
		}
	}
	*t = EventTypeUnknown
	return nil
}

// PeerPayload names a peer that joined or left
type PeerPayload struct {
	Addr string `json:"addr"`
}

// ObjectPayload describes a created or parked object
type ObjectPayload struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Parent string `json:"parent,omitempty"`
}

// DeletePayload lists everything a delete removed, requested id first
type DeletePayload struct {
	Removed []string `json:"removed"`
}

// PluckPayload records one string excitation
type PluckPayload struct {
	String    string  `json:"string"`
	Frequency float64 `json:"frequency"`
	Path      string  `json:"path,omitempty"`
	Tick      uint64  `json:"tick"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload interface{}) json.RawMessage {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, source string, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		Source:    source,
		Payload:   EncodePayload(payload),
	}
}
