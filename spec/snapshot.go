package spec

import (
	"encoding/json"
	"time"
)

// Operation is the kind of change that produced a snapshot.
type Operation string

const (
	OpAppend    Operation = "append"
	OpReplace   Operation = "replace"
	OpOverwrite Operation = "overwrite"
	OpDelete    Operation = "delete"
)

// Summary is a snapshot's summary block. The Iceberg spec defines it
// as a string map with a required "operation" key; every other entry
// is carried through untouched.
type Summary struct {
	Operation Operation
	Other     map[string]string
}

// AsMap flattens the summary back into the wire-format string map.
func (s *Summary) AsMap() map[string]string {
	m := make(map[string]string, len(s.Other)+1)
	for k, v := range s.Other {
		m[k] = v
	}
	if s.Operation != "" {
		m["operation"] = string(s.Operation)
	}
	return m
}

// MarshalJSON implements json.Marshaler.
func (s *Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.AsMap())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	s.Operation = Operation(m["operation"])
	delete(m, "operation")
	s.Other = m
	return nil
}

// Snapshot is an immutable point-in-time view of the table. Snapshot
// ids are opaque 64-bit integers; they are held as int64 internally and
// rendered as strings at any JSON boundary a browser might parse as a
// float.
type Snapshot struct {
	SnapshotID       int64    `json:"snapshot-id"`
	ParentSnapshotID *int64   `json:"parent-snapshot-id,omitempty"`
	SequenceNumber   int64    `json:"sequence-number"`
	TimestampMs      int64    `json:"timestamp-ms"`
	ManifestList     string   `json:"manifest-list"`
	Summary          *Summary `json:"summary,omitempty"`
	SchemaID         *int     `json:"schema-id,omitempty"`
}

// Timestamp returns the snapshot timestamp as a time.Time.
func (s *Snapshot) Timestamp() time.Time {
	return time.UnixMilli(s.TimestampMs)
}

// HasParent reports whether this snapshot has a parent link.
func (s *Snapshot) HasParent() bool {
	return s.ParentSnapshotID != nil
}

// SnapshotRef is a named reference (branch or tag) to a snapshot.
type SnapshotRef struct {
	SnapshotID         int64  `json:"snapshot-id"`
	Type               string `json:"type"` // "branch" or "tag"
	MinSnapshotsToKeep *int   `json:"min-snapshots-to-keep,omitempty"`
	MaxSnapshotAgeMs   *int64 `json:"max-snapshot-age-ms,omitempty"`
	MaxRefAgeMs        *int64 `json:"max-ref-age-ms,omitempty"`
}

// SnapshotLog is one entry of the table's snapshot history log.
type SnapshotLog struct {
	SnapshotID  int64 `json:"snapshot-id"`
	TimestampMs int64 `json:"timestamp-ms"`
}

// Timestamp returns the log entry timestamp as a time.Time.
func (l *SnapshotLog) Timestamp() time.Time {
	return time.UnixMilli(l.TimestampMs)
}
