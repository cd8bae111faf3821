package spec

import (
	"encoding/json"
	"fmt"
)

// FormatVersion is the Iceberg table format version.
type FormatVersion int

const (
	FormatVersionV1 FormatVersion = 1
	FormatVersionV2 FormatVersion = 2
)

// SortDirection is the sort direction of a sort field.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// NullOrder is the null ordering of a sort field.
type NullOrder string

const (
	NullsFirst NullOrder = "nulls-first"
	NullsLast  NullOrder = "nulls-last"
)

// SortField is one field of a sort order.
type SortField struct {
	Transform string        `json:"transform"`
	SourceID  int           `json:"source-id"`
	Direction SortDirection `json:"direction"`
	NullOrder NullOrder     `json:"null-order"`
}

// SortOrder is a table sort order.
type SortOrder struct {
	OrderID int         `json:"order-id"`
	Fields  []SortField `json:"fields"`
}

// MetadataLogEntry points at a prior metadata file version.
type MetadataLogEntry struct {
	TimestampMs  int64  `json:"timestamp-ms"`
	MetadataFile string `json:"metadata-file"`
}

// TableMetadata is one parsed metadata.json, normalized to the V2
// shape regardless of which format version it was written in.
// Immutable once returned by ParseTableMetadata.
type TableMetadata struct {
	FormatVersion      FormatVersion          `json:"format-version"`
	TableUUID          string                 `json:"table-uuid"`
	Location           string                 `json:"location"`
	LastUpdatedMs      int64                  `json:"last-updated-ms"`
	LastColumnID       int                    `json:"last-column-id"`
	Schemas            []*Schema              `json:"schemas"`
	CurrentSchemaID    int                    `json:"current-schema-id"`
	PartitionSpecs     []PartitionSpec        `json:"partition-specs"`
	DefaultSpecID      int                    `json:"default-spec-id"`
	Properties         map[string]string      `json:"properties,omitempty"`
	CurrentSnapshotID  *int64                 `json:"current-snapshot-id,omitempty"`
	Snapshots          []Snapshot             `json:"snapshots,omitempty"`
	SnapshotLog        []SnapshotLog          `json:"snapshot-log,omitempty"`
	MetadataLog        []MetadataLogEntry     `json:"metadata-log,omitempty"`
	SortOrders         []SortOrder            `json:"sort-orders"`
	DefaultSortOrderID int                    `json:"default-sort-order-id"`
	Refs               map[string]SnapshotRef `json:"refs,omitempty"`

	// PreviousMetadataFile is the V1-era single back link; V2 tables
	// use MetadataLog instead, but both are honored when walking
	// history.
	PreviousMetadataFile string `json:"previous-metadata-file,omitempty"`
}

// v1Metadata is the format-version-1 record shape. It carries a single
// schema and a bare partition-field list where V2 has id-addressed
// lists.
type v1Metadata struct {
	TableMetadata
	Schema        *Schema          `json:"schema"`
	PartitionSpec []PartitionField `json:"partition-spec"`
}

// ParseTableMetadata parses a metadata.json body. The format-version
// discriminator is inspected first and selects the record shape to
// decode; V1 bodies are migrated into the V2 shape afterwards.
func ParseTableMetadata(data []byte) (*TableMetadata, error) {
	var probe struct {
		FormatVersion FormatVersion `json:"format-version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse table metadata: %w", err)
	}

	switch probe.FormatVersion {
	case FormatVersionV1:
		var v1 v1Metadata
		if err := json.Unmarshal(data, &v1); err != nil {
			return nil, fmt.Errorf("failed to parse v1 table metadata: %w", err)
		}
		return migrateV1(&v1), nil

	case FormatVersionV2:
		var meta TableMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("failed to parse v2 table metadata: %w", err)
		}
		return &meta, nil

	default:
		return nil, fmt.Errorf("unsupported format-version %d", probe.FormatVersion)
	}
}

func migrateV1(v1 *v1Metadata) *TableMetadata {
	meta := v1.TableMetadata

	if v1.Schema != nil && len(meta.Schemas) == 0 {
		meta.Schemas = []*Schema{v1.Schema}
		meta.CurrentSchemaID = v1.Schema.SchemaID
	}
	if len(v1.PartitionSpec) > 0 && len(meta.PartitionSpecs) == 0 {
		meta.PartitionSpecs = []PartitionSpec{{SpecID: 0, Fields: v1.PartitionSpec}}
		meta.DefaultSpecID = 0
	}
	if len(meta.SortOrders) == 0 {
		meta.SortOrders = []SortOrder{{OrderID: 0, Fields: []SortField{}}}
		meta.DefaultSortOrderID = 0
	}

	return &meta
}

// CurrentSchema returns the schema referenced by current-schema-id.
func (m *TableMetadata) CurrentSchema() *Schema {
	for _, s := range m.Schemas {
		if s.SchemaID == m.CurrentSchemaID {
			return s
		}
	}
	return nil
}

// DefaultPartitionSpec returns the spec referenced by default-spec-id.
func (m *TableMetadata) DefaultPartitionSpec() *PartitionSpec {
	return m.PartitionSpecByID(m.DefaultSpecID)
}

// PartitionSpecByID returns the partition spec with the given id, or nil.
func (m *TableMetadata) PartitionSpecByID(id int) *PartitionSpec {
	for i := range m.PartitionSpecs {
		if m.PartitionSpecs[i].SpecID == id {
			return &m.PartitionSpecs[i]
		}
	}
	return nil
}

// CurrentSnapshot returns the current snapshot, or nil for an empty table.
func (m *TableMetadata) CurrentSnapshot() *Snapshot {
	if m.CurrentSnapshotID == nil {
		return nil
	}
	return m.SnapshotByID(*m.CurrentSnapshotID)
}

// SnapshotByID returns the snapshot with the given id, or nil.
func (m *TableMetadata) SnapshotByID(id int64) *Snapshot {
	for i := range m.Snapshots {
		if m.Snapshots[i].SnapshotID == id {
			return &m.Snapshots[i]
		}
	}
	return nil
}

// DefaultSortOrder returns the sort order referenced by
// default-sort-order-id, or nil.
func (m *TableMetadata) DefaultSortOrder() *SortOrder {
	for i := range m.SortOrders {
		if m.SortOrders[i].OrderID == m.DefaultSortOrderID {
			return &m.SortOrders[i]
		}
	}
	return nil
}

// Ancestors returns the snapshots reachable from the given snapshot id
// by following parent links, ordered oldest to newest. A broken parent
// link stops the walk; a cycle cannot extend it past the snapshot count.
func (m *TableMetadata) Ancestors(id int64) []Snapshot {
	var chain []Snapshot
	seen := make(map[int64]bool)

	cur := m.SnapshotByID(id)
	for cur != nil && !seen[cur.SnapshotID] {
		seen[cur.SnapshotID] = true
		chain = append(chain, *cur)
		if cur.ParentSnapshotID == nil {
			break
		}
		cur = m.SnapshotByID(*cur.ParentSnapshotID)
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
