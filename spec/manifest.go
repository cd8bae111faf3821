package spec

import (
	"path"
	"strings"
)

// ManifestContent tells data manifests apart from delete manifests.
type ManifestContent int

const (
	ManifestContentData   ManifestContent = 0
	ManifestContentDelete ManifestContent = 1
)

func (c ManifestContent) String() string {
	switch c {
	case ManifestContentData:
		return "data"
	case ManifestContentDelete:
		return "deletes"
	default:
		return "unknown"
	}
}

// FileContent is the content type of a data file.
type FileContent int

const (
	FileContentData            FileContent = 0
	FileContentPositionDeletes FileContent = 1
	FileContentEqualityDeletes FileContent = 2
)

func (c FileContent) String() string {
	switch c {
	case FileContentData:
		return "data"
	case FileContentPositionDeletes:
		return "position-deletes"
	case FileContentEqualityDeletes:
		return "equality-deletes"
	default:
		return "unknown"
	}
}

// FileFormat is the storage format of a data file.
type FileFormat string

const (
	FileFormatParquet FileFormat = "PARQUET"
	FileFormatAvro    FileFormat = "AVRO"
	FileFormatORC     FileFormat = "ORC"
)

// EntryStatus is the lifecycle state of a manifest entry.
type EntryStatus int

const (
	EntryStatusExisting EntryStatus = 0
	EntryStatusAdded    EntryStatus = 1
	EntryStatusDeleted  EntryStatus = 2
)

func (s EntryStatus) String() string {
	switch s {
	case EntryStatusExisting:
		return "existing"
	case EntryStatusAdded:
		return "added"
	case EntryStatusDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ManifestEntry is one record of a manifest file.
type ManifestEntry struct {
	Status             EntryStatus
	SnapshotID         *int64
	SequenceNumber     *int64
	FileSequenceNumber *int64
	DataFile           DataFile
}

// DataFile describes one data file tracked by a manifest. Column stat
// maps are keyed by field id.
type DataFile struct {
	Content         FileContent
	FilePath        string
	FileFormat      FileFormat
	PartitionData   map[string]any
	RecordCount     int64
	FileSizeInBytes int64
	ColumnSizes     map[int]int64
	ValueCounts     map[int]int64
	NullValueCounts map[int]int64
	NaNValueCounts  map[int]int64
	LowerBounds     map[int][]byte
	UpperBounds     map[int][]byte
	KeyMetadata     []byte
	SplitOffsets    []int64
	EqualityIDs     []int
	SortOrderID     *int
}

// FileName returns the last path segment of the file location.
func (f *DataFile) FileName() string {
	return path.Base(f.FilePath)
}

// ShortPath returns a display path of the form table/data/file when
// the location has a "data" directory segment, falling back to the
// last three segments. Keeps sample output readable without repeating
// the full table location.
func (f *DataFile) ShortPath() string {
	return ShortPath(f.FilePath)
}

// ShortPath shortens any data file location for display.
func ShortPath(location string) string {
	trimmed := location
	if _, rest, ok := strings.Cut(location, "://"); ok {
		trimmed = rest
	}
	segments := strings.Split(trimmed, "/")
	for i, seg := range segments {
		if seg == "data" && i > 0 {
			return strings.Join(segments[i-1:], "/")
		}
	}
	if len(segments) >= 3 {
		return strings.Join(segments[len(segments)-3:], "/")
	}
	return trimmed
}

// Tuple builds the typed partition tuple of the file under the given spec.
func (f *DataFile) Tuple(spec PartitionSpec) PartitionTuple {
	return TupleFromData(spec, f.PartitionData)
}

// ManifestFile is one record of a manifest list.
type ManifestFile struct {
	ManifestPath       string
	ManifestLength     int64
	PartitionSpecID    int
	Content            ManifestContent
	SequenceNumber     int64
	MinSequenceNumber  int64
	AddedSnapshotID    int64
	AddedFilesCount    int
	ExistingFilesCount int
	DeletedFilesCount  int
	AddedRowsCount     int64
	ExistingRowsCount  int64
	DeletedRowsCount   int64
	Partitions         []PartitionFieldSummary
	KeyMetadata        []byte
}

// PartitionFieldSummary summarizes one partition field across a manifest.
type PartitionFieldSummary struct {
	ContainsNull bool
	ContainsNaN  *bool
	LowerBound   []byte
	UpperBound   []byte
}

// TotalFilesCount returns the number of files the manifest tracks,
// live or deleted.
func (m *ManifestFile) TotalFilesCount() int {
	return m.AddedFilesCount + m.ExistingFilesCount + m.DeletedFilesCount
}

// LiveFilesCount returns the number of files still live in the manifest.
func (m *ManifestFile) LiveFilesCount() int {
	return m.AddedFilesCount + m.ExistingFilesCount
}

// Manifest is a fully decoded manifest file.
type Manifest struct {
	SchemaID        int
	PartitionSpecID int
	Content         ManifestContent
	SequenceNumber  int64
	Entries         []ManifestEntry
}

// LiveEntries returns the entries whose status is not deleted.
func (m *Manifest) LiveEntries() []ManifestEntry {
	out := make([]ManifestEntry, 0, len(m.Entries))
	for _, e := range m.Entries {
		if e.Status != EntryStatusDeleted {
			out = append(out, e)
		}
	}
	return out
}

// AddedEntries returns the entries added by the manifest's snapshot.
func (m *Manifest) AddedEntries() []ManifestEntry {
	var out []ManifestEntry
	for _, e := range m.Entries {
		if e.Status == EntryStatusAdded {
			out = append(out, e)
		}
	}
	return out
}

// DeletedEntries returns the entries removed by the manifest's snapshot.
func (m *Manifest) DeletedEntries() []ManifestEntry {
	var out []ManifestEntry
	for _, e := range m.Entries {
		if e.Status == EntryStatusDeleted {
			out = append(out, e)
		}
	}
	return out
}
