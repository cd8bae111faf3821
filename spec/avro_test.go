package spec

import (
	"bytes"
	"testing"
)

func buildManifestListFixture(t *testing.T, manifests []ManifestFile) []byte {
	t.Helper()
	w, err := NewManifestListWriter()
	if err != nil {
		t.Fatalf("NewManifestListWriter failed: %v", err)
	}
	for _, mf := range manifests {
		if err := w.Append(mf); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	return w.Bytes()
}

func buildManifestFixture(t *testing.T, spec *PartitionSpec, entries []ManifestEntry) []byte {
	t.Helper()
	w, err := NewManifestWriter(0, 0, ManifestContentData, spec)
	if err != nil {
		t.Fatalf("NewManifestWriter failed: %v", err)
	}
	for _, e := range entries {
		if err := w.Append(e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	return w.Bytes()
}

func TestManifestListRoundTrip(t *testing.T) {
	containsNaN := false
	input := []ManifestFile{
		{
			ManifestPath:      "gs://warehouse/db/events/metadata/m0.avro",
			ManifestLength:    6412,
			PartitionSpecID:   0,
			Content:           ManifestContentData,
			SequenceNumber:    1,
			MinSequenceNumber: 1,
			AddedSnapshotID:   4910419977972007838,
			AddedFilesCount:   2,
			AddedRowsCount:    150,
			Partitions: []PartitionFieldSummary{
				{
					ContainsNull: false,
					ContainsNaN:  &containsNaN,
					LowerBound:   []byte{0x01, 0x00, 0x00, 0x00},
					UpperBound:   []byte{0x05, 0x00, 0x00, 0x00},
				},
			},
		},
		{
			ManifestPath:       "gs://warehouse/db/events/metadata/m1.avro",
			ManifestLength:     7001,
			Content:            ManifestContentDelete,
			SequenceNumber:     2,
			AddedSnapshotID:    7213470580996738654,
			DeletedFilesCount:  1,
			DeletedRowsCount:   25,
			ExistingFilesCount: 1,
			ExistingRowsCount:  100,
		},
	}

	data := buildManifestListFixture(t, input)
	got, err := ReadManifestList(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadManifestList failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 manifests, got %d", len(got))
	}
	if got[0].ManifestPath != input[0].ManifestPath {
		t.Errorf("manifest path = %q", got[0].ManifestPath)
	}
	if got[0].AddedSnapshotID != 4910419977972007838 {
		t.Errorf("snapshot id precision lost: %d", got[0].AddedSnapshotID)
	}
	if len(got[0].Partitions) != 1 {
		t.Fatalf("expected 1 partition summary, got %d", len(got[0].Partitions))
	}
	if got[0].Partitions[0].ContainsNaN == nil || *got[0].Partitions[0].ContainsNaN {
		t.Error("contains_nan not round-tripped")
	}
	if !bytes.Equal(got[0].Partitions[0].LowerBound, input[0].Partitions[0].LowerBound) {
		t.Error("lower bound not round-tripped")
	}
	if got[1].Content != ManifestContentDelete {
		t.Errorf("expected delete content, got %v", got[1].Content)
	}
	if got[1].TotalFilesCount() != 2 {
		t.Errorf("total files = %d, want 2", got[1].TotalFilesCount())
	}
}

func TestManifestRoundTrip(t *testing.T) {
	spec := &PartitionSpec{
		SpecID: 0,
		Fields: []PartitionField{
			{SourceID: 2, FieldID: 1000, Name: "event_day", Transform: TransformDay},
		},
	}
	snapID := int64(4910419977972007838)
	seq := int64(1)
	sortID := 0

	entries := []ManifestEntry{
		{
			Status:         EntryStatusAdded,
			SnapshotID:     &snapID,
			SequenceNumber: &seq,
			DataFile: DataFile{
				Content:         FileContentData,
				FilePath:        "gs://warehouse/db/events/data/event_day=2024-01-01/a.parquet",
				FileFormat:      FileFormatParquet,
				PartitionData:   map[string]any{"event_day": int32(19723)},
				RecordCount:     100,
				FileSizeInBytes: 2048,
				ColumnSizes:     map[int]int64{1: 512, 2: 1024},
				ValueCounts:     map[int]int64{1: 100, 2: 100},
				NullValueCounts: map[int]int64{2: 3},
				LowerBounds:     map[int][]byte{1: {0x01, 0, 0, 0, 0, 0, 0, 0}},
				UpperBounds:     map[int][]byte{1: {0x64, 0, 0, 0, 0, 0, 0, 0}},
				SplitOffsets:    []int64{4},
				SortOrderID:     &sortID,
			},
		},
		{
			Status: EntryStatusDeleted,
			DataFile: DataFile{
				FilePath:        "gs://warehouse/db/events/data/event_day=2024-01-01/b.parquet",
				FileFormat:      FileFormatParquet,
				PartitionData:   map[string]any{"event_day": int32(19723)},
				RecordCount:     50,
				FileSizeInBytes: 1024,
			},
		},
	}

	data := buildManifestFixture(t, spec, entries)
	manifest, err := ReadManifest(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadManifest failed: %v", err)
	}

	if manifest.Content != ManifestContentData {
		t.Errorf("content = %v, want data", manifest.Content)
	}
	if len(manifest.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(manifest.Entries))
	}

	first := manifest.Entries[0]
	if first.Status != EntryStatusAdded {
		t.Errorf("status = %v, want added", first.Status)
	}
	if first.SnapshotID == nil || *first.SnapshotID != snapID {
		t.Errorf("snapshot id = %v", first.SnapshotID)
	}
	df := first.DataFile
	if df.RecordCount != 100 || df.FileSizeInBytes != 2048 {
		t.Errorf("counts = %d/%d", df.RecordCount, df.FileSizeInBytes)
	}
	if df.ColumnSizes[2] != 1024 {
		t.Errorf("column size = %d, want 1024", df.ColumnSizes[2])
	}
	if df.NullValueCounts[2] != 3 {
		t.Errorf("null count = %d, want 3", df.NullValueCounts[2])
	}
	if len(df.SplitOffsets) != 1 || df.SplitOffsets[0] != 4 {
		t.Errorf("split offsets = %v", df.SplitOffsets)
	}

	// Partition values must come back as plain scalars, not unions.
	if v, ok := df.PartitionData["event_day"].(int32); !ok || v != 19723 {
		t.Errorf("partition value = %v (%T)", df.PartitionData["event_day"], df.PartitionData["event_day"])
	}
	if key := df.Tuple(*spec).Canonical(); key != "event_day=2024-01-01" {
		t.Errorf("canonical partition = %q", key)
	}

	// Live filtering drops the deleted entry.
	live := manifest.LiveEntries()
	if len(live) != 1 || live[0].DataFile.FilePath != df.FilePath {
		t.Errorf("live entries = %d", len(live))
	}
}

func TestManifestUnpartitionedRoundTrip(t *testing.T) {
	entries := []ManifestEntry{
		{
			Status: EntryStatusAdded,
			DataFile: DataFile{
				FilePath:        "gs://warehouse/db/plain/data/c.parquet",
				FileFormat:      FileFormatParquet,
				RecordCount:     10,
				FileSizeInBytes: 512,
			},
		},
	}

	data := buildManifestFixture(t, nil, entries)
	manifest, err := ReadManifest(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadManifest failed: %v", err)
	}
	if len(manifest.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(manifest.Entries))
	}
	tuple := manifest.Entries[0].DataFile.Tuple(UnpartitionedSpec())
	if !tuple.IsEmpty() {
		t.Error("expected empty tuple for unpartitioned file")
	}
}

func TestReadManifestTruncated(t *testing.T) {
	full := buildManifestFixture(t, nil, []ManifestEntry{
		{Status: EntryStatusAdded, DataFile: DataFile{FilePath: "f", FileFormat: FileFormatParquet}},
	})

	_, err := ReadManifest(bytes.NewReader(full[:16]))
	if err == nil {
		t.Fatal("expected error for truncated container")
	}
}

func TestDecodeBound(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		typ  Type
		want any
	}{
		{"long", []byte{0x64, 0, 0, 0, 0, 0, 0, 0}, LongType, int64(100)},
		{"int", []byte{0x05, 0, 0, 0}, IntType, int32(5)},
		{"string", []byte("abc"), StringType, "abc"},
		{"bool true", []byte{1}, BooleanType, true},
		{"empty", nil, LongType, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBound(tt.data, tt.typ)
			if err != nil {
				t.Fatalf("DecodeBound failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeBound = %v (%T), want %v", got, got, tt.want)
			}
		})
	}
}
