package scan

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/icelens/icelens/lenserr"
	"github.com/icelens/icelens/spec"
	"github.com/icelens/icelens/store"
)

func dataFile(path string, records, size int64, partition map[string]any) spec.DataFile {
	return spec.DataFile{
		Content:         spec.FileContentData,
		FilePath:        path,
		FileFormat:      spec.FileFormatParquet,
		PartitionData:   partition,
		RecordCount:     records,
		FileSizeInBytes: size,
	}
}

func writeManifest(t *testing.T, mem *store.MemStore, path string, ps *spec.PartitionSpec, entries ...spec.ManifestEntry) {
	t.Helper()
	w, err := spec.NewManifestWriter(0, 0, spec.ManifestContentData, ps)
	if err != nil {
		t.Fatalf("NewManifestWriter failed: %v", err)
	}
	for _, e := range entries {
		if err := w.Append(e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	mem.Put(path, w.Bytes())
}

func writeManifestList(t *testing.T, mem *store.MemStore, path string, manifests ...spec.ManifestFile) {
	t.Helper()
	w, err := spec.NewManifestListWriter()
	if err != nil {
		t.Fatalf("NewManifestListWriter failed: %v", err)
	}
	for _, mf := range manifests {
		if err := w.Append(mf); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	mem.Put(path, w.Bytes())
}

func testMetadata() *spec.TableMetadata {
	return &spec.TableMetadata{
		FormatVersion: spec.FormatVersionV2,
		Location:      "gs://bucket/db/t",
		PartitionSpecs: []spec.PartitionSpec{
			{SpecID: 0, Fields: []spec.PartitionField{
				{SourceID: 2, FieldID: 1000, Name: "event_day", Transform: spec.TransformDay},
			}},
		},
		DefaultSpecID: 0,
	}
}

func TestSnapshotClosure(t *testing.T) {
	mem := store.NewMemStore("gs")
	meta := testMetadata()
	ps := &meta.PartitionSpecs[0]

	for i := 0; i < 3; i++ {
		writeManifest(t, mem, fmt.Sprintf("gs://bucket/db/t/metadata/m%d.avro", i), ps,
			spec.ManifestEntry{
				Status:   spec.EntryStatusAdded,
				DataFile: dataFile(fmt.Sprintf("gs://bucket/db/t/data/f%d-a.parquet", i), 100, 1000, map[string]any{"event_day": int32(19723 + i)}),
			},
			spec.ManifestEntry{
				Status:   spec.EntryStatusDeleted,
				DataFile: dataFile(fmt.Sprintf("gs://bucket/db/t/data/f%d-old.parquet", i), 10, 100, map[string]any{"event_day": int32(19000)}),
			},
		)
	}
	writeManifestList(t, mem, "gs://bucket/db/t/metadata/snap-1.avro",
		spec.ManifestFile{ManifestPath: "gs://bucket/db/t/metadata/m0.avro", AddedFilesCount: 1},
		spec.ManifestFile{ManifestPath: "gs://bucket/db/t/metadata/m1.avro", AddedFilesCount: 1},
		spec.ManifestFile{ManifestPath: "gs://bucket/db/t/metadata/m2.avro", AddedFilesCount: 1},
	)

	snap := &spec.Snapshot{SnapshotID: 1, ManifestList: "gs://bucket/db/t/metadata/snap-1.avro"}
	p := NewPlanner(mem, nil, 2)
	result, err := p.Snapshot(context.Background(), meta, snap)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if len(result.Manifests) != 3 {
		t.Fatalf("manifests = %d, want 3", len(result.Manifests))
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}

	// Live files only, in manifest list order.
	files := result.LiveFiles()
	if len(files) != 3 {
		t.Fatalf("live files = %d, want 3", len(files))
	}
	for i, f := range files {
		want := fmt.Sprintf("gs://bucket/db/t/data/f%d-a.parquet", i)
		if f.File.FilePath != want {
			t.Errorf("files[%d] = %s, want %s", i, f.File.FilePath, want)
		}
		if f.Spec.IsUnpartitioned() {
			t.Errorf("files[%d] lost its partition spec", i)
		}
	}
}

func TestSnapshotPartialDecodeFailure(t *testing.T) {
	mem := store.NewMemStore("gs")
	meta := testMetadata()
	ps := &meta.PartitionSpecs[0]

	writeManifest(t, mem, "gs://bucket/db/t/metadata/good.avro", ps,
		spec.ManifestEntry{
			Status:   spec.EntryStatusAdded,
			DataFile: dataFile("gs://bucket/db/t/data/a.parquet", 100, 1000, map[string]any{"event_day": int32(19723)}),
		})
	mem.Put("gs://bucket/db/t/metadata/bad.avro", []byte("not an avro file"))

	writeManifestList(t, mem, "gs://bucket/db/t/metadata/snap-1.avro",
		spec.ManifestFile{ManifestPath: "gs://bucket/db/t/metadata/good.avro"},
		spec.ManifestFile{ManifestPath: "gs://bucket/db/t/metadata/bad.avro"},
	)

	snap := &spec.Snapshot{SnapshotID: 1, ManifestList: "gs://bucket/db/t/metadata/snap-1.avro"}
	result, err := NewPlanner(mem, nil, 0).Snapshot(context.Background(), meta, snap)
	if err != nil {
		t.Fatalf("partial failure should not be fatal: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("warnings = %v, want 1 entry", result.Warnings)
	}
	if files := result.LiveFiles(); len(files) != 1 {
		t.Errorf("live files = %d, want 1", len(files))
	}
}

func TestSnapshotTotalDecodeFailure(t *testing.T) {
	mem := store.NewMemStore("gs")
	mem.Put("gs://bucket/db/t/metadata/bad.avro", []byte("junk"))
	writeManifestList(t, mem, "gs://bucket/db/t/metadata/snap-1.avro",
		spec.ManifestFile{ManifestPath: "gs://bucket/db/t/metadata/bad.avro"},
	)

	snap := &spec.Snapshot{SnapshotID: 1, ManifestList: "gs://bucket/db/t/metadata/snap-1.avro"}
	_, err := NewPlanner(mem, nil, 0).Snapshot(context.Background(), testMetadata(), snap)
	if !errors.Is(err, lenserr.ErrDecode) {
		t.Errorf("expected ErrDecode when every manifest fails, got %v", err)
	}
}

func TestSnapshotMissingManifestList(t *testing.T) {
	mem := store.NewMemStore("gs")
	snap := &spec.Snapshot{SnapshotID: 1, ManifestList: "gs://bucket/db/t/metadata/missing.avro"}
	_, err := NewPlanner(mem, nil, 0).Snapshot(context.Background(), testMetadata(), snap)
	if !errors.Is(err, lenserr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
