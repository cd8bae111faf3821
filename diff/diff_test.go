package diff

import (
	"context"
	"errors"
	"testing"

	"github.com/icelens/icelens/lenserr"
	"github.com/icelens/icelens/scan"
	"github.com/icelens/icelens/spec"
	"github.com/icelens/icelens/store"
)

// fixture builds a table with two snapshots:
//
//	snapshot 1: a.parquet (100 records, 1000 bytes), b.parquet (50, 500)
//	snapshot 2: a.parquet (unchanged), c.parquet (25, 250)
func fixture(t *testing.T) (*store.MemStore, *spec.TableMetadata) {
	t.Helper()
	mem := store.NewMemStore("gs")

	write := func(manifestPath string, files ...spec.DataFile) {
		w, err := spec.NewManifestWriter(0, 0, spec.ManifestContentData, nil)
		if err != nil {
			t.Fatalf("NewManifestWriter failed: %v", err)
		}
		for _, df := range files {
			if err := w.Append(spec.ManifestEntry{Status: spec.EntryStatusAdded, DataFile: df}); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}
		mem.Put(manifestPath, w.Bytes())
	}
	writeList := func(listPath string, manifestPaths ...string) {
		w, err := spec.NewManifestListWriter()
		if err != nil {
			t.Fatalf("NewManifestListWriter failed: %v", err)
		}
		for _, mp := range manifestPaths {
			if err := w.Append(spec.ManifestFile{ManifestPath: mp}); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}
		mem.Put(listPath, w.Bytes())
	}

	df := func(name string, records, size int64) spec.DataFile {
		return spec.DataFile{
			FilePath:        "gs://bucket/db/t/data/" + name,
			FileFormat:      spec.FileFormatParquet,
			RecordCount:     records,
			FileSizeInBytes: size,
		}
	}

	write("gs://bucket/db/t/metadata/m1.avro", df("a.parquet", 100, 1000), df("b.parquet", 50, 500))
	writeList("gs://bucket/db/t/metadata/snap-1.avro", "gs://bucket/db/t/metadata/m1.avro")

	write("gs://bucket/db/t/metadata/m2.avro", df("a.parquet", 100, 1000), df("c.parquet", 25, 250))
	writeList("gs://bucket/db/t/metadata/snap-2.avro", "gs://bucket/db/t/metadata/m2.avro")

	meta := &spec.TableMetadata{
		FormatVersion:  spec.FormatVersionV2,
		Location:       "gs://bucket/db/t",
		PartitionSpecs: []spec.PartitionSpec{{SpecID: 0}},
		Snapshots: []spec.Snapshot{
			{SnapshotID: 1, TimestampMs: 1700000100000, ManifestList: "gs://bucket/db/t/metadata/snap-1.avro"},
			{SnapshotID: 2, TimestampMs: 1700000200000, ManifestList: "gs://bucket/db/t/metadata/snap-2.avro"},
		},
	}
	return mem, meta
}

func newEngine(mem *store.MemStore) *Engine {
	return NewEngine(scan.NewPlanner(mem, nil, 0))
}

func TestCompareAddedRemovedAndDeltas(t *testing.T) {
	mem, meta := fixture(t)
	report, err := newEngine(mem).Compare(context.Background(), meta, "1", "2")
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if len(report.AddedFiles) != 1 || report.AddedFiles[0].FilePath != "gs://bucket/db/t/data/c.parquet" {
		t.Errorf("added = %+v", report.AddedFiles)
	}
	if len(report.RemovedFiles) != 1 || report.RemovedFiles[0].FilePath != "gs://bucket/db/t/data/b.parquet" {
		t.Errorf("removed = %+v", report.RemovedFiles)
	}
	if len(report.ModifiedFiles) != 0 {
		t.Errorf("modified = %+v", report.ModifiedFiles)
	}

	d := report.Statistics.Delta
	if d.Files != 0 {
		t.Errorf("delta.files = %d, want 0", d.Files)
	}
	if d.Records != -25 {
		t.Errorf("delta.records = %d, want -25", d.Records)
	}
	if d.Size != -250 {
		t.Errorf("delta.size = %d, want -250", d.Size)
	}

	if report.Summary.AddedCount != 1 || report.Summary.RemovedCount != 1 || report.Summary.ModifiedCount != 0 {
		t.Errorf("summary = %+v", report.Summary)
	}
	if report.Snapshot2.SnapshotID != "2" {
		t.Errorf("snapshot2 id = %q", report.Snapshot2.SnapshotID)
	}
}

func TestCompareSameSnapshotIsEmpty(t *testing.T) {
	mem, meta := fixture(t)
	report, err := newEngine(mem).Compare(context.Background(), meta, "2", "2")
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if len(report.AddedFiles)+len(report.RemovedFiles)+len(report.ModifiedFiles) != 0 {
		t.Errorf("self diff not empty: %+v", report.Summary)
	}
	if report.Statistics.Delta != (Delta{}) {
		t.Errorf("self diff delta = %+v", report.Statistics.Delta)
	}
}

func TestCompareFromStartOfHistory(t *testing.T) {
	mem, meta := fixture(t)
	report, err := newEngine(mem).Compare(context.Background(), meta, "", "1")
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if len(report.AddedFiles) != 2 {
		t.Errorf("added = %d, want 2 (everything)", len(report.AddedFiles))
	}
	if len(report.RemovedFiles) != 0 {
		t.Errorf("removed = %d, want 0", len(report.RemovedFiles))
	}
	if report.Statistics.Snapshot1.FileCount != 0 {
		t.Errorf("snapshot1 stats = %+v, want empty", report.Statistics.Snapshot1)
	}
	if report.Snapshot1.SnapshotID != "" {
		t.Errorf("snapshot1 id = %q, want empty", report.Snapshot1.SnapshotID)
	}
}

func TestCompareUnknownSnapshot(t *testing.T) {
	mem, meta := fixture(t)
	_, err := newEngine(mem).Compare(context.Background(), meta, "1", "999")
	if !errors.Is(err, lenserr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown target, got %v", err)
	}
	_, err = newEngine(mem).Compare(context.Background(), meta, "999", "2")
	if !errors.Is(err, lenserr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown base, got %v", err)
	}
}
