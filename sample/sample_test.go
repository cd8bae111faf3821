package sample

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/icelens/icelens/lenserr"
	"github.com/icelens/icelens/scan"
	"github.com/icelens/icelens/spec"
	"github.com/icelens/icelens/store"
)

// parquetBytes builds a small two-column file: id (int64) and name
// (string), with rows id=base..base+rows-1.
func parquetBytes(t *testing.T, base int64, rows int) []byte {
	t.Helper()

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String},
	}, nil)

	bldr := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer bldr.Release()
	for i := 0; i < rows; i++ {
		bldr.Field(0).(*array.Int64Builder).Append(base + int64(i))
		bldr.Field(1).(*array.StringBuilder).Append(fmt.Sprintf("row-%d", base+int64(i)))
	}
	rec := bldr.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())
	w, err := pqarrow.NewFileWriter(schema, &buf, props, arrowProps)
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	if err := w.WriteBuffered(rec); err != nil {
		t.Fatalf("WriteBuffered failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return buf.Bytes()
}

func writeManifest(t *testing.T, mem *store.MemStore, path string, paths ...string) {
	t.Helper()
	ps := spec.UnpartitionedSpec()
	w, err := spec.NewManifestWriter(0, 0, spec.ManifestContentData, &ps)
	if err != nil {
		t.Fatalf("NewManifestWriter failed: %v", err)
	}
	for _, p := range paths {
		err := w.Append(spec.ManifestEntry{
			Status: spec.EntryStatusAdded,
			DataFile: spec.DataFile{
				Content:     spec.FileContentData,
				FilePath:    p,
				FileFormat:  spec.FileFormatParquet,
				RecordCount: 5,
			},
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	mem.Put(path, w.Bytes())
}

func writeManifestList(t *testing.T, mem *store.MemStore, path string, manifests ...string) {
	t.Helper()
	w, err := spec.NewManifestListWriter()
	if err != nil {
		t.Fatalf("NewManifestListWriter failed: %v", err)
	}
	for _, mp := range manifests {
		if err := w.Append(spec.ManifestFile{ManifestPath: mp}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	mem.Put(path, w.Bytes())
}

// fixture builds a table with one snapshot over three 5-row data files.
func fixture(t *testing.T) (*store.MemStore, *spec.TableMetadata, *Sampler) {
	t.Helper()
	mem := store.NewMemStore("gs")

	var files []string
	for i := 0; i < 3; i++ {
		p := fmt.Sprintf("gs://bucket/db/t/data/f%d.parquet", i)
		mem.Put(p, parquetBytes(t, int64(i*100), 5))
		files = append(files, p)
	}
	writeManifest(t, mem, "gs://bucket/db/t/metadata/m0.avro", files...)
	writeManifestList(t, mem, "gs://bucket/db/t/metadata/snap-1.avro", "gs://bucket/db/t/metadata/m0.avro")

	current := int64(3051729675574597004)
	meta := &spec.TableMetadata{
		FormatVersion:     spec.FormatVersionV2,
		Location:          "gs://bucket/db/t",
		CurrentSnapshotID: &current,
		Snapshots: []spec.Snapshot{
			{SnapshotID: current, ManifestList: "gs://bucket/db/t/metadata/snap-1.avro"},
		},
		PartitionSpecs: []spec.PartitionSpec{spec.UnpartitionedSpec()},
	}

	sampler := NewSampler(mem, scan.NewPlanner(mem, nil, 2), nil)
	return mem, meta, sampler
}

func TestSampleStopsAtLimit(t *testing.T) {
	_, meta, sampler := fixture(t)

	result, err := sampler.Sample(context.Background(), meta, Scope{}, 10)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if result.TotalRows != 10 {
		t.Fatalf("totalRows = %d, want 10", result.TotalRows)
	}
	// Two 5-row files satisfy a limit of 10; the third is never opened.
	if result.FilesRead != 2 {
		t.Errorf("filesRead = %d, want 2", result.FilesRead)
	}
	if result.Message != "" {
		t.Errorf("unexpected message %q", result.Message)
	}
}

func TestSampleColumnsIncludeFileName(t *testing.T) {
	_, meta, sampler := fixture(t)

	result, err := sampler.Sample(context.Background(), meta, Scope{}, 3)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	want := []string{FileNameColumn, "id", "name"}
	if len(result.Columns) != len(want) {
		t.Fatalf("columns = %v, want %v", result.Columns, want)
	}
	for i, c := range want {
		if result.Columns[i] != c {
			t.Errorf("columns[%d] = %s, want %s", i, result.Columns[i], c)
		}
	}
	for _, row := range result.Rows {
		if row[FileNameColumn] != "t/data/f0.parquet" {
			t.Errorf("_file_name = %v, want t/data/f0.parquet", row[FileNameColumn])
		}
	}
}

func TestSampleSkipsUnreadableFile(t *testing.T) {
	mem, meta, sampler := fixture(t)
	mem.Put("gs://bucket/db/t/data/f0.parquet", []byte("not parquet"))

	result, err := sampler.Sample(context.Background(), meta, Scope{}, 10)
	if err != nil {
		t.Fatalf("a corrupt file should be skipped, got %v", err)
	}
	if result.TotalRows != 10 {
		t.Errorf("totalRows = %d, want 10", result.TotalRows)
	}
	if result.FilesRead != 2 {
		t.Errorf("filesRead = %d, want 2", result.FilesRead)
	}
}

func TestSampleSingleFileScope(t *testing.T) {
	_, meta, sampler := fixture(t)

	result, err := sampler.Sample(context.Background(), meta,
		Scope{FilePath: "gs://bucket/db/t/data/f2.parquet"}, 100)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if result.TotalRows != 5 {
		t.Fatalf("totalRows = %d, want 5", result.TotalRows)
	}
	if result.Rows[0]["id"] != int64(200) {
		t.Errorf("first id = %v, want 200", result.Rows[0]["id"])
	}
}

func TestSampleManifestScope(t *testing.T) {
	_, meta, sampler := fixture(t)

	result, err := sampler.Sample(context.Background(), meta,
		Scope{ManifestPath: "gs://bucket/db/t/metadata/m0.avro"}, 7)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if result.TotalRows != 7 {
		t.Errorf("totalRows = %d, want 7", result.TotalRows)
	}
}

func TestSampleUnknownSnapshot(t *testing.T) {
	_, meta, sampler := fixture(t)

	_, err := sampler.Sample(context.Background(), meta, Scope{SnapshotID: "999"}, 5)
	if !errors.Is(err, lenserr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSampleEmptyTable(t *testing.T) {
	mem := store.NewMemStore("gs")
	meta := &spec.TableMetadata{FormatVersion: spec.FormatVersionV2, Location: "gs://bucket/db/t"}
	sampler := NewSampler(mem, scan.NewPlanner(mem, nil, 0), nil)

	result, err := sampler.Sample(context.Background(), meta, Scope{}, 10)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if result.TotalRows != 0 || result.Message != "No data found" {
		t.Errorf("got rows=%d message=%q, want empty result message", result.TotalRows, result.Message)
	}
}
