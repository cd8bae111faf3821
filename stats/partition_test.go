package stats

import (
	"testing"

	"github.com/icelens/icelens/scan"
	"github.com/icelens/icelens/spec"
)

var daySpec = spec.PartitionSpec{
	SpecID: 0,
	Fields: []spec.PartitionField{
		{SourceID: 2, FieldID: 1000, Name: "event_day", Transform: spec.TransformDay},
	},
}

func ref(path string, records, size int64, day any) scan.FileRef {
	df := spec.DataFile{
		FilePath:        path,
		RecordCount:     records,
		FileSizeInBytes: size,
	}
	sp := spec.UnpartitionedSpec()
	if day != nil {
		df.PartitionData = map[string]any{"event_day": day}
		sp = daySpec
	}
	return scan.FileRef{File: df, Spec: sp}
}

func TestAggregateGroupsByPartition(t *testing.T) {
	files := []scan.FileRef{
		ref("a.parquet", 100, 1000, int32(19723)),
		ref("b.parquet", 50, 500, int32(19723)),
		ref("c.parquet", 25, 250, int32(19724)),
	}

	buckets := Aggregate(files)
	if len(buckets) != 2 {
		t.Fatalf("buckets = %d, want 2", len(buckets))
	}

	first := buckets[0]
	if first.Key != "event_day=2024-01-01" {
		t.Errorf("key = %q", first.Key)
	}
	if first.FileCount != 2 || first.RecordCount != 150 || first.TotalSize != 1500 {
		t.Errorf("bucket = %+v", first)
	}
	if first.Partition["event_day"] != "2024-01-01" {
		t.Errorf("partition map = %v", first.Partition)
	}

	// Bucket file counts must add up to the closure size.
	total := 0
	for _, b := range buckets {
		total += b.FileCount
	}
	if total != len(files) {
		t.Errorf("bucket file counts sum to %d, want %d", total, len(files))
	}
}

func TestAggregateUnpartitionedCollapses(t *testing.T) {
	files := []scan.FileRef{
		ref("a.parquet", 10, 100, nil),
		ref("b.parquet", 20, 200, nil),
	}

	buckets := Aggregate(files)
	if len(buckets) != 1 {
		t.Fatalf("buckets = %d, want 1", len(buckets))
	}
	b := buckets[0]
	if b.Key != UnpartitionedKey {
		t.Errorf("key = %q, want %q", b.Key, UnpartitionedKey)
	}
	if b.Partition != nil {
		t.Errorf("expected nil partition map, got %v", b.Partition)
	}
	if b.FileCount != 2 || b.RecordCount != 30 || b.TotalSize != 300 {
		t.Errorf("bucket = %+v", b)
	}
}

func TestAggregateEmpty(t *testing.T) {
	if buckets := Aggregate(nil); len(buckets) != 0 {
		t.Errorf("expected no buckets, got %v", buckets)
	}
	if total := Total(nil); total.FileCount != 0 {
		t.Errorf("expected zero totals, got %+v", total)
	}
}

func TestTotal(t *testing.T) {
	files := []scan.FileRef{
		ref("a.parquet", 100, 1000, int32(19723)),
		ref("b.parquet", 50, 500, nil),
	}
	total := Total(files)
	if total.FileCount != 2 || total.RecordCount != 150 || total.TotalSize != 1500 {
		t.Errorf("totals = %+v", total)
	}
}
