// Package stats aggregates data file statistics by partition.
package stats

import (
	"sort"

	"github.com/icelens/icelens/scan"
)

// UnpartitionedKey is the bucket key of files with no partition tuple.
const UnpartitionedKey = "unpartitioned"

// Bucket is the aggregate of every live data file sharing one
// partition tuple.
type Bucket struct {
	// Key is the canonical partition key; UnpartitionedKey for tables
	// without partitioning.
	Key string `json:"key"`

	// Partition maps field names to rendered values; nil when
	// unpartitioned.
	Partition map[string]string `json:"partition,omitempty"`

	FileCount   int   `json:"fileCount"`
	RecordCount int64 `json:"recordCount"`
	TotalSize   int64 `json:"totalSize"`
}

// Totals is the whole-snapshot aggregate.
type Totals struct {
	FileCount   int   `json:"fileCount"`
	RecordCount int64 `json:"recordCount"`
	TotalSize   int64 `json:"totalSize"`
}

// Aggregate groups live files into partition buckets, sorted by key.
// Unpartitioned files collapse into a single default bucket.
func Aggregate(files []scan.FileRef) []Bucket {
	byKey := make(map[string]*Bucket)
	for _, ref := range files {
		tuple := ref.File.Tuple(ref.Spec)
		key := tuple.Canonical()
		if key == "" {
			key = UnpartitionedKey
		}

		b, ok := byKey[key]
		if !ok {
			b = &Bucket{Key: key, Partition: tuple.AsMap()}
			byKey[key] = b
		}
		b.FileCount++
		b.RecordCount += ref.File.RecordCount
		b.TotalSize += ref.File.FileSizeInBytes
	}

	buckets := make([]Bucket, 0, len(byKey))
	for _, b := range byKey {
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Key < buckets[j].Key })
	return buckets
}

// Total sums file stats across the whole closure.
func Total(files []scan.FileRef) Totals {
	var t Totals
	for _, ref := range files {
		t.FileCount++
		t.RecordCount += ref.File.RecordCount
		t.TotalSize += ref.File.FileSizeInBytes
	}
	return t
}
