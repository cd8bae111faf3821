package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/icelens/icelens/lenserr"
)

func TestSplitURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		key     string
		wantErr bool
	}{
		{"gs://warehouse/db/events/metadata/v1.metadata.json", "warehouse", "db/events/metadata/v1.metadata.json", false},
		{"s3://bucket/key", "bucket", "key", false},
		{"s3a://bucket/key", "bucket", "key", false},
		{"gs://bucket", "bucket", "", false},
		{"no-scheme/path", "", "", true},
		{"gs://", "", "", true},
	}

	for _, tt := range tests {
		bucket, key, err := splitURI(tt.uri)
		if tt.wantErr {
			if err == nil {
				t.Errorf("splitURI(%q): expected error", tt.uri)
			}
			continue
		}
		if err != nil {
			t.Errorf("splitURI(%q) failed: %v", tt.uri, err)
			continue
		}
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("splitURI(%q) = %q, %q; want %q, %q", tt.uri, bucket, key, tt.bucket, tt.key)
		}
	}
}

func TestRouterDispatch(t *testing.T) {
	mem := NewMemStore("gs")
	mem.Put("gs://bucket/file.txt", []byte("hello"))

	r := NewRouter()
	r.Register(mem)

	data, err := r.Read(context.Background(), "gs://bucket/file.txt")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("data = %q", data)
	}

	_, err = r.Read(context.Background(), "hdfs://bucket/file.txt")
	if !errors.Is(err, lenserr.ErrNotFound) {
		t.Errorf("expected not found for unregistered scheme, got %v", err)
	}
}

func TestRouterS3aAlias(t *testing.T) {
	mem := NewMemStore("s3")
	r := NewRouter()
	r.Register(mem)

	if _, err := r.ForPath("s3a://bucket/key"); err != nil {
		t.Errorf("s3a dispatch failed: %v", err)
	}
}

func TestMemStoreNotFound(t *testing.T) {
	mem := NewMemStore("")
	_, err := mem.Read(context.Background(), "mem://missing")
	if !errors.Is(err, lenserr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	_, err = mem.Stat(context.Background(), "mem://missing")
	if !errors.Is(err, lenserr.ErrNotFound) {
		t.Errorf("expected ErrNotFound from Stat, got %v", err)
	}
}

func TestMemStoreListPrefixes(t *testing.T) {
	mem := NewMemStore("gs")
	mem.Put("gs://bucket/tables/events/metadata/v1.metadata.json", []byte("{}"))
	mem.Put("gs://bucket/tables/orders/metadata/v1.metadata.json", []byte("{}"))
	mem.Put("gs://bucket/tables/readme.txt", []byte("not a table"))

	prefixes, err := mem.ListPrefixes(context.Background(), "gs://bucket/tables")
	if err != nil {
		t.Fatalf("ListPrefixes failed: %v", err)
	}
	want := []string{"gs://bucket/tables/events/", "gs://bucket/tables/orders/"}
	if len(prefixes) != len(want) {
		t.Fatalf("prefixes = %v, want %v", prefixes, want)
	}
	for i := range want {
		if prefixes[i] != want[i] {
			t.Errorf("prefixes[%d] = %q, want %q", i, prefixes[i], want[i])
		}
	}
}

func TestMemStoreListOrderedWithInfo(t *testing.T) {
	mem := NewMemStore("gs")
	updated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mem.PutAt("gs://bucket/t/metadata/v2.metadata.json", []byte("22"), updated)
	mem.PutAt("gs://bucket/t/metadata/v1.metadata.json", []byte("1"), updated.Add(-time.Hour))

	objects, err := mem.List(context.Background(), "gs://bucket/t/metadata/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objects))
	}
	if objects[0].Path != "gs://bucket/t/metadata/v1.metadata.json" {
		t.Errorf("listing not sorted: %v", objects[0].Path)
	}
	if objects[1].Size != 2 || !objects[1].Updated.Equal(updated) {
		t.Errorf("object info = %+v", objects[1])
	}
}

func TestMemStoreHonorsCancellation(t *testing.T) {
	mem := NewMemStore("")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := mem.Read(ctx, "mem://x"); err == nil {
		t.Error("expected error from canceled context")
	}
}
