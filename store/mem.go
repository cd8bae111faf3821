package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/icelens/icelens/lenserr"
)

type memObject struct {
	data    []byte
	updated time.Time
}

// MemStore is an in-memory object store for tests. It serves mem://
// URIs by default but can impersonate any scheme so fixtures can use
// gs:// paths.
type MemStore struct {
	mu      sync.RWMutex
	scheme  string
	objects map[string]memObject
}

// NewMemStore creates an empty in-memory store serving the given
// scheme; empty means "mem".
func NewMemStore(scheme string) *MemStore {
	if scheme == "" {
		scheme = "mem"
	}
	return &MemStore{
		scheme:  scheme,
		objects: make(map[string]memObject),
	}
}

// Scheme implements ObjectStore.
func (s *MemStore) Scheme() string { return s.scheme }

// Put stores an object under a full URI.
func (s *MemStore) Put(path string, data []byte) {
	s.PutAt(path, data, time.Now())
}

// PutAt stores an object with an explicit updated time.
func (s *MemStore) PutAt(path string, data []byte, updated time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = memObject{data: data, updated: updated}
}

// Delete removes an object.
func (s *MemStore) Delete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path)
}

// Read implements ObjectStore.
func (s *MemStore) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, lenserr.FromRead("read", path, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[path]
	if !ok {
		return nil, &lenserr.NotFoundError{Kind: "object", Name: path}
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

// List implements ObjectStore.
func (s *MemStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, lenserr.FromRead("list", prefix, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var objects []ObjectInfo
	for path, obj := range s.objects {
		if strings.HasPrefix(path, prefix) {
			objects = append(objects, ObjectInfo{
				Path:    path,
				Size:    int64(len(obj.data)),
				Updated: obj.updated,
			})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Path < objects[j].Path })
	return objects, nil
}

// ListPrefixes implements ObjectStore.
func (s *MemStore) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, lenserr.FromRead("list", prefix, err)
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var prefixes []string
	for path := range s.objects {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(path, prefix)
		dir, _, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		full := prefix + dir + "/"
		if !seen[full] {
			seen[full] = true
			prefixes = append(prefixes, full)
		}
	}
	sort.Strings(prefixes)
	return prefixes, nil
}

// Stat implements ObjectStore.
func (s *MemStore) Stat(ctx context.Context, path string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, lenserr.FromRead("stat", path, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[path]
	if !ok {
		return ObjectInfo{}, &lenserr.NotFoundError{Kind: "object", Name: path}
	}
	return ObjectInfo{Path: path, Size: int64(len(obj.data)), Updated: obj.updated}, nil
}
