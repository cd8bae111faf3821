// Package store provides read-only access to the object stores a table
// can live on. Paths are full URIs (gs://bucket/key, s3://bucket/key,
// file:///dir) so metadata can reference files across stores.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/icelens/icelens/lenserr"
	"github.com/icelens/icelens/metrics"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Path    string
	Size    int64
	Updated time.Time
}

// ObjectStore is the read surface the inspection engine needs. All
// methods take full URIs and honor context cancellation.
type ObjectStore interface {
	// Scheme returns the URI scheme the store serves, without "://".
	Scheme() string

	// Read fetches an entire object.
	Read(ctx context.Context, path string) ([]byte, error)

	// List enumerates objects under a prefix, recursively.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// ListPrefixes enumerates the immediate child "directories" of a
	// prefix, as full URIs ending in "/".
	ListPrefixes(ctx context.Context, prefix string) ([]string, error)

	// Stat fetches object attributes without the body.
	Stat(ctx context.Context, path string) (ObjectInfo, error)
}

// Router dispatches by URI scheme to the registered stores.
type Router struct {
	stores map[string]ObjectStore
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{stores: make(map[string]ObjectStore)}
}

// Register adds a store under its scheme. The s3 scheme also serves
// s3a URIs.
func (r *Router) Register(s ObjectStore) {
	r.stores[s.Scheme()] = s
}

// ForPath returns the store serving the given URI.
func (r *Router) ForPath(path string) (ObjectStore, error) {
	scheme, _, ok := strings.Cut(path, "://")
	if !ok {
		return nil, fmt.Errorf("path %q has no scheme", path)
	}
	if scheme == "s3a" {
		scheme = "s3"
	}
	s, ok := r.stores[scheme]
	if !ok {
		return nil, &lenserr.NotFoundError{Kind: "object store", Name: scheme}
	}
	return s, nil
}

// Read dispatches a read to the store serving the path.
func (r *Router) Read(ctx context.Context, path string) ([]byte, error) {
	s, err := r.ForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := s.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	metrics.ObjectReads.WithLabelValues(s.Scheme()).Inc()
	metrics.ObjectReadBytes.WithLabelValues(s.Scheme()).Add(float64(len(data)))
	return data, nil
}

// List dispatches a listing to the store serving the prefix.
func (r *Router) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	s, err := r.ForPath(prefix)
	if err != nil {
		return nil, err
	}
	return s.List(ctx, prefix)
}

// ListPrefixes dispatches a prefix listing to the store serving the prefix.
func (r *Router) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	s, err := r.ForPath(prefix)
	if err != nil {
		return nil, err
	}
	return s.ListPrefixes(ctx, prefix)
}

// Stat dispatches a stat to the store serving the path.
func (r *Router) Stat(ctx context.Context, path string) (ObjectInfo, error) {
	s, err := r.ForPath(path)
	if err != nil {
		return ObjectInfo{}, err
	}
	return s.Stat(ctx, path)
}

var _ ObjectStore = (*Router)(nil)

// Scheme implements ObjectStore; the router itself has no single scheme.
func (r *Router) Scheme() string { return "" }

// splitURI splits a URI into bucket and key, tolerating the s3a alias.
func splitURI(uri string) (bucket, key string, err error) {
	_, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return "", "", fmt.Errorf("invalid object URI %q", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in URI %q", uri)
	}
	return bucket, key, nil
}
