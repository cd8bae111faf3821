package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/icelens/icelens/lenserr"
)

// GCSConfig holds Google Cloud Storage configuration.
type GCSConfig struct {
	// CredentialsFile is a service account key path. Empty means
	// application default credentials.
	CredentialsFile string

	// Anonymous disables authentication, for public buckets and
	// emulators.
	Anonymous bool

	// Endpoint overrides the API endpoint, for emulators.
	Endpoint string
}

// GCSStore serves gs:// URIs.
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore creates a GCS-backed store.
func NewGCSStore(ctx context.Context, cfg *GCSConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg != nil {
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		if cfg.Anonymous {
			opts = append(opts, option.WithoutAuthentication())
		}
		if cfg.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.Endpoint))
		}
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

// Scheme implements ObjectStore.
func (s *GCSStore) Scheme() string { return "gs" }

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Read implements ObjectStore.
func (s *GCSStore) Read(ctx context.Context, path string) ([]byte, error) {
	bucket, key, err := splitURI(path)
	if err != nil {
		return nil, err
	}

	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, classifyGCSError("read", path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, classifyGCSError("read", path, err)
	}
	return data, nil
}

// List implements ObjectStore.
func (s *GCSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	bucket, key, err := splitURI(prefix)
	if err != nil {
		return nil, err
	}

	var objects []ObjectInfo
	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: key})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classifyGCSError("list", prefix, err)
		}
		objects = append(objects, ObjectInfo{
			Path:    fmt.Sprintf("gs://%s/%s", bucket, attrs.Name),
			Size:    attrs.Size,
			Updated: attrs.Updated,
		})
	}
	return objects, nil
}

// ListPrefixes implements ObjectStore.
func (s *GCSStore) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	bucket, key, err := splitURI(prefix)
	if err != nil {
		return nil, err
	}
	if key != "" && !strings.HasSuffix(key, "/") {
		key += "/"
	}

	var prefixes []string
	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{
		Prefix:    key,
		Delimiter: "/",
	})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classifyGCSError("list", prefix, err)
		}
		if attrs.Prefix != "" {
			prefixes = append(prefixes, fmt.Sprintf("gs://%s/%s", bucket, attrs.Prefix))
		}
	}
	return prefixes, nil
}

// Stat implements ObjectStore.
func (s *GCSStore) Stat(ctx context.Context, path string) (ObjectInfo, error) {
	bucket, key, err := splitURI(path)
	if err != nil {
		return ObjectInfo{}, err
	}

	attrs, err := s.client.Bucket(bucket).Object(key).Attrs(ctx)
	if err != nil {
		return ObjectInfo{}, classifyGCSError("stat", path, err)
	}
	return ObjectInfo{Path: path, Size: attrs.Size, Updated: attrs.Updated}, nil
}

func classifyGCSError(op, path string, err error) error {
	switch {
	case errors.Is(err, storage.ErrObjectNotExist), errors.Is(err, storage.ErrBucketNotExist):
		return &lenserr.NotFoundError{Kind: "object", Name: path}
	case strings.Contains(err.Error(), "403"), strings.Contains(err.Error(), "Forbidden"):
		return &lenserr.PermissionError{Path: path, Err: err}
	default:
		return lenserr.FromRead(op, path, err)
	}
}
