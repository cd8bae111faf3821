package store

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/icelens/icelens/lenserr"
)

// LocalStore serves file:// URIs off the local filesystem. Intended
// for development and tests against unpacked table directories.
type LocalStore struct{}

// NewLocalStore creates a filesystem-backed store.
func NewLocalStore() *LocalStore {
	return &LocalStore{}
}

// Scheme implements ObjectStore.
func (s *LocalStore) Scheme() string { return "file" }

func localPath(uri string) string {
	p := strings.TrimPrefix(uri, "file://")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// Read implements ObjectStore.
func (s *LocalStore) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, lenserr.FromRead("read", path, err)
	}
	data, err := os.ReadFile(localPath(path))
	if err != nil {
		return nil, classifyLocalError(path, err)
	}
	return data, nil
}

// List implements ObjectStore.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	root := localPath(prefix)
	var objects []ObjectInfo
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{
			Path:    "file://" + p,
			Size:    info.Size(),
			Updated: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, classifyLocalError(prefix, err)
	}
	return objects, nil
}

// ListPrefixes implements ObjectStore.
func (s *LocalStore) ListPrefixes(ctx context.Context, prefix string) ([]string, error) {
	root := localPath(prefix)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, classifyLocalError(prefix, err)
	}

	var prefixes []string
	for _, e := range entries {
		if e.IsDir() {
			prefixes = append(prefixes, fmt.Sprintf("file://%s/", filepath.Join(root, e.Name())))
		}
	}
	return prefixes, nil
}

// Stat implements ObjectStore.
func (s *LocalStore) Stat(ctx context.Context, path string) (ObjectInfo, error) {
	info, err := os.Stat(localPath(path))
	if err != nil {
		return ObjectInfo{}, classifyLocalError(path, err)
	}
	return ObjectInfo{Path: path, Size: info.Size(), Updated: info.ModTime()}, nil
}

func classifyLocalError(path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return &lenserr.NotFoundError{Kind: "object", Name: path}
	case os.IsPermission(err):
		return &lenserr.PermissionError{Path: path, Err: err}
	default:
		return err
	}
}
