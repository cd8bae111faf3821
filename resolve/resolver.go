// Package resolve locates and parses table metadata files.
package resolve

import (
	"context"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/icelens/icelens/lenserr"
	"github.com/icelens/icelens/metrics"
	"github.com/icelens/icelens/spec"
	"github.com/icelens/icelens/store"
)

// MaxHistoryDepth bounds how many metadata versions a history walk
// will load for one table.
const MaxHistoryDepth = 100

// Metadata is one resolved metadata.json version.
type Metadata struct {
	// Path is the full URI of the metadata file.
	Path string

	// Version parsed from the filename, or -1 when the filename does
	// not carry one.
	Version int

	// Updated is the store modification time, used to order versions
	// when filenames carry none.
	Updated time.Time

	// Table is the parsed content.
	Table *spec.TableMetadata
}

// VersionKey returns the cache key component for this version.
func (m *Metadata) VersionKey() string {
	if m.Version >= 0 {
		return strconv.Itoa(m.Version)
	}
	return path.Base(m.Path)
}

// Resolver finds the metadata files of a table and parses them.
type Resolver struct {
	store store.ObjectStore
	cache *Cache
	log   *slog.Logger
}

// NewResolver creates a resolver over the given store.
func NewResolver(s store.ObjectStore, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		store: s,
		cache: NewCache(),
		log:   log,
	}
}

// Invalidate drops cached metadata for a table, forcing re-reads.
func (r *Resolver) Invalidate(location string) {
	r.cache.Invalidate(location)
}

// hive-style v{N}.metadata.json and the object-store naming
// {NNNNN}-{uuid}.metadata.json
var (
	versionedName = regexp.MustCompile(`^v(\d+)\.metadata\.json$`)
	numberedName  = regexp.MustCompile(`^(\d+)-[0-9a-fA-F-]+\.metadata\.json$`)
)

// ParseVersion extracts the version number from a metadata file name.
func ParseVersion(name string) (int, bool) {
	if m := versionedName.FindStringSubmatch(name); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	if m := numberedName.FindStringSubmatch(name); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	return 0, false
}

// MetadataPrefix returns the metadata directory URI of a table location.
func MetadataPrefix(location string) string {
	return strings.TrimSuffix(location, "/") + "/metadata/"
}

// listVersions enumerates the metadata files of a table, newest first.
func (r *Resolver) listVersions(ctx context.Context, location string) ([]Metadata, error) {
	infos, err := r.store.List(ctx, MetadataPrefix(location))
	if err != nil {
		return nil, err
	}

	var versions []Metadata
	for _, info := range infos {
		name := path.Base(info.Path)
		if !strings.HasSuffix(name, ".metadata.json") {
			continue
		}
		v := Metadata{Path: info.Path, Version: -1, Updated: info.Updated}
		if n, ok := ParseVersion(name); ok {
			v.Version = n
		}
		versions = append(versions, v)
	}

	if len(versions) == 0 {
		return nil, &lenserr.InvalidTableError{
			Location: location,
			Reason:   "no metadata files under " + MetadataPrefix(location),
		}
	}

	sort.Slice(versions, func(i, j int) bool {
		a, b := versions[i], versions[j]
		if a.Version != b.Version {
			return a.Version > b.Version
		}
		if !a.Updated.Equal(b.Updated) {
			return a.Updated.After(b.Updated)
		}
		return a.Path > b.Path
	})
	return versions, nil
}

// load parses one metadata file, consulting the cache first.
func (r *Resolver) load(ctx context.Context, location string, v Metadata) (*Metadata, error) {
	if cached, ok := r.cache.Get(location, v.VersionKey()); ok {
		metrics.MetadataCacheHits.Inc()
		return cached, nil
	}
	metrics.MetadataCacheMisses.Inc()

	data, err := r.store.Read(ctx, v.Path)
	if err != nil {
		return nil, err
	}
	table, err := spec.ParseTableMetadata(data)
	if err != nil {
		return nil, &lenserr.InvalidTableError{Location: location, Reason: "bad metadata file " + v.Path, Err: err}
	}

	resolved := &Metadata{
		Path:    v.Path,
		Version: v.Version,
		Updated: v.Updated,
		Table:   table,
	}
	r.cache.Put(location, resolved.VersionKey(), resolved)
	return resolved, nil
}

// Latest resolves the current metadata version of a table.
func (r *Resolver) Latest(ctx context.Context, location string) (*Metadata, error) {
	versions, err := r.listVersions(ctx, location)
	if err != nil {
		return nil, err
	}
	return r.load(ctx, location, versions[0])
}

// Version resolves one explicit metadata version of a table.
func (r *Resolver) Version(ctx context.Context, location string, version int) (*Metadata, error) {
	versions, err := r.listVersions(ctx, location)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.Version == version {
			return r.load(ctx, location, v)
		}
	}
	return nil, &lenserr.NotFoundError{Kind: "metadata version", Name: strconv.Itoa(version)}
}

// History resolves up to limit metadata versions, newest first. The
// walk starts from the listed files and follows metadata-log and
// previous-metadata-file links to versions the listing missed, with
// cycle detection. Broken links are logged and skipped.
func (r *Resolver) History(ctx context.Context, location string, limit int) ([]*Metadata, error) {
	if limit <= 0 || limit > MaxHistoryDepth {
		limit = MaxHistoryDepth
	}

	versions, err := r.listVersions(ctx, location)
	if err != nil {
		return nil, err
	}

	visited := make(map[string]bool)
	queue := make([]Metadata, 0, len(versions))
	for _, v := range versions {
		queue = append(queue, v)
	}

	var history []*Metadata
	for len(queue) > 0 && len(history) < limit {
		v := queue[0]
		queue = queue[1:]
		if visited[v.Path] {
			continue
		}
		visited[v.Path] = true

		m, err := r.load(ctx, location, v)
		if err != nil {
			if len(history) == 0 && len(queue) == 0 {
				return nil, err
			}
			r.log.Warn("skipping unreadable metadata version",
				"location", location, "path", v.Path, "error", err)
			continue
		}
		history = append(history, m)

		// Chase back links the listing did not surface.
		for _, entry := range m.Table.MetadataLog {
			if entry.MetadataFile != "" && !visited[entry.MetadataFile] {
				queue = append(queue, linkedVersion(entry.MetadataFile))
			}
		}
		if prev := m.Table.PreviousMetadataFile; prev != "" && !visited[prev] {
			queue = append(queue, linkedVersion(prev))
		}
	}

	sort.Slice(history, func(i, j int) bool {
		a, b := history[i], history[j]
		if a.Version != b.Version {
			return a.Version > b.Version
		}
		return a.Table.LastUpdatedMs > b.Table.LastUpdatedMs
	})
	return history, nil
}

func linkedVersion(metadataPath string) Metadata {
	v := Metadata{Path: metadataPath, Version: -1}
	if n, ok := ParseVersion(path.Base(metadataPath)); ok {
		v.Version = n
	}
	return v
}
