// Package sample reads bounded row samples out of a table's data files.
package sample

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/icelens/icelens/lenserr"
	"github.com/icelens/icelens/metrics"
	"github.com/icelens/icelens/scan"
	"github.com/icelens/icelens/spec"
	"github.com/icelens/icelens/store"
)

// MaxFilesToAttempt bounds how many files one sample request will
// open, whether or not the row limit is satisfied.
const MaxFilesToAttempt = 10

// DefaultLimit is the row limit when the caller passes none.
const DefaultLimit = 10

// FileNameColumn is the pseudo-column carrying the source file of each
// sampled row. Always first in the column list.
const FileNameColumn = "_file_name"

// RowReader decodes rows from one file format. Implementations stop
// at the limit but may return fewer rows.
type RowReader interface {
	ReadRows(ctx context.Context, data []byte, limit int) (columns []string, rows []map[string]any, err error)
}

// Scope selects what to sample: a whole snapshot (current when
// SnapshotID is empty), one manifest, or one data file. The narrowest
// populated field wins.
type Scope struct {
	SnapshotID   string
	ManifestPath string
	FilePath     string
}

// Result is a bounded row sample.
type Result struct {
	Rows      []map[string]any `json:"rows"`
	Columns   []string         `json:"columns"`
	TotalRows int              `json:"totalRows"`
	FilesRead int              `json:"filesRead"`
	Message   string           `json:"message,omitempty"`
}

// Sampler resolves a scope to candidate files and reads rows until the
// limit is hit.
type Sampler struct {
	store   store.ObjectStore
	planner *scan.Planner
	log     *slog.Logger
	readers map[spec.FileFormat]RowReader
}

// NewSampler creates a sampler with the parquet reader registered.
func NewSampler(s store.ObjectStore, p *scan.Planner, log *slog.Logger) *Sampler {
	if log == nil {
		log = slog.Default()
	}
	return &Sampler{
		store:   s,
		planner: p,
		log:     log,
		readers: map[spec.FileFormat]RowReader{
			spec.FileFormatParquet: ParquetReader{},
		},
	}
}

// Register adds or replaces the reader for a file format.
func (s *Sampler) Register(format spec.FileFormat, r RowReader) {
	s.readers[format] = r
}

type candidate struct {
	path   string
	format spec.FileFormat
}

// Sample reads up to limit rows from the files the scope resolves to.
// Files are read in order; reads stop as soon as the limit is
// satisfied, and a file that fails to read is skipped, not fatal.
func (s *Sampler) Sample(ctx context.Context, meta *spec.TableMetadata, scope Scope, limit int) (*Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	candidates, err := s.candidates(ctx, meta, scope)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Rows:    []map[string]any{},
		Columns: []string{},
	}

	attempted := 0
	for _, c := range candidates {
		if len(result.Rows) >= limit {
			break
		}
		if attempted >= MaxFilesToAttempt {
			s.log.Warn("file attempt limit reached before row limit",
				"attempted", attempted, "rows", len(result.Rows))
			break
		}
		attempted++

		reader, ok := s.readers[c.format]
		if !ok {
			s.log.Warn("no reader for file format", "format", c.format, "path", c.path)
			continue
		}

		data, err := s.store.Read(ctx, c.path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			s.log.Warn("skipping unreadable data file", "path", c.path, "error", err)
			continue
		}

		columns, rows, err := reader.ReadRows(ctx, data, limit-len(result.Rows))
		if err != nil {
			s.log.Warn("skipping undecodable data file", "path", c.path, "error", err)
			continue
		}

		short := spec.ShortPath(c.path)
		for _, row := range rows {
			row[FileNameColumn] = short
		}
		result.Rows = append(result.Rows, rows...)
		if len(result.Columns) == 0 && len(columns) > 0 {
			result.Columns = append([]string{FileNameColumn}, columns...)
		}
		result.FilesRead++
	}

	metrics.SampleFilesRead.Observe(float64(result.FilesRead))
	result.TotalRows = len(result.Rows)
	if result.TotalRows == 0 {
		result.Message = "No data found"
	}
	return result, nil
}

func (s *Sampler) candidates(ctx context.Context, meta *spec.TableMetadata, scope Scope) ([]candidate, error) {
	if scope.FilePath != "" {
		return []candidate{{path: scope.FilePath, format: formatForPath(scope.FilePath)}}, nil
	}

	if scope.ManifestPath != "" {
		manifest, err := s.planner.Manifest(ctx, scope.ManifestPath)
		if err != nil {
			return nil, err
		}
		var out []candidate
		for _, entry := range manifest.LiveEntries() {
			out = append(out, candidate{path: entry.DataFile.FilePath, format: entry.DataFile.FileFormat})
		}
		return out, nil
	}

	var snap *spec.Snapshot
	if scope.SnapshotID != "" {
		id, err := strconv.ParseInt(scope.SnapshotID, 10, 64)
		if err != nil {
			return nil, &lenserr.NotFoundError{Kind: "snapshot", Name: scope.SnapshotID}
		}
		if snap = meta.SnapshotByID(id); snap == nil {
			return nil, &lenserr.NotFoundError{Kind: "snapshot", Name: scope.SnapshotID}
		}
	} else if snap = meta.CurrentSnapshot(); snap == nil {
		return nil, nil
	}

	plan, err := s.planner.Snapshot(ctx, meta, snap)
	if err != nil {
		return nil, err
	}
	var out []candidate
	for _, ref := range plan.LiveFiles() {
		out = append(out, candidate{path: ref.File.FilePath, format: ref.File.FileFormat})
	}
	return out, nil
}

func formatForPath(path string) spec.FileFormat {
	switch {
	case strings.HasSuffix(path, ".avro"):
		return spec.FileFormatAvro
	case strings.HasSuffix(path, ".orc"):
		return spec.FileFormatORC
	default:
		return spec.FileFormatParquet
	}
}
