// Package icelens inspects Apache Iceberg tables in place: it resolves
// table metadata straight from object storage, decodes manifest files,
// and reports snapshots, partitions and sample rows without a catalog.
package icelens

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/icelens/icelens/diff"
	"github.com/icelens/icelens/graph"
	"github.com/icelens/icelens/lenserr"
	"github.com/icelens/icelens/resolve"
	"github.com/icelens/icelens/sample"
	"github.com/icelens/icelens/scan"
	"github.com/icelens/icelens/spec"
	"github.com/icelens/icelens/stats"
	"github.com/icelens/icelens/store"
)

// SchemaField is one column of the table schema, rendered for display.
type SchemaField struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Doc      string `json:"doc,omitempty"`
}

// PartitionSpecField is one field of the default partition spec.
type PartitionSpecField struct {
	FieldID   int    `json:"fieldId"`
	SourceID  int    `json:"sourceId"`
	Name      string `json:"name"`
	Transform string `json:"transform"`
}

// SortOrderField is one field of the default sort order.
type SortOrderField struct {
	OrderID     int    `json:"orderId"`
	Direction   string `json:"direction"`
	NullOrder   string `json:"nullOrder"`
	SortFieldID int    `json:"sortFieldId"`
}

// MetadataFile is one metadata.json version of the table.
type MetadataFile struct {
	File              string `json:"file"`
	Version           int    `json:"version"`
	Timestamp         int64  `json:"timestamp"`
	CurrentSnapshotID string `json:"currentSnapshotId,omitempty"`
	Current           bool   `json:"current"`
}

// SnapshotDelta is the change relative to the parent snapshot. For a
// root snapshot the delta equals the snapshot's own totals.
type SnapshotDelta struct {
	AddedFiles   int   `json:"addedFiles"`
	AddedRecords int64 `json:"addedRecords"`
	AddedSize    int64 `json:"addedSize"`
}

// SnapshotStatistics aggregates the live data files of one snapshot.
type SnapshotStatistics struct {
	FileCount   int           `json:"fileCount"`
	RecordCount int64         `json:"recordCount"`
	TotalSize   int64         `json:"totalSize"`
	Delta       SnapshotDelta `json:"delta"`
}

// SnapshotReport is one snapshot of the table. Ids are strings so
// 19-digit values survive JSON consumers that read numbers as floats.
type SnapshotReport struct {
	SnapshotID       string              `json:"snapshotId"`
	SequenceNumber   int64               `json:"sequenceNumber"`
	Timestamp        string              `json:"timestamp"`
	Operation        string              `json:"operation,omitempty"`
	Summary          map[string]string   `json:"summary,omitempty"`
	ManifestList     string              `json:"manifestList"`
	ParentSnapshotID string              `json:"parentSnapshotId,omitempty"`
	Statistics       *SnapshotStatistics `json:"statistics,omitempty"`
}

// TableStatistics aggregates the current snapshot.
type TableStatistics struct {
	TotalFiles      int   `json:"totalFiles"`
	TotalRecords    int64 `json:"totalRecords"`
	TotalSize       int64 `json:"totalSize"`
	TotalPartitions int   `json:"totalPartitions"`
}

// TableReport is the full analyze response.
type TableReport struct {
	TableName         string               `json:"tableName"`
	Location          string               `json:"location"`
	FormatVersion     int                  `json:"formatVersion"`
	Schema            []SchemaField        `json:"schema"`
	PartitionSpec     []PartitionSpecField `json:"partitionSpec"`
	SortOrder         []SortOrderField     `json:"sortOrder"`
	Properties        map[string]string    `json:"properties"`
	CurrentSnapshotID string               `json:"currentSnapshotId,omitempty"`
	Snapshots         []SnapshotReport     `json:"snapshots"`
	PartitionStats    []stats.Bucket       `json:"partitionStats"`
	Statistics        TableStatistics      `json:"statistics"`
	MetadataFiles     []MetadataFile       `json:"metadataFiles"`
	Graph             *graph.Node          `json:"graph"`
	Warnings          []string             `json:"warnings,omitempty"`
}

// SnapshotDetail is one snapshot with its manifest tree fully expanded.
type SnapshotDetail struct {
	Snapshot SnapshotReport `json:"snapshot"`
	Tree     *graph.Node    `json:"tree"`
}

// Table is one discovered table location.
type Table struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Path     string `json:"path"`
}

// Discovery lists the tables found under a storage prefix.
type Discovery struct {
	Tables []Table `json:"tables"`
	Count  int     `json:"count"`
}

// Option configures an Explorer.
type Option func(*Explorer)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(e *Explorer) { e.log = log }
}

// WithConcurrency bounds concurrent manifest reads per scan.
func WithConcurrency(n int) Option {
	return func(e *Explorer) { e.concurrency = n }
}

// Explorer is the top-level inspection engine over one object store.
type Explorer struct {
	store       store.ObjectStore
	log         *slog.Logger
	concurrency int

	resolver *resolve.Resolver
	planner  *scan.Planner
	differ   *diff.Engine
	sampler  *sample.Sampler
}

// New creates an Explorer over the given store.
func New(s store.ObjectStore, opts ...Option) *Explorer {
	e := &Explorer{
		store:       s,
		log:         slog.Default(),
		concurrency: scan.DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resolver = resolve.NewResolver(s, e.log)
	e.planner = scan.NewPlanner(s, e.log, e.concurrency)
	e.differ = diff.NewEngine(e.planner)
	e.sampler = sample.NewSampler(s, e.planner, e.log)
	return e
}

// Refresh drops cached metadata for a table so the next request
// re-reads it from storage.
func (e *Explorer) Refresh(location string) {
	e.resolver.Invalidate(location)
}

// Analyze builds the full table report. With history, every reachable
// metadata version is loaded and attached to the graph; otherwise only
// the latest.
func (e *Explorer) Analyze(ctx context.Context, location string, history bool) (*TableReport, error) {
	var versions []*resolve.Metadata
	if history {
		var err error
		versions, err = e.resolver.History(ctx, location, resolve.MaxHistoryDepth)
		if err != nil {
			return nil, err
		}
	} else {
		cur, err := e.resolver.Latest(ctx, location)
		if err != nil {
			return nil, err
		}
		versions = []*resolve.Metadata{cur}
	}
	return e.report(ctx, location, versions)
}

// AnalyzeVersion builds the table report for one explicit metadata
// version instead of the latest.
func (e *Explorer) AnalyzeVersion(ctx context.Context, location string, version int) (*TableReport, error) {
	v, err := e.resolver.Version(ctx, location, version)
	if err != nil {
		return nil, err
	}
	return e.report(ctx, location, []*resolve.Metadata{v})
}

func (e *Explorer) report(ctx context.Context, location string, versions []*resolve.Metadata) (*TableReport, error) {
	cur := versions[0]
	meta := cur.Table

	report := &TableReport{
		TableName:     tableName(location),
		Location:      meta.Location,
		FormatVersion: int(meta.FormatVersion),
		Schema:        schemaFields(meta.CurrentSchema()),
		PartitionSpec: partitionSpecFields(meta.DefaultPartitionSpec()),
		SortOrder:     sortOrderFields(meta.DefaultSortOrder()),
		Properties:    meta.Properties,
		MetadataFiles: metadataFiles(versions),
	}
	if report.Location == "" {
		report.Location = location
	}
	if report.Properties == nil {
		report.Properties = map[string]string{}
	}
	if id := meta.CurrentSnapshotID; id != nil {
		report.CurrentSnapshotID = strconv.FormatInt(*id, 10)
	}

	report.Snapshots, report.Warnings = e.snapshotReports(ctx, meta)

	if snap := meta.CurrentSnapshot(); snap != nil {
		plan, err := e.planner.Snapshot(ctx, meta, snap)
		if err != nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("partition stats unavailable: %v", err))
		} else {
			files := plan.LiveFiles()
			report.PartitionStats = stats.Aggregate(files)
			totals := stats.Total(files)
			report.Statistics = TableStatistics{
				TotalFiles:      totals.FileCount,
				TotalRecords:    totals.RecordCount,
				TotalSize:       totals.TotalSize,
				TotalPartitions: len(report.PartitionStats),
			}
		}
	}
	if report.PartitionStats == nil {
		report.PartitionStats = []stats.Bucket{}
	}

	report.Graph = graph.NewBuilder(e.planner).Build(location, versions)
	return report, nil
}

// snapshotReports builds per-snapshot statistics in metadata order.
// Each snapshot's closure is scanned once; the delta compares against
// the parent's closure when the parent is present in the same file.
func (e *Explorer) snapshotReports(ctx context.Context, meta *spec.TableMetadata) ([]SnapshotReport, []string) {
	reports := make([]SnapshotReport, 0, len(meta.Snapshots))
	var warnings []string

	closures := make(map[int64]stats.Totals)
	for i := range meta.Snapshots {
		snap := &meta.Snapshots[i]
		r := SnapshotReport{
			SnapshotID:     strconv.FormatInt(snap.SnapshotID, 10),
			SequenceNumber: snap.SequenceNumber,
			Timestamp:      time.UnixMilli(snap.TimestampMs).UTC().Format(time.RFC3339),
			ManifestList:   snap.ManifestList,
		}
		if snap.ParentSnapshotID != nil {
			r.ParentSnapshotID = strconv.FormatInt(*snap.ParentSnapshotID, 10)
		}
		if snap.Summary != nil {
			r.Operation = string(snap.Summary.Operation)
			r.Summary = snap.Summary.AsMap()
		}

		plan, err := e.planner.Snapshot(ctx, meta, snap)
		if err != nil {
			warnings = append(warnings,
				fmt.Sprintf("snapshot %d: %v", snap.SnapshotID, err))
			reports = append(reports, r)
			continue
		}
		warnings = append(warnings, plan.Warnings...)

		totals := stats.Total(plan.LiveFiles())
		closures[snap.SnapshotID] = totals

		st := &SnapshotStatistics{
			FileCount:   totals.FileCount,
			RecordCount: totals.RecordCount,
			TotalSize:   totals.TotalSize,
		}
		if snap.ParentSnapshotID != nil {
			if prev, ok := closures[*snap.ParentSnapshotID]; ok {
				st.Delta = SnapshotDelta{
					AddedFiles:   totals.FileCount - prev.FileCount,
					AddedRecords: totals.RecordCount - prev.RecordCount,
					AddedSize:    totals.TotalSize - prev.TotalSize,
				}
				r.Statistics = st
				reports = append(reports, r)
				continue
			}
		}
		st.Delta = SnapshotDelta{
			AddedFiles:   totals.FileCount,
			AddedRecords: totals.RecordCount,
			AddedSize:    totals.TotalSize,
		}
		r.Statistics = st
		reports = append(reports, r)
	}
	return reports, warnings
}

// AnalyzeSnapshot expands one snapshot down to its data files.
func (e *Explorer) AnalyzeSnapshot(ctx context.Context, location, snapshotID string) (*SnapshotDetail, error) {
	cur, err := e.resolver.Latest(ctx, location)
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(snapshotID, 10, 64)
	if err != nil {
		return nil, &lenserr.NotFoundError{Kind: "snapshot", Name: snapshotID}
	}
	snap := cur.Table.SnapshotByID(id)
	if snap == nil {
		return nil, &lenserr.NotFoundError{Kind: "snapshot", Name: snapshotID}
	}

	b := graph.NewBuilder(e.planner)
	b.Build(location, []*resolve.Metadata{cur})
	nodeID := fmt.Sprintf("snapshot:%s#%s", cur.Path, snapshotID)
	node, err := b.ExpandDeep(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	reports, _ := e.snapshotReports(ctx, cur.Table)
	detail := &SnapshotDetail{Tree: node}
	for _, r := range reports {
		if r.SnapshotID == snapshotID {
			detail.Snapshot = r
			break
		}
	}
	return detail, nil
}

// Compare diffs the data-file closures of two snapshots.
func (e *Explorer) Compare(ctx context.Context, location, id1, id2 string) (*diff.Report, error) {
	cur, err := e.resolver.Latest(ctx, location)
	if err != nil {
		return nil, err
	}
	return e.differ.Compare(ctx, cur.Table, id1, id2)
}

// Sample reads up to limit rows from the table.
func (e *Explorer) Sample(ctx context.Context, location string, scope sample.Scope, limit int) (*sample.Result, error) {
	cur, err := e.resolver.Latest(ctx, location)
	if err != nil {
		return nil, err
	}
	return e.sampler.Sample(ctx, cur.Table, scope, limit)
}

// Discover scans a storage prefix for Iceberg tables. A table is any
// path with metadata json files under a metadata/ directory.
func (e *Explorer) Discover(ctx context.Context, prefix string) (*Discovery, error) {
	objects, err := e.store.List(ctx, strings.TrimSuffix(prefix, "/")+"/")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	result := &Discovery{Tables: []Table{}}
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Path, ".metadata.json") {
			continue
		}
		tablePath, _, ok := strings.Cut(obj.Path, "/metadata/")
		if !ok || seen[tablePath] {
			continue
		}
		seen[tablePath] = true
		result.Tables = append(result.Tables, Table{
			Name:     tableName(tablePath),
			Location: tablePath,
			Path:     strings.TrimPrefix(tablePath, schemePrefix(tablePath)),
		})
	}
	sort.Slice(result.Tables, func(i, j int) bool {
		return result.Tables[i].Path < result.Tables[j].Path
	})
	result.Count = len(result.Tables)
	return result, nil
}

func schemaFields(s *spec.Schema) []SchemaField {
	if s == nil {
		return []SchemaField{}
	}
	out := make([]SchemaField, 0, len(s.Fields))
	for _, f := range s.Fields {
		typ := ""
		if f.Type != nil {
			typ = f.Type.String()
		}
		out = append(out, SchemaField{
			ID:       f.ID,
			Name:     f.Name,
			Type:     typ,
			Required: f.Required,
			Doc:      f.Doc,
		})
	}
	return out
}

func partitionSpecFields(ps *spec.PartitionSpec) []PartitionSpecField {
	if ps == nil {
		return []PartitionSpecField{}
	}
	out := make([]PartitionSpecField, 0, len(ps.Fields))
	for _, f := range ps.Fields {
		out = append(out, PartitionSpecField{
			FieldID:   f.FieldID,
			SourceID:  f.SourceID,
			Name:      f.Name,
			Transform: f.Transform,
		})
	}
	return out
}

func sortOrderFields(so *spec.SortOrder) []SortOrderField {
	if so == nil {
		return []SortOrderField{}
	}
	out := make([]SortOrderField, 0, len(so.Fields))
	for _, f := range so.Fields {
		out = append(out, SortOrderField{
			OrderID:     so.OrderID,
			Direction:   string(f.Direction),
			NullOrder:   string(f.NullOrder),
			SortFieldID: f.SourceID,
		})
	}
	return out
}

func metadataFiles(versions []*resolve.Metadata) []MetadataFile {
	out := make([]MetadataFile, 0, len(versions))
	for i, v := range versions {
		mf := MetadataFile{
			File:      v.Path,
			Version:   v.Version,
			Timestamp: v.Table.LastUpdatedMs,
			Current:   i == 0,
		}
		if id := v.Table.CurrentSnapshotID; id != nil {
			mf.CurrentSnapshotID = strconv.FormatInt(*id, 10)
		}
		out = append(out, mf)
	}
	return out
}

func tableName(location string) string {
	trimmed := strings.TrimSuffix(location, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

func schemePrefix(location string) string {
	scheme, rest, ok := strings.Cut(location, "://")
	if !ok {
		return ""
	}
	bucket, _, _ := strings.Cut(rest, "/")
	return scheme + "://" + bucket + "/"
}
