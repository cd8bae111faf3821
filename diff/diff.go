// Package diff compares the data file closures of two snapshots.
package diff

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/icelens/icelens/lenserr"
	"github.com/icelens/icelens/scan"
	"github.com/icelens/icelens/spec"
	"github.com/icelens/icelens/stats"
)

// FileInfo is the per-file view carried in diff reports.
type FileInfo struct {
	FilePath        string            `json:"filePath"`
	FileFormat      string            `json:"fileFormat"`
	Partition       map[string]string `json:"partition,omitempty"`
	RecordCount     int64             `json:"recordCount"`
	FileSizeInBytes int64             `json:"fileSizeInBytes"`
}

// Changes holds the stat deltas of a modified file.
type Changes struct {
	SizeDelta   int64 `json:"sizeDelta"`
	RecordDelta int64 `json:"recordDelta"`
}

// ModifiedFile is a path present in both snapshots with differing stats.
type ModifiedFile struct {
	FilePath string   `json:"filePath"`
	Before   FileInfo `json:"before"`
	After    FileInfo `json:"after"`
	Changes  Changes  `json:"changes"`
}

// SnapshotInfo identifies one side of the comparison. Snapshot ids are
// strings to survive JSON number precision.
type SnapshotInfo struct {
	SnapshotID   string            `json:"snapshotId"`
	Timestamp    string            `json:"timestamp"`
	Summary      map[string]string `json:"summary"`
	ManifestList string            `json:"manifestList"`
}

// Delta is the whole-closure stat difference, second minus first.
type Delta struct {
	Files   int   `json:"files"`
	Records int64 `json:"records"`
	Size    int64 `json:"size"`
}

// Statistics pairs both closure aggregates with their delta.
type Statistics struct {
	Snapshot1 stats.Totals `json:"snapshot1"`
	Snapshot2 stats.Totals `json:"snapshot2"`
	Delta     Delta        `json:"delta"`
}

// Summary counts the classified files.
type Summary struct {
	AddedCount    int `json:"addedCount"`
	RemovedCount  int `json:"removedCount"`
	ModifiedCount int `json:"modifiedCount"`
}

// Report is a full snapshot comparison.
type Report struct {
	Snapshot1     *SnapshotInfo  `json:"snapshot1"`
	Snapshot2     *SnapshotInfo  `json:"snapshot2"`
	AddedFiles    []FileInfo     `json:"addedFiles"`
	RemovedFiles  []FileInfo     `json:"removedFiles"`
	ModifiedFiles []ModifiedFile `json:"modifiedFiles"`
	Statistics    Statistics     `json:"statistics"`
	Summary       Summary        `json:"summary"`
	Warnings      []string       `json:"warnings,omitempty"`
}

// Engine compares snapshots over a planner.
type Engine struct {
	planner *scan.Planner
}

// NewEngine creates a diff engine.
func NewEngine(p *scan.Planner) *Engine {
	return &Engine{planner: p}
}

// Compare diffs the closures of two snapshots identified by their
// string ids. An empty first id means the start of history, an empty
// closure. The second id must name a snapshot of the table.
func (e *Engine) Compare(ctx context.Context, meta *spec.TableMetadata, id1, id2 string) (*Report, error) {
	snap2, err := findSnapshot(meta, id2)
	if err != nil {
		return nil, err
	}

	var snap1 *spec.Snapshot
	if id1 != "" {
		if snap1, err = findSnapshot(meta, id1); err != nil {
			return nil, err
		}
	}

	var (
		files1, files2 []FileInfo
		warns1, warns2 []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if snap1 == nil {
			return nil
		}
		var err error
		files1, warns1, err = e.closure(gctx, meta, snap1)
		return err
	})
	g.Go(func() error {
		var err error
		files2, warns2, err = e.closure(gctx, meta, snap2)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byPath1 := make(map[string]FileInfo, len(files1))
	for _, f := range files1 {
		byPath1[f.FilePath] = f
	}
	byPath2 := make(map[string]FileInfo, len(files2))
	for _, f := range files2 {
		byPath2[f.FilePath] = f
	}

	report := &Report{
		Snapshot1:     snapshotInfo(snap1),
		Snapshot2:     snapshotInfo(snap2),
		AddedFiles:    []FileInfo{},
		RemovedFiles:  []FileInfo{},
		ModifiedFiles: []ModifiedFile{},
		Warnings:      append(warns1, warns2...),
	}

	for _, after := range files2 {
		before, ok := byPath1[after.FilePath]
		if !ok {
			report.AddedFiles = append(report.AddedFiles, after)
			continue
		}
		if before.FileSizeInBytes != after.FileSizeInBytes || before.RecordCount != after.RecordCount {
			report.ModifiedFiles = append(report.ModifiedFiles, ModifiedFile{
				FilePath: after.FilePath,
				Before:   before,
				After:    after,
				Changes: Changes{
					SizeDelta:   after.FileSizeInBytes - before.FileSizeInBytes,
					RecordDelta: after.RecordCount - before.RecordCount,
				},
			})
		}
	}
	for _, before := range files1 {
		if _, ok := byPath2[before.FilePath]; !ok {
			report.RemovedFiles = append(report.RemovedFiles, before)
		}
	}

	stats1 := totals(files1)
	stats2 := totals(files2)
	report.Statistics = Statistics{
		Snapshot1: stats1,
		Snapshot2: stats2,
		Delta: Delta{
			Files:   stats2.FileCount - stats1.FileCount,
			Records: stats2.RecordCount - stats1.RecordCount,
			Size:    stats2.TotalSize - stats1.TotalSize,
		},
	}
	report.Summary = Summary{
		AddedCount:    len(report.AddedFiles),
		RemovedCount:  len(report.RemovedFiles),
		ModifiedCount: len(report.ModifiedFiles),
	}
	return report, nil
}

func (e *Engine) closure(ctx context.Context, meta *spec.TableMetadata, snap *spec.Snapshot) ([]FileInfo, []string, error) {
	result, err := e.planner.Snapshot(ctx, meta, snap)
	if err != nil {
		return nil, nil, err
	}
	refs := result.LiveFiles()
	files := make([]FileInfo, 0, len(refs))
	for _, ref := range refs {
		files = append(files, FileInfo{
			FilePath:        ref.File.FilePath,
			FileFormat:      string(ref.File.FileFormat),
			Partition:       ref.File.Tuple(ref.Spec).AsMap(),
			RecordCount:     ref.File.RecordCount,
			FileSizeInBytes: ref.File.FileSizeInBytes,
		})
	}
	return files, result.Warnings, nil
}

func totals(files []FileInfo) stats.Totals {
	var t stats.Totals
	for _, f := range files {
		t.FileCount++
		t.RecordCount += f.RecordCount
		t.TotalSize += f.FileSizeInBytes
	}
	return t
}

func findSnapshot(meta *spec.TableMetadata, id string) (*spec.Snapshot, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, &lenserr.NotFoundError{Kind: "snapshot", Name: id}
	}
	snap := meta.SnapshotByID(n)
	if snap == nil {
		return nil, &lenserr.NotFoundError{Kind: "snapshot", Name: id}
	}
	return snap, nil
}

func snapshotInfo(snap *spec.Snapshot) *SnapshotInfo {
	if snap == nil {
		return &SnapshotInfo{SnapshotID: "", Summary: map[string]string{}}
	}
	info := &SnapshotInfo{
		SnapshotID:   strconv.FormatInt(snap.SnapshotID, 10),
		Timestamp:    time.UnixMilli(snap.TimestampMs).UTC().Format(time.RFC3339),
		Summary:      map[string]string{},
		ManifestList: snap.ManifestList,
	}
	if snap.Summary != nil {
		info.Summary = snap.Summary.AsMap()
	}
	return info
}
