// Package scan walks a snapshot's manifest list and manifests to
// produce its data file closure.
package scan

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/icelens/icelens/lenserr"
	"github.com/icelens/icelens/metrics"
	"github.com/icelens/icelens/spec"
	"github.com/icelens/icelens/store"
)

// DefaultConcurrency bounds the manifest decode fan-out.
const DefaultConcurrency = 8

// ManifestScan is the outcome of decoding one manifest.
type ManifestScan struct {
	// File is the manifest list entry pointing at the manifest.
	File spec.ManifestFile

	// Manifest is the decoded content, nil when decoding failed.
	Manifest *spec.Manifest

	// Spec is the partition spec the manifest's files were written
	// under.
	Spec spec.PartitionSpec

	// Err is the decode failure, nil on success.
	Err error
}

// Result is a snapshot's decoded manifest closure. Manifest order
// follows the manifest list; entry order within each manifest follows
// the file.
type Result struct {
	Snapshot  *spec.Snapshot
	Manifests []ManifestScan
	Warnings  []string
}

// LiveFiles returns every live data file in the closure, with the
// partition spec it was written under.
func (r *Result) LiveFiles() []FileRef {
	var files []FileRef
	for _, ms := range r.Manifests {
		if ms.Manifest == nil {
			continue
		}
		for _, entry := range ms.Manifest.LiveEntries() {
			files = append(files, FileRef{File: entry.DataFile, Spec: ms.Spec})
		}
	}
	return files
}

// FileRef pairs a data file with its partition spec.
type FileRef struct {
	File spec.DataFile
	Spec spec.PartitionSpec
}

// Planner decodes snapshot closures off an object store.
type Planner struct {
	store       store.ObjectStore
	log         *slog.Logger
	concurrency int
}

// NewPlanner creates a planner. Concurrency <= 0 selects the default.
func NewPlanner(s store.ObjectStore, log *slog.Logger, concurrency int) *Planner {
	if log == nil {
		log = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Planner{store: s, log: log, concurrency: concurrency}
}

// Snapshot decodes the full manifest closure of one snapshot. A
// manifest that fails to decode is recorded as a warning; the result
// is an error only when the manifest list is unreadable or every
// manifest fails.
func (p *Planner) Snapshot(ctx context.Context, meta *spec.TableMetadata, snap *spec.Snapshot) (*Result, error) {
	manifestFiles, err := p.ManifestList(ctx, snap.ManifestList)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Snapshot:  snap,
		Manifests: make([]ManifestScan, len(manifestFiles)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, mf := range manifestFiles {
		g.Go(func() error {
			scan := ManifestScan{File: mf, Spec: partitionSpecFor(meta, mf.PartitionSpecID)}
			manifest, err := p.Manifest(gctx, mf.ManifestPath)
			if err != nil {
				metrics.ManifestDecodes.WithLabelValues("error").Inc()
				scan.Err = err
			} else {
				metrics.ManifestDecodes.WithLabelValues("ok").Inc()
				scan.Manifest = manifest
			}
			result.Manifests[i] = scan
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	for _, ms := range result.Manifests {
		if ms.Err != nil {
			failed++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("manifest %s: %v", ms.File.ManifestPath, ms.Err))
			p.log.Warn("manifest decode failed",
				"manifest", ms.File.ManifestPath, "error", ms.Err)
		}
	}
	if len(manifestFiles) > 0 && failed == len(manifestFiles) {
		return nil, &lenserr.DecodeError{
			Path: snap.ManifestList,
			Err:  fmt.Errorf("all %d manifests failed to decode", failed),
		}
	}

	return result, nil
}

// ManifestList reads and decodes one manifest list file.
func (p *Planner) ManifestList(ctx context.Context, path string) ([]spec.ManifestFile, error) {
	data, err := p.store.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	manifests, err := spec.ReadManifestList(bytes.NewReader(data))
	if err != nil {
		return nil, &lenserr.DecodeError{Path: path, Err: err}
	}
	return manifests, nil
}

// Manifest reads and decodes one manifest file.
func (p *Planner) Manifest(ctx context.Context, path string) (*spec.Manifest, error) {
	data, err := p.store.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	manifest, err := spec.ReadManifest(bytes.NewReader(data))
	if err != nil {
		return nil, &lenserr.DecodeError{Path: path, Err: err}
	}
	return manifest, nil
}

func partitionSpecFor(meta *spec.TableMetadata, specID int) spec.PartitionSpec {
	if meta != nil {
		if ps := meta.PartitionSpecByID(specID); ps != nil {
			return *ps
		}
	}
	return spec.UnpartitionedSpec()
}
