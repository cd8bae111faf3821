// Package graph assembles table metadata into a lazily expandable
// Table, Metadata, Snapshot, ManifestList, Manifest, DataFile tree.
package graph

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/icelens/icelens/lenserr"
	"github.com/icelens/icelens/resolve"
	"github.com/icelens/icelens/scan"
	"github.com/icelens/icelens/spec"
)

// Kind is the node type tag.
type Kind string

const (
	KindTable          Kind = "table"
	KindMetadata       Kind = "metadata"
	KindSnapshot       Kind = "snapshot"
	KindManifestList   Kind = "manifestList"
	KindManifest       Kind = "manifest"
	KindPartitionGroup Kind = "partitionGroup"
	KindDataFile       Kind = "dataFile"
)

// Preview bounds keep an expanded subtree readable: unpartitioned
// manifests show a bounded list of direct files, partitioned manifests
// a bounded number of partitions with a bounded file preview each.
const (
	MaxDirectFiles       = 10
	MaxPartitionGroups   = 5
	MaxFilesPerPartition = 5
)

// Node is one vertex of the tree. Children are nil until the node is
// expanded.
type Node struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	Label      string         `json:"label"`
	Attrs      map[string]any `json:"attrs,omitempty"`
	Children   []*Node        `json:"children,omitempty"`
	Expandable bool           `json:"expandable"`

	// Error records a per-node decode failure; the node stays in the
	// tree so siblings remain visible.
	Error string `json:"error,omitempty"`

	expanded bool
}

// Builder owns a node arena and the lazy-population closures that
// fill in children on demand.
type Builder struct {
	planner *scan.Planner

	mu     sync.Mutex
	nodes  map[string]*Node
	expand map[string]func(ctx context.Context, n *Node) error
}

// NewBuilder creates a builder over the given planner.
func NewBuilder(planner *scan.Planner) *Builder {
	return &Builder{
		planner: planner,
		nodes:   make(map[string]*Node),
		expand:  make(map[string]func(ctx context.Context, n *Node) error),
	}
}

func (b *Builder) register(n *Node, fn func(ctx context.Context, n *Node) error) *Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes[n.ID] = n
	if fn != nil {
		n.Expandable = true
		b.expand[n.ID] = fn
	}
	return n
}

// Node looks up an arena node by id.
func (b *Builder) Node(id string) (*Node, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.nodes[id]
	return n, ok
}

// Expand materializes the children of one node. Expanding an already
// expanded node is a no-op; expanding an unknown id is NotFoundError.
func (b *Builder) Expand(ctx context.Context, id string) (*Node, error) {
	b.mu.Lock()
	n, ok := b.nodes[id]
	fn := b.expand[id]
	b.mu.Unlock()

	if !ok {
		return nil, &lenserr.NotFoundError{Kind: "graph node", Name: id}
	}
	if n.expanded || fn == nil {
		return n, nil
	}
	if err := fn(ctx, n); err != nil {
		return nil, err
	}
	n.expanded = true
	return n, nil
}

// ExpandDeep expands a node and every descendant. Per-node failures
// are recorded on the failing node; the walk continues.
func (b *Builder) ExpandDeep(ctx context.Context, id string) (*Node, error) {
	n, err := b.Expand(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, child := range n.Children {
		if !child.Expandable {
			continue
		}
		if _, err := b.ExpandDeep(ctx, child.ID); err != nil {
			child.Error = err.Error()
		}
	}
	return n, nil
}

// Build assembles the table root from resolved metadata versions,
// newest first; versions[0] is the current version. Each metadata node
// attaches only the snapshots reachable from its own
// current-snapshot-id, so historical nodes reconstruct what the table
// looked like at that version. Snapshots are ordered oldest to newest.
func (b *Builder) Build(location string, versions []*resolve.Metadata) *Node {
	root := b.register(&Node{
		ID:    "table:" + location,
		Kind:  KindTable,
		Label: tableName(location),
		Attrs: map[string]any{"location": location},
	}, nil)

	for i, ver := range versions {
		root.Children = append(root.Children, b.buildMetadata(ver, i == 0))
	}
	root.expanded = true
	return root
}

func (b *Builder) buildMetadata(ver *resolve.Metadata, current bool) *Node {
	attrs := map[string]any{
		"path":          ver.Path,
		"formatVersion": int(ver.Table.FormatVersion),
		"lastUpdatedMs": ver.Table.LastUpdatedMs,
		"current":       current,
	}
	if ver.Version >= 0 {
		attrs["version"] = ver.Version
	}
	if id := ver.Table.CurrentSnapshotID; id != nil {
		attrs["currentSnapshotId"] = strconv.FormatInt(*id, 10)
	}

	node := b.register(&Node{
		ID:    "metadata:" + ver.Path,
		Kind:  KindMetadata,
		Label: pathBase(ver.Path),
		Attrs: attrs,
	}, nil)
	node.expanded = true

	if ver.Table.CurrentSnapshotID == nil {
		return node
	}
	snaps := ver.Table.Ancestors(*ver.Table.CurrentSnapshotID)
	for i := range snaps {
		node.Children = append(node.Children, b.buildSnapshot(ver, &snaps[i]))
	}
	return node
}

func (b *Builder) buildSnapshot(ver *resolve.Metadata, snap *spec.Snapshot) *Node {
	id := strconv.FormatInt(snap.SnapshotID, 10)
	attrs := map[string]any{
		"snapshotId": id,
		"timestamp":  time.UnixMilli(snap.TimestampMs).UTC().Format(time.RFC3339),
	}
	if snap.ParentSnapshotID != nil {
		attrs["parentSnapshotId"] = strconv.FormatInt(*snap.ParentSnapshotID, 10)
	}
	if snap.Summary != nil {
		attrs["operation"] = string(snap.Summary.Operation)
		attrs["summary"] = snap.Summary.AsMap()
	}

	node := b.register(&Node{
		ID:    fmt.Sprintf("snapshot:%s#%s", ver.Path, id),
		Kind:  KindSnapshot,
		Label: id,
		Attrs: attrs,
	}, nil)
	node.expanded = true

	node.Children = append(node.Children, b.buildManifestList(ver, snap))
	return node
}

func (b *Builder) buildManifestList(ver *resolve.Metadata, snap *spec.Snapshot) *Node {
	meta := ver.Table
	listPath := snap.ManifestList
	node := &Node{
		ID:    fmt.Sprintf("manifestlist:%s#%d", listPath, snap.SnapshotID),
		Kind:  KindManifestList,
		Label: pathBase(listPath),
		Attrs: map[string]any{"path": listPath},
	}
	return b.register(node, func(ctx context.Context, n *Node) error {
		manifests, err := b.planner.ManifestList(ctx, listPath)
		if err != nil {
			return err
		}
		for _, mf := range manifests {
			n.Children = append(n.Children, b.buildManifest(meta, n.ID, mf))
		}
		return nil
	})
}

func (b *Builder) buildManifest(meta *spec.TableMetadata, parentID string, mf spec.ManifestFile) *Node {
	node := &Node{
		ID:    fmt.Sprintf("manifest:%s@%s", mf.ManifestPath, parentID),
		Kind:  KindManifest,
		Label: pathBase(mf.ManifestPath),
		Attrs: map[string]any{
			"path":            mf.ManifestPath,
			"length":          mf.ManifestLength,
			"partitionSpecId": mf.PartitionSpecID,
			"content":         mf.Content.String(),
			"addedFiles":      mf.AddedFilesCount,
			"existingFiles":   mf.ExistingFilesCount,
			"deletedFiles":    mf.DeletedFilesCount,
		},
	}
	return b.register(node, func(ctx context.Context, n *Node) error {
		manifest, err := b.planner.Manifest(ctx, mf.ManifestPath)
		if err != nil {
			return err
		}
		ps := spec.UnpartitionedSpec()
		if meta != nil {
			if found := meta.PartitionSpecByID(mf.PartitionSpecID); found != nil {
				ps = *found
			}
		}
		n.Children = b.fileChildren(n.ID, manifest, ps)
		return nil
	})
}

// fileChildren shapes a manifest's live entries for display: direct
// file nodes when unpartitioned, partition groups with bounded file
// previews otherwise.
func (b *Builder) fileChildren(parentID string, manifest *spec.Manifest, ps spec.PartitionSpec) []*Node {
	live := manifest.LiveEntries()

	if ps.IsUnpartitioned() {
		var children []*Node
		for i, entry := range live {
			if i >= MaxDirectFiles {
				break
			}
			children = append(children, b.fileNode(parentID, entry.DataFile, ps))
		}
		if len(live) > MaxDirectFiles {
			children[len(children)-1].Attrs["truncated"] = len(live) - MaxDirectFiles
		}
		return children
	}

	groups := make(map[string][]spec.DataFile)
	var order []string
	for _, entry := range live {
		key := entry.DataFile.Tuple(ps).Canonical()
		if key == "" {
			key = "Unpartitioned"
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], entry.DataFile)
	}
	sort.Strings(order)

	var children []*Node
	for i, key := range order {
		if i >= MaxPartitionGroups {
			break
		}
		files := groups[key]
		group := b.register(&Node{
			ID:    fmt.Sprintf("partition:%s@%s", key, parentID),
			Kind:  KindPartitionGroup,
			Label: key,
			Attrs: map[string]any{
				"fileCount":           len(files),
				"totalPartitionCount": len(order),
			},
		}, nil)
		group.expanded = true
		for j, df := range files {
			if j >= MaxFilesPerPartition {
				break
			}
			group.Children = append(group.Children, b.fileNode(group.ID, df, ps))
		}
		children = append(children, group)
	}
	return children
}

func (b *Builder) fileNode(parentID string, df spec.DataFile, ps spec.PartitionSpec) *Node {
	attrs := map[string]any{
		"path":            df.FilePath,
		"format":          string(df.FileFormat),
		"recordCount":     df.RecordCount,
		"fileSizeInBytes": df.FileSizeInBytes,
	}
	if pm := df.Tuple(ps).AsMap(); pm != nil {
		attrs["partition"] = pm
	}
	node := b.register(&Node{
		ID:    fmt.Sprintf("file:%s@%s", df.FilePath, parentID),
		Kind:  KindDataFile,
		Label: df.FileName(),
		Attrs: attrs,
	}, nil)
	node.expanded = true
	return node
}

func tableName(location string) string {
	return pathBase(strings.TrimSuffix(location, "/"))
}

func pathBase(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
