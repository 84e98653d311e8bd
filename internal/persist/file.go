// Package persist implements the external persistence collaborator: one
// opaque JSON blob, loaded and saved at whole-graph granularity.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"notegraph/internal/graph"
	"notegraph/pkg/errors"
	"notegraph/pkg/logger"
)

// File persists the graph snapshot as a single JSON file, written atomically
// via a temp file and rename
type File struct {
	path   string
	logger *zap.Logger
}

// NewFile creates a file-backed persister at the given path
func NewFile(path string) *File {
	return &File{
		path:   path,
		logger: logger.Named("persist"),
	}
}

// Save writes the snapshot to disk
func (f *File) Save(ctx context.Context, snap *graph.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.NewSaveFailed(f.path, err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return errors.NewSaveFailed(f.path, err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.NewSaveFailed(f.path, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return errors.NewSaveFailed(f.path, err)
	}

	f.logger.Debug("Graph persisted",
		zap.String("path", f.path),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// Load reads the snapshot from disk. A missing file yields a nil snapshot.
// A blob matching an older schema generation is not migrated field by field:
// the graph and the note-hash history are discarded wholesale, forcing full
// re-extraction, and the returned snapshot carries LegacyDiscarded so the
// caller can surface the loss. Settings survive the discard.
func (f *File) Load(ctx context.Context) (*graph.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewLoadFailed(f.path, err)
	}

	if legacy, why := detectLegacy(data); legacy {
		f.logger.Warn("Discarding graph persisted under an older schema; all notes will re-extract",
			zap.String("path", f.path),
			zap.String("reason", why),
		)
		snap := &graph.Snapshot{LegacyDiscarded: true}
		// Keep settings if they parse; only the graph and hashes are dropped.
		var partial struct {
			Settings map[string]interface{} `json:"settings"`
		}
		if err := json.Unmarshal(data, &partial); err == nil {
			snap.Settings = partial.Settings
		}
		return snap, nil
	}

	var snap graph.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.NewLoadFailed(f.path, err)
	}
	return &snap, nil
}

// detectLegacy structurally recognizes blobs from the previous schema
// generation: its nodes carried a closed-set "type" field and no
// "properties" object, versus the current open-ended "label" plus
// "properties". Version numbers below the current generation also count.
func detectLegacy(data []byte) (bool, string) {
	var probe struct {
		Graph struct {
			Version int `json:"version"`
			Nodes   []struct {
				Type       string                 `json:"type"`
				Label      string                 `json:"label"`
				Properties map[string]interface{} `json:"properties"`
			} `json:"nodes"`
		} `json:"graph"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		// Undecodable blobs are handled by the strict decode in Load.
		return false, ""
	}

	if probe.Graph.Version != 0 && probe.Graph.Version < graph.SchemaVersion {
		return true, fmt.Sprintf("version %d < %d", probe.Graph.Version, graph.SchemaVersion)
	}
	for _, n := range probe.Graph.Nodes {
		if n.Type != "" && n.Label == "" && n.Properties == nil {
			return true, "nodes carry closed-set type without properties"
		}
	}
	return false, ""
}
