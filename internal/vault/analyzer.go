package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"notegraph/internal/graph"
	"notegraph/pkg/errors"
	"notegraph/pkg/logger"
)

// Extractor is the external text-understanding collaborator
type Extractor interface {
	Extract(ctx context.Context, notePath, content string) (*graph.Batch, error)
}

// Stats summarizes one analysis pass
type Stats struct {
	Analyzed       int  `json:"analyzed"`
	Skipped        int  `json:"skipped"`
	Failed         int  `json:"failed"`
	NodesAdded     int  `json:"nodes_added"`
	RelationsAdded int  `json:"relationships_added"`
	NotesForgotten int  `json:"notes_forgotten"`
	Cancelled      bool `json:"cancelled"`
}

// Analyzer runs extraction over the vault and merges the results. It owns
// the bulk-pass guard: one whole-vault pass at a time, and per-note triggers
// no-op while a bulk pass runs instead of racing it.
type Analyzer struct {
	store     *graph.Store
	source    Source
	extractor Extractor

	bulkRunning atomic.Bool
	cancelMu    sync.Mutex
	cancelBulk  context.CancelFunc
	single      singleflight.Group
	logger      *zap.Logger
}

// NewAnalyzer creates an analyzer over the given store, source, and extractor
func NewAnalyzer(store *graph.Store, source Source, extractor Extractor) *Analyzer {
	return &Analyzer{
		store:     store,
		source:    source,
		extractor: extractor,
		logger:    logger.Named("vault"),
	}
}

// BulkRunning reports whether a whole-vault pass is in flight
func (a *Analyzer) BulkRunning() bool {
	return a.bulkRunning.Load()
}

// CancelBulk cancels the in-flight whole-vault pass, if any. Returns whether
// a pass was there to cancel.
func (a *Analyzer) CancelBulk() bool {
	a.cancelMu.Lock()
	cancel := a.cancelBulk
	a.cancelMu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// AnalyzeAll analyzes every note in the vault. Notes whose content hash is
// unchanged are skipped; notes that vanished from the vault have their
// contribution withdrawn. Cancellation is cooperative: the context is
// checked once per note, so in-flight work for the current note always
// completes. Returns ErrScanInProgress if a bulk pass is already running.
func (a *Analyzer) AnalyzeAll(ctx context.Context) (*Stats, error) {
	if !a.bulkRunning.CompareAndSwap(false, true) {
		return nil, errors.ErrScanInProgress
	}
	defer a.bulkRunning.Store(false)

	// The analyzer owns the cancel handle for its own pass so callers on
	// other goroutines can stop it through CancelBulk.
	ctx, cancel := context.WithCancel(ctx)
	a.cancelMu.Lock()
	a.cancelBulk = cancel
	a.cancelMu.Unlock()
	defer func() {
		a.cancelMu.Lock()
		a.cancelBulk = nil
		a.cancelMu.Unlock()
		cancel()
	}()

	paths, err := a.source.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	present := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		present[path] = struct{}{}
	}

	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		if err := a.analyzeNote(ctx, path, stats); err != nil {
			stats.Failed++
			a.logger.Error("Note analysis failed",
				zap.String("note", path),
				zap.Error(err),
			)
		}
	}
	// Cancellation during the final note would slip past the loop check.
	if ctx.Err() != nil {
		stats.Cancelled = true
	}

	if !stats.Cancelled {
		for _, path := range a.hashedPaths() {
			if _, ok := present[path]; ok {
				continue
			}
			nodes, edges := graph.RemoveNote(a.store, path)
			a.store.DeleteNoteHash(path)
			stats.NotesForgotten++
			a.logger.Info("Withdrew vanished note",
				zap.String("note", path),
				zap.Int("nodes_removed", nodes),
				zap.Int("edges_removed", edges),
			)
		}
	}

	if err := a.store.Flush(ctx); err != nil {
		a.logger.Error("Flush after bulk analysis failed", zap.Error(err))
	}

	a.logger.Info("Vault analysis finished",
		zap.Int("analyzed", stats.Analyzed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Bool("cancelled", stats.Cancelled),
	)
	return stats, nil
}

// AnalyzeNote analyzes a single note, typically on a save event. It defers
// (no-ops) while a bulk pass runs, and concurrent triggers for the same path
// collapse into one execution.
func (a *Analyzer) AnalyzeNote(ctx context.Context, path string) (*Stats, error) {
	if a.bulkRunning.Load() {
		a.logger.Debug("Deferring note analysis, bulk pass running",
			zap.String("note", path),
		)
		return &Stats{Skipped: 1}, nil
	}

	v, err, _ := a.single.Do(path, func() (interface{}, error) {
		stats := &Stats{}
		if err := a.analyzeNote(ctx, path, stats); err != nil {
			return nil, err
		}
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Stats), nil
}

// ForgetNote withdraws a note's contribution, e.g. when it is deleted
func (a *Analyzer) ForgetNote(ctx context.Context, path string) (nodesRemoved, edgesRemoved int) {
	nodesRemoved, edgesRemoved = graph.RemoveNote(a.store, path)
	a.store.DeleteNoteHash(path)
	a.logger.Info("Note contribution withdrawn",
		zap.String("note", path),
		zap.Int("nodes_removed", nodesRemoved),
		zap.Int("edges_removed", edgesRemoved),
	)
	return nodesRemoved, edgesRemoved
}

func (a *Analyzer) analyzeNote(ctx context.Context, path string, stats *Stats) error {
	content, err := a.source.Read(ctx, path)
	if err != nil {
		return err
	}

	hash := contentHash(content)
	if old, ok := a.store.NoteHash(path); ok && old == hash {
		stats.Skipped++
		return nil
	}

	batch, err := a.extractor.Extract(ctx, path, content)
	if err != nil {
		return err
	}

	// Replace the note's previous contribution rather than stacking on it.
	graph.RemoveNote(a.store, path)
	result := graph.MergeExtraction(a.store, path, batch)

	if links := a.source.Links(ctx, path, content); len(links) > 0 {
		stats.RelationsAdded += graph.MergeLinks(a.store, path, links)
	}

	a.store.SetNoteHash(path, hash)
	stats.Analyzed++
	stats.NodesAdded += result.NodesAdded
	stats.RelationsAdded += result.RelationsAdded

	a.logger.Debug("Note merged",
		zap.String("note", path),
		zap.Int("nodes_added", result.NodesAdded),
		zap.Int("relationships_added", result.RelationsAdded),
	)
	return nil
}

func (a *Analyzer) hashedPaths() []string {
	return a.store.HashedNotes()
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
