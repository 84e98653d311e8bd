package vault

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notegraph/internal/graph"
	"notegraph/pkg/errors"
)

type nopPersister struct{}

func (nopPersister) Save(ctx context.Context, snap *graph.Snapshot) error { return nil }
func (nopPersister) Load(ctx context.Context) (*graph.Snapshot, error)    { return nil, nil }

// fakeSource serves notes from a map and returns pre-resolved links.
type fakeSource struct {
	notes map[string]string
	links map[string][]string
}

func (s *fakeSource) List(ctx context.Context) ([]string, error) {
	paths := make([]string, 0, len(s.notes))
	for p := range s.notes {
		paths = append(paths, p)
	}
	return paths, nil
}

func (s *fakeSource) Read(ctx context.Context, path string) (string, error) {
	content, ok := s.notes[path]
	if !ok {
		return "", errors.NewNoteNotFound(path, nil)
	}
	return content, nil
}

func (s *fakeSource) Links(ctx context.Context, path, content string) []string {
	return s.links[path]
}

// fakeExtractor returns one canned batch per note and counts invocations.
type fakeExtractor struct {
	batches map[string]*graph.Batch
	fail    map[string]error
	calls   map[string]int
}

func (e *fakeExtractor) Extract(ctx context.Context, notePath, content string) (*graph.Batch, error) {
	if e.calls == nil {
		e.calls = make(map[string]int)
	}
	e.calls[notePath]++
	if err := e.fail[notePath]; err != nil {
		return nil, err
	}
	batch, ok := e.batches[notePath]
	if !ok {
		return &graph.Batch{}, nil
	}
	return batch, nil
}

func singleNodeBatch(label, name string) *graph.Batch {
	return &graph.Batch{Nodes: []graph.RawNode{{ID: "n1", Label: label, Name: name}}}
}

func newTestAnalyzer(t *testing.T, src *fakeSource, ext Extractor) (*Analyzer, *graph.Store) {
	t.Helper()
	store := graph.NewStore(nopPersister{}, time.Minute)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return NewAnalyzer(store, src, ext), store
}

func TestAnalyzeAll_MergesEveryNote(t *testing.T) {
	src := &fakeSource{notes: map[string]string{
		"a.md": "about alpha",
		"b.md": "about beta",
	}}
	ext := &fakeExtractor{batches: map[string]*graph.Batch{
		"a.md": singleNodeBatch("Concept", "alpha"),
		"b.md": singleNodeBatch("Concept", "beta"),
	}}
	a, store := newTestAnalyzer(t, src, ext)

	stats, err := a.AnalyzeAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Analyzed)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, 2, stats.NodesAdded)
	assert.False(t, stats.Cancelled)
	assert.Equal(t, 2, store.NodeCount())
	assert.False(t, a.BulkRunning())
}

func TestAnalyzeAll_SkipsUnchangedContent(t *testing.T) {
	src := &fakeSource{notes: map[string]string{"a.md": "stable content"}}
	ext := &fakeExtractor{batches: map[string]*graph.Batch{
		"a.md": singleNodeBatch("Concept", "alpha"),
	}}
	a, _ := newTestAnalyzer(t, src, ext)

	_, err := a.AnalyzeAll(context.Background())
	require.NoError(t, err)

	stats, err := a.AnalyzeAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Analyzed)
	assert.Equal(t, 1, stats.Skipped)
	// The extractor was not consulted the second time around.
	assert.Equal(t, 1, ext.calls["a.md"])
}

func TestAnalyzeAll_ChangedContentReplacesContribution(t *testing.T) {
	src := &fakeSource{notes: map[string]string{"a.md": "v1"}}
	ext := &fakeExtractor{batches: map[string]*graph.Batch{
		"a.md": singleNodeBatch("Concept", "alpha"),
	}}
	a, store := newTestAnalyzer(t, src, ext)

	_, err := a.AnalyzeAll(context.Background())
	require.NoError(t, err)

	// The note now yields a different node; the old one must be withdrawn.
	src.notes["a.md"] = "v2"
	ext.batches["a.md"] = singleNodeBatch("Concept", "omega")

	stats, err := a.AnalyzeAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Analyzed)
	assert.Equal(t, 1, store.NodeCount())
	assert.Nil(t, store.NodeByName("alpha"))
	assert.NotNil(t, store.NodeByName("omega"))
}

func TestAnalyzeAll_FailedNoteDoesNotAbortPass(t *testing.T) {
	src := &fakeSource{notes: map[string]string{
		"bad.md":  "boom",
		"good.md": "fine",
	}}
	ext := &fakeExtractor{
		batches: map[string]*graph.Batch{"good.md": singleNodeBatch("Concept", "alpha")},
		fail:    map[string]error{"bad.md": errors.NewExtractionFailed("test-model", 3, nil)},
	}
	a, store := newTestAnalyzer(t, src, ext)

	stats, err := a.AnalyzeAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Analyzed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, store.NodeCount())
}

func TestAnalyzeAll_SingleFlightGuard(t *testing.T) {
	a, _ := newTestAnalyzer(t, &fakeSource{}, &fakeExtractor{})

	a.bulkRunning.Store(true)
	_, err := a.AnalyzeAll(context.Background())
	assert.ErrorIs(t, err, errors.ErrScanInProgress)

	// The failed attempt must not clear the running pass's guard.
	assert.True(t, a.BulkRunning())
	a.bulkRunning.Store(false)
}

func TestAnalyzeAll_CancellationIsCooperative(t *testing.T) {
	src := &fakeSource{notes: map[string]string{
		"a.md": "x", "b.md": "y", "c.md": "z",
	}}
	ext := &fakeExtractor{}
	a, _ := newTestAnalyzer(t, src, ext)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := a.AnalyzeAll(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Cancelled)
	assert.Equal(t, 0, stats.Analyzed)
	assert.False(t, a.BulkRunning())
}

// blockingExtractor parks in Extract until cancelled, signalling entry once.
type blockingExtractor struct {
	started chan struct{}
	once    sync.Once
}

func (e *blockingExtractor) Extract(ctx context.Context, notePath, content string) (*graph.Batch, error) {
	e.once.Do(func() { close(e.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCancelBulk_StopsRunningPass(t *testing.T) {
	src := &fakeSource{notes: map[string]string{
		"a.md": "x", "b.md": "y", "c.md": "z",
	}}
	ext := &blockingExtractor{started: make(chan struct{})}
	a, _ := newTestAnalyzer(t, src, ext)

	done := make(chan *Stats, 1)
	go func() {
		stats, err := a.AnalyzeAll(context.Background())
		assert.NoError(t, err)
		done <- stats
	}()

	select {
	case <-ext.started:
	case <-time.After(time.Second):
		t.Fatal("bulk pass never reached the extractor")
	}
	assert.True(t, a.CancelBulk())

	select {
	case stats := <-done:
		assert.True(t, stats.Cancelled)
	case <-time.After(time.Second):
		t.Fatal("bulk pass did not stop after cancellation")
	}
	assert.False(t, a.BulkRunning())
}

func TestCancelBulk_IdleIsNoOp(t *testing.T) {
	a, _ := newTestAnalyzer(t, &fakeSource{}, &fakeExtractor{})
	assert.False(t, a.CancelBulk())
}

func TestAnalyzeAll_WithdrawsVanishedNotes(t *testing.T) {
	src := &fakeSource{notes: map[string]string{"kept.md": "still here"}}
	ext := &fakeExtractor{batches: map[string]*graph.Batch{
		"kept.md": singleNodeBatch("Concept", "alpha"),
	}}
	a, store := newTestAnalyzer(t, src, ext)

	// A note analyzed in an earlier pass no longer exists in the vault.
	graph.MergeExtraction(store, "gone.md", singleNodeBatch("Concept", "ghost"))
	store.SetNoteHash("gone.md", "stale")

	stats, err := a.AnalyzeAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.NotesForgotten)
	assert.Nil(t, store.NodeByName("ghost"))
	_, ok := store.NoteHash("gone.md")
	assert.False(t, ok)
	assert.NotNil(t, store.NodeByName("alpha"))
}

func TestAnalyzeAll_MaterializesLinks(t *testing.T) {
	src := &fakeSource{
		notes: map[string]string{"a.md": "links to [[b]]", "b.md": "plain"},
		links: map[string][]string{"a.md": {"b.md"}},
	}
	ext := &fakeExtractor{batches: map[string]*graph.Batch{
		"a.md": singleNodeBatch("Concept", "alpha"),
		"b.md": singleNodeBatch("Concept", "beta"),
	}}
	a, store := newTestAnalyzer(t, src, ext)

	// Two passes: the first may see a.md before b.md has any nodes.
	_, err := a.AnalyzeAll(context.Background())
	require.NoError(t, err)
	src.notes["a.md"] = "links to [[b]] again"

	stats, err := a.AnalyzeAll(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, stats.RelationsAdded, 1)
	require.Equal(t, 1, store.EdgeCount())
	edge := store.Edges()[0]
	assert.Equal(t, graph.RelationRelatedTo, edge.Type)
	assert.Equal(t, graph.CrossRefDetail, edge.Detail())
	assert.Equal(t, "a.md", edge.SourceNote)
}

func TestAnalyzeNote_DefersWhileBulkRuns(t *testing.T) {
	ext := &fakeExtractor{}
	a, _ := newTestAnalyzer(t, &fakeSource{notes: map[string]string{"a.md": "x"}}, ext)

	a.bulkRunning.Store(true)
	defer a.bulkRunning.Store(false)

	stats, err := a.AnalyzeNote(context.Background(), "a.md")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, ext.calls["a.md"])
}

func TestAnalyzeNote_SingleNote(t *testing.T) {
	src := &fakeSource{notes: map[string]string{"a.md": "about alpha"}}
	ext := &fakeExtractor{batches: map[string]*graph.Batch{
		"a.md": singleNodeBatch("Concept", "alpha"),
	}}
	a, store := newTestAnalyzer(t, src, ext)

	stats, err := a.AnalyzeNote(context.Background(), "a.md")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Analyzed)
	assert.Equal(t, 1, stats.NodesAdded)
	assert.NotNil(t, store.NodeByName("alpha"))
}

func TestAnalyzeNote_PropagatesReadError(t *testing.T) {
	a, _ := newTestAnalyzer(t, &fakeSource{}, &fakeExtractor{})

	_, err := a.AnalyzeNote(context.Background(), "missing.md")
	assert.Error(t, err)
}

func TestForgetNote(t *testing.T) {
	a, store := newTestAnalyzer(t, &fakeSource{}, &fakeExtractor{})

	graph.MergeExtraction(store, "a.md", singleNodeBatch("Concept", "alpha"))
	store.SetNoteHash("a.md", "abc")

	nodes, edges := a.ForgetNote(context.Background(), "a.md")
	assert.Equal(t, 1, nodes)
	assert.Equal(t, 0, edges)
	assert.Nil(t, store.NodeByName("alpha"))
	_, ok := store.NoteHash("a.md")
	assert.False(t, ok)
}
