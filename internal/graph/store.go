package graph

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"notegraph/pkg/logger"
)

// ============================================================================
// Indexed Store
// ============================================================================

// DefaultSaveDebounce is the coalescing window for persistence. Mutations
// arrive in bursts of dozens of writes per analyzed note; persisting per
// write would be wasteful I/O.
const DefaultSaveDebounce = time.Second

// Store holds the canonical node/edge collections and the derived indexes
// that keep every lookup used by the merge and query engines O(1) amortized.
// The original design is single-writer; the RWMutex exists because the tool
// surface serves concurrent readers over HTTP.
type Store struct {
	mu sync.RWMutex

	nodes map[string]*Node
	edges map[string]*Edge

	nodesByLabel map[string]map[string]struct{} // label -> node ids
	nodesByNote  map[string]map[string]struct{} // note path -> node ids
	nodeIDByName map[string]string              // normalized name -> node id

	edgesBySource map[string]map[string]struct{} // source node id -> edge ids
	edgesByTarget map[string]map[string]struct{} // target node id -> edge ids
	edgesByNote   map[string]map[string]struct{} // note path -> edge ids

	settings map[string]interface{}
	hashes   map[string]string // note path -> content hash

	persister Persister
	saver     *saveScheduler
	dirty     bool
	logger    *zap.Logger
}

// NewStore creates an empty store persisting through the given collaborator.
// A zero debounce falls back to DefaultSaveDebounce.
func NewStore(persister Persister, debounce time.Duration) *Store {
	if debounce <= 0 {
		debounce = DefaultSaveDebounce
	}
	s := &Store{
		nodes:         make(map[string]*Node),
		edges:         make(map[string]*Edge),
		nodesByLabel:  make(map[string]map[string]struct{}),
		nodesByNote:   make(map[string]map[string]struct{}),
		nodeIDByName:  make(map[string]string),
		edgesBySource: make(map[string]map[string]struct{}),
		edgesByTarget: make(map[string]map[string]struct{}),
		edgesByNote:   make(map[string]map[string]struct{}),
		settings:      make(map[string]interface{}),
		hashes:        make(map[string]string),
		persister:     persister,
		logger:        logger.Named("graph"),
	}
	s.saver = newSaveScheduler(debounce, func() {
		if err := s.Flush(context.Background()); err != nil {
			s.logger.Error("Debounced save failed", zap.Error(err))
		}
	})
	return s
}

// ============================================================================
// Node Operations
// ============================================================================

// AddNode inserts a node, or merges it in place if a node with the same id
// already exists. Identity (id, created-at) is preserved on merge; every
// index touched by the previous version is cleaned before re-indexing.
func (s *Store) AddNode(node *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.nodes[node.ID]; ok {
		node.CreatedAt = existing.CreatedAt
		s.deindexNodeLocked(existing)
	}
	s.nodes[node.ID] = node
	s.indexNodeLocked(node)
	s.markDirtyLocked()
}

// UpdateNode re-indexes a node known to exist. Falls back to AddNode
// semantics if the id is in fact new.
func (s *Store) UpdateNode(node *Node) {
	s.AddNode(node)
}

// RemoveNode removes a node from all indexes and cascades removal of every
// edge where it is source or target. Returns whether anything was removed.
func (s *Store) RemoveNode(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return false
	}

	for _, edgeID := range s.incidentEdgeIDsLocked(id) {
		s.removeEdgeLocked(edgeID)
	}

	s.deindexNodeLocked(node)
	delete(s.nodes, id)
	s.markDirtyLocked()
	return true
}

// GetNode returns the node with the given id, or nil
func (s *Store) GetNode(id string) *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[id]
}

// NodeByName resolves a node by case-insensitive name match across all labels
func (s *Store) NodeByName(name string) *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.nodeIDByName[NormalizeName(name)]; ok {
		return s.nodes[id]
	}
	return nil
}

// NodesByLabel returns all nodes carrying the given label
func (s *Store) NodesByLabel(label string) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectNodesLocked(s.nodesByLabel[label])
}

// NodesByNote returns all nodes attributed to the given note path
func (s *Store) NodesByNote(path string) []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectNodesLocked(s.nodesByNote[path])
}

// Nodes returns every node in the store
func (s *Store) Nodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	return out
}

// NodeCount returns the number of nodes
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// ============================================================================
// Edge Operations
// ============================================================================

// AddEdge inserts an edge. A no-op if an edge with the same id exists:
// edges are create-once, the first writer's detail and properties persist
// for the lifetime of the triple.
func (s *Store) AddEdge(edge *Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.edges[edge.ID]; ok {
		return
	}
	s.edges[edge.ID] = edge
	s.indexEdgeLocked(edge)
	s.markDirtyLocked()
}

// RemoveEdge removes an edge from all indexes. Returns whether anything was
// removed.
func (s *Store) RemoveEdge(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.removeEdgeLocked(id) {
		return false
	}
	s.markDirtyLocked()
	return true
}

// GetEdge returns the edge with the given id, or nil
func (s *Store) GetEdge(id string) *Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edges[id]
}

// EdgesBySource returns all edges originating at the given node
func (s *Store) EdgesBySource(nodeID string) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectEdgesLocked(s.edgesBySource[nodeID])
}

// EdgesByTarget returns all edges arriving at the given node
func (s *Store) EdgesByTarget(nodeID string) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectEdgesLocked(s.edgesByTarget[nodeID])
}

// EdgesByNote returns all edges originated by the given note path
func (s *Store) EdgesByNote(path string) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectEdgesLocked(s.edgesByNote[path])
}

// Edges returns every edge in the store
func (s *Store) Edges() []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e)
	}
	return out
}

// EdgeCount returns the number of edges
func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// ============================================================================
// Settings & Note Hashes
// ============================================================================

// NoteHash returns the recorded content hash for a note path
func (s *Store) NoteHash(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hashes[path]
	return h, ok
}

// SetNoteHash records the content hash for a note path
func (s *Store) SetNoteHash(path, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[path] = hash
	s.markDirtyLocked()
}

// HashedNotes returns every note path with a recorded content hash
func (s *Store) HashedNotes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.hashes))
	for path := range s.hashes {
		out = append(out, path)
	}
	return out
}

// DeleteNoteHash forgets the content hash for a note path
func (s *Store) DeleteNoteHash(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hashes[path]; !ok {
		return
	}
	delete(s.hashes, path)
	s.markDirtyLocked()
}

// Setting returns a settings value from the persisted blob
func (s *Store) Setting(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	return v, ok
}

// SetSetting records a settings value in the persisted blob
func (s *Store) SetSetting(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	s.markDirtyLocked()
}

// ============================================================================
// Lifecycle & Persistence
// ============================================================================

// Clear empties all collections and indexes in one step, then schedules
// persistence. Note hashes are dropped too so every note re-extracts.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = make(map[string]*Node)
	s.edges = make(map[string]*Edge)
	s.nodesByLabel = make(map[string]map[string]struct{})
	s.nodesByNote = make(map[string]map[string]struct{})
	s.nodeIDByName = make(map[string]string)
	s.edgesBySource = make(map[string]map[string]struct{})
	s.edgesByTarget = make(map[string]map[string]struct{})
	s.edgesByNote = make(map[string]map[string]struct{})
	s.hashes = make(map[string]string)
	s.markDirtyLocked()
}

// Load reads the persisted blob and rebuilds all indexes. Returns whether a
// legacy-schema blob was discarded, which the caller must surface loudly.
func (s *Store) Load(ctx context.Context) (bool, error) {
	snap, err := s.persister.Load(ctx)
	if err != nil {
		return false, err
	}
	if snap == nil {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = snap.Settings
	if s.settings == nil {
		s.settings = make(map[string]interface{})
	}
	s.hashes = snap.Hashes
	if s.hashes == nil {
		s.hashes = make(map[string]string)
	}

	for _, n := range snap.Graph.Nodes {
		if n == nil || n.ID == "" {
			continue
		}
		s.nodes[n.ID] = n
		s.indexNodeLocked(n)
	}
	for _, e := range snap.Graph.Edges {
		if e == nil || e.ID == "" {
			continue
		}
		// An edge may only exist if both endpoints do.
		if _, ok := s.nodes[e.Source]; !ok {
			continue
		}
		if _, ok := s.nodes[e.Target]; !ok {
			continue
		}
		s.edges[e.ID] = e
		s.indexEdgeLocked(e)
	}

	s.logger.Info("Graph loaded",
		zap.Int("nodes", len(s.nodes)),
		zap.Int("edges", len(s.edges)),
		zap.Bool("legacy_discarded", snap.LegacyDiscarded),
	)
	return snap.LegacyDiscarded, nil
}

// Flush cancels any pending debounced save and persists immediately if
// dirty. Idempotent: a second call with nothing dirty is a no-op.
func (s *Store) Flush(ctx context.Context) error {
	s.saver.cancel()

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snap := s.snapshotLocked()
	s.dirty = false
	s.mu.Unlock()

	if err := s.persister.Save(ctx, snap); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return err
	}
	return nil
}

// Close drains any pending save
func (s *Store) Close(ctx context.Context) error {
	return s.Flush(ctx)
}

// snapshotLocked copies settings and hashes into fresh maps: the persister
// marshals the snapshot outside the store lock, so it must not alias maps
// that later mutations keep writing to. Node and edge pointers are safe to
// share because stored nodes are cloned before mutation.
func (s *Store) snapshotLocked() *Snapshot {
	settings := make(map[string]interface{}, len(s.settings))
	for k, v := range s.settings {
		settings[k] = v
	}
	hashes := make(map[string]string, len(s.hashes))
	for k, v := range s.hashes {
		hashes[k] = v
	}

	snap := &Snapshot{
		Settings: settings,
		Graph: GraphBlob{
			Nodes:   make([]*Node, 0, len(s.nodes)),
			Edges:   make([]*Edge, 0, len(s.edges)),
			Version: SchemaVersion,
		},
		Hashes: hashes,
	}
	for _, n := range s.nodes {
		snap.Graph.Nodes = append(snap.Graph.Nodes, n)
	}
	for _, e := range s.edges {
		snap.Graph.Edges = append(snap.Graph.Edges, e)
	}
	return snap
}

func (s *Store) markDirtyLocked() {
	s.dirty = true
	s.saver.schedule()
}

// ============================================================================
// Index Maintenance
// ============================================================================

func (s *Store) indexNodeLocked(n *Node) {
	addToIndex(s.nodesByLabel, n.Label, n.ID)
	for _, path := range n.SourceNotes {
		addToIndex(s.nodesByNote, path, n.ID)
	}
	if name := NormalizeName(n.Name()); name != "" {
		s.nodeIDByName[name] = n.ID
	}
}

func (s *Store) deindexNodeLocked(n *Node) {
	removeFromIndex(s.nodesByLabel, n.Label, n.ID)
	for _, path := range n.SourceNotes {
		removeFromIndex(s.nodesByNote, path, n.ID)
	}
	if name := NormalizeName(n.Name()); name != "" && s.nodeIDByName[name] == n.ID {
		delete(s.nodeIDByName, name)
	}
}

func (s *Store) indexEdgeLocked(e *Edge) {
	addToIndex(s.edgesBySource, e.Source, e.ID)
	addToIndex(s.edgesByTarget, e.Target, e.ID)
	if e.SourceNote != "" {
		addToIndex(s.edgesByNote, e.SourceNote, e.ID)
	}
}

func (s *Store) removeEdgeLocked(id string) bool {
	e, ok := s.edges[id]
	if !ok {
		return false
	}
	removeFromIndex(s.edgesBySource, e.Source, e.ID)
	removeFromIndex(s.edgesByTarget, e.Target, e.ID)
	if e.SourceNote != "" {
		removeFromIndex(s.edgesByNote, e.SourceNote, e.ID)
	}
	delete(s.edges, id)
	return true
}

func (s *Store) incidentEdgeIDsLocked(nodeID string) []string {
	var ids []string
	for id := range s.edgesBySource[nodeID] {
		ids = append(ids, id)
	}
	for id := range s.edgesByTarget[nodeID] {
		if _, dup := s.edgesBySource[nodeID][id]; !dup {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Store) collectNodesLocked(ids map[string]struct{}) []*Node {
	if len(ids) == 0 {
		return nil
	}
	out := make([]*Node, 0, len(ids))
	for id := range ids {
		if n, ok := s.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

func (s *Store) collectEdgesLocked(ids map[string]struct{}) []*Edge {
	if len(ids) == 0 {
		return nil
	}
	out := make([]*Edge, 0, len(ids))
	for id := range ids {
		if e, ok := s.edges[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

func addToIndex(index map[string]map[string]struct{}, key, id string) {
	if key == "" {
		return
	}
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[id] = struct{}{}
}

func removeFromIndex(index map[string]map[string]struct{}, key, id string) {
	if set, ok := index[key]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(index, key)
		}
	}
}
