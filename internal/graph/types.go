package graph

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Graph Types
// ============================================================================

// PropName is the mandatory node property holding the canonical display name.
const PropName = "name"

// PropDetail is the mandatory edge property holding the relationship detail text.
const PropDetail = "detail"

// SchemaVersion identifies the current persisted graph schema generation.
const SchemaVersion = 2

// Node represents a concept or entity surfaced from one or more notes
type Node struct {
	ID          string                 `json:"id"`
	Label       string                 `json:"label"`
	Properties  map[string]interface{} `json:"properties"`
	SourceNotes []string               `json:"source_notes"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Name returns the canonical display name of the node
func (n *Node) Name() string {
	if n.Properties == nil {
		return ""
	}
	name, _ := n.Properties[PropName].(string)
	return name
}

// HasSourceNote reports whether the given note path contributed this node
func (n *Node) HasSourceNote(path string) bool {
	for _, p := range n.SourceNotes {
		if p == path {
			return true
		}
	}
	return false
}

// AddSourceNote appends a note path if not already present, preserving order.
// Returns true if the path was added.
func (n *Node) AddSourceNote(path string) bool {
	if n.HasSourceNote(path) {
		return false
	}
	n.SourceNotes = append(n.SourceNotes, path)
	return true
}

// RemoveSourceNote removes a note path. Returns true if the path was present.
func (n *Node) RemoveSourceNote(path string) bool {
	for i, p := range n.SourceNotes {
		if p == path {
			n.SourceNotes = append(n.SourceNotes[:i], n.SourceNotes[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a copy of the node safe to mutate before writing back.
// Mutating a stored node in place would leave the store unable to clean the
// indexes derived from its previous state.
func (n *Node) Clone() *Node {
	out := *n
	out.Properties = make(map[string]interface{}, len(n.Properties))
	for k, v := range n.Properties {
		out.Properties[k] = v
	}
	out.SourceNotes = append([]string(nil), n.SourceNotes...)
	return &out
}

// RelationType is the closed set of relationship kinds between nodes
type RelationType string

const (
	// RelationPartOf marks structural containment (chapter part_of book)
	RelationPartOf RelationType = "part_of"
	// RelationLeadsTo marks causal or sequential order (step leads_to result)
	RelationLeadsTo RelationType = "leads_to"
	// RelationPerforms marks an agent acting on something (person performs method)
	RelationPerforms RelationType = "performs"
	// RelationReferences marks citation of another work or source
	RelationReferences RelationType = "references"
	// RelationRelatedTo marks a loose association with no stronger kind
	RelationRelatedTo RelationType = "related_to"
)

// ParseRelationType maps a raw string to a RelationType. Unknown values fall
// back to RelationRelatedTo so extraction noise degrades to the weakest kind
// instead of losing the edge; ok reports whether the input was recognized.
func ParseRelationType(s string) (RelationType, bool) {
	switch RelationType(strings.ToLower(strings.TrimSpace(s))) {
	case RelationPartOf:
		return RelationPartOf, true
	case RelationLeadsTo:
		return RelationLeadsTo, true
	case RelationPerforms:
		return RelationPerforms, true
	case RelationReferences:
		return RelationReferences, true
	case RelationRelatedTo:
		return RelationRelatedTo, true
	}
	return RelationRelatedTo, false
}

// Edge represents a directed, typed relationship between two nodes
type Edge struct {
	ID         string                 `json:"id"`
	Source     string                 `json:"source"`
	Target     string                 `json:"target"`
	Type       RelationType           `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	SourceNote string                 `json:"source_note,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Detail returns the free-text detail of the edge
func (e *Edge) Detail() string {
	if e.Properties == nil {
		return ""
	}
	detail, _ := e.Properties[PropDetail].(string)
	return detail
}

// ============================================================================
// Deterministic IDs
// ============================================================================

var (
	nodeNamespace = uuid.MustParse("8f1f1b5e-3f9a-4a45-9d56-0d2c8a7e6b01")
	edgeNamespace = uuid.MustParse("8f1f1b5e-3f9a-4a45-9d56-0d2c8a7e6b02")
)

// NodeID derives the stable node id from (label, normalized name). The id is
// minted once at creation and never recomputed, even if the node is later
// referenced under a different label.
func NodeID(label, name string) string {
	key := strings.ToLower(strings.TrimSpace(label)) + "\x00" + NormalizeName(name)
	return uuid.NewSHA1(nodeNamespace, []byte(key)).String()
}

// EdgeID derives the stable edge id from (source, target, type). Identical
// triples always collapse to one edge.
func EdgeID(sourceID, targetID string, relType RelationType) string {
	key := sourceID + "\x00" + targetID + "\x00" + string(relType)
	return uuid.NewSHA1(edgeNamespace, []byte(key)).String()
}

// NormalizeName lowercases and trims a node name for case-insensitive matching
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ============================================================================
// Persisted Shape
// ============================================================================

// GraphBlob is the graph portion of the persisted blob
type GraphBlob struct {
	Nodes   []*Node `json:"nodes"`
	Edges   []*Edge `json:"edges"`
	Version int     `json:"version"`
}

// Snapshot is the full persisted shape handed to the persistence collaborator
type Snapshot struct {
	Settings map[string]interface{} `json:"settings,omitempty"`
	Graph    GraphBlob              `json:"graph"`
	Hashes   map[string]string      `json:"hashes,omitempty"`

	// LegacyDiscarded is set by the loader when an old-schema blob was
	// detected and dropped wholesale, forcing full re-extraction.
	LegacyDiscarded bool `json:"-"`
}

// Persister is the external persistence collaborator: async load/save of one
// opaque blob at whole-graph granularity
type Persister interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}
