package graph

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"notegraph/pkg/logger"
)

// ============================================================================
// Merge Engine
// ============================================================================

// CrossRefDetail marks an edge materialized from a note-to-note link rather
// than from extracted semantic content.
const CrossRefDetail = "cross-reference between linked notes"

// RawNode is a candidate entity from one extraction batch, identified by a
// batch-local temporary id
type RawNode struct {
	ID         string                 `json:"id"`
	Label      string                 `json:"label"`
	Name       string                 `json:"name"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// RawRelation is a candidate relationship referencing batch-local node ids
type RawRelation struct {
	Source     string                 `json:"source"`
	Target     string                 `json:"target"`
	Type       string                 `json:"type"`
	Detail     string                 `json:"detail"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Batch is one extraction result for one note
type Batch struct {
	Nodes     []RawNode     `json:"nodes"`
	Relations []RawRelation `json:"relationships"`
}

// MergeResult counts new additions only, not batch size
type MergeResult struct {
	NodesAdded     int `json:"nodes_added"`
	RelationsAdded int `json:"relationships_added"`
}

// MergeExtraction applies one extraction batch to the store for the given
// note path, resolving batch-local ids against existing nodes by
// case-insensitive name match across all labels. The first label assigned to
// a name wins; later batches reinforce the node without relabeling it.
func MergeExtraction(store *Store, notePath string, batch *Batch) MergeResult {
	log := logger.Get()
	var result MergeResult

	// Batch-local id -> canonical id, built fresh per call and discarded.
	idMap := make(map[string]string, len(batch.Nodes))

	for _, raw := range batch.Nodes {
		name := strings.TrimSpace(raw.Name)
		if name == "" {
			log.Warn("Skipping extracted node without a name",
				zap.String("note", notePath),
				zap.String("temp_id", raw.ID),
			)
			continue
		}

		if existing := store.NodeByName(name); existing != nil {
			idMap[raw.ID] = existing.ID
			node := existing.Clone()
			node.AddSourceNote(notePath)
			for k, v := range raw.Properties {
				if k == PropName {
					continue
				}
				if _, present := node.Properties[k]; !present {
					node.Properties[k] = v
				}
			}
			node.UpdatedAt = time.Now()
			store.UpdateNode(node)
			continue
		}

		now := time.Now()
		node := &Node{
			ID:          NodeID(raw.Label, name),
			Label:       raw.Label,
			Properties:  make(map[string]interface{}, len(raw.Properties)+1),
			SourceNotes: []string{notePath},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		for k, v := range raw.Properties {
			node.Properties[k] = v
		}
		node.Properties[PropName] = name
		store.AddNode(node)
		idMap[raw.ID] = node.ID
		result.NodesAdded++
	}

	for _, rel := range batch.Relations {
		sourceID, okSource := idMap[rel.Source]
		targetID, okTarget := idMap[rel.Target]
		if !okSource || !okTarget {
			log.Warn("Skipping relationship with unresolved endpoint",
				zap.String("note", notePath),
				zap.String("source", rel.Source),
				zap.String("target", rel.Target),
			)
			continue
		}
		// Defensive re-check: the mapped node could have been removed
		// between the node pass and here.
		if store.GetNode(sourceID) == nil || store.GetNode(targetID) == nil {
			log.Warn("Skipping relationship with missing endpoint node",
				zap.String("note", notePath),
				zap.String("source_id", sourceID),
				zap.String("target_id", targetID),
			)
			continue
		}

		relType, recognized := ParseRelationType(rel.Type)
		if !recognized {
			log.Debug("Coercing unknown relationship type",
				zap.String("note", notePath),
				zap.String("raw_type", rel.Type),
			)
		}

		edgeID := EdgeID(sourceID, targetID, relType)
		if store.GetEdge(edgeID) != nil {
			continue
		}

		edge := &Edge{
			ID:         edgeID,
			Source:     sourceID,
			Target:     targetID,
			Type:       relType,
			Properties: make(map[string]interface{}, len(rel.Properties)+1),
			SourceNote: notePath,
			CreatedAt:  time.Now(),
		}
		for k, v := range rel.Properties {
			edge.Properties[k] = v
		}
		edge.Properties[PropDetail] = rel.Detail
		store.AddEdge(edge)
		result.RelationsAdded++
	}

	return result
}

// RemoveNote withdraws one note's contribution: its edges are removed, its
// entry is dropped from every node's source notes, and nodes left with no
// sources are deleted. Returns counts of nodes and edges removed, including
// edges cascaded by node deletion.
func RemoveNote(store *Store, notePath string) (nodesRemoved, edgesRemoved int) {
	for _, edge := range store.EdgesByNote(notePath) {
		if store.RemoveEdge(edge.ID) {
			edgesRemoved++
		}
	}

	for _, node := range store.NodesByNote(notePath) {
		updated := node.Clone()
		if !updated.RemoveSourceNote(notePath) {
			continue
		}
		if len(updated.SourceNotes) == 0 {
			edgesRemoved += incidentEdgeCount(store, node.ID)
			if store.RemoveNode(node.ID) {
				nodesRemoved++
			}
			continue
		}
		updated.UpdatedAt = time.Now()
		store.UpdateNode(updated)
	}

	return nodesRemoved, edgesRemoved
}

// MergeLinks materializes note-to-note links as loose-association edges
// between every node of the source note and every node of each target note.
// Targets that have not contributed any node yet are skipped; their links
// cannot be materialized until they are analyzed. Returns the number of
// edges added.
func MergeLinks(store *Store, sourcePath string, targetPaths []string) int {
	sourceNodes := store.NodesByNote(sourcePath)
	if len(sourceNodes) == 0 {
		return 0
	}

	added := 0
	for _, targetPath := range targetPaths {
		if targetPath == sourcePath {
			continue
		}
		for _, targetNode := range store.NodesByNote(targetPath) {
			for _, sourceNode := range sourceNodes {
				if sourceNode.ID == targetNode.ID {
					continue
				}
				edgeID := EdgeID(sourceNode.ID, targetNode.ID, RelationRelatedTo)
				if store.GetEdge(edgeID) != nil {
					continue
				}
				store.AddEdge(&Edge{
					ID:         edgeID,
					Source:     sourceNode.ID,
					Target:     targetNode.ID,
					Type:       RelationRelatedTo,
					Properties: map[string]interface{}{PropDetail: CrossRefDetail},
					SourceNote: sourcePath,
					CreatedAt:  time.Now(),
				})
				added++
			}
		}
	}
	return added
}

func incidentEdgeCount(store *Store, nodeID string) int {
	seen := make(map[string]struct{})
	for _, e := range store.EdgesBySource(nodeID) {
		seen[e.ID] = struct{}{}
	}
	for _, e := range store.EdgesByTarget(nodeID) {
		seen[e.ID] = struct{}{}
	}
	return len(seen)
}
