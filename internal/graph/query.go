package graph

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ============================================================================
// Query & Traversal Operations
// ============================================================================
//
// Everything here is read-only: no operation mutates the store or triggers
// persistence, and a query that legitimately matches nothing returns an
// empty result, never an error.

const (
	// SearchLimit caps fuzzy search results
	SearchLimit = 20
	// ConnectedLimit caps reachability results
	ConnectedLimit = 50
	// MaxHopCap is the hard ceiling on traversal depth
	MaxHopCap = 4
	// DefaultPathHops is the default shortest-path depth bound
	DefaultPathHops = 4

	bigramThreshold = 0.3
)

// SearchOptions tunes a fuzzy name search
type SearchOptions struct {
	Label string // exact label filter, empty for all labels
	Exact bool   // exact-match mode: only tier-1 equality hits
	Limit int    // result cap, defaults to SearchLimit
}

// SearchResult is one scored candidate from a fuzzy name search
type SearchResult struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Search scores every stored node against the query and returns the ranked
// matches, capped at the limit. Ties keep encounter order.
func Search(store *Store, query string, opts SearchOptions) []SearchResult {
	folded := foldName(query)
	if folded == "" {
		return nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = SearchLimit
	}

	var candidates []*Node
	if opts.Label != "" {
		candidates = store.NodesByLabel(opts.Label)
	} else {
		candidates = store.Nodes()
	}

	var results []SearchResult
	for _, node := range candidates {
		name := node.Name()
		var score float64
		if opts.Exact {
			if foldName(name) == folded {
				score = 1.0
			}
		} else {
			score = scoreName(folded, foldName(name))
		}
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{
			ID:    node.ID,
			Name:  name,
			Label: node.Label,
			Score: score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// scoreName scores a candidate name against a query, both already folded
// (lowercased, whitespace stripped). Tiers, in priority order: exact
// equality, prefix, substring, reverse substring, then character-bigram
// Jaccard similarity as a fallback for partial and morphological matches
// (agglutinative languages append grammatical suffixes to a root, so the
// root alone must still score highly).
func scoreName(query, candidate string) float64 {
	if candidate == "" {
		return 0
	}
	if query == candidate {
		return 1.0
	}

	qLen := float64(utf8.RuneCountInString(query))
	cLen := float64(utf8.RuneCountInString(candidate))

	if strings.HasPrefix(candidate, query) {
		// [0.9, 0.99], rising as lengths converge.
		return 0.9 + 0.09*qLen/cLen
	}

	if idx := strings.Index(candidate, query); idx >= 0 {
		// Roughly [0.7, 0.8]: earlier match position and closer lengths
		// score higher. Position is counted in runes like the ratios.
		matchPos := float64(utf8.RuneCountInString(candidate[:idx]))
		posBonus := 0.05 * (1 - matchPos/cLen)
		lenBonus := 0.05 * qLen / cLen
		return 0.7 + posBonus + lenBonus
	}

	if strings.Contains(query, candidate) {
		// Roughly [0.6, 0.7], scaled by length ratio.
		return 0.6 + 0.1*cLen/qLen
	}

	sim := bigramJaccard(query, candidate)
	if sim <= bigramThreshold {
		return 0
	}
	// Remap (0.3, 1.0] linearly onto (0.3, 0.6].
	return 0.3 + (sim-bigramThreshold)/(1-bigramThreshold)*0.3
}

// bigramJaccard computes Jaccard similarity of the 2-rune sliding-window
// sets of two strings
func bigramJaccard(a, b string) float64 {
	setA := bigrams(a)
	setB := bigrams(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for g := range setA {
		if _, ok := setB[g]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func bigrams(s string) map[string]struct{} {
	runes := []rune(s)
	set := make(map[string]struct{}, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		set[string(runes[i:i+2])] = struct{}{}
	}
	return set
}

// foldName lowercases a name and strips all whitespace for comparison
func foldName(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

// ============================================================================
// Relationship Listing
// ============================================================================

// Direction selects which incident edges to list
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

// ParseDirection maps a raw string to a Direction, defaulting to both
func ParseDirection(s string) Direction {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionOutgoing:
		return DirectionOutgoing
	case DirectionIncoming:
		return DirectionIncoming
	}
	return DirectionBoth
}

// Relationship is one listed edge with human-readable endpoint names
type Relationship struct {
	From   string       `json:"from"`
	To     string       `json:"to"`
	Type   RelationType `json:"type"`
	Detail string       `json:"detail"`
}

// Relationships lists the edges incident to the node with the given name.
// The boolean reports whether the node was found; a found node with no
// matching edges yields an empty list.
func Relationships(store *Store, nodeName string, dir Direction, typeFilter RelationType) ([]Relationship, bool) {
	node := store.NodeByName(nodeName)
	if node == nil {
		return nil, false
	}

	var edges []*Edge
	if dir == DirectionOutgoing || dir == DirectionBoth {
		edges = append(edges, store.EdgesBySource(node.ID)...)
	}
	if dir == DirectionIncoming || dir == DirectionBoth {
		edges = append(edges, store.EdgesByTarget(node.ID)...)
	}

	results := make([]Relationship, 0, len(edges))
	for _, edge := range edges {
		if typeFilter != "" && edge.Type != typeFilter {
			continue
		}
		source := store.GetNode(edge.Source)
		target := store.GetNode(edge.Target)
		if source == nil || target == nil {
			continue
		}
		results = append(results, Relationship{
			From:   source.Name(),
			To:     target.Name(),
			Type:   edge.Type,
			Detail: edge.Detail(),
		})
	}
	return results, true
}

// ============================================================================
// Traversal
// ============================================================================

// ConnectedNode is one node reached by bounded breadth-first traversal
type ConnectedNode struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Distance int      `json:"distance"`
	Path     []string `json:"path"`
}

type bfsEntry struct {
	id    string
	depth int
	path  []string
}

// Connected walks outward from the named node, treating every edge as
// undirected for connectivity, and returns the nodes reachable within
// maxHops (clamped to MaxHopCap), capped at ConnectedLimit. Each node is
// reported with its first-discovery path of names from the start and is
// never revisited via an alternate path. The boolean reports whether the
// start node was found.
func Connected(store *Store, nodeName string, maxHops int) ([]ConnectedNode, bool) {
	start := store.NodeByName(nodeName)
	if start == nil {
		return nil, false
	}
	if maxHops < 0 {
		maxHops = 0
	}
	if maxHops > MaxHopCap {
		maxHops = MaxHopCap
	}

	visited := map[string]struct{}{start.ID: {}}
	queue := []bfsEntry{{id: start.ID, depth: 0, path: []string{start.Name()}}}
	var results []ConnectedNode

	for len(queue) > 0 {
		entry := queue[0]
		queue = queue[1:]
		if entry.depth >= maxHops {
			continue
		}

		for _, edge := range incidentEdges(store, entry.id) {
			farID := edge.Target
			if farID == entry.id {
				farID = edge.Source
			}
			if _, seen := visited[farID]; seen {
				continue
			}
			visited[farID] = struct{}{}

			far := store.GetNode(farID)
			if far == nil {
				continue
			}
			path := append(append([]string(nil), entry.path...), far.Name())
			results = append(results, ConnectedNode{
				Name:     far.Name(),
				Label:    far.Label,
				Distance: entry.depth + 1,
				Path:     path,
			})
			if len(results) >= ConnectedLimit {
				return results, true
			}
			queue = append(queue, bfsEntry{id: farID, depth: entry.depth + 1, path: path})
		}
	}
	return results, true
}

// PathStep is one node along a shortest path. Steps after the first carry
// the type and detail of the edge actually traversed to reach them.
type PathStep struct {
	Name   string       `json:"name"`
	Type   RelationType `json:"type,omitempty"`
	Detail string       `json:"detail,omitempty"`
}

// PathResult reports a shortest-path search. Found false with empty steps
// is a normal outcome, not an error.
type PathResult struct {
	Found bool       `json:"found"`
	Steps []PathStep `json:"steps"`
}

type pathParent struct {
	prev string
	edge *Edge
}

// ShortestPath finds the shortest undirected path between two named nodes
// within maxHops (nonpositive defaults to DefaultPathHops)
func ShortestPath(store *Store, fromName, toName string, maxHops int) PathResult {
	notFound := PathResult{Found: false, Steps: []PathStep{}}

	from := store.NodeByName(fromName)
	to := store.NodeByName(toName)
	if from == nil || to == nil {
		return notFound
	}
	if maxHops <= 0 {
		maxHops = DefaultPathHops
	}

	if from.ID == to.ID {
		return PathResult{Found: true, Steps: []PathStep{{Name: from.Name()}}}
	}

	parents := map[string]pathParent{from.ID: {}}
	queue := []bfsEntry{{id: from.ID, depth: 0}}

	for len(queue) > 0 {
		entry := queue[0]
		queue = queue[1:]

		if entry.id == to.ID {
			return PathResult{Found: true, Steps: reconstructPath(store, parents, from.ID, to.ID)}
		}
		if entry.depth >= maxHops {
			continue
		}

		for _, edge := range incidentEdges(store, entry.id) {
			farID := edge.Target
			if farID == entry.id {
				farID = edge.Source
			}
			if _, seen := parents[farID]; seen {
				continue
			}
			parents[farID] = pathParent{prev: entry.id, edge: edge}
			queue = append(queue, bfsEntry{id: farID, depth: entry.depth + 1})
		}
	}
	return notFound
}

func reconstructPath(store *Store, parents map[string]pathParent, fromID, toID string) []PathStep {
	var steps []PathStep
	for id := toID; ; {
		node := store.GetNode(id)
		if node == nil {
			return nil
		}
		parent := parents[id]
		step := PathStep{Name: node.Name()}
		if id != fromID && parent.edge != nil {
			step.Type = parent.edge.Type
			step.Detail = parent.edge.Detail()
		}
		steps = append(steps, step)
		if id == fromID {
			break
		}
		id = parent.prev
	}
	// Walked back from the target; reverse into start-to-target order.
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps
}

func incidentEdges(store *Store, nodeID string) []*Edge {
	edges := store.EdgesBySource(nodeID)
	for _, e := range store.EdgesByTarget(nodeID) {
		if e.Source == e.Target {
			continue // self-loop already listed by source index
		}
		edges = append(edges, e)
	}
	return edges
}
