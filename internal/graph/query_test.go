package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addNamed(s *Store, label string, names ...string) map[string]*Node {
	out := make(map[string]*Node, len(names))
	for _, name := range names {
		n := testNode(label, name, "test.md")
		s.AddNode(n)
		out[name] = n
	}
	return out
}

func connect(s *Store, from, to *Node, relType RelationType, detail string) {
	e := testEdge(from, to, relType, "test.md")
	e.Properties[PropDetail] = detail
	s.AddEdge(e)
}

func TestSearch_TierRankingOrder(t *testing.T) {
	s, _ := newTestStore(t)
	addNamed(s, "Concept",
		"grapx",     // bigram fallback only
		"gra",       // contained in the query
		"subgraphs", // contains the query
		"graphite",  // starts with the query
		"graph",     // exact
		"zzz",       // no match at all
	)

	results := Search(s, "graph", SearchOptions{})
	require.Len(t, results, 5)

	assert.Equal(t, "graph", results[0].Name)
	assert.Equal(t, "graphite", results[1].Name)
	assert.Equal(t, "subgraphs", results[2].Name)
	assert.Equal(t, "gra", results[3].Name)
	assert.Equal(t, "grapx", results[4].Name)

	assert.Equal(t, 1.0, results[0].Score)
	assert.GreaterOrEqual(t, results[1].Score, 0.9)
	assert.Less(t, results[1].Score, 1.0)
	assert.GreaterOrEqual(t, results[2].Score, 0.7)
	assert.LessOrEqual(t, results[2].Score, 0.8)
	assert.GreaterOrEqual(t, results[3].Score, 0.6)
	assert.LessOrEqual(t, results[3].Score, 0.7)
	assert.Greater(t, results[4].Score, 0.3)
	assert.LessOrEqual(t, results[4].Score, 0.6)
}

func TestSearch_SuffixedWordForm(t *testing.T) {
	s, _ := newTestStore(t)
	addNamed(s, "Concept", "kitaplar") // "books": root "kitap" plus plural suffix

	results := Search(s, "kitap", SearchOptions{})
	require.Len(t, results, 1)
	assert.GreaterOrEqual(t, results[0].Score, 0.9)
}

func TestSearch_CaseAndWhitespaceInsensitive(t *testing.T) {
	s, _ := newTestStore(t)
	addNamed(s, "Person", "Alan Turing")

	results := Search(s, "  ALANTURING ", SearchOptions{})
	require.Len(t, results, 1)
	assert.Equal(t, 1.0, results[0].Score)
}

func TestSearch_LabelFilter(t *testing.T) {
	s, _ := newTestStore(t)
	addNamed(s, "Person", "Turing")
	addNamed(s, "Concept", "Turing machine")

	results := Search(s, "turing", SearchOptions{Label: "Person"})
	require.Len(t, results, 1)
	assert.Equal(t, "Turing", results[0].Name)
	assert.Equal(t, "Person", results[0].Label)
}

func TestSearch_ExactMode(t *testing.T) {
	s, _ := newTestStore(t)
	addNamed(s, "Concept", "graph", "graphite")

	results := Search(s, "graph", SearchOptions{Exact: true})
	require.Len(t, results, 1)
	assert.Equal(t, "graph", results[0].Name)
}

func TestSearch_CapsResults(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 0; i < 30; i++ {
		addNamed(s, "Concept", fmt.Sprintf("topic %02d", i))
	}

	results := Search(s, "topic", SearchOptions{})
	assert.Len(t, results, SearchLimit)
}

func TestSearch_EmptyQuery(t *testing.T) {
	s, _ := newTestStore(t)
	addNamed(s, "Concept", "anything")

	assert.Empty(t, Search(s, "   ", SearchOptions{}))
}

func TestRelationships_DirectionAndTypeFilter(t *testing.T) {
	s, _ := newTestStore(t)
	nodes := addNamed(s, "Concept", "hub", "out", "in")
	connect(s, nodes["hub"], nodes["out"], RelationLeadsTo, "hub to out")
	connect(s, nodes["in"], nodes["hub"], RelationReferences, "in to hub")

	outgoing, found := Relationships(s, "hub", DirectionOutgoing, "")
	require.True(t, found)
	require.Len(t, outgoing, 1)
	assert.Equal(t, "hub", outgoing[0].From)
	assert.Equal(t, "out", outgoing[0].To)
	assert.Equal(t, RelationLeadsTo, outgoing[0].Type)
	assert.Equal(t, "hub to out", outgoing[0].Detail)

	incoming, found := Relationships(s, "HUB", DirectionIncoming, "")
	require.True(t, found)
	require.Len(t, incoming, 1)
	assert.Equal(t, "in", incoming[0].From)

	both, found := Relationships(s, "hub", DirectionBoth, "")
	require.True(t, found)
	assert.Len(t, both, 2)

	filtered, found := Relationships(s, "hub", DirectionBoth, RelationReferences)
	require.True(t, found)
	require.Len(t, filtered, 1)
	assert.Equal(t, RelationReferences, filtered[0].Type)
}

func TestRelationships_UnknownNode(t *testing.T) {
	s, _ := newTestStore(t)

	rels, found := Relationships(s, "nobody", DirectionBoth, "")
	assert.False(t, found)
	assert.Empty(t, rels)
}

// chainStore builds n0 -> n1 -> ... -> n5.
func chainStore(t *testing.T) (*Store, map[string]*Node) {
	s, _ := newTestStore(t)
	nodes := addNamed(s, "Concept", "n0", "n1", "n2", "n3", "n4", "n5")
	for i := 0; i < 5; i++ {
		from := nodes[fmt.Sprintf("n%d", i)]
		to := nodes[fmt.Sprintf("n%d", i+1)]
		connect(s, from, to, RelationLeadsTo, fmt.Sprintf("step %d", i))
	}
	return s, nodes
}

func TestConnected_ZeroHopsIsEmpty(t *testing.T) {
	s, _ := chainStore(t)

	results, found := Connected(s, "n0", 0)
	assert.True(t, found)
	assert.Empty(t, results)
}

func TestConnected_OneHopIsDirectNeighbors(t *testing.T) {
	s, _ := chainStore(t)

	results, found := Connected(s, "n1", 1)
	require.True(t, found)
	require.Len(t, results, 2) // traversal ignores edge direction
	names := []string{results[0].Name, results[1].Name}
	assert.ElementsMatch(t, []string{"n0", "n2"}, names)
	for _, r := range results {
		assert.Equal(t, 1, r.Distance)
		assert.Equal(t, []string{"n1", r.Name}, r.Path)
	}
}

func TestConnected_ClampsToHardCap(t *testing.T) {
	s, _ := chainStore(t)

	results, found := Connected(s, "n0", 10)
	require.True(t, found)
	// Hop limit clamps to 4, so n5 stays unreachable.
	require.Len(t, results, 4)
	for _, r := range results {
		assert.NotEqual(t, "n5", r.Name)
	}
}

func TestConnected_FirstDiscoveryPath(t *testing.T) {
	s, _ := chainStore(t)

	results, found := Connected(s, "n0", 3)
	require.True(t, found)
	byName := make(map[string]ConnectedNode, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.Equal(t, []string{"n0", "n1", "n2", "n3"}, byName["n3"].Path)
	assert.Equal(t, 3, byName["n3"].Distance)
}

func TestConnected_UnknownStart(t *testing.T) {
	s, _ := newTestStore(t)

	_, found := Connected(s, "nobody", 2)
	assert.False(t, found)
}

func TestShortestPath_AnnotatesTraversedEdges(t *testing.T) {
	s, _ := chainStore(t)

	result := ShortestPath(s, "n0", "n2", 4)
	require.True(t, result.Found)
	require.Len(t, result.Steps, 3)

	assert.Equal(t, "n0", result.Steps[0].Name)
	assert.Empty(t, result.Steps[0].Type)
	assert.Equal(t, "n1", result.Steps[1].Name)
	assert.Equal(t, RelationLeadsTo, result.Steps[1].Type)
	assert.Equal(t, "step 0", result.Steps[1].Detail)
	assert.Equal(t, "n2", result.Steps[2].Name)
	assert.Equal(t, "step 1", result.Steps[2].Detail)
}

func TestShortestPath_WorksAgainstEdgeDirection(t *testing.T) {
	s, _ := chainStore(t)

	result := ShortestPath(s, "n2", "n0", 4)
	require.True(t, result.Found)
	require.Len(t, result.Steps, 3)
	assert.Equal(t, "n2", result.Steps[0].Name)
	assert.Equal(t, "n0", result.Steps[2].Name)
}

func TestShortestPath_NotFoundWithinHops(t *testing.T) {
	s, _ := chainStore(t)

	// n2 is two hops from n0: with maxHops 1 this is a normal miss.
	result := ShortestPath(s, "n0", "n2", 1)
	assert.False(t, result.Found)
	assert.Empty(t, result.Steps)
	// Empty path, not an absent one: serializes as [] rather than null.
	assert.NotNil(t, result.Steps)
}

func TestShortestPath_SameNode(t *testing.T) {
	s, _ := chainStore(t)

	result := ShortestPath(s, "n0", "N0", 4)
	require.True(t, result.Found)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "n0", result.Steps[0].Name)
}

func TestShortestPath_UnknownEndpoint(t *testing.T) {
	s, _ := chainStore(t)

	result := ShortestPath(s, "n0", "nobody", 4)
	assert.False(t, result.Found)
	assert.Empty(t, result.Steps)
	assert.NotNil(t, result.Steps)
}

func TestScoreName_SubstringPositionCountsRunes(t *testing.T) {
	// "büyükkedi" is 9 runes but 11 bytes; "kedi" starts at rune 5.
	score := scoreName("kedi", "büyükkedi")
	expected := 0.7 + 0.05*(1-5.0/9.0) + 0.05*(4.0/9.0)
	assert.InDelta(t, expected, score, 0.0001)
}

func TestScoreName_BigramThreshold(t *testing.T) {
	// Far-apart strings fall below the similarity cutoff and score zero.
	assert.Zero(t, scoreName("graph", "xylophone"))
	// Identical bigram sets score the tier ceiling.
	assert.InDelta(t, 0.6, scoreName("abab", "baba"), 0.0001)
}
