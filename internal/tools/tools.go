package tools

import (
	"notegraph/internal/adapter"
)

// Tool names - Graph Query Tools
const (
	ToolSearchGraph       = "search_graph"
	ToolGetNode           = "get_node"
	ToolListRelationships = "list_relationships"
	ToolConnectedNodes    = "connected_nodes"
	ToolNodeSources       = "node_sources"
	ToolShortestPath      = "shortest_path"
)

// GetGraphTools returns the tool definitions exposed to the external
// orchestration loop
func GetGraphTools() []adapter.Tool {
	return []adapter.Tool{
		{
			Type: "function",
			Function: adapter.FunctionDefinition{
				Name:        ToolSearchGraph,
				Description: "Fuzzy-search graph nodes by name. Handles partial matches and suffixed word forms.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"query": map[string]interface{}{
							"type":        "string",
							"description": "Name or partial name to search for",
						},
						"label": map[string]interface{}{
							"type":        "string",
							"description": "Optional exact label filter (e.g. Person, Concept)",
						},
					},
					"required": []string{"query"},
				},
			},
		},
		{
			Type: "function",
			Function: adapter.FunctionDefinition{
				Name:        ToolGetNode,
				Description: "Fetch one node by its exact name (case-insensitive).",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"name": map[string]interface{}{
							"type":        "string",
							"description": "Exact node name",
						},
					},
					"required": []string{"name"},
				},
			},
		},
		{
			Type: "function",
			Function: adapter.FunctionDefinition{
				Name:        ToolListRelationships,
				Description: "List the typed relationships of a node, with endpoint names and detail text.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"name": map[string]interface{}{
							"type":        "string",
							"description": "Exact node name",
						},
						"direction": map[string]interface{}{
							"type":        "string",
							"enum":        []string{"outgoing", "incoming", "both"},
							"description": "Which edges to list, defaults to both",
						},
						"type": map[string]interface{}{
							"type":        "string",
							"enum":        []string{"part_of", "leads_to", "performs", "references", "related_to"},
							"description": "Optional relationship type filter",
						},
					},
					"required": []string{"name"},
				},
			},
		},
		{
			Type: "function",
			Function: adapter.FunctionDefinition{
				Name:        ToolConnectedNodes,
				Description: "List nodes reachable from a node within a bounded number of hops, with discovery paths.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"name": map[string]interface{}{
							"type":        "string",
							"description": "Exact node name to start from",
						},
						"max_hops": map[string]interface{}{
							"type":        "integer",
							"description": "Hop limit, capped at 4. Defaults to 2.",
						},
					},
					"required": []string{"name"},
				},
			},
		},
		{
			Type: "function",
			Function: adapter.FunctionDefinition{
				Name:        ToolNodeSources,
				Description: "List the note paths that contributed a node.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"name": map[string]interface{}{
							"type":        "string",
							"description": "Exact node name",
						},
					},
					"required": []string{"name"},
				},
			},
		},
		{
			Type: "function",
			Function: adapter.FunctionDefinition{
				Name:        ToolShortestPath,
				Description: "Find the shortest relationship path between two nodes, annotated with the traversed edges.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"from": map[string]interface{}{
							"type":        "string",
							"description": "Exact start node name",
						},
						"to": map[string]interface{}{
							"type":        "string",
							"description": "Exact end node name",
						},
						"max_hops": map[string]interface{}{
							"type":        "integer",
							"description": "Hop limit, defaults to 4",
						},
					},
					"required": []string{"from", "to"},
				},
			},
		},
	}
}
