package tools

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"notegraph/internal/graph"
	"notegraph/pkg/errors"
	"notegraph/pkg/logger"
)

// ============================================================================
// Tool Dispatch
// ============================================================================

// Call is one operation request from the external orchestration loop
type Call struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Result is the uniform envelope wrapping every tool outcome. An unknown
// operation name comes back as a structured error here, never a panic.
type Result struct {
	Tool    string      `json:"tool"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Executor maps operation names onto the query engine. It holds no state
// beyond the store handle and performs no mutation.
type Executor struct {
	store  *graph.Store
	logger *zap.Logger
}

// NewExecutor creates a new tool executor over the given store
func NewExecutor(store *graph.Store) *Executor {
	return &Executor{
		store:  store,
		logger: logger.Named("tools"),
	}
}

// Execute runs a tool call and returns the result envelope
func (e *Executor) Execute(ctx context.Context, call Call) *Result {
	e.logger.Debug("Executing tool", zap.String("tool", call.Name))

	var result *Result
	switch call.Name {
	case ToolSearchGraph:
		result = e.executeSearch(call.Arguments)
	case ToolGetNode:
		result = e.executeGetNode(call.Arguments)
	case ToolListRelationships:
		result = e.executeListRelationships(call.Arguments)
	case ToolConnectedNodes:
		result = e.executeConnected(call.Arguments)
	case ToolNodeSources:
		result = e.executeNodeSources(call.Arguments)
	case ToolShortestPath:
		result = e.executeShortestPath(call.Arguments)
	default:
		result = &Result{Success: false, Error: errors.NewUnknownTool(call.Name).Message}
	}

	result.Tool = call.Name
	return result
}

func (e *Executor) executeSearch(args map[string]interface{}) *Result {
	query := stringArg(args, "query")
	if query == "" {
		return &Result{Success: false, Error: "query is required"}
	}
	label := stringArg(args, "label")

	results := graph.Search(e.store, query, graph.SearchOptions{Label: label})
	return &Result{
		Success: true,
		Data:    results,
		Message: fmt.Sprintf("Found %d nodes matching '%s'", len(results), query),
	}
}

func (e *Executor) executeGetNode(args map[string]interface{}) *Result {
	name := stringArg(args, "name")
	if name == "" {
		return &Result{Success: false, Error: "name is required"}
	}

	node := e.store.NodeByName(name)
	if node == nil {
		// A missing node is a valid result, not a failure.
		return &Result{Success: true, Message: fmt.Sprintf("No node named '%s'", name)}
	}
	return &Result{Success: true, Data: node}
}

func (e *Executor) executeListRelationships(args map[string]interface{}) *Result {
	name := stringArg(args, "name")
	if name == "" {
		return &Result{Success: false, Error: "name is required"}
	}

	dir := graph.ParseDirection(stringArg(args, "direction"))
	var typeFilter graph.RelationType
	if raw := stringArg(args, "type"); raw != "" {
		typeFilter, _ = graph.ParseRelationType(raw)
	}

	rels, found := graph.Relationships(e.store, name, dir, typeFilter)
	if !found {
		return &Result{Success: true, Message: fmt.Sprintf("No node named '%s'", name)}
	}
	return &Result{
		Success: true,
		Data:    rels,
		Message: fmt.Sprintf("Found %d relationships for '%s'", len(rels), name),
	}
}

func (e *Executor) executeConnected(args map[string]interface{}) *Result {
	name := stringArg(args, "name")
	if name == "" {
		return &Result{Success: false, Error: "name is required"}
	}
	maxHops := intArg(args, "max_hops", 2)

	nodes, found := graph.Connected(e.store, name, maxHops)
	if !found {
		return &Result{Success: true, Message: fmt.Sprintf("No node named '%s'", name)}
	}
	return &Result{
		Success: true,
		Data:    nodes,
		Message: fmt.Sprintf("Found %d nodes within %d hops of '%s'", len(nodes), maxHops, name),
	}
}

func (e *Executor) executeNodeSources(args map[string]interface{}) *Result {
	name := stringArg(args, "name")
	if name == "" {
		return &Result{Success: false, Error: "name is required"}
	}

	node := e.store.NodeByName(name)
	if node == nil {
		return &Result{Success: true, Message: fmt.Sprintf("No node named '%s'", name)}
	}
	return &Result{
		Success: true,
		Data:    node.SourceNotes,
		Message: fmt.Sprintf("'%s' is sourced from %d notes", node.Name(), len(node.SourceNotes)),
	}
}

func (e *Executor) executeShortestPath(args map[string]interface{}) *Result {
	from := stringArg(args, "from")
	to := stringArg(args, "to")
	if from == "" || to == "" {
		return &Result{Success: false, Error: "from and to are required"}
	}
	maxHops := intArg(args, "max_hops", graph.DefaultPathHops)

	path := graph.ShortestPath(e.store, from, to, maxHops)
	msg := fmt.Sprintf("No path from '%s' to '%s' within %d hops", from, to, maxHops)
	if path.Found {
		msg = fmt.Sprintf("Path from '%s' to '%s' in %d steps", from, to, len(path.Steps)-1)
	}
	return &Result{Success: true, Data: path, Message: msg}
}

// ============================================================================
// Argument Coercion
// ============================================================================

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]interface{}, key string, defaultValue int) int {
	switch v := args[key].(type) {
	case float64:
		// JSON numbers decode as float64.
		return int(v)
	case int:
		return v
	}
	return defaultValue
}
