//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

// Package graph provides durable graph-based execution: a superstep
// scheduler that persists a full-state checkpoint after every step, can
// suspend mid-run awaiting external input, and resumes from persisted
// state with identical results.
package graph

import (
	"context"
	"fmt"
	"sync"
)

// Special node identifiers for graph routing.
const (
	// Start represents the virtual start node for routing.
	Start = "__start__"
	// End represents the virtual end node for routing.
	End = "__end__"
)

// NodeFunc is a function that can be executed by a node.
// It receives a private copy of the current state and returns either a
// State update (merged via the schema reducers) or a *Command combining a
// state update with a routing override.
type NodeFunc func(ctx context.Context, state State) (any, error)

// ConditionalFunc determines the next node based on state.
type ConditionalFunc func(ctx context.Context, state State) (string, error)

// Node represents a node in the graph. Nodes are primarily functions with
// metadata.
type Node struct {
	ID          string
	Name        string
	Description string
	Function    NodeFunc
}

// Edge represents a static edge in the graph.
type Edge struct {
	From string
	To   string
}

// ConditionalEdge represents a conditional edge with routing logic.
// The condition result is mapped through PathMap to a declared target.
type ConditionalEdge struct {
	From      string
	Condition ConditionalFunc
	PathMap   map[string]string
}

// Command combines a state update with a routing directive. Nodes may
// return a *Command instead of a plain State update; callers pass a
// *Command to Executor.Invoke to resume a paused thread.
type Command struct {
	// Update is merged into state via the normal reducers before the
	// next superstep.
	Update State
	// GoTo overrides edge resolution for this step only.
	GoTo string
	// Resume is the value returned from the pending Interrupt call site.
	Resume any
	// ResumeMap maps interrupt keys to resume values when several
	// suspension points must be satisfied.
	ResumeMap map[string]any
}

// Graph is the immutable, compiled runtime structure created by
// StateGraph.Compile. Users typically do not construct Graph directly;
// the Executor runs it.
type Graph struct {
	mu               sync.RWMutex
	schema           *StateSchema
	nodes            map[string]*Node
	nodeOrder        []string
	edges            map[string][]*Edge
	conditionalEdges map[string]*ConditionalEdge
	entryPoint       string
}

// New creates a new empty graph with the given state schema.
func New(schema *StateSchema) *Graph {
	if schema == nil {
		schema = NewStateSchema()
	}
	return &Graph{
		schema:           schema,
		nodes:            make(map[string]*Node),
		edges:            make(map[string][]*Edge),
		conditionalEdges: make(map[string]*ConditionalEdge),
	}
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, exists := g.nodes[id]
	return node, exists
}

// Edges returns all outgoing edges from a node.
func (g *Graph) Edges(nodeID string) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[nodeID]
}

// ConditionalEdge returns the conditional edge from a node.
func (g *Graph) ConditionalEdge(nodeID string) (*ConditionalEdge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edge, exists := g.conditionalEdges[nodeID]
	return edge, exists
}

// EntryPoint returns the entry point node ID.
func (g *Graph) EntryPoint() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.entryPoint
}

// Schema returns the state schema.
func (g *Graph) Schema() *StateSchema {
	return g.schema
}

// NodeIDs returns node IDs in declaration order.
func (g *Graph) NodeIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.nodeOrder))
	copy(out, g.nodeOrder)
	return out
}

// validate validates the graph structure.
func (g *Graph) validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.entryPoint == "" {
		return fmt.Errorf("graph must have an entry point")
	}
	if _, exists := g.nodes[g.entryPoint]; !exists {
		return fmt.Errorf("entry point node %s does not exist", g.entryPoint)
	}
	for _, condEdge := range g.conditionalEdges {
		for _, to := range condEdge.PathMap {
			if to == End {
				continue
			}
			if _, ok := g.nodes[to]; !ok {
				return fmt.Errorf("conditional edge from %s routes to undeclared node %s", condEdge.From, to)
			}
		}
	}
	return nil
}

// addNode adds a node to the graph.
func (g *Graph) addNode(node *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if node.ID == "" {
		return fmt.Errorf("node ID cannot be empty for %+v", node)
	}
	if node.ID == Start || node.ID == End {
		return fmt.Errorf("node ID %s is reserved", node.ID)
	}
	if _, exists := g.nodes[node.ID]; exists {
		return fmt.Errorf("node with ID %s already exists", node.ID)
	}
	g.nodes[node.ID] = node
	g.nodeOrder = append(g.nodeOrder, node.ID)
	return nil
}

// addEdge adds an edge to the graph.
func (g *Graph) addEdge(edge *Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if edge.From == "" || edge.To == "" {
		return fmt.Errorf("edge from and to cannot be empty")
	}
	// Start and End are allowed as virtual endpoints.
	if edge.From != Start {
		if _, exists := g.nodes[edge.From]; !exists {
			return fmt.Errorf("source node %s does not exist", edge.From)
		}
	}
	if edge.To != End {
		if _, exists := g.nodes[edge.To]; !exists {
			return fmt.Errorf("target node %s does not exist", edge.To)
		}
	}
	g.edges[edge.From] = append(g.edges[edge.From], edge)
	return nil
}

// addConditionalEdge adds a conditional edge to the graph.
func (g *Graph) addConditionalEdge(condEdge *ConditionalEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if condEdge.From == "" {
		return fmt.Errorf("conditional edge from cannot be empty")
	}
	if condEdge.From != Start {
		if _, exists := g.nodes[condEdge.From]; !exists {
			return fmt.Errorf("source node %s does not exist", condEdge.From)
		}
	}
	for _, to := range condEdge.PathMap {
		if to != End {
			if _, exists := g.nodes[to]; !exists {
				return fmt.Errorf("target node %s does not exist", to)
			}
		}
	}
	g.conditionalEdges[condEdge.From] = condEdge
	return nil
}

// setEntryPoint sets the entry point of the graph.
func (g *Graph) setEntryPoint(nodeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if nodeID != "" {
		if _, exists := g.nodes[nodeID]; !exists {
			return fmt.Errorf("entry point node %s does not exist", nodeID)
		}
	}
	g.entryPoint = nodeID
	return nil
}
