//
// Tencent is pleased to support the open source community by making trpc-docflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docflow-go is licensed under the Apache License Version 2.0.
//
//

// Package graph provides graph-based pipeline execution functionality.
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
// It receives a read-only view of the current state and returns a
// partial state update (State) or a *Command for combined update + routing.
type NodeFunc func(ctx context.Context, state State) (any, error)

// ConditionalFunc is a function that determines the next node based on state.
// The returned label is resolved against the edge's path map.
type ConditionalFunc func(ctx context.Context, state State) (string, error)

// ErrorPolicy declares how a graph reacts to a node failure.
type ErrorPolicy int

const (
	// RecordAndContinue merges the failure into the error state field and
	// keeps routing, so downstream nodes can observe and recover from it.
	RecordAndContinue ErrorPolicy = iota
	// FailFast redirects execution to End as soon as a failure occurs.
	FailFast
)

// ResumeMode declares whether a graph participates in checkpointing.
// Every graph must declare one before Compile succeeds; subgraphs that
// declare NotResumable are skipped by the parent's checkpoint store.
type ResumeMode int

const (
	// ResumeModeUnset means no declaration was made. Compile rejects it.
	ResumeModeUnset ResumeMode = iota
	// Resumable means the graph saves checkpoints when a saver is configured
	// and inherits the parent saver when embedded as a subgraph.
	Resumable
	// NotResumable means the graph never checkpoints, even when embedded in
	// a checkpointing parent.
	NotResumable
)

// Node represents a node in the graph.
// Nodes are primarily functions with metadata.
type Node struct {
	ID          string
	Name        string
	Description string
	Function    NodeFunc
}

// Edge represents a fixed edge in the graph.
type Edge struct {
	From string
	To   string
}

// IterationBound declares the list field bounding a loop-back edge.
// The loop terminates once the cursor field reaches len(items).
type IterationBound struct {
	ItemsKey  string
	CursorKey string
	// ExitLabel is the path-map label taken when the bound is reached.
	ExitLabel string
}

// ConditionalEdge represents a conditional edge with routing logic.
type ConditionalEdge struct {
	From      string
	Condition ConditionalFunc
	// Labels declares every label the condition function may return.
	// Compile verifies each one is mapped in PathMap.
	Labels  []string
	PathMap map[string]string // Maps condition result to target node.
	// Bound is non-nil when this edge loops back to From. Required for
	// loop-back edges so termination is checkable at compile time.
	Bound *IterationBound
}

// Graph represents a directed graph of nodes and edges.
// This is the compiled runtime structure created by StateGraph.Compile().
// Users typically don't create Graph instances directly; use StateGraph.
//
// The Graph type is the immutable runtime representation that gets executed
// by the Executor.
type Graph struct {
	mu               sync.RWMutex
	schema           *StateSchema
	nodes            map[string]*Node
	edges            map[string][]*Edge
	conditionalEdges map[string]*ConditionalEdge
	entryPoint       string
	errorPolicy      ErrorPolicy
	resumeMode       ResumeMode
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

// Edges returns all outgoing fixed edges from a node.
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

// ErrorPolicy returns the declared failure policy.
func (g *Graph) ErrorPolicy() ErrorPolicy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.errorPolicy
}

// ResumeMode returns the declared checkpointing mode.
func (g *Graph) ResumeMode() ResumeMode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.resumeMode
}

// validate validates the graph structure. Construction defects such as
// dangling targets, ambiguous fixed-edge sets, unmapped labels and
// unbounded loop-back edges are rejected here, never at run time.
func (g *Graph) validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.entryPoint == "" {
		return fmt.Errorf("graph must have an entry point")
	}
	if _, exists := g.nodes[g.entryPoint]; !exists {
		return fmt.Errorf("entry point node %s does not exist", g.entryPoint)
	}
	if g.resumeMode == ResumeModeUnset {
		return fmt.Errorf("graph must declare a resume mode: %w", ErrResumeModeUndeclared)
	}
	if err := g.validateEdges(); err != nil {
		return err
	}
	if err := g.validateConditionalEdges(); err != nil {
		return err
	}
	return g.validateReachability()
}

// validateEdges checks fixed edges for dangling targets and ambiguity.
func (g *Graph) validateEdges() error {
	for from, edges := range g.edges {
		if from != Start {
			if _, exists := g.nodes[from]; !exists {
				return fmt.Errorf("edge source node %s does not exist", from)
			}
		}
		// A single unambiguous successor per node is a hard requirement;
		// two fixed edges from the same node is a construction defect.
		if len(edges) > 1 {
			return fmt.Errorf("node %s has %d fixed edges, want at most one: %w",
				from, len(edges), ErrAmbiguousEdges)
		}
		if _, hasCond := g.conditionalEdges[from]; hasCond && len(edges) > 0 {
			return fmt.Errorf("node %s has both a fixed and a conditional edge: %w",
				from, ErrAmbiguousEdges)
		}
		for _, edge := range edges {
			if edge.To == End {
				continue
			}
			if _, exists := g.nodes[edge.To]; !exists {
				return fmt.Errorf("edge target node %s does not exist", edge.To)
			}
		}
	}
	return nil
}

// validateConditionalEdges checks label mapping completeness and loop bounds.
func (g *Graph) validateConditionalEdges() error {
	for from, condEdge := range g.conditionalEdges {
		if from != Start {
			if _, exists := g.nodes[from]; !exists {
				return fmt.Errorf("conditional edge source node %s does not exist", from)
			}
		}
		if len(condEdge.PathMap) == 0 {
			return fmt.Errorf("conditional edge from %s has an empty path map", from)
		}
		for label, to := range condEdge.PathMap {
			if to == End {
				continue
			}
			if _, exists := g.nodes[to]; !exists {
				return fmt.Errorf("conditional edge from %s maps label %s to missing node %s",
					from, label, to)
			}
		}
		for _, label := range condEdge.Labels {
			if _, ok := condEdge.PathMap[label]; !ok {
				return fmt.Errorf("conditional edge from %s declares label %s with no path-map entry: %w",
					from, label, ErrUnmappedLabel)
			}
		}
		// A loop-back edge without a declared items bound cannot be proven
		// to terminate.
		for _, to := range condEdge.PathMap {
			if to == from && condEdge.Bound == nil {
				return fmt.Errorf("node %s loops back to itself without a declared bound: %w",
					from, ErrUnboundedLoop)
			}
		}
		if condEdge.Bound != nil {
			if condEdge.Bound.ItemsKey == "" || condEdge.Bound.CursorKey == "" {
				return fmt.Errorf("node %s declares an iteration bound with empty keys", from)
			}
			if _, ok := condEdge.PathMap[condEdge.Bound.ExitLabel]; !ok {
				return fmt.Errorf("node %s iteration exit label %s has no path-map entry",
					from, condEdge.Bound.ExitLabel)
			}
		}
	}
	return nil
}

// validateReachability checks that every node reachable from the entry
// point has an outgoing edge or is explicitly wired to End.
func (g *Graph) validateReachability() error {
	visited := make(map[string]bool)
	stack := []string{g.entryPoint}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == End || visited[id] {
			continue
		}
		visited[id] = true
		var targets []string
		for _, e := range g.edges[id] {
			targets = append(targets, e.To)
		}
		if condEdge, ok := g.conditionalEdges[id]; ok {
			for _, to := range condEdge.PathMap {
				targets = append(targets, to)
			}
		}
		if len(targets) == 0 {
			return fmt.Errorf("node %s is reachable but has no outgoing edge; wire it to End", id)
		}
		stack = append(stack, targets...)
	}
	return nil
}

// Command represents a node result that combines a state update with routing.
type Command struct {
	Update State
	GoTo   string
}

// addNode adds a node to the graph.
func (g *Graph) addNode(node *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if node.ID == "" {
		return fmt.Errorf("node ID cannot be empty for %+v", node)
	}
	if _, exists := g.nodes[node.ID]; exists {
		return fmt.Errorf("node with ID %s already exists for %+v", node.ID, node)
	}
	g.nodes[node.ID] = node
	return nil
}

// addEdge adds an edge to the graph. Target existence is re-checked by
// validate so that edges may be declared before their nodes.
func (g *Graph) addEdge(edge *Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if edge.From == "" || edge.To == "" {
		return fmt.Errorf("edge from and to cannot be empty")
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
	if _, exists := g.conditionalEdges[condEdge.From]; exists {
		return fmt.Errorf("node %s already has a conditional edge", condEdge.From)
	}
	g.conditionalEdges[condEdge.From] = condEdge
	return nil
}

// setEntryPoint sets the entry point of the graph.
func (g *Graph) setEntryPoint(nodeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entryPoint = nodeID
	return nil
}

// setErrorPolicy sets the failure policy of the graph.
func (g *Graph) setErrorPolicy(policy ErrorPolicy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errorPolicy = policy
}

// setResumeMode sets the checkpointing declaration of the graph.
func (g *Graph) setResumeMode(mode ResumeMode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resumeMode = mode
}
