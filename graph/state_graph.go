//
// Tencent is pleased to support the open source community by making trpc-docflow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-docflow-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"fmt"
)

// StateGraph provides a fluent interface for building graphs.
// This is the primary public API for creating executable graphs.
//
// StateGraph provides:
//   - Type-safe state management with schemas and reducers
//   - Conditional routing with compile-time label validation
//   - Bounded iteration loops over list fields
//   - Sub-pipeline composition with input/output projection
//
// Example usage:
//
//	schema := NewStateSchema().AddField("counter", StateField{...})
//	graph, err := NewStateGraph(schema).
//	  AddNode("increment", incrementFunc).
//	  SetEntryPoint("increment").
//	  SetFinishPoint("increment").
//	  DeclareNotResumable().
//	  Compile()
//
// The compiled Graph can then be executed with NewExecutor(graph).
type StateGraph struct {
	graph *Graph
	// deferred collects construction errors so the fluent chain stays
	// usable; Compile reports the first one.
	deferred []error
}

// NewStateGraph creates a new graph builder with the given state schema.
func NewStateGraph(schema *StateSchema) *StateGraph {
	return &StateGraph{
		graph: New(schema),
	}
}

// Option is a function that configures a Node.
type Option func(*Node)

// WithName sets the name of the node.
func WithName(name string) Option {
	return func(node *Node) {
		node.Name = name
	}
}

// WithDescription sets the description of the node.
func WithDescription(description string) Option {
	return func(node *Node) {
		node.Description = description
	}
}

// AddNode adds a node with the given ID and function.
// The name and description of the node can be set with the options.
func (sg *StateGraph) AddNode(id string, function NodeFunc, opts ...Option) *StateGraph {
	node := &Node{
		ID:       id,
		Name:     id,
		Function: function,
	}
	for _, opt := range opts {
		opt(node)
	}
	sg.record(sg.graph.addNode(node))
	return sg
}

// AddSubgraphNode adds a node that runs another compiled graph as a
// sub-pipeline. Only the declared input fields are projected into the
// child state and only the declared output fields are merged back;
// fields private to the child never leak into the parent state.
func (sg *StateGraph) AddSubgraphNode(
	id string,
	sub *Graph,
	inputs []string,
	outputs []string,
	opts ...Option,
) *StateGraph {
	fn, err := NewSubgraphNodeFunc(id, sub, inputs, outputs)
	if err != nil {
		sg.record(err)
		return sg
	}
	sg.AddNode(id, fn, opts...)
	return sg
}

// AddEdge adds a fixed edge between two nodes.
func (sg *StateGraph) AddEdge(from, to string) *StateGraph {
	edge := &Edge{
		From: from,
		To:   to,
	}
	sg.record(sg.graph.addEdge(edge))
	return sg
}

// AddConditionalEdges adds conditional routing from a node. The labels
// slice declares every value the condition function may return; Compile
// rejects the graph when a declared label has no path-map entry.
func (sg *StateGraph) AddConditionalEdges(
	from string,
	condition ConditionalFunc,
	labels []string,
	pathMap map[string]string,
) *StateGraph {
	condEdge := &ConditionalEdge{
		From:      from,
		Condition: condition,
		Labels:    labels,
		PathMap:   pathMap,
	}
	sg.record(sg.graph.addConditionalEdge(condEdge))
	return sg
}

// AddIterationEdge adds the bounded loop routing for a node that
// processes one list item per pass. The node re-enters itself while the
// cursor field is below len(items) and falls through to next once the
// list is exhausted. An empty list routes to next without executing the
// node at all.
func (sg *StateGraph) AddIterationEdge(from, itemsKey, cursorKey, next string) *StateGraph {
	bound := &IterationBound{
		ItemsKey:  itemsKey,
		CursorKey: cursorKey,
		ExitLabel: LabelNext,
	}
	condEdge := &ConditionalEdge{
		From:      from,
		Condition: newIterationCondition(bound),
		Labels:    []string{LabelLoop, LabelNext},
		PathMap: map[string]string{
			LabelLoop: from,
			LabelNext: next,
		},
		Bound: bound,
	}
	sg.record(sg.graph.addConditionalEdge(condEdge))
	return sg
}

// SetEntryPoint sets the entry point of the graph.
// This is equivalent to addEdge(Start, nodeId).
func (sg *StateGraph) SetEntryPoint(nodeID string) *StateGraph {
	sg.record(sg.graph.setEntryPoint(nodeID))
	// Also add an edge from Start to make it explicit.
	sg.AddEdge(Start, nodeID)
	return sg
}

// SetFinishPoint adds an edge from the node to End.
// This is equivalent to addEdge(nodeId, End).
func (sg *StateGraph) SetFinishPoint(nodeID string) *StateGraph {
	sg.AddEdge(nodeID, End)
	return sg
}

// SetErrorPolicy declares how the graph reacts to node failures.
// The default is RecordAndContinue.
func (sg *StateGraph) SetErrorPolicy(policy ErrorPolicy) *StateGraph {
	sg.graph.setErrorPolicy(policy)
	return sg
}

// DeclareResumable marks the graph as checkpointing when a saver is
// configured. Every graph must declare one of the two modes.
func (sg *StateGraph) DeclareResumable() *StateGraph {
	sg.graph.setResumeMode(Resumable)
	return sg
}

// DeclareNotResumable marks the graph as never checkpointing, even when
// embedded in a checkpointing parent.
func (sg *StateGraph) DeclareNotResumable() *StateGraph {
	sg.graph.setResumeMode(NotResumable)
	return sg
}

// Compile compiles the graph and returns it for execution.
func (sg *StateGraph) Compile() (*Graph, error) {
	if len(sg.deferred) > 0 {
		return nil, fmt.Errorf("invalid graph: %w", sg.deferred[0])
	}
	if err := sg.graph.validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	return sg.graph, nil
}

// MustCompile compiles the graph or panics if invalid.
func (sg *StateGraph) MustCompile() *Graph {
	graph, err := sg.Compile()
	if err != nil {
		panic(err)
	}
	return graph
}

func (sg *StateGraph) record(err error) {
	if err != nil {
		sg.deferred = append(sg.deferred, err)
	}
}
