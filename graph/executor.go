//
// Tencent is pleased to support the open source community by making trpc-docflow-go available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"trpc.group/trpc-go/trpc-docflow-go/log"
	"trpc.group/trpc-go/trpc-docflow-go/telemetry/trace"
)

// Status reports the terminal position of a run.
type Status string

const (
	// StatusDone means the router reached End with no recorded error.
	StatusDone Status = "done"
	// StatusErrorRecorded means a failure was merged into state, routing
	// continued under RecordAndContinue and the run still reached End.
	StatusErrorRecorded Status = "error_recorded"
	// StatusAborted means a fail-fast policy or cancellation forced the
	// run to End.
	StatusAborted Status = "aborted"
)

// RunResult is what every run returns, including failed ones: the
// accumulated state, terminal status and a human-readable error.
type RunResult struct {
	// FinalState is the merged state at termination, internal keys removed.
	FinalState State
	// Status is the terminal status.
	Status Status
	// Error holds the recorded error message, empty when none occurred.
	Error string
	// Done is true when the router reached End.
	Done bool
	// Failed is true when the run was aborted.
	Failed bool
	// NodeSequence lists executed node IDs in order, for determinism checks.
	NodeSequence []string
}

// ExecutionContext carries run-scoped wiring through the state so that
// subgraph nodes can inherit the checkpoint store and callbacks.
type ExecutionContext struct {
	// RunID is the unique identifier of this run.
	RunID string
	// LineageID groups the checkpoints of one logical run across resumes.
	LineageID string
	// Namespace is the checkpoint namespace of this graph.
	Namespace string
	// Saver is the checkpoint store, nil when checkpointing is off.
	Saver CheckpointSaver
	// Callbacks are the node lifecycle callbacks.
	Callbacks *NodeCallbacks

	lastCheckpointID string
}

// Executor executes a graph with the given initial state.
type Executor struct {
	graph     *Graph
	maxSteps  int
	saver     CheckpointSaver
	callbacks *NodeCallbacks
	namespace string
}

// ExecutorOption is a function that configures an Executor.
type ExecutorOption func(*ExecutorOptions)

// ExecutorOptions contains configuration options for creating an Executor.
type ExecutorOptions struct {
	// MaxSteps guards hand-built conditional cycles that are not declared
	// iteration loops (those are bounded at compile time already).
	MaxSteps int
	// Saver enables checkpointing when the graph is declared Resumable.
	Saver CheckpointSaver
	// Callbacks are node lifecycle callbacks applied to every node.
	Callbacks *NodeCallbacks
	// Namespace is the checkpoint namespace for this executor.
	Namespace string
}

// WithMaxSteps sets the maximum number of steps for graph execution.
func WithMaxSteps(maxSteps int) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.MaxSteps = maxSteps
	}
}

// WithCheckpointSaver sets the checkpoint store used by the executor.
func WithCheckpointSaver(saver CheckpointSaver) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.Saver = saver
	}
}

// WithNodeCallbacks sets the node lifecycle callbacks.
func WithNodeCallbacks(callbacks *NodeCallbacks) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.Callbacks = callbacks
	}
}

// WithCheckpointNamespace sets the checkpoint namespace.
func WithCheckpointNamespace(namespace string) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.Namespace = namespace
	}
}

// NewExecutor creates a new graph executor.
func NewExecutor(graph *Graph, opts ...ExecutorOption) (*Executor, error) {
	if err := graph.validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	var options ExecutorOptions
	options.MaxSteps = 1000 // Default step guard.
	for _, opt := range opts {
		opt(&options)
	}
	return &Executor{
		graph:     graph,
		maxSteps:  options.MaxSteps,
		saver:     options.Saver,
		callbacks: options.Callbacks,
		namespace: options.Namespace,
	}, nil
}

// RunOption configures a single run.
type RunOption func(*runOptions)

type runOptions struct {
	runID     string
	lineageID string
}

// WithRunID sets the run identifier, used for deterministic idempotency keys.
func WithRunID(id string) RunOption {
	return func(o *runOptions) {
		o.runID = id
	}
}

// WithLineageID sets the checkpoint lineage this run belongs to.
func WithLineageID(id string) RunOption {
	return func(o *runOptions) {
		o.lineageID = id
	}
}

// Execute executes the graph with the given initial state and returns a
// RunResult in every case: callers never observe a bare crash.
func (e *Executor) Execute(ctx context.Context, initialState State, opts ...RunOption) (*RunResult, error) {
	ro := runOptions{}
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.runID == "" {
		ro.runID = uuid.New().String()
	}
	if ro.lineageID == "" {
		ro.lineageID = ro.runID
	}

	ctx, span := trace.Tracer.Start(ctx, "execute_graph")
	defer span.End()

	state := initialState.Clone()
	execCtx := &ExecutionContext{
		RunID:     ro.runID,
		LineageID: ro.lineageID,
		Namespace: e.namespace,
		Saver:     e.effectiveSaver(),
		Callbacks: e.callbacks,
	}
	state[StateKeyExecContext] = execCtx
	e.saveCheckpoint(ctx, execCtx, state, e.graph.EntryPoint(), 0, CheckpointSourceInput)
	return e.runLoop(ctx, execCtx, state, e.graph.EntryPoint(), 0)
}

// Resume restores the latest checkpoint of a lineage and continues
// execution from the node the router had selected next. Already
// completed nodes are not re-executed.
func (e *Executor) Resume(ctx context.Context, lineageID string, opts ...RunOption) (*RunResult, error) {
	if lineageID == "" {
		return nil, ErrLineageIDRequired
	}
	if e.graph.ResumeMode() == NotResumable {
		return nil, ErrNotResumable
	}
	if e.saver == nil {
		return nil, fmt.Errorf("resume requires a checkpoint saver")
	}
	tuple, err := e.saver.GetTuple(ctx, CreateCheckpointConfig(lineageID, "", e.namespace))
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if tuple == nil || tuple.Checkpoint == nil {
		return nil, ErrCheckpointNotFound
	}

	ro := runOptions{lineageID: lineageID}
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.runID == "" {
		ro.runID = uuid.New().String()
	}

	ctx, span := trace.Tracer.Start(ctx, "resume_graph")
	defer span.End()

	state := State(deepCopyMap(tuple.Checkpoint.StateValues))
	execCtx := &ExecutionContext{
		RunID:            ro.runID,
		LineageID:        lineageID,
		Namespace:        e.namespace,
		Saver:            e.saver,
		Callbacks:        e.callbacks,
		lastCheckpointID: tuple.Checkpoint.ID,
	}
	state[StateKeyExecContext] = execCtx
	next := tuple.Checkpoint.NextNode
	if next == "" {
		next = e.graph.EntryPoint()
	}
	return e.runLoop(ctx, execCtx, state, next, tuple.Checkpoint.Step)
}

// effectiveSaver returns the configured saver unless the graph declared
// itself NotResumable.
func (e *Executor) effectiveSaver() CheckpointSaver {
	if e.graph.ResumeMode() == NotResumable {
		return nil
	}
	return e.saver
}

// runLoop walks the graph from current until End, merging each node's
// partial update and asking the router for the next node.
func (e *Executor) runLoop(
	ctx context.Context,
	execCtx *ExecutionContext,
	state State,
	current string,
	step int,
) (*RunResult, error) {
	var seq []string
	for {
		// Cancellation is observed at node boundaries only; an in-flight
		// collaborator call inside a node is not interrupted.
		if err := ctx.Err(); err != nil {
			return e.finish(state, seq, StatusAborted, fmt.Sprintf("run cancelled: %v", err)), nil
		}
		if current == End {
			return e.finish(state, seq, StatusDone, state.ErrorValue()), nil
		}
		// Entering a loop node with an exhausted (or empty) bound routes
		// straight to the exit target without executing the node.
		if condEdge, ok := e.graph.ConditionalEdge(current); ok && boundExhausted(condEdge, state) {
			current = condEdge.PathMap[condEdge.Bound.ExitLabel]
			continue
		}
		step++
		if step > e.maxSteps {
			return e.finish(state, seq, StatusAborted,
				fmt.Sprintf("maximum execution steps (%d) exceeded", e.maxSteps)), nil
		}
		node, exists := e.graph.Node(current)
		if !exists {
			return e.finish(state, seq, StatusAborted,
				fmt.Sprintf("node %s not found", current)), nil
		}
		seq = append(seq, current)
		state[StateKeyCurrentNodeID] = current

		priorError := state.ErrorValue()
		update, goTo, nodeErr := e.executeNode(ctx, execCtx, node, state, step)
		if nodeErr == nil && update != nil {
			state = e.graph.Schema().ApplyUpdate(state, update)
			// A node may signal failure through data by setting the error
			// field in its update; the fail-fast policy treats that the
			// same as a raised error. Aborts are not checkpointed, so a
			// resumed lineage retries from the failing node.
			if recorded := state.ErrorValue(); recorded != priorError && recorded != "" &&
				e.graph.ErrorPolicy() == FailFast {
				log.Errorf("node %s recorded error: %s", node.ID, recorded)
				return e.finish(state, seq, StatusAborted, recorded), nil
			}
		}
		if nodeErr != nil {
			// Raised failures are converted into the unified error field
			// before routing continues, so callers always get one shape back.
			log.Errorf("node %s failed: %v", node.ID, nodeErr)
			state = e.graph.Schema().ApplyUpdate(state, State{StateKeyError: nodeErr.Error()})
			if e.graph.ErrorPolicy() == FailFast {
				return e.finish(state, seq, StatusAborted, nodeErr.Error()), nil
			}
		}

		next := goTo
		if next == "" {
			var routeErr error
			next, routeErr = e.selectNextNode(ctx, state, current)
			if routeErr != nil {
				log.Errorf("routing after node %s failed: %v", node.ID, routeErr)
				state = e.graph.Schema().ApplyUpdate(state, State{StateKeyError: routeErr.Error()})
				return e.finish(state, seq, StatusAborted, routeErr.Error()), nil
			}
		}
		log.Debugf("node %s -> %s (step %d)", current, next, step)
		e.saveCheckpoint(ctx, execCtx, state, next, step, CheckpointSourceLoop)
		current = next
	}
}

// executeNode runs one node, with panic recovery and lifecycle callbacks,
// and returns its partial state update plus an optional routing override.
func (e *Executor) executeNode(
	ctx context.Context,
	execCtx *ExecutionContext,
	node *Node,
	state State,
	step int,
) (State, string, error) {
	ctx, span := trace.Tracer.Start(ctx, fmt.Sprintf("execute_node %s", node.ID))
	defer span.End()
	span.SetAttributes(
		attribute.String("trpc.go.docflow.node_id", node.ID),
		attribute.String("trpc.go.docflow.node_name", node.Name),
		attribute.String("trpc.go.docflow.run_id", execCtx.RunID),
		attribute.Int("trpc.go.docflow.step", step),
	)

	callbackCtx := &NodeCallbackContext{
		NodeID:             node.ID,
		NodeName:           node.Name,
		StepNumber:         step,
		ExecutionStartTime: time.Now(),
		RunID:              execCtx.RunID,
	}

	var result any
	var err error
	if execCtx.Callbacks != nil {
		result, err = execCtx.Callbacks.RunBeforeNode(ctx, callbackCtx, state)
		if err != nil {
			execCtx.Callbacks.RunOnNodeError(ctx, callbackCtx, state, err)
			return nil, "", err
		}
	}
	if result == nil {
		result, err = runNodeFunc(ctx, node, state)
	}
	if execCtx.Callbacks != nil {
		custom, cbErr := execCtx.Callbacks.RunAfterNode(ctx, callbackCtx, state, result, err)
		if cbErr != nil {
			err = cbErr
		} else if custom != nil {
			result, err = custom, nil
		}
	}
	if err != nil {
		span.SetAttributes(attribute.String("trpc.go.docflow.error", err.Error()))
		if execCtx.Callbacks != nil {
			execCtx.Callbacks.RunOnNodeError(ctx, callbackCtx, state, err)
		}
		return nil, "", err
	}

	switch r := result.(type) {
	case nil:
		// A no-op node: no update, routing falls through to the edges.
		return nil, "", nil
	case State:
		return r, "", nil
	case *Command:
		if r.GoTo != "" {
			span.SetAttributes(attribute.String("trpc.go.docflow.next_node", r.GoTo))
		}
		return r.Update, r.GoTo, nil
	default:
		return nil, "", fmt.Errorf("node %s returned invalid result type: %T", node.ID, result)
	}
}

// runNodeFunc invokes the node function with panic recovery, so a
// panicking node surfaces as an ordinary raised failure.
func runNodeFunc(ctx context.Context, node *Node, state State) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("node %s panicked: %v", node.ID, r)
		}
	}()
	if node.Function == nil {
		return nil, nil
	}
	return node.Function(ctx, state)
}

// selectNextNode selects the next node based on edges and conditional logic.
func (e *Executor) selectNextNode(ctx context.Context, state State, currentNodeID string) (string, error) {
	if condEdge, exists := e.graph.ConditionalEdge(currentNodeID); exists {
		label, err := condEdge.Condition(ctx, state)
		if err != nil {
			return "", fmt.Errorf("conditional edge evaluation failed: %w", err)
		}
		if nextNode, ok := condEdge.PathMap[label]; ok {
			return nextNode, nil
		}
		return "", fmt.Errorf("condition result %s not found in path map", label)
	}
	edges := e.graph.Edges(currentNodeID)
	if len(edges) == 0 {
		// No outgoing edges, assume we should go to End.
		return End, nil
	}
	// Compile guarantees a single unambiguous successor.
	return edges[0].To, nil
}

// saveCheckpoint snapshots the merged state and the routed next node.
// Checkpointing is best-effort: a failed save is logged, not fatal.
func (e *Executor) saveCheckpoint(
	ctx context.Context,
	execCtx *ExecutionContext,
	state State,
	next string,
	step int,
	source string,
) {
	if execCtx.Saver == nil {
		return
	}
	values := deepCopyMap(map[string]any(stripInternalKeys(state)))
	ckpt := NewCheckpoint(values, next, step)
	ckpt.ParentCheckpointID = execCtx.lastCheckpointID
	req := PutRequest{
		Config:     CreateCheckpointConfig(execCtx.LineageID, ckpt.ID, execCtx.Namespace),
		Checkpoint: ckpt,
		Metadata:   &CheckpointMetadata{Source: source, Step: step},
	}
	if _, err := execCtx.Saver.Put(ctx, req); err != nil {
		log.Warnf("checkpoint save failed for lineage %s: %v", execCtx.LineageID, err)
		return
	}
	execCtx.lastCheckpointID = ckpt.ID
}

// finish builds the RunResult handed back to the caller. Reaching End
// with a recorded error is reported as StatusErrorRecorded; the run
// still counts as done.
func (e *Executor) finish(state State, seq []string, status Status, errMsg string) *RunResult {
	if status == StatusDone && errMsg != "" {
		status = StatusErrorRecorded
	}
	return &RunResult{
		FinalState:   stripInternalKeys(state),
		Status:       status,
		Error:        errMsg,
		Done:         status != StatusAborted,
		Failed:       status == StatusAborted,
		NodeSequence: seq,
	}
}
