//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-graph-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-graph-go/log"
)

const (
	defaultMaxSteps    = 100
	defaultParallelism = 16
)

// ExecutionStatus is the terminal status of one Invoke call.
type ExecutionStatus string

const (
	// StatusCompleted means the graph reached the end marker.
	StatusCompleted ExecutionStatus = "completed"
	// StatusInterrupted means a node suspended awaiting external input.
	StatusInterrupted ExecutionStatus = "interrupted"
)

// ExecutionResult is the outcome of one Invoke call: either the final
// merged state, or a paused descriptor carrying the pending frontier and
// the interrupt value. An interrupt is data, never an error.
type ExecutionResult struct {
	Status   ExecutionStatus
	ThreadID string
	// FinalState is the merged state after the last committed superstep.
	FinalState State
	// NextNodes is the pending frontier when interrupted.
	NextNodes []string
	// Interrupt describes the suspension when Status is interrupted.
	Interrupt *InterruptState
	// CheckpointID is the last checkpoint written by this call.
	CheckpointID string
}

// CheckpointWrittenHook observes every checkpoint append. External
// retention jobs hang off this hook; the core never prunes.
type CheckpointWrittenHook func(threadID string, seq int64)

// Executor advances a compiled graph one superstep at a time, persisting a
// checkpoint after every step. Exactly one superstep per thread ID may be
// in flight at a time; see ThreadLocker.
type Executor struct {
	graph    *Graph
	saver    CheckpointSaver
	pool     *ants.Pool
	maxSteps int
	locker   ThreadLocker
	hooks    []CheckpointWrittenHook
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*ExecutorOptions)

// ExecutorOptions contains configuration options for creating an Executor.
type ExecutorOptions struct {
	// Saver persists checkpoints. Without one the executor runs
	// ephemerally and interrupts are unsupported.
	Saver CheckpointSaver
	// MaxSteps bounds supersteps per invocation (default: 100).
	MaxSteps int
	// Parallelism is the size of the node task pool (default: 16).
	Parallelism int
	// Locker serializes supersteps per thread (default: in-process).
	Locker ThreadLocker
	// Hooks observe checkpoint appends.
	Hooks []CheckpointWrittenHook
}

// WithCheckpointSaver sets the checkpoint saver.
func WithCheckpointSaver(saver CheckpointSaver) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.Saver = saver
	}
}

// WithMaxSteps sets the maximum number of supersteps per invocation.
func WithMaxSteps(maxSteps int) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.MaxSteps = maxSteps
	}
}

// WithParallelism sets the node task pool size.
func WithParallelism(n int) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.Parallelism = n
	}
}

// WithThreadLocker supplies the per-thread mutual exclusion hook.
// Production deployments sharing threads across processes must pass a
// distributed lock.
func WithThreadLocker(locker ThreadLocker) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.Locker = locker
	}
}

// WithCheckpointWrittenHook registers an observer fired after every
// checkpoint append.
func WithCheckpointWrittenHook(hook CheckpointWrittenHook) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.Hooks = append(opts.Hooks, hook)
	}
}

// NewExecutor creates a new executor for a compiled graph.
func NewExecutor(graph *Graph, opts ...ExecutorOption) (*Executor, error) {
	if err := graph.validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	options := ExecutorOptions{
		MaxSteps:    defaultMaxSteps,
		Parallelism: defaultParallelism,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Locker == nil {
		options.Locker = NewProcessThreadLocker()
	}
	pool, err := ants.NewPool(options.Parallelism)
	if err != nil {
		return nil, fmt.Errorf("create task pool: %w", err)
	}
	return &Executor{
		graph:    graph,
		saver:    options.Saver,
		pool:     pool,
		maxSteps: options.MaxSteps,
		locker:   options.Locker,
		hooks:    options.Hooks,
	}, nil
}

// Close releases the executor's task pool. The checkpoint saver is owned
// by the caller and is not closed.
func (e *Executor) Close() {
	e.pool.Release()
}

// InvokeOption configures one Invoke call.
type InvokeOption func(*InvokeOptions)

// InvokeOptions contains per-invocation configuration.
type InvokeOptions struct {
	// ThreadID addresses the execution lineage. Required.
	ThreadID string
}

// WithThreadID sets the thread ID for the invocation.
func WithThreadID(threadID string) InvokeOption {
	return func(opts *InvokeOptions) {
		opts.ThreadID = threadID
	}
}

// runContext carries the planned starting point of one invocation.
type runContext struct {
	state     State
	frontier  []string
	parent    *Checkpoint
	source    string
	resumeMap map[string]any
}

// Invoke runs the graph for a thread until it reaches the end marker or a
// node suspends. input is either a State (fresh input) or a *Command
// (resume directive for a paused thread).
//
// Fresh input on a thread suspended on an interrupt returns
// ErrThreadPaused; a resume value for a thread with no pending interrupt
// returns ErrNoPendingInterrupt. A node failure aborts the current
// superstep without committing a checkpoint and surfaces as
// *NodeExecutionError; the previous checkpoint remains the recovery point
// and a later Invoke, with input or an empty Command, retries the pending
// frontier.
func (e *Executor) Invoke(ctx context.Context, input any, opts ...InvokeOption) (*ExecutionResult, error) {
	var options InvokeOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.ThreadID == "" {
		return nil, ErrThreadIDRequired
	}
	release, err := e.locker.AcquireThread(ctx, options.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("acquire thread lock: %w", err)
	}
	defer release()

	var latest *Checkpoint
	if e.saver != nil {
		latest, err = e.saver.Latest(ctx, options.ThreadID)
		if err != nil {
			return nil, fmt.Errorf("load latest checkpoint for thread %s: %w", options.ThreadID, err)
		}
	}

	var run *runContext
	switch in := input.(type) {
	case *Command:
		run, err = e.planResume(latest, in)
	case Command:
		run, err = e.planResume(latest, &in)
	case State:
		run, err = e.planInput(ctx, latest, in)
	case map[string]any:
		run, err = e.planInput(ctx, latest, State(in))
	case nil:
		run, err = e.planInput(ctx, latest, State{})
	default:
		err = fmt.Errorf("input must be graph.State or *graph.Command, got %T", input)
	}
	if err != nil {
		return nil, err
	}
	return e.runLoop(ctx, options.ThreadID, run)
}

// planInput prepares a run starting from fresh input. A completed thread
// continues its lineage: the input is reduced into the checkpointed state
// and the graph restarts from the entry point. A thread left mid-graph by
// a node failure or a crash (pending frontier, no interrupt) is retried
// from its latest checkpoint instead.
func (e *Executor) planInput(ctx context.Context, latest *Checkpoint, input State) (*runContext, error) {
	if latest.IsInterrupted() {
		return nil, fmt.Errorf("thread %s: %w", latest.ThreadID, ErrThreadPaused)
	}
	state := e.graph.Schema().ApplyDefaults(State{})
	if latest != nil {
		state = deepCopyState(latest.State)
	}
	state = e.graph.Schema().ApplyUpdate(state, input)
	if latest.IsPaused() {
		// Retry the pending frontier rather than restarting the graph.
		return &runContext{
			state:    state,
			frontier: append([]string(nil), latest.NextNodes...),
			parent:   latest,
			source:   SourceInput,
		}, nil
	}
	frontier, err := e.planEntry(ctx, state)
	if err != nil {
		return nil, err
	}
	return &runContext{
		state:    state,
		frontier: frontier,
		parent:   latest,
		source:   SourceInput,
	}, nil
}

// planResume prepares a run continuing a paused thread from its latest
// checkpoint, satisfying the pending interrupt. A paused checkpoint
// without an interrupt marks a thread stopped by a node failure or a
// crash; a Command retries its pending frontier, though a bare Resume
// value is rejected there because no suspension point would consume it.
func (e *Executor) planResume(latest *Checkpoint, cmd *Command) (*runContext, error) {
	if e.saver == nil {
		return nil, fmt.Errorf("resume: %w", ErrSaverRequired)
	}
	if latest == nil || !latest.IsPaused() {
		return nil, ErrNoPendingInterrupt
	}
	if !latest.IsInterrupted() && cmd.Resume != nil {
		return nil, fmt.Errorf("thread %s has no suspension point to consume the resume value: %w",
			latest.ThreadID, ErrNoPendingInterrupt)
	}
	state := deepCopyState(latest.State)
	if cmd.Update != nil {
		state = e.graph.Schema().ApplyUpdate(state, cmd.Update)
	}
	resumeMap := make(map[string]any)
	if latest.IsInterrupted() {
		// Replay values consumed by earlier suspension points of the node.
		for k, v := range latest.Interrupt.Used {
			resumeMap[k] = v
		}
	}
	for k, v := range cmd.ResumeMap {
		resumeMap[k] = v
	}
	if latest.IsInterrupted() && cmd.Resume != nil {
		resumeMap[latest.Interrupt.Key] = cmd.Resume
	}
	frontier := append([]string(nil), latest.NextNodes...)
	if cmd.GoTo != "" {
		// Redirect control flow for this step only.
		if cmd.GoTo == End {
			frontier = nil
		} else {
			if _, ok := e.graph.Node(cmd.GoTo); !ok {
				return nil, fmt.Errorf("command goto target %s does not exist", cmd.GoTo)
			}
			frontier = []string{cmd.GoTo}
		}
	}
	return &runContext{
		state:     state,
		frontier:  frontier,
		parent:    latest,
		source:    SourceLoop,
		resumeMap: resumeMap,
	}, nil
}

// planEntry resolves the initial frontier from the virtual start node.
func (e *Executor) planEntry(ctx context.Context, state State) ([]string, error) {
	if condEdge, ok := e.graph.ConditionalEdge(Start); ok {
		target, err := e.resolveConditional(ctx, condEdge, state)
		if err != nil {
			return nil, err
		}
		if target == End {
			return nil, nil
		}
		return []string{target}, nil
	}
	var frontier []string
	seen := make(map[string]bool)
	for _, edge := range e.graph.Edges(Start) {
		if edge.To == End || seen[edge.To] {
			continue
		}
		seen[edge.To] = true
		frontier = append(frontier, edge.To)
	}
	if len(frontier) == 0 {
		frontier = []string{e.graph.EntryPoint()}
	}
	return frontier, nil
}

// runLoop executes supersteps until the frontier is empty or a node
// suspends, committing one checkpoint per superstep.
func (e *Executor) runLoop(ctx context.Context, threadID string, run *runContext) (*ExecutionResult, error) {
	state := run.state
	frontier := run.frontier
	parent := run.parent
	source := run.source
	resumeMap := run.resumeMap

	steps := 0
	for len(frontier) > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		steps++
		if steps > e.maxSteps {
			return nil, fmt.Errorf("maximum execution steps (%d) exceeded for thread %s", e.maxSteps, threadID)
		}

		started := time.Now()
		outcomes, err := e.runSuperstep(ctx, state, frontier, resumeMap)
		resumeMap = nil
		if err != nil {
			// Superstep not committed; the previous checkpoint remains
			// the recovery point.
			return nil, err
		}

		var interrupted *nodeOutcome
		for _, oc := range outcomes {
			if interrupted == nil && oc.interrupt != nil {
				interrupted = oc
			}
			if oc.update != nil {
				state = e.graph.Schema().ApplyUpdate(state, oc.update)
			}
		}
		state = stripInternalKeys(state)

		next, err := e.resolveFrontier(ctx, state, frontier, outcomes)
		if err != nil {
			return nil, err
		}

		ckptSource := source
		source = SourceLoop
		if interrupted != nil {
			ckptSource = SourceInterrupt
		}
		ckpt := NewCheckpoint(threadID, parent, state, next, ckptSource)
		if interrupted != nil {
			ckpt.Interrupt = &InterruptState{
				NodeID: interrupted.interrupt.NodeID,
				Key:    interrupted.interrupt.Key,
				Value:  interrupted.interrupt.Value,
				Step:   ckpt.Metadata.Step,
				Used:   interrupted.used,
			}
		}
		if err := e.commit(ctx, ckpt); err != nil {
			return nil, err
		}
		log.Debugf("thread %s superstep %d committed in %s (next=%v)",
			threadID, ckpt.Metadata.Step, time.Since(started), next)
		parent = ckpt

		if interrupted != nil {
			return &ExecutionResult{
				Status:       StatusInterrupted,
				ThreadID:     threadID,
				FinalState:   stripInternalKeys(state),
				NextNodes:    next,
				Interrupt:    ckpt.Interrupt,
				CheckpointID: ckpt.ID,
			}, nil
		}
		frontier = next
	}

	// A resume that redirected straight to End ran zero supersteps; the
	// thread still needs an unpausing checkpoint.
	if steps == 0 && parent.IsPaused() {
		ckpt := NewCheckpoint(threadID, parent, state, nil, SourceLoop)
		if err := e.commit(ctx, ckpt); err != nil {
			return nil, err
		}
		parent = ckpt
	}

	result := &ExecutionResult{
		Status:     StatusCompleted,
		ThreadID:   threadID,
		FinalState: stripInternalKeys(state),
	}
	if parent != nil {
		result.CheckpointID = parent.ID
	}
	return result, nil
}

// commit appends a checkpoint and notifies observers.
func (e *Executor) commit(ctx context.Context, ckpt *Checkpoint) error {
	if e.saver == nil {
		if ckpt.Interrupt != nil {
			return fmt.Errorf("interrupt at node %s: %w", ckpt.Interrupt.NodeID, ErrSaverRequired)
		}
		return nil
	}
	if err := e.saver.Put(ctx, ckpt); err != nil {
		return fmt.Errorf("append checkpoint seq %d for thread %s: %w", ckpt.Seq, ckpt.ThreadID, err)
	}
	for _, hook := range e.hooks {
		hook(ckpt.ThreadID, ckpt.Seq)
	}
	return nil
}

// nodeOutcome is the explicit result of one node task within a superstep:
// completed with an update, suspended on an interrupt, or failed.
type nodeOutcome struct {
	nodeID    string
	update    State
	command   *Command
	interrupt *InterruptError
	used      map[string]any
	err       error
}

// runSuperstep executes all due nodes concurrently against private state
// clones. The merge back into shared state happens in the caller, in
// frontier order, so the result is deterministic regardless of completion
// order.
func (e *Executor) runSuperstep(ctx context.Context, state State, frontier []string, resumeMap map[string]any) ([]*nodeOutcome, error) {
	outcomes := make([]*nodeOutcome, len(frontier))
	var wg sync.WaitGroup
	for i, nodeID := range frontier {
		node, ok := e.graph.Node(nodeID)
		if !ok {
			return nil, fmt.Errorf("node %s not found", nodeID)
		}
		taskState := state.Clone()
		if resumeMap != nil {
			rm := make(map[string]any, len(resumeMap))
			for k, v := range resumeMap {
				rm[k] = v
			}
			taskState[StateKeyResumeMap] = rm
		}
		outcome := &nodeOutcome{nodeID: nodeID}
		outcomes[i] = outcome
		wg.Add(1)
		task := e.newNodeTask(ctx, node, taskState, outcome, &wg)
		if err := e.pool.Submit(task); err != nil {
			wg.Done()
			outcome.err = fmt.Errorf("submit task: %w", err)
		}
	}
	wg.Wait()
	for _, oc := range outcomes {
		if oc.err != nil {
			return nil, &NodeExecutionError{Node: oc.nodeID, Err: oc.err}
		}
	}
	return outcomes, nil
}

// newNodeTask builds the pool task for one node execution.
func (e *Executor) newNodeTask(ctx context.Context, node *Node, taskState State, outcome *nodeOutcome, wg *sync.WaitGroup) func() {
	return func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				outcome.err = fmt.Errorf("panic: %v", r)
			}
		}()
		result, err := node.Function(ctx, taskState)
		// Resume values consumed during this execution, kept for replay.
		if usedMap, ok := taskState[StateKeyUsedInterrupts].(map[string]any); ok && len(usedMap) > 0 {
			outcome.used = usedMap
		}
		if err != nil {
			if interrupt, ok := GetInterruptError(err); ok {
				interrupt.NodeID = node.ID
				outcome.interrupt = interrupt
				return
			}
			outcome.err = err
			return
		}
		switch r := result.(type) {
		case nil:
		case *Command:
			outcome.command = r
			outcome.update = r.Update
		case Command:
			outcome.command = &r
			outcome.update = r.Update
		case State:
			outcome.update = r
		case map[string]any:
			outcome.update = State(r)
		default:
			outcome.err = fmt.Errorf("node returned invalid result type %T", result)
		}
	}
}

// resolveFrontier computes the next due set from the executed nodes'
// outgoing edges. Suspended nodes stay in the frontier at their position;
// a node Command.GoTo overrides its edge resolution.
func (e *Executor) resolveFrontier(ctx context.Context, state State, frontier []string, outcomes []*nodeOutcome) ([]string, error) {
	var next []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id == "" || id == End || seen[id] {
			return
		}
		seen[id] = true
		next = append(next, id)
	}
	for i, nodeID := range frontier {
		oc := outcomes[i]
		if oc.interrupt != nil {
			add(nodeID)
			continue
		}
		if oc.command != nil && oc.command.GoTo != "" {
			if oc.command.GoTo != End {
				if _, ok := e.graph.Node(oc.command.GoTo); !ok {
					return nil, fmt.Errorf("node %s goto target %s does not exist", nodeID, oc.command.GoTo)
				}
			}
			add(oc.command.GoTo)
			continue
		}
		if condEdge, ok := e.graph.ConditionalEdge(nodeID); ok {
			target, err := e.resolveConditional(ctx, condEdge, state)
			if err != nil {
				return nil, err
			}
			add(target)
			continue
		}
		for _, edge := range e.graph.Edges(nodeID) {
			add(edge.To)
		}
	}
	return next, nil
}

// resolveConditional evaluates a conditional edge against merged state.
func (e *Executor) resolveConditional(ctx context.Context, condEdge *ConditionalEdge, state State) (string, error) {
	result, err := condEdge.Condition(ctx, state.Clone())
	if err != nil {
		return "", fmt.Errorf("conditional edge from %s: %w", condEdge.From, err)
	}
	target, ok := condEdge.PathMap[result]
	if !ok {
		return "", fmt.Errorf("conditional edge from %s: result %q not found in path map", condEdge.From, result)
	}
	return target, nil
}

// StateSnapshot is a read-only view of one checkpoint.
type StateSnapshot struct {
	ThreadID     string
	CheckpointID string
	Seq          int64
	ParentID     string
	CreatedAt    time.Time
	State        State
	// NextNodes is the pending frontier; empty means the thread is not
	// mid-graph.
	NextNodes []string
	// Interrupt is the pending interrupt, if the thread is paused on one.
	Interrupt *InterruptState
	Metadata  *CheckpointMetadata
}

// GetState returns the latest checkpoint view for a thread, or nil when
// the thread has no checkpoints. It is read-committed: concurrent with an
// in-flight superstep it observes either the pre- or post-step
// checkpoint.
func (e *Executor) GetState(ctx context.Context, threadID string) (*StateSnapshot, error) {
	if e.saver == nil {
		return nil, ErrSaverRequired
	}
	if threadID == "" {
		return nil, ErrThreadIDRequired
	}
	latest, err := e.saver.Latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}
	return snapshotFromCheckpoint(latest), nil
}

// GetHistory returns the thread's checkpoints newest first.
func (e *Executor) GetHistory(ctx context.Context, threadID string) ([]*StateSnapshot, error) {
	if e.saver == nil {
		return nil, ErrSaverRequired
	}
	if threadID == "" {
		return nil, ErrThreadIDRequired
	}
	checkpoints, err := e.saver.List(ctx, threadID, nil)
	if err != nil {
		return nil, err
	}
	snapshots := make([]*StateSnapshot, 0, len(checkpoints))
	for _, ckpt := range checkpoints {
		snapshots = append(snapshots, snapshotFromCheckpoint(ckpt))
	}
	return snapshots, nil
}

func snapshotFromCheckpoint(ckpt *Checkpoint) *StateSnapshot {
	copied := ckpt.Copy()
	return &StateSnapshot{
		ThreadID:     copied.ThreadID,
		CheckpointID: copied.ID,
		Seq:          copied.Seq,
		ParentID:     copied.ParentID,
		CreatedAt:    copied.Timestamp,
		State:        copied.State,
		NextNodes:    copied.NextNodes,
		Interrupt:    copied.Interrupt,
		Metadata:     copied.Metadata,
	}
}
