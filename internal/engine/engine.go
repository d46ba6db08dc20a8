// Package engine drives workflow graphs: it invokes agents, merges
// their results into the shared state, follows routing until the
// terminal sentinel, and always hands the caller a structured result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docuflow/docuflow/internal/agent"
	"github.com/docuflow/docuflow/internal/graph"
	"github.com/docuflow/docuflow/pkg/models"
)

// ErrStepBudgetExhausted indicates traversal ran far past the point
// where any well-formed graph would have finished.
var ErrStepBudgetExhausted = errors.New("workflow exceeded its step budget")

// Request carries everything one workflow run needs.
type Request struct {
	// Graph is the validated workflow graph.
	Graph *graph.WorkflowGraph
	// State is the workflow-owned shared state.
	State *models.WorkflowState
	// Strategy is the coordination strategy the graph was built from.
	Strategy models.CoordinationStrategy
	// Parallel enables fan-out in collaborative and dynamic topologies.
	Parallel bool
	// Timeout bounds the whole run; zero means no bound beyond ctx.
	Timeout time.Duration
}

// Engine traverses workflow graphs. It is stateless across runs and
// safe for concurrent use.
type Engine struct {
	debugLog func(format string, args ...interface{})
}

// New creates an engine.
func New() *Engine {
	return &Engine{debugLog: func(format string, args ...interface{}) {}}
}

// SetDebugLog sets the debug logging function.
func (e *Engine) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		e.debugLog = fn
	}
}

// run-scoped bookkeeping: per-agent results for metrics and the
// cleanup set.
type runState struct {
	req     Request
	results []agent.Result
	cleaned map[string]bool
	fanned  map[string]bool
	started time.Time
}

// Run executes the workflow to completion, critical failure, or
// cancellation. It always returns a structured result; agent-level
// trouble lands on the result's error list rather than an error return.
func (e *Engine) Run(ctx context.Context, req Request) *models.ExecutionResult {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	rs := &runState{
		req:     req,
		cleaned: make(map[string]bool),
		fanned:  make(map[string]bool),
		started: time.Now(),
	}
	// The deferred call only covers panics; cleaned makes it a no-op
	// on the normal path.
	defer e.cleanupAll(rs)

	e.debugLog("[engine.Run] workflow=%s topology=%s parallel=%v",
		req.State.WorkflowID, req.Strategy.Topology, req.Parallel)

	aborted := e.traverse(ctx, rs)

	// Cleanup must run before the result snapshots the error list, so
	// a failing Cleanup still reaches the caller.
	e.cleanupAll(rs)
	return e.buildResult(rs, aborted)
}

// traverse walks the graph and returns true if the run aborted.
func (e *Engine) traverse(ctx context.Context, rs *runState) bool {
	state := rs.req.State
	g := rs.req.Graph

	if e.fanOutEnabled(rs.req) {
		if abort := e.runFanOutPhase(ctx, rs); abort {
			return true
		}
	}

	current, err := g.Entry(state)
	if err != nil {
		e.recordError(state, models.WorkflowError{
			Kind:     models.ErrorKindSystemic,
			Message:  fmt.Sprintf("resolving entry node: %v", err),
			Critical: true,
		})
		return true
	}

	// Well-formed graphs finish in a handful of visits per node; far
	// past that the graph is looping.
	budget := 10*len(g.Nodes()) + 20
	for steps := 0; ; steps++ {
		if steps > budget {
			e.recordError(state, models.WorkflowError{
				Kind:     models.ErrorKindSystemic,
				Message:  ErrStepBudgetExhausted.Error(),
				Critical: true,
			})
			return true
		}
		if err := ctx.Err(); err != nil {
			e.recordCancellation(state, err)
			return true
		}

		node := g.Node(current)
		if node == nil {
			e.recordError(state, models.WorkflowError{
				Kind:     models.ErrorKindSystemic,
				Message:  fmt.Sprintf("routing reached unknown node %q", current),
				Critical: true,
			})
			return true
		}

		state.CurrentStep = current
		if rs.fanned[current] {
			// Already ran during the fan-out phase; re-invoking would
			// double-count its result. Route onward on the merged state.
			e.debugLog("[engine.traverse] workflow=%s skipping fanned node %s", state.WorkflowID, current)
		} else {
			state.AgentAssignments[current] = node.Agent.ID()
			e.invokeNode(ctx, rs, node, state)
		}

		if state.HasCriticalError() {
			return true
		}
		if err := ctx.Err(); err != nil {
			e.recordCancellation(state, err)
			return true
		}

		next, err := g.Next(current, state)
		if err != nil {
			// A routing function escaping its declared target set is a
			// structural fault, not an agent fault.
			e.recordError(state, models.WorkflowError{
				Kind:     models.ErrorKindSystemic,
				Message:  err.Error(),
				Critical: true,
			})
			return true
		}
		if next == graph.Finish {
			e.debugLog("[engine.traverse] workflow=%s reached FINISH after %d steps",
				state.WorkflowID, steps+1)
			return false
		}
		current = next
	}
}

// invokeNode validates, runs, and merges one agent invocation against
// the shared state. Agent failures are recorded, not returned; the
// single-writer rule holds because traverse is strictly sequential.
func (e *Engine) invokeNode(ctx context.Context, rs *runState, node *graph.Node, state *models.WorkflowState) {
	if err := node.Agent.ValidateInput(state); err != nil {
		e.recordError(state, models.WorkflowError{
			Kind:    models.ErrorKindExecution,
			AgentID: node.Agent.ID(),
			Message: fmt.Sprintf("input validation: %v", err),
		})
		return
	}

	result, err := node.Agent.Process(ctx, state)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			e.recordCancellation(state, err)
			return
		}
		e.recordError(state, models.WorkflowError{
			Kind:    models.ErrorKindExecution,
			AgentID: node.Agent.ID(),
			Message: err.Error(),
		})
		return
	}
	e.mergeResult(rs, state, result)
}

// mergeResult folds one agent result into the shared state.
func (e *Engine) mergeResult(rs *runState, state *models.WorkflowState, result *agent.Result) {
	if result == nil {
		return
	}
	if result.Output != nil {
		state.IntermediateResults[result.AgentID] = result.Output
	}
	if result.Progress > 0 {
		state.Progress += result.Progress
		if state.Progress > 1.0 {
			state.Progress = 1.0
		}
	}
	rs.results = append(rs.results, *result)
}

// fanOutEnabled reports whether this run gets a concurrent fan-out
// phase: collaborative and dynamic topologies only, when the analysis
// marked parallel processing and writes reconcile via scratch slots.
func (e *Engine) fanOutEnabled(req Request) bool {
	if !req.Parallel || req.Strategy.Sync != models.SyncScratchMerge {
		return false
	}
	return req.Strategy.Topology == models.TopologyCollaborative ||
		req.Strategy.Topology == models.TopologyDynamic
}

// fanOutRoles maps topology to the node role that fans out.
func fanOutRole(topology models.Topology) graph.Role {
	if topology == models.TopologyCollaborative {
		return graph.RoleCollaborative
	}
	return graph.RoleAdaptive
}

// fanResult buffers one concurrent agent's scratch state and result
// until the join point.
type fanResult struct {
	nodeID  string
	scratch *models.WorkflowState
	result  *agent.Result
	err     error
	agentID string
}

// runFanOutPhase invokes every fan-out node concurrently against its
// own scratch copy of the state, joins, and merges scratches in node-id
// order so the outcome is reproducible. The consensus or coordinator
// node then sees the fully merged state through the normal sequential
// walk. Returns true if the run must abort.
func (e *Engine) runFanOutPhase(ctx context.Context, rs *runState) bool {
	state := rs.req.State
	g := rs.req.Graph
	role := fanOutRole(rs.req.Strategy.Topology)

	var nodeIDs []string
	for _, id := range g.Nodes() {
		if node := g.Node(id); node != nil && node.Role == role {
			nodeIDs = append(nodeIDs, id)
		}
	}
	if len(nodeIDs) == 0 {
		return false
	}
	sort.Strings(nodeIDs)

	e.debugLog("[engine.fanOut] workflow=%s fanning out %d nodes", state.WorkflowID, len(nodeIDs))

	results := make([]fanResult, len(nodeIDs))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, id := range nodeIDs {
		node := g.Node(id)
		scratch := cloneState(state)
		results[i] = fanResult{nodeID: id, scratch: scratch, agentID: node.Agent.ID()}
		i, node := i, node
		group.Go(func() error {
			state := results[i].scratch
			state.CurrentStep = node.ID
			if err := node.Agent.ValidateInput(state); err != nil {
				results[i].err = fmt.Errorf("input validation: %w", err)
				return nil
			}
			result, err := node.Agent.Process(groupCtx, state)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				results[i].err = err
				return nil
			}
			results[i].result = result
			return nil
		})
	}

	err := group.Wait()

	// Merge in sorted node-id order regardless of completion order.
	baseErrors := len(state.Errors)
	for _, fr := range results {
		if fr.err != nil {
			e.recordError(state, models.WorkflowError{
				Kind:    models.ErrorKindExecution,
				AgentID: fr.agentID,
				Message: fr.err.Error(),
			})
			continue
		}
		if fr.result == nil {
			continue
		}
		mergeScratch(state, fr.scratch, baseErrors)
		state.AgentAssignments[fr.nodeID] = fr.agentID
		e.mergeResult(rs, state, fr.result)
		rs.fanned[fr.nodeID] = true
	}

	if err != nil {
		e.recordCancellation(state, err)
		return true
	}
	if state.HasCriticalError() {
		return true
	}
	return false
}

// cloneState copies the workflow state's maps and slices so one
// fan-out agent's writes never race another's.
func cloneState(s *models.WorkflowState) *models.WorkflowState {
	clone := *s
	clone.AgentAssignments = copyMap(s.AgentAssignments)
	clone.IntermediateResults = copyMap(s.IntermediateResults)
	clone.Errors = append([]models.WorkflowError{}, s.Errors...)
	clone.Document.UploadedDocuments = append([]string{}, s.Document.UploadedDocuments...)
	clone.Document.ExtractedText = copyMap(s.Document.ExtractedText)
	clone.Analysis.Findings = copyMap(s.Analysis.Findings)
	clone.Analysis.AccuracyScores = copyMap(s.Analysis.AccuracyScores)
	clone.Quality.Scores = copyMap(s.Quality.Scores)
	clone.Coordination.BusyAgents = copyMap(s.Coordination.BusyAgents)
	clone.Memory.ShortTerm = copyMap(s.Memory.ShortTerm)
	clone.Memory.Session = copyMap(s.Memory.Session)
	return &clone
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// mergeScratch folds one scratch state back into the main state. The
// caller merges scratches in sorted node-id order, so overlapping
// writes resolve the same way on every run.
func mergeScratch(main, scratch *models.WorkflowState, baseErrors int) {
	for k, v := range scratch.IntermediateResults {
		main.IntermediateResults[k] = v
	}
	for k, v := range scratch.Document.ExtractedText {
		main.Document.ExtractedText[k] = v
	}
	for k, v := range scratch.Analysis.Findings {
		main.Analysis.Findings[k] = v
	}
	for k, v := range scratch.Analysis.AccuracyScores {
		main.Analysis.AccuracyScores[k] = v
	}
	for k, v := range scratch.Quality.Scores {
		main.Quality.Scores[k] = v
	}
	for k, v := range scratch.Coordination.BusyAgents {
		main.Coordination.BusyAgents[k] = v
	}
	for k, v := range scratch.Memory.ShortTerm {
		main.Memory.ShortTerm[k] = v
	}
	for k, v := range scratch.Memory.Session {
		main.Memory.Session[k] = v
	}
	if scratch.Document.Status != "" {
		main.Document.Status = scratch.Document.Status
	}
	if scratch.Quality.ReviewStatus != models.ReviewPending {
		main.Quality.ReviewStatus = scratch.Quality.ReviewStatus
	}
	if scratch.Coordination.ConsensusState != models.ConsensusPending {
		main.Coordination.ConsensusState = scratch.Coordination.ConsensusState
	}
	if scratch.Progress > main.Progress {
		main.Progress = scratch.Progress
	}
	// New errors only; the scratch started with the main list's prefix.
	if len(scratch.Errors) > baseErrors {
		main.Errors = append(main.Errors, scratch.Errors[baseErrors:]...)
	}
}

// recordError appends to the state's error list with a timestamp.
func (e *Engine) recordError(state *models.WorkflowState, werr models.WorkflowError) {
	werr.OccurredAt = time.Now()
	state.Errors = append(state.Errors, werr)
	e.debugLog("[engine] workflow=%s error kind=%s agent=%s critical=%v: %s",
		state.WorkflowID, werr.Kind, werr.AgentID, werr.Critical, werr.Message)
}

// recordCancellation marks the run cancelled; partials already merged
// stay on the state.
func (e *Engine) recordCancellation(state *models.WorkflowState, err error) {
	for _, existing := range state.Errors {
		if existing.Kind == models.ErrorKindCancelled {
			return
		}
	}
	e.recordError(state, models.WorkflowError{
		Kind:     models.ErrorKindCancelled,
		Message:  err.Error(),
		Critical: true,
	})
}

// cleanupAll runs Cleanup exactly once per node, success or failure.
// Cleanup errors are recorded on the state like any agent error.
func (e *Engine) cleanupAll(rs *runState) {
	for _, id := range rs.req.Graph.Nodes() {
		if rs.cleaned[id] {
			continue
		}
		rs.cleaned[id] = true
		node := rs.req.Graph.Node(id)
		if node == nil {
			continue
		}
		if err := node.Agent.Cleanup(); err != nil {
			e.recordError(rs.req.State, models.WorkflowError{
				Kind:    models.ErrorKindExecution,
				AgentID: node.Agent.ID(),
				Message: fmt.Sprintf("cleanup: %v", err),
			})
		}
	}
}

// buildResult assembles the structured result from the finished state.
func (e *Engine) buildResult(rs *runState, aborted bool) *models.ExecutionResult {
	state := rs.req.State

	var quality, accuracy, confidence float64
	for _, r := range rs.results {
		quality += r.Quality
		accuracy += r.Accuracy
		confidence += r.Confidence
	}
	if n := len(rs.results); n > 0 {
		quality /= float64(n)
		accuracy /= float64(n)
		confidence /= float64(n)
	}

	result := &models.ExecutionResult{
		TaskID:     state.TaskID,
		WorkflowID: state.WorkflowID,
		Success:    !aborted,
		Output:     state.IntermediateResults,
		Errors:     append([]models.WorkflowError{}, state.Errors...),
		Metrics: models.PerformanceMetrics{
			ExecutionTime: time.Since(rs.started),
			Quality:       quality,
			Accuracy:      accuracy,
			Confidence:    confidence,
		},
		Metadata: map[string]string{
			"topology":    string(rs.req.Strategy.Topology),
			"agent_count": fmt.Sprintf("%d", len(rs.req.Strategy.AgentRoster)),
		},
		CompletedAt: time.Now(),
	}
	result.NextSteps = nextSteps(result, state)
	return result
}

// nextSteps suggests follow-up actions from the outcome.
func nextSteps(result *models.ExecutionResult, state *models.WorkflowState) []string {
	var steps []string
	switch result.Outcome() {
	case models.OutcomeFailed:
		steps = append(steps, "inspect the error list and resubmit the task")
	case models.OutcomePartial:
		steps = append(steps, "review recorded errors before using the output")
	}
	if result.UpgradeRequired() {
		steps = append(steps, "upgrade the subscription tier to lift the failing limit")
	}
	if state.Quality.ReviewStatus == models.ReviewNeedsRevision {
		steps = append(steps, "revise flagged documents and resubmit")
	}
	return steps
}
