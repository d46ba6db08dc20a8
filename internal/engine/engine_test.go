package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/docuflow/docuflow/internal/agent"
	"github.com/docuflow/docuflow/internal/graph"
	"github.com/docuflow/docuflow/pkg/models"
)

// stubAgent lets tests script agent behavior per node.
type stubAgent struct {
	id         string
	process    func(ctx context.Context, state *models.WorkflowState) (*agent.Result, error)
	cleanupErr error
	cleanups   int
	processed  int
}

func (a *stubAgent) ID() string                                       { return a.id }
func (a *stubAgent) Capability() string                               { return "stub" }
func (a *stubAgent) CanHandle(*models.Task) bool                      { return true }
func (a *stubAgent) ValidateInput(*models.WorkflowState) error        { return nil }
func (a *stubAgent) Cleanup() error                                   { a.cleanups++; return a.cleanupErr }
func (a *stubAgent) Process(ctx context.Context, state *models.WorkflowState) (*agent.Result, error) {
	a.processed++
	if a.process != nil {
		return a.process(ctx, state)
	}
	return &agent.Result{AgentID: a.id, Output: map[string]any{"ok": true}, Confidence: 1, Quality: 1, Accuracy: 1}, nil
}

func documentTask() *models.WorkflowState {
	state := models.NewWorkflowState("task-1", "wf-1")
	state.Document.UploadedDocuments = []string{"doc-1", "doc-2"}
	return state
}

func sequentialStrategy() models.CoordinationStrategy {
	return models.CoordinationStrategy{
		Topology: models.TopologySequential,
		AgentRoster: []string{
			agent.CapabilityTextExtraction,
			agent.CapabilityDataValidation,
			agent.CapabilityStructuredExtraction,
		},
		Sync: models.SyncSingleWriter,
	}
}

func buildGraph(t *testing.T, strategy models.CoordinationStrategy) *graph.WorkflowGraph {
	t.Helper()
	g, err := graph.NewBuilder(agent.DefaultRegistry(nil)).Build(strategy)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func TestRunSequentialWorkflow(t *testing.T) {
	strategy := sequentialStrategy()
	state := documentTask()

	result := New().Run(context.Background(), Request{
		Graph:    buildGraph(t, strategy),
		State:    state,
		Strategy: strategy,
	})

	if !result.Success {
		t.Fatalf("workflow failed: %+v", result.Errors)
	}
	if result.Outcome() != models.OutcomeSucceeded {
		t.Fatalf("outcome = %s, want succeeded (errors: %+v)", result.Outcome(), result.Errors)
	}
	for _, id := range strategy.AgentRoster {
		if _, ok := result.Output[id]; !ok {
			t.Fatalf("missing output for %s", id)
		}
	}
	if len(state.Document.ExtractedText) != 2 {
		t.Fatalf("extracted %d documents, want 2", len(state.Document.ExtractedText))
	}
	if result.Metrics.Confidence <= 0 || result.Metrics.Confidence > 1 {
		t.Fatalf("confidence = %f, want (0,1]", result.Metrics.Confidence)
	}
}

func TestRunRecordsNonCriticalErrorAndContinues(t *testing.T) {
	failing := &stubAgent{id: "flaky", process: func(context.Context, *models.WorkflowState) (*agent.Result, error) {
		return nil, errors.New("transient backend failure")
	}}
	trailing := &stubAgent{id: "tail"}

	g := graph.New()
	g.AddNode(&graph.Node{ID: "flaky", Agent: failing, Role: graph.RoleSequential})
	g.AddNode(&graph.Node{ID: "tail", Agent: trailing, Role: graph.RoleSequential})
	g.SetEntry("flaky")
	g.AddEdge("flaky", "tail")
	g.AddEdge("tail", graph.Finish)

	result := New().Run(context.Background(), Request{
		Graph:    g,
		State:    models.NewWorkflowState("t", "w"),
		Strategy: models.CoordinationStrategy{Topology: models.TopologySequential},
	})

	if !result.Success {
		t.Fatalf("non-critical error aborted the workflow: %+v", result.Errors)
	}
	if result.Outcome() != models.OutcomePartial {
		t.Fatalf("outcome = %s, want partial", result.Outcome())
	}
	if len(result.Errors) != 1 || result.Errors[0].Kind != models.ErrorKindExecution {
		t.Fatalf("errors = %+v, want one execution error", result.Errors)
	}
	if _, ok := result.Output["tail"]; !ok {
		t.Fatal("trailing agent did not run after non-critical error")
	}
}

func TestRunAbortsOnCriticalError(t *testing.T) {
	critical := &stubAgent{id: "broken", process: func(_ context.Context, state *models.WorkflowState) (*agent.Result, error) {
		state.Errors = append(state.Errors, models.WorkflowError{
			Kind:     models.ErrorKindExecution,
			AgentID:  "broken",
			Message:  "corrupted document store",
			Critical: true,
		})
		return nil, nil
	}}
	unreached := &stubAgent{id: "after"}

	g := graph.New()
	g.AddNode(&graph.Node{ID: "broken", Agent: critical, Role: graph.RoleSequential})
	g.AddNode(&graph.Node{ID: "after", Agent: unreached, Role: graph.RoleSequential})
	g.SetEntry("broken")
	g.AddEdge("broken", "after")
	g.AddEdge("after", graph.Finish)

	result := New().Run(context.Background(), Request{
		Graph:    g,
		State:    models.NewWorkflowState("t", "w"),
		Strategy: models.CoordinationStrategy{Topology: models.TopologySequential},
	})

	if result.Success {
		t.Fatal("critical error did not abort the workflow")
	}
	if result.Outcome() != models.OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", result.Outcome())
	}
	if _, ok := result.Output["after"]; ok {
		t.Fatal("agent after the critical error still ran")
	}
}

func TestRunCleanupExactlyOnce(t *testing.T) {
	a := &stubAgent{id: "a"}
	b := &stubAgent{id: "b"}

	g := graph.New()
	g.AddNode(&graph.Node{ID: "a", Agent: a, Role: graph.RoleSequential})
	g.AddNode(&graph.Node{ID: "b", Agent: b, Role: graph.RoleSequential})
	g.SetEntry("a")
	g.AddEdge("a", "b")
	g.AddEdge("b", graph.Finish)

	New().Run(context.Background(), Request{
		Graph:    g,
		State:    models.NewWorkflowState("t", "w"),
		Strategy: models.CoordinationStrategy{Topology: models.TopologySequential},
	})

	if a.cleanups != 1 || b.cleanups != 1 {
		t.Fatalf("cleanups = %d/%d, want 1/1", a.cleanups, b.cleanups)
	}
}

func TestRunReportsCleanupFailure(t *testing.T) {
	a := &stubAgent{id: "a", cleanupErr: errors.New("leaked temp files")}

	g := graph.New()
	g.AddNode(&graph.Node{ID: "a", Agent: a, Role: graph.RoleSequential})
	g.SetEntry("a")
	g.AddEdge("a", graph.Finish)

	result := New().Run(context.Background(), Request{
		Graph:    g,
		State:    models.NewWorkflowState("t", "w"),
		Strategy: models.CoordinationStrategy{Topology: models.TopologySequential},
	})

	if !result.Success {
		t.Fatal("cleanup failure should not flip the success flag")
	}
	if result.Outcome() != models.OutcomePartial {
		t.Fatalf("outcome = %s, want partial", result.Outcome())
	}
	found := false
	for _, e := range result.Errors {
		if e.Kind == models.ErrorKindExecution && e.AgentID == "a" && strings.Contains(e.Message, "leaked temp files") {
			found = true
		}
	}
	if !found {
		t.Fatalf("cleanup error missing from result errors: %v", result.Errors)
	}
}

func TestRunCancellationKeepsPartials(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	first := &stubAgent{id: "first", process: func(_ context.Context, state *models.WorkflowState) (*agent.Result, error) {
		cancel()
		return &agent.Result{AgentID: "first", Output: map[string]any{"partial": true}}, nil
	}}
	second := &stubAgent{id: "second"}

	g := graph.New()
	g.AddNode(&graph.Node{ID: "first", Agent: first, Role: graph.RoleSequential})
	g.AddNode(&graph.Node{ID: "second", Agent: second, Role: graph.RoleSequential})
	g.SetEntry("first")
	g.AddEdge("first", "second")
	g.AddEdge("second", graph.Finish)

	result := New().Run(ctx, Request{
		Graph:    g,
		State:    models.NewWorkflowState("t", "w"),
		Strategy: models.CoordinationStrategy{Topology: models.TopologySequential},
	})

	if result.Success {
		t.Fatal("cancelled workflow reported success")
	}
	found := false
	for _, e := range result.Errors {
		if e.Kind == models.ErrorKindCancelled {
			found = true
		}
	}
	if !found {
		t.Fatalf("errors = %+v, want a cancelled error", result.Errors)
	}
	if _, ok := result.Output["first"]; !ok {
		t.Fatal("already-merged partial result was dropped")
	}
	if _, ok := result.Output["second"]; ok {
		t.Fatal("agent after cancellation still ran")
	}
}

func TestRunTimeout(t *testing.T) {
	slow := &stubAgent{id: "slow", process: func(ctx context.Context, _ *models.WorkflowState) (*agent.Result, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &agent.Result{AgentID: "slow"}, nil
		}
	}}

	g := graph.New()
	g.AddNode(&graph.Node{ID: "slow", Agent: slow, Role: graph.RoleSequential})
	g.SetEntry("slow")
	g.AddEdge("slow", graph.Finish)

	result := New().Run(context.Background(), Request{
		Graph:    g,
		State:    models.NewWorkflowState("t", "w"),
		Strategy: models.CoordinationStrategy{Topology: models.TopologySequential},
		Timeout:  20 * time.Millisecond,
	})

	if result.Success {
		t.Fatal("timed-out workflow reported success")
	}
}

func TestRunFanOutMergesDeterministically(t *testing.T) {
	strategy := models.CoordinationStrategy{
		Topology: models.TopologyDynamic,
		AgentRoster: []string{
			agent.CapabilityTextExtraction,
			agent.CapabilityDataValidation,
			agent.CapabilityStructuredExtraction,
		},
		Sync: models.SyncScratchMerge,
	}

	run := func() *models.ExecutionResult {
		state := documentTask()
		return New().Run(context.Background(), Request{
			Graph:    buildGraph(t, strategy),
			State:    state,
			Strategy: strategy,
			Parallel: true,
		})
	}

	first := run()
	if !first.Success {
		t.Fatalf("fan-out run failed: %+v", first.Errors)
	}
	for _, id := range strategy.AgentRoster {
		if _, ok := first.Output[id]; !ok {
			t.Fatalf("missing fan-out output for %s", id)
		}
	}

	second := run()
	if len(first.Output) != len(second.Output) {
		t.Fatalf("output sizes differ across runs: %d vs %d", len(first.Output), len(second.Output))
	}
}

func TestRunFanOutRunsEachPeerOnce(t *testing.T) {
	peerA := &stubAgent{id: "peer-a"}
	peerB := &stubAgent{id: "peer-b"}
	consensus := &stubAgent{id: "consensus"}

	g := graph.New()
	g.AddNode(&graph.Node{ID: "peer-a", Agent: peerA, Role: graph.RoleCollaborative})
	g.AddNode(&graph.Node{ID: "peer-b", Agent: peerB, Role: graph.RoleCollaborative})
	g.AddNode(&graph.Node{ID: "consensus", Agent: consensus, Role: graph.RoleConsensus})
	g.SetEntry("peer-a")
	g.AddEdge("peer-a", "consensus")
	g.AddEdge("peer-b", "consensus")
	g.AddEdge("consensus", graph.Finish)

	result := New().Run(context.Background(), Request{
		Graph: g,
		State: documentTask(),
		Strategy: models.CoordinationStrategy{
			Topology: models.TopologyCollaborative,
			Sync:     models.SyncScratchMerge,
		},
		Parallel: true,
	})

	if !result.Success {
		t.Fatalf("fan-out run failed: %+v", result.Errors)
	}
	// The entry peer already ran in the fan-out phase; the sequential
	// walk must not invoke it again, or the metric averages would
	// double-weight it.
	if peerA.processed != 1 || peerB.processed != 1 {
		t.Fatalf("peer invocations = %d/%d, want 1/1", peerA.processed, peerB.processed)
	}
	if consensus.processed != 1 {
		t.Fatalf("consensus invocations = %d, want 1", consensus.processed)
	}
}

func TestRunStepBudget(t *testing.T) {
	a := &stubAgent{id: "a"}
	b := &stubAgent{id: "b"}

	g := graph.New()
	g.AddNode(&graph.Node{ID: "a", Agent: a, Role: graph.RoleSequential})
	g.AddNode(&graph.Node{ID: "b", Agent: b, Role: graph.RoleSequential})
	g.SetEntry("a")
	g.AddConditionalEdge("a", func(*models.WorkflowState) string { return "b" }, "b")
	g.AddConditionalEdge("b", func(*models.WorkflowState) string { return "a" }, "a")

	result := New().Run(context.Background(), Request{
		Graph:    g,
		State:    models.NewWorkflowState("t", "w"),
		Strategy: models.CoordinationStrategy{Topology: models.TopologySequential},
	})

	if result.Success {
		t.Fatal("looping workflow reported success")
	}
	found := false
	for _, e := range result.Errors {
		if e.Kind == models.ErrorKindSystemic && strings.Contains(e.Message, "step budget") {
			found = true
		}
	}
	if !found {
		t.Fatalf("errors = %+v, want a step-budget systemic error", result.Errors)
	}
}
