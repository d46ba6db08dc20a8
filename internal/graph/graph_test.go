package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/docuflow/docuflow/internal/agent"
	"github.com/docuflow/docuflow/pkg/models"
)

func testRegistry() *agent.Registry {
	return agent.DefaultRegistry(nil)
}

func fullRoster() []string {
	return []string{
		agent.CapabilityTextExtraction,
		agent.CapabilityDataValidation,
		agent.CapabilityStructuredExtraction,
	}
}

func TestBuildSequentialChain(t *testing.T) {
	b := NewBuilder(testRegistry())
	g, err := b.Build(models.CoordinationStrategy{
		Topology:    models.TopologySequential,
		AgentRoster: fullRoster(),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	state := models.NewWorkflowState("task-1", "wf-1")
	entry, err := g.Entry(state)
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if entry != agent.CapabilityTextExtraction {
		t.Fatalf("entry = %s, want %s", entry, agent.CapabilityTextExtraction)
	}

	// Walk the chain; it must visit the roster in order and finish.
	want := append(fullRoster(), Finish)
	current := entry
	for i := 1; i < len(want); i++ {
		next, err := g.Next(current, state)
		if err != nil {
			t.Fatalf("Next(%s): %v", current, err)
		}
		if next != want[i] {
			t.Fatalf("step %d = %s, want %s", i, next, want[i])
		}
		current = next
	}
}

func TestBuildUnknownTopology(t *testing.T) {
	b := NewBuilder(testRegistry())
	if _, err := b.Build(models.CoordinationStrategy{
		Topology:    models.Topology("ring"),
		AgentRoster: fullRoster(),
	}); !errors.Is(err, ErrUnknownTopology) {
		t.Fatalf("err = %v, want ErrUnknownTopology", err)
	}
}

func TestBuildEmptyRoster(t *testing.T) {
	b := NewBuilder(testRegistry())
	if _, err := b.Build(models.CoordinationStrategy{
		Topology: models.TopologySequential,
	}); !errors.Is(err, ErrEmptyRoster) {
		t.Fatalf("err = %v, want ErrEmptyRoster", err)
	}
}

func TestHierarchicalSupervisorRoutesFirstIdleWorker(t *testing.T) {
	b := NewBuilder(testRegistry())
	g, err := b.Build(models.CoordinationStrategy{
		Topology:    models.TopologyHierarchical,
		AgentRoster: fullRoster(),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	state := models.NewWorkflowState("task-1", "wf-1")
	supervisor := g.Node(supervisorNode)
	if supervisor == nil {
		t.Fatal("supervisor node missing")
	}
	if _, err := supervisor.Agent.Process(context.Background(), state); err != nil {
		t.Fatalf("supervisor process: %v", err)
	}

	// Three idle workers and pending consensus: the supervisor's edge
	// must pick the lowest worker id, not FINISH.
	next, err := g.Next(supervisorNode, state)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next == Finish {
		t.Fatal("routed to FINISH with idle workers and pending consensus")
	}
	if next != agent.CapabilityDataValidation {
		t.Fatalf("next = %s, want first idle worker %s", next, agent.CapabilityDataValidation)
	}
}

func TestHierarchicalTerminates(t *testing.T) {
	b := NewBuilder(testRegistry())
	g, err := b.Build(models.CoordinationStrategy{
		Topology:    models.TopologyHierarchical,
		AgentRoster: fullRoster(),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	state := models.NewWorkflowState("task-1", "wf-1")
	state.Document.UploadedDocuments = []string{"doc-1"}

	current := supervisorNode
	for steps := 0; ; steps++ {
		if steps > 20 {
			t.Fatal("workflow did not terminate")
		}
		node := g.Node(current)
		if _, err := node.Agent.Process(context.Background(), state); err != nil {
			t.Fatalf("process %s: %v", current, err)
		}
		next, err := g.Next(current, state)
		if err != nil {
			t.Fatalf("Next(%s): %v", current, err)
		}
		if next == Finish {
			break
		}
		current = next
	}

	if state.Coordination.ConsensusState != models.ConsensusAchieved {
		t.Fatalf("consensus = %s, want achieved", state.Coordination.ConsensusState)
	}
}

func TestCollaborativeEntryPrefersExtractionForDocuments(t *testing.T) {
	b := NewBuilder(testRegistry())
	g, err := b.Build(models.CoordinationStrategy{
		Topology:    models.TopologyCollaborative,
		AgentRoster: fullRoster(),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	withDocs := models.NewWorkflowState("task-1", "wf-1")
	withDocs.Document.UploadedDocuments = []string{"doc-1"}
	entry, err := g.Entry(withDocs)
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if entry != agent.CapabilityTextExtraction {
		t.Fatalf("entry with documents = %s, want %s", entry, agent.CapabilityTextExtraction)
	}

	withoutDocs := models.NewWorkflowState("task-2", "wf-2")
	entry, err = g.Entry(withoutDocs)
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if entry != agent.CapabilityDataValidation {
		t.Fatalf("entry without documents = %s, want first sorted peer", entry)
	}
}

func TestCollaborativeConvergesOnConsensus(t *testing.T) {
	b := NewBuilder(testRegistry())
	g, err := b.Build(models.CoordinationStrategy{
		Topology:    models.TopologyCollaborative,
		AgentRoster: fullRoster(),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	state := models.NewWorkflowState("task-1", "wf-1")
	for _, id := range fullRoster() {
		state.Analysis.AccuracyScores[id] = 0.95
	}

	next, err := g.Next(agent.CapabilityTextExtraction, state)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next != consensusNode {
		t.Fatalf("next = %s, want %s when all accuracies clear the threshold", next, consensusNode)
	}

	after, err := g.Next(consensusNode, state)
	if err != nil {
		t.Fatalf("Next(consensus): %v", err)
	}
	if after != Finish {
		t.Fatalf("consensus successor = %s, want FINISH", after)
	}
}

func TestCollaborativeHandsOffToUnfinishedPeer(t *testing.T) {
	b := NewBuilder(testRegistry())
	g, err := b.Build(models.CoordinationStrategy{
		Topology:    models.TopologyCollaborative,
		AgentRoster: fullRoster(),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	state := models.NewWorkflowState("task-1", "wf-1")
	state.IntermediateResults[agent.CapabilityDataValidation] = map[string]any{}

	next, err := g.Next(agent.CapabilityDataValidation, state)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next != agent.CapabilityTextExtraction {
		t.Fatalf("next = %s, want first peer without a result", next)
	}
}

func TestDynamicRouting(t *testing.T) {
	b := NewBuilder(testRegistry())
	g, err := b.Build(models.CoordinationStrategy{
		Topology:    models.TopologyDynamic,
		AgentRoster: fullRoster(),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	tests := []struct {
		name  string
		state func() *models.WorkflowState
		want  string
	}{
		{
			name: "full progress finishes",
			state: func() *models.WorkflowState {
				s := models.NewWorkflowState("t", "w")
				s.Progress = 1.0
				return s
			},
			want: Finish,
		},
		{
			name: "unhandled error detours to recovery",
			state: func() *models.WorkflowState {
				s := models.NewWorkflowState("t", "w")
				s.Errors = append(s.Errors, models.WorkflowError{
					Kind:    models.ErrorKindExecution,
					Message: "transient extraction failure",
				})
				return s
			},
			want: recoveryNode,
		},
		{
			name: "handled error does not detour",
			state: func() *models.WorkflowState {
				s := models.NewWorkflowState("t", "w")
				s.Errors = append(s.Errors, models.WorkflowError{
					Kind:    models.ErrorKindExecution,
					Message: "transient extraction failure",
					Handled: true,
				})
				return s
			},
			want: agent.CapabilityDataValidation,
		},
		{
			name: "needs revision detours to quality",
			state: func() *models.WorkflowState {
				s := models.NewWorkflowState("t", "w")
				s.Quality.ReviewStatus = models.ReviewNeedsRevision
				return s
			},
			want: qualityNode,
		},
		{
			name: "quality rechecked only once",
			state: func() *models.WorkflowState {
				s := models.NewWorkflowState("t", "w")
				s.Quality.ReviewStatus = models.ReviewNeedsRevision
				s.Memory.ShortTerm[qualityRecheckKey] = true
				return s
			},
			want: agent.CapabilityDataValidation,
		},
		{
			name: "dispatches next specialist without result",
			state: func() *models.WorkflowState {
				s := models.NewWorkflowState("t", "w")
				s.IntermediateResults[agent.CapabilityDataValidation] = map[string]any{}
				return s
			},
			want: agent.CapabilityTextExtraction,
		},
		{
			name: "all specialists done finishes",
			state: func() *models.WorkflowState {
				s := models.NewWorkflowState("t", "w")
				for _, id := range fullRoster() {
					s.IntermediateResults[id] = map[string]any{}
				}
				return s
			},
			want: Finish,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := g.Next(coordinatorNode, tt.state())
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if next != tt.want {
				t.Fatalf("next = %s, want %s", next, tt.want)
			}
		})
	}
}

func TestNextRejectsUndeclaredTarget(t *testing.T) {
	g := New()
	roster, err := testRegistry().Roster([]string{agent.CapabilityTextExtraction})
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	g.AddNode(&Node{ID: "a", Agent: roster[0], Role: RoleSequential})
	g.SetEntry("a")
	g.AddConditionalEdge("a", func(*models.WorkflowState) string {
		return "rogue"
	}, "a")

	if _, err := g.Next("a", models.NewWorkflowState("t", "w")); !errors.Is(err, ErrUndeclaredTarget) {
		t.Fatalf("err = %v, want ErrUndeclaredTarget", err)
	}
}

func TestValidate(t *testing.T) {
	registry := testRegistry()
	newAgent := func(id string) agent.Agent {
		a, err := registry.New(agent.CapabilityTextExtraction, id)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return a
	}

	t.Run("no entry", func(t *testing.T) {
		g := New()
		g.AddNode(&Node{ID: "a", Agent: newAgent("a"), Role: RoleSequential})
		g.AddEdge("a", Finish)
		if err := g.Validate(); !errors.Is(err, ErrNoEntry) {
			t.Fatalf("err = %v, want ErrNoEntry", err)
		}
	})

	t.Run("unknown edge target", func(t *testing.T) {
		g := New()
		g.AddNode(&Node{ID: "a", Agent: newAgent("a"), Role: RoleSequential})
		g.SetEntry("a")
		g.AddEdge("a", "ghost")
		if err := g.Validate(); !errors.Is(err, ErrUnknownTarget) {
			t.Fatalf("err = %v, want ErrUnknownTarget", err)
		}
	})

	t.Run("node without route", func(t *testing.T) {
		g := New()
		g.AddNode(&Node{ID: "a", Agent: newAgent("a"), Role: RoleSequential})
		g.AddNode(&Node{ID: "b", Agent: newAgent("b"), Role: RoleSequential})
		g.SetEntry("a")
		g.AddEdge("a", "b")
		if err := g.Validate(); !errors.Is(err, ErrNoRoute) {
			t.Fatalf("err = %v, want ErrNoRoute", err)
		}
	})

	t.Run("finish unreachable", func(t *testing.T) {
		g := New()
		g.AddNode(&Node{ID: "a", Agent: newAgent("a"), Role: RoleSequential})
		g.AddNode(&Node{ID: "b", Agent: newAgent("b"), Role: RoleSequential})
		g.SetEntry("a")
		g.AddEdge("a", "b")
		g.AddEdge("b", "a")
		if err := g.Validate(); !errors.Is(err, ErrUnreachableFinish) {
			t.Fatalf("err = %v, want ErrUnreachableFinish", err)
		}
	})

	t.Run("valid chain", func(t *testing.T) {
		g := New()
		g.AddNode(&Node{ID: "a", Agent: newAgent("a"), Role: RoleSequential})
		g.SetEntry("a")
		g.AddEdge("a", Finish)
		if err := g.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	})
}
