package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/docuflow/docuflow/internal/agent"
	"github.com/docuflow/docuflow/pkg/models"
)

// Node ids for the coordination roles each topology adds around the
// rostered agents.
const (
	supervisorNode  = "supervisor"
	consensusNode   = "consensus"
	coordinatorNode = "coordinator"
	recoveryNode    = "recovery"
	qualityNode     = "quality"
)

// accuracyConsensusThreshold is the score every tracked agent must
// exceed before collaborative routing hands off to the consensus node.
const accuracyConsensusThreshold = 0.9

var (
	// ErrEmptyRoster indicates the strategy listed no agent capabilities.
	ErrEmptyRoster = errors.New("coordination strategy has an empty agent roster")
	// ErrUnknownTopology indicates the strategy names a topology the
	// builder cannot construct.
	ErrUnknownTopology = errors.New("unknown topology")
)

// Builder constructs workflow graphs for the four supported topologies
// from a coordination strategy and the agent registry.
type Builder struct {
	registry *agent.Registry
	debugLog func(format string, args ...interface{})
}

// NewBuilder creates a builder over the given registry.
func NewBuilder(registry *agent.Registry) *Builder {
	return &Builder{
		registry: registry,
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (b *Builder) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		b.debugLog = fn
	}
}

// Build constructs and validates the graph for the strategy's topology.
// Fresh agent instances are drawn from the registry for every call, so
// per-workflow cleanup bookkeeping never leaks across runs.
func (b *Builder) Build(strategy models.CoordinationStrategy) (*WorkflowGraph, error) {
	if len(strategy.AgentRoster) == 0 {
		return nil, ErrEmptyRoster
	}
	roster, err := b.registry.Roster(strategy.AgentRoster)
	if err != nil {
		return nil, fmt.Errorf("building roster: %w", err)
	}

	b.debugLog("[builder.Build] topology=%s roster=%v", strategy.Topology, strategy.AgentRoster)

	var g *WorkflowGraph
	switch strategy.Topology {
	case models.TopologySequential:
		g = b.buildSequential(roster)
	case models.TopologyHierarchical:
		g = b.buildHierarchical(roster)
	case models.TopologyCollaborative:
		g = b.buildCollaborative(roster)
	case models.TopologyDynamic:
		g, err = b.buildDynamic(roster)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopology, strategy.Topology)
	}

	g.SetDebugLog(b.debugLog)
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s graph: %w", strategy.Topology, err)
	}
	return g, nil
}

// buildSequential chains the roster in order; the last node finishes.
func (b *Builder) buildSequential(roster []agent.Agent) *WorkflowGraph {
	g := New()
	for i, a := range roster {
		g.AddNode(&Node{ID: a.ID(), Agent: a, Role: RoleSequential})
		if i+1 < len(roster) {
			g.AddEdge(a.ID(), roster[i+1].ID())
		} else {
			g.AddEdge(a.ID(), Finish)
		}
	}
	g.SetEntry(roster[0].ID())
	return g
}

// buildHierarchical wires one supervisor over one worker node per
// rostered agent. The supervisor's conditional edge hands work to the
// first idle worker and finishes once consensus is declared; workers
// always return to the supervisor.
func (b *Builder) buildHierarchical(roster []agent.Agent) *WorkflowGraph {
	g := New()

	workerIDs := make([]string, 0, len(roster))
	for _, a := range roster {
		worker := &claimingWorker{Agent: a}
		g.AddNode(&Node{ID: a.ID(), Agent: worker, Role: RoleWorker})
		g.AddEdge(a.ID(), supervisorNode)
		workerIDs = append(workerIDs, a.ID())
	}

	supervisor := agent.NewSupervisorAgent(supervisorNode, workerIDs)
	g.AddNode(&Node{ID: supervisorNode, Agent: supervisor, Role: RoleCoordinator})
	g.SetEntry(supervisorNode)

	g.AddConditionalEdge(supervisorNode, func(state *models.WorkflowState) string {
		if state.Coordination.ConsensusState == models.ConsensusAchieved {
			return Finish
		}
		if idle := state.FirstIdleAgent(); idle != "" {
			return idle
		}
		return Finish
	}, workerIDs...)

	return g
}

// buildCollaborative wires one peer node per rostered agent plus a
// consensus node. The entry route picks the peer matching the task's
// immediate need; peers hand off to the next peer without a result and
// converge on consensus once every tracked accuracy clears the
// threshold or every peer has reported.
func (b *Builder) buildCollaborative(roster []agent.Agent) *WorkflowGraph {
	g := New()

	peerIDs := make([]string, 0, len(roster))
	for _, a := range roster {
		g.AddNode(&Node{ID: a.ID(), Agent: a, Role: RoleCollaborative})
		peerIDs = append(peerIDs, a.ID())
	}
	sorted := append([]string{}, peerIDs...)
	sort.Strings(sorted)

	consensus := agent.NewConsensusAgent(consensusNode, peerIDs)
	g.AddNode(&Node{ID: consensusNode, Agent: consensus, Role: RoleConsensus})
	g.AddEdge(consensusNode, Finish)

	hasExtraction := false
	for _, a := range roster {
		if a.Capability() == agent.CapabilityTextExtraction {
			hasExtraction = true
		}
	}

	g.SetEntryRoute(func(state *models.WorkflowState) string {
		if hasExtraction && len(state.Document.UploadedDocuments) > 0 {
			return agent.CapabilityTextExtraction
		}
		return sorted[0]
	}, peerIDs...)

	peerTargets := append(append([]string{}, peerIDs...), consensusNode)
	for _, id := range peerIDs {
		g.AddConditionalEdge(id, func(state *models.WorkflowState) string {
			if state.AllAccuraciesAbove(accuracyConsensusThreshold) {
				return consensusNode
			}
			for _, peer := range sorted {
				if _, done := state.IntermediateResults[peer]; !done {
					return peer
				}
			}
			return consensusNode
		}, peerTargets...)
	}

	return g
}

// buildDynamic wires an adaptive coordinator over specialist nodes,
// with recovery and quality detours. The coordinator finishes at full
// progress, detours to recovery while unhandled errors remain, sends
// the state back through quality review once if revision is requested,
// and otherwise dispatches the next specialist without a result.
func (b *Builder) buildDynamic(roster []agent.Agent) (*WorkflowGraph, error) {
	g := New()

	specialistIDs := make([]string, 0, len(roster))
	hasQuality := false
	for _, a := range roster {
		g.AddNode(&Node{ID: a.ID(), Agent: a, Role: RoleAdaptive})
		g.AddEdge(a.ID(), coordinatorNode)
		specialistIDs = append(specialistIDs, a.ID())
		if a.Capability() == agent.CapabilityDataValidation {
			hasQuality = true
		}
	}
	sorted := append([]string{}, specialistIDs...)
	sort.Strings(sorted)

	coordinator := agent.NewAdaptiveCoordinatorAgent(coordinatorNode, specialistIDs)
	g.AddNode(&Node{ID: coordinatorNode, Agent: coordinator, Role: RoleCoordinator})
	g.SetEntry(coordinatorNode)

	recovery := agent.NewRecoveryAgent(recoveryNode)
	g.AddNode(&Node{ID: recoveryNode, Agent: recovery, Role: RoleSpecialized})
	g.AddEdge(recoveryNode, coordinatorNode)

	if hasQuality {
		// The quality detour gets its own instance so cleanup bookkeeping
		// stays one-per-node.
		reviewer, err := b.registry.New(agent.CapabilityDataValidation, qualityNode)
		if err != nil {
			return nil, fmt.Errorf("building quality node: %w", err)
		}
		g.AddNode(&Node{ID: qualityNode, Agent: &recheckAgent{Agent: reviewer}, Role: RoleSpecialized})
		g.AddEdge(qualityNode, coordinatorNode)
	}

	targets := append([]string{recoveryNode}, specialistIDs...)
	if hasQuality {
		targets = append(targets, qualityNode)
	}

	g.AddConditionalEdge(coordinatorNode, func(state *models.WorkflowState) string {
		if state.Progress >= 1.0 {
			return Finish
		}
		if state.HasUnhandledError() {
			return recoveryNode
		}
		if hasQuality && state.Quality.ReviewStatus == models.ReviewNeedsRevision {
			if done, _ := state.Memory.ShortTerm[qualityRecheckKey].(bool); !done {
				return qualityNode
			}
		}
		for _, id := range sorted {
			if _, done := state.IntermediateResults[id]; !done {
				return id
			}
		}
		return Finish
	}, targets...)

	return g, nil
}

// qualityRecheckKey marks that the quality detour has already rerun
// review, so a persistent needs-revision status cannot loop forever.
const qualityRecheckKey = "quality_recheck_done"

// claimingWorker marks its node busy in the coordination sub-state
// before delegating, so supervisor routing can find the next idle
// worker deterministically.
type claimingWorker struct {
	agent.Agent
}

func (w *claimingWorker) Process(ctx context.Context, state *models.WorkflowState) (*agent.Result, error) {
	state.Coordination.BusyAgents[w.ID()] = true
	return w.Agent.Process(ctx, state)
}

// recheckAgent runs a quality review pass and records that the recheck
// happened, regardless of the review's verdict.
type recheckAgent struct {
	agent.Agent
}

func (a *recheckAgent) Process(ctx context.Context, state *models.WorkflowState) (*agent.Result, error) {
	state.Memory.ShortTerm[qualityRecheckKey] = true
	return a.Agent.Process(ctx, state)
}
