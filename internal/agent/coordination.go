package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/docuflow/docuflow/pkg/models"
)

// Capability tags for the coordination agents the topology builders
// bind to supervisor, consensus, coordinator, and recovery nodes.
const (
	CapabilitySupervision = "supervision"
	CapabilityConsensus   = "consensus"
	CapabilityAdaptive    = "adaptive-coordination"
	CapabilityRecovery    = "error-recovery"
)

// SupervisorAgent directs a fixed set of workers. Each pass it marks
// finished workers and, once every worker has run, declares consensus
// so the supervisor's routing edge can finish the workflow.
type SupervisorAgent struct {
	id      string
	workers []string
	cleaned bool
}

// NewSupervisorAgent creates a supervisor over the given worker node ids.
func NewSupervisorAgent(id string, workers []string) *SupervisorAgent {
	sorted := append([]string{}, workers...)
	sort.Strings(sorted)
	return &SupervisorAgent{id: id, workers: sorted}
}

// ID implements Agent.
func (a *SupervisorAgent) ID() string { return a.id }

// Capability implements Agent.
func (a *SupervisorAgent) Capability() string { return CapabilitySupervision }

// CanHandle implements Agent; supervision applies to any task.
func (a *SupervisorAgent) CanHandle(*models.Task) bool { return true }

// ValidateInput implements Agent.
func (a *SupervisorAgent) ValidateInput(state *models.WorkflowState) error {
	if state == nil {
		return fmt.Errorf("%w: nil state", ErrInvalidInput)
	}
	return nil
}

// Process registers the workers in the busy map on first pass and
// declares consensus once no idle worker remains.
func (a *SupervisorAgent) Process(_ context.Context, state *models.WorkflowState) (*Result, error) {
	for _, worker := range a.workers {
		if _, known := state.Coordination.BusyAgents[worker]; !known {
			state.Coordination.BusyAgents[worker] = false
		}
	}

	if state.FirstIdleAgent() == "" {
		state.Coordination.ConsensusState = models.ConsensusAchieved
	}

	return &Result{
		AgentID: a.id,
		Output: map[string]any{
			"workers":   a.workers,
			"consensus": state.Coordination.ConsensusState,
		},
		Confidence: 1.0,
		Quality:    1.0,
		Accuracy:   1.0,
	}, nil
}

// Cleanup implements Agent.
func (a *SupervisorAgent) Cleanup() error {
	if a.cleaned {
		return fmt.Errorf("agent %s: cleanup called twice", a.id)
	}
	a.cleaned = true
	return nil
}

// ConsensusAgent merges the participants' buffered results into one
// outcome: it blends the tracked accuracy scores, declares consensus,
// and drives progress to completion.
type ConsensusAgent struct {
	id           string
	participants []string
	cleaned      bool
}

// NewConsensusAgent creates a consensus agent over participant agent ids.
func NewConsensusAgent(id string, participants []string) *ConsensusAgent {
	sorted := append([]string{}, participants...)
	sort.Strings(sorted)
	return &ConsensusAgent{id: id, participants: sorted}
}

// ID implements Agent.
func (a *ConsensusAgent) ID() string { return a.id }

// Capability implements Agent.
func (a *ConsensusAgent) Capability() string { return CapabilityConsensus }

// CanHandle implements Agent.
func (a *ConsensusAgent) CanHandle(*models.Task) bool { return true }

// ValidateInput implements Agent.
func (a *ConsensusAgent) ValidateInput(state *models.WorkflowState) error {
	if state == nil {
		return fmt.Errorf("%w: nil state", ErrInvalidInput)
	}
	return nil
}

// Process merges in participant id order so the outcome is
// reproducible given the same set of results.
func (a *ConsensusAgent) Process(_ context.Context, state *models.WorkflowState) (*Result, error) {
	var sum float64
	scored := 0
	merged := make(map[string]any, len(a.participants))
	for _, participant := range a.participants {
		if result, ok := state.IntermediateResults[participant]; ok {
			merged[participant] = result
		}
		if score, ok := state.Analysis.AccuracyScores[participant]; ok {
			sum += score
			scored++
		}
	}

	accuracy := 1.0
	if scored > 0 {
		accuracy = sum / float64(scored)
	}

	state.Coordination.ConsensusState = models.ConsensusAchieved
	state.Progress = 1.0

	return &Result{
		AgentID: a.id,
		Output: map[string]any{
			"merged":       merged,
			"participants": scored,
		},
		Confidence: clamp01(accuracy),
		Quality:    clamp01(accuracy),
		Accuracy:   clamp01(accuracy),
	}, nil
}

// Cleanup implements Agent.
func (a *ConsensusAgent) Cleanup() error {
	if a.cleaned {
		return fmt.Errorf("agent %s: cleanup called twice", a.id)
	}
	a.cleaned = true
	return nil
}

// AdaptiveCoordinatorAgent steers the dynamic topology: it recomputes
// workflow progress from how many specialists have reported and leaves
// routing to its conditional edge.
type AdaptiveCoordinatorAgent struct {
	id          string
	specialists []string
	cleaned     bool
}

// NewAdaptiveCoordinatorAgent creates a coordinator over specialist
// agent ids.
func NewAdaptiveCoordinatorAgent(id string, specialists []string) *AdaptiveCoordinatorAgent {
	sorted := append([]string{}, specialists...)
	sort.Strings(sorted)
	return &AdaptiveCoordinatorAgent{id: id, specialists: sorted}
}

// ID implements Agent.
func (a *AdaptiveCoordinatorAgent) ID() string { return a.id }

// Capability implements Agent.
func (a *AdaptiveCoordinatorAgent) Capability() string { return CapabilityAdaptive }

// CanHandle implements Agent.
func (a *AdaptiveCoordinatorAgent) CanHandle(*models.Task) bool { return true }

// ValidateInput implements Agent.
func (a *AdaptiveCoordinatorAgent) ValidateInput(state *models.WorkflowState) error {
	if state == nil {
		return fmt.Errorf("%w: nil state", ErrInvalidInput)
	}
	return nil
}

// Process sets progress to the fraction of specialists that have
// reported results.
func (a *AdaptiveCoordinatorAgent) Process(_ context.Context, state *models.WorkflowState) (*Result, error) {
	done := 0
	for _, specialist := range a.specialists {
		if _, ok := state.IntermediateResults[specialist]; ok {
			done++
		}
	}
	if len(a.specialists) > 0 {
		state.Progress = float64(done) / float64(len(a.specialists))
	} else {
		state.Progress = 1.0
	}

	return &Result{
		AgentID: a.id,
		Output: map[string]any{
			"specialists_done": done,
			"progress":         state.Progress,
		},
		Confidence: 1.0,
		Quality:    1.0,
		Accuracy:   1.0,
	}, nil
}

// Cleanup implements Agent.
func (a *AdaptiveCoordinatorAgent) Cleanup() error {
	if a.cleaned {
		return fmt.Errorf("agent %s: cleanup called twice", a.id)
	}
	a.cleaned = true
	return nil
}

// RecoveryAgent handles non-critical processing errors so the dynamic
// coordinator stops detouring to it. Errors stay on the state's list
// for the final result; recovery only marks them handled.
type RecoveryAgent struct {
	id      string
	cleaned bool
}

// NewRecoveryAgent creates a recovery agent.
func NewRecoveryAgent(id string) *RecoveryAgent {
	return &RecoveryAgent{id: id}
}

// ID implements Agent.
func (a *RecoveryAgent) ID() string { return a.id }

// Capability implements Agent.
func (a *RecoveryAgent) Capability() string { return CapabilityRecovery }

// CanHandle implements Agent.
func (a *RecoveryAgent) CanHandle(*models.Task) bool { return true }

// ValidateInput implements Agent.
func (a *RecoveryAgent) ValidateInput(state *models.WorkflowState) error {
	if state == nil {
		return fmt.Errorf("%w: nil state", ErrInvalidInput)
	}
	return nil
}

// Process marks every pending non-critical error handled.
func (a *RecoveryAgent) Process(_ context.Context, state *models.WorkflowState) (*Result, error) {
	handled := 0
	for i := range state.Errors {
		if !state.Errors[i].Critical && !state.Errors[i].Handled {
			state.Errors[i].Handled = true
			handled++
		}
	}

	return &Result{
		AgentID: a.id,
		Output: map[string]any{
			"errors_handled": handled,
		},
		Confidence: 0.9,
		Quality:    0.9,
		Accuracy:   0.9,
	}, nil
}

// Cleanup implements Agent.
func (a *RecoveryAgent) Cleanup() error {
	if a.cleaned {
		return fmt.Errorf("agent %s: cleanup called twice", a.id)
	}
	a.cleaned = true
	return nil
}

var (
	_ Agent = (*SupervisorAgent)(nil)
	_ Agent = (*ConsensusAgent)(nil)
	_ Agent = (*AdaptiveCoordinatorAgent)(nil)
	_ Agent = (*RecoveryAgent)(nil)
)
