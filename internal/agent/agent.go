// Package agent defines the narrow contract every workflow agent
// implements, the concrete document-processing agents, and the
// capability-keyed registry the graph builder draws rosters from.
package agent

import (
	"context"
	"errors"

	"github.com/docuflow/docuflow/pkg/models"
)

// Capability tags for the built-in agents. The registry is keyed by
// these; routing decisions roster agents by tag.
const (
	CapabilityTextExtraction       = "document-text-extraction"
	CapabilityDataValidation       = "data-validation"
	CapabilityStructuredExtraction = "structured-data-extraction"
)

// ErrInvalidInput indicates the shared state lacks what the agent
// needs to run.
var ErrInvalidInput = errors.New("invalid agent input")

// Result is what an agent produces from one Process call. Output is
// merged into the workflow state's intermediate results by the
// execution engine, never by the agent's peers.
type Result struct {
	// AgentID identifies the producing agent.
	AgentID string
	// Output is the agent's domain result.
	Output map[string]any
	// Confidence is the agent's self-reported confidence in [0,1].
	Confidence float64
	// Quality is the agent's quality assessment in [0,1].
	Quality float64
	// Accuracy is the agent's accuracy estimate in [0,1], used by
	// consensus routing.
	Accuracy float64
	// Progress is how much of the overall workflow this call advanced,
	// added to the state's progress marker at merge time.
	Progress float64
}

// Agent is the uniform contract the execution engine dispatches
// through. Process may mutate the shared state it is handed; the
// engine enforces the single-writer rule, so implementations do not
// lock. Process is expected to be idempotent-safe on retry. Cleanup
// runs exactly once per agent per workflow, success or failure.
type Agent interface {
	// ID returns the agent's unique id within one workflow.
	ID() string
	// Capability returns the agent's capability tag.
	Capability() string
	// CanHandle reports whether the agent can work on the task.
	CanHandle(task *models.Task) bool
	// ValidateInput checks the shared state before processing.
	ValidateInput(state *models.WorkflowState) error
	// Process performs the agent's work against the shared state.
	Process(ctx context.Context, state *models.WorkflowState) (*Result, error)
	// Cleanup releases any per-workflow resources.
	Cleanup() error
}

// Factory builds a fresh agent instance for one workflow. Agents are
// never shared across workflows; each run gets its own instances so
// Cleanup bookkeeping stays per-workflow.
type Factory func(id string) Agent

// clamp01 bounds a score to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
