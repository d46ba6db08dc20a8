// Package models defines the shared domain types for the docuflow
// orchestration core: tasks, analyses, routing decisions, workflow
// state, tiers, and execution results.
package models

import (
	"fmt"
	"time"
)

// ProcessingStep is one step in a task's processing plan.
type ProcessingStep struct {
	// ID is the unique identifier for this step within the task.
	ID string `json:"id"`
	// Name is the short description of the step.
	Name string `json:"name"`
	// DependsOn lists step IDs that must complete before this step.
	DependsOn []string `json:"depends_on,omitempty"`
	// Conditional marks the step as gated by a runtime condition.
	Conditional bool `json:"conditional,omitempty"`
}

// Task is one submitted unit of work. It is immutable once submitted;
// the orchestrator never writes back into it.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// DocumentTypes lists the kinds of documents involved (e.g. "invoice").
	DocumentTypes []string `json:"document_types"`
	// Steps is the ordered processing plan with dependencies.
	Steps []ProcessingStep `json:"steps"`

	// RequiresMultiAgentCoordination requests cooperating agents.
	RequiresMultiAgentCoordination bool `json:"requires_multi_agent_coordination,omitempty"`
	// HasConditionalLogic indicates the task contains branching decisions.
	HasConditionalLogic bool `json:"has_conditional_logic,omitempty"`
	// RequiresRealTime requests real-time handling.
	RequiresRealTime bool `json:"requires_real_time,omitempty"`
	// RequiresLongTermMemory requests memory persisted beyond the workflow.
	RequiresLongTermMemory bool `json:"requires_long_term_memory,omitempty"`
	// HasCyclicSteps indicates iterative or cyclic processing steps.
	HasCyclicSteps bool `json:"has_cyclic_steps,omitempty"`
	// RequiresSharedState requests state shared across agents.
	RequiresSharedState bool `json:"requires_shared_state,omitempty"`
	// RequiresDynamicAgents requests runtime agent allocation.
	RequiresDynamicAgents bool `json:"requires_dynamic_agents,omitempty"`
	// HardwareAccelerable marks the work as offloadable to accelerators.
	HardwareAccelerable bool `json:"hardware_accelerable,omitempty"`
	// RequiresSessionContext requests session-scoped context.
	RequiresSessionContext bool `json:"requires_session_context,omitempty"`
	// RequiresIntermediateState requests intermediate-result retention.
	RequiresIntermediateState bool `json:"requires_intermediate_state,omitempty"`
	// RequiresBasicContext requests minimal cross-step context.
	RequiresBasicContext bool `json:"requires_basic_context,omitempty"`
	// RequiresHierarchicalCoordination requests a supervisor topology.
	RequiresHierarchicalCoordination bool `json:"requires_hierarchical_coordination,omitempty"`
	// RequiresDynamicWorkflow requests adaptive routing at runtime.
	RequiresDynamicWorkflow bool `json:"requires_dynamic_workflow,omitempty"`
	// RequiresParallelProcessing requests concurrent step execution.
	RequiresParallelProcessing bool `json:"requires_parallel_processing,omitempty"`

	// Priority is the caller-supplied priority hint (higher is sooner).
	Priority int `json:"priority,omitempty"`
	// MaxExecutionTime bounds the total workflow run time. Zero means
	// the tier default applies.
	MaxExecutionTime time.Duration `json:"max_execution_time,omitempty"`
	// MemoryLimitMB is the caller-requested memory ceiling in megabytes.
	MemoryLimitMB int `json:"memory_limit_mb,omitempty"`
	// EstimatedAgentCount is the caller's estimate of agents needed.
	EstimatedAgentCount int `json:"estimated_agent_count,omitempty"`

	// SubmittedAt is when the task was submitted.
	SubmittedAt time.Time `json:"submitted_at"`
}

// Validate checks that the task carries the fields required before
// analysis. A failing task is rejected with a validation error and
// never reaches the analyzer.
func (t *Task) Validate() error {
	if t == nil {
		return fmt.Errorf("task is nil")
	}
	if t.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if len(t.DocumentTypes) == 0 && len(t.Steps) == 0 {
		return fmt.Errorf("task %s has no document types and no processing steps", t.ID)
	}
	seen := make(map[string]bool, len(t.Steps))
	for _, step := range t.Steps {
		if step.ID == "" {
			return fmt.Errorf("task %s has a step with no ID", t.ID)
		}
		if seen[step.ID] {
			return fmt.Errorf("task %s has duplicate step ID %s", t.ID, step.ID)
		}
		seen[step.ID] = true
	}
	for _, step := range t.Steps {
		for _, dep := range step.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("task %s: step %s depends on unknown step %s", t.ID, step.ID, dep)
			}
		}
	}
	return nil
}

// ConditionalBranchCount returns the number of conditional steps,
// used to bucket branching complexity.
func (t *Task) ConditionalBranchCount() int {
	count := 0
	for _, step := range t.Steps {
		if step.Conditional {
			count++
		}
	}
	return count
}
