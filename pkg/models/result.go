package models

import "time"

// ErrorKind classifies a workflow error per the error taxonomy.
type ErrorKind string

const (
	// ErrorKindValidation marks a malformed task rejected before analysis.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindResource marks a tier quota or capacity rejection.
	ErrorKindResource ErrorKind = "resource"
	// ErrorKindExecution marks an agent failure or timeout.
	ErrorKindExecution ErrorKind = "execution"
	// ErrorKindCoordination marks a remote coordination failure.
	ErrorKindCoordination ErrorKind = "coordination"
	// ErrorKindSystemic marks a fatal configuration problem, such as no
	// framework allowed for the tier/task combination.
	ErrorKindSystemic ErrorKind = "systemic"
	// ErrorKindCancelled marks a caller-initiated cancellation.
	ErrorKindCancelled ErrorKind = "cancelled"
)

// Valid returns true if the kind is a known value.
func (k ErrorKind) Valid() bool {
	switch k {
	case ErrorKindValidation, ErrorKindResource, ErrorKindExecution,
		ErrorKindCoordination, ErrorKindSystemic, ErrorKindCancelled:
		return true
	default:
		return false
	}
}

// WorkflowError is one recorded error with its taxonomy kind. Errors
// are collected, never silently dropped, and attached to the final
// result's error list.
type WorkflowError struct {
	// Kind is the taxonomy classification.
	Kind ErrorKind `json:"kind"`
	// AgentID is the agent that produced the error, if any.
	AgentID string `json:"agent_id,omitempty"`
	// Message is the human-readable error text.
	Message string `json:"message"`
	// Critical indicates the error aborted the workflow.
	Critical bool `json:"critical"`
	// UpgradeRequired indicates the caller could avoid this error on a
	// higher tier; the caller surfaces an upgrade prompt.
	UpgradeRequired bool `json:"upgrade_required,omitempty"`
	// Handled indicates a recovery agent has addressed the error. The
	// error still appears on the final result's list.
	Handled bool `json:"handled,omitempty"`
	// OccurredAt is when the error was recorded.
	OccurredAt time.Time `json:"occurred_at"`
}

// Error implements the error interface.
func (e WorkflowError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Outcome summarizes how a workflow finished.
type Outcome string

const (
	// OutcomeSucceeded means the workflow finished with no errors.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomePartial means the workflow finished but recorded errors.
	OutcomePartial Outcome = "partial"
	// OutcomeFailed means the workflow aborted.
	OutcomeFailed Outcome = "failed"
)

// PerformanceMetrics carries measured execution characteristics.
type PerformanceMetrics struct {
	// ExecutionTime is total wall-clock time for the workflow.
	ExecutionTime time.Duration `json:"execution_time"`
	// MemoryUsedMB is the memory attributed to the workflow: the
	// granted allocation ceiling, not a measured peak.
	MemoryUsedMB int `json:"memory_used_mb"`
	// Quality is the blended quality score in [0,1].
	Quality float64 `json:"quality"`
	// Accuracy is the blended accuracy score in [0,1].
	Accuracy float64 `json:"accuracy"`
	// Confidence is the blended agent confidence in [0,1].
	Confidence float64 `json:"confidence"`
}

// ExecutionResult is returned to the caller for every submitted task,
// whether the workflow succeeded, partially succeeded, or failed.
type ExecutionResult struct {
	// TaskID identifies the task.
	TaskID string `json:"task_id"`
	// WorkflowID identifies the execution instance.
	WorkflowID string `json:"workflow_id"`
	// Success is true unless the workflow aborted.
	Success bool `json:"success"`
	// Output is the aggregated output map keyed by agent id.
	Output map[string]any `json:"output"`
	// Metrics carries performance measurements.
	Metrics PerformanceMetrics `json:"metrics"`
	// Errors lists every recorded error, critical or not.
	Errors []WorkflowError `json:"errors,omitempty"`
	// NextSteps suggests follow-up actions for the caller.
	NextSteps []string `json:"next_steps,omitempty"`
	// Metadata carries framework used, agent count, and similar facts.
	Metadata map[string]string `json:"metadata,omitempty"`
	// CompletedAt is when the workflow reached its terminal node.
	CompletedAt time.Time `json:"completed_at"`
}

// Outcome distinguishes "succeeded fully", "succeeded partially with
// recorded errors", and "failed".
func (r *ExecutionResult) Outcome() Outcome {
	if !r.Success {
		return OutcomeFailed
	}
	if len(r.Errors) > 0 {
		return OutcomePartial
	}
	return OutcomeSucceeded
}

// UpgradeRequired returns true if any recorded error would be avoided
// on a higher tier.
func (r *ExecutionResult) UpgradeRequired() bool {
	for _, e := range r.Errors {
		if e.UpgradeRequired {
			return true
		}
	}
	return false
}
