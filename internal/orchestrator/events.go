package orchestrator

import (
	"time"

	"github.com/docuflow/docuflow/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventTaskSubmitted indicates a task entered the pipeline.
	EventTaskSubmitted EventType = "task_submitted"
	// EventTaskRejected indicates a task failed validation or hit a
	// quota before any workflow started.
	EventTaskRejected EventType = "task_rejected"
	// EventDecisionMade indicates the decision engine picked a framework.
	EventDecisionMade EventType = "decision_made"
	// EventWorkflowStarted indicates graph execution began.
	EventWorkflowStarted EventType = "workflow_started"
	// EventWorkflowCompleted indicates the workflow reached FINISH.
	EventWorkflowCompleted EventType = "workflow_completed"
	// EventWorkflowFailed indicates the workflow aborted.
	EventWorkflowFailed EventType = "workflow_failed"
	// EventUpgradeRecommended indicates blended utilization crossed the
	// recommendation threshold.
	EventUpgradeRecommended EventType = "upgrade_recommended"
)

// Event is emitted on the orchestrator's event channel as a task moves
// through the pipeline.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task.
	TaskID string
	// WorkflowID is the ID of the related workflow, if one started.
	WorkflowID string
	// Framework is the selected framework, for decision events.
	Framework models.Framework
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
