package models

import "sort"

// ReviewStatus values used by the quality sub-state.
const (
	// ReviewPending means no quality review has run yet.
	ReviewPending = "pending"
	// ReviewApproved means quality review passed.
	ReviewApproved = "approved"
	// ReviewNeedsRevision means quality review requested rework.
	ReviewNeedsRevision = "needs-revision"
)

// Consensus states used by the coordination sub-state.
const (
	// ConsensusPending means agents have not yet converged.
	ConsensusPending = "pending"
	// ConsensusAchieved means agent outputs have converged.
	ConsensusAchieved = "achieved"
)

// DocumentState tracks document processing inside a workflow.
type DocumentState struct {
	// UploadedDocuments lists document identifiers attached to the task.
	UploadedDocuments []string `json:"uploaded_documents,omitempty"`
	// ExtractedText maps document id to extracted text.
	ExtractedText map[string]string `json:"extracted_text,omitempty"`
	// Status is the overall document pipeline status.
	Status string `json:"status,omitempty"`
}

// AnalysisState tracks analysis findings inside a workflow.
type AnalysisState struct {
	// Findings maps finding name to value.
	Findings map[string]any `json:"findings,omitempty"`
	// AccuracyScores maps agent id to its tracked accuracy in [0,1].
	AccuracyScores map[string]float64 `json:"accuracy_scores,omitempty"`
}

// QualityState tracks quality assurance inside a workflow.
type QualityState struct {
	// ReviewStatus is one of the Review* constants.
	ReviewStatus string `json:"review_status,omitempty"`
	// Scores maps agent id to its reported quality in [0,1].
	Scores map[string]float64 `json:"scores,omitempty"`
}

// CoordinationState tracks agent coordination inside a workflow.
type CoordinationState struct {
	// ConsensusState is one of the Consensus* constants.
	ConsensusState string `json:"consensus_state,omitempty"`
	// BusyAgents maps agent id to whether it currently holds work.
	BusyAgents map[string]bool `json:"busy_agents,omitempty"`
}

// MemoryState tracks workflow memory slots.
type MemoryState struct {
	// ShortTerm is per-workflow scratch memory, always available.
	ShortTerm map[string]any `json:"short_term,omitempty"`
	// Session is session-scoped memory, tier gated.
	Session map[string]any `json:"session,omitempty"`
}

// WorkflowState is the single shared mutable record threaded through
// one workflow execution. Exactly one instance exists per running
// workflow; the execution engine enforces the single-writer rule, so
// agents may read and write it freely inside Process.
type WorkflowState struct {
	// TaskID identifies the owning task.
	TaskID string `json:"task_id"`
	// WorkflowID identifies this execution instance.
	WorkflowID string `json:"workflow_id"`
	// CurrentStep is the node id currently executing.
	CurrentStep string `json:"current_step"`
	// Progress is overall completion in [0,1]; the dynamic coordinator
	// routes to FINISH at >= 1.0.
	Progress float64 `json:"progress"`
	// AgentAssignments maps node id to agent id.
	AgentAssignments map[string]string `json:"agent_assignments"`
	// IntermediateResults maps agent id to its merged output.
	IntermediateResults map[string]any `json:"intermediate_results"`
	// Errors collects non-critical agent errors as execution continues.
	Errors []WorkflowError `json:"errors,omitempty"`

	// Document is the document-processing sub-state.
	Document DocumentState `json:"document"`
	// Analysis is the analysis sub-state.
	Analysis AnalysisState `json:"analysis"`
	// Quality is the quality-assurance sub-state.
	Quality QualityState `json:"quality"`
	// Coordination is the coordination sub-state.
	Coordination CoordinationState `json:"coordination"`
	// Memory is the workflow memory sub-state.
	Memory MemoryState `json:"memory"`
}

// NewWorkflowState creates an initialized state for one workflow run.
func NewWorkflowState(taskID, workflowID string) *WorkflowState {
	return &WorkflowState{
		TaskID:              taskID,
		WorkflowID:          workflowID,
		AgentAssignments:    make(map[string]string),
		IntermediateResults: make(map[string]any),
		Analysis: AnalysisState{
			Findings:       make(map[string]any),
			AccuracyScores: make(map[string]float64),
		},
		Quality: QualityState{
			ReviewStatus: ReviewPending,
			Scores:       make(map[string]float64),
		},
		Coordination: CoordinationState{
			ConsensusState: ConsensusPending,
			BusyAgents:     make(map[string]bool),
		},
		Memory: MemoryState{
			ShortTerm: make(map[string]any),
			Session:   make(map[string]any),
		},
		Document: DocumentState{
			ExtractedText: make(map[string]string),
		},
	}
}

// AllAccuraciesAbove returns true if every tracked accuracy score
// exceeds the threshold and at least one score is tracked. The
// collaborative topology's routing uses this to pick the consensus node.
func (s *WorkflowState) AllAccuraciesAbove(threshold float64) bool {
	if len(s.Analysis.AccuracyScores) == 0 {
		return false
	}
	for _, score := range s.Analysis.AccuracyScores {
		if score <= threshold {
			return false
		}
	}
	return true
}

// HasCriticalError returns true if any recorded error is critical.
func (s *WorkflowState) HasCriticalError() bool {
	for _, e := range s.Errors {
		if e.Critical {
			return true
		}
	}
	return false
}

// HasUnhandledError returns true if any recorded non-critical error has
// not yet been addressed by a recovery agent. The dynamic topology's
// coordinator routes to recovery while this holds.
func (s *WorkflowState) HasUnhandledError() bool {
	for _, e := range s.Errors {
		if !e.Critical && !e.Handled {
			return true
		}
	}
	return false
}

// FirstIdleAgent returns the lowest agent id not currently busy, or ""
// if every agent is busy. Ids are sorted so supervisor routing is
// deterministic.
func (s *WorkflowState) FirstIdleAgent() string {
	ids := make([]string, 0, len(s.Coordination.BusyAgents))
	for id := range s.Coordination.BusyAgents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !s.Coordination.BusyAgents[id] {
			return id
		}
	}
	return ""
}
