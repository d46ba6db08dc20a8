package models

import "testing"

func TestExecutionResult_Outcome(t *testing.T) {
	tests := []struct {
		name   string
		result ExecutionResult
		want   Outcome
	}{
		{
			name:   "success with no errors",
			result: ExecutionResult{Success: true},
			want:   OutcomeSucceeded,
		},
		{
			name: "success with recorded errors is partial",
			result: ExecutionResult{
				Success: true,
				Errors:  []WorkflowError{{Kind: ErrorKindExecution, Message: "agent timeout"}},
			},
			want: OutcomePartial,
		},
		{
			name:   "failure",
			result: ExecutionResult{Success: false},
			want:   OutcomeFailed,
		},
		{
			name: "failure with errors is still failed",
			result: ExecutionResult{
				Success: false,
				Errors:  []WorkflowError{{Kind: ErrorKindCancelled, Message: "cancelled", Critical: true}},
			},
			want: OutcomeFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Outcome(); got != tt.want {
				t.Errorf("Outcome() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExecutionResult_UpgradeRequired(t *testing.T) {
	result := ExecutionResult{
		Errors: []WorkflowError{
			{Kind: ErrorKindExecution, Message: "agent failed"},
			{Kind: ErrorKindResource, Message: "agent quota exceeded", UpgradeRequired: true},
		},
	}

	if !result.UpgradeRequired() {
		t.Error("UpgradeRequired() = false, want true")
	}

	noUpgrade := ExecutionResult{
		Errors: []WorkflowError{{Kind: ErrorKindExecution, Message: "agent failed"}},
	}
	if noUpgrade.UpgradeRequired() {
		t.Error("UpgradeRequired() = true, want false")
	}
}

func TestErrorKind_Valid(t *testing.T) {
	valid := []ErrorKind{
		ErrorKindValidation, ErrorKindResource, ErrorKindExecution,
		ErrorKindCoordination, ErrorKindSystemic, ErrorKindCancelled,
	}
	for _, k := range valid {
		if !k.Valid() {
			t.Errorf("ErrorKind(%q).Valid() = false, want true", k)
		}
	}
	if ErrorKind("oops").Valid() {
		t.Error(`ErrorKind("oops").Valid() = true, want false`)
	}
}

func TestWorkflowError_Error(t *testing.T) {
	err := WorkflowError{Kind: ErrorKindResource, Message: "agent quota exceeded"}
	want := "resource: agent quota exceeded"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWorkflowState_AllAccuraciesAbove(t *testing.T) {
	state := NewWorkflowState("t1", "w1")

	if state.AllAccuraciesAbove(0.9) {
		t.Error("no tracked scores should not count as consensus-ready")
	}

	state.Analysis.AccuracyScores["extract"] = 0.95
	state.Analysis.AccuracyScores["validate"] = 0.85
	if state.AllAccuraciesAbove(0.9) {
		t.Error("one score below threshold should fail the check")
	}

	state.Analysis.AccuracyScores["validate"] = 0.92
	if !state.AllAccuraciesAbove(0.9) {
		t.Error("all scores above threshold should pass the check")
	}
}

func TestWorkflowState_FirstIdleAgent(t *testing.T) {
	state := NewWorkflowState("t1", "w1")
	state.Coordination.BusyAgents["worker-b"] = false
	state.Coordination.BusyAgents["worker-a"] = false
	state.Coordination.BusyAgents["worker-c"] = true

	if got := state.FirstIdleAgent(); got != "worker-a" {
		t.Errorf("FirstIdleAgent() = %q, want %q", got, "worker-a")
	}

	state.Coordination.BusyAgents["worker-a"] = true
	state.Coordination.BusyAgents["worker-b"] = true
	if got := state.FirstIdleAgent(); got != "" {
		t.Errorf("FirstIdleAgent() with all busy = %q, want empty", got)
	}
}
