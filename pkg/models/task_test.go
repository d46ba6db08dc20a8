package models

import (
	"strings"
	"testing"
)

func TestTask_Validate(t *testing.T) {
	tests := []struct {
		name    string
		task    *Task
		wantErr string
	}{
		{
			name:    "missing ID",
			task:    &Task{DocumentTypes: []string{"invoice"}},
			wantErr: "ID is required",
		},
		{
			name:    "no document types and no steps",
			task:    &Task{ID: "t1"},
			wantErr: "no document types and no processing steps",
		},
		{
			name: "valid with document types only",
			task: &Task{ID: "t1", DocumentTypes: []string{"invoice"}},
		},
		{
			name: "valid with steps only",
			task: &Task{ID: "t1", Steps: []ProcessingStep{{ID: "s1", Name: "extract"}}},
		},
		{
			name: "step with no ID",
			task: &Task{
				ID:    "t1",
				Steps: []ProcessingStep{{Name: "extract"}},
			},
			wantErr: "step with no ID",
		},
		{
			name: "duplicate step IDs",
			task: &Task{
				ID:    "t1",
				Steps: []ProcessingStep{{ID: "s1"}, {ID: "s1"}},
			},
			wantErr: "duplicate step ID",
		},
		{
			name: "dependency on unknown step",
			task: &Task{
				ID:    "t1",
				Steps: []ProcessingStep{{ID: "s1", DependsOn: []string{"s9"}}},
			},
			wantErr: "unknown step",
		},
		{
			name: "valid dependency chain",
			task: &Task{
				ID: "t1",
				Steps: []ProcessingStep{
					{ID: "s1"},
					{ID: "s2", DependsOn: []string{"s1"}},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestTask_ConditionalBranchCount(t *testing.T) {
	task := &Task{
		ID: "t1",
		Steps: []ProcessingStep{
			{ID: "s1"},
			{ID: "s2", Conditional: true},
			{ID: "s3", Conditional: true},
			{ID: "s4"},
		},
	}

	if got := task.ConditionalBranchCount(); got != 2 {
		t.Errorf("ConditionalBranchCount() = %d, want 2", got)
	}
}

func TestTask_NilValidate(t *testing.T) {
	var task *Task
	if err := task.Validate(); err == nil {
		t.Error("nil task should fail validation")
	}
}
