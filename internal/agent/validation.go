package agent

import (
	"context"
	"fmt"

	"github.com/docuflow/docuflow/pkg/models"
)

// DataValidationAgent reviews extracted text, records per-agent
// accuracy scores, and sets the quality review status downstream
// routing conditions read.
type DataValidationAgent struct {
	id      string
	cleaned bool
}

// NewDataValidationAgent creates a validation agent.
func NewDataValidationAgent(id string) *DataValidationAgent {
	return &DataValidationAgent{id: id}
}

// ID implements Agent.
func (a *DataValidationAgent) ID() string { return a.id }

// Capability implements Agent.
func (a *DataValidationAgent) Capability() string { return CapabilityDataValidation }

// CanHandle reports true for any non-nil task; validation applies to
// every document pipeline.
func (a *DataValidationAgent) CanHandle(task *models.Task) bool {
	return task != nil
}

// ValidateInput requires at least one extracted document or prior
// intermediate result to review.
func (a *DataValidationAgent) ValidateInput(state *models.WorkflowState) error {
	if state == nil {
		return fmt.Errorf("%w: nil state", ErrInvalidInput)
	}
	if len(state.Document.ExtractedText) == 0 && len(state.IntermediateResults) == 0 {
		return fmt.Errorf("%w: nothing to validate yet", ErrInvalidInput)
	}
	return nil
}

// Process scores each extracted document and records accuracy for the
// extraction agent plus itself. Re-running recomputes the same scores,
// so retries are safe.
func (a *DataValidationAgent) Process(_ context.Context, state *models.WorkflowState) (*Result, error) {
	validated := 0
	var issues []string
	for docID, text := range state.Document.ExtractedText {
		if wordCount(text) < 2 {
			issues = append(issues, fmt.Sprintf("%s: extraction too short", docID))
			continue
		}
		validated++
	}

	total := len(state.Document.ExtractedText)
	accuracy := 1.0
	if total > 0 {
		accuracy = float64(validated) / float64(total)
	}

	state.Analysis.AccuracyScores[a.id] = accuracy
	state.Quality.Scores[a.id] = accuracy

	if len(issues) > 0 {
		state.Quality.ReviewStatus = models.ReviewNeedsRevision
	} else {
		state.Quality.ReviewStatus = models.ReviewApproved
	}

	return &Result{
		AgentID: a.id,
		Output: map[string]any{
			"documents_validated": validated,
			"issues":              issues,
		},
		Confidence: clamp01(accuracy),
		Quality:    clamp01(accuracy),
		Accuracy:   clamp01(accuracy),
		Progress:   0.3,
	}, nil
}

// Cleanup implements Agent.
func (a *DataValidationAgent) Cleanup() error {
	if a.cleaned {
		return fmt.Errorf("agent %s: cleanup called twice", a.id)
	}
	a.cleaned = true
	return nil
}
