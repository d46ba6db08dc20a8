package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/docuflow/docuflow/internal/config"
	"github.com/docuflow/docuflow/internal/coord"
	"github.com/docuflow/docuflow/internal/state"
	"github.com/docuflow/docuflow/pkg/models"
)

func testTable(t *testing.T) config.TierTable {
	t.Helper()
	table, err := config.DefaultTierTable()
	if err != nil {
		t.Fatalf("DefaultTierTable: %v", err)
	}
	return table
}

func invoiceTask(id string) *models.Task {
	return &models.Task{
		ID:            id,
		DocumentTypes: []string{"invoice"},
		Priority:      1,
	}
}

func newOrchestrator(t *testing.T, tierLevel models.Tier, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(testTable(t), tierLevel, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestSubmitSimpleInvoiceOnFreeTier(t *testing.T) {
	o := newOrchestrator(t, models.TierFree)

	result := o.Submit(context.Background(), invoiceTask("task-1"))

	if !result.Success {
		t.Fatalf("submission failed: %+v", result.Errors)
	}
	if result.Metadata["framework"] != string(models.FrameworkSequentialChain) {
		t.Fatalf("framework = %s, want sequential-chain", result.Metadata["framework"])
	}
	if result.WorkflowID == "" {
		t.Fatal("no workflow id assigned")
	}
	// The memory metric reports the granted allocation ceiling.
	if got := result.Metrics.MemoryUsedMB; got != o.Tiers().Limits().MaxMemoryPerWorkflowMB {
		t.Fatalf("MemoryUsedMB = %d, want the tier ceiling %d", got, o.Tiers().Limits().MaxMemoryPerWorkflowMB)
	}

	// The workflow released its slots on completion.
	usage := o.Tiers().Usage()
	if usage.CurrentAgents != 0 || usage.ActiveWorkflows != 0 {
		t.Fatalf("usage after completion = %+v, want zeroed counters", usage)
	}
}

func TestSubmitEmitsLifecycleEvents(t *testing.T) {
	o := newOrchestrator(t, models.TierFree)
	o.Submit(context.Background(), invoiceTask("task-1"))

	seen := make(map[EventType]bool)
	for {
		select {
		case event := <-o.Events():
			seen[event.Type] = true
		default:
			for _, want := range []EventType{EventTaskSubmitted, EventDecisionMade, EventWorkflowStarted, EventWorkflowCompleted} {
				if !seen[want] {
					t.Fatalf("missing event %s (saw %v)", want, seen)
				}
			}
			return
		}
	}
}

func TestSubmitRejectsInvalidTask(t *testing.T) {
	o := newOrchestrator(t, models.TierFree)

	result := o.Submit(context.Background(), &models.Task{})

	if result.Success {
		t.Fatal("invalid task accepted")
	}
	if len(result.Errors) != 1 || result.Errors[0].Kind != models.ErrorKindValidation {
		t.Fatalf("errors = %+v, want one validation error", result.Errors)
	}
}

func TestSubmitRejectsWhenWorkflowQuotaExhausted(t *testing.T) {
	o := newOrchestrator(t, models.TierFree)

	// Occupy the free tier's single workflow slot.
	if _, err := o.Tiers().Allocate(invoiceTask("occupier"), 1); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	result := o.Submit(context.Background(), invoiceTask("task-1"))

	if result.Success {
		t.Fatal("submission succeeded with no workflow slot")
	}
	if result.Errors[0].Kind != models.ErrorKindResource {
		t.Fatalf("error kind = %s, want resource", result.Errors[0].Kind)
	}
	if !result.UpgradeRequired() {
		t.Fatal("quota rejection not flagged for upgrade")
	}
}

func TestSubmitCoordinationFailureFallsBackToLocalAgents(t *testing.T) {
	// A service with no registered servers always fails to distribute.
	service := coord.NewService(coord.NewHTTPTransport(time.Second))
	o := newOrchestrator(t, models.TierEnterprise, WithCoordination(service))

	task := invoiceTask("task-1")
	task.RequiresMultiAgentCoordination = true
	task.EstimatedAgentCount = 5

	result := o.Submit(context.Background(), task)

	if !result.Success {
		t.Fatalf("coordination failure aborted the workflow: %+v", result.Errors)
	}
	found := false
	for _, e := range result.Errors {
		if e.Kind == models.ErrorKindCoordination && e.Handled {
			found = true
		}
	}
	if !found {
		t.Fatalf("errors = %+v, want a handled coordination error", result.Errors)
	}
}

// recordingStore captures archived results for assertions.
type recordingStore struct {
	saved []*state.ArchivedResult
}

func (s *recordingStore) SaveResult(record *state.ArchivedResult) error {
	s.saved = append(s.saved, record)
	return nil
}
func (s *recordingStore) GetResult(string) (*state.ArchivedResult, error) {
	return nil, state.ErrNotFound
}
func (s *recordingStore) ListRecent(int) ([]*state.ArchivedResult, error) { return nil, nil }
func (s *recordingStore) Close() error                                    { return nil }

func TestSubmitArchivesStatefulWorkflows(t *testing.T) {
	store := &recordingStore{}
	o := newOrchestrator(t, models.TierEnterprise, WithArchive(store))

	task := invoiceTask("task-1")
	task.RequiresLongTermMemory = true
	task.EstimatedAgentCount = 5

	result := o.Submit(context.Background(), task)
	if !result.Success {
		t.Fatalf("submission failed: %+v", result.Errors)
	}

	if len(store.saved) != 1 {
		t.Fatalf("archived %d results, want 1", len(store.saved))
	}
	record := store.saved[0]
	if record.WorkflowID != result.WorkflowID {
		t.Fatalf("archived workflow %s, want %s", record.WorkflowID, result.WorkflowID)
	}
	if record.Framework != models.FrameworkGraphMultiAgent {
		t.Fatalf("archived framework = %s, want graph-multi-agent", record.Framework)
	}
}

func TestPoolRunsEveryTask(t *testing.T) {
	o := newOrchestrator(t, models.TierPro)
	pool := NewPool(o, 2)

	tasks := []*models.Task{
		invoiceTask("task-1"),
		invoiceTask("task-2"),
		invoiceTask("task-3"),
	}
	results := pool.Run(context.Background(), tasks)

	if len(results) != len(tasks) {
		t.Fatalf("got %d results, want %d", len(results), len(tasks))
	}
	for i, result := range results {
		if result == nil {
			t.Fatalf("result %d is nil", i)
		}
		if result.TaskID != tasks[i].ID {
			t.Fatalf("result %d is for %s, want %s", i, result.TaskID, tasks[i].ID)
		}
	}

	usage := o.Tiers().Usage()
	if usage.CurrentAgents != 0 || usage.ActiveWorkflows != 0 {
		t.Fatalf("usage after pool run = %+v, want zeroed counters", usage)
	}
}
