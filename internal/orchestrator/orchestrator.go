package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/docuflow/internal/agent"
	"github.com/docuflow/docuflow/internal/analyzer"
	"github.com/docuflow/docuflow/internal/config"
	"github.com/docuflow/docuflow/internal/coord"
	"github.com/docuflow/docuflow/internal/decision"
	"github.com/docuflow/docuflow/internal/engine"
	"github.com/docuflow/docuflow/internal/graph"
	"github.com/docuflow/docuflow/internal/state"
	"github.com/docuflow/docuflow/internal/tier"
	"github.com/docuflow/docuflow/pkg/models"
)

// Orchestrator runs the routing pipeline for one caller: analyze,
// decide, allocate, build, execute, release. The tier manager is the
// only state shared across concurrent submissions.
type Orchestrator struct {
	analyzer     *analyzer.Analyzer
	decider      *decision.Engine
	tiers        *tier.Manager
	builder      *graph.Builder
	engine       *engine.Engine
	coordination *coord.Service
	archive      state.Store
	events       chan Event
	logger       *DebugLogger
}

// New creates an orchestrator for the given tier.
func New(table config.TierTable, tierLevel models.Tier, opts ...Option) (*Orchestrator, error) {
	options := orchestratorOptions{
		eventBuffer: 64,
		logger:      NopLogger(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.registry == nil {
		options.registry = agent.DefaultRegistry(options.extractor)
	}

	manager, err := tier.NewManager(table, tierLevel)
	if err != nil {
		return nil, fmt.Errorf("creating tier manager: %w", err)
	}

	o := &Orchestrator{
		analyzer:     analyzer.New(),
		decider:      decision.New(),
		tiers:        manager,
		builder:      graph.NewBuilder(options.registry),
		engine:       engine.New(),
		coordination: options.coordination,
		archive:      options.archive,
		events:       make(chan Event, options.eventBuffer),
		logger:       options.logger,
	}

	debug := o.logger.Log
	o.tiers.SetDebugLog(debug)
	o.builder.SetDebugLog(debug)
	o.engine.SetDebugLog(debug)
	return o, nil
}

// Events returns the orchestrator's event channel. Events are dropped
// rather than blocking submissions when no one is draining it.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Tiers exposes the tier manager for quota inspection and tier changes.
func (o *Orchestrator) Tiers() *tier.Manager {
	return o.tiers
}

// Submit runs one task through the full pipeline. The caller always
// receives a structured result: rejected tasks get a failed result
// with a classified error rather than a bare error return.
func (o *Orchestrator) Submit(ctx context.Context, task *models.Task) *models.ExecutionResult {
	o.emit(Event{Type: EventTaskSubmitted, TaskID: task.ID})
	o.logger.Log("[orchestrator.Submit] task=%s", task.ID)

	if err := task.Validate(); err != nil {
		return o.reject(task, models.WorkflowError{
			Kind:     models.ErrorKindValidation,
			Message:  err.Error(),
			Critical: true,
		})
	}

	limits := o.tiers.Limits()
	analysis := o.analyzer.Analyze(task, limits)
	o.logger.Log("[orchestrator.Submit] task=%s complexity=%s pattern=%s score=%.2f",
		task.ID, analysis.Complexity, analysis.Coordination, analysis.OverallComplexityScore)

	routing, err := o.decider.Decide(analysis, limits, o.tiers.Usage())
	if err != nil {
		if errors.Is(err, decision.ErrNoAllowedFramework) {
			return o.reject(task, models.WorkflowError{
				Kind:            models.ErrorKindSystemic,
				Message:         err.Error(),
				Critical:        true,
				UpgradeRequired: true,
			})
		}
		return o.reject(task, models.WorkflowError{
			Kind:     models.ErrorKindSystemic,
			Message:  fmt.Sprintf("framework decision: %v", err),
			Critical: true,
		})
	}
	o.emit(Event{Type: EventDecisionMade, TaskID: task.ID, Framework: routing.Primary,
		Message: fmt.Sprintf("confidence %.2f", routing.Confidence)})

	if !o.tiers.CanStartWorkflow() {
		return o.reject(task, models.WorkflowError{
			Kind:            models.ErrorKindResource,
			Message:         fmt.Sprintf("tier %s concurrent workflow quota exhausted", limits.Tier),
			Critical:        true,
			UpgradeRequired: true,
		})
	}

	alloc, err := o.tiers.Allocate(task, len(routing.Strategy.AgentRoster))
	if err != nil {
		return o.reject(task, models.WorkflowError{
			Kind:            models.ErrorKindResource,
			Message:         fmt.Sprintf("resource allocation: %v", err),
			Critical:        true,
			UpgradeRequired: true,
		})
	}
	routing.Allocation = *alloc

	if err := o.tiers.RecordFrameworkUsage(routing.Primary); err != nil {
		o.logger.Log("[orchestrator.Submit] task=%s framework usage not recorded: %v", task.ID, err)
	}

	parallel := analysis.ParallelProcessing && o.tiers.IsFeatureAvailable(models.FeatureParallelProcessing)
	if parallel {
		if err := o.tiers.RecordFeatureUsage(models.FeatureParallelProcessing); err != nil {
			o.logger.Log("[orchestrator.Submit] task=%s parallel usage not recorded: %v", task.ID, err)
		}
	}

	workflow, err := o.builder.Build(routing.Strategy)
	if err != nil {
		o.tiers.Release(alloc)
		return o.reject(task, models.WorkflowError{
			Kind:     models.ErrorKindSystemic,
			Message:  fmt.Sprintf("building workflow graph: %v", err),
			Critical: true,
		})
	}

	workflowID := uuid.New().String()
	wfState := models.NewWorkflowState(task.ID, workflowID)
	wfState.Document.UploadedDocuments = append([]string{}, task.DocumentTypes...)

	o.consultCoordination(ctx, task, analysis, wfState)

	o.emit(Event{Type: EventWorkflowStarted, TaskID: task.ID, WorkflowID: workflowID})
	started := time.Now()
	result := o.engine.Run(ctx, engine.Request{
		Graph:    workflow,
		State:    wfState,
		Strategy: routing.Strategy,
		Parallel: parallel,
		Timeout:  executionBudget(task, limits),
	})

	o.tiers.Release(alloc)
	o.tiers.RecordCompletion(time.Since(started))

	result.Metrics.MemoryUsedMB = alloc.MemoryMB
	result.Metadata["framework"] = string(routing.Primary)
	result.Metadata["tier"] = string(limits.Tier)

	o.archiveResult(routing, result)
	o.recommendUpgrade(task)

	if result.Success {
		o.emit(Event{Type: EventWorkflowCompleted, TaskID: task.ID, WorkflowID: workflowID,
			Message: string(result.Outcome())})
	} else {
		o.emit(Event{Type: EventWorkflowFailed, TaskID: task.ID, WorkflowID: workflowID,
			Error: firstCritical(result.Errors)})
	}
	return result
}

// consultCoordination asks the remote coordination pool for
// distribution hints before a coordinated workflow starts. Remote
// failure never blocks the workflow; the local agents are the
// fallback, so the error is recorded and execution proceeds.
func (o *Orchestrator) consultCoordination(ctx context.Context, task *models.Task, analysis *models.TaskAnalysis, wfState *models.WorkflowState) {
	if o.coordination == nil || !analysis.MultiAgent.RequiresCoordination {
		return
	}
	if !o.tiers.IsFeatureAvailable(models.FeatureDistributedCoordination) {
		return
	}
	if err := o.tiers.RecordCoordinationCalls(1); err != nil {
		wfState.Errors = append(wfState.Errors, models.WorkflowError{
			Kind:            models.ErrorKindCoordination,
			Message:         fmt.Sprintf("coordination call quota: %v", err),
			UpgradeRequired: true,
			OccurredAt:      time.Now(),
		})
		return
	}

	req := coord.Request{
		ID:        wfState.WorkflowID,
		Type:      coord.RequestTaskDistribution,
		Payload:   map[string]any{"task_id": task.ID, "agent_count": analysis.MultiAgent.AgentCount},
		Timestamp: time.Now(),
		Priority:  coord.PriorityNormal,
	}
	agg, err := o.coordination.Distribute(ctx, req, coord.StrategyLoadBalanced, nil)
	if err != nil {
		o.logger.Log("[orchestrator.consultCoordination] task=%s falling back to local agents: %v", task.ID, err)
		wfState.Errors = append(wfState.Errors, models.WorkflowError{
			Kind:       models.ErrorKindCoordination,
			Message:    fmt.Sprintf("remote coordination unavailable: %v", err),
			Handled:    true,
			OccurredAt: time.Now(),
		})
		return
	}
	wfState.Memory.ShortTerm["coordination_hints"] = agg.Result
	wfState.Memory.ShortTerm["coordination_quality"] = agg.Quality
}

// executionBudget bounds the run by the task's request, clamped to the
// tier's maximum.
func executionBudget(task *models.Task, limits *models.TierLimits) time.Duration {
	budget := limits.MaxExecutionTime
	if task.MaxExecutionTime > 0 && task.MaxExecutionTime < budget {
		budget = task.MaxExecutionTime
	}
	return budget
}

// archiveResult persists the result when the decision asked for
// archived persistence. Archive trouble is logged, never surfaced as a
// workflow error.
func (o *Orchestrator) archiveResult(routing *models.RoutingDecision, result *models.ExecutionResult) {
	if o.archive == nil || routing.Strategy.Persistence != models.PersistenceArchived {
		return
	}
	record := state.NewArchivedResult(result, o.tiers.Limits().Tier, routing)
	if err := o.archive.SaveResult(record); err != nil {
		o.logger.Log("[orchestrator.archiveResult] workflow=%s archive failed: %v", result.WorkflowID, err)
	}
}

// recommendUpgrade emits an event when blended utilization crosses the
// recommendation threshold.
func (o *Orchestrator) recommendUpgrade(task *models.Task) {
	rec := o.tiers.UpgradeRecommendation()
	if rec == nil {
		return
	}
	o.emit(Event{
		Type:    EventUpgradeRecommended,
		TaskID:  task.ID,
		Message: fmt.Sprintf("utilization %.0f%%: consider %s", rec.Utilization*100, rec.To),
	})
}

// reject builds the failed result for a task that never started a
// workflow.
func (o *Orchestrator) reject(task *models.Task, werr models.WorkflowError) *models.ExecutionResult {
	werr.OccurredAt = time.Now()
	o.logger.Log("[orchestrator.reject] task=%s kind=%s: %s", task.ID, werr.Kind, werr.Message)
	o.emit(Event{Type: EventTaskRejected, TaskID: task.ID, Error: werr})

	result := &models.ExecutionResult{
		TaskID:      task.ID,
		Success:     false,
		Output:      map[string]any{},
		Errors:      []models.WorkflowError{werr},
		Metadata:    map[string]string{"tier": string(o.tiers.Limits().Tier)},
		CompletedAt: time.Now(),
	}
	if werr.UpgradeRequired {
		result.NextSteps = append(result.NextSteps, "upgrade the subscription tier to lift the failing limit")
	}
	return result
}

// emit sends an event without blocking; a full channel drops it.
func (o *Orchestrator) emit(event Event) {
	event.Timestamp = time.Now()
	select {
	case o.events <- event:
	default:
	}
}

// firstCritical returns the first critical error, or nil.
func firstCritical(errs []models.WorkflowError) error {
	for _, e := range errs {
		if e.Critical {
			return e
		}
	}
	return nil
}
