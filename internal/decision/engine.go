// Package decision implements the framework decision engine: given a
// task analysis and the caller's tier, it selects an execution
// strategy with a confidence score and an optional fallback.
package decision

import (
	"errors"
	"fmt"
	"time"

	"github.com/docuflow/docuflow/pkg/models"
)

// ErrNoAllowedFramework indicates the tier allows no framework at all
// for this task. This is a systemic error and is returned immediately.
var ErrNoAllowedFramework = errors.New("no framework allowed for this tier")

// Agent capability tags used when assembling a roster. These match the
// registration tags in the agent registry.
const (
	CapabilityTextExtraction       = "document-text-extraction"
	CapabilityDataValidation       = "data-validation"
	CapabilityStructuredExtraction = "structured-data-extraction"
)

// Engine selects execution frameworks. Decide is a pure function of
// its inputs: identical (analysis, limits, usage) always yield the
// identical decision.
type Engine struct{}

// New creates an Engine.
func New() *Engine {
	return &Engine{}
}

// Decide selects the primary framework for an analyzed task under the
// caller's tier, consulting the current usage snapshot for roster
// sizing. The selection rule, in order:
//  1. agent count > 3 or stateful state -> graph-multi-agent
//  2. low complexity and sequential coordination -> sequential-chain
//  3. otherwise -> hybrid
//
// A selection the tier disallows is replaced by the highest-capability
// allowed framework, with a restriction note recorded.
func (e *Engine) Decide(analysis *models.TaskAnalysis, limits *models.TierLimits, usage models.TierUsage) (*models.RoutingDecision, error) {
	if len(limits.AllowedFrameworks) == 0 {
		return nil, fmt.Errorf("tier %s: %w", limits.Tier, ErrNoAllowedFramework)
	}

	primary, confidence := e.selectFramework(analysis)

	decision := &models.RoutingDecision{
		TaskID:     analysis.TaskID,
		Primary:    primary,
		Confidence: confidence,
		Optimization: models.TierOptimization{
			AvailableFeatures: limits.Features,
		},
	}

	if limits.HasFeature(models.FeaturePriorityExecution) {
		decision.Optimization.PerformanceBoosts = append(decision.Optimization.PerformanceBoosts, "priority-execution")
	}
	if limits.ResourceMultiplier > 1 {
		decision.Optimization.PerformanceBoosts = append(decision.Optimization.PerformanceBoosts,
			fmt.Sprintf("resource-multiplier-%.1fx", limits.ResourceMultiplier))
	}

	if !limits.FrameworkAllowed(decision.Primary) {
		substitute := highestAllowed(limits)
		decision.Optimization.Restrictions = append(decision.Optimization.Restrictions,
			fmt.Sprintf("framework %s not allowed on tier %s, substituted %s", decision.Primary, limits.Tier, substitute))
		decision.Primary = substitute
	}

	decision.Secondary, decision.Fallback = fallbackFor(decision.Primary, limits)
	decision.Strategy = e.buildStrategy(analysis, decision.Primary, limits, usage, decision)
	decision.EstimatedCompletion = estimateCompletion(analysis, decision.Strategy, limits)

	return decision, nil
}

// selectFramework applies the ordered selection rule and reports how
// decisively it fired.
func (e *Engine) selectFramework(analysis *models.TaskAnalysis) (models.Framework, float64) {
	multiAgent := analysis.MultiAgent.AgentCount > 3
	stateful := analysis.State == models.StateStateful

	if multiAgent || stateful {
		confidence := 0.9
		if multiAgent && stateful {
			confidence = 0.95
		}
		return models.FrameworkGraphMultiAgent, confidence
	}

	if analysis.Complexity == models.ComplexityLow && analysis.Coordination == models.CoordinationSequential {
		return models.FrameworkSequentialChain, 0.9
	}

	// Hybrid catch-all: confidence grows with each secondary signal
	// that pushed the task out of the sequential bucket.
	confidence := 0.5
	for _, signal := range []bool{
		analysis.Complexity != models.ComplexityLow,
		analysis.Coordination != models.CoordinationSequential,
		analysis.Branching != models.BranchingLinear,
		analysis.MultiAgent.RequiresCoordination,
	} {
		if signal {
			confidence += 0.05
		}
	}
	if confidence > 0.7 {
		confidence = 0.7
	}
	return models.FrameworkHybrid, confidence
}

// highestAllowed returns the highest-capability framework the tier allows.
func highestAllowed(limits *models.TierLimits) models.Framework {
	var best models.Framework
	for _, f := range limits.AllowedFrameworks {
		if f.CapabilityRank() > best.CapabilityRank() {
			best = f
		}
	}
	return best
}

// fallbackFor names the secondary framework and the condition for
// switching to it. The fallback must itself be tier-allowed.
func fallbackFor(primary models.Framework, limits *models.TierLimits) (models.Framework, *models.FallbackStrategy) {
	var secondary models.Framework
	var condition string

	switch primary {
	case models.FrameworkGraphMultiAgent:
		secondary, condition = models.FrameworkHybrid, "repeated agent timeout"
	case models.FrameworkHybrid:
		secondary, condition = models.FrameworkSequentialChain, "coordination overhead exceeds budget"
	default:
		return "", nil
	}

	if !limits.FrameworkAllowed(secondary) {
		return "", nil
	}
	return secondary, &models.FallbackStrategy{Framework: secondary, Condition: condition}
}

// buildStrategy assembles the coordination strategy: topology, agent
// roster, persistence, sync, and rollback.
func (e *Engine) buildStrategy(analysis *models.TaskAnalysis, framework models.Framework, limits *models.TierLimits, usage models.TierUsage, decision *models.RoutingDecision) models.CoordinationStrategy {
	strategy := models.CoordinationStrategy{
		Topology:    topologyFor(analysis, framework),
		Persistence: persistenceFor(analysis),
		Sync:        models.SyncSingleWriter,
		Rollback:    analysis.MultiAgent.RequiresConflictResolution,
	}
	if analysis.ParallelProcessing && limits.HasFeature(models.FeatureParallelProcessing) {
		strategy.Sync = models.SyncScratchMerge
	}

	roster := []string{CapabilityTextExtraction}
	if analysis.Complexity != models.ComplexityLow || analysis.MultiAgent.AgentCount > 1 {
		roster = append(roster, CapabilityDataValidation)
	}
	if analysis.Complexity == models.ComplexityHigh || analysis.Complexity == models.ComplexityExtreme ||
		analysis.MultiAgent.AgentCount > 2 {
		roster = append(roster, CapabilityStructuredExtraction)
	}

	// Never roster more agents than the tier has left.
	remaining := limits.MaxAgents - usage.CurrentAgents
	if remaining < 1 {
		remaining = 1
	}
	if len(roster) > remaining {
		decision.Optimization.Restrictions = append(decision.Optimization.Restrictions,
			fmt.Sprintf("agent roster reduced from %d to %d by tier capacity", len(roster), remaining))
		roster = roster[:remaining]
	}
	strategy.AgentRoster = roster

	return strategy
}

func topologyFor(analysis *models.TaskAnalysis, framework models.Framework) models.Topology {
	if framework == models.FrameworkSequentialChain {
		return models.TopologySequential
	}
	switch analysis.Coordination {
	case models.CoordinationHierarchical:
		return models.TopologyHierarchical
	case models.CoordinationMultiAgent:
		return models.TopologyCollaborative
	case models.CoordinationDynamic:
		return models.TopologyDynamic
	default:
		return models.TopologySequential
	}
}

func persistenceFor(analysis *models.TaskAnalysis) models.StatePersistenceLevel {
	switch {
	case analysis.Memory.LongTerm:
		return models.PersistenceArchived
	case analysis.Memory.Session:
		return models.PersistenceSession
	default:
		return models.PersistenceEphemeral
	}
}

// estimateCompletion predicts run time from the roster size and the
// complexity level, capped at the tier's execution budget.
func estimateCompletion(analysis *models.TaskAnalysis, strategy models.CoordinationStrategy, limits *models.TierLimits) time.Duration {
	perAgent := 10 * time.Second
	multiplier := time.Duration(1)
	switch analysis.Complexity {
	case models.ComplexityMedium:
		multiplier = 2
	case models.ComplexityHigh:
		multiplier = 3
	case models.ComplexityExtreme:
		multiplier = 4
	}

	estimate := perAgent * multiplier * time.Duration(len(strategy.AgentRoster))
	if limits.MaxExecutionTime > 0 && estimate > limits.MaxExecutionTime {
		estimate = limits.MaxExecutionTime
	}
	return estimate
}
