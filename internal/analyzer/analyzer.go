// Package analyzer derives a structured analysis from a submitted
// task: complexity, state needs, coordination pattern, branching, and
// memory requirements. Analysis is deterministic and has no side
// effects; identical inputs always produce identical analyses.
package analyzer

import (
	"github.com/docuflow/docuflow/pkg/models"
)

// Overall-score weights. Each sub-score is normalized to [0,1] before
// blending, so the overall score stays in [0,1].
const (
	complexityWeight   = 0.30
	stateWeight        = 0.25
	coordinationWeight = 0.25
	branchingWeight    = 0.20
)

// Analyzer inspects tasks and produces read-only analyses.
type Analyzer struct{}

// New creates an Analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// Analyze produces the TaskAnalysis for a task under the caller's tier
// limits. It never fails: absent or ambiguous flags default to the
// lowest-complexity branch.
func (a *Analyzer) Analyze(task *models.Task, limits *models.TierLimits) *models.TaskAnalysis {
	raw := rawComplexityScore(task)
	complexity := bucketComplexity(raw)
	state := stateRequirement(task)
	coordination := coordinationPattern(task)
	branching := bucketBranching(task.ConditionalBranchCount())

	analysis := &models.TaskAnalysis{
		TaskID:             task.ID,
		Complexity:         complexity,
		RawComplexityScore: raw,
		State:              state,
		Coordination:       coordination,
		Branching:          branching,
		MultiAgent:         multiAgentRequirements(task),
		Memory:             memoryRequirements(task, limits),
		ParallelProcessing: task.RequiresParallelProcessing,
	}

	analysis.OverallComplexityScore = complexityWeight*complexityScore(complexity) +
		stateWeight*stateScore(state) +
		coordinationWeight*coordinationScore(coordination) +
		branchingWeight*branchingScore(branching)

	return analysis
}

// rawComplexityScore counts complexity signals:
// document types + processing steps + 2 per heavy flag (multi-agent,
// real-time) + 1 for conditional logic.
func rawComplexityScore(task *models.Task) int {
	score := len(task.DocumentTypes) + len(task.Steps)
	if task.RequiresMultiAgentCoordination {
		score += 2
	}
	if task.HasConditionalLogic {
		score++
	}
	if task.RequiresRealTime {
		score += 2
	}
	return score
}

func bucketComplexity(raw int) models.ComplexityLevel {
	switch {
	case raw <= 2:
		return models.ComplexityLow
	case raw <= 5:
		return models.ComplexityMedium
	case raw <= 8:
		return models.ComplexityHigh
	default:
		return models.ComplexityExtreme
	}
}

// stateRequirement picks the highest state level the task's flags imply.
func stateRequirement(task *models.Task) models.StateRequirement {
	switch {
	case task.RequiresLongTermMemory || task.HasCyclicSteps:
		return models.StateStateful
	case task.RequiresSessionContext || task.RequiresIntermediateState:
		return models.StateComplex
	case task.RequiresBasicContext:
		return models.StateModerate
	default:
		return models.StateMinimal
	}
}

// coordinationPattern picks the first matching pattern in priority
// order: hierarchical, multi-agent, dynamic, simple-parallel, sequential.
func coordinationPattern(task *models.Task) models.CoordinationPattern {
	switch {
	case task.RequiresHierarchicalCoordination:
		return models.CoordinationHierarchical
	case task.RequiresMultiAgentCoordination:
		return models.CoordinationMultiAgent
	case task.RequiresDynamicWorkflow:
		return models.CoordinationDynamic
	case task.RequiresParallelProcessing:
		return models.CoordinationSimpleParallel
	default:
		return models.CoordinationSequential
	}
}

func bucketBranching(branches int) models.BranchingComplexity {
	switch {
	case branches == 0:
		return models.BranchingLinear
	case branches <= 2:
		return models.BranchingSimple
	case branches <= 5:
		return models.BranchingComplex
	default:
		return models.BranchingDynamic
	}
}

func multiAgentRequirements(task *models.Task) models.MultiAgentRequirements {
	count := task.EstimatedAgentCount
	if count < 1 {
		count = 1
	}
	if task.RequiresMultiAgentCoordination && count < 2 {
		count = 2
	}
	return models.MultiAgentRequirements{
		AgentCount:                 count,
		RequiresCoordination:       task.RequiresMultiAgentCoordination || task.RequiresHierarchicalCoordination,
		RequiresConflictResolution: task.RequiresMultiAgentCoordination && (task.RequiresParallelProcessing || task.RequiresSharedState),
		RequiresSharedState:        task.RequiresSharedState,
		RequiresDynamicAllocation:  task.RequiresDynamicAgents,
	}
}

// memoryRequirements grants short-term memory unconditionally and
// gates the richer classes by tier features. Session memory is granted
// when requested or whenever the tier is above free.
func memoryRequirements(task *models.Task, limits *models.TierLimits) models.MemoryRequirements {
	mem := models.MemoryRequirements{ShortTerm: true}
	if limits == nil {
		mem.Session = task.RequiresSessionContext
		return mem
	}

	mem.Session = task.RequiresSessionContext || limits.Tier != models.TierFree
	mem.LongTerm = task.RequiresLongTermMemory && limits.HasFeature(models.FeatureLongTermMemory)
	mem.Vector = task.RequiresLongTermMemory && limits.HasFeature(models.FeatureVectorMemory)
	mem.Custom = task.RequiresDynamicWorkflow && limits.HasFeature(models.FeatureCustomMemory)
	return mem
}

func complexityScore(c models.ComplexityLevel) float64 {
	switch c {
	case models.ComplexityLow:
		return 0.25
	case models.ComplexityMedium:
		return 0.5
	case models.ComplexityHigh:
		return 0.75
	default:
		return 1.0
	}
}

func stateScore(s models.StateRequirement) float64 {
	switch s {
	case models.StateMinimal:
		return 0.25
	case models.StateModerate:
		return 0.5
	case models.StateComplex:
		return 0.75
	default:
		return 1.0
	}
}

func coordinationScore(c models.CoordinationPattern) float64 {
	switch c {
	case models.CoordinationSequential:
		return 0.2
	case models.CoordinationSimpleParallel:
		return 0.4
	case models.CoordinationDynamic:
		return 0.6
	case models.CoordinationMultiAgent:
		return 0.8
	default:
		return 1.0
	}
}

func branchingScore(b models.BranchingComplexity) float64 {
	switch b {
	case models.BranchingLinear:
		return 0.25
	case models.BranchingSimple:
		return 0.5
	case models.BranchingComplex:
		return 0.75
	default:
		return 1.0
	}
}
