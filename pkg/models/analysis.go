package models

// ComplexityLevel buckets the raw complexity score of a task.
type ComplexityLevel string

const (
	// ComplexityLow covers raw scores 0-2.
	ComplexityLow ComplexityLevel = "low"
	// ComplexityMedium covers raw scores 3-5.
	ComplexityMedium ComplexityLevel = "medium"
	// ComplexityHigh covers raw scores 6-8.
	ComplexityHigh ComplexityLevel = "high"
	// ComplexityExtreme covers raw scores of 9 and above.
	ComplexityExtreme ComplexityLevel = "extreme"
)

// Valid returns true if the level is a known value.
func (c ComplexityLevel) Valid() bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh, ComplexityExtreme:
		return true
	default:
		return false
	}
}

// StateRequirement describes how much state a task needs across steps.
type StateRequirement string

const (
	// StateMinimal means no cross-step state beyond step outputs.
	StateMinimal StateRequirement = "minimal"
	// StateModerate means basic context is carried between steps.
	StateModerate StateRequirement = "moderate"
	// StateComplex means session context or intermediate state is kept.
	StateComplex StateRequirement = "complex"
	// StateStateful means long-term memory or cyclic state is required.
	StateStateful StateRequirement = "stateful"
)

// Valid returns true if the requirement is a known value.
func (s StateRequirement) Valid() bool {
	switch s {
	case StateMinimal, StateModerate, StateComplex, StateStateful:
		return true
	default:
		return false
	}
}

// CoordinationPattern describes how agents cooperate on a task.
type CoordinationPattern string

const (
	// CoordinationSequential runs agents one after another.
	CoordinationSequential CoordinationPattern = "sequential"
	// CoordinationSimpleParallel runs independent agents concurrently.
	CoordinationSimpleParallel CoordinationPattern = "simple-parallel"
	// CoordinationDynamic adapts routing while the workflow runs.
	CoordinationDynamic CoordinationPattern = "dynamic"
	// CoordinationMultiAgent uses cooperating agents with shared state.
	CoordinationMultiAgent CoordinationPattern = "multi-agent"
	// CoordinationHierarchical uses a supervisor directing workers.
	CoordinationHierarchical CoordinationPattern = "hierarchical"
)

// Valid returns true if the pattern is a known value.
func (c CoordinationPattern) Valid() bool {
	switch c {
	case CoordinationSequential, CoordinationSimpleParallel,
		CoordinationDynamic, CoordinationMultiAgent, CoordinationHierarchical:
		return true
	default:
		return false
	}
}

// BranchingComplexity buckets the number of conditional branches.
type BranchingComplexity string

const (
	// BranchingLinear means no conditional branches.
	BranchingLinear BranchingComplexity = "linear"
	// BranchingSimple covers 1-2 conditional branches.
	BranchingSimple BranchingComplexity = "simple"
	// BranchingComplex covers 3-5 conditional branches.
	BranchingComplex BranchingComplexity = "complex"
	// BranchingDynamic covers 6 or more conditional branches.
	BranchingDynamic BranchingComplexity = "dynamic"
)

// Valid returns true if the complexity is a known value.
func (b BranchingComplexity) Valid() bool {
	switch b {
	case BranchingLinear, BranchingSimple, BranchingComplex, BranchingDynamic:
		return true
	default:
		return false
	}
}

// MultiAgentRequirements records what a task needs from cooperating agents.
type MultiAgentRequirements struct {
	// AgentCount is the recommended number of agents.
	AgentCount int `json:"agent_count"`
	// RequiresCoordination indicates agents must synchronize work.
	RequiresCoordination bool `json:"requires_coordination"`
	// RequiresConflictResolution indicates overlapping outputs must be reconciled.
	RequiresConflictResolution bool `json:"requires_conflict_resolution"`
	// RequiresSharedState indicates agents share mutable workflow state.
	RequiresSharedState bool `json:"requires_shared_state"`
	// RequiresDynamicAllocation indicates agents are allocated at runtime.
	RequiresDynamicAllocation bool `json:"requires_dynamic_allocation"`
}

// MemoryRequirements records which memory classes the workflow needs.
// Classes beyond session memory are gated by tier features.
type MemoryRequirements struct {
	// ShortTerm is always true; every workflow keeps in-flight state.
	ShortTerm bool `json:"short_term"`
	// Session indicates session-scoped memory is kept.
	Session bool `json:"session"`
	// LongTerm indicates memory persisted beyond the workflow.
	LongTerm bool `json:"long_term"`
	// Vector indicates vector-store backed memory.
	Vector bool `json:"vector"`
	// Custom indicates a caller-defined memory backend.
	Custom bool `json:"custom"`
}

// TaskAnalysis is the derived, read-only analysis of a task. It is
// created once per task by the analyzer and never mutated.
type TaskAnalysis struct {
	// TaskID identifies the analyzed task.
	TaskID string `json:"task_id"`
	// Complexity is the bucketed complexity level.
	Complexity ComplexityLevel `json:"complexity"`
	// RawComplexityScore is the unbucketed score the level was derived from.
	RawComplexityScore int `json:"raw_complexity_score"`
	// State is the state requirement level.
	State StateRequirement `json:"state"`
	// Coordination is the selected coordination pattern.
	Coordination CoordinationPattern `json:"coordination"`
	// Branching is the bucketed branching complexity.
	Branching BranchingComplexity `json:"branching"`
	// MultiAgent records multi-agent needs.
	MultiAgent MultiAgentRequirements `json:"multi_agent"`
	// Memory records memory-class needs.
	Memory MemoryRequirements `json:"memory"`
	// ParallelProcessing mirrors the task's parallel flag; the execution
	// engine only fans out when this is set.
	ParallelProcessing bool `json:"parallel_processing"`
	// OverallComplexityScore is the weighted blend of the four
	// sub-scores, always in [0,1].
	OverallComplexityScore float64 `json:"overall_complexity_score"`
}
