package models

import "time"

// Framework is an execution strategy the decision engine can select.
type Framework string

const (
	// FrameworkSequentialChain runs agents as a simple ordered chain.
	FrameworkSequentialChain Framework = "sequential-chain"
	// FrameworkGraphMultiAgent runs a graph of cooperating agents over
	// shared workflow state.
	FrameworkGraphMultiAgent Framework = "graph-multi-agent"
	// FrameworkHybrid uses graph-based coordination with chain-based
	// sub-steps.
	FrameworkHybrid Framework = "hybrid"
)

// Valid returns true if the framework is a known value.
func (f Framework) Valid() bool {
	switch f {
	case FrameworkSequentialChain, FrameworkGraphMultiAgent, FrameworkHybrid:
		return true
	default:
		return false
	}
}

// CapabilityRank orders frameworks by capability, used when a tier
// disallows the preferred selection and the engine must substitute the
// highest-capability allowed framework.
func (f Framework) CapabilityRank() int {
	switch f {
	case FrameworkGraphMultiAgent:
		return 3
	case FrameworkHybrid:
		return 2
	case FrameworkSequentialChain:
		return 1
	default:
		return 0
	}
}

// Topology is the graph shape the builder constructs.
type Topology string

const (
	// TopologySequential chains agents in roster order.
	TopologySequential Topology = "sequential"
	// TopologyHierarchical uses one supervisor routing to workers.
	TopologyHierarchical Topology = "hierarchical-supervisor"
	// TopologyCollaborative uses peer agents with a consensus node.
	TopologyCollaborative Topology = "collaborative-consensus"
	// TopologyDynamic uses an adaptive coordinator with specialists.
	TopologyDynamic Topology = "dynamic-adaptive"
)

// Valid returns true if the topology is a known value.
func (t Topology) Valid() bool {
	switch t {
	case TopologySequential, TopologyHierarchical, TopologyCollaborative, TopologyDynamic:
		return true
	default:
		return false
	}
}

// StatePersistenceLevel describes how workflow state outlives execution.
type StatePersistenceLevel string

const (
	// PersistenceEphemeral discards state at the terminal node.
	PersistenceEphemeral StatePersistenceLevel = "ephemeral"
	// PersistenceSession keeps state for the caller's session.
	PersistenceSession StatePersistenceLevel = "session"
	// PersistenceArchived writes the final state to the result archive.
	PersistenceArchived StatePersistenceLevel = "archived"
)

// SyncStrategy describes how concurrent agent writes are reconciled.
type SyncStrategy string

const (
	// SyncSingleWriter serializes all state mutations.
	SyncSingleWriter SyncStrategy = "single-writer"
	// SyncScratchMerge buffers fan-out writes in per-agent scratch
	// slots merged at one join point.
	SyncScratchMerge SyncStrategy = "scratch-merge"
)

// CoordinationStrategy describes how the selected framework will
// coordinate its agents.
type CoordinationStrategy struct {
	// Topology is the graph shape to build.
	Topology Topology `json:"topology"`
	// AgentRoster lists the capability tags of agents to involve.
	AgentRoster []string `json:"agent_roster"`
	// Persistence is the state-persistence level.
	Persistence StatePersistenceLevel `json:"persistence"`
	// Sync is the write-reconciliation strategy.
	Sync SyncStrategy `json:"sync"`
	// Rollback indicates failed steps should be undone where possible.
	Rollback bool `json:"rollback"`
}

// ResourceAllocation records resources granted to one workflow. Sized
// by the tier manager to min(requested, remaining quota).
type ResourceAllocation struct {
	// ID identifies the allocation for release.
	ID string `json:"id"`
	// Tier is the tier the allocation was drawn from.
	Tier Tier `json:"tier"`
	// Agents is the number of agents granted.
	Agents int `json:"agents"`
	// MemoryMB is the memory granted in megabytes.
	MemoryMB int `json:"memory_mb"`
	// Cores is the CPU core count granted.
	Cores int `json:"cores"`
	// Priority is the scheduling priority.
	Priority int `json:"priority"`
	// Accelerated indicates hardware acceleration was granted.
	Accelerated bool `json:"accelerated"`
	// Features lists tier features enabled for this workflow.
	Features []Feature `json:"features"`
	// Frameworks lists frameworks this workflow may use.
	Frameworks []Framework `json:"frameworks"`
}

// TierOptimization records what the caller's tier contributed to the
// decision: unlocked features, applied boosts, and restrictions hit.
type TierOptimization struct {
	// AvailableFeatures lists features the tier unlocks.
	AvailableFeatures []Feature `json:"available_features"`
	// PerformanceBoosts lists boosts applied (e.g. priority execution).
	PerformanceBoosts []string `json:"performance_boosts,omitempty"`
	// Restrictions lists limits that constrained the decision.
	Restrictions []string `json:"restrictions,omitempty"`
}

// FallbackStrategy names the secondary framework and the condition
// under which execution should switch to it.
type FallbackStrategy struct {
	// Framework is the secondary framework to fall back to.
	Framework Framework `json:"framework"`
	// Condition describes when the switch should happen.
	Condition string `json:"condition"`
}

// RoutingDecision is the decision engine's output: which framework
// runs the task and how. Created once, consumed by the graph builder
// and the execution engine.
type RoutingDecision struct {
	// TaskID identifies the decided task.
	TaskID string `json:"task_id"`
	// Primary is the selected framework.
	Primary Framework `json:"primary"`
	// Secondary is an optional alternative framework.
	Secondary Framework `json:"secondary,omitempty"`
	// Confidence is how decisively the selection rule fired, in [0,1].
	Confidence float64 `json:"confidence"`
	// Strategy describes agent coordination under the framework.
	Strategy CoordinationStrategy `json:"strategy"`
	// Allocation is the tier-granted resource allocation.
	Allocation ResourceAllocation `json:"allocation"`
	// Optimization records tier contributions and restrictions.
	Optimization TierOptimization `json:"optimization"`
	// EstimatedCompletion is the predicted total run time.
	EstimatedCompletion time.Duration `json:"estimated_completion"`
	// Fallback is the optional fallback strategy.
	Fallback *FallbackStrategy `json:"fallback,omitempty"`
}
