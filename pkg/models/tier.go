package models

import "time"

// Tier represents the caller's subscription tier.
type Tier string

const (
	// TierFree is the entry tier with the tightest quotas.
	TierFree Tier = "free"
	// TierPro is the paid tier for regular workloads.
	TierPro Tier = "pro"
	// TierEnterprise is the top tier with the widest quotas.
	TierEnterprise Tier = "enterprise"
)

// Valid returns true if the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	default:
		return false
	}
}

// Next returns the next tier up, or the same tier if already at the top.
func (t Tier) Next() Tier {
	switch t {
	case TierFree:
		return TierPro
	case TierPro:
		return TierEnterprise
	default:
		return t
	}
}

// Feature is a tier-gated capability.
type Feature string

const (
	// FeatureSessionMemory enables session-scoped workflow memory.
	FeatureSessionMemory Feature = "session-memory"
	// FeatureLongTermMemory enables memory persisted across workflows.
	FeatureLongTermMemory Feature = "long-term-memory"
	// FeatureVectorMemory enables vector-store backed memory.
	FeatureVectorMemory Feature = "vector-memory"
	// FeatureCustomMemory enables caller-defined memory backends.
	FeatureCustomMemory Feature = "custom-memory"
	// FeatureParallelProcessing enables concurrent agent fan-out.
	FeatureParallelProcessing Feature = "parallel-processing"
	// FeatureDistributedCoordination enables remote coordination fan-out.
	FeatureDistributedCoordination Feature = "distributed-coordination"
	// FeatureHardwareAcceleration enables accelerator offload.
	FeatureHardwareAcceleration Feature = "hardware-acceleration"
	// FeaturePriorityExecution enables priority scheduling.
	FeaturePriorityExecution Feature = "priority-execution"
)

// TierStatus represents the operational state of a tier account.
type TierStatus string

const (
	// TierStatusActive means usage is within limits.
	TierStatusActive TierStatus = "active"
	// TierStatusLimitReached means an invariant check found usage at or
	// over a limit; new allocations are throttled until usage drops.
	TierStatusLimitReached TierStatus = "limit-reached"
)

// TierLimits is the static quota table for one tier. Loaded once at
// process start and treated as read-only thereafter.
type TierLimits struct {
	// Tier is the tier these limits apply to.
	Tier Tier `json:"tier" yaml:"tier" mapstructure:"tier"`
	// MaxAgents is the maximum concurrently allocated agents.
	MaxAgents int `json:"max_agents" yaml:"max_agents" mapstructure:"max_agents"`
	// MaxConcurrentWorkflows is the maximum simultaneously running workflows.
	MaxConcurrentWorkflows int `json:"max_concurrent_workflows" yaml:"max_concurrent_workflows" mapstructure:"max_concurrent_workflows"`
	// MaxExecutionTime bounds a single workflow's run time.
	MaxExecutionTime time.Duration `json:"max_execution_time" yaml:"max_execution_time" mapstructure:"max_execution_time"`
	// MaxMemoryPerWorkflowMB is the memory ceiling per workflow.
	MaxMemoryPerWorkflowMB int `json:"max_memory_per_workflow_mb" yaml:"max_memory_per_workflow_mb" mapstructure:"max_memory_per_workflow_mb"`
	// MaxDailyCalls bounds external coordination calls per day.
	MaxDailyCalls int `json:"max_daily_calls" yaml:"max_daily_calls" mapstructure:"max_daily_calls"`
	// MaxStorageMB bounds archived result storage.
	MaxStorageMB int `json:"max_storage_mb" yaml:"max_storage_mb" mapstructure:"max_storage_mb"`
	// AllowedFrameworks lists the execution frameworks this tier may use.
	AllowedFrameworks []Framework `json:"allowed_frameworks" yaml:"allowed_frameworks" mapstructure:"allowed_frameworks"`
	// Features lists the enabled tier-gated capabilities.
	Features []Feature `json:"features" yaml:"features" mapstructure:"features"`
	// ResourceMultiplier scales default per-task allocations.
	ResourceMultiplier float64 `json:"resource_multiplier" yaml:"resource_multiplier" mapstructure:"resource_multiplier"`
	// PriorityLevel orders workflows across tiers (higher runs sooner).
	PriorityLevel int `json:"priority_level" yaml:"priority_level" mapstructure:"priority_level"`
}

// FrameworkAllowed returns true if the framework is in the allowed set.
func (l *TierLimits) FrameworkAllowed(f Framework) bool {
	for _, allowed := range l.AllowedFrameworks {
		if allowed == f {
			return true
		}
	}
	return false
}

// HasFeature returns true if the feature is enabled for this tier.
func (l *TierLimits) HasFeature(f Feature) bool {
	for _, feat := range l.Features {
		if feat == f {
			return true
		}
	}
	return false
}

// TierUsage is the live counter set for one tier account. Mutated by
// every allocation and release, checked against limits after every
// update. Shared across concurrent workflows.
type TierUsage struct {
	// CurrentAgents is the number of agents currently allocated.
	CurrentAgents int `json:"current_agents"`
	// ActiveWorkflows is the number of workflows currently running.
	ActiveWorkflows int `json:"active_workflows"`
	// DailyCallsUsed is external coordination calls made today.
	DailyCallsUsed int `json:"daily_calls_used"`
	// StorageUsedMB is archived result storage in use.
	StorageUsedMB int `json:"storage_used_mb"`
	// AvgExecutionTime is the rolling average workflow run time.
	AvgExecutionTime time.Duration `json:"avg_execution_time"`
	// ResourceUtilization is the blended utilization ratio in [0,1].
	ResourceUtilization float64 `json:"resource_utilization"`
	// FeatureUsage counts uses per feature.
	FeatureUsage map[Feature]int `json:"feature_usage"`
	// FrameworkUsage counts uses per framework.
	FrameworkUsage map[Framework]int `json:"framework_usage"`
}
