package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docuflow/docuflow/pkg/models"
)

// defaultTierTable is the built-in quota table, used when no tier file
// is supplied. Durations are Go duration strings.
const defaultTierTable = `
tiers:
  - tier: free
    max_agents: 2
    max_concurrent_workflows: 1
    max_execution_time: 2m
    max_memory_per_workflow_mb: 256
    max_daily_calls: 50
    max_storage_mb: 100
    allowed_frameworks: [sequential-chain]
    features: []
    resource_multiplier: 1.0
    priority_level: 1
  - tier: pro
    max_agents: 8
    max_concurrent_workflows: 4
    max_execution_time: 15m
    max_memory_per_workflow_mb: 2048
    max_daily_calls: 1000
    max_storage_mb: 5120
    allowed_frameworks: [sequential-chain, hybrid, graph-multi-agent]
    features: [session-memory, parallel-processing, long-term-memory]
    resource_multiplier: 2.0
    priority_level: 5
  - tier: enterprise
    max_agents: 32
    max_concurrent_workflows: 16
    max_execution_time: 1h
    max_memory_per_workflow_mb: 16384
    max_daily_calls: 100000
    max_storage_mb: 102400
    allowed_frameworks: [sequential-chain, hybrid, graph-multi-agent]
    features: [session-memory, parallel-processing, long-term-memory,
               vector-memory, custom-memory, distributed-coordination,
               hardware-acceleration, priority-execution]
    resource_multiplier: 4.0
    priority_level: 10
`

// tierFile is the YAML shape of a tier table file.
type tierFile struct {
	Tiers []tierEntry `yaml:"tiers"`
}

// tierEntry mirrors models.TierLimits with string durations so the
// table stays hand-editable.
type tierEntry struct {
	Tier                   string   `yaml:"tier"`
	MaxAgents              int      `yaml:"max_agents"`
	MaxConcurrentWorkflows int      `yaml:"max_concurrent_workflows"`
	MaxExecutionTime       string   `yaml:"max_execution_time"`
	MaxMemoryPerWorkflowMB int      `yaml:"max_memory_per_workflow_mb"`
	MaxDailyCalls          int      `yaml:"max_daily_calls"`
	MaxStorageMB           int      `yaml:"max_storage_mb"`
	AllowedFrameworks      []string `yaml:"allowed_frameworks"`
	Features               []string `yaml:"features"`
	ResourceMultiplier     float64  `yaml:"resource_multiplier"`
	PriorityLevel          int      `yaml:"priority_level"`
}

// TierTable maps each tier to its static limits. Built once at process
// start; callers must treat it as read-only.
type TierTable map[models.Tier]*models.TierLimits

// Get returns the limits for a tier, or nil if unknown.
func (t TierTable) Get(tier models.Tier) *models.TierLimits {
	return t[tier]
}

// DefaultTierTable parses the built-in quota table.
func DefaultTierTable() (TierTable, error) {
	return parseTierTable([]byte(defaultTierTable))
}

// LoadTierTable reads a tier table from a YAML file. An empty path
// returns the built-in table.
func LoadTierTable(path string) (TierTable, error) {
	if path == "" {
		return DefaultTierTable()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tier table: %w", err)
	}
	return parseTierTable(data)
}

func parseTierTable(data []byte) (TierTable, error) {
	var file tierFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing tier table: %w", err)
	}
	if len(file.Tiers) == 0 {
		return nil, fmt.Errorf("tier table has no tiers")
	}

	table := make(TierTable, len(file.Tiers))
	for _, entry := range file.Tiers {
		tier := models.Tier(entry.Tier)
		if !tier.Valid() {
			return nil, fmt.Errorf("unknown tier %q in tier table", entry.Tier)
		}

		maxExec, err := time.ParseDuration(entry.MaxExecutionTime)
		if err != nil {
			return nil, fmt.Errorf("tier %s: bad max_execution_time: %w", tier, err)
		}

		limits := &models.TierLimits{
			Tier:                   tier,
			MaxAgents:              entry.MaxAgents,
			MaxConcurrentWorkflows: entry.MaxConcurrentWorkflows,
			MaxExecutionTime:       maxExec,
			MaxMemoryPerWorkflowMB: entry.MaxMemoryPerWorkflowMB,
			MaxDailyCalls:          entry.MaxDailyCalls,
			MaxStorageMB:           entry.MaxStorageMB,
			ResourceMultiplier:     entry.ResourceMultiplier,
			PriorityLevel:          entry.PriorityLevel,
		}
		for _, f := range entry.AllowedFrameworks {
			framework := models.Framework(f)
			if !framework.Valid() {
				return nil, fmt.Errorf("tier %s: unknown framework %q", tier, f)
			}
			limits.AllowedFrameworks = append(limits.AllowedFrameworks, framework)
		}
		for _, f := range entry.Features {
			limits.Features = append(limits.Features, models.Feature(f))
		}

		table[tier] = limits
	}

	for _, tier := range []models.Tier{models.TierFree, models.TierPro, models.TierEnterprise} {
		if table[tier] == nil {
			return nil, fmt.Errorf("tier table is missing tier %s", tier)
		}
	}

	return table, nil
}
