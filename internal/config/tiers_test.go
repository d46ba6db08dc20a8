package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docuflow/docuflow/pkg/models"
)

func TestDefaultTierTable(t *testing.T) {
	table, err := DefaultTierTable()
	if err != nil {
		t.Fatalf("DefaultTierTable() error: %v", err)
	}

	free := table.Get(models.TierFree)
	if free == nil {
		t.Fatal("free tier missing from default table")
	}
	if free.MaxAgents != 2 {
		t.Errorf("free.MaxAgents = %d, want 2", free.MaxAgents)
	}
	if free.MaxConcurrentWorkflows != 1 {
		t.Errorf("free.MaxConcurrentWorkflows = %d, want 1", free.MaxConcurrentWorkflows)
	}
	if free.FrameworkAllowed(models.FrameworkGraphMultiAgent) {
		t.Error("free tier should not allow graph-multi-agent")
	}
	if !free.FrameworkAllowed(models.FrameworkSequentialChain) {
		t.Error("free tier should allow sequential-chain")
	}
	if free.HasFeature(models.FeatureSessionMemory) {
		t.Error("free tier should not have session-memory")
	}

	pro := table.Get(models.TierPro)
	if pro == nil {
		t.Fatal("pro tier missing from default table")
	}
	if !pro.HasFeature(models.FeatureSessionMemory) {
		t.Error("pro tier should have session-memory")
	}
	if !pro.FrameworkAllowed(models.FrameworkGraphMultiAgent) {
		t.Error("pro tier should allow graph-multi-agent")
	}

	ent := table.Get(models.TierEnterprise)
	if ent == nil {
		t.Fatal("enterprise tier missing from default table")
	}
	if !ent.HasFeature(models.FeatureDistributedCoordination) {
		t.Error("enterprise tier should have distributed-coordination")
	}
	if ent.MaxExecutionTime != time.Hour {
		t.Errorf("enterprise.MaxExecutionTime = %s, want 1h", ent.MaxExecutionTime)
	}
	if ent.MaxAgents <= pro.MaxAgents {
		t.Error("enterprise should allow more agents than pro")
	}
}

func TestLoadTierTable_EmptyPathUsesDefault(t *testing.T) {
	table, err := LoadTierTable("")
	if err != nil {
		t.Fatalf("LoadTierTable(\"\") error: %v", err)
	}
	if table.Get(models.TierFree) == nil {
		t.Error("default table should include free tier")
	}
}

func TestLoadTierTable_FromFile(t *testing.T) {
	content := `
tiers:
  - tier: free
    max_agents: 1
    max_concurrent_workflows: 1
    max_execution_time: 1m
    max_memory_per_workflow_mb: 128
    max_daily_calls: 10
    max_storage_mb: 50
    allowed_frameworks: [sequential-chain]
    features: []
    resource_multiplier: 1.0
    priority_level: 1
  - tier: pro
    max_agents: 4
    max_concurrent_workflows: 2
    max_execution_time: 5m
    max_memory_per_workflow_mb: 1024
    max_daily_calls: 500
    max_storage_mb: 1024
    allowed_frameworks: [sequential-chain, hybrid]
    features: [session-memory]
    resource_multiplier: 2.0
    priority_level: 5
  - tier: enterprise
    max_agents: 16
    max_concurrent_workflows: 8
    max_execution_time: 30m
    max_memory_per_workflow_mb: 8192
    max_daily_calls: 50000
    max_storage_mb: 51200
    allowed_frameworks: [sequential-chain, hybrid, graph-multi-agent]
    features: [session-memory, parallel-processing]
    resource_multiplier: 4.0
    priority_level: 10
`
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing tier file: %v", err)
	}

	table, err := LoadTierTable(path)
	if err != nil {
		t.Fatalf("LoadTierTable() error: %v", err)
	}
	if got := table.Get(models.TierFree).MaxAgents; got != 1 {
		t.Errorf("free.MaxAgents = %d, want 1", got)
	}
	if got := table.Get(models.TierPro).MaxExecutionTime; got != 5*time.Minute {
		t.Errorf("pro.MaxExecutionTime = %s, want 5m", got)
	}
}

func TestLoadTierTable_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown tier", "tiers:\n  - tier: platinum\n    max_execution_time: 1m\n"},
		{"bad duration", "tiers:\n  - tier: free\n    max_execution_time: soon\n"},
		{"unknown framework", "tiers:\n  - tier: free\n    max_execution_time: 1m\n    allowed_frameworks: [magic]\n"},
		{"empty table", "tiers: []\n"},
		{"missing tiers", "tiers:\n  - tier: free\n    max_execution_time: 1m\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tiers.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("writing tier file: %v", err)
			}
			if _, err := LoadTierTable(path); err == nil {
				t.Error("LoadTierTable() = nil error, want error")
			}
		})
	}
}

func TestLoadFromPath(t *testing.T) {
	content := `
defaults:
  tier: pro
coordination:
  heartbeat_interval: 10s
  cache_ttl: 1m
logging:
  debug_log_path: /tmp/docuflow-debug.log
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if cfg.Defaults.Tier != "pro" {
		t.Errorf("Defaults.Tier = %q, want %q", cfg.Defaults.Tier, "pro")
	}
	if cfg.Coordination.HeartbeatInterval != 10*time.Second {
		t.Errorf("HeartbeatInterval = %s, want 10s", cfg.Coordination.HeartbeatInterval)
	}
	if cfg.Coordination.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout default = %s, want 30s", cfg.Coordination.RequestTimeout)
	}
}
