package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/docuflow/docuflow/internal/config"
	"github.com/docuflow/docuflow/pkg/models"
)

var tiersTablePath string

var tiersCmd = &cobra.Command{
	Use:   "tiers",
	Short: "Show tier limits and features",
	Long: `Display the quota table for every tier.

Shows agent and workflow limits, execution time and memory ceilings,
allowed execution frameworks, and tier-gated features. Use
--tier-table to inspect a custom limits file instead of the built-in
defaults.`,
	RunE: runTiers,
}

func init() {
	tiersCmd.Flags().StringVar(&tiersTablePath, "tier-table", "", "Path to a custom tier limits YAML file")
}

func runTiers(cmd *cobra.Command, args []string) error {
	table, err := loadTierTable(tiersTablePath)
	if err != nil {
		return err
	}

	for _, tier := range []models.Tier{models.TierFree, models.TierPro, models.TierEnterprise} {
		limits := table.Get(tier)
		if limits == nil {
			continue
		}

		fmt.Printf("%s\n", color.New(color.Bold).Sprint(strings.ToUpper(string(tier))))
		fmt.Printf("  Agents:               %d\n", limits.MaxAgents)
		fmt.Printf("  Concurrent workflows: %d\n", limits.MaxConcurrentWorkflows)
		fmt.Printf("  Max execution time:   %s\n", limits.MaxExecutionTime)
		fmt.Printf("  Memory per workflow:  %d MB\n", limits.MaxMemoryPerWorkflowMB)
		fmt.Printf("  Daily external calls: %d\n", limits.MaxDailyCalls)
		fmt.Printf("  Archive storage:      %d MB\n", limits.MaxStorageMB)
		fmt.Printf("  Frameworks:           %s\n", joinFrameworks(limits.AllowedFrameworks))
		fmt.Printf("  Features:             %s\n", joinFeatures(limits.Features))
		printUpgradeDelta(table, tier)
		fmt.Println()
	}

	return nil
}

// printUpgradeDelta shows what the next tier up would grant.
func printUpgradeDelta(table config.TierTable, tier models.Tier) {
	next := tier.Next()
	if next == tier {
		return
	}
	from, to := table.Get(tier), table.Get(next)
	if from == nil || to == nil {
		return
	}

	fmt.Printf("  Upgrade to %s grants: +%d agents, +%d workflows, +%d daily calls\n",
		next,
		to.MaxAgents-from.MaxAgents,
		to.MaxConcurrentWorkflows-from.MaxConcurrentWorkflows,
		to.MaxDailyCalls-from.MaxDailyCalls)

	var unlocked []string
	for _, f := range to.Features {
		if !from.HasFeature(f) {
			unlocked = append(unlocked, string(f))
		}
	}
	if len(unlocked) > 0 {
		fmt.Printf("  Unlocks:              %s\n", strings.Join(unlocked, ", "))
	}
}

func joinFrameworks(frameworks []models.Framework) string {
	if len(frameworks) == 0 {
		return "(none)"
	}
	parts := make([]string, len(frameworks))
	for i, f := range frameworks {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}

func joinFeatures(features []models.Feature) string {
	if len(features) == 0 {
		return "(none)"
	}
	parts := make([]string, len(features))
	for i, f := range features {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}
