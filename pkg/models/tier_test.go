package models

import (
	"testing"
	"time"
)

func TestTier_Valid(t *testing.T) {
	tests := []struct {
		name string
		tier Tier
		want bool
	}{
		{"free is valid", TierFree, true},
		{"pro is valid", TierPro, true},
		{"enterprise is valid", TierEnterprise, true},
		{"empty string is invalid", Tier(""), false},
		{"unknown tier is invalid", Tier("platinum"), false},
		{"uppercase is invalid", Tier("FREE"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tier.Valid(); got != tt.want {
				t.Errorf("Tier(%q).Valid() = %v, want %v", tt.tier, got, tt.want)
			}
		})
	}
}

func TestTier_Next(t *testing.T) {
	tests := []struct {
		tier Tier
		want Tier
	}{
		{TierFree, TierPro},
		{TierPro, TierEnterprise},
		{TierEnterprise, TierEnterprise},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			if got := tt.tier.Next(); got != tt.want {
				t.Errorf("%s.Next() = %s, want %s", tt.tier, got, tt.want)
			}
		})
	}
}

func TestTierLimits_FrameworkAllowed(t *testing.T) {
	limits := &TierLimits{
		Tier:              TierFree,
		AllowedFrameworks: []Framework{FrameworkSequentialChain},
	}

	if !limits.FrameworkAllowed(FrameworkSequentialChain) {
		t.Error("sequential-chain should be allowed")
	}
	if limits.FrameworkAllowed(FrameworkGraphMultiAgent) {
		t.Error("graph-multi-agent should not be allowed")
	}
}

func TestTierLimits_HasFeature(t *testing.T) {
	limits := &TierLimits{
		Tier:     TierPro,
		Features: []Feature{FeatureSessionMemory, FeatureParallelProcessing},
	}

	if !limits.HasFeature(FeatureSessionMemory) {
		t.Error("session-memory should be enabled")
	}
	if limits.HasFeature(FeatureVectorMemory) {
		t.Error("vector-memory should not be enabled")
	}
}

func TestFramework_CapabilityRank(t *testing.T) {
	if FrameworkGraphMultiAgent.CapabilityRank() <= FrameworkHybrid.CapabilityRank() {
		t.Error("graph-multi-agent should outrank hybrid")
	}
	if FrameworkHybrid.CapabilityRank() <= FrameworkSequentialChain.CapabilityRank() {
		t.Error("hybrid should outrank sequential-chain")
	}
	if Framework("bogus").CapabilityRank() != 0 {
		t.Error("unknown framework should rank zero")
	}
}

func TestTierLimits_ZeroValueIsRestrictive(t *testing.T) {
	var limits TierLimits

	if limits.FrameworkAllowed(FrameworkSequentialChain) {
		t.Error("zero-value limits should allow no frameworks")
	}
	if limits.HasFeature(FeatureSessionMemory) {
		t.Error("zero-value limits should enable no features")
	}
	if limits.MaxExecutionTime != time.Duration(0) {
		t.Error("zero-value limits should have no execution time budget")
	}
}
