package main

import (
	"fmt"
	"os"

	"github.com/docuflow/docuflow/internal/agent"
	"github.com/docuflow/docuflow/internal/config"
)

// createExtractor picks the text extraction backend from config. With
// an API key or Bedrock enabled it uses Claude; otherwise it falls
// back to the offline heuristic extractor.
func createExtractor(cfg *config.Config) (agent.TextExtractor, error) {
	if cfg.Anthropic.APIKey == "" && os.Getenv("ANTHROPIC_API_KEY") == "" && !cfg.Anthropic.UseAWSBedrock {
		return agent.HeuristicExtractor{}, nil
	}

	extractor, err := agent.NewClaudeExtractor(agent.ClaudeExtractorConfig{
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("create Claude extractor: %w", err)
	}
	return extractor, nil
}
