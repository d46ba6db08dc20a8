package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/docuflow/docuflow/internal/config"
	"github.com/docuflow/docuflow/internal/coord"
	"github.com/docuflow/docuflow/internal/orchestrator"
	"github.com/docuflow/docuflow/internal/state"
	"github.com/docuflow/docuflow/pkg/models"
)

var (
	runTier         string
	runDocuments    []string
	runMultiAgent   bool
	runHierarchical bool
	runDynamic      bool
	runParallel     bool
	runConditional  bool
	runSharedState  bool
	runLongTermMem  bool
	runRealTime     bool
	runAgents       int
	runTimeout      time.Duration
	runPriority     int
	runTierTable    string
	runTaskFile     string
	runJSON         bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Submit a document processing task",
	Long: `Submit a document processing task to the orchestrator.

The task is analyzed for complexity, routed to the cheapest framework
the tier allows, turned into an agent workflow, and executed. The
command prints the aggregated result, recorded errors, and suggested
next steps.

Framework routing (auto-detected from the task):
  - Simple single-document tasks run as a sequential agent chain
  - Multi-agent tasks run under a hierarchical supervisor
  - Shared-state tasks run as a collaborative peer group
  - Dynamic workflows run under an adaptive coordinator

Use --tier to override the configured default tier. Higher tiers
unlock more frameworks, more agents, and parallel fan-out.`,
	RunE: runWorkflow,
}

func init() {
	runCmd.Flags().StringVar(&runTier, "tier", "", "Tier to run under: free, pro, or enterprise (default from config)")
	runCmd.Flags().StringSliceVar(&runDocuments, "document", nil, "Document type to process (repeatable, e.g. invoice, contract)")
	runCmd.Flags().BoolVar(&runMultiAgent, "multi-agent", false, "Request cooperating agents")
	runCmd.Flags().BoolVar(&runHierarchical, "hierarchical", false, "Request supervisor/worker coordination")
	runCmd.Flags().BoolVar(&runDynamic, "dynamic", false, "Request adaptive runtime routing")
	runCmd.Flags().BoolVar(&runParallel, "parallel", false, "Request concurrent step execution")
	runCmd.Flags().BoolVar(&runConditional, "conditional", false, "Task contains branching decisions")
	runCmd.Flags().BoolVar(&runSharedState, "shared-state", false, "Request state shared across agents")
	runCmd.Flags().BoolVar(&runLongTermMem, "long-term-memory", false, "Persist results beyond the workflow")
	runCmd.Flags().BoolVar(&runRealTime, "real-time", false, "Request real-time handling")
	runCmd.Flags().IntVar(&runAgents, "agents", 0, "Estimated agent count (0 auto-detects)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Max execution time (0 uses the tier limit)")
	runCmd.Flags().IntVar(&runPriority, "priority", 0, "Priority hint (higher is sooner)")
	runCmd.Flags().StringVar(&runTierTable, "tier-table", "", "Path to a custom tier limits YAML file")
	runCmd.Flags().StringVar(&runTaskFile, "task", "", "Path to a JSON task file (flags override its fields)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the raw result as JSON")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	table, err := loadTierTable(runTierTable)
	if err != nil {
		return err
	}

	tierLevel := models.Tier(runTier)
	if runTier == "" {
		tierLevel = models.Tier(cfg.Defaults.Tier)
	}
	if !tierLevel.Valid() {
		return fmt.Errorf("unknown tier %q (expected free, pro, or enterprise)", tierLevel)
	}

	extractor, err := createExtractor(cfg)
	if err != nil {
		return err
	}

	logger, err := orchestrator.NewDebugLogger(cfg.Logging.DebugLogPath)
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []orchestrator.Option{
		orchestrator.WithExtractor(extractor),
		orchestrator.WithDebugLogger(logger),
	}

	if len(cfg.Coordination.Servers) > 0 {
		service, err := createCoordination(ctx, cfg)
		if err != nil {
			return err
		}
		opts = append(opts, orchestrator.WithCoordination(service))
	}

	dbPath := cfg.Archive.DBPath
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}
	archive, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open result archive: %w", err)
	}
	defer archive.Close()
	opts = append(opts, orchestrator.WithArchive(archive))

	orch, err := orchestrator.New(table, tierLevel, opts...)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	task, err := buildTask(cmd)
	if err != nil {
		return err
	}

	result := orch.Submit(ctx, task)

	if runJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		fmt.Println(string(data))
	} else {
		printResult(result)
	}

	if result.Outcome() == models.OutcomeFailed {
		return fmt.Errorf("workflow %s failed", result.WorkflowID)
	}
	return nil
}

// createCoordination builds the coordination service from the
// configured server list and starts its health checks.
func createCoordination(ctx context.Context, cfg *config.Config) (*coord.Service, error) {
	service := coord.NewService(
		coord.NewHTTPTransport(cfg.Coordination.RequestTimeout),
		coord.WithHeartbeatInterval(cfg.Coordination.HeartbeatInterval),
		coord.WithCacheTTL(cfg.Coordination.CacheTTL),
	)
	for _, s := range cfg.Coordination.Servers {
		err := service.Register(coord.ServerInfo{
			ID:           s.ID,
			Endpoint:     s.Endpoint,
			Capabilities: s.Capabilities,
			Priority:     s.Priority,
			Timeout:      s.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("register coordination server %s: %w", s.ID, err)
		}
	}
	go service.RunHealthChecks(ctx)
	return service, nil
}

// buildTask assembles the task from the optional JSON task file and
// the command flags. Flags that were set explicitly override the
// file's fields.
func buildTask(cmd *cobra.Command) (*models.Task, error) {
	task := &models.Task{}

	if runTaskFile != "" {
		data, err := os.ReadFile(runTaskFile)
		if err != nil {
			return nil, fmt.Errorf("read task file: %w", err)
		}
		if err := json.Unmarshal(data, task); err != nil {
			return nil, fmt.Errorf("parse task file %s: %w", runTaskFile, err)
		}
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.SubmittedAt.IsZero() {
		task.SubmittedAt = time.Now()
	}

	flagOverrides := map[string]func(){
		"document":         func() { task.DocumentTypes = runDocuments },
		"multi-agent":      func() { task.RequiresMultiAgentCoordination = runMultiAgent },
		"hierarchical":     func() { task.RequiresHierarchicalCoordination = runHierarchical },
		"dynamic":          func() { task.RequiresDynamicWorkflow = runDynamic },
		"parallel":         func() { task.RequiresParallelProcessing = runParallel },
		"conditional":      func() { task.HasConditionalLogic = runConditional },
		"shared-state":     func() { task.RequiresSharedState = runSharedState },
		"long-term-memory": func() { task.RequiresLongTermMemory = runLongTermMem },
		"real-time":        func() { task.RequiresRealTime = runRealTime },
		"agents":           func() { task.EstimatedAgentCount = runAgents },
		"timeout":          func() { task.MaxExecutionTime = runTimeout },
		"priority":         func() { task.Priority = runPriority },
	}
	for name, apply := range flagOverrides {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}

	return task, nil
}

// loadTierTable loads the custom tier table when a path is given,
// otherwise the built-in defaults.
func loadTierTable(path string) (config.TierTable, error) {
	if path != "" {
		table, err := config.LoadTierTable(path)
		if err != nil {
			return nil, fmt.Errorf("load tier table: %w", err)
		}
		return table, nil
	}
	table, err := config.DefaultTierTable()
	if err != nil {
		return nil, fmt.Errorf("load default tier table: %w", err)
	}
	return table, nil
}

func printResult(result *models.ExecutionResult) {
	switch result.Outcome() {
	case models.OutcomeSucceeded:
		fmt.Printf("%s workflow %s completed\n", color.GreenString("✓"), result.WorkflowID)
	case models.OutcomePartial:
		fmt.Printf("%s workflow %s completed with %d error(s)\n",
			color.YellowString("⚠"), result.WorkflowID, len(result.Errors))
	case models.OutcomeFailed:
		fmt.Printf("%s workflow %s failed\n", color.RedString("✗"), result.WorkflowID)
	}

	if framework := result.Metadata["framework"]; framework != "" {
		fmt.Printf("  Framework: %s\n", framework)
	}
	if topology := result.Metadata["topology"]; topology != "" {
		fmt.Printf("  Topology:  %s\n", topology)
	}
	fmt.Printf("  Duration:  %s\n", result.Metrics.ExecutionTime.Round(time.Millisecond))
	if result.Metrics.Quality > 0 {
		fmt.Printf("  Quality:   %.2f  Accuracy: %.2f  Confidence: %.2f\n",
			result.Metrics.Quality, result.Metrics.Accuracy, result.Metrics.Confidence)
	}

	if len(result.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, e := range result.Errors {
			marker := color.YellowString("⚠")
			if e.Critical {
				marker = color.RedString("✗")
			}
			fmt.Printf("  %s [%s] %s\n", marker, e.Kind, e.Message)
		}
	}

	if len(result.NextSteps) > 0 {
		fmt.Println("\nNext steps:")
		for _, step := range result.NextSteps {
			fmt.Printf("  - %s\n", step)
		}
	}

	if result.UpgradeRequired() {
		fmt.Printf("\n%s A higher tier would avoid some of these errors. Run 'docuflow tiers' for details.\n",
			color.CyanString("ℹ"))
	}
}
