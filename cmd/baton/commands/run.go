package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hebbzhu/baton/internal/config"
	"github.com/hebbzhu/baton/internal/engine"
	"github.com/hebbzhu/baton/internal/logging"
	"github.com/hebbzhu/baton/internal/printer"
	"github.com/hebbzhu/baton/pkg/blackboard"
)

var (
	runObjective   string
	runConstraints []string
	runMaxSteps    int
	runBackend     string
	runRedisURL    string
	runExportDir   string
	runNoRecord    bool
	runJSON        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a multi-agent task to completion",
	Long: `Run a task through the agent team until it completes, fails, or
exhausts the step budget.

The conductor model decides each step: which specialist agent to invoke,
what context it sees, and when the task is done. Artifacts written by
producing agents go through critic review before they count.

Examples:
  # Run a task with the default configuration
  baton run --objective "Write a design doc for a URL shortener"

  # Add constraints and keep the run artifacts
  baton run --objective "Implement quicksort in Rust" \
    --constraint "no external crates" \
    --export-dir ./exports

  # Machine-readable result
  baton run --objective "Summarize this quarter" --json`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runObjective, "objective", "", "The task objective (required)")
	runCmd.Flags().StringArrayVar(&runConstraints, "constraint", nil, "Constraint for the agents (repeatable)")
	runCmd.Flags().IntVar(&runMaxSteps, "max-steps", 0, "Override the conductor step budget")
	runCmd.Flags().StringVar(&runBackend, "backend", "", "Override the blackboard backend (memory or redis)")
	runCmd.Flags().StringVar(&runRedisURL, "redis-url", "", "Override the redis connection URL")
	runCmd.Flags().StringVar(&runExportDir, "export-dir", "", "Directory for metrics/recording/result JSON (disabled when empty)")
	runCmd.Flags().BoolVar(&runNoRecord, "no-record", false, "Disable event recording")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the full result as JSON")
	runCmd.MarkFlagRequired("objective")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{"Run 'baton init' to scaffold a fresh baton.yml"},
		)
	}
	if runBackend != "" {
		cfg.Blackboard.Backend = runBackend
	}
	if runRedisURL != "" {
		cfg.Blackboard.RedisURL = runRedisURL
	}
	if err := cfg.Validate(); err != nil {
		return printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{"Use --backend memory or --backend redis"},
		)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.LLM.APIKey == "" {
		return printer.Error(
			"missing API key",
			"No Anthropic API key is configured.",
			[]string{
				"export ANTHROPIC_API_KEY=sk-...",
				"Set llm.api_key in baton.yml",
			},
		)
	}

	e, err := engine.New(cfg, engine.Options{})
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}
	defer e.Close()

	printer.Step("Running task: %s\n", runObjective)

	result, err := e.Run(ctx, engine.RunOptions{
		Objective:        runObjective,
		Constraints:      runConstraints,
		MaxSteps:         runMaxSteps,
		DisableRecording: runNoRecord,
		ExportDir:        runExportDir,
	})
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	if runJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	printResult(result)
	printer.Println()
	printer.Println(e.Metrics().SummaryText())

	if result.Status == blackboard.StatusFailed {
		return printer.Error(
			"task failed",
			"The conductor could not complete the objective within its budget.",
			[]string{
				"Raise --max-steps or sharpen the objective",
				"Inspect the recording with --export-dir and 'baton serve'",
			},
		)
	}
	return nil
}

func printResult(result *engine.Result) {
	printer.Println()
	if result.Status == blackboard.StatusCompleted {
		printer.Success("Task %s: %s\n", result.TaskID, printer.Status(result.Status))
	} else {
		printer.Warning("Task %s: %s\n", result.TaskID, printer.Status(result.Status))
	}
	printer.Println()
	printer.Printf("Objective: %s\n", result.Objective)
	printer.Printf("Steps:     %d\n", result.Steps)
	printer.Printf("Tokens:    conductor %d, agents %d, total %d\n",
		result.TokenUsage.Conductor.Input+result.TokenUsage.Conductor.Output,
		result.TokenUsage.Agents.Input+result.TokenUsage.Agents.Output,
		result.TokenUsage.Total)

	if len(result.Workspace) == 0 {
		return
	}
	printer.Println()
	printer.Header("Workspace\n")
	fields := make([]string, 0, len(result.Workspace))
	for field := range result.Workspace {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		printer.Printf("  %s: %s\n", field, renderValue(result.Workspace[field]))
	}
}

// renderValue keeps workspace output to one bounded line per field.
func renderValue(v any) string {
	s, ok := v.(string)
	if !ok {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		s = string(data)
	}
	runes := []rune(s)
	if len(runes) <= 120 {
		return s
	}
	return string(runes[:120]) + "..."
}
