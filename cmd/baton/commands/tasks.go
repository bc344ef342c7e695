package commands

import (
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/hebbzhu/baton/internal/config"
	"github.com/hebbzhu/baton/internal/filter"
	"github.com/hebbzhu/baton/internal/inspect"
	"github.com/hebbzhu/baton/internal/printer"
	"github.com/hebbzhu/baton/internal/resolver"
	"github.com/hebbzhu/baton/internal/timespec"
	"github.com/hebbzhu/baton/pkg/blackboard"
)

var (
	tasksOutputFormat string
	tasksSince        string
	tasksUntil        string
	tasksStatus       string
	tasksAgent        string
)

var tasksCmd = &cobra.Command{
	Use:   "tasks [TASK_ID]",
	Short: "Inspect stored tasks with filtering",
	Long: `Inspect tasks stored in the Redis backend in list or get mode.

List Mode (no TASK_ID):
  Displays tasks matching filters as a table or JSONL stream.

Get Mode (with TASK_ID):
  Displays the complete state of a single task as pretty-printed JSON.
  Supports ID prefixes (e.g., "a1b2" instead of the full task ID).

The in-memory backend keeps tasks only for the lifetime of a single run,
so this command requires blackboard.backend to be 'redis'.

Output Formats (list mode only):
  default - Human-readable table with ID, status, and objective
  jsonl   - Line-delimited JSON, one task per line

Time Filters (list mode only):
  --since  - Show tasks updated after this time
  --until  - Show tasks updated before this time

Content Filters (list mode only):
  --status - Filter by status (glob pattern: "COMPLETED", "*ING")
  --agent  - Filter by invoked agent name (exact match: "critic")

Examples:
  # List all stored tasks
  baton tasks

  # Recently failed tasks
  baton tasks --status=FAILED --since=24h

  # Tasks as JSONL for piping to jq
  baton tasks --output=jsonl | jq 'select(.status=="COMPLETED") | .task_id'

  # Get a specific task by ID prefix
  baton tasks a1b2`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTasks,
}

func init() {
	tasksCmd.Flags().StringVarP(&tasksOutputFormat, "output", "o", "default", "Output format: default or jsonl (ignored in get mode)")

	// Time-based filters
	tasksCmd.Flags().StringVar(&tasksSince, "since", "", "Show tasks updated after time (duration or RFC3339)")
	tasksCmd.Flags().StringVar(&tasksUntil, "until", "", "Show tasks updated before time (duration or RFC3339)")

	// Content-based filters
	tasksCmd.Flags().StringVar(&tasksStatus, "status", "", "Filter by status (glob pattern)")
	tasksCmd.Flags().StringVar(&tasksAgent, "agent", "", "Filter by invoked agent name (exact match)")

	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// Determine mode based on arguments
	isGetMode := len(args) > 0

	// Validate output format (only applies to list mode)
	var outputFormat inspect.OutputFormat
	if !isGetMode {
		switch tasksOutputFormat {
		case "default":
			outputFormat = inspect.OutputFormatDefault
		case "jsonl":
			outputFormat = inspect.OutputFormatJSONL
		default:
			return printer.Error(
				"invalid output format",
				fmt.Sprintf("Unknown format: %s", tasksOutputFormat),
				[]string{"Valid formats: default, jsonl"},
			)
		}
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{"Run 'baton init' to scaffold a fresh baton.yml"},
		)
	}

	store, err := openRedisStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if isGetMode {
		// Get mode: resolve ID prefix and fetch the task
		prefix := args[0]

		fullID, err := resolver.ResolveTaskID(ctx, store, prefix)
		if err != nil {
			if resolver.IsNotFoundError(err) {
				return printer.Error(
					fmt.Sprintf("task with ID '%s' not found", prefix),
					"The specified task does not exist in the store.",
					[]string{"List all tasks:\n  baton tasks"},
				)
			}
			if resolver.IsAmbiguousError(err) {
				ambigErr := err.(*resolver.AmbiguousError)
				fmt.Fprintln(os.Stderr, resolver.FormatAmbiguousError(ambigErr))
				return fmt.Errorf("ambiguous task ID")
			}
			return fmt.Errorf("failed to resolve task ID: %w", err)
		}

		if err := inspect.GetTask(ctx, store, fullID, os.Stdout); err != nil {
			if inspect.IsNotFound(err) {
				return printer.Error(
					fmt.Sprintf("task with ID '%s' not found", fullID),
					"The task was resolved but could not be fetched.",
					[]string{"This might indicate a race condition. Try again."},
				)
			}
			return fmt.Errorf("failed to get task: %w", err)
		}
		return nil
	}

	// List mode: parse filters and fetch tasks
	since, until, err := timespec.ParseRange(tasksSince, tasksUntil)
	if err != nil {
		return printer.Error(
			"invalid time filter",
			err.Error(),
			[]string{"Use duration format like '1h30m' or RFC3339 like '2026-08-25T13:00:00Z'"},
		)
	}

	criteria := &filter.Criteria{
		Since:      since,
		Until:      until,
		StatusGlob: tasksStatus,
		Agent:      tasksAgent,
	}

	if err := inspect.ListTasks(ctx, store, outputFormat, criteria, os.Stdout); err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}
	return nil
}

// openRedisStore connects to the configured Redis backend, rejecting the
// in-memory backend since its tasks never outlive the owning process.
func openRedisStore(cfg *config.Config) (*blackboard.RedisStore, error) {
	if cfg.Blackboard.Backend != config.BackendRedis {
		return nil, printer.Error(
			"this command requires the redis backend",
			fmt.Sprintf("The configured backend is '%s'. In-memory tasks are only visible to the process that created them.", cfg.Blackboard.Backend),
			[]string{
				"Set blackboard.backend to 'redis' in baton.yml",
				"export BATON_BACKEND=redis",
			},
		)
	}

	redisOpts, err := redis.ParseURL(cfg.Blackboard.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	store, err := blackboard.NewRedisStore(redisOpts, cfg.Blackboard.Namespace)
	if err != nil {
		return nil, printer.Error(
			"failed to connect to redis",
			err.Error(),
			[]string{
				"Check that Redis is running at " + cfg.Blackboard.RedisURL,
				"Adjust blackboard.redis_url in baton.yml",
			},
		)
	}
	return store, nil
}
