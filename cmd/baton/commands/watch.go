package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hebbzhu/baton/internal/config"
	"github.com/hebbzhu/baton/internal/printer"
)

var (
	watchTask   string
	watchOutput string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream task status events from the Redis backend",
	Long: `Stream task status change events as they are published by running
conductors. Requires the redis backend; the in-memory backend has no
event channel between processes.

Press Ctrl+C to stop watching.

Examples:
  # Watch all tasks in the namespace
  baton watch

  # Follow one task
  baton watch --task a1b2c3d4e5f6

  # Emit JSON lines for piping
  baton watch --output json`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchTask, "task", "", "Only show events for this task ID")
	watchCmd.Flags().StringVar(&watchOutput, "output", "default", "Output format: default or json")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchOutput != "default" && watchOutput != "json" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format '%s'.", watchOutput),
			[]string{"Use --output default or --output json"},
		)
	}

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

	store, err := openRedisStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sub, err := store.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Close()

	if watchOutput == "default" {
		printer.Step("Watching for task events (Ctrl+C to stop)...\n")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if watchTask != "" && event.TaskID != watchTask {
				continue
			}
			if watchOutput == "json" {
				data, err := json.Marshal(event)
				if err != nil {
					printer.Warning("failed to encode event: %v\n", err)
					continue
				}
				fmt.Println(string(data))
			} else {
				fmt.Printf("[%s] %s %s\n",
					event.UpdatedAt.Local().Format("15:04:05"),
					event.TaskID,
					printer.Status(event.Status))
			}
		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			printer.Warning("event stream error: %v\n", err)
		}
	}
}
