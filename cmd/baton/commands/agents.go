package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hebbzhu/baton/internal/agent"
	"github.com/hebbzhu/baton/internal/llm"
)

var agentsJSON bool

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the builtin agent roster",
	Long: `List the specialist agents the conductor can route work to, with the
workspace fields each one reads and writes.

Examples:
  # Human-readable table
  baton agents

  # Machine-readable roster
  baton agents --json`,
	RunE: runAgents,
}

func init() {
	agentsCmd.Flags().BoolVar(&agentsJSON, "json", false, "Print the roster as JSON")
	rootCmd.AddCommand(agentsCmd)
}

type agentEntry struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Reads       []string `json:"reads"`
	Writes      []string `json:"writes"`
}

func runAgents(cmd *cobra.Command, args []string) error {
	// Listing only reads metadata; the client is never asked to complete.
	roster := agent.Builtins(llm.NewAnthropicClient(llm.Options{}))

	if agentsJSON {
		entries := make([]agentEntry, 0, len(roster))
		for _, c := range roster {
			entries = append(entries, agentEntry{
				Name:        c.Name(),
				Description: c.Description(),
				Reads:       c.InputFields(),
				Writes:      c.OutputFields(),
			})
		}
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal roster: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("%-16s %-24s %-16s %s\n", "NAME", "READS", "WRITES", "DESCRIPTION")
	for _, c := range roster {
		fmt.Printf("%-16s %-24s %-16s %s\n",
			c.Name(),
			joinOrDash(c.InputFields()),
			joinOrDash(c.OutputFields()),
			c.Description())
	}
	return nil
}

func joinOrDash(fields []string) string {
	if len(fields) == 0 {
		return "-"
	}
	return strings.Join(fields, ",")
}
