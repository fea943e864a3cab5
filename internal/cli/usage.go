package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pluisje-go/internal/api"
	"github.com/raphaelgruber/pluisje-go/internal/metrics"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show server usage statistics",
	Long: `Show server runtime statistics: call timings, token usage, failures and
stored data counts.

Examples:
  pluisje usage -e pluis@example.com`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	c, err := getClient(ctx, cmd)
	if err != nil {
		return err
	}
	stats, err := c.Stats(ctx)
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	printServerStats(cmd.OutOrStdout(), stats)
	return nil
}

// printServerStats displays server runtime statistics.
func printServerStats(w io.Writer, stats *api.StatsResponse) {
	m := stats.Metrics
	fmt.Fprintf(w, "Server Statistics (in-memory, since restart)\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════\n")
	fmt.Fprintf(w, "Uptime: %.1f seconds\n", m.UptimeSeconds)
	fmt.Fprintf(w, "Sessions: %d\n", stats.Sessions)
	fmt.Fprintf(w, "Stored: %d turns from %d owners, %d accounts\n",
		stats.Store.Turns, stats.Store.Owners, stats.Store.Accounts)

	ops := []struct {
		title  string
		op     *metrics.OperationSnapshot
		tokens bool
	}{
		{"LLM Generate", m.LLMGenerate, true},
		{"LLM Stream", m.LLMStream, true},
		{"Image Generate", m.ImageGenerate, false},
		{"DB Query", m.DBQuery, false},
		{"Mail Send", m.MailSend, false},
	}
	for _, o := range ops {
		if o.op == nil {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", o.title)
		printOpStats(w, o.op)
		if o.tokens {
			printTokenStats(w, o.op)
		}
	}

	if len(m.Failures) > 0 {
		fmt.Fprintf(w, "\nFailures:\n")
		names := make([]string, 0, len(m.Failures))
		for op := range m.Failures {
			names = append(names, op)
		}
		sort.Strings(names)
		for _, op := range names {
			fmt.Fprintf(w, "  %-15s %d\n", op, m.Failures[op])
		}
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(w io.Writer, op *metrics.OperationSnapshot) {
	fmt.Fprintf(w, "  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(w io.Writer, op *metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Fprintf(w, "  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgInputTokens)
	}
	if op.MinInputTokens != nil && op.MaxInputTokens != nil {
		fmt.Fprintf(w, ", min %d, max %d", *op.MinInputTokens, *op.MaxInputTokens)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgOutputTokens)
	}
	if op.MinOutputTokens != nil && op.MaxOutputTokens != nil {
		fmt.Fprintf(w, ", min %d, max %d", *op.MinOutputTokens, *op.MaxOutputTokens)
	}
	fmt.Fprintln(w)
}
