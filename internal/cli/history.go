package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pluisje-go/internal/models"
)

var historyLast int

var historyCmd = &cobra.Command{
	Use:   "history <email>",
	Short: "Show the stored chat history of an account",
	Long: `Show the stored chat turns of an account, oldest first.

Examples:
  pluisje history pluis@example.com
  pluisje history pluis@example.com --last 4`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLast, "last", "n", 0, "show only the last n turns")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := getApp(ctx)
	if err != nil {
		return err
	}

	identity := models.NormalizeIdentity(args[0])
	turns, err := a.Chat.History(ctx, identity)
	if err != nil {
		return err
	}
	if historyLast > 0 && len(turns) > historyLast {
		turns = turns[len(turns)-historyLast:]
	}

	printHistory(cmd.OutOrStdout(), identity, turns, defaultTheme)
	return nil
}

// printHistory renders turns as a labelled transcript.
func printHistory(w io.Writer, identity string, turns []models.Turn, theme Theme) {
	if len(turns) == 0 {
		fmt.Fprintln(w, theme.hintStyle().Render("No stored turns for "+identity+"."))
		return
	}

	fmt.Fprintf(w, "%d turns for %s\n\n", len(turns), identity)
	for _, t := range turns {
		label := theme.assistantStyle().Render("Pluisje")
		if t.Role == models.RoleUser {
			label = theme.userStyle().Render(models.DisplayName(identity))
		}
		stamp := theme.hintStyle().Render(t.CreatedAt.Local().Format("2006-01-02 15:04"))
		fmt.Fprintf(w, "%s %s\n%s\n\n", label, stamp, indent(t.Content, "  "))
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
