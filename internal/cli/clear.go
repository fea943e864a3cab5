package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pluisje-go/internal/models"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear <email>",
	Short: "Delete the stored chat history of an account",
	Long: `Delete all stored chat turns of an account. The account itself is kept.

Examples:
  pluisje clear pluis@example.com
  pluisje clear pluis@example.com --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runClear,
}

func init() {
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "skip confirmation")
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := getApp(ctx)
	if err != nil {
		return err
	}
	identity := models.NormalizeIdentity(args[0])

	if !clearYes {
		fmt.Fprintf(cmd.ErrOrStderr(), "Delete all stored turns of %s? [y/N] ", identity)
		answer, err := readLine()
		if err != nil || !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	n, err := a.Chat.Clear(ctx, identity)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), defaultTheme.successStyle().Render(fmt.Sprintf("Deleted %d turns of %s.", n, identity)))
	return nil
}
