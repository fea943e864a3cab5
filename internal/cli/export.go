package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/pluisje-go/internal/models"
)

var exportCmd = &cobra.Command{
	Use:   "export <email> <file>",
	Short: "Export the chat history of an account to YAML",
	Long: `Export all stored chat turns of an account to a YAML file for backup
or inspection. Use "-" as file to write to stdout.

Examples:
  pluisje export pluis@example.com history.yaml
  pluisje export pluis@example.com -`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

// historyExport is the document written by export.
type historyExport struct {
	Identity   string        `yaml:"identity"`
	ExportedAt time.Time     `yaml:"exported_at"`
	Turns      []models.Turn `yaml:"turns"`
}

func runExport(cmd *cobra.Command, args []string) error {
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

	doc := historyExport{Identity: identity, ExportedAt: time.Now().UTC(), Turns: turns}

	if args[1] == "-" {
		return writeExport(cmd.OutOrStdout(), doc)
	}

	f, err := os.Create(args[1])
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := writeExport(f, doc); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d turns to %s\n", len(turns), args[1])
	return nil
}

func writeExport(w io.Writer, doc historyExport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return enc.Close()
}
