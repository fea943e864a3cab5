// Package cli provides the command-line interface for pluisje.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/pluisje-go/internal/app"
	"github.com/raphaelgruber/pluisje-go/internal/client"
	"github.com/raphaelgruber/pluisje-go/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string
	email     string

	// Global config and logger
	cfg        config.Config
	logger     *slog.Logger
	closeLog   func() error
	stdin      *bufio.Reader
	lazyApp    *app.App
	lazyClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "pluisje",
	Short: "Pluisje chat administration and client",
	Long: `Pluisje is a web chat assistant with per-account history.

Admin commands (history, export, clear, account, check) work directly on the
database configured by DATABASE_URL. Client commands (chat, usage) talk to a
running pluisje-server.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		cfg.LogFile = ""
		cfg.LogLevel = slog.LevelWarn
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		logger, closeLog = config.SetupLogger(cfg)
		stdin = bufio.NewReader(cmd.InOrStdin())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if lazyApp != nil {
			if err := lazyApp.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
			lazyApp = nil
		}
		lazyClient = nil
		if closeLog != nil {
			closeLog()
		}
	},
}

// getApp opens the database and services on first use.
// Models are never needed by admin commands.
func getApp(ctx context.Context) (*app.App, error) {
	if lazyApp != nil {
		return lazyApp, nil
	}
	a, err := app.New(ctx, cfg, logger, app.WithoutModels())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	lazyApp = a
	return a, nil
}

// getClient returns a client logged in to the server.
func getClient(ctx context.Context, cmd *cobra.Command) (*client.Client, error) {
	if lazyClient != nil {
		return lazyClient, nil
	}
	c, err := client.New(serverURL)
	if err != nil {
		return nil, err
	}

	login := email
	if login == "" {
		login = os.Getenv("PLUISJE_EMAIL")
	}
	if login == "" {
		return nil, fmt.Errorf("no account given: use --email or PLUISJE_EMAIL")
	}
	password, err := readPassword(cmd, fmt.Sprintf("Password for %s: ", login))
	if err != nil {
		return nil, err
	}
	if err := c.Login(ctx, login, password); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	lazyClient = c
	return c, nil
}

// readPassword takes the password from PLUISJE_PASSWORD, a terminal prompt
// without echo, or the next line of piped input.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	if v := os.Getenv("PLUISJE_PASSWORD"); v != "" {
		return v, nil
	}
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := readLine()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return line, nil
}

// readLine reads one trimmed line of input.
func readLine() (string, error) {
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL for client commands (default $PLUISJE_SERVER_URL or http://localhost:5000)")
	rootCmd.PersistentFlags().StringVarP(&email, "email", "e", "", "account for client commands (default $PLUISJE_EMAIL)")

	// Add subcommands
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(usageCmd)
}
