package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pluisje-go/internal/mail"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check external dependencies",
}

var checkDBCmd = &cobra.Command{
	Use:   "db",
	Short: "Check the database connection",
	Args:  cobra.NoArgs,
	RunE:  runCheckDB,
}

var checkMailCmd = &cobra.Command{
	Use:   "mail [to]",
	Short: "Send a test mail",
	Long: `Send a test mail through the configured SMTP server. Without an address
the mail goes to SMTP_USERNAME.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheckMail,
}

func init() {
	checkCmd.AddCommand(checkDBCmd)
	checkCmd.AddCommand(checkMailCmd)
}

func runCheckDB(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := getApp(ctx)
	if err != nil {
		return err
	}
	if err := a.Store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	st, err := a.Store.Stats(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, defaultTheme.successStyle().Render("Database OK ("+cfg.DatabaseURL+")"))
	fmt.Fprintf(out, "  Turns:    %d\n", st.Turns)
	fmt.Fprintf(out, "  Owners:   %d\n", st.Owners)
	fmt.Fprintf(out, "  Accounts: %d\n", st.Accounts)
	return nil
}

func runCheckMail(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := getApp(ctx)
	if err != nil {
		return err
	}

	to := cfg.SMTPUsername
	if len(args) == 1 {
		to = args[0]
	}
	if to == "" {
		return fmt.Errorf("no recipient: pass an address or set SMTP_USERNAME")
	}
	if !cfg.MailConfigured() {
		fmt.Fprintln(cmd.ErrOrStderr(), defaultTheme.hintStyle().Render("SMTP not configured, the mail is only logged."))
	}

	if err := a.Mailer.Send(ctx, mail.TestMessage(to)); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), defaultTheme.successStyle().Render("Test mail sent to "+to+"."))
	return nil
}
