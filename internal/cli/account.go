package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	accountPassword string
	accountVerified bool
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage accounts",
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all accounts",
	Args:  cobra.NoArgs,
	RunE:  runAccountList,
}

var accountCreateCmd = &cobra.Command{
	Use:   "create <email>",
	Short: "Create an account without sending mail",
	Long: `Create an account directly in the database. The password is read from
--password, PLUISJE_PASSWORD or an interactive prompt.

Examples:
  pluisje account create pluis@example.com --verified
  PLUISJE_PASSWORD=geheim pluisje account create pluis@example.com`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountCreate,
}

var accountVerifyCmd = &cobra.Command{
	Use:   "verify <email>",
	Short: "Mark an account as verified",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountVerify,
}

func init() {
	accountCreateCmd.Flags().StringVar(&accountPassword, "password", "", "password (prompted when empty)")
	accountCreateCmd.Flags().BoolVar(&accountVerified, "verified", false, "create the account already verified")

	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountCreateCmd)
	accountCmd.AddCommand(accountVerifyCmd)
}

func runAccountList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := getApp(ctx)
	if err != nil {
		return err
	}
	accs, err := a.Auth.ListAccounts(ctx)
	if err != nil {
		return err
	}
	if len(accs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No accounts.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tVERIFIED\tCREATED")
	for _, acc := range accs {
		verified := "no"
		if acc.Verified {
			verified = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", acc.Email, verified, acc.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runAccountCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := getApp(ctx)
	if err != nil {
		return err
	}

	password := accountPassword
	if password == "" {
		password, err = readPassword(cmd, "Password: ")
		if err != nil {
			return err
		}
	}

	acc, err := a.Auth.CreateAccount(ctx, args[0], password, accountVerified)
	if err != nil {
		return err
	}
	state := "unverified"
	if acc.Verified {
		state = "verified"
	}
	fmt.Fprintln(cmd.OutOrStdout(), defaultTheme.successStyle().Render(fmt.Sprintf("Created %s account %s.", state, acc.Email)))
	if !acc.Verified && acc.VerificationToken != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Verification link: "+a.Auth.VerifyLink(acc.Email, *acc.VerificationToken))
	}
	return nil
}

func runAccountVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := getApp(ctx)
	if err != nil {
		return err
	}
	if err := a.Auth.MarkVerified(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), defaultTheme.successStyle().Render("Verified "+args[0]+"."))
	return nil
}
