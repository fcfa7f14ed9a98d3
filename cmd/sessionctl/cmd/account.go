package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/jrsteele09/go-session-client/internal/version"
	"github.com/spf13/cobra"
)

var (
	resetEmail  string
	versionJSON bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect the account's active sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active sessions",
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		if err := requireSession(a); err != nil {
			return err
		}
		list, err := a.api.ListSessions(cmd.Context(), a.client)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tLAST USED\t")
		for _, rs := range list {
			current := ""
			if rs.Current {
				current = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rs.ID,
				rs.CreatedAt.Local().Format("2006-01-02 15:04"),
				rs.LastUsedAt.Local().Format("2006-01-02 15:04"), current)
		}
		return w.Flush()
	}),
}

var sessionsRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "End another session of this account",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if err := requireSession(a); err != nil {
			return err
		}
		if err := a.api.RevokeSession(cmd.Context(), a.client, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s revoked\n", args[0])
		return nil
	}),
}

var passwordCmd = &cobra.Command{
	Use:   "password",
	Short: "Reset a forgotten password",
}

var passwordResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Ask the API to mail a reset link",
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		email := resetEmail
		if email == "" {
			if id := a.ctrl.CurrentIdentity(); id != nil {
				email = id.Email
			}
		}
		if email == "" {
			return fmt.Errorf("--email is required when not logged in")
		}
		if err := a.ctrl.RequestPasswordReset(cmd.Context(), email); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "If the account exists a reset link is on its way")
		return nil
	}),
}

var passwordConfirmCmd = &cobra.Command{
	Use:   "confirm <token> <new-password>",
	Short: "Set a new password with a reset token",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if err := a.ctrl.ConfirmPasswordReset(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Password updated, log in again")
		return nil
	}),
}

var verifyEmailCmd = &cobra.Command{
	Use:   "verify-email <token>",
	Short: "Confirm the account email with a verification token",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if err := a.ctrl.VerifyEmail(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Email verified")
		return nil
	}),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Run: func(cmd *cobra.Command, _ []string) {
		if versionJSON {
			data, _ := json.MarshalIndent(map[string]string{
				"version":    version.Version,
				"git_commit": version.GitCommit,
				"build_time": version.BuildTime,
			}, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sessionctl version %s\n", version.Full())
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsRevokeCmd)
	passwordCmd.AddCommand(passwordResetCmd, passwordConfirmCmd)
	rootCmd.AddCommand(sessionsCmd, passwordCmd, verifyEmailCmd, versionCmd)

	passwordResetCmd.Flags().StringVarP(&resetEmail, "email", "e", "", "account email (defaults to the logged in account)")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output in JSON format")
}
