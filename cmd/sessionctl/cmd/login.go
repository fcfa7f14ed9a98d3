package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const passwordEnvVar = "SESSION_PASSWORD"

var (
	loginEmail    string
	loginPassword string
	whoamiJSON    bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the credential locally",
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		displayAppname(cfg.GetAppName())

		password := loginPassword
		if password == "" {
			password = os.Getenv(passwordEnvVar)
		}
		if loginEmail == "" || password == "" {
			return errors.New("--email and --password (or $" + passwordEnvVar + ") are required")
		}

		if err := a.ctrl.Login(cmd.Context(), loginEmail, password); err != nil {
			return errors.New(a.ctrl.State().LastError)
		}
		id := a.ctrl.CurrentIdentity()
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", id.Email, id.Role)
		return nil
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and forget the stored credential",
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		if !a.ctrl.IsAuthenticated() {
			fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
			return nil
		}
		if err := a.ctrl.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	}),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the stored identity",
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		if err := requireSession(a); err != nil {
			return err
		}
		s := a.ctrl.State()
		if whoamiJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"identity":   s.Identity,
				"expires_at": s.Credential.ExpiresAt,
				"renewable":  s.Credential.HasRenewalToken(),
			})
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Email:      %s\n", s.Identity.Email)
		fmt.Fprintf(out, "Name:       %s\n", s.Identity.DisplayName)
		fmt.Fprintf(out, "Role:       %s\n", s.Identity.Role)
		fmt.Fprintf(out, "Verified:   %t\n", s.Identity.EmailVerified)
		fmt.Fprintf(out, "Expires at: %s\n", s.Credential.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "Renewable:  %t\n", s.Credential.HasRenewalToken())
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)

	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "account email")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "account password (or $"+passwordEnvVar+")")
	whoamiCmd.Flags().BoolVar(&whoamiJSON, "json", false, "output in JSON format")
}
