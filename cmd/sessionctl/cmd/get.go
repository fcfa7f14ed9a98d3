package cmd

import (
	"fmt"
	"io"

	"github.com/jrsteele09/go-session-client/authmodel"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Send an authenticated GET request and print the body",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if err := requireSession(a); err != nil {
			return err
		}
		resp, err := a.client.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", resp.Status)
		}
		if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil {
			return errors.Wrap(err, "[cmd.get]")
		}
		return nil
	}),
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the session alive and print every transition until interrupted",
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		out := cmd.OutOrStdout()
		unsubscribe := a.ctrl.Subscribe(func(ev authmodel.Event) {
			line := fmt.Sprintf("%-16s %s", ev.Type, ev.State.Status)
			if ev.State.Identity != nil {
				line += " " + ev.State.Identity.Email
			}
			if ev.State.LastError != "" {
				line += " (" + ev.State.LastError + ")"
			}
			fmt.Fprintln(out, line)
		})
		defer unsubscribe()

		a.ctrl.Run(cmd.Context())
		return nil
	}),
}

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "List the recorded activity of the current session",
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		entries, err := a.ctrl.Activity(cmd.Context())
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-16s %s %s\n", e.At.Local().Format("2006-01-02 15:04:05"), e.Type, e.Email, e.Detail)
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(getCmd, watchCmd, activityCmd)
}
