package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"jobpilot/services"
	"jobpilot/utils"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Open a visible browser, sign in by hand and save the session.",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Signing in needs a window the user can type into.
		appConfig.Browser.Headless = false

		session, err := newBrowserSession(appConfig, services.NewElementLocator(utils.GetLogger()))
		if err != nil {
			return err
		}
		defer session.Close()

		err = session.Open(cmd.Context())
		switch {
		case err == nil:
			fmt.Fprintln(cmd.OutOrStdout(), "Stored session is still valid, nothing to do.")
			return nil
		case !errors.Is(err, services.ErrAuthenticationRequired):
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Sign in within %s in the browser window.\n", appConfig.Session.LoginTimeout)
		if err := session.Login(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Session saved.")
		return nil
	},
}
