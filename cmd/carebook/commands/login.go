package commands

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Logs in to the portal and saves the session for later runs.",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp(config)
		if err != nil {
			fatal("failed to open state", err)
		}
		defer a.Close()

		client, err := a.newClient()
		if err != nil {
			fatal("failed to create client", err)
		}
		err = a.login(cmd.Context(), client)
		if err != nil {
			fatal("failed to login", err)
		}
		err = client.SaveCookies(config.CookiesPath())
		if err != nil {
			fatal("failed to save session", err)
		}
		slog.Info("logged in", "cookies", config.CookiesPath())
	},
}
