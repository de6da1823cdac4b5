package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Check that the credentials are accepted by the backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(logger)
		if err != nil {
			return err
		}
		if err := a.login(cmd.Context(), cmd); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s at %s\n", a.auth.Snapshot().Username, a.client.BaseURL())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
