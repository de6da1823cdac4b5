package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/chemvis/internal/config"
	"github.com/fakeyudi/chemvis/internal/logging"
	"github.com/fakeyudi/chemvis/internal/tui"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the interactive dashboard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// The alternate screen owns the terminal, so logs go to a file.
		l, f, err := logging.OpenFile(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer f.Close()

		a, err := newApp(l)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		// Non-interactive credentials skip the login form; a rejection is
		// shown on it instead.
		if password := os.Getenv(config.EnvPassword); cfg.Username != "" && password != "" {
			_ = a.auth.Login(ctx, cfg.Username, password)
		}

		return tui.Run(ctx, a.auth, a.data, tui.Options{
			BaseURL:   a.client.BaseURL(),
			Username:  cfg.Username,
			ReportDir: cfg.ReportDir,
		})
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
