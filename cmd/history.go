package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fakeyudi/chemvis/internal/render"
)

var historyFormat string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the most recent uploaded datasets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := render.For(outputFormat(historyFormat))
		if err != nil {
			return err
		}
		a, err := newApp(logger)
		if err != nil {
			return err
		}
		if err := a.login(cmd.Context(), cmd); err != nil {
			return err
		}
		if err := a.data.OnLogin(cmd.Context()); err != nil {
			return a.apiError(err)
		}
		out, err := r.History(a.data.History())
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

// outputFormat falls back to the configured default format.
func outputFormat(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.DefaultFormat
}

func init() {
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", "", "output format: text, markdown, json, yaml")
	rootCmd.AddCommand(historyCmd)
}
