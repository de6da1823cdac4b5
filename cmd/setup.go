package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/chemvis/internal/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure chemvis (re-run anytime to edit settings)",
	// Bypass the normal PersistentPreRunE so setup works with a broken config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(cmd)
	},
}

// runSetup runs the interactive setup wizard and saves the global config.
func runSetup(cmd *cobra.Command) error {
	// Load existing config as defaults if it parses.
	existing, err := config.LoadGlobal()
	if err != nil {
		existing = nil
	}

	c, err := config.RunSetup(cmd.InOrStdin(), cmd.OutOrStdout(), existing)
	if err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}
	path, err := config.Save(c)
	if err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  ✓ Config saved to %s\n", path)
	fmt.Fprintln(cmd.OutOrStdout(), "  Setup complete. Run 'chemvis dashboard' to sign in.")
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
