package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/chemvis/internal/config"
	"github.com/fakeyudi/chemvis/internal/logging"
)

// cfg holds the effective configuration, populated in PersistentPreRunE.
var cfg config.Config

// logger is the CLI logger; it writes to stderr.
var logger = logging.Discard()

var (
	flagBaseURL       string
	flagUsername      string
	flagPasswordStdin bool
	flagTimeout       time.Duration
	flagLogLevel      string
)

var rootCmd = &cobra.Command{
	Use:          "chemvis",
	Short:        "Upload equipment datasets and browse their summaries",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(".env"); err != nil {
			return err
		}

		// First run: no global config yet. Offer the wizard only when a
		// person is at the keyboard.
		if path, err := config.GlobalPath(); err == nil {
			if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) && isInteractive() && wantsFirstRunSetup(cmd) {
				fmt.Fprintln(cmd.ErrOrStderr())
				fmt.Fprintln(cmd.ErrOrStderr(), "  Welcome to chemvis! Looks like this is your first time.")
				if err := runSetup(cmd); err != nil {
					return err
				}
			}
		}

		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = applyFlags(cmd, loaded)
		if err := cfg.Validate(); err != nil {
			return err
		}

		l, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

// applyFlags overrides c with every global flag the user actually set.
func applyFlags(cmd *cobra.Command, c config.Config) config.Config {
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		c.BaseURL = flagBaseURL
	}
	if flags.Changed("username") {
		c.Username = flagUsername
	}
	if flags.Changed("timeout") {
		c.Timeout = config.Duration(flagTimeout)
	}
	if flags.Changed("log-level") {
		c.LogLevel = flagLogLevel
	}
	return c
}

func wantsFirstRunSetup(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "setup", "config", "help", "completion":
		return false
	}
	return true
}

func isInteractive() bool {
	return term.IsTerminal(os.Stdin.Fd())
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagBaseURL, "base-url", "", "backend API base URL (default http://localhost:8000/api)")
	pf.StringVarP(&flagUsername, "username", "u", "", "username to log in with")
	pf.BoolVar(&flagPasswordStdin, "password-stdin", false, "read the password from the first line of stdin")
	pf.DurationVar(&flagTimeout, "timeout", 0, "per-request timeout (default 5s)")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
}
