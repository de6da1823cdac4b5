package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/fakeyudi/chemvis/internal/watch"
)

var (
	watchSettle time.Duration
	watchRate   float64
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Upload every CSV file that appears in a directory",
	Long: `Upload every CSV file that appears in a directory.

Each new or rewritten .csv file is uploaded once it has been quiet for the
settle period. Failed uploads are reported and not retried. The watcher stops
on Ctrl+C or when the server rejects the credentials.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchRate <= 0 {
			return errors.New("--rate must be positive")
		}
		a, err := newApp(logger)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := a.login(ctx, cmd); err != nil {
			return err
		}
		if err := a.data.OnLogin(ctx); err != nil {
			return a.apiError(err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for CSV files (Ctrl+C to stop)\n", args[0])
		return watch.Watch(ctx, args[0], a.data,
			watch.WithLogger(logger),
			watch.WithSettle(watchSettle),
			watch.WithRate(rate.Limit(watchRate), 1),
			watch.OnResult(func(r watch.Result) {
				if r.Err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", r.Path, a.apiError(r.Err))
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s → dataset #%d (%d items)\n", r.Path, r.Summary.ID, r.Summary.TotalCount)
			}),
		)
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchSettle, "settle", watch.DefaultSettle, "quiet period before a changed file is uploaded")
	watchCmd.Flags().Float64Var(&watchRate, "rate", float64(watch.DefaultRate), "maximum uploads per second")
	rootCmd.AddCommand(watchCmd)
}
