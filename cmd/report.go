package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

var (
	reportOpen bool
	reportSave bool
	reportOut  string
	reportQR   bool
)

// linkWarning precedes any output that contains the credential-bearing link.
const linkWarning = "warning: this link contains your password; do not share it"

var reportCmd = &cobra.Command{
	Use:   "report <id>",
	Short: "Download, open or print the PDF report of a dataset",
	Long: `Download, open or print the PDF report of a dataset.

The report endpoint authenticates through the link itself, so a printed or
opened link carries the password. Prefer --out or --save, which fetch the
report directly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid dataset id %q", args[0])
		}
		modes := 0
		for _, on := range []bool{reportOpen, reportSave || reportOut != "", reportQR} {
			if on {
				modes++
			}
		}
		if modes > 1 {
			return errors.New("choose at most one of --open, --out/--save, --qr")
		}

		a, err := newApp(logger)
		if err != nil {
			return err
		}
		if err := a.login(cmd.Context(), cmd); err != nil {
			return err
		}

		switch {
		case reportSave || reportOut != "":
			dir := reportOut
			if dir == "" {
				dir = cfg.ReportDir
			}
			path, err := a.data.SaveReport(cmd.Context(), id, dir)
			if err != nil {
				return a.apiError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report saved to %s\n", path)
			return nil

		case reportOpen:
			if err := a.data.DownloadReport(id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Report opened in browser")
			return nil
		}

		link, err := a.data.ReportURL(id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), linkWarning)
		if reportQR {
			q, err := qrcode.New(link, qrcode.Medium)
			if err != nil {
				return fmt.Errorf("encoding QR code: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), q.ToString(false))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), link)
		return nil
	},
}

func init() {
	f := reportCmd.Flags()
	f.BoolVar(&reportOpen, "open", false, "open the report in the default browser")
	f.BoolVar(&reportSave, "save", false, "save the report into the configured report_dir")
	f.StringVar(&reportOut, "out", "", "save the report into `DIR`")
	f.BoolVar(&reportQR, "qr", false, "print the report link as a QR code")
	rootCmd.AddCommand(reportCmd)
}
