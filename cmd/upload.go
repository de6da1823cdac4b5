package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/chemvis/internal/dataset"
	"github.com/fakeyudi/chemvis/internal/render"
)

var uploadFormat string

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an equipment CSV file and print its summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := render.For(outputFormat(uploadFormat))
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

		a.data.SelectFile(args[0])
		sum, err := a.data.UploadFile(cmd.Context(), a.data.Selection())
		if err != nil {
			return a.apiError(err)
		}
		return printUpload(cmd, r, sum, a.data.History())
	},
}

// printUpload writes the new dataset followed by the refreshed history. The
// structured formats emit the dataset alone so the output stays one document.
func printUpload(cmd *cobra.Command, r render.Renderer, sum *dataset.EquipmentSummary, history []dataset.EquipmentSummary) error {
	w := cmd.OutOrStdout()
	out, err := r.Summary(sum)
	if err != nil {
		return err
	}
	if _, err := w.Write(out); err != nil {
		return err
	}
	switch r.(type) {
	case *render.JSONRenderer, *render.YAMLRenderer:
		return nil
	}
	out, err = r.History(history)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\n%s", out)
	return err
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadFormat, "format", "f", "", "output format: text, markdown, json, yaml")
	rootCmd.AddCommand(uploadCmd)
}
