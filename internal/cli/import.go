package cli

import (
	"github.com/spf13/cobra"

	"ec-ph-doser/internal/app"
)

var (
	importFile   string
	importDryRun bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Backfill a sensor CSV log into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ImportOptions{
			Path:   importFile,
			DryRun: importDryRun,
		}

		return getApp().Import(cmd.Context(), opts)
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "Path to the sensor CSV log to import")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Parse and count rows without writing")
}
