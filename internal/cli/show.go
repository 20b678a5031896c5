package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ec-ph-doser/internal/app"
)

var (
	showLimit int
	showDoses bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent readings or dose events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit: showLimit,
			Doses: showDoses,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().BoolVar(&showDoses, "doses", false, "Show dose events instead of readings")
}
