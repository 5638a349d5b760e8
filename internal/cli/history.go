package cli

import (
	"github.com/spf13/cobra"

	"gasflow/internal/app"
)

var (
	historyRange   string
	historyCSVPath string
	historyPNGPath string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the simulated gas price history for 24h, 7d or 30d",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().History(cmd.Context(), app.HistoryOptions{
			Range:   historyRange,
			CSVPath: historyCSVPath,
			PNGPath: historyPNGPath,
		})
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyRange, "range", "24h", "History range: 24h, 7d or 30d")
	historyCmd.Flags().StringVar(&historyCSVPath, "csv", "", "Path to write CSV data")
	historyCmd.Flags().StringVar(&historyPNGPath, "png", "", "Path to write PNG chart")
}
