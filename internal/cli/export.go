package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gasflow/internal/app"
)

var (
	exportFrom      string
	exportTo        string
	exportSince     time.Duration
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded gas samples as CSV and/or PNG chart",
	Long: "Export reads the Postgres archive when database.dsn is set and the locally " +
		"cached chart buffer otherwise.",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		to, err := parseTimeFlag("--to", exportTo)
		if err != nil {
			return err
		}
		opts.To = to

		if exportSince > 0 {
			if exportFrom != "" {
				return errors.New("--since and --from are mutually exclusive")
			}
			end := time.Now().UTC()
			if to != nil {
				end = *to
			}
			from := end.Add(-exportSince)
			opts.From = &from
			return getApp().Export(cmd.Context(), opts)
		}

		if opts.From, err = parseTimeFlag("--from", exportFrom); err != nil {
			return err
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func parseTimeFlag(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value: %w", name, err)
	}
	return &t, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End timestamp (RFC3339, exclusive)")
	exportCmd.Flags().DurationVar(&exportSince, "since", 0, "Export the window ending at --to (or now), e.g. 6h")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to export.max_data_points)")
}
