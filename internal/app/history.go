package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"gasflow/internal/calculator"
	"gasflow/internal/history"
)

// History prints the synthetic historical series for a range with its summary stats.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	if opts.Range == "" {
		opts.Range = string(history.Range24h)
	}
	rng, err := history.ParseRange(opts.Range)
	if err != nil {
		return err
	}

	points := history.NewGenerator(a.Config.Oracle.Seed).Generate(rng, time.Now().UTC())
	stats, ok := history.Summarize(history.GasPrices(points))
	if !ok {
		fmt.Fprintln(a.out(), "no history available")
		return nil
	}

	tw := tabwriter.NewWriter(a.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Range\t%s (%d points)\n", rng, len(points))
	fmt.Fprintf(tw, "Current\t%s Gwei\n", calculator.FormatGwei(stats.Current))
	fmt.Fprintf(tw, "Change\t%s Gwei (%s%%)\n", signed(stats.Change.Round(1)), signed(stats.ChangePercent.Round(1)))
	fmt.Fprintf(tw, "Min / Avg / Max\t%s / %s / %s Gwei\n",
		calculator.FormatGwei(stats.Min), calculator.FormatGwei(stats.Avg), calculator.FormatGwei(stats.Max))
	if err := tw.Flush(); err != nil {
		return err
	}

	if opts.CSVPath != "" {
		records := make([][]string, len(points))
		for i, p := range points {
			records[i] = []string{
				p.Timestamp.UTC().Format(time.RFC3339),
				p.GasPrice.String(),
				p.Low.String(),
				p.High.String(),
			}
		}
		if err := writeCSV(opts.CSVPath, []string{"timestamp", "gas_price_gwei", "low_gwei", "high_gwei"}, records); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		x := make([]time.Time, len(points))
		price := make([]float64, len(points))
		low := make([]float64, len(points))
		high := make([]float64, len(points))
		for i, p := range points {
			x[i] = p.Timestamp
			price[i] = p.GasPrice.InexactFloat64()
			low[i] = p.Low.InexactFloat64()
			high[i] = p.High.InexactFloat64()
		}
		if err := writeChartPNG(opts.PNGPath, "Gas price (Gwei)", x, []chartSeries{
			{name: "Gas price", values: price},
			{name: "Low", values: low},
			{name: "High", values: high},
		}); err != nil {
			return err
		}
	}

	a.Logger.Debug().Str("range", string(rng)).Int("points", len(points)).Msg("history generated")
	return ctx.Err()
}
