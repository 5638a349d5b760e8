package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"gasflow/internal/history"
	"gasflow/internal/kvstore"
	"gasflow/internal/poller"
	"gasflow/internal/storage"
)

// sampleRow is one exported observation, from the archive or the cached chart buffer.
type sampleRow struct {
	At      time.Time
	Safe    decimal.Decimal
	Propose decimal.Decimal
	Fast    decimal.Decimal
	Status  string
	Reason  string
	EthUSD  decimal.NullDecimal
}

// Export renders recorded gas samples as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Poller.RefreshInterval)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	rows, err := a.loadRows(ctx, from, to)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.Logger.Info().Msg("no samples found for export window")
		return nil
	}

	downsampled := downsampleRows(rows, opts.MaxPoints)
	a.Logger.Info().Int("total", len(rows)).Int("exported", len(downsampled)).Msg("exporting samples")

	if opts.CSVPath != "" {
		if err := writeRowsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeRowsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}
	return nil
}

// loadRows reads the archive when a database is configured, otherwise the cached chart buffer.
func (a *App) loadRows(ctx context.Context, from, to time.Time) ([]sampleRow, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store != nil {
		defer closeStore()
		samples, err := store.ListSamplesBetween(ctx, from, to)
		if err != nil {
			return nil, err
		}
		return rowsFromSamples(samples), nil
	}

	a.Logger.Info().Msg("database not configured; exporting cached chart buffer")
	points, err := a.cachedPoints(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]sampleRow, 0, len(points))
	for _, p := range rowsFromPoints(points) {
		if p.At.Before(from) || !p.At.Before(to) {
			continue
		}
		rows = append(rows, p)
	}
	return rows, nil
}

func (a *App) cachedPoints(ctx context.Context) ([]history.Point, error) {
	backend, err := kvstore.Open(ctx, a.Config.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.Config.Store.Backend, err)
	}
	defer backend.Close()

	return kvstore.NewValue[[]history.Point](backend, poller.KeyChartData, nil).Get(ctx)
}

func rowsFromSamples(samples []storage.GasSample) []sampleRow {
	rows := make([]sampleRow, len(samples))
	for i, s := range samples {
		rows[i] = sampleRow{
			At:      s.ObservedAt,
			Safe:    s.Safe,
			Propose: s.Propose,
			Fast:    s.Fast,
			Status:  s.Status,
			Reason:  s.Reason,
			EthUSD:  s.EthPriceUSD,
		}
	}
	return rows
}

func rowsFromPoints(points []history.Point) []sampleRow {
	rows := make([]sampleRow, len(points))
	for i, p := range points {
		rows[i] = sampleRow{At: p.Timestamp, Safe: p.Safe, Propose: p.Propose, Fast: p.Fast}
	}
	return rows
}

func downsampleRows(rows []sampleRow, max int) []sampleRow {
	if max <= 0 || len(rows) <= max {
		return rows
	}
	if max == 1 {
		return rows[len(rows)-1:]
	}

	result := make([]sampleRow, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

func writeRowsCSV(path string, rows []sampleRow) error {
	records := make([][]string, len(rows))
	for i, r := range rows {
		eth := ""
		if r.EthUSD.Valid {
			eth = r.EthUSD.Decimal.StringFixed(2)
		}
		records[i] = []string{
			r.At.UTC().Format(time.RFC3339),
			r.Safe.String(),
			r.Propose.String(),
			r.Fast.String(),
			eth,
			r.Status,
			r.Reason,
		}
	}
	return writeCSV(path, []string{"observed_at", "slow_gwei", "standard_gwei", "fast_gwei", "eth_usd", "status", "reason"}, records)
}

func writeRowsPNG(path string, rows []sampleRow) error {
	x := make([]time.Time, len(rows))
	safe := make([]float64, len(rows))
	propose := make([]float64, len(rows))
	fast := make([]float64, len(rows))
	for i, r := range rows {
		x[i] = r.At
		safe[i] = r.Safe.InexactFloat64()
		propose[i] = r.Propose.InexactFloat64()
		fast[i] = r.Fast.InexactFloat64()
	}
	return writeChartPNG(path, "Gas price (Gwei)", x, []chartSeries{
		{name: "Slow", values: safe},
		{name: "Standard", values: propose},
		{name: "Fast", values: fast},
	})
}

type chartSeries struct {
	name   string
	values []float64
}

func writeChartPNG(path, yName string, x []time.Time, series []chartSeries) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	gweiFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           yName,
			ValueFormatter: gweiFormatter,
		},
	}
	for _, s := range series {
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name:    s.name,
			XValues: x,
			YValues: s.values,
		})
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func writeCSV(path string, header []string, records [][]string) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writer.WriteAll(records); err != nil {
		return err
	}
	return writer.Error()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
