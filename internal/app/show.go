package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"gasflow/internal/calculator"
)

// Show prints recent samples, newest first.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	rows, total, err := a.recentRows(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(a.out(), "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(a.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSlow\tStandard\tFast\tLevel\tETH\tStatus\tReason")
	for _, r := range rows {
		eth := "-"
		if r.EthUSD.Valid {
			eth = r.EthUSD.Decimal.StringFixed(2)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.At.UTC().Format(time.RFC3339),
			calculator.FormatGwei(r.Safe),
			calculator.FormatGwei(r.Propose),
			calculator.FormatGwei(r.Fast),
			calculator.LevelFor(r.Propose),
			eth,
			r.Status,
			sanitizeInline(r.Reason),
		)
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out(), "%d of %d samples\n", len(rows), total)
	return nil
}

func (a *App) recentRows(ctx context.Context, limit int) ([]sampleRow, int64, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, 0, err
	}
	if store != nil {
		defer closeStore()
		samples, err := store.ListRecentSamples(ctx, limit)
		if err != nil {
			return nil, 0, err
		}
		total, err := store.CountSamples(ctx)
		if err != nil {
			return nil, 0, err
		}
		return rowsFromSamples(samples), total, nil
	}

	points, err := a.cachedPoints(ctx)
	if err != nil {
		return nil, 0, err
	}
	rows := rowsFromPoints(points)
	total := int64(len(rows))
	// newest first, like the archive query
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, total, nil
}

// Prune deletes archived samples and alerts older than the retention window.
func (a *App) Prune(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return errors.New("retention must be positive")
	}
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; nothing to prune")
	}
	defer closeStore()

	cutoff := time.Now().UTC().Add(-olderThan)
	removed, err := store.DeleteSamplesBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if err := store.DeleteAlertsBefore(ctx, cutoff); err != nil {
		return err
	}
	a.Logger.Info().Time("cutoff", cutoff).Int64("samples_removed", removed).Msg("archive pruned")
	return nil
}
