package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"gasflow/internal/calculator"
	"gasflow/internal/gasdata"
	"gasflow/internal/poller"
)

func writeSnapshot(w io.Writer, snap poller.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Status\t%s\n", snap.Status)
	fmt.Fprintf(tw, "Phase\t%s\n", snap.Phase)
	if snap.ErrorMessage != nil {
		fmt.Fprintf(tw, "Error\t%s\n", sanitizeInline(*snap.ErrorMessage))
	}
	if snap.Sample == nil {
		fmt.Fprintln(tw, "Gas\tno data")
		return tw.Flush()
	}

	online := snap.Status == gasdata.StatusLiveData
	network := calculator.NetworkStatusFor(snap.Sample.Propose, online)
	fmt.Fprintf(tw, "Slow\t%s Gwei\n", calculator.FormatGwei(snap.Sample.Safe))
	fmt.Fprintf(tw, "Standard\t%s Gwei (%s)\n", calculator.FormatGwei(snap.Sample.Propose), calculator.LevelFor(snap.Sample.Propose))
	fmt.Fprintf(tw, "Fast\t%s Gwei\n", calculator.FormatGwei(snap.Sample.Fast))
	fmt.Fprintf(tw, "Network\t%s: %s\n", network.Label, network.Description)
	if snap.EthPrice.Valid {
		fmt.Fprintf(tw, "ETH\t$%s (%s)\n", snap.EthPrice.Decimal.StringFixed(2), snap.EthStatus)
	}
	if snap.NetworkFees != nil {
		fmt.Fprintf(tw, "Block\t%d (base fee %s Gwei)\n", snap.NetworkFees.BlockNumber, calculator.FormatGwei(snap.NetworkFees.BaseFee))
	}
	if snap.Stats != nil {
		fmt.Fprintf(tw, "Trend\t%s%% over %d points (min %s, max %s, avg %s)\n",
			signed(snap.Stats.ChangePercent.Round(1)), len(snap.TimeSeries),
			calculator.FormatGwei(snap.Stats.Min), calculator.FormatGwei(snap.Stats.Max), calculator.FormatGwei(snap.Stats.Avg))
	}
	if snap.LastUpdatedAt != nil {
		fmt.Fprintf(tw, "Updated\t%s\n", snap.LastUpdatedAt.UTC().Format(time.RFC3339))
	}
	for _, note := range snap.Alerts {
		fmt.Fprintf(tw, "Alert\t%s\n", note.Message())
	}
	return tw.Flush()
}

func writeEstimate(w io.Writer, est calculator.Estimate) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Transaction\t%s (%d gas)\n", est.TxType.Label, est.GasLimit)
	fmt.Fprintf(tw, "ETH price\t$%s\n", est.EthPrice.StringFixed(2))
	fmt.Fprintln(tw, "Speed\tETH\tCost")
	for _, row := range []struct {
		name string
		cost calculator.Cost
	}{
		{"Slow", est.Slow},
		{"Standard", est.Standard},
		{"Fast", est.Fast},
	} {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", row.name, row.cost.ETH.StringFixed(6), est.Currency.Format(row.cost.Fiat))
	}
	return tw.Flush()
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.String()
	}
	return d.String()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
