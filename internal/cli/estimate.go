package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"gasflow/internal/app"
)

var (
	estimateTx       string
	estimateGasLimit uint64
	estimateCurrency string
	estimateEthPrice string
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate transaction cost at slow, standard and fast gas prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.EstimateOptions{
			TxType:   estimateTx,
			GasLimit: estimateGasLimit,
			Currency: estimateCurrency,
		}
		if estimateEthPrice != "" {
			price, err := decimal.NewFromString(estimateEthPrice)
			if err != nil || !price.IsPositive() {
				return fmt.Errorf("invalid --eth-price value %q", estimateEthPrice)
			}
			opts.EthPrice = decimal.NewNullDecimal(price)
		}
		return getApp().Estimate(cmd.Context(), opts)
	},
}

func init() {
	estimateCmd.Flags().StringVar(&estimateTx, "tx", "SIMPLE_TRANSFER", "Transaction type (see the tx-types list)")
	estimateCmd.Flags().Uint64Var(&estimateGasLimit, "gas-limit", 0, "Override the gas limit of the transaction type")
	estimateCmd.Flags().StringVar(&estimateCurrency, "currency", "", "Fiat currency (defaults to the stored preference)")
	estimateCmd.Flags().StringVar(&estimateEthPrice, "eth-price", "", "ETH price in USD (defaults to the live quote)")
}
