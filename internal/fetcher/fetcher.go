package fetcher

import (
	"context"

	"github.com/shopspring/decimal"
)

// GasOracle is the oracle's three-tier answer in Gwei, parsed exactly from the response strings.
type GasOracle struct {
	Safe           decimal.Decimal
	Propose        decimal.Decimal
	Fast           decimal.Decimal
	LastBlock      string
	SuggestBaseFee decimal.Decimal
}

// NetworkFees are read directly from an Ethereum node, converted to Gwei.
type NetworkFees struct {
	BlockNumber uint64          `json:"block_number"`
	BaseFee     decimal.Decimal `json:"base_fee_gwei"`
	TipCap      decimal.Decimal `json:"tip_cap_gwei"`
	GasPrice    decimal.Decimal `json:"gas_price_gwei"`
}

// GasOracleFetcher retrieves the three gas price tiers.
type GasOracleFetcher interface {
	FetchGasOracle(ctx context.Context) (GasOracle, error)
}

// EthPriceFetcher retrieves the ETH/USD price.
type EthPriceFetcher interface {
	FetchEthPrice(ctx context.Context) (decimal.Decimal, error)
}

// NetworkFeeFetcher retrieves fee data from a node.
type NetworkFeeFetcher interface {
	FetchNetworkFees(ctx context.Context) (NetworkFees, error)
}
