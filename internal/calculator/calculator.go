// Package calculator holds the static fee tables and the arithmetic the dashboard shows next to
// live samples: gas level, network status and per-transaction cost estimates.
package calculator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/params"
	"github.com/shopspring/decimal"
)

// Level buckets a proposed gas price.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

var (
	lowCeiling    = decimal.NewFromInt(20)
	mediumCeiling = decimal.NewFromInt(50)

	// gweiPerEth is 1e9, derived from the go-ethereum unit constants.
	gweiPerEth = decimal.NewFromInt(params.Ether / params.GWei)
)

// LevelFor classifies a Gwei price: <= 20 low, <= 50 medium, otherwise high.
func LevelFor(gwei decimal.Decimal) Level {
	switch {
	case gwei.LessThanOrEqual(lowCeiling):
		return LevelLow
	case gwei.LessThanOrEqual(mediumCeiling):
		return LevelMedium
	default:
		return LevelHigh
	}
}

// NetworkStatus is the human label derived from the gas level.
type NetworkStatus struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// NetworkStatusFor maps the proposed price onto a status label.
func NetworkStatusFor(gwei decimal.Decimal, online bool) NetworkStatus {
	if !online {
		return NetworkStatus{Label: "Offline", Description: "No connection"}
	}
	switch LevelFor(gwei) {
	case LevelLow:
		return NetworkStatus{Label: "Optimal", Description: "Great time to transact"}
	case LevelMedium:
		return NetworkStatus{Label: "Moderate", Description: "Normal network activity"}
	default:
		return NetworkStatus{Label: "Congested", Description: "High network congestion"}
	}
}

// TxType is a preset gas limit for a common transaction.
type TxType struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	GasLimit    uint64 `json:"gas_limit"`
	Description string `json:"description"`
}

var txTypes = []TxType{
	{Key: "SIMPLE_TRANSFER", Label: "ETH Transfer", GasLimit: 21000, Description: "Basic ETH send"},
	{Key: "ERC20_TRANSFER", Label: "Token Transfer", GasLimit: 65000, Description: "ERC-20 token send"},
	{Key: "CONTRACT_INTERACTION", Label: "Smart Contract", GasLimit: 150000, Description: "Contract interaction"},
	{Key: "NFT_MINTING", Label: "NFT Mint", GasLimit: 200000, Description: "Mint NFT"},
	{Key: "UNISWAP_SWAP", Label: "DEX Swap", GasLimit: 180000, Description: "Token swap"},
	{Key: "NFT_TRANSFER", Label: "NFT Transfer", GasLimit: 85000, Description: "Transfer NFT"},
	{Key: "DEFI_STAKE", Label: "DeFi Staking", GasLimit: 220000, Description: "Stake tokens"},
	{Key: "MULTI_SEND", Label: "Batch Transfer", GasLimit: 300000, Description: "Multiple transfers"},
}

// TxTypes returns the preset table in display order.
func TxTypes() []TxType {
	out := make([]TxType, len(txTypes))
	copy(out, txTypes)
	return out
}

// LookupTxType finds a preset by key (case-insensitive).
func LookupTxType(key string) (TxType, bool) {
	for _, t := range txTypes {
		if strings.EqualFold(t.Key, key) {
			return t, true
		}
	}
	return TxType{}, false
}

// Cost is the price of one transaction at a given tier.
type Cost struct {
	ETH  decimal.Decimal `json:"eth"`
	USD  decimal.Decimal `json:"usd"`
	Fiat decimal.Decimal `json:"fiat"`
}

// CostOf computes gwei * gasLimit / 1e9 ETH and its USD value.
func CostOf(gwei decimal.Decimal, gasLimit uint64, ethPriceUSD decimal.Decimal) Cost {
	eth := gwei.Mul(decimal.NewFromInt(int64(gasLimit))).Div(gweiPerEth)
	usd := eth.Mul(ethPriceUSD)
	return Cost{ETH: eth, USD: usd, Fiat: usd}
}

// Estimate holds the three tier costs for one transaction type in one currency.
type Estimate struct {
	TxType   TxType          `json:"tx_type"`
	GasLimit uint64          `json:"gas_limit"`
	EthPrice decimal.Decimal `json:"eth_price_usd"`
	Currency Currency        `json:"currency"`
	Slow     Cost            `json:"slow"`
	Standard Cost            `json:"standard"`
	Fast     Cost            `json:"fast"`
}

// EstimateInput parameterises Estimate. GasLimit overrides the preset when non-zero.
type EstimateInput struct {
	Safe, Propose, Fast decimal.Decimal
	TxType              string
	GasLimit            uint64
	EthPriceUSD         decimal.Decimal
	Currency            string
}

// EstimateCosts prices a transaction at all three tiers.
func EstimateCosts(in EstimateInput) (Estimate, error) {
	key := in.TxType
	if key == "" {
		key = "SIMPLE_TRANSFER"
	}
	tx, ok := LookupTxType(key)
	if !ok {
		return Estimate{}, fmt.Errorf("unknown transaction type %q", in.TxType)
	}
	limit := tx.GasLimit
	if in.GasLimit > 0 {
		limit = in.GasLimit
	}
	if in.EthPriceUSD.Sign() <= 0 {
		return Estimate{}, fmt.Errorf("eth price must be positive")
	}

	cur, ok := LookupCurrency(in.Currency)
	if !ok {
		return Estimate{}, fmt.Errorf("unknown currency %q", in.Currency)
	}

	tier := func(gwei decimal.Decimal) Cost {
		c := CostOf(gwei, limit, in.EthPriceUSD)
		c.Fiat = cur.FromUSD(c.USD)
		return c
	}

	return Estimate{
		TxType:   tx,
		GasLimit: limit,
		EthPrice: in.EthPriceUSD,
		Currency: cur,
		Slow:     tier(in.Safe),
		Standard: tier(in.Propose),
		Fast:     tier(in.Fast),
	}, nil
}

// FormatGwei renders a Gwei value with one decimal place.
func FormatGwei(gwei decimal.Decimal) string {
	return gwei.StringFixed(1)
}

// Currency is a display currency with a fixed USD conversion rate.
type Currency struct {
	Code   string          `json:"code"`
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Rate   decimal.Decimal `json:"rate"`
}

var currencies = map[string]Currency{
	"USD": {Code: "USD", Symbol: "$", Name: "US Dollar", Rate: decimal.NewFromInt(1)},
	"EUR": {Code: "EUR", Symbol: "€", Name: "Euro", Rate: decimal.RequireFromString("0.85")},
	"GBP": {Code: "GBP", Symbol: "£", Name: "British Pound", Rate: decimal.RequireFromString("0.73")},
	"NGN": {Code: "NGN", Symbol: "₦", Name: "Nigerian Naira", Rate: decimal.NewFromInt(1650)},
	"JPY": {Code: "JPY", Symbol: "¥", Name: "Japanese Yen", Rate: decimal.NewFromInt(150)},
	"CAD": {Code: "CAD", Symbol: "C$", Name: "Canadian Dollar", Rate: decimal.RequireFromString("1.35")},
	"AUD": {Code: "AUD", Symbol: "A$", Name: "Australian Dollar", Rate: decimal.RequireFromString("1.55")},
}

var currencyOrder = []string{"USD", "EUR", "GBP", "NGN", "JPY", "CAD", "AUD"}

// Currencies returns the supported currencies in display order.
func Currencies() []Currency {
	out := make([]Currency, 0, len(currencyOrder))
	for _, code := range currencyOrder {
		out = append(out, currencies[code])
	}
	return out
}

// CurrencyCodes returns the supported codes sorted alphabetically.
func CurrencyCodes() []string {
	codes := make([]string, 0, len(currencies))
	for code := range currencies {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// LookupCurrency finds a currency by ISO code (case-insensitive).
func LookupCurrency(code string) (Currency, bool) {
	c, ok := currencies[strings.ToUpper(strings.TrimSpace(code))]
	return c, ok
}

// FromUSD converts a USD amount into this currency.
func (c Currency) FromUSD(usd decimal.Decimal) decimal.Decimal {
	return usd.Mul(c.Rate)
}

// Format renders an amount with the currency symbol and two decimals.
func (c Currency) Format(amount decimal.Decimal) string {
	return c.Symbol + amount.StringFixed(2)
}
