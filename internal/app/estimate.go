package app

import (
	"context"

	"github.com/shopspring/decimal"

	"gasflow/internal/calculator"
)

// EstimateOptions select the transaction being priced.
type EstimateOptions struct {
	TxType   string
	GasLimit uint64
	Currency string
	EthPrice decimal.NullDecimal
}

// Estimate fetches the current tiers once and prints the cost of a transaction at each speed.
func (a *App) Estimate(ctx context.Context, opts EstimateOptions) error {
	if opts.Currency == "" {
		store, backend, err := a.openPrefs(ctx)
		if err != nil {
			return err
		}
		p, err := store.Load(ctx)
		_ = backend.Close()
		if err != nil {
			a.Logger.Warn().Err(err).Msg("preferences partially unreadable, defaults applied")
		}
		opts.Currency = p.Currency
	}

	svc := a.newGasService()
	quote := svc.FetchGasPrices(ctx)
	ethPrice := opts.EthPrice
	if !ethPrice.Valid {
		ethPrice = decimal.NewNullDecimal(svc.FetchEthPrice(ctx).Price)
	}
	if quote.Synthetic() {
		a.Logger.Warn().Str("status", string(quote.Status)).Str("reason", string(quote.Reason)).Msg("estimate uses synthetic gas prices")
	}

	est, err := calculator.EstimateCosts(calculator.EstimateInput{
		Safe:        quote.Sample.Safe,
		Propose:     quote.Sample.Propose,
		Fast:        quote.Sample.Fast,
		TxType:      opts.TxType,
		GasLimit:    opts.GasLimit,
		EthPriceUSD: ethPrice.Decimal,
		Currency:    opts.Currency,
	})
	if err != nil {
		return err
	}
	return writeEstimate(a.out(), est)
}
