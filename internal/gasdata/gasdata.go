// Package gasdata produces gas price and ETH price samples from the oracle, falling back to
// synthetic values whenever the oracle is unconfigured or fails. Callers never see an error:
// every fetch resolves to a quote tagged with its provenance.
package gasdata

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gasflow/internal/config"
	"gasflow/internal/fetcher"
)

// GasPriceSample is one observation of the three fee tiers, in Gwei.
type GasPriceSample struct {
	Safe    decimal.Decimal `json:"safe"`
	Propose decimal.Decimal `json:"propose"`
	Fast    decimal.Decimal `json:"fast"`
}

// Valid reports whether every tier is a non-negative number.
func (s GasPriceSample) Valid() bool {
	return !s.Safe.IsNegative() && !s.Propose.IsNegative() && !s.Fast.IsNegative()
}

// Status discloses data provenance to the presentation layer.
type Status string

const (
	StatusNoAPIKey Status = "no-api-key"
	StatusMockData Status = "mock-data"
	StatusLiveData Status = "live-data"
)

// FailureKind classifies why a fetch fell back to synthetic data.
type FailureKind string

const (
	FailureNone          FailureKind = ""
	FailureNoAPIKey      FailureKind = "no_api_key"
	FailureNoFetcher     FailureKind = "no_fetcher"
	FailureCanceled      FailureKind = "canceled"
	FailureTransport     FailureKind = "transport"
	FailureHTTPStatus    FailureKind = "http_status"
	FailureDecode        FailureKind = "decode"
	FailureInvalidAPIKey FailureKind = "invalid_api_key"
	FailureRateLimited   FailureKind = "rate_limited"
	FailureAPIError      FailureKind = "api_error"
)

// GasQuote is a gas sample together with where it came from.
type GasQuote struct {
	Sample    GasPriceSample `json:"sample"`
	Status    Status         `json:"status"`
	Reason    FailureKind    `json:"reason,omitempty"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// Synthetic reports whether the sample was generated locally.
func (q GasQuote) Synthetic() bool {
	return q.Status != StatusLiveData
}

// EthQuote is an ETH/USD price together with where it came from.
type EthQuote struct {
	Price     decimal.Decimal `json:"price"`
	Status    Status          `json:"status"`
	Reason    FailureKind     `json:"reason,omitempty"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// UsableAPIKey reports whether key is present and not the shipped placeholder.
func UsableAPIKey(key string) bool {
	key = strings.TrimSpace(key)
	return key != "" && key != config.PlaceholderAPIKey
}

// Classify maps a fetcher error onto a FailureKind.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}

	var (
		apiErr    *fetcher.APIError
		statusErr *fetcher.HTTPStatusError
		decodeErr *fetcher.DecodeError
	)

	switch {
	case errors.Is(err, fetcher.ErrInvalidAPIKey):
		return FailureInvalidAPIKey
	case errors.Is(err, fetcher.ErrRateLimited):
		return FailureRateLimited
	case errors.As(err, &apiErr):
		return FailureAPIError
	case errors.As(err, &statusErr):
		return FailureHTTPStatus
	case errors.As(err, &decodeErr):
		return FailureDecode
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	default:
		return FailureTransport
	}
}
