package gasdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"gasflow/internal/fetcher"
)

// Options configures the gas data service.
type Options struct {
	APIKey             string
	MinRequestInterval time.Duration
	// Throttle overrides the per-service throttle so several services share one clock.
	Throttle    *Throttle
	Synthesizer *Synthesizer
	Seed        uint64
	Now         func() time.Time
}

// Service resolves gas and ETH prices, degrading to synthetic data on any failure.
type Service struct {
	oracle   fetcher.GasOracleFetcher
	prices   fetcher.EthPriceFetcher
	throttle *Throttle
	synth    *Synthesizer
	hasKey   bool
	now      func() time.Time
	logger   zerolog.Logger
}

// New builds a Service. oracle and prices may be nil, in which case every fetch is synthetic.
func New(opts Options, oracle fetcher.GasOracleFetcher, prices fetcher.EthPriceFetcher, logger zerolog.Logger) *Service {
	throttle := opts.Throttle
	if throttle == nil {
		throttle = NewThrottle(opts.MinRequestInterval)
	}
	synth := opts.Synthesizer
	if synth == nil {
		synth = NewSynthesizer(opts.Seed)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		oracle:   oracle,
		prices:   prices,
		throttle: throttle,
		synth:    synth,
		hasKey:   UsableAPIKey(opts.APIKey),
		now:      now,
		logger:   logger.With().Str("component", "gasdata").Logger(),
	}
}

// HasAPIKey reports whether a usable API key is configured.
func (s *Service) HasAPIKey() bool {
	return s.hasKey
}

// Status resolves the dashboard status from the most recent quote's status. An unusable key
// always reports NoAPIKey; before any fetch has resolved it reports MockData.
func (s *Service) Status(last Status) Status {
	if !s.hasKey {
		return StatusNoAPIKey
	}
	if last == "" {
		return StatusMockData
	}
	return last
}

// FetchGasPrices returns live oracle tiers when possible and a synthetic sample otherwise.
func (s *Service) FetchGasPrices(ctx context.Context) GasQuote {
	if !s.hasKey {
		return s.syntheticGas(StatusNoAPIKey, FailureNoAPIKey)
	}
	if s.oracle == nil {
		return s.syntheticGas(StatusMockData, FailureNoFetcher)
	}
	if err := ctx.Err(); err != nil {
		return s.syntheticGas(StatusMockData, Classify(err))
	}

	if _, err := s.throttle.Wait(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("throttle wait interrupted")
		return s.syntheticGas(StatusMockData, Classify(err))
	}

	oracle, err := s.oracle.FetchGasOracle(ctx)
	if err != nil {
		kind := Classify(err)
		s.logger.Warn().Err(err).Str("reason", string(kind)).Msg("gas oracle failed, using synthetic data")
		return s.syntheticGas(StatusMockData, kind)
	}

	sample := GasPriceSample{Safe: oracle.Safe, Propose: oracle.Propose, Fast: oracle.Fast}
	if !sample.Valid() {
		s.logger.Warn().Str("safe", oracle.Safe.String()).Msg("gas oracle returned negative tiers, using synthetic data")
		return s.syntheticGas(StatusMockData, FailureDecode)
	}

	s.logger.Debug().
		Str("safe", sample.Safe.String()).
		Str("propose", sample.Propose.String()).
		Str("fast", sample.Fast.String()).
		Str("block", oracle.LastBlock).
		Msg("gas oracle sample")

	return GasQuote{Sample: sample, Status: StatusLiveData, FetchedAt: s.now().UTC()}
}

// FetchEthPrice returns the live ETH/USD price when possible and a synthetic one otherwise.
func (s *Service) FetchEthPrice(ctx context.Context) EthQuote {
	if !s.hasKey {
		return s.syntheticEth(StatusNoAPIKey, FailureNoAPIKey)
	}
	if s.prices == nil {
		return s.syntheticEth(StatusMockData, FailureNoFetcher)
	}
	if err := ctx.Err(); err != nil {
		return s.syntheticEth(StatusMockData, Classify(err))
	}

	if _, err := s.throttle.Wait(ctx); err != nil {
		return s.syntheticEth(StatusMockData, Classify(err))
	}

	price, err := s.prices.FetchEthPrice(ctx)
	if err != nil {
		kind := Classify(err)
		s.logger.Warn().Err(err).Str("reason", string(kind)).Msg("eth price failed, using synthetic price")
		return s.syntheticEth(StatusMockData, kind)
	}

	return EthQuote{Price: price, Status: StatusLiveData, FetchedAt: s.now().UTC()}
}

func (s *Service) syntheticGas(status Status, reason FailureKind) GasQuote {
	return GasQuote{
		Sample:    s.synth.GasSample(),
		Status:    status,
		Reason:    reason,
		FetchedAt: s.now().UTC(),
	}
}

func (s *Service) syntheticEth(status Status, reason FailureKind) EthQuote {
	return EthQuote{
		Price:     s.synth.EthPrice(),
		Status:    status,
		Reason:    reason,
		FetchedAt: s.now().UTC(),
	}
}
