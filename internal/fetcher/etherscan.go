package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gasflow/internal/version"
)

const (
	defaultEtherscanURL = "https://api.etherscan.io/api"
	maxErrorBody        = 512
)

// EtherscanOptions parameterise the oracle client.
type EtherscanOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
	Client    *http.Client
}

// Etherscan queries an Etherscan-compatible oracle for gas tiers and the ETH price.
type Etherscan struct {
	opts    EtherscanOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewEtherscan constructs an oracle client.
func NewEtherscan(opts EtherscanOptions, logger zerolog.Logger) *Etherscan {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = defaultEtherscanURL
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Etherscan{
		opts:    opts,
		logger:  logger.With().Str("component", "oracle_fetcher").Logger(),
		client:  client,
		baseURL: baseURL,
	}
}

// FetchGasOracle calls module=gastracker&action=gasoracle.
func (e *Etherscan) FetchGasOracle(ctx context.Context) (GasOracle, error) {
	var result gasOracleResult
	if err := e.call(ctx, "gastracker", "gasoracle", &result); err != nil {
		return GasOracle{}, err
	}

	safe, err := parseGwei("SafeGasPrice", result.SafeGasPrice)
	if err != nil {
		return GasOracle{}, err
	}
	propose, err := parseGwei("ProposeGasPrice", result.ProposeGasPrice)
	if err != nil {
		return GasOracle{}, err
	}
	fast, err := parseGwei("FastGasPrice", result.FastGasPrice)
	if err != nil {
		return GasOracle{}, err
	}

	oracle := GasOracle{Safe: safe, Propose: propose, Fast: fast, LastBlock: result.LastBlock}
	if result.SuggestBaseFee != "" {
		if base, err := decimal.NewFromString(result.SuggestBaseFee); err == nil {
			oracle.SuggestBaseFee = base
		}
	}
	return oracle, nil
}

// FetchEthPrice calls module=stats&action=ethprice and returns result.ethusd.
func (e *Etherscan) FetchEthPrice(ctx context.Context) (decimal.Decimal, error) {
	var result ethPriceResult
	if err := e.call(ctx, "stats", "ethprice", &result); err != nil {
		return decimal.Decimal{}, err
	}

	price, err := decimal.NewFromString(strings.TrimSpace(result.EthUSD))
	if err != nil {
		return decimal.Decimal{}, &DecodeError{Err: fmt.Errorf("parse ethusd %q: %w", result.EthUSD, err)}
	}
	if price.Sign() <= 0 {
		return decimal.Decimal{}, &DecodeError{Err: fmt.Errorf("ethusd must be positive, got %s", price)}
	}
	return price, nil
}

func (e *Etherscan) call(ctx context.Context, module, action string, out any) error {
	endpoint, err := e.endpoint(module, action)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create oracle request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(e.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", version.UserAgent())
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send oracle request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read oracle response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPStatusError{StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(payload)), maxErrorBody)}
	}

	var envelope oracleEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return &DecodeError{Err: err}
	}

	if envelope.Status != "1" {
		return newAPIError(envelope.Message, resultText(envelope.Result))
	}

	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return &DecodeError{Err: fmt.Errorf("%s/%s result: %w", module, action, err)}
	}

	e.logger.Debug().Str("module", module).Str("action", action).Msg("oracle response received")
	return nil
}

func (e *Etherscan) endpoint(module, action string) (string, error) {
	u, err := url.Parse(e.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse oracle base url: %w", err)
	}
	q := u.Query()
	q.Set("module", module)
	q.Set("action", action)
	q.Set("apikey", e.opts.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type oracleEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type gasOracleResult struct {
	LastBlock       string `json:"LastBlock"`
	SafeGasPrice    string `json:"SafeGasPrice"`
	ProposeGasPrice string `json:"ProposeGasPrice"`
	FastGasPrice    string `json:"FastGasPrice"`
	SuggestBaseFee  string `json:"suggestBaseFee"`
}

type ethPriceResult struct {
	EthUSD string `json:"ethusd"`
}

func parseGwei(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, &DecodeError{Err: fmt.Errorf("%s missing", field)}
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, &DecodeError{Err: fmt.Errorf("parse %s %q: %w", field, raw, err)}
	}
	if v.IsNegative() {
		return decimal.Decimal{}, &DecodeError{Err: errors.New(field + " is negative")}
	}
	return v, nil
}

// resultText renders the error-shaped `result` field, which is usually a bare string.
func resultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return truncate(string(raw), maxErrorBody)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var (
	_ GasOracleFetcher = (*Etherscan)(nil)
	_ EthPriceFetcher  = (*Etherscan)(nil)
)
