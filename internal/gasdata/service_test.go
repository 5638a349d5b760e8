package gasdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gasflow/internal/config"
	"gasflow/internal/fetcher"
)

type fakeOracle struct {
	mu    sync.Mutex
	calls int
	resp  fetcher.GasOracle
	err   error
}

func (f *fakeOracle) FetchGasOracle(ctx context.Context) (fetcher.GasOracle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.resp, f.err
}

type fakePrices struct {
	price decimal.Decimal
	err   error
}

func (f fakePrices) FetchEthPrice(ctx context.Context) (decimal.Decimal, error) {
	return f.price, f.err
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestService(key string, oracle fetcher.GasOracleFetcher, prices fetcher.EthPriceFetcher, clock *fakeClock) *Service {
	return New(Options{
		APIKey:      key,
		Throttle:    NewThrottleWithClock(5*time.Second, clock.Now, clock.Sleep),
		Synthesizer: NewSynthesizer(42),
		Now:         clock.Now,
	}, oracle, prices, zerolog.Nop())
}

func inRange(d decimal.Decimal, lo, hi int64) bool {
	return d.GreaterThanOrEqual(decimal.NewFromInt(lo)) && d.LessThanOrEqual(decimal.NewFromInt(hi))
}

func TestFetchGasPricesWithoutKey(t *testing.T) {
	for _, key := range []string{"", "   ", config.PlaceholderAPIKey} {
		oracle := &fakeOracle{}
		clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
		svc := newTestService(key, oracle, nil, clock)

		quote := svc.FetchGasPrices(context.Background())
		if quote.Status != StatusNoAPIKey || quote.Reason != FailureNoAPIKey {
			t.Fatalf("key %q: status=%s reason=%s", key, quote.Status, quote.Reason)
		}
		if oracle.calls != 0 {
			t.Fatalf("key %q: 无密钥时不应访问远端", key)
		}
		s := quote.Sample
		if !inRange(s.Safe, 1, 70) || !inRange(s.Propose, 1, 70) || !inRange(s.Fast, 1, 70) {
			t.Fatalf("模拟数据越界: %+v", s)
		}
	}
}

func TestFetchGasPricesLiveDataPreservesValues(t *testing.T) {
	oracle := &fakeOracle{resp: fetcher.GasOracle{
		Safe:    decimal.NewFromInt(10),
		Propose: decimal.NewFromInt(20),
		Fast:    decimal.NewFromInt(30),
	}}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService("real-key", oracle, nil, clock)

	quote := svc.FetchGasPrices(context.Background())
	if quote.Status != StatusLiveData || quote.Synthetic() {
		t.Fatalf("应为实时数据: %+v", quote)
	}
	if !quote.Sample.Safe.Equal(decimal.NewFromInt(10)) || !quote.Sample.Propose.Equal(decimal.NewFromInt(20)) || !quote.Sample.Fast.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("数值不应被修改: %+v", quote.Sample)
	}
	if !quote.FetchedAt.Equal(clock.Now()) {
		t.Fatalf("fetched_at=%s", quote.FetchedAt)
	}
}

func TestFetchGasPricesFallsBackOnFailure(t *testing.T) {
	cases := []struct {
		err  error
		kind FailureKind
	}{
		{errors.New("connection refused"), FailureTransport},
		{&fetcher.HTTPStatusError{StatusCode: 500}, FailureHTTPStatus},
		{&fetcher.DecodeError{Err: errors.New("bad json")}, FailureDecode},
		{fmt.Errorf("wrapped: %w", fetcher.ErrInvalidAPIKey), FailureInvalidAPIKey},
		{fmt.Errorf("wrapped: %w", fetcher.ErrRateLimited), FailureRateLimited},
		{&fetcher.APIError{Message: "NOTOK", Result: "other"}, FailureAPIError},
	}

	for _, tc := range cases {
		oracle := &fakeOracle{err: tc.err}
		clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
		svc := newTestService("real-key", oracle, nil, clock)

		quote := svc.FetchGasPrices(context.Background())
		if quote.Status != StatusMockData || quote.Reason != tc.kind {
			t.Fatalf("%v: status=%s reason=%s", tc.err, quote.Status, quote.Reason)
		}
		if !quote.Sample.Valid() || quote.Sample.Safe.LessThan(decimal.NewFromInt(1)) {
			t.Fatalf("%v: 模拟数据非法 %+v", tc.err, quote.Sample)
		}
	}
}

func TestFetchGasPricesRejectsNegativeTiers(t *testing.T) {
	oracle := &fakeOracle{resp: fetcher.GasOracle{Safe: decimal.NewFromInt(-1), Propose: decimal.NewFromInt(2), Fast: decimal.NewFromInt(3)}}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService("real-key", oracle, nil, clock)

	quote := svc.FetchGasPrices(context.Background())
	if quote.Status != StatusMockData || quote.Reason != FailureDecode {
		t.Fatalf("负值应降级: %+v", quote)
	}
}

func TestFetchGasPricesCanceledContext(t *testing.T) {
	oracle := &fakeOracle{resp: fetcher.GasOracle{Safe: decimal.NewFromInt(1), Propose: decimal.NewFromInt(2), Fast: decimal.NewFromInt(3)}}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService("real-key", oracle, nil, clock)

	// first call reserves the slot so the second one has to wait
	svc.FetchGasPrices(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	quote := svc.FetchGasPrices(ctx)
	if quote.Status != StatusMockData || quote.Reason != FailureCanceled {
		t.Fatalf("取消后应降级: %+v", quote)
	}
	if oracle.calls != 1 {
		t.Fatalf("取消后不应访问远端, calls=%d", oracle.calls)
	}
}

func TestFetchGasPricesRespectsThrottle(t *testing.T) {
	oracle := &fakeOracle{resp: fetcher.GasOracle{Safe: decimal.NewFromInt(1), Propose: decimal.NewFromInt(2), Fast: decimal.NewFromInt(3)}}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService("real-key", oracle, nil, clock)

	first := svc.FetchGasPrices(context.Background())
	second := svc.FetchGasPrices(context.Background())
	if gap := second.FetchedAt.Sub(first.FetchedAt); gap < 5*time.Second {
		t.Fatalf("两次请求间隔 %s 小于最小间隔", gap)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != 5*time.Second {
		t.Fatalf("sleeps=%v", clock.sleeps)
	}
}

func TestFetchEthPrice(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	live := newTestService("real-key", nil, fakePrices{price: decimal.RequireFromString("2345.67")}, clock).FetchEthPrice(context.Background())
	if live.Status != StatusLiveData || !live.Price.Equal(decimal.RequireFromString("2345.67")) {
		t.Fatalf("live=%+v", live)
	}

	failed := newTestService("real-key", nil, fakePrices{err: errors.New("boom")}, clock).FetchEthPrice(context.Background())
	if failed.Status != StatusMockData || !inRange(failed.Price, 2000, 2500) {
		t.Fatalf("failed=%+v", failed)
	}

	noKey := newTestService("", nil, fakePrices{price: decimal.NewFromInt(1)}, clock).FetchEthPrice(context.Background())
	if noKey.Status != StatusNoAPIKey {
		t.Fatalf("noKey=%+v", noKey)
	}
}

func TestSharedThrottleAcrossServices(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	throttle := NewThrottleWithClock(5*time.Second, clock.Now, clock.Sleep)
	oracle := &fakeOracle{resp: fetcher.GasOracle{Safe: decimal.NewFromInt(1), Propose: decimal.NewFromInt(2), Fast: decimal.NewFromInt(3)}}

	a := New(Options{APIKey: "k", Throttle: throttle, Now: clock.Now}, oracle, nil, zerolog.Nop())
	b := New(Options{APIKey: "k", Throttle: throttle, Now: clock.Now}, oracle, nil, zerolog.Nop())

	first := a.FetchGasPrices(context.Background())
	second := b.FetchGasPrices(context.Background())
	if second.FetchedAt.Sub(first.FetchedAt) < 5*time.Second {
		t.Fatal("共享节流器应跨实例生效")
	}
}

func TestServiceStatus(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	noKey := newTestService("", nil, nil, clock)
	if got := noKey.Status(StatusLiveData); got != StatusNoAPIKey {
		t.Fatalf("无密钥应始终为 no-api-key, 实际 %s", got)
	}

	keyed := newTestService("real-key", nil, nil, clock)
	if got := keyed.Status(""); got != StatusMockData {
		t.Fatalf("尚未取数时应为 mock-data, 实际 %s", got)
	}
	if got := keyed.Status(StatusLiveData); got != StatusLiveData {
		t.Fatalf("got %s", got)
	}
}

func TestKeyWithoutFetcherIsMockData(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	svc := newTestService("real-key", nil, nil, clock)
	if !svc.HasAPIKey() {
		t.Fatal("密钥可用")
	}

	gas := svc.FetchGasPrices(context.Background())
	if gas.Status != StatusMockData || gas.Reason != FailureNoFetcher {
		t.Fatalf("有密钥但无 fetcher 应为 mock-data/no_fetcher: %+v", gas)
	}
	eth := svc.FetchEthPrice(context.Background())
	if eth.Status != StatusMockData || eth.Reason != FailureNoFetcher {
		t.Fatalf("eth: %+v", eth)
	}
}
