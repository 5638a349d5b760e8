// Package poller drives periodic gas data refreshes, keeps the rolling time series and exposes
// the snapshot the presentation layer renders.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gasflow/internal/alerting"
	"gasflow/internal/fetcher"
	"gasflow/internal/gasdata"
	"gasflow/internal/history"
	"gasflow/internal/kvstore"
	"gasflow/internal/prefs"
	"gasflow/internal/scheduler"
	"gasflow/internal/storage"
)

// Durable cache keys.
const (
	KeyLastData  = "gasflow-last-data"
	KeyChartData = "gasflow-chart-data"
)

// FailedMessage is shown once every attempt of a cycle has failed.
const FailedMessage = "Unable to fetch gas data. Please check your connection and try again."

// ErrInFlight is returned by Refresh when a cycle is already running.
var ErrInFlight = errors.New("poller: refresh already in flight")

// Phase is the controller state.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseLoading  Phase = "loading"
	PhaseReady    Phase = "ready"
	PhaseRetrying Phase = "retrying"
	PhaseFailed   Phase = "failed"
)

// RetryMessage is shown while attempt n of total has failed and another is pending.
func RetryMessage(n, total int) string {
	return fmt.Sprintf("Connection issue. Retrying... (%d/%d)", n, total)
}

// GasSource yields gas quotes. The gas data service never fails, but the controller tolerates
// sources that do.
type GasSource interface {
	FetchGasPrices(ctx context.Context) (gasdata.GasQuote, error)
}

// EthSource yields ETH/USD quotes.
type EthSource interface {
	FetchEthPrice(ctx context.Context) (gasdata.EthQuote, error)
}

// ServiceSource adapts *gasdata.Service to GasSource and EthSource.
type ServiceSource struct {
	Service *gasdata.Service
}

func (s ServiceSource) FetchGasPrices(ctx context.Context) (gasdata.GasQuote, error) {
	return s.Service.FetchGasPrices(ctx), nil
}

func (s ServiceSource) FetchEthPrice(ctx context.Context) (gasdata.EthQuote, error) {
	return s.Service.FetchEthPrice(ctx), nil
}

// PreferenceReader supplies the user preferences consulted on each tick.
type PreferenceReader interface {
	Load(ctx context.Context) (prefs.Preferences, error)
	AutoRefreshEnabled(ctx context.Context) (bool, error)
}

// CachedSample is the persisted form of the latest sample.
type CachedSample struct {
	GasData   gasdata.GasPriceSample `json:"gasData"`
	Status    gasdata.Status         `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
}

// Options tune the controller.
type Options struct {
	RefreshInterval time.Duration
	HistorySize     int
	MaxRetries      int
	RetryDelay      time.Duration
	TrackEthPrice   bool
	// AlignToInterval and StartupDelay shape the timer started by Start.
	AlignToInterval bool
	StartupDelay    time.Duration

	Now          func() time.Time
	Sleep        func(ctx context.Context, d time.Duration) error
	OnTransition func(from, to Phase)
}

// Deps are the collaborators. Only Gas is required.
type Deps struct {
	Gas     GasSource
	Eth     EthSource
	Fees    fetcher.NetworkFeeFetcher
	Prefs   PreferenceReader
	Cache   kvstore.Backend
	Alerts  *alerting.Monitor
	Archive storage.GasSampleStore
}

// Snapshot is the presentation-facing view of the controller.
type Snapshot struct {
	Sample        *gasdata.GasPriceSample `json:"sample"`
	Status        gasdata.Status          `json:"status"`
	Reason        gasdata.FailureKind     `json:"reason,omitempty"`
	EthPrice      decimal.NullDecimal     `json:"eth_price"`
	EthStatus     gasdata.Status          `json:"eth_status,omitempty"`
	NetworkFees   *fetcher.NetworkFees    `json:"network_fees,omitempty"`
	TimeSeries    []history.Point         `json:"time_series"`
	Stats         *history.Stats          `json:"stats,omitempty"`
	Alerts        []alerting.Notification `json:"alerts,omitempty"`
	IsLoading     bool                    `json:"is_loading"`
	Phase         Phase                   `json:"phase"`
	ErrorMessage  *string                 `json:"error_message"`
	LastUpdatedAt *time.Time              `json:"last_updated_at"`
	RetryCount    int                     `json:"retry_count"`
}

// Controller is the polling state machine.
type Controller struct {
	opts   Options
	deps   Deps
	logger zerolog.Logger

	lastData  *kvstore.Value[CachedSample]
	chartData *kvstore.Value[[]history.Point]

	inFlight atomic.Bool

	mu          sync.RWMutex
	phase       Phase
	sample      *gasdata.GasPriceSample
	status      gasdata.Status
	reason      gasdata.FailureKind
	ethPrice    decimal.NullDecimal
	ethStatus   gasdata.Status
	fees        *fetcher.NetworkFees
	buffer      *history.Buffer
	errMessage  *string
	lastUpdated *time.Time
	retryCount  int

	subMu  sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
}

// New builds a controller and restores the cached sample and series from deps.Cache.
func New(ctx context.Context, opts Options, deps Deps, logger zerolog.Logger) (*Controller, error) {
	if deps.Gas == nil {
		return nil, fmt.Errorf("poller: gas source is required")
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 15 * time.Second
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = history.DefaultSize
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if deps.Cache == nil {
		deps.Cache = kvstore.NewMemory()
	}

	c := &Controller{
		opts:      opts,
		deps:      deps,
		logger:    logger.With().Str("component", "poller").Logger(),
		lastData:  kvstore.NewValue(deps.Cache, KeyLastData, CachedSample{}),
		chartData: kvstore.NewValue[[]history.Point](deps.Cache, KeyChartData, nil),
		phase:     PhaseIdle,
		buffer:    history.NewBuffer(opts.HistorySize),
		subs:      make(map[int]chan Snapshot),
	}
	c.restore(ctx)
	return c, nil
}

func (c *Controller) restore(ctx context.Context) {
	cached, ok, err := c.lastData.Lookup(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to restore cached sample")
	} else if ok {
		sample := cached.GasData
		ts := cached.Timestamp
		c.sample = &sample
		c.status = cached.Status
		c.lastUpdated = &ts
	}

	points, err := c.chartData.Get(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to restore cached time series")
		return
	}
	c.buffer.Restore(points)
	c.logger.Debug().Bool("sample", c.sample != nil).Int("points", c.buffer.Len()).Msg("restored cache")
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:     c.status,
		Reason:     c.reason,
		EthPrice:   c.ethPrice,
		EthStatus:  c.ethStatus,
		TimeSeries: c.buffer.Points(),
		IsLoading:  c.phase == PhaseLoading,
		Phase:      c.phase,
		RetryCount: c.retryCount,
	}
	if c.sample != nil {
		s := *c.sample
		snap.Sample = &s
	}
	if c.fees != nil {
		f := *c.fees
		snap.NetworkFees = &f
	}
	if c.errMessage != nil {
		m := *c.errMessage
		snap.ErrorMessage = &m
	}
	if c.lastUpdated != nil {
		t := *c.lastUpdated
		snap.LastUpdatedAt = &t
	}
	if st, ok := history.Summarize(c.buffer.ProposeSeries()); ok {
		snap.Stats = &st
	}
	if c.deps.Alerts != nil {
		snap.Alerts = c.deps.Alerts.Recent()
	}
	return snap
}

// Phase returns the current state.
func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Refresh runs one cycle now, from any phase including Failed. It returns ErrInFlight when a
// cycle is already running.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.cycle(ctx)
}

// Tick is the timer path. It does nothing while Failed, while auto-refresh is disabled, or
// while another cycle is running.
func (c *Controller) Tick(ctx context.Context) error {
	if c.Phase() == PhaseFailed {
		c.logger.Debug().Msg("skip tick: waiting for explicit refresh")
		return nil
	}
	if c.deps.Prefs != nil {
		on, err := c.deps.Prefs.AutoRefreshEnabled(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to read auto refresh preference")
		}
		if !on {
			c.logger.Debug().Msg("skip tick: auto refresh disabled")
			return nil
		}
	}

	err := c.cycle(ctx)
	if errors.Is(err, ErrInFlight) {
		c.logger.Debug().Msg("skip tick: cycle in flight")
		return nil
	}
	return err
}

// Start runs one cycle immediately and then ticks every RefreshInterval until the task is stopped.
func (c *Controller) Start(ctx context.Context) *scheduler.Task {
	sched := scheduler.New(c.schedulerOptions(), c.logger)
	first := true
	return sched.Start(ctx, func(ctx context.Context, _ time.Time) error {
		if first {
			first = false
			if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrInFlight) {
				return err
			}
			return nil
		}
		return c.Tick(ctx)
	})
}

// DismissAlert removes a retained alert and notifies subscribers. It reports false for an
// unknown ID or when alerting is not wired.
func (c *Controller) DismissAlert(id string) bool {
	if c.deps.Alerts == nil || !c.deps.Alerts.Dismiss(id) {
		return false
	}
	c.publish(c.Snapshot())
	return true
}

func (c *Controller) schedulerOptions() scheduler.Options {
	return scheduler.Options{
		Interval:     c.opts.RefreshInterval,
		AlignToStart: c.opts.AlignToInterval,
		StartupDelay: c.opts.StartupDelay,
		Immediate:    true,
	}
}

// Subscribe delivers a snapshot after every state change. Slow readers only see the latest one.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
			close(ch)
		})
	}
}

func (c *Controller) publish(snap Snapshot) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// transition moves to phase, applying mutate under the lock, then notifies observers.
func (c *Controller) transition(to Phase, mutate func()) {
	c.mu.Lock()
	from := c.phase
	c.phase = to
	if mutate != nil {
		mutate()
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.opts.OnTransition != nil {
		c.opts.OnTransition(from, to)
	}
	c.logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("phase transition")
	c.publish(snap)
}

func (c *Controller) cycle(ctx context.Context) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	defer c.inFlight.Store(false)

	c.mu.RLock()
	prev, prevMsg, prevRetries := c.phase, c.errMessage, c.retryCount
	c.mu.RUnlock()
	// an interrupted cycle leaves state and cache as they were
	abort := func(err error) error {
		c.transition(prev, func() {
			c.errMessage = prevMsg
			c.retryCount = prevRetries
		})
		return err
	}

	c.transition(PhaseLoading, func() {
		c.errMessage = nil
		c.retryCount = 0
	})

	maxAttempts := c.opts.MaxRetries
	for attempt := 1; ; attempt++ {
		quote, err := c.deps.Gas.FetchGasPrices(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return abort(ctxErr)
		}
		if err == nil {
			if quote.Reason == gasdata.FailureCanceled {
				return abort(context.Canceled)
			}
			c.appendSample(ctx, quote)
			c.enrich(ctx, quote)
			return nil
		}

		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("gas fetch failed")
		if attempt >= maxAttempts {
			msg := FailedMessage
			c.transition(PhaseFailed, func() {
				c.retryCount = attempt
				c.errMessage = &msg
			})
			return nil
		}

		msg := RetryMessage(attempt, maxAttempts)
		c.transition(PhaseRetrying, func() {
			c.retryCount = attempt
			c.errMessage = &msg
		})
		if err := c.opts.Sleep(ctx, c.opts.RetryDelay); err != nil {
			return abort(err)
		}
	}
}

// appendSample records a resolved quote, trims the series and persists both cache keys.
func (c *Controller) appendSample(ctx context.Context, quote gasdata.GasQuote) {
	now := c.opts.Now()
	sample := quote.Sample
	point := history.Point{Timestamp: now, Safe: sample.Safe, Propose: sample.Propose, Fast: sample.Fast}

	var points []history.Point
	c.transition(PhaseReady, func() {
		c.buffer.Append(point)
		points = c.buffer.Points()
		c.sample = &sample
		c.status = quote.Status
		c.reason = quote.Reason
		c.lastUpdated = &now
		c.errMessage = nil
		c.retryCount = 0
	})

	if err := c.lastData.Set(ctx, CachedSample{GasData: sample, Status: quote.Status, Timestamp: now}); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist last sample")
	}
	if err := c.chartData.Set(ctx, points); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist time series")
	}
}

// enrich runs the optional per-cycle extras. Each failure is logged only.
func (c *Controller) enrich(ctx context.Context, quote gasdata.GasQuote) {
	var eth *gasdata.EthQuote
	if c.opts.TrackEthPrice && c.deps.Eth != nil {
		q, err := c.deps.Eth.FetchEthPrice(ctx)
		switch {
		case err != nil:
			c.logger.Warn().Err(err).Msg("eth price fetch failed")
		case q.Reason == gasdata.FailureCanceled:
			c.logger.Debug().Msg("eth price fetch canceled")
		default:
			eth = &q
		}
	}

	var fees *fetcher.NetworkFees
	if c.deps.Fees != nil {
		f, err := c.deps.Fees.FetchNetworkFees(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("network fee fetch failed")
		} else {
			fees = &f
		}
	}

	if eth != nil || fees != nil {
		c.mu.Lock()
		if eth != nil {
			c.ethPrice = decimal.NewNullDecimal(eth.Price)
			c.ethStatus = eth.Status
		}
		if fees != nil {
			c.fees = fees
		}
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.publish(snap)
	}

	if c.deps.Alerts != nil && c.deps.Prefs != nil {
		p, err := c.deps.Prefs.Load(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to read preferences")
		}
		if note, fired := c.deps.Alerts.Evaluate(ctx, quote.Sample.Propose, p.GasThreshold, p.NotificationsEnabled); fired {
			c.logger.Info().Str("alert_id", note.ID).Msg(note.Message())
		}
	}

	if c.deps.Archive != nil {
		record := storage.GasSample{
			ObservedAt: quote.FetchedAt,
			Safe:       quote.Sample.Safe,
			Propose:    quote.Sample.Propose,
			Fast:       quote.Sample.Fast,
			Status:     string(quote.Status),
			Reason:     string(quote.Reason),
		}
		if record.ObservedAt.IsZero() {
			record.ObservedAt = c.opts.Now().UTC()
		}
		if eth != nil {
			record.EthPriceUSD = decimal.NewNullDecimal(eth.Price)
		}
		if fees != nil {
			block := int64(fees.BlockNumber)
			record.BlockNumber = &block
			record.BaseFeeGwei = decimal.NewNullDecimal(fees.BaseFee)
		}
		if err := c.deps.Archive.UpsertGasSample(ctx, record); err != nil {
			c.logger.Error().Err(err).Msg("failed to archive sample")
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
