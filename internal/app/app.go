package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"gasflow/internal/alerting"
	"gasflow/internal/config"
	"gasflow/internal/fetcher"
	"gasflow/internal/gasdata"
	"gasflow/internal/kvstore"
	"gasflow/internal/poller"
	"gasflow/internal/prefs"
	"gasflow/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) out() io.Writer {
	if a.Out == nil {
		return os.Stdout
	}
	return a.Out
}

func (a *App) newGasService() *gasdata.Service {
	oracle := fetcher.NewEtherscan(fetcher.EtherscanOptions{
		BaseURL:   a.Config.Oracle.BaseURL,
		APIKey:    a.Config.Oracle.APIKey,
		Timeout:   a.Config.Oracle.RequestTimeout,
		UserAgent: a.Config.Oracle.UserAgent,
	}, a.Logger)

	// one throttle covers both endpoints so they share the request budget
	return gasdata.New(gasdata.Options{
		APIKey:   a.Config.Oracle.APIKey,
		Throttle: gasdata.NewThrottle(a.Config.Oracle.MinRequestInterval),
		Seed:     a.Config.Oracle.Seed,
	}, oracle, oracle, a.Logger)
}

func (a *App) newNotifier() (alerting.Notifier, []string) {
	var notifiers alerting.Multi
	var channels []string
	if a.Config.Alerting.LogAlerts {
		notifiers = append(notifiers, alerting.NewLogNotifier(a.Logger))
		channels = append(channels, "log")
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
		channels = append(channels, "telegram")
	}
	if len(notifiers) == 0 {
		return nil, nil
	}
	return notifiers, channels
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, nil
	}
	return store, store.Close, nil
}

func (a *App) openPrefs(ctx context.Context) (*prefs.Store, kvstore.Backend, error) {
	backend, err := kvstore.Open(ctx, a.Config.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", a.Config.Store.Backend, err)
	}
	return prefs.NewStore(backend), backend, nil
}

// runtime is the fully wired polling stack shared by run, status and serve.
type runtime struct {
	service    *gasdata.Service
	prefs      *prefs.Store
	cache      kvstore.Backend
	store      *storage.Store
	chain      *fetcher.Chain
	monitor    *alerting.Monitor
	controller *poller.Controller
}

func (r *runtime) Close() {
	if r.chain != nil {
		r.chain.Close()
	}
	if r.store != nil {
		r.store.Close()
	}
	if r.cache != nil {
		_ = r.cache.Close()
	}
}

func (a *App) build(ctx context.Context) (*runtime, error) {
	rt := &runtime{service: a.newGasService()}
	if !rt.service.HasAPIKey() {
		a.Logger.Warn().Msg("oracle.api_key not configured; serving synthetic gas prices")
	}

	prefStore, backend, err := a.openPrefs(ctx)
	if err != nil {
		return nil, err
	}
	rt.prefs = prefStore
	rt.cache = backend

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.store = store

	source := poller.ServiceSource{Service: rt.service}
	deps := poller.Deps{
		Gas:   source,
		Prefs: rt.prefs,
		Cache: rt.cache,
	}
	if a.Config.Poller.TrackEthPrice {
		deps.Eth = source
	}
	if a.Config.Ethereum.RPCURL != "" {
		rt.chain = fetcher.NewChain(fetcher.ChainOptions{
			RPCURL:  a.Config.Ethereum.RPCURL,
			Timeout: a.Config.Ethereum.RequestTimeout,
		}, a.Logger)
		deps.Fees = rt.chain
	}

	var alertStore storage.AlertStore
	if store != nil {
		alertStore = store
		deps.Archive = store
	} else {
		a.Logger.Info().Msg("database.dsn not configured; sample archive disabled")
	}

	notifier, channels := a.newNotifier()
	rt.monitor = alerting.NewMonitor(alerting.MonitorOptions{
		Cooldown: a.Config.Alerting.Cooldown,
		KeepLast: a.Config.Alerting.KeepLast,
		Channels: channels,
	}, notifier, alertStore, a.Logger)
	if err := rt.monitor.Restore(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("failed to restore recent alerts")
	}
	deps.Alerts = rt.monitor

	rt.controller, err = poller.New(ctx, poller.Options{
		RefreshInterval: a.Config.Poller.RefreshInterval,
		HistorySize:     a.Config.Poller.HistorySize,
		MaxRetries:      a.Config.Poller.MaxRetries,
		RetryDelay:      a.Config.Poller.RetryDelay,
		TrackEthPrice:   a.Config.Poller.TrackEthPrice,
		AlignToInterval: a.Config.Poller.AlignToInterval,
		StartupDelay:    a.Config.Poller.StartupDelay,
		OnTransition: func(from, to poller.Phase) {
			a.Logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("phase transition")
		},
	}, deps, a.Logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// Run executes the long-running polling loop until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	snaps, unsubscribe := rt.controller.Subscribe()
	defer unsubscribe()

	a.Logger.Info().Dur("interval", a.Config.Poller.RefreshInterval).Msg("starting gas price poller")
	task := rt.controller.Start(ctx)
	defer task.Stop()

	for {
		select {
		case <-ctx.Done():
			a.Logger.Info().Msg("gas price poller stopped")
			return nil
		case <-task.Done():
			if err := task.Err(); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Msg("poller terminated with error")
				return err
			}
			return nil
		case snap := <-snaps:
			a.logSnapshot(snap)
		}
	}
}

func (a *App) logSnapshot(snap poller.Snapshot) {
	switch snap.Phase {
	case poller.PhaseReady:
		if snap.Sample == nil {
			return
		}
		ev := a.Logger.Info().
			Str("status", string(snap.Status)).
			Str("safe", snap.Sample.Safe.String()).
			Str("propose", snap.Sample.Propose.String()).
			Str("fast", snap.Sample.Fast.String()).
			Int("points", len(snap.TimeSeries))
		if snap.EthPrice.Valid {
			ev = ev.Str("eth_usd", snap.EthPrice.Decimal.StringFixed(2))
		}
		if snap.Reason != "" {
			ev = ev.Str("reason", string(snap.Reason))
		}
		ev.Msg("gas prices updated")
	case poller.PhaseRetrying, poller.PhaseFailed:
		msg := ""
		if snap.ErrorMessage != nil {
			msg = *snap.ErrorMessage
		}
		a.Logger.Warn().Str("phase", string(snap.Phase)).Int("retry_count", snap.RetryCount).Msg(msg)
	}
}

// Status performs a single refresh and prints the resulting snapshot.
func (a *App) Status(ctx context.Context) error {
	rt, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.controller.Refresh(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("refresh failed")
	}
	return writeSnapshot(a.out(), rt.controller.Snapshot())
}

// ExportOptions hold parameters for exporting recorded samples.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// HistoryOptions configure the synthetic history report.
type HistoryOptions struct {
	Range   string
	CSVPath string
	PNGPath string
}
