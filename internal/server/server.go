// Package server exposes the dashboard snapshot and preferences as a JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/shopspring/decimal"

	"gasflow/internal/alerting"
	"gasflow/internal/calculator"
	"gasflow/internal/history"
	"gasflow/internal/poller"
	"gasflow/internal/prefs"
	"gasflow/internal/version"
)

// Controller is the part of the poller the API drives.
type Controller interface {
	Snapshot() poller.Snapshot
	Refresh(ctx context.Context) error
	DismissAlert(id string) bool
}

// PreferenceStore reads and writes user preferences.
type PreferenceStore interface {
	Load(ctx context.Context) (prefs.Preferences, error)
	Save(ctx context.Context, p prefs.Preferences) error
	ToggleTheme(ctx context.Context) (prefs.Theme, error)
}

// Options configure the HTTP listener.
type Options struct {
	Listen       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the JSON API.
type Server struct {
	opts    Options
	ctrl    Controller
	prefs   PreferenceStore
	history *history.Generator
	now     func() time.Time
	router  chi.Router
	logger  zerolog.Logger
}

// New wires the routes.
func New(opts Options, ctrl Controller, store PreferenceStore, gen *history.Generator, logger zerolog.Logger) *Server {
	if gen == nil {
		gen = history.NewGenerator(0)
	}
	s := &Server{
		opts:    opts,
		ctrl:    ctrl,
		prefs:   store,
		history: gen,
		now:     time.Now,
		logger:  logger.With().Str("component", "server").Logger(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshot)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/history", s.handleHistory)
		r.Get("/preferences", s.handleGetPreferences)
		r.Put("/preferences", s.handlePutPreferences)
		r.Post("/preferences/theme/toggle", s.handleToggleTheme)
		r.Get("/alerts", s.handleAlerts)
		r.Delete("/alerts/{id}", s.handleDismissAlert)
		r.Get("/estimate", s.handleEstimate)
		r.Get("/tx-types", s.handleTxTypes)
		r.Get("/currencies", s.handleCurrencies)
		r.Get("/tips/{index}", s.handleTip)
	})

	s.router = r
}

// Handler returns the router for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Listen,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", s.opts.Listen).Msg("http server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		s.logger.Info().Msg("http server stopped")
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.ctrl.Refresh(r.Context())
	switch {
	case errors.Is(err, poller.ErrInFlight):
		writeJSON(w, http.StatusConflict, map[string]any{"error": "refresh already in progress", "snapshot": s.ctrl.Snapshot()})
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
	}
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.ctrl.Snapshot().Alerts
	if alerts == nil {
		alerts = []alerting.Notification{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	if !s.ctrl.DismissAlert(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("range")
	if raw == "" {
		raw = string(history.Range24h)
	}
	rng, err := history.ParseRange(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	points := s.history.Generate(rng, s.now())
	stats, _ := history.Summarize(history.GasPrices(points))
	writeJSON(w, http.StatusOK, map[string]any{
		"range":  rng,
		"points": points,
		"stats":  stats,
	})
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := s.prefs.Load(r.Context())
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("preferences partially unreadable, defaults applied")
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	// absent fields keep their stored value
	p, _ := s.prefs.Load(r.Context())
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.prefs.Save(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}
	saved, _ := s.prefs.Load(r.Context())
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleToggleTheme(w http.ResponseWriter, r *http.Request) {
	theme, err := s.prefs.ToggleTheme(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to toggle theme")
		return
	}
	writeJSON(w, http.StatusOK, map[string]prefs.Theme{"theme": theme})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	snap := s.ctrl.Snapshot()
	if snap.Sample == nil {
		writeError(w, http.StatusServiceUnavailable, "no gas sample yet")
		return
	}

	ethPrice := snap.EthPrice
	if raw := q.Get("eth_price"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "eth_price must be a number")
			return
		}
		ethPrice = decimal.NewNullDecimal(d)
	}
	if !ethPrice.Valid {
		writeError(w, http.StatusServiceUnavailable, "eth price unavailable")
		return
	}

	var gasLimit uint64
	if raw := q.Get("gas_limit"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "gas_limit must be a positive integer")
			return
		}
		gasLimit = n
	}

	currency := q.Get("currency")
	if currency == "" {
		p, _ := s.prefs.Load(r.Context())
		currency = p.Currency
	}

	est, err := calculator.EstimateCosts(calculator.EstimateInput{
		Safe:        snap.Sample.Safe,
		Propose:     snap.Sample.Propose,
		Fast:        snap.Sample.Fast,
		TxType:      q.Get("tx"),
		GasLimit:    gasLimit,
		EthPriceUSD: ethPrice.Decimal,
		Currency:    currency,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, est)
}

func (s *Server) handleTxTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, calculator.TxTypes())
}

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, calculator.Currencies())
}

func (s *Server) handleTip(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"index": idx,
		"count": calculator.TipCount(),
		"tip":   calculator.TipAt(idx),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
