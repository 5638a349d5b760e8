package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gasflow/internal/calculator"
	"gasflow/internal/storage"
)

// MonitorOptions tune alert emission.
type MonitorOptions struct {
	Cooldown time.Duration
	KeepLast int
	Channels []string
	Now      func() time.Time
}

// Monitor raises an alert when the standard tier drops to or below the user's threshold,
// at most once per cooldown window.
type Monitor struct {
	opts     MonitorOptions
	notifier Notifier
	store    storage.AlertStore
	logger   zerolog.Logger

	mu     sync.Mutex
	last   time.Time
	recent []Notification
}

// NewMonitor builds a monitor. notifier and store may be nil.
func NewMonitor(opts MonitorOptions, notifier Notifier, store storage.AlertStore, logger zerolog.Logger) *Monitor {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 5 * time.Minute
	}
	if opts.KeepLast <= 0 {
		opts.KeepLast = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		opts:     opts,
		notifier: notifier,
		store:    store,
		logger:   logger.With().Str("component", "alert_monitor").Logger(),
	}
}

// Restore reloads the most recent persisted alerts so the retained list and the cooldown
// survive a restart. Without a store it does nothing.
func (m *Monitor) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	records, err := m.store.ListRecentAlerts(ctx, m.opts.KeepLast)
	if err != nil {
		return fmt.Errorf("load recent alerts: %w", err)
	}

	notes := make([]Notification, 0, len(records))
	var last time.Time
	for _, rec := range records {
		notes = append(notes, Notification{
			ID:            rec.ID,
			TriggeredAt:   rec.TriggeredAt,
			ProposeGwei:   rec.ProposeGwei,
			ThresholdGwei: rec.ThresholdGwei,
			Level:         calculator.Level(rec.Level),
			Channels:      rec.Channels,
		})
		if rec.TriggeredAt.After(last) {
			last = rec.TriggeredAt
		}
	}
	if len(notes) > m.opts.KeepLast {
		notes = notes[:m.opts.KeepLast]
	}

	m.mu.Lock()
	m.recent = notes
	if last.After(m.last) {
		m.last = last
	}
	m.mu.Unlock()
	m.logger.Debug().Int("alerts", len(notes)).Msg("restored recent alerts")
	return nil
}

// Evaluate checks one sample. It reports the alert when one was raised.
func (m *Monitor) Evaluate(ctx context.Context, propose decimal.Decimal, threshold int, enabled bool) (Notification, bool) {
	if !enabled {
		return Notification{}, false
	}
	limit := decimal.NewFromInt(int64(threshold))
	if propose.GreaterThan(limit) {
		return Notification{}, false
	}

	m.mu.Lock()
	now := m.opts.Now()
	if !m.last.IsZero() && now.Sub(m.last) <= m.opts.Cooldown {
		m.mu.Unlock()
		return Notification{}, false
	}
	note := Notification{
		ID:            uuid.NewString(),
		TriggeredAt:   now.UTC(),
		ProposeGwei:   propose,
		ThresholdGwei: limit,
		Level:         calculator.LevelFor(propose),
		Channels:      m.opts.Channels,
	}
	m.last = now
	m.recent = append([]Notification{note}, m.recent...)
	if len(m.recent) > m.opts.KeepLast {
		m.recent = m.recent[:m.opts.KeepLast]
	}
	m.mu.Unlock()

	m.deliver(ctx, note)
	return note, true
}

func (m *Monitor) deliver(ctx context.Context, note Notification) {
	if m.store != nil {
		record := storage.AlertRecord{
			ID:            note.ID,
			TriggeredAt:   note.TriggeredAt,
			ProposeGwei:   note.ProposeGwei,
			ThresholdGwei: note.ThresholdGwei,
			Level:         string(note.Level),
			Channels:      note.Channels,
		}
		if _, err := m.store.InsertAlert(ctx, record); err != nil {
			m.logger.Error().Err(err).Str("alert_id", note.ID).Msg("failed to persist alert record")
		}
	}
	if m.notifier != nil {
		if err := m.notifier.Notify(ctx, note); err != nil {
			m.logger.Error().Err(err).Str("alert_id", note.ID).Msg("failed to dispatch alert")
		}
	}
}

// Recent returns the retained alerts, newest first.
func (m *Monitor) Recent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.recent))
	copy(out, m.recent)
	return out
}

// Dismiss removes a retained alert by ID.
func (m *Monitor) Dismiss(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.recent {
		if n.ID == id {
			m.recent = append(m.recent[:i], m.recent[i+1:]...)
			return true
		}
	}
	return false
}
