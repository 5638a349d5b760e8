// Package prefs persists the dashboard's user preferences, one durable key per field.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gasflow/internal/calculator"
	"gasflow/internal/kvstore"
)

// Theme is the UI colour scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Storage keys, one per field.
const (
	KeyTheme         = "gaslite-theme"
	KeyCurrency      = "gaslite-currency"
	KeyGasThreshold  = "gaslite-gas-threshold"
	KeyNotifications = "gaslite-notifications"
	KeyAutoRefresh   = "gaslite-auto-refresh"
)

// Preferences is the flat user preference record.
type Preferences struct {
	Theme                Theme  `json:"theme"`
	Currency             string `json:"currency"`
	GasThreshold         int    `json:"gas_threshold"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
	AutoRefreshEnabled   bool   `json:"auto_refresh_enabled"`
}

// Defaults returns the documented defaults applied to absent keys.
func Defaults() Preferences {
	return Preferences{
		Theme:                ThemeLight,
		Currency:             "USD",
		GasThreshold:         25,
		NotificationsEnabled: true,
		AutoRefreshEnabled:   true,
	}
}

// Validate checks enum and range constraints.
func (p Preferences) Validate() error {
	if p.Theme != ThemeLight && p.Theme != ThemeDark {
		return fmt.Errorf("theme must be %q or %q, got %q", ThemeLight, ThemeDark, p.Theme)
	}
	if _, ok := calculator.LookupCurrency(p.Currency); !ok {
		return fmt.Errorf("unsupported currency %q (supported: %s)", p.Currency, strings.Join(calculator.CurrencyCodes(), ","))
	}
	if p.GasThreshold < 0 {
		return fmt.Errorf("gas threshold cannot be negative")
	}
	return nil
}

// Store reads and writes Preferences through a kvstore backend.
type Store struct {
	theme         *kvstore.Value[Theme]
	currency      *kvstore.Value[string]
	gasThreshold  *kvstore.Value[int]
	notifications *kvstore.Value[bool]
	autoRefresh   *kvstore.Value[bool]
}

// NewStore binds the preference keys to a backend.
func NewStore(backend kvstore.Backend) *Store {
	def := Defaults()
	return &Store{
		theme:         kvstore.NewValue(backend, KeyTheme, def.Theme),
		currency:      kvstore.NewValue(backend, KeyCurrency, def.Currency),
		gasThreshold:  kvstore.NewValue(backend, KeyGasThreshold, def.GasThreshold),
		notifications: kvstore.NewValue(backend, KeyNotifications, def.NotificationsEnabled),
		autoRefresh:   kvstore.NewValue(backend, KeyAutoRefresh, def.AutoRefreshEnabled),
	}
}

// Load reads every field. Unreadable fields fall back to their default and are reported
// together in the returned error; the returned Preferences is always usable.
func (s *Store) Load(ctx context.Context) (Preferences, error) {
	var errs []error
	var p Preferences
	var err error

	if p.Theme, err = s.theme.Get(ctx); err != nil {
		errs = append(errs, err)
	}
	if p.Currency, err = s.currency.Get(ctx); err != nil {
		errs = append(errs, err)
	}
	if p.GasThreshold, err = s.gasThreshold.Get(ctx); err != nil {
		errs = append(errs, err)
	}
	if p.NotificationsEnabled, err = s.notifications.Get(ctx); err != nil {
		errs = append(errs, err)
	}
	if p.AutoRefreshEnabled, err = s.autoRefresh.Get(ctx); err != nil {
		errs = append(errs, err)
	}
	return p, errors.Join(errs...)
}

// Save validates and writes every field.
func (s *Store) Save(ctx context.Context, p Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))

	if err := s.theme.Set(ctx, p.Theme); err != nil {
		return err
	}
	if err := s.currency.Set(ctx, p.Currency); err != nil {
		return err
	}
	if err := s.gasThreshold.Set(ctx, p.GasThreshold); err != nil {
		return err
	}
	if err := s.notifications.Set(ctx, p.NotificationsEnabled); err != nil {
		return err
	}
	return s.autoRefresh.Set(ctx, p.AutoRefreshEnabled)
}

// AutoRefreshEnabled reads a single field; the poller calls it on every tick.
func (s *Store) AutoRefreshEnabled(ctx context.Context) (bool, error) {
	return s.autoRefresh.Get(ctx)
}

// ToggleTheme flips light/dark and returns the new theme.
func (s *Store) ToggleTheme(ctx context.Context) (Theme, error) {
	current, err := s.theme.Get(ctx)
	if err != nil {
		return current, err
	}
	next := ThemeDark
	if current == ThemeDark {
		next = ThemeLight
	}
	if err := s.theme.Set(ctx, next); err != nil {
		return current, err
	}
	return next, nil
}

// Reset removes every stored field so the defaults apply.
func (s *Store) Reset(ctx context.Context) error {
	return errors.Join(
		s.theme.Reset(ctx),
		s.currency.Reset(ctx),
		s.gasThreshold.Reset(ctx),
		s.notifications.Reset(ctx),
		s.autoRefresh.Reset(ctx),
	)
}

// Fields lists the names accepted by Set, in display order.
func Fields() []string {
	return []string{"theme", "currency", "gas_threshold", "notifications", "auto_refresh"}
}

// Set 按字段名写入单个偏好（CLI 使用），值为字符串形式。
func (s *Store) Set(ctx context.Context, field, value string) error {
	p, _ := s.Load(ctx)
	value = strings.TrimSpace(value)

	switch strings.ToLower(strings.ReplaceAll(field, "-", "_")) {
	case "theme":
		p.Theme = Theme(strings.ToLower(value))
	case "currency":
		p.Currency = strings.ToUpper(value)
	case "gas_threshold", "threshold":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("gas threshold must be an integer: %w", err)
		}
		p.GasThreshold = n
	case "notifications":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("notifications must be a boolean: %w", err)
		}
		p.NotificationsEnabled = b
	case "auto_refresh":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("auto_refresh must be a boolean: %w", err)
		}
		p.AutoRefreshEnabled = b
	default:
		return fmt.Errorf("unknown preference %q (fields: %s)", field, strings.Join(Fields(), ", "))
	}

	return s.Save(ctx, p)
}
