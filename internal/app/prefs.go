package app

import (
	"context"
	"fmt"
	"text/tabwriter"

	"gasflow/internal/prefs"
)

func (a *App) withPrefs(ctx context.Context, fn func(*prefs.Store) error) error {
	store, backend, err := a.openPrefs(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()
	return fn(store)
}

// PrefsShow prints the stored preferences.
func (a *App) PrefsShow(ctx context.Context) error {
	return a.withPrefs(ctx, func(store *prefs.Store) error {
		p, err := store.Load(ctx)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("preferences partially unreadable, defaults applied")
		}
		return writePrefs(a, p)
	})
}

// PrefsSet updates a single preference field.
func (a *App) PrefsSet(ctx context.Context, field, value string) error {
	return a.withPrefs(ctx, func(store *prefs.Store) error {
		if err := store.Set(ctx, field, value); err != nil {
			return err
		}
		p, _ := store.Load(ctx)
		return writePrefs(a, p)
	})
}

// PrefsToggleTheme flips between light and dark.
func (a *App) PrefsToggleTheme(ctx context.Context) error {
	return a.withPrefs(ctx, func(store *prefs.Store) error {
		theme, err := store.ToggleTheme(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out(), "theme: %s\n", theme)
		return nil
	})
}

// PrefsReset restores every preference to its default.
func (a *App) PrefsReset(ctx context.Context) error {
	return a.withPrefs(ctx, func(store *prefs.Store) error {
		if err := store.Reset(ctx); err != nil {
			return err
		}
		return writePrefs(a, prefs.Defaults())
	})
}

func writePrefs(a *App, p prefs.Preferences) error {
	tw := tabwriter.NewWriter(a.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "theme\t%s\n", p.Theme)
	fmt.Fprintf(tw, "currency\t%s\n", p.Currency)
	fmt.Fprintf(tw, "gas_threshold\t%d\n", p.GasThreshold)
	fmt.Fprintf(tw, "notifications\t%t\n", p.NotificationsEnabled)
	fmt.Fprintf(tw, "auto_refresh\t%t\n", p.AutoRefreshEnabled)
	return tw.Flush()
}
