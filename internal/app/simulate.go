package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"gasflow/internal/alerting"
	"gasflow/internal/storage"
)

// SimulateAlert 用给定的 standard 档位价格走一遍告警流程。threshold<=0 时使用偏好中的阈值。
func (a *App) SimulateAlert(ctx context.Context, propose decimal.Decimal, threshold int) error {
	notifier, channels := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	if threshold <= 0 {
		if err := a.withPrefsThreshold(ctx, &threshold); err != nil {
			return err
		}
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	var alertStore storage.AlertStore
	if store != nil {
		defer closeStore()
		alertStore = store
	}

	monitor := alerting.NewMonitor(alerting.MonitorOptions{
		Cooldown: a.Config.Alerting.Cooldown,
		KeepLast: a.Config.Alerting.KeepLast,
		Channels: channels,
	}, notifier, alertStore, a.Logger)

	note, fired := monitor.Evaluate(ctx, propose, threshold, true)
	if !fired {
		return fmt.Errorf("%s Gwei 高于阈值 %d Gwei，未触发告警", propose.String(), threshold)
	}
	fmt.Fprintln(a.out(), note.Message())
	return nil
}

func (a *App) withPrefsThreshold(ctx context.Context, threshold *int) error {
	store, backend, err := a.openPrefs(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()
	p, _ := store.Load(ctx)
	*threshold = p.GasThreshold
	return nil
}
