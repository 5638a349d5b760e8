package app

import (
	"context"
	"os/signal"
	"syscall"

	"gasflow/internal/history"
	"gasflow/internal/server"
)

// Serve runs the poller and exposes it over the JSON API until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	task := rt.controller.Start(ctx)
	defer task.Stop()

	srv := server.New(server.Options{
		Listen:       a.Config.Server.Listen,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}, rt.controller, rt.prefs, history.NewGenerator(a.Config.Oracle.Seed), a.Logger)

	return srv.ListenAndServe(ctx)
}
