package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lofari/DynamicForms-sub000/internal/agent"
	"github.com/lofari/DynamicForms-sub000/internal/syncer"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the background sync loop and the local queue API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		sched := syncer.NewScheduler(c.engine, syncer.SchedulerConfig{
			Interval:  cfg.Sync.Interval,
			Debounce:  cfg.Sync.Debounce,
			RetryBase: cfg.Sync.RetryBase,
			RetryMax:  cfg.Sync.RetryMax,
		}, logger)
		sched.Start(ctx)
		defer sched.Stop()
		// Deliver whatever was queued while no agent was running.
		sched.ScheduleSync()

		srv := &http.Server{
			Addr:              cfg.Agent.Addr,
			Handler:           agent.NewHandler(c.queue, c.engine, sched, logger).Router(),
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}
		errCh := make(chan error, 1)
		go func() {
			logger.Info("agent listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case err, ok := <-errCh:
			if ok {
				return err
			}
			return nil
		case sig := <-sigCh:
			logger.Info("agent shutting down", zap.Stringer("signal", sig))
		}

		// Websocket streams end with the base context.
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	},
}
