package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	refreshrelay "github.com/bnema/walletsync/internal/adapters/refresh/redis"
	"github.com/bnema/walletsync/internal/domain"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const serveShutdownTimeout = 5 * time.Second

func newServeCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run session sync, the expiry sweep and the metrics endpoint until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cmd, app)
		},
	}
}

func runServe(ctx context.Context, cmd *cobra.Command, app *app) error {
	rt, err := app.openRuntime(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	syncInterval := app.cfg.Sync.Interval
	if app.cfg.Bridge.URL == "" {
		app.logger.Warn("bridge.url not configured, session event sync disabled")
		syncInterval = 0
	}
	if err := rt.housekeeper.Start(ctx, app.cfg.Sweep.Schedule, syncInterval); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", app.cfg.Metrics.Addr)
	if err != nil {
		return errors.Join(fmt.Errorf("listen on %s: %w", app.cfg.Metrics.Addr, err), rt.housekeeper.Stop(ctx))
	}
	server := &http.Server{
		Handler:           newServeHandler(rt),
		ReadHeaderTimeout: 10 * time.Second,
	}
	app.logger.Info("serving metrics", "addr", listener.Addr().String())

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve metrics: %w", err)
		}
		return nil
	})

	if app.cfg.Relay.Enabled {
		relay, err := refreshrelay.NewRelay(rt.redis, refreshrelay.Options{Logger: app.logger})
		if err != nil {
			return errors.Join(fmt.Errorf("wire refresh relay: %w", err), server.Close(), rt.housekeeper.Stop(ctx))
		}
		bus := rt.coordinator.Refresh
		sub := bus.Subscribe(func(trigger domain.RefreshTrigger) {
			relay.Forward(trigger)
		})
		defer sub.Unsubscribe()

		group.Go(func() error {
			return relay.Run(groupCtx, func(domain.RefreshTrigger) {
				bus.PublishFrom(domain.RefreshSourceRemote)
			})
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
		defer cancel()

		return errors.Join(
			server.Shutdown(shutdownCtx),
			rt.housekeeper.Stop(shutdownCtx),
			rt.housekeeper.Save(shutdownCtx),
		)
	})

	return group.Wait()
}

type healthJSON struct {
	Status     string `json:"status"`
	Sessions   int    `json:"sessions"`
	Active     string `json:"active,omitempty"`
	Cursor     int64  `json:"cursor"`
	Generation uint64 `json:"generation"`
	Pending    int    `json:"pending_operations"`
}

func newServeHandler(rt *runtime) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		c := rt.coordinator
		health := healthJSON{
			Status:     "ok",
			Sessions:   len(c.Sessions.ListSessions()),
			Cursor:     c.Sessions.Cursor(),
			Generation: uint64(c.Refresh.Generation()),
			Pending:    len(c.Operations.Pending()),
		}
		if active, ok := c.Sessions.Active(); ok {
			health.Active = string(active.Topic)
		}
		w.Header().Set("Content-Type", "application/json")
		if c.Closed() {
			health.Status = "closing"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(health)
	})
	return mux
}
