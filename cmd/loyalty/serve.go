package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LeventeLantos/loyalty-outreach/internal/api"
	"github.com/LeventeLantos/loyalty-outreach/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline on a schedule and expose the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Server.Address
			}
			return serve(ctx, a, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to SERVER_ADDRESS)")
	return cmd
}

func serve(ctx context.Context, a *app, addr string) error {
	sched, err := scheduler.New(a.cfg.Scheduler.Interval, func(ctx context.Context) error {
		_, err := a.processor.Run(ctx, false)
		return runOutcome(a.log, err)
	}, scheduler.WithLogger(a.log))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           loggingMiddleware(api.Router(api.NewHandler(sched, a.processor, a.runs))),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sched.Start()
	defer sched.Stop()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", "addr", addr, "interval", a.cfg.Scheduler.Interval)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
