package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/polyglot/observability"
	"github.com/tailored-agentic-units/polyglot/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	var (
		addr  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the kernel over Connect RPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, cfg, flush, err := newKernel(v)
			if err != nil {
				return err
			}
			defer flush()

			observer, err := observability.Resolve(cfg.Observer)
			if err != nil {
				observer = observability.NoOpObserver{}
			}
			opts := []server.Option{server.WithObserver(observer)}
			store, release, err := openStateStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer release()
			if store != nil {
				opts = append(opts, server.WithStateStore(store))
			}

			protocols := new(http.Protocols)
			protocols.SetHTTP1(true)
			protocols.SetUnencryptedHTTP2(true)
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           server.New(k, opts...).Handler(),
				Protocols:         protocols,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				slog.Info("serving kernel", "addr", addr, "kernels", len(cfg.Kernels))
				if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve %s: %w", addr, err)
				}
				return nil
			})

			if path := v.GetString("config"); watch && path != "" {
				g.Go(func() error {
					return k.WatchConfig(ctx, path)
				})
			}

			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				// Status streams end only when the kernel closes.
				kerr := k.Close(shutdownCtx)
				return errors.Join(kerr, httpServer.Shutdown(shutdownCtx))
			})

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8675", "Listen address")
	cmd.Flags().BoolVar(&watch, "watch", true, "Reload the kernel list when the config file changes")
	return cmd
}
