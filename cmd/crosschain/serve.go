package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aretw0/crosschain"
	"github.com/aretw0/crosschain/internal/cli"
	"github.com/aretw0/crosschain/internal/presentation/tui"
	httpAdapter "github.com/aretw0/crosschain/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Builds the mesh from the configuration file and exposes it as a JSON API over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
		}
		logger, err := newLogger(cmd)
		if err != nil {
			return err
		}

		rt, err := cli.NewRuntime(cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Mesh.Close()

		handler := httpAdapter.NewHandler(rt.Mesh,
			httpAdapter.WithGatherer(rt.Metrics),
			httpAdapter.WithLogger(logger),
		)

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		heartbeatsDone := make(chan struct{})
		go func() {
			defer close(heartbeatsDone)
			_ = rt.Mesh.RunHeartbeats(ctx, cli.PingerInterval(cfg))
		}()

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			tui.PrintBanner(os.Stdout, strings.TrimSpace(crosschain.Version))
			logger.Info("Starting Crosschain Server", "addr", srv.Addr, "chains", rt.Mesh.Registry().Len())
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			cancel()
			<-heartbeatsDone
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("Start shutdown", "signal", sig.String())
			cancel()
			<-heartbeatsDone

			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Graceful shutdown did not complete", "timeout", 5*time.Second, "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			logger.Info("Crosschain Server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address, overrides server.addr")
}
