package commands

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tfkr-ae/furlong"
	"github.com/tfkr-ae/furlong/api"
	"github.com/tfkr-ae/furlong/core"
	"github.com/tfkr-ae/furlong/feed"
	"github.com/tfkr-ae/furlong/listener"
	"github.com/tfkr-ae/furlong/onboarding"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var noPoll bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, the live odds hub and the feed poller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, !noPoll)
		},
	}
	cmd.Flags().BoolVar(&noPoll, "no-poll", false, "do not poll the configured feeds")
	return cmd
}

func serve(ctx context.Context, poll bool) error {
	logger := newLogger()
	svc, err := openService(logger)
	if err != nil {
		return err
	}
	defer svc.Close()
	cfg := svc.Config()

	var tlsConfig *tls.Config
	if cfg.TLSCert != "" {
		cert, err := tls.LoadX509KeyPair(cfg.Path(cfg.TLSCert), cfg.Path(cfg.TLSKey))
		if err != nil {
			return fmt.Errorf("loading tls key pair: %w", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}

	ln, err := listener.Listen(cfg.ListenAddress, cfg.ListenPort, tlsConfig, logger, func(err error) {
		svc.WriteLog(furlong.LevelError, "listener error", core.LogWithContext(map[string]any{"error": err.Error()}))
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           api.NewRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	svc.WatchConfig()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Hub.Run(ctx) })
	g.Go(func() error { return svc.WriteToDB(ctx) })
	g.Go(func() error { return svc.Onboarding.Run(ctx, onboarding.DefaultPruneInterval) })
	if poll {
		poller, err := feed.NewPoller(svc.Importer, svc.FeedSources,
			feed.WithInterval(cfg.FeedInterval),
			feed.WithLogger(logger),
			feed.WithResultHandler(svc.RecordFeedResult),
		)
		if err != nil {
			ln.Close()
			return err
		}
		g.Go(func() error { return poller.Run(ctx) })
	}
	g.Go(func() error {
		logger.Info("listening", "address", ln.Addr().String(), "tls", tlsConfig != nil)
		if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
