package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/pixel-battle-backend/internal/config"
	"github.com/DoyleJ11/pixel-battle-backend/internal/events"
	"github.com/DoyleJ11/pixel-battle-backend/internal/export"
	"github.com/DoyleJ11/pixel-battle-backend/internal/httpapi"
	"github.com/DoyleJ11/pixel-battle-backend/internal/hub"
	"github.com/DoyleJ11/pixel-battle-backend/internal/logging"
	"github.com/DoyleJ11/pixel-battle-backend/internal/session"
	"github.com/DoyleJ11/pixel-battle-backend/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	var catalog export.Catalog
	if cfg.DatabaseURL != "" {
		gc, err := export.OpenGormCatalog(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		closers = append(closers, gc.Close)
		catalog = gc
		logger.Info("export catalog in postgres")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATSURL != "" {
		np, err := events.NewNATSPublisher(events.DefaultNATSConfig(cfg.NATSURL, cfg.NATSSubject), logger.Named("nats"))
		if err != nil {
			return err
		}
		closers = append(closers, np.Close)
		publisher = np
		logger.Info("mirroring events to nats", zap.String("subject", cfg.NATSSubject))
	}

	clk := clockwork.NewRealClock()
	h := hub.NewHub(context.Background())

	reply := make(chan *session.Session, 1)
	h.Inbox() <- hub.CreateSession{
		Options: session.Options{
			Code:         cfg.SessionCode,
			Duration:     cfg.SessionDuration,
			TickInterval: cfg.TickInterval,
			Clock:        clk,
			Exporter:     export.NewExporter(cfg.ExportDir, cfg.SessionCode, clk, catalog, logger.Named("export")),
			Publisher:    publisher,
			Logger:       logger,
		},
		Reply: reply,
	}
	sess := <-reply

	if cfg.AutoStart {
		started := make(chan error, 1)
		if err := sess.Send(ctx, session.Start{Reply: started}); err != nil {
			return err
		}
		if err := <-started; err != nil {
			return fmt.Errorf("start session: %w", err)
		}
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(h, httpapi.Options{
			WS: ws.Config{
				DefaultSession:  cfg.SessionCode,
				OutboxSize:      cfg.OutboxSize,
				WriteTimeout:    cfg.WriteTimeout,
				ReadIdleTimeout: cfg.ReadIdleTimeout,
				MaxBadMessages:  cfg.MaxBadMessages,
				MaxMessageBytes: ws.DefaultConfig().MaxMessageBytes,
				OriginPatterns:  cfg.AllowedOrigins,
			},
			AllowedOrigins: cfg.AllowedOrigins,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.String("session", cfg.SessionCode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Stop sessions first so websocket handlers see their outboxes close.
		done := make(chan struct{})
		h.Inbox() <- hub.ShutdownHub{Done: done}
		select {
		case <-done:
		case <-shutdownCtx.Done():
			logger.Warn("hub shutdown timed out")
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
