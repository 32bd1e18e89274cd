package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/phozos/phozos-client/internal/config"
	"github.com/phozos/phozos-client/internal/devserver"
	"github.com/phozos/phozos-client/internal/logging"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func devserverCommand() *cli.Command {
	return &cli.Command{
		Name:  "devserver",
		Usage: "Run an in-memory Phozos API for local development",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "listen address, overrides DEVSERVER_LISTEN_ADDR"},
			&cli.BoolFlag{Name: "legacy-csrf", Usage: "reject bad CSRF tokens with a bare 403 message"},
		},
		Action: devserverAction,
	}
}

func devserverAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := cfg.LogLevel
	if l := cmd.String("log-level"); l != "" {
		level = l
	}

	logger := logging.NewLogger(cfg.Environment, level)

	srv, err := devserver.New(devserver.Config{
		JWTSecret:        []byte(cfg.DevJWTSecret),
		LegacyCSRFErrors: cmd.Bool("legacy-csrf"),
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("creating devserver: %w", err)
	}

	addr := cfg.DevListenAddr
	if l := cmd.String("listen"); l != "" {
		addr = l
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	return serve(ctx, ln, srv.Handler(), logger)
}

// serve runs handler on ln until ctx is cancelled, then shuts down
// gracefully.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, logger *slog.Logger) error {
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("devserver listening", slog.String("addr", "http://"+ln.Addr().String()))

		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		logger.Info("devserver shutting down")

		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
