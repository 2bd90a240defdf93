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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omarluq/skin-relay/internal/di"
	"github.com/omarluq/skin-relay/internal/version"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the skin-relay server",
	Long: `Start the HTTP server. The config file is watched and valid changes are
applied without a restart; listen address, HTTP/2 and stores need one.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, resolveConfigPath(), nil)
}

// serve runs the server until ctx is done, then drains it. ready, if set,
// receives the bound address once the listener is open.
func serve(ctx context.Context, configPath string, ready func(addr string)) error {
	container, err := di.NewContainer(configPath)
	if err != nil {
		log.Error().Err(err).Str("path", configPath).Msg("failed to load config")
		return err
	}

	if err := container.HealthCheck(); err != nil {
		log.Error().Err(err).Msg("failed to build services")
		_ = container.Shutdown()
		return err
	}

	loggerSvc := di.MustInvoke[*di.LoggerService](container)
	logger := loggerSvc.Logger
	zerolog.DefaultContextLogger = logger

	srvSvc := di.MustInvoke[*di.ServerService](container)
	rlSvc := di.MustInvoke[*di.RateLimitService](container)
	cfgSvc := di.MustInvoke[*di.ConfigService](container)

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	cfgSvc.StartWatching(watchCtx)

	ln, err := net.Listen("tcp", srvSvc.Server.Addr())
	if err != nil {
		logger.Error().Err(err).Str("listen", srvSvc.Server.Addr()).Msg("failed to listen")
		_ = container.Shutdown()
		return err
	}

	logger.Info().
		Str("listen", ln.Addr().String()).
		Str("version", version.Version).
		Str("rate_limit_store", rlSvc.Store).
		Str("config", configPath).
		Msg("starting skin-relay")
	if ready != nil {
		ready(ln.Addr().String())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srvSvc.Server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			_ = container.Shutdown()
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := container.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
