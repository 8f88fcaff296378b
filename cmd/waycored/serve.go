package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/exogonal/waycore/internal/blending"
	"github.com/exogonal/waycore/internal/compositor"
	"github.com/exogonal/waycore/internal/config"
	"github.com/exogonal/waycore/internal/display"
	"github.com/exogonal/waycore/internal/observability"
	"github.com/exogonal/waycore/internal/sampler"
	"github.com/exogonal/waycore/internal/seat"
	"github.com/exogonal/waycore/internal/stylus"
	"github.com/exogonal/waycore/internal/transport"
)

// loadConfig overlays the file, when present, and any set flags over
// the defaults. A missing file only errors when --config named it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	_, statErr := os.Stat(cfgFile)
	switch {
	case statErr == nil:
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	case cmd.Flags().Changed("config"):
		return config.Config{}, fmt.Errorf("load waycored config: %w", statErr)
	}

	if cmd.Flags().Changed("socket") {
		cfg.Socket = socketFlag
	}
	if cmd.Flags().Changed("debug-addr") {
		cfg.DebugAddr = debugAddrFlag
	}
	if cmd.Flags().Changed("max-clients") {
		cfg.MaxClients = maxClientsFlag
	}
	if cmd.Flags().Changed("sampler") {
		cfg.Sampler.Enabled = samplerFlag
	}

	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := observability.InitLogger("waycored", cfg.LogLevel, cfg.LogFormat)

	srv := display.NewServer(display.Config{
		Logger:     logger,
		MaxClients: cfg.MaxClients,
	})
	compF := compositor.New(logger)
	seatF := seat.New(logger)
	styF := stylus.New(logger)
	blendF := blending.New(logger)
	for _, register := range []func(*display.Server) error{
		compF.Register,
		seatF.Register,
		styF.Register,
		blendF.Register,
	} {
		if err := register(srv); err != nil {
			return fmt.Errorf("register globals: %w", err)
		}
	}

	socketPath := config.ResolveSocket(cfg.Socket)
	ln, err := transport.Listen(socketPath, transport.DefaultLimits())
	if err != nil {
		return err
	}
	logger.Info().Str("socket", socketPath).Msg("display socket ready")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	debug := observability.NewDebugServer(cfg.DebugAddr, logger, cfg.CorsOrigins, srv)
	blendF.RegisterDebug(debug.Router())
	debugErr := make(chan error, 1)
	go func() {
		debugErr <- debug.Run(ctx)
	}()

	if cfg.Sampler.Enabled {
		smp := sampler.New(logger, seatF, compF, styF, cfg.Sampler.Interval)
		go func() {
			_ = smp.Run(ctx)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ctx, ln)
	}()

	logger.Info().Str("debug_addr", cfg.DebugAddr).Msg("waycored running")
	select {
	case err := <-serveErr:
		return err
	case err := <-debugErr:
		if err != nil {
			return err
		}
		return <-serveErr
	}
}
