package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/moonbridge/internal/host"
	"github.com/GriffinCanCode/moonbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/moonbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/moonbridge/internal/infrastructure/server"
	"github.com/GriffinCanCode/moonbridge/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "host:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "YAML or TOML config file")
	port := flag.String("port", "", "API port (overrides config)")
	page := flag.String("page", "", "Hosting page path or URL (overrides config)")
	dev := flag.Bool("dev", false, "Development mode (colored logs, debug level)")
	serve := flag.Bool("serve", true, "Serve the introspection API")
	resolve := flag.String("resolve", "", "Comma-separated catalog classes to resolve at start-up")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *page != "" {
		cfg.Host.PageSource = *page
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	metrics := monitoring.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := host.New(ctx, host.Options{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			logger.Error("Host shutdown incomplete", zap.Error(err))
		}
	}()

	for _, name := range splitList(*resolve) {
		td, err := h.Resolve(name)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", name, err)
		}
		logger.Info("Resolved class",
			zap.String("type", td.Name()),
			zap.Int32("native_handle", int32(td.NativeHandle)),
		)
	}

	if !*serve || !cfg.Server.Enabled {
		return nil
	}

	srv := server.New(cfg, h, metrics, logger)
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errChan:
		return err
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
