package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koios/trmnl-renderer/internal/config"
	"github.com/koios/trmnl-renderer/pkg/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Renders e-ink screens for TRMNL devices",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the device API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var (
	renderDevice string
	renderWidth  int
	renderHeight int
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a device's next screen once and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRender(cmd.Context())
	},
}

func init() {
	renderCmd.Flags().StringVar(&renderDevice, "device", "", "device address to render for")
	renderCmd.Flags().IntVar(&renderWidth, "width", 0, "viewport width (default DEFAULT_WIDTH)")
	renderCmd.Flags().IntVar(&renderHeight, "height", 0, "viewport height (default DEFAULT_HEIGHT)")
	_ = renderCmd.MarkFlagRequired("device")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(renderCmd)
}

// newLogger builds a production logger at the configured level
func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		zcfg.Level = lvl
	}
	return zcfg.Build()
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize renderer", zap.Error(err))
		return err
	}
	defer a.Close()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      a.echo,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	logger.Info("Server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("catalog", cfg.Server.CatalogPath),
		zap.String("screens", cfg.Render.ScreenImagePath))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		logger.Error("HTTP server failed", zap.Error(err))
		return err
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	logger.Info("Server shutdown complete")
	return nil
}

func runRender(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	viewport := models.Viewport{Width: cfg.Render.DefaultWidth, Height: cfg.Render.DefaultHeight}
	if renderWidth > 0 {
		viewport.Width = renderWidth
	}
	if renderHeight > 0 {
		viewport.Height = renderHeight
	}

	result, err := a.devices.RenderNext(ctx, renderDevice, viewport)
	if err != nil {
		return fmt.Errorf("failed to render screen for %s: %w", renderDevice, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
