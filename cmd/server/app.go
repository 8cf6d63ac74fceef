package main

import (
	"context"
	"fmt"
	"time"

	"github.com/koios/trmnl-renderer/internal/config"
	"github.com/koios/trmnl-renderer/internal/device"
	"github.com/koios/trmnl-renderer/internal/firmware"
	"github.com/koios/trmnl-renderer/internal/handlers"
	"github.com/koios/trmnl-renderer/internal/panels"
	"github.com/koios/trmnl-renderer/internal/raster"
	"github.com/koios/trmnl-renderer/internal/screen"
	"github.com/koios/trmnl-renderer/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// app holds the wired rendering pipeline and HTTP surface
type app struct {
	echo    *echo.Echo
	devices *handlers.DeviceHandler
	pool    *raster.Pool
	redis   *firmware.RedisStore
	logger  *zap.Logger
}

func newFirmwareStore(cfg *config.Config, logger *zap.Logger) (firmware.Store, *firmware.RedisStore) {
	if cfg.Redis.Addr == "" {
		logger.Info("Caching firmware lookups in memory")
		return firmware.NewMemoryStore(time.Now), nil
	}

	store := firmware.NewRedisStore(&cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		logger.Warn("Redis unavailable, caching firmware lookups in memory",
			zap.String("redis_addr", cfg.Redis.Addr),
			zap.Error(err))
		store.Close()
		return firmware.NewMemoryStore(time.Now), nil
	}

	logger.Info("Caching firmware lookups in Redis",
		zap.String("redis_addr", cfg.Redis.Addr),
		zap.Int("redis_db", cfg.Redis.DB))
	return store, store
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	defs, err := models.LoadCatalog(cfg.Server.CatalogPath)
	if err != nil {
		return nil, err
	}

	store, redisStore := newFirmwareStore(cfg, logger)
	repo := firmware.NewRepository(cfg.Firmware.APIURI, store, cfg.Firmware.CacheTTL, logger)

	registry := device.NewRegistry(repo, logger)
	registry.RegisterDevices(defs)

	panelCache := panels.NewCache(panels.NewDefaultRegistry(), cfg.Render.PanelCacheSize, logger)

	pool := raster.NewPool(cfg.Render.Workers,
		raster.ChromeFactory(cfg.Render.BrowserSandbox, logger),
		cfg.Render.Timeout, logger)

	renderer, err := screen.NewRenderer(panelCache, pool,
		cfg.Render.ScreenImagePath, cfg.Render.ReferenceImagePath, logger)
	if err != nil {
		if redisStore != nil {
			redisStore.Close()
		}
		return nil, fmt.Errorf("failed to create screen renderer: %w", err)
	}

	pool.Start()

	viewport := models.Viewport{Width: cfg.Render.DefaultWidth, Height: cfg.Render.DefaultHeight}
	deviceHandler := handlers.NewDeviceHandler(registry, renderer, viewport, logger)
	adminHandler := handlers.NewAdminHandler(registry, renderer, panelCache, cfg.Admin.APIKeys, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.ErrorHandler(logger)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("Request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status))
			return nil
		},
	}))

	deviceHandler.RegisterRoutes(e, renderer.OutputDir())
	adminHandler.RegisterRoutes(e)

	return &app{
		echo:    e,
		devices: deviceHandler,
		pool:    pool,
		redis:   redisStore,
		logger:  logger,
	}, nil
}

// Close stops the raster workers and releases the Redis connection
func (a *app) Close() {
	a.pool.Stop()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close Redis", zap.Error(err))
		}
	}
}
