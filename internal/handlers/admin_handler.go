package handlers

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// maxReferenceImageSize caps uploaded reference images
const maxReferenceImageSize = 8 << 20

// ReferenceStore stores the pre-supplied images served by referenced screens
type ReferenceStore interface {
	UpdateReferenceImage(name string, data []byte) error
}

// PanelStats reports panel cache occupancy
type PanelStats interface {
	Len() int
}

// AdminHandler serves service health and operator endpoints
type AdminHandler struct {
	devices    DeviceRegistry
	references ReferenceStore
	panels     PanelStats
	keys       []string
	logger     *zap.Logger
}

// NewAdminHandler creates an admin handler accepting any of keys
func NewAdminHandler(devices DeviceRegistry, references ReferenceStore, panels PanelStats, keys []string, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		devices:    devices,
		references: references,
		panels:     panels,
		keys:       keys,
		logger:     logger,
	}
}

// RegisterRoutes registers /health and the key protected /admin routes
func (h *AdminHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.HandleHealth)

	admin := e.Group("/admin", middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Validator: func(key string, _ echo.Context) (bool, error) {
			return h.IsAuthorizedAdmin(key), nil
		},
	}))
	admin.GET("/devices", h.HandleDevices)
	admin.GET("/:address/status", h.HandleDeviceStatus)
	admin.PUT("/references/:name", h.HandleUpdateReference)
}

// IsAuthorizedAdmin reports whether key is one of the configured admin keys
func (h *AdminHandler) IsAuthorizedAdmin(key string) bool {
	if key == "" {
		return false
	}

	authorized := false
	for _, k := range h.keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			authorized = true
		}
	}
	return authorized
}

// HandleHealth handles GET /health
func (h *AdminHandler) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "healthy",
		"service": "trmnl-renderer",
		"devices": len(h.devices.Devices()),
	}
	if h.panels != nil {
		resp["panels"] = h.panels.Len()
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleDevices handles GET /admin/devices
func (h *AdminHandler) HandleDevices(c echo.Context) error {
	return c.JSON(http.StatusOK, h.devices.Devices())
}

// HandleDeviceStatus handles GET /admin/:address/status
func (h *AdminHandler) HandleDeviceStatus(c echo.Context) error {
	dev, err := h.devices.Device(c.Param("address"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dev)
}

// HandleUpdateReference handles PUT /admin/references/:name with the raw
// image as the request body.
func (h *AdminHandler) HandleUpdateReference(c echo.Context) error {
	name := c.Param("name")

	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxReferenceImageSize+1))
	if err != nil {
		return &APIError{Status: http.StatusBadRequest, Message: "Could not read image."}
	}
	if len(data) == 0 || len(data) > maxReferenceImageSize {
		return &APIError{Status: http.StatusBadRequest, Message: "Image must be between 1 byte and 8 MiB."}
	}

	if err := h.references.UpdateReferenceImage(name, data); err != nil {
		h.logger.Warn("Failed to store reference image", zap.String("name", name), zap.Error(err))
		return &APIError{Status: http.StatusBadRequest, Message: "Could not store image."}
	}

	h.logger.Info("Updated reference image", zap.String("name", name), zap.Int("size", len(data)))
	return c.JSON(http.StatusOK, map[string]string{"status": "updated", "name": name})
}
