package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/koios/trmnl-renderer/pkg/models"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Request headers sent by TRMNL firmware
const (
	HeaderAddress        = "ID"
	HeaderAccessToken    = "Access-Token"
	HeaderModel          = "Model"
	HeaderFirmware       = "FW-Version"
	HeaderBatteryVoltage = "Battery-Voltage"
	HeaderRSSI           = "RSSI"
	HeaderWidth          = "Width"
	HeaderHeight         = "Height"
)

// ScreenImageURI is the path prefix rendered screens are served under
const ScreenImageURI = "/screens"

// DeviceRegistry is the device state the handlers read and update
type DeviceRegistry interface {
	Device(address string) (models.Device, error)
	Devices() []models.Device
	DeviceKey(address string) (string, error)
	AdvanceToNextScreen(address string) (models.Screen, error)
	RecordTelemetry(address string, t models.Telemetry) error
	RecordLogs(address string, messages []string) error
	IsAuthorized(address, key string) bool
	EvaluateFirmwareUpdate(ctx context.Context, address string) (*models.Firmware, error)
}

// ScreenRenderer renders one screen to the output directory
type ScreenRenderer interface {
	RenderScreen(ctx context.Context, s models.Screen, viewport models.Viewport, bitDepth int) (*models.ScreenRender, error)
}

// DeviceHandler serves the endpoints polled by display devices
type DeviceHandler struct {
	devices  DeviceRegistry
	screens  ScreenRenderer
	viewport models.Viewport
	logger   *zap.Logger
}

// NewDeviceHandler creates a device handler. viewport is used when a poll
// does not report its display size.
func NewDeviceHandler(devices DeviceRegistry, screens ScreenRenderer, viewport models.Viewport, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		devices:  devices,
		screens:  screens,
		viewport: viewport,
		logger:   logger,
	}
}

// RegisterRoutes registers the device endpoints and the rendered image files
func (h *DeviceHandler) RegisterRoutes(e *echo.Echo, screenDir string) {
	e.Static(ScreenImageURI, screenDir)

	api := e.Group("/api")
	api.GET("/setup", h.HandleSetup)
	api.GET("/display", h.HandleDisplay)
	api.POST("/log", h.HandleLog)
}

type setupResponse struct {
	Status     int    `json:"status"`
	APIKey     string `json:"api_key"`
	FriendlyID string `json:"friendly_id"`
	ImageURL   string `json:"image_url"`
	Message    string `json:"message"`
}

type displayResponse struct {
	Status          int    `json:"status"`
	ImageURL        string `json:"image_url"`
	ImageURLTimeout int    `json:"image_url_timeout"`
	Filename        string `json:"filename"`
	RefreshRate     int    `json:"refresh_rate"`
	ResetFirmware   bool   `json:"reset_firmware"`
	UpdateFirmware  bool   `json:"update_firmware"`
	FirmwareURL     string `json:"firmware_url"`
	SpecialFunction string `json:"special_function"`
}

type logRequest struct {
	Logs []json.RawMessage `json:"logs"`
}

// HandleSetup handles GET /api/setup and hands the device its access key
func (h *DeviceHandler) HandleSetup(c echo.Context) error {
	address := c.Request().Header.Get(HeaderAddress)

	key, err := h.devices.DeviceKey(address)
	if err != nil {
		return err
	}
	dev, err := h.devices.Device(address)
	if err != nil {
		return err
	}

	if err := h.devices.RecordTelemetry(address, readTelemetry(c.Request().Header)); err != nil {
		return err
	}

	h.logger.Info("Device setup", zap.String("address", address), zap.String("device_id", dev.ID))

	return c.JSON(http.StatusOK, setupResponse{
		Status:     http.StatusOK,
		APIKey:     key,
		FriendlyID: dev.ID,
		Message:    "Device successfully registered.",
	})
}

// HandleDisplay handles GET /api/display: it advances the device to its next
// screen, renders it and reports whether a firmware update is available.
func (h *DeviceHandler) HandleDisplay(c echo.Context) error {
	header := c.Request().Header
	address := header.Get(HeaderAddress)

	if !h.devices.IsAuthorized(address, header.Get(HeaderAccessToken)) {
		return errDeviceNotAllowed
	}

	if err := h.devices.RecordTelemetry(address, readTelemetry(header)); err != nil {
		return err
	}

	ctx := c.Request().Context()
	viewport := h.readViewport(header)

	result, err := h.RenderNext(ctx, address, viewport)
	if err != nil {
		return err
	}

	update, err := h.devices.EvaluateFirmwareUpdate(ctx, address)
	if err != nil {
		return err
	}

	resp := displayResponse{
		Status:          0,
		ImageURL:        c.Scheme() + "://" + c.Request().Host + path.Join(ScreenImageURI, result.File),
		ImageURLTimeout: 5,
		Filename:        result.Token,
		RefreshRate:     int(result.Duration.Seconds()),
		UpdateFirmware:  update != nil,
		SpecialFunction: "rewind",
	}
	if update != nil {
		resp.FirmwareURL = update.URL
	}

	return c.JSON(http.StatusOK, resp)
}

// RenderNext advances address to its next screen and renders it at the
// device's bit depth.
func (h *DeviceHandler) RenderNext(ctx context.Context, address string, viewport models.Viewport) (*models.ScreenRender, error) {
	dev, err := h.devices.Device(address)
	if err != nil {
		return nil, err
	}

	screen, err := h.devices.AdvanceToNextScreen(address)
	if err != nil {
		return nil, err
	}

	result, err := h.screens.RenderScreen(ctx, screen, viewport, dev.BitDepth)
	if err != nil {
		h.logger.Error("Screen render failed",
			zap.String("address", address),
			zap.String("screen_id", screen.ScreenID()),
			zap.Error(err))
		h.recordLastError(address, err.Error())
		return nil, err
	}

	lastError := ""
	if result.Failed {
		h.logger.Warn("Screen rendered with failed panels",
			zap.String("address", address),
			zap.String("screen_id", screen.ScreenID()))
		lastError = degradedRenderMessage
	}
	h.recordLastError(address, lastError)

	return result, nil
}

// degradedRenderMessage is reported as the device's last error when some
// panels of its screen fell back to placeholder markup.
const degradedRenderMessage = "One or more panels failed to render."

// recordLastError stores the outcome of the latest render; "" clears it
func (h *DeviceHandler) recordLastError(address, message string) {
	if err := h.devices.RecordTelemetry(address, models.Telemetry{LastError: &message}); err != nil {
		h.logger.Warn("Failed to record render outcome", zap.String("address", address), zap.Error(err))
	}
}

// HandleLog handles POST /api/log
func (h *DeviceHandler) HandleLog(c echo.Context) error {
	header := c.Request().Header
	address := header.Get(HeaderAddress)

	if !h.devices.IsAuthorized(address, header.Get(HeaderAccessToken)) {
		return errDeviceNotAllowed
	}

	var req logRequest
	if err := c.Bind(&req); err != nil {
		return &APIError{Status: http.StatusBadRequest, Message: "Invalid log payload."}
	}

	messages := make([]string, 0, len(req.Logs))
	for _, raw := range req.Logs {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			messages = append(messages, s)
			continue
		}
		messages = append(messages, string(raw))
	}

	if err := h.devices.RecordLogs(address, messages); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

func (h *DeviceHandler) readViewport(header http.Header) models.Viewport {
	viewport := h.viewport
	if w, err := strconv.Atoi(header.Get(HeaderWidth)); err == nil && w > 0 {
		viewport.Width = w
	}
	if ht, err := strconv.Atoi(header.Get(HeaderHeight)); err == nil && ht > 0 {
		viewport.Height = ht
	}
	return viewport
}

// readTelemetry collects the status headers present on a request
func readTelemetry(header http.Header) models.Telemetry {
	var t models.Telemetry

	if v := strings.TrimSpace(header.Get(HeaderModel)); v != "" {
		t.Model = &v
	}
	if v := strings.TrimSpace(header.Get(HeaderFirmware)); v != "" {
		t.FirmwareVersion = &v
	}
	if v, err := strconv.ParseFloat(header.Get(HeaderBatteryVoltage), 64); err == nil {
		t.BatteryVoltage = &v
	}
	if v, err := strconv.Atoi(header.Get(HeaderRSSI)); err == nil {
		t.SignalStrength = &v
	}
	return t
}
