package device

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"

	"github.com/koios/trmnl-renderer/internal/firmware"
	"github.com/koios/trmnl-renderer/pkg/models"
	"go.uber.org/zap"
)

// FirmwareSource provides the latest published firmware
type FirmwareSource interface {
	Latest(ctx context.Context) (*models.Firmware, error)
}

// entry is the mutable state of one device. Its mutex serializes cursor
// advances and telemetry writes for that address only.
type entry struct {
	mu      sync.Mutex
	device  models.Device
	key     string
	screens []models.Screen
}

// Registry owns per-device rotation state and telemetry
type Registry struct {
	mu       sync.RWMutex
	devices  map[string]*entry
	firmware FirmwareSource
	logger   *zap.Logger
}

// NewRegistry creates an empty device registry
func NewRegistry(firmware FirmwareSource, logger *zap.Logger) *Registry {
	return &Registry{
		devices:  make(map[string]*entry),
		firmware: firmware,
		logger:   logger,
	}
}

// RegisterDevices replaces the device table. Every device starts before its
// first screen.
func (r *Registry) RegisterDevices(defs []models.DeviceDefinition) {
	devices := make(map[string]*entry, len(defs))
	for _, def := range defs {
		bitDepth := def.BitDepth
		if bitDepth <= 0 {
			bitDepth = 1
		}

		devices[def.Address] = &entry{
			key:     def.Key,
			screens: append([]models.Screen(nil), def.Screens...),
			device: models.Device{
				ID:             def.ID,
				Address:        def.Address,
				BitDepth:       bitDepth,
				AutoUpdate:     def.AutoUpdate,
				RotationCursor: -1,
				ScreenCount:    len(def.Screens),
			},
		}

		r.logger.Info("Loaded device",
			zap.String("device_id", def.ID),
			zap.String("address", def.Address),
			zap.Int("screens", len(def.Screens)))
	}

	r.mu.Lock()
	r.devices = devices
	r.mu.Unlock()
}

func (r *Registry) lookup(address string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.devices[address]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrDeviceNotFound, address)
	}
	return e, nil
}

// Device returns a snapshot of the device registered under address
func (r *Registry) Device(address string) (models.Device, error) {
	e, err := r.lookup(address)
	if err != nil {
		return models.Device{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.device, nil
}

// Devices returns snapshots of every registered device
func (r *Registry) Devices() []models.Device {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.devices))
	for _, e := range r.devices {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	devices := make([]models.Device, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		devices = append(devices, e.device)
		e.mu.Unlock()
	}
	return devices
}

// DeviceKey returns the access key of a registered device
func (r *Registry) DeviceKey(address string) (string, error) {
	e, err := r.lookup(address)
	if err != nil {
		return "", err
	}
	return e.key, nil
}

// AdvanceToNextScreen moves the rotation cursor forward, wrapping past the
// last screen, and returns the selected screen.
func (r *Registry) AdvanceToNextScreen(address string) (models.Screen, error) {
	e, err := r.lookup(address)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.screens) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrNoScreens, address)
	}

	e.device.RotationCursor = (e.device.RotationCursor + 1) % len(e.screens)
	screen := e.screens[e.device.RotationCursor]

	r.logger.Debug("Advanced device to next screen",
		zap.String("address", address),
		zap.Int("cursor", e.device.RotationCursor),
		zap.String("screen_id", screen.ScreenID()))

	return screen, nil
}

// RecordTelemetry applies a partial status update; nil fields are left unchanged
func (r *Registry) RecordTelemetry(address string, t models.Telemetry) error {
	e, err := r.lookup(address)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	fields := []zap.Field{zap.String("address", address)}

	if t.Model != nil {
		e.device.Model = *t.Model
		fields = append(fields, zap.String("model", *t.Model))
	}
	if t.FirmwareVersion != nil {
		e.device.FirmwareVersion = *t.FirmwareVersion
		fields = append(fields, zap.String("firmware", *t.FirmwareVersion))
	}
	if t.BatteryVoltage != nil {
		e.device.BatteryPercent = VoltageToPercentage(*t.BatteryVoltage)
		fields = append(fields, zap.Int("battery", e.device.BatteryPercent))
	}
	if t.SignalStrength != nil {
		e.device.SignalStrength = *t.SignalStrength
		fields = append(fields, zap.Int("rssi", *t.SignalStrength))
	}
	if t.LastError != nil {
		e.device.LastError = *t.LastError
		fields = append(fields, zap.String("error", *t.LastError))
	}

	r.logger.Debug("Updated device telemetry", fields...)
	return nil
}

// RecordLogs writes log lines reported by a device
func (r *Registry) RecordLogs(address string, messages []string) error {
	if _, err := r.lookup(address); err != nil {
		return err
	}

	for _, message := range messages {
		r.logger.Info("Device log", zap.String("address", address), zap.String("message", message))
	}
	return nil
}

// IsAuthorized reports whether key matches the device's access key. Unknown
// addresses are simply unauthorized.
func (r *Registry) IsAuthorized(address, key string) bool {
	if key == "" {
		return false
	}

	e, err := r.lookup(address)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(e.key), []byte(key)) == 1
}

// EvaluateFirmwareUpdate returns the latest firmware when the device opted in
// to automatic updates and is running an older version, nil otherwise.
func (r *Registry) EvaluateFirmwareUpdate(ctx context.Context, address string) (*models.Firmware, error) {
	dev, err := r.Device(address)
	if err != nil {
		return nil, err
	}

	if !dev.AutoUpdate || dev.FirmwareVersion == "" || r.firmware == nil {
		return nil, nil
	}

	latest, err := r.firmware.Latest(ctx)
	if err != nil {
		r.logger.Warn("Failed to resolve latest firmware", zap.String("address", address), zap.Error(err))
		return nil, nil
	}

	if !firmware.IsNewer(latest.Version, dev.FirmwareVersion) {
		return nil, nil
	}

	r.logger.Info("Device firmware is out of date",
		zap.String("address", address),
		zap.String("current", dev.FirmwareVersion),
		zap.String("latest", latest.Version))

	return latest, nil
}
