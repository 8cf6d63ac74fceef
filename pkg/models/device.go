package models

import "time"

// Device is a point-in-time snapshot of a registered display device.
// RotationCursor is -1 until the device polls for the first time.
type Device struct {
	ID              string `json:"id"`
	Address         string `json:"address"`
	BitDepth        int    `json:"bit_depth"`
	AutoUpdate      bool   `json:"auto_update"`
	RotationCursor  int    `json:"rotation_cursor"`
	ScreenCount     int    `json:"screen_count"`
	Model           string `json:"model,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	BatteryPercent  int    `json:"battery_percent"`
	SignalStrength  int    `json:"signal_strength"`
	LastError       string `json:"last_error,omitempty"`
}

// Telemetry carries a partial device status update. Nil fields are left unchanged.
type Telemetry struct {
	Model           *string
	FirmwareVersion *string
	BatteryVoltage  *float64
	SignalStrength  *int
	LastError       *string
}

// Firmware describes the latest firmware build published upstream.
type Firmware struct {
	URL       string    `json:"url" msgpack:"url"`
	Version   string    `json:"version" msgpack:"version"`
	FetchedAt time.Time `json:"fetched_at" msgpack:"fetched_at"`
}
