package models

import "time"

// PanelRender is the markup produced by a single panel. Failed marks degraded
// output that should still be composed.
type PanelRender struct {
	HTML   string `json:"html"`
	Failed bool   `json:"failed"`
}

// Viewport is the target raster size in pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ScreenRender is the result of rendering a screen to the output directory
type ScreenRender struct {
	ScreenID string        `json:"screen_id"`
	File     string        `json:"file"`
	Path     string        `json:"path"`
	Token    string        `json:"token"`
	Duration time.Duration `json:"duration"`
	Failed   bool          `json:"failed"`
}
