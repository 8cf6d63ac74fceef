package models

import "errors"

// Error kinds shared across the rendering pipeline. Callers match them with errors.Is.
var (
	ErrDeviceNotFound            = errors.New("device not found")
	ErrNotAuthorized             = errors.New("not authorized")
	ErrNoScreens                 = errors.New("device has no screens")
	ErrUnknownPanel              = errors.New("unknown panel")
	ErrPanelInitializationFailed = errors.New("panel initialization failed")
	ErrPanelRenderFailed         = errors.New("panel render failed")
	ErrUnknownLayout             = errors.New("unknown layout")
	ErrLayoutArityMismatch       = errors.New("layout arity mismatch")
	ErrRasterizationFailed       = errors.New("rasterization failed")
	ErrEncodingFailed            = errors.New("encoding failed")
	ErrReferenceImageMissing     = errors.New("reference image missing")
)
