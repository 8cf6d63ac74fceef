package models

import "time"

// Screen is one full-display image definition. It is either a *ComposedScreen
// or a *ReferencedScreen.
type Screen interface {
	ScreenID() string
	DisplayDuration() time.Duration
	isScreen()
}

// PanelReference names a panel plugin and the settings it is initialized with.
type PanelReference struct {
	Name     string         `yaml:"name" json:"name" validate:"required"`
	Settings map[string]any `yaml:"settings" json:"settings"`
}

// ComposedScreen is rendered from panels arranged in a named layout.
type ComposedScreen struct {
	ID       string
	Layout   string
	Panels   []PanelReference
	Duration time.Duration
}

func (s *ComposedScreen) ScreenID() string               { return s.ID }
func (s *ComposedScreen) DisplayDuration() time.Duration { return s.Duration }
func (*ComposedScreen) isScreen()                        {}

// ReferencedScreen serves a pre-supplied image verbatim.
type ReferencedScreen struct {
	ID       string
	Image    string
	Duration time.Duration
}

func (s *ReferencedScreen) ScreenID() string               { return s.ID }
func (s *ReferencedScreen) DisplayDuration() time.Duration { return s.Duration }
func (*ReferencedScreen) isScreen()                        {}
