package models

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DefaultScreenDuration is used when a screen does not set its own duration.
const DefaultScreenDuration = 300 * time.Second

// DeviceDefinition is a device as declared in the catalog, with screen ids assigned.
type DeviceDefinition struct {
	ID         string
	Address    string
	Key        string
	BitDepth   int
	AutoUpdate bool
	Screens    []Screen
}

// catalogManifest represents the catalog.yaml structure
type catalogManifest struct {
	Devices []deviceManifest `yaml:"devices" validate:"required,min=1,unique=Address,dive"`
}

type deviceManifest struct {
	ID         string           `yaml:"id" validate:"required"`
	Address    string           `yaml:"address" validate:"required"`
	Key        string           `yaml:"key" validate:"required,min=16"`
	BitDepth   int              `yaml:"bitDepth" validate:"omitempty,oneof=1 2 4 8"`
	AutoUpdate *bool            `yaml:"autoUpdate"`
	Screens    []screenManifest `yaml:"screens" validate:"required,min=1,dive"`
}

type screenManifest struct {
	Layout   string           `yaml:"layout" validate:"required_without=Image,excluded_with=Image"`
	Panels   []PanelReference `yaml:"panels" validate:"required_with=Layout,dive"`
	Image    string           `yaml:"image" validate:"required_without=Layout"`
	Duration int              `yaml:"duration" validate:"gte=0"`
}

var catalogValidator = validator.New(validator.WithRequiredStructEnabled())

// LoadCatalog loads and validates a device catalog YAML file
func LoadCatalog(path string) ([]DeviceDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses catalog YAML, applies defaults and assigns every screen a stable id.
func ParseCatalog(data []byte) ([]DeviceDefinition, error) {
	var manifest catalogManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	if err := catalogValidator.Struct(&manifest); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	devices := make([]DeviceDefinition, 0, len(manifest.Devices))
	for _, d := range manifest.Devices {
		def := DeviceDefinition{
			ID:         d.ID,
			Address:    d.Address,
			Key:        d.Key,
			BitDepth:   d.BitDepth,
			AutoUpdate: true,
		}
		if def.BitDepth == 0 {
			def.BitDepth = 1
		}
		if d.AutoUpdate != nil {
			def.AutoUpdate = *d.AutoUpdate
		}

		for _, s := range d.Screens {
			def.Screens = append(def.Screens, s.toScreen())
		}
		devices = append(devices, def)
	}

	return devices, nil
}

func (s screenManifest) toScreen() Screen {
	duration := DefaultScreenDuration
	if s.Duration > 0 {
		duration = time.Duration(s.Duration) * time.Second
	}

	id := uuid.New().String()
	if s.Image != "" {
		return &ReferencedScreen{ID: id, Image: s.Image, Duration: duration}
	}
	return &ComposedScreen{ID: id, Layout: s.Layout, Panels: s.Panels, Duration: duration}
}
