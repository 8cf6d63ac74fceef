package panels

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/koios/trmnl-renderer/pkg/models"
)

// Panel is a pluggable content widget. Initialize validates and applies the
// settings once; Render may be called many times on the same instance.
type Panel interface {
	Initialize(ctx context.Context, settings map[string]any) error
	Render(ctx context.Context) (models.PanelRender, error)
}

// Factory constructs an uninitialized panel
type Factory func() Panel

// Registry maps panel names to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty panel registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds or replaces the factory for name
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Lookup returns the factory for name
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownPanel, name)
	}
	return factory, nil
}

// Names returns the registered panel names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDefaultRegistry returns a registry with the built-in panels
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(JoinWifiName, NewJoinWifi)
	r.Register(TubeStatusName, NewTubeStatus)
	r.Register(ScriptName, NewScript)
	return r
}
