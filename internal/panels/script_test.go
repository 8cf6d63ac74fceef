package panels

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestScript(t *testing.T) {
	ctx := context.Background()

	t.Run("returns string markup", func(t *testing.T) {
		p := NewScript()
		err := p.Initialize(ctx, map[string]any{
			"source": `
def main(config):
    return "<h1>%s</h1>" % escape(config["title"])
`,
			"config": map[string]any{"title": "Hi & bye"},
		})
		if err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}

		result, err := p.Render(ctx)
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		if result.HTML != "<h1>Hi &amp; bye</h1>" {
			t.Errorf("HTML = %q", result.HTML)
		}
	})

	t.Run("returns dict markup", func(t *testing.T) {
		p := NewScript()
		err := p.Initialize(ctx, map[string]any{
			"source": `
def main(config):
    return {"html": "<p>%d items</p>" % len(config["items"]), "failed": True}
`,
			"config": map[string]any{"items": []any{"a", 2, 3.5, true}},
		})
		if err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}

		result, err := p.Render(ctx)
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		if result.HTML != "<p>4 items</p>" || !result.Failed {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("loads from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "clock.star")
		os.WriteFile(path, []byte("def main(config):\n    return \"<p>file</p>\"\n"), 0644)

		p := NewScript()
		if err := p.Initialize(ctx, map[string]any{"file": path}); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
		result, _ := p.Render(ctx)
		if result.HTML != "<p>file</p>" {
			t.Errorf("HTML = %q", result.HTML)
		}
	})

	t.Run("runaway script is cancelled", func(t *testing.T) {
		p := NewScript()
		err := p.Initialize(ctx, map[string]any{"source": `
def main(config):
    while True:
        pass
`})
		if err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}

		renderCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		if _, err := p.Render(renderCtx); err == nil {
			t.Error("expected cancellation error")
		}
	})

	invalid := []struct {
		name     string
		settings map[string]any
		contains string
	}{
		{"no source", map[string]any{}, "invalid settings"},
		{"syntax error", map[string]any{"source": "def main(:"}, "failed to load script"},
		{"no main", map[string]any{"source": "x = 1"}, "does not define a main"},
		{"missing file", map[string]any{"file": "/nonexistent.star"}, "failed to read script"},
		{"unsupported config", map[string]any{"source": "def main(c):\n    return ''\n", "config": map[string]any{"t": time.Now()}}, "unsupported value type"},
	}

	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			err := NewScript().Initialize(ctx, tt.settings)
			if err == nil || !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("expected error containing %q, got %v", tt.contains, err)
			}
		})
	}

	t.Run("non-string result", func(t *testing.T) {
		p := NewScript()
		p.Initialize(ctx, map[string]any{"source": "def main(c):\n    return 42\n"})
		if _, err := p.Render(ctx); err == nil {
			t.Error("expected error for int result")
		}
	})
}
