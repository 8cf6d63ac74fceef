package panels

import (
	"context"
	"fmt"
	"html"
	"os"
	"sort"

	"github.com/koios/trmnl-renderer/pkg/models"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ScriptName is the registry name of the Starlark script panel
const ScriptName = "script"

// maxScriptSteps bounds a single main() call so a runaway loop cannot hold a render
const maxScriptSteps = 10_000_000

type scriptSettings struct {
	Source string         `settings:"source" validate:"required_without=File"`
	File   string         `settings:"file" validate:"required_without=Source"`
	Config map[string]any `settings:"config"`
}

// Script renders markup returned by the main(config) function of a Starlark
// program. main may return a string, or a dict with "html" and "failed" keys.
type Script struct {
	filename string
	main     starlark.Callable
	config   *starlark.Dict
}

// NewScript is the Factory for Script
func NewScript() Panel {
	return &Script{}
}

var scriptBuiltins = starlark.StringDict{
	"escape": starlark.NewBuiltin("escape", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var s string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
			return nil, err
		}
		return starlark.String(html.EscapeString(s)), nil
	}),
}

// Initialize loads and executes the program once, keeping its frozen main
func (p *Script) Initialize(_ context.Context, settings map[string]any) error {
	var s scriptSettings
	if err := decodeSettings(settings, &s); err != nil {
		return err
	}

	p.filename = "panel.star"
	var src interface{} = s.Source
	if s.File != "" {
		data, err := os.ReadFile(s.File)
		if err != nil {
			return fmt.Errorf("failed to read script: %w", err)
		}
		p.filename = s.File
		src = data
	}

	thread := &starlark.Thread{Name: "init:" + p.filename}
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{While: true, TopLevelControl: true}, thread, p.filename, src, scriptBuiltins)
	if err != nil {
		return fmt.Errorf("failed to load script: %w", err)
	}
	globals.Freeze()

	main, ok := globals["main"].(starlark.Callable)
	if !ok {
		return fmt.Errorf("script %s does not define a main function", p.filename)
	}

	config, err := toStarlarkDict(s.Config)
	if err != nil {
		return err
	}
	config.Freeze()

	p.main = main
	p.config = config
	return nil
}

// Render calls main(config)
func (p *Script) Render(ctx context.Context) (models.PanelRender, error) {
	thread := &starlark.Thread{Name: "render:" + p.filename}
	thread.SetLocal("context", ctx)
	thread.SetMaxExecutionSteps(maxScriptSteps)

	stop := context.AfterFunc(ctx, func() { thread.Cancel(ctx.Err().Error()) })
	defer stop()

	value, err := starlark.Call(thread, p.main, starlark.Tuple{p.config}, nil)
	if err != nil {
		return models.PanelRender{}, fmt.Errorf("script %s failed: %w", p.filename, err)
	}

	return scriptResult(value)
}

func scriptResult(value starlark.Value) (models.PanelRender, error) {
	if s, ok := starlark.AsString(value); ok {
		return models.PanelRender{HTML: s}, nil
	}

	dict, ok := value.(*starlark.Dict)
	if !ok {
		return models.PanelRender{}, fmt.Errorf("main must return a string or dict, got %s", value.Type())
	}

	var result models.PanelRender
	if v, found, _ := dict.Get(starlark.String("html")); found {
		s, ok := starlark.AsString(v)
		if !ok {
			return models.PanelRender{}, fmt.Errorf("html must be a string, got %s", v.Type())
		}
		result.HTML = s
	}
	if v, found, _ := dict.Get(starlark.String("failed")); found {
		result.Failed = bool(v.Truth())
	}
	return result, nil
}

func toStarlarkDict(m map[string]any) (*starlark.Dict, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dict := starlark.NewDict(len(m))
	for _, k := range keys {
		v, err := toStarlark(m[k])
		if err != nil {
			return nil, fmt.Errorf("config %q: %w", k, err)
		}
		if err := dict.SetKey(starlark.String(k), v); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

func toStarlark(v any) (starlark.Value, error) {
	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(v), nil
	case bool:
		return starlark.Bool(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case uint64:
		return starlark.MakeUint64(v), nil
	case float64:
		return starlark.Float(v), nil
	case []any:
		items := make([]starlark.Value, 0, len(v))
		for _, item := range v {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			items = append(items, sv)
		}
		return starlark.NewList(items), nil
	case map[string]any:
		return toStarlarkDict(v)
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
