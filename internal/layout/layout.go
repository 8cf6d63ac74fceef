// Package layout arranges panel fragments into full-page HTML documents
// using the TRMNL framework grid classes.
package layout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/koios/trmnl-renderer/pkg/models"
)

const shell = `<!DOCTYPE html>
<html>
	<head>
		<meta charset="utf-8" />
		<link rel="stylesheet" href="https://usetrmnl.com/css/latest/plugins.css" />
		<script src="https://usetrmnl.com/js/latest/plugins.js"></script>
	</head>
	<body class="environment trmnl">
		<div class="screen">
			<div class="view view--full">
%s
			</div>
		</div>
	</body>
</html>`

// Layout is a named grid template accepting an exact number of panels
type Layout struct {
	name    string
	panels  int
	arrange func(b *strings.Builder, panels []string)
}

// Name returns the layout name
func (l Layout) Name() string { return l.name }

// Arity returns the exact number of panels the layout accepts
func (l Layout) Arity() int { return l.panels }

// Compose arranges the fragments and wraps them in the document shell
func (l Layout) Compose(panels []string) (string, error) {
	if len(panels) != l.panels {
		return "", fmt.Errorf("%w: %s takes %d panels, got %d", models.ErrLayoutArityMismatch, l.name, l.panels, len(panels))
	}

	var b strings.Builder
	l.arrange(&b, panels)
	return fmt.Sprintf(shell, b.String()), nil
}

func view(b *strings.Builder, class, panel string) {
	fmt.Fprintf(b, `<div class="view %s"><div class="layout">%s</div></div>`, class, panel)
}

func mashup(b *strings.Builder, class string, fill func()) {
	fmt.Fprintf(b, `<div class="mashup %s">`, class)
	fill()
	b.WriteString(`</div>`)
}

var layouts = map[string]Layout{
	"P1Full": {"P1Full", 1, func(b *strings.Builder, p []string) {
		fmt.Fprintf(b, `<div class="layout">%s</div>`, p[0])
	}},
	"P2L1xR1": {"P2L1xR1", 2, func(b *strings.Builder, p []string) {
		mashup(b, "mashup--1Lx1R", func() {
			view(b, "view--half_vertical", p[0])
			view(b, "view--half_vertical", p[1])
		})
	}},
	"P2T1xB1": {"P2T1xB1", 2, func(b *strings.Builder, p []string) {
		mashup(b, "mashup--1Tx1B", func() {
			view(b, "view--half_horizontal", p[0])
			view(b, "view--half_horizontal", p[1])
		})
	}},
	"P3L1xR2": {"P3L1xR2", 3, func(b *strings.Builder, p []string) {
		mashup(b, "mashup--1Lx2R", func() {
			view(b, "view--half_vertical", p[0])
			view(b, "view--quadrant", p[1])
			view(b, "view--quadrant", p[2])
		})
	}},
	"P3L2xR1": {"P3L2xR1", 3, func(b *strings.Builder, p []string) {
		mashup(b, "mashup--2Lx1R", func() {
			view(b, "view--quadrant", p[0])
			view(b, "view--quadrant", p[1])
			view(b, "view--half_vertical", p[2])
		})
	}},
	"P4Grid": {"P4Grid", 4, func(b *strings.Builder, p []string) {
		mashup(b, "mashup--2x2", func() {
			for _, panel := range p {
				view(b, "view--quadrant", panel)
			}
		})
	}},
}

// Get returns the layout registered under name
func Get(name string) (Layout, error) {
	l, ok := layouts[name]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %s", models.ErrUnknownLayout, name)
	}
	return l, nil
}

// Names lists the known layouts
func Names() []string {
	names := make([]string, 0, len(layouts))
	for name := range layouts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
