package layout

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/koios/trmnl-renderer/pkg/models"
)

func fragments(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("<p>panel-%d</p>", i)
	}
	return out
}

func TestLayouts(t *testing.T) {
	tests := []struct {
		name   string
		arity  int
		mashup string
	}{
		{"P1Full", 1, ""},
		{"P2L1xR1", 2, "mashup--1Lx1R"},
		{"P2T1xB1", 2, "mashup--1Tx1B"},
		{"P3L1xR2", 3, "mashup--1Lx2R"},
		{"P3L2xR1", 3, "mashup--2Lx1R"},
		{"P4Grid", 4, "mashup--2x2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Get(tt.name)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if l.Arity() != tt.arity {
				t.Errorf("Arity = %d, want %d", l.Arity(), tt.arity)
			}

			html, err := l.Compose(fragments(tt.arity))
			if err != nil {
				t.Fatalf("Compose failed: %v", err)
			}
			if !strings.HasPrefix(html, "<!DOCTYPE html>") || !strings.Contains(html, `<body class="environment trmnl">`) {
				t.Error("expected document shell")
			}
			if tt.mashup != "" && !strings.Contains(html, tt.mashup) {
				t.Errorf("expected %s in output", tt.mashup)
			}

			// fragments keep their order
			last := -1
			for i := 0; i < tt.arity; i++ {
				idx := strings.Index(html, fmt.Sprintf("panel-%d", i))
				if idx <= last {
					t.Fatalf("panel-%d out of order", i)
				}
				last = idx
			}

			for _, n := range []int{tt.arity - 1, tt.arity + 1} {
				out, err := l.Compose(fragments(n))
				if !errors.Is(err, models.ErrLayoutArityMismatch) {
					t.Errorf("Compose(%d panels): expected ErrLayoutArityMismatch, got %v", n, err)
				}
				if out != "" {
					t.Error("no partial output expected on mismatch")
				}
			}
		})
	}
}

func TestP3Layouts(t *testing.T) {
	l, _ := Get("P3L2xR1")
	html, _ := l.Compose(fragments(3))
	if strings.Count(html, "view--quadrant") != 2 || strings.Count(html, "view--half_vertical") != 1 {
		t.Errorf("P3L2xR1 should hold two quadrants and one half: %s", html)
	}
}

func TestGetUnknown(t *testing.T) {
	if _, err := Get("P5Star"); !errors.Is(err, models.ErrUnknownLayout) {
		t.Errorf("expected ErrUnknownLayout, got %v", err)
	}
	if len(Names()) != 6 {
		t.Errorf("expected 6 layouts, got %v", Names())
	}
}
