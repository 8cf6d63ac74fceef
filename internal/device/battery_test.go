package device

import (
	"math"
	"testing"
)

func TestVoltageToPercentage(t *testing.T) {
	t.Run("clamped below range", func(t *testing.T) {
		for _, v := range []float64{-1, 0, 0.2, 0.45, math.NaN()} {
			if got := VoltageToPercentage(v); got != 10 {
				t.Errorf("VoltageToPercentage(%v) = %d, want 10", v, got)
			}
		}
	})

	t.Run("clamped above range", func(t *testing.T) {
		for _, v := range []float64{4.06, 4.2, 12} {
			if got := VoltageToPercentage(v); got != 100 {
				t.Errorf("VoltageToPercentage(%v) = %d, want 100", v, got)
			}
		}
	})

	t.Run("anchors", func(t *testing.T) {
		if got := VoltageToPercentage(4.05); got != 100 {
			t.Errorf("VoltageToPercentage(4.05) = %d, want 100", got)
		}
		if got := VoltageToPercentage(2.25); got != 55 {
			t.Errorf("VoltageToPercentage(2.25) = %d, want 55", got)
		}
	})

	t.Run("monotonic", func(t *testing.T) {
		prev := VoltageToPercentage(0)
		for v := 0.0; v <= 5.0; v += 0.001 {
			got := VoltageToPercentage(v)
			if got < prev {
				t.Fatalf("percentage decreased at %.3fV: %d < %d", v, got, prev)
			}
			if got < 10 || got > 100 {
				t.Fatalf("percentage out of range at %.3fV: %d", v, got)
			}
			prev = got
		}
	})
}
