package units

import (
	"math"
	"testing"
)

func TestMetresPer(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		unit     string
		expected float64
	}{
		{"metres unchanged", 9.9, Metre, 9.9},
		{"empty unit is metres", 0.25, "", 0.25},
		{"centimetres", 25, Centimetre, 0.25},
		{"millimetres", 140, Millimetre, 0.14},
		{"zero", 0, Millimetre, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := MetresPer(tt.unit)
			if err != nil {
				t.Fatalf("MetresPer(%s) returned error: %v", tt.unit, err)
			}
			if result := tt.value * f; math.Abs(result-tt.expected) > 1e-12 {
				t.Errorf("%f %s = %f m, want %f", tt.value, tt.unit, result, tt.expected)
			}
		})
	}
}

func TestMetresPer_InvalidUnit(t *testing.T) {
	if _, err := MetresPer("ft"); err == nil {
		t.Error("expected error for unsupported unit")
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid m", Metre, true},
		{"valid cm", Centimetre, true},
		{"valid mm", Millimetre, true},
		{"invalid unit", "in", false},
		{"empty string", "", false},
		{"case sensitive", "MM", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValid(tt.unit)
			if result != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.unit, result, tt.expected)
			}
		})
	}
}
