package geo

import (
	"math"
	"testing"
)

func TestCardinal(t *testing.T) {
	tests := []struct {
		name    string
		heading float64
		want    string
	}{
		{"north", 0, "N"},
		{"north wraps at 360", 360, "N"},
		{"rounds up to north", 350, "N"},
		{"northeast", 44, "NE"},
		{"east", 90, "E"},
		{"southeast", 135, "SE"},
		{"south", 180, "S"},
		{"southwest", 225, "SW"},
		{"west", 270, "W"},
		{"northwest", 300, "NW"},
		{"negative heading", -90, "W"},
		{"large negative heading", -405, "NW"},
		{"more than a full turn", 450, "E"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cardinal(tt.heading); got != tt.want {
				t.Errorf("Cardinal(%v) = %q, want %q", tt.heading, got, tt.want)
			}
		})
	}
}

func TestNormalizeHeading(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{360, 0},
		{-10, 350},
		{725, 5},
		{-720, 0},
		{359.5, 359.5},
	}
	for _, tt := range tests {
		if got := NormalizeHeading(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeHeading(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestShortestDelta(t *testing.T) {
	tests := []struct {
		name     string
		from, to float64
		want     float64
	}{
		{"simple clockwise", 10, 40, 30},
		{"simple counterclockwise", 40, 10, -30},
		{"wraps through north clockwise", 350, 10, 20},
		{"wraps through north counterclockwise", 10, 350, -20},
		{"half turn", 0, 180, 180},
		{"no rotation", 123, 123, 0},
		{"unnormalized inputs", -30, 700, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShortestDelta(tt.from, tt.to)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ShortestDelta(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestShortestDeltaAlwaysBounded(t *testing.T) {
	for from := -1080.0; from <= 1080; from += 37.5 {
		for to := -1080.0; to <= 1080; to += 41.25 {
			d := ShortestDelta(from, to)
			if d < -180 || d > 180 {
				t.Fatalf("ShortestDelta(%v, %v) = %v out of range", from, to, d)
			}
			if got := NormalizeHeading(from + d); math.Abs(got-NormalizeHeading(to)) > 1e-6 &&
				math.Abs(math.Abs(got-NormalizeHeading(to))-360) > 1e-6 {
				t.Fatalf("from %v + %v lands on %v, want %v", from, d, got, NormalizeHeading(to))
			}
		}
	}
}

func TestInterpolateHeading(t *testing.T) {
	if got := InterpolateHeading(350, 10, 0); math.Abs(got-350) > 1e-9 {
		t.Errorf("start = %v, want 350", got)
	}
	if got := InterpolateHeading(350, 10, 1); math.Abs(got-10) > 1e-9 {
		t.Errorf("end = %v, want 10", got)
	}
	mid := InterpolateHeading(350, 10, 0.5)
	if math.Abs(mid-0) > 1e-9 {
		t.Errorf("midpoint = %v, want 0 (shortest path through north)", mid)
	}
}

func TestEaseInOutCubic(t *testing.T) {
	if EaseInOutCubic(0) != 0 || EaseInOutCubic(1) != 1 {
		t.Fatal("easing must start at 0 and end at 1")
	}
	prev := 0.0
	for i := 1; i <= 100; i++ {
		v := EaseInOutCubic(float64(i) / 100)
		if v < prev {
			t.Fatalf("easing not monotonic at step %d", i)
		}
		prev = v
	}
}

func TestDistanceAndBearing(t *testing.T) {
	// one degree of latitude is roughly 111 km
	d := DistanceMeters(0, 0, 1, 0)
	if d < 110000 || d > 112000 {
		t.Errorf("DistanceMeters = %v, want ~111195", d)
	}
	if b := Bearing(0, 0, 1, 0); math.Abs(b) > 1e-6 {
		t.Errorf("Bearing north = %v, want 0", b)
	}
	if b := Bearing(0, 0, 0, 1); math.Abs(b-90) > 1e-6 {
		t.Errorf("Bearing east = %v, want 90", b)
	}
}
