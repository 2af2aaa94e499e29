package geo

import (
	"math"
	"testing"
)

func TestMilesZeroDistance(t *testing.T) {
	if d := Miles(40.7128, -74.0060, 40.7128, -74.0060); d != 0 {
		t.Fatalf("distance to self = %f, want 0", d)
	}
}

func TestMilesKnownDistance(t *testing.T) {
	// Empire State Building to Times Square, roughly 0.7 miles.
	d := Miles(40.7484, -73.9857, 40.7580, -73.9855)
	if d < 0.5 || d > 0.9 {
		t.Fatalf("distance = %f, want ~0.7", d)
	}
}

func TestMilesSymmetry(t *testing.T) {
	a := Miles(40.7484, -73.9857, 34.0522, -118.2437)
	b := Miles(34.0522, -118.2437, 40.7484, -73.9857)
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("asymmetric distance: %f vs %f", a, b)
	}
	// NYC to LA is about 2450 miles.
	if a < 2300 || a > 2600 {
		t.Fatalf("distance = %f, want ~2450", a)
	}
}
