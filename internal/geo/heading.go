package geo

import "math"

var cardinals = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// NormalizeHeading maps any heading in degrees into [0, 360).
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	// math.Mod can leave -0 or exactly 360 after the correction above
	if h >= 360 || h == 0 {
		return 0
	}
	return h
}

// Cardinal returns the 8-point compass label nearest to heading h.
func Cardinal(h float64) string {
	idx := int(math.Round(NormalizeHeading(h)/45)) % 8
	return cardinals[idx]
}

// ShortestDelta returns the signed rotation from one heading to another,
// always within [-180, 180].
func ShortestDelta(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d > 180 {
		d -= 360
	} else if d < -180 {
		d += 360
	}
	return d
}

// AngularDistance is the absolute shortest rotation between two headings.
func AngularDistance(a, b float64) float64 {
	return math.Abs(ShortestDelta(a, b))
}

// ClampPitch bounds a pitch to the viewer's valid range.
func ClampPitch(p float64) float64 {
	return Clamp(p, -90, 90)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EaseInOutCubic maps linear progress t in [0,1] onto an eased curve.
func EaseInOutCubic(t float64) float64 {
	t = Clamp(t, 0, 1)
	if t < 0.5 {
		return 4 * t * t * t
	}
	f := -2*t + 2
	return 1 - f*f*f/2
}

// InterpolateHeading moves from start towards target along the shortest
// path by eased progress t.
func InterpolateHeading(start, target, t float64) float64 {
	return NormalizeHeading(start + ShortestDelta(start, target)*EaseInOutCubic(t))
}

// InterpolatePitch eases linearly between two pitches.
func InterpolatePitch(start, target, t float64) float64 {
	return start + (target-start)*EaseInOutCubic(t)
}
