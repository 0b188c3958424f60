// Package normalize rescales bounded numeric values into [0,1] so that
// numeric and one-hot slots share the same vector space.
package normalize

// Normalize clamps value into [min, max] and rescales it to [0,1].
// A zero-width range yields 0.
func Normalize(value, min, max float64) float64 {
	if max-min == 0 {
		return 0.0
	}

	clamped := value
	if clamped < min {
		clamped = min
	}
	if clamped > max {
		clamped = max
	}

	return (clamped - min) / (max - min)
}

// Range is an inclusive normalization range.
type Range struct {
	Min float64
	Max float64
}

// Apply normalizes value into the range.
func (r Range) Apply(value float64) float64 {
	return Normalize(value, r.Min, r.Max)
}
