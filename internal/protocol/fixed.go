package protocol

import "math"

// Fixed is a signed 24.8 fixed-point number: 24 integer bits, 8 fractional
// bits, two's complement. It is the wire representation for sub-integer
// magnitudes such as force, tilt and alpha.
type Fixed int32

const fixedScale = 256

// Representable range of Fixed as floating point.
const (
	FixedMin = float64(math.MinInt32) / fixedScale
	FixedMax = float64(math.MaxInt32) / fixedScale
)

// FixedFromFloat converts f to fixed point. The conversion rounds half to
// even and clamps to [FixedMin, FixedMax]; NaN converts to zero.
func FixedFromFloat(f float64) Fixed {
	if math.IsNaN(f) {
		return 0
	}
	r := math.RoundToEven(f * fixedScale)
	if r > float64(math.MaxInt32) {
		return Fixed(math.MaxInt32)
	}
	if r < float64(math.MinInt32) {
		return Fixed(math.MinInt32)
	}
	return Fixed(r)
}

// Float returns the floating point value of f. Exact: every Fixed is
// representable in a float64.
func (f Fixed) Float() float64 {
	return float64(f) / fixedScale
}

// FixedFromInt converts i to fixed point, clamping to the 24-bit integer
// range.
func FixedFromInt(i int32) Fixed {
	if i > math.MaxInt32/fixedScale {
		return Fixed(math.MaxInt32)
	}
	if i < math.MinInt32/fixedScale {
		return Fixed(math.MinInt32)
	}
	return Fixed(i * fixedScale)
}

// Int returns the integer part of f, truncated toward zero.
func (f Fixed) Int() int32 {
	return int32(f / fixedScale)
}
