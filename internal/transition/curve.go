/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package transition

import "math"

// Curve is an easing function applied to linear progress.
type Curve string

const (
	CurveLinear      Curve = "linear"
	CurveSmooth      Curve = "smooth"
	CurveExponential Curve = "exponential"
	CurveLogarithmic Curve = "logarithmic"
)

// Apply maps progress in 0..1 through the curve. Progress outside the range
// is clamped. Unknown curves are linear.
func (c Curve) Apply(progress float64) float64 {
	p := clamp01(progress)
	switch c {
	case CurveSmooth:
		// cubic ease-in-out
		if p < 0.5 {
			return 4 * p * p * p
		}
		q := 2*p - 2
		return 1 + q*q*q/2
	case CurveExponential:
		return p * p
	case CurveLogarithmic:
		return math.Sqrt(p)
	default:
		return p
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// phase rescales progress inside [start, end] to 0..1.
func phase(p, start, end float64) float64 {
	if end <= start {
		if p >= end {
			return 1
		}
		return 0
	}
	return clamp01((p - start) / (end - start))
}

// staircase quantizes p into n equal steps, reaching 1 only at p == 1.
func staircase(p float64, n int) float64 {
	if p >= 1 {
		return 1
	}
	return math.Floor(clamp01(p)*float64(n)) / float64(n)
}
