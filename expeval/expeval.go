/*package expeval evaluates the exponential attenuation term
1 - exp(-tau / sin(theta_p)) appearing in the characteristic transport
equation. The term is needed once per segment, polar angle, and energy group,
so the evaluator optionally replaces the transcendental call with a uniform
piecewise-linear table whose spacing is chosen analytically from a target
precision.
*/
package expeval

import (
	"math"

	"gomoc/quad"
)

const (
	defaultMaxTau    = 10.0
	defaultPrecision = 1e-5
)

// Evaluator computes exponential attenuation factors in [0, 1] for optical
// lengths in [0, MaxOpticalLength]. The zero value is not usable; call New.
type Evaluator struct {
	pq          quad.Polar
	interpolate bool
	maxTau      float64
	precision   float64

	// Interpolation table. Secant coefficients are stored per (bin, polar
	// angle) pair; the table is rebuilt by Build and replaced in one
	// assignment so a built evaluator never exposes partial state.
	numPolar   int
	bins       int
	invSpacing float64
	slopes     []float64
	intercepts []float64
}

// New creates an evaluator with table interpolation enabled, a maximum
// optical length of 10, and a precision of 1e-5.
func New() *Evaluator {
	return &Evaluator{
		interpolate: true,
		maxTau:      defaultMaxTau,
		precision:   defaultPrecision,
	}
}

// SetQuadrature binds the polar quadrature. The table must be rebuilt
// afterwards.
func (ev *Evaluator) SetQuadrature(pq quad.Polar) {
	ev.pq = pq
	ev.slopes = nil
}

// SetMaxOpticalLength sets the upper bound of the table domain. Segments
// with larger optical lengths must be split before sweeping.
func (ev *Evaluator) SetMaxOpticalLength(tau float64) {
	ev.maxTau = tau
	ev.slopes = nil
}

// MaxOpticalLength returns the table domain bound.
func (ev *Evaluator) MaxOpticalLength() float64 { return ev.maxTau }

// SetPrecision sets the maximum allowed interpolation error.
func (ev *Evaluator) SetPrecision(p float64) {
	ev.precision = p
	ev.slopes = nil
}

// UseInterpolation selects table mode. Takes effect on the next Build.
func (ev *Evaluator) UseInterpolation() { ev.interpolate = true }

// UseDirect selects direct evaluation of the exponential.
func (ev *Evaluator) UseDirect() {
	ev.interpolate = false
	ev.slopes = nil
}

// Interpolating returns true if the evaluator is in table mode.
func (ev *Evaluator) Interpolating() bool { return ev.interpolate }

// Build constructs the interpolation table. It must be called after the
// quadrature, domain, or precision change and before any sweep reads the
// evaluator. In direct mode it is a no-op.
func (ev *Evaluator) Build() {
	ev.numPolar = ev.pq.NumAngles()
	if !ev.interpolate {
		return
	}

	// The linear secant over a bin of width h has error at most
	// h^2/8 * max|f''|, and |f''| <= 1/sin^2(theta) with the smallest sine
	// first in the quadrature ordering.
	sinMin := ev.pq.SinTheta(0)
	spacing := sinMin * math.Sqrt(8*ev.precision)
	bins := int(ev.maxTau/spacing) + 1

	n := ev.numPolar
	slopes := make([]float64, bins*n)
	intercepts := make([]float64, bins*n)
	for i := 0; i < bins; i++ {
		t0 := float64(i) * spacing
		t1 := t0 + spacing
		for p := 0; p < n; p++ {
			sin := ev.pq.SinTheta(p)
			f0 := 1 - math.Exp(-t0/sin)
			f1 := 1 - math.Exp(-t1/sin)
			slope := (f1 - f0) / spacing
			slopes[i*n+p] = slope
			intercepts[i*n+p] = f0 - slope*t0
		}
	}

	ev.bins = bins
	ev.invSpacing = 1 / spacing
	ev.intercepts = intercepts
	ev.slopes = slopes
}

// Attenuation returns 1 - exp(-tau/sin(theta_p)) for an optical length tau
// and polar angle index p. The result is exactly zero at tau = 0,
// nondecreasing in tau, and saturates at exactly 1 once exp(-tau/sin)
// underflows the float64 significand (tau/sin above roughly 37).
func (ev *Evaluator) Attenuation(tau float64, p int) float64 {
	if ev.slopes == nil {
		return 1 - math.Exp(-tau/ev.pq.SinTheta(p))
	}
	i := int(tau * ev.invSpacing)
	if i >= ev.bins {
		i = ev.bins - 1
	}
	f := ev.slopes[i*ev.numPolar+p]*tau + ev.intercepts[i*ev.numPolar+p]
	if f > 1 {
		return 1
	}
	return f
}
