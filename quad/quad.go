/*package quad supplies polar angle quadratures for projecting the 3D
transport equation onto 2D characteristic tracks.
*/
package quad

import (
	"fmt"
	"math"

	gquad "gonum.org/v1/gonum/integrate/quad"
)

// Polar is a discrete polar angle quadrature over one half-space. Weights
// sum to one; Multiple is the weight times the sine of the polar angle and
// is the factor each track-integrated contribution picks up.
type Polar interface {
	NumAngles() int
	SinTheta(p int) float64
	Weight(p int) float64
	Multiple(p int) float64
}

// TabuchiYamamoto is the TY quadrature, optimized for the flat-source
// characteristics method. It is tabulated for one, two, or three angles.
type TabuchiYamamoto struct {
	sins, weights []float64
}

var tySins = [][]float64{
	{0.798184},
	{0.363900, 0.899900},
	{0.166648, 0.537707, 0.932954},
}

var tyWeights = [][]float64{
	{1.0},
	{0.212854, 0.787146},
	{0.046233, 0.283619, 0.670148},
}

// NewTabuchiYamamoto creates a TY quadrature with n polar angles. Only
// n = 1, 2, or 3 are tabulated.
func NewTabuchiYamamoto(n int) (*TabuchiYamamoto, error) {
	if n < 1 || n > 3 {
		return nil, fmt.Errorf(
			"quad: TY quadrature is tabulated for 1-3 angles, not %d", n,
		)
	}
	return &TabuchiYamamoto{sins: tySins[n-1], weights: tyWeights[n-1]}, nil
}

func (q *TabuchiYamamoto) NumAngles() int         { return len(q.sins) }
func (q *TabuchiYamamoto) SinTheta(p int) float64 { return q.sins[p] }
func (q *TabuchiYamamoto) Weight(p int) float64   { return q.weights[p] }
func (q *TabuchiYamamoto) Multiple(p int) float64 { return q.weights[p] * q.sins[p] }

// GaussLegendre is a Gauss-Legendre quadrature in the cosine of the polar
// angle over (0, 1). Any positive number of angles is supported.
type GaussLegendre struct {
	sins, weights []float64
}

// NewGaussLegendre creates a Gauss-Legendre polar quadrature with n angles.
func NewGaussLegendre(n int) (*GaussLegendre, error) {
	if n < 1 {
		return nil, fmt.Errorf("quad: need at least one polar angle, not %d", n)
	}

	mus := make([]float64, n)
	weights := make([]float64, n)
	gquad.Legendre{}.FixedLocations(mus, weights, 0, 1)

	sins := make([]float64, n)
	for p := range mus {
		sins[p] = math.Sqrt(1 - mus[p]*mus[p])
	}

	// Order by increasing sine to match the TY convention.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if sins[j] < sins[i] {
				sins[i], sins[j] = sins[j], sins[i]
				weights[i], weights[j] = weights[j], weights[i]
			}
		}
	}

	return &GaussLegendre{sins: sins, weights: weights}, nil
}

func (q *GaussLegendre) NumAngles() int         { return len(q.sins) }
func (q *GaussLegendre) SinTheta(p int) float64 { return q.sins[p] }
func (q *GaussLegendre) Weight(p int) float64   { return q.weights[p] }
func (q *GaussLegendre) Multiple(p int) float64 { return q.weights[p] * q.sins[p] }

// New creates a quadrature by family name, "TY" or "GL".
func New(kind string, n int) (Polar, error) {
	switch kind {
	case "TY":
		return NewTabuchiYamamoto(n)
	case "GL":
		return NewGaussLegendre(n)
	}
	return nil, fmt.Errorf("quad: unknown quadrature family %q", kind)
}
