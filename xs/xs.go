/*package xs stores multigroup macroscopic cross sections for the materials
bound to flat source regions.
*/
package xs

import (
	"fmt"
	"math"
)

// Material holds the multigroup cross sections for a single material. Many
// regions may share one Material. The scatter matrix is stored source-group
// major, so SigmaS[from*G + to] is the cross section for scattering from
// group `from` into group `to`.
type Material struct {
	ID   int
	Name string

	SigmaT   []float64
	SigmaS   []float64
	NuSigmaF []float64
	Chi      []float64
}

// NumGroups returns the number of energy groups the material is defined on.
func (m *Material) NumGroups() int { return len(m.SigmaT) }

// Scatter returns the scattering cross section from one group into another.
func (m *Material) Scatter(from, to int) float64 {
	return m.SigmaS[from*len(m.SigmaT)+to]
}

// Fissionable returns true if the material has a nonzero fission cross
// section in any group.
func (m *Material) Fissionable() bool {
	for _, nsf := range m.NuSigmaF {
		if nsf > 0 {
			return true
		}
	}
	return false
}

// SigmaA returns the absorption cross section for a group, derived as the
// total cross section minus the outscattering row sum. Deriving it keeps the
// balance consistent with whatever scatter matrix the user supplied.
func (m *Material) SigmaA(g int) float64 {
	out := 0.0
	for gp := 0; gp < len(m.SigmaT); gp++ {
		out += m.Scatter(g, gp)
	}
	return m.SigmaT[g] - out
}

// Validate checks that the cross section arrays are consistently sized and
// physically sensible.
func (m *Material) Validate() error {
	g := len(m.SigmaT)
	if g == 0 {
		return fmt.Errorf("material %d: no energy groups", m.ID)
	}
	if len(m.SigmaS) != g*g {
		return fmt.Errorf("material %d: scatter matrix has %d entries, want %d",
			m.ID, len(m.SigmaS), g*g)
	}
	if len(m.NuSigmaF) != g || len(m.Chi) != g {
		return fmt.Errorf("material %d: fission arrays sized %d, %d for %d groups",
			m.ID, len(m.NuSigmaF), len(m.Chi), g)
	}

	for e := 0; e < g; e++ {
		if m.SigmaT[e] < 0 || m.NuSigmaF[e] < 0 || m.Chi[e] < 0 {
			return fmt.Errorf("material %d: negative cross section in group %d",
				m.ID, e)
		}
		if m.SigmaA(e) < 0 {
			return fmt.Errorf(
				"material %d: outscattering exceeds total in group %d", m.ID, e,
			)
		}
	}

	if m.Fissionable() {
		chiSum := 0.0
		for e := 0; e < g; e++ {
			chiSum += m.Chi[e]
		}
		if math.Abs(chiSum-1) > 1e-6 {
			return fmt.Errorf("material %d: chi sums to %g, want 1", m.ID, chiSum)
		}
	}

	return nil
}
