package solver

import (
	"flag"
	"io"
	"log"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"gomoc/track"
	"gomoc/xs"
)

func TestMain(m *testing.M) {
	flag.Parse()
	if !testing.Verbose() {
		log.SetOutput(io.Discard)
	}
	os.Exit(m.Run())
}

// An infinite purely absorbing medium with a unit source settles at
// phi = Q / sigma_t.
func TestFluxInfiniteMedium(t *testing.T) {
	s := newSolver(t, slab(t, []float64{1}, []*xs.Material{absorber()},
		track.Reflective))
	if err := s.SetFixedSourceByRegion(0, 1, 1.0); err != nil {
		t.Fatal(err)
	}

	if err := s.ComputeFlux(200, true); err != nil {
		t.Fatal(err)
	}

	phi, err := s.FSRScalarFlux(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	assert.InDelta(t, 1.0, phi, 1e-3)

	src, err := s.FSRSource(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	assert.InDelta(t, 1.0/fourPi, src, 1e-9)

	v, err := s.FSRVolume(0)
	if err != nil {
		t.Fatal(err)
	}
	assert.InDelta(t, 1.0, v, 1e-12)
}

// With vacuum on both ends the flux must fall off away from the source
// region and stay positive everywhere.
func TestFluxDecaysFromSource(t *testing.T) {
	mats := []*xs.Material{absorber(), absorber()}
	s := newSolver(t, slab(t, []float64{1, 1}, mats, track.Vacuum))
	if err := s.SetFixedSourceByRegion(0, 1, 1.0); err != nil {
		t.Fatal(err)
	}

	if err := s.ComputeFlux(200, true); err != nil {
		t.Fatal(err)
	}

	phi0, err := s.FSRScalarFlux(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	phi1, err := s.FSRScalarFlux(1, 1)
	if err != nil {
		t.Fatal(err)
	}

	if phi1 <= 0 {
		t.Fatalf("flux in the far region is %g, want > 0", phi1)
	}
	if phi0 <= phi1 {
		t.Errorf("flux does not decay from the source: phi0 = %g, phi1 = %g",
			phi0, phi1)
	}
}

// A reflected fuel slab is an infinite medium, so the eigenvalue is
// k-infinity = nuSigmaF / sigmaA.
func TestEigenvalueInfiniteMedium(t *testing.T) {
	s := newSolver(t, slab(t, []float64{50}, []*xs.Material{fuel()},
		track.Reflective))

	if err := s.ComputeEigenvalue(500, FissionSource); err != nil {
		t.Fatal(err)
	}

	k, err := s.Keff()
	if err != nil {
		t.Fatal(err)
	}
	assert.InDelta(t, 1.2, k, 1e-3)
}

// Without fissionable material the eigenvalue search must report k = 0
// rather than diverge.
func TestEigenvalueNonMultiplying(t *testing.T) {
	s := newSolver(t, slab(t, []float64{1}, []*xs.Material{absorber()},
		track.Reflective))

	if err := s.ComputeEigenvalue(100, FissionSource); err != nil {
		t.Fatal(err)
	}

	k, err := s.Keff()
	if err != nil {
		t.Fatal(err)
	}
	if k != 0 {
		t.Errorf("k-eff = %g for a non-multiplying medium, want 0", k)
	}
}

// ComputeSource with the exact k-infinity of the medium is a critical
// balance: the flux must stay finite and positive.
func TestSourceWithGivenKeff(t *testing.T) {
	s := newSolver(t, slab(t, []float64{50}, []*xs.Material{fuel()},
		track.Reflective))

	if err := s.ComputeSource(500, 1.2, TotalSource); err != nil {
		t.Fatal(err)
	}

	phi, err := s.FSRScalarFlux(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if phi <= 0 || math.IsInf(phi, 0) || math.IsNaN(phi) {
		t.Errorf("critical balance flux is %g", phi)
	}
}

// Exhausting the iteration budget is reported through NumIterations, not
// through an error.
func TestIterationBudgetExhaustion(t *testing.T) {
	// An optically thin reflected slab converges slowly, so five
	// iterations cannot reach a 1e-12 residual.
	thin := absorber()
	s := newSolver(t, slab(t, []float64{0.01}, []*xs.Material{thin},
		track.Reflective))
	if err := s.SetConvergenceThreshold(1e-12); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFixedSourceByRegion(0, 1, 1.0); err != nil {
		t.Fatal(err)
	}

	if err := s.ComputeFlux(5, true); err != nil {
		t.Fatal(err)
	}
	if s.NumIterations() != 5 {
		t.Errorf("NumIterations() = %d after exhaustion, want 5",
			s.NumIterations())
	}
}

// The surface current tallies must close the neutron balance: the net
// outflow through the two domain faces equals the vacuum leakage tally.
// Currents already carry the two-directional halving; the raw leakage sum
// does not.
func TestSurfaceCurrentsMatchLeakage(t *testing.T) {
	mats := []*xs.Material{absorber(), absorber()}
	s := newSolver(t, slab(t, []float64{1, 1}, mats, track.Vacuum))
	if err := s.SetFixedSourceByRegion(0, 1, 1.0); err != nil {
		t.Fatal(err)
	}
	if err := s.ComputeFlux(200, true); err != nil {
		t.Fatal(err)
	}

	right := s.currents[s.numRegions*s.numGroups]
	left := s.currents[0]
	if right <= 0 || left >= 0 {
		t.Fatalf("face currents do not point outward: left %g, right %g",
			left, right)
	}
	assert.InEpsilon(t, 0.5*s.leakage, right-left, 1e-9)
}

// The direct and tabulated attenuation paths must agree on the converged
// flux to within the table's error bound.
func TestExpModesAgree(t *testing.T) {
	solve := func(direct bool) float64 {
		mats := []*xs.Material{absorber(), scatterer()}
		s := newSolver(t, slab(t, []float64{1, 2}, mats, track.Vacuum))
		if direct {
			s.UseExpDirect()
		}
		if err := s.SetFixedSourceByRegion(0, 1, 1.0); err != nil {
			t.Fatal(err)
		}
		if err := s.ComputeFlux(300, true); err != nil {
			t.Fatal(err)
		}
		phi, err := s.FSRScalarFlux(1, 1)
		if err != nil {
			t.Fatal(err)
		}
		return phi
	}

	table, direct := solve(false), solve(true)
	if direct <= 0 {
		t.Fatalf("direct-mode flux is %g", direct)
	}
	assert.InEpsilon(t, direct, table, 1e-3)
}

// Solves must be reproducible run to run regardless of worker count.
func TestSweepIsDeterministic(t *testing.T) {
	solve := func(workers int) (float64, float64) {
		mats := []*xs.Material{fuel(), scatterer(), fuel()}
		s := newSolver(t, slab(t, []float64{2, 1, 2}, mats, track.Vacuum))
		if err := s.SetWorkers(workers); err != nil {
			t.Fatal(err)
		}
		if err := s.ComputeEigenvalue(300, FissionSource); err != nil {
			t.Fatal(err)
		}
		k, err := s.Keff()
		if err != nil {
			t.Fatal(err)
		}
		phi, err := s.FSRScalarFlux(1, 1)
		if err != nil {
			t.Fatal(err)
		}
		return k, phi
	}

	// Identical runs must agree bit for bit.
	k4a, phi4a := solve(4)
	k4b, phi4b := solve(4)
	if k4a != k4b || phi4a != phi4b {
		t.Errorf("repeated solve differs: k %v vs %v, phi %v vs %v",
			k4a, k4b, phi4a, phi4b)
	}

	// A different worker count changes only the merge partition, so the
	// answers agree to roundoff.
	k1, phi1 := solve(1)
	assert.InEpsilon(t, k1, k4a, 1e-9)
	assert.InEpsilon(t, phi1, phi4a, 1e-9)
}
