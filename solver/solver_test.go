package solver

import (
	"errors"
	"testing"

	"gomoc/track"
	"gomoc/xs"
)

func absorber() *xs.Material {
	return &xs.Material{
		ID:       1,
		Name:     "absorber",
		SigmaT:   []float64{1.0},
		SigmaS:   []float64{0.0},
		NuSigmaF: []float64{0.0},
		Chi:      []float64{0.0},
	}
}

func scatterer() *xs.Material {
	return &xs.Material{
		ID:       2,
		Name:     "scatterer",
		SigmaT:   []float64{1.0},
		SigmaS:   []float64{0.5},
		NuSigmaF: []float64{0.0},
		Chi:      []float64{0.0},
	}
}

// fuel has k-infinity = nuSigmaF / sigmaA = 0.036 / 0.03 = 1.2.
func fuel() *xs.Material {
	return &xs.Material{
		ID:       3,
		Name:     "fuel",
		SigmaT:   []float64{0.3},
		SigmaS:   []float64{0.27},
		NuSigmaF: []float64{0.036},
		Chi:      []float64{1.0},
	}
}

func slab(
	t *testing.T, widths []float64, mats []*xs.Material, bc track.Boundary,
) *track.Slab {
	t.Helper()
	s, err := track.NewSlab(widths, mats, 4, bc, bc)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newSolver(t *testing.T, ts TrackSource) *Solver {
	t.Helper()
	s, err := New(ts)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSolveRequiresTrackSource(t *testing.T) {
	s := newSolver(t, nil)

	if err := s.ComputeFlux(10, true); !errors.Is(err, ErrConfiguration) {
		t.Errorf("ComputeFlux without tracks: %v", err)
	}
	if err := s.ComputeSource(10, 1.0, TotalSource); !errors.Is(err, ErrConfiguration) {
		t.Errorf("ComputeSource without tracks: %v", err)
	}
	if err := s.ComputeEigenvalue(10, FissionSource); !errors.Is(err, ErrConfiguration) {
		t.Errorf("ComputeEigenvalue without tracks: %v", err)
	}
}

func TestParameterValidation(t *testing.T) {
	s := newSolver(t, slab(t, []float64{1}, []*xs.Material{absorber()}, track.Vacuum))

	if err := s.SetConvergenceThreshold(0); !errors.Is(err, ErrValue) {
		t.Errorf("threshold 0: %v", err)
	}
	if err := s.SetConvergenceThreshold(-1e-5); !errors.Is(err, ErrValue) {
		t.Errorf("negative threshold: %v", err)
	}
	if err := s.ComputeSource(10, 0, TotalSource); !errors.Is(err, ErrValue) {
		t.Errorf("k-eff 0: %v", err)
	}
	if err := s.ComputeSource(10, -0.9, TotalSource); !errors.Is(err, ErrValue) {
		t.Errorf("negative k-eff: %v", err)
	}
	if err := s.SetWorkers(0); !errors.Is(err, ErrValue) {
		t.Errorf("0 workers: %v", err)
	}
	if err := s.SetMaxOpticalLength(0); !errors.Is(err, ErrValue) {
		t.Errorf("max optical length 0: %v", err)
	}
	if err := s.SetExpPrecision(0); !errors.Is(err, ErrValue) {
		t.Errorf("exp precision 0: %v", err)
	}
}

func TestQueryIndexValidation(t *testing.T) {
	mats := []*xs.Material{absorber(), absorber()}
	s := newSolver(t, slab(t, []float64{1, 1}, mats, track.Vacuum))

	// Regions are 0-based, groups 1-based at this boundary.
	cases := []struct{ region, group int }{
		{-1, 1}, {2, 1}, {0, 0}, {0, 2},
	}
	for _, c := range cases {
		if _, err := s.FSRScalarFlux(c.region, c.group); !errors.Is(err, ErrRange) {
			t.Errorf("FSRScalarFlux(%d, %d): %v", c.region, c.group, err)
		}
		if _, err := s.FSRSource(c.region, c.group); !errors.Is(err, ErrRange) {
			t.Errorf("FSRSource(%d, %d): %v", c.region, c.group, err)
		}
	}
	if _, err := s.FSRVolume(-1); !errors.Is(err, ErrRange) {
		t.Errorf("FSRVolume(-1): %v", err)
	}
	if err := s.SetFixedSourceByRegion(5, 1, 1.0); !errors.Is(err, ErrRange) {
		t.Errorf("SetFixedSourceByRegion(5, 1): %v", err)
	}
	if err := s.SetFixedSourceByRegion(0, 2, 1.0); !errors.Is(err, ErrRange) {
		t.Errorf("SetFixedSourceByRegion(0, 2): %v", err)
	}
}

func TestQueriesBeforeSolve(t *testing.T) {
	s := newSolver(t, slab(t, []float64{1}, []*xs.Material{absorber()}, track.Vacuum))

	if _, err := s.FSRScalarFlux(0, 1); !errors.Is(err, ErrNotReady) {
		t.Errorf("flux before solve: %v", err)
	}
	if _, err := s.FSRSource(0, 1); !errors.Is(err, ErrNotReady) {
		t.Errorf("source before solve: %v", err)
	}
	if _, err := s.Keff(); !errors.Is(err, ErrNotReady) {
		t.Errorf("k-eff before solve: %v", err)
	}
}

func TestFixedSourceBroadcasts(t *testing.T) {
	mats := []*xs.Material{absorber(), scatterer(), absorber()}
	sl := slab(t, []float64{1, 1, 1}, mats, track.Vacuum)
	if err := sl.SetCells([]int{0, 1, 1}); err != nil {
		t.Fatal(err)
	}
	s := newSolver(t, sl)

	if err := s.SetFixedSourceByMaterial(absorber().ID, 1, 2.0); err != nil {
		t.Fatal(err)
	}
	want := []float64{2, 0, 2}
	for r, w := range want {
		if got := s.fixedSrc[r]; got != w {
			t.Errorf("by material: fixedSrc[%d] = %g, want %g", r, got, w)
		}
	}

	s.ResetFixedSources()
	if err := s.SetFixedSourceByCell(1, 1, 3.0); err != nil {
		t.Fatal(err)
	}
	want = []float64{0, 3, 3}
	for r, w := range want {
		if got := s.fixedSrc[r]; got != w {
			t.Errorf("by cell: fixedSrc[%d] = %g, want %g", r, got, w)
		}
	}
}

func TestSourceComputationIsPure(t *testing.T) {
	mats := []*xs.Material{fuel(), scatterer()}
	s := newSolver(t, slab(t, []float64{1, 1}, mats, track.Reflective))
	if err := s.prepare(); err != nil {
		t.Fatal(err)
	}
	s.flattenFluxes(1)
	if err := s.SetFixedSourceByRegion(0, 1, 0.5); err != nil {
		t.Fatal(err)
	}

	s.computeSources()
	first := append([]float64{}, s.reducedSrc...)
	s.computeSources()

	for i := range first {
		if s.reducedSrc[i] != first[i] {
			t.Fatalf("reduced source %d changed across identical updates: "+
				"%g -> %g", i, first[i], s.reducedSrc[i])
		}
	}
}
