/*package solver implements a deterministic neutral particle transport
solver using the method of characteristics.

The solver owns the per-region scalar flux, the per-track boundary angular
flux, and the source arrays. It integrates the transport equation along
precomputed track segments supplied by a TrackSource, updates sources from
the current flux and material data, and iterates to convergence in one of
three modes: fixed source flux, fixed source with a caller-supplied k-eff,
or an eigenvalue search for k-eff itself. An optional Accelerator performs a
coarse-mesh diffusion solve each iteration to speed up convergence.

Group indices are 1-based at the public query and fixed-source boundary,
matching the convention of the reactor physics tooling this feeds, and
0-based everywhere internally.
*/
package solver

import (
	"fmt"
	"runtime"
	"time"

	"gomoc/expeval"
	"gomoc/quad"
	"gomoc/track"
	"gomoc/xs"
)

// ResidualType selects which physical quantity's relative change gates
// convergence.
type ResidualType int

const (
	ScalarFlux ResidualType = iota
	TotalSource
	FissionSource
)

const fourPi = 4 * 3.14159265358979323846

// TrackSource is the segmented track database together with the geometry it
// was traced over. Region ids are dense in [0, NumRegions) and ordered
// along the track direction, so the face between regions f-1 and f has a
// well defined index f.
type TrackSource interface {
	NumRegions() int
	NumGroups() int
	MaterialOf(region int) *xs.Material
	CellOf(region int) int

	NumAzim() int
	AzimWeights() []float64
	Tracks() []*track.Track
	NumSegments() int
	RegionVolumes() []float64
	MaxOpticalLength() float64
	SplitSegments(maxTau float64)
}

// Accelerator is a coarse-grid diffusion solve coupled to the fine-grid
// iteration. It is handed the region data once per solve and then queried
// for an updated k-eff each iteration, together with the net region-face
// currents tallied by the sweep (laid out as on Solver.currents; nil means
// no transport data), after which it corrects the boundary angular flux
// for consistency with the coarse solve.
type Accelerator interface {
	Initialize(volumes []float64, mats []*xs.Material, flux []float64,
		pq quad.Polar) error
	Keff(iteration int, currents []float64) (float64, error)
	CorrectBoundaryFlux(tracks []*track.Track, boundary [][2][]float64)
}

// Solver drives the source iteration. Create one with New, bind a
// TrackSource, and call one of the Compute methods.
type Solver struct {
	ts    TrackSource
	accel Accelerator

	pq  quad.Polar
	exp *expeval.Evaluator

	numRegions, numGroups int
	numAzim, numPolar     int
	pg                    int
	numFissionable        int

	volumes []float64
	mats    []*xs.Material

	polarWeights []float64

	flux, oldFlux        []float64
	fixedSrc, reducedSrc []float64

	// Boundary angular flux is double buffered: a sweep reads incoming flux
	// from boundary and publishes outgoing flux into next, which makes the
	// sweep deterministic and race free across tracks. The buffers swap at
	// the end of each sweep.
	boundary, next [][2][]float64

	// currents holds the net surface current at every region face after a
	// sweep, indexed face*numGroups+g: face r is the left face of region r
	// and face numRegions is the right domain edge. Positive in the
	// ascending region direction, weighted like the scalar flux tallies,
	// and halved for the two-directional traversal.
	currents []float64

	leakage float64
	scratch []*sweepScratch

	keff      float64
	thresh    float64
	numIters  int
	workers   int
	fluxReady bool
	keffReady bool
	totalTime time.Duration
}

// New creates a solver with a three-angle Tabuchi-Yamamoto quadrature, a
// 1e-5 convergence threshold, and exponential table interpolation enabled.
// ts may be nil and bound later with SetTrackSource.
func New(ts TrackSource) (*Solver, error) {
	pq, err := quad.NewTabuchiYamamoto(3)
	if err != nil {
		return nil, err
	}

	s := &Solver{
		pq:      pq,
		exp:     expeval.New(),
		keff:    1.0,
		thresh:  1e-5,
		workers: runtime.NumCPU(),
	}
	if ts != nil {
		if err := s.SetTrackSource(ts); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SetTrackSource binds the segmented track database and derives the region,
// group, and azimuthal counts from it.
func (s *Solver) SetTrackSource(ts TrackSource) error {
	if ts.NumRegions() == 0 {
		return fmt.Errorf("%w: track source has no regions", ErrConfiguration)
	}
	if len(ts.Tracks()) == 0 || ts.NumSegments() == 0 {
		return fmt.Errorf(
			"%w: track source has not been segmented", ErrConfiguration,
		)
	}

	s.ts = ts
	s.numRegions = ts.NumRegions()
	s.numGroups = ts.NumGroups()
	s.numAzim = ts.NumAzim()
	s.fixedSrc = make([]float64, s.numRegions*s.numGroups)

	s.flux = nil
	s.boundary = nil
	s.fluxReady = false
	s.keffReady = false
	s.numIters = 0
	return nil
}

// SetPolarQuadrature replaces the polar quadrature. Polar weights and the
// exponential table are rebuilt on the next solve.
func (s *Solver) SetPolarQuadrature(pq quad.Polar) {
	s.pq = pq
	s.polarWeights = nil
	s.boundary = nil
}

// SetAccelerator enables coarse-mesh diffusion acceleration in eigenvalue
// mode. Pass nil to disable.
func (s *Solver) SetAccelerator(a Accelerator) { s.accel = a }

// SetConvergenceThreshold sets the residual threshold for ending the
// iteration.
func (s *Solver) SetConvergenceThreshold(t float64) error {
	if t <= 0 {
		return fmt.Errorf("%w: convergence threshold %g", ErrValue, t)
	}
	s.thresh = t
	return nil
}

// SetWorkers sets the number of sweep goroutines.
func (s *Solver) SetWorkers(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: worker count %d", ErrValue, n)
	}
	s.workers = n
	return nil
}

// SetMaxOpticalLength bounds the exponential table domain; longer segments
// are split before sweeping. Takes effect on the next solve.
func (s *Solver) SetMaxOpticalLength(tau float64) error {
	if tau <= 0 {
		return fmt.Errorf("%w: max optical length %g", ErrValue, tau)
	}
	s.exp.SetMaxOpticalLength(tau)
	return nil
}

// SetExpPrecision sets the error bound of the exponential table.
func (s *Solver) SetExpPrecision(p float64) error {
	if p <= 0 {
		return fmt.Errorf("%w: exponential precision %g", ErrValue, p)
	}
	s.exp.SetPrecision(p)
	return nil
}

// UseExpInterpolation selects table interpolation for the attenuation term.
func (s *Solver) UseExpInterpolation() { s.exp.UseInterpolation() }

// UseExpDirect selects direct evaluation of the attenuation term.
func (s *Solver) UseExpDirect() { s.exp.UseDirect() }

// checkRegionGroup validates a region index and a 1-based group index.
func (s *Solver) checkRegionGroup(region, group int) error {
	if s.ts == nil {
		return fmt.Errorf("%w: no track source bound", ErrConfiguration)
	}
	if region < 0 || region >= s.numRegions {
		return fmt.Errorf("%w: region %d of %d", ErrRange, region, s.numRegions)
	}
	if group < 1 || group > s.numGroups {
		return fmt.Errorf(
			"%w: group %d of %d (groups are 1-based)",
			ErrRange, group, s.numGroups,
		)
	}
	return nil
}

// SetFixedSourceByRegion assigns a fixed source to one region and 1-based
// energy group.
func (s *Solver) SetFixedSourceByRegion(region, group int, src float64) error {
	if err := s.checkRegionGroup(region, group); err != nil {
		return err
	}
	s.fixedSrc[region*s.numGroups+group-1] = src
	return nil
}

// SetFixedSourceByMaterial assigns a fixed source to every region bound to
// the material with the given id.
func (s *Solver) SetFixedSourceByMaterial(matID, group int, src float64) error {
	if err := s.checkRegionGroup(0, group); err != nil {
		return err
	}
	for r := 0; r < s.numRegions; r++ {
		if s.ts.MaterialOf(r).ID == matID {
			s.fixedSrc[r*s.numGroups+group-1] = src
		}
	}
	return nil
}

// SetFixedSourceByCell assigns a fixed source to every region inside the
// geometric cell with the given id.
func (s *Solver) SetFixedSourceByCell(cell, group int, src float64) error {
	if err := s.checkRegionGroup(0, group); err != nil {
		return err
	}
	for r := 0; r < s.numRegions; r++ {
		if s.ts.CellOf(r) == cell {
			s.fixedSrc[r*s.numGroups+group-1] = src
		}
	}
	return nil
}

// ResetFixedSources zeroes all fixed sources.
func (s *Solver) ResetFixedSources() {
	for i := range s.fixedSrc {
		s.fixedSrc[i] = 0
	}
}

// FSRScalarFlux returns the scalar flux for a region and 1-based group.
func (s *Solver) FSRScalarFlux(region, group int) (float64, error) {
	if err := s.checkRegionGroup(region, group); err != nil {
		return 0, err
	}
	if !s.fluxReady {
		return 0, fmt.Errorf("%w: scalar flux", ErrNotReady)
	}
	return s.flux[region*s.numGroups+group-1], nil
}

// FSRSource returns the total source for a region and 1-based group,
// recomputed from the current flux, material data, and fixed source.
func (s *Solver) FSRSource(region, group int) (float64, error) {
	if err := s.checkRegionGroup(region, group); err != nil {
		return 0, err
	}
	if !s.fluxReady {
		return 0, fmt.Errorf("%w: source", ErrNotReady)
	}

	g := group - 1
	m := s.ts.MaterialOf(region)
	src := s.fixedSrc[region*s.numGroups+g]

	if m.Fissionable() {
		fission := 0.0
		for e := 0; e < s.numGroups; e++ {
			fission += m.NuSigmaF[e] * s.flux[region*s.numGroups+e]
		}
		src += m.Chi[g] * fission / s.keff
	}
	for e := 0; e < s.numGroups; e++ {
		src += m.Scatter(e, g) * s.flux[region*s.numGroups+e]
	}

	return src / fourPi, nil
}

// FSRVolume returns the volume of a region.
func (s *Solver) FSRVolume(region int) (float64, error) {
	if err := s.checkRegionGroup(region, 1); err != nil {
		return 0, err
	}
	if s.volumes == nil {
		return 0, fmt.Errorf("%w: region volumes", ErrNotReady)
	}
	return s.volumes[region], nil
}

// Keff returns the current multiplication eigenvalue estimate.
func (s *Solver) Keff() (float64, error) {
	if !s.keffReady {
		return 0, fmt.Errorf("%w: k-eff", ErrNotReady)
	}
	return s.keff, nil
}

// NumPolarAngles returns the polar quadrature order.
func (s *Solver) NumPolarAngles() int { return s.pq.NumAngles() }

// NumIterations returns the iteration count of the last solve. A value
// equal to the solve's maxIters means the iteration budget was exhausted
// without convergence.
func (s *Solver) NumIterations() int { return s.numIters }

// TotalTime returns the wall time of the last solve.
func (s *Solver) TotalTime() time.Duration { return s.totalTime }

// ConvergenceThreshold returns the residual threshold.
func (s *Solver) ConvergenceThreshold() float64 { return s.thresh }
