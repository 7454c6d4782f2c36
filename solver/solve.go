package solver

import (
	"fmt"
	"log"
	"time"
)

// ComputeFlux computes the scalar flux distribution for a fixed source
// problem by transport sweeps with a source computed once up front. With
// onlyFixedSource the flux starts from zero and only user-assigned fixed
// sources drive the problem; otherwise the current flux (for example from a
// previous eigenvalue solve) contributes scattering and fission sources and
// the solve yields the superposition.
//
// Exhausting maxIters is not an error: the solver keeps its last state and
// reports NumIterations() == maxIters.
func (s *Solver) ComputeFlux(maxIters int, onlyFixedSource bool) error {
	if err := s.prepare(); err != nil {
		return err
	}
	log.Printf("Computing the flux...")
	start := time.Now()

	if onlyFixedSource || !s.fluxReady {
		s.flattenFluxes(0)
	}
	s.resetSnapshot()
	s.zeroBoundaryFluxes()
	s.computeSources()

	for i := 0; i < maxIters; i++ {
		s.transportSweep()
		s.addSourceToScalarFlux()
		res := s.residual(ScalarFlux)
		s.storeFluxes()

		log.Printf("Iteration %d:\tres = %1.3E", i, res)

		if i > 1 && res < s.thresh {
			s.finish(i, start)
			return nil
		}
	}

	log.Printf("Warning: unable to converge the flux in %d iterations", maxIters)
	s.finish(maxIters, start)
	return nil
}

// ComputeSource computes the total source distribution for a fixed source
// problem in a multiplying medium, scaling the fission source by a
// caller-supplied k-eff guess. Sources are recomputed every iteration since
// the flux evolves under the fixed eigenvalue.
func (s *Solver) ComputeSource(
	maxIters int, keff float64, rt ResidualType,
) error {
	if s.ts == nil {
		return fmt.Errorf("%w: no track source bound", ErrConfiguration)
	}
	if keff <= 0 {
		return fmt.Errorf("%w: k-eff %g", ErrValue, keff)
	}
	if err := s.prepare(); err != nil {
		return err
	}
	log.Printf("Computing the source...")
	start := time.Now()

	s.keff = keff
	s.flattenFluxes(1)
	s.resetSnapshot()
	s.zeroBoundaryFluxes()

	for i := 0; i < maxIters; i++ {
		s.computeSources()
		s.transportSweep()
		s.addSourceToScalarFlux()
		res := s.residual(rt)
		s.storeFluxes()

		log.Printf("Iteration %d:\tres = %1.3E", i, res)

		if i > 1 && res < s.thresh {
			s.finish(i, start)
			s.keffReady = true
			return nil
		}
	}

	log.Printf("Warning: unable to converge the source in %d iterations",
		maxIters)
	s.finish(maxIters, start)
	s.keffReady = true
	return nil
}

// ComputeEigenvalue computes the multiplication eigenvalue k-eff and its
// flux distribution. Each iteration normalizes the flux to unit fission
// source, recomputes sources, sweeps, and updates k-eff either from the
// fission/loss balance or, if an Accelerator is set, from the coarse-mesh
// diffusion solve, which also corrects the boundary angular flux.
func (s *Solver) ComputeEigenvalue(maxIters int, rt ResidualType) error {
	if s.ts == nil {
		return fmt.Errorf("%w: no track source bound", ErrConfiguration)
	}
	if err := s.prepare(); err != nil {
		return err
	}
	log.Printf("Computing the eigenvalue...")
	start := time.Now()

	s.keff = 1.0
	if s.accel != nil {
		err := s.accel.Initialize(s.volumes, s.mats, s.flux, s.pq)
		if err != nil {
			return fmt.Errorf("%w: accelerator: %v", ErrConfiguration, err)
		}
	}

	s.flattenFluxes(1)
	s.resetSnapshot()
	s.zeroBoundaryFluxes()

	for i := 0; i < maxIters; i++ {
		s.normalizeFluxes()
		s.computeSources()
		s.transportSweep()
		s.addSourceToScalarFlux()
		res := s.residual(rt)
		s.storeFluxes()

		if s.accel != nil {
			k, err := s.accel.Keff(i, s.currents)
			if err != nil {
				return fmt.Errorf("%w: accelerator: %v", ErrConfiguration, err)
			}
			s.keff = k
			s.accel.CorrectBoundaryFlux(s.ts.Tracks(), s.boundary)
		} else {
			s.computeKeff()
		}

		log.Printf("Iteration %d:\tk_eff = %1.6f\tres = %1.3E", i, s.keff, res)

		if i > 1 && res < s.thresh {
			s.finish(i, start)
			s.keffReady = true
			return nil
		}
	}

	log.Printf(
		"Warning: unable to converge the source distribution in %d iterations",
		maxIters,
	)
	s.finish(maxIters, start)
	s.keffReady = true
	return nil
}

func (s *Solver) finish(iters int, start time.Time) {
	s.numIters = iters
	s.fluxReady = true
	s.totalTime = time.Since(start)
}
