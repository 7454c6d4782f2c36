package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"gomoc/xs"
)

// prepare rebuilds everything a solve depends on: region bindings, polar
// weights, the exponential table (splitting over-long segments first), and
// the state arrays. Called at the start of every top-level solve so that
// configuration changes made between solves take effect.
func (s *Solver) prepare() error {
	if s.ts == nil {
		return fmt.Errorf("%w: no track source bound", ErrConfiguration)
	}

	s.volumes = s.ts.RegionVolumes()
	s.mats = make([]*xs.Material, s.numRegions)
	s.numFissionable = 0
	for r := range s.mats {
		s.mats[r] = s.ts.MaterialOf(r)
		if s.mats[r].Fissionable() {
			s.numFissionable++
		}
	}

	s.initPolarWeights()
	s.initExpEvaluator()
	s.allocArrays()
	return nil
}

// initPolarWeights precomputes the product of azimuthal weight, polar
// multiple, and the solid angle constant for every (azimuthal group, polar
// angle) pair.
func (s *Solver) initPolarWeights() {
	s.numPolar = s.pq.NumAngles()
	s.pg = s.numPolar * s.numGroups

	aw := s.ts.AzimWeights()
	s.polarWeights = make([]float64, s.numAzim*s.numPolar)
	for i := 0; i < s.numAzim; i++ {
		for p := 0; p < s.numPolar; p++ {
			s.polarWeights[i*s.numPolar+p] = aw[i] * s.pq.Multiple(p) * fourPi
		}
	}
}

// initExpEvaluator rebuilds the attenuation table. In table mode the domain
// bound is the smaller of the configured bound and the longest segment
// actually present, and segments beyond the bound are split first so no
// sweep lookup can fall outside the table.
func (s *Solver) initExpEvaluator() {
	s.exp.SetQuadrature(s.pq)
	if s.exp.Interpolating() {
		maxTau := math.Min(s.exp.MaxOpticalLength(), s.ts.MaxOpticalLength())
		s.ts.SplitSegments(maxTau)
		s.exp.SetMaxOpticalLength(maxTau)
	}
	s.exp.Build()
}

func (s *Solver) allocArrays() {
	n := s.numRegions * s.numGroups
	if len(s.flux) != n {
		s.flux = make([]float64, n)
		s.oldFlux = make([]float64, n)
	}
	if len(s.reducedSrc) != n {
		s.reducedSrc = make([]float64, n)
	}
	fc := (s.numRegions + 1) * s.numGroups
	if len(s.currents) != fc {
		s.currents = make([]float64, fc)
	}

	tracks := s.ts.Tracks()
	if len(s.boundary) != len(tracks) ||
		len(s.boundary) > 0 && len(s.boundary[0][0]) != s.pg {
		s.boundary = make([][2][]float64, len(tracks))
		s.next = make([][2][]float64, len(tracks))
		for t := range tracks {
			s.boundary[t] = [2][]float64{
				make([]float64, s.pg), make([]float64, s.pg),
			}
			s.next[t] = [2][]float64{
				make([]float64, s.pg), make([]float64, s.pg),
			}
		}
	}

	if len(s.scratch) != s.workers ||
		len(s.scratch[0].psi) != s.pg || len(s.scratch[0].flux) != n ||
		len(s.scratch[0].cur) != fc {
		s.scratch = make([]*sweepScratch, s.workers)
		for id := range s.scratch {
			s.scratch[id] = &sweepScratch{
				psi:  make([]float64, s.pg),
				flux: make([]float64, n),
				cur:  make([]float64, fc),
			}
		}
	}
}

// flattenFluxes sets every scalar flux entry to v.
func (s *Solver) flattenFluxes(v float64) {
	for i := range s.flux {
		s.flux[i] = v
	}
}

// resetSnapshot clears the old-flux buffer so residual history from an
// earlier solve (possibly of a different mode) cannot bleed into this one.
func (s *Solver) resetSnapshot() {
	for i := range s.oldFlux {
		s.oldFlux[i] = 0
	}
}

// zeroBoundaryFluxes clears the boundary angular flux on every track end.
func (s *Solver) zeroBoundaryFluxes() {
	for t := range s.boundary {
		for d := 0; d < 2; d++ {
			for i := range s.boundary[t][d] {
				s.boundary[t][d][i] = 0
				s.next[t][d][i] = 0
			}
		}
	}
}

// storeFluxes snapshots the current scalar flux for the next iteration's
// residual. Must run after the residual has consumed the previous snapshot.
func (s *Solver) storeFluxes() {
	copy(s.oldFlux, s.flux)
}

// computeSources recomputes the reduced source for every region from the
// current scalar flux, material data, and fixed sources. Regions are
// independent, so the loop is split across workers.
func (s *Solver) computeSources() {
	out := make(chan int, s.workers)
	for id := 0; id < s.workers; id++ {
		go func(id int) {
			for r := id; r < s.numRegions; r += s.workers {
				s.regionSource(r)
			}
			out <- id
		}(id)
	}
	for i := 0; i < s.workers; i++ {
		<-out
	}
}

// regionSource computes the reduced source q = (fixed + scatter + fission)
// / (4 pi sigma_t) for one region.
func (s *Solver) regionSource(r int) {
	m := s.mats[r]
	g := s.numGroups
	base := r * g

	fission := 0.0
	if m.Fissionable() {
		for e := 0; e < g; e++ {
			fission += m.NuSigmaF[e] * s.flux[base+e]
		}
		fission /= s.keff
	}

	for gp := 0; gp < g; gp++ {
		src := s.fixedSrc[base+gp]
		if fission > 0 {
			src += m.Chi[gp] * fission
		}
		for e := 0; e < g; e++ {
			src += m.Scatter(e, gp) * s.flux[base+e]
		}

		sigT := m.SigmaT[gp]
		if sigT > 0 {
			s.reducedSrc[base+gp] = src / (fourPi * sigT)
		} else {
			s.reducedSrc[base+gp] = 0
		}
	}
}

// addSourceToScalarFlux finalizes the swept flux accumulator into the
// scalar flux: phi = 4 pi q + tallies / (2 sigma_t V). The half accounts
// for each track being traversed in both directions.
func (s *Solver) addSourceToScalarFlux() {
	for r := 0; r < s.numRegions; r++ {
		m := s.mats[r]
		v := s.volumes[r]
		base := r * s.numGroups
		for e := 0; e < s.numGroups; e++ {
			phi := fourPi * s.reducedSrc[base+e]
			if sigT := m.SigmaT[e]; sigT*v > 0 {
				phi += 0.5 * s.flux[base+e] / (sigT * v)
			}
			s.flux[base+e] = phi
		}
	}
}

// normalizeFluxes rescales the scalar and boundary angular flux so the
// total fission source integrates to one, preventing unbounded growth or
// decay across eigenvalue iterations. A non-multiplying problem is left
// untouched.
func (s *Solver) normalizeFluxes() {
	tot := 0.0
	for r := 0; r < s.numRegions; r++ {
		m := s.mats[r]
		if !m.Fissionable() {
			continue
		}
		base := r * s.numGroups
		for e := 0; e < s.numGroups; e++ {
			tot += m.NuSigmaF[e] * s.flux[base+e] * s.volumes[r]
		}
	}
	if tot <= 0 {
		return
	}

	f := 1 / tot
	floats.Scale(f, s.flux)
	for t := range s.boundary {
		floats.Scale(f, s.boundary[t][0])
		floats.Scale(f, s.boundary[t][1])
	}
}

// computeKeff updates k-eff as the ratio of fission production to
// absorption plus leakage, using the post-sweep scalar flux.
func (s *Solver) computeKeff() {
	fission, absorption := 0.0, 0.0
	for r := 0; r < s.numRegions; r++ {
		m := s.mats[r]
		v := s.volumes[r]
		base := r * s.numGroups
		fissionable := m.Fissionable()
		for e := 0; e < s.numGroups; e++ {
			phi := s.flux[base+e]
			absorption += m.SigmaA(e) * phi * v
			if fissionable {
				fission += m.NuSigmaF[e] * phi * v
			}
		}
	}

	loss := absorption + 0.5*s.leakage
	if loss <= 0 {
		s.keff = 0
		return
	}
	s.keff = fission / loss
}

// sourceFrom computes the unreduced total source for one region and group
// from an arbitrary flux array. Used by the total source residual, which
// needs the same quantity from both the current and previous flux.
func (s *Solver) sourceFrom(flux []float64, r, g int) float64 {
	m := s.mats[r]
	base := r * s.numGroups
	src := s.fixedSrc[base+g]

	if m.Fissionable() {
		fission := 0.0
		for e := 0; e < s.numGroups; e++ {
			fission += m.NuSigmaF[e] * flux[base+e]
		}
		src += m.Chi[g] * fission / s.keff
	}
	for e := 0; e < s.numGroups; e++ {
		src += m.Scatter(e, g) * flux[base+e]
	}
	return src
}

// fissionSourceFrom computes the group-integrated fission source of one
// region from an arbitrary flux array.
func (s *Solver) fissionSourceFrom(flux []float64, r int) float64 {
	m := s.mats[r]
	base := r * s.numGroups
	sum := 0.0
	for e := 0; e < s.numGroups; e++ {
		sum += m.NuSigmaF[e] * flux[base+e]
	}
	return sum
}

// residual computes the relative L2 change between the current state and
// the previous iteration's snapshot for the selected quantity. Terms whose
// previous value is zero are excluded from the sum.
func (s *Solver) residual(rt ResidualType) float64 {
	sum := 0.0
	n := 0

	switch rt {
	case ScalarFlux:
		for i := range s.flux {
			if s.oldFlux[i] > 0 {
				d := (s.flux[i] - s.oldFlux[i]) / s.oldFlux[i]
				sum += d * d
				n++
			}
		}

	case TotalSource:
		for r := 0; r < s.numRegions; r++ {
			for g := 0; g < s.numGroups; g++ {
				old := s.sourceFrom(s.oldFlux, r, g)
				if old > 0 {
					d := (s.sourceFrom(s.flux, r, g) - old) / old
					sum += d * d
					n++
				}
			}
		}

	case FissionSource:
		for r := 0; r < s.numRegions; r++ {
			if !s.mats[r].Fissionable() {
				continue
			}
			old := s.fissionSourceFrom(s.oldFlux, r)
			if old > 0 {
				d := (s.fissionSourceFrom(s.flux, r) - old) / old
				sum += d * d
			}
		}
		n = s.numFissionable
	}

	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}
