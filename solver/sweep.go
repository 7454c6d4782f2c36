package solver

import (
	"gonum.org/v1/gonum/floats"

	"gomoc/track"
)

// sweepScratch is the per-worker workspace for a transport sweep: the
// angular flux vector carried along the current track, private scalar flux
// and surface current accumulators merged after the sweep, and a private
// leakage tally.
type sweepScratch struct {
	psi  []float64
	flux []float64
	cur  []float64
	leak float64
}

// transportSweep integrates the transport equation along every track in
// both directions. Tracks are distributed across workers by stride; each
// worker tallies into its own accumulators and the partials are merged at
// the join, so the only shared array written during the sweep is the
// double-buffered boundary flux, where every (track, direction) slot has
// exactly one writer.
func (s *Solver) transportSweep() {
	for i := range s.flux {
		s.flux[i] = 0
	}
	for i := range s.currents {
		s.currents[i] = 0
	}
	s.leakage = 0

	out := make(chan int, s.workers)
	for id := 0; id < s.workers; id++ {
		go s.sweepWorker(id, out)
	}
	for i := 0; i < s.workers; i++ {
		<-out
	}

	// Merge in worker id order so the floating point sum, and with it the
	// whole solve, is reproducible for a given worker count. The crossing
	// tallies count both traversal directions, so half is the physical net
	// current.
	for id := 0; id < s.workers; id++ {
		floats.Add(s.flux, s.scratch[id].flux)
		floats.AddScaled(s.currents, 0.5, s.scratch[id].cur)
		s.leakage += s.scratch[id].leak
	}

	// Publish the outgoing boundary flux for the next sweep.
	s.boundary, s.next = s.next, s.boundary
}

func (s *Solver) sweepWorker(id int, out chan<- int) {
	w := s.scratch[id]
	for i := range w.flux {
		w.flux[i] = 0
	}
	for i := range w.cur {
		w.cur[i] = 0
	}
	w.leak = 0

	tracks := s.ts.Tracks()
	for t := id; t < len(tracks); t += s.workers {
		s.sweepTrack(w, tracks[t], t)
	}
	out <- id
}

// sweepTrack walks a track's segments forward and then in reverse. Segment
// order within a direction is strict: each segment's incoming angular flux
// is the previous segment's outgoing flux. Region-face crossings are
// tallied into the surface current accumulator as the flux passes.
func (s *Solver) sweepTrack(w *sweepScratch, tr *track.Track, t int) {
	segs := tr.Segments
	if len(segs) == 0 {
		copy(w.psi, s.boundary[t][0])
		s.transferBoundaryFlux(w, tr.Azim, tr.Fwd)
		copy(w.psi, s.boundary[t][1])
		s.transferBoundaryFlux(w, tr.Azim, tr.Bwd)
		return
	}
	last := len(segs) - 1

	copy(w.psi, s.boundary[t][0])
	s.tallyCrossing(w, tr.Azim, segs[0].Region, 1)
	for i := range segs {
		if i > 0 && segs[i].Region != segs[i-1].Region {
			s.tallyCrossing(w, tr.Azim, segs[i].Region, 1)
		}
		s.tallySegment(w, &segs[i], tr.Azim)
	}
	s.tallyCrossing(w, tr.Azim, segs[last].Region+1, 1)
	s.transferBoundaryFlux(w, tr.Azim, tr.Fwd)

	copy(w.psi, s.boundary[t][1])
	s.tallyCrossing(w, tr.Azim, segs[last].Region+1, -1)
	for i := last; i >= 0; i-- {
		if i < last && segs[i].Region != segs[i+1].Region {
			s.tallyCrossing(w, tr.Azim, segs[i+1].Region, -1)
		}
		s.tallySegment(w, &segs[i], tr.Azim)
	}
	s.tallyCrossing(w, tr.Azim, segs[0].Region, -1)
	s.transferBoundaryFlux(w, tr.Azim, tr.Bwd)
}

// tallyCrossing deposits the angular flux crossing a region face into the
// worker's surface current accumulator, signed positive in the ascending
// region direction and weighted like the scalar flux tallies.
func (s *Solver) tallyCrossing(w *sweepScratch, azim, face int, sign float64) {
	for p := 0; p < s.numPolar; p++ {
		pw := sign * s.polarWeights[azim*s.numPolar+p]
		for e := 0; e < s.numGroups; e++ {
			w.cur[face*s.numGroups+e] += pw * w.psi[p*s.numGroups+e]
		}
	}
}

// tallySegment attenuates the angular flux across one segment and deposits
// the flux change into the worker's scalar flux accumulator. A zero-length
// segment has zero attenuation and is a no-op.
func (s *Solver) tallySegment(w *sweepScratch, seg *track.Segment, azim int) {
	m := s.mats[seg.Region]
	base := seg.Region * s.numGroups

	for e := 0; e < s.numGroups; e++ {
		tau := m.SigmaT[e] * seg.Length
		q := s.reducedSrc[base+e]
		for p := 0; p < s.numPolar; p++ {
			f := s.exp.Attenuation(tau, p)
			idx := p*s.numGroups + e
			delta := (w.psi[idx] - q) * f
			w.flux[base+e] += delta * s.polarWeights[azim*s.numPolar+p]
			w.psi[idx] -= delta
		}
	}
}

// transferBoundaryFlux publishes the outgoing angular flux into the linked
// track's incoming slot of the next-sweep buffer. Vacuum ends discard the
// flux into the leakage tally and zero the slot instead.
func (s *Solver) transferBoundaryFlux(
	w *sweepScratch, azim int, link track.Link,
) {
	slot := 1
	if link.Forward {
		slot = 0
	}
	dst := s.next[link.Track][slot]

	if link.BC == track.Vacuum {
		for p := 0; p < s.numPolar; p++ {
			pw := s.polarWeights[azim*s.numPolar+p]
			for e := 0; e < s.numGroups; e++ {
				w.leak += w.psi[p*s.numGroups+e] * pw
			}
		}
		for i := range dst {
			dst[i] = 0
		}
		return
	}

	copy(dst, w.psi)
}
