package track

import (
	"fmt"
	"math"

	"gomoc/xs"
)

// Slab is a one-dimensional multi-region slab geometry together with its
// segmented track database. It generates one track per azimuthal angle
// spanning the full slab, with azimuthal weights chosen so that region
// volumes computed from cumulative weighted segment length reproduce the
// region widths exactly.
type Slab struct {
	widths []float64
	mats   []*xs.Material
	cells  []int

	numGroups   int
	numAzim     int
	azimWeights []float64
	cosines     []float64
	left, right Boundary

	tracks  []*Track
	volumes []float64
}

// NewSlab creates a slab with one material per region and generates its
// tracks. numAzim azimuthal angles are spread uniformly over the first
// quadrant.
func NewSlab(
	widths []float64, mats []*xs.Material,
	numAzim int, left, right Boundary,
) (*Slab, error) {
	if len(widths) == 0 {
		return nil, fmt.Errorf("track: slab has no regions")
	}
	if len(mats) != len(widths) {
		return nil, fmt.Errorf("track: %d materials for %d regions",
			len(mats), len(widths))
	}
	if numAzim < 1 {
		return nil, fmt.Errorf("track: need at least one azimuthal angle")
	}

	numGroups := mats[0].NumGroups()
	for r, m := range mats {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if m.NumGroups() != numGroups {
			return nil, fmt.Errorf(
				"track: region %d material has %d groups, region 0 has %d",
				r, m.NumGroups(), numGroups,
			)
		}
	}
	for r, w := range widths {
		if w <= 0 {
			return nil, fmt.Errorf("track: region %d has width %g", r, w)
		}
	}

	s := &Slab{
		widths:      widths,
		mats:        mats,
		cells:       make([]int, len(widths)),
		numGroups:   numGroups,
		numAzim:     numAzim,
		azimWeights: make([]float64, numAzim),
		cosines:     make([]float64, numAzim),
		left:        left,
		right:       right,
	}
	for r := range s.cells {
		s.cells[r] = r
	}

	for i := 0; i < numAzim; i++ {
		phi := (float64(i) + 0.5) * (math.Pi / 2) / float64(numAzim)
		s.cosines[i] = math.Cos(phi)
		s.azimWeights[i] = s.cosines[i] / float64(numAzim)
	}

	s.generate()
	return s, nil
}

// generate builds one track per azimuthal angle and the region volumes.
func (s *Slab) generate() {
	s.tracks = make([]*Track, s.numAzim)
	s.volumes = make([]float64, len(s.widths))

	for i := 0; i < s.numAzim; i++ {
		segs := make([]Segment, len(s.widths))
		for r, w := range s.widths {
			segs[r] = Segment{Region: r, Length: w / s.cosines[i]}
			s.volumes[r] += s.azimWeights[i] * segs[r].Length
		}

		t := &Track{Azim: i, Segments: segs}

		// The forward traversal exits at the right edge. Under reflection
		// the flux re-enters the same track travelling backward; under a
		// periodic wrap it re-enters travelling forward. A vacuum edge uses
		// the reflective slot so that every boundary slot is written (with
		// zeros) each sweep.
		switch s.right {
		case Periodic:
			t.Fwd = Link{Track: i, Forward: true, BC: Periodic}
		default:
			t.Fwd = Link{Track: i, Forward: false, BC: s.right}
		}
		switch s.left {
		case Periodic:
			t.Bwd = Link{Track: i, Forward: false, BC: Periodic}
		default:
			t.Bwd = Link{Track: i, Forward: true, BC: s.left}
		}

		s.tracks[i] = t
	}
}

// SetCells overrides the region-to-cell map used by fixed source
// broadcasts. By default every region is its own cell.
func (s *Slab) SetCells(cells []int) error {
	if len(cells) != len(s.widths) {
		return fmt.Errorf("track: %d cell ids for %d regions",
			len(cells), len(s.widths))
	}
	copy(s.cells, cells)
	return nil
}

func (s *Slab) NumRegions() int               { return len(s.widths) }
func (s *Slab) NumGroups() int                { return s.numGroups }
func (s *Slab) MaterialOf(r int) *xs.Material { return s.mats[r] }
func (s *Slab) CellOf(r int) int              { return s.cells[r] }
func (s *Slab) NumAzim() int                  { return s.numAzim }
func (s *Slab) AzimWeights() []float64        { return s.azimWeights }
func (s *Slab) Tracks() []*Track              { return s.tracks }
func (s *Slab) RegionVolumes() []float64      { return s.volumes }

// Widths returns the region widths. Used by coarse-mesh acceleration and
// plotting, not by the sweep.
func (s *Slab) Widths() []float64 { return s.widths }

func (s *Slab) LeftBoundary() Boundary  { return s.left }
func (s *Slab) RightBoundary() Boundary { return s.right }

// NumSegments returns the total segment count across all tracks.
func (s *Slab) NumSegments() int {
	n := 0
	for _, t := range s.tracks {
		n += len(t.Segments)
	}
	return n
}

// maxSigmaT returns the largest group total cross section of a material.
func maxSigmaT(m *xs.Material) float64 {
	max := 0.0
	for _, sig := range m.SigmaT {
		if sig > max {
			max = sig
		}
	}
	return max
}

// MaxOpticalLength returns the largest optical length of any segment, taken
// over the worst energy group.
func (s *Slab) MaxOpticalLength() float64 {
	max := 0.0
	for _, t := range s.tracks {
		for _, seg := range t.Segments {
			tau := maxSigmaT(s.mats[seg.Region]) * seg.Length
			if tau > max {
				max = tau
			}
		}
	}
	return max
}

// SplitSegments subdivides any segment whose worst-group optical length
// exceeds maxTau into equal pieces that respect the bound. Region volumes
// are unchanged.
func (s *Slab) SplitSegments(maxTau float64) {
	for _, t := range s.tracks {
		split := make([]Segment, 0, len(t.Segments))
		for _, seg := range t.Segments {
			tau := maxSigmaT(s.mats[seg.Region]) * seg.Length
			n := 1
			if tau > maxTau {
				n = int(math.Ceil(tau / maxTau))
			}
			piece := Segment{Region: seg.Region, Length: seg.Length / float64(n)}
			for k := 0; k < n; k++ {
				split = append(split, piece)
			}
		}
		t.Segments = split
	}
}
