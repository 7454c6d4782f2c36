package track

import (
	"math"
	"testing"

	"gomoc/xs"
)

func absorber() *xs.Material {
	return &xs.Material{
		ID:       0,
		Name:     "absorber",
		SigmaT:   []float64{1.0},
		SigmaS:   []float64{0.0},
		NuSigmaF: []float64{0.0},
		Chi:      []float64{0.0},
	}
}

func testSlab(t *testing.T, numAzim int, left, right Boundary) *Slab {
	widths := []float64{0.5, 1.5, 1.0}
	mats := []*xs.Material{absorber(), absorber(), absorber()}
	s, err := NewSlab(widths, mats, numAzim, left, right)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestVolumesMatchWidths(t *testing.T) {
	s := testSlab(t, 4, Vacuum, Vacuum)
	widths := []float64{0.5, 1.5, 1.0}
	for r, v := range s.RegionVolumes() {
		if math.Abs(v-widths[r]) > 1e-12 {
			t.Errorf("region %d volume = %g, want %g", r, v, widths[r])
		}
	}
}

func TestLinkageIsBijective(t *testing.T) {
	for _, bc := range []Boundary{Vacuum, Reflective, Periodic} {
		s := testSlab(t, 3, bc, bc)

		// Every (track, direction) boundary slot must be written exactly
		// once per sweep or stale flux would leak across iterations.
		written := map[[2]int]int{}
		for i, tr := range s.Tracks() {
			if tr.Azim != i {
				t.Errorf("track %d carries azim index %d", i, tr.Azim)
			}
			fwdSlot, bwdSlot := 0, 1
			slot := bwdSlot
			if tr.Fwd.Forward {
				slot = fwdSlot
			}
			written[[2]int{tr.Fwd.Track, slot}]++
			slot = bwdSlot
			if tr.Bwd.Forward {
				slot = fwdSlot
			}
			written[[2]int{tr.Bwd.Track, slot}]++
		}

		if len(written) != 2*len(s.Tracks()) {
			t.Fatalf("%v: %d distinct boundary slots written, want %d",
				bc, len(written), 2*len(s.Tracks()))
		}
		for slot, n := range written {
			if n != 1 {
				t.Errorf("%v: slot %v written %d times", bc, slot, n)
			}
		}
	}
}

func TestSplitSegments(t *testing.T) {
	s := testSlab(t, 2, Reflective, Reflective)
	before := s.MaxOpticalLength()
	if before <= 1.0 {
		t.Fatalf("test slab too thin to exercise splitting: max tau = %g", before)
	}

	volumes := append([]float64{}, s.RegionVolumes()...)
	s.SplitSegments(1.0)

	if got := s.MaxOpticalLength(); got > 1.0+1e-12 {
		t.Errorf("max optical length %g after splitting to 1.0", got)
	}
	for r, v := range s.RegionVolumes() {
		if math.Abs(v-volumes[r]) > 1e-12 {
			t.Errorf("region %d volume changed by splitting: %g -> %g",
				r, volumes[r], v)
		}
	}

	// Total chord length per track is preserved.
	for i, tr := range s.Tracks() {
		total := 0.0
		for _, seg := range tr.Segments {
			total += seg.Length
		}
		want := 3.0 / s.cosines[i]
		if math.Abs(total-want) > 1e-12 {
			t.Errorf("track %d chord length %g, want %g", i, total, want)
		}
	}
}

func TestNewSlabErrors(t *testing.T) {
	m := absorber()
	if _, err := NewSlab(nil, nil, 4, Vacuum, Vacuum); err == nil {
		t.Errorf("empty slab accepted")
	}
	if _, err := NewSlab(
		[]float64{1, 1}, []*xs.Material{m}, 4, Vacuum, Vacuum,
	); err == nil {
		t.Errorf("material/region mismatch accepted")
	}
	if _, err := NewSlab(
		[]float64{1, -1}, []*xs.Material{m, m}, 4, Vacuum, Vacuum,
	); err == nil {
		t.Errorf("negative width accepted")
	}
	if _, err := NewSlab(
		[]float64{1}, []*xs.Material{m}, 0, Vacuum, Vacuum,
	); err == nil {
		t.Errorf("zero azimuthal angles accepted")
	}
}

func TestSetCells(t *testing.T) {
	s := testSlab(t, 2, Vacuum, Vacuum)
	if s.CellOf(2) != 2 {
		t.Errorf("default cell of region 2 = %d, want 2", s.CellOf(2))
	}
	if err := s.SetCells([]int{0, 0, 1}); err != nil {
		t.Fatal(err)
	}
	if s.CellOf(1) != 0 || s.CellOf(2) != 1 {
		t.Errorf("cell map not applied")
	}
	if err := s.SetCells([]int{0}); err == nil {
		t.Errorf("short cell map accepted")
	}
}
