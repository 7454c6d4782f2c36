/*package cmfd accelerates the transport solver's eigenvalue iteration with
a coarse-mesh finite-difference diffusion solve.

Fine regions are mapped onto a one-dimensional chain of coarse cells. Each
iteration the fine flux is restricted onto the cells, cross sections are
flux-volume homogenized, the diffusion coupling between cells is corrected
so the coarse operator reproduces the transport-tallied face currents, the
multigroup diffusion eigenproblem is solved by power iteration with an LU
factorization of the loss matrix, and the resulting per-cell flux ratios
are prolonged back onto the fine scalar flux and the track boundary angular
flux. The current correction keeps the coarse and fine solves synchronized:
a converged transport flux is an exact coarse eigenvector, so the
prolongation becomes the identity instead of dragging the fine solution
toward the uncorrected diffusion fixed point.
*/
package cmfd

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"gomoc/quad"
	"gomoc/track"
	"gomoc/xs"
)

// Mesh is the coarse acceleration mesh. It satisfies the solver's
// Accelerator interface.
type Mesh struct {
	regionCell  []int
	widths      []float64
	left, right track.Boundary

	numCells, numGroups int
	numRegions          int

	// cellStart[c] is the first fine region of cell c, so the region face
	// cellStart[c] is the left face of cell c.
	cellStart []int

	volumes []float64
	mats    []*xs.Material
	flux    []float64
	pq      quad.Polar

	keff   float64
	ratios []float64
}

// New creates a coarse mesh from a fine-region-to-cell map and the physical
// cell widths. The map must be contiguous and ascending so cell faces
// coincide with region faces. Boundary conditions describe the outer faces
// of the first and last cell.
func New(
	regionCell []int, widths []float64, left, right track.Boundary,
) (*Mesh, error) {
	if len(widths) == 0 {
		return nil, fmt.Errorf("cmfd: mesh has no cells")
	}
	for c, w := range widths {
		if w <= 0 {
			return nil, fmt.Errorf("cmfd: cell %d has width %g", c, w)
		}
	}
	prev := 0
	for r, c := range regionCell {
		if c < 0 || c >= len(widths) {
			return nil, fmt.Errorf("cmfd: region %d maps to cell %d of %d",
				r, c, len(widths))
		}
		if r == 0 && c != 0 {
			return nil, fmt.Errorf("cmfd: region 0 maps to cell %d, want 0", c)
		}
		if r > 0 && (c < prev || c > prev+1) {
			return nil, fmt.Errorf("cmfd: cell map not contiguous at region %d", r)
		}
		prev = c
	}
	if len(regionCell) > 0 && prev != len(widths)-1 {
		return nil, fmt.Errorf("cmfd: cell map covers %d of %d cells",
			prev+1, len(widths))
	}

	cellStart := make([]int, len(widths))
	for r := len(regionCell) - 1; r >= 0; r-- {
		cellStart[regionCell[r]] = r
	}

	return &Mesh{
		regionCell: regionCell,
		widths:     widths,
		left:       left,
		right:      right,
		numCells:   len(widths),
		numRegions: len(regionCell),
		cellStart:  cellStart,
		keff:       1.0,
	}, nil
}

// Initialize binds the fine-grid region data. The flux slice is shared with
// the transport solver and corrected in place.
func (m *Mesh) Initialize(
	volumes []float64, mats []*xs.Material, flux []float64, pq quad.Polar,
) error {
	if len(volumes) != len(m.regionCell) {
		return fmt.Errorf("cmfd: %d region volumes for %d mapped regions",
			len(volumes), len(m.regionCell))
	}
	m.volumes = volumes
	m.mats = mats
	m.flux = flux
	m.pq = pq
	m.numGroups = mats[0].NumGroups()
	m.ratios = make([]float64, m.numCells*m.numGroups)
	return nil
}

// homogenized holds flux-volume weighted cell cross sections.
type homogenized struct {
	flux, vol          []float64
	sigT, sigA, nuSigF []float64
	chi                []float64
	scatter            []float64
}

// restrict condenses the fine flux and cross sections onto the coarse
// cells.
func (m *Mesh) restrict() *homogenized {
	c, g := m.numCells, m.numGroups
	h := &homogenized{
		flux:    make([]float64, c*g),
		vol:     make([]float64, c),
		sigT:    make([]float64, c*g),
		sigA:    make([]float64, c*g),
		nuSigF:  make([]float64, c*g),
		chi:     make([]float64, c*g),
		scatter: make([]float64, c*g*g),
	}

	fissWeight := make([]float64, c)
	for r, cell := range m.regionCell {
		mt := m.mats[r]
		v := m.volumes[r]
		h.vol[cell] += v

		fiss := 0.0
		for e := 0; e < g; e++ {
			phiV := m.flux[r*g+e] * v
			h.flux[cell*g+e] += phiV
			h.sigT[cell*g+e] += mt.SigmaT[e] * phiV
			h.sigA[cell*g+e] += mt.SigmaA(e) * phiV
			h.nuSigF[cell*g+e] += mt.NuSigmaF[e] * phiV
			fiss += mt.NuSigmaF[e] * phiV
			for gp := 0; gp < g; gp++ {
				h.scatter[(cell*g+e)*g+gp] += mt.Scatter(e, gp) * phiV
			}
		}
		fissWeight[cell] += fiss
		for e := 0; e < g; e++ {
			h.chi[cell*g+e] += mt.Chi[e] * fiss
		}
	}

	for cell := 0; cell < c; cell++ {
		for e := 0; e < g; e++ {
			phiV := h.flux[cell*g+e]
			if phiV > 0 {
				h.sigT[cell*g+e] /= phiV
				h.sigA[cell*g+e] /= phiV
				for gp := 0; gp < g; gp++ {
					h.scatter[(cell*g+e)*g+gp] /= phiV
				}
				h.nuSigF[cell*g+e] /= phiV
			}
			if fissWeight[cell] > 0 {
				h.chi[cell*g+e] /= fissWeight[cell]
			}
			if h.vol[cell] > 0 {
				h.flux[cell*g+e] = phiV / h.vol[cell]
			}
		}
	}
	return h
}

// diffusion returns the diffusion coefficient 1/(3 sigma_t).
func diffusion(sigT float64) float64 {
	if sigT <= 0 {
		return 0
	}
	return 1 / (3 * sigT)
}

// buildMatrices assembles the multigroup loss and fission production
// matrices over the coarse cells.
func (m *Mesh) buildMatrices(
	h *homogenized, currents []float64,
) (loss, fission *mat.Dense) {
	c, g := m.numCells, m.numGroups
	n := c * g
	loss = mat.NewDense(n, n, nil)
	fission = mat.NewDense(n, n, nil)

	for cell := 0; cell < c; cell++ {
		w := m.widths[cell]
		for e := 0; e < g; e++ {
			row := cell*g + e

			// Removal: absorption plus outscatter.
			removal := h.sigA[cell*g+e]
			for gp := 0; gp < g; gp++ {
				if gp != e {
					removal += h.scatter[(cell*g+e)*g+gp]
				}
			}
			loss.Set(row, row, removal*w)

			for gp := 0; gp < g; gp++ {
				// Inscatter from other groups in the same cell.
				if gp != e {
					col := cell*g + gp
					loss.Set(row, col,
						loss.At(row, col)-h.scatter[(cell*g+gp)*g+e]*w)
				}
				fission.Set(row, cell*g+gp,
					h.chi[cell*g+e]*h.nuSigF[cell*g+gp]*w)
			}
		}
	}

	// Interior faces couple neighbors through a current-corrected diffusion
	// term: the correction makes the coarse operator's face current equal
	// the transport-tallied current, so a converged transport flux is an
	// exact eigenvector and the prolongation ratios settle at one. Periodic
	// wraps the last cell onto the first.
	for f := 1; f < c; f++ {
		m.coupleFace(loss, h, currents, f-1, f, m.cellStart[f])
	}
	if m.right == track.Periodic && c > 1 {
		m.coupleFace(loss, h, currents, c-1, 0, m.numRegions)
	}

	// Vacuum faces leak. With transport currents available the face term
	// reproduces the tallied leakage exactly; without them it falls back to
	// the diffusion estimate.
	if m.left == track.Vacuum {
		m.leakFace(loss, h, currents, 0, 0, -1)
	}
	if m.right == track.Vacuum {
		m.leakFace(loss, h, currents, c-1, m.numRegions, 1)
	}

	return loss, fission
}

// coupleFace adds the diffusion coupling between cells a and b across the
// face at the given region-face index. The correction term is chosen so the
// operator's face current (dt-dh)*phiA - (dt+dh)*phiB reproduces the
// tallied transport current exactly.
func (m *Mesh) coupleFace(
	loss *mat.Dense, h *homogenized, currents []float64, a, b, regionFace int,
) {
	g := m.numGroups
	wa, wb := m.widths[a], m.widths[b]
	for e := 0; e < g; e++ {
		da := diffusion(h.sigT[a*g+e])
		db := diffusion(h.sigT[b*g+e])
		if da <= 0 || db <= 0 {
			continue
		}
		dt := 2 * da * db / (wa*db + wb*da)

		dh := 0.0
		phiA, phiB := h.flux[a*g+e], h.flux[b*g+e]
		if sum := phiA + phiB; currents != nil && sum > 0 {
			j := currents[regionFace*g+e]
			dh = -(j + dt*(phiB-phiA)) / sum
		}

		rowA, rowB := a*g+e, b*g+e
		loss.Set(rowA, rowA, loss.At(rowA, rowA)+dt-dh)
		loss.Set(rowA, rowB, loss.At(rowA, rowB)-(dt+dh))
		loss.Set(rowB, rowB, loss.At(rowB, rowB)+dt+dh)
		loss.Set(rowB, rowA, loss.At(rowB, rowA)-(dt-dh))
	}
}

// leakFace adds the outer-face leakage term for a vacuum boundary cell.
// sign is +1 when the ascending region direction points out of the domain
// at this face and -1 when it points in.
func (m *Mesh) leakFace(
	loss *mat.Dense, h *homogenized, currents []float64,
	cell, regionFace int, sign float64,
) {
	g := m.numGroups
	w := m.widths[cell]
	for e := 0; e < g; e++ {
		row := cell*g + e
		coef := 0.0
		if d := diffusion(h.sigT[cell*g+e]); d > 0 {
			coef = 2 * d / (w + 4*d)
		}
		if phi := h.flux[cell*g+e]; currents != nil && phi > 0 {
			coef = sign * currents[regionFace*g+e] / phi
		}
		loss.Set(row, row, loss.At(row, row)+coef)
	}
}

// Keff solves the coarse eigenproblem and prolongs the flux correction onto
// the fine grid. currents holds the sweep's net region-face current tallies
// used to correct the diffusion coupling; nil disables the correction. It
// returns the updated eigenvalue estimate.
func (m *Mesh) Keff(iteration int, currents []float64) (float64, error) {
	h := m.restrict()
	loss, fission := m.buildMatrices(h, currents)
	n := m.numCells * m.numGroups

	phi := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		phi.SetVec(i, h.flux[i])
	}

	prod := mat.NewVecDense(n, nil)
	prod.MulVec(fission, phi)
	totProd := mat.Sum(prod)
	if totProd <= 0 {
		// Non-multiplying problem: nothing to accelerate.
		for i := range m.ratios {
			m.ratios[i] = 1
		}
		m.keff = 0
		return 0, nil
	}

	var lu mat.LU
	lu.Factorize(loss)

	// Power iteration on loss * phi = (1/k) fission * phi.
	k := m.keff
	if k <= 0 {
		k = 1
	}
	rhs := mat.NewVecDense(n, nil)
	for it := 0; it < 200; it++ {
		rhs.ScaleVec(1/k, prod)
		if err := lu.SolveVecTo(phi, false, rhs); err != nil {
			return 0, fmt.Errorf("cmfd: singular loss matrix: %v", err)
		}

		old := totProd
		prod.MulVec(fission, phi)
		totProd = mat.Sum(prod)
		kNew := k * totProd / old
		converged := math.Abs(kNew-k) < 1e-10
		k = kNew
		if converged {
			break
		}
	}
	m.keff = k

	// Scale the coarse solution to preserve the fine fission integral,
	// then form per-cell prolongation ratios.
	fine := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		fine.SetVec(i, h.flux[i])
	}
	fineProd := mat.NewVecDense(n, nil)
	fineProd.MulVec(fission, fine)
	scale := mat.Sum(fineProd) / totProd

	for i := 0; i < n; i++ {
		if h.flux[i] > 0 {
			m.ratios[i] = scale * phi.AtVec(i) / h.flux[i]
		} else {
			m.ratios[i] = 1
		}
	}

	// Correct the fine scalar flux in place.
	g := m.numGroups
	for r, cell := range m.regionCell {
		for e := 0; e < g; e++ {
			m.flux[r*g+e] *= m.ratios[cell*g+e]
		}
	}

	return m.keff, nil
}

// CorrectBoundaryFlux rescales the boundary angular flux of every track end
// by the prolongation ratio of the cell the flux enters.
func (m *Mesh) CorrectBoundaryFlux(
	tracks []*track.Track, boundary [][2][]float64,
) {
	g := m.numGroups
	for t, tr := range tracks {
		if len(tr.Segments) == 0 {
			continue
		}
		first := m.regionCell[tr.Segments[0].Region]
		last := m.regionCell[tr.Segments[len(tr.Segments)-1].Region]

		numPolar := len(boundary[t][0]) / g
		for p := 0; p < numPolar; p++ {
			for e := 0; e < g; e++ {
				boundary[t][0][p*g+e] *= m.ratios[first*g+e]
				boundary[t][1][p*g+e] *= m.ratios[last*g+e]
			}
		}
	}
}
