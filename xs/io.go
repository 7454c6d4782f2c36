package xs

import (
	"fmt"

	"github.com/phil-mansfield/table"
)

// readCols reads the given whitespace-separated columns from file as
// float64s, converting the table package's panics into errors.
func readCols(file string, colIdxs []int) (cols [][]float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	cols = table.TextFile(file).ReadFloat64s(colIdxs)
	return cols, nil
}

// ReadMaterial reads multigroup cross sections from a whitespace-separated
// text table with one row per energy group. The columns are, in order: the
// total cross section, nu times the fission cross section, the fission
// spectrum chi, and one scattering column per group giving the cross section
// for scattering from the row's group into the column's group.
func ReadMaterial(file, name string, id int) (*Material, error) {
	// The scatter block width isn't known until the group count is, so read
	// the first column alone to count rows, then reread everything.
	cols, err := readCols(file, []int{0})
	if err != nil {
		return nil, err
	}
	g := len(cols[0])
	if g == 0 {
		return nil, fmt.Errorf("xs file %s: no rows", file)
	}

	colIdxs := make([]int, 3+g)
	for i := range colIdxs {
		colIdxs[i] = i
	}
	cols, err = readCols(file, colIdxs)
	if err != nil {
		return nil, err
	}

	m := &Material{
		ID:       id,
		Name:     name,
		SigmaT:   cols[0],
		NuSigmaF: cols[1],
		Chi:      cols[2],
		SigmaS:   make([]float64, g*g),
	}
	for from := 0; from < g; from++ {
		for to := 0; to < g; to++ {
			m.SigmaS[from*g+to] = cols[3+to][from]
		}
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("xs file %s: %v", file, err)
	}
	return m, nil
}
