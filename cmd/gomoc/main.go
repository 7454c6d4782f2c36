package main

import (
	"flag"
	"fmt"
	"log"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/gcfg.v1"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"gomoc/cmfd"
	"gomoc/quad"
	"gomoc/solver"
	"gomoc/track"
	"gomoc/xs"
)

type ConfigWrapper struct {
	Problem ProblemConfig
	Slab    SlabConfig
	Output  OutputConfig
}

type ProblemConfig struct {
	// Mode selects the solve: "Eigenvalue", "Source", or "Flux".
	Mode      string
	MaxIters  int
	Threshold float64

	// Keff is the fixed eigenvalue used by [Source] mode.
	Keff float64

	// Residual selects the convergence quantity: "Flux", "Source", or
	// "Fission".
	Residual string

	// Quadrature is the polar quadrature family, "TY" or "GL".
	Quadrature string
	NumPolar   int
	NumAzim    int

	ExpInterpolation bool
	ExpPrecision     float64
	MaxOpticalLength float64

	// Cmfd enables coarse-mesh diffusion acceleration with one cell per
	// slab region.
	Cmfd bool

	// FixedSource lines are "region group value" triples with 1-based
	// groups.
	FixedSource []string
}

type SlabConfig struct {
	// Material lines are "name file" pairs naming a cross section table.
	Material []string

	// Region lines are "materialName width" pairs, listed left to right.
	Region []string

	LeftBoundary  string
	RightBoundary string
}

type OutputConfig struct {
	// FluxPlot, if set, is the file the converged group fluxes are plotted
	// to. The extension selects the format.
	FluxPlot string
}

func DefaultConfigWrapper() *ConfigWrapper {
	return &ConfigWrapper{
		Problem: ProblemConfig{
			Mode:             "Eigenvalue",
			MaxIters:         1000,
			Threshold:        1e-5,
			Keff:             1.0,
			Residual:         "Fission",
			Quadrature:       "TY",
			NumPolar:         3,
			NumAzim:          4,
			ExpInterpolation: true,
			ExpPrecision:     1e-5,
			MaxOpticalLength: 10,
		},
		Slab: SlabConfig{
			LeftBoundary:  "Vacuum",
			RightBoundary: "Vacuum",
		},
	}
}

const exampleConfigText = `[Problem]

# Eigenvalue, Source, or Flux.
Mode = Eigenvalue

MaxIters = 1000
Threshold = 1e-5

# Convergence quantity: Flux, Source, or Fission.
Residual = Fission

# Polar quadrature: TY (1-3 angles) or GL (any count).
Quadrature = TY
NumPolar = 3
NumAzim = 4

ExpInterpolation = true
ExpPrecision = 1e-5
MaxOpticalLength = 10

# Accelerate the eigenvalue solve with a coarse diffusion mesh.
Cmfd = false

# Fixed sources for Flux and Source modes: region, 1-based group, value.
# FixedSource = 0 1 1.0

[Slab]

# One line per material: a name and a cross section table file.
Material = fuel fuel.xs
Material = water water.xs

# One line per region, left to right: a material name and a width in cm.
Region = water 10
Region = fuel 40
Region = water 10

# Vacuum, Reflective, or Periodic.
LeftBoundary = Reflective
RightBoundary = Vacuum

[Output]

# FluxPlot = flux.png
`

func main() {
	var (
		configStr     string
		exampleConfig bool
		threads       int
	)

	flag.StringVar(
		&configStr, "Config", "",
		"Configuration file describing the problem, slab, and output.",
	)
	flag.IntVar(
		&threads, "Threads", runtime.NumCPU(),
		"Number of threads used. Default is the number of logical cores.",
	)
	flag.BoolVar(
		&exampleConfig, "ExampleConfig", false,
		"Prints an example configuration file to stdout.",
	)

	flag.Parse()

	if exampleConfig {
		fmt.Print(exampleConfigText)
		return
	}
	if configStr == "" {
		log.Fatal("No 'Config' file given. Run with -ExampleConfig for a " +
			"template.")
	}

	wrap := DefaultConfigWrapper()
	if err := gcfg.ReadFileInto(wrap, configStr); err != nil {
		log.Fatal(err.Error())
	}

	sl, err := buildSlab(&wrap.Slab, wrap.Problem.NumAzim)
	if err != nil {
		log.Fatal(err.Error())
	}
	s, err := buildSolver(&wrap.Problem, sl, threads)
	if err != nil {
		log.Fatal(err.Error())
	}

	rt, err := residualType(wrap.Problem.Residual)
	if err != nil {
		log.Fatal(err.Error())
	}

	switch wrap.Problem.Mode {
	case "Eigenvalue":
		if wrap.Problem.Cmfd {
			m, merr := accelMesh(sl)
			if merr != nil {
				log.Fatal(merr.Error())
			}
			s.SetAccelerator(m)
		}
		err = s.ComputeEigenvalue(wrap.Problem.MaxIters, rt)
	case "Source":
		err = s.ComputeSource(wrap.Problem.MaxIters, wrap.Problem.Keff, rt)
	case "Flux":
		err = s.ComputeFlux(wrap.Problem.MaxIters, true)
	default:
		log.Fatalf("Unrecognized 'Mode' value, '%s'.", wrap.Problem.Mode)
	}
	if err != nil {
		log.Fatal(err.Error())
	}

	report(s, sl, wrap.Problem.Mode)

	if wrap.Output.FluxPlot != "" {
		if err := plotFlux(s, sl, wrap.Output.FluxPlot); err != nil {
			log.Fatal(err.Error())
		}
		log.Printf("Wrote %s", wrap.Output.FluxPlot)
	}
}

func parseBoundary(str string) (track.Boundary, error) {
	switch str {
	case "Vacuum":
		return track.Vacuum, nil
	case "Reflective":
		return track.Reflective, nil
	case "Periodic":
		return track.Periodic, nil
	}
	return 0, fmt.Errorf("unrecognized boundary condition '%s'", str)
}

func buildSlab(con *SlabConfig, numAzim int) (*track.Slab, error) {
	mats := map[string]*xs.Material{}
	for i, line := range con.Material {
		toks := strings.Fields(line)
		if len(toks) != 2 {
			return nil, fmt.Errorf(
				"'Material' line %d should be a name and a file", i+1,
			)
		}
		m, err := xs.ReadMaterial(toks[1], toks[0], i+1)
		if err != nil {
			return nil, err
		}
		mats[toks[0]] = m
	}

	if len(con.Region) == 0 {
		return nil, fmt.Errorf("the [Slab] section has no 'Region' lines")
	}
	widths := make([]float64, len(con.Region))
	regionMats := make([]*xs.Material, len(con.Region))
	for r, line := range con.Region {
		toks := strings.Fields(line)
		if len(toks) != 2 {
			return nil, fmt.Errorf(
				"'Region' line %d should be a material name and a width", r+1,
			)
		}
		m, ok := mats[toks[0]]
		if !ok {
			return nil, fmt.Errorf(
				"'Region' line %d names unknown material '%s'", r+1, toks[0],
			)
		}
		w, err := strconv.ParseFloat(toks[1], 64)
		if err != nil {
			return nil, fmt.Errorf("'Region' line %d width: %v", r+1, err)
		}
		regionMats[r], widths[r] = m, w
	}

	left, err := parseBoundary(con.LeftBoundary)
	if err != nil {
		return nil, err
	}
	right, err := parseBoundary(con.RightBoundary)
	if err != nil {
		return nil, err
	}

	return track.NewSlab(widths, regionMats, numAzim, left, right)
}

func buildSolver(
	con *ProblemConfig, sl *track.Slab, threads int,
) (*solver.Solver, error) {
	s, err := solver.New(sl)
	if err != nil {
		return nil, err
	}

	pq, err := quad.New(con.Quadrature, con.NumPolar)
	if err != nil {
		return nil, err
	}
	s.SetPolarQuadrature(pq)

	if err := s.SetConvergenceThreshold(con.Threshold); err != nil {
		return nil, err
	}
	if err := s.SetWorkers(threads); err != nil {
		return nil, err
	}
	if err := s.SetMaxOpticalLength(con.MaxOpticalLength); err != nil {
		return nil, err
	}
	if err := s.SetExpPrecision(con.ExpPrecision); err != nil {
		return nil, err
	}
	if con.ExpInterpolation {
		s.UseExpInterpolation()
	} else {
		s.UseExpDirect()
	}

	for i, line := range con.FixedSource {
		toks := strings.Fields(line)
		if len(toks) != 3 {
			return nil, fmt.Errorf(
				"'FixedSource' line %d should be a region, a group, and a value",
				i+1,
			)
		}
		region, err := strconv.Atoi(toks[0])
		if err != nil {
			return nil, fmt.Errorf("'FixedSource' line %d region: %v", i+1, err)
		}
		group, err := strconv.Atoi(toks[1])
		if err != nil {
			return nil, fmt.Errorf("'FixedSource' line %d group: %v", i+1, err)
		}
		value, err := strconv.ParseFloat(toks[2], 64)
		if err != nil {
			return nil, fmt.Errorf("'FixedSource' line %d value: %v", i+1, err)
		}
		if err := s.SetFixedSourceByRegion(region, group, value); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func residualType(str string) (solver.ResidualType, error) {
	switch str {
	case "Flux":
		return solver.ScalarFlux, nil
	case "Source":
		return solver.TotalSource, nil
	case "Fission":
		return solver.FissionSource, nil
	}
	return 0, fmt.Errorf("unrecognized 'Residual' value, '%s'", str)
}

func accelMesh(sl *track.Slab) (*cmfd.Mesh, error) {
	cells := make([]int, sl.NumRegions())
	for r := range cells {
		cells[r] = r
	}
	return cmfd.New(cells, sl.Widths(), sl.LeftBoundary(), sl.RightBoundary())
}

func report(s *solver.Solver, sl *track.Slab, mode string) {
	iters := s.NumIterations()
	total := s.TotalTime()
	log.Printf("Finished in %d iterations (%v total)", iters, total)
	if iters > 0 {
		log.Printf("Time per iteration: %v", total/time.Duration(iters))

		// Each iteration integrates every segment twice, once per track
		// direction, for every polar angle and group.
		n := 2 * sl.NumSegments() * s.NumPolarAngles() * sl.NumGroups() * iters
		if n > 0 {
			log.Printf("Time per segment integration: %v",
				total/time.Duration(n))
		}
	}

	if mode != "Flux" {
		if k, err := s.Keff(); err == nil {
			log.Printf("k_eff = %1.6f", k)
		}
	}
}

func plotFlux(s *solver.Solver, sl *track.Slab, file string) error {
	p := plot.New()
	p.Title.Text = "Scalar flux"
	p.X.Label.Text = "x (cm)"
	p.Y.Label.Text = "flux (arbitrary units)"

	widths := sl.Widths()
	centers := make([]float64, len(widths))
	x := 0.0
	for r, w := range widths {
		centers[r] = x + w/2
		x += w
	}

	for g := 1; g <= sl.NumGroups(); g++ {
		pts := make(plotter.XYs, len(widths))
		for r := range widths {
			phi, err := s.FSRScalarFlux(r, g)
			if err != nil {
				return err
			}
			pts[r].X, pts[r].Y = centers[r], phi
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(g - 1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("group %d", g), line)
	}

	return p.Save(6*vg.Inch, 4*vg.Inch, file)
}
