package main

import (
	"context"
	"math"

	"github.com/notargets/hexfem/assembly"
	"github.com/notargets/hexfem/config"
	"github.com/notargets/hexfem/connectivity"
	"github.com/notargets/hexfem/exchange"
	"github.com/notargets/hexfem/gather"
	"github.com/notargets/hexfem/geom"
	"github.com/notargets/hexfem/mesh"
	"github.com/notargets/hexfem/operators"
	"github.com/notargets/hexfem/rowmap"
	"github.com/notargets/hexfem/runner"
	"github.com/notargets/hexfem/utils"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

type gradientResult struct {
	MaxAbs  float64
	NumRows int
}

type rankResult struct {
	Rank                  int
	OwnedRows, SharedRows int
	Nonzeros              int
	Timings               assembly.Timings
}

type assembleResult struct {
	Ranks       []rankResult
	TotalMass   float64
	TotalSource float64
}

func buildRanks(run *config.Run) ([]*mesh.BoxMesh, []*rowmap.RowMap, []*exchange.Plan, error) {
	strategy, err := run.Strategy()
	if err != nil {
		return nil, nil, nil, err
	}
	meshes, err := mesh.BuildBox(mesh.BoxSpec{NX: run.NX, NY: run.NX, NZ: run.NX, Scale: run.Scale,
		Order: run.PolynomialOrder, NumRanks: run.NumRanks, Strategy: strategy})
	if err != nil {
		return nil, nil, nil, err
	}
	maps := make([]*rowmap.RowMap, len(meshes))
	for r, m := range meshes {
		if maps[r], err = rowmap.Build(m, mesh.PartBlock, 3); err != nil {
			return nil, nil, nil, err
		}
	}
	plans, err := exchange.BuildPlans(maps)
	if err != nil {
		return nil, nil, nil, err
	}
	return meshes, maps, plans, nil
}

func gradientRank(run *config.Run, m *mesh.BoxMesh, rm *rowmap.RowMap) (*mat.Dense, error) {
	qf := m.AddField("q", 1)
	qf.Fill(run.BoundaryValue)
	ft, err := connectivity.BuildFaceTable(m, run.BoundaryPart)
	if err != nil {
		return nil, err
	}
	qv, err := gather.FaceScalar(ft, qf)
	if err != nil {
		return nil, err
	}
	coords, err := gather.FaceVector(ft, m.Coordinates())
	if err != nil {
		return nil, err
	}
	ea, err := geom.NewExposedAreas(m.Order())
	if err != nil {
		return nil, err
	}
	areas, err := ea.Invoke(coords)
	if err != nil {
		return nil, err
	}
	offsets, err := operators.BuildFaceOffsets(ft, rm)
	if err != nil {
		return nil, err
	}
	gc, err := operators.NewGradientBoundaryClosure(m.Order())
	if err != nil {
		return nil, err
	}
	var rhs *mat.Dense
	if rm.NumRows() > 0 {
		rhs = mat.NewDense(rm.NumRows(), 3, nil)
	}
	return rhs, gc.Invoke(offsets, qv, areas, rhs)
}

// runGradient applies the boundary closure per rank and exports shared rows
// to their owners
func runGradient(run *config.Run) (*gradientResult, error) {
	meshes, maps, plans, err := buildRanks(run)
	if err != nil {
		return nil, err
	}
	srcs := make([]*mat.Dense, len(meshes))
	dsts := make([]*mat.Dense, len(meshes))
	for r, m := range meshes {
		if srcs[r], err = gradientRank(run, m, maps[r]); err != nil {
			return nil, err
		}
		if n := maps[r].NumOwned(); n > 0 {
			dsts[r] = mat.NewDense(n, 3, nil)
		}
	}
	mb := exchange.NewMailbox(len(meshes))
	err = exchange.RunRanks(context.Background(), len(meshes), func(ctx context.Context, rank int) error {
		return exchange.NewExporter(plans[rank], mb).ExportVector(ctx, srcs[rank], dsts[rank])
	})
	if err != nil {
		return nil, err
	}
	res := &gradientResult{}
	for _, d := range dsts {
		if d == nil {
			continue
		}
		r, c := d.Dims()
		res.NumRows += r
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				res.MaxAbs = math.Max(res.MaxAbs, math.Abs(d.At(i, j)))
			}
		}
	}
	return res, nil
}

type rankSystem struct {
	owned, shared *assembly.CSR
	rhs           *mat.Dense
	timings       assembly.Timings
}

// assembleRank builds the mass matrix and a unit source rhs for one rank on
// the device
func assembleRank(kr *runner.Runner, m *mesh.BoxMesh, rm *rowmap.RowMap, acfg assembly.Config) (*rankSystem, error) {
	et, err := connectivity.BuildElemTable(m, mesh.PartBlock)
	if err != nil {
		return nil, err
	}
	coords, err := gather.ElemVector(et, m.Coordinates())
	if err != nil {
		return nil, err
	}
	vm, err := geom.NewVolumeMetric(m.Order())
	if err != nil {
		return nil, err
	}
	vol, err := vm.Invoke(coords)
	if err != nil {
		return nil, err
	}
	mm, err := operators.NewMassMatrix(m.Order())
	if err != nil {
		return nil, err
	}
	mats, err := mm.Invoke(vol)
	if err != nil {
		return nil, err
	}
	f := m.AddField("f", 1)
	f.Fill(1)
	fv, err := gather.ElemScalar(et, f)
	if err != nil {
		return nil, err
	}
	vecs, err := operators.SourceRhs(mats, fv)
	if err != nil {
		return nil, err
	}

	ml, err := operators.NewMatrixLayout(et, rm)
	if err != nil {
		return nil, err
	}
	rl, err := operators.NewRhsLayout(et, rm)
	if err != nil {
		return nil, err
	}
	mEntries := operators.NewEntries(ml.Capacity())
	if err = ml.MatrixEntries(mats, mEntries); err != nil {
		return nil, err
	}
	rEntries := operators.NewEntries(rl.Capacity())
	if err = rl.RhsEntries(vecs, rEntries); err != nil {
		return nil, err
	}

	// one pool serves both assemblers, each leases it in turn
	pool, err := assembly.NewMemoryPool(kr, "ws", assembly.MatrixWorkspaceBytes(kr, ml.Capacity()), rm.Rank)
	if err != nil {
		return nil, err
	}
	defer pool.Free()
	ma, err := assembly.NewMatrixAssembler(kr, pool, "mass", rm, ml.RowStart, m.NumGlobalRows(), acfg)
	if err != nil {
		return nil, err
	}
	defer ma.Free()
	if err = ma.Assemble(mEntries.Cols, mEntries.Vals); err != nil {
		return nil, err
	}
	sys := &rankSystem{timings: ma.Timings()}
	if sys.owned, err = ma.CopyOwnedCSRMatrixToHost(); err != nil {
		return nil, err
	}
	if sys.shared, err = ma.CopySharedCSRMatrixToHost(); err != nil {
		return nil, err
	}

	ra, err := assembly.NewRhsAssembler(kr, pool, "source", rm, rl.RowStart, acfg)
	if err != nil {
		return nil, err
	}
	defer ra.Free()
	if err = ra.Assemble(rEntries.Vals); err != nil {
		return nil, err
	}
	sys.rhs = ra.HostRhs()
	free, total := ma.DeviceMemoryInGBs()
	logrus.WithFields(logrus.Fields{
		"rank":       rm.Rank,
		"nnz":        ma.NumNonzeros(),
		"poolGBs":    pool.MemoryInGBs(),
		"deviceFree": free,
		"deviceGBs":  total,
	}).Debug("assembled rank")
	return sys, nil
}

// runAssemble assembles every rank on one device in turn, then exports the
// shared rows of the matrix and rhs concurrently
func runAssemble(run *config.Run) (*assembleResult, error) {
	cfg, err := run.DeviceConfig()
	if err != nil {
		return nil, err
	}
	meshes, maps, plans, err := buildRanks(run)
	if err != nil {
		return nil, err
	}
	device, err := utils.CreateDevice(run.Device)
	if err != nil {
		return nil, err
	}
	defer device.Free()

	acfg := assembly.Config{DisableTiming: !run.Timing}
	systems := make([]*rankSystem, len(meshes))
	for r, m := range meshes {
		kr := runner.NewRunner(device, cfg)
		systems[r], err = assembleRank(kr, m, maps[r], acfg)
		kr.Free()
		if err != nil {
			return nil, err
		}
	}

	merged := make([]*assembly.CSR, len(meshes))
	rhs := make([]*mat.Dense, len(meshes))
	for r, rm := range maps {
		if rm.NumOwned() > 0 {
			rhs[r] = mat.NewDense(rm.NumOwned(), 1, nil)
		}
	}
	mb := exchange.NewMailbox(len(meshes))
	err = exchange.RunRanks(context.Background(), len(meshes), func(ctx context.Context, rank int) error {
		ex := exchange.NewExporter(plans[rank], mb)
		var err error
		if merged[rank], err = ex.ExportMatrix(ctx, systems[rank].owned, systems[rank].shared); err != nil {
			return err
		}
		return ex.ExportVector(ctx, systems[rank].rhs, rhs[rank])
	})
	if err != nil {
		return nil, err
	}

	res := &assembleResult{}
	for r, c := range merged {
		res.Ranks = append(res.Ranks, rankResult{
			Rank:       r,
			OwnedRows:  maps[r].NumOwned(),
			SharedRows: maps[r].NumShared(),
			Nonzeros:   c.Nnz(),
			Timings:    systems[r].timings,
		})
		for _, v := range c.Values {
			res.TotalMass += v
		}
		if rhs[r] != nil {
			res.TotalSource += mat.Sum(rhs[r])
		}
	}
	return res, nil
}
