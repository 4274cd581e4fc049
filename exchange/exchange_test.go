package exchange

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/notargets/hexfem/assembly"
	"github.com/notargets/hexfem/connectivity"
	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/gather"
	"github.com/notargets/hexfem/geom"
	"github.com/notargets/hexfem/mesh"
	"github.com/notargets/hexfem/operators"
	"github.com/notargets/hexfem/partitions"
	"github.com/notargets/hexfem/rowmap"
	"github.com/notargets/hexfem/runner"
	"github.com/notargets/hexfem/runner/builder"
	"github.com/notargets/hexfem/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func box(t *testing.T, nx, numRanks int, strategy partitions.PartitionStrategy) ([]*mesh.BoxMesh, []*rowmap.RowMap) {
	meshes, err := mesh.BuildBox(mesh.BoxSpec{NX: nx, NY: nx, NZ: nx, Scale: 1, Order: 1,
		NumRanks: numRanks, Strategy: strategy})
	require.NoError(t, err)
	maps := make([]*rowmap.RowMap, numRanks)
	for r, m := range meshes {
		maps[r], err = rowmap.Build(m, mesh.PartBlock, 3)
		require.NoError(t, err)
	}
	return meshes, maps
}

// nodeOf maps a rank-local row's global id back to the mesh node id, which
// does not depend on the rank count
func nodeOf(meshes []*mesh.BoxMesh) map[int64]int64 {
	out := make(map[int64]int64)
	for _, m := range meshes {
		for idx := 0; idx < m.NumLocal(mesh.NodeRank); idx++ {
			gid, _ := m.GlobalIDs().GlobalID(mesh.MeshIndex(idx))
			out[gid] = m.EntityAt(mesh.NodeRank, mesh.MeshIndex(idx)).ID
		}
	}
	return out
}

func closure(t *testing.T, m *mesh.BoxMesh, rm *rowmap.RowMap, q float64) *mat.Dense {
	qf := m.AddField("q", 1)
	qf.Fill(q)
	ft, err := connectivity.BuildFaceTable(m, mesh.PartBoundary)
	require.NoError(t, err)
	qv, err := gather.FaceScalar(ft, qf)
	require.NoError(t, err)
	coords, err := gather.FaceVector(ft, m.Coordinates())
	require.NoError(t, err)
	ea, _ := geom.NewExposedAreas(m.Order())
	areas, err := ea.Invoke(coords)
	require.NoError(t, err)
	offsets, err := operators.BuildFaceOffsets(ft, rm)
	require.NoError(t, err)
	gc, _ := operators.NewGradientBoundaryClosure(m.Order())
	var rhs *mat.Dense
	if rm.NumRows() > 0 {
		rhs = mat.NewDense(rm.NumRows(), 3, nil)
	}
	require.NoError(t, gc.Invoke(offsets, qv, areas, rhs))
	return rhs
}

func TestBuildPlans(t *testing.T) {
	_, maps := box(t, 4, 3, partitions.BlockPartition)
	plans, err := BuildPlans(maps)
	require.NoError(t, err)
	require.Len(t, plans, 3)

	// rank 0 owns every node it touches, so it only receives
	assert.Zero(t, plans[0].Buffer.SendBufferSize)
	assert.Greater(t, plans[0].Buffer.RecvBufferSize, 0)
	for r, p := range plans {
		assert.Equal(t, maps[r].NumShared(), p.Buffer.SendBufferSize)
		local, buffer := p.Buffer.GetScatterIndices()
		assert.Len(t, local, p.Buffer.SendBufferSize)
		for i, lid := range local {
			assert.Equal(t, i, buffer[i])
			assert.GreaterOrEqual(t, lid, maps[r].NumOwned())
		}
		for _, m := range p.Buffer.GatherMappings {
			for _, lid := range m.LocalIndices {
				assert.Less(t, lid, maps[r].NumOwned())
			}
		}
		assert.Equal(t, r > 0, p.Buffer.RequiresRemoteCommunication() && p.Buffer.SendBufferSize > 0)
	}

	_, err = BuildPlans([]*rowmap.RowMap{maps[1], maps[0]})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestExportVector_GradientClosure(t *testing.T) {
	const q = -2.3
	single, singleMaps := box(t, 4, 1, partitions.BlockPartition)
	ref := closure(t, single[0], singleMaps[0], q)
	refNode := nodeOf(single)
	byNode := make(map[int64]int)
	for lid, gid := range singleMaps[0].Global {
		byNode[refNode[gid]] = lid
	}

	for _, strategy := range []partitions.PartitionStrategy{partitions.BlockPartition, partitions.RoundRobin} {
		t.Run(strategy.String(), func(t *testing.T) {
			meshes, maps := box(t, 4, 2, strategy)
			plans, err := BuildPlans(maps)
			require.NoError(t, err)
			node := nodeOf(meshes)
			mb := NewMailbox(2)

			srcs := make([]*mat.Dense, 2)
			dsts := make([]*mat.Dense, 2)
			for r := range meshes {
				srcs[r] = closure(t, meshes[r], maps[r], q)
				dsts[r] = mat.NewDense(maps[r].NumOwned(), 3, nil)
			}
			err = RunRanks(context.Background(), 2, func(ctx context.Context, rank int) error {
				return NewExporter(plans[rank], mb).ExportVector(ctx, srcs[rank], dsts[rank])
			})
			require.NoError(t, err)

			maxAbs := 0.
			for rank, rm := range maps {
				for r := 0; r < rm.NumOwned(); r++ {
					want := ref.RawRowView(byNode[node[rm.Global[r]]])
					for d := 0; d < 3; d++ {
						got := dsts[rank].At(r, d)
						assert.InDelta(t, want[d], got, 1e-14)
						maxAbs = math.Max(maxAbs, math.Abs(got))
					}
				}
			}
			assert.InDelta(t, 2.3/16, maxAbs, 1e-14)
		})
	}
}

func TestExportVector_ReusesBuffers(t *testing.T) {
	_, maps := box(t, 2, 2, partitions.BlockPartition)
	plans, err := BuildPlans(maps)
	require.NoError(t, err)
	mb := NewMailbox(2)
	srcs := make([]*mat.Dense, 2)
	dsts := make([]*mat.Dense, 2)
	held := 0.
	for r, rm := range maps {
		srcs[r] = mat.NewDense(rm.NumRows(), 2, nil)
		for i := 0; i < rm.NumRows(); i++ {
			srcs[r].SetRow(i, []float64{1, float64(rm.Global[i])})
		}
		dsts[r] = mat.NewDense(rm.NumOwned(), 2, nil)
		held += float64(rm.NumRows())
	}
	export := func() {
		err := RunRanks(context.Background(), 2, func(ctx context.Context, rank int) error {
			return NewExporter(plans[rank], mb).ExportVector(ctx, srcs[rank], dsts[rank])
		})
		require.NoError(t, err)
	}

	export()
	first := []*mat.Dense{mat.DenseCopyOf(dsts[0]), mat.DenseCopyOf(dsts[1])}
	total := 0.
	for r, rm := range maps {
		pb := plans[r].Buffer
		assert.Len(t, pb.SendBuffer, 2*pb.SendBufferSize)
		assert.Len(t, pb.RecvBuffer, 2*pb.RecvBufferSize)
		for i := 0; i < rm.NumOwned(); i++ {
			// column 1 is the gid times the number of ranks holding the row
			assert.Equal(t, dsts[r].At(i, 0)*float64(rm.Global[i]), dsts[r].At(i, 1))
			total += dsts[r].At(i, 0)
		}
	}
	assert.Equal(t, held, total)
	// received rows stay in the receive buffer
	for _, m := range plans[0].Buffer.GatherMappings {
		for i, lid := range m.LocalIndices {
			assert.Equal(t, float64(maps[0].Global[lid]), plans[0].Buffer.RecvRows(m, 2)[2*i+1])
		}
	}

	export()
	for r := range dsts {
		assert.Equal(t, first[r].RawMatrix().Data, dsts[r].RawMatrix().Data)
	}
}

func TestExportVector_Shapes(t *testing.T) {
	_, maps := box(t, 2, 2, partitions.BlockPartition)
	plans, err := BuildPlans(maps)
	require.NoError(t, err)
	ex := NewExporter(plans[1], NewMailbox(2))
	rm := maps[1]
	err = ex.ExportVector(context.Background(), mat.NewDense(rm.NumRows()+1, 3, nil), nil)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	err = ex.ExportVector(context.Background(), mat.NewDense(rm.NumRows(), 3, nil), mat.NewDense(rm.NumOwned(), 2, nil))
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestRunRanks_CancelsOnError(t *testing.T) {
	mb := NewMailbox(2)
	boom := errors.New("boom")
	err := RunRanks(context.Background(), 2, func(ctx context.Context, rank int) error {
		if rank == 0 {
			return boom
		}
		// never sent, unblocked by cancellation
		_, err := mb.Recv(ctx, 0, 1)
		return err
	})
	assert.ErrorIs(t, err, boom)
}

func assembleRank(t *testing.T, kr *runner.Runner, m *mesh.BoxMesh, rm *rowmap.RowMap) (owned, shared *assembly.CSR) {
	et, err := connectivity.BuildElemTable(m, mesh.PartBlock)
	require.NoError(t, err)
	coords, err := gather.ElemVector(et, m.Coordinates())
	require.NoError(t, err)
	vm, _ := geom.NewVolumeMetric(m.Order())
	vol, err := vm.Invoke(coords)
	require.NoError(t, err)
	mm, _ := operators.NewMassMatrix(m.Order())
	mats, err := mm.Invoke(vol)
	require.NoError(t, err)
	layout, err := operators.NewMatrixLayout(et, rm)
	require.NoError(t, err)
	entries := operators.NewEntries(layout.Capacity())
	require.NoError(t, layout.MatrixEntries(mats, entries))

	pool, err := assembly.NewMemoryPool(kr, "ws", assembly.MatrixWorkspaceBytes(kr, layout.Capacity()), rm.Rank)
	require.NoError(t, err)
	defer pool.Free()
	a, err := assembly.NewMatrixAssembler(kr, pool, "mass", rm, layout.RowStart, m.NumGlobalRows(), assembly.Config{})
	require.NoError(t, err)
	defer a.Free()
	require.NoError(t, a.Assemble(entries.Cols, entries.Vals))
	owned, err = a.CopyOwnedCSRMatrixToHost()
	require.NoError(t, err)
	shared, err = a.CopySharedCSRMatrixToHost()
	require.NoError(t, err)
	return owned, shared
}

func TestExportMatrix_MatchesSingleRank(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()

	single, singleMaps := box(t, 3, 1, partitions.BlockPartition)
	kr := runner.NewRunner(device, builder.Config{})
	refCSR, _ := assembleRank(t, kr, single[0], singleMaps[0])
	kr.Free()
	refNode := nodeOf(single)
	ref := make(map[[2]int64]float64)
	for r := 0; r < refCSR.NumRows; r++ {
		cols, vals := refCSR.Row(r)
		for k := range cols {
			ref[[2]int64{refNode[refCSR.RowIndices[r]], refNode[cols[k]]}] = vals[k]
		}
	}

	meshes, maps := box(t, 3, 2, partitions.BlockPartition)
	plans, err := BuildPlans(maps)
	require.NoError(t, err)
	node := nodeOf(meshes)
	mb := NewMailbox(2)

	// device work stays on this goroutine, only the exchange runs per rank
	owned := make([]*assembly.CSR, 2)
	shared := make([]*assembly.CSR, 2)
	for r := range meshes {
		kr := runner.NewRunner(device, builder.Config{})
		owned[r], shared[r] = assembleRank(t, kr, meshes[r], maps[r])
		kr.Free()
	}
	merged := make([]*assembly.CSR, 2)
	err = RunRanks(context.Background(), 2, func(ctx context.Context, rank int) error {
		var err error
		merged[rank], err = NewExporter(plans[rank], mb).ExportMatrix(ctx, owned[rank], shared[rank])
		return err
	})
	require.NoError(t, err)

	seen := 0
	for _, c := range merged {
		for r := 0; r < c.NumRows; r++ {
			cols, vals := c.Row(r)
			for k := range cols {
				if k > 0 {
					assert.Less(t, cols[k-1], cols[k])
				}
				want, ok := ref[[2]int64{node[c.RowIndices[r]], node[cols[k]]}]
				assert.True(t, ok)
				assert.InDelta(t, want, vals[k], 1e-14)
				seen++
			}
		}
	}
	assert.Equal(t, len(ref), seen)

	_, err = NewExporter(plans[0], mb).ExportMatrix(context.Background(), shared[1], owned[0])
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}
