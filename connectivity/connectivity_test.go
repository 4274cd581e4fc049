package connectivity

import (
	"testing"

	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/mesh"
	"github.com/notargets/hexfem/partitions"
	"github.com/notargets/hexfem/simd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(t *testing.T, nx, ranks, order int) []*mesh.BoxMesh {
	meshes, err := mesh.BuildBox(mesh.BoxSpec{NX: nx, NY: 1, NZ: 1, Scale: 1, Order: order,
		NumRanks: ranks, Strategy: partitions.BlockPartition})
	require.NoError(t, err)
	return meshes
}

func TestElemTable_Padding(t *testing.T) {
	// 5 elements fill one batch and one lane of the second
	m := box(t, 5, 1, 1)[0]
	tab, err := BuildElemTable(m, mesh.PartBlock)
	require.NoError(t, err)
	assert.Equal(t, 2, tab.Batches())
	assert.Equal(t, 4, tab.ActiveLanes(0))
	assert.Equal(t, 1, tab.ActiveLanes(1))

	for k := 0; k < 2; k++ {
		for j := 0; j < 2; j++ {
			for i := 0; i < 2; i++ {
				lane0 := tab.At(1, k, j, i, 0)
				for lane := 1; lane < simd.SimdLen; lane++ {
					assert.Equal(t, lane0, tab.At(1, k, j, i, lane))
				}
			}
		}
	}

	e, ok := tab.Entity(1, 0)
	assert.True(t, ok)
	assert.Equal(t, int64(5), e.ID)
	_, ok = tab.Entity(1, 1)
	assert.False(t, ok)

	// lanes of the first batch are distinct elements
	nodes, err := m.ElementNodes(tab.Entities[2])
	require.NoError(t, err)
	assert.Equal(t, nodes[7], tab.At(0, 1, 1, 1, 2))
}

func TestElemTable_ExactBatch(t *testing.T) {
	m := box(t, 4, 1, 2)[0]
	tab, err := BuildElemTable(m, mesh.PartBlock)
	require.NoError(t, err)
	assert.Equal(t, 1, tab.Batches())
	assert.Equal(t, 3, tab.N)
	assert.Len(t, tab.Nodes, 27*simd.SimdLen)
}

func TestFaceTable(t *testing.T) {
	m := box(t, 3, 1, 1)[0]
	tab, err := BuildFaceTable(m, "ymin")
	require.NoError(t, err)
	assert.Equal(t, 3, tab.NumEntities)
	assert.Equal(t, 1, tab.Batches())
	// lane 3 pads with lane 0
	assert.Equal(t, tab.At(0, 1, 0, 0), tab.At(0, 1, 0, 3))

	faces, _ := m.Select(mesh.FaceRank, "ymin")
	fn, err := m.FaceNodes(faces[1])
	require.NoError(t, err)
	assert.Equal(t, fn[3], tab.At(0, 1, 1, 1))
}

func TestNodeTable(t *testing.T) {
	m := box(t, 1, 1, 1)[0]
	tab, err := BuildNodeTable(m, "zmax")
	require.NoError(t, err)
	assert.Equal(t, 4, tab.NumEntities)
	assert.Equal(t, 1, tab.Batches())
	for lane := 0; lane < 4; lane++ {
		assert.Equal(t, m.Index(tab.Entities[lane]), tab.At(0, lane))
	}
}

func TestTables_EmptyPartition(t *testing.T) {
	// four ranks, two elements: ranks 2 and 3 hold nothing
	meshes := box(t, 2, 4, 1)
	m := meshes[3]
	et, err := BuildElemTable(m, mesh.PartBlock)
	require.NoError(t, err)
	assert.Equal(t, 0, et.Batches())
	assert.Empty(t, et.Nodes)

	ft, err := BuildFaceTable(m, mesh.PartBoundary)
	require.NoError(t, err)
	assert.Equal(t, 0, ft.Batches())

	nt, err := BuildNodeTable(m, mesh.PartBlock)
	require.NoError(t, err)
	assert.Equal(t, 0, nt.Batches())
}

func TestTables_UnknownPart(t *testing.T) {
	m := box(t, 1, 1, 1)[0]
	_, err := BuildElemTable(m, "block_7")
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = BuildFaceTable(m, "block_7")
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = BuildNodeTable(m, "block_7")
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

// orderMesh reports a polynomial order that its element stencils do not have
type orderMesh struct {
	*mesh.BoxMesh
	order int
}

func (m orderMesh) Order() int { return m.order }

func TestTables_OrderMismatch(t *testing.T) {
	m := orderMesh{BoxMesh: box(t, 2, 1, 1)[0], order: 2}
	_, err := BuildElemTable(m, mesh.PartBlock)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = BuildFaceTable(m, mesh.PartBoundary)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}
