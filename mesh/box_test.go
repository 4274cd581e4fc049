package mesh

import (
	"testing"

	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/partitions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBox_SingleRank(t *testing.T) {
	meshes, err := BuildBox(BoxSpec{NX: 2, NY: 2, NZ: 2, Scale: 1, Order: 1, NumRanks: 1})
	require.NoError(t, err)
	require.Len(t, meshes, 1)
	m := meshes[0]

	assert.Equal(t, 8, m.NumLocal(ElementRank))
	assert.Equal(t, 27, m.NumLocal(NodeRank))
	// 4 faces on each of 6 sides
	assert.Equal(t, 24, m.NumLocal(FaceRank))
	assert.Equal(t, int64(27), m.NumGlobalRows())
	assert.Equal(t, "Hex1", m.Element().ShortName())
	assert.Equal(t, 8, m.Element().Np())

	xmin, err := m.Select(FaceRank, "xmin")
	require.NoError(t, err)
	assert.Len(t, xmin, 4)
	bnodes, err := m.Select(NodeRank, PartBoundary)
	require.NoError(t, err)
	assert.Len(t, bnodes, 26)

	_, err = m.Select(NodeRank, "no_such_part")
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestBuildBox_ElementNodeOrder(t *testing.T) {
	meshes, err := BuildBox(BoxSpec{NX: 1, NY: 1, NZ: 1, Scale: 2, Order: 2, NumRanks: 1})
	require.NoError(t, err)
	m := meshes[0]
	elems, _ := m.Select(ElementRank, PartBlock)
	nodes, err := m.ElementNodes(elems[0])
	require.NoError(t, err)
	require.Len(t, nodes, 27)
	c := m.Coordinates()
	// i runs along x, j along y, k along z
	assert.Equal(t, 0., c.Get(nodes[0], 0))
	assert.Equal(t, 1., c.Get(nodes[1], 0))
	assert.Equal(t, 2., c.Get(nodes[2], 0))
	assert.Equal(t, 1., c.Get(nodes[3], 1))
	assert.Equal(t, 1., c.Get(nodes[9], 2))
}

func TestBuildBox_FaceOrientation(t *testing.T) {
	meshes, err := BuildBox(BoxSpec{NX: 1, NY: 1, NZ: 1, Scale: 1, Order: 1, NumRanks: 1})
	require.NoError(t, err)
	m := meshes[0]
	c := m.Coordinates()
	outward := map[string][3]float64{
		"zmin": {0, 0, -1}, "zmax": {0, 0, 1}, "xmin": {-1, 0, 0},
		"xmax": {1, 0, 0}, "ymin": {0, -1, 0}, "ymax": {0, 1, 0},
	}
	for name, want := range outward {
		faces, err := m.Select(FaceRank, name)
		require.NoError(t, err)
		require.Len(t, faces, 1)
		fn, err := m.FaceNodes(faces[0])
		require.NoError(t, err)
		var o, a, b [3]float64
		for d := 0; d < 3; d++ {
			o[d] = c.Get(fn[0], d)
			a[d] = c.Get(fn[1], d) - o[d]
			b[d] = c.Get(fn[2], d) - o[d]
		}
		n := [3]float64{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
		assert.Equal(t, want, n, name)
	}
}

func TestBuildBox_Ownership(t *testing.T) {
	meshes, err := BuildBox(BoxSpec{NX: 4, NY: 1, NZ: 1, Scale: 1, Order: 1, NumRanks: 2,
		Strategy: partitions.BlockPartition})
	require.NoError(t, err)
	require.Len(t, meshes, 2)

	var total int64
	for r, m := range meshes {
		begin, end := m.OwnedRowRange(r)
		owned := 0
		for idx := 0; idx < m.NumLocal(NodeRank); idx++ {
			mi := MeshIndex(idx)
			gid, ok := m.GlobalIDs().GlobalID(mi)
			require.True(t, ok)
			if m.Owner(mi) == r {
				owned++
				assert.True(t, gid >= begin && gid < end)
			} else {
				assert.Less(t, m.Owner(mi), r)
			}
		}
		assert.Equal(t, int(end-begin), owned)
		total += end - begin
	}
	// 5 x 2 x 2 node grid
	assert.Equal(t, int64(20), total)
	// rank 1 shares the x=0.5 plane with rank 0
	assert.Equal(t, 12, meshes[1].NumLocal(NodeRank))
}

func TestBuildBox_Errors(t *testing.T) {
	_, err := BuildBox(BoxSpec{NX: 1, NY: 1, NZ: 1, Order: 9})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = BuildBox(BoxSpec{NX: 0, NY: 1, NZ: 1, Order: 1})
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	meshes, err := BuildBox(BoxSpec{NX: 1, NY: 1, NZ: 1, Order: 1})
	require.NoError(t, err)
	m := meshes[0]
	_, err = m.ElementNodes(Entity{Rank: ElementRank, ID: 99})
	assert.ErrorIs(t, err, errs.ErrConnectivityInconsistency)
	_, err = m.Field("pressure")
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	f := m.AddField("pressure", 1)
	f.Fill(3)
	got, err := m.Field("pressure")
	require.NoError(t, err)
	assert.Equal(t, 3., got.Get(0, 0))

	m.ClearGlobalID(0)
	_, ok := m.GlobalIDs().GlobalID(0)
	assert.False(t, ok)
	m.SetGlobalID(0, 42)
	gid, ok := m.GlobalIDs().GlobalID(0)
	assert.True(t, ok)
	assert.Equal(t, int64(42), gid)
}
