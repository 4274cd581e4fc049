package rowmap

import (
	"testing"

	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/mesh"
	"github.com/notargets/hexfem/partitions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildAll(t *testing.T, spec mesh.BoxSpec) ([]*mesh.BoxMesh, []*RowMap) {
	meshes, err := mesh.BuildBox(spec)
	require.NoError(t, err)
	maps := make([]*RowMap, len(meshes))
	for r, m := range meshes {
		maps[r], err = Build(m, mesh.PartBlock, 1)
		require.NoError(t, err)
	}
	return meshes, maps
}

func TestBuild_Completeness(t *testing.T) {
	for _, strategy := range []partitions.PartitionStrategy{
		partitions.BlockPartition, partitions.RoundRobin, partitions.GraphPartition} {
		meshes, maps := buildAll(t, mesh.BoxSpec{NX: 4, NY: 3, NZ: 2, Scale: 1, Order: 2,
			NumRanks: 3, Strategy: strategy})
		total, err := Validate(maps)
		require.NoError(t, err, strategy.String())
		assert.Equal(t, meshes[0].NumGlobalRows(), total)

		for r, rm := range maps {
			begin, end := meshes[r].OwnedRowRange(r)
			if rm.NumOwned() > 0 {
				assert.Equal(t, begin, rm.OwnedBegin)
				assert.Equal(t, end, rm.OwnedEnd)
			}
			// owned prefix, shared suffix, each sorted by gid
			for lid := 1; lid < rm.NumRows(); lid++ {
				if lid != rm.NumOwned() {
					assert.Less(t, rm.Global[lid-1], rm.Global[lid])
				}
			}
			for lid := 0; lid < rm.NumOwned(); lid++ {
				assert.Equal(t, rm.OwnedBegin+int64(lid), rm.Global[lid])
			}
		}
	}
}

func TestBuild_Translation(t *testing.T) {
	meshes, maps := buildAll(t, mesh.BoxSpec{NX: 2, NY: 1, NZ: 1, Scale: 1, Order: 1, NumRanks: 2})
	m, rm := meshes[1], maps[1]
	assert.Equal(t, 4, rm.NumOwned())
	assert.Equal(t, 4, rm.NumShared())

	for idx := 0; idx < m.NumLocal(mesh.NodeRank); idx++ {
		mi := mesh.MeshIndex(idx)
		row, ok := rm.Row(mi)
		require.True(t, ok)
		gid, _ := m.GlobalIDs().GlobalID(mi)
		assert.Equal(t, gid, row.Global)
		assert.Equal(t, m.Owner(mi) == 1, row.Owned)
		assert.Equal(t, int32(row.Local), rm.LocalRows()[idx])
		lid, ok := rm.LocalOf(gid)
		assert.True(t, ok)
		assert.Equal(t, row.Local, lid)
		assert.Equal(t, 1, row.BlockSize)
	}
	_, ok := rm.Row(mesh.InvalidIndex)
	assert.False(t, ok)
	assert.Contains(t, rm.String(), "4 shared")
}

func TestBuild_PartSubset(t *testing.T) {
	meshes, err := mesh.BuildBox(mesh.BoxSpec{NX: 2, NY: 2, NZ: 2, Order: 1, NumRanks: 1})
	require.NoError(t, err)
	rm, err := Build(meshes[0], "zmin", 3)
	require.NoError(t, err)
	assert.Equal(t, 9, rm.NumRows())
	// interior node of the box is not a row
	center := meshes[0].Index(mesh.Entity{Rank: mesh.NodeRank, ID: 14})
	_, ok := rm.Row(center)
	assert.False(t, ok)
}

func TestBuild_Errors(t *testing.T) {
	meshes, err := mesh.BuildBox(mesh.BoxSpec{NX: 2, NY: 1, NZ: 1, Order: 1, NumRanks: 1})
	require.NoError(t, err)
	m := meshes[0]

	_, err = Build(m, "nowhere", 1)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = Build(m, mesh.PartBlock, 0)
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	m.ClearGlobalID(3)
	_, err = Build(m, mesh.PartBlock, 1)
	assert.ErrorIs(t, err, errs.ErrConnectivityInconsistency)

	// punch a hole in the owned range
	m.SetGlobalID(3, 100)
	_, err = Build(m, mesh.PartBlock, 1)
	assert.ErrorIs(t, err, errs.ErrConnectivityInconsistency)
}

func TestValidate_Overlap(t *testing.T) {
	a := &RowMap{Rank: 0, OwnedBegin: 0, OwnedEnd: 4, Global: []int64{0, 1, 2, 3}, Owner: []int{0, 0, 0, 0}, numOwned: 4}
	b := &RowMap{Rank: 1, OwnedBegin: 3, OwnedEnd: 5, Global: []int64{3, 4}, Owner: []int{1, 1}, numOwned: 2}
	_, err := Validate([]*RowMap{a, b})
	assert.ErrorIs(t, err, errs.ErrConnectivityInconsistency)

	c := &RowMap{Rank: 1, OwnedBegin: 4, OwnedEnd: 5, Global: []int64{4, 9}, Owner: []int{1, 0}, numOwned: 1}
	_, err = Validate([]*RowMap{a, c})
	assert.ErrorIs(t, err, errs.ErrConnectivityInconsistency)
}
