package rowmap

import (
	"fmt"
	"sort"

	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/mesh"
)

// RowDescriptor places one mesh entity in the distributed system.
type RowDescriptor struct {
	Global    int64
	Local     int
	Owned     bool
	BlockSize int
}

// Translator resolves mesh entities to rows.
type Translator interface {
	Row(idx mesh.MeshIndex) (RowDescriptor, bool)
	NumRows() int
	NumOwned() int
}

// RowMap partitions one rank's rows into an owned prefix, whose global ids
// form the contiguous range [OwnedBegin, OwnedEnd), and a shared suffix of
// rows owned elsewhere. Both parts are ordered by global id.
type RowMap struct {
	Rank       int
	BlockSize  int
	OwnedBegin int64
	OwnedEnd   int64

	// Global id and, for shared rows, owning rank of every local row
	Global []int64
	Owner  []int

	numOwned int
	localOf  map[int64]int
	byIndex  []int32
}

// Build classifies the nodes of part on m.
func Build(m mesh.Mesh, part string, blockSize int) (*RowMap, error) {
	if blockSize < 1 {
		return nil, errs.Configurationf("block size %d must be positive", blockSize)
	}
	nodes, err := m.Select(mesh.NodeRank, part)
	if err != nil {
		return nil, err
	}
	type row struct {
		gid   int64
		idx   mesh.MeshIndex
		owner int
	}
	var owned, shared []row
	gids := m.GlobalIDs()
	for _, e := range nodes {
		idx := m.Index(e)
		gid, ok := gids.GlobalID(idx)
		if !ok {
			return nil, errs.Inconsistencyf("node %d on rank %d has no global id",
				e.ID, m.ParallelRank())
		}
		r := row{gid: gid, idx: idx, owner: m.Owner(idx)}
		if r.owner == m.ParallelRank() {
			owned = append(owned, r)
		} else {
			shared = append(shared, r)
		}
	}
	byGid := func(rows []row) {
		sort.Slice(rows, func(a, b int) bool { return rows[a].gid < rows[b].gid })
	}
	byGid(owned)
	byGid(shared)

	rm := &RowMap{
		Rank:      m.ParallelRank(),
		BlockSize: blockSize,
		Global:    make([]int64, 0, len(owned)+len(shared)),
		Owner:     make([]int, 0, len(owned)+len(shared)),
		numOwned:  len(owned),
		localOf:   make(map[int64]int, len(owned)+len(shared)),
		byIndex:   make([]int32, m.NumLocal(mesh.NodeRank)),
	}
	for i := range rm.byIndex {
		rm.byIndex[i] = -1
	}
	if len(owned) > 0 {
		rm.OwnedBegin = owned[0].gid
		rm.OwnedEnd = owned[len(owned)-1].gid + 1
		if rm.OwnedEnd-rm.OwnedBegin != int64(len(owned)) {
			return nil, errs.Inconsistencyf("rank %d owns %d rows spread over global range [%d, %d)",
				rm.Rank, len(owned), rm.OwnedBegin, rm.OwnedEnd)
		}
	}
	for _, rows := range [][]row{owned, shared} {
		for _, r := range rows {
			if _, dup := rm.localOf[r.gid]; dup {
				return nil, errs.Inconsistencyf("global id %d appears twice on rank %d", r.gid, rm.Rank)
			}
			lid := len(rm.Global)
			rm.Global = append(rm.Global, r.gid)
			rm.Owner = append(rm.Owner, r.owner)
			rm.localOf[r.gid] = lid
			rm.byIndex[r.idx] = int32(lid)
		}
	}
	for _, r := range shared {
		if r.gid >= rm.OwnedBegin && r.gid < rm.OwnedEnd {
			return nil, errs.Inconsistencyf("shared global id %d lies in rank %d's owned range",
				r.gid, rm.Rank)
		}
	}
	return rm, nil
}

func (rm *RowMap) NumRows() int   { return len(rm.Global) }
func (rm *RowMap) NumOwned() int  { return rm.numOwned }
func (rm *RowMap) NumShared() int { return len(rm.Global) - rm.numOwned }

// Row translates a local node index. Nodes outside the map report false.
func (rm *RowMap) Row(idx mesh.MeshIndex) (RowDescriptor, bool) {
	if !idx.Valid() || int(idx) >= len(rm.byIndex) || rm.byIndex[idx] < 0 {
		return RowDescriptor{}, false
	}
	lid := int(rm.byIndex[idx])
	return RowDescriptor{
		Global:    rm.Global[lid],
		Local:     lid,
		Owned:     lid < rm.numOwned,
		BlockSize: rm.BlockSize,
	}, true
}

// LocalRows is the entity-to-row view indexed by mesh index, -1 when the
// node is not a row. The slice is shared, do not modify it.
func (rm *RowMap) LocalRows() []int32 { return rm.byIndex }

// LocalOf finds the local row of a global id
func (rm *RowMap) LocalOf(gid int64) (int, bool) {
	lid, ok := rm.localOf[gid]
	return lid, ok
}

// IsOwnedGlobal reports whether gid falls in this rank's owned range
func (rm *RowMap) IsOwnedGlobal(gid int64) bool {
	return gid >= rm.OwnedBegin && gid < rm.OwnedEnd
}

// Validate checks that the owned ranges of all ranks are disjoint, cover
// [0, total), and that every shared row names the rank whose range holds it.
func Validate(maps []*RowMap) (total int64, err error) {
	type span struct {
		begin, end int64
		rank       int
	}
	spans := make([]span, 0, len(maps))
	for r, rm := range maps {
		if rm.Rank != r {
			return 0, errs.Configurationf("row map %d reports rank %d", r, rm.Rank)
		}
		if rm.NumOwned() > 0 {
			spans = append(spans, span{rm.OwnedBegin, rm.OwnedEnd, r})
		}
	}
	sort.Slice(spans, func(a, b int) bool { return spans[a].begin < spans[b].begin })
	for _, s := range spans {
		if s.begin != total {
			return 0, errs.Inconsistencyf("owned ranges leave a gap or overlap at global row %d (rank %d starts at %d)",
				total, s.rank, s.begin)
		}
		total = s.end
	}
	for _, rm := range maps {
		for lid := rm.NumOwned(); lid < rm.NumRows(); lid++ {
			gid, owner := rm.Global[lid], rm.Owner[lid]
			if owner < 0 || owner >= len(maps) || !maps[owner].IsOwnedGlobal(gid) {
				return 0, errs.Inconsistencyf("rank %d shares row %d with rank %d, which does not own it",
					rm.Rank, gid, owner)
			}
		}
	}
	return total, nil
}

func (rm *RowMap) String() string {
	return fmt.Sprintf("rank %d: %d owned [%d, %d), %d shared", rm.Rank, rm.NumOwned(),
		rm.OwnedBegin, rm.OwnedEnd, rm.NumShared())
}
