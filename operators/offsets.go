package operators

import (
	"github.com/notargets/hexfem/connectivity"
	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/rowmap"
	"github.com/notargets/hexfem/simd"
)

// FaceOffsets resolves every (batch, j, i, lane) slot of a face table to a
// local row, -1 for padded lanes. The inverse, row to slots, is kept in CSR
// form with slots ascending so per-row reductions have a fixed order.
type FaceOffsets struct {
	N           int
	NumEntities int
	NumRows     int
	Rows        []int32

	SlotStart []int32
	Slots     []int32
}

func (fo *FaceOffsets) Batches() int { return simd.NumBatches(fo.NumEntities) }

func (fo *FaceOffsets) slot(b, j, i, lane int) int {
	return ((b*fo.N+j)*fo.N+i)*simd.SimdLen + lane
}

func (fo *FaceOffsets) At(b, j, i, lane int) int32 { return fo.Rows[fo.slot(b, j, i, lane)] }

// BuildFaceOffsets is computed once per connectivity snapshot.
func BuildFaceOffsets(t *connectivity.FaceTable, tr rowmap.Translator) (*FaceOffsets, error) {
	fo := &FaceOffsets{
		N:           t.N,
		NumEntities: t.NumEntities,
		NumRows:     tr.NumRows(),
		Rows:        make([]int32, len(t.Nodes)),
		SlotStart:   make([]int32, tr.NumRows()+1),
	}
	counts := make([]int32, tr.NumRows())
	for b := 0; b < t.Batches(); b++ {
		active := t.ActiveLanes(b)
		for j := 0; j < t.N; j++ {
			for i := 0; i < t.N; i++ {
				for lane := 0; lane < simd.SimdLen; lane++ {
					s := fo.slot(b, j, i, lane)
					if lane >= active {
						fo.Rows[s] = -1
						continue
					}
					row, ok := tr.Row(t.At(b, j, i, lane))
					if !ok {
						e, _ := t.Entity(b, lane)
						return nil, errs.Inconsistencyf("face %d node (%d,%d) has no row", e.ID, j, i)
					}
					fo.Rows[s] = int32(row.Local)
					counts[row.Local]++
				}
			}
		}
	}
	for r, c := range counts {
		fo.SlotStart[r+1] = fo.SlotStart[r] + c
	}
	fo.Slots = make([]int32, fo.SlotStart[len(counts)])
	fill := make([]int32, len(counts))
	copy(fill, fo.SlotStart[:len(counts)])
	for s, r := range fo.Rows {
		if r < 0 {
			continue
		}
		fo.Slots[fill[r]] = int32(s)
		fill[r]++
	}
	return fo, nil
}
