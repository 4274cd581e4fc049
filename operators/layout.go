package operators

import (
	"github.com/notargets/hexfem/connectivity"
	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/rowmap"
	"github.com/notargets/hexfem/simd"
)

// ContributionLayout fixes where every element contribution lands in the
// flat (column, value) buffers handed to the device assembler. Entries are
// grouped by local row: row r owns [RowStart[r], RowStart[r+1]). Each
// appearance of a node in an element writes Width consecutive entries, so
// the per-element scatter needs no atomics and the buffers can be sized
// before anything is computed.
type ContributionLayout struct {
	Np          int
	Width       int
	NumEntities int
	NumRows     int
	RowStart    []int64

	// per (b, a, lane): local row, global column id and write offset; -1
	// for padded lanes
	rows    []int32
	gids    []int64
	offsets []int64
}

// Capacity is the exact number of entries the layout writes.
func (cl *ContributionLayout) Capacity() int64 { return cl.RowStart[cl.NumRows] }

func (cl *ContributionLayout) Batches() int { return simd.NumBatches(cl.NumEntities) }

func (cl *ContributionLayout) idx(b, a, lane int) int { return (b*cl.Np+a)*simd.SimdLen + lane }

// Offset returns where entry (a, 0) of the element in lane of batch b is
// written, -1 for padded lanes.
func (cl *ContributionLayout) Offset(b, a, lane int) int64 { return cl.offsets[cl.idx(b, a, lane)] }

// NewMatrixLayout lays out Np x Np element matrices.
func NewMatrixLayout(t *connectivity.ElemTable, tr rowmap.Translator) (*ContributionLayout, error) {
	n := t.N
	return newLayout(t, tr, n*n*n)
}

// NewRhsLayout lays out Np element vectors.
func NewRhsLayout(t *connectivity.ElemTable, tr rowmap.Translator) (*ContributionLayout, error) {
	return newLayout(t, tr, 1)
}

func newLayout(t *connectivity.ElemTable, tr rowmap.Translator, width int) (*ContributionLayout, error) {
	np := t.N * t.N * t.N
	cl := &ContributionLayout{
		Np:          np,
		Width:       width,
		NumEntities: t.NumEntities,
		NumRows:     tr.NumRows(),
		RowStart:    make([]int64, tr.NumRows()+1),
	}
	size := t.Batches() * np * simd.SimdLen
	cl.rows = make([]int32, size)
	cl.gids = make([]int64, size)
	cl.offsets = make([]int64, size)

	counts := make([]int64, cl.NumRows)
	for b := 0; b < t.Batches(); b++ {
		active := t.ActiveLanes(b)
		for a := 0; a < np; a++ {
			k, j, i := a/(t.N*t.N), (a/t.N)%t.N, a%t.N
			for lane := 0; lane < simd.SimdLen; lane++ {
				x := cl.idx(b, a, lane)
				if lane >= active {
					cl.rows[x], cl.gids[x] = -1, -1
					continue
				}
				row, ok := tr.Row(t.At(b, k, j, i, lane))
				if !ok {
					e, _ := t.Entity(b, lane)
					return nil, errs.Inconsistencyf("element %d node %d has no row", e.ID, a)
				}
				cl.rows[x] = int32(row.Local)
				cl.gids[x] = row.Global
				counts[row.Local] += int64(width)
			}
		}
	}
	for r, c := range counts {
		cl.RowStart[r+1] = cl.RowStart[r] + c
	}
	// deterministic fill order: batch, lane, node
	next := make([]int64, cl.NumRows)
	copy(next, cl.RowStart[:cl.NumRows])
	for b := 0; b < t.Batches(); b++ {
		for lane := 0; lane < simd.SimdLen; lane++ {
			for a := 0; a < np; a++ {
				x := cl.idx(b, a, lane)
				if r := cl.rows[x]; r >= 0 {
					cl.offsets[x] = next[r]
					next[r] += int64(width)
				} else {
					cl.offsets[x] = -1
				}
			}
		}
	}
	return cl, nil
}

// Entries are the flat buffers consumed by the device assembler. Unused
// slots carry column -1 and are dropped during assembly.
type Entries struct {
	Cols []int64
	Vals []float64
}

// NewEntries allocates capacity entries, every slot unused
func NewEntries(capacity int64) *Entries {
	e := &Entries{Cols: make([]int64, capacity), Vals: make([]float64, capacity)}
	for i := range e.Cols {
		e.Cols[i] = -1
	}
	return e
}

// MatrixEntries scatters element matrices into dst. Column ids are global.
func (cl *ContributionLayout) MatrixEntries(mats *ElementMatrices, dst *Entries) error {
	if cl.Width != cl.Np || mats.Np != cl.Np {
		return errs.Configurationf("matrix scatter needs a matrix layout of width %d, have %d", mats.Np, cl.Width)
	}
	if err := cl.checkDst(dst, mats.Batches()); err != nil {
		return err
	}
	np := cl.Np
	forRange(cl.Batches(), func(low, high int) {
		for b := low; b < high; b++ {
			for a := 0; a < np; a++ {
				for lane := 0; lane < simd.SimdLen; lane++ {
					off := cl.Offset(b, a, lane)
					if off < 0 {
						continue
					}
					for c := 0; c < np; c++ {
						dst.Cols[off+int64(c)] = cl.gids[cl.idx(b, c, lane)]
						dst.Vals[off+int64(c)] = mats.At(b, a, c)[lane]
					}
				}
			}
		}
	})
	return nil
}

// RhsEntries scatters element vectors into dst. Columns carry the global row
// id so the same buffers can be checked against a host reference.
func (cl *ContributionLayout) RhsEntries(vecs *ElementVectors, dst *Entries) error {
	if cl.Width != 1 || vecs.Np != cl.Np {
		return errs.Configurationf("rhs scatter needs a vector layout, have width %d", cl.Width)
	}
	if err := cl.checkDst(dst, vecs.Batches()); err != nil {
		return err
	}
	forRange(cl.Batches(), func(low, high int) {
		for b := low; b < high; b++ {
			for a := 0; a < cl.Np; a++ {
				for lane := 0; lane < simd.SimdLen; lane++ {
					x := cl.idx(b, a, lane)
					if off := cl.offsets[x]; off >= 0 {
						dst.Cols[off] = cl.gids[x]
						dst.Vals[off] = vecs.At(b, a)[lane]
					}
				}
			}
		}
	})
	return nil
}

func (cl *ContributionLayout) checkDst(dst *Entries, batches int) error {
	if batches != cl.Batches() {
		return errs.Configurationf("%d batches of contributions for a layout of %d", batches, cl.Batches())
	}
	if int64(len(dst.Cols)) < cl.Capacity() || len(dst.Vals) != len(dst.Cols) {
		return errs.Overflowf("entry buffers hold %d, layout needs %d", len(dst.Cols), cl.Capacity())
	}
	return nil
}
