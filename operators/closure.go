package operators

import (
	"github.com/exascience/pargo/parallel"
	"github.com/notargets/hexfem/element"
	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/simd"
	"gonum.org/v1/gonum/mat"
)

func forRange(n int, body func(low, high int)) {
	if n == 0 {
		return
	}
	parallel.Range(0, n, 0, body)
}

// GradientBoundaryClosure applies the boundary term of a Green-Gauss
// gradient: every boundary face node subtracts q times its exposed area
// vector from its row of rhs.
type GradientBoundaryClosure struct {
	tab *element.Table
}

// NewGradientBoundaryClosure prepares the closure for order p faces
func NewGradientBoundaryClosure(order int) (*GradientBoundaryClosure, error) {
	tab, err := element.Coeffs(order)
	if err != nil {
		return nil, err
	}
	return &GradientBoundaryClosure{tab: tab}, nil
}

// Invoke accumulates into rhs, which must have one row per local row of the
// offsets (owned then shared) and 3 columns. Face fluxes are computed
// batch-parallel into per-slot storage and then reduced per row in slot
// order, so repeated calls produce bit-identical results.
func (gc *GradientBoundaryClosure) Invoke(offsets *FaceOffsets, q *simd.FaceScalar,
	areas *simd.FaceVector, rhs *mat.Dense) error {
	n := gc.tab.N()
	if offsets.N != n || q.N != n || areas.N != n || areas.Dim != 3 {
		return errs.Configurationf("closure of order %d given views of extent %d/%d/%d",
			gc.tab.Order, offsets.N, q.N, areas.N)
	}
	nb := offsets.Batches()
	if q.Batches() != nb || areas.Batches() != nb {
		return errs.Configurationf("closure views hold %d and %d batches, offsets %d",
			q.Batches(), areas.Batches(), nb)
	}
	// gonum has no empty Dense, a rank without rows passes nil
	if offsets.NumRows == 0 {
		return nil
	}
	rows, cols := rhs.Dims()
	if rows != offsets.NumRows || cols != 3 {
		return errs.Configurationf("rhs is %dx%d, expected %dx3", rows, cols, offsets.NumRows)
	}

	flux := make([]float64, len(offsets.Rows)*3)
	forRange(nb, func(low, high int) {
		for b := low; b < high; b++ {
			for j := 0; j < n; j++ {
				for i := 0; i < n; i++ {
					qv := q.At(b, j, i)
					for d := 0; d < 3; d++ {
						f := qv.Mul(areas.At(b, j, i, d))
						for lane := 0; lane < simd.SimdLen; lane++ {
							flux[offsets.slot(b, j, i, lane)*3+d] = f[lane]
						}
					}
				}
			}
		}
	})

	forRange(offsets.NumRows, func(low, high int) {
		for r := low; r < high; r++ {
			var sum [3]float64
			for _, s := range offsets.Slots[offsets.SlotStart[r]:offsets.SlotStart[r+1]] {
				for d := 0; d < 3; d++ {
					sum[d] += flux[int(s)*3+d]
				}
			}
			row := rhs.RawRowView(r)
			for d := 0; d < 3; d++ {
				row[d] -= sum[d]
			}
		}
	})
	return nil
}
