package assembly

import (
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"
)

// CSR is a host copy of assembled rows. Row r holds global row
// RowIndices[r], its columns are global ids sorted ascending and unique.
type CSR struct {
	NumRows    int
	RowIndices []int64
	RowPtr     []int64
	ColIndices []int64
	Values     []float64
}

// Nnz counts stored entries
func (c *CSR) Nnz() int {
	if c == nil || len(c.RowPtr) == 0 {
		return 0
	}
	return int(c.RowPtr[c.NumRows])
}

// Row returns the columns and values of local row r
func (c *CSR) Row(r int) ([]int64, []float64) {
	s, e := c.RowPtr[r], c.RowPtr[r+1]
	return c.ColIndices[s:e], c.Values[s:e]
}

// At returns the value at (local row, global column), zero if absent
func (c *CSR) At(row int, col int64) float64 {
	cols, vals := c.Row(row)
	k := sort.Search(len(cols), func(i int) bool { return cols[i] >= col })
	if k < len(cols) && cols[k] == col {
		return vals[k]
	}
	return 0
}

// Sparse hands the rows to james-bowman/sparse in local row order
func (c *CSR) Sparse(numCols int) *sparse.CSR {
	ia := make([]int, len(c.RowPtr))
	for i, v := range c.RowPtr {
		ia[i] = int(v)
	}
	ja := make([]int, len(c.ColIndices))
	for i, v := range c.ColIndices {
		ja[i] = int(v)
	}
	data := make([]float64, len(c.Values))
	copy(data, c.Values)
	return sparse.NewCSR(c.NumRows, numCols, ia, ja, data)
}

// Slice returns rows [lo, hi) as a new CSR sharing no storage with c
func (c *CSR) Slice(lo, hi int) *CSR {
	s, e := c.RowPtr[lo], c.RowPtr[hi]
	out := &CSR{
		NumRows:    hi - lo,
		RowIndices: append([]int64(nil), c.RowIndices[lo:hi]...),
		RowPtr:     make([]int64, hi-lo+1),
		ColIndices: make([]int64, e-s),
		Values:     make([]float64, e-s),
	}
	copy(out.ColIndices, c.ColIndices[s:e])
	copy(out.Values, c.Values[s:e])
	for r := lo; r <= hi; r++ {
		out.RowPtr[r-lo] = c.RowPtr[r] - s
	}
	return out
}

func (c *CSR) String() string {
	return fmt.Sprintf("CSR: %d rows, %d nonzeros", c.NumRows, c.Nnz())
}
