package element

import (
	"math"
	"sort"

	"github.com/notargets/hexfem/errs"
	"gonum.org/v1/gonum/integrate/quad"
)

const (
	MinOrder = 1
	MaxOrder = 4
)

// Table holds the one dimensional coefficients of an order-p tensor-product
// hex. Tables are built once at package initialization and never mutated, so
// a *Table may be shared freely between goroutines.
type Table struct {
	Order int
	// Gauss-Lobatto node locations, p+1 of them
	Nodes []float64
	// Gauss-Legendre quadrature, p+1 points
	QuadPoints, QuadWeights []float64
	// Linear shape functions at the quadrature points, [0] is (1-x)/2 and
	// [1] is (1+x)/2
	NlinQuad [2][]float64
	// Sub-control-surface boundaries: -1, the p Gauss-Legendre points, +1.
	// Node a owns the sub-interval [Scs[a], Scs[a+1]].
	Scs       []float64
	ScsLength []float64
	ScsMid    []float64
	NlinScs   [2][]float64
	// Interp[q][a] is the Lagrange basis of node a evaluated at QuadPoints[q]
	Interp [][]float64
}

// N returns the number of nodes per direction.
func (t *Table) N() int { return t.Order + 1 }

// NQ returns the number of quadrature points per direction.
func (t *Table) NQ() int { return len(t.QuadPoints) }

var tables [MaxOrder + 1]*Table

func init() {
	for p := MinOrder; p <= MaxOrder; p++ {
		tables[p] = newTable(p)
	}
}

// Coeffs returns the shared table for order p.
func Coeffs(p int) (*Table, error) {
	if p < MinOrder || p > MaxOrder {
		return nil, errs.Configurationf("polynomial order %d outside supported range [%d, %d]",
			p, MinOrder, MaxOrder)
	}
	return tables[p], nil
}

func gaussLobatto(p int) []float64 {
	switch p {
	case 1:
		return []float64{-1, 1}
	case 2:
		return []float64{-1, 0, 1}
	case 3:
		a := 1 / math.Sqrt(5)
		return []float64{-1, -a, a, 1}
	case 4:
		a := math.Sqrt(3. / 7.)
		return []float64{-1, -a, 0, a, 1}
	}
	panic("unreachable gauss-lobatto order")
}

func gaussLegendre(n int) (x, w []float64) {
	x = make([]float64, n)
	w = make([]float64, n)
	quad.Legendre{}.FixedLocations(x, w, -1, 1)
	// tensor-product indexing assumes ascending locations
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return x[idx[a]] < x[idx[b]] })
	xs, ws := make([]float64, n), make([]float64, n)
	for i, k := range idx {
		xs[i], ws[i] = x[k], w[k]
	}
	return xs, ws
}

func newTable(p int) *Table {
	t := &Table{Order: p, Nodes: gaussLobatto(p)}
	t.QuadPoints, t.QuadWeights = gaussLegendre(p + 1)
	t.NlinQuad = linear(t.QuadPoints)

	inner, _ := gaussLegendre(p)
	t.Scs = make([]float64, 0, p+2)
	t.Scs = append(t.Scs, -1)
	t.Scs = append(t.Scs, inner...)
	t.Scs = append(t.Scs, 1)
	t.ScsLength = make([]float64, p+1)
	t.ScsMid = make([]float64, p+1)
	for a := 0; a <= p; a++ {
		t.ScsLength[a] = t.Scs[a+1] - t.Scs[a]
		t.ScsMid[a] = 0.5 * (t.Scs[a+1] + t.Scs[a])
	}
	t.NlinScs = linear(t.ScsMid)

	t.Interp = make([][]float64, len(t.QuadPoints))
	for q, x := range t.QuadPoints {
		t.Interp[q] = make([]float64, p+1)
		for a := range t.Nodes {
			t.Interp[q][a] = Lagrange(t.Nodes, a, x)
		}
	}
	return t
}

func linear(x []float64) (n [2][]float64) {
	n[0] = make([]float64, len(x))
	n[1] = make([]float64, len(x))
	for i, xi := range x {
		n[0][i] = 0.5 * (1 - xi)
		n[1][i] = 0.5 * (1 + xi)
	}
	return
}

// Lagrange evaluates the a-th Lagrange basis polynomial over nodes at x.
func Lagrange(nodes []float64, a int, x float64) float64 {
	v := 1.
	for b, xb := range nodes {
		if b == a {
			continue
		}
		v *= (x - xb) / (nodes[a] - xb)
	}
	return v
}
