package geom

import (
	"github.com/notargets/hexfem/element"
	"github.com/notargets/hexfem/simd"
)

// Box holds the 8 corner positions of a batch of hexes, indexed
// [component][corner] with corners in the element package vertex order.
type Box [3][8]simd.Vec

// HexBox extracts the corner nodes of batch b from element coordinates.
func HexBox(coords *simd.ElemVector, b int) (box Box) {
	p := coords.N - 1
	corners := [8][3]int{
		{0, 0, 0}, {0, 0, p}, {0, p, p}, {0, p, 0},
		{p, 0, 0}, {p, 0, p}, {p, p, p}, {p, p, 0},
	}
	for c, kji := range corners {
		for d := 0; d < 3; d++ {
			box[d][c] = coords.At(b, kji[0], kji[1], kji[2], d)
		}
	}
	return
}

// HexJacobian evaluates the trilinear map's Jacobian at the reference point
// whose linear shape function values are (ni, nj, nk); each is {(1-x)/2, (1+x)/2}.
// jac[r][d] is the derivative of physical component d along reference
// direction r.
func HexJacobian(box *Box, ni, nj, nk [2]float64) (jac [3][3]simd.Vec) {
	const ln, rn = 0, 1
	for d := 0; d < 3; d++ {
		x := &box[d]
		jac[0][d] = (x[1].Sub(x[0]).Scale(nj[ln] * nk[ln]).
			Add(x[2].Sub(x[3]).Scale(nj[rn] * nk[ln])).
			Add(x[5].Sub(x[4]).Scale(nj[ln] * nk[rn])).
			Add(x[6].Sub(x[7]).Scale(nj[rn] * nk[rn]))).Scale(0.5)
		jac[1][d] = (x[3].Sub(x[0]).Scale(ni[ln] * nk[ln]).
			Add(x[2].Sub(x[1]).Scale(ni[rn] * nk[ln])).
			Add(x[7].Sub(x[4]).Scale(ni[ln] * nk[rn])).
			Add(x[6].Sub(x[5]).Scale(ni[rn] * nk[rn]))).Scale(0.5)
		jac[2][d] = (x[4].Sub(x[0]).Scale(ni[ln] * nj[ln]).
			Add(x[5].Sub(x[1]).Scale(ni[rn] * nj[ln])).
			Add(x[6].Sub(x[2]).Scale(ni[rn] * nj[rn])).
			Add(x[7].Sub(x[3]).Scale(ni[ln] * nj[rn]))).Scale(0.5)
	}
	return
}

// Determinant of a batch of 3x3 matrices. Inverted elements give negative
// values; nothing is clipped.
func Determinant(m [3][3]simd.Vec) simd.Vec {
	c0 := m[1][1].Mul(m[2][2]).Sub(m[1][2].Mul(m[2][1]))
	c1 := m[1][2].Mul(m[2][0]).Sub(m[1][0].Mul(m[2][2]))
	c2 := m[1][0].Mul(m[2][1]).Sub(m[1][1].Mul(m[2][0]))
	return m[0][0].Mul(c0).Add(m[0][1].Mul(c1)).Add(m[0][2].Mul(c2))
}

func shape(n [2][]float64, q int) [2]float64 { return [2]float64{n[0][q], n[1][q]} }

// quadShape returns the linear shape values at quadrature point q of tab.
func quadShape(tab *element.Table, q int) [2]float64 { return shape(tab.NlinQuad, q) }
