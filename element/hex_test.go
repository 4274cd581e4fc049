package element

import (
	"errors"
	"math"
	"testing"

	"github.com/notargets/hexfem/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestCoeffs_SupportedOrders(t *testing.T) {
	for p := MinOrder; p <= MaxOrder; p++ {
		tab, err := Coeffs(p)
		require.NoError(t, err)
		assert.Equal(t, p, tab.Order)
		assert.Len(t, tab.Nodes, p+1)
		assert.Equal(t, -1., tab.Nodes[0])
		assert.Equal(t, 1., tab.Nodes[p])
		assert.InDelta(t, 2., floats.Sum(tab.QuadWeights), 1e-14)
		assert.False(t, floats.HasNaN(tab.QuadPoints))
		for q := 1; q < tab.NQ(); q++ {
			assert.Less(t, tab.QuadPoints[q-1], tab.QuadPoints[q])
		}
		assert.InDelta(t, 2., floats.Sum(tab.ScsLength), 1e-14)
		for q := range tab.QuadPoints {
			assert.InDelta(t, 1., tab.NlinQuad[0][q]+tab.NlinQuad[1][q], 1e-15)
			// partition of unity
			assert.InDelta(t, 1., floats.Sum(tab.Interp[q]), 1e-13)
		}

		// shared pointer, built once
		again, _ := Coeffs(p)
		assert.Same(t, tab, again)
	}
}

func TestCoeffs_LinearScs(t *testing.T) {
	tab, err := Coeffs(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 0, 1}, tab.Scs)
	assert.Equal(t, []float64{1, 1}, tab.ScsLength)
	assert.InDelta(t, 1/math.Sqrt(3), tab.QuadPoints[1], 1e-14)
}

func TestCoeffs_UnsupportedOrder(t *testing.T) {
	for _, p := range []int{0, -1, MaxOrder + 1} {
		_, err := Coeffs(p)
		assert.True(t, errors.Is(err, errs.ErrConfiguration), "order %d", p)
	}
	_, err := NewHexElement(7)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestHexElement_Geometry(t *testing.T) {
	he, err := NewHexElement(2)
	require.NoError(t, err)
	assert.Equal(t, 27, he.Np())
	assert.Equal(t, 9, he.NFp())
	assert.Equal(t, "Hex2", he.ShortName())
	assert.Len(t, he.GetReferenceGeometry().InteriorPoints, 1)
	assert.Len(t, he.VertexPoints(), 8)

	// each face holds the nodes lying on it
	checks := []struct {
		face  int
		coord []float64
		val   float64
	}{
		{FaceZMin, he.T(), -1}, {FaceZMax, he.T(), 1},
		{FaceXMin, he.R(), -1}, {FaceXMax, he.R(), 1},
		{FaceYMin, he.S(), -1}, {FaceYMax, he.S(), 1},
	}
	for _, c := range checks {
		for _, id := range he.FacePoints()[c.face] {
			assert.Equal(t, c.val, c.coord[id], "face %d node %d", c.face, id)
		}
	}
}

func TestFaceNode_Outward(t *testing.T) {
	// d/di x d/dj in reference coordinates must match the outward normal
	he, _ := NewHexElement(1)
	outward := [][3]float64{{0, 0, -1}, {0, 0, 1}, {-1, 0, 0}, {1, 0, 0}, {0, -1, 0}, {0, 1, 0}}
	pos := func(f, fj, fi int) [3]float64 {
		k, j, i := FaceNode(f, 1, fj, fi)
		id := (k*2+j)*2 + i
		return [3]float64{he.R()[id], he.S()[id], he.T()[id]}
	}
	for f := 0; f < NumHexFaces; f++ {
		o := pos(f, 0, 0)
		di, dj := pos(f, 0, 1), pos(f, 1, 0)
		a := [3]float64{di[0] - o[0], di[1] - o[1], di[2] - o[2]}
		b := [3]float64{dj[0] - o[0], dj[1] - o[1], dj[2] - o[2]}
		n := [3]float64{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
		for d := 0; d < 3; d++ {
			assert.Equal(t, 4*outward[f][d], n[d], "face %d", f)
		}
	}
}
