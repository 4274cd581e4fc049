package geom

import (
	"github.com/exascience/pargo/parallel"
	"github.com/notargets/hexfem/element"
	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/simd"
)

func forBatches(nb int, body func(b int)) {
	if nb == 0 {
		return
	}
	parallel.Range(0, nb, 0, func(low, high int) {
		for b := low; b < high; b++ {
			body(b)
		}
	})
}

// VolumeMetric evaluates det J of the trilinear element map at the
// tensor-product quadrature points of an order-p hex.
type VolumeMetric struct {
	tab *element.Table
}

// NewVolumeMetric evaluates det J at the (p+1)^3 quadrature points of an
// order p element
func NewVolumeMetric(order int) (*VolumeMetric, error) {
	tab, err := element.Coeffs(order)
	if err != nil {
		return nil, err
	}
	return &VolumeMetric{tab: tab}, nil
}

func (vm *VolumeMetric) Table() *element.Table { return vm.tab }

func (vm *VolumeMetric) check(coords *simd.ElemVector) error {
	if coords.N != vm.tab.N() || coords.Dim != 3 {
		return errs.Configurationf("coordinate view is %d^3 x %d, expected %d^3 x 3",
			coords.N, coords.Dim, vm.tab.N())
	}
	return nil
}

// Invoke returns det J at every quadrature point of every batch.
func (vm *VolumeMetric) Invoke(coords *simd.ElemVector) (*simd.ElemScalar, error) {
	return vm.invoke(nil, coords)
}

// InvokeWeighted scales det J pointwise by alpha, which must be laid out
// like the result.
func (vm *VolumeMetric) InvokeWeighted(alpha *simd.ElemScalar, coords *simd.ElemVector) (*simd.ElemScalar, error) {
	if alpha.N != vm.tab.NQ() || alpha.Batches() != coords.Batches() {
		return nil, errs.Configurationf("alpha view is %d batches of %d^3, expected %d of %d^3",
			alpha.Batches(), alpha.N, coords.Batches(), vm.tab.NQ())
	}
	return vm.invoke(alpha, coords)
}

func (vm *VolumeMetric) invoke(alpha *simd.ElemScalar, coords *simd.ElemVector) (*simd.ElemScalar, error) {
	if err := vm.check(coords); err != nil {
		return nil, err
	}
	nq := vm.tab.NQ()
	vol := simd.NewElemScalar(coords.Batches(), nq)
	forBatches(coords.Batches(), func(b int) {
		box := HexBox(coords, b)
		for k := 0; k < nq; k++ {
			for j := 0; j < nq; j++ {
				for i := 0; i < nq; i++ {
					det := Determinant(HexJacobian(&box,
						quadShape(vm.tab, i), quadShape(vm.tab, j), quadShape(vm.tab, k)))
					if alpha != nil {
						det = det.Mul(alpha.At(b, k, j, i))
					}
					vol.Set(b, k, j, i, det)
				}
			}
		}
	})
	return vol, nil
}

// ElementVolumes integrates a volume metric over each of the numEntities
// real elements packed in vol.
func ElementVolumes(tab *element.Table, vol *simd.ElemScalar, numEntities int) []float64 {
	out := make([]float64, numEntities)
	nq := tab.NQ()
	w := tab.QuadWeights
	for b := 0; b < vol.Batches(); b++ {
		var sum simd.Vec
		for k := 0; k < nq; k++ {
			for j := 0; j < nq; j++ {
				for i := 0; i < nq; i++ {
					sum = sum.Add(vol.At(b, k, j, i).Scale(w[k] * w[j] * w[i]))
				}
			}
		}
		for lane := 0; lane < simd.ActiveLanes(b, numEntities); lane++ {
			out[b*simd.SimdLen+lane] = sum[lane]
		}
	}
	return out
}

// ExposedAreas computes, for each node of a boundary face, the area vector
// of the node's sub-control surface. The face map is bilinear through the
// four face corners and the vector points along d/di x d/dj.
type ExposedAreas struct {
	tab *element.Table
}

// NewExposedAreas evaluates face area vectors for order p faces
func NewExposedAreas(order int) (*ExposedAreas, error) {
	tab, err := element.Coeffs(order)
	if err != nil {
		return nil, err
	}
	return &ExposedAreas{tab: tab}, nil
}

// Invoke returns the outward area vector of the sub-control surface around
// each face node. The vectors of a face sum to its area vector.
func (ea *ExposedAreas) Invoke(coords *simd.FaceVector) (*simd.FaceVector, error) {
	n := ea.tab.N()
	if coords.N != n || coords.Dim != 3 {
		return nil, errs.Configurationf("face coordinate view is %d^2 x %d, expected %d^2 x 3",
			coords.N, coords.Dim, n)
	}
	p := n - 1
	areas := simd.NewFaceVector(coords.Batches(), n, 3)
	forBatches(coords.Batches(), func(b int) {
		var c [3][4]simd.Vec // corners (0,0) (0,p) (p,0) (p,p) in (j,i)
		for d := 0; d < 3; d++ {
			c[d][0] = coords.At(b, 0, 0, d)
			c[d][1] = coords.At(b, 0, p, d)
			c[d][2] = coords.At(b, p, 0, d)
			c[d][3] = coords.At(b, p, p, d)
		}
		for j := 0; j < n; j++ {
			nj := shape(ea.tab.NlinScs, j)
			for i := 0; i < n; i++ {
				ni := shape(ea.tab.NlinScs, i)
				var ds, dt [3]simd.Vec
				for d := 0; d < 3; d++ {
					ds[d] = c[d][1].Sub(c[d][0]).Scale(nj[0]).
						Add(c[d][3].Sub(c[d][2]).Scale(nj[1])).Scale(0.5)
					dt[d] = c[d][2].Sub(c[d][0]).Scale(ni[0]).
						Add(c[d][3].Sub(c[d][1]).Scale(ni[1])).Scale(0.5)
				}
				scale := ea.tab.ScsLength[i] * ea.tab.ScsLength[j]
				areas.Set(b, j, i, 0, ds[1].Mul(dt[2]).Sub(ds[2].Mul(dt[1])).Scale(scale))
				areas.Set(b, j, i, 1, ds[2].Mul(dt[0]).Sub(ds[0].Mul(dt[2])).Scale(scale))
				areas.Set(b, j, i, 2, ds[0].Mul(dt[1]).Sub(ds[1].Mul(dt[0])).Scale(scale))
			}
		}
	})
	return areas, nil
}
