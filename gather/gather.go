package gather

import (
	"github.com/exascience/pargo/parallel"
	"github.com/notargets/hexfem/connectivity"
	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/mesh"
	"github.com/notargets/hexfem/simd"
)

// Every gather allocates a fresh view shaped like its table and fills it one
// batch per task. A lane whose first stencil node is not a valid local index
// reads the nodes of the batch's first valid lane instead, usually lane 0, for
// the whole stencil. A batch with no valid lane reads zeros.

func laneSource(first [simd.SimdLen]mesh.MeshIndex) (src [simd.SimdLen]int) {
	fallback := -1
	for lane := range first {
		if first[lane].Valid() {
			fallback = lane
			break
		}
	}
	for lane := range src {
		switch {
		case first[lane].Valid(), fallback < 0:
			src[lane] = lane
		default:
			src[lane] = fallback
		}
	}
	return
}

func read(f mesh.Field, idx mesh.MeshIndex, comp int) float64 {
	if !idx.Valid() {
		return 0
	}
	return f.Get(idx, comp)
}

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

func requireComponents(f mesh.Field, want int) error {
	if want > 0 && f.Components() != want {
		return errs.Configurationf("field %q has %d components, expected %d",
			f.Name(), f.Components(), want)
	}
	if f.Components() < 1 {
		return errs.Configurationf("field %q has no components", f.Name())
	}
	return nil
}

// ElemScalar gathers a one component field onto element nodes.
func ElemScalar(t *connectivity.ElemTable, f mesh.Field) (*simd.ElemScalar, error) {
	if err := requireComponents(f, 1); err != nil {
		return nil, err
	}
	n := t.N
	out := simd.NewElemScalar(t.Batches(), n)
	forBatches(t.Batches(), func(b int) {
		var first [simd.SimdLen]mesh.MeshIndex
		for lane := range first {
			first[lane] = t.At(b, 0, 0, 0, lane)
		}
		src := laneSource(first)
		for k := 0; k < n; k++ {
			for j := 0; j < n; j++ {
				for i := 0; i < n; i++ {
					var v simd.Vec
					for lane := range v {
						v[lane] = read(f, t.At(b, k, j, i, src[lane]), 0)
					}
					out.Set(b, k, j, i, v)
				}
			}
		}
	})
	return out, nil
}

// ElemVector gathers every component of f onto element nodes.
func ElemVector(t *connectivity.ElemTable, f mesh.Field) (*simd.ElemVector, error) {
	if err := requireComponents(f, 0); err != nil {
		return nil, err
	}
	n, dim := t.N, f.Components()
	out := simd.NewElemVector(t.Batches(), n, dim)
	forBatches(t.Batches(), func(b int) {
		var first [simd.SimdLen]mesh.MeshIndex
		for lane := range first {
			first[lane] = t.At(b, 0, 0, 0, lane)
		}
		src := laneSource(first)
		for k := 0; k < n; k++ {
			for j := 0; j < n; j++ {
				for i := 0; i < n; i++ {
					for d := 0; d < dim; d++ {
						var v simd.Vec
						for lane := range v {
							v[lane] = read(f, t.At(b, k, j, i, src[lane]), d)
						}
						out.Set(b, k, j, i, d, v)
					}
				}
			}
		}
	})
	return out, nil
}

// FaceScalar gathers a one component field onto face nodes.
func FaceScalar(t *connectivity.FaceTable, f mesh.Field) (*simd.FaceScalar, error) {
	if err := requireComponents(f, 1); err != nil {
		return nil, err
	}
	n := t.N
	out := simd.NewFaceScalar(t.Batches(), n)
	forBatches(t.Batches(), func(b int) {
		var first [simd.SimdLen]mesh.MeshIndex
		for lane := range first {
			first[lane] = t.At(b, 0, 0, lane)
		}
		src := laneSource(first)
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				var v simd.Vec
				for lane := range v {
					v[lane] = read(f, t.At(b, j, i, src[lane]), 0)
				}
				out.Set(b, j, i, v)
			}
		}
	})
	return out, nil
}

// FaceVector gathers every component of f onto face nodes.
func FaceVector(t *connectivity.FaceTable, f mesh.Field) (*simd.FaceVector, error) {
	if err := requireComponents(f, 0); err != nil {
		return nil, err
	}
	n, dim := t.N, f.Components()
	out := simd.NewFaceVector(t.Batches(), n, dim)
	forBatches(t.Batches(), func(b int) {
		var first [simd.SimdLen]mesh.MeshIndex
		for lane := range first {
			first[lane] = t.At(b, 0, 0, lane)
		}
		src := laneSource(first)
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				for d := 0; d < dim; d++ {
					var v simd.Vec
					for lane := range v {
						v[lane] = read(f, t.At(b, j, i, src[lane]), d)
					}
					out.Set(b, j, i, d, v)
				}
			}
		}
	})
	return out, nil
}

// NodeScalar gathers a one component field onto single nodes.
func NodeScalar(t *connectivity.NodeTable, f mesh.Field) (*simd.NodeScalar, error) {
	if err := requireComponents(f, 1); err != nil {
		return nil, err
	}
	out := simd.NewNodeScalar(t.Batches())
	forBatches(t.Batches(), func(b int) {
		var first [simd.SimdLen]mesh.MeshIndex
		for lane := range first {
			first[lane] = t.At(b, lane)
		}
		src := laneSource(first)
		var v simd.Vec
		for lane := range v {
			v[lane] = read(f, t.At(b, src[lane]), 0)
		}
		out.Set(b, v)
	})
	return out, nil
}
