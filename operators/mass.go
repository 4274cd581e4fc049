package operators

import (
	"github.com/notargets/hexfem/element"
	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/simd"
)

// ElementMatrices holds an Np x Np matrix per batch, indexed (b, a, c).
type ElementMatrices struct {
	Np   int
	Data []simd.Vec
}

func (em *ElementMatrices) Batches() int {
	if em.Np == 0 {
		return 0
	}
	return len(em.Data) / (em.Np * em.Np)
}

func (em *ElementMatrices) At(b, a, c int) simd.Vec { return em.Data[(b*em.Np+a)*em.Np+c] }

// ElementVectors holds an Np vector per batch, indexed (b, a).
type ElementVectors struct {
	Np   int
	Data []simd.Vec
}

func (ev *ElementVectors) Batches() int {
	if ev.Np == 0 {
		return 0
	}
	return len(ev.Data) / ev.Np
}

func (ev *ElementVectors) At(b, a int) simd.Vec { return ev.Data[b*ev.Np+a] }

// MassMatrix builds consistent element mass matrices from a volume metric
// evaluated at the quadrature points.
type MassMatrix struct {
	tab *element.Table
	// basis[q][a] is node a's tensor-product basis at quadrature point q,
	// times the quadrature weight
	basis [][]float64
	plain [][]float64
}

// NewMassMatrix tabulates the weighted basis products for order p
func NewMassMatrix(order int) (*MassMatrix, error) {
	tab, err := element.Coeffs(order)
	if err != nil {
		return nil, err
	}
	n, nq := tab.N(), tab.NQ()
	mm := &MassMatrix{tab: tab}
	for qk := 0; qk < nq; qk++ {
		for qj := 0; qj < nq; qj++ {
			for qi := 0; qi < nq; qi++ {
				w := tab.QuadWeights[qk] * tab.QuadWeights[qj] * tab.QuadWeights[qi]
				row := make([]float64, 0, n*n*n)
				for ak := 0; ak < n; ak++ {
					for aj := 0; aj < n; aj++ {
						for ai := 0; ai < n; ai++ {
							row = append(row, tab.Interp[qk][ak]*tab.Interp[qj][aj]*tab.Interp[qi][ai])
						}
					}
				}
				weighted := make([]float64, len(row))
				for a, v := range row {
					weighted[a] = w * v
				}
				mm.plain = append(mm.plain, row)
				mm.basis = append(mm.basis, weighted)
			}
		}
	}
	return mm, nil
}

func (mm *MassMatrix) Np() int { n := mm.tab.N(); return n * n * n }

// Invoke integrates phi_a phi_c det J over each element.
func (mm *MassMatrix) Invoke(vol *simd.ElemScalar) (*ElementMatrices, error) {
	if vol.N != mm.tab.NQ() {
		return nil, errs.Configurationf("volume metric has %d points per direction, expected %d",
			vol.N, mm.tab.NQ())
	}
	np := mm.Np()
	out := &ElementMatrices{Np: np, Data: make([]simd.Vec, vol.Batches()*np*np)}
	forRange(vol.Batches(), func(low, high int) {
		for b := low; b < high; b++ {
			dets := vol.Batch(b)
			m := out.Data[b*np*np : (b+1)*np*np]
			for q, det := range dets {
				wq := mm.basis[q]
				pq := mm.plain[q]
				for a := 0; a < np; a++ {
					da := det.Scale(wq[a])
					for c := 0; c < np; c++ {
						m[a*np+c] = m[a*np+c].Add(da.Scale(pq[c]))
					}
				}
			}
		}
	})
	return out, nil
}

// SourceRhs returns r_a = sum_c M_ac f_c for a nodal source f.
func SourceRhs(mass *ElementMatrices, f *simd.ElemScalar) (*ElementVectors, error) {
	np := mass.Np
	if f.N*f.N*f.N != np || f.Batches() != mass.Batches() {
		return nil, errs.Configurationf("source view of %d batches x %d^3 does not match %d element matrices of size %d",
			f.Batches(), f.N, mass.Batches(), np)
	}
	out := &ElementVectors{Np: np, Data: make([]simd.Vec, mass.Batches()*np)}
	forRange(mass.Batches(), func(low, high int) {
		for b := low; b < high; b++ {
			fb := f.Batch(b)
			for a := 0; a < np; a++ {
				var sum simd.Vec
				for c := 0; c < np; c++ {
					sum = sum.FMA(mass.At(b, a, c), fb[c])
				}
				out.Data[b*np+a] = sum
			}
		}
	})
	return out, nil
}
