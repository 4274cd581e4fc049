package geom

import (
	"math"
	"testing"

	"github.com/notargets/hexfem/connectivity"
	"github.com/notargets/hexfem/element"
	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/gather"
	"github.com/notargets/hexfem/mesh"
	"github.com/notargets/hexfem/simd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

type transform func(x, y, z float64) (float64, float64, float64)

func elementVolumes(t *testing.T, n, order int, scale float64, tr transform) []float64 {
	meshes, err := mesh.BuildBox(mesh.BoxSpec{NX: n, NY: n, NZ: n, Scale: scale, Order: order,
		NumRanks: 1, Transform: tr})
	require.NoError(t, err)
	m := meshes[0]
	tab, err := connectivity.BuildElemTable(m, mesh.PartBlock)
	require.NoError(t, err)
	coords, err := gather.ElemVector(tab, m.Coordinates())
	require.NoError(t, err)
	vm, err := NewVolumeMetric(order)
	require.NoError(t, err)
	vol, err := vm.Invoke(coords)
	require.NoError(t, err)
	return ElementVolumes(vm.Table(), vol, tab.NumEntities)
}

func TestVolume_ScaledCube(t *testing.T) {
	for p := element.MinOrder; p <= element.MaxOrder; p++ {
		vols := elementVolumes(t, 2, p, 3, nil)
		require.Len(t, vols, 8)
		for _, v := range vols {
			assert.InDelta(t, 3.375, v, 1e-12, "order %d", p)
		}
		assert.InDelta(t, 27., floats.Sum(vols), 1e-11)
	}
}

func TestVolume_Parallelepiped(t *testing.T) {
	shear := func(x, y, z float64) (float64, float64, float64) {
		return 2*x + 0.5*y, y, 3*z + 0.2*x
	}
	for p := element.MinOrder; p <= element.MaxOrder; p++ {
		vols := elementVolumes(t, 1, p, 1, shear)
		assert.InDelta(t, 6., vols[0], 1e-12, "order %d", p)
	}
}

func TestVolume_Frustum(t *testing.T) {
	const a = 0.4
	taper := func(x, y, z float64) (float64, float64, float64) {
		s := 1 - (1-a)*z
		return x * s, y * s, z
	}
	want := (1 + a + a*a) / 3
	for p := element.MinOrder; p <= element.MaxOrder; p++ {
		vols := elementVolumes(t, 1, p, 1, taper)
		assert.InDelta(t, want, vols[0], 1e-12, "order %d", p)
	}
}

func TestVolume_InvertedElementIsNegative(t *testing.T) {
	mirror := func(x, y, z float64) (float64, float64, float64) { return -x, y, z }
	vols := elementVolumes(t, 1, 2, 2, mirror)
	assert.InDelta(t, -8., vols[0], 1e-12)
}

func TestVolume_RepeatableAndWeighted(t *testing.T) {
	meshes, err := mesh.BuildBox(mesh.BoxSpec{NX: 3, NY: 2, NZ: 1, Scale: 1, Order: 2, NumRanks: 1})
	require.NoError(t, err)
	tab, _ := connectivity.BuildElemTable(meshes[0], mesh.PartBlock)
	coords, err := gather.ElemVector(tab, meshes[0].Coordinates())
	require.NoError(t, err)
	vm, _ := NewVolumeMetric(2)

	a, err := vm.Invoke(coords)
	require.NoError(t, err)
	b, err := vm.Invoke(coords)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)

	alpha := simd.NewElemScalar(coords.Batches(), vm.Table().NQ())
	alpha.Fill(simd.Splat(2))
	w, err := vm.InvokeWeighted(alpha, coords)
	require.NoError(t, err)
	for i := range w.Data {
		assert.Equal(t, a.Data[i].Scale(2), w.Data[i])
	}

	bad := simd.NewElemScalar(coords.Batches(), 2)
	_, err = vm.InvokeWeighted(bad, coords)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestVolume_ShapeMismatch(t *testing.T) {
	vm, err := NewVolumeMetric(3)
	require.NoError(t, err)
	_, err = vm.Invoke(simd.NewElemVector(1, 2, 3))
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	_, err = NewVolumeMetric(0)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestExposedAreas_Box(t *testing.T) {
	for _, p := range []int{1, 2, 3} {
		meshes, err := mesh.BuildBox(mesh.BoxSpec{NX: 4, NY: 4, NZ: 4, Scale: 1, Order: p, NumRanks: 1})
		require.NoError(t, err)
		m := meshes[0]
		ea, err := NewExposedAreas(p)
		require.NoError(t, err)

		total := 0.
		for f, name := range mesh.FacePartNames {
			tab, err := connectivity.BuildFaceTable(m, name)
			require.NoError(t, err)
			coords, err := gather.FaceVector(tab, m.Coordinates())
			require.NoError(t, err)
			areas, err := ea.Invoke(coords)
			require.NoError(t, err)

			normal := [element.NumHexFaces][3]float64{
				{0, 0, -1}, {0, 0, 1}, {-1, 0, 0}, {1, 0, 0}, {0, -1, 0}, {0, 1, 0}}[f]
			for b := 0; b < tab.Batches(); b++ {
				for lane := 0; lane < tab.ActiveLanes(b); lane++ {
					for j := 0; j < p+1; j++ {
						for i := 0; i < p+1; i++ {
							var dot, mag float64
							for d := 0; d < 3; d++ {
								a := areas.At(b, j, i, d)[lane]
								dot += a * normal[d]
								mag += a * a
							}
							assert.InDelta(t, math.Sqrt(mag), dot, 1e-14, "%s outward", name)
							total += dot
						}
					}
				}
			}
		}
		assert.InDelta(t, 6., total, 1e-12, "order %d", p)
	}
}

func TestExposedAreas_LinearNodeArea(t *testing.T) {
	meshes, err := mesh.BuildBox(mesh.BoxSpec{NX: 4, NY: 4, NZ: 4, Scale: 1, Order: 1, NumRanks: 1})
	require.NoError(t, err)
	tab, _ := connectivity.BuildFaceTable(meshes[0], "zmax")
	coords, _ := gather.FaceVector(tab, meshes[0].Coordinates())
	ea, _ := NewExposedAreas(1)
	areas, err := ea.Invoke(coords)
	require.NoError(t, err)
	for b := 0; b < areas.Batches(); b++ {
		assert.Equal(t, simd.Splat(1./64), areas.At(b, 1, 0, 2))
		assert.Equal(t, simd.Splat(0), areas.At(b, 1, 0, 0))
	}
}
