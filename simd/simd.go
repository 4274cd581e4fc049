package simd

// SimdLen is the number of entities evaluated together in one batch. Four
// double lanes matches a 256 bit vector register.
const SimdLen = 4

// Vec holds one value per lane of a batch.
type Vec [SimdLen]float64

// Splat broadcasts v into every lane
func Splat(v float64) (r Vec) {
	for l := range r {
		r[l] = v
	}
	return
}

// Add returns the lane-wise sum
func (a Vec) Add(b Vec) (r Vec) {
	for l := range r {
		r[l] = a[l] + b[l]
	}
	return
}

// Sub returns the lane-wise difference a - b
func (a Vec) Sub(b Vec) (r Vec) {
	for l := range r {
		r[l] = a[l] - b[l]
	}
	return
}

// Mul returns the lane-wise product
func (a Vec) Mul(b Vec) (r Vec) {
	for l := range r {
		r[l] = a[l] * b[l]
	}
	return
}

// Scale multiplies every lane by s
func (a Vec) Scale(s float64) (r Vec) {
	for l := range r {
		r[l] = a[l] * s
	}
	return
}

// FMA returns a + b*c lane by lane.
func (a Vec) FMA(b, c Vec) (r Vec) {
	for l := range r {
		r[l] = a[l] + b[l]*c[l]
	}
	return
}

// Lane reads lane l
func (a Vec) Lane(l int) float64 { return a[l] }

// SetLane writes lane l
func (a *Vec) SetLane(l int, v float64) { a[l] = v }

// NumBatches returns ceil(n / SimdLen).
func NumBatches(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + SimdLen - 1) / SimdLen
}

// ActiveLanes returns how many lanes of batch b carry a real entity when n
// entities are packed.
func ActiveLanes(b, n int) int {
	rem := n - b*SimdLen
	switch {
	case rem <= 0:
		return 0
	case rem > SimdLen:
		return SimdLen
	default:
		return rem
	}
}
