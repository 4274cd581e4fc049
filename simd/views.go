package simd

// Views are dense, batch-major and owned by whoever requested them. They are
// produced fresh for each gather or metric evaluation and never cached.

// ElemScalar is indexed (batch, k, j, i) with N points per direction.
type ElemScalar struct {
	N    int
	Data []Vec
}

// NewElemScalar allocates batches of n^3 zero values
func NewElemScalar(batches, n int) *ElemScalar {
	return &ElemScalar{N: n, Data: make([]Vec, batches*n*n*n)}
}

func (v *ElemScalar) Batches() int {
	if v.N == 0 {
		return 0
	}
	return len(v.Data) / (v.N * v.N * v.N)
}

func (v *ElemScalar) idx(b, k, j, i int) int { return ((b*v.N+k)*v.N+j)*v.N + i }

func (v *ElemScalar) At(b, k, j, i int) Vec { return v.Data[v.idx(b, k, j, i)] }

func (v *ElemScalar) Set(b, k, j, i int, x Vec) { v.Data[v.idx(b, k, j, i)] = x }

// Batch returns the N^3 values of batch b in (k, j, i) order.
func (v *ElemScalar) Batch(b int) []Vec {
	n3 := v.N * v.N * v.N
	return v.Data[b*n3 : (b+1)*n3]
}

func (v *ElemScalar) Fill(x Vec) {
	for i := range v.Data {
		v.Data[i] = x
	}
}

// ElemVector is indexed (batch, k, j, i, d) with Dim components.
type ElemVector struct {
	N, Dim int
	Data   []Vec
}

// NewElemVector allocates batches of n^3 points with dim components
func NewElemVector(batches, n, dim int) *ElemVector {
	return &ElemVector{N: n, Dim: dim, Data: make([]Vec, batches*n*n*n*dim)}
}

func (v *ElemVector) Batches() int {
	if v.N == 0 || v.Dim == 0 {
		return 0
	}
	return len(v.Data) / (v.N * v.N * v.N * v.Dim)
}

func (v *ElemVector) idx(b, k, j, i, d int) int {
	return (((b*v.N+k)*v.N+j)*v.N+i)*v.Dim + d
}

func (v *ElemVector) At(b, k, j, i, d int) Vec { return v.Data[v.idx(b, k, j, i, d)] }

func (v *ElemVector) Set(b, k, j, i, d int, x Vec) { v.Data[v.idx(b, k, j, i, d)] = x }

func (v *ElemVector) Fill(x Vec) {
	for i := range v.Data {
		v.Data[i] = x
	}
}

// FaceScalar is indexed (batch, j, i).
type FaceScalar struct {
	N    int
	Data []Vec
}

// NewFaceScalar allocates batches of n^2 zero values
func NewFaceScalar(batches, n int) *FaceScalar {
	return &FaceScalar{N: n, Data: make([]Vec, batches*n*n)}
}

func (v *FaceScalar) Batches() int {
	if v.N == 0 {
		return 0
	}
	return len(v.Data) / (v.N * v.N)
}

func (v *FaceScalar) At(b, j, i int) Vec { return v.Data[(b*v.N+j)*v.N+i] }

func (v *FaceScalar) Set(b, j, i int, x Vec) { v.Data[(b*v.N+j)*v.N+i] = x }

func (v *FaceScalar) Fill(x Vec) {
	for i := range v.Data {
		v.Data[i] = x
	}
}

// FaceVector is indexed (batch, j, i, d).
type FaceVector struct {
	N, Dim int
	Data   []Vec
}

// NewFaceVector allocates batches of n^2 points with dim components
func NewFaceVector(batches, n, dim int) *FaceVector {
	return &FaceVector{N: n, Dim: dim, Data: make([]Vec, batches*n*n*dim)}
}

func (v *FaceVector) Batches() int {
	if v.N == 0 || v.Dim == 0 {
		return 0
	}
	return len(v.Data) / (v.N * v.N * v.Dim)
}

func (v *FaceVector) idx(b, j, i, d int) int { return ((b*v.N+j)*v.N+i)*v.Dim + d }

func (v *FaceVector) At(b, j, i, d int) Vec { return v.Data[v.idx(b, j, i, d)] }

func (v *FaceVector) Set(b, j, i, d int, x Vec) { v.Data[v.idx(b, j, i, d)] = x }

func (v *FaceVector) Fill(x Vec) {
	for i := range v.Data {
		v.Data[i] = x
	}
}

// NodeScalar holds one value per batch.
type NodeScalar struct {
	Data []Vec
}

// NewNodeScalar allocates one value per batch
func NewNodeScalar(batches int) *NodeScalar {
	return &NodeScalar{Data: make([]Vec, batches)}
}

func (v *NodeScalar) Batches() int { return len(v.Data) }

func (v *NodeScalar) At(b int) Vec { return v.Data[b] }

func (v *NodeScalar) Set(b int, x Vec) { v.Data[b] = x }
