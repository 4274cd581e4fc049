package mesh

// Field is a per-node quantity with a fixed number of components.
type Field interface {
	Name() string
	Components() int
	Get(idx MeshIndex, comp int) float64
}

// GlobalIDField maps local nodes to their global row id.
type GlobalIDField interface {
	GlobalID(idx MeshIndex) (int64, bool)
}

// NodeField stores Components values per local node, node-major.
type NodeField struct {
	name  string
	ncomp int
	Data  []float64
}

// NewNodeField allocates a zero field over numNodes nodes
func NewNodeField(name string, numNodes, components int) *NodeField {
	return &NodeField{name: name, ncomp: components, Data: make([]float64, numNodes*components)}
}

func (f *NodeField) Name() string    { return f.name }
func (f *NodeField) Components() int { return f.ncomp }

func (f *NodeField) Get(idx MeshIndex, comp int) float64 {
	return f.Data[int(idx)*f.ncomp+comp]
}

func (f *NodeField) Set(idx MeshIndex, comp int, v float64) {
	f.Data[int(idx)*f.ncomp+comp] = v
}

// Fill assigns v to every component of every node.
func (f *NodeField) Fill(v float64) {
	for i := range f.Data {
		f.Data[i] = v
	}
}

type gidField struct {
	ids   []int64
	valid []bool
}

func (g *gidField) GlobalID(idx MeshIndex) (int64, bool) {
	if !idx.Valid() || int(idx) >= len(g.ids) {
		return 0, false
	}
	return g.ids[idx], g.valid[idx]
}
