package element

// Dimensionality represents the spatial dimension of an element
type Dimensionality uint8

const (
	D0 Dimensionality = iota // 0D elements (points)
	D1                       // 1D elements (lines, edges)
	D2                       // 2D elements (triangles, quadrilaterals)
	D3                       // 3D elements (tetrahedra, hexahedra, etc.)
)

// ElementProperties contains metadata describing an element type
type ElementProperties struct {
	Name       string          // Full descriptive name (e.g., "Lagrange Hexahedron Order 2")
	ShortName  string          // Abbreviated name (e.g., "Hex2")
	Type       ElementGeometry // Element shape
	Order      int             // Polynomial order
	Np         int             // Total number of nodes/points in element
	NFp        int             // Number of nodes per face
	NEp        int             // Number of nodes per edge
	NVp        int             // Number of vertex nodes (equals number of vertices)
	NIp        int             // Number of strictly interior nodes
	NFaces     int             // Number of faces in each element
	NEdges     int             // Number of edges in each element
	Dimensions Dimensionality  // Spatial dimension (1D, 2D, or 3D)
}

// ReferenceGeometry defines the layout of nodes in reference space [-1,1]^d
type ReferenceGeometry struct {
	// Node coordinates in reference space, ordered (k, j, i) with i fastest
	R, S, T []float64 // Length Np each

	// Node classification by topological entity
	VertexPoints   []int   // Indices of nodes located at vertices
	FacePoints     [][]int // [face_num][point_indices] - nodes on each face
	InteriorPoints []int   // Indices of nodes strictly inside the element
}

// ReferenceElement defines element properties and tables in reference space.
// Implemented once per element type and order.
type ReferenceElement interface {
	GetProperties() ElementProperties
	GetReferenceGeometry() ReferenceGeometry
	GetCoefficients() *Table
}
