package element

type ElementGeometry uint8

const (
	Tet ElementGeometry = iota
	Hex
	Prism
	Pyramid
	Tri
	Rectangle
	Line
)

func (g ElementGeometry) String() string {
	switch g {
	case Tet:
		return "Tet"
	case Hex:
		return "Hex"
	case Prism:
		return "Prism"
	case Pyramid:
		return "Pyramid"
	case Tri:
		return "Tri"
	case Rectangle:
		return "Rectangle"
	case Line:
		return "Line"
	}
	return "Unknown"
}

// Element is the reference-space description consumed by the metric and
// operator kernels.
type Element interface {
	Name() string
	ShortName() string
	GeometryType() ElementGeometry
	Order() int
	Np() int  // Number of defining geometric points
	NFp() int // Number of face points
	NVp() int // Number of vertex points
	Dimensions() Dimensionality

	// Reference Geometry Definition
	R() []float64
	S() []float64
	T() []float64

	// Point classification by geometric location
	VertexPoints() []int
	FacePoints() [][]int

	// Tensor-product coefficient tables shared by every element of this order
	Coefficients() *Table
}
