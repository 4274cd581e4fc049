package element

import "fmt"

// Reference face numbering. Each face lists its nodes in (j, i) order such
// that d/di x d/dj points out of the element.
const (
	FaceZMin = iota
	FaceZMax
	FaceXMin
	FaceXMax
	FaceYMin
	FaceYMax
	NumHexFaces
)

// FaceNode maps face-local (fj, fi) to the element-local (k, j, i) node of
// an order-p hex.
func FaceNode(face, p, fj, fi int) (k, j, i int) {
	switch face {
	case FaceZMin:
		return 0, fi, fj
	case FaceZMax:
		return p, fj, fi
	case FaceXMin:
		return fi, fj, 0
	case FaceXMax:
		return fj, fi, p
	case FaceYMin:
		return fj, 0, fi
	case FaceYMax:
		return fi, p, fj
	}
	panic(fmt.Sprintf("invalid hex face %d", face))
}

// HexElement is the Lagrange hexahedron on Gauss-Lobatto nodes.
type HexElement struct {
	props ElementProperties
	geom  ReferenceGeometry
	table *Table
}

// NewHexElement builds the order p reference hex on the shared coefficient
// table
func NewHexElement(order int) (*HexElement, error) {
	table, err := Coeffs(order)
	if err != nil {
		return nil, err
	}
	n := order + 1
	he := &HexElement{
		props: ElementProperties{
			Name:       fmt.Sprintf("Lagrange Hexahedron Order %d", order),
			ShortName:  fmt.Sprintf("Hex%d", order),
			Type:       Hex,
			Order:      order,
			Np:         n * n * n,
			NFp:        n * n,
			NEp:        n,
			NVp:        8,
			NIp:        (n - 2) * (n - 2) * (n - 2),
			NFaces:     NumHexFaces,
			NEdges:     12,
			Dimensions: D3,
		},
		table: table,
	}
	he.geom = he.buildGeometry()
	return he, nil
}

func (he *HexElement) buildGeometry() (g ReferenceGeometry) {
	p := he.props.Order
	n := p + 1
	np := he.props.Np
	g.R, g.S, g.T = make([]float64, np), make([]float64, np), make([]float64, np)
	node := func(k, j, i int) int { return (k*n+j)*n + i }
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				id := node(k, j, i)
				g.R[id] = he.table.Nodes[i]
				g.S[id] = he.table.Nodes[j]
				g.T[id] = he.table.Nodes[k]
				if i > 0 && i < p && j > 0 && j < p && k > 0 && k < p {
					g.InteriorPoints = append(g.InteriorPoints, id)
				}
			}
		}
	}
	// box corner order: counter-clockwise bottom, then top
	g.VertexPoints = []int{
		node(0, 0, 0), node(0, 0, p), node(0, p, p), node(0, p, 0),
		node(p, 0, 0), node(p, 0, p), node(p, p, p), node(p, p, 0),
	}
	g.FacePoints = make([][]int, NumHexFaces)
	for f := 0; f < NumHexFaces; f++ {
		g.FacePoints[f] = make([]int, 0, n*n)
		for fj := 0; fj < n; fj++ {
			for fi := 0; fi < n; fi++ {
				k, j, i := FaceNode(f, p, fj, fi)
				g.FacePoints[f] = append(g.FacePoints[f], node(k, j, i))
			}
		}
	}
	return
}

func (he *HexElement) GetProperties() ElementProperties       { return he.props }
func (he *HexElement) GetReferenceGeometry() ReferenceGeometry { return he.geom }
func (he *HexElement) GetCoefficients() *Table                 { return he.table }

func (he *HexElement) Name() string                  { return he.props.Name }
func (he *HexElement) ShortName() string             { return he.props.ShortName }
func (he *HexElement) GeometryType() ElementGeometry { return he.props.Type }
func (he *HexElement) Order() int                    { return he.props.Order }
func (he *HexElement) Np() int                       { return he.props.Np }
func (he *HexElement) NFp() int                      { return he.props.NFp }
func (he *HexElement) NVp() int                      { return he.props.NVp }
func (he *HexElement) Dimensions() Dimensionality    { return he.props.Dimensions }
func (he *HexElement) R() []float64                  { return he.geom.R }
func (he *HexElement) S() []float64                  { return he.geom.S }
func (he *HexElement) T() []float64                  { return he.geom.T }
func (he *HexElement) VertexPoints() []int           { return he.geom.VertexPoints }
func (he *HexElement) FacePoints() [][]int           { return he.geom.FacePoints }
func (he *HexElement) Coefficients() *Table          { return he.table }

func (he *HexElement) String() string {
	return fmt.Sprintf("%s: Np=%d NFp=%d Nq=%d", he.props.Name, he.props.Np,
		he.props.NFp, he.table.NQ())
}
