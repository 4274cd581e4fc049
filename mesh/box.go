package mesh

import (
	"fmt"
	"sort"

	"github.com/notargets/hexfem/element"
	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/partitions"
	"github.com/sirupsen/logrus"
)

// Part names published by a BoxMesh.
const (
	PartBlock     = "block_1"
	PartBoundary  = "boundary"
	PartUniversal = "universal"
)

// FacePartNames is indexed by the element package face numbering.
var FacePartNames = [element.NumHexFaces]string{"zmin", "zmax", "xmin", "xmax", "ymin", "ymax"}

// BoxSpec describes an NX x NY x NZ block of order-p hexes over
// [0, Scale]^3 distributed over NumRanks ranks.
type BoxSpec struct {
	NX, NY, NZ int
	Scale      float64
	Order      int
	NumRanks   int
	Strategy   partitions.PartitionStrategy
	// Transform, when set, maps every node position after the uniform grid
	// is laid down. Used to build skewed and curved meshes.
	Transform func(x, y, z float64) (float64, float64, float64)
}

type boxGlobal struct {
	spec       BoxSpec
	el         *element.HexElement
	tab        *element.Table
	nI, nJ, nK int
	layout     *partitions.PartitionLayout
	nodeOwner  []int
	rowGID     []int64
	rowStart   []int64
}

// BoxMesh is one rank's view of a box. All ranks of a box share the global
// numbering built by BuildBox.
type BoxMesh struct {
	g    *boxGlobal
	rank int

	entities [3][]Entity
	index    [3]map[int64]MeshIndex
	parts    map[string]map[EntityRank][]Entity

	coords *NodeField
	gids   *gidField
	fields map[string]*NodeField
}

// BuildBox lays down the box and returns one mesh per rank.
func BuildBox(spec BoxSpec) ([]*BoxMesh, error) {
	if spec.NX < 1 || spec.NY < 1 || spec.NZ < 1 {
		return nil, errs.Configurationf("box dimensions must be positive, got %dx%dx%d",
			spec.NX, spec.NY, spec.NZ)
	}
	if spec.NumRanks < 1 {
		spec.NumRanks = 1
	}
	if spec.Scale == 0 {
		spec.Scale = 1
	}
	el, err := element.NewHexElement(spec.Order)
	if err != nil {
		return nil, err
	}
	p := spec.Order
	g := &boxGlobal{
		spec: spec,
		el:   el,
		tab:  el.Coefficients(),
		nI:   spec.NX*p + 1,
		nJ:   spec.NY*p + 1,
		nK:   spec.NZ*p + 1,
	}

	pb := &partitions.PartitionBuilder{
		Mesh:          g.connectivity(),
		NumPartitions: spec.NumRanks,
		Strategy:      spec.Strategy,
	}
	if g.layout, err = pb.BuildPartitions(); err != nil {
		return nil, fmt.Errorf("box partitioning: %w", err)
	}
	g.assignOwnership()

	meshes := make([]*BoxMesh, spec.NumRanks)
	for r := range meshes {
		meshes[r] = g.rankMesh(r)
	}
	logrus.Infof("built %dx%dx%d box of %s, %d nodes over %d ranks",
		spec.NX, spec.NY, spec.NZ, el.ShortName(), g.nI*g.nJ*g.nK, spec.NumRanks)
	return meshes, nil
}

func (g *boxGlobal) numElements() int { return g.spec.NX * g.spec.NY * g.spec.NZ }

func (g *boxGlobal) elemIJK(id int64) (ex, ey, ez int) {
	e0 := int(id - 1)
	ex = e0 % g.spec.NX
	ey = (e0 / g.spec.NX) % g.spec.NY
	ez = e0 / (g.spec.NX * g.spec.NY)
	return
}

func (g *boxGlobal) elemID(ex, ey, ez int) int64 {
	return int64(1 + ex + g.spec.NX*(ey+g.spec.NY*ez))
}

// nodeOrdinal is the 0-based global node number of element-local (k, j, i).
func (g *boxGlobal) nodeOrdinal(ex, ey, ez, k, j, i int) int {
	p := g.spec.Order
	return (ex*p + i) + g.nI*((ey*p+j)+g.nJ*(ez*p+k))
}

func (g *boxGlobal) connectivity() *partitions.MeshConnectivity {
	ne := g.numElements()
	eToE := make([][]int, ne)
	for k := 0; k < ne; k++ {
		ex, ey, ez := g.elemIJK(int64(k + 1))
		nbr := func(dx, dy, dz int) int {
			x, y, z := ex+dx, ey+dy, ez+dz
			if x < 0 || y < 0 || z < 0 || x >= g.spec.NX || y >= g.spec.NY || z >= g.spec.NZ {
				return -1
			}
			return int(g.elemID(x, y, z) - 1)
		}
		eToE[k] = []int{nbr(0, 0, -1), nbr(0, 0, 1), nbr(-1, 0, 0), nbr(1, 0, 0), nbr(0, -1, 0), nbr(0, 1, 0)}
	}
	return &partitions.MeshConnectivity{NumElements: ne, EToE: eToE}
}

// assignOwnership gives each node to the lowest rank touching it and numbers
// rows contiguously per owner in rank order.
func (g *boxGlobal) assignOwnership() {
	nn := g.nI * g.nJ * g.nK
	n := g.spec.Order + 1
	g.nodeOwner = make([]int, nn)
	for i := range g.nodeOwner {
		g.nodeOwner[i] = g.spec.NumRanks
	}
	for k := 0; k < g.numElements(); k++ {
		r := g.layout.EToP[k]
		ex, ey, ez := g.elemIJK(int64(k + 1))
		for kk := 0; kk < n; kk++ {
			for jj := 0; jj < n; jj++ {
				for ii := 0; ii < n; ii++ {
					o := g.nodeOrdinal(ex, ey, ez, kk, jj, ii)
					if r < g.nodeOwner[o] {
						g.nodeOwner[o] = r
					}
				}
			}
		}
	}
	g.rowGID = make([]int64, nn)
	g.rowStart = make([]int64, g.spec.NumRanks+1)
	var next int64
	for r := 0; r < g.spec.NumRanks; r++ {
		g.rowStart[r] = next
		for o, owner := range g.nodeOwner {
			if owner == r {
				g.rowGID[o] = next
				next++
			}
		}
	}
	g.rowStart[g.spec.NumRanks] = next
}

func (g *boxGlobal) position(o int) (x, y, z float64) {
	p := g.spec.Order
	I := o % g.nI
	J := (o / g.nI) % g.nJ
	K := o / (g.nI * g.nJ)
	coord := func(I, ne int) float64 {
		e := I / p
		if e >= ne {
			e = ne - 1
		}
		local := I - e*p
		h := g.spec.Scale / float64(ne)
		return h * (float64(e) + 0.5*(g.tab.Nodes[local]+1))
	}
	x, y, z = coord(I, g.spec.NX), coord(J, g.spec.NY), coord(K, g.spec.NZ)
	if g.spec.Transform != nil {
		x, y, z = g.spec.Transform(x, y, z)
	}
	return
}

func faceID(elemID int64, face int) int64 { return (elemID-1)*element.NumHexFaces + int64(face) + 1 }

func (g *boxGlobal) boundaryFaces(id int64) (faces []int) {
	ex, ey, ez := g.elemIJK(id)
	if ez == 0 {
		faces = append(faces, element.FaceZMin)
	}
	if ez == g.spec.NZ-1 {
		faces = append(faces, element.FaceZMax)
	}
	if ex == 0 {
		faces = append(faces, element.FaceXMin)
	}
	if ex == g.spec.NX-1 {
		faces = append(faces, element.FaceXMax)
	}
	if ey == 0 {
		faces = append(faces, element.FaceYMin)
	}
	if ey == g.spec.NY-1 {
		faces = append(faces, element.FaceYMax)
	}
	sort.Ints(faces)
	return
}

func (g *boxGlobal) elementNodeOrdinals(id int64) []int {
	n := g.spec.Order + 1
	ex, ey, ez := g.elemIJK(id)
	out := make([]int, 0, n*n*n)
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				out = append(out, g.nodeOrdinal(ex, ey, ez, k, j, i))
			}
		}
	}
	return out
}

func (g *boxGlobal) faceNodeOrdinals(id int64) []int {
	p := g.spec.Order
	n := p + 1
	face := int((id - 1) % element.NumHexFaces)
	elem := (id-1)/element.NumHexFaces + 1
	ex, ey, ez := g.elemIJK(elem)
	pts := g.el.FacePoints()[face]
	out := make([]int, 0, len(pts))
	for _, a := range pts {
		out = append(out, g.nodeOrdinal(ex, ey, ez, a/(n*n), (a/n)%n, a%n))
	}
	return out
}

func (g *boxGlobal) rankMesh(r int) *BoxMesh {
	m := &BoxMesh{
		g:      g,
		rank:   r,
		parts:  make(map[string]map[EntityRank][]Entity),
		fields: make(map[string]*NodeField),
	}
	for i := range m.index {
		m.index[i] = make(map[int64]MeshIndex)
	}

	part := g.layout.Partitions[r]
	nodeSet := make(map[int]bool)
	facesByDir := make([][]Entity, element.NumHexFaces)
	var allFaces []Entity
	for _, k := range part.Elements {
		id := int64(k + 1)
		m.add(Entity{Rank: ElementRank, ID: id})
		for _, o := range g.elementNodeOrdinals(id) {
			nodeSet[o] = true
		}
		for _, f := range g.boundaryFaces(id) {
			fe := Entity{Rank: FaceRank, ID: faceID(id, f)}
			m.add(fe)
			facesByDir[f] = append(facesByDir[f], fe)
			allFaces = append(allFaces, fe)
		}
	}
	ordinals := make([]int, 0, len(nodeSet))
	for o := range nodeSet {
		ordinals = append(ordinals, o)
	}
	sort.Ints(ordinals)

	m.coords = NewNodeField("coordinates", len(ordinals), 3)
	m.gids = &gidField{ids: make([]int64, len(ordinals)), valid: make([]bool, len(ordinals))}
	for _, o := range ordinals {
		idx := m.add(Entity{Rank: NodeRank, ID: int64(o + 1)})
		x, y, z := g.position(o)
		m.coords.Set(idx, 0, x)
		m.coords.Set(idx, 1, y)
		m.coords.Set(idx, 2, z)
		m.gids.ids[idx] = g.rowGID[o]
		m.gids.valid[idx] = true
	}

	m.parts[PartUniversal] = map[EntityRank][]Entity{
		ElementRank: m.entities[ElementRank],
		FaceRank:    m.entities[FaceRank],
		NodeRank:    m.entities[NodeRank],
	}
	m.parts[PartBlock] = map[EntityRank][]Entity{
		ElementRank: m.entities[ElementRank],
		NodeRank:    m.entities[NodeRank],
	}
	m.parts[PartBoundary] = m.facePart(allFaces)
	for f, name := range FacePartNames {
		m.parts[name] = m.facePart(facesByDir[f])
	}
	return m
}

func (m *BoxMesh) facePart(faces []Entity) map[EntityRank][]Entity {
	sort.Slice(faces, func(a, b int) bool { return faces[a].ID < faces[b].ID })
	nodeSet := make(map[int64]bool)
	for _, f := range faces {
		for _, o := range m.g.faceNodeOrdinals(f.ID) {
			nodeSet[int64(o+1)] = true
		}
	}
	nodes := make([]Entity, 0, len(nodeSet))
	for id := range nodeSet {
		nodes = append(nodes, Entity{Rank: NodeRank, ID: id})
	}
	sort.Slice(nodes, func(a, b int) bool { return nodes[a].ID < nodes[b].ID })
	return map[EntityRank][]Entity{FaceRank: faces, NodeRank: nodes}
}

func (m *BoxMesh) add(e Entity) MeshIndex {
	idx := MeshIndex(len(m.entities[e.Rank]))
	m.entities[e.Rank] = append(m.entities[e.Rank], e)
	m.index[e.Rank][e.ID] = idx
	return idx
}

func (m *BoxMesh) ParallelRank() int { return m.rank }
func (m *BoxMesh) NumRanks() int     { return m.g.spec.NumRanks }
func (m *BoxMesh) Order() int        { return m.g.spec.Order }
func (m *BoxMesh) Spec() BoxSpec     { return m.g.spec }

// Element is the reference hex every element of the box maps from
func (m *BoxMesh) Element() element.Element { return m.g.el }

// OwnedRowRange is the global row range owned by rank r.
func (m *BoxMesh) OwnedRowRange(r int) (begin, end int64) {
	return m.g.rowStart[r], m.g.rowStart[r+1]
}

// NumGlobalRows is the number of node rows across all ranks.
func (m *BoxMesh) NumGlobalRows() int64 { return m.g.rowStart[m.g.spec.NumRanks] }

// Select returns the part's entities of one rank, sorted by id
func (m *BoxMesh) Select(rank EntityRank, part string) ([]Entity, error) {
	p, ok := m.parts[part]
	if !ok {
		return nil, errs.Configurationf("unknown part %q", part)
	}
	out := make([]Entity, len(p[rank]))
	copy(out, p[rank])
	return out, nil
}

func (m *BoxMesh) Index(e Entity) MeshIndex {
	if idx, ok := m.index[e.Rank][e.ID]; ok {
		return idx
	}
	return InvalidIndex
}

func (m *BoxMesh) EntityAt(rank EntityRank, idx MeshIndex) Entity {
	return m.entities[rank][idx]
}

func (m *BoxMesh) NumLocal(rank EntityRank) int { return len(m.entities[rank]) }

func (m *BoxMesh) localNodes(ordinals []int) []MeshIndex {
	out := make([]MeshIndex, len(ordinals))
	for a, o := range ordinals {
		out[a] = m.Index(Entity{Rank: NodeRank, ID: int64(o + 1)})
	}
	return out
}

// ElementNodes lists an element's nodes in (k, j, i) order
func (m *BoxMesh) ElementNodes(e Entity) ([]MeshIndex, error) {
	if e.Rank != ElementRank || !m.Index(e).Valid() {
		return nil, errs.Inconsistencyf("element %d is not resident on rank %d", e.ID, m.rank)
	}
	return m.localNodes(m.g.elementNodeOrdinals(e.ID)), nil
}

// FaceNodes lists a face's nodes in (j, i) order, oriented outward
func (m *BoxMesh) FaceNodes(e Entity) ([]MeshIndex, error) {
	if e.Rank != FaceRank || !m.Index(e).Valid() {
		return nil, errs.Inconsistencyf("face %d is not resident on rank %d", e.ID, m.rank)
	}
	return m.localNodes(m.g.faceNodeOrdinals(e.ID)), nil
}

// Owner is the lowest rank touching the node
func (m *BoxMesh) Owner(idx MeshIndex) int {
	return m.g.nodeOwner[m.entities[NodeRank][idx].ID-1]
}

func (m *BoxMesh) Coordinates() Field      { return m.coords }
func (m *BoxMesh) GlobalIDs() GlobalIDField { return m.gids }

// AddField registers a zeroed node field.
func (m *BoxMesh) AddField(name string, components int) *NodeField {
	f := NewNodeField(name, m.NumLocal(NodeRank), components)
	m.fields[name] = f
	return f
}

func (m *BoxMesh) Field(name string) (Field, error) {
	if name == m.coords.Name() {
		return m.coords, nil
	}
	f, ok := m.fields[name]
	if !ok {
		return nil, errs.Configurationf("unknown field %q", name)
	}
	return f, nil
}

// SetGlobalID overrides the row id of a local node.
func (m *BoxMesh) SetGlobalID(idx MeshIndex, gid int64) {
	m.gids.ids[idx] = gid
	m.gids.valid[idx] = true
}

// ClearGlobalID removes the row id of a local node.
func (m *BoxMesh) ClearGlobalID(idx MeshIndex) {
	m.gids.valid[idx] = false
}
