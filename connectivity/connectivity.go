package connectivity

import (
	"fmt"

	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/mesh"
	"github.com/notargets/hexfem/simd"
)

// ElemTable maps (batch, k, j, i, lane) to a local node index. Entities are
// packed SimdLen to a batch in selection order; the unused lanes of the last
// batch repeat lane 0 so every lane always addresses a real node.
type ElemTable struct {
	N           int
	NumEntities int
	Entities    []mesh.Entity
	Nodes       []mesh.MeshIndex
}

func (t *ElemTable) Batches() int { return simd.NumBatches(t.NumEntities) }

func (t *ElemTable) idx(b, k, j, i, lane int) int {
	return (((b*t.N+k)*t.N+j)*t.N+i)*simd.SimdLen + lane
}

func (t *ElemTable) At(b, k, j, i, lane int) mesh.MeshIndex {
	return t.Nodes[t.idx(b, k, j, i, lane)]
}

func (t *ElemTable) ActiveLanes(b int) int { return simd.ActiveLanes(b, t.NumEntities) }

// Entity returns the element in lane of batch b. Padded lanes report false.
func (t *ElemTable) Entity(b, lane int) (mesh.Entity, bool) {
	e := b*simd.SimdLen + lane
	if lane >= t.ActiveLanes(b) {
		return mesh.Entity{}, false
	}
	return t.Entities[e], true
}

// FaceTable maps (batch, j, i, lane) to a local node index.
type FaceTable struct {
	N           int
	NumEntities int
	Entities    []mesh.Entity
	Nodes       []mesh.MeshIndex
}

func (t *FaceTable) Batches() int { return simd.NumBatches(t.NumEntities) }

func (t *FaceTable) idx(b, j, i, lane int) int {
	return ((b*t.N+j)*t.N+i)*simd.SimdLen + lane
}

func (t *FaceTable) At(b, j, i, lane int) mesh.MeshIndex { return t.Nodes[t.idx(b, j, i, lane)] }

func (t *FaceTable) ActiveLanes(b int) int { return simd.ActiveLanes(b, t.NumEntities) }

// Entity recovers the face in an active lane
func (t *FaceTable) Entity(b, lane int) (mesh.Entity, bool) {
	if lane >= t.ActiveLanes(b) {
		return mesh.Entity{}, false
	}
	return t.Entities[b*simd.SimdLen+lane], true
}

// NodeTable maps (batch, lane) to a local node index.
type NodeTable struct {
	NumEntities int
	Entities    []mesh.Entity
	Nodes       []mesh.MeshIndex
}

func (t *NodeTable) Batches() int { return simd.NumBatches(t.NumEntities) }

func (t *NodeTable) At(b, lane int) mesh.MeshIndex { return t.Nodes[b*simd.SimdLen+lane] }

func (t *NodeTable) ActiveLanes(b int) int { return simd.ActiveLanes(b, t.NumEntities) }

// BuildElemTable packs the elements of part.
func BuildElemTable(m mesh.Mesh, part string) (*ElemTable, error) {
	elems, err := m.Select(mesh.ElementRank, part)
	if err != nil {
		return nil, err
	}
	n := m.Order() + 1
	stencil := n * n * n
	t := &ElemTable{
		N:           n,
		NumEntities: len(elems),
		Entities:    elems,
		Nodes:       make([]mesh.MeshIndex, simd.NumBatches(len(elems))*stencil*simd.SimdLen),
	}
	if err := pack(t.Nodes, elems, stencil, m.ElementNodes); err != nil {
		return nil, fmt.Errorf("element table for %q: %w", part, err)
	}
	return t, nil
}

// BuildFaceTable packs the faces of part.
func BuildFaceTable(m mesh.Mesh, part string) (*FaceTable, error) {
	faces, err := m.Select(mesh.FaceRank, part)
	if err != nil {
		return nil, err
	}
	n := m.Order() + 1
	stencil := n * n
	t := &FaceTable{
		N:           n,
		NumEntities: len(faces),
		Entities:    faces,
		Nodes:       make([]mesh.MeshIndex, simd.NumBatches(len(faces))*stencil*simd.SimdLen),
	}
	if err := pack(t.Nodes, faces, stencil, m.FaceNodes); err != nil {
		return nil, fmt.Errorf("face table for %q: %w", part, err)
	}
	return t, nil
}

// BuildNodeTable packs the nodes of part.
func BuildNodeTable(m mesh.Mesh, part string) (*NodeTable, error) {
	nodes, err := m.Select(mesh.NodeRank, part)
	if err != nil {
		return nil, err
	}
	t := &NodeTable{
		NumEntities: len(nodes),
		Entities:    nodes,
		Nodes:       make([]mesh.MeshIndex, simd.NumBatches(len(nodes))*simd.SimdLen),
	}
	self := func(e mesh.Entity) ([]mesh.MeshIndex, error) {
		return []mesh.MeshIndex{m.Index(e)}, nil
	}
	if err := pack(t.Nodes, nodes, 1, self); err != nil {
		return nil, fmt.Errorf("node table for %q: %w", part, err)
	}
	return t, nil
}

// pack writes stencil-many node indices per entity into batch-major, lane
// fastest storage and replicates lane 0 into the lanes past the last entity.
func pack(dst []mesh.MeshIndex, ents []mesh.Entity, stencil int,
	nodesOf func(mesh.Entity) ([]mesh.MeshIndex, error)) error {
	nb := simd.NumBatches(len(ents))
	for b := 0; b < nb; b++ {
		base := b * stencil * simd.SimdLen
		active := simd.ActiveLanes(b, len(ents))
		for lane := 0; lane < active; lane++ {
			nodes, err := nodesOf(ents[b*simd.SimdLen+lane])
			if err != nil {
				return err
			}
			if len(nodes) != stencil {
				return errs.Configurationf("entity %d has %d nodes, expected %d",
					ents[b*simd.SimdLen+lane].ID, len(nodes), stencil)
			}
			for s, idx := range nodes {
				dst[base+s*simd.SimdLen+lane] = idx
			}
		}
		for lane := active; lane < simd.SimdLen; lane++ {
			for s := 0; s < stencil; s++ {
				dst[base+s*simd.SimdLen+lane] = dst[base+s*simd.SimdLen]
			}
		}
	}
	return nil
}
