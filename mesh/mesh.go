package mesh

import "fmt"

// EntityRank is the topological dimension class of an entity.
type EntityRank int

const (
	NodeRank EntityRank = iota
	FaceRank
	ElementRank
)

func (r EntityRank) String() string {
	switch r {
	case NodeRank:
		return "node"
	case FaceRank:
		return "face"
	case ElementRank:
		return "element"
	}
	return fmt.Sprintf("rank(%d)", int(r))
}

// Entity is a handle into the mesh database. ID is the 1-based identifier
// that is unique across all ranks for a given EntityRank.
type Entity struct {
	Rank EntityRank
	ID   int64
}

// MeshIndex is the dense local ordinal of an entity on this rank.
type MeshIndex int32

// InvalidIndex marks a handle that has no local representation.
const InvalidIndex MeshIndex = -1

func (m MeshIndex) Valid() bool { return m >= 0 }

// Mesh is the read-only view of a distributed mesh snapshot that the
// evaluation and assembly packages consume. Implementations must not change
// between construction of a connectivity table and the end of an assembly
// cycle that uses it.
type Mesh interface {
	ParallelRank() int
	NumRanks() int
	// Order is the polynomial order of the element nodes
	Order() int

	// Select returns the local entities of the given rank in the named part,
	// sorted by ID. Unknown part names are configuration errors.
	Select(rank EntityRank, part string) ([]Entity, error)
	Index(e Entity) MeshIndex
	EntityAt(rank EntityRank, idx MeshIndex) Entity
	NumLocal(rank EntityRank) int

	// ElementNodes returns the (p+1)^3 node indices of an element in (k, j, i)
	// order with i fastest. FaceNodes returns the (p+1)^2 face nodes in (j, i)
	// order with the outward orientation.
	ElementNodes(e Entity) ([]MeshIndex, error)
	FaceNodes(e Entity) ([]MeshIndex, error)

	// Owner is the rank that owns a local node.
	Owner(idx MeshIndex) int

	Coordinates() Field
	GlobalIDs() GlobalIDField
	Field(name string) (Field, error)
}
