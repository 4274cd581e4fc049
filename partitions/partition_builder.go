package partitions

import (
	"fmt"
	"math"
	"strings"

	metis "github.com/notargets/go-metis"
	"github.com/notargets/gocfd/utils"
	"github.com/sirupsen/logrus"
)

// PartitionBuilder distributes the elements of a mesh over ranks
type PartitionBuilder struct {
	// Mesh connectivity
	Mesh *MeshConnectivity

	NumPartitions int
	MaxImbalance  float64 // Acceptable load imbalance for graph partitioning, e.g. 1.05
	Strategy      PartitionStrategy
}

// MeshConnectivity provides the mesh topology needed for partitioning
type MeshConnectivity struct {
	NumElements int

	// Element-to-element connectivity through faces, -1 on the boundary
	EToE [][]int
}

// PartitionStrategy defines how elements are grouped
type PartitionStrategy int

const (
	// Simple strategies
	BlockPartition PartitionStrategy = iota // Consecutive elements
	RoundRobin                              // Distribute cyclically

	// Graph-based strategies
	GraphPartition // METIS k-way on the element dual graph
)

func (s PartitionStrategy) String() string {
	switch s {
	case BlockPartition:
		return "block"
	case RoundRobin:
		return "roundrobin"
	case GraphPartition:
		return "graph"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy accepts the names printed by PartitionStrategy.String
func ParseStrategy(name string) (PartitionStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "block":
		return BlockPartition, nil
	case "roundrobin", "round_robin":
		return RoundRobin, nil
	case "graph", "metis":
		return GraphPartition, nil
	}
	return 0, fmt.Errorf("unknown partition strategy %q", name)
}

// BuildPartitions creates a partition layout from mesh connectivity
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	numPartitions := pb.NumPartitions
	if numPartitions < 1 {
		numPartitions = 1
	}

	eToP, err := pb.partitionElements(numPartitions)
	if err != nil {
		return nil, err
	}

	partitions := pb.createPartitions(eToP, numPartitions)

	kpartMax := pb.calculateKpartMax(partitions)
	for i := range partitions {
		partitions[i].MaxElements = kpartMax
	}

	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      kpartMax,
		TotalElements: pb.Mesh.NumElements,
		NumPartitions: numPartitions,
		EToP:          eToP,
	}

	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}

	stats := layout.PartitionStatistics()
	logrus.WithFields(logrus.Fields{
		"strategy":  pb.Strategy,
		"parts":     stats.NumPartitions,
		"min":       stats.MinElements,
		"max":       stats.MaxElements,
		"imbalance": fmt.Sprintf("%.3f", stats.Imbalance),
	}).Debug("partitioned mesh")

	return layout, nil
}

// partitionElements assigns elements to partitions
func (pb *PartitionBuilder) partitionElements(numPartitions int) ([]int, error) {
	ne := pb.Mesh.NumElements
	eToP := make([]int, ne)

	switch pb.Strategy {
	case RoundRobin:
		for i := 0; i < ne; i++ {
			eToP[i] = i % numPartitions
		}

	case GraphPartition:
		if numPartitions == 1 || ne <= numPartitions {
			return pb.partitionWithStrategy(BlockPartition, numPartitions)
		}
		return pb.partitionGraph(numPartitions)

	default:
		pm := utils.NewPartitionMap(numPartitions, ne)
		for np := 0; np < numPartitions; np++ {
			kMin, kMax := pm.GetBucketRange(np)
			for k := kMin; k < kMax; k++ {
				eToP[k] = np
			}
		}
	}

	return eToP, nil
}

// partitionWithStrategy recursively applies a different strategy
func (pb *PartitionBuilder) partitionWithStrategy(strategy PartitionStrategy, numPartitions int) ([]int, error) {
	oldStrategy := pb.Strategy
	pb.Strategy = strategy
	defer func() { pb.Strategy = oldStrategy }()
	return pb.partitionElements(numPartitions)
}

func (pb *PartitionBuilder) partitionGraph(numPartitions int) ([]int, error) {
	xadj, adjncy := pb.buildMetisGraph()

	opts := make([]int32, metis.NoOptions)
	if err := metis.SetDefaultOptions(opts); err != nil {
		return nil, fmt.Errorf("failed to set METIS options: %w", err)
	}
	// Shared rows are what gets exported, so minimize communication volume
	opts[metis.OptionObjType] = metis.ObjTypeVol

	imbalance := pb.MaxImbalance
	if imbalance <= 1 {
		imbalance = 1.05
	}
	ubvec := []float32{float32(imbalance)}

	part, objval, err := metis.PartGraphKwayWeighted(
		xadj, adjncy, nil, nil,
		int32(numPartitions), nil, ubvec, opts,
	)
	if err != nil {
		return nil, fmt.Errorf("METIS partitioning failed: %w", err)
	}
	logrus.Debugf("METIS k-way: %d parts, communication volume %d", numPartitions, objval)

	eToP := make([]int, pb.Mesh.NumElements)
	for i := range eToP {
		eToP[i] = int(part[i])
	}
	return eToP, nil
}

// buildMetisGraph converts face adjacency to CSR graph form
func (pb *PartitionBuilder) buildMetisGraph() (xadj, adjncy []int32) {
	ne := pb.Mesh.NumElements
	xadj = make([]int32, ne+1)
	adjncy = make([]int32, 0, 6*ne)
	for elem := 0; elem < ne; elem++ {
		for _, nbr := range pb.Mesh.EToE[elem] {
			if nbr >= 0 && nbr != elem {
				adjncy = append(adjncy, int32(nbr))
			}
		}
		xadj[elem+1] = int32(len(adjncy))
	}
	return
}

// createPartitions builds partition structures from element assignments
func (pb *PartitionBuilder) createPartitions(eToP []int, numPartitions int) []Partition {
	partitions := make([]Partition, numPartitions)
	for i := range partitions {
		partitions[i] = Partition{
			ID:       i,
			Elements: make([]int, 0),
		}
	}

	for elem, part := range eToP {
		partitions[part].Elements = append(partitions[part].Elements, elem)
		partitions[part].NumElements++
	}

	return partitions
}

// calculateKpartMax finds maximum elements across all partitions
func (pb *PartitionBuilder) calculateKpartMax(partitions []Partition) int {
	kpartMax := 0
	for _, p := range partitions {
		if p.NumElements > kpartMax {
			kpartMax = p.NumElements
		}
	}
	return kpartMax
}

// PartitionStatistics computes load balance metrics
func (layout *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions: layout.NumPartitions,
		MinElements:   math.MaxInt32,
		MaxElements:   0,
		AvgElements:   float64(layout.TotalElements) / float64(layout.NumPartitions),
	}

	for _, p := range layout.Partitions {
		if p.NumElements < stats.MinElements {
			stats.MinElements = p.NumElements
		}
		if p.NumElements > stats.MaxElements {
			stats.MaxElements = p.NumElements
		}
	}

	if stats.AvgElements > 0 {
		stats.Imbalance = float64(stats.MaxElements) / stats.AvgElements
	}

	return stats
}

type PartitionStats struct {
	NumPartitions int
	MinElements   int
	MaxElements   int
	AvgElements   float64
	Imbalance     float64 // MaxElements / AvgElements
}
