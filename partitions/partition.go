package partitions

import (
	"fmt"
)

// Partition is the set of elements resident on one rank
type Partition struct {
	// Unique identifier for this partition, equal to the owning rank
	ID int

	// Element membership
	Elements    []int // Global element indices in this partition, ascending
	NumElements int   // Actual number of active elements
	MaxElements int   // Largest partition size across the layout
}

// PartitionLayout manages the complete mesh decomposition
type PartitionLayout struct {
	// All partitions in the mesh
	Partitions []Partition

	// Global sizing information
	KpartMax      int // max(NumElements) across all partitions
	TotalElements int // Sum of all actual elements across partitions
	NumPartitions int // Total number of partitions

	// Element to partition mapping
	EToP []int // Length TotalElements: element k belongs to partition EToP[k]
}

// GetPartition returns the partition containing element k
func (pl *PartitionLayout) GetPartition(elementID int) int {
	if elementID < 0 || elementID >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[elementID]
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	actualMax := 0
	total := 0
	for _, p := range pl.Partitions {
		if p.NumElements > actualMax {
			actualMax = p.NumElements
		}
		if p.MaxElements != pl.KpartMax {
			return fmt.Errorf("partition %d: MaxElements %d != KpartMax %d",
				p.ID, p.MaxElements, pl.KpartMax)
		}
		for _, e := range p.Elements {
			if pl.EToP[e] != p.ID {
				return fmt.Errorf("element %d listed in partition %d but EToP says %d",
					e, p.ID, pl.EToP[e])
			}
		}
		total += p.NumElements
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, pl.KpartMax)
	}
	if total != pl.TotalElements {
		return fmt.Errorf("partitions hold %d elements, expected %d", total, pl.TotalElements)
	}
	return nil
}

// PartitionMapping defines how local rows map to positions in a communication buffer
type PartitionMapping struct {
	PartitionID int

	// Indices within the partition's local data
	LocalIndices []int

	// Corresponding positions in send/recv buffer
	BufferIndices []int

	// Number of rows to transfer
	Count int
}

// RemotePartition describes traffic with another rank
type RemotePartition struct {
	Rank        int // Peer rank
	PartitionID int // Partition ID on the peer rank

	// Location in communication buffers, in rows
	SendOffset int
	SendCount  int
	RecvOffset int
	RecvCount  int
}

// PartitionBuffer holds one rank's send/recv plan for shared rows. Shared
// rows are scattered into SendBuffer per destination rank; received rows
// are gathered out of RecvBuffer into owned rows.
type PartitionBuffer struct {
	SendBuffer []float64
	RecvBuffer []float64

	// Scatter operation: local shared rows -> SendBuffer
	ScatterMappings []PartitionMapping

	// Gather operation: RecvBuffer -> local owned rows
	GatherMappings []PartitionMapping

	// Peer communication metadata
	RemotePartitions []RemotePartition

	SendBufferSize int
	RecvBufferSize int
}

// RequiresRemoteCommunication reports whether this rank talks to any peer
func (pb *PartitionBuffer) RequiresRemoteCommunication() bool {
	for _, rp := range pb.RemotePartitions {
		if rp.SendCount > 0 || rp.RecvCount > 0 {
			return true
		}
	}
	return false
}

// GetScatterIndices returns flattened index arrays across all destinations
func (pb *PartitionBuffer) GetScatterIndices() (localIndices, bufferIndices []int) {
	totalPoints := 0
	for _, m := range pb.ScatterMappings {
		totalPoints += len(m.LocalIndices)
	}

	localIndices = make([]int, totalPoints)
	bufferIndices = make([]int, totalPoints)

	offset := 0
	for _, m := range pb.ScatterMappings {
		copy(localIndices[offset:], m.LocalIndices)
		copy(bufferIndices[offset:], m.BufferIndices)
		offset += len(m.LocalIndices)
	}

	return localIndices, bufferIndices
}

// SizeBuffers sizes SendBuffer and RecvBuffer for rows numCols wide. Storage
// is kept when it is already large enough.
func (pb *PartitionBuffer) SizeBuffers(numCols int) {
	pb.SendBuffer = sizeBuffer(pb.SendBuffer, pb.SendBufferSize*numCols)
	pb.RecvBuffer = sizeBuffer(pb.RecvBuffer, pb.RecvBufferSize*numCols)
}

func sizeBuffer(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}

// SendRows is the part of SendBuffer holding m's rows. A mapping's buffer
// indices are consecutive.
func (pb *PartitionBuffer) SendRows(m PartitionMapping, numCols int) []float64 {
	return bufferRows(pb.SendBuffer, m, numCols)
}

// RecvRows is the part of RecvBuffer holding m's rows
func (pb *PartitionBuffer) RecvRows(m PartitionMapping, numCols int) []float64 {
	return bufferRows(pb.RecvBuffer, m, numCols)
}

func bufferRows(buf []float64, m PartitionMapping, numCols int) []float64 {
	if m.Count == 0 {
		return buf[:0]
	}
	first := m.BufferIndices[0]
	return buf[first*numCols : (first+m.Count)*numCols]
}

// ValidateCommunicationSymmetry verifies that if rank A sends n rows to rank
// B, then rank B expects to receive n rows from A.
func ValidateCommunicationSymmetry(buffers []*PartitionBuffer) error {
	sendMap := make(map[[2]int]int) // sender, receiver -> count
	for senderID, buf := range buffers {
		for _, rp := range buf.RemotePartitions {
			if rp.SendCount > 0 {
				sendMap[[2]int{senderID, rp.PartitionID}] = rp.SendCount
			}
		}
	}

	for receiverID, buf := range buffers {
		for _, rp := range buf.RemotePartitions {
			if rp.RecvCount == 0 {
				continue
			}
			key := [2]int{rp.PartitionID, receiverID}
			expectedCount, exists := sendMap[key]
			if !exists {
				return fmt.Errorf("partition %d expects to receive from %d, but %d doesn't send",
					receiverID, rp.PartitionID, rp.PartitionID)
			}
			if expectedCount != rp.RecvCount {
				return fmt.Errorf("count mismatch: partition %d sends %d to %d, but %d expects %d",
					rp.PartitionID, expectedCount, receiverID, receiverID, rp.RecvCount)
			}
			delete(sendMap, key)
		}
	}
	for key := range sendMap {
		return fmt.Errorf("partition %d sends to %d, which expects nothing", key[0], key[1])
	}

	return nil
}
