package exchange

import (
	"fmt"
	"sort"

	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/partitions"
	"github.com/notargets/hexfem/rowmap"
	"github.com/sirupsen/logrus"
)

// Plan is one rank's part of the shared-row exchange. Shared rows are sent
// to their owners; owners add what they receive into their owned rows.
// Peers are visited in ascending rank order on both sides.
type Plan struct {
	Rank   int
	Rows   *rowmap.RowMap
	Buffer *partitions.PartitionBuffer
}

// BuildPlans derives every rank's plan from all ranks' row maps
func BuildPlans(maps []*rowmap.RowMap) ([]*Plan, error) {
	if _, err := rowmap.Validate(maps); err != nil {
		return nil, err
	}
	n := len(maps)
	// sends[s][o]: local rows of s owned by o, ascending by global id
	sends := make([]map[int][]int, n)
	for s, rm := range maps {
		sends[s] = make(map[int][]int)
		for lid := rm.NumOwned(); lid < rm.NumRows(); lid++ {
			o := rm.Owner[lid]
			sends[s][o] = append(sends[s][o], lid)
		}
	}

	plans := make([]*Plan, n)
	buffers := make([]*partitions.PartitionBuffer, n)
	for r, rm := range maps {
		pb := &partitions.PartitionBuffer{}
		peers := make(map[int]*partitions.RemotePartition)
		peer := func(p int) *partitions.RemotePartition {
			if rp, ok := peers[p]; ok {
				return rp
			}
			rp := &partitions.RemotePartition{Rank: p, PartitionID: p}
			peers[p] = rp
			return rp
		}

		for _, o := range sortedKeys(sends[r]) {
			lids := sends[r][o]
			m := partitions.PartitionMapping{PartitionID: o, LocalIndices: lids, Count: len(lids)}
			m.BufferIndices = make([]int, len(lids))
			rp := peer(o)
			rp.SendOffset, rp.SendCount = pb.SendBufferSize, len(lids)
			for i := range lids {
				m.BufferIndices[i] = pb.SendBufferSize + i
			}
			pb.SendBufferSize += len(lids)
			pb.ScatterMappings = append(pb.ScatterMappings, m)
		}

		for s := 0; s < n; s++ {
			lids, ok := sends[s][r]
			if !ok || s == r {
				continue
			}
			m := partitions.PartitionMapping{PartitionID: s, Count: len(lids)}
			rp := peer(s)
			rp.RecvOffset, rp.RecvCount = pb.RecvBufferSize, len(lids)
			for i, slid := range lids {
				gid := maps[s].Global[slid]
				lid, ok := rm.LocalOf(gid)
				if !ok || lid >= rm.NumOwned() {
					return nil, errs.Inconsistencyf("rank %d shares row %d with rank %d, which does not hold it as owned",
						s, gid, r)
				}
				m.LocalIndices = append(m.LocalIndices, lid)
				m.BufferIndices = append(m.BufferIndices, pb.RecvBufferSize+i)
			}
			pb.RecvBufferSize += len(lids)
			pb.GatherMappings = append(pb.GatherMappings, m)
		}

		for _, p := range sortedKeys(peers) {
			pb.RemotePartitions = append(pb.RemotePartitions, *peers[p])
		}
		buffers[r] = pb
		plans[r] = &Plan{Rank: r, Rows: rm, Buffer: pb}
	}
	if err := partitions.ValidateCommunicationSymmetry(buffers); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConnectivityInconsistency, err)
	}
	for _, p := range plans {
		logrus.Debugf("rank %d exchange: sends %d rows, receives %d rows, %d peers",
			p.Rank, p.Buffer.SendBufferSize, p.Buffer.RecvBufferSize, len(p.Buffer.RemotePartitions))
	}
	return plans, nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
