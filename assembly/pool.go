package assembly

import (
	"fmt"
	"sync"

	"github.com/notargets/gocca"
	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/runner"
	"github.com/notargets/hexfem/runner/builder"
	"github.com/sirupsen/logrus"
)

// MemoryPool is one device allocation lent to a single assembler at a time
// as scratch space. Leases carve it into aligned regions.
type MemoryPool struct {
	r     *runner.Runner
	name  string
	rank  int
	bytes int64

	mu    sync.Mutex
	lease *Lease
}

// Region is a byte window of the pool
type Region struct {
	Spec   builder.ArraySpec
	Offset int64
}

// Elem is the region's offset in values of its own type, the form kernels
// take it in
func (rg Region) Elem() int64 { return rg.Offset / builder.SizeOfType(rg.Spec.DataType) }

type Lease struct {
	pool    *MemoryPool
	owner   string
	regions []Region
	done    bool
}

// NewMemoryPool allocates bytes of device memory as the single workspace
// named name_pool_rank. Assemblers lease it one at a time.
func NewMemoryPool(r *runner.Runner, name string, bytes int64, rank int) (*MemoryPool, error) {
	if bytes <= 0 {
		return nil, errs.Configurationf("memory pool %s needs a positive size, got %d", name, bytes)
	}
	p := &MemoryPool{r: r, name: name, rank: rank, bytes: bytes}
	r.Malloc(p.bufferName(), bytes)
	logrus.Debugf("rank %d: memory pool %s holds %d bytes", rank, name, bytes)
	return p, nil
}

func (p *MemoryPool) bufferName() string { return fmt.Sprintf("%s_pool_%d", p.name, p.rank) }

// Memory is the pool's device buffer
func (p *MemoryPool) Memory() *gocca.OCCAMemory { return p.r.Memory(p.bufferName()) }

func (p *MemoryPool) Bytes() int64 { return p.bytes }

// MemoryInGBs is the device footprint of the workspace
func (p *MemoryPool) MemoryInGBs() float64 { return float64(p.bytes) / (1 << 30) }

// Owner names the current lease holder, empty when idle
func (p *MemoryPool) Owner() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lease == nil {
		return ""
	}
	return p.lease.owner
}

// Acquire leases the whole pool to owner, carved into specs. Only one lease
// can be outstanding.
func (p *MemoryPool) Acquire(owner string, specs ...builder.ArraySpec) (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lease != nil {
		return nil, errs.Configurationf("memory pool %s is leased to %s, %s cannot acquire it",
			p.name, p.lease.owner, owner)
	}
	offsets, total := builder.CarveRegions(specs)
	if total > p.bytes {
		return nil, errs.Overflowf("%s needs %d bytes of workspace, pool %s holds %d",
			owner, total, p.name, p.bytes)
	}
	l := &Lease{pool: p, owner: owner, regions: make([]Region, len(specs))}
	for i, s := range specs {
		l.regions[i] = Region{Spec: s, Offset: offsets[i]}
	}
	p.lease = l
	return l, nil
}

// Reset drops any outstanding lease
func (p *MemoryPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lease != nil {
		p.lease.done = true
		p.lease = nil
	}
}

// Free releases the device allocation. Outstanding leases become stale.
func (p *MemoryPool) Free() {
	p.Reset()
	p.r.Release(p.bufferName())
}

// Region is the i-th carved region, in the order the specs were given
func (l *Lease) Region(i int) Region { return l.regions[i] }

func (l *Lease) Owner() string { return l.owner }

// Release returns the pool. Releasing twice, or after a Reset, is a no-op.
func (l *Lease) Release() {
	p := l.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	if l.done {
		return
	}
	l.done = true
	if p.lease == l {
		p.lease = nil
	}
}

func entrySpecs(kr *runner.Runner, capacity int64) []builder.ArraySpec {
	return []builder.ArraySpec{
		{Name: "cols", Size: capacity, DataType: kr.IntType, Alignment: builder.CacheLineAlign},
		{Name: "vals", Size: capacity, DataType: kr.FloatType, Alignment: builder.CacheLineAlign},
	}
}

// MatrixWorkspaceBytes is the pool size a matrix assembler of the given
// entry capacity needs
func MatrixWorkspaceBytes(kr *runner.Runner, capacity int64) int64 {
	_, total := builder.CarveRegions(entrySpecs(kr, capacity))
	return total
}

// RhsWorkspaceBytes is the pool size an rhs assembler of the given entry
// capacity needs
func RhsWorkspaceBytes(kr *runner.Runner, capacity int64) int64 {
	_, total := builder.CarveRegions(entrySpecs(kr, capacity)[1:])
	return total
}
