package assembly

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/notargets/gocca"
	cfdutils "github.com/notargets/gocfd/utils"
	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/rowmap"
	"github.com/notargets/hexfem/runner"
	"github.com/notargets/hexfem/runner/builder"
	"github.com/sirupsen/logrus"
)

// Config sizes an assembler
type Config struct {
	// Capacity sizes the entry workspace and must cover the layout's entry
	// count. Zero means exactly that count. Assemble always takes exactly the
	// layout's entries, so a larger capacity only reserves room.
	Capacity int64
	// NumColumns is the width of an rhs multi-vector, default 1
	NumColumns int
	// DisableTiming leaves the Timings durations at zero, Count still advances
	DisableTiming bool
}

// Timings accumulate over the life of an assembler
type Timings struct {
	Assemble       time.Duration
	DeviceTransfer time.Duration
	HostTransfer   time.Duration
	Count          int
}

func (t Timings) String() string {
	return fmt.Sprintf("%d assembles in %v, device transfer %v, host transfer %v",
		t.Count, t.Assemble, t.DeviceTransfer, t.HostTransfer)
}

// base holds what the matrix and rhs assemblers share
type base struct {
	kr       *runner.Runner
	pool     *MemoryPool
	name     string
	rows     *rowmap.RowMap
	rowStart []int64
	capacity int64
	timed    bool
	timings  Timings
	err      error
	buffers  []string
}

func newBase(kr *runner.Runner, pool *MemoryPool, name string, rows *rowmap.RowMap,
	rowStart []int64, cfg Config) (*base, error) {
	if kr == nil || pool == nil || rows == nil {
		return nil, errs.Configurationf("assembler %s needs a runner, a memory pool and a row map", name)
	}
	n := rows.NumRows()
	if len(rowStart) != n+1 || rowStart[0] != 0 {
		return nil, errs.Configurationf("assembler %s: row starts must have %d entries from 0, got %d",
			name, n+1, len(rowStart))
	}
	for r := 0; r < n; r++ {
		if rowStart[r+1] < rowStart[r] {
			return nil, errs.Configurationf("assembler %s: row starts decrease at row %d", name, r)
		}
	}
	if cfg.Capacity < 0 {
		return nil, errs.Configurationf("assembler %s: negative capacity %d", name, cfg.Capacity)
	}
	b := &base{
		kr:       kr,
		pool:     pool,
		name:     name,
		rows:     rows,
		rowStart: append([]int64(nil), rowStart...),
		capacity: cfg.Capacity,
		timed:    !cfg.DisableTiming,
	}
	if b.capacity == 0 {
		b.capacity = rowStart[n]
	}
	mem := b.malloc("rowStart", int64((n+1)*kr.GetIntSize()))
	kr.UploadInts(mem, b.rowStart, 0)
	return b, nil
}

// since adds the time elapsed from start to d when timing is on
func (b *base) since(d *time.Duration, start time.Time) {
	if b.timed {
		*d += time.Since(start)
	}
}

func (b *base) bufferName(what string) string { return b.name + "_" + what }

func (b *base) malloc(what string, bytes int64) *gocca.OCCAMemory {
	name := b.bufferName(what)
	b.buffers = append(b.buffers, name)
	return b.kr.Malloc(name, bytes)
}

func (b *base) poison(err error) error {
	b.err = err
	logrus.Warnf("assembler %s disabled: %v", b.name, err)
	return err
}

// checkEntries validates an Assemble call. Overflow poisons the assembler.
// Any count other than the laid out one is refused, entries past the last row
// segment would otherwise never reach the device.
func (b *base) checkEntries(numEntries int) error {
	if b.err != nil {
		return b.err
	}
	need := b.rowStart[b.rows.NumRows()]
	if int64(numEntries) > b.capacity || need > b.capacity {
		return b.poison(errs.Overflowf("assembler %s: %d entries (%d laid out) exceed capacity %d",
			b.name, numEntries, need, b.capacity))
	}
	if int64(numEntries) != need {
		return errs.Configurationf("assembler %s: %d entries given, row layout has %d",
			b.name, numEntries, need)
	}
	return nil
}

func (b *base) acquire(rhsOnly bool) (*Lease, error) {
	specs := entrySpecs(b.kr, b.capacity)
	if rhsOnly {
		specs = specs[1:]
	}
	lease, err := b.pool.Acquire(b.name, specs...)
	if err != nil {
		if errors.Is(err, errs.ErrWorkspaceOverflow) {
			return nil, b.poison(err)
		}
		return nil, err
	}
	return lease, nil
}

func (b *base) NumRows() int       { return b.rows.NumRows() }
func (b *base) NumOwnedRows() int  { return b.rows.NumOwned() }
func (b *base) NumSharedRows() int { return b.rows.NumShared() }
func (b *base) HasShared() bool    { return b.rows.NumShared() > 0 }
func (b *base) Timings() Timings   { return b.timings }

// Err is the error that disabled the assembler, nil while healthy
func (b *base) Err() error { return b.err }

// MemoryInGBs is the device memory held by the assembler, pool excluded
func (b *base) MemoryInGBs() float64 {
	var total int64
	for _, name := range b.buffers {
		total += b.kr.Bytes(name)
	}
	return float64(total) / (1 << 30)
}

// DeviceMemoryInGBs reports the free and total memory of the device the
// assembler runs on. Host modes without a memory limit report zero for both.
func (b *base) DeviceMemoryInGBs() (free, total float64) {
	size, used := b.kr.Device.MemorySize(), b.kr.Device.MemoryAllocated()
	if size <= 0 {
		return 0, 0
	}
	total = float64(size) / (1 << 30)
	if used < size {
		free = float64(size-used) / (1 << 30)
	}
	return free, total
}

// Free releases the assembler buffers and logs its timing summary
func (b *base) Free() {
	logrus.WithFields(logrus.Fields{
		"rank":    b.rows.Rank,
		"rows":    b.NumRows(),
		"shared":  b.NumSharedRows(),
		"memGB":   fmt.Sprintf("%.6f", b.MemoryInGBs()),
		"host":    cfdutils.GetMemUsage(),
		"timings": b.timings.String(),
	}).Infof("assembler %s released", b.name)
	for _, name := range b.buffers {
		b.kr.Release(name)
	}
	b.buffers = nil
}

// MatrixAssembler merges (row, column, value) contributions into CSR rows on
// the device. Each local row's entries occupy a fixed segment of the entry
// workspace; rows are sorted and reduced independently so results do not
// depend on scheduling.
type MatrixAssembler struct {
	*base
	numGlobalCols int64
	rowPtr        []int64

	host, hostOwned, hostShared *CSR
}

// NewMatrixAssembler sizes the device buffers for rows and the entry layout
// rowStart. Column ids must fit the runner's index width.
func NewMatrixAssembler(kr *runner.Runner, pool *MemoryPool, name string, rows *rowmap.RowMap,
	rowStart []int64, numGlobalCols int64, cfg Config) (*MatrixAssembler, error) {
	if numGlobalCols < 1 {
		return nil, errs.Configurationf("assembler %s: %d global columns", name, numGlobalCols)
	}
	if kr != nil && kr.IntType == builder.INT32 && numGlobalCols > math.MaxInt32 {
		return nil, errs.Configurationf("assembler %s: %d global columns overflow 32 bit indices",
			name, numGlobalCols)
	}
	b, err := newBase(kr, pool, name, rows, rowStart, cfg)
	if err != nil {
		return nil, err
	}
	if err = buildKernels(kr, kernelSortReduce, kernelScan, kernelCompact); err != nil {
		return nil, err
	}
	n := rows.NumRows()
	is, fs := int64(kr.GetIntSize()), int64(kr.GetFloatSize())
	b.malloc("rowNnz", int64(n)*is)
	b.malloc("rowPtr", int64(n+1)*is)
	b.malloc("colIdx", b.capacity*is)
	b.malloc("values", b.capacity*fs)
	logrus.Debugf("matrix assembler %s: %d rows (%d shared), capacity %d", name, n, rows.NumShared(), b.capacity)
	return &MatrixAssembler{base: b, numGlobalCols: numGlobalCols}, nil
}

func (a *MatrixAssembler) mem(what string) interface{} { return a.kr.Memory(a.bufferName(what)) }

// Assemble replaces the assembled matrix with the reduction of cols/vals,
// laid out by row segments. Column -1 marks an unused slot; any other column
// outside [0, numGlobalCols) is an inconsistency.
func (a *MatrixAssembler) Assemble(cols []int64, vals []float64) error {
	if len(cols) != len(vals) {
		return errs.Configurationf("assembler %s: %d columns for %d values", a.name, len(cols), len(vals))
	}
	if err := a.checkEntries(len(cols)); err != nil {
		return err
	}
	n := a.NumRows()
	need := a.rowStart[n]
	for i, c := range cols {
		if c < -1 || c >= a.numGlobalCols {
			return errs.Inconsistencyf("assembler %s: entry %d has column %d of %d",
				a.name, i, c, a.numGlobalCols)
		}
	}
	if cfdutils.IsNan(vals[:need]) {
		logrus.Warnf("assembler %s: NaN in contributions", a.name)
	}
	lease, err := a.acquire(false)
	if err != nil {
		return err
	}
	defer lease.Release()

	kr := a.kr
	start := time.Now()
	ws := a.pool.Memory()
	colsR, valsR := lease.Region(0), lease.Region(1)
	kr.UploadInts(ws, cols[:need], colsR.Offset)
	kr.UploadReals(ws, vals[:need], valsR.Offset)
	a.since(&a.timings.DeviceTransfer, start)

	a.rowPtr = make([]int64, n+1)
	if n > 0 {
		nr := kr.Int(int64(n))
		if err = kr.RunKernel(kernelSortReduce, nr, a.mem("rowStart"),
			ws, kr.Int(colsR.Elem()), ws, kr.Int(valsR.Elem()), a.mem("rowNnz")); err != nil {
			return err
		}
		if err = kr.RunKernel(kernelScan, nr, a.mem("rowNnz"), a.mem("rowPtr")); err != nil {
			return err
		}
		if err = kr.RunKernel(kernelCompact, nr, a.mem("rowStart"), a.mem("rowPtr"),
			ws, kr.Int(colsR.Elem()), ws, kr.Int(valsR.Elem()), a.mem("colIdx"), a.mem("values")); err != nil {
			return err
		}
		t := time.Now()
		a.rowPtr = kr.DownloadInts(kr.Memory(a.bufferName("rowPtr")), n+1, 0)
		a.since(&a.timings.HostTransfer, t)
	}
	a.host, a.hostOwned, a.hostShared = nil, nil, nil
	a.since(&a.timings.Assemble, start)
	a.timings.Count++
	return nil
}

func (a *MatrixAssembler) assembled() error {
	if a.err != nil {
		return a.err
	}
	if a.rowPtr == nil {
		return errs.Configurationf("assembler %s has not assembled", a.name)
	}
	return nil
}

// NumNonzeros counts entries of the last assembly, zero before the first
func (a *MatrixAssembler) NumNonzeros() int64 {
	if a.rowPtr == nil {
		return 0
	}
	return a.rowPtr[a.NumRows()]
}

func (a *MatrixAssembler) NumOwnedNonzeros() int64 {
	if a.rowPtr == nil {
		return 0
	}
	return a.rowPtr[a.NumOwnedRows()]
}

func (a *MatrixAssembler) NumSharedNonzeros() int64 {
	return a.NumNonzeros() - a.NumOwnedNonzeros()
}

// copyRows downloads local rows [lo, hi)
func (a *MatrixAssembler) copyRows(lo, hi int) (*CSR, error) {
	if err := a.assembled(); err != nil {
		return nil, err
	}
	start := time.Now()
	s, e := a.rowPtr[lo], a.rowPtr[hi]
	kr := a.kr
	is, fs := int64(kr.GetIntSize()), int64(kr.GetFloatSize())
	c := &CSR{
		NumRows:    hi - lo,
		RowIndices: append([]int64(nil), a.rows.Global[lo:hi]...),
		RowPtr:     make([]int64, hi-lo+1),
		ColIndices: kr.DownloadInts(kr.Memory(a.bufferName("colIdx")), int(e-s), s*is),
		Values:     kr.DownloadReals(kr.Memory(a.bufferName("values")), int(e-s), s*fs),
	}
	for r := lo; r <= hi; r++ {
		c.RowPtr[r-lo] = a.rowPtr[r] - s
	}
	a.since(&a.timings.HostTransfer, start)
	return c, nil
}

// CopyCSRMatrixToHost refreshes the host mirror of every local row
func (a *MatrixAssembler) CopyCSRMatrixToHost() (*CSR, error) {
	c, err := a.copyRows(0, a.NumRows())
	if err == nil {
		a.host = c
	}
	return c, err
}

// CopyOwnedCSRMatrixToHost refreshes the host mirror of the owned rows
func (a *MatrixAssembler) CopyOwnedCSRMatrixToHost() (*CSR, error) {
	c, err := a.copyRows(0, a.NumOwnedRows())
	if err == nil {
		a.hostOwned = c
	}
	return c, err
}

// CopySharedCSRMatrixToHost refreshes the host mirror of the shared rows
func (a *MatrixAssembler) CopySharedCSRMatrixToHost() (*CSR, error) {
	c, err := a.copyRows(a.NumOwnedRows(), a.NumRows())
	if err == nil {
		a.hostShared = c
	}
	return c, err
}

// Host mirrors from the last copy, nil when stale or never copied
func (a *MatrixAssembler) HostCSR() *CSR       { return a.host }
func (a *MatrixAssembler) HostOwnedCSR() *CSR  { return a.hostOwned }
func (a *MatrixAssembler) HostSharedCSR() *CSR { return a.hostShared }
