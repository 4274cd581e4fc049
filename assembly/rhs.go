package assembly

import (
	"time"

	cfdutils "github.com/notargets/gocfd/utils"
	"github.com/notargets/hexfem/errs"
	"github.com/notargets/hexfem/rowmap"
	"github.com/notargets/hexfem/runner"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// RhsAssembler sums per-row contribution segments into a multi-vector with
// one row per local row, owned rows first.
type RhsAssembler struct {
	*base
	numCols int
	// nil when the rank has no rows
	host *mat.Dense
}

// NewRhsAssembler sizes a NumColumns wide rhs over rows with the entry layout
// rowStart.
func NewRhsAssembler(kr *runner.Runner, pool *MemoryPool, name string, rows *rowmap.RowMap,
	rowStart []int64, cfg Config) (*RhsAssembler, error) {
	b, err := newBase(kr, pool, name, rows, rowStart, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.NumColumns < 0 {
		return nil, errs.Configurationf("assembler %s: %d rhs columns", name, cfg.NumColumns)
	}
	numCols := cfg.NumColumns
	if numCols == 0 {
		numCols = 1
	}
	if err = buildKernels(kr, kernelSumRows); err != nil {
		return nil, err
	}
	n := rows.NumRows()
	b.malloc("rhs", int64(n*kr.GetFloatSize()))
	ra := &RhsAssembler{base: b, numCols: numCols}
	if n > 0 {
		ra.host = mat.NewDense(n, numCols, nil)
	}
	return ra, nil
}

func (ra *RhsAssembler) NumColumns() int { return ra.numCols }

// Assemble fills column 0 with the sum of each row's segment of vals. There
// is no unused-slot marker for vectors: every value in a segment is added, so
// unused slots must hold zero, as operators.NewEntries leaves them.
func (ra *RhsAssembler) Assemble(vals []float64) error { return ra.assemble(vals, 0) }

// AssembleColumn assembles column col of an entries x NumColumns block of
// contributions into column col of the rhs
func (ra *RhsAssembler) AssembleColumn(data *mat.Dense, col int) error {
	_, c := data.Dims()
	if col < 0 || col >= ra.numCols || col >= c {
		return errs.Configurationf("assembler %s: column %d of %d (data has %d)", ra.name, col, ra.numCols, c)
	}
	return ra.assemble(mat.Col(nil, col, data), col)
}

func (ra *RhsAssembler) assemble(vals []float64, col int) error {
	if col >= ra.numCols {
		return errs.Configurationf("assembler %s: column %d of %d", ra.name, col, ra.numCols)
	}
	if err := ra.checkEntries(len(vals)); err != nil {
		return err
	}
	n := ra.NumRows()
	need := ra.rowStart[n]
	if cfdutils.IsNan(vals[:need]) {
		logrus.Warnf("assembler %s: NaN in contributions", ra.name)
	}
	lease, err := ra.acquire(true)
	if err != nil {
		return err
	}
	defer lease.Release()

	kr := ra.kr
	start := time.Now()
	ws := ra.pool.Memory()
	valsR := lease.Region(0)
	kr.UploadReals(ws, vals[:need], valsR.Offset)
	ra.since(&ra.timings.DeviceTransfer, start)
	if n > 0 {
		out := kr.Memory(ra.bufferName("rhs"))
		if err = kr.RunKernel(kernelSumRows, kr.Int(int64(n)), kr.Memory(ra.bufferName("rowStart")),
			ws, kr.Int(valsR.Elem()), out); err != nil {
			return err
		}
		t := time.Now()
		ra.host.SetCol(col, kr.DownloadReals(out, n, 0))
		ra.since(&ra.timings.HostTransfer, t)
	}
	ra.since(&ra.timings.Assemble, start)
	ra.timings.Count++
	return nil
}

// RowIndices are the global rows of the host mirror
func (ra *RhsAssembler) RowIndices() []int64 { return ra.rows.Global }

// HostRhs is every local row, nil for a rank without rows
func (ra *RhsAssembler) HostRhs() *mat.Dense { return ra.host }

// HostOwnedRhs views the owned rows, nil when there are none
func (ra *RhsAssembler) HostOwnedRhs() *mat.Dense {
	if ra.NumOwnedRows() == 0 {
		return nil
	}
	return ra.host.Slice(0, ra.NumOwnedRows(), 0, ra.numCols).(*mat.Dense)
}

// HostSharedRhs views the shared rows, nil when there are none
func (ra *RhsAssembler) HostSharedRhs() *mat.Dense {
	if !ra.HasShared() {
		return nil
	}
	return ra.host.Slice(ra.NumOwnedRows(), ra.NumRows(), 0, ra.numCols).(*mat.Dense)
}
