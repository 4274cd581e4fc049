package exchange

import (
	"context"
	"sort"

	"github.com/notargets/hexfem/assembly"
	"github.com/notargets/hexfem/errs"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Mailbox connects in-process ranks with one buffered channel per ordered
// pair of ranks
type Mailbox struct {
	ch [][]chan interface{}
}

// NewMailbox connects numRanks ranks
func NewMailbox(numRanks int) *Mailbox {
	mb := &Mailbox{ch: make([][]chan interface{}, numRanks)}
	for from := range mb.ch {
		mb.ch[from] = make([]chan interface{}, numRanks)
		for to := range mb.ch[from] {
			mb.ch[from][to] = make(chan interface{}, 1)
		}
	}
	return mb
}

// Send blocks until msg is queued for rank to or ctx ends
func (mb *Mailbox) Send(ctx context.Context, from, to int, msg interface{}) error {
	select {
	case mb.ch[from][to] <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv blocks until a message from rank from arrives or ctx ends
func (mb *Mailbox) Recv(ctx context.Context, from, to int) (interface{}, error) {
	select {
	case msg := <-mb.ch[from][to]:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RunRanks runs fn for every rank concurrently and returns the first error.
// The context handed to fn is cancelled once any rank fails.
func RunRanks(ctx context.Context, numRanks int, fn func(ctx context.Context, rank int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < numRanks; r++ {
		g.Go(func() error { return fn(gctx, r) })
	}
	return g.Wait()
}

// Exporter moves shared-row contributions to their owners
type Exporter struct {
	plan *Plan
	mb   *Mailbox
}

func NewExporter(plan *Plan, mb *Mailbox) *Exporter { return &Exporter{plan: plan, mb: mb} }

// ExportVector sets dst, the owned rows, to the owned rows of src plus the
// shared rows other ranks hold for them. src has a row per local row. Either
// may be nil when it would have no rows.
func (e *Exporter) ExportVector(ctx context.Context, src, dst *mat.Dense) error {
	rm, pb := e.plan.Rows, e.plan.Buffer
	numCols := 0
	if src != nil {
		r, c := src.Dims()
		if r != rm.NumRows() {
			return errs.Configurationf("export source has %d rows, rank %d has %d", r, e.plan.Rank, rm.NumRows())
		}
		numCols = c
	} else if rm.NumRows() > 0 {
		return errs.Configurationf("export source is nil, rank %d has %d rows", e.plan.Rank, rm.NumRows())
	}
	if dst != nil {
		r, c := dst.Dims()
		if r != rm.NumOwned() || c != numCols {
			return errs.Configurationf("export destination is %dx%d, expected %dx%d", r, c, rm.NumOwned(), numCols)
		}
	} else if rm.NumOwned() > 0 {
		return errs.Configurationf("export destination is nil, rank %d owns %d rows", e.plan.Rank, rm.NumOwned())
	}

	pb.SizeBuffers(numCols)
	for _, m := range pb.ScatterMappings {
		for i, lid := range m.LocalIndices {
			bi := m.BufferIndices[i]
			copy(pb.SendBuffer[bi*numCols:(bi+1)*numCols], src.RawRowView(lid))
		}
		// the next export refills SendBuffer, so the peer gets its own copy
		msg := append([]float64(nil), pb.SendRows(m, numCols)...)
		if err := e.mb.Send(ctx, e.plan.Rank, m.PartitionID, msg); err != nil {
			return err
		}
	}
	for r := 0; r < rm.NumOwned(); r++ {
		copy(dst.RawRowView(r), src.RawRowView(r))
	}
	for _, m := range pb.GatherMappings {
		msg, err := e.mb.Recv(ctx, m.PartitionID, e.plan.Rank)
		if err != nil {
			return err
		}
		in, ok := msg.([]float64)
		recv := pb.RecvRows(m, numCols)
		if !ok || len(in) != len(recv) {
			return errs.Inconsistencyf("rank %d expected %d vector rows from rank %d", e.plan.Rank, m.Count, m.PartitionID)
		}
		copy(recv, in)
		for i, lid := range m.LocalIndices {
			bi := m.BufferIndices[i]
			row := dst.RawRowView(lid)
			for c := range row {
				row[c] += pb.RecvBuffer[bi*numCols+c]
			}
		}
	}
	return nil
}

// ExportMatrix returns the owned rows merged with the shared rows other
// ranks hold for them, columns sorted and duplicates summed. shared holds
// this rank's shared rows in local order.
func (e *Exporter) ExportMatrix(ctx context.Context, owned, shared *assembly.CSR) (*assembly.CSR, error) {
	rm, pb := e.plan.Rows, e.plan.Buffer
	if owned.NumRows != rm.NumOwned() || shared.NumRows != rm.NumShared() {
		return nil, errs.Configurationf("rank %d exports %d owned and %d shared rows, row map has %d and %d",
			e.plan.Rank, owned.NumRows, shared.NumRows, rm.NumOwned(), rm.NumShared())
	}
	for _, m := range pb.ScatterMappings {
		rows := make([]int, len(m.LocalIndices))
		for i, lid := range m.LocalIndices {
			rows[i] = lid - rm.NumOwned()
		}
		if err := e.mb.Send(ctx, e.plan.Rank, m.PartitionID, pickRows(shared, rows)); err != nil {
			return nil, err
		}
	}

	type entry struct {
		col int64
		val float64
	}
	acc := make([][]entry, owned.NumRows)
	for r := range acc {
		cols, vals := owned.Row(r)
		for k := range cols {
			acc[r] = append(acc[r], entry{cols[k], vals[k]})
		}
	}
	for _, m := range pb.GatherMappings {
		msg, err := e.mb.Recv(ctx, m.PartitionID, e.plan.Rank)
		if err != nil {
			return nil, err
		}
		in, ok := msg.(*assembly.CSR)
		if !ok || in.NumRows != m.Count {
			return nil, errs.Inconsistencyf("rank %d expected %d matrix rows from rank %d", e.plan.Rank, m.Count, m.PartitionID)
		}
		for i, lid := range m.LocalIndices {
			if in.RowIndices[i] != rm.Global[lid] {
				return nil, errs.Inconsistencyf("rank %d received row %d where row %d was planned",
					e.plan.Rank, in.RowIndices[i], rm.Global[lid])
			}
			cols, vals := in.Row(i)
			for k := range cols {
				acc[lid] = append(acc[lid], entry{cols[k], vals[k]})
			}
		}
	}

	out := &assembly.CSR{
		NumRows:    owned.NumRows,
		RowIndices: append([]int64(nil), owned.RowIndices...),
		RowPtr:     make([]int64, owned.NumRows+1),
	}
	for r, row := range acc {
		sort.SliceStable(row, func(a, b int) bool { return row[a].col < row[b].col })
		for k, en := range row {
			last := len(out.ColIndices) - 1
			if k > 0 && out.ColIndices[last] == en.col {
				out.Values[last] += en.val
				continue
			}
			out.ColIndices = append(out.ColIndices, en.col)
			out.Values = append(out.Values, en.val)
		}
		out.RowPtr[r+1] = int64(len(out.ColIndices))
	}
	return out, nil
}

func pickRows(c *assembly.CSR, rows []int) *assembly.CSR {
	out := &assembly.CSR{NumRows: len(rows), RowPtr: make([]int64, len(rows)+1)}
	for i, r := range rows {
		cols, vals := c.Row(r)
		out.RowIndices = append(out.RowIndices, c.RowIndices[r])
		out.ColIndices = append(out.ColIndices, cols...)
		out.Values = append(out.Values, vals...)
		out.RowPtr[i+1] = int64(len(out.ColIndices))
	}
	return out
}
