package main

import (
	"testing"

	"github.com/notargets/hexfem/config"
	"github.com/notargets/hexfem/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunGradient(t *testing.T) {
	for _, strategy := range []string{"block", "roundrobin"} {
		t.Run(strategy, func(t *testing.T) {
			run := config.Default()
			run.PartitionStrategy = strategy
			res, err := runGradient(run)
			require.NoError(t, err)
			assert.InDelta(t, 2.3/16, res.MaxAbs, 1e-14)
			assert.Equal(t, 125, res.NumRows)
		})
	}

	run := config.Default()
	run.BoundaryPart = "nowhere"
	_, err := runGradient(run)
	assert.Error(t, err)

	run = config.Default()
	run.PartitionStrategy = "spiral"
	_, err = runGradient(run)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestRunAssemble(t *testing.T) {
	run := config.Default()
	run.NX = 3
	run.Scale = 2
	run.PolynomialOrder = 2
	res, err := runAssemble(run)
	require.NoError(t, err)
	require.Len(t, res.Ranks, 2)
	owned := 0
	for _, rr := range res.Ranks {
		owned += rr.OwnedRows
		assert.Greater(t, rr.Nonzeros, 0)
	}
	assert.Equal(t, 7*7*7, owned)
	assert.InDelta(t, 8, res.TotalMass, 1e-10)
	assert.InDelta(t, 8, res.TotalSource, 1e-10)
}

func TestRunAssemble_TimingOff(t *testing.T) {
	run := config.Default()
	run.Timing = false
	res, err := runAssemble(run)
	require.NoError(t, err)
	for _, rr := range res.Ranks {
		assert.Equal(t, 1, rr.Timings.Count)
		assert.Zero(t, rr.Timings.Assemble)
		assert.Zero(t, rr.Timings.DeviceTransfer)
	}
}
