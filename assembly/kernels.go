package assembly

import "github.com/notargets/hexfem/runner"

const rowBlock = 64

const (
	kernelSortReduce = "hexfemSortReduceRows"
	kernelScan       = "hexfemScanRows"
	kernelCompact    = "hexfemCompactRows"
	kernelSumRows    = "hexfemSumRows"
)

// Rows of the entry workspace are independent segments [rowStart[r],
// rowStart[r+1]), one work item per row. Column -1 marks an unused slot.

const sortReduceSource = `
@kernel void hexfemSortReduceRows(const int_t nRows,
                                  const int_t *rowStart,
                                  int_t *ws_cols, const int_t colsOff,
                                  real_t *ws_vals, const int_t valsOff,
                                  int_t *rowNnz) {
	for (int b = 0; b < nRows; b += ROW_BLOCK; @outer) {
		for (int r = b; r < b + ROW_BLOCK; ++r; @inner) {
			if (r < nRows) {
				int_t *c = ws_cols + colsOff;
				real_t *v = ws_vals + valsOff;
				const int_t s = rowStart[r];
				const int_t e = rowStart[r + 1];
				// stable insertion sort, equal columns keep arrival order
				for (int_t x = s + 1; x < e; ++x) {
					const int_t cx = c[x];
					const real_t vx = v[x];
					int_t y = x - 1;
					while (y >= s && c[y] > cx) {
						c[y + 1] = c[y];
						v[y + 1] = v[y];
						--y;
					}
					c[y + 1] = cx;
					v[y + 1] = vx;
				}
				int_t w = s;
				for (int_t x = s; x < e; ++x) {
					if (c[x] >= 0) {
						if (w > s && c[w - 1] == c[x]) {
							v[w - 1] += v[x];
						} else {
							c[w] = c[x];
							v[w] = v[x];
							++w;
						}
					}
				}
				rowNnz[r] = w - s;
			}
		}
	}
}
`

const scanSource = `
@kernel void hexfemScanRows(const int_t nRows,
                            const int_t *rowNnz,
                            int_t *rowPtr) {
	for (int b = 0; b < 1; ++b; @outer) {
		for (int t = 0; t < 1; ++t; @inner) {
			int_t acc = 0;
			rowPtr[0] = 0;
			for (int_t r = 0; r < nRows; ++r) {
				acc += rowNnz[r];
				rowPtr[r + 1] = acc;
			}
		}
	}
}
`

const compactSource = `
@kernel void hexfemCompactRows(const int_t nRows,
                               const int_t *rowStart,
                               const int_t *rowPtr,
                               const int_t *ws_cols, const int_t colsOff,
                               const real_t *ws_vals, const int_t valsOff,
                               int_t *colIdx,
                               real_t *values) {
	for (int b = 0; b < nRows; b += ROW_BLOCK; @outer) {
		for (int r = b; r < b + ROW_BLOCK; ++r; @inner) {
			if (r < nRows) {
				const int_t s = rowStart[r];
				const int_t p = rowPtr[r];
				const int_t n = rowPtr[r + 1] - p;
				for (int_t x = 0; x < n; ++x) {
					colIdx[p + x] = ws_cols[colsOff + s + x];
					values[p + x] = ws_vals[valsOff + s + x];
				}
			}
		}
	}
}
`

// sumRowsSource adds every slot of a row segment. Vector entries carry no
// column, so empty slots are expected to hold zero.
const sumRowsSource = `
@kernel void hexfemSumRows(const int_t nRows,
                           const int_t *rowStart,
                           const real_t *ws_vals, const int_t valsOff,
                           real_t *out) {
	for (int b = 0; b < nRows; b += ROW_BLOCK; @outer) {
		for (int r = b; r < b + ROW_BLOCK; ++r; @inner) {
			if (r < nRows) {
				real_t sum = REAL_ZERO;
				for (int_t x = rowStart[r]; x < rowStart[r + 1]; ++x) {
					sum += ws_vals[valsOff + x];
				}
				out[r] = sum;
			}
		}
	}
}
`

// buildKernels compiles the named kernels once per runner
func buildKernels(kr *runner.Runner, names ...string) error {
	sources := map[string]string{
		kernelSortReduce: sortReduceSource,
		kernelScan:       scanSource,
		kernelCompact:    compactSource,
		kernelSumRows:    sumRowsSource,
	}
	kr.AddConstant("ROW_BLOCK", rowBlock)
	for _, name := range names {
		if _, ok := kr.Kernels[name]; ok {
			continue
		}
		if _, err := kr.BuildKernel(sources[name], name); err != nil {
			return err
		}
	}
	return nil
}
