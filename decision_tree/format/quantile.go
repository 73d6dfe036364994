package format

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ComputeQuantiles 对每一列求nBins个分位数作为bin上界。
// rowids非空时只在这些行上统计(每棵树单独分位数时传采样行)，为空时用全部行。
// 算不出来(空数据、含NaN)就报错，外面没有分位数是不能开始建树的。
func ComputeQuantiles(d *Dataset, nBins int, rowids []int32) (*Quantiles, error) {
	if d == nil {
		return nil, fmt.Errorf("quantiles: nil dataset")
	}
	if nBins < 1 {
		return nil, fmt.Errorf("quantiles: n_bins should be >= 1, got %d", nBins)
	}
	rows := d.Rows()
	if len(rowids) != 0 {
		rows = len(rowids)
	}
	if rows == 0 {
		return nil, fmt.Errorf("quantiles: empty dataset")
	}

	cols := d.Cols()
	edges := make([]float64, nBins*cols)
	colBuf := make([]float64, rows)
	for c := 0; c < cols; c++ {
		for i := 0; i < rows; i++ {
			r := i
			if len(rowids) != 0 {
				r = int(rowids[i])
			}
			v := d.At(r, c)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("quantiles: non-finite value at [%d,%d]", r, c)
			}
			colBuf[i] = v
		}
		sort.Float64s(colBuf)

		colEdges := edges[c*nBins : (c+1)*nBins]
		for b := 0; b < nBins-1; b++ {
			p := float64(b+1) / float64(nBins)
			colEdges[b] = stat.Quantile(p, stat.Empirical, colBuf, nil)
		}
		// 最后一个bin的上界取该列最大值，保证所有值都能落进某个bin
		colEdges[nBins-1] = colBuf[rows-1]

		// 分位数本身可能出现平台，这里只要求单调不减，二分就是安全的
		for b := 1; b < nBins; b++ {
			if colEdges[b] < colEdges[b-1] {
				colEdges[b] = colEdges[b-1]
			}
		}
	}

	return &Quantiles{edges: edges, nBins: nBins, cols: cols}, nil
}

// NewQuantiles 直接用外部算好的边界构建，edges按列主序，长度必须是nBins*cols
func NewQuantiles(edges []float64, nBins, cols int) (*Quantiles, error) {
	if nBins < 1 || cols < 1 {
		return nil, fmt.Errorf("quantiles: bad shape %dx%d", nBins, cols)
	}
	if len(edges) != nBins*cols {
		return nil, fmt.Errorf("quantiles: edges length %d != %d", len(edges), nBins*cols)
	}
	for c := 0; c < cols; c++ {
		for b := 1; b < nBins; b++ {
			if edges[c*nBins+b] < edges[c*nBins+b-1] {
				return nil, fmt.Errorf("quantiles: edges of column %d not monotonic at bin %d", c, b)
			}
		}
	}
	return &Quantiles{edges: edges, nBins: nBins, cols: cols}, nil
}
