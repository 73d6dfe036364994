/*
	训练输入的只读视图：列主序的特征矩阵、标签、分位数bin边界。
	建树期间这里的所有东西都是不可变的，多个builder可以共享同一份。
*/

package format

import (
	"fmt"
	"math"
	"sort"

	"gorgonia.org/tensor"
)

// Dataset 一次训练的输入视图。data是M×N的列主序矩阵，labels长度为M。
// 分类时labels取[0, nclasses)里的整数类id，回归时nclasses为1。
type Dataset struct {
	data   *tensor.Dense // data 特征矩阵，必须是列主序(AsFortran)，行主序在入口处就拒绝
	raw    []float64     // raw data的底层切片，kernel里直接按 col*rows+row 下标访问
	labels []float64

	rows     int // rows 总行数M
	cols     int // cols 总列数N
	nclasses int
}

// NewDataset 构建输入视图，这里做所有的入口检查，后面kernel里就不再检查了
func NewDataset(data *tensor.Dense, labels []float64, nclasses int) (*Dataset, error) {
	if data == nil {
		return nil, fmt.Errorf("dataset: nil data")
	}
	shape := data.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("dataset: expected a 2-D matrix, got shape %v", shape)
	}
	if !data.DataOrder().IsColMajor() {
		// 只接受列主序，kernel对一列的扫描要求这一列在内存里连续
		return nil, fmt.Errorf("dataset: row-major input is not accepted, rebuild the tensor with tensor.AsFortran")
	}
	raw, ok := data.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("dataset: expected float64 backing, got %T", data.Data())
	}
	rows, cols := shape[0], shape[1]
	if len(labels) != rows {
		return nil, fmt.Errorf("dataset: labels length %d != rows %d", len(labels), rows)
	}
	if nclasses < 1 {
		return nil, fmt.Errorf("dataset: nclasses should be >= 1, got %d", nclasses)
	}
	if nclasses > 1 {
		// 分类时类id必须是[0, nclasses)里的整数
		for i, l := range labels {
			if l != math.Trunc(l) || l < 0 || int(l) >= nclasses {
				return nil, fmt.Errorf("dataset: label[%d]=%v out of class range [0,%d)", i, l, nclasses)
			}
		}
	}
	return &Dataset{
		data:     data,
		raw:      raw,
		labels:   labels,
		rows:     rows,
		cols:     cols,
		nclasses: nclasses,
	}, nil
}

func (d *Dataset) Rows() int {
	return (*d).rows
}

func (d *Dataset) Cols() int {
	return (*d).cols
}

func (d *Dataset) NumClasses() int {
	return (*d).nclasses
}

func (d *Dataset) Labels() []float64 {
	return (*d).labels
}

// At 取data[row, col]，列主序直接算下标，不走tensor的通用访问
func (d *Dataset) At(row, col int) float64 {
	return (*d).raw[col*(*d).rows+row]
}

// Quantiles 每列的分位数bin上界，edges按列主序排，edges[c*nBins+b]是列c第b个bin的上界。
// 边界必须单调不减，kernel里依赖这一点做二分。
type Quantiles struct {
	edges []float64
	nBins int
	cols  int
}

func (q *Quantiles) NBins() int {
	return (*q).nBins
}

// ColumnEdges 取某一列的bin边界切片，长度nBins
func (q *Quantiles) ColumnEdges(col int) []float64 {
	start := col * (*q).nBins
	return (*q).edges[start : start+(*q).nBins]
}

// Bin 二分查找data[row, col]落在哪个bin里，返回[0, nBins)
func (d *Dataset) Bin(q *Quantiles, row, col int) int {
	v := d.At(row, col)
	edges := q.ColumnEdges(col)
	// 第一个 >= v 的边界就是所属的bin，比最后一个边界还大的并进最后一个bin
	b := sort.SearchFloat64s(edges, v)
	if b >= (*q).nBins {
		b = (*q).nBins - 1
	}
	return b
}
