/*
	workspace布局。建树过程中的所有数组都在两块调用方预分配的buffer上，
	训练中途不做任何分配。两块buffer里各个区域按512字节对齐排布，
	WorkspaceSize只算大小不分配，AssignWorkspace只切片不拷贝。
*/

package builder

import (
	"fmt"
	"unsafe"

	"github.com/venkywonka/cuml/decision_tree/ml/tree"
	"github.com/venkywonka/cuml/decision_tree/param"
)

const (
	// wsAlign 各区域的对齐
	wsAlign = 512
	// colBlksMax 一次search里并行处理的列数上限
	colBlksMax = 8
	// maxNodesCap maxDepth太深时maxNodes不再按闭式算，用这个上限封住
	maxNodesCap = 8191
	// maxNodesDepthLimit 闭式计算maxNodes的深度上限
	maxNodesDepthLimit = 13
)

// wsShape 由参数和输入规模推出来的布局参数，sizing和binding共用，
// 两边必须从同一个地方算，不然大小就对不上了
type wsShape struct {
	maxBatch     int
	colBlks      int
	nBins        int
	nclasses     int
	nSampledRows int
	maxNodes     int
	regression   bool
	mae          bool
}

func newWsShape(p *param.DecisionTreeParams, nSampledRows, nSampledCols, nclasses int) wsShape {
	colBlks := colBlksMax
	if nSampledCols < colBlks {
		colBlks = nSampledCols
	}
	maxNodes := maxNodesCap
	if p.MaxDepth < maxNodesDepthLimit {
		maxNodes = (1 << (p.MaxDepth + 1)) - 1
	}
	maxBatch := p.MaxBatchSize
	return wsShape{
		maxBatch:     maxBatch,
		colBlks:      colBlks,
		nBins:        p.NBins,
		nclasses:     nclasses,
		nSampledRows: nSampledRows,
		maxNodes:     maxNodes,
		regression:   p.SplitCriterion.IsRegression(),
		mae:          p.SplitCriterion == param.MAE,
	}
}

// histCells 直方图区域的cell数，回归时按nclasses=1算
func (s wsShape) histCells() int {
	nc := s.nclasses
	if s.regression {
		nc = 1
	}
	return s.maxBatch * (s.nBins + 1) * s.colBlks * nc
}

func alignUp(x int) int {
	return (x + wsAlign - 1) &^ (wsAlign - 1)
}

var (
	sizeofNode  = int(unsafe.Sizeof(tree.Node{}))
	sizeofSplit = int(unsafe.Sizeof(tree.Split{}))
)

// WorkspaceSize 纯计算，返回(deviceBytes, hostBytes)。同样的参数算两次结果一样
func WorkspaceSize(p *param.DecisionTreeParams, nSampledRows, nSampledCols, nclasses int) (int, int) {
	s := newWsShape(p, nSampledRows, nSampledCols, nclasses)

	device := wsAlign // 基址对齐的余量
	device += alignUp(4)                          // nNodes
	if s.regression {
		device += alignUp(s.histCells() * 8)      // labelCdf
		device += alignUp(s.histCells() * 8)      // countCdf
		if s.mae {
			device += alignUp(s.histCells() * 8)  // absLeft
			device += alignUp(s.histCells() * 8)  // absRight
		}
		device += alignUp(s.maxBatch * 8)         // parentMean
		device += alignUp(s.maxBatch * 8)         // parentAbs
	} else {
		device += alignUp(s.histCells() * 8)      // classCounts
	}
	device += alignUp(s.maxBatch * s.colBlks * 4) // doneCount
	device += alignUp(s.maxBatch * 4)             // mutex
	if s.mae {
		device += alignUp(s.maxBatch * s.colBlks * 4) // blockSync
	}
	device += alignUp(4)                          // nLeaves
	device += alignUp(4)                          // nDepth
	device += alignUp(s.maxBatch * sizeofSplit)   // splits
	device += alignUp(s.maxBatch * sizeofNode)    // currNodes
	device += alignUp(2 * s.maxBatch * sizeofNode) // nextNodes
	device += alignUp(s.nSampledRows * 4)         // 分区scatter的scratch

	host := wsAlign
	host += alignUp(4)                            // hNNodes
	host += alignUp(4)                            // hNLeaves
	host += alignUp(4)                            // hNDepth
	host += alignUp(2 * s.maxBatch * sizeofNode)  // 拷回host的结点暂存

	return device, host
}

// workspace bind之后的各个类型化切片，全部指进caller给的两块buffer里
type workspace struct {
	shape wsShape

	// device侧
	nNodes      *int32
	classCounts []int64   // 分类直方图 [node][colInBlk][class][bin(+1)]
	labelCdf    []float64 // 回归
	countCdf    []int64
	absLeft     []float64 // MAE两遍扫描的结果
	absRight    []float64
	parentMean  []float64
	parentAbs   []float64
	doneCount   []uint32
	mutex       []int32
	blockSync   []uint32
	nLeaves     *int32
	nDepth      *int32
	splits      []tree.Split
	currNodes   []tree.Node
	nextNodes   []tree.Node
	scatter     []int32

	// host侧
	hNNodes      *int32
	hNLeaves     *int32
	hNDepth      *int32
	hNodeStaging []tree.Node

	bound bool
}

// carver 在一块buffer上按对齐往前切
type carver struct {
	base unsafe.Pointer
	off  uintptr
	size uintptr
}

func newCarver(buf []byte) carver {
	base := unsafe.Pointer(&buf[0])
	// 把起点先推到512对齐上
	misalign := uintptr(base) % wsAlign
	off := uintptr(0)
	if misalign != 0 {
		off = wsAlign - misalign
	}
	return carver{base: base, off: off, size: uintptr(len(buf))}
}

func (c *carver) take(bytes int) (unsafe.Pointer, error) {
	if c.off+uintptr(bytes) > c.size {
		return nil, fmt.Errorf("workspace too small: need %d more bytes at offset %d", bytes, c.off)
	}
	p := unsafe.Add(c.base, c.off)
	c.off += uintptr(alignUp(bytes))
	return p, nil
}

func carveInt32(c *carver) (*int32, error) {
	p, err := c.take(4)
	if err != nil {
		return nil, err
	}
	return (*int32)(p), nil
}

func carveInt32s(c *carver, n int) ([]int32, error) {
	p, err := c.take(n * 4)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*int32)(p), n), nil
}

func carveUint32s(c *carver, n int) ([]uint32, error) {
	p, err := c.take(n * 4)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*uint32)(p), n), nil
}

func carveInt64s(c *carver, n int) ([]int64, error) {
	p, err := c.take(n * 8)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*int64)(p), n), nil
}

func carveFloat64s(c *carver, n int) ([]float64, error) {
	p, err := c.take(n * 8)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*float64)(p), n), nil
}

func carveSplits(c *carver, n int) ([]tree.Split, error) {
	p, err := c.take(n * sizeofSplit)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*tree.Split)(p), n), nil
}

func carveNodes(c *carver, n int) ([]tree.Node, error) {
	p, err := c.take(n * sizeofNode)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*tree.Node)(p), n), nil
}

// bind 把两块buffer切成类型化的区域。顺序必须和WorkspaceSize完全一致
func (w *workspace) bind(s wsShape, device, host []byte) error {
	// 大小不够在take里逐段报，这里只把空buffer挡掉
	if len(device) == 0 || len(host) == 0 {
		return fmt.Errorf("workspace buffers not provided (device=%d host=%d bytes)", len(device), len(host))
	}

	(*w).shape = s
	var err error
	c := newCarver(device)
	if (*w).nNodes, err = carveInt32(&c); err != nil {
		return err
	}
	if s.regression {
		if (*w).labelCdf, err = carveFloat64s(&c, s.histCells()); err != nil {
			return err
		}
		if (*w).countCdf, err = carveInt64s(&c, s.histCells()); err != nil {
			return err
		}
		if s.mae {
			if (*w).absLeft, err = carveFloat64s(&c, s.histCells()); err != nil {
				return err
			}
			if (*w).absRight, err = carveFloat64s(&c, s.histCells()); err != nil {
				return err
			}
		}
		if (*w).parentMean, err = carveFloat64s(&c, s.maxBatch); err != nil {
			return err
		}
		if (*w).parentAbs, err = carveFloat64s(&c, s.maxBatch); err != nil {
			return err
		}
	} else {
		if (*w).classCounts, err = carveInt64s(&c, s.histCells()); err != nil {
			return err
		}
	}
	if (*w).doneCount, err = carveUint32s(&c, s.maxBatch*s.colBlks); err != nil {
		return err
	}
	if (*w).mutex, err = carveInt32s(&c, s.maxBatch); err != nil {
		return err
	}
	if s.mae {
		if (*w).blockSync, err = carveUint32s(&c, s.maxBatch*s.colBlks); err != nil {
			return err
		}
	}
	if (*w).nLeaves, err = carveInt32(&c); err != nil {
		return err
	}
	if (*w).nDepth, err = carveInt32(&c); err != nil {
		return err
	}
	if (*w).splits, err = carveSplits(&c, s.maxBatch); err != nil {
		return err
	}
	if (*w).currNodes, err = carveNodes(&c, s.maxBatch); err != nil {
		return err
	}
	if (*w).nextNodes, err = carveNodes(&c, 2*s.maxBatch); err != nil {
		return err
	}
	if (*w).scatter, err = carveInt32s(&c, s.nSampledRows); err != nil {
		return err
	}

	hc := newCarver(host)
	if (*w).hNNodes, err = carveInt32(&hc); err != nil {
		return err
	}
	if (*w).hNLeaves, err = carveInt32(&hc); err != nil {
		return err
	}
	if (*w).hNDepth, err = carveInt32(&hc); err != nil {
		return err
	}
	if (*w).hNodeStaging, err = carveNodes(&hc, 2*s.maxBatch); err != nil {
		return err
	}

	(*w).bound = true
	return nil
}

// resetCounters 每棵树开始时清零一次
func (w *workspace) resetCounters() {
	*(*w).nNodes = 0
	*(*w).nLeaves = 0
	*(*w).nDepth = 0
	*(*w).hNNodes = 0
	*(*w).hNLeaves = 0
	*(*w).hNDepth = 0
	for i := range (*w).mutex {
		(*w).mutex[i] = 0
	}
}
