/*
	search的kernel族：对一个batch的frontier结点和一段列，并行填直方图并归约出
	每个结点的最优划分。worker按(row块 × 列 × 结点)的三维网格组织，直方图累加用
	原子加；一个(结点,列)的所有row块到齐之后，由done_count选出的那个worker做评估，
	拿着该结点的锁去更新splits。
*/

package builder

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/venkywonka/cuml/decision_tree/ml/tree"
)

// blocksPerProc 每个P上放多少个"块"，对应GPU里每个SM的常驻block数。
// 网格规模在builder创建时就定死，同样的网格规模下归约结果是确定的
const blocksPerProc = 4

// gridDims 一次search launch的网格：nBlksForRows × colBlksCur × batchSize
type gridDims struct {
	nBlksForRows int
	colBlksCur   int
	batchSize    int
}

func (g gridDims) tasks() int {
	return g.nBlksForRows * g.colBlksCur * g.batchSize
}

// newGridDims 行方向的块数按占满所有worker来取，不过量launch
func newGridDims(maxBlocks, colBlksCur, batchSize int) gridDims {
	n := (maxBlocks + colBlksCur*batchSize - 1) / (colBlksCur * batchSize)
	if n < 1 {
		n = 1
	}
	return gridDims{nBlksForRows: n, colBlksCur: colBlksCur, batchSize: batchSize}
}

// launchGrid 把nTasks个任务铺到最多maxWorkers个goroutine上跑完才返回。
// 任务之间只通过workspace里的原子量交流，worker函数里不能再阻塞等别的任务
func launchGrid(nTasks, maxWorkers int, task func(t int)) {
	if nTasks <= 0 {
		return
	}
	workers := maxWorkers
	if nTasks < workers {
		workers = nTasks
	}
	if workers <= 1 {
		for t := 0; t < nTasks; t++ {
			task(t)
		}
		return
	}
	var next int64 = -1
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				t := int(atomic.AddInt64(&next, 1))
				if t >= nTasks {
					return
				}
				task(t)
			}
		}()
	}
	wg.Wait()
}

// atomicAddFloat64 浮点原子加，CAS循环。加的顺序不定，所以回归的累和
// 不保证跨次运行逐位一致，这一点和规格一致
func atomicAddFloat64(addr *float64, delta float64) {
	p := (*uint64)(unsafe.Pointer(addr))
	for {
		oldBits := atomic.LoadUint64(p)
		newBits := math.Float64bits(math.Float64frombits(oldBits) + delta)
		if atomic.CompareAndSwapUint64(p, oldBits, newBits) {
			return
		}
	}
}

// lockNode / unlockNode workspace里per-node的自旋锁
func lockNode(m *int32) {
	for !atomic.CompareAndSwapInt32(m, 0, 1) {
		runtime.Gosched()
	}
}

func unlockNode(m *int32) {
	atomic.StoreInt32(m, 0)
}

// atomicMaxInt32 取最大，nDepth用
func atomicMaxInt32(addr *int32, v int32) {
	for {
		old := atomic.LoadInt32(addr)
		if v <= old || atomic.CompareAndSwapInt32(addr, old, v) {
			return
		}
	}
}

// histBase 一个(结点,列)的直方图片段在区域里的起点，stride是nBins+1
func (b *Builder) histBase(n, cb, class int) int {
	s := (*b).ws.shape
	nc := s.nclasses
	if s.regression {
		nc = 1
	}
	return ((n*s.colBlks+cb)*nc + class) * (s.nBins + 1)
}

// zeroHistBlock 清掉这次launch会用到的batch片段
func (b *Builder) zeroHistBlock(g gridDims) {
	s := (*b).ws.shape
	cells := g.batchSize * s.colBlks * (s.nBins + 1)
	if !s.regression {
		cells = g.batchSize * s.colBlks * s.nclasses * (s.nBins + 1)
		for i := 0; i < cells; i++ {
			(*b).ws.classCounts[i] = 0
		}
	} else {
		for i := 0; i < cells; i++ {
			(*b).ws.labelCdf[i] = 0
			(*b).ws.countCdf[i] = 0
		}
		if s.mae {
			for i := 0; i < cells; i++ {
				(*b).ws.absLeft[i] = 0
				(*b).ws.absRight[i] = 0
			}
		}
	}
	for i := 0; i < g.batchSize*s.colBlks; i++ {
		(*b).ws.doneCount[i] = 0
		if s.mae {
			(*b).ws.blockSync[i] = 0
		}
	}
}

// computeSplitKernel 处理列块[colStart, colStart+colBlksCur)的一次launch。
// 每个task是(行块rb, 块内列cb, 批内结点n)：累加自己那段行的直方图，
// done_count到齐的那个task做cdf、评估和best-split更新
func (b *Builder) computeSplitKernel(g gridDims, colStart int) {
	ws := &(*b).ws
	s := ws.shape
	nBlks := g.nBlksForRows

	launchGrid(g.tasks(), (*b).maxBlocks, func(t int) {
		rb := t % nBlks
		cb := (t / nBlks) % g.colBlksCur
		n := t / (nBlks * g.colBlksCur)

		node := &ws.currNodes[n]
		col := (*b).input.Colids[colStart+cb]

		if !s.regression {
			b.accumulateClass(node, n, cb, int(col), rb, nBlks)
		} else {
			b.accumulateReg(node, n, cb, int(col), rb, nBlks)
		}

		done := atomic.AddUint32(&ws.doneCount[n*s.colBlks+cb], 1)
		if int(done) != nBlks {
			return
		}
		// 被选中的块：先把pdf推成cdf，再跑objective
		if s.mae {
			// MAE还差第二遍，这里只做cdf，评估由第二遍launch里选出的块做
			b.pdfToCdfReg(n, cb)
			atomic.StoreUint32(&ws.blockSync[n*s.colBlks+cb], 1)
			return
		}
		if s.regression {
			b.pdfToCdfReg(n, cb)
		} else {
			b.pdfToCdfClass(n, cb)
		}
		b.evaluateSplit(node, n, cb, col)
	})
}

// maeSecondPassKernel MAE的第二遍：用第一遍的cdf得到各候选bin的左右均值，
// 再扫一遍行，把绝对偏差累进absLeft/absRight。两遍之间driver清过done_count，
// block_sync是第一遍cdf写完的标志，读到1才消费cdf
func (b *Builder) maeSecondPassKernel(g gridDims, colStart int) {
	ws := &(*b).ws
	s := ws.shape
	nBlks := g.nBlksForRows

	launchGrid(g.tasks(), (*b).maxBlocks, func(t int) {
		rb := t % nBlks
		cb := (t / nBlks) % g.colBlksCur
		n := t / (nBlks * g.colBlksCur)

		if atomic.LoadUint32(&ws.blockSync[n*s.colBlks+cb]) == 0 {
			return
		}

		node := &ws.currNodes[n]
		col := (*b).input.Colids[colStart+cb]
		b.accumulateAbsDev(node, n, cb, int(col), rb, nBlks)

		done := atomic.AddUint32(&ws.doneCount[n*s.colBlks+cb], 1)
		if int(done) != nBlks {
			return
		}
		b.evaluateSplit(node, n, cb, col)
	})
}

// resetDoneCount MAE两遍launch之间把done_count清回去
func (b *Builder) resetDoneCount(g gridDims) {
	s := (*b).ws.shape
	for i := 0; i < g.batchSize*s.colBlks; i++ {
		(*b).ws.doneCount[i] = 0
	}
}

// accumulateClass 分类的直方图累加：worker隔nBlks取行，cell是[class][bin]的计数
func (b *Builder) accumulateClass(node *tree.Node, n, cb, col, rb, nBlks int) {
	ws := &(*b).ws
	in := (*b).input
	for i := int(node.Start) + rb; i < int(node.Start+node.Count); i += nBlks {
		row := int(in.Rowids[i])
		bin := in.Dataset.Bin(in.Quantiles, row, col)
		class := int(in.Dataset.Labels()[row])
		atomic.AddInt64(&ws.classCounts[b.histBase(n, cb, class)+bin], 1)
	}
}

// accumulateReg 回归的直方图累加：label和与计数分开两个区域
func (b *Builder) accumulateReg(node *tree.Node, n, cb, col, rb, nBlks int) {
	ws := &(*b).ws
	in := (*b).input
	base := b.histBase(n, cb, 0)
	for i := int(node.Start) + rb; i < int(node.Start+node.Count); i += nBlks {
		row := int(in.Rowids[i])
		bin := in.Dataset.Bin(in.Quantiles, row, col)
		atomicAddFloat64(&ws.labelCdf[base+bin], in.Dataset.Labels()[row])
		atomic.AddInt64(&ws.countCdf[base+bin], 1)
	}
}

// accumulateAbsDev MAE第二遍：对每个候选bin，把行按所在bin分到左/右，
// 累加对相应均值的绝对偏差
func (b *Builder) accumulateAbsDev(node *tree.Node, n, cb, col, rb, nBlks int) {
	ws := &(*b).ws
	s := ws.shape
	in := (*b).input
	base := b.histBase(n, cb, 0)
	nSamples := float64(node.Count)
	labelSum := ws.labelCdf[base+s.nBins-1]

	for i := int(node.Start) + rb; i < int(node.Start+node.Count); i += nBlks {
		row := int(in.Rowids[i])
		bin := in.Dataset.Bin(in.Quantiles, row, col)
		y := in.Dataset.Labels()[row]
		for t := 0; t < s.nBins; t++ {
			nLeft := float64(ws.countCdf[base+t])
			nRight := nSamples - nLeft
			if bin <= t {
				if nLeft > 0 {
					atomicAddFloat64(&ws.absLeft[base+t], math.Abs(y-ws.labelCdf[base+t]/nLeft))
				}
			} else {
				if nRight > 0 {
					atomicAddFloat64(&ws.absRight[base+t], math.Abs(y-(labelSum-ws.labelCdf[base+t])/nRight))
				}
			}
		}
	}
}

// pdfToCdfClass 把一个(结点,列)的per-bin计数原地推成前缀和。
// 只有被选出的那个块会进来，这里不需要原子
func (b *Builder) pdfToCdfClass(n, cb int) {
	ws := &(*b).ws
	s := ws.shape
	for c := 0; c < s.nclasses; c++ {
		base := b.histBase(n, cb, c)
		for bin := 1; bin < s.nBins; bin++ {
			ws.classCounts[base+bin] += ws.classCounts[base+bin-1]
		}
	}
}

func (b *Builder) pdfToCdfReg(n, cb int) {
	ws := &(*b).ws
	s := ws.shape
	base := b.histBase(n, cb, 0)
	for bin := 1; bin < s.nBins; bin++ {
		ws.labelCdf[base+bin] += ws.labelCdf[base+bin-1]
		ws.countCdf[base+bin] += ws.countCdf[base+bin-1]
	}
}

// evaluateSplit 跑objective并做mutex保护的best-split更新
func (b *Builder) evaluateSplit(node *tree.Node, n, cb int, col int32) {
	ws := &(*b).ws
	s := ws.shape

	h := tree.HistSlice{NBins: s.nBins}
	if s.regression {
		base := b.histBase(n, cb, 0)
		h.LabelCdf = ws.labelCdf[base : base+s.nBins]
		h.CountCdf = ws.countCdf[base : base+s.nBins]
		h.LabelSum = ws.labelCdf[base+s.nBins-1]
		if s.mae {
			h.AbsLeft = ws.absLeft[base : base+s.nBins]
			h.AbsRight = ws.absRight[base : base+s.nBins]
			h.ParentAbs = ws.parentAbs[n]
		}
	} else {
		base := b.histBase(n, cb, 0)
		end := b.histBase(n, cb, s.nclasses-1) + s.nBins
		h.ClassCounts = ws.classCounts[base:end]
		h.ClassStride = s.nBins + 1
	}

	best := (*b).objective.Gain(h, (*b).input.Quantiles.ColumnEdges(int(col)), col, int(node.Count))

	lockNode(&ws.mutex[n])
	ws.splits[n].Update(best)
	unlockNode(&ws.mutex[n])
}
