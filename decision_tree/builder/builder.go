/*
	batch式的建树driver。frontier是结点序列的一段连续尾巴[node_start, node_end)，
	每个batch对frontier整体做一次search和split，孩子append到序列尾部，
	直到frontier空了或者撞上结构性的限制。host侧单线程，重活都在kernel的网格里。
*/

package builder

import (
	"fmt"
	"runtime"

	"github.com/venkywonka/cuml/cuml-share/base/logger"
	"github.com/venkywonka/cuml/decision_tree/format"
	"github.com/venkywonka/cuml/decision_tree/ml/tree"
	"github.com/venkywonka/cuml/decision_tree/param"
	"github.com/venkywonka/cuml/decision_tree/util/add"
)

// Input 一棵树的输入。Dataset和Quantiles是只读的，可以被多个builder共享；
// Rowids是这棵树的采样行，建树过程中会被原地分区，所以每棵树要有自己的一份
type Input struct {
	Dataset   *format.Dataset
	Quantiles *format.Quantiles
	Rowids    []int32
	Colids    []int32
}

// Builder 单棵树的builder。workspace由外面分配，builder只在上面做绑定；
// 一个builder在Train期间独占它的workspace
type Builder struct {
	params    param.DecisionTreeParams
	input     Input
	objective tree.Objective
	ws        workspace

	// maxBlocks 网格规模，创建时就定死。同样的网格规模下结果是确定的
	maxBlocks int

	// host侧建树状态
	hNodes     []tree.Node
	nodeStart  int
	nodeEnd    int
	totalNodes int
}

// New 创建builder，所有入口检查都在这里做完，没过检查不会enqueue任何工作
func New(p param.DecisionTreeParams, in Input) (*Builder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if in.Dataset == nil {
		return nil, fmt.Errorf("builder: nil dataset")
	}
	if in.Quantiles == nil {
		// 分位数是collaborator给的，没有就是失败，这里不会现算
		return nil, fmt.Errorf("builder: quantiles not provided")
	}
	if in.Quantiles.NBins() != p.NBins {
		return nil, fmt.Errorf("builder: quantiles have %d bins, params want %d", in.Quantiles.NBins(), p.NBins)
	}
	if len(in.Rowids) == 0 {
		return nil, fmt.Errorf("builder: empty row sample")
	}
	if len(in.Colids) == 0 {
		return nil, fmt.Errorf("builder: empty column sample")
	}
	for _, r := range in.Rowids {
		if int(r) < 0 || int(r) >= in.Dataset.Rows() {
			return nil, fmt.Errorf("builder: rowid %d out of range [0,%d)", r, in.Dataset.Rows())
		}
	}
	for _, c := range in.Colids {
		if int(c) < 0 || int(c) >= in.Dataset.Cols() {
			return nil, fmt.Errorf("builder: colid %d out of range [0,%d)", c, in.Dataset.Cols())
		}
	}
	nclasses := in.Dataset.NumClasses()
	if p.SplitCriterion.IsRegression() && nclasses != 1 {
		return nil, fmt.Errorf("builder: regression expects nclasses=1, got %d", nclasses)
	}

	objective, err := tree.NewObjective(p.SplitCriterion, nclasses, p.MinSamplesLeaf, p.MinImpurityDecrease)
	if err != nil {
		return nil, err
	}

	return &Builder{
		params:    p,
		input:     in,
		objective: objective,
		maxBlocks: blocksPerProc * runtime.GOMAXPROCS(0),
	}, nil
}

// WorkspaceSize 这个builder需要的(deviceBytes, hostBytes)
func (b *Builder) WorkspaceSize() (int, int) {
	return WorkspaceSize(&(*b).params, len((*b).input.Rowids), len((*b).input.Colids), (*b).input.Dataset.NumClasses())
}

// AssignWorkspace 把两块预分配的buffer绑进来，不做拷贝。buffer的所有权在caller
func (b *Builder) AssignWorkspace(device, host []byte) error {
	s := newWsShape(&(*b).params, len((*b).input.Rowids), len((*b).input.Colids), (*b).input.Dataset.NumClasses())
	needDev, needHost := b.WorkspaceSize()
	if len(device) < needDev {
		return fmt.Errorf("builder: device workspace too small, need %d got %d", needDev, len(device))
	}
	if len(host) < needHost {
		return fmt.Errorf("builder: host workspace too small, need %d got %d", needHost, len(host))
	}
	return (*b).ws.bind(s, device, host)
}

// Train 建一棵树。输出是按创建顺序排的结点序列加num_leaves和depth
func (b *Builder) Train() (*tree.Tree, error) {
	if !(*b).ws.bound {
		return nil, fmt.Errorf("builder: workspace not assigned")
	}
	ws := &(*b).ws
	ws.resetCounters()

	// 根结点带上全部采样行
	root := tree.Node{Start: 0, Count: int32(len((*b).input.Rowids)), Depth: 0, UniqueId: 0}
	root.InitSpNode()
	(*b).hNodes = make([]tree.Node, 0, ws.shape.maxNodes)
	(*b).hNodes = append((*b).hNodes, root)
	(*b).nodeStart, (*b).nodeEnd, (*b).totalNodes = 0, 1, 1
	// frontier上的结点都是潜在的叶子，从root开始计
	*ws.nLeaves = 1

	for (*b).nodeStart < (*b).nodeEnd {
		newNodes := b.doSplit()
		(*b).totalNodes += newNodes
		logger.Debugf("batch [%d,%d) produced %d new nodes, total %d",
			(*b).nodeStart, (*b).nodeEnd, newNodes, (*b).totalNodes)
		b.updateNodeRange()
	}

	// 计数拷回host侧
	*ws.hNLeaves = *ws.nLeaves
	*ws.hNDepth = *ws.nDepth

	out := &tree.Tree{
		Nodes:     (*b).hNodes,
		NumLeaves: int(*ws.hNLeaves),
		Depth:     int(*ws.hNDepth),
	}
	return out, nil
}

// updateNodeRange frontier往后推一个batch
func (b *Builder) updateNodeRange() {
	(*b).nodeStart = (*b).nodeEnd
	remain := (*b).totalNodes - (*b).nodeEnd
	if remain > (*b).params.MaxBatchSize {
		remain = (*b).params.MaxBatchSize
	}
	(*b).nodeEnd += remain
}

// doSplit 处理一个batch的frontier，返回新产生的结点数
func (b *Builder) doSplit() int {
	ws := &(*b).ws
	s := ws.shape
	batchSize := (*b).nodeEnd - (*b).nodeStart

	*ws.nNodes = 0
	for i := 0; i < batchSize; i++ {
		ws.splits[i].Init()
	}
	// frontier拷到device侧的curr_nodes
	copy(ws.currNodes[:batchSize], (*b).hNodes[(*b).nodeStart:(*b).nodeEnd])

	if s.mae {
		b.computeParentStats(batchSize)
	}

	nCols := len((*b).input.Colids)
	for colStart := 0; colStart < nCols; colStart += s.colBlks {
		cur := s.colBlks
		if nCols-colStart < cur {
			cur = nCols - colStart
		}
		g := newGridDims((*b).maxBlocks, cur, batchSize)
		b.zeroHistBlock(g)
		b.computeSplitKernel(g, colStart)
		if s.mae {
			b.resetDoneCount(g)
			b.maeSecondPassKernel(g, colStart)
		}
	}

	newNodes := b.nodeSplit(batchSize)

	// 同步点：消费device侧的计数，把长出来的结点拷回host序列
	*ws.hNNodes = int32(newNodes)
	copy(ws.hNodeStaging[:newNodes], ws.nextNodes[:newNodes])
	for i := 0; i < batchSize; i++ {
		(*b).hNodes[(*b).nodeStart+i] = ws.currNodes[i]
	}
	(*b).hNodes = append((*b).hNodes, ws.hNodeStaging[:newNodes]...)
	return newNodes
}

// computeParentStats MAE需要父结点整体的绝对偏差做基线
func (b *Builder) computeParentStats(batchSize int) {
	ws := &(*b).ws
	labels := (*b).input.Dataset.Labels()
	rowids := (*b).input.Rowids
	for n := 0; n < batchSize; n++ {
		node := &ws.currNodes[n]
		sum := add.FloatAdder{}
		for i := node.Start; i < node.Start+node.Count; i++ {
			sum.Add(labels[rowids[i]])
		}
		mean := 0.0
		if node.Count > 0 {
			mean = sum.Result() / float64(node.Count)
		}
		ws.parentMean[n] = mean
		ad := add.FloatAdder{}
		for i := node.Start; i < node.Start+node.Count; i++ {
			d := labels[rowids[i]] - mean
			if d < 0 {
				d = -d
			}
			ad.Add(d)
		}
		ws.parentAbs[n] = ad.Result()
	}
}
