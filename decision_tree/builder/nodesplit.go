/*
	split应用：把frontier上的每个结点按它的最优划分变成叶子或者带两个孩子的
	内部结点。决策和子结点落位按frontier顺序串行(这样max_leaves的强转叶子
	顺序是确定的)，rowids的分区是并行的稳定scatter。
*/

package builder

import (
	"sync/atomic"

	"github.com/venkywonka/cuml/decision_tree/ml/tree"
)

// nodeSplit 对batch里的每个结点应用它的best split，返回新结点数
func (b *Builder) nodeSplit(batchSize int) int {
	ws := &(*b).ws
	p := &(*b).params
	labels := (*b).input.Dataset.Labels()
	rowids := (*b).input.Rowids

	// pending记下要做分区的结点，决策串行做完再一起scatter
	pending := make([]int32, 0, batchSize)

	for i := 0; i < batchSize; i++ {
		node := &ws.currNodes[i]
		sp := ws.splits[i]

		forceLeaf := !sp.Valid() ||
			int(node.Depth)+1 > p.MaxDepth ||
			(p.MaxLeaves > 0 && int(*ws.nLeaves) >= p.MaxLeaves) ||
			int(node.Count) < p.MinSamplesSplit ||
			int(node.Count) < 2*p.MinSamplesLeaf ||
			(*b).totalNodes+int(*ws.nNodes)+2 > ws.shape.maxNodes

		if forceLeaf {
			node.MakeLeaf((*b).objective.LeafPrediction(labels, rowids, node.Start, node.Count))
			atomicMaxInt32(ws.nDepth, node.Depth)
			continue
		}

		pos := atomic.AddInt32(ws.nNodes, 2) - 2
		leftId := int32((*b).totalNodes) + pos

		node.IsLeaf = false
		node.SplitFeature = sp.Column
		node.SplitThreshold = sp.Threshold
		node.LeftChildId = leftId

		left := tree.Node{Start: node.Start, Count: sp.NLeft, Depth: node.Depth + 1, UniqueId: leftId}
		left.InitSpNode()
		right := tree.Node{Start: node.Start + sp.NLeft, Count: node.Count - sp.NLeft, Depth: node.Depth + 1, UniqueId: leftId + 1}
		right.InitSpNode()
		ws.nextNodes[pos] = left
		ws.nextNodes[pos+1] = right

		// 一次split把一个潜在叶子换成两个，净增1
		*ws.nLeaves += 1
		atomicMaxInt32(ws.nDepth, node.Depth+1)
		pending = append(pending, int32(i))
	}

	launchGrid(len(pending), (*b).maxBlocks, func(t int) {
		b.partitionNode(int(pending[t]))
	})

	return int(*ws.nNodes)
}

// partitionNode 把一个结点的rowids段按阈值稳定地分成左右两段。
// 直方图里bin<=splitBin等价于value<=threshold，所以左段长度正好是NLeft。
// 各结点的段互不相交，scatter区可以并行写
func (b *Builder) partitionNode(n int) {
	ws := &(*b).ws
	node := &ws.currNodes[n]
	rowids := (*b).input.Rowids
	ds := (*b).input.Dataset

	lo := int(node.Start)
	hi := lo + int(node.Count)
	lp := lo
	rp := lo + int(ws.splits[n].NLeft)
	col := int(node.SplitFeature)
	thr := node.SplitThreshold

	for i := lo; i < hi; i++ {
		row := rowids[i]
		if ds.At(int(row), col) <= thr {
			ws.scatter[lp] = row
			lp++
		} else {
			ws.scatter[rp] = row
			rp++
		}
	}
	copy(rowids[lo:hi], ws.scatter[lo:hi])
}
