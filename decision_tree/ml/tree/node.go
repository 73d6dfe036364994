/*
	树的结点模型。树用一个扁平数组组织，child存数组下标，结点按创建顺序append，
	写进去之后身份就不变了，只有叶子/内部状态和child链接在split时设置一次。
*/

package tree

import (
	"fmt"
	"os"

	"github.com/awalterschulze/gographviz"
)

// Node frontier上的一个结点。Start~Start+Count是rowids里一段连续的切片，
// 兄弟结点的切片不相交，合起来正好是父结点的切片
type Node struct {
	Start int32 // Start rowids里的起始下标
	Count int32 // Count 该结点的实例数
	Depth int32 // Depth 根为0，child比parent多1

	Prediction     float64 // Prediction 叶子预测值，分类是多数类id，回归是均值
	SplitFeature   int32   // SplitFeature 划分用的列，叶子为-1
	SplitThreshold float64 // SplitThreshold 划分阈值，小于等于走左边
	LeftChildId    int32   // LeftChildId 左孩子下标，右孩子是LeftChildId+1，叶子为-1
	IsLeaf         bool
	UniqueId       int32 // UniqueId 创建顺序编号，root为0
}

// InitSpNode 把一个结点初始化成"待划分"状态
func (n *Node) InitSpNode() {
	(*n).IsLeaf = false
	(*n).SplitFeature = -1
	(*n).LeftChildId = -1
}

// MakeLeaf 定成叶子，叶子的划分信息全部回到哨兵值
func (n *Node) MakeLeaf(prediction float64) {
	(*n).IsLeaf = true
	(*n).SplitFeature = -1
	(*n).LeftChildId = -1
	(*n).Prediction = prediction
}

// Tree 一棵建好的树：按创建顺序(不是遍历顺序)排的结点序列
type Tree struct {
	Nodes     []Node
	NumLeaves int
	Depth     int
}

// ToSimpleGraph 把树导出成graphviz的dot文件，排查建树问题时很好用
func (t *Tree) ToSimpleGraph(outPath string) error {
	graphAst, _ := gographviz.Parse([]byte(`digraph G{}`))
	graph := gographviz.NewGraph()
	if err := gographviz.Analyse(graphAst, graph); err != nil {
		return err
	}

	for i := range (*t).Nodes {
		nodeI := &(*t).Nodes[i]
		if nodeI.IsLeaf {
			_ = graph.AddNode("G", fmt.Sprintf("%d", i), map[string]string{"label": fmt.Sprintf("<id = %d<br/>samples = %d<br/>prediction = %v>",
				i, nodeI.Count, nodeI.Prediction)})
		} else {
			_ = graph.AddNode("G", fmt.Sprintf("%d", i), map[string]string{"label": fmt.Sprintf("<id = %d<br/>X[%d] &lt;= %v<br/>samples = %d>",
				i, nodeI.SplitFeature, nodeI.SplitThreshold, nodeI.Count)})
		}
	}
	for i := range (*t).Nodes {
		nodeI := &(*t).Nodes[i]
		if !nodeI.IsLeaf {
			_ = graph.AddEdge(fmt.Sprintf("%d", i), fmt.Sprintf("%d", nodeI.LeftChildId), true, nil)
			_ = graph.AddEdge(fmt.Sprintf("%d", i), fmt.Sprintf("%d", nodeI.LeftChildId+1), true, nil)
		}
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if _, err = out.WriteString(graph.String()); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// PredictRow 单行推断，x按列下标取值
func (t *Tree) PredictRow(x func(col int32) float64) float64 {
	cur := int32(0)
	for !(*t).Nodes[cur].IsLeaf {
		n := &(*t).Nodes[cur]
		if x(n.SplitFeature) <= n.SplitThreshold {
			cur = n.LeftChildId
		} else {
			cur = n.LeftChildId + 1
		}
	}
	return (*t).Nodes[cur].Prediction
}
