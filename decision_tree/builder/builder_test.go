package builder

import (
	"math"
	"reflect"
	"testing"

	"github.com/venkywonka/cuml/decision_tree/format"
	"github.com/venkywonka/cuml/decision_tree/ml/tree"
	"github.com/venkywonka/cuml/decision_tree/param"
	"gorgonia.org/tensor"
)

// newTestDataset cols是按列给的数据。AsFortran把backing当行主序读、再转置存成列主序，
// 所以这里先按行主序铺开
func newTestDataset(t *testing.T, cols [][]float64, labels []float64, nclasses int) *format.Dataset {
	t.Helper()
	rows := len(cols[0])
	backing := make([]float64, rows*len(cols))
	for c, col := range cols {
		if len(col) != rows {
			t.Fatalf("ragged columns")
		}
		for r, v := range col {
			backing[r*len(cols)+c] = v
		}
	}
	dense := tensor.New(tensor.WithShape(rows, len(cols)), tensor.AsFortran(backing))
	ds, err := format.NewDataset(dense, labels, nclasses)
	if err != nil {
		t.Fatalf("NewDataset: %v", err)
	}
	return ds
}

// trainTree 全行全列，分位数边界直接指定
func trainTree(t *testing.T, ds *format.Dataset, edges [][]float64, p param.DecisionTreeParams) *tree.Tree {
	t.Helper()
	flat := make([]float64, 0)
	for _, e := range edges {
		flat = append(flat, e...)
	}
	q, err := format.NewQuantiles(flat, p.NBins, len(edges))
	if err != nil {
		t.Fatalf("NewQuantiles: %v", err)
	}
	rowids := make([]int32, ds.Rows())
	for i := range rowids {
		rowids[i] = int32(i)
	}
	colids := make([]int32, ds.Cols())
	for i := range colids {
		colids[i] = int32(i)
	}
	b, err := New(p, Input{Dataset: ds, Quantiles: q, Rowids: rowids, Colids: colids})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dev, host := b.WorkspaceSize()
	if err := b.AssignWorkspace(make([]byte, dev), make([]byte, host)); err != nil {
		t.Fatalf("AssignWorkspace: %v", err)
	}
	out, err := b.Train()
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	checkTreeInvariants(t, out, p)
	return out
}

// checkTreeInvariants 对任何产出的树都成立的性质
func checkTreeInvariants(t *testing.T, out *tree.Tree, p param.DecisionTreeParams) {
	t.Helper()
	leaves := 0
	maxDepth := int32(0)
	for i := range out.Nodes {
		n := &out.Nodes[i]
		if n.Depth > maxDepth {
			maxDepth = n.Depth
		}
		if int(n.Depth) > p.MaxDepth {
			t.Errorf("node %d depth %d exceeds max_depth %d", i, n.Depth, p.MaxDepth)
		}
		if n.IsLeaf {
			leaves++
			if n.SplitFeature != -1 || n.LeftChildId != -1 {
				t.Errorf("leaf %d carries split info: %+v", i, *n)
			}
			continue
		}
		l := &out.Nodes[n.LeftChildId]
		r := &out.Nodes[n.LeftChildId+1]
		if l.Count+r.Count != n.Count {
			t.Errorf("node %d children counts %d+%d != %d", i, l.Count, r.Count, n.Count)
		}
		if l.Start != n.Start || r.Start != n.Start+l.Count {
			t.Errorf("node %d children ranges not a partition: %+v %+v", i, *l, *r)
		}
		if l.Depth != n.Depth+1 || r.Depth != n.Depth+1 {
			t.Errorf("node %d children depth wrong", i)
		}
		if int(l.Count) < p.MinSamplesLeaf || int(r.Count) < p.MinSamplesLeaf {
			t.Errorf("node %d child below min_samples_leaf: %d/%d", i, l.Count, r.Count)
		}
	}
	if leaves != out.NumLeaves {
		t.Errorf("counted %d leaves, NumLeaves=%d", leaves, out.NumLeaves)
	}
	if int(maxDepth) != out.Depth {
		t.Errorf("max node depth %d, Depth=%d", maxDepth, out.Depth)
	}
	if p.MaxLeaves > 0 && out.NumLeaves > p.MaxLeaves {
		t.Errorf("NumLeaves %d exceeds max_leaves %d", out.NumLeaves, p.MaxLeaves)
	}
}

func smallParams() param.DecisionTreeParams {
	p := param.DefaultParams()
	p.MaxDepth = 2
	p.NBins = 2
	p.MaxBatchSize = 8
	return p
}

func TestPureSplit(t *testing.T) {
	ds := newTestDataset(t, [][]float64{{0.1, 0.2, 0.8, 0.9}}, []float64{0, 0, 1, 1}, 2)
	out := trainTree(t, ds, [][]float64{{0.5, 1.0}}, smallParams())

	if len(out.Nodes) != 3 || out.NumLeaves != 2 || out.Depth != 1 {
		t.Fatalf("tree = %d nodes, %d leaves, depth %d; want 3/2/1", len(out.Nodes), out.NumLeaves, out.Depth)
	}
	root := out.Nodes[0]
	if root.SplitFeature != 0 || root.SplitThreshold != 0.5 {
		t.Errorf("root split = col %d thr %v, want col 0 thr 0.5", root.SplitFeature, root.SplitThreshold)
	}
	l, r := out.Nodes[root.LeftChildId], out.Nodes[root.LeftChildId+1]
	if l.Count != 2 || r.Count != 2 {
		t.Errorf("children counts %d/%d, want 2/2", l.Count, r.Count)
	}
	if l.Prediction != 0 || r.Prediction != 1 {
		t.Errorf("leaf predictions %v/%v, want 0/1", l.Prediction, r.Prediction)
	}
}

func TestForcedLeafByMinSamplesLeaf(t *testing.T) {
	ds := newTestDataset(t, [][]float64{{0.1, 0.2, 0.3, 0.9}}, []float64{0, 0, 0, 1}, 2)
	p := smallParams()
	p.MinSamplesLeaf = 2
	out := trainTree(t, ds, [][]float64{{0.5, 1.0}}, p)

	if len(out.Nodes) != 1 || !out.Nodes[0].IsLeaf {
		t.Fatalf("expected a single leaf, got %d nodes", len(out.Nodes))
	}
	if out.NumLeaves != 1 || out.Depth != 0 {
		t.Errorf("leaves/depth = %d/%d, want 1/0", out.NumLeaves, out.Depth)
	}
	if out.Nodes[0].Prediction != 0 {
		t.Errorf("root prediction %v, want majority class 0", out.Nodes[0].Prediction)
	}
}

func TestRegressionConstantTarget(t *testing.T) {
	ds := newTestDataset(t, [][]float64{{0.1, 0.4, 0.6, 0.9}}, []float64{5, 5, 5, 5}, 1)
	p := smallParams()
	p.SplitCriterion = param.MSE
	out := trainTree(t, ds, [][]float64{{0.5, 1.0}}, p)

	if len(out.Nodes) != 1 || out.NumLeaves != 1 {
		t.Fatalf("constant target should give a single leaf, got %d nodes", len(out.Nodes))
	}
	if out.Nodes[0].Prediction != 5 {
		t.Errorf("prediction %v, want 5", out.Nodes[0].Prediction)
	}
}

// fourClassDataset 16个实例，4类各4个，一列就能完美分开
func fourClassDataset(t *testing.T) *format.Dataset {
	vals := make([]float64, 16)
	labels := make([]float64, 16)
	for i := 0; i < 16; i++ {
		vals[i] = float64(i+1) / 16
		labels[i] = float64(i / 4)
	}
	return newTestDataset(t, [][]float64{vals}, labels, 4)
}

var fourClassEdges = [][]float64{{0.25, 0.5, 0.75, 1.0}}

func TestMaxLeavesCap(t *testing.T) {
	p := param.DefaultParams()
	p.MaxDepth = 8
	p.NBins = 4
	p.MaxBatchSize = 8
	p.MaxLeaves = 3
	out := trainTree(t, fourClassDataset(t), fourClassEdges, p)

	if out.NumLeaves != 3 {
		t.Fatalf("NumLeaves = %d, want exactly 3", out.NumLeaves)
	}
}

func TestDepthCap(t *testing.T) {
	p := param.DefaultParams()
	p.MaxDepth = 1
	p.NBins = 4
	p.MaxBatchSize = 8
	out := trainTree(t, fourClassDataset(t), fourClassEdges, p)

	if out.Depth != 1 {
		t.Fatalf("Depth = %d, want 1", out.Depth)
	}
	for i := range out.Nodes {
		if out.Nodes[i].Depth == 1 && !out.Nodes[i].IsLeaf {
			t.Errorf("depth-1 node %d should be a leaf", i)
		}
	}
}

func TestMaxDepthZero(t *testing.T) {
	p := smallParams()
	p.MaxDepth = 0
	ds := newTestDataset(t, [][]float64{{0.1, 0.2, 0.8, 0.9}}, []float64{0, 0, 1, 1}, 2)
	out := trainTree(t, ds, [][]float64{{0.5, 1.0}}, p)

	if len(out.Nodes) != 1 || out.NumLeaves != 1 || out.Depth != 0 {
		t.Fatalf("max_depth=0 should give the root leaf only, got %d/%d/%d",
			len(out.Nodes), out.NumLeaves, out.Depth)
	}
}

func TestTieBreakLowerColumn(t *testing.T) {
	// 两列一模一样，gain相同，必须记下列号小的
	col := []float64{0.1, 0.2, 0.8, 0.9}
	ds := newTestDataset(t, [][]float64{col, col}, []float64{0, 0, 1, 1}, 2)
	out := trainTree(t, ds, [][]float64{{0.5, 1.0}, {0.5, 1.0}}, smallParams())

	if out.Nodes[0].SplitFeature != 0 {
		t.Errorf("tie should go to column 0, got %d", out.Nodes[0].SplitFeature)
	}
}

func TestRegressionMSETree(t *testing.T) {
	ds := newTestDataset(t, [][]float64{{0.1, 0.2, 0.8, 0.9}}, []float64{1, 1, 3, 3}, 1)
	p := smallParams()
	p.SplitCriterion = param.MSE
	out := trainTree(t, ds, [][]float64{{0.5, 1.0}}, p)

	if len(out.Nodes) != 3 || out.NumLeaves != 2 {
		t.Fatalf("tree = %d nodes %d leaves, want 3/2", len(out.Nodes), out.NumLeaves)
	}
	root := out.Nodes[0]
	if root.SplitThreshold != 0.5 {
		t.Errorf("root threshold %v, want 0.5", root.SplitThreshold)
	}
	l, r := out.Nodes[root.LeftChildId], out.Nodes[root.LeftChildId+1]
	if math.Abs(l.Prediction-1) > 1e-12 || math.Abs(r.Prediction-3) > 1e-12 {
		t.Errorf("leaf predictions %v/%v, want 1/3", l.Prediction, r.Prediction)
	}
}

func TestRegressionMAETree(t *testing.T) {
	ds := newTestDataset(t, [][]float64{{0.1, 0.2, 0.8, 0.9}}, []float64{1, 1, 3, 3}, 1)
	p := smallParams()
	p.SplitCriterion = param.MAE
	out := trainTree(t, ds, [][]float64{{0.5, 1.0}}, p)

	if len(out.Nodes) != 3 || out.NumLeaves != 2 {
		t.Fatalf("tree = %d nodes %d leaves, want 3/2", len(out.Nodes), out.NumLeaves)
	}
	root := out.Nodes[0]
	if root.SplitThreshold != 0.5 {
		t.Errorf("root threshold %v, want 0.5", root.SplitThreshold)
	}
}

func TestDeterministicClassification(t *testing.T) {
	// 同样的输入和参数，新的workspace，结点序列必须逐字段一致
	p := param.DefaultParams()
	p.MaxDepth = 6
	p.NBins = 4
	p.MaxBatchSize = 2 // 逼出多个batch
	a := trainTree(t, fourClassDataset(t), fourClassEdges, p)
	b := trainTree(t, fourClassDataset(t), fourClassEdges, p)

	if !reflect.DeepEqual(a.Nodes, b.Nodes) {
		t.Errorf("two builds diverged:\n%v\nvs\n%v", a.Nodes, b.Nodes)
	}
	if a.NumLeaves != b.NumLeaves || a.Depth != b.Depth {
		t.Errorf("counters diverged: %d/%d vs %d/%d", a.NumLeaves, a.Depth, b.NumLeaves, b.Depth)
	}
}

func TestRowidsPartition(t *testing.T) {
	// 内部结点的rowids子段是父结点子段的一个划分(multiset意义上相等)
	ds := fourClassDataset(t)
	p := param.DefaultParams()
	p.MaxDepth = 4
	p.NBins = 4
	p.MaxBatchSize = 8

	flat := append([]float64(nil), fourClassEdges[0]...)
	q, err := format.NewQuantiles(flat, p.NBins, 1)
	if err != nil {
		t.Fatal(err)
	}
	rowids := make([]int32, 16)
	for i := range rowids {
		rowids[i] = int32(i)
	}
	b, err := New(p, Input{Dataset: ds, Quantiles: q, Rowids: rowids, Colids: []int32{0}})
	if err != nil {
		t.Fatal(err)
	}
	dev, host := b.WorkspaceSize()
	if err := b.AssignWorkspace(make([]byte, dev), make([]byte, host)); err != nil {
		t.Fatal(err)
	}
	out, err := b.Train()
	if err != nil {
		t.Fatal(err)
	}
	checkTreeInvariants(t, out, p)

	// 整个rowids还是0..15的一个排列
	seen := make([]bool, 16)
	for _, r := range rowids {
		if seen[r] {
			t.Fatalf("rowid %d duplicated after partitioning", r)
		}
		seen[r] = true
	}
	// 每个叶子的段内实例确实落在这个叶子上
	for i := range out.Nodes {
		n := &out.Nodes[i]
		if !n.IsLeaf {
			continue
		}
		for j := n.Start; j < n.Start+n.Count; j++ {
			row := rowids[j]
			if pred := routeRow(out, ds, int(row)); pred != i {
				t.Errorf("row %d in leaf %d slice but routes to node %d", row, i, pred)
			}
		}
	}
}

// routeRow 按划分规则从根走到叶，返回叶子下标
func routeRow(out *tree.Tree, ds *format.Dataset, row int) int {
	cur := int32(0)
	for !out.Nodes[cur].IsLeaf {
		n := &out.Nodes[cur]
		if ds.At(row, int(n.SplitFeature)) <= n.SplitThreshold {
			cur = n.LeftChildId
		} else {
			cur = n.LeftChildId + 1
		}
	}
	return int(cur)
}

func TestMissingQuantiles(t *testing.T) {
	ds := newTestDataset(t, [][]float64{{0.1, 0.9}}, []float64{0, 1}, 2)
	_, err := New(smallParams(), Input{Dataset: ds, Rowids: []int32{0, 1}, Colids: []int32{0}})
	if err == nil {
		t.Fatalf("missing quantiles should fail fast")
	}
}

func TestWorkspaceNotAssigned(t *testing.T) {
	ds := newTestDataset(t, [][]float64{{0.1, 0.9}}, []float64{0, 1}, 2)
	q, _ := format.NewQuantiles([]float64{0.5, 1.0}, 2, 1)
	b, err := New(smallParams(), Input{Dataset: ds, Quantiles: q, Rowids: []int32{0, 1}, Colids: []int32{0}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Train(); err == nil {
		t.Fatalf("train without workspace should fail")
	}
}
