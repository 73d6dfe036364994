/*
	forest层的编排：按配置并发建若干棵树，每棵树一条"stream"(一个goroutine)，
	树之间只共享只读的输入视图，workspace各用各的。builder本身没有任何跨树状态。
*/

package forest

import (
	"fmt"
	"sync"

	cmap "github.com/orcaman/concurrent-map"

	"github.com/venkywonka/cuml/cuml-share/base/logger"
	"github.com/venkywonka/cuml/decision_tree/builder"
	"github.com/venkywonka/cuml/decision_tree/format"
	"github.com/venkywonka/cuml/decision_tree/ml/tree"
	"github.com/venkywonka/cuml/decision_tree/param"
	"gorgonia.org/tensor"
)

// Config forest训练的配置
type Config struct {
	TreeNum int   // TreeNum 树的数量
	Seed    int64 // Seed 随机种子，(Seed, treeid)决定每棵树的采样
	Streams int   // Streams 同时建几棵树，<=0表示逐棵建
	Params  param.DecisionTreeParams
}

// Forest 训练好的森林
type Forest struct {
	Trees     []*tree.Tree
	Criterion param.CriterionType
	NClasses  int
}

// activeBuilders 正在建树的builder注册表，key是treeid。主要给运维侧观察
// 当前有哪些树在跑，训练逻辑不依赖它
var activeBuilders = cmap.New()

// Fit 训练一个森林
func Fit(ds *format.Dataset, cfg Config) (*Forest, error) {
	if ds == nil {
		return nil, fmt.Errorf("forest: nil dataset")
	}
	if cfg.TreeNum < 1 {
		return nil, fmt.Errorf("forest: tree_num should be >= 1, got %d", cfg.TreeNum)
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}

	// 全局分位数算一次，除非每棵树要用自己采样行上的分位数
	var shared *format.Quantiles
	if !cfg.Params.QuantilePerTree {
		var err error
		shared, err = format.ComputeQuantiles(ds, cfg.Params.NBins, nil)
		if err != nil {
			return nil, err
		}
	}

	streams := cfg.Streams
	if streams <= 0 {
		streams = 1
	}
	sem := make(chan struct{}, streams)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	trees := make([]*tree.Tree, cfg.TreeNum)
	for treeid := 0; treeid < cfg.TreeNum; treeid++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(treeid int) {
			defer wg.Done()
			defer func() { <-sem }()

			t, err := fitOne(ds, shared, cfg, treeid)
			if err != nil {
				logger.Errorf("tree %d failed: %v", treeid, err)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			trees[treeid] = t
		}(treeid)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	return &Forest{Trees: trees, Criterion: cfg.Params.SplitCriterion, NClasses: ds.NumClasses()}, nil
}

// fitOne 建第treeid棵树：采样、算workspace、绑定、train
func fitOne(ds *format.Dataset, shared *format.Quantiles, cfg Config, treeid int) (*tree.Tree, error) {
	rng := treeRng(cfg.Seed, treeid)
	rowids := sampleRows(rng, ds.Rows(), cfg.Params.Bootstrap)
	colids := sampleCols(rng, ds.Cols(), cfg.Params.MaxFeatures, cfg.Params.BootstrapFeatures)

	quantiles := shared
	if quantiles == nil {
		var err error
		quantiles, err = format.ComputeQuantiles(ds, cfg.Params.NBins, rowids)
		if err != nil {
			return nil, err
		}
	}

	bld, err := builder.New(cfg.Params, builder.Input{
		Dataset:   ds,
		Quantiles: quantiles,
		Rowids:    rowids,
		Colids:    colids,
	})
	if err != nil {
		return nil, err
	}

	// workspace在train外面分配和释放，builder只是借用
	devBytes, hostBytes := bld.WorkspaceSize()
	device := make([]byte, devBytes)
	host := make([]byte, hostBytes)
	if err := bld.AssignWorkspace(device, host); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("tree-%d", treeid)
	activeBuilders.Set(key, bld)
	defer activeBuilders.Remove(key)

	t, err := bld.Train()
	if err != nil {
		return nil, err
	}
	logger.Infof("tree %d done: %d nodes, %d leaves, depth %d", treeid, len(t.Nodes), t.NumLeaves, t.Depth)
	return t, nil
}

// ActiveTreeNum 当前在跑的树数量
func ActiveTreeNum() int {
	return activeBuilders.Count()
}

// PredictDataset 对一个已经建好视图的数据集逐行预测
func (f *Forest) PredictDataset(ds *format.Dataset) ([]float64, error) {
	if ds == nil {
		return nil, fmt.Errorf("forest: nil dataset")
	}
	out := make([]float64, ds.Rows())
	votes := []int(nil)
	if (*f).NClasses > 1 {
		votes = make([]int, (*f).NClasses)
	}
	for r := 0; r < ds.Rows(); r++ {
		at := func(col int32) float64 {
			return ds.At(r, int(col))
		}
		out[r] = f.predictOne(at, votes)
	}
	return out, nil
}

// predictOne 单行：分类投票、回归取均值。votes是分类时复用的计票buffer
func (f *Forest) predictOne(at func(col int32) float64, votes []int) float64 {
	if votes != nil {
		for i := range votes {
			votes[i] = 0
		}
		for _, t := range (*f).Trees {
			votes[int(t.PredictRow(at))]++
		}
		bestC, bestN := 0, -1
		for c, n := range votes {
			if n > bestN {
				bestC, bestN = c, n
			}
		}
		return float64(bestC)
	}
	sum := 0.0
	for _, t := range (*f).Trees {
		sum += t.PredictRow(at)
	}
	return sum / float64(len((*f).Trees))
}

// Predict 对X的每一行给出预测。X要和训练数据一样是列主序的
func (f *Forest) Predict(x *tensor.Dense) ([]float64, error) {
	shape := x.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("forest: expected a 2-D matrix, got shape %v", shape)
	}
	if !x.DataOrder().IsColMajor() {
		return nil, fmt.Errorf("forest: row-major input is not accepted")
	}
	raw, ok := x.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("forest: expected float64 backing, got %T", x.Data())
	}
	rows := shape[0]

	out := make([]float64, rows)
	votes := []int(nil)
	if (*f).NClasses > 1 {
		votes = make([]int, (*f).NClasses)
	}
	for r := 0; r < rows; r++ {
		at := func(col int32) float64 {
			return raw[int(col)*rows+r]
		}
		out[r] = f.predictOne(at, votes)
	}
	return out, nil
}
