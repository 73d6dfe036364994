package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/venkywonka/cuml/cuml-share/base/config"
	"github.com/venkywonka/cuml/decision_tree/format"
	"github.com/venkywonka/cuml/decision_tree/param"
	"github.com/venkywonka/cuml/forest"
)

// TrainRequest 一次训练请求。没给的参数用配置文件里trainer_config的默认值
type TrainRequest struct {
	Data     DataSpec       `json:"data"`
	TreeNum  *int           `json:"treeNum"`
	Streams  int            `json:"streams"`
	Seed     *int64         `json:"seed"`
	Params   ParamOverrides `json:"params"`
	DotPath  string         `json:"dotPath"` // 非空时把第0棵树导出成dot
	Evaluate bool           `json:"evaluate"`
}

type DataSpec struct {
	FeaturesPath string `json:"featuresPath"` // .npy的特征矩阵
	LabelsPath   string `json:"labelsPath"`   // .npy的标签
	NClasses     int    `json:"nclasses"`     // 回归填1
}

// ParamOverrides 请求里可以覆盖的建树参数，指针为nil表示不覆盖
type ParamOverrides struct {
	MaxDepth            *int     `json:"maxDepth"`
	MaxLeaves           *int     `json:"maxLeaves"`
	MaxBatchSize        *int     `json:"maxBatchSize"`
	NBins               *int     `json:"nBins"`
	MinSamplesSplit     *int     `json:"minSamplesSplit"`
	MinSamplesLeaf      *int     `json:"minSamplesLeaf"`
	MinImpurityDecrease *float64 `json:"minImpurityDecrease"`
	SplitCriterion      *string  `json:"splitCriterion"`
	MaxFeatures         *float64 `json:"maxFeatures"`
	Bootstrap           *bool    `json:"bootstrap"`
	BootstrapFeatures   *bool    `json:"bootstrapFeatures"`
	QuantilePerTree     *bool    `json:"quantilePerTree"`
}

type TreeSummary struct {
	NodeNum   int `json:"nodeNum"`
	NumLeaves int `json:"numLeaves"`
	Depth     int `json:"depth"`
}

func train(c *gin.Context) {
	var requestJson TrainRequest
	if err := c.ShouldBindJSON(&requestJson); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	start := time.Now()
	f, ds, err := runTrain(&requestJson)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	summaries := make([]TreeSummary, len(f.Trees))
	for i, t := range f.Trees {
		summaries[i] = TreeSummary{NodeNum: len(t.Nodes), NumLeaves: t.NumLeaves, Depth: t.Depth}
	}
	resp := gin.H{
		"success":    true,
		"trees":      summaries,
		"spent_time": time.Since(start).String(),
	}
	if requestJson.Evaluate {
		// 在训练集上自评一下，只是个sanity check
		pred, perr := predictTrainingSet(f, ds)
		if perr == nil {
			if ds.NumClasses() > 1 {
				resp["train_accuracy"] = forest.Accuracy(pred, ds.Labels())
			} else {
				resp["train_mse"] = forest.MeanSquaredError(pred, ds.Labels())
			}
		}
	}
	if requestJson.DotPath != "" && len(f.Trees) > 0 {
		if derr := f.Trees[0].ToSimpleGraph(requestJson.DotPath); derr != nil {
			resp["dot_error"] = derr.Error()
		}
	}
	c.JSON(http.StatusOK, resp)
}

func runTrain(req *TrainRequest) (*forest.Forest, *format.Dataset, error) {
	data, err := format.LoadMatrixNpy(req.Data.FeaturesPath)
	if err != nil {
		return nil, nil, err
	}
	labels, err := format.LoadLabelsNpy(req.Data.LabelsPath)
	if err != nil {
		return nil, nil, err
	}
	nclasses := req.Data.NClasses
	if nclasses == 0 {
		nclasses = 1
	}
	ds, err := format.NewDataset(data, labels, nclasses)
	if err != nil {
		return nil, nil, err
	}

	cfg := configFromRequest(req)
	f, err := forest.Fit(ds, cfg)
	if err != nil {
		return nil, nil, err
	}
	return f, ds, nil
}

// configFromRequest 配置默认值加请求覆盖
func configFromRequest(req *TrainRequest) forest.Config {
	tc := config.All.Trainer
	p := param.DefaultParams()
	p.MaxDepth = tc.MaxDepth
	p.MaxLeaves = tc.MaxLeaves
	p.MaxBatchSize = tc.MaxBatchSize
	p.NBins = tc.NBins
	p.MinSamplesSplit = tc.MinSamplesSplit
	p.MinSamplesLeaf = tc.MinSamplesLeaf
	p.MinImpurityDecrease = tc.MinImpurityDecrease
	if crit, err := param.CriterionByName(tc.SplitCriterion); err == nil {
		p.SplitCriterion = crit
	}
	p.MaxFeatures = tc.MaxFeatures
	p.Bootstrap = tc.Bootstrap
	p.BootstrapFeatures = tc.BootstrapFeatures
	p.QuantilePerTree = tc.QuantilePerTree

	o := req.Params
	if o.MaxDepth != nil {
		p.MaxDepth = *o.MaxDepth
	}
	if o.MaxLeaves != nil {
		p.MaxLeaves = *o.MaxLeaves
	}
	if o.MaxBatchSize != nil {
		p.MaxBatchSize = *o.MaxBatchSize
	}
	if o.NBins != nil {
		p.NBins = *o.NBins
	}
	if o.MinSamplesSplit != nil {
		p.MinSamplesSplit = *o.MinSamplesSplit
	}
	if o.MinSamplesLeaf != nil {
		p.MinSamplesLeaf = *o.MinSamplesLeaf
	}
	if o.MinImpurityDecrease != nil {
		p.MinImpurityDecrease = *o.MinImpurityDecrease
	}
	if o.SplitCriterion != nil {
		if crit, err := param.CriterionByName(*o.SplitCriterion); err == nil {
			p.SplitCriterion = crit
		}
	}
	if o.MaxFeatures != nil {
		p.MaxFeatures = *o.MaxFeatures
	}
	if o.Bootstrap != nil {
		p.Bootstrap = *o.Bootstrap
	}
	if o.BootstrapFeatures != nil {
		p.BootstrapFeatures = *o.BootstrapFeatures
	}
	if o.QuantilePerTree != nil {
		p.QuantilePerTree = *o.QuantilePerTree
	}

	treeNum := tc.TreeNum
	if req.TreeNum != nil {
		treeNum = *req.TreeNum
	}
	seed := tc.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}
	return forest.Config{TreeNum: treeNum, Seed: seed, Streams: req.Streams, Params: p}
}

// predictTrainingSet 拿训练矩阵自身跑一遍预测
func predictTrainingSet(f *forest.Forest, ds *format.Dataset) ([]float64, error) {
	return f.PredictDataset(ds)
}
