/*
	建树参数。这里只做校验和解析，不做任何默认值以外的逻辑，builder拿到的就是合法的参数。
*/

package param

import (
	"fmt"
)

// CriterionType 划分指标类型
type CriterionType int8

const (
	GINI CriterionType = iota
	ENTROPY
	MSE
	MAE
	POISSON
)

func (c CriterionType) String() string {
	switch c {
	case GINI:
		return "gini"
	case ENTROPY:
		return "entropy"
	case MSE:
		return "mse"
	case MAE:
		return "mae"
	case POISSON:
		return "poisson"
	default:
		return fmt.Sprintf("criterion(%d)", int8(c))
	}
}

// CriterionByName 由名字解析criterion，未知的返回error
func CriterionByName(n string) (CriterionType, error) {
	switch n {
	case "gini":
		return GINI, nil
	case "entropy":
		return ENTROPY, nil
	case "mse":
		return MSE, nil
	case "mae":
		return MAE, nil
	case "poisson":
		return POISSON, nil
	default:
		return GINI, fmt.Errorf("unknown criterion:%s", n)
	}
}

// IsRegression 该指标是否是回归指标
func (c CriterionType) IsRegression() bool {
	return c == MSE || c == MAE || c == POISSON
}

// DecisionTreeParams 单棵树的构建参数
type DecisionTreeParams struct {
	MaxDepth            int           // MaxDepth 树的最大深度，根为0，0就表示只有根这一个叶子
	MaxLeaves           int           // MaxLeaves 叶子数上限，-1表示不限制
	MaxBatchSize        int           // MaxBatchSize 一个batch里最多同时处理的frontier结点数
	NBins               int           // NBins 每列的直方图bin数
	MinSamplesSplit     int           // MinSamplesSplit 尝试划分所需的最少实例数
	MinSamplesLeaf      int           // MinSamplesLeaf 每个子结点最少实例数
	MinImpurityDecrease float64       // MinImpurityDecrease 接受划分所需的最小gain
	SplitCriterion      CriterionType // SplitCriterion 划分指标
	MaxFeatures         float64       // MaxFeatures 每棵树采样列的比例，(0,1]
	Bootstrap           bool          // Bootstrap 行是否有放回采样，forest那边用
	BootstrapFeatures   bool          // BootstrapFeatures 列是否有放回采样，forest那边用
	QuantilePerTree     bool          // QuantilePerTree 是否每棵树单独算分位数，forest那边用
}

// DefaultParams 一套可用的默认参数
func DefaultParams() DecisionTreeParams {
	return DecisionTreeParams{
		MaxDepth:            16,
		MaxLeaves:           -1,
		MaxBatchSize:        4096,
		NBins:               128,
		MinSamplesSplit:     2,
		MinSamplesLeaf:      1,
		MinImpurityDecrease: 0.0,
		SplitCriterion:      GINI,
		MaxFeatures:         1.0,
		Bootstrap:           true,
	}
}

// Validate 参数检查，任何一项不合法都在建树前报出来
func (p *DecisionTreeParams) Validate() error {
	if (*p).MaxDepth < 0 {
		return fmt.Errorf("max_depth should be >= 0, got %d", (*p).MaxDepth)
	}
	if (*p).MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size should be > 0, got %d", (*p).MaxBatchSize)
	}
	if (*p).NBins < 1 {
		return fmt.Errorf("n_bins should be >= 1, got %d", (*p).NBins)
	}
	if (*p).MinSamplesSplit < 2 {
		return fmt.Errorf("min_samples_split should be >= 2, got %d", (*p).MinSamplesSplit)
	}
	if (*p).MinSamplesLeaf < 1 {
		return fmt.Errorf("min_samples_leaf should be >= 1, got %d", (*p).MinSamplesLeaf)
	}
	if (*p).MinImpurityDecrease < 0 {
		return fmt.Errorf("min_impurity_decrease should be >= 0, got %v", (*p).MinImpurityDecrease)
	}
	if !((*p).MaxFeatures > 0 && (*p).MaxFeatures <= 1) {
		return fmt.Errorf("max_features expected in range (0,1], got %v", (*p).MaxFeatures)
	}
	switch (*p).SplitCriterion {
	case GINI, ENTROPY, MSE, MAE:
	case POISSON:
		// 枚举里有，但核心还没有对应的objective实现
		return fmt.Errorf("criterion %s is not supported yet", (*p).SplitCriterion)
	default:
		return fmt.Errorf("unknown criterion:%d", (*p).SplitCriterion)
	}
	return nil
}
