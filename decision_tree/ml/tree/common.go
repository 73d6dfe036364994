package tree

import "math"

// FeatureId 标志一列特征
type FeatureId = int32

const EPSILON = 2.220446049250313e-16

// SENTINEL_GAIN 无效划分的gain哨兵。用-MaxFloat64而不是-Inf，这样比较是全序的，
// 和NaN混进来也不会把哨兵传染掉
const SENTINEL_GAIN = -math.MaxFloat64

var (
	INFINITY     = math.Inf(1)
	NEG_INFINITY = math.Inf(-1)
)
