/*
	目标函数族：把一个(结点,列)的直方图映射成该列上的最优划分。
	四个实现共享同样的两个门槛：左右child的最少实例数、最小gain，
	不满足的候选一律打成SENTINEL_GAIN。
*/

package tree

import (
	"math"

	"github.com/venkywonka/cuml/decision_tree/param"
	"github.com/venkywonka/cuml/decision_tree/util/add"
)

// HistSlice 一个(结点,列)的直方图视图，底层都是workspace里的切片。
// 分类时只有ClassCounts有效；回归时是LabelCdf/CountCdf，MAE还会带上两遍扫描
// 得到的绝对偏差AbsLeft/AbsRight。评估发生在该(结点,列)的所有累加块都到齐之后，
// 此时这些切片已经被选出来的那个评估者做过前缀和，语义是cdf：下标b对应"落在bin<=b"
type HistSlice struct {
	ClassCounts []int64 // ClassCounts 分类：下标c*ClassStride+b，class c落在bin<=b的实例数
	ClassStride int     // ClassStride 相邻class段的间隔，workspace里是NBins+1，紧凑布局就是NBins

	LabelCdf []float64 // LabelCdf 回归：bin<=b的label累和
	CountCdf []int64   // CountCdf 回归：bin<=b的实例数
	LabelSum float64   // LabelSum 父结点的label总和

	AbsLeft   []float64 // AbsLeft MAE第二遍：候选bin b划分后左半边的绝对偏差和
	AbsRight  []float64 // AbsRight 同上，右半边
	ParentAbs float64   // ParentAbs 父结点整体的绝对偏差和

	NBins int
}

// Objective 目标函数的插件接口。Gain对一列的所有候选bin求最优Split，
// LeafPrediction算叶子的预测值
type Objective interface {
	Name() string
	IsRegression() bool
	Gain(h HistSlice, edges []float64, col int32, nSamples int) Split
	LeafPrediction(labels []float64, rowids []int32, start, count int32) float64
}

// NewObjective 按criterion构建objective，不认识的直接报错，不会走到kernel里才发现
func NewObjective(criterion param.CriterionType, nclasses, minSamplesLeaf int, minImpurityDecrease float64) (Objective, error) {
	switch criterion {
	case param.GINI:
		return NewGiniObjective(nclasses, minSamplesLeaf, minImpurityDecrease), nil
	case param.ENTROPY:
		return NewEntropyObjective(nclasses, minSamplesLeaf, minImpurityDecrease), nil
	case param.MSE:
		return NewMSEObjective(minSamplesLeaf, minImpurityDecrease), nil
	case param.MAE:
		return NewMAEObjective(minSamplesLeaf, minImpurityDecrease), nil
	default:
		return nil, &UnknownCriterionError{Criterion: criterion}
	}
}

type UnknownCriterionError struct {
	Criterion param.CriterionType
}

func (e *UnknownCriterionError) Error() string {
	return "unknown or unsupported criterion:" + e.Criterion.String()
}

// ---------------- 分类 ----------------

// GiniObjective 基尼系数
type GiniObjective struct {
	nclasses            int
	minSamplesLeaf      int
	minImpurityDecrease float64
}

func NewGiniObjective(nclasses, minSamplesLeaf int, minImpurityDecrease float64) *GiniObjective {
	return &GiniObjective{nclasses: nclasses, minSamplesLeaf: minSamplesLeaf, minImpurityDecrease: minImpurityDecrease}
}

func (g *GiniObjective) Name() string {
	return "gini"
}

func (g *GiniObjective) IsRegression() bool {
	return false
}

func (g *GiniObjective) Gain(h HistSlice, edges []float64, col int32, nSamples int) Split {
	best := Split{}
	best.Init()
	nBins := h.NBins
	nclasses := (*g).nclasses
	invLen := 1.0 / float64(nSamples)

	for i := 0; i < nBins; i++ {
		nLeft := int64(0)
		for c := 0; c < nclasses; c++ {
			nLeft += h.ClassCounts[c*h.ClassStride+i]
		}
		nRight := int64(nSamples) - nLeft
		if nLeft < int64((*g).minSamplesLeaf) || nRight < int64((*g).minSamplesLeaf) {
			continue
		}
		invLeft := 1.0 / float64(nLeft)
		invRight := 1.0 / float64(nRight)
		gain := 0.0
		parentSq := 0.0
		for c := 0; c < nclasses; c++ {
			lval := float64(h.ClassCounts[c*h.ClassStride+i])
			rval := float64(h.ClassCounts[c*h.ClassStride+nBins-1]) - lval
			gain += (lval*lval*invLeft + rval*rval*invRight) * invLen
			p := (lval + rval) * invLen
			parentSq += p * p
		}
		gain -= parentSq
		if gain <= (*g).minImpurityDecrease {
			continue
		}
		best.Update(Split{Threshold: edges[i], Column: col, Gain: gain, NLeft: int32(nLeft)})
	}
	return best
}

func (g *GiniObjective) LeafPrediction(labels []float64, rowids []int32, start, count int32) float64 {
	return majorityClass(labels, rowids, start, count, (*g).nclasses)
}

// EntropyObjective 信息熵
type EntropyObjective struct {
	nclasses            int
	minSamplesLeaf      int
	minImpurityDecrease float64
}

func NewEntropyObjective(nclasses, minSamplesLeaf int, minImpurityDecrease float64) *EntropyObjective {
	return &EntropyObjective{nclasses: nclasses, minSamplesLeaf: minSamplesLeaf, minImpurityDecrease: minImpurityDecrease}
}

func (en *EntropyObjective) Name() string {
	return "entropy"
}

func (en *EntropyObjective) IsRegression() bool {
	return false
}

func (en *EntropyObjective) Gain(h HistSlice, edges []float64, col int32, nSamples int) Split {
	best := Split{}
	best.Init()
	nBins := h.NBins
	nclasses := (*en).nclasses
	invLen := 1.0 / float64(nSamples)

	for i := 0; i < nBins; i++ {
		nLeft := int64(0)
		for c := 0; c < nclasses; c++ {
			nLeft += h.ClassCounts[c*h.ClassStride+i]
		}
		nRight := int64(nSamples) - nLeft
		if nLeft < int64((*en).minSamplesLeaf) || nRight < int64((*en).minSamplesLeaf) {
			continue
		}
		invLeft := 1.0 / float64(nLeft)
		invRight := 1.0 / float64(nRight)
		gain := 0.0
		// 0·log0按0算，各个为0的项直接跳过
		for c := 0; c < nclasses; c++ {
			lval := float64(h.ClassCounts[c*h.ClassStride+i])
			rval := float64(h.ClassCounts[c*h.ClassStride+nBins-1]) - lval
			if lval != 0 {
				gain += lval * invLen * math.Log2(lval*invLeft)
			}
			if rval != 0 {
				gain += rval * invLen * math.Log2(rval*invRight)
			}
			val := lval + rval
			if val != 0 {
				gain -= val * invLen * math.Log2(val*invLen)
			}
		}
		if gain <= (*en).minImpurityDecrease {
			continue
		}
		best.Update(Split{Threshold: edges[i], Column: col, Gain: gain, NLeft: int32(nLeft)})
	}
	return best
}

func (en *EntropyObjective) LeafPrediction(labels []float64, rowids []int32, start, count int32) float64 {
	return majorityClass(labels, rowids, start, count, (*en).nclasses)
}

// majorityClass 多数类，计数相同取小的类id，保证结果确定
func majorityClass(labels []float64, rowids []int32, start, count int32, nclasses int) float64 {
	counts := make([]int32, nclasses)
	for i := start; i < start+count; i++ {
		counts[int(labels[rowids[i]])]++
	}
	bestC, bestN := 0, int32(-1)
	for c := 0; c < nclasses; c++ {
		if counts[c] > bestN {
			bestC, bestN = c, counts[c]
		}
	}
	return float64(bestC)
}

// ---------------- 回归 ----------------

// MSEObjective 均方误差
type MSEObjective struct {
	minSamplesLeaf      int
	minImpurityDecrease float64
}

func NewMSEObjective(minSamplesLeaf int, minImpurityDecrease float64) *MSEObjective {
	return &MSEObjective{minSamplesLeaf: minSamplesLeaf, minImpurityDecrease: minImpurityDecrease}
}

func (m *MSEObjective) Name() string {
	return "mse"
}

func (m *MSEObjective) IsRegression() bool {
	return true
}

func (m *MSEObjective) Gain(h HistSlice, edges []float64, col int32, nSamples int) Split {
	best := Split{}
	best.Init()
	nBins := h.NBins
	invLen := 1.0 / float64(nSamples)
	// 父结点的objective是 -(Σy)²/n，和sklearn一样只算proxy，常数项不带
	parent := -h.LabelSum * h.LabelSum * invLen

	for i := 0; i < nBins; i++ {
		nLeft := h.CountCdf[i]
		nRight := int64(nSamples) - nLeft
		if nLeft < int64((*m).minSamplesLeaf) || nRight < int64((*m).minSamplesLeaf) {
			continue
		}
		leftSum := h.LabelCdf[i]
		rightSum := h.LabelSum - leftSum
		child := -leftSum*leftSum/float64(nLeft) - rightSum*rightSum/float64(nRight)
		gain := (parent - child) * invLen
		if gain <= (*m).minImpurityDecrease {
			continue
		}
		best.Update(Split{Threshold: edges[i], Column: col, Gain: gain, NLeft: int32(nLeft)})
	}
	return best
}

func (m *MSEObjective) LeafPrediction(labels []float64, rowids []int32, start, count int32) float64 {
	return meanLabel(labels, rowids, start, count)
}

// MAEObjective 平均绝对误差。左右两边的绝对偏差没法从前缀和推出来，
// 依赖kernel做两遍扫描把AbsLeft/AbsRight填好
type MAEObjective struct {
	minSamplesLeaf      int
	minImpurityDecrease float64
}

func NewMAEObjective(minSamplesLeaf int, minImpurityDecrease float64) *MAEObjective {
	return &MAEObjective{minSamplesLeaf: minSamplesLeaf, minImpurityDecrease: minImpurityDecrease}
}

func (m *MAEObjective) Name() string {
	return "mae"
}

func (m *MAEObjective) IsRegression() bool {
	return true
}

func (m *MAEObjective) Gain(h HistSlice, edges []float64, col int32, nSamples int) Split {
	best := Split{}
	best.Init()
	nBins := h.NBins
	invLen := 1.0 / float64(nSamples)

	for i := 0; i < nBins; i++ {
		nLeft := h.CountCdf[i]
		nRight := int64(nSamples) - nLeft
		if nLeft < int64((*m).minSamplesLeaf) || nRight < int64((*m).minSamplesLeaf) {
			continue
		}
		gain := (h.ParentAbs - h.AbsLeft[i] - h.AbsRight[i]) * invLen
		if gain <= (*m).minImpurityDecrease {
			continue
		}
		best.Update(Split{Threshold: edges[i], Column: col, Gain: gain, NLeft: int32(nLeft)})
	}
	return best
}

func (m *MAEObjective) LeafPrediction(labels []float64, rowids []int32, start, count int32) float64 {
	return meanLabel(labels, rowids, start, count)
}

func meanLabel(labels []float64, rowids []int32, start, count int32) float64 {
	if count == 0 {
		return 0
	}
	adder := add.FloatAdder{}
	for i := start; i < start+count; i++ {
		adder.Add(labels[rowids[i]])
	}
	return adder.Result() / float64(count)
}
