/*
	每棵树的采样器：行的bootstrap采样和列的子集采样。随机数由(seed, treeid)
	推出来，同样的(seed, treeid)给出同样的采样，不依赖任何host侧的全局状态。
*/

package forest

import (
	"math/rand"

	mapset "github.com/deckarep/golang-set"
	"github.com/yourbasic/bit"
	"golang.org/x/exp/slices"

	"github.com/venkywonka/cuml/cuml-share/base/logger"
)

// treeRng 由seed和treeid造一个独立的随机源，树之间互不影响
var goldenRatio64 uint64 = 0x9e3779b97f4a7c15

func treeRng(seed int64, treeid int) *rand.Rand {
	return rand.New(rand.NewSource(seed ^ int64(treeid)*int64(goldenRatio64)))
}

// sampleRows 采样行。bootstrap是有放回的，否则给一个全排列
func sampleRows(rng *rand.Rand, rows int, bootstrap bool) []int32 {
	rowids := make([]int32, rows)
	if bootstrap {
		for i := range rowids {
			rowids[i] = int32(rng.Intn(rows))
		}
		return rowids
	}
	for i, p := range rng.Perm(rows) {
		rowids[i] = int32(p)
	}
	return rowids
}

// sampleCols 按maxFeatures比例采样列，结果升序排好。列的顺序定了，
// 同gain的tie-break才会稳定偏向原始列号小的那个
func sampleCols(rng *rand.Rand, cols int, maxFeatures float64, withReplacement bool) []int32 {
	k := int(maxFeatures*float64(cols) + 0.5)
	if k < 1 {
		k = 1
	}
	if k > cols && !withReplacement {
		k = cols
	}

	colids := make([]int32, 0, k)
	if withReplacement {
		// 有放回，可能有重复列，重复的列只是多算几遍同样的直方图
		distinct := mapset.NewSet()
		for i := 0; i < k; i++ {
			c := int32(rng.Intn(cols))
			colids = append(colids, c)
			distinct.Add(c)
		}
		logger.Debugf("sampled %d columns with replacement, %d distinct", k, distinct.Cardinality())
	} else {
		picked := bit.New()
		for len(colids) < k {
			c := rng.Intn(cols)
			if picked.Contains(c) {
				continue
			}
			picked.Add(c)
			colids = append(colids, int32(c))
		}
	}
	slices.Sort(colids)
	return colids
}
