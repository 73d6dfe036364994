package forest

import (
	"gonum.org/v1/gonum/stat"
)

// Accuracy 分类准确率
func Accuracy(pred, labels []float64) float64 {
	if len(pred) == 0 || len(pred) != len(labels) {
		return 0
	}
	hit := 0
	for i := range pred {
		if pred[i] == labels[i] {
			hit++
		}
	}
	return float64(hit) / float64(len(pred))
}

// MeanSquaredError 回归的均方误差
func MeanSquaredError(pred, labels []float64) float64 {
	if len(pred) == 0 || len(pred) != len(labels) {
		return 0
	}
	sq := make([]float64, len(pred))
	for i := range pred {
		d := pred[i] - labels[i]
		sq[i] = d * d
	}
	return stat.Mean(sq, nil)
}
