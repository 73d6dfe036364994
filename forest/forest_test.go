package forest

import (
	"reflect"
	"testing"

	"github.com/venkywonka/cuml/decision_tree/format"
	"github.com/venkywonka/cuml/decision_tree/param"
	"gorgonia.org/tensor"
)

// separableDataset 一列就能分开的两类数据，40行
func separableDataset(t *testing.T) *format.Dataset {
	t.Helper()
	rows := 40
	vals := make([]float64, rows)
	labels := make([]float64, rows)
	for i := 0; i < rows; i++ {
		vals[i] = float64(i) / float64(rows)
		if i >= rows/2 {
			labels[i] = 1
		}
	}
	dense := tensor.New(tensor.WithShape(rows, 1), tensor.AsFortran(vals))
	ds, err := format.NewDataset(dense, labels, 2)
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func testConfig() Config {
	p := param.DefaultParams()
	p.MaxDepth = 4
	p.NBins = 8
	p.MaxBatchSize = 32
	return Config{TreeNum: 5, Seed: 7, Streams: 2, Params: p}
}

func TestFitAndPredict(t *testing.T) {
	ds := separableDataset(t)
	f, err := Fit(ds, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Trees) != 5 {
		t.Fatalf("got %d trees", len(f.Trees))
	}
	pred, err := f.PredictDataset(ds)
	if err != nil {
		t.Fatal(err)
	}
	if acc := Accuracy(pred, ds.Labels()); acc < 0.95 {
		t.Errorf("training accuracy %v on a separable dataset", acc)
	}
	if ActiveTreeNum() != 0 {
		t.Errorf("builder registry not drained: %d", ActiveTreeNum())
	}
}

func TestFitReproducibleWithSeed(t *testing.T) {
	ds := separableDataset(t)
	cfg := testConfig()
	f1, err := Fit(ds, cfg)
	if err != nil {
		t.Fatal(err)
	}
	f2, err := Fit(ds, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i := range f1.Trees {
		if !reflect.DeepEqual(f1.Trees[i].Nodes, f2.Trees[i].Nodes) {
			t.Errorf("tree %d diverged between runs with the same seed", i)
		}
	}
}

func TestRegressionForest(t *testing.T) {
	rows := 40
	vals := make([]float64, rows)
	labels := make([]float64, rows)
	for i := 0; i < rows; i++ {
		vals[i] = float64(i) / float64(rows)
		labels[i] = 2 * vals[i]
	}
	dense := tensor.New(tensor.WithShape(rows, 1), tensor.AsFortran(vals))
	ds, err := format.NewDataset(dense, labels, 1)
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Params.SplitCriterion = param.MSE
	f, err := Fit(ds, cfg)
	if err != nil {
		t.Fatal(err)
	}
	pred, err := f.PredictDataset(ds)
	if err != nil {
		t.Fatal(err)
	}
	if mse := MeanSquaredError(pred, ds.Labels()); mse > 0.1 {
		t.Errorf("training mse %v too large", mse)
	}
}

func TestPredictRejectsRowMajor(t *testing.T) {
	ds := separableDataset(t)
	f, err := Fit(ds, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	rowMajor := tensor.New(tensor.WithShape(2, 1), tensor.WithBacking([]float64{0.1, 0.9}))
	if _, err := f.Predict(rowMajor); err == nil {
		t.Errorf("row-major predict input should be rejected")
	}
}

func TestSampler(t *testing.T) {
	rng := treeRng(42, 3)
	rows := sampleRows(rng, 100, false)
	seen := make([]bool, 100)
	for _, r := range rows {
		if seen[r] {
			t.Fatalf("permutation has duplicate %d", r)
		}
		seen[r] = true
	}

	rng = treeRng(42, 3)
	cols := sampleCols(rng, 10, 0.5, false)
	if len(cols) != 5 {
		t.Fatalf("sampled %d cols, want 5", len(cols))
	}
	for i := 1; i < len(cols); i++ {
		if cols[i] <= cols[i-1] {
			t.Errorf("colids not strictly increasing: %v", cols)
		}
	}

	// 同样的(seed, treeid)给出同样的采样
	a := sampleRows(treeRng(1, 2), 50, true)
	b := sampleRows(treeRng(1, 2), 50, true)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("bootstrap sampling not reproducible")
	}
	// 不同的treeid给出不同的采样
	c := sampleRows(treeRng(1, 3), 50, true)
	if reflect.DeepEqual(a, c) {
		t.Errorf("different treeid should give a different sample")
	}
}
