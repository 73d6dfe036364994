package format

import (
	"fmt"
	"os"

	"github.com/sbinet/npyio"
	"gorgonia.org/tensor"
)

// LoadMatrixNpy 从.npy读一个二维矩阵，统一转成列主序的tensor
func LoadMatrixNpy(path string) (*tensor.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("npy %s: %w", path, err)
	}
	shape := r.Header.Descr.Shape
	if len(shape) != 2 {
		return nil, fmt.Errorf("npy %s: expected 2-D data, got shape %v", path, shape)
	}
	raw := make([]float64, shape[0]*shape[1])
	if err := r.Read(&raw); err != nil {
		return nil, fmt.Errorf("npy %s: %w", path, err)
	}

	rows, cols := shape[0], shape[1]
	// AsFortran把backing当行主序读、再转置存成列主序
	if !r.Header.Descr.Fortran {
		// 行主序，直接交给AsFortran
		return tensor.New(tensor.WithShape(rows, cols), tensor.AsFortran(raw)), nil
	}
	// 文件里是列主序，先铺回行主序
	rowMajor := make([]float64, len(raw))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			rowMajor[i*cols+j] = raw[j*rows+i]
		}
	}
	return tensor.New(tensor.WithShape(rows, cols), tensor.AsFortran(rowMajor)), nil
}

// LoadLabelsNpy 从.npy读一维标签
func LoadLabelsNpy(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("npy %s: %w", path, err)
	}
	shape := r.Header.Descr.Shape
	if len(shape) != 1 {
		return nil, fmt.Errorf("npy %s: expected 1-D labels, got shape %v", path, shape)
	}
	labels := make([]float64, shape[0])
	if err := r.Read(&labels); err != nil {
		return nil, fmt.Errorf("npy %s: %w", path, err)
	}
	return labels, nil
}
