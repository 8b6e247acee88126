// Package types holds small value types shared by the trainer, the decoder
// and the evaluator.
package types

import "fmt"

// Pair is an ordered (source, target) node-id pair.
type Pair [2]uint32

// Matrix is a row-major float32 view. Data usually aliases a shared buffer,
// so writes through a Matrix are visible to every holder of the buffer.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

// NewMatrix wraps data as a rows x cols matrix.
func NewMatrix(rows, cols int, data []float32) (Matrix, error) {
	if rows*cols != len(data) {
		return Matrix{}, fmt.Errorf("matrix %dx%d does not match data length %d", rows, cols, len(data))
	}
	return Matrix{Rows: rows, Cols: cols, Data: data}, nil
}

// Row returns row i without copying.
func (m Matrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}
