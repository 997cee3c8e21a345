package preprocess

import (
	"fmt"
	"math"
)

// machineEpsilon is the float64 unit roundoff; scales below ten of it are
// treated as zero variance.
const machineEpsilon = 2.220446049250313e-16

// StandardScaler centres each column on its mean and divides by its
// population standard deviation. Zero-variance columns keep a scale of 1.
type StandardScaler struct {
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
}

// NewStandardScaler returns an unfitted scaler over the named columns.
func NewStandardScaler(columns []string) *StandardScaler {
	return &StandardScaler{Columns: append([]string(nil), columns...)}
}

// Fitted reports whether the scaler holds parameters.
func (s *StandardScaler) Fitted() bool { return len(s.Mean) > 0 }

// Fit computes per-column mean and scale. Every row must have one value per
// column.
func (s *StandardScaler) Fit(rows [][]float64) error {
	if s.Fitted() {
		return ErrAlreadyFitted
	}
	if len(rows) == 0 {
		return ErrEmptyBatch
	}
	width := len(s.Columns)
	mean := make([]float64, width)
	for i, row := range rows {
		if len(row) != width {
			return fmt.Errorf("row %d: %w: got %d, want %d", i, ErrWidthMismatch, len(row), width)
		}
		for j, v := range row {
			mean[j] += v
		}
	}
	n := float64(len(rows))
	for j := range mean {
		mean[j] /= n
	}

	scale := make([]float64, width)
	for _, row := range rows {
		for j, v := range row {
			d := v - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / n)
		if scale[j] < 10*machineEpsilon || math.IsNaN(scale[j]) {
			scale[j] = 1
		}
	}

	s.Mean = mean
	s.Scale = scale
	return nil
}

// Transform standardises one row into a new slice.
func (s *StandardScaler) Transform(row []float64) ([]float64, error) {
	if !s.Fitted() {
		return nil, ErrNotFitted
	}
	if len(row) != len(s.Mean) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrWidthMismatch, len(row), len(s.Mean))
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

// Validate checks restored parameters for internal consistency.
func (s *StandardScaler) Validate() error {
	if !s.Fitted() {
		return ErrNotFitted
	}
	if len(s.Mean) != len(s.Columns) || len(s.Scale) != len(s.Columns) {
		return fmt.Errorf("scaler: %d columns, %d means, %d scales: %w",
			len(s.Columns), len(s.Mean), len(s.Scale), ErrWidthMismatch)
	}
	for j, sc := range s.Scale {
		if sc == 0 || math.IsNaN(sc) || math.IsInf(sc, 0) {
			return fmt.Errorf("scaler: column %s has invalid scale %v", s.Columns[j], sc)
		}
	}
	return nil
}
