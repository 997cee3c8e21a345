package preprocess

import "errors"

var (
	// ErrAlreadyFitted is returned when Fit is called on a fitted component.
	ErrAlreadyFitted = errors.New("already fitted")
	// ErrNotFitted is returned when a transform is requested before Fit.
	ErrNotFitted = errors.New("not fitted")
	// ErrWidthMismatch is returned when an input row does not match the
	// fitted column count.
	ErrWidthMismatch = errors.New("input width does not match fitted width")
	// ErrEmptyBatch is returned when fitting on zero rows.
	ErrEmptyBatch = errors.New("cannot fit on an empty batch")
)
