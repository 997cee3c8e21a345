// Package preprocess fits and applies the numeric scaler and categorical
// encoders that turn engineered feature records into model input vectors.
//
// Fitting happens once per training run. A fitted [Preprocessor] is
// read-only: it can be shared across goroutines and is restored verbatim at
// serving time from its persisted parameters. There is no refit; encoders
// reject a second Fit with [ErrAlreadyFitted].
//
// The output vector is laid out numeric block first, then categorical block,
// each in the column order of the [Layout].
package preprocess
