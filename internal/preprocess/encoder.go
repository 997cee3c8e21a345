package preprocess

import (
	"fmt"
	"sort"
	"strings"
)

// UnknownLabel is the code a LabelEncoder assigns to a category that was not
// seen during fitting.
const UnknownLabel = -1

// Strategy selects how categorical columns are encoded.
type Strategy string

const (
	StrategyLabel  Strategy = "label"
	StrategyOneHot Strategy = "onehot"
)

// ParseStrategy validates a strategy name. Matching is case-insensitive and
// "one-hot" is accepted as an alias.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "label", "ordinal":
		return StrategyLabel, nil
	case "onehot", "one-hot", "one_hot":
		return StrategyOneHot, nil
	default:
		return "", fmt.Errorf("unknown encoding strategy %q", s)
	}
}

// Encoder maps one categorical column to a fixed-width numeric block.
type Encoder interface {
	// Fit learns the vocabulary. A second call returns ErrAlreadyFitted.
	Fit(values []string) error
	// Encode appends the encoding of v to dst. Unknown values never error.
	Encode(dst []float64, v string) []float64
	// Width is the number of output values per row.
	Width() int
	// Names are the output feature names, Width() of them.
	Names() []string
	// Vocabulary is the sorted list of categories seen at fit time.
	Vocabulary() []string
	Column() string
}

// NewEncoder returns an unfitted encoder for the strategy.
func NewEncoder(strategy Strategy, column string) (Encoder, error) {
	switch strategy {
	case StrategyLabel:
		return &LabelEncoder{column: column}, nil
	case StrategyOneHot:
		return &OneHotEncoder{column: column}, nil
	default:
		return nil, fmt.Errorf("unknown encoding strategy %q", strategy)
	}
}

// RestoreEncoder rebuilds a fitted encoder from a persisted vocabulary.
func RestoreEncoder(strategy Strategy, column string, vocabulary []string) (Encoder, error) {
	if len(vocabulary) == 0 {
		return nil, fmt.Errorf("encoder %s: empty vocabulary: %w", column, ErrNotFitted)
	}
	enc, err := NewEncoder(strategy, column)
	if err != nil {
		return nil, err
	}
	if err := enc.Fit(vocabulary); err != nil {
		return nil, fmt.Errorf("encoder %s: %w", column, err)
	}
	return enc, nil
}

type vocab struct {
	classes []string
	index   map[string]int
}

func (v *vocab) fitted() bool { return v.index != nil }

func (v *vocab) fit(values []string) error {
	if v.fitted() {
		return ErrAlreadyFitted
	}
	if len(values) == 0 {
		return ErrEmptyBatch
	}
	seen := make(map[string]struct{}, len(values))
	for _, s := range values {
		seen[s] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for s := range seen {
		classes = append(classes, s)
	}
	sort.Strings(classes)

	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	v.classes = classes
	v.index = index
	return nil
}

func (v *vocab) lookup(s string) (int, bool) {
	i, ok := v.index[s]
	return i, ok
}

func (v *vocab) Vocabulary() []string { return append([]string(nil), v.classes...) }

// LabelEncoder maps each category to its index in the sorted vocabulary.
// Unknown categories map to UnknownLabel.
type LabelEncoder struct {
	column string
	vocab
}

func (e *LabelEncoder) Column() string            { return e.column }
func (e *LabelEncoder) Fit(values []string) error { return e.fit(values) }
func (e *LabelEncoder) Width() int                { return 1 }
func (e *LabelEncoder) Names() []string           { return []string{e.column} }

func (e *LabelEncoder) Encode(dst []float64, v string) []float64 {
	i, ok := e.lookup(v)
	if !ok {
		return append(dst, UnknownLabel)
	}
	return append(dst, float64(i))
}

// OneHotEncoder maps each category to an indicator vector over the sorted
// vocabulary. Unknown categories produce an all-zero vector.
type OneHotEncoder struct {
	column string
	vocab
}

func (e *OneHotEncoder) Column() string            { return e.column }
func (e *OneHotEncoder) Fit(values []string) error { return e.fit(values) }
func (e *OneHotEncoder) Width() int                { return len(e.classes) }

func (e *OneHotEncoder) Names() []string {
	names := make([]string, len(e.classes))
	for i, c := range e.classes {
		names[i] = e.column + "_" + c
	}
	return names
}

func (e *OneHotEncoder) Encode(dst []float64, v string) []float64 {
	start := len(dst)
	for range e.classes {
		dst = append(dst, 0)
	}
	if i, ok := e.lookup(v); ok {
		dst[start+i] = 1
	}
	return dst
}
