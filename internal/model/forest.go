// Package model evaluates the trained risk classifier.
//
// The classifier is trained outside this service and exported as JSON: a
// forest of binary decision trees in the node-array layout scikit-learn uses
// (tree_.feature, tree_.threshold, tree_.children_left/right, tree_.value).
// A sample goes left when its feature value is <= the node threshold. A node
// with a negative feature index is a leaf. Class probabilities are the mean of
// the normalised leaf values across trees.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrFeatureWidth is returned when an input vector does not match the width
// the classifier was trained on.
var ErrFeatureWidth = errors.New("feature vector width does not match classifier")

// Node is one decision-tree node.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

func (n Node) leaf() bool { return n.Feature < 0 }

// Tree is a decision tree rooted at Nodes[0].
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Forest is a fitted tree-ensemble classifier. It is read-only after Load and
// safe for concurrent use.
type Forest struct {
	ClassLabels []string `json:"classes"`
	NFeatures   int      `json:"n_features"`
	Trees       []Tree   `json:"trees"`

	// BundleFingerprint identifies the preprocessing state the forest was
	// trained against, copied from the bundle manifest.
	BundleFingerprint string `json:"bundle_fingerprint,omitempty"`
}

// Load decodes and validates a classifier.
func Load(r io.Reader) (*Forest, error) {
	var f Forest
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode classifier: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads a classifier from path.
func LoadFile(path string) (*Forest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Load(file)
}

// Validate checks structural integrity: every split references a feature in
// range, children come after their parent and every leaf carries one value
// per class.
func (f *Forest) Validate() error {
	if len(f.ClassLabels) == 0 {
		return errors.New("classifier has no classes")
	}
	if f.NFeatures <= 0 {
		return errors.New("classifier has no input features")
	}
	if len(f.Trees) == 0 {
		return errors.New("classifier has no trees")
	}
	for t, tree := range f.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", t)
		}
		for i, n := range tree.Nodes {
			if n.leaf() {
				if len(n.Value) != len(f.ClassLabels) {
					return fmt.Errorf("tree %d node %d: %d leaf values for %d classes", t, i, len(n.Value), len(f.ClassLabels))
				}
				continue
			}
			if n.Feature >= f.NFeatures {
				return fmt.Errorf("tree %d node %d: feature %d out of range", t, i, n.Feature)
			}
			if n.Left <= i || n.Right <= i || n.Left >= len(tree.Nodes) || n.Right >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d: invalid children %d/%d", t, i, n.Left, n.Right)
			}
		}
	}
	return nil
}

// Classes returns the class labels in class-index order.
func (f *Forest) Classes() []string { return append([]string(nil), f.ClassLabels...) }

// InputWidth is the feature-vector length the classifier expects.
func (f *Forest) InputWidth() int { return f.NFeatures }

// PredictProba returns one probability per class.
func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if len(x) != f.NFeatures {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFeatureWidth, len(x), f.NFeatures)
	}
	probs := make([]float64, len(f.ClassLabels))
	for _, tree := range f.Trees {
		leaf := tree.leafFor(x)
		var total float64
		for _, v := range leaf.Value {
			total += v
		}
		if total == 0 {
			continue
		}
		for k, v := range leaf.Value {
			probs[k] += v / total
		}
	}
	n := float64(len(f.Trees))
	for k := range probs {
		probs[k] /= n
	}
	return probs, nil
}

// Predict returns the index of the most probable class. Ties resolve to the
// lower index.
func (f *Forest) Predict(x []float64) (int, error) {
	probs, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	best := 0
	for k := range probs {
		if probs[k] > probs[best] {
			best = k
		}
	}
	return best, nil
}

func (t Tree) leafFor(x []float64) Node {
	i := 0
	for {
		n := t.Nodes[i]
		if n.leaf() {
			return n
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
