package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// Kind identifies how tree outputs are combined into class probabilities.
type Kind string

const (
	// KindForest averages the normalized class distributions of each tree's leaf.
	KindForest Kind = "forest"
	// KindBoosting sums per-class raw leaf scores and applies softmax.
	KindBoosting Kind = "boosting"
)

var (
	ErrModelNotLoaded  = errors.New("model not loaded")
	ErrInvalidModel    = errors.New("invalid model")
	ErrFeatureMismatch = errors.New("feature vector size mismatch")
)

// Node is a single tree node. A node with a non-empty Value is a leaf,
// otherwise samples with x[Feature] <= Threshold go Left, the rest go Right.
type Node struct {
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      int       `json:"left,omitempty"`
	Right     int       `json:"right,omitempty"`
	Value     []float64 `json:"value,omitempty"`
}

func (n *Node) isLeaf() bool {
	return len(n.Value) > 0
}

// Tree is a flattened decision tree, root at index 0.
type Tree struct {
	// Class is the class a boosting tree contributes to.
	Class int    `json:"class,omitempty"`
	Nodes []Node `json:"nodes"`
}

// Ensemble is the portable export of a trained tree ensemble classifier.
type Ensemble struct {
	Kind      Kind      `json:"kind"`
	ModelType string    `json:"model_type"`
	Classes   []string  `json:"classes"`
	Features  []string  `json:"features"`
	BaseScore []float64 `json:"base_score,omitempty"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	TrainedAt string    `json:"trained_at,omitempty"`
	Trees     []Tree    `json:"trees"`
}

// ParseEnsemble decodes and validates an ensemble.
func ParseEnsemble(r io.Reader) (*Ensemble, error) {
	var e Ensemble
	if err := json.NewDecoder(r).Decode(&e); err != nil {
		return nil, fmt.Errorf("decoding model: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// LoadEnsemble reads the model artifact from path.
func LoadEnsemble(path string) (*Ensemble, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening model %s: %w", path, err)
	}
	defer f.Close()

	e, err := ParseEnsemble(f)
	if err != nil {
		return nil, fmt.Errorf("loading model %s: %w", path, err)
	}
	return e, nil
}

// Validate checks the structure so that prediction can not index out of range or loop.
func (e *Ensemble) Validate() error {
	if e.Kind != KindForest && e.Kind != KindBoosting {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidModel, e.Kind)
	}
	nc := len(e.Classes)
	if nc < 2 {
		return fmt.Errorf("%w: at least 2 classes required, got %d", ErrInvalidModel, nc)
	}
	if len(e.Features) == 0 {
		return fmt.Errorf("%w: no features", ErrInvalidModel)
	}
	if len(e.Trees) == 0 {
		return fmt.Errorf("%w: no trees", ErrInvalidModel)
	}
	if e.Kind == KindBoosting && len(e.BaseScore) != 0 && len(e.BaseScore) != nc {
		return fmt.Errorf("%w: base score has %d values for %d classes", ErrInvalidModel, len(e.BaseScore), nc)
	}
	for _, v := range e.BaseScore {
		if !finite(v) {
			return fmt.Errorf("%w: base score %v is not finite", ErrInvalidModel, v)
		}
	}

	leafWidth := nc
	if e.Kind == KindBoosting {
		leafWidth = 1
	}

	for ti, t := range e.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("%w: tree %d is empty", ErrInvalidModel, ti)
		}
		if e.Kind == KindBoosting && (t.Class < 0 || t.Class >= nc) {
			return fmt.Errorf("%w: tree %d class %d out of range", ErrInvalidModel, ti, t.Class)
		}
		for ni := range t.Nodes {
			n := &t.Nodes[ni]
			if n.isLeaf() {
				if len(n.Value) != leafWidth {
					return fmt.Errorf("%w: tree %d node %d leaf has %d values, want %d", ErrInvalidModel, ti, ni, len(n.Value), leafWidth)
				}
				if err := e.checkLeaf(n.Value); err != nil {
					return fmt.Errorf("%w: tree %d node %d %v", ErrInvalidModel, ti, ni, err)
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= len(e.Features) {
				return fmt.Errorf("%w: tree %d node %d feature %d out of range", ErrInvalidModel, ti, ni, n.Feature)
			}
			// children always follow their parent
			if n.Left <= ni || n.Left >= len(t.Nodes) || n.Right <= ni || n.Right >= len(t.Nodes) {
				return fmt.Errorf("%w: tree %d node %d has invalid children", ErrInvalidModel, ti, ni)
			}
		}
	}
	return nil
}

// checkLeaf rejects values that would take probabilities out of [0,1].
// Boosting leaves are raw scores and may be negative, forest leaves are counts.
func (e *Ensemble) checkLeaf(v []float64) error {
	for _, x := range v {
		if !finite(x) {
			return fmt.Errorf("leaf value %v is not finite", x)
		}
		if e.Kind == KindForest && x < 0 {
			return fmt.Errorf("leaf value %v is negative", x)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (t *Tree) leaf(x []float64) []float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.isLeaf() {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// PredictProba returns one probability per class, summing to 1.
func (e *Ensemble) PredictProba(x []float64) ([]float64, error) {
	if e == nil {
		return nil, ErrModelNotLoaded
	}
	if len(x) != len(e.Features) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFeatureMismatch, len(x), len(e.Features))
	}

	nc := len(e.Classes)
	out := make([]float64, nc)

	switch e.Kind {
	case KindBoosting:
		copy(out, e.BaseScore)
		for i := range e.Trees {
			t := &e.Trees[i]
			out[t.Class] += t.leaf(x)[0]
		}
		softmax(out)
	default:
		for i := range e.Trees {
			v := e.Trees[i].leaf(x)
			sum := 0.0
			for _, c := range v {
				sum += c
			}
			if sum <= 0 {
				continue
			}
			for k, c := range v {
				out[k] += c / sum
			}
		}
		normalize(out)
	}
	return out, nil
}

// Predict returns the most probable class index and the full distribution.
// Ties resolve to the lowest index.
func (e *Ensemble) Predict(x []float64) (int, []float64, error) {
	p, err := e.PredictProba(x)
	if err != nil {
		return 0, nil, err
	}
	return Argmax(p), p, nil
}

func Argmax(p []float64) int {
	best := 0
	for i := 1; i < len(p); i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return best
}

func softmax(v []float64) {
	maxV := math.Inf(-1)
	for _, x := range v {
		maxV = math.Max(maxV, x)
	}
	for i, x := range v {
		v[i] = math.Exp(x - maxV)
	}
	normalize(v)
}

func normalize(v []float64) {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	if sum <= 0 {
		for i := range v {
			v[i] = 1 / float64(len(v))
		}
		return
	}
	for i := range v {
		v[i] /= sum
	}
}
