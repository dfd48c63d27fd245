package ml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrModelNotFound is returned when the model artifact does not exist.
	ErrModelNotFound = errors.New("model artifact not found")
	// ErrInvalidModel is returned when the artifact cannot be decoded.
	ErrInvalidModel = errors.New("invalid model artifact")
	// ErrFeatureMismatch is returned when the input does not carry the
	// features the model was trained on.
	ErrFeatureMismatch = errors.New("feature mismatch")
)

var indexedFeature = regexp.MustCompile(`^f(\d+)$`)

// ModelMetadata describes the loaded artifact.
type ModelMetadata struct {
	Version      string    `json:"version"`
	Objective    string    `json:"objective"`
	BaseScore    float64   `json:"base_score"`
	Threshold    float64   `json:"threshold,omitempty"`
	FeatureNames []string  `json:"feature_names"`
	TrainedAt    time.Time `json:"trained_at,omitempty"`
	Trees        int       `json:"trees"`
	LoadedFrom   string    `json:"loaded_from,omitempty"`
	ModifiedAt   time.Time `json:"modified_at,omitempty"`
}

// dumpNode is one node of an XGBoost JSON model dump.
type dumpNode struct {
	NodeID         int         `json:"nodeid"`
	Split          string      `json:"split"`
	SplitCondition float64     `json:"split_condition"`
	Yes            int         `json:"yes"`
	No             int         `json:"no"`
	Missing        *int        `json:"missing"`
	Cover          float64     `json:"cover"`
	Leaf           *float64    `json:"leaf"`
	Children       []*dumpNode `json:"children"`
}

type artifactFile struct {
	Version      string      `json:"version"`
	Objective    string      `json:"objective"`
	BaseScore    *float64    `json:"base_score"`
	Threshold    float64     `json:"threshold"`
	FeatureNames []string    `json:"feature_names"`
	TrainedAt    time.Time   `json:"trained_at"`
	Trees        []*dumpNode `json:"trees"`
}

// tree is a flattened regression tree. Node 0 is the root; feature is -1 on
// leaves.
type tree struct {
	feature   []int
	threshold []float64
	yes       []int
	no        []int
	missing   []int
	value     []float64
	cover     []float64
}

// Ensemble is a boosted tree ensemble for binary classification.
type Ensemble struct {
	trees      []tree
	features   []string
	baseMargin float64
	meta       ModelMetadata
}

// LoadEnsemble reads a model artifact from disk.
func LoadEnsemble(path string) (*Ensemble, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}

	e, err := ParseEnsemble(data)
	if err != nil {
		return nil, err
	}

	e.meta.LoadedFrom = path
	if info, err := os.Stat(path); err == nil {
		e.meta.ModifiedAt = info.ModTime()
	}

	log.Info().
		Str("model_path", path).
		Str("version", e.meta.Version).
		Int("trees", len(e.trees)).
		Strs("features", e.features).
		Msg("model loaded")

	return e, nil
}

// ParseEnsemble decodes either a bare XGBoost JSON dump (an array of trees)
// or an object wrapping the trees with metadata.
func ParseEnsemble(data []byte) (*Ensemble, error) {
	var art artifactFile

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &art.Trees); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
		}
	} else if err := json.Unmarshal(trimmed, &art); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}

	if len(art.Trees) == 0 {
		return nil, fmt.Errorf("%w: no trees", ErrInvalidModel)
	}

	objective := art.Objective
	if objective == "" {
		objective = "binary:logistic"
	}
	if objective != "binary:logistic" && objective != "binary:logitraw" {
		return nil, fmt.Errorf("%w: unsupported objective %q", ErrInvalidModel, objective)
	}

	baseScore := 0.5
	if art.BaseScore != nil {
		baseScore = *art.BaseScore
	}
	if baseScore <= 0 || baseScore >= 1 {
		return nil, fmt.Errorf("%w: base_score must be in (0,1), got %v", ErrInvalidModel, baseScore)
	}

	features, err := resolveFeatures(art.FeatureNames, art.Trees)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(features))
	for i, name := range features {
		index[name] = i
	}

	e := &Ensemble{
		features:   features,
		baseMargin: math.Log(baseScore / (1 - baseScore)),
		trees:      make([]tree, 0, len(art.Trees)),
	}
	for i, root := range art.Trees {
		t, err := flattenTree(root, index)
		if err != nil {
			return nil, fmt.Errorf("%w: tree %d: %v", ErrInvalidModel, i, err)
		}
		e.trees = append(e.trees, t)
	}

	e.meta = ModelMetadata{
		Version:      art.Version,
		Objective:    objective,
		BaseScore:    baseScore,
		Threshold:    art.Threshold,
		FeatureNames: features,
		TrainedAt:    art.TrainedAt,
		Trees:        len(e.trees),
	}
	if e.meta.Version == "" {
		e.meta.Version = "unknown"
	}

	return e, nil
}

// resolveFeatures returns the model's feature order. Explicit names win;
// otherwise split names are collected, with f<N> splits placed by index.
func resolveFeatures(declared []string, roots []*dumpNode) ([]string, error) {
	if len(declared) > 0 {
		seen := make(map[string]bool, len(declared))
		for _, n := range declared {
			if seen[n] {
				return nil, fmt.Errorf("%w: duplicate feature %q", ErrInvalidModel, n)
			}
			seen[n] = true
		}
		return declared, nil
	}

	var named []string
	seen := map[string]bool{}
	maxIndex := -1
	var walk func(n *dumpNode)
	walk = func(n *dumpNode) {
		if n == nil || n.Leaf != nil || n.Split == "" {
			return
		}
		if m := indexedFeature.FindStringSubmatch(n.Split); m != nil {
			if idx, _ := strconv.Atoi(m[1]); idx > maxIndex {
				maxIndex = idx
			}
		} else if !seen[n.Split] {
			seen[n.Split] = true
			named = append(named, n.Split)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}

	if len(named) > 0 && maxIndex >= 0 {
		return nil, fmt.Errorf("%w: mixed named and indexed splits without feature_names", ErrInvalidModel)
	}
	if len(named) > 0 {
		return named, nil
	}

	features := make([]string, maxIndex+1)
	for i := range features {
		features[i] = "f" + strconv.Itoa(i)
	}
	return features, nil
}

func flattenTree(root *dumpNode, featureIndex map[string]int) (tree, error) {
	var t tree
	if root == nil {
		return t, errors.New("empty tree")
	}

	byID := map[int]*dumpNode{}
	var collect func(n *dumpNode) error
	collect = func(n *dumpNode) error {
		if _, dup := byID[n.NodeID]; dup {
			return fmt.Errorf("duplicate node id %d", n.NodeID)
		}
		byID[n.NodeID] = n
		for _, c := range n.Children {
			if err := collect(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := collect(root); err != nil {
		return t, err
	}

	// assign dense indices in pre-order so the root is 0
	position := map[int]int{}
	var order []*dumpNode
	var visit func(n *dumpNode)
	visit = func(n *dumpNode) {
		position[n.NodeID] = len(order)
		order = append(order, n)
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(root)

	size := len(order)
	t = tree{
		feature:   make([]int, size),
		threshold: make([]float64, size),
		yes:       make([]int, size),
		no:        make([]int, size),
		missing:   make([]int, size),
		value:     make([]float64, size),
		cover:     make([]float64, size),
	}

	for i, n := range order {
		t.cover[i] = n.Cover
		if n.Leaf != nil {
			t.feature[i] = -1
			t.value[i] = *n.Leaf
			continue
		}

		f, ok := featureIndex[n.Split]
		if !ok {
			if m := indexedFeature.FindStringSubmatch(n.Split); m != nil {
				idx, _ := strconv.Atoi(m[1])
				if idx < len(featureIndex) {
					f, ok = idx, true
				}
			}
		}
		if !ok {
			return t, fmt.Errorf("node %d splits on unknown feature %q", n.NodeID, n.Split)
		}

		if !isChild(n, n.Yes) || !isChild(n, n.No) || n.Yes == n.No {
			return t, fmt.Errorf("node %d references missing children", n.NodeID)
		}
		yes, no := position[n.Yes], position[n.No]
		missing := yes
		if n.Missing != nil {
			switch *n.Missing {
			case n.Yes:
			case n.No:
				missing = no
			default:
				return t, fmt.Errorf("node %d has invalid missing branch %d", n.NodeID, *n.Missing)
			}
		}

		t.feature[i] = f
		t.threshold[i] = n.SplitCondition
		t.yes[i] = yes
		t.no[i] = no
		t.missing[i] = missing
	}

	return t, nil
}

func isChild(n *dumpNode, id int) bool {
	for _, c := range n.Children {
		if c.NodeID == id {
			return true
		}
	}
	return false
}

// next returns the child that x follows from internal node i.
func (t *tree) next(i int, x []float64) int {
	v := x[t.feature[i]]
	switch {
	case math.IsNaN(v):
		return t.missing[i]
	case v < t.threshold[i]:
		return t.yes[i]
	default:
		return t.no[i]
	}
}

func (t *tree) leafValue(x []float64) float64 {
	i := 0
	for t.feature[i] >= 0 {
		i = t.next(i, x)
	}
	return t.value[i]
}

// Metadata returns a copy of the artifact description.
func (e *Ensemble) Metadata() ModelMetadata {
	m := e.meta
	m.FeatureNames = append([]string(nil), e.features...)
	return m
}

// FeatureNames implements Classifier.
func (e *Ensemble) FeatureNames() []string {
	return append([]string(nil), e.features...)
}

// NumFeatures is the width of the input the model expects.
func (e *Ensemble) NumFeatures() int {
	return len(e.features)
}

// Margin is the raw log-odds score for one row.
func (e *Ensemble) Margin(x []float64) float64 {
	sum := e.baseMargin
	for i := range e.trees {
		sum += e.trees[i].leafValue(x)
	}
	return sum
}

func (e *Ensemble) checkWidth(X *mat.Dense) error {
	if _, c := X.Dims(); c != len(e.features) {
		return fmt.Errorf("%w: model expects %d features, got %d", ErrFeatureMismatch, len(e.features), c)
	}
	return nil
}

// PredictProba implements Classifier.
func (e *Ensemble) PredictProba(X *mat.Dense) ([]float64, error) {
	if err := e.checkWidth(X); err != nil {
		return nil, err
	}
	rows, _ := X.Dims()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = sigmoid(e.Margin(X.RawRowView(i)))
	}
	return out, nil
}

// Predict implements Classifier. A threshold of zero uses the artifact's own
// threshold, or 0.5 when it has none.
func (e *Ensemble) Predict(X *mat.Dense, threshold float64) ([]int, error) {
	probs, err := e.PredictProba(X)
	if err != nil {
		return nil, err
	}
	if threshold <= 0 {
		threshold = e.meta.Threshold
	}
	if threshold <= 0 {
		threshold = 0.5
	}
	out := make([]int, len(probs))
	for i, p := range probs {
		if p > threshold {
			out[i] = 1
		}
	}
	return out, nil
}

// Align reorders the columns of X, named by names, into the model's feature
// order. Columns the model does not use are ignored.
func (e *Ensemble) Align(names []string, X *mat.Dense) (*mat.Dense, error) {
	rows, cols := X.Dims()
	if len(names) != cols {
		return nil, fmt.Errorf("%d column names for %d columns", len(names), cols)
	}

	position := make(map[string]int, len(names))
	for j, n := range names {
		position[n] = j
	}

	src := make([]int, len(e.features))
	var missing []string
	for k, f := range e.features {
		j, ok := position[f]
		if !ok {
			missing = append(missing, f)
			continue
		}
		src[k] = j
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: input lacks %s", ErrFeatureMismatch, strings.Join(missing, ", "))
	}

	out := mat.NewDense(rows, len(e.features), nil)
	for k, j := range src {
		for i := 0; i < rows; i++ {
			out.Set(i, k, X.At(i, j))
		}
	}
	return out, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
