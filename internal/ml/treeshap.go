package ml

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// FeatureImportance is the mean absolute SHAP value of one feature.
type FeatureImportance struct {
	Name        string  `json:"name"`
	MeanAbsSHAP float64 `json:"mean_abs_shap"`
}

// Explanation holds per-row, per-feature attributions in log-odds units.
// For every row, Expected plus the row's values equals the model margin.
type Explanation struct {
	Features []string
	Values   *mat.Dense
	Expected float64
}

// Importance ranks features by mean |SHAP value|, largest first.
func (ex *Explanation) Importance() []FeatureImportance {
	rows, cols := ex.Values.Dims()
	out := make([]FeatureImportance, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, ex.Values)
		var sum float64
		for _, v := range col {
			sum += math.Abs(v)
		}
		out[j] = FeatureImportance{Name: ex.Features[j], MeanAbsSHAP: sum / float64(rows)}
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].MeanAbsSHAP > out[b].MeanAbsSHAP
	})
	return out
}

// Top returns at most n entries.
func Top(items []FeatureImportance, n int) []FeatureImportance {
	if n < 0 || n >= len(items) {
		return items
	}
	return items[:n]
}

// TreeExplainer computes exact path-dependent TreeSHAP values.
type TreeExplainer struct {
	ensemble *Ensemble
	expected float64
}

// NewTreeExplainer prepares an explainer for the ensemble.
func NewTreeExplainer(e *Ensemble) *TreeExplainer {
	expected := e.baseMargin
	for i := range e.trees {
		expected += e.trees[i].expectedValue(0)
	}
	return &TreeExplainer{ensemble: e, expected: expected}
}

// ExpectedValue is the cover-weighted mean margin over the training data.
func (te *TreeExplainer) ExpectedValue() float64 {
	return te.expected
}

// Explain implements Explainer. X must already be in model feature order.
func (te *TreeExplainer) Explain(X *mat.Dense) (*Explanation, error) {
	if err := te.ensemble.checkWidth(X); err != nil {
		return nil, err
	}

	rows, cols := X.Dims()
	values := mat.NewDense(rows, cols, nil)
	phi := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := range phi {
			phi[j] = 0
		}
		x := X.RawRowView(i)
		for k := range te.ensemble.trees {
			te.ensemble.trees[k].shap(x, phi)
		}
		values.SetRow(i, phi)
	}

	return &Explanation{
		Features: te.ensemble.FeatureNames(),
		Values:   values,
		Expected: te.expected,
	}, nil
}

// splitWeights returns the share of training samples that went to the yes
// and no branches of node i.
func (t *tree) splitWeights(i int) (float64, float64) {
	y, n := t.cover[t.yes[i]], t.cover[t.no[i]]
	total := y + n
	if total <= 0 {
		return 0.5, 0.5
	}
	return y / total, n / total
}

func (t *tree) expectedValue(i int) float64 {
	if t.feature[i] < 0 {
		return t.value[i]
	}
	wy, wn := t.splitWeights(i)
	return wy*t.expectedValue(t.yes[i]) + wn*t.expectedValue(t.no[i])
}

type pathElement struct {
	feature int
	zero    float64 // fraction of paths flowing through when the feature is unknown
	one     float64 // 1 if x follows this branch, else 0
	weight  float64
}

// shap adds this tree's attributions for x into phi.
func (t *tree) shap(x, phi []float64) {
	t.recurse(0, x, phi, nil, 1, 1, -1)
}

func (t *tree) recurse(node int, x, phi []float64, path []pathElement, zero, one float64, feature int) {
	path = extendPath(path, zero, one, feature)

	if t.feature[node] < 0 {
		for i := 1; i < len(path); i++ {
			w := unwoundPathSum(path, i)
			phi[path[i].feature] += w * (path[i].one - path[i].zero) * t.value[node]
		}
		return
	}

	hot := t.next(node, x)
	cold := t.no[node]
	if hot == t.no[node] {
		cold = t.yes[node]
	}
	wy, wn := t.splitWeights(node)
	hotZero, coldZero := wy, wn
	if hot == t.no[node] {
		hotZero, coldZero = wn, wy
	}

	incomingZero, incomingOne := 1.0, 1.0
	split := t.feature[node]
	for k := 1; k < len(path); k++ {
		if path[k].feature == split {
			incomingZero, incomingOne = path[k].zero, path[k].one
			path = unwindPath(path, k)
			break
		}
	}

	t.recurse(hot, x, phi, path, hotZero*incomingZero, incomingOne, split)
	t.recurse(cold, x, phi, path, coldZero*incomingZero, 0, split)
}

// extendPath returns a copy of path grown by one element.
func extendPath(path []pathElement, zero, one float64, feature int) []pathElement {
	l := len(path)
	out := make([]pathElement, l+1)
	copy(out, path)
	out[l] = pathElement{feature: feature, zero: zero, one: one}
	if l == 0 {
		out[l].weight = 1
	}
	for i := l - 1; i >= 0; i-- {
		out[i+1].weight += one * out[i].weight * float64(i+1) / float64(l+1)
		out[i].weight = zero * out[i].weight * float64(l-i) / float64(l+1)
	}
	return out
}

// unwindPath returns a copy of path with element i removed.
func unwindPath(path []pathElement, i int) []pathElement {
	l := len(path) - 1
	out := make([]pathElement, len(path))
	copy(out, path)

	one, zero := path[i].one, path[i].zero
	n := out[l].weight
	for j := l - 1; j >= 0; j-- {
		if one != 0 {
			tmp := out[j].weight
			out[j].weight = n * float64(l+1) / (float64(j+1) * one)
			n = tmp - out[j].weight*zero*float64(l-j)/float64(l+1)
		} else {
			out[j].weight = out[j].weight * float64(l+1) / (zero * float64(l-j))
		}
	}
	for j := i; j < l; j++ {
		out[j].feature = out[j+1].feature
		out[j].zero = out[j+1].zero
		out[j].one = out[j+1].one
	}
	return out[:l]
}

// unwoundPathSum is the total weight of path with element i removed.
func unwoundPathSum(path []pathElement, i int) float64 {
	l := len(path) - 1
	one, zero := path[i].one, path[i].zero
	var total float64
	if one != 0 {
		n := path[l].weight
		for j := l - 1; j >= 0; j-- {
			tmp := n * float64(l+1) / (float64(j+1) * one)
			total += tmp
			n = path[j].weight - tmp*zero*float64(l-j)/float64(l+1)
		}
	} else {
		for j := l - 1; j >= 0; j-- {
			total += path[j].weight * float64(l+1) / (zero * float64(l-j))
		}
	}
	return total
}

func (ex *Explanation) String() string {
	rows, cols := ex.Values.Dims()
	return fmt.Sprintf("Explanation{rows: %d, features: %d, expected: %.4f}", rows, cols, ex.Expected)
}
