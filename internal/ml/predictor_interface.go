// Package ml loads the pre-trained at-risk classifier and explains its
// decisions. The classifier is a gradient-boosted tree ensemble exported from
// XGBoost as a JSON model dump; explanations are exact TreeSHAP attributions
// computed over the same trees.
//
// Everything loaded here is immutable after construction and safe for
// concurrent use by many requests.
package ml

import "gonum.org/v1/gonum/mat"

// Classifier defines the binary classifier used to flag at-risk students.
type Classifier interface {
	// FeatureNames lists the features in the column order the model expects.
	FeatureNames() []string

	// PredictProba returns p(at risk) for each row of X.
	PredictProba(X *mat.Dense) ([]float64, error)

	// Predict returns 1 for rows whose probability exceeds threshold, else 0.
	Predict(X *mat.Dense, threshold float64) ([]int, error)
}

// Explainer attributes each prediction to the input features.
type Explainer interface {
	Explain(X *mat.Dense) (*Explanation, error)
}

var (
	_ Classifier = (*Ensemble)(nil)
	_ Explainer  = (*TreeExplainer)(nil)
)
