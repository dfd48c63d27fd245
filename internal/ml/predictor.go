package ml

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// ErrNoPredictor is returned by methods called on a nil Predictor.
var ErrNoPredictor = errors.New("predictor not initialized")

// MetricsInterface defines metrics methods needed by the predictor
type MetricsInterface interface {
	MLPredictionsAdd(int)
	MLFailuresInc()
	MLLatencyObserve(float64)
	MLExplainLatencyObserve(float64)
	MLPredictionScoresObserve(float64)
	MLModelAgeSet(float64)
}

// Scores is the classifier output for a batch of students.
type Scores struct {
	Probabilities []float64
	Labels        []int
	Threshold     float64
}

// AtRisk counts the rows labelled 1.
func (s *Scores) AtRisk() int {
	n := 0
	for _, l := range s.Labels {
		n += l
	}
	return n
}

// Predictor couples the ensemble with its explainer and records metrics for
// every call. Inputs are aligned to the model's feature order by name.
type Predictor struct {
	ensemble  *Ensemble
	explainer Explainer
	threshold float64
	metrics   MetricsInterface
}

// New loads the model at path without metrics.
func New(path string) (*Predictor, error) {
	return NewWithMetrics(path, nil, 0)
}

// NewWithMetrics loads the model at path. A threshold of zero defers to the
// artifact's threshold.
func NewWithMetrics(path string, metrics MetricsInterface, threshold float64) (*Predictor, error) {
	e, err := LoadEnsemble(path)
	if err != nil {
		return nil, err
	}
	return NewFromEnsemble(e, metrics, threshold), nil
}

// NewFromEnsemble wraps an already parsed ensemble.
func NewFromEnsemble(e *Ensemble, metrics MetricsInterface, threshold float64) *Predictor {
	if threshold <= 0 {
		threshold = e.meta.Threshold
	}
	if threshold <= 0 {
		threshold = 0.5
	}

	p := &Predictor{
		ensemble:  e,
		explainer: NewTreeExplainer(e),
		threshold: threshold,
		metrics:   metrics,
	}
	p.RefreshModelAge()
	return p
}

// RefreshModelAge publishes the age of the artifact on disk.
func (p *Predictor) RefreshModelAge() {
	if p == nil || p.metrics == nil {
		return
	}
	stamp := p.ensemble.meta.TrainedAt
	if stamp.IsZero() {
		stamp = p.ensemble.meta.ModifiedAt
	}
	if stamp.IsZero() {
		return
	}
	p.metrics.MLModelAgeSet(time.Since(stamp).Seconds())
}

// Threshold is the probability above which a student is labelled at risk.
func (p *Predictor) Threshold() float64 {
	if p == nil {
		return 0
	}
	return p.threshold
}

// Metadata describes the loaded model.
func (p *Predictor) Metadata() ModelMetadata {
	if p == nil {
		return ModelMetadata{}
	}
	return p.ensemble.Metadata()
}

// FeatureNames lists the features the model was trained on.
func (p *Predictor) FeatureNames() []string {
	if p == nil {
		return nil
	}
	return p.ensemble.FeatureNames()
}

// Score classifies every row of X, whose columns are named by names.
func (p *Predictor) Score(names []string, X *mat.Dense) (*Scores, error) {
	if p == nil {
		return nil, ErrNoPredictor
	}

	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.MLLatencyObserve(time.Since(start).Seconds())
		}
	}()

	aligned, err := p.ensemble.Align(names, X)
	if err != nil {
		p.failure()
		return nil, err
	}

	probs, err := p.ensemble.PredictProba(aligned)
	if err != nil {
		p.failure()
		return nil, err
	}
	labels, err := p.ensemble.Predict(aligned, p.threshold)
	if err != nil {
		p.failure()
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.MLPredictionsAdd(len(probs))
		for _, prob := range probs {
			p.metrics.MLPredictionScoresObserve(prob)
		}
	}

	return &Scores{Probabilities: probs, Labels: labels, Threshold: p.threshold}, nil
}

// Explain computes SHAP values for every row of X, whose columns are named
// by names. The explanation's features follow the model order.
func (p *Predictor) Explain(names []string, X *mat.Dense) (*Explanation, error) {
	if p == nil {
		return nil, ErrNoPredictor
	}

	start := time.Now()
	aligned, err := p.ensemble.Align(names, X)
	if err != nil {
		p.failure()
		return nil, err
	}

	ex, err := p.explainer.Explain(aligned)
	if err != nil {
		p.failure()
		return nil, err
	}

	elapsed := time.Since(start)
	if p.metrics != nil {
		p.metrics.MLExplainLatencyObserve(elapsed.Seconds())
	}
	log.Debug().Stringer("explanation", ex).Dur("elapsed", elapsed).Msg("explained predictions")

	return ex, nil
}

func (p *Predictor) failure() {
	if p.metrics != nil {
		p.metrics.MLFailuresInc()
	}
}
