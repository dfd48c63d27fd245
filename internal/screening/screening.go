// Package screening runs the at-risk pipeline over one uploaded roster:
// load, encode, select features, predict, explain and label.
package screening

import (
	"bytes"
	"context"
	"io"
	"time"

	"simpleml/internal/api"
	"simpleml/internal/common"
	"simpleml/internal/ml"
	"simpleml/internal/roster"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Pipeline stages, also used as the metrics "stage" label.
const (
	StageLoad     = "load"
	StageEncode   = "encode"
	StageFeatures = "features"
	StagePredict  = "predict"
	StageExplain  = "explain"
	StageLabel    = "label"
)

// Model is what the pipeline needs from the classifier.
type Model interface {
	Score(names []string, X *mat.Dense) (*ml.Scores, error)
	Explain(names []string, X *mat.Dense) (*ml.Explanation, error)
	Metadata() ml.ModelMetadata
}

// MetricsInterface defines metrics methods needed by the screener
type MetricsInterface interface {
	ScreeningObserve(rows int)
	AtRiskAdd(int)
	StageFailureInc(stage string)
}

// StageError tags a pipeline failure with the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Options configures column handling.
type Options struct {
	Encode      roster.EncodeOptions
	DropColumns []string
	NameColumn  string
}

// DefaultOptions uses the Malay column names the model was trained on.
func DefaultOptions() Options {
	return Options{
		Encode: roster.EncodeOptions{
			GenderColumn: common.DefaultGenderColumn,
			GradeColumn:  common.DefaultGradeColumn,
		},
		DropColumns: common.DefaultDropColumns,
		NameColumn:  common.DefaultNameColumn,
	}
}

// Report is the outcome of screening one roster.
type Report struct {
	Roster        *roster.Roster // the upload as sent, plus Risk_Level
	Display       [][]string
	Labels        []string
	Probabilities []float64
	AtRisk        int
	Threshold     float64
	Features      []string // columns selected from the upload
	Dropped       []string // non-numeric columns left out
	Explanation   *ml.Explanation
	Importance    []ml.FeatureImportance
	ModelVersion  string
	Elapsed       time.Duration
}

// CSV renders the labelled roster for download.
func (r *Report) CSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Roster.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Students lists every row's label and probability, named from nameColumn
// when the roster has it.
func (r *Report) Students(nameColumn string) []api.StudentPrediction {
	var names []string
	if r.Roster.HasColumn(nameColumn) {
		names, _ = r.Roster.Column(nameColumn)
	}

	out := make([]api.StudentPrediction, len(r.Labels))
	for i, label := range r.Labels {
		out[i] = api.StudentPrediction{
			Row:         i + 1,
			RiskLevel:   label,
			Probability: r.Probabilities[i],
		}
		if i < len(names) {
			out[i].Name = names[i]
		}
	}
	return out
}

// Screener runs the pipeline. It holds no per-request state and is safe for
// concurrent use.
type Screener struct {
	model   Model
	opts    Options
	metrics MetricsInterface
}

// NewScreener creates a screener. metrics may be nil.
func NewScreener(model Model, opts Options, metrics MetricsInterface) *Screener {
	return &Screener{model: model, opts: opts, metrics: metrics}
}

// Run loads a CSV roster from r and screens it.
func (s *Screener) Run(ctx context.Context, r io.Reader) (*Report, error) {
	students, err := roster.Load(r)
	if err != nil {
		return nil, s.fail(StageLoad, err)
	}
	return s.Screen(ctx, students)
}

// Screen runs every stage after loading. The context is checked between
// stages.
func (s *Screener) Screen(ctx context.Context, students *roster.Roster) (*Report, error) {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.ScreeningObserve(students.Len())
	}

	encoded, err := students.Encode(s.opts.Encode)
	if err != nil {
		return nil, s.fail(StageEncode, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, s.fail(StageEncode, err)
	}

	fs, err := encoded.Features(s.opts.DropColumns)
	if err != nil {
		return nil, s.fail(StageFeatures, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, s.fail(StageFeatures, err)
	}

	scores, err := s.model.Score(fs.Names, fs.Matrix)
	if err != nil {
		return nil, s.fail(StagePredict, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, s.fail(StagePredict, err)
	}

	explanation, err := s.model.Explain(fs.Names, fs.Matrix)
	if err != nil {
		return nil, s.fail(StageExplain, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, s.fail(StageExplain, err)
	}

	labels := Labels(scores.Labels)
	labelled, err := students.WithLabels(labels)
	if err != nil {
		return nil, s.fail(StageLabel, err)
	}

	report := &Report{
		Roster:        labelled,
		Display:       labelled.Display(s.opts.NameColumn),
		Labels:        labels,
		Probabilities: scores.Probabilities,
		AtRisk:        scores.AtRisk(),
		Threshold:     scores.Threshold,
		Features:      fs.Names,
		Dropped:       fs.Dropped,
		Explanation:   explanation,
		Importance:    explanation.Importance(),
		ModelVersion:  s.model.Metadata().Version,
		Elapsed:       time.Since(start),
	}

	if s.metrics != nil {
		s.metrics.AtRiskAdd(report.AtRisk)
	}

	log.Info().
		Int("students", students.Len()).
		Int("at_risk", report.AtRisk).
		Strs("dropped", fs.Dropped).
		Dur("elapsed", report.Elapsed).
		Msg("screening completed")

	return report, nil
}

func (s *Screener) fail(stage string, err error) error {
	if s.metrics != nil {
		s.metrics.StageFailureInc(stage)
	}
	log.Warn().Err(err).Str("stage", stage).Msg("screening failed")
	return &StageError{Stage: stage, Err: err}
}

// Labels maps binary predictions to the display labels.
func Labels(predictions []int) []string {
	out := make([]string, len(predictions))
	for i, p := range predictions {
		if p == 1 {
			out[i] = common.LabelAtRisk
		} else {
			out[i] = common.LabelSafe
		}
	}
	return out
}

var _ Model = (*ml.Predictor)(nil)
