package ml

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func newTestPredictor(t *testing.T, metrics MetricsInterface, threshold float64) *Predictor {
	t.Helper()
	p, err := NewWithMetrics(filepath.Join("testdata", "model.json"), metrics, threshold)
	if err != nil {
		t.Fatalf("failed to load model: %v", err)
	}
	return p
}

var uploadNames = []string{"JANTINA", "GREDSPM", "KEHADIRAN", "UJIAN1", "ASRAMA"}

func uploadMatrix() *mat.Dense {
	return mat.NewDense(3, 5, []float64{
		0, 1, 95.5, 88, 1,
		1, 10, 61, 32.25, 0,
		math.NaN(), math.NaN(), 78, math.NaN(), 1,
	})
}

func TestPredictor_MissingModel(t *testing.T) {
	_, err := New("nonexistent_model.json")
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("Expected ErrModelNotFound, got: %v", err)
	}
}

func TestPredictor_Score(t *testing.T) {
	metrics := &MockMetrics{}
	p := newTestPredictor(t, metrics, 0)

	if p.Threshold() != 0.5 {
		t.Errorf("Expected artifact threshold 0.5, got %v", p.Threshold())
	}

	scores, err := p.Score(uploadNames, uploadMatrix())
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	want := []int{0, 1, 1}
	for i, l := range scores.Labels {
		if l != want[i] {
			t.Errorf("row %d: expected label %d, got %d", i, want[i], l)
		}
	}
	if scores.AtRisk() != 2 {
		t.Errorf("Expected 2 at-risk students, got %d", scores.AtRisk())
	}

	if metrics.predictions != 3 {
		t.Errorf("Expected 3 predictions tracked, got %d", metrics.predictions)
	}
	if len(metrics.predictionScores) != 3 {
		t.Errorf("Expected 3 scores observed, got %d", len(metrics.predictionScores))
	}
	if metrics.modelAge <= 0 {
		t.Error("Expected model age to be published")
	}
}

func TestPredictor_CustomThreshold(t *testing.T) {
	p := newTestPredictor(t, nil, 0.7)

	scores, err := p.Score(uploadNames, uploadMatrix())
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	// p(row 2) is about 0.68
	if scores.Labels[2] != 0 {
		t.Error("Expected row 2 to be safe at threshold 0.7")
	}
}

func TestPredictor_ArtifactThreshold(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "model.json"))
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	var artifact map[string]interface{}
	if err := json.Unmarshal(data, &artifact); err != nil {
		t.Fatalf("failed to decode fixture: %v", err)
	}
	artifact["threshold"] = 0.7
	data, err = json.Marshal(artifact)
	if err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}

	e, err := ParseEnsemble(data)
	if err != nil {
		t.Fatalf("ParseEnsemble failed: %v", err)
	}

	p := NewFromEnsemble(e, nil, 0)
	if p.Threshold() != 0.7 {
		t.Fatalf("Expected artifact threshold 0.7, got %v", p.Threshold())
	}
	scores, err := p.Score(uploadNames, uploadMatrix())
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if scores.Labels[2] != 0 {
		t.Error("Expected row 2 to be safe under the artifact threshold")
	}

	// An explicit threshold still wins over the artifact's.
	p = NewFromEnsemble(e, nil, 0.6)
	scores, err = p.Score(uploadNames, uploadMatrix())
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if scores.Labels[2] != 1 {
		t.Error("Expected row 2 to be at risk at threshold 0.6")
	}
}

func TestPredictor_FeatureMismatch(t *testing.T) {
	metrics := &MockMetrics{}
	p := newTestPredictor(t, metrics, 0)

	_, err := p.Score([]string{"UJIAN1"}, mat.NewDense(1, 1, []float64{50}))
	if !errors.Is(err, ErrFeatureMismatch) {
		t.Fatalf("Expected ErrFeatureMismatch, got: %v", err)
	}
	if metrics.failures != 1 {
		t.Errorf("Expected 1 failure tracked, got %d", metrics.failures)
	}
}

func TestPredictor_Explain(t *testing.T) {
	metrics := &MockMetrics{}
	p := newTestPredictor(t, metrics, 0)

	ex, err := p.Explain(uploadNames, uploadMatrix())
	if err != nil {
		t.Fatalf("Explain failed: %v", err)
	}

	if len(ex.Features) != 4 {
		t.Errorf("Expected 4 explained features, got %d", len(ex.Features))
	}
	if metrics.explainCalls != 1 {
		t.Errorf("Expected explain latency to be tracked once, got %d", metrics.explainCalls)
	}
}

func TestPredictor_NilSafety(t *testing.T) {
	var p *Predictor

	if _, err := p.Score(uploadNames, uploadMatrix()); !errors.Is(err, ErrNoPredictor) {
		t.Errorf("Expected ErrNoPredictor from Score, got %v", err)
	}
	if _, err := p.Explain(uploadNames, uploadMatrix()); !errors.Is(err, ErrNoPredictor) {
		t.Errorf("Expected ErrNoPredictor from Explain, got %v", err)
	}
	if p.FeatureNames() != nil {
		t.Error("Expected nil feature names")
	}
	p.RefreshModelAge()
}

func TestPredictor_Concurrency(t *testing.T) {
	metrics := &MockMetrics{}
	p := newTestPredictor(t, metrics, 0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if _, err := p.Score(uploadNames, uploadMatrix()); err != nil {
					t.Errorf("Score failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if metrics.predictions != 10*20*3 {
		t.Errorf("Expected %d predictions, got %d", 10*20*3, metrics.predictions)
	}
}
