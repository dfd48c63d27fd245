// Package api holds the JSON documents exchanged by the server and the
// prediction client.
package api

import "simpleml/internal/ml"

// StudentPrediction is one scored row of an upload.
type StudentPrediction struct {
	Row         int     `json:"row"`
	Name        string  `json:"name,omitempty"`
	RiskLevel   string  `json:"risk_level"`
	Probability float64 `json:"probability"`
}

// PredictResponse is returned by POST /api/predict.
type PredictResponse struct {
	SessionID    string                 `json:"session_id"`
	ModelVersion string                 `json:"model_version"`
	Threshold    float64                `json:"threshold"`
	Rows         int                    `json:"rows"`
	AtRisk       int                    `json:"at_risk"`
	Features     []string               `json:"features"`
	Dropped      []string               `json:"dropped,omitempty"`
	Expected     float64                `json:"expected_value"`
	Importance   []ml.FeatureImportance `json:"importance"`
	Predictions  []StudentPrediction    `json:"predictions"`
	DownloadURL  string                 `json:"download_url"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status       string   `json:"status"`
	ModelVersion string   `json:"model_version"`
	Features     []string `json:"features"`
}

// ErrorResponse carries the failure text of any JSON endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}
